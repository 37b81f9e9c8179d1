package testbed

import (
	"errors"
	"image/color"
	gomath "math"
	"os"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/lumen/engine"
	"github.com/spaghettifunk/lumen/engine/config"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/resources"
	"github.com/spaghettifunk/lumen/engine/scene"
)

const checkerPath = "textures/checker.png"

type TestGame struct {
	*engine.Game
}

type gameState struct {
	engine *engine.Engine

	root    *scene.BasicNode
	camera  *scene.BasicNode
	lens    *scene.PerspectiveCamera
	spinner *scene.BasicNode
	cubes   []*scene.BasicNode
	glass   *resources.UnlitMaterial

	elapsed time.Duration
}

func NewTestGame(cfg *config.Config, maxFrames uint64) *TestGame {
	tg := &TestGame{
		Game: &engine.Game{
			ApplicationConfig: &engine.ApplicationConfig{
				Name:      "Lumen Testbed",
				Config:    cfg,
				MaxFrames: maxFrames,
				TargetFPS: 60,
			},
			State: &gameState{},
		},
	}

	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnOnResize = tg.OnResize
	tg.FnShutdown = tg.Shutdown

	return tg
}

func (g *TestGame) state() *gameState {
	return g.State.(*gameState)
}

func (g *TestGame) Initialize(e *engine.Engine) (scene.Node, scene.Node, error) {
	core.LogInfo("initializing testbed...")
	st := g.state()
	st.engine = e
	st.root = scene.NewNode("world")

	checker, err := g.checker(e)
	if err != nil {
		return nil, nil, err
	}

	floorGeometry, err := resources.NewPlaneGeometry("floor", 20, 20)
	if err != nil {
		return nil, nil, err
	}
	floorMaterial := resources.NewStandardMaterial("floor", mgl32.Vec4{0.8, 0.8, 0.8, 1})
	floorMaterial.SetColorMap(checker)
	floorMaterial.SetRoughness(0.9)
	floor := scene.NewNode("floor", &scene.Mesh{Geometry: floorGeometry, Material: floorMaterial})
	floor.Transform().Rotation = mgl32.QuatRotate(-gomath.Pi/2, mgl32.Vec3{1, 0, 0})
	floor.Transform().Position = mgl32.Vec3{0, -1, 0}
	st.root.Add(floor)

	cube, err := resources.NewCubeGeometry("cube", 1, 1, 1)
	if err != nil {
		return nil, nil, err
	}

	red := resources.NewUnlitMaterial("red", mgl32.Vec4{0.9, 0.2, 0.2, 1})
	green := resources.NewStandardMaterial("green", mgl32.Vec4{0.2, 0.8, 0.3, 1})
	green.SetEmissive(mgl32.Vec3{0.05, 0.1, 0.05})
	green.SetMetalness(0.3)
	st.glass = resources.NewUnlitMaterial("glass", mgl32.Vec4{0.3, 0.5, 1, 0.5})
	st.glass.SetBlend(true)

	st.cubes = []*scene.BasicNode{
		g.addCube(st.root, "red", cube, red, mgl32.Vec3{-2.5, 0, 0}),
		g.addCube(st.root, "green", cube, green, mgl32.Vec3{0, 0, 0}),
		g.addCube(st.root, "glass", cube, st.glass, mgl32.Vec3{2.5, 0, 0}),
	}

	// children orbit with the spinner
	st.spinner = scene.NewNode("spinner")
	st.spinner.Transform().Position = mgl32.Vec3{0, 2, -3}
	st.root.Add(st.spinner)
	moon := resources.NewUnlitMaterial("moon", mgl32.Vec4{1, 1, 1, 1})
	moon.SetColorMap(checker)
	g.addCube(st.spinner, "moon-a", cube, moon, mgl32.Vec3{1.5, 0, 0}).Transform().Scale = mgl32.Vec3{0.5, 0.5, 0.5}
	g.addCube(st.spinner, "moon-b", cube, moon, mgl32.Vec3{-1.5, 0, 0}).Transform().Scale = mgl32.Vec3{0.5, 0.5, 0.5}

	width, height := e.Renderer().Size()
	st.lens = scene.NewPerspectiveCamera(60, float32(width)/float32(height), 0.1, 100)
	st.camera = scene.NewNode("camera", st.lens)
	st.camera.Transform().Position = mgl32.Vec3{0, 3, 8}
	st.camera.Transform().LookAt(mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 1, 0})
	st.root.Add(st.camera)

	return st.root, st.camera, nil
}

// checker loads the checker texture through the asset manager so it hot
// reloads, and falls back to a generated one when the file is missing.
func (g *TestGame) checker(e *engine.Engine) (*resources.Texture, error) {
	tex, err := e.Assets().LoadTexture(checkerPath)
	if err == nil {
		return tex, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	core.LogDebug("'%s' not found, generating a checker texture", checkerPath)
	const size, cell = 64, 8
	pixels := make([]byte, size*size*4)
	light, dark := color.RGBA{220, 220, 220, 255}, color.RGBA{60, 60, 60, 255}
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			c := dark
			if (x/cell+y/cell)%2 == 0 {
				c = light
			}
			i := (y*size + x) * 4
			pixels[i], pixels[i+1], pixels[i+2], pixels[i+3] = c.R, c.G, c.B, c.A
		}
	}
	return resources.NewTexture("checker", size, size, pixels)
}

func (g *TestGame) addCube(parent *scene.BasicNode, name string, geometry *resources.Geometry, material resources.Material, pos mgl32.Vec3) *scene.BasicNode {
	n := scene.NewNode(name, &scene.Mesh{Geometry: geometry, Material: material})
	n.Transform().Position = pos
	parent.Add(n)
	return n
}

func (g *TestGame) Update(delta time.Duration) error {
	st := g.state()
	st.elapsed += delta
	dt := float32(delta.Seconds())

	for i, c := range st.cubes {
		c.Transform().Yaw(dt * float32(i+1) * 0.5)
	}
	st.spinner.Transform().Yaw(dt)

	alpha := 0.35 + 0.25*float32(gomath.Sin(st.elapsed.Seconds()*2))
	col := st.glass.Color()
	col[3] = alpha
	st.glass.SetColor(col)
	return nil
}

func (g *TestGame) OnResize(width uint32, height uint32) error {
	st := g.state()
	if height > 0 {
		st.lens.Aspect = float32(width) / float32(height)
	}
	return nil
}

func (g *TestGame) Shutdown() error {
	st := g.state()
	if st.root != nil {
		st.root.Release()
	}
	core.LogInfo("testbed shut down after %s", st.elapsed.Round(time.Millisecond))
	return nil
}
