package renderer

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/fnv"
	"image/color"
	gomath "math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/gal"
	"github.com/spaghettifunk/lumen/engine/gal/soft"
	"github.com/spaghettifunk/lumen/engine/resources"
	"github.com/spaghettifunk/lumen/engine/scene"
	"github.com/spaghettifunk/lumen/engine/shader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type hashCompiler struct{}

func (hashCompiler) Language() gal.ShaderLanguage {
	return gal.ShaderLanguageWGSL
}

func (hashCompiler) Compile(source string, stage gal.ShaderStage, defines []string) ([]byte, error) {
	src, err := shader.Preprocess(source, defines)
	if err != nil {
		return nil, err
	}
	h := fnv.New64a()
	h.Write([]byte(src))
	h.Write([]byte{byte(stage)})
	return h.Sum(nil), nil
}

// brokenCompiler starts failing once broken is set.
type brokenCompiler struct {
	hashCompiler
	broken bool
}

func (c *brokenCompiler) Compile(source string, stage gal.ShaderStage, defines []string) ([]byte, error) {
	if c.broken {
		return nil, fmt.Errorf("compiler offline: %w", core.ErrShaderCompile)
	}
	return c.hashCompiler.Compile(source, stage, defines)
}

// fencelessDevice fails the last object the renderer creates.
type fencelessDevice struct {
	gal.RenderDevice
}

func (fencelessDevice) CreateFence(bool) (gal.Fence, error) {
	return nil, core.ErrOutOfDeviceMemory
}

func newTestRenderer(t *testing.T, config Config) (*ForwardRenderer, *soft.Device) {
	t.Helper()
	if config.Width == 0 {
		config.Width, config.Height = 64, 48
	}
	device := soft.NewDevice(soft.Options{})
	r, err := NewForwardRenderer(device, config, hashCompiler{})
	require.NoError(t, err)
	return r, device
}

func newCamera() *scene.BasicNode {
	return scene.NewNode("camera", scene.NewPerspectiveCamera(60, 4.0/3.0, 0.1, 100))
}

func addCube(t *testing.T, parent *scene.BasicNode, name string, pos mgl32.Vec3, m resources.Material) *scene.BasicNode {
	t.Helper()
	g, err := resources.NewCubeGeometry(name, 1, 1, 1)
	require.NoError(t, err)
	n := scene.NewNode(name, &scene.Mesh{Geometry: g, Material: m})
	n.Transform().Position = pos
	parent.Add(n)
	return n
}

func opaque(name string) resources.Material {
	return resources.NewUnlitMaterial(name, mgl32.Vec4{1, 1, 1, 1})
}

func transparent(name string) resources.Material {
	m := resources.NewUnlitMaterial(name, mgl32.Vec4{1, 1, 1, 0.5})
	m.SetBlend(true)
	return m
}

// drawOrder maps the bind groups bound in the last frame back to node names.
func drawOrder(r *ForwardRenderer, nodes ...scene.Node) []string {
	names := map[gal.BindGroup]string{}
	for _, n := range nodes {
		if e, ok := r.objects.Lookup(n); ok {
			names[e.BindGroup] = n.Name()
		}
	}
	var order []string
	for _, c := range r.graphics.(*soft.CommandBuffer).Commands() {
		if c.Kind == soft.CmdBindBindGroup {
			order = append(order, names[c.BindGroup])
		}
	}
	return order
}

func requireClean(t *testing.T, d *soft.Device) {
	t.Helper()
	errs := d.ValidationErrors()
	require.Empty(t, errs, "validation: %v", errors.Join(errs...))
}

func TestRenderOpaqueFrontToBack(t *testing.T) {
	r, device := newTestRenderer(t, Config{})
	root := scene.NewNode("root")
	far := addCube(t, root, "far", mgl32.Vec3{0, 0, -20}, opaque("a"))
	near := addCube(t, root, "near", mgl32.Vec3{0, 0, -3}, opaque("b"))
	mid := addCube(t, root, "mid", mgl32.Vec3{0.5, 0, -8}, opaque("c"))

	stats, err := r.Render(root, newCamera())
	require.NoError(t, err)
	requireClean(t, device)

	assert.Equal(t, []string{"near", "mid", "far"}, drawOrder(r, far, near, mid))
	assert.Equal(t, FrameStats{Visible: 3, Opaque: 3, Drawn: 3, PipelineBinds: 3}, stats)
	assert.Equal(t, 3, device.Stats().Draws)
}

func TestRenderCullsOutsideFrustum(t *testing.T) {
	r, device := newTestRenderer(t, Config{})
	root := scene.NewNode("root")
	inside := addCube(t, root, "inside", mgl32.Vec3{0, 0, -5}, opaque("a"))
	behind := addCube(t, root, "behind", mgl32.Vec3{0, 0, 10}, opaque("b"))
	aside := addCube(t, root, "aside", mgl32.Vec3{100, 0, -5}, opaque("c"))
	beyond := addCube(t, root, "beyond", mgl32.Vec3{0, 0, -500}, opaque("d"))

	stats, err := r.Render(root, newCamera())
	require.NoError(t, err)
	requireClean(t, device)

	assert.Equal(t, 3, stats.Culled)
	assert.Equal(t, 1, stats.Drawn)
	assert.Equal(t, []string{"inside"}, drawOrder(r, inside, behind, aside, beyond))
	_, cached := r.objects.Lookup(behind)
	assert.False(t, cached, "culled objects never reach the caches")
}

func TestRenderSkipsInvisibleSubtrees(t *testing.T) {
	r, _ := newTestRenderer(t, Config{})
	root := scene.NewNode("root")
	group := scene.NewNode("group")
	root.Add(group)
	addCube(t, group, "hidden", mgl32.Vec3{0, 0, -5}, opaque("a"))
	addCube(t, root, "shown", mgl32.Vec3{0, 0, -5}, opaque("b"))
	group.SetVisible(false)

	stats, err := r.Render(root, newCamera())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Visible)
	assert.Zero(t, stats.Culled)
}

func TestRenderChildInheritsParentTransform(t *testing.T) {
	r, _ := newTestRenderer(t, Config{})
	root := scene.NewNode("root")
	// the parent is past the far plane; the child's local offset brings it
	// back in front of the camera
	parent := addCube(t, root, "parent", mgl32.Vec3{0, 0, -150}, opaque("a"))
	child := addCube(t, parent, "child", mgl32.Vec3{0, 0, 145}, opaque("b"))

	stats, err := r.Render(root, newCamera())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Culled)
	assert.Equal(t, []string{"child"}, drawOrder(r, parent, child))
	assert.InDelta(t, -5, child.Transform().WorldPosition().Z(), 1e-5)
}

func TestRenderTransparentAfterOpaque(t *testing.T) {
	cases := []struct {
		order SortOrder
		want  []string
	}{
		{FrontToBack, []string{"wall", "glass.near", "glass.far"}},
		{BackToFront, []string{"wall", "glass.far", "glass.near"}},
	}
	for _, c := range cases {
		t.Run(string(c.order), func(t *testing.T) {
			r, device := newTestRenderer(t, Config{TransparentSort: c.order})
			root := scene.NewNode("root")
			glassFar := addCube(t, root, "glass.far", mgl32.Vec3{0, 0, -9}, transparent("g1"))
			glassNear := addCube(t, root, "glass.near", mgl32.Vec3{0, 0, -4}, transparent("g2"))
			wall := addCube(t, root, "wall", mgl32.Vec3{0, 0, -12}, opaque("w"))

			stats, err := r.Render(root, newCamera())
			require.NoError(t, err)
			requireClean(t, device)
			assert.Equal(t, c.want, drawOrder(r, glassFar, glassNear, wall))
			assert.Equal(t, 2, stats.Transparent)
			assert.Equal(t, 1, stats.Opaque)

			entry, ok := r.objects.Lookup(glassNear)
			require.True(t, ok)
			desc := entry.Pipeline.(*soft.GraphicsPipeline).Descriptor()
			assert.True(t, desc.BlendEnabled)
			assert.False(t, desc.DepthStencil.DepthWrite)
		})
	}
}

func TestRenderLeavesTargetsReadable(t *testing.T) {
	r, device := newTestRenderer(t, Config{})
	root := scene.NewNode("root")
	addCube(t, root, "cube", mgl32.Vec3{0, 0, -5}, opaque("a"))
	camera := newCamera()

	for frame := 0; frame < 3; frame++ {
		_, err := r.Render(root, camera)
		require.NoError(t, err)
	}
	requireClean(t, device)
	assert.Equal(t, uint64(3), r.Frames())

	views := r.Targets()
	require.Len(t, views, 3)
	assert.Equal(t, []string{"color", "aux", "depth"}, []string{views[0].Name, views[1].Name, views[2].Name})
	assert.Equal(t, gal.LayoutShaderReadOnly, views[0].Layout)
	assert.Equal(t, gal.LayoutShaderReadOnly, views[1].Layout)
	assert.Equal(t, gal.LayoutDepthReadOnly, views[2].Layout)
	for _, v := range views {
		assert.Equal(t, v.Layout, v.Texture.Layout(0), v.Name)
	}

	// the post-pass barriers are the last commands of the frame
	cmds := r.graphics.(*soft.CommandBuffer).Commands()
	last := cmds[len(cmds)-1]
	assert.Equal(t, soft.CmdBarrier, last.Kind)
	assert.Equal(t, gal.LayoutDepthStencilAttachment, last.Barrier.OldLayout)
	assert.Equal(t, gal.LayoutDepthReadOnly, last.Barrier.NewLayout)
	assert.Equal(t, 3, device.Stats().Submits)
}

func TestRenderDefaultTextureInEmptySlots(t *testing.T) {
	r, device := newTestRenderer(t, Config{})
	root := scene.NewNode("root")
	m := resources.NewStandardMaterial("m", mgl32.Vec4{1, 1, 1, 1})
	m.SetColorMap(resources.NewSolidTexture("albedo", 4, 4, color.RGBA{255, 0, 0, 255}))
	cube := addCube(t, root, "cube", mgl32.Vec3{0, 0, -5}, m)
	camera := newCamera()

	_, err := r.Render(root, camera)
	require.NoError(t, err)
	m.SetColorMap(nil)
	_, err = r.Render(root, camera)
	require.NoError(t, err)
	requireClean(t, device)

	entry, ok := r.objects.Lookup(cube)
	require.True(t, ok)
	b, ok := entry.BindGroup.(*soft.BindGroup).Bound(3)
	require.True(t, ok)
	assert.Equal(t, "default.white", r.objects.DefaultTexture().Name())
	assert.Equal(t, uint32(1), b.Texture.Width())
}

func TestRenderMissingCameraIsFatal(t *testing.T) {
	r, _ := newTestRenderer(t, Config{})
	var got error
	defer core.SetFatalHook(func(err error) { got = err })()

	assert.Panics(t, func() {
		_, _ = r.Render(scene.NewNode("root"), scene.NewNode("not-a-camera"))
	})
	assert.ErrorIs(t, got, core.ErrMissingCamera)
	assert.Contains(t, got.Error(), "not-a-camera")
}

func TestColorAttachmentIndex(t *testing.T) {
	r, _ := newTestRenderer(t, Config{})
	assert.NotNil(t, r.ColorAttachment(0))
	assert.NotNil(t, r.ColorAttachment(1))
	assert.NotSame(t, r.ColorAttachment(0), r.ColorAttachment(1))

	var got error
	defer core.SetFatalHook(func(err error) { got = err })()
	assert.Panics(t, func() { r.ColorAttachment(2) })
	assert.ErrorIs(t, got, core.ErrAttachmentIndex)
}

func TestResizeKeepsPipelines(t *testing.T) {
	r, device := newTestRenderer(t, Config{})
	root := scene.NewNode("root")
	addCube(t, root, "cube", mgl32.Vec3{0, 0, -5}, opaque("a"))
	camera := newCamera()
	_, err := r.Render(root, camera)
	require.NoError(t, err)

	old := r.ColorAttachment(0)
	oldLabel := old.Label()
	require.NoError(t, r.Resize(128, 96))
	assert.True(t, old.(*soft.Texture).Destroyed())

	color := r.ColorAttachment(0)
	assert.NotEqual(t, oldLabel, color.Label())
	assert.Equal(t, uint32(128), color.Width())
	assert.Equal(t, uint32(96), r.DepthAttachment().Height())

	_, err = r.Render(root, camera)
	require.NoError(t, err)
	requireClean(t, device)
	assert.Equal(t, 1, r.objects.PipelinesBuilt())

	assert.ErrorIs(t, r.Resize(0, 10), core.ErrInvalidParameters)
}

func TestShutdownFreesDeviceMemory(t *testing.T) {
	r, device := newTestRenderer(t, Config{})
	root := scene.NewNode("root")
	m := resources.NewStandardMaterial("m", mgl32.Vec4{1, 1, 1, 1})
	m.SetColorMap(resources.NewSolidTexture("albedo", 16, 16, color.RGBA{1, 2, 3, 4}))
	addCube(t, root, "a", mgl32.Vec3{0, 0, -5}, m)
	addCube(t, root, "b", mgl32.Vec3{1, 0, -6}, opaque("b"))

	_, err := r.Render(root, newCamera())
	require.NoError(t, err)
	require.NoError(t, r.Shutdown())

	assert.Zero(t, device.AllocatedBytes())
	stats := device.Stats()
	assert.Equal(t, stats.PipelinesCreated, stats.PipelinesDestroyed)
	assert.Equal(t, stats.BuffersCreated, stats.BuffersDestroyed)
	assert.Equal(t, stats.TexturesCreated, stats.TexturesDestroyed)
}

func TestNewRendererFromZeroConfig(t *testing.T) {
	device := soft.NewDevice(soft.Options{})
	r, err := NewForwardRenderer(device, Config{Width: 64, Height: 48}, hashCompiler{})
	require.NoError(t, err)

	assert.Equal(t, DefaultStagingPoolSize, r.config.StagingPoolSize)
	assert.Equal(t, FrontToBack, r.config.TransparentSort)
	assert.Equal(t, gputypes.TextureFormatRGBA8Unorm, r.config.ColorFormat)
	assert.Equal(t, gputypes.TextureFormatDepth24PlusStencil8, r.config.DepthFormat)

	root := scene.NewNode("root")
	addCube(t, root, "cube", mgl32.Vec3{0, 0, -5}, opaque("a"))
	stats, err := r.Render(root, newCamera())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Drawn)
	requireClean(t, device)
}

func TestNewRendererReleasesOnFailure(t *testing.T) {
	device := soft.NewDevice(soft.Options{})
	_, err := NewForwardRenderer(fencelessDevice{device}, Config{Width: 64, Height: 48}, hashCompiler{})
	assert.ErrorIs(t, err, core.ErrOutOfDeviceMemory)

	assert.Zero(t, device.AllocatedBytes())
	stats := device.Stats()
	assert.NotZero(t, stats.TexturesCreated)
	assert.Equal(t, stats.TexturesCreated, stats.TexturesDestroyed)
	assert.Equal(t, stats.BuffersCreated, stats.BuffersDestroyed)
}

// cameraPosition reads the world position back out of the camera uniforms.
func cameraPosition(r *ForwardRenderer) mgl32.Vec3 {
	data := r.camera.(*soft.Buffer).Bytes()[192:]
	var v mgl32.Vec3
	for i := range v {
		v[i] = gomath.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return v
}

func TestRenderParentedCamera(t *testing.T) {
	r, device := newTestRenderer(t, Config{})
	root := scene.NewNode("root")
	rig := scene.NewNode("rig")
	rig.Transform().Position = mgl32.Vec3{10, 0, 0}
	root.Add(rig)
	camera := newCamera()
	rig.Add(camera)
	// only visible from where the rig puts the camera
	cube := addCube(t, root, "cube", mgl32.Vec3{10, 0, -5}, opaque("a"))

	stats, err := r.Render(root, camera)
	require.NoError(t, err)
	requireClean(t, device)
	assert.InDelta(t, 10, cameraPosition(r).X(), 1e-5)
	assert.Equal(t, []string{"cube"}, drawOrder(r, cube))
	assert.Zero(t, stats.Culled)

	// moving the rig moves the view in the same frame
	rig.Transform().Position = mgl32.Vec3{-10, 0, 0}
	stats, err = r.Render(root, camera)
	require.NoError(t, err)
	assert.InDelta(t, -10, cameraPosition(r).X(), 1e-5)
	assert.Equal(t, 1, stats.Culled)
	assert.Zero(t, stats.Drawn)
}

func TestRenderAcquiresBeforeRecordingPass(t *testing.T) {
	device := soft.NewDevice(soft.Options{})
	compiler := &brokenCompiler{}
	r, err := NewForwardRenderer(device, Config{Width: 64, Height: 48}, compiler)
	require.NoError(t, err)
	root := scene.NewNode("root")
	addCube(t, root, "first", mgl32.Vec3{0, 0, -5}, opaque("a"))
	camera := newCamera()
	_, err = r.Render(root, camera)
	require.NoError(t, err)

	// a new material needs a program that can no longer be compiled
	addCube(t, root, "second", mgl32.Vec3{0, 0, -6}, resources.NewStandardMaterial("b", mgl32.Vec4{1, 1, 1, 1}))
	compiler.broken = true
	var got error
	defer core.SetFatalHook(func(err error) { got = err })()
	assert.Panics(t, func() { _, _ = r.Render(root, camera) })
	assert.ErrorIs(t, got, core.ErrShaderCompile)

	for _, c := range r.graphics.(*soft.CommandBuffer).Commands() {
		assert.NotEqual(t, soft.CmdBeginRenderPass, c.Kind)
		assert.NotEqual(t, soft.CmdDrawIndexed, c.Kind)
	}
}

func TestParseSortOrder(t *testing.T) {
	o, err := ParseSortOrder(" Back_To_Front ")
	require.NoError(t, err)
	assert.Equal(t, BackToFront, o)
	o, err = ParseSortOrder("")
	require.NoError(t, err)
	assert.Equal(t, FrontToBack, o)
	_, err = ParseSortOrder("random")
	assert.Error(t, err)
}
