package engine

import (
	"hash/fnv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/lumen/engine/config"
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

type recorder struct {
	updates  atomic.Int32
	resized  [2]uint32
	shutdown bool
}

func testConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	cfg.Logging.Level = "warn"
	cfg.Renderer.Width, cfg.Renderer.Height = 64, 48
	cfg.Assets.Dir = t.TempDir()
	cfg.Assets.Watch = false
	cfg.Assets.Workers = 1
	return cfg
}

func newTestGame(t *testing.T, device *soft.Device, maxFrames uint64) (*Game, *recorder) {
	t.Helper()
	rec := &recorder{}
	g := &Game{
		ApplicationConfig: &ApplicationConfig{
			Name:      "engine test",
			Config:    testConfig(t),
			MaxFrames: maxFrames,
			Device:    device,
			Compiler:  hashCompiler{},
		},
		FnInitialize: func(e *Engine) (scene.Node, scene.Node, error) {
			root := scene.NewNode("root")
			geometry, err := resources.NewCubeGeometry("cube", 1, 1, 1)
			if err != nil {
				return nil, nil, err
			}
			cube := scene.NewNode("cube", &scene.Mesh{
				Geometry: geometry,
				Material: resources.NewUnlitMaterial("white", mgl32.Vec4{1, 1, 1, 1}),
			})
			cube.Transform().Position = mgl32.Vec3{0, 0, -5}
			root.Add(cube)
			camera := scene.NewNode("camera", scene.NewPerspectiveCamera(60, 4.0/3.0, 0.1, 100))
			root.Add(camera)
			return root, camera, nil
		},
		FnUpdate: func(time.Duration) error {
			rec.updates.Add(1)
			return nil
		},
		FnOnResize: func(w, h uint32) error {
			rec.resized = [2]uint32{w, h}
			return nil
		},
		FnShutdown: func() error {
			rec.shutdown = true
			return nil
		},
	}
	return g, rec
}

func TestRunStopsAfterMaxFrames(t *testing.T) {
	device := soft.NewDevice(soft.Options{})
	g, rec := newTestGame(t, device, 3)

	e, err := New(g)
	require.NoError(t, err)
	assert.Equal(t, EngineStageUninitialized, e.Stage())
	require.NoError(t, e.Initialize())
	assert.Equal(t, EngineStageInitialized, e.Stage())

	require.NoError(t, e.Run())
	assert.Equal(t, uint64(3), e.Renderer().Frames())
	assert.Equal(t, int32(3), rec.updates.Load())
	assert.Equal(t, uint64(3), e.Metrics().Frames())
	assert.Equal(t, 1, e.LastFrame().Drawn)
	assert.Empty(t, device.ValidationErrors())

	require.NoError(t, e.Shutdown())
	assert.Equal(t, EngineStageShutdown, e.Stage())
	assert.True(t, rec.shutdown)
	assert.Zero(t, device.AllocatedBytes())

	// a second shutdown is a no-op
	require.NoError(t, e.Shutdown())
}

func TestShutdownStopsRunningLoop(t *testing.T) {
	g, rec := newTestGame(t, soft.NewDevice(soft.Options{}), 0)
	e, err := New(g)
	require.NoError(t, err)
	require.NoError(t, e.Initialize())

	done := make(chan error, 1)
	go func() { done <- e.Run() }()

	require.Eventually(t, func() bool { return rec.updates.Load() >= 2 }, 5*time.Second, time.Millisecond)
	require.NoError(t, e.Shutdown())

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Shutdown")
	}
	assert.Equal(t, EngineStageShutdown, e.Stage())
}

func TestRunBeforeInitialize(t *testing.T) {
	g, _ := newTestGame(t, soft.NewDevice(soft.Options{}), 1)
	e, err := New(g)
	require.NoError(t, err)
	assert.ErrorIs(t, e.Run(), ErrNotInitialized)
}

func TestInitializeTwice(t *testing.T) {
	g, _ := newTestGame(t, soft.NewDevice(soft.Options{}), 1)
	e, err := New(g)
	require.NoError(t, err)
	require.NoError(t, e.Initialize())
	assert.ErrorIs(t, e.Initialize(), core.ErrAlreadyInitialized)
	require.NoError(t, e.Shutdown())
}

func TestInitializeWithoutCamera(t *testing.T) {
	g, _ := newTestGame(t, soft.NewDevice(soft.Options{}), 1)
	g.FnInitialize = func(*Engine) (scene.Node, scene.Node, error) {
		return scene.NewNode("root"), nil, nil
	}
	e, err := New(g)
	require.NoError(t, err)
	assert.ErrorIs(t, e.Initialize(), core.ErrMissingCamera)
	assert.Equal(t, EngineStageUninitialized, e.Stage())
	assert.Nil(t, e.Renderer())
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	g, _ := newTestGame(t, nil, 1)
	g.ApplicationConfig.Config.Device.Backend = "metal"
	_, err := New(g)
	assert.ErrorIs(t, err, core.ErrInvalidParameters)

	_, err = New(&Game{})
	assert.ErrorIs(t, err, core.ErrInvalidParameters)
}

func TestSoftBackendFromConfig(t *testing.T) {
	g, _ := newTestGame(t, nil, 1)
	g.ApplicationConfig.Device = nil
	e, err := New(g)
	require.NoError(t, err)
	require.NoError(t, e.Initialize())
	assert.IsType(t, &soft.Device{}, e.Device())
	require.NoError(t, e.Run())
	require.NoError(t, e.Shutdown())
	assert.Nil(t, e.Device())
}

func TestResizeNotifiesGame(t *testing.T) {
	g, rec := newTestGame(t, soft.NewDevice(soft.Options{}), 1)
	e, err := New(g)
	require.NoError(t, err)
	require.NoError(t, e.Initialize())

	require.NoError(t, e.Resize(0, 10))
	assert.Equal(t, [2]uint32{}, rec.resized)

	require.NoError(t, e.Resize(32, 24))
	assert.Equal(t, [2]uint32{32, 24}, rec.resized)
	w, h := e.Renderer().Size()
	assert.Equal(t, uint32(32), w)
	assert.Equal(t, uint32(24), h)

	require.NoError(t, e.Run())
	require.NoError(t, e.Shutdown())
}

func TestStageString(t *testing.T) {
	assert.Equal(t, "running", EngineStageRunning.String())
	assert.Equal(t, "stage(42)", Stage(42).String())
}
