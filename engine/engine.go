package engine

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spaghettifunk/lumen/engine/assets"
	"github.com/spaghettifunk/lumen/engine/config"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/gal"
	"github.com/spaghettifunk/lumen/engine/gal/soft"
	"github.com/spaghettifunk/lumen/engine/gal/vulkan"
	"github.com/spaghettifunk/lumen/engine/platform"
	"github.com/spaghettifunk/lumen/engine/renderer"
	"github.com/spaghettifunk/lumen/engine/scene"
	"github.com/spaghettifunk/lumen/engine/shader"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
	// Engine released everything it owned
	EngineStageShutdown
)

func (s Stage) String() string {
	switch s {
	case EngineStageUninitialized:
		return "uninitialized"
	case EngineStageInitializing:
		return "initializing"
	case EngineStageInitialized:
		return "initialized"
	case EngineStageRunning:
		return "running"
	case EngineStageShuttingDown:
		return "shutting down"
	case EngineStageShutdown:
		return "shut down"
	default:
		return fmt.Sprintf("stage(%d)", uint8(s))
	}
}

var ErrNotInitialized = errors.New("engine is not initialized")

type Engine struct {
	mutex        sync.Mutex
	currentStage Stage
	gameInstance *Game
	config       *config.Config

	platform *platform.Platform
	device   gal.RenderDevice
	ownsDev  bool
	renderer *renderer.ForwardRenderer
	assets   *assets.Manager

	root   scene.Node
	camera scene.Node

	isRunning atomic.Bool
	stopped   chan struct{}

	clock    *core.Clock
	metrics  *core.Metrics
	lastTime time.Duration
	last     renderer.FrameStats
}

func New(g *Game) (*Engine, error) {
	if g == nil || g.ApplicationConfig == nil || g.FnInitialize == nil {
		err := fmt.Errorf("func New - a game with an application config and an initializer is required: %w", core.ErrInvalidParameters)
		core.LogError("%s", err)
		return nil, err
	}
	cfg := g.ApplicationConfig.Config
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		core.LogError("func New - %s", err)
		return nil, err
	}
	core.SetLogLevel(cfg.Logging.Level)

	return &Engine{
		currentStage: EngineStageUninitialized,
		gameInstance: g,
		config:       cfg,
		clock:        core.NewClock(),
		metrics:      core.NewMetrics(),
	}, nil
}

// Initialize creates the device, the shader compiler, the renderer and the
// asset manager, then lets the game build its scene.
func (e *Engine) Initialize() error {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	if e.currentStage != EngineStageUninitialized {
		return fmt.Errorf("initialize in stage %s: %w", e.currentStage, core.ErrAlreadyInitialized)
	}
	e.currentStage = EngineStageInitializing
	app := e.gameInstance.ApplicationConfig

	if err := e.createDevice(app); err != nil {
		e.release()
		return err
	}
	compiler, err := e.createCompiler(app)
	if err != nil {
		e.release()
		return err
	}
	rc, err := e.config.RendererConfig()
	if err != nil {
		e.release()
		return err
	}
	if e.renderer, err = renderer.NewForwardRenderer(e.device, rc, compiler); err != nil {
		e.release()
		return err
	}

	if e.assets, err = assets.NewManager(assets.Config{
		Dir:     e.config.Assets.Dir,
		Workers: e.config.Assets.Workers,
	}); err != nil {
		e.release()
		return err
	}
	if e.config.Assets.Watch {
		if err := e.assets.Watch(); err != nil {
			// missing asset directories are not fatal, nothing will reload
			core.LogWarn("asset hot reload disabled: %s", err)
		}
	}

	root, camera, err := e.gameInstance.FnInitialize(e)
	if err != nil {
		core.LogError("game initialization failed: %s", err)
		e.release()
		return err
	}
	if root == nil || camera == nil {
		e.release()
		return fmt.Errorf("game initializer returned no scene or camera: %w", core.ErrMissingCamera)
	}
	e.root, e.camera = root, camera

	e.currentStage = EngineStageInitialized
	core.LogInfo("engine initialized for '%s' on %s", app.Name, e.device.Name())
	return nil
}

func (e *Engine) createDevice(app *ApplicationConfig) error {
	if app.Device != nil {
		e.device = app.Device
		return nil
	}
	switch e.config.Device.Backend {
	case "vulkan":
		p, err := platform.New()
		if err != nil {
			return fmt.Errorf("vulkan backend: %w", err)
		}
		e.platform = p
		d, err := vulkan.NewDevice(p, vulkan.Options{
			AppName:    app.Name,
			Validation: e.config.Device.Validation,
		})
		if err != nil {
			return fmt.Errorf("vulkan backend: %w", err)
		}
		e.device = d
	default:
		e.device = soft.NewDevice(soft.Options{MemoryBudget: e.config.Device.MemoryBudget})
	}
	e.ownsDev = true
	return nil
}

func (e *Engine) createCompiler(app *ApplicationConfig) (shader.Compiler, error) {
	if app.Compiler != nil {
		return app.Compiler, nil
	}
	if e.config.Shader.Compiler == "glslc" {
		return shader.NewGLSLCompiler(e.config.Shader.GlslcPath)
	}
	return shader.NewNagaCompiler(), nil
}

// Run renders frames until Shutdown is called, MaxFrames is reached or a
// frame fails.
func (e *Engine) Run() error {
	e.mutex.Lock()
	if e.currentStage != EngineStageInitialized {
		stage := e.currentStage
		e.mutex.Unlock()
		return fmt.Errorf("run in stage %s: %w", stage, ErrNotInitialized)
	}
	e.currentStage = EngineStageRunning
	e.stopped = make(chan struct{})
	e.isRunning.Store(true)
	stopped := e.stopped
	e.mutex.Unlock()
	defer func() {
		e.mutex.Lock()
		if e.currentStage == EngineStageRunning {
			e.currentStage = EngineStageInitialized
		}
		e.mutex.Unlock()
		close(stopped)
	}()

	app := e.gameInstance.ApplicationConfig
	var targetFrame time.Duration
	if app.TargetFPS > 0 {
		targetFrame = time.Second / time.Duration(app.TargetFPS)
	}

	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	for e.isRunning.Load() {
		e.clock.Update()
		currentTime := e.clock.Elapsed()
		delta := currentTime - e.lastTime
		frameStart := time.Now()

		if n := e.assets.Apply(); n > 0 {
			core.LogDebug("%d reloaded texture(s) applied", n)
		}

		if e.gameInstance.FnUpdate != nil {
			if err := e.gameInstance.FnUpdate(delta); err != nil {
				core.LogError("game update failed, shutting down: %s", err)
				e.isRunning.Store(false)
				return err
			}
		}

		stats, err := e.renderer.Render(e.root, e.camera)
		if err != nil {
			core.LogError("frame %d failed, shutting down: %s", e.renderer.Frames(), err)
			e.isRunning.Store(false)
			return err
		}
		e.last = stats

		frameElapsed := time.Since(frameStart)
		e.metrics.Update(frameElapsed)
		if remaining := targetFrame - frameElapsed; targetFrame > 0 && remaining > 0 {
			// give the rest of the frame back to the OS
			time.Sleep(remaining)
		}
		if e.metrics.Frames()%300 == 0 {
			core.LogDebug("fps=%.0f frame=%.2fms drawn=%d culled=%d",
				e.metrics.FPS(), e.metrics.FrameTime(), stats.Drawn, stats.Culled)
		}

		e.lastTime = currentTime
		if app.MaxFrames > 0 && e.renderer.Frames() >= app.MaxFrames {
			e.isRunning.Store(false)
		}
	}
	return nil
}

// Resize rebuilds the render targets and tells the game. Zero sizes are
// ignored.
func (e *Engine) Resize(width, height uint32) error {
	if width == 0 || height == 0 || e.renderer == nil {
		return nil
	}
	if w, h := e.renderer.Size(); w == width && h == height {
		return nil
	}
	if err := e.renderer.Resize(width, height); err != nil {
		return err
	}
	core.LogDebug("resized to %dx%d", width, height)
	if e.gameInstance.FnOnResize != nil {
		return e.gameInstance.FnOnResize(width, height)
	}
	return nil
}

// Shutdown stops Run, waits for the frame in flight and frees everything.
// It is safe to call from another goroutine and more than once.
func (e *Engine) Shutdown() error {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	for e.currentStage == EngineStageRunning {
		e.isRunning.Store(false)
		stopped := e.stopped
		e.mutex.Unlock()
		<-stopped
		e.mutex.Lock()
	}
	if e.currentStage == EngineStageShutdown || e.currentStage == EngineStageShuttingDown {
		return nil
	}
	e.currentStage = EngineStageShuttingDown

	var errs []error
	if e.gameInstance.FnShutdown != nil {
		errs = append(errs, e.gameInstance.FnShutdown())
	}
	errs = append(errs, e.release())
	e.currentStage = EngineStageShutdown
	core.LogInfo("engine shut down after %d frames (%.0f fps)", e.metrics.Frames(), e.metrics.FPS())
	return errors.Join(errs...)
}

// release frees whatever Initialize got to create, newest first.
func (e *Engine) release() error {
	var errs []error
	if e.assets != nil {
		errs = append(errs, e.assets.Close())
		e.assets = nil
	}
	if e.renderer != nil {
		errs = append(errs, e.renderer.Shutdown())
		e.renderer = nil
	}
	if e.device != nil && e.ownsDev {
		e.device.Destroy()
	}
	e.device = nil
	if e.platform != nil {
		errs = append(errs, e.platform.Shutdown())
		e.platform = nil
	}
	if e.currentStage == EngineStageInitializing {
		e.currentStage = EngineStageUninitialized
	}
	return errors.Join(errs...)
}

func (e *Engine) Stage() Stage {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.currentStage
}

func (e *Engine) Config() *config.Config             { return e.config }
func (e *Engine) Device() gal.RenderDevice           { return e.device }
func (e *Engine) Renderer() *renderer.ForwardRenderer { return e.renderer }
func (e *Engine) Assets() *assets.Manager            { return e.assets }
func (e *Engine) Metrics() *core.Metrics             { return e.metrics }

// LastFrame returns the stats of the most recent frame.
func (e *Engine) LastFrame() renderer.FrameStats { return e.last }
