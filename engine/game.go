package engine

import (
	"time"

	"github.com/spaghettifunk/lumen/engine/scene"
)

type Game struct {
	ApplicationConfig *ApplicationConfig
	State             interface{}
	FnInitialize      Initialize
	FnUpdate          Update
	FnOnResize        OnResize
	FnShutdown        Shutdown
}

// Initialize builds the scene and returns its root and the camera node.
type Initialize func(e *Engine) (root scene.Node, camera scene.Node, err error)
type Update func(delta time.Duration) error
type OnResize func(width uint32, height uint32) error
type Shutdown func() error
