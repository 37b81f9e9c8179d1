package engine

import (
	"github.com/spaghettifunk/lumen/engine/config"
	"github.com/spaghettifunk/lumen/engine/gal"
	"github.com/spaghettifunk/lumen/engine/shader"
)

type ApplicationConfig struct {
	// The application name, reported to the driver when a Vulkan device is created.
	Name string
	// Settings loaded from TOML. Nil means config.Default().
	Config *config.Config
	// MaxFrames stops Run after that many frames. Zero runs until Shutdown.
	MaxFrames uint64
	// TargetFPS sleeps away what is left of each frame. Zero does not throttle.
	TargetFPS int
	// Device and Compiler replace what Config.Device and Config.Shader would
	// select. Tests use them to inject doubles.
	Device   gal.RenderDevice
	Compiler shader.Compiler
}
