// Package platform bootstraps the native Vulkan loader. GLFW resolves the
// instance proc address when it can initialize; headless machines without
// a display fall back to the system loader.
package platform

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
)

func init() {
	// GLFW calls must run on the main OS thread
	runtime.LockOSThread()
}

// Loader tells which path resolved vkGetInstanceProcAddr.
type Loader string

const (
	LoaderGLFW   Loader = "glfw"
	LoaderSystem Loader = "system"
)

type Platform struct {
	loader Loader
	glfw   bool
}

var (
	vulkanOnce   sync.Once
	vulkanLoader Loader
	vulkanErr    error
)

// New loads Vulkan once per process; later calls reuse the first result.
func New() (*Platform, error) {
	vulkanOnce.Do(func() {
		vulkanLoader, vulkanErr = loadVulkan()
	})
	if vulkanErr != nil {
		return nil, vulkanErr
	}
	return &Platform{loader: vulkanLoader, glfw: vulkanLoader == LoaderGLFW}, nil
}

func loadVulkan() (Loader, error) {
	if err := glfw.Init(); err == nil {
		if glfw.VulkanSupported() {
			if procAddr := glfw.GetVulkanGetInstanceProcAddress(); procAddr != nil {
				vk.SetGetInstanceProcAddr(procAddr)
				if err := vk.Init(); err != nil {
					glfw.Terminate()
					return "", fmt.Errorf("initialize vulkan through glfw: %w", err)
				}
				core.LogInfo("vulkan loader resolved through glfw %s", glfw.GetVersionString())
				return LoaderGLFW, nil
			}
		}
		core.LogWarn("glfw reports no vulkan support, trying the system loader")
		glfw.Terminate()
	} else {
		core.LogDebug("glfw unavailable (%s), trying the system loader", err)
	}

	if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
		return "", fmt.Errorf("load vulkan library: %w", err)
	}
	if err := vk.Init(); err != nil {
		return "", fmt.Errorf("initialize vulkan loader: %w", err)
	}
	core.LogInfo("vulkan loader resolved through the system library")
	return LoaderSystem, nil
}

func (p *Platform) Loader() Loader {
	return p.loader
}

// Time is seconds since the loader came up, or zero without GLFW.
func (p *Platform) Time() float64 {
	if !p.glfw {
		return 0
	}
	return glfw.GetTime()
}

func (p *Platform) Shutdown() error {
	if p.glfw {
		glfw.Terminate()
		p.glfw = false
	}
	return nil
}
