// Package config loads the engine settings from TOML. Defaults are applied
// first, so a file only has to name what it changes.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/pelletier/go-toml/v2"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer"
)

type Config struct {
	Logging  LoggingConfig  `toml:"logging"`
	Device   DeviceConfig   `toml:"device"`
	Renderer RendererConfig `toml:"renderer"`
	Caches   CachesConfig   `toml:"caches"`
	Shader   ShaderConfig   `toml:"shader"`
	Assets   AssetsConfig   `toml:"assets"`
}

type LoggingConfig struct {
	Level string `toml:"level"`
}

type DeviceConfig struct {
	// Backend is "soft" or "vulkan".
	Backend    string `toml:"backend"`
	Validation bool   `toml:"validation"`
	// MemoryBudget caps soft device allocations in bytes; zero is unlimited.
	MemoryBudget int `toml:"memory_budget"`
}

type RendererConfig struct {
	Width           uint32     `toml:"width"`
	Height          uint32     `toml:"height"`
	ColorFormat     string     `toml:"color_format"`
	AuxFormat       string     `toml:"aux_format"`
	DepthFormat     string     `toml:"depth_format"`
	ClearColor      [4]float64 `toml:"clear_color"`
	TransparentSort string     `toml:"transparent_sort"`
	// FenceTimeout is a Go duration; empty or "0" waits forever.
	FenceTimeout string `toml:"fence_timeout"`
}

type CachesConfig struct {
	StagingPoolSize int `toml:"staging_pool_size"`
}

type ShaderConfig struct {
	// Compiler is "naga" for WGSL or "glslc" for GLSL.
	Compiler  string `toml:"compiler"`
	GlslcPath string `toml:"glslc_path"`
}

type AssetsConfig struct {
	Dir     string `toml:"dir"`
	Watch   bool   `toml:"watch"`
	Workers int    `toml:"workers"`
}

func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info"},
		Device:  DeviceConfig{Backend: "soft"},
		Renderer: RendererConfig{
			Width:           1280,
			Height:          720,
			ColorFormat:     "rgba8unorm",
			AuxFormat:       "rgba8unorm",
			DepthFormat:     "depth24plus-stencil8",
			ClearColor:      [4]float64{0.05, 0.05, 0.08, 1},
			TransparentSort: string(renderer.FrontToBack),
		},
		Caches: CachesConfig{StagingPoolSize: renderer.DefaultStagingPoolSize},
		Shader: ShaderConfig{Compiler: "naga", GlslcPath: "glslc"},
		Assets: AssetsConfig{Dir: "assets", Watch: true, Workers: 2},
	}
}

// Load reads path over the defaults. Unknown keys are rejected so typos do
// not pass silently.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("load config '%s': %w", path, err)
	}
	return cfg, nil
}

func Parse(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := toml.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return nil, fmt.Errorf("line %d column %d: %s: %w", row, col, derr.Error(), core.ErrInvalidParameters)
		}
		return nil, fmt.Errorf("%s: %w", err, core.ErrInvalidParameters)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Write encodes cfg as TOML.
func (c *Config) Write(w io.Writer) error {
	enc := toml.NewEncoder(w)
	enc.SetIndentTables(true)
	return enc.Encode(c)
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Device.Backend {
	case "soft", "vulkan":
	default:
		errs = append(errs, fmt.Errorf("device.backend '%s' is not soft or vulkan", c.Device.Backend))
	}
	switch c.Shader.Compiler {
	case "naga", "glslc":
	default:
		errs = append(errs, fmt.Errorf("shader.compiler '%s' is not naga or glslc", c.Shader.Compiler))
	}
	if c.Renderer.Width == 0 || c.Renderer.Height == 0 {
		errs = append(errs, fmt.Errorf("renderer size %dx%d", c.Renderer.Width, c.Renderer.Height))
	}
	if c.Caches.StagingPoolSize < 1 {
		errs = append(errs, fmt.Errorf("caches.staging_pool_size %d is below 1", c.Caches.StagingPoolSize))
	}
	if c.Assets.Workers < 1 {
		errs = append(errs, fmt.Errorf("assets.workers %d is below 1", c.Assets.Workers))
	}
	if _, err := c.RendererConfig(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w: %w", errors.Join(errs...), core.ErrInvalidParameters)
	}
	return nil
}

// RendererConfig translates the renderer and caches sections.
func (c *Config) RendererConfig() (renderer.Config, error) {
	rc := c.Renderer
	color, err := ParseTextureFormat(rc.ColorFormat)
	if err != nil {
		return renderer.Config{}, fmt.Errorf("renderer.color_format: %w", err)
	}
	aux, err := ParseTextureFormat(rc.AuxFormat)
	if err != nil {
		return renderer.Config{}, fmt.Errorf("renderer.aux_format: %w", err)
	}
	depth, err := ParseTextureFormat(rc.DepthFormat)
	if err != nil {
		return renderer.Config{}, fmt.Errorf("renderer.depth_format: %w", err)
	}
	order, err := renderer.ParseSortOrder(rc.TransparentSort)
	if err != nil {
		return renderer.Config{}, fmt.Errorf("renderer.transparent_sort: %w", err)
	}
	var timeout time.Duration
	if s := strings.TrimSpace(rc.FenceTimeout); s != "" {
		if timeout, err = time.ParseDuration(s); err != nil {
			return renderer.Config{}, fmt.Errorf("renderer.fence_timeout: %w", err)
		}
	}
	return renderer.Config{
		Width:       rc.Width,
		Height:      rc.Height,
		ColorFormat: color,
		AuxFormat:   aux,
		DepthFormat: depth,
		ClearColor: gputypes.Color{
			R: rc.ClearColor[0], G: rc.ClearColor[1], B: rc.ClearColor[2], A: rc.ClearColor[3],
		},
		TransparentSort: order,
		FenceTimeout:    timeout,
		StagingPoolSize: c.Caches.StagingPoolSize,
	}, nil
}

var textureFormats = map[string]gputypes.TextureFormat{
	"r8unorm":              gputypes.TextureFormatR8Unorm,
	"rgba8unorm":           gputypes.TextureFormatRGBA8Unorm,
	"bgra8unorm":           gputypes.TextureFormatBGRA8Unorm,
	"depth24plus-stencil8": gputypes.TextureFormatDepth24PlusStencil8,
}

// ParseTextureFormat accepts the WebGPU spelling of the formats the
// renderer creates.
func ParseTextureFormat(name string) (gputypes.TextureFormat, error) {
	f, ok := textureFormats[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, fmt.Errorf("texture format '%s': %w", name, core.ErrUnsupportedFormat)
	}
	return f, nil
}
