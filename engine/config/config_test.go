package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	rc, err := cfg.RendererConfig()
	require.NoError(t, err)
	assert.Equal(t, gputypes.TextureFormatRGBA8Unorm, rc.ColorFormat)
	assert.Equal(t, gputypes.TextureFormatDepth24PlusStencil8, rc.DepthFormat)
	assert.Equal(t, renderer.FrontToBack, rc.TransparentSort)
	assert.Zero(t, rc.FenceTimeout)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lumen.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[renderer]
width = 640
height = 480
transparent_sort = "back_to_front"
fence_timeout = "2s"

[device]
backend = "vulkan"
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "vulkan", cfg.Device.Backend)
	assert.Equal(t, "info", cfg.Logging.Level, "untouched sections keep defaults")
	assert.Equal(t, 8, cfg.Caches.StagingPoolSize)

	rc, err := cfg.RendererConfig()
	require.NoError(t, err)
	assert.Equal(t, uint32(640), rc.Width)
	assert.Equal(t, renderer.BackToFront, rc.TransparentSort)
	assert.Equal(t, 2*time.Second, rc.FenceTimeout)
	assert.Equal(t, 8, rc.StagingPoolSize)
}

func TestParseRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"unknown key":    "[renderer]\nwidht = 10\n",
		"backend":        "[device]\nbackend = \"metal\"\n",
		"format":         "[renderer]\ncolor_format = \"rgb565\"\n",
		"sort":           "[renderer]\ntransparent_sort = \"sideways\"\n",
		"timeout":        "[renderer]\nfence_timeout = \"soon\"\n",
		"zero workers":   "[assets]\nworkers = 0\n",
		"malformed toml": "[renderer\n",
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(src))
			assert.ErrorIs(t, err, core.ErrInvalidParameters)
		})
	}
}

func TestWriteThenParse(t *testing.T) {
	cfg := Default()
	cfg.Renderer.Width = 320
	cfg.Shader.Compiler = "glslc"

	var buf bytes.Buffer
	require.NoError(t, cfg.Write(&buf))
	back, err := Parse(&buf)
	require.NoError(t, err)
	assert.Equal(t, cfg, back)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
