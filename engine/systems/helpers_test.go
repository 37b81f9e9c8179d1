package systems

import (
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/gal"
	"github.com/spaghettifunk/lumen/engine/gal/soft"
	"github.com/spaghettifunk/lumen/engine/shader"
	"github.com/stretchr/testify/require"
)

// fakeCompiler returns a deterministic 8 byte blob per input so the soft
// device accepts it as SPIR-V.
type fakeCompiler struct {
	calls   int
	failFor string
}

func (c *fakeCompiler) Language() gal.ShaderLanguage {
	return gal.ShaderLanguageWGSL
}

func (c *fakeCompiler) Compile(source string, stage gal.ShaderStage, defines []string) ([]byte, error) {
	c.calls++
	if _, err := shader.Preprocess(source, defines); err != nil {
		return nil, err
	}
	for _, d := range defines {
		if d == c.failFor {
			return nil, fmt.Errorf("%s rejected: %w", d, core.ErrShaderCompile)
		}
	}
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%d|%s", source, stage, strings.Join(defines, ","))
	return h.Sum(nil), nil
}

type env struct {
	device   *soft.Device
	release  *ReleaseQueue
	geometry *GeometryCache
	textures *TextureCache
	programs *ProgramCache
	objects  *ObjectCache
	compiler *fakeCompiler
	camera   gal.Buffer
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		device:   soft.NewDevice(soft.Options{}),
		release:  NewReleaseQueue(16),
		compiler: &fakeCompiler{},
	}
	var err error
	e.geometry, err = NewGeometryCache(e.device, e.release)
	require.NoError(t, err)
	e.textures, err = NewTextureCache(TextureCacheConfig{StagingPoolSize: 4}, e.device, e.release)
	require.NoError(t, err)
	e.programs, err = NewProgramCache(e.device, e.compiler)
	require.NoError(t, err)
	e.camera, err = e.device.CreateBuffer(&gal.BufferDescriptor{Label: "camera", Size: CameraUniformSize, Usage: gputypes.BufferUsageUniform})
	require.NoError(t, err)
	e.objects, err = NewObjectCache(ObjectCacheConfig{
		ColorFormats: []gputypes.TextureFormat{gputypes.TextureFormatRGBA8Unorm},
		DepthFormat:  gputypes.TextureFormatDepth24PlusStencil8,
	}, e.device, e.release, e.textures, e.programs, e.camera)
	require.NoError(t, err)
	return e
}

// frame runs fn with an open transfer command buffer, then submits it,
// waits and retires the frame like the renderer does.
func (e *env) frame(t *testing.T, fn func(cmd *soft.CommandBuffer)) *soft.CommandBuffer {
	t.Helper()
	c, err := e.device.CreateCommandBuffer()
	require.NoError(t, err)
	cmd := c.(*soft.CommandBuffer)
	require.NoError(t, cmd.Begin())
	e.textures.BeginFrame(cmd)
	fn(cmd)
	require.NoError(t, cmd.End())

	fence, err := e.device.CreateFence(false)
	require.NoError(t, err)
	require.NoError(t, e.device.Queue().Submit(fence, cmd))
	require.NoError(t, fence.Wait(gal.WaitForever))
	e.release.Flush()
	e.textures.EndFrame()
	return cmd
}

func requireNoValidationErrors(t *testing.T, d *soft.Device) {
	t.Helper()
	errs := d.ValidationErrors()
	require.Empty(t, errs, "validation: %v", errors.Join(errs...))
}
