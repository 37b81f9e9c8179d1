package vulkan

import (
	"testing"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/gal"
	"github.com/spaghettifunk/lumen/engine/platform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newDevice skips on machines without a Vulkan driver.
func newDevice(t *testing.T) *Device {
	t.Helper()
	p, err := platform.New()
	if err != nil {
		t.Skipf("vulkan loader unavailable: %s", err)
	}
	d, err := NewDevice(p, Options{AppName: "lumen-test"})
	if err != nil {
		t.Skipf("no usable vulkan device: %s", err)
	}
	t.Cleanup(d.Destroy)
	return d
}

func submitAndWait(t *testing.T, d *Device, cmd gal.CommandBuffer) {
	t.Helper()
	fence, err := d.CreateFence(false)
	require.NoError(t, err)
	defer fence.Destroy()
	require.NoError(t, d.Queue().Submit(fence, cmd))
	require.NoError(t, fence.Wait(5*time.Second))
	assert.True(t, fence.Signaled())
}

func TestBufferCopyOnDevice(t *testing.T) {
	d := newDevice(t)
	data := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	src, err := gal.CreateBufferWithData(d, &gal.BufferDescriptor{Label: "src", Usage: gputypes.BufferUsageCopySrc}, data, true)
	require.NoError(t, err)
	defer src.Destroy()
	dst, err := d.CreateBuffer(&gal.BufferDescriptor{Label: "dst", Size: len(data), Usage: gputypes.BufferUsageCopyDst | gputypes.BufferUsageMapRead})
	require.NoError(t, err)
	defer dst.Destroy()

	cmd, err := d.CreateCommandBuffer()
	require.NoError(t, err)
	require.NoError(t, cmd.Begin())
	cmd.CopyBuffer(src, dst, 2, 0, 4)
	require.NoError(t, cmd.End())
	submitAndWait(t, d, cmd)

	mapped, err := dst.Map()
	require.NoError(t, err)
	assert.Equal(t, []byte{3, 4, 5, 6}, mapped[:4])
}

func TestUploadAndMipChainOnDevice(t *testing.T) {
	d := newDevice(t)
	tex, err := d.CreateTexture(&gal.TextureDescriptor{
		Label:    "mips",
		Width:    4,
		Height:   4,
		MipCount: 3,
		Format:   gputypes.TextureFormatRGBA8Unorm,
		Usage:    gputypes.TextureUsageCopyDst | gputypes.TextureUsageCopySrc | gputypes.TextureUsageTextureBinding,
	})
	require.NoError(t, err)
	defer tex.Destroy()

	staging, err := gal.CreateBufferWithData(d, &gal.BufferDescriptor{Usage: gputypes.BufferUsageCopySrc}, make([]byte, 4*4*4), true)
	require.NoError(t, err)
	defer staging.Destroy()

	cmd, err := d.CreateCommandBuffer()
	require.NoError(t, err)
	require.NoError(t, cmd.Begin())
	cmd.PipelineBarrier(gal.TextureBarrier(tex, gal.LayoutUndefined, gal.LayoutCopyDst, gal.SubresourceRange{}))
	cmd.CopyBufferToTexture(staging, 0, tex, 0)
	for level := uint32(1); level < 3; level++ {
		cmd.PipelineBarrier(gal.TextureBarrier(tex, gal.LayoutCopyDst, gal.LayoutCopySrc, gal.MipRange(level-1, 1)))
		cmd.BlitTexture(tex, level-1, level, gputypes.FilterModeLinear)
	}
	cmd.PipelineBarrier(
		gal.TextureBarrier(tex, gal.LayoutCopySrc, gal.LayoutShaderReadOnly, gal.MipRange(0, 2)),
		gal.TextureBarrier(tex, gal.LayoutCopyDst, gal.LayoutShaderReadOnly, gal.MipRange(2, 1)),
	)
	require.NoError(t, cmd.End())
	submitAndWait(t, d, cmd)

	for level := uint32(0); level < 3; level++ {
		assert.Equal(t, gal.LayoutShaderReadOnly, tex.Layout(level))
	}
}

func TestMisuseIsReportedAtEnd(t *testing.T) {
	d := newDevice(t)
	cmd, err := d.CreateCommandBuffer()
	require.NoError(t, err)
	require.NoError(t, cmd.Begin())
	cmd.DrawIndexed(3, 1, 0, 0, 0)
	assert.ErrorIs(t, cmd.End(), core.ErrInvalidParameters)
}

func TestInvalidDescriptors(t *testing.T) {
	d := newDevice(t)
	_, err := d.CreateBuffer(&gal.BufferDescriptor{Size: 0})
	assert.ErrorIs(t, err, core.ErrInvalidParameters)
	_, err = d.CreateTexture(&gal.TextureDescriptor{Width: 4, Height: 4, MipCount: 1})
	assert.ErrorIs(t, err, core.ErrUnsupportedFormat)
	_, err = d.CreateShaderModule(&gal.ShaderModuleDescriptor{Code: []byte{1, 2, 3, 4}})
	assert.ErrorIs(t, err, core.ErrShaderCompile)
	_, err = d.CreateBindGroupLayout(&gal.BindGroupLayoutDescriptor{})
	assert.ErrorIs(t, err, core.ErrInvalidParameters)
}

func TestFenceTimesOut(t *testing.T) {
	d := newDevice(t)
	fence, err := d.CreateFence(false)
	require.NoError(t, err)
	defer fence.Destroy()
	assert.ErrorIs(t, fence.Wait(time.Millisecond), core.ErrFenceTimeout)

	signaled, err := d.CreateFence(true)
	require.NoError(t, err)
	defer signaled.Destroy()
	assert.NoError(t, signaled.Wait(gal.WaitForever))
	require.NoError(t, signaled.Reset())
	assert.False(t, signaled.Signaled())
}
