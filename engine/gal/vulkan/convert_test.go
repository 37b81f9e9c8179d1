package vulkan

import (
	"fmt"
	"testing"

	"github.com/gogpu/gputypes"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/gal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextureFormat(t *testing.T) {
	f, err := textureFormat(gputypes.TextureFormatRGBA8Unorm, vk.FormatD32Sfloat)
	require.NoError(t, err)
	assert.Equal(t, vk.FormatR8g8b8a8Unorm, f)

	f, err = textureFormat(gputypes.TextureFormatDepth24PlusStencil8, vk.FormatD32SfloatS8Uint)
	require.NoError(t, err)
	assert.Equal(t, vk.FormatD32SfloatS8Uint, f)

	_, err = textureFormat(gputypes.TextureFormatUndefined, vk.FormatD32Sfloat)
	assert.ErrorIs(t, err, core.ErrUnsupportedFormat)
}

func TestAspectMask(t *testing.T) {
	depthStencil := vk.ImageAspectFlags(vk.ImageAspectDepthBit | vk.ImageAspectStencilBit)
	assert.Equal(t, depthStencil, aspectMask(vk.FormatD24UnormS8Uint, false))
	assert.Equal(t, vk.ImageAspectFlags(vk.ImageAspectDepthBit), aspectMask(vk.FormatD24UnormS8Uint, true))
	assert.Equal(t, vk.ImageAspectFlags(vk.ImageAspectDepthBit), aspectMask(vk.FormatD32Sfloat, false))
	assert.Equal(t, vk.ImageAspectFlags(vk.ImageAspectColorBit), aspectMask(vk.FormatR8g8b8a8Unorm, true))
}

func TestImageLayoutCoversEveryLayout(t *testing.T) {
	seen := map[vk.ImageLayout]gal.Layout{}
	for _, l := range gal.Layouts() {
		vl := imageLayout(l)
		if l != gal.LayoutUndefined {
			assert.NotEqual(t, vk.ImageLayoutUndefined, vl, "layout %s", l)
		}
		if prev, ok := seen[vl]; ok {
			t.Errorf("layouts %s and %s map to the same image layout", prev, l)
		}
		seen[vl] = l
	}
}

func TestAccessAndStageBitsMatch(t *testing.T) {
	assert.Equal(t, uint32(vk.AccessShaderReadBit), uint32(gal.AccessShaderRead))
	assert.Equal(t, uint32(vk.AccessTransferWriteBit), uint32(gal.AccessTransferWrite))
	assert.Equal(t, uint32(vk.AccessDepthStencilAttachmentWriteBit), uint32(gal.AccessDepthStencilAttachmentWrite))
	assert.Equal(t, uint32(vk.PipelineStageFragmentShaderBit), uint32(gal.StageFragmentShader))
	assert.Equal(t, uint32(vk.PipelineStageTransferBit), uint32(gal.StageTransfer))
	assert.Equal(t, uint32(vk.PipelineStageColorAttachmentOutputBit), uint32(gal.StageColorAttachmentOutput))
}

func TestUsageFlags(t *testing.T) {
	u := bufferUsage(gputypes.BufferUsageVertex | gputypes.BufferUsageCopyDst)
	assert.Equal(t, vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit|vk.BufferUsageTransferDstBit), u)
	assert.Equal(t, vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit), bufferUsage(gputypes.BufferUsageMapWrite))

	usage := gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageTextureBinding
	assert.Equal(t, vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit|vk.ImageUsageSampledBit), imageUsage(usage, false))
	assert.Equal(t, vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit|vk.ImageUsageSampledBit), imageUsage(usage, true))
}

func TestDescriptorAndStages(t *testing.T) {
	assert.Equal(t, vk.DescriptorTypeUniformBuffer, descriptorType(gal.BindingUniformBuffer))
	assert.Equal(t, vk.DescriptorTypeSampledImage, descriptorType(gal.BindingTexture))
	assert.Equal(t, vk.DescriptorTypeSampler, descriptorType(gal.BindingSampler))

	both := vk.ShaderStageFlags(vk.ShaderStageVertexBit | vk.ShaderStageFragmentBit)
	assert.Equal(t, both, shaderStages(nil))
	assert.Equal(t, vk.ShaderStageFlags(vk.ShaderStageFragmentBit), shaderStages([]gal.ShaderStage{gal.ShaderStageFragment}))
}

func TestCheckWrapsCoreErrors(t *testing.T) {
	assert.NoError(t, check("op", vk.Success))
	assert.ErrorIs(t, check("op", vk.ErrorDeviceLost), core.ErrDeviceLost)
	assert.ErrorIs(t, check("op", vk.ErrorOutOfDeviceMemory), core.ErrOutOfDeviceMemory)
	assert.ErrorIs(t, check("op", vk.Timeout), core.ErrFenceTimeout)

	err := check("vkCreateImage", vk.ErrorInitializationFailed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "VK_ERROR_INITIALIZATION_FAILED")
	assert.Contains(t, resultString(vk.Result(-12345)), fmt.Sprint(-12345))
}

func TestStringHelpers(t *testing.T) {
	assert.Equal(t, "abc\x00", safeString("abc"))
	assert.Equal(t, "abc\x00", safeString("abc\x00"))
	assert.Equal(t, "VK_LAYER", cString([]byte{'V', 'K', '_', 'L', 'A', 'Y', 'E', 'R', 0, 'x'}))
	assert.Equal(t, "full", cString([]byte("full")))
}

func TestLockPoolReusesMutex(t *testing.T) {
	p := newLockPool()
	assert.Same(t, p.get(queueSubmission), p.get(queueSubmission))
	assert.NotSame(t, p.get(queueSubmission), p.get(descriptorUpdates))

	calls := 0
	require.NoError(t, p.SafeCall(objectCaches, func() error { calls++; return nil }))
	assert.Equal(t, 1, calls)
}
