package vulkan

import (
	"fmt"

	"github.com/gogpu/gputypes"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/gal"
)

func textureFormat(f gputypes.TextureFormat, depth vk.Format) (vk.Format, error) {
	switch f {
	case gputypes.TextureFormatR8Unorm:
		return vk.FormatR8Unorm, nil
	case gputypes.TextureFormatRGBA8Unorm:
		return vk.FormatR8g8b8a8Unorm, nil
	case gputypes.TextureFormatBGRA8Unorm:
		return vk.FormatB8g8r8a8Unorm, nil
	case gputypes.TextureFormatDepth24PlusStencil8:
		// "24 plus" lets the device pick whichever depth format it supports.
		return depth, nil
	default:
		return vk.FormatUndefined, fmt.Errorf("texture format %v: %w", f, core.ErrUnsupportedFormat)
	}
}

func hasStencil(f vk.Format) bool {
	return f == vk.FormatD24UnormS8Uint || f == vk.FormatD32SfloatS8Uint
}

func aspectMask(f vk.Format, sampled bool) vk.ImageAspectFlags {
	switch f {
	case vk.FormatD32Sfloat:
		return vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	case vk.FormatD24UnormS8Uint, vk.FormatD32SfloatS8Uint:
		if sampled {
			// a sampled view may only name one aspect
			return vk.ImageAspectFlags(vk.ImageAspectDepthBit)
		}
		return vk.ImageAspectFlags(vk.ImageAspectDepthBit | vk.ImageAspectStencilBit)
	default:
		return vk.ImageAspectFlags(vk.ImageAspectColorBit)
	}
}

func imageLayout(l gal.Layout) vk.ImageLayout {
	switch l {
	case gal.LayoutCopySrc:
		return vk.ImageLayoutTransferSrcOptimal
	case gal.LayoutCopyDst:
		return vk.ImageLayoutTransferDstOptimal
	case gal.LayoutColorAttachment:
		return vk.ImageLayoutColorAttachmentOptimal
	case gal.LayoutDepthStencilAttachment:
		return vk.ImageLayoutDepthStencilAttachmentOptimal
	case gal.LayoutShaderReadOnly:
		return vk.ImageLayoutShaderReadOnlyOptimal
	case gal.LayoutDepthReadOnly:
		return vk.ImageLayoutDepthStencilReadOnlyOptimal
	case gal.LayoutPresent:
		return vk.ImageLayoutPresentSrc
	default:
		return vk.ImageLayoutUndefined
	}
}

func bufferUsage(u gputypes.BufferUsage) vk.BufferUsageFlags {
	var flags vk.BufferUsageFlagBits
	if u&gputypes.BufferUsageCopySrc != 0 {
		flags |= vk.BufferUsageTransferSrcBit
	}
	if u&gputypes.BufferUsageCopyDst != 0 {
		flags |= vk.BufferUsageTransferDstBit
	}
	if u&gputypes.BufferUsageIndex != 0 {
		flags |= vk.BufferUsageIndexBufferBit
	}
	if u&gputypes.BufferUsageVertex != 0 {
		flags |= vk.BufferUsageVertexBufferBit
	}
	if u&gputypes.BufferUsageUniform != 0 {
		flags |= vk.BufferUsageUniformBufferBit
	}
	if flags == 0 {
		// map-only buffers still need a usage bit to be valid
		flags = vk.BufferUsageTransferSrcBit
	}
	return vk.BufferUsageFlags(flags)
}

func imageUsage(u gputypes.TextureUsage, depth bool) vk.ImageUsageFlags {
	var flags vk.ImageUsageFlagBits
	if u&gputypes.TextureUsageCopySrc != 0 {
		flags |= vk.ImageUsageTransferSrcBit
	}
	if u&gputypes.TextureUsageCopyDst != 0 {
		flags |= vk.ImageUsageTransferDstBit
	}
	if u&gputypes.TextureUsageTextureBinding != 0 {
		flags |= vk.ImageUsageSampledBit
	}
	if u&gputypes.TextureUsageRenderAttachment != 0 {
		if depth {
			flags |= vk.ImageUsageDepthStencilAttachmentBit
		} else {
			flags |= vk.ImageUsageColorAttachmentBit
		}
	}
	return vk.ImageUsageFlags(flags)
}

func vertexFormat(f gputypes.VertexFormat) (vk.Format, error) {
	switch f {
	case gputypes.VertexFormatFloat32:
		return vk.FormatR32Sfloat, nil
	case gputypes.VertexFormatFloat32x2:
		return vk.FormatR32g32Sfloat, nil
	case gputypes.VertexFormatFloat32x3:
		return vk.FormatR32g32b32Sfloat, nil
	case gputypes.VertexFormatFloat32x4:
		return vk.FormatR32g32b32a32Sfloat, nil
	default:
		return vk.FormatUndefined, fmt.Errorf("vertex format %v: %w", f, core.ErrUnsupportedFormat)
	}
}

func compareOp(f gputypes.CompareFunction) vk.CompareOp {
	switch f {
	case gputypes.CompareFunctionNever:
		return vk.CompareOpNever
	case gputypes.CompareFunctionLess:
		return vk.CompareOpLess
	case gputypes.CompareFunctionEqual:
		return vk.CompareOpEqual
	case gputypes.CompareFunctionLessEqual:
		return vk.CompareOpLessOrEqual
	case gputypes.CompareFunctionGreater:
		return vk.CompareOpGreater
	case gputypes.CompareFunctionNotEqual:
		return vk.CompareOpNotEqual
	case gputypes.CompareFunctionGreaterEqual:
		return vk.CompareOpGreaterOrEqual
	default:
		return vk.CompareOpAlways
	}
}

func cullMode(m gputypes.CullMode) vk.CullModeFlags {
	switch m {
	case gputypes.CullModeFront:
		return vk.CullModeFlags(vk.CullModeFrontBit)
	case gputypes.CullModeBack:
		return vk.CullModeFlags(vk.CullModeBackBit)
	default:
		return vk.CullModeFlags(vk.CullModeNone)
	}
}

func filter(m gputypes.FilterMode) vk.Filter {
	if m == gputypes.FilterModeLinear {
		return vk.FilterLinear
	}
	return vk.FilterNearest
}

func mipmapMode(m gputypes.FilterMode) vk.SamplerMipmapMode {
	if m == gputypes.FilterModeLinear {
		return vk.SamplerMipmapModeLinear
	}
	return vk.SamplerMipmapModeNearest
}

func addressMode(m gputypes.AddressMode) vk.SamplerAddressMode {
	switch m {
	case gputypes.AddressModeClampToEdge:
		return vk.SamplerAddressModeClampToEdge
	case gputypes.AddressModeMirrorRepeat:
		return vk.SamplerAddressModeMirroredRepeat
	default:
		return vk.SamplerAddressModeRepeat
	}
}

func loadOp(op gputypes.LoadOp) vk.AttachmentLoadOp {
	switch op {
	case gputypes.LoadOpClear:
		return vk.AttachmentLoadOpClear
	case gputypes.LoadOpLoad:
		return vk.AttachmentLoadOpLoad
	default:
		return vk.AttachmentLoadOpDontCare
	}
}

func storeOp(op gputypes.StoreOp) vk.AttachmentStoreOp {
	if op == gputypes.StoreOpStore {
		return vk.AttachmentStoreOpStore
	}
	return vk.AttachmentStoreOpDontCare
}

func indexType(f gal.IndexFormat) vk.IndexType {
	if f == gal.IndexFormatUint16 {
		return vk.IndexTypeUint16
	}
	return vk.IndexTypeUint32
}

func shaderStage(s gal.ShaderStage) vk.ShaderStageFlagBits {
	if s == gal.ShaderStageFragment {
		return vk.ShaderStageFragmentBit
	}
	return vk.ShaderStageVertexBit
}

func shaderStages(list []gal.ShaderStage) vk.ShaderStageFlags {
	if len(list) == 0 {
		return vk.ShaderStageFlags(vk.ShaderStageVertexBit | vk.ShaderStageFragmentBit)
	}
	var flags vk.ShaderStageFlagBits
	for _, s := range list {
		flags |= shaderStage(s)
	}
	return vk.ShaderStageFlags(flags)
}

func descriptorType(t gal.BindingType) vk.DescriptorType {
	switch t {
	case gal.BindingTexture:
		return vk.DescriptorTypeSampledImage
	case gal.BindingSampler:
		return vk.DescriptorTypeSampler
	default:
		return vk.DescriptorTypeUniformBuffer
	}
}
