package gal

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/spaghettifunk/lumen/engine/core"
)

// Layout is the memory arrangement a texture region is in.
type Layout uint8

const (
	LayoutUndefined Layout = iota
	LayoutCopySrc
	LayoutCopyDst
	LayoutColorAttachment
	LayoutDepthStencilAttachment
	LayoutShaderReadOnly
	LayoutDepthReadOnly
	LayoutPresent

	layoutCount
)

// Layouts lists every declared layout in enum order.
func Layouts() []Layout {
	out := make([]Layout, 0, layoutCount)
	for l := LayoutUndefined; l < layoutCount; l++ {
		out = append(out, l)
	}
	return out
}

func (l Layout) String() string {
	switch l {
	case LayoutUndefined:
		return "Undefined"
	case LayoutCopySrc:
		return "CopySrc"
	case LayoutCopyDst:
		return "CopyDst"
	case LayoutColorAttachment:
		return "ColorAttachment"
	case LayoutDepthStencilAttachment:
		return "DepthStencilAttachment"
	case LayoutShaderReadOnly:
		return "ShaderReadOnly"
	case LayoutDepthReadOnly:
		return "DepthReadOnly"
	case LayoutPresent:
		return "Present"
	default:
		return fmt.Sprintf("Layout(%d)", uint8(l))
	}
}

type ResourceKind uint8

const (
	ResourceKindColor ResourceKind = iota
	ResourceKindDepth
	ResourceKindBuffer
)

func (k ResourceKind) String() string {
	switch k {
	case ResourceKindColor:
		return "color"
	case ResourceKindDepth:
		return "depth"
	case ResourceKindBuffer:
		return "buffer"
	default:
		return fmt.Sprintf("ResourceKind(%d)", uint8(k))
	}
}

// SubresourceRange selects mip levels and array layers of a texture.
// A zero count means "all remaining".
type SubresourceRange struct {
	BaseMip    uint32
	MipCount   uint32
	BaseLayer  uint32
	LayerCount uint32
}

// MipRange returns the range [base, base+count) on layer 0.
func MipRange(base, count uint32) SubresourceRange {
	return SubresourceRange{BaseMip: base, MipCount: count, LayerCount: 1}
}

// Resolve replaces zero counts with the remainder of the resource.
func (r SubresourceRange) Resolve(mipCount, layerCount uint32) SubresourceRange {
	if r.MipCount == 0 && r.BaseMip < mipCount {
		r.MipCount = mipCount - r.BaseMip
	}
	if r.LayerCount == 0 && r.BaseLayer < layerCount {
		r.LayerCount = layerCount - r.BaseLayer
	}
	return r
}

func (r SubresourceRange) String() string {
	return fmt.Sprintf("mips[%d,%d) layers[%d,%d)", r.BaseMip, r.BaseMip+r.MipCount, r.BaseLayer, r.BaseLayer+r.LayerCount)
}

// AccessFlags and PipelineStage bit values match their Vulkan counterparts.
type AccessFlags uint32

const (
	AccessNone                        AccessFlags = 0
	AccessIndexRead                   AccessFlags = 0x00000002
	AccessVertexAttributeRead         AccessFlags = 0x00000004
	AccessUniformRead                 AccessFlags = 0x00000008
	AccessShaderRead                  AccessFlags = 0x00000020
	AccessColorAttachmentRead         AccessFlags = 0x00000080
	AccessColorAttachmentWrite        AccessFlags = 0x00000100
	AccessDepthStencilAttachmentRead  AccessFlags = 0x00000200
	AccessDepthStencilAttachmentWrite AccessFlags = 0x00000400
	AccessTransferRead                AccessFlags = 0x00000800
	AccessTransferWrite               AccessFlags = 0x00001000
	AccessHostWrite                   AccessFlags = 0x00004000
	AccessMemoryRead                  AccessFlags = 0x00008000
)

type PipelineStage uint32

const (
	StageTopOfPipe             PipelineStage = 0x00000001
	StageVertexInput           PipelineStage = 0x00000004
	StageVertexShader          PipelineStage = 0x00000008
	StageFragmentShader        PipelineStage = 0x00000080
	StageEarlyFragmentTests    PipelineStage = 0x00000100
	StageLateFragmentTests     PipelineStage = 0x00000200
	StageColorAttachmentOutput PipelineStage = 0x00000400
	StageTransfer              PipelineStage = 0x00001000
	StageBottomOfPipe          PipelineStage = 0x00002000
	StageHost                  PipelineStage = 0x00004000
)

type ShaderStage uint8

const (
	ShaderStageVertex ShaderStage = iota
	ShaderStageFragment
)

func (s ShaderStage) String() string {
	switch s {
	case ShaderStageVertex:
		return "vertex"
	case ShaderStageFragment:
		return "fragment"
	default:
		return fmt.Sprintf("ShaderStage(%d)", uint8(s))
	}
}

// ShaderLanguage is the source language a shader compiler accepts.
type ShaderLanguage uint8

const (
	ShaderLanguageWGSL ShaderLanguage = iota
	ShaderLanguageGLSL
)

func (l ShaderLanguage) String() string {
	if l == ShaderLanguageGLSL {
		return "glsl"
	}
	return "wgsl"
}

type IndexFormat uint8

const (
	IndexFormatUint16 IndexFormat = iota
	IndexFormatUint32
)

func (f IndexFormat) Size() int {
	if f == IndexFormatUint16 {
		return 2
	}
	return 4
}

type BindingType uint8

const (
	BindingUniformBuffer BindingType = iota
	BindingTexture
	BindingSampler
)

// IsDepthFormat reports whether a texture format carries depth.
func IsDepthFormat(f gputypes.TextureFormat) bool {
	return f == gputypes.TextureFormatDepth24PlusStencil8
}

// BytesPerPixel of the uncompressed formats the engine creates.
func BytesPerPixel(f gputypes.TextureFormat) (int, error) {
	switch f {
	case gputypes.TextureFormatR8Unorm:
		return 1, nil
	case gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatBGRA8Unorm,
		gputypes.TextureFormatDepth24PlusStencil8:
		return 4, nil
	default:
		return 0, fmt.Errorf("bytes per pixel of format %v: %w", f, core.ErrUnsupportedFormat)
	}
}

// MipExtent is the size of a mip level, never below one texel.
func MipExtent(size, level uint32) uint32 {
	s := size >> level
	if s == 0 {
		return 1
	}
	return s
}
