package gal

import (
	"github.com/gogpu/gputypes"
)

type BufferDescriptor struct {
	Label string
	Size  int
	Usage gputypes.BufferUsage
}

type TextureDescriptor struct {
	Label    string
	Width    uint32
	Height   uint32
	MipCount uint32
	Format   gputypes.TextureFormat
	Usage    gputypes.TextureUsage
}

func (d *TextureDescriptor) Extent() gputypes.Extent3D {
	return gputypes.Extent3D{Width: d.Width, Height: d.Height, DepthOrArrayLayers: 1}
}

type SamplerDescriptor struct {
	MagFilter    gputypes.FilterMode
	MinFilter    gputypes.FilterMode
	MipmapFilter gputypes.FilterMode
	AddressModeU gputypes.AddressMode
	AddressModeV gputypes.AddressMode
	AddressModeW gputypes.AddressMode
	LodMaxClamp  float32
	// MaxAnisotropy of 1 disables anisotropic filtering.
	MaxAnisotropy uint16
}

type ShaderModuleDescriptor struct {
	Label      string
	Stage      ShaderStage
	EntryPoint string
	// Code is SPIR-V bytecode.
	Code []byte
}

type BindGroupLayoutEntry struct {
	Binding    uint32
	Type       BindingType
	Visibility []ShaderStage
}

type BindGroupLayoutDescriptor struct {
	Label   string
	Entries []BindGroupLayoutEntry
}

// BindGroupEntry binds a uniform buffer range, a texture or a sampler to a
// binding slot.
type BindGroupEntry struct {
	Binding uint32
	Buffer  Buffer
	Offset  int
	// Size of zero binds the remainder of the buffer.
	Size    int
	Texture Texture
	Sampler Sampler
}

type PipelineLayoutDescriptor struct {
	Label            string
	BindGroupLayouts []BindGroupLayout
}

type VertexAttribute struct {
	Location uint32
	Format   gputypes.VertexFormat
	Offset   uint32
}

type VertexBufferLayout struct {
	Stride     uint32
	Attributes []VertexAttribute
}

type DepthStencilState struct {
	Format       gputypes.TextureFormat
	DepthWrite   bool
	DepthCompare gputypes.CompareFunction
}

type GraphicsPipelineDescriptor struct {
	Label         string
	Layout        PipelineLayout
	Vertex        ShaderModule
	Fragment      ShaderModule
	VertexBuffers []VertexBufferLayout
	ColorFormats  []gputypes.TextureFormat
	DepthStencil  *DepthStencilState
	CullMode      gputypes.CullMode
	BlendEnabled  bool
}

// RenderPassAttachment describes one target of a render pass. The
// attachment is in Layout for the duration of the pass and stays there
// afterwards; moving it elsewhere is the caller's job.
type RenderPassAttachment struct {
	Texture    Texture
	Layout     Layout
	LoadOp     gputypes.LoadOp
	StoreOp    gputypes.StoreOp
	ClearColor gputypes.Color
	ClearDepth float32
}

type RenderPassDescriptor struct {
	Label            string
	ColorAttachments []RenderPassAttachment
	DepthAttachment  *RenderPassAttachment
}
