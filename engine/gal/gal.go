// Package gal is the graphics abstraction layer: one interface per device
// resource kind plus the RenderDevice factory a backend implements. Caches
// and the renderer only ever see these interfaces.
package gal

import (
	"time"

	"github.com/gogpu/gputypes"
)

// Buffer is a linear block of device memory. Backends expose host-visible
// memory through Map; Update is the map/copy/flush shortcut.
type Buffer interface {
	// Map returns the host view of the whole buffer. Mapping an already
	// mapped buffer returns the same view.
	Map() ([]byte, error)
	Unmap()
	// Update copies data at offset and flushes the written range.
	Update(offset int, data []byte) error
	// Flush makes host writes in [offset, offset+size) visible to the device.
	Flush(offset, size int) error
	Size() int
	Usage() gputypes.BufferUsage
	Label() string
	Destroy()
}

type Texture interface {
	// Layout reports the layout the backend last recorded for a mip level.
	Layout(level uint32) Layout
	Format() gputypes.TextureFormat
	Width() uint32
	Height() uint32
	MipCount() uint32
	Usage() gputypes.TextureUsage
	Label() string
	Destroy()
}

type Sampler interface {
	Destroy()
}

type ShaderModule interface {
	Stage() ShaderStage
	EntryPoint() string
	Destroy()
}

type BindGroupLayout interface {
	Entries() []BindGroupLayoutEntry
	Destroy()
}

// BindGroup is a descriptor set. Write replaces the listed bindings only;
// bindings not mentioned keep whatever they were last written with.
type BindGroup interface {
	Layout() BindGroupLayout
	Write(entries ...BindGroupEntry) error
	Destroy()
}

type PipelineLayout interface {
	Destroy()
}

type GraphicsPipeline interface {
	Layout() PipelineLayout
	Destroy()
}

// CommandBuffer records GPU work. Recording is single threaded; commands
// execute in recording order when the buffer is submitted.
type CommandBuffer interface {
	Begin() error
	End() error
	// Reset drops recorded commands so the buffer can be recorded again.
	Reset() error

	BeginRenderPass(desc *RenderPassDescriptor) error
	EndRenderPass()
	// SetViewport and SetScissor are dynamic state, so pipelines survive a
	// render target resize.
	SetViewport(x, y, width, height, minDepth, maxDepth float32)
	SetScissor(x, y int32, width, height uint32)
	BindPipeline(pipeline GraphicsPipeline)
	BindBindGroup(index uint32, group BindGroup)
	BindVertexBuffers(first uint32, buffers []Buffer, offsets []uint64)
	BindIndexBuffer(buffer Buffer, offset uint64, format IndexFormat)
	DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32)

	PipelineBarrier(barriers ...Barrier)
	CopyBuffer(src, dst Buffer, srcOffset, dstOffset, size uint64)
	// CopyBufferToTexture copies tightly packed texels into one mip level.
	CopyBufferToTexture(src Buffer, srcOffset uint64, dst Texture, mip uint32)
	// BlitTexture scales mip srcMip into dstMip of the same texture.
	BlitTexture(texture Texture, srcMip, dstMip uint32, filter gputypes.FilterMode)
}

// WaitForever disables the timeout of Fence.Wait.
const WaitForever time.Duration = -1

type Fence interface {
	Wait(timeout time.Duration) error
	Reset() error
	Signaled() bool
	Destroy()
}

type Queue interface {
	// Submit executes command buffers in order and signals fence (if any)
	// once all of them completed.
	Submit(fence Fence, buffers ...CommandBuffer) error
}

// RenderDevice creates every resource kind. It is the only entry point a
// backend has to implement.
type RenderDevice interface {
	Name() string

	CreateBuffer(desc *BufferDescriptor) (Buffer, error)
	CreateTexture(desc *TextureDescriptor) (Texture, error)
	CreateSampler(desc *SamplerDescriptor) (Sampler, error)
	CreateShaderModule(desc *ShaderModuleDescriptor) (ShaderModule, error)
	CreateBindGroupLayout(desc *BindGroupLayoutDescriptor) (BindGroupLayout, error)
	CreateBindGroup(layout BindGroupLayout) (BindGroup, error)
	CreatePipelineLayout(desc *PipelineLayoutDescriptor) (PipelineLayout, error)
	CreateGraphicsPipeline(desc *GraphicsPipelineDescriptor) (GraphicsPipeline, error)
	CreateCommandBuffer() (CommandBuffer, error)
	CreateFence(signaled bool) (Fence, error)

	Queue() Queue
	WaitIdle() error
	Destroy()
}
