package soft

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/gal"
)

type commandBufferState int

const (
	stateReady commandBufferState = iota
	stateRecording
	stateInRenderPass
	stateRecordingEnded
	stateSubmitted
)

type CommandKind int

const (
	CmdBeginRenderPass CommandKind = iota
	CmdEndRenderPass
	CmdBindPipeline
	CmdBindBindGroup
	CmdBindVertexBuffers
	CmdBindIndexBuffer
	CmdDrawIndexed
	CmdBarrier
	CmdCopyBuffer
	CmdCopyBufferToTexture
	CmdBlit
	CmdSetViewport
	CmdSetScissor
)

func (k CommandKind) String() string {
	return [...]string{
		"BeginRenderPass", "EndRenderPass", "BindPipeline", "BindBindGroup",
		"BindVertexBuffers", "BindIndexBuffer", "DrawIndexed", "Barrier",
		"CopyBuffer", "CopyBufferToTexture", "Blit",
		"SetViewport", "SetScissor",
	}[k]
}

// Command is one recorded operation. Only the fields relevant to Kind are set.
type Command struct {
	Kind       CommandKind
	RenderPass *gal.RenderPassDescriptor
	Pipeline   gal.GraphicsPipeline
	BindGroup  gal.BindGroup
	GroupIndex uint32
	First      uint32
	Buffers    []gal.Buffer
	Offsets    []uint64
	Barrier    gal.Barrier
	Texture    gal.Texture
	SrcMip     uint32
	DstMip     uint32
	Filter     gputypes.FilterMode
	SrcOffset  uint64
	DstOffset  uint64
	Size       uint64
	IndexCount uint32
	IndexFmt   gal.IndexFormat
	// Viewport is x, y, width, height, min depth, max depth.
	Viewport [6]float32
	Scissor  [4]int64
}

type CommandBuffer struct {
	device   *Device
	state    commandBufferState
	commands []Command
}

func (c *CommandBuffer) Begin() error {
	if c.state != stateReady {
		return fmt.Errorf("begin command buffer in state %d: %w", c.state, core.ErrInvalidParameters)
	}
	c.state = stateRecording
	return nil
}

func (c *CommandBuffer) End() error {
	if c.state != stateRecording {
		return fmt.Errorf("end command buffer in state %d: %w", c.state, core.ErrInvalidParameters)
	}
	c.state = stateRecordingEnded
	return nil
}

func (c *CommandBuffer) Reset() error {
	c.commands = c.commands[:0]
	c.state = stateReady
	return nil
}

// Commands returns what was recorded since the last Reset.
func (c *CommandBuffer) Commands() []Command {
	return c.commands
}

func (c *CommandBuffer) record(cmd Command) {
	if c.state != stateRecording && c.state != stateInRenderPass {
		c.device.report("%s recorded outside Begin/End", cmd.Kind)
		return
	}
	inPass := c.state == stateInRenderPass
	switch cmd.Kind {
	case CmdBarrier, CmdCopyBuffer, CmdCopyBufferToTexture, CmdBlit, CmdBeginRenderPass:
		if inPass {
			c.device.report("%s recorded inside a render pass", cmd.Kind)
		}
	case CmdSetViewport, CmdSetScissor, CmdBindPipeline, CmdBindBindGroup, CmdBindVertexBuffers, CmdBindIndexBuffer, CmdDrawIndexed, CmdEndRenderPass:
		if !inPass {
			c.device.report("%s recorded outside a render pass", cmd.Kind)
		}
	}
	c.commands = append(c.commands, cmd)
}

func (c *CommandBuffer) BeginRenderPass(desc *gal.RenderPassDescriptor) error {
	if desc == nil || len(desc.ColorAttachments) == 0 {
		return fmt.Errorf("begin render pass: no color attachments: %w", core.ErrInvalidParameters)
	}
	d := *desc
	c.record(Command{Kind: CmdBeginRenderPass, RenderPass: &d})
	c.state = stateInRenderPass
	return nil
}

func (c *CommandBuffer) EndRenderPass() {
	c.record(Command{Kind: CmdEndRenderPass})
	c.state = stateRecording
}

func (c *CommandBuffer) SetViewport(x, y, width, height, minDepth, maxDepth float32) {
	c.record(Command{Kind: CmdSetViewport, Viewport: [6]float32{x, y, width, height, minDepth, maxDepth}})
}

func (c *CommandBuffer) SetScissor(x, y int32, width, height uint32) {
	c.record(Command{Kind: CmdSetScissor, Scissor: [4]int64{int64(x), int64(y), int64(width), int64(height)}})
}

func (c *CommandBuffer) BindPipeline(pipeline gal.GraphicsPipeline) {
	c.record(Command{Kind: CmdBindPipeline, Pipeline: pipeline})
}

func (c *CommandBuffer) BindBindGroup(index uint32, group gal.BindGroup) {
	c.record(Command{Kind: CmdBindBindGroup, GroupIndex: index, BindGroup: group})
}

func (c *CommandBuffer) BindVertexBuffers(first uint32, buffers []gal.Buffer, offsets []uint64) {
	c.record(Command{Kind: CmdBindVertexBuffers, First: first, Buffers: append([]gal.Buffer(nil), buffers...), Offsets: append([]uint64(nil), offsets...)})
}

func (c *CommandBuffer) BindIndexBuffer(buffer gal.Buffer, offset uint64, format gal.IndexFormat) {
	c.record(Command{Kind: CmdBindIndexBuffer, Buffers: []gal.Buffer{buffer}, SrcOffset: offset, IndexFmt: format})
}

func (c *CommandBuffer) DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32) {
	c.record(Command{Kind: CmdDrawIndexed, IndexCount: indexCount})
}

func (c *CommandBuffer) PipelineBarrier(barriers ...gal.Barrier) {
	for _, b := range barriers {
		c.record(Command{Kind: CmdBarrier, Barrier: b})
	}
}

func (c *CommandBuffer) CopyBuffer(src, dst gal.Buffer, srcOffset, dstOffset, size uint64) {
	c.record(Command{Kind: CmdCopyBuffer, Buffers: []gal.Buffer{src, dst}, SrcOffset: srcOffset, DstOffset: dstOffset, Size: size})
}

func (c *CommandBuffer) CopyBufferToTexture(src gal.Buffer, srcOffset uint64, dst gal.Texture, mip uint32) {
	c.record(Command{Kind: CmdCopyBufferToTexture, Buffers: []gal.Buffer{src}, SrcOffset: srcOffset, Texture: dst, DstMip: mip})
}

func (c *CommandBuffer) BlitTexture(texture gal.Texture, srcMip, dstMip uint32, filter gputypes.FilterMode) {
	c.record(Command{Kind: CmdBlit, Texture: texture, SrcMip: srcMip, DstMip: dstMip, Filter: filter})
}

// execution state shared across the command buffers of one submission
type executor struct {
	device   *Device
	pipeline gal.GraphicsPipeline
	groups   map[uint32]gal.BindGroup
	vertices []gal.Buffer
	index    gal.Buffer
	inPass   bool
	attached map[gal.Texture]bool
}

func (e *executor) run(cmd Command) {
	d := e.device
	switch cmd.Kind {
	case CmdBeginRenderPass:
		e.inPass = true
		e.attached = map[gal.Texture]bool{}
		attach := func(a gal.RenderPassAttachment) {
			t := asTexture(a.Texture)
			if t == nil || t.destroyed {
				d.report("render pass '%s' attaches a missing or destroyed texture", cmd.RenderPass.Label)
				return
			}
			for i := range t.layouts {
				t.layouts[i] = a.Layout
			}
			e.attached[a.Texture] = true
		}
		for _, a := range cmd.RenderPass.ColorAttachments {
			attach(a)
		}
		if cmd.RenderPass.DepthAttachment != nil {
			attach(*cmd.RenderPass.DepthAttachment)
		}
	case CmdEndRenderPass:
		e.inPass = false
		e.pipeline = nil
		e.groups = map[uint32]gal.BindGroup{}
	case CmdBindPipeline:
		e.pipeline = cmd.Pipeline
		if p, ok := cmd.Pipeline.(*GraphicsPipeline); !ok || p.destroyed {
			d.report("bind of a missing or destroyed pipeline")
		}
	case CmdBindBindGroup:
		e.groups[cmd.GroupIndex] = cmd.BindGroup
	case CmdBindVertexBuffers:
		e.vertices = cmd.Buffers
	case CmdBindIndexBuffer:
		e.index = cmd.Buffers[0]
	case CmdDrawIndexed:
		e.draw(cmd)
	case CmdBarrier:
		e.barrier(cmd.Barrier)
	case CmdCopyBuffer:
		src, dst := asBuffer(cmd.Buffers[0]), asBuffer(cmd.Buffers[1])
		if src == nil || dst == nil || src.destroyed || dst.destroyed {
			d.report("copy between missing or destroyed buffers")
			return
		}
		if cmd.SrcOffset+cmd.Size > uint64(len(src.data)) || cmd.DstOffset+cmd.Size > uint64(len(dst.data)) {
			d.report("copy of %d bytes out of range ('%s' -> '%s')", cmd.Size, src.label, dst.label)
			return
		}
		copy(dst.data[cmd.DstOffset:cmd.DstOffset+cmd.Size], src.data[cmd.SrcOffset:cmd.SrcOffset+cmd.Size])
	case CmdCopyBufferToTexture:
		src, t := asBuffer(cmd.Buffers[0]), asTexture(cmd.Texture)
		if src == nil || t == nil || src.destroyed || t.destroyed {
			d.report("buffer to texture copy with a missing or destroyed resource")
			return
		}
		if t.layouts[cmd.DstMip] != gal.LayoutCopyDst {
			d.report("copy into '%s' mip %d in layout %s, want CopyDst", t.label, cmd.DstMip, t.layouts[cmd.DstMip])
		}
		dst := t.mips[cmd.DstMip]
		if cmd.SrcOffset+uint64(len(dst)) > uint64(len(src.data)) {
			d.report("copy into '%s' mip %d reads past the end of '%s'", t.label, cmd.DstMip, src.label)
			return
		}
		copy(dst, src.data[cmd.SrcOffset:])
	case CmdBlit:
		t := asTexture(cmd.Texture)
		if t == nil || t.destroyed {
			d.report("blit on a missing or destroyed texture")
			return
		}
		if t.layouts[cmd.SrcMip] != gal.LayoutCopySrc {
			d.report("blit source '%s' mip %d in layout %s, want CopySrc", t.label, cmd.SrcMip, t.layouts[cmd.SrcMip])
		}
		if t.layouts[cmd.DstMip] != gal.LayoutCopyDst {
			d.report("blit destination '%s' mip %d in layout %s, want CopyDst", t.label, cmd.DstMip, t.layouts[cmd.DstMip])
		}
		if !t.downsample(cmd.SrcMip, cmd.DstMip, cmd.Filter) {
			d.report("blit on '%s' with unsupported format %v", t.label, t.format)
			return
		}
		d.count(func(s *Stats) { s.Blits++ })
	}
}

func (e *executor) barrier(b gal.Barrier) {
	d := e.device
	if b.Buffer != nil {
		return
	}
	t := asTexture(b.Texture)
	if t == nil || t.destroyed {
		d.report("barrier %s -> %s on a missing or destroyed texture", b.OldLayout, b.NewLayout)
		return
	}
	rng := b.Range.Resolve(uint32(len(t.mips)), 1)
	if rng.BaseMip+rng.MipCount > uint32(len(t.mips)) {
		d.report("barrier on '%s' covers %s but texture has %d mips", t.label, rng, len(t.mips))
		return
	}
	for level := rng.BaseMip; level < rng.BaseMip+rng.MipCount; level++ {
		// Undefined as the old layout discards contents and matches anything.
		if b.OldLayout != gal.LayoutUndefined && t.layouts[level] != b.OldLayout {
			d.report("barrier on '%s' mip %d expects %s but texture is in %s", t.label, level, b.OldLayout, t.layouts[level])
		}
		t.layouts[level] = b.NewLayout
	}
}

func (e *executor) draw(cmd Command) {
	d := e.device
	d.count(func(s *Stats) { s.Draws++ })
	if e.pipeline == nil {
		d.report("draw without a bound pipeline")
	}
	if e.index == nil {
		d.report("indexed draw without an index buffer")
	} else if b := asBuffer(e.index); b == nil || b.destroyed {
		d.report("indexed draw with a destroyed index buffer")
	}
	for _, v := range e.vertices {
		if b := asBuffer(v); b == nil || b.destroyed {
			d.report("draw with a destroyed vertex buffer")
		}
	}
	for _, g := range e.groups {
		group, ok := g.(*BindGroup)
		if !ok {
			continue
		}
		for binding, entry := range group.bound {
			if entry.Texture != nil {
				t := asTexture(entry.Texture)
				if t == nil || t.destroyed {
					d.report("draw samples a destroyed texture at binding %d", binding)
					continue
				}
				if e.attached[entry.Texture] {
					d.report("draw samples '%s' while it is a render pass attachment", t.label)
				}
				for level, l := range t.layouts {
					if l != gal.LayoutShaderReadOnly && l != gal.LayoutDepthReadOnly {
						d.report("draw samples '%s' mip %d in layout %s", t.label, level, l)
						break
					}
				}
			}
			if entry.Buffer != nil {
				if b := asBuffer(entry.Buffer); b == nil || b.destroyed {
					d.report("draw reads a destroyed buffer at binding %d", binding)
				}
			}
		}
	}
}

func asBuffer(b gal.Buffer) *Buffer {
	sb, _ := b.(*Buffer)
	return sb
}

func asTexture(t gal.Texture) *Texture {
	st, _ := t.(*Texture)
	return st
}
