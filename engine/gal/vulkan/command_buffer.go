package vulkan

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	vk "github.com/goki/vulkan"
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

// CommandBuffer records straight into a primary VkCommandBuffer. Calls
// without an error result remember the first misuse and End reports it.
type CommandBuffer struct {
	device *Device
	handle vk.CommandBuffer
	state  commandBufferState
	err    error

	pipeline *GraphicsPipeline
	// groups bound before any pipeline wait for its layout
	pending map[uint32]*BindGroup
}

func (d *Device) CreateCommandBuffer() (gal.CommandBuffer, error) {
	info := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        d.commandPool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}
	handles := make([]vk.CommandBuffer, 1)
	if err := check("vkAllocateCommandBuffers", vk.AllocateCommandBuffers(d.handle, &info, handles)); err != nil {
		return nil, err
	}
	return &CommandBuffer{device: d, handle: handles[0], state: stateReady, pending: map[uint32]*BindGroup{}}, nil
}

func (c *CommandBuffer) fail(format string, args ...interface{}) {
	err := fmt.Errorf(format, args...)
	core.LogWarn("command buffer: %s", err)
	if c.err == nil {
		c.err = err
	}
}

func (c *CommandBuffer) expect(op string, states ...commandBufferState) bool {
	for _, s := range states {
		if c.state == s {
			return true
		}
	}
	c.fail("%s recorded in state %d: %w", op, c.state, core.ErrInvalidParameters)
	return false
}

func (c *CommandBuffer) Begin() error {
	if c.state == stateRecording || c.state == stateInRenderPass {
		return fmt.Errorf("begin command buffer: already recording: %w", core.ErrInvalidParameters)
	}
	info := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if err := check("vkBeginCommandBuffer", vk.BeginCommandBuffer(c.handle, &info)); err != nil {
		return err
	}
	c.state = stateRecording
	c.err = nil
	c.pipeline = nil
	clear(c.pending)
	return nil
}

func (c *CommandBuffer) End() error {
	if c.state != stateRecording {
		return fmt.Errorf("end command buffer in state %d: %w", c.state, core.ErrInvalidParameters)
	}
	if err := check("vkEndCommandBuffer", vk.EndCommandBuffer(c.handle)); err != nil {
		return err
	}
	c.state = stateRecordingEnded
	if c.err != nil {
		return errors.Join(errors.New("command buffer recorded with errors"), c.err)
	}
	return nil
}

func (c *CommandBuffer) Reset() error {
	if err := check("vkResetCommandBuffer", vk.ResetCommandBuffer(c.handle, 0)); err != nil {
		return err
	}
	c.state = stateReady
	c.err = nil
	c.pipeline = nil
	clear(c.pending)
	return nil
}

func (c *CommandBuffer) BeginRenderPass(desc *gal.RenderPassDescriptor) error {
	if desc == nil || len(desc.ColorAttachments) == 0 {
		return fmt.Errorf("begin render pass: no color attachments: %w", core.ErrInvalidParameters)
	}
	if c.state != stateRecording {
		return fmt.Errorf("begin render pass '%s' in state %d: %w", desc.Label, c.state, core.ErrInvalidParameters)
	}
	if err := c.device.passes.begin(c.handle, desc); err != nil {
		return err
	}
	c.state = stateInRenderPass
	return nil
}

func (c *CommandBuffer) EndRenderPass() {
	if !c.expect("EndRenderPass", stateInRenderPass) {
		return
	}
	vk.CmdEndRenderPass(c.handle)
	c.state = stateRecording
}

func (c *CommandBuffer) SetViewport(x, y, width, height, minDepth, maxDepth float32) {
	if !c.expect("SetViewport", stateInRenderPass) {
		return
	}
	vk.CmdSetViewport(c.handle, 0, 1, []vk.Viewport{{
		X:        x,
		Y:        y,
		Width:    width,
		Height:   height,
		MinDepth: minDepth,
		MaxDepth: maxDepth,
	}})
}

func (c *CommandBuffer) SetScissor(x, y int32, width, height uint32) {
	if !c.expect("SetScissor", stateInRenderPass) {
		return
	}
	vk.CmdSetScissor(c.handle, 0, 1, []vk.Rect2D{{
		Offset: vk.Offset2D{X: x, Y: y},
		Extent: vk.Extent2D{Width: width, Height: height},
	}})
}

func (c *CommandBuffer) BindPipeline(pipeline gal.GraphicsPipeline) {
	if !c.expect("BindPipeline", stateInRenderPass) {
		return
	}
	p, ok := pipeline.(*GraphicsPipeline)
	if !ok || p == nil {
		c.fail("bind pipeline %T: %w", pipeline, core.ErrInvalidHandle)
		return
	}
	vk.CmdBindPipeline(c.handle, vk.PipelineBindPointGraphics, p.handle)
	c.pipeline = p
	for index, g := range c.pending {
		c.bindSet(index, g)
	}
	clear(c.pending)
}

func (c *CommandBuffer) BindBindGroup(index uint32, group gal.BindGroup) {
	if !c.expect("BindBindGroup", stateInRenderPass) {
		return
	}
	g, ok := group.(*BindGroup)
	if !ok || g == nil {
		c.fail("bind group %T at %d: %w", group, index, core.ErrInvalidHandle)
		return
	}
	if c.pipeline == nil {
		c.pending[index] = g
		return
	}
	c.bindSet(index, g)
}

func (c *CommandBuffer) bindSet(index uint32, g *BindGroup) {
	if int(index) >= c.pipeline.layout.groups {
		c.fail("bind group %d: pipeline '%s' declares %d group(s): %w",
			index, c.pipeline.label, c.pipeline.layout.groups, core.ErrInvalidParameters)
		return
	}
	vk.CmdBindDescriptorSets(c.handle, vk.PipelineBindPointGraphics, c.pipeline.layout.handle,
		index, 1, []vk.DescriptorSet{g.set}, 0, nil)
}

func (c *CommandBuffer) BindVertexBuffers(first uint32, buffers []gal.Buffer, offsets []uint64) {
	if !c.expect("BindVertexBuffers", stateInRenderPass) {
		return
	}
	if len(offsets) != len(buffers) {
		c.fail("bind %d vertex buffers with %d offsets: %w", len(buffers), len(offsets), core.ErrInvalidParameters)
		return
	}
	handles := make([]vk.Buffer, len(buffers))
	sizes := make([]vk.DeviceSize, len(buffers))
	for i, b := range buffers {
		handles[i] = asBuffer(b).handle
		sizes[i] = vk.DeviceSize(offsets[i])
	}
	vk.CmdBindVertexBuffers(c.handle, first, uint32(len(handles)), handles, sizes)
}

func (c *CommandBuffer) BindIndexBuffer(buffer gal.Buffer, offset uint64, format gal.IndexFormat) {
	if !c.expect("BindIndexBuffer", stateInRenderPass) {
		return
	}
	vk.CmdBindIndexBuffer(c.handle, asBuffer(buffer).handle, vk.DeviceSize(offset), indexType(format))
}

func (c *CommandBuffer) DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32) {
	if !c.expect("DrawIndexed", stateInRenderPass) {
		return
	}
	if c.pipeline == nil {
		c.fail("draw without a bound pipeline: %w", core.ErrInvalidParameters)
		return
	}
	vk.CmdDrawIndexed(c.handle, indexCount, instanceCount, firstIndex, baseVertex, firstInstance)
}

// PipelineBarrier records one vkCmdPipelineBarrier per barrier, since each
// carries its own stage masks, and updates the tracked texture layouts.
func (c *CommandBuffer) PipelineBarrier(barriers ...gal.Barrier) {
	if !c.expect("PipelineBarrier", stateRecording) {
		return
	}
	for _, b := range barriers {
		src := vk.PipelineStageFlags(b.SrcStage)
		dst := vk.PipelineStageFlags(b.DstStage)
		if src == 0 {
			src = vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
		}
		if dst == 0 {
			dst = vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit)
		}
		switch {
		case b.Texture != nil:
			t := asTexture(b.Texture)
			r := b.Range.Resolve(t.MipCount(), 1)
			vk.CmdPipelineBarrier(c.handle, src, dst, 0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{{
				SType:               vk.StructureTypeImageMemoryBarrier,
				SrcAccessMask:       vk.AccessFlags(b.SrcAccess),
				DstAccessMask:       vk.AccessFlags(b.DstAccess),
				OldLayout:           imageLayout(b.OldLayout),
				NewLayout:           imageLayout(b.NewLayout),
				SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
				DstQueueFamilyIndex: vk.QueueFamilyIgnored,
				Image:               t.image,
				SubresourceRange: vk.ImageSubresourceRange{
					AspectMask:     aspectMask(t.vkFormat, false),
					BaseMipLevel:   r.BaseMip,
					LevelCount:     r.MipCount,
					BaseArrayLayer: r.BaseLayer,
					LayerCount:     r.LayerCount,
				},
			}})
			t.setLayout(r, b.NewLayout)
		case b.Buffer != nil:
			vk.CmdPipelineBarrier(c.handle, src, dst, 0, 0, nil, 1, []vk.BufferMemoryBarrier{{
				SType:               vk.StructureTypeBufferMemoryBarrier,
				SrcAccessMask:       vk.AccessFlags(b.SrcAccess),
				DstAccessMask:       vk.AccessFlags(b.DstAccess),
				SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
				DstQueueFamilyIndex: vk.QueueFamilyIgnored,
				Buffer:              asBuffer(b.Buffer).handle,
				Offset:              0,
				Size:                vk.DeviceSize(vk.WholeSize),
			}}, 0, nil)
		default:
			c.fail("barrier %s -> %s names no resource: %w", b.OldLayout, b.NewLayout, core.ErrInvalidParameters)
		}
	}
}

func (c *CommandBuffer) CopyBuffer(src, dst gal.Buffer, srcOffset, dstOffset, size uint64) {
	if !c.expect("CopyBuffer", stateRecording) {
		return
	}
	if srcOffset+size > uint64(src.Size()) || dstOffset+size > uint64(dst.Size()) {
		c.fail("copy %d bytes from '%s'@%d to '%s'@%d: %w",
			size, src.Label(), srcOffset, dst.Label(), dstOffset, core.ErrInvalidParameters)
		return
	}
	vk.CmdCopyBuffer(c.handle, asBuffer(src).handle, asBuffer(dst).handle, 1, []vk.BufferCopy{{
		SrcOffset: vk.DeviceSize(srcOffset),
		DstOffset: vk.DeviceSize(dstOffset),
		Size:      vk.DeviceSize(size),
	}})
}

func (c *CommandBuffer) CopyBufferToTexture(src gal.Buffer, srcOffset uint64, dst gal.Texture, mip uint32) {
	if !c.expect("CopyBufferToTexture", stateRecording) {
		return
	}
	t := asTexture(dst)
	if mip >= t.MipCount() {
		c.fail("copy into mip %d of '%s' with %d mips: %w", mip, t.label, t.MipCount(), core.ErrInvalidParameters)
		return
	}
	if t.layouts[mip] != gal.LayoutCopyDst {
		c.fail("copy into mip %d of '%s' in layout %s: %w", mip, t.label, t.layouts[mip], core.ErrInvalidTransition)
		return
	}
	vk.CmdCopyBufferToImage(c.handle, asBuffer(src).handle, t.image, vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{{
		BufferOffset: vk.DeviceSize(srcOffset),
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask:     aspectMask(t.vkFormat, true),
			MipLevel:       mip,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
		ImageExtent: vk.Extent3D{
			Width:  gal.MipExtent(t.width, mip),
			Height: gal.MipExtent(t.height, mip),
			Depth:  1,
		},
	}})
}

func (c *CommandBuffer) BlitTexture(texture gal.Texture, srcMip, dstMip uint32, f gputypes.FilterMode) {
	if !c.expect("BlitTexture", stateRecording) {
		return
	}
	t := asTexture(texture)
	if srcMip >= t.MipCount() || dstMip >= t.MipCount() {
		c.fail("blit mip %d -> %d of '%s' with %d mips: %w", srcMip, dstMip, t.label, t.MipCount(), core.ErrInvalidParameters)
		return
	}
	if t.layouts[srcMip] != gal.LayoutCopySrc || t.layouts[dstMip] != gal.LayoutCopyDst {
		c.fail("blit '%s' mip %d (%s) -> %d (%s): %w",
			t.label, srcMip, t.layouts[srcMip], dstMip, t.layouts[dstMip], core.ErrInvalidTransition)
		return
	}
	aspect := aspectMask(t.vkFormat, false)
	vk.CmdBlitImage(c.handle,
		t.image, vk.ImageLayoutTransferSrcOptimal,
		t.image, vk.ImageLayoutTransferDstOptimal,
		1, []vk.ImageBlit{{
			SrcSubresource: vk.ImageSubresourceLayers{AspectMask: aspect, MipLevel: srcMip, LayerCount: 1},
			SrcOffsets: [2]vk.Offset3D{
				{X: 0, Y: 0, Z: 0},
				{X: int32(gal.MipExtent(t.width, srcMip)), Y: int32(gal.MipExtent(t.height, srcMip)), Z: 1},
			},
			DstSubresource: vk.ImageSubresourceLayers{AspectMask: aspect, MipLevel: dstMip, LayerCount: 1},
			DstOffsets: [2]vk.Offset3D{
				{X: 0, Y: 0, Z: 0},
				{X: int32(gal.MipExtent(t.width, dstMip)), Y: int32(gal.MipExtent(t.height, dstMip)), Z: 1},
			},
		}},
		filter(f))
}
