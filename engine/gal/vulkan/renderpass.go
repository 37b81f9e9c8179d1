package vulkan

import (
	"fmt"
	"strings"

	"github.com/gogpu/gputypes"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/gal"
)

type framebuffer struct {
	handle   vk.Framebuffer
	textures []*Texture
}

// passCache owns every VkRenderPass and VkFramebuffer. Passes are keyed by
// attachment formats, ops and layouts; framebuffers by pass and views and
// die with the first of their textures.
type passCache struct {
	device       *Device
	passes       map[string]vk.RenderPass
	framebuffers map[string]*framebuffer
}

func newPassCache(d *Device) *passCache {
	return &passCache{
		device:       d,
		passes:       make(map[string]vk.RenderPass),
		framebuffers: make(map[string]*framebuffer),
	}
}

type attachmentSpec struct {
	format  vk.Format
	layout  gal.Layout
	loadOp  gputypes.LoadOp
	storeOp gputypes.StoreOp
}

func (a attachmentSpec) key() string {
	return fmt.Sprintf("%d/%d/%d/%d", a.format, a.layout, a.loadOp, a.storeOp)
}

func specOf(a *gal.RenderPassAttachment) attachmentSpec {
	t := asTexture(a.Texture)
	return attachmentSpec{format: t.vkFormat, layout: a.Layout, loadOp: a.LoadOp, storeOp: a.StoreOp}
}

// compatibleSpecs describes a pass usable for pipeline creation. Vulkan
// pass compatibility only looks at formats and sample counts.
func compatibleSpecs(colors []vk.Format, depth vk.Format) ([]attachmentSpec, *attachmentSpec) {
	specs := make([]attachmentSpec, len(colors))
	for i, f := range colors {
		specs[i] = attachmentSpec{format: f, layout: gal.LayoutColorAttachment, loadOp: gputypes.LoadOpClear, storeOp: gputypes.StoreOpStore}
	}
	if depth == vk.FormatUndefined {
		return specs, nil
	}
	return specs, &attachmentSpec{format: depth, layout: gal.LayoutDepthStencilAttachment, loadOp: gputypes.LoadOpClear, storeOp: gputypes.StoreOpStore}
}

func (c *passCache) renderPass(colors []attachmentSpec, depth *attachmentSpec) (vk.RenderPass, error) {
	var sb strings.Builder
	for _, a := range colors {
		sb.WriteString(a.key())
		sb.WriteByte(';')
	}
	if depth != nil {
		sb.WriteString("d:")
		sb.WriteString(depth.key())
	}
	key := sb.String()

	var pass vk.RenderPass
	err := c.device.locks.SafeCall(objectCaches, func() error {
		if p, ok := c.passes[key]; ok {
			pass = p
			return nil
		}
		p, err := c.createRenderPass(colors, depth)
		if err != nil {
			return err
		}
		c.passes[key] = p
		pass = p
		return nil
	})
	return pass, err
}

func describe(a attachmentSpec) vk.AttachmentDescription {
	layout := imageLayout(a.layout)
	initial := layout
	if a.loadOp != gputypes.LoadOpLoad {
		// previous contents are discarded, any layout will do
		initial = vk.ImageLayoutUndefined
	}
	desc := vk.AttachmentDescription{
		Format:         a.format,
		Samples:        vk.SampleCount1Bit,
		LoadOp:         loadOp(a.loadOp),
		StoreOp:        storeOp(a.storeOp),
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  initial,
		FinalLayout:    layout,
	}
	if hasStencil(a.format) {
		desc.StencilLoadOp = desc.LoadOp
		desc.StencilStoreOp = desc.StoreOp
	}
	return desc
}

func (c *passCache) createRenderPass(colors []attachmentSpec, depth *attachmentSpec) (vk.RenderPass, error) {
	attachments := make([]vk.AttachmentDescription, 0, len(colors)+1)
	colorRefs := make([]vk.AttachmentReference, 0, len(colors))
	for i, a := range colors {
		attachments = append(attachments, describe(a))
		colorRefs = append(colorRefs, vk.AttachmentReference{
			Attachment: uint32(i),
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		})
	}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: uint32(len(colorRefs)),
		PColorAttachments:    colorRefs,
	}
	if depth != nil {
		attachments = append(attachments, describe(*depth))
		subpass.PDepthStencilAttachment = &vk.AttachmentReference{
			Attachment: uint32(len(colors)),
			Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
		}
	}

	// Layout changes outside the pass go through explicit barriers, so the
	// external dependency only orders attachment access.
	dependency := vk.SubpassDependency{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit | vk.PipelineStageEarlyFragmentTestsBit),
		DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit | vk.PipelineStageEarlyFragmentTestsBit),
		SrcAccessMask: 0,
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentReadBit | vk.AccessColorAttachmentWriteBit |
			vk.AccessDepthStencilAttachmentReadBit | vk.AccessDepthStencilAttachmentWriteBit),
	}

	info := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{dependency},
	}
	var pass vk.RenderPass
	if err := check("vkCreateRenderPass", vk.CreateRenderPass(c.device.handle, &info, nil, &pass)); err != nil {
		return vk.NullRenderPass, err
	}
	core.LogDebug("render pass created with %d color attachment(s), depth=%t", len(colors), depth != nil)
	return pass, nil
}

func (c *passCache) framebuffer(pass vk.RenderPass, textures []*Texture, width, height uint32) (vk.Framebuffer, error) {
	views := make([]vk.ImageView, len(textures))
	var sb strings.Builder
	fmt.Fprintf(&sb, "%v:%dx%d", pass, width, height)
	for i, t := range textures {
		views[i] = t.view
		fmt.Fprintf(&sb, ":%v", t.view)
	}
	key := sb.String()

	var handle vk.Framebuffer
	err := c.device.locks.SafeCall(objectCaches, func() error {
		if fb, ok := c.framebuffers[key]; ok {
			handle = fb.handle
			return nil
		}
		info := vk.FramebufferCreateInfo{
			SType:           vk.StructureTypeFramebufferCreateInfo,
			RenderPass:      pass,
			AttachmentCount: uint32(len(views)),
			PAttachments:    views,
			Width:           width,
			Height:          height,
			Layers:          1,
		}
		if err := check("vkCreateFramebuffer", vk.CreateFramebuffer(c.device.handle, &info, nil, &handle)); err != nil {
			return err
		}
		c.framebuffers[key] = &framebuffer{handle: handle, textures: textures}
		return nil
	})
	return handle, err
}

// forget destroys every framebuffer referencing t. The caller guarantees
// the GPU is done with them, as it does for t itself.
func (c *passCache) forget(t *Texture) {
	_ = c.device.locks.SafeCall(objectCaches, func() error {
		for key, fb := range c.framebuffers {
			for _, ft := range fb.textures {
				if ft == t {
					vk.DestroyFramebuffer(c.device.handle, fb.handle, nil)
					delete(c.framebuffers, key)
					break
				}
			}
		}
		return nil
	})
}

func (c *passCache) destroy() {
	_ = c.device.locks.SafeCall(objectCaches, func() error {
		for key, fb := range c.framebuffers {
			vk.DestroyFramebuffer(c.device.handle, fb.handle, nil)
			delete(c.framebuffers, key)
		}
		for key, p := range c.passes {
			vk.DestroyRenderPass(c.device.handle, p, nil)
			delete(c.passes, key)
		}
		return nil
	})
}

// begin resolves the pass and framebuffer for desc and records
// vkCmdBeginRenderPass.
func (c *passCache) begin(cb vk.CommandBuffer, desc *gal.RenderPassDescriptor) error {
	colors := make([]attachmentSpec, len(desc.ColorAttachments))
	textures := make([]*Texture, 0, len(desc.ColorAttachments)+1)
	clears := make([]vk.ClearValue, 0, len(desc.ColorAttachments)+1)
	for i := range desc.ColorAttachments {
		a := &desc.ColorAttachments[i]
		colors[i] = specOf(a)
		textures = append(textures, asTexture(a.Texture))
		var clear vk.ClearValue
		clear.SetColor([]float32{float32(a.ClearColor.R), float32(a.ClearColor.G), float32(a.ClearColor.B), float32(a.ClearColor.A)})
		clears = append(clears, clear)
	}
	var depth *attachmentSpec
	if desc.DepthAttachment != nil {
		s := specOf(desc.DepthAttachment)
		depth = &s
		textures = append(textures, asTexture(desc.DepthAttachment.Texture))
		var clear vk.ClearValue
		clear.SetDepthStencil(desc.DepthAttachment.ClearDepth, 0)
		clears = append(clears, clear)
	}

	width, height := textures[0].width, textures[0].height
	for _, t := range textures {
		if len(t.layouts) != 1 {
			return fmt.Errorf("render pass '%s': attachment '%s' has %d mips, framebuffers take one: %w",
				desc.Label, t.label, len(t.layouts), core.ErrInvalidParameters)
		}
		if t.width != width || t.height != height {
			return fmt.Errorf("render pass '%s': attachment '%s' is %dx%d, expected %dx%d: %w",
				desc.Label, t.label, t.width, t.height, width, height, core.ErrInvalidParameters)
		}
	}

	pass, err := c.renderPass(colors, depth)
	if err != nil {
		return err
	}
	fb, err := c.framebuffer(pass, textures, width, height)
	if err != nil {
		return err
	}

	info := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  pass,
		Framebuffer: fb,
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{X: 0, Y: 0},
			Extent: vk.Extent2D{Width: width, Height: height},
		},
		ClearValueCount: uint32(len(clears)),
		PClearValues:    clears,
	}
	vk.CmdBeginRenderPass(cb, &info, vk.SubpassContentsInline)

	for i := range desc.ColorAttachments {
		textures[i].setLayout(gal.MipRange(0, 1), desc.ColorAttachments[i].Layout)
	}
	if desc.DepthAttachment != nil {
		textures[len(textures)-1].setLayout(gal.MipRange(0, 1), desc.DepthAttachment.Layout)
	}
	return nil
}
