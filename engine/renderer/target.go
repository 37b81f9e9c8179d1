package renderer

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/google/uuid"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/gal"
)

// TargetView describes one render target texture and the layout the last
// recorded frame left it in.
type TargetView struct {
	Name    string
	Texture gal.Texture
	Layout  gal.Layout
}

type attachment struct {
	name    string
	texture gal.Texture
	layout  gal.Layout
}

// renderTarget holds the color, auxiliary color and depth textures of the
// forward pass. Layouts are tracked here, not on the textures.
type renderTarget struct {
	width  uint32
	height uint32
	colors []*attachment
	depth  *attachment
}

func newRenderTarget(device gal.RenderDevice, config *Config) (*renderTarget, error) {
	t := &renderTarget{width: config.Width, height: config.Height}
	create := func(name string, format gputypes.TextureFormat) (*attachment, error) {
		usage := gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageTextureBinding
		if !gal.IsDepthFormat(format) {
			usage |= gputypes.TextureUsageCopySrc
		}
		tex, err := device.CreateTexture(&gal.TextureDescriptor{
			Label:    fmt.Sprintf("%s-%s", name, uuid.NewString()),
			Width:    config.Width,
			Height:   config.Height,
			MipCount: 1,
			Format:   format,
			Usage:    usage,
		})
		if err != nil {
			return nil, fmt.Errorf("render target %s %dx%d: %w", name, config.Width, config.Height, err)
		}
		return &attachment{name: name, texture: tex, layout: gal.LayoutUndefined}, nil
	}

	color, err := create("color", config.ColorFormat)
	if err != nil {
		return nil, err
	}
	t.colors = append(t.colors, color)
	aux, err := create("aux", config.AuxFormat)
	if err != nil {
		t.destroy()
		return nil, err
	}
	t.colors = append(t.colors, aux)
	if t.depth, err = create("depth", config.DepthFormat); err != nil {
		t.destroy()
		return nil, err
	}
	return t, nil
}

func (t *renderTarget) colorFormats() []gputypes.TextureFormat {
	formats := make([]gputypes.TextureFormat, len(t.colors))
	for i, a := range t.colors {
		formats[i] = a.texture.Format()
	}
	return formats
}

// beginBarriers moves every attachment into its attachment layout.
// Contents are cleared by the pass, so the previous frame's layout is only
// needed to pick the legal transition.
func (t *renderTarget) beginBarriers() []gal.Barrier {
	barriers := make([]gal.Barrier, 0, len(t.colors)+1)
	for _, a := range t.colors {
		barriers = append(barriers, gal.TextureBarrier(a.texture, a.layout, gal.LayoutColorAttachment, gal.SubresourceRange{}))
		a.layout = gal.LayoutColorAttachment
	}
	barriers = append(barriers, gal.TextureBarrier(t.depth.texture, t.depth.layout, gal.LayoutDepthStencilAttachment, gal.SubresourceRange{}))
	t.depth.layout = gal.LayoutDepthStencilAttachment
	return barriers
}

// endBarriers makes every attachment readable by a later pass.
func (t *renderTarget) endBarriers() []gal.Barrier {
	barriers := make([]gal.Barrier, 0, len(t.colors)+1)
	for _, a := range t.colors {
		barriers = append(barriers, gal.TextureBarrier(a.texture, a.layout, gal.LayoutShaderReadOnly, gal.SubresourceRange{}))
		a.layout = gal.LayoutShaderReadOnly
	}
	barriers = append(barriers, gal.TextureBarrier(t.depth.texture, t.depth.layout, gal.LayoutDepthReadOnly, gal.SubresourceRange{}))
	t.depth.layout = gal.LayoutDepthReadOnly
	return barriers
}

func (t *renderTarget) passDescriptor(clear gputypes.Color) *gal.RenderPassDescriptor {
	desc := &gal.RenderPassDescriptor{Label: "forward"}
	for _, a := range t.colors {
		desc.ColorAttachments = append(desc.ColorAttachments, gal.RenderPassAttachment{
			Texture:    a.texture,
			Layout:     gal.LayoutColorAttachment,
			LoadOp:     gputypes.LoadOpClear,
			StoreOp:    gputypes.StoreOpStore,
			ClearColor: clear,
		})
	}
	desc.DepthAttachment = &gal.RenderPassAttachment{
		Texture:    t.depth.texture,
		Layout:     gal.LayoutDepthStencilAttachment,
		LoadOp:     gputypes.LoadOpClear,
		StoreOp:    gputypes.StoreOpStore,
		ClearDepth: 1.0,
	}
	return desc
}

func (t *renderTarget) views() []TargetView {
	out := make([]TargetView, 0, len(t.colors)+1)
	for _, a := range t.colors {
		out = append(out, TargetView{Name: a.name, Texture: a.texture, Layout: a.layout})
	}
	return append(out, TargetView{Name: t.depth.name, Texture: t.depth.texture, Layout: t.depth.layout})
}

func (t *renderTarget) color(i int) gal.Texture {
	if i < 0 || i >= len(t.colors) {
		core.Fatal(fmt.Errorf("color attachment %d of %d: %w", i, len(t.colors), core.ErrAttachmentIndex))
	}
	return t.colors[i].texture
}

func (t *renderTarget) destroy() {
	for _, a := range t.colors {
		a.texture.Destroy()
	}
	if t.depth != nil {
		t.depth.texture.Destroy()
	}
}
