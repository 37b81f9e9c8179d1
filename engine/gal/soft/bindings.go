package soft

import (
	"fmt"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/gal"
)

type Sampler struct {
	Desc gal.SamplerDescriptor
}

func (s *Sampler) Destroy() {}

type ShaderModule struct {
	label string
	stage gal.ShaderStage
	entry string
	code  []byte
}

func (m *ShaderModule) Stage() gal.ShaderStage { return m.stage }
func (m *ShaderModule) EntryPoint() string     { return m.entry }
func (m *ShaderModule) Code() []byte           { return m.code }
func (m *ShaderModule) Destroy()               {}

type BindGroupLayout struct {
	entries []gal.BindGroupLayoutEntry
}

func (l *BindGroupLayout) Entries() []gal.BindGroupLayoutEntry {
	return l.entries
}

func (l *BindGroupLayout) entry(binding uint32) (gal.BindGroupLayoutEntry, bool) {
	for _, e := range l.entries {
		if e.Binding == binding {
			return e, true
		}
	}
	return gal.BindGroupLayoutEntry{}, false
}

func (l *BindGroupLayout) Destroy() {}

type BindGroup struct {
	device    *Device
	layout    *BindGroupLayout
	bound     map[uint32]gal.BindGroupEntry
	destroyed bool
}

func (g *BindGroup) Layout() gal.BindGroupLayout {
	return g.layout
}

func (g *BindGroup) Write(entries ...gal.BindGroupEntry) error {
	if g.destroyed {
		return fmt.Errorf("write bind group: %w", core.ErrResourceDestroyed)
	}
	for _, e := range entries {
		le, ok := g.layout.entry(e.Binding)
		if !ok {
			return fmt.Errorf("write bind group: binding %d not in layout: %w", e.Binding, core.ErrInvalidParameters)
		}
		switch le.Type {
		case gal.BindingUniformBuffer:
			if e.Buffer == nil {
				return fmt.Errorf("write bind group: binding %d expects a buffer: %w", e.Binding, core.ErrInvalidParameters)
			}
		case gal.BindingTexture:
			if e.Texture == nil {
				return fmt.Errorf("write bind group: binding %d expects a texture: %w", e.Binding, core.ErrInvalidParameters)
			}
		case gal.BindingSampler:
			if e.Sampler == nil {
				return fmt.Errorf("write bind group: binding %d expects a sampler: %w", e.Binding, core.ErrInvalidParameters)
			}
		}
	}
	for _, e := range entries {
		g.bound[e.Binding] = e
	}
	g.device.count(func(s *Stats) { s.BindGroupWrites++ })
	return nil
}

// Bound returns what a binding currently holds.
func (g *BindGroup) Bound(binding uint32) (gal.BindGroupEntry, bool) {
	e, ok := g.bound[binding]
	return e, ok
}

func (g *BindGroup) Destroy() {
	g.destroyed = true
}

type PipelineLayout struct {
	groups []gal.BindGroupLayout
}

func (l *PipelineLayout) Destroy() {}

type GraphicsPipeline struct {
	device    *Device
	label     string
	desc      gal.GraphicsPipelineDescriptor
	destroyed bool
}

func (p *GraphicsPipeline) Layout() gal.PipelineLayout {
	return p.desc.Layout
}

func (p *GraphicsPipeline) Descriptor() gal.GraphicsPipelineDescriptor {
	return p.desc
}

func (p *GraphicsPipeline) Destroy() {
	if p.destroyed {
		return
	}
	p.destroyed = true
	p.device.count(func(s *Stats) { s.PipelinesDestroyed++ })
}
