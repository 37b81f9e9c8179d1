package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/gal"
)

type BindGroupLayout struct {
	device  *Device
	handle  vk.DescriptorSetLayout
	entries []gal.BindGroupLayoutEntry
}

func (d *Device) CreateBindGroupLayout(desc *gal.BindGroupLayoutDescriptor) (gal.BindGroupLayout, error) {
	if desc == nil || len(desc.Entries) == 0 {
		return nil, fmt.Errorf("create bind group layout: no entries: %w", core.ErrInvalidParameters)
	}
	bindings := make([]vk.DescriptorSetLayoutBinding, 0, len(desc.Entries))
	seen := map[uint32]bool{}
	for _, e := range desc.Entries {
		if seen[e.Binding] {
			return nil, fmt.Errorf("create bind group layout '%s': binding %d declared twice: %w", desc.Label, e.Binding, core.ErrInvalidParameters)
		}
		seen[e.Binding] = true
		bindings = append(bindings, vk.DescriptorSetLayoutBinding{
			Binding:         e.Binding,
			DescriptorType:  descriptorType(e.Type),
			DescriptorCount: 1,
			StageFlags:      shaderStages(e.Visibility),
		})
	}
	info := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(bindings)),
		PBindings:    bindings,
	}
	var handle vk.DescriptorSetLayout
	if err := check("vkCreateDescriptorSetLayout '"+desc.Label+"'", vk.CreateDescriptorSetLayout(d.handle, &info, nil, &handle)); err != nil {
		return nil, err
	}
	return &BindGroupLayout{
		device:  d,
		handle:  handle,
		entries: append([]gal.BindGroupLayoutEntry(nil), desc.Entries...),
	}, nil
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

func (l *BindGroupLayout) Destroy() {
	if l.handle == nil {
		return
	}
	vk.DestroyDescriptorSetLayout(l.device.handle, l.handle, nil)
	l.handle = nil
}

// BindGroup owns a descriptor pool sized for exactly one set of its
// layout, so destroying the group frees the set with it.
type BindGroup struct {
	device *Device
	layout *BindGroupLayout
	pool   vk.DescriptorPool
	set    vk.DescriptorSet
}

func (d *Device) CreateBindGroup(layout gal.BindGroupLayout) (gal.BindGroup, error) {
	l, ok := layout.(*BindGroupLayout)
	if !ok || l == nil {
		return nil, fmt.Errorf("create bind group: layout %T is not a vulkan layout: %w", layout, core.ErrInvalidParameters)
	}

	counts := map[vk.DescriptorType]uint32{}
	for _, e := range l.entries {
		counts[descriptorType(e.Type)]++
	}
	sizes := make([]vk.DescriptorPoolSize, 0, len(counts))
	for t, n := range counts {
		sizes = append(sizes, vk.DescriptorPoolSize{Type: t, DescriptorCount: n})
	}
	poolInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       1,
		PoolSizeCount: uint32(len(sizes)),
		PPoolSizes:    sizes,
	}
	g := &BindGroup{device: d, layout: l}
	if err := check("vkCreateDescriptorPool", vk.CreateDescriptorPool(d.handle, &poolInfo, nil, &g.pool)); err != nil {
		return nil, err
	}
	allocInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     g.pool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{l.handle},
	}
	if err := check("vkAllocateDescriptorSets", vk.AllocateDescriptorSets(d.handle, &allocInfo, &g.set)); err != nil {
		vk.DestroyDescriptorPool(d.handle, g.pool, nil)
		return nil, err
	}
	return g, nil
}

func (g *BindGroup) Layout() gal.BindGroupLayout {
	return g.layout
}

func (g *BindGroup) Write(entries ...gal.BindGroupEntry) error {
	if g.pool == nil {
		return fmt.Errorf("write bind group: %w", core.ErrResourceDestroyed)
	}
	writes := make([]vk.WriteDescriptorSet, 0, len(entries))
	for _, e := range entries {
		le, ok := g.layout.entry(e.Binding)
		if !ok {
			return fmt.Errorf("write bind group: binding %d not in layout: %w", e.Binding, core.ErrInvalidParameters)
		}
		w := vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          g.set,
			DstBinding:      e.Binding,
			DescriptorCount: 1,
			DescriptorType:  descriptorType(le.Type),
		}
		switch le.Type {
		case gal.BindingUniformBuffer:
			if e.Buffer == nil {
				return fmt.Errorf("write bind group: binding %d expects a buffer: %w", e.Binding, core.ErrInvalidParameters)
			}
			b := asBuffer(e.Buffer)
			size := vk.DeviceSize(vk.WholeSize)
			if e.Size > 0 {
				size = vk.DeviceSize(e.Size)
			}
			w.PBufferInfo = []vk.DescriptorBufferInfo{{
				Buffer: b.handle,
				Offset: vk.DeviceSize(e.Offset),
				Range:  size,
			}}
		case gal.BindingTexture:
			if e.Texture == nil {
				return fmt.Errorf("write bind group: binding %d expects a texture: %w", e.Binding, core.ErrInvalidParameters)
			}
			t := asTexture(e.Texture)
			layout := vk.ImageLayoutShaderReadOnlyOptimal
			if gal.IsDepthFormat(t.format) {
				layout = vk.ImageLayoutDepthStencilReadOnlyOptimal
			}
			w.PImageInfo = []vk.DescriptorImageInfo{{
				ImageView:   t.sampled,
				ImageLayout: layout,
			}}
		case gal.BindingSampler:
			s, ok := e.Sampler.(*Sampler)
			if !ok || s == nil {
				return fmt.Errorf("write bind group: binding %d expects a sampler: %w", e.Binding, core.ErrInvalidParameters)
			}
			w.PImageInfo = []vk.DescriptorImageInfo{{Sampler: s.handle}}
		}
		writes = append(writes, w)
	}
	if len(writes) == 0 {
		return nil
	}
	return g.device.locks.SafeCall(descriptorUpdates, func() error {
		vk.UpdateDescriptorSets(g.device.handle, uint32(len(writes)), writes, 0, nil)
		return nil
	})
}

func (g *BindGroup) Destroy() {
	if g.pool == nil {
		return
	}
	vk.DestroyDescriptorPool(g.device.handle, g.pool, nil)
	g.pool = nil
	g.set = nil
}

type PipelineLayout struct {
	device *Device
	handle vk.PipelineLayout
	groups int
}

func (d *Device) CreatePipelineLayout(desc *gal.PipelineLayoutDescriptor) (gal.PipelineLayout, error) {
	if desc == nil {
		return nil, fmt.Errorf("create pipeline layout: %w", core.ErrInvalidParameters)
	}
	sets := make([]vk.DescriptorSetLayout, len(desc.BindGroupLayouts))
	for i, l := range desc.BindGroupLayouts {
		vl, ok := l.(*BindGroupLayout)
		if !ok || vl == nil {
			return nil, fmt.Errorf("create pipeline layout '%s': group %d is %T: %w", desc.Label, i, l, core.ErrInvalidParameters)
		}
		sets[i] = vl.handle
	}
	info := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: uint32(len(sets)),
		PSetLayouts:    sets,
	}
	var handle vk.PipelineLayout
	if err := check("vkCreatePipelineLayout '"+desc.Label+"'", vk.CreatePipelineLayout(d.handle, &info, nil, &handle)); err != nil {
		return nil, err
	}
	return &PipelineLayout{device: d, handle: handle, groups: len(sets)}, nil
}

func (l *PipelineLayout) Destroy() {
	if l.handle == vk.NullPipelineLayout {
		return
	}
	vk.DestroyPipelineLayout(l.device.handle, l.handle, nil)
	l.handle = vk.NullPipelineLayout
}
