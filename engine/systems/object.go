package systems

import (
	"fmt"
	"image/color"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/gal"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/resources"
	"github.com/spaghettifunk/lumen/engine/scene"
)

// Bind group layout shared by every object.
const (
	BindingCamera   uint32 = 0
	BindingObject   uint32 = 1
	BindingMaterial uint32 = 2
	// BindingTextures is the first of MaxTextureSlots texture bindings.
	BindingTextures uint32 = 3
	// BindingSamplers is the first of MaxTextureSlots sampler bindings.
	BindingSamplers = BindingTextures + resources.MaxTextureSlots
)

// CameraUniformSize holds view, projection, view-projection and the camera
// position padded to a vec4.
const CameraUniformSize = 3*64 + 16

// ObjectUniformSize holds the world and normal matrices.
const ObjectUniformSize = 2 * 64

type slotBinding struct {
	texture gal.Texture
	sampler gal.Sampler
}

// ObjectEntry is the per-object device state.
type ObjectEntry struct {
	BindGroup gal.BindGroup
	Transform gal.Buffer
	Pipeline  gal.GraphicsPipeline

	valid    bool
	world    mgl32.Mat4
	uploaded bool
	material gal.Buffer
	slots    [resources.MaxTextureSlots]slotBinding
}

// Valid reports whether the pipeline has been built.
func (e *ObjectEntry) Valid() bool {
	return e.valid
}

type ObjectCacheConfig struct {
	ColorFormats []gputypes.TextureFormat
	DepthFormat  gputypes.TextureFormat
}

type materialEntry struct {
	buffer gal.Buffer
}

// ObjectCache owns the bind group, transform buffer and pipeline of each
// drawable node, and the uniform buffers of the materials they use.
type ObjectCache struct {
	config   ObjectCacheConfig
	device   gal.RenderDevice
	release  *ReleaseQueue
	textures *TextureCache
	programs *ProgramCache
	camera   gal.Buffer

	layout         gal.BindGroupLayout
	pipelineLayout gal.PipelineLayout
	defaultTexture *resources.Texture

	entries   map[core.Handle]*ObjectEntry
	materials map[core.Handle]*materialEntry
	pipelines int
}

func NewObjectCache(config ObjectCacheConfig, device gal.RenderDevice, release *ReleaseQueue, textures *TextureCache, programs *ProgramCache, camera gal.Buffer) (*ObjectCache, error) {
	if device == nil || release == nil || textures == nil || programs == nil || camera == nil {
		err := fmt.Errorf("func NewObjectCache - device, release queue, caches and camera buffer are required: %w", core.ErrInvalidParameters)
		core.LogError("%s", err)
		return nil, err
	}
	if len(config.ColorFormats) == 0 {
		err := fmt.Errorf("func NewObjectCache - at least one color format is required: %w", core.ErrInvalidParameters)
		core.LogError("%s", err)
		return nil, err
	}

	stages := []gal.ShaderStage{gal.ShaderStageVertex, gal.ShaderStageFragment}
	entries := []gal.BindGroupLayoutEntry{
		{Binding: BindingCamera, Type: gal.BindingUniformBuffer, Visibility: stages},
		{Binding: BindingObject, Type: gal.BindingUniformBuffer, Visibility: stages[:1]},
		{Binding: BindingMaterial, Type: gal.BindingUniformBuffer, Visibility: stages[1:]},
	}
	for i := uint32(0); i < resources.MaxTextureSlots; i++ {
		entries = append(entries,
			gal.BindGroupLayoutEntry{Binding: BindingTextures + i, Type: gal.BindingTexture, Visibility: stages[1:]},
			gal.BindGroupLayoutEntry{Binding: BindingSamplers + i, Type: gal.BindingSampler, Visibility: stages[1:]},
		)
	}
	layout, err := device.CreateBindGroupLayout(&gal.BindGroupLayoutDescriptor{Label: "object", Entries: entries})
	if err != nil {
		return nil, fmt.Errorf("object bind group layout: %w", err)
	}
	pipelineLayout, err := device.CreatePipelineLayout(&gal.PipelineLayoutDescriptor{
		Label:            "object",
		BindGroupLayouts: []gal.BindGroupLayout{layout},
	})
	if err != nil {
		layout.Destroy()
		return nil, fmt.Errorf("object pipeline layout: %w", err)
	}

	return &ObjectCache{
		config:         config,
		device:         device,
		release:        release,
		textures:       textures,
		programs:       programs,
		camera:         camera,
		layout:         layout,
		pipelineLayout: pipelineLayout,
		defaultTexture: resources.NewSolidTexture("default.white", 1, 1, color.RGBA{255, 255, 255, 255}),
		entries:        make(map[core.Handle]*ObjectEntry),
		materials:      make(map[core.Handle]*materialEntry),
	}, nil
}

// DefaultTexture is bound to every texture slot a material leaves empty.
func (c *ObjectCache) DefaultTexture() *resources.Texture {
	return c.defaultTexture
}

// Get brings the device state of a mesh node up to date and returns it.
func (c *ObjectCache) Get(node scene.Node, mesh *scene.Mesh) (*ObjectEntry, error) {
	h := node.ID()
	e, ok := c.entries[h]
	if !ok {
		var err error
		if e, err = c.create(node); err != nil {
			return nil, err
		}
		c.entries[h] = e
		node.OnRelease(func() { c.drop(h) })
	}

	if err := c.syncTransform(e, node.Transform().World); err != nil {
		return nil, fmt.Errorf("object '%s' transform: %w", node.Name(), err)
	}
	if err := c.syncMaterial(e, mesh.Material); err != nil {
		return nil, fmt.Errorf("object '%s' material '%s': %w", node.Name(), mesh.Material.Name(), err)
	}
	if err := c.syncTextures(e, mesh.Material); err != nil {
		return nil, fmt.Errorf("object '%s' textures: %w", node.Name(), err)
	}

	if !e.valid {
		p, err := c.buildPipeline(node, mesh)
		if err != nil {
			return nil, err
		}
		e.Pipeline = p
		e.valid = true
	}
	return e, nil
}

// create allocates the bind group and transform buffer and binds the two
// buffers that never change for the lifetime of the entry.
func (c *ObjectCache) create(node scene.Node) (*ObjectEntry, error) {
	group, err := c.device.CreateBindGroup(c.layout)
	if err != nil {
		return nil, fmt.Errorf("object '%s' bind group: %w", node.Name(), err)
	}
	transform, err := c.device.CreateBuffer(&gal.BufferDescriptor{
		Label: node.Name() + ".transform",
		Size:  ObjectUniformSize,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		group.Destroy()
		return nil, fmt.Errorf("object '%s' transform buffer: %w", node.Name(), err)
	}
	if err := group.Write(
		gal.BindGroupEntry{Binding: BindingCamera, Buffer: c.camera, Size: CameraUniformSize},
		gal.BindGroupEntry{Binding: BindingObject, Buffer: transform, Size: ObjectUniformSize},
	); err != nil {
		group.Destroy()
		transform.Destroy()
		return nil, fmt.Errorf("object '%s' bind group write: %w", node.Name(), err)
	}
	return &ObjectEntry{BindGroup: group, Transform: transform}, nil
}

func (c *ObjectCache) syncTransform(e *ObjectEntry, world mgl32.Mat4) error {
	if e.uploaded && e.world == world {
		return nil
	}
	data := make([]byte, ObjectUniformSize)
	math.PackMat4(data[:64], world)
	math.PackMat4(data[64:], world.Inv().Transpose())
	if err := e.Transform.Update(0, data); err != nil {
		return err
	}
	e.world = world
	e.uploaded = true
	return nil
}

// syncMaterial uploads dirty material uniforms and rebinds the material
// buffer when it is not the one the entry last bound.
func (c *ObjectCache) syncMaterial(e *ObjectEntry, m resources.Material) error {
	buf, err := c.materialBuffer(m)
	if err != nil {
		return err
	}
	if buf == e.material {
		return nil
	}
	if err := e.BindGroup.Write(gal.BindGroupEntry{Binding: BindingMaterial, Buffer: buf, Size: buf.Size()}); err != nil {
		return err
	}
	e.material = buf
	return nil
}

func (c *ObjectCache) materialBuffer(m resources.Material) (gal.Buffer, error) {
	h := m.Handle()
	me, ok := c.materials[h]
	if ok && !m.Dirty() {
		return me.buffer, nil
	}
	data := m.UniformBytes()
	if ok && me.buffer.Size() == len(data) {
		if err := me.buffer.Update(0, data); err != nil {
			return nil, err
		}
		m.ClearDirty()
		return me.buffer, nil
	}

	buf, err := gal.CreateBufferWithData(c.device, &gal.BufferDescriptor{
		Label: m.Name() + ".uniforms",
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	}, data, false)
	if err != nil {
		return nil, err
	}
	if ok {
		c.release.Destroy(me.buffer)
		me.buffer = buf
	} else {
		c.materials[h] = &materialEntry{buffer: buf}
		m.OnRelease(func() { c.dropMaterial(h) })
	}
	m.ClearDirty()
	return buf, nil
}

// syncTextures binds each slot's texture, or the default texture for empty
// slots, writing only the slots whose binding changed.
func (c *ObjectCache) syncTextures(e *ObjectEntry, m resources.Material) error {
	var writes []gal.BindGroupEntry
	for slot := 0; slot < resources.MaxTextureSlots; slot++ {
		tex := m.Texture(slot)
		if tex == nil || tex.Released() {
			tex = c.defaultTexture
		}
		te, err := c.textures.Get(tex)
		if err != nil {
			return fmt.Errorf("slot %d: %w", slot, err)
		}
		want := slotBinding{texture: te.Texture, sampler: te.Sampler}
		if e.slots[slot] == want {
			continue
		}
		writes = append(writes,
			gal.BindGroupEntry{Binding: BindingTextures + uint32(slot), Texture: te.Texture},
			gal.BindGroupEntry{Binding: BindingSamplers + uint32(slot), Sampler: te.Sampler},
		)
		e.slots[slot] = want
	}
	if len(writes) == 0 {
		return nil
	}
	return e.BindGroup.Write(writes...)
}

// buildPipeline specializes a pipeline to the geometry's vertex layout and
// the material's program. It is built once per entry; later changes to the
// material options do not rebuild it.
func (c *ObjectCache) buildPipeline(node scene.Node, mesh *scene.Mesh) (gal.GraphicsPipeline, error) {
	program, err := c.programs.Get(mesh.Material)
	if err != nil {
		return nil, fmt.Errorf("object '%s' program: %w", node.Name(), err)
	}
	blend := mesh.Material.Blend()
	p, err := c.device.CreateGraphicsPipeline(&gal.GraphicsPipelineDescriptor{
		Label:         node.Name() + ".pipeline",
		Layout:        c.pipelineLayout,
		Vertex:        program.Vertex,
		Fragment:      program.Fragment,
		VertexBuffers: mesh.Geometry.VertexLayouts(),
		ColorFormats:  c.config.ColorFormats,
		DepthStencil: &gal.DepthStencilState{
			Format:       c.config.DepthFormat,
			DepthWrite:   !blend,
			DepthCompare: gputypes.CompareFunctionLess,
		},
		CullMode:     mesh.Material.CullMode(),
		BlendEnabled: blend,
	})
	if err != nil {
		return nil, fmt.Errorf("object '%s' pipeline: %w", node.Name(), err)
	}
	c.pipelines++
	return p, nil
}

func (c *ObjectCache) drop(h core.Handle) {
	e, ok := c.entries[h]
	if !ok {
		return
	}
	c.release.Destroy(e.Pipeline)
	c.release.Destroy(e.BindGroup)
	c.release.Destroy(e.Transform)
	delete(c.entries, h)
}

func (c *ObjectCache) dropMaterial(h core.Handle) {
	me, ok := c.materials[h]
	if !ok {
		return
	}
	c.release.Destroy(me.buffer)
	delete(c.materials, h)
}

func (c *ObjectCache) Lookup(node scene.Node) (*ObjectEntry, bool) {
	e, ok := c.entries[node.ID()]
	return e, ok
}

func (c *ObjectCache) Len() int {
	return len(c.entries)
}

// PipelinesBuilt counts pipelines created since the cache was made.
func (c *ObjectCache) PipelinesBuilt() int {
	return c.pipelines
}

// DestroyPipelines frees every object pipeline. It runs before the program
// cache releases the shader modules they were built from.
func (c *ObjectCache) DestroyPipelines() {
	for _, e := range c.entries {
		if e.Pipeline != nil {
			e.Pipeline.Destroy()
			e.Pipeline = nil
			e.valid = false
		}
	}
}

// Destroy frees every remaining device object. The device must be idle.
func (c *ObjectCache) Destroy() {
	c.DestroyPipelines()
	for h, e := range c.entries {
		e.BindGroup.Destroy()
		e.Transform.Destroy()
		delete(c.entries, h)
	}
	for h, me := range c.materials {
		me.buffer.Destroy()
		delete(c.materials, h)
	}
	c.pipelineLayout.Destroy()
	c.layout.Destroy()
}
