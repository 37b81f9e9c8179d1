package systems

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/gal"
	"github.com/spaghettifunk/lumen/engine/resources"
)

// GeometryBuffers are the device buffers backing one Geometry.
type GeometryBuffers struct {
	Index       gal.Buffer
	IndexFormat gal.IndexFormat
	IndexCount  uint32
	Vertex      []gal.Buffer
}

// bufferSource is implemented by resources.VertexBuffer and IndexBuffer.
type bufferSource interface {
	resources.Releasable
	Name() string
	Data() []byte
	Dirty() bool
	ClearDirty()
}

type bufferEntry struct {
	source bufferSource
	usage  gputypes.BufferUsage
	buffer gal.Buffer
	refs   int
}

type geometryEntry struct {
	index    resources.Releasable
	vertices []resources.Releasable
	buffers  GeometryBuffers
}

// GeometryCache mirrors index and vertex buffers on the device. Buffer
// objects shared between geometries share one device buffer.
type GeometryCache struct {
	device     gal.RenderDevice
	release    *ReleaseQueue
	buffers    map[core.Handle]*bufferEntry
	geometries map[core.Handle]*geometryEntry
}

func NewGeometryCache(device gal.RenderDevice, release *ReleaseQueue) (*GeometryCache, error) {
	if device == nil || release == nil {
		err := fmt.Errorf("func NewGeometryCache - device and release queue are required: %w", core.ErrInvalidParameters)
		core.LogError("%s", err)
		return nil, err
	}
	return &GeometryCache{
		device:     device,
		release:    release,
		buffers:    make(map[core.Handle]*bufferEntry),
		geometries: make(map[core.Handle]*geometryEntry),
	}, nil
}

// Get returns the device buffers of g, creating or updating them as needed.
// A lookup of an unchanged geometry does no device work.
func (c *GeometryCache) Get(g *resources.Geometry) (*GeometryBuffers, error) {
	h := g.Handle()
	e, ok := c.geometries[h]
	if !ok {
		e = &geometryEntry{}
		c.geometries[h] = e
		g.OnRelease(func() { c.dropGeometry(h) })
		c.bind(e, g)
	} else if g.Dirty() {
		c.bind(e, g)
	}
	g.ClearDirty()

	index := g.IndexBuffer()
	buf, err := c.sync(index)
	if err != nil {
		return nil, fmt.Errorf("geometry '%s' index buffer: %w", g.Name(), err)
	}
	e.buffers.Index = buf
	e.buffers.IndexFormat = index.Format()
	e.buffers.IndexCount = index.Count()

	for i, vb := range g.VertexBuffers() {
		buf, err := c.sync(vb)
		if err != nil {
			return nil, fmt.Errorf("geometry '%s' vertex buffer %d: %w", g.Name(), i, err)
		}
		e.buffers.Vertex[i] = buf
	}
	return &e.buffers, nil
}

// bind points the entry at the geometry's current buffer objects. New
// references are taken before old ones are dropped so buffers kept across
// the swap are never destroyed.
func (c *GeometryCache) bind(e *geometryEntry, g *resources.Geometry) {
	oldIndex, oldVertices := e.index, e.vertices

	e.index = g.IndexBuffer()
	c.acquire(g.IndexBuffer(), gputypes.BufferUsageIndex)
	e.vertices = e.vertices[:0:0]
	for _, vb := range g.VertexBuffers() {
		e.vertices = append(e.vertices, vb)
		c.acquire(vb, gputypes.BufferUsageVertex)
	}
	e.buffers.Vertex = make([]gal.Buffer, len(e.vertices))

	if oldIndex != nil {
		c.unref(oldIndex.Handle())
	}
	for _, vb := range oldVertices {
		c.unref(vb.Handle())
	}
}

func (c *GeometryCache) acquire(src bufferSource, usage gputypes.BufferUsage) {
	h := src.Handle()
	if be, ok := c.buffers[h]; ok {
		be.refs++
		return
	}
	c.buffers[h] = &bufferEntry{source: src, usage: usage, refs: 1}
	src.OnRelease(func() { c.dropBuffer(h) })
}

// sync brings the device copy of src up to date: created on first use,
// updated in place when the size is unchanged, recreated otherwise.
func (c *GeometryCache) sync(src bufferSource) (gal.Buffer, error) {
	be, ok := c.buffers[src.Handle()]
	if !ok {
		return nil, fmt.Errorf("buffer '%s' %s was released: %w", src.Name(), src.Handle(), core.ErrResourceDestroyed)
	}
	data := src.Data()
	switch {
	case be.buffer == nil:
	case !src.Dirty():
		return be.buffer, nil
	case be.buffer.Size() == len(data):
		if err := be.buffer.Update(0, data); err != nil {
			return nil, fmt.Errorf("update buffer '%s': %w", src.Name(), err)
		}
		src.ClearDirty()
		return be.buffer, nil
	default:
		core.LogDebug("buffer '%s' resized %d -> %d bytes, recreating", src.Name(), be.buffer.Size(), len(data))
		c.release.Destroy(be.buffer)
		be.buffer = nil
	}

	buf, err := gal.CreateBufferWithData(c.device, &gal.BufferDescriptor{
		Label: src.Name(),
		Usage: be.usage | gputypes.BufferUsageCopyDst | gputypes.BufferUsageCopySrc,
	}, data, false)
	if err != nil {
		return nil, fmt.Errorf("create buffer '%s' (%d bytes): %w", src.Name(), len(data), err)
	}
	be.buffer = buf
	src.ClearDirty()
	return buf, nil
}

func (c *GeometryCache) unref(h core.Handle) {
	be, ok := c.buffers[h]
	if !ok {
		return
	}
	be.refs--
	if be.refs > 0 {
		return
	}
	c.release.Destroy(be.buffer)
	delete(c.buffers, h)
}

func (c *GeometryCache) dropGeometry(h core.Handle) {
	e, ok := c.geometries[h]
	if !ok {
		return
	}
	if e.index != nil {
		c.unref(e.index.Handle())
	}
	for _, vb := range e.vertices {
		c.unref(vb.Handle())
	}
	delete(c.geometries, h)
}

func (c *GeometryCache) dropBuffer(h core.Handle) {
	be, ok := c.buffers[h]
	if !ok {
		return
	}
	if be.buffer != nil {
		c.release.Destroy(be.buffer)
	}
	delete(c.buffers, h)
}

// Has reports whether g has a cache entry.
func (c *GeometryCache) Has(g *resources.Geometry) bool {
	_, ok := c.geometries[g.Handle()]
	return ok
}

func (c *GeometryCache) Len() int {
	return len(c.geometries)
}

// BufferCount is the number of distinct device buffers held.
func (c *GeometryCache) BufferCount() int {
	return len(c.buffers)
}

// Readback copies the contents of a device buffer into host memory through
// a MapRead staging buffer. It submits and waits, so keep it out of frames.
func (c *GeometryCache) Readback(buffer gal.Buffer) ([]byte, error) {
	staging, err := c.device.CreateBuffer(&gal.BufferDescriptor{
		Label: buffer.Label() + ".readback",
		Size:  buffer.Size(),
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("readback '%s': %w", buffer.Label(), err)
	}
	defer staging.Destroy()

	cmd, err := c.device.CreateCommandBuffer()
	if err != nil {
		return nil, fmt.Errorf("readback '%s': %w", buffer.Label(), err)
	}
	if err := cmd.Begin(); err != nil {
		return nil, fmt.Errorf("readback '%s': %w", buffer.Label(), err)
	}
	cmd.CopyBuffer(buffer, staging, 0, 0, uint64(buffer.Size()))
	if err := cmd.End(); err != nil {
		return nil, fmt.Errorf("readback '%s': %w", buffer.Label(), err)
	}

	fence, err := c.device.CreateFence(false)
	if err != nil {
		return nil, fmt.Errorf("readback '%s': %w", buffer.Label(), err)
	}
	defer fence.Destroy()
	if err := c.device.Queue().Submit(fence, cmd); err != nil {
		return nil, fmt.Errorf("readback '%s': %w", buffer.Label(), err)
	}
	if err := fence.Wait(gal.WaitForever); err != nil {
		return nil, fmt.Errorf("readback '%s': %w", buffer.Label(), err)
	}

	mapped, err := staging.Map()
	if err != nil {
		return nil, fmt.Errorf("readback '%s': %w", buffer.Label(), err)
	}
	defer staging.Unmap()
	return append([]byte(nil), mapped...), nil
}

// Destroy frees every device buffer. The device must be idle.
func (c *GeometryCache) Destroy() {
	for h, be := range c.buffers {
		if be.buffer != nil {
			be.buffer.Destroy()
		}
		delete(c.buffers, h)
	}
	for h := range c.geometries {
		delete(c.geometries, h)
	}
}
