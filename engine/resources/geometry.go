package resources

import (
	"encoding/binary"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/gal"
	"github.com/spaghettifunk/lumen/engine/math"
)

type VertexAttribute struct {
	Name     string
	Location uint32
	Format   gputypes.VertexFormat
	Offset   uint32
}

// Vertex3DAttributes describes math.Vertex3D as packed by math.PackVertices.
var Vertex3DAttributes = []VertexAttribute{
	{Name: "position", Location: 0, Format: gputypes.VertexFormatFloat32x3, Offset: 0},
	{Name: "normal", Location: 1, Format: gputypes.VertexFormatFloat32x3, Offset: 12},
	{Name: "texcoord", Location: 2, Format: gputypes.VertexFormatFloat32x2, Offset: 24},
}

// VertexBuffer holds interleaved vertex data. Several geometries may share
// one VertexBuffer; the geometry cache then shares its device buffer too.
type VertexBuffer struct {
	Resource
	data       []byte
	stride     uint32
	attributes []VertexAttribute
}

func NewVertexBuffer(name string, data []byte, stride uint32, attributes []VertexAttribute) (*VertexBuffer, error) {
	if stride == 0 || len(data)%int(stride) != 0 {
		err := fmt.Errorf("vertex buffer '%s': %d bytes is not a multiple of stride %d: %w", name, len(data), stride, core.ErrInvalidParameters)
		core.LogError("%s", err)
		return nil, err
	}
	b := &VertexBuffer{data: data, stride: stride, attributes: attributes}
	b.Init(b, name)
	return b, nil
}

func (b *VertexBuffer) Data() []byte {
	return b.data
}

// SetData replaces the vertex bytes and marks the buffer dirty.
func (b *VertexBuffer) SetData(data []byte) {
	b.data = data
	b.MarkDirty()
}

func (b *VertexBuffer) Stride() uint32 {
	return b.stride
}

func (b *VertexBuffer) Attributes() []VertexAttribute {
	return b.attributes
}

func (b *VertexBuffer) Count() uint32 {
	return uint32(len(b.data)) / b.stride
}

func (b *VertexBuffer) Layout() gal.VertexBufferLayout {
	layout := gal.VertexBufferLayout{Stride: b.stride}
	for _, a := range b.attributes {
		layout.Attributes = append(layout.Attributes, gal.VertexAttribute{Location: a.Location, Format: a.Format, Offset: a.Offset})
	}
	return layout
}

type IndexBuffer struct {
	Resource
	data   []byte
	format gal.IndexFormat
}

func NewIndexBuffer32(name string, indices []uint32) *IndexBuffer {
	b := &IndexBuffer{data: math.PackIndices(indices), format: gal.IndexFormatUint32}
	b.Init(b, name)
	return b
}

func NewIndexBuffer16(name string, indices []uint16) *IndexBuffer {
	data := make([]byte, len(indices)*2)
	for i, idx := range indices {
		binary.LittleEndian.PutUint16(data[i*2:], idx)
	}
	b := &IndexBuffer{data: data, format: gal.IndexFormatUint16}
	b.Init(b, name)
	return b
}

func (b *IndexBuffer) Data() []byte {
	return b.data
}

func (b *IndexBuffer) SetData(data []byte) {
	b.data = data
	b.MarkDirty()
}

func (b *IndexBuffer) Format() gal.IndexFormat {
	return b.format
}

func (b *IndexBuffer) Count() uint32 {
	return uint32(len(b.data) / b.format.Size())
}

// Geometry groups an index buffer, one or more vertex buffers and the
// object-space bounds used for culling.
type Geometry struct {
	Resource
	index    *IndexBuffer
	vertices []*VertexBuffer
	bounds   math.AABB
}

func NewGeometry(name string, index *IndexBuffer, bounds math.AABB, vertices ...*VertexBuffer) (*Geometry, error) {
	if index == nil || len(vertices) == 0 {
		err := fmt.Errorf("geometry '%s' needs an index buffer and at least one vertex buffer: %w", name, core.ErrInvalidParameters)
		core.LogError("%s", err)
		return nil, err
	}
	g := &Geometry{index: index, vertices: vertices, bounds: bounds}
	g.Init(g, name)
	return g, nil
}

func (g *Geometry) IndexBuffer() *IndexBuffer {
	return g.index
}

func (g *Geometry) VertexBuffers() []*VertexBuffer {
	return g.vertices
}

// SetBuffers swaps the buffer set; the cache rebinds on the next lookup.
func (g *Geometry) SetBuffers(index *IndexBuffer, vertices ...*VertexBuffer) {
	g.index = index
	g.vertices = vertices
	g.MarkDirty()
}

func (g *Geometry) Bounds() math.AABB {
	return g.bounds
}

func (g *Geometry) SetBounds(b math.AABB) {
	g.bounds = b
}

func (g *Geometry) VertexLayouts() []gal.VertexBufferLayout {
	out := make([]gal.VertexBufferLayout, len(g.vertices))
	for i, v := range g.vertices {
		out[i] = v.Layout()
	}
	return out
}

// NewGeometryFromVertices packs vertices into a single interleaved buffer.
func NewGeometryFromVertices(name string, vertices []math.Vertex3D, indices []uint32) (*Geometry, error) {
	vb, err := NewVertexBuffer(name+".vertices", math.PackVertices(vertices), math.Vertex3DStride, Vertex3DAttributes)
	if err != nil {
		return nil, err
	}
	return NewGeometry(name, NewIndexBuffer32(name+".indices", indices), math.VertexBounds(vertices), vb)
}

func NewCubeGeometry(name string, width, height, depth float32) (*Geometry, error) {
	vertices, indices := math.GenerateCube(width, height, depth)
	return NewGeometryFromVertices(name, vertices, indices)
}

func NewPlaneGeometry(name string, width, height float32) (*Geometry, error) {
	vertices, indices := math.GeneratePlane(width, height)
	return NewGeometryFromVertices(name, vertices, indices)
}
