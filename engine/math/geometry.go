package math

import (
	"encoding/binary"
	gomath "math"

	"github.com/go-gl/mathgl/mgl32"
)

// Vertex3D is the interleaved layout used by the built-in primitives:
// position (12 bytes), normal (12 bytes), texcoord (8 bytes).
type Vertex3D struct {
	Position mgl32.Vec3
	Normal   mgl32.Vec3
	Texcoord mgl32.Vec2
}

const Vertex3DStride = 32

// GenerateNormals writes face normals into every vertex of each triangle.
// NOTE: This just generates a face normal. Smoothing out should be done in a separate pass if desired.
func GenerateNormals(vertices []Vertex3D, indices []uint32) {
	for i := 0; i+2 < len(indices); i += 3 {
		i0, i1, i2 := indices[i], indices[i+1], indices[i+2]

		edge1 := vertices[i1].Position.Sub(vertices[i0].Position)
		edge2 := vertices[i2].Position.Sub(vertices[i0].Position)
		normal := edge1.Cross(edge2).Normalize()

		vertices[i0].Normal = normal
		vertices[i1].Normal = normal
		vertices[i2].Normal = normal
	}
}

// GenerateCube builds a box centered on the origin with 24 vertices so each
// face keeps its own normal and texture coordinates.
func GenerateCube(width, height, depth float32) ([]Vertex3D, []uint32) {
	hw, hh, hd := width*0.5, height*0.5, depth*0.5

	faces := [6][4]mgl32.Vec3{
		// front
		{{-hw, -hh, hd}, {hw, -hh, hd}, {hw, hh, hd}, {-hw, hh, hd}},
		// back
		{{hw, -hh, -hd}, {-hw, -hh, -hd}, {-hw, hh, -hd}, {hw, hh, -hd}},
		// left
		{{-hw, -hh, -hd}, {-hw, -hh, hd}, {-hw, hh, hd}, {-hw, hh, -hd}},
		// right
		{{hw, -hh, hd}, {hw, -hh, -hd}, {hw, hh, -hd}, {hw, hh, hd}},
		// top
		{{-hw, hh, hd}, {hw, hh, hd}, {hw, hh, -hd}, {-hw, hh, -hd}},
		// bottom
		{{-hw, -hh, -hd}, {hw, -hh, -hd}, {hw, -hh, hd}, {-hw, -hh, hd}},
	}
	uvs := [4]mgl32.Vec2{{0, 1}, {1, 1}, {1, 0}, {0, 0}}

	vertices := make([]Vertex3D, 0, 24)
	indices := make([]uint32, 0, 36)
	for f, face := range faces {
		base := uint32(f * 4)
		for v := 0; v < 4; v++ {
			vertices = append(vertices, Vertex3D{Position: face[v], Texcoord: uvs[v]})
		}
		indices = append(indices, base, base+1, base+2, base, base+2, base+3)
	}
	GenerateNormals(vertices, indices)
	return vertices, indices
}

// GeneratePlane builds a quad on the XY plane facing +Z.
func GeneratePlane(width, height float32) ([]Vertex3D, []uint32) {
	hw, hh := width*0.5, height*0.5
	vertices := []Vertex3D{
		{Position: mgl32.Vec3{-hw, -hh, 0}, Texcoord: mgl32.Vec2{0, 1}},
		{Position: mgl32.Vec3{hw, -hh, 0}, Texcoord: mgl32.Vec2{1, 1}},
		{Position: mgl32.Vec3{hw, hh, 0}, Texcoord: mgl32.Vec2{1, 0}},
		{Position: mgl32.Vec3{-hw, hh, 0}, Texcoord: mgl32.Vec2{0, 0}},
	}
	indices := []uint32{0, 1, 2, 0, 2, 3}
	GenerateNormals(vertices, indices)
	return vertices, indices
}

// PackVertices serializes vertices into the little-endian interleaved layout.
func PackVertices(vertices []Vertex3D) []byte {
	out := make([]byte, len(vertices)*Vertex3DStride)
	off := 0
	put := func(f float32) {
		binary.LittleEndian.PutUint32(out[off:], gomath.Float32bits(f))
		off += 4
	}
	for _, v := range vertices {
		put(v.Position[0])
		put(v.Position[1])
		put(v.Position[2])
		put(v.Normal[0])
		put(v.Normal[1])
		put(v.Normal[2])
		put(v.Texcoord[0])
		put(v.Texcoord[1])
	}
	return out
}

func PackIndices(indices []uint32) []byte {
	out := make([]byte, len(indices)*4)
	for i, idx := range indices {
		binary.LittleEndian.PutUint32(out[i*4:], idx)
	}
	return out
}

func VertexBounds(vertices []Vertex3D) AABB {
	out := EmptyAABB()
	for _, v := range vertices {
		out = out.Extend(v.Position)
	}
	return out
}

// PackMat4 serializes a column-major matrix as 64 little-endian bytes.
func PackMat4(dst []byte, m mgl32.Mat4) {
	for i := 0; i < 16; i++ {
		binary.LittleEndian.PutUint32(dst[i*4:], gomath.Float32bits(m[i]))
	}
}

// PackFloats writes values as consecutive little-endian float32s and
// returns the number of bytes written.
func PackFloats(dst []byte, values ...float32) int {
	for i, f := range values {
		binary.LittleEndian.PutUint32(dst[i*4:], gomath.Float32bits(f))
	}
	return len(values) * 4
}
