package math

import "github.com/go-gl/mathgl/mgl32"

// Plane is the half-space Normal·p + D >= 0.
type Plane struct {
	Normal mgl32.Vec3
	D      float32
}

func (p Plane) Distance(point mgl32.Vec3) float32 {
	return p.Normal.Dot(point) + p.D
}

func (p Plane) normalized() Plane {
	l := p.Normal.Len()
	if l == 0 {
		return p
	}
	return Plane{Normal: p.Normal.Mul(1 / l), D: p.D / l}
}

const (
	FrustumLeft = iota
	FrustumRight
	FrustumBottom
	FrustumTop
	FrustumNear
	FrustumFar
)

// Frustum holds six inward-facing planes.
type Frustum [6]Plane

// FrustumFromProjection extracts the planes of a projection matrix with a
// [-1, 1] clip depth range (mgl32.Perspective / mgl32.Ortho). The planes live
// in the space the matrix projects from, so passing a camera projection
// yields view-space planes.
func FrustumFromProjection(m mgl32.Mat4) Frustum {
	r0, r1, r2, r3 := m.Row(0), m.Row(1), m.Row(2), m.Row(3)
	mk := func(v mgl32.Vec4) Plane {
		return Plane{Normal: v.Vec3(), D: v.W()}.normalized()
	}
	var f Frustum
	f[FrustumLeft] = mk(r3.Add(r0))
	f[FrustumRight] = mk(r3.Sub(r0))
	f[FrustumBottom] = mk(r3.Add(r1))
	f[FrustumTop] = mk(r3.Sub(r1))
	f[FrustumNear] = mk(r3.Add(r2))
	f[FrustumFar] = mk(r3.Sub(r2))
	return f
}

// IntersectsAABB reports whether any part of box is on the inner side of
// every plane. A box entirely behind a single plane is rejected.
func (f Frustum) IntersectsAABB(box AABB) bool {
	for _, p := range f {
		// Farthest corner along the plane normal.
		var positive mgl32.Vec3
		for i := 0; i < 3; i++ {
			if p.Normal[i] >= 0 {
				positive[i] = box.Max[i]
			} else {
				positive[i] = box.Min[i]
			}
		}
		if p.Distance(positive) < 0 {
			return false
		}
	}
	return true
}
