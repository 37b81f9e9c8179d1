package scene

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/lumen/engine/resources"
)

// Projector is implemented by the camera components.
type Projector interface {
	Projection() mgl32.Mat4
}

type PerspectiveCamera struct {
	// FovY in degrees.
	FovY   float32
	Aspect float32
	Near   float32
	Far    float32
}

func NewPerspectiveCamera(fovY, aspect, near, far float32) *PerspectiveCamera {
	return &PerspectiveCamera{FovY: fovY, Aspect: aspect, Near: near, Far: far}
}

func (c *PerspectiveCamera) Projection() mgl32.Mat4 {
	return mgl32.Perspective(mgl32.DegToRad(c.FovY), c.Aspect, c.Near, c.Far)
}

type OrthographicCamera struct {
	Left, Right float32
	Bottom, Top float32
	Near, Far   float32
}

func (c *OrthographicCamera) Projection() mgl32.Mat4 {
	return mgl32.Ortho(c.Left, c.Right, c.Bottom, c.Top, c.Near, c.Far)
}

// Mesh makes a node drawable.
type Mesh struct {
	Geometry *resources.Geometry
	Material resources.Material
}

// GetComponent returns the first component of n assignable to T.
func GetComponent[T any](n Node) (T, bool) {
	for _, c := range n.Components() {
		if v, ok := c.(T); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

func HasComponent[T any](n Node) bool {
	_, ok := GetComponent[T](n)
	return ok
}
