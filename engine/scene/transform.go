package scene

import (
	gomath "math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/lumen/engine/math"
)

// Transform places a node relative to its parent. When AutoUpdate is set
// the renderer rebuilds Local from Position/Rotation/Scale and World from
// the parent chain every frame; otherwise Local and World are left as the
// caller wrote them.
type Transform struct {
	Position mgl32.Vec3
	Rotation mgl32.Quat
	Scale    mgl32.Vec3

	Local mgl32.Mat4
	World mgl32.Mat4

	AutoUpdate bool
}

func NewTransform() *Transform {
	return &Transform{
		Rotation:   mgl32.QuatIdent(),
		Scale:      mgl32.Vec3{1, 1, 1},
		Local:      mgl32.Ident4(),
		World:      mgl32.Ident4(),
		AutoUpdate: true,
	}
}

// UpdateLocal composes translation * rotation * scale.
func (t *Transform) UpdateLocal() {
	t.Local = mgl32.Translate3D(t.Position[0], t.Position[1], t.Position[2]).
		Mul4(t.Rotation.Mat4()).
		Mul4(mgl32.Scale3D(t.Scale[0], t.Scale[1], t.Scale[2]))
}

// UpdateWorld sets World from the parent's world matrix; a nil parent makes
// World equal Local.
func (t *Transform) UpdateWorld(parent *Transform) {
	if parent == nil {
		t.World = t.Local
		return
	}
	t.World = parent.World.Mul4(t.Local)
}

// WorldPosition is the translation column of World.
func (t *Transform) WorldPosition() mgl32.Vec3 {
	return t.World.Col(3).Vec3()
}

func (t *Transform) Forward() mgl32.Vec3 {
	return t.Rotation.Rotate(mgl32.Vec3{0, 0, -1})
}

func (t *Transform) Right() mgl32.Vec3 {
	return t.Rotation.Rotate(mgl32.Vec3{1, 0, 0})
}

func (t *Transform) Up() mgl32.Vec3 {
	return t.Rotation.Rotate(mgl32.Vec3{0, 1, 0})
}

// LookAt orients the transform so Forward points at target.
func (t *Transform) LookAt(target, up mgl32.Vec3) {
	dir := target.Sub(t.Position)
	if dir.Len() == 0 {
		return
	}
	f := dir.Normalize()
	r := f.Cross(up)
	if r.Len() == 0 {
		return
	}
	r = r.Normalize()
	u := r.Cross(f)
	basis := mgl32.Mat4FromCols(r.Vec4(0), u.Vec4(0), f.Mul(-1).Vec4(0), mgl32.Vec4{0, 0, 0, 1})
	t.Rotation = mgl32.Mat4ToQuat(basis).Normalize()
}

func (t *Transform) MoveForward(amount float32) {
	t.Position = t.Position.Add(t.Forward().Mul(amount))
}

func (t *Transform) MoveRight(amount float32) {
	t.Position = t.Position.Add(t.Right().Mul(amount))
}

func (t *Transform) MoveUp(amount float32) {
	t.Position = t.Position.Add(mgl32.Vec3{0, amount, 0})
}

func (t *Transform) Yaw(radians float32) {
	t.Rotation = mgl32.QuatRotate(radians, mgl32.Vec3{0, 1, 0}).Mul(t.Rotation)
}

// Pitch rotates around the local right axis, clamped short of straight
// up or down to avoid gimbal lock.
func (t *Transform) Pitch(radians float32) {
	limit := float32(1.55334306) // 89 degrees
	current := float32(0)
	f := t.Forward()
	if f.Len() > 0 {
		current = float32(gomath.Asin(float64(math.Clamp(f[1], -1, 1))))
	}
	target := math.Clamp(current+radians, -limit, limit)
	t.Rotation = t.Rotation.Mul(mgl32.QuatRotate(target-current, mgl32.Vec3{1, 0, 0}))
}
