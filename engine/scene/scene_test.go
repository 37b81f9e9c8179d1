package scene

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransformHierarchy(t *testing.T) {
	parent := NewNode("parent")
	child := NewNode("child")
	parent.Add(child)

	parent.Transform().Position = mgl32.Vec3{1, 0, 0}
	parent.Transform().Scale = mgl32.Vec3{2, 2, 2}
	child.Transform().Position = mgl32.Vec3{0, 1, 0}

	parent.Transform().UpdateLocal()
	parent.Transform().UpdateWorld(nil)
	child.Transform().UpdateLocal()
	child.Transform().UpdateWorld(parent.Transform())

	assert.True(t, child.Transform().WorldPosition().ApproxEqual(mgl32.Vec3{1, 2, 0}))
	assert.Same(t, parent, child.Parent())
	assert.Nil(t, parent.Parent())
}

// assertVec3 compares per component with an absolute tolerance;
// ApproxEqualThreshold is relative and fails on tiny residues around zero.
func assertVec3(t *testing.T, want, got mgl32.Vec3) {
	t.Helper()
	for i := range want {
		assert.InDelta(t, want[i], got[i], 1e-5, "component %d of %v", i, got)
	}
}

func TestLookAt(t *testing.T) {
	tr := NewTransform()
	tr.Position = mgl32.Vec3{0, 0, 5}
	tr.LookAt(mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 1, 0})
	assertVec3(t, mgl32.Vec3{0, 0, -1}, tr.Forward())

	tr.LookAt(mgl32.Vec3{5, 0, 5}, mgl32.Vec3{0, 1, 0})
	assertVec3(t, mgl32.Vec3{1, 0, 0}, tr.Forward())
	assertVec3(t, mgl32.Vec3{0, 1, 0}, tr.Up())
	assertVec3(t, mgl32.Vec3{0, 0, 1}, tr.Right())

	tr.Position = mgl32.Vec3{0, 3, 8}
	tr.LookAt(mgl32.Vec3{}, mgl32.Vec3{0, 1, 0})
	assertVec3(t, mgl32.Vec3{0, -3, -8}.Normalize(), tr.Forward())
	assert.InDelta(t, 1, tr.Rotation.Len(), 1e-5)

	// the view matrix of the oriented transform matches LookAtV
	tr.UpdateLocal()
	want := mgl32.LookAtV(tr.Position, mgl32.Vec3{}, mgl32.Vec3{0, 1, 0})
	got := tr.Local.Inv()
	for i := range want {
		assert.InDelta(t, want[i], got[i], 1e-4, "element %d", i)
	}

	// degenerate inputs leave the rotation alone
	before := tr.Rotation
	tr.LookAt(tr.Position, mgl32.Vec3{0, 1, 0})
	tr.LookAt(mgl32.Vec3{0, 10, 8}, mgl32.Vec3{0, 1, 0})
	assert.Equal(t, before, tr.Rotation)
}

func TestComponents(t *testing.T) {
	cam := NewPerspectiveCamera(60, 1, 0.1, 100)
	n := NewNode("camera", cam)

	got, ok := GetComponent[*PerspectiveCamera](n)
	require.True(t, ok)
	assert.Same(t, cam, got)

	p, ok := GetComponent[Projector](n)
	require.True(t, ok)
	assert.Equal(t, cam.Projection(), p.Projection())

	assert.False(t, HasComponent[*Mesh](n))
	n.AddComponent(&Mesh{})
	assert.True(t, HasComponent[*Mesh](n))
}

func TestReleaseSubtree(t *testing.T) {
	root := NewNode("root")
	a := NewNode("a")
	b := NewNode("b")
	root.Add(a)
	a.Add(b)

	var order []string
	a.OnRelease(func() { order = append(order, "a") })
	b.OnRelease(func() { order = append(order, "b") })

	a.Release()
	assert.Equal(t, []string{"b", "a"}, order)
	assert.Empty(t, root.Children())
	assert.True(t, b.Released())
}

func TestWalkSkipsSubtree(t *testing.T) {
	root := NewNode("root")
	hidden := NewNode("hidden")
	hidden.SetVisible(false)
	root.Add(hidden)
	hidden.Add(NewNode("inner"))
	root.Add(NewNode("shown"))

	var seen []string
	Walk(root, func(n Node) bool {
		seen = append(seen, n.Name())
		return n.Visible()
	})
	assert.Equal(t, []string{"root", "hidden", "shown"}, seen)
}
