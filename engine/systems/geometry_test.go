package systems

import (
	"testing"

	"github.com/spaghettifunk/lumen/engine/gal/soft"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/resources"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeometryGetTwiceDoesNoDeviceWork(t *testing.T) {
	e := newEnv(t)
	g, err := resources.NewCubeGeometry("cube", 1, 1, 1)
	require.NoError(t, err)

	first, err := e.geometry.Get(g)
	require.NoError(t, err)
	before := e.device.Stats()

	second, err := e.geometry.Get(g)
	require.NoError(t, err)
	assert.Equal(t, before, e.device.Stats())
	assert.Same(t, first.Index, second.Index)
	assert.Equal(t, uint32(36), second.IndexCount)
	assert.Len(t, second.Vertex, 1)
}

func TestGeometryRoundTrip(t *testing.T) {
	e := newEnv(t)
	g, err := resources.NewCubeGeometry("cube", 2, 3, 4)
	require.NoError(t, err)

	bufs, err := e.geometry.Get(g)
	require.NoError(t, err)

	vertices, err := e.geometry.Readback(bufs.Vertex[0])
	require.NoError(t, err)
	assert.Equal(t, g.VertexBuffers()[0].Data(), vertices)

	indices, err := e.geometry.Readback(bufs.Index)
	require.NoError(t, err)
	assert.Equal(t, g.IndexBuffer().Data(), indices)
}

func TestGeometryInPlaceUpdateKeepsIdentity(t *testing.T) {
	e := newEnv(t)
	g, err := resources.NewCubeGeometry("cube", 1, 1, 1)
	require.NoError(t, err)
	bufs, err := e.geometry.Get(g)
	require.NoError(t, err)
	vertex := bufs.Vertex[0]
	created := e.device.Stats().BuffersCreated

	moved, _ := math.GenerateCube(2, 2, 2)
	g.VertexBuffers()[0].SetData(math.PackVertices(moved))

	bufs, err = e.geometry.Get(g)
	require.NoError(t, err)
	assert.Same(t, vertex, bufs.Vertex[0])
	assert.Equal(t, created, e.device.Stats().BuffersCreated)

	got, err := e.geometry.Readback(bufs.Vertex[0])
	require.NoError(t, err)
	assert.Equal(t, math.PackVertices(moved), got)
}

func TestGeometryResizeRecreates(t *testing.T) {
	e := newEnv(t)
	g, err := resources.NewCubeGeometry("cube", 1, 1, 1)
	require.NoError(t, err)
	bufs, err := e.geometry.Get(g)
	require.NoError(t, err)
	old := bufs.Vertex[0]

	plane, _ := math.GeneratePlane(1, 1)
	g.VertexBuffers()[0].SetData(math.PackVertices(plane))
	bufs, err = e.geometry.Get(g)
	require.NoError(t, err)
	assert.NotSame(t, old, bufs.Vertex[0])
	assert.Equal(t, len(plane)*math.Vertex3DStride, bufs.Vertex[0].Size())

	assert.False(t, old.(*soft.Buffer).Destroyed(), "destruction waits for the frame fence")
	e.release.Flush()
	assert.True(t, old.(*soft.Buffer).Destroyed())
}

func TestGeometrySharedBuffersAreRefcounted(t *testing.T) {
	e := newEnv(t)
	a, err := resources.NewCubeGeometry("a", 1, 1, 1)
	require.NoError(t, err)
	b, err := resources.NewGeometry("b", a.IndexBuffer(), a.Bounds(), a.VertexBuffers()...)
	require.NoError(t, err)

	ba, err := e.geometry.Get(a)
	require.NoError(t, err)
	bb, err := e.geometry.Get(b)
	require.NoError(t, err)
	assert.Same(t, ba.Vertex[0], bb.Vertex[0])
	assert.Equal(t, 2, e.geometry.BufferCount())
	// the camera buffer plus one index and one vertex buffer
	assert.Equal(t, 3, e.device.Stats().BuffersCreated)

	shared := ba.Vertex[0].(*soft.Buffer)
	a.Release()
	e.release.Flush()
	assert.False(t, e.geometry.Has(a))
	assert.False(t, shared.Destroyed())

	b.Release()
	e.release.Flush()
	assert.Zero(t, e.geometry.Len())
	assert.Zero(t, e.geometry.BufferCount())
	assert.True(t, shared.Destroyed())
}

func TestGeometryBufferObjectReleaseDropsEntry(t *testing.T) {
	e := newEnv(t)
	g, err := resources.NewCubeGeometry("cube", 1, 1, 1)
	require.NoError(t, err)
	bufs, err := e.geometry.Get(g)
	require.NoError(t, err)

	g.IndexBuffer().Release()
	assert.Equal(t, 1, e.geometry.BufferCount())
	e.release.Flush()
	assert.True(t, bufs.Index.(*soft.Buffer).Destroyed())
}

func TestGeometrySwapBuffers(t *testing.T) {
	e := newEnv(t)
	g, err := resources.NewCubeGeometry("cube", 1, 1, 1)
	require.NoError(t, err)
	_, err = e.geometry.Get(g)
	require.NoError(t, err)

	plane, err := resources.NewPlaneGeometry("plane", 1, 1)
	require.NoError(t, err)
	g.SetBuffers(plane.IndexBuffer(), plane.VertexBuffers()...)

	bufs, err := e.geometry.Get(g)
	require.NoError(t, err)
	assert.Equal(t, uint32(6), bufs.IndexCount)
	assert.Equal(t, 2, e.geometry.BufferCount(), "cube buffers dropped once unreferenced")
}
