package systems

import (
	"image/color"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/lumen/engine/gal"
	"github.com/spaghettifunk/lumen/engine/gal/soft"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/resources"
	"github.com/spaghettifunk/lumen/engine/scene"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func meshNode(t *testing.T, name string, m resources.Material) (*scene.BasicNode, *scene.Mesh) {
	t.Helper()
	g, err := resources.NewCubeGeometry(name+".geometry", 1, 1, 1)
	require.NoError(t, err)
	mesh := &scene.Mesh{Geometry: g, Material: m}
	return scene.NewNode(name, mesh), mesh
}

func (e *env) object(t *testing.T, node scene.Node, mesh *scene.Mesh) *ObjectEntry {
	t.Helper()
	var entry *ObjectEntry
	e.frame(t, func(*soft.CommandBuffer) {
		var err error
		entry, err = e.objects.Get(node, mesh)
		require.NoError(t, err)
	})
	return entry
}

func bound(t *testing.T, entry *ObjectEntry, binding uint32) gal.BindGroupEntry {
	t.Helper()
	b, ok := entry.BindGroup.(*soft.BindGroup).Bound(binding)
	require.True(t, ok, "binding %d", binding)
	return b
}

func TestObjectEntryBindsCameraAndTransform(t *testing.T) {
	e := newEnv(t)
	node, mesh := meshNode(t, "cube", resources.NewUnlitMaterial("m", mgl32.Vec4{1, 1, 1, 1}))
	entry := e.object(t, node, mesh)

	assert.Same(t, e.camera, bound(t, entry, BindingCamera).Buffer)
	assert.Same(t, entry.Transform, bound(t, entry, BindingObject).Buffer)
	assert.True(t, entry.Valid())
	assert.NotNil(t, entry.Pipeline)
}

func TestObjectTransformUploadedOnlyOnChange(t *testing.T) {
	e := newEnv(t)
	node, mesh := meshNode(t, "cube", resources.NewUnlitMaterial("m", mgl32.Vec4{1, 1, 1, 1}))
	e.object(t, node, mesh)
	writes := e.device.Stats().BufferWrites

	e.object(t, node, mesh)
	assert.Equal(t, writes, e.device.Stats().BufferWrites)

	node.Transform().World = mgl32.Translate3D(1, 2, 3)
	entry := e.object(t, node, mesh)
	assert.Equal(t, writes+1, e.device.Stats().BufferWrites)

	expected := make([]byte, 64)
	math.PackMat4(expected, mgl32.Translate3D(1, 2, 3))
	assert.Equal(t, expected, entry.Transform.(*soft.Buffer).Bytes()[:64])
}

func TestObjectEmptySlotsUseDefaultTexture(t *testing.T) {
	e := newEnv(t)
	m := resources.NewStandardMaterial("m", mgl32.Vec4{1, 1, 1, 1})
	tex := resources.NewSolidTexture("albedo", 4, 4, color.RGBA{255, 0, 0, 255})
	m.SetColorMap(tex)
	node, mesh := meshNode(t, "cube", m)
	entry := e.object(t, node, mesh)
	requireNoValidationErrors(t, e.device)

	def, ok := e.textures.entries[e.objects.DefaultTexture().Handle()]
	require.True(t, ok)
	albedo := e.textures.entries[tex.Handle()]

	assert.Same(t, albedo.Texture, bound(t, entry, BindingTextures).Texture)
	assert.Same(t, albedo.Sampler, bound(t, entry, BindingSamplers).Sampler)
	for slot := uint32(1); slot < resources.MaxTextureSlots; slot++ {
		assert.Same(t, def.Texture, bound(t, entry, BindingTextures+slot).Texture, "slot %d", slot)
	}

	// clearing a slot resets it explicitly instead of leaving the old texture bound
	m.SetColorMap(nil)
	writes := e.device.Stats().BindGroupWrites
	entry = e.object(t, node, mesh)
	assert.Same(t, def.Texture, bound(t, entry, BindingTextures).Texture)
	assert.Equal(t, writes+1, e.device.Stats().BindGroupWrites)

	// nothing changed, nothing written
	e.object(t, node, mesh)
	assert.Equal(t, writes+1, e.device.Stats().BindGroupWrites)
}

func TestObjectMaterialUniformsCachedPerMaterial(t *testing.T) {
	e := newEnv(t)
	m := resources.NewUnlitMaterial("shared", mgl32.Vec4{1, 0, 0, 1})
	a, meshA := meshNode(t, "a", m)
	b, meshB := meshNode(t, "b", m)

	ea := e.object(t, a, meshA)
	eb := e.object(t, b, meshB)
	buf := bound(t, ea, BindingMaterial).Buffer
	assert.Same(t, buf, bound(t, eb, BindingMaterial).Buffer)

	m.SetColor(mgl32.Vec4{0, 1, 0, 1})
	e.object(t, a, meshA)
	assert.Same(t, buf, bound(t, ea, BindingMaterial).Buffer, "same size updates in place")
	assert.Equal(t, m.UniformBytes(), buf.(*soft.Buffer).Bytes())
}

func TestObjectPipelineBuiltOnce(t *testing.T) {
	e := newEnv(t)
	m := resources.NewStandardMaterial("m", mgl32.Vec4{1, 1, 1, 1})
	node, mesh := meshNode(t, "cube", m)
	entry := e.object(t, node, mesh)
	pipeline := entry.Pipeline

	require.NoError(t, m.SetOption("FLAT_SHADING", true))
	entry = e.object(t, node, mesh)
	assert.Same(t, pipeline, entry.Pipeline)
	assert.Equal(t, 1, e.objects.PipelinesBuilt())
	assert.Equal(t, 1, e.programs.Len(), "options changed after the pipeline was built")

	desc := pipeline.(*soft.GraphicsPipeline).Descriptor()
	assert.Equal(t, mesh.Geometry.VertexLayouts(), desc.VertexBuffers)
	assert.True(t, desc.DepthStencil.DepthWrite)
	assert.False(t, desc.BlendEnabled)
}

func TestObjectReleaseDropsEntry(t *testing.T) {
	e := newEnv(t)
	node, mesh := meshNode(t, "cube", resources.NewUnlitMaterial("m", mgl32.Vec4{1, 1, 1, 1}))
	entry := e.object(t, node, mesh)

	node.Release()
	_, ok := e.objects.Lookup(node)
	assert.False(t, ok)
	assert.Zero(t, e.device.Stats().PipelinesDestroyed)

	e.frame(t, func(*soft.CommandBuffer) {})
	assert.Equal(t, 1, e.device.Stats().PipelinesDestroyed)
	assert.True(t, entry.Transform.(*soft.Buffer).Destroyed())
}
