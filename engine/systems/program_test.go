package systems

import (
	"image/color"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/resources"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgramSharedByTypeAndOptions(t *testing.T) {
	e := newEnv(t)
	a := resources.NewStandardMaterial("a", mgl32.Vec4{1, 0, 0, 1})
	b := resources.NewStandardMaterial("b", mgl32.Vec4{0, 1, 0, 1})

	pa, err := e.programs.Get(a)
	require.NoError(t, err)

	// texture slots are not part of the key
	require.NoError(t, b.SetTexture(resources.SlotColorMap, resources.NewSolidTexture("t", 1, 1, color.RGBA{})))
	pb, err := e.programs.Get(b)
	require.NoError(t, err)

	assert.Same(t, pa, pb)
	assert.Equal(t, 1, e.programs.Len())
	assert.Equal(t, 2, e.compiler.calls)
	assert.Equal(t, 2, e.device.Stats().ShaderModulesCreated)
}

func TestProgramKeyedByOptionsAndType(t *testing.T) {
	e := newEnv(t)
	plain := resources.NewStandardMaterial("plain", mgl32.Vec4{1, 1, 1, 1})
	flat := resources.NewStandardMaterial("flat", mgl32.Vec4{1, 1, 1, 1})
	require.NoError(t, flat.SetOption("FLAT_SHADING", true))
	unlit := resources.NewUnlitMaterial("unlit", mgl32.Vec4{1, 1, 1, 1})

	p1, err := e.programs.Get(plain)
	require.NoError(t, err)
	p2, err := e.programs.Get(flat)
	require.NoError(t, err)
	p3, err := e.programs.Get(unlit)
	require.NoError(t, err)

	assert.NotSame(t, p1, p2)
	assert.NotSame(t, p1, p3)
	assert.Equal(t, []string{"FLAT_SHADING"}, p2.Defines)
	assert.Equal(t, 3, e.programs.Len())
}

func TestProgramCompileFailureStoresNothing(t *testing.T) {
	e := newEnv(t)
	e.compiler.failFor = "ALPHA_TEST"
	m := resources.NewUnlitMaterial("cutout", mgl32.Vec4{1, 1, 1, 1})
	require.NoError(t, m.SetOption("ALPHA_TEST", true))

	_, err := e.programs.Get(m)
	assert.ErrorIs(t, err, core.ErrShaderCompile)
	assert.Zero(t, e.programs.Len())

	_, err = e.programs.Get(m)
	assert.Error(t, err)
	assert.Equal(t, 2, e.compiler.calls, "failures are retried, not cached")
}
