package shader

import (
	"strings"
	"testing"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/gal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const source = `a
#ifdef USE_MAP
map
#ifndef ALPHA_TEST
opaque
#else
cutout
#endif
#else
nomap
#endif
z`

func lines(s string) []string {
	var out []string
	for _, l := range strings.Split(s, "\n") {
		if l != "" {
			out = append(out, l)
		}
	}
	return out
}

func TestPreprocessBranches(t *testing.T) {
	cases := []struct {
		defines []string
		want    []string
	}{
		{nil, []string{"a", "nomap", "z"}},
		{[]string{"USE_MAP"}, []string{"a", "map", "opaque", "z"}},
		{[]string{"USE_MAP", "ALPHA_TEST"}, []string{"a", "map", "cutout", "z"}},
		{[]string{"ALPHA_TEST"}, []string{"a", "nomap", "z"}},
	}
	for _, c := range cases {
		out, err := Preprocess(source, c.defines)
		require.NoError(t, err)
		assert.Equal(t, c.want, lines(out), "defines %v", c.defines)
	}
}

func TestPreprocessKeepsLineNumbers(t *testing.T) {
	out, err := Preprocess(source, nil)
	require.NoError(t, err)
	assert.Equal(t, strings.Count(source, "\n")+1, strings.Count(out, "\n"))
}

func TestPreprocessDefineAndVersion(t *testing.T) {
	src := "#version 450\n#define FOO 1\n#ifdef FOO\nfoo\n#endif\n#undef FOO\n#ifdef FOO\nbar\n#endif\n"
	out, err := Preprocess(src, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"#version 450", "foo"}, lines(out))
}

func TestPreprocessUnbalanced(t *testing.T) {
	_, err := Preprocess("#ifdef A\nx\n", nil)
	assert.ErrorIs(t, err, core.ErrShaderCompile)
	_, err = Preprocess("#endif\n", nil)
	assert.ErrorIs(t, err, core.ErrShaderCompile)
	_, err = Preprocess("#else\n", nil)
	assert.ErrorIs(t, err, core.ErrShaderCompile)
}

func TestEntryPoints(t *testing.T) {
	assert.Equal(t, "vs_main", EntryPoint(gal.ShaderLanguageWGSL, gal.ShaderStageVertex))
	assert.Equal(t, "fs_main", EntryPoint(gal.ShaderLanguageWGSL, gal.ShaderStageFragment))
	assert.Equal(t, "main", EntryPoint(gal.ShaderLanguageGLSL, gal.ShaderStageFragment))
}
