// Package shader turns material shader sources into SPIR-V.
package shader

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/gogpu/naga"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/gal"
)

// Compiler produces SPIR-V for one stage of a source with the given macro
// names defined.
type Compiler interface {
	Language() gal.ShaderLanguage
	Compile(source string, stage gal.ShaderStage, defines []string) ([]byte, error)
}

// EntryPoint is the function name each stage starts at for a language.
func EntryPoint(lang gal.ShaderLanguage, stage gal.ShaderStage) string {
	if lang == gal.ShaderLanguageGLSL {
		return "main"
	}
	if stage == gal.ShaderStageVertex {
		return "vs_main"
	}
	return "fs_main"
}

// NagaCompiler compiles WGSL in process. naga has no preprocessor, so the
// defines are resolved by Preprocess first.
type NagaCompiler struct{}

func NewNagaCompiler() *NagaCompiler {
	return &NagaCompiler{}
}

func (c *NagaCompiler) Language() gal.ShaderLanguage {
	return gal.ShaderLanguageWGSL
}

func (c *NagaCompiler) Compile(source string, stage gal.ShaderStage, defines []string) ([]byte, error) {
	src, err := Preprocess(source, defines)
	if err != nil {
		return nil, fmt.Errorf("preprocess %s stage %v: %w", stage, defines, err)
	}
	spirv, err := naga.Compile(src)
	if err != nil {
		return nil, fmt.Errorf("naga %s stage %v: %s: %w", stage, defines, err, core.ErrShaderCompile)
	}
	return spirv, nil
}

// GLSLCompiler runs glslc, which understands -D natively.
type GLSLCompiler struct {
	path    string
	timeout time.Duration
}

func NewGLSLCompiler(path string) (*GLSLCompiler, error) {
	if path == "" {
		path = "glslc"
	}
	resolved, err := exec.LookPath(path)
	if err != nil {
		err = fmt.Errorf("glslc not found at '%s': %w", path, err)
		core.LogError("%s", err)
		return nil, err
	}
	return &GLSLCompiler{path: resolved, timeout: 30 * time.Second}, nil
}

func (c *GLSLCompiler) Language() gal.ShaderLanguage {
	return gal.ShaderLanguageGLSL
}

func (c *GLSLCompiler) Compile(source string, stage gal.ShaderStage, defines []string) ([]byte, error) {
	args := []string{"-fshader-stage=" + glslStage(stage), "--target-env=vulkan1.1"}
	for _, d := range defines {
		args = append(args, "-D"+d)
	}
	args = append(args, "-o", "-", "-")

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.path, args...)
	cmd.Stdin = strings.NewReader(source)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	core.LogDebug("Executing: %s %s", c.path, strings.Join(args, " "))
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("glslc %s stage %v: %s: %w", stage, defines, strings.TrimSpace(stderr.String()), core.ErrShaderCompile)
	}
	return stdout.Bytes(), nil
}

func glslStage(stage gal.ShaderStage) string {
	if stage == gal.ShaderStageVertex {
		return "vert"
	}
	return "frag"
}
