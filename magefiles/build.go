//go:build mage

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

const shaderDir = "engine/resources/shaders"

// Validates every GLSL shader with glslc, with and without each map define.
func (Build) Shaders() error {
	if err := requireTool("glslc", "install the Vulkan SDK or shaderc"); err != nil {
		return err
	}
	out, err := os.MkdirTemp("", "lumen-spv")
	if err != nil {
		return err
	}
	defer os.RemoveAll(out)

	sources, err := filepath.Glob(filepath.Join(shaderDir, "*.*"))
	if err != nil {
		return err
	}
	for _, src := range sources {
		ext := filepath.Ext(src)
		if ext != ".vert" && ext != ".frag" {
			continue
		}
		for i, defines := range [][]string{nil, {"-DUSE_MAP"}, {"-DUSE_MAP", "-DUSE_EMISSIVE_MAP"}} {
			spv := filepath.Join(out, fmt.Sprintf("%s.%d.spv", filepath.Base(src), i))
			args := append(append([]string{}, defines...), src, "-o", spv)
			if _, err := executeCmd("glslc", withArgs(args...), withStream()); err != nil {
				return err
			}
		}
	}
	return nil
}

// Runs go mod download and then builds the testbed binary.
func (Build) Binary() error {
	if err := goTidy(); err != nil {
		return err
	}
	if _, err := executeCmd("go", withArgs("build", "-o", "bin/lumen", "."), withStream()); err != nil {
		return err
	}
	return nil
}
