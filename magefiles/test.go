//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

type Test mg.Namespace

// Runs the unit tests. Tests that need a Vulkan driver skip themselves.
func (Test) Unit() error {
	if _, err := executeCmd("go", withArgs("test", "-race", "./..."), withStream()); err != nil {
		return err
	}
	return nil
}

// Runs the unit tests without cgo, which leaves only the soft backend.
func (Test) Soft() error {
	pkgs := []string{"./engine/core/...", "./engine/gal", "./engine/gal/soft", "./engine/systems/...",
		"./engine/renderer/...", "./engine/resources/...", "./engine/scene/...", "./engine/shader/...",
		"./engine/config/...", "./engine/math/...", "./engine/containers/..."}
	args := append([]string{"test"}, pkgs...)
	if _, err := executeCmd("go", withArgs(args...), withEnv("CGO_ENABLED=0"), withStream()); err != nil {
		return err
	}
	return nil
}
