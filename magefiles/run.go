//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Runs the testbed on the soft device for a few frames.
func (Run) Demo() error {
	fmt.Println("Run demo...")
	if _, err := executeCmd("go", withArgs("run", ".", "-frames", "120"), withStream()); err != nil {
		return err
	}
	return nil
}

// Runs the testbed with the config in lumen.toml, until interrupted.
func (Run) Engine() error {
	mg.Deps(Build.Shaders)
	fmt.Println("Run engine...")
	if _, err := executeCmd("go", withArgs("run", ".", "-config", "lumen.toml"), withStream()); err != nil {
		return err
	}
	return nil
}
