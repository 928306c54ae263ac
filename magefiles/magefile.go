//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

// Default target when mage runs without arguments.
var Default = Test

// goffi, used by the wgpu HAL, only builds with cgo disabled.
const noCgo = "CGO_ENABLED=0"

// racePackages do not depend on the HAL and can run with the race detector.
var racePackages = []string{".", "./internal/scheduler"}

// Build compiles every package and the shaderkitc command.
func Build() error {
	if _, err := executeCmd("go", withArgs("build", "./..."), withEnv(noCgo), withStream()); err != nil {
		return err
	}
	_, err := executeCmd("go", withArgs("build", "-o", "bin/shaderkitc", "./cmd/shaderkitc"), withEnv(noCgo), withStream())
	return err
}

// Test runs every test, then the HAL-free packages again under the race
// detector.
func Test() error {
	mg.SerialDeps(TestAll, TestRace)
	return nil
}

// TestAll runs the tests of every package with cgo disabled.
func TestAll() error {
	_, err := executeCmd("go", withArgs("test", "-count=1", "./..."), withEnv(noCgo), withStream())
	return err
}

// TestRace runs the scheduler and core tests with the race detector.
func TestRace() error {
	args := append([]string{"test", "-race", "-count=1"}, racePackages...)
	_, err := executeCmd("go", withArgs(args...), withEnv("CGO_ENABLED=1"), withStream())
	return err
}

// Vet runs go vet.
func Vet() error {
	_, err := executeCmd("go", withArgs("vet", "./..."), withEnv(noCgo), withStream())
	return err
}

// Validate builds the example manifest with shaderkitc.
func Validate() error {
	mg.Deps(Build)
	_, err := executeCmd("bin/shaderkitc", withArgs("internal/manifest/testdata/webgpu.toml"), withStream())
	return err
}

// CI runs vet, the tests and manifest validation.
func CI() {
	mg.SerialDeps(Vet, Test, Validate)
}
