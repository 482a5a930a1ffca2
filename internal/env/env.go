// Package env resolves settings that can be overridden from the
// environment.
package env

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/doggo-build/doggo/internal/toolchain"
)

// Environment variables read by doggo.
const (
	BuildDirVar = "DOGGO_BUILD_DIR"
	TargetVar   = "DOGGO_TARGET"
	JobsVar     = "DOGGO_JOBS"
)

// BuildRoot returns the directory holding the build directories of the
// workspace at root. A relative DOGGO_BUILD_DIR is taken relative to root.
func BuildRoot(root string) string {
	dir := os.Getenv(BuildDirVar)
	if dir == "" {
		return filepath.Join(root, "build")
	}
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(root, dir)
	}
	return dir
}

// BuildDir returns the build directory of profile.
func BuildDir(root, profile string) string {
	return filepath.Join(BuildRoot(root), profile)
}

// Target returns the target triple: DOGGO_TARGET if set, else the host.
func Target() string {
	if t := os.Getenv(TargetVar); t != "" {
		return t
	}
	return toolchain.HostTriple()
}

// Jobs returns the number of parallel compile jobs: DOGGO_JOBS if set, else
// the number of CPUs.
func Jobs() (int, error) {
	v := os.Getenv(JobsVar)
	if v == "" {
		return runtime.NumCPU(), nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%s=%q: must be a positive integer", JobsVar, v)
	}
	return n, nil
}
