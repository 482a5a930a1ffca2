package build

import (
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/doggo-build/doggo/internal/toolchain"
)

// Package build directory layout:
//
//	buildDir/
//	  <artifact>                 # libname.a, name, name.exe, ...
//	  <package>.objs/
//	    .doggo-stamp.json        # options and objects of the last build
//	    <src-relative path>.o    # one object per translation unit
//	    <src-relative path>.d    # its dependency file
//
// Object directories carry a suffix so they never collide with an
// executable, which is named after its package on Unix targets.
const (
	stampFile    = ".doggo-stamp.json"
	objDirSuffix = ".objs"
)

// buildStamp records how a package was last built successfully.
type buildStamp struct {
	Options   toolchain.ExtraCompileOptions `json:"options"`
	Defines   []string                      `json:"defines"`
	Objects   []string                      `json:"objects"`
	BuildTime time.Time                     `json:"build_time"`
}

// sameOptions reports whether objects built under s can be reused with
// opts and defines.
func (s *buildStamp) sameOptions(opts toolchain.ExtraCompileOptions, defines []string) bool {
	return s != nil && s.Options == opts && slices.Equal(s.Defines, defines)
}

func loadStamp(dir string) (*buildStamp, error) {
	data, err := os.ReadFile(filepath.Join(dir, stampFile))
	if err != nil {
		return nil, err
	}
	var s buildStamp
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func saveStamp(dir string, s *buildStamp) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, stampFile), data, 0o644)
}
