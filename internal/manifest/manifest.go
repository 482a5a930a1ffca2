// Package manifest reads and writes Doggo.toml files.
//
// A manifest describes either a package or a workspace. The kind is
// decided by which of the [package] or [workspace] tables the file
// declares; declaring both, or neither, is an error.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/doggo-build/doggo/internal/intern"
)

// FileName is the manifest file looked up in every project directory.
const FileName = "Doggo.toml"

// PackageKind is the kind of artifact a package produces.
type PackageKind int

const (
	Executable PackageKind = iota
	StaticLibrary
	DynamicLibrary
)

var packageKindNames = map[string]PackageKind{
	"executable": Executable,
	"exe":        Executable,

	"static_library": StaticLibrary,
	"staticlib":      StaticLibrary,
	"static":         StaticLibrary,

	"dynamic_library": DynamicLibrary,
	"dynamiclib":      DynamicLibrary,
	"dynamic":         DynamicLibrary,
	"dylib":           DynamicLibrary,
	"so":              DynamicLibrary,
	"dll":             DynamicLibrary,
}

// ParsePackageKind accepts the canonical name of a kind or any of its aliases.
func ParsePackageKind(s string) (PackageKind, error) {
	if k, ok := packageKindNames[s]; ok {
		return k, nil
	}
	return Executable, fmt.Errorf("unknown output kind %q", s)
}

func (k PackageKind) String() string {
	switch k {
	case StaticLibrary:
		return "staticlib"
	case DynamicLibrary:
		return "dynamiclib"
	default:
		return "executable"
	}
}

// IsLibrary reports whether k produces a library.
func (k PackageKind) IsLibrary() bool {
	return k == StaticLibrary || k == DynamicLibrary
}

// Dependency is one entry of the [dependencies] table.
//
// The simple form `name = "1.2"` only sets Version and Simple. The table
// form may set any field.
type Dependency struct {
	Simple    bool
	Version   intern.Ref
	Path      intern.Ref
	Workspace bool
	Features  []intern.Ref
}

// IsLocal reports whether the dependency is satisfied by another package
// on disk, either a workspace member or a path.
func (d *Dependency) IsLocal() bool {
	return d.Workspace || !d.Path.IsZero()
}

func (d *Dependency) release() {
	d.Version.Release()
	d.Path.Release()
	intern.ReleaseAll(d.Features)
}

// Kind is either *PackageManifest or *WorkspaceManifest.
type Kind interface {
	kind() string
}

// PackageManifest is the [package] table.
type PackageManifest struct {
	Name   intern.Ref
	Output PackageKind
	LTO    bool
}

func (*PackageManifest) kind() string { return "package" }

// WorkspaceManifest is the [workspace] table.
type WorkspaceManifest struct {
	Members []intern.Ref
}

func (*WorkspaceManifest) kind() string { return "workspace" }

// KindName returns "package" or "workspace".
func KindName(k Kind) string {
	if k == nil {
		return "none"
	}
	return k.kind()
}

// Manifest is a parsed Doggo.toml.
type Manifest struct {
	Kind         Kind
	Dependencies map[intern.Ref]*Dependency
}

// Package returns the package table if m is a package manifest.
func (m *Manifest) Package() (*PackageManifest, bool) {
	p, ok := m.Kind.(*PackageManifest)
	return p, ok
}

// Workspace returns the workspace table if m is a workspace manifest.
func (m *Manifest) Workspace() (*WorkspaceManifest, bool) {
	w, ok := m.Kind.(*WorkspaceManifest)
	return w, ok
}

// Release releases every interned string held by m.
func (m *Manifest) Release() {
	switch k := m.Kind.(type) {
	case *PackageManifest:
		k.Name.Release()
	case *WorkspaceManifest:
		intern.ReleaseAll(k.Members)
	}
	for name, dep := range m.Dependencies {
		dep.release()
		name.Release()
	}
	m.Kind, m.Dependencies = nil, nil
}

// ParseError reports a manifest that exists but does not conform to the
// schema.
type ParseError struct {
	Path string
	Line int
	Col  int
	Err  error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d:%d: %v", e.Path, e.Line, e.Col, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Load reads the manifest in dir. It returns (nil, nil) if dir has no
// manifest file.
func Load(pool *intern.Pool, dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return Parse(pool, path, data)
}

// Exists reports whether dir contains a manifest file.
func Exists(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, FileName))
	return err == nil && !info.IsDir()
}
