// Package project resolves packages and workspaces from Doggo.toml files.
package project

import (
	"fmt"
	"path/filepath"

	"github.com/doggo-build/doggo/internal/intern"
	"github.com/doggo-build/doggo/internal/manifest"
)

// Package is a package manifest loaded at a concrete directory.
type Package struct {
	Name         intern.Ref
	Path         intern.Ref // absolute, symlinks resolved
	Dependencies map[intern.Ref]*manifest.Dependency
	Output       manifest.PackageKind
	LTO          bool

	manifest *manifest.Manifest
}

// Dir returns the package directory.
func (p *Package) Dir() string { return p.Path.String() }

// SourceDir returns the directory holding the package sources.
func (p *Package) SourceDir() string { return filepath.Join(p.Dir(), "src") }

// IncludeDir returns the public header directory of the package.
func (p *Package) IncludeDir() string { return filepath.Join(p.Dir(), "include") }

// Release releases the strings held by p.
func (p *Package) Release() {
	p.Path.Release()
	p.Path = intern.Ref{}
	if p.manifest != nil {
		p.manifest.Release()
		p.manifest = nil
	}
}

// LoadPackage loads the package manifest in dir.
func LoadPackage(pool *intern.Pool, dir string) (*Package, error) {
	dir, err := canonical(dir)
	if err != nil {
		return nil, err
	}
	m, err := manifest.Load(pool, dir)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, &ResolveError{Err: ErrPackageNotFound, Path: dir}
	}
	return newPackage(pool, dir, m)
}

func newPackage(pool *intern.Pool, dir string, m *manifest.Manifest) (*Package, error) {
	pm, ok := m.Package()
	if !ok {
		kind := manifest.KindName(m.Kind)
		m.Release()
		return nil, &ResolveError{
			Err:    ErrKindMismatch,
			Path:   dir,
			Detail: fmt.Sprintf("expected a package manifest, found a %s", kind),
		}
	}
	return &Package{
		Name:         pm.Name,
		Path:         pool.Acquire(dir),
		Dependencies: m.Dependencies,
		Output:       pm.Output,
		LTO:          pm.LTO,
		manifest:     m,
	}, nil
}

// canonical returns the absolute form of dir with symlinks resolved.
func canonical(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}

// within reports whether path equals dir or lies beneath it. Both must be
// canonical.
func within(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !filepath.IsAbs(rel) && !hasParentPrefix(rel)
}

func hasParentPrefix(rel string) bool {
	return len(rel) > 2 && rel[:2] == ".." && rel[2] == filepath.Separator
}
