package project

import (
	"path/filepath"
	"slices"
	"strings"

	"github.com/doggo-build/doggo/internal/intern"
	"github.com/doggo-build/doggo/internal/manifest"
)

// Dependency is a dependency entry of a package together with what
// satisfies it. Package is nil for dependencies that name a system library.
type Dependency struct {
	Name    intern.Ref
	Spec    *manifest.Dependency
	Package *Package
}

// IsSystem reports whether d is linked by name from the toolchain's search
// path rather than built from a local package.
func (d Dependency) IsSystem() bool { return d.Package == nil }

type declared struct {
	spec *manifest.Dependency
	base string // directory relative paths are resolved against
}

// DependenciesOf returns the dependencies of pkg sorted by name. Workspace
// level entries apply to every member; a member's own entry of the same
// name takes precedence.
func (w *Workspace) DependenciesOf(pkg *Package) ([]Dependency, error) {
	all := make(map[intern.Ref]declared)
	if !w.Standalone && w.isMember(pkg) {
		for name, spec := range w.Dependencies {
			all[name] = declared{spec: spec, base: w.Root()}
		}
	}
	for name, spec := range pkg.Dependencies {
		all[name] = declared{spec: spec, base: pkg.Dir()}
	}

	deps := make([]Dependency, 0, len(all))
	for name, d := range all {
		var target *Package
		switch {
		case d.spec.Workspace:
			m, ok := w.member(name)
			if !ok {
				return nil, &ResolveError{
					Err:    ErrInvalidWorkspaceDependency,
					Path:   pkg.Dir(),
					Name:   name.String(),
					Detail: "no workspace member has this name",
				}
			}
			target = m
		case !d.spec.Path.IsZero():
			p, err := w.pathDependency(d.base, d.spec.Path.String())
			if err != nil {
				return nil, err
			}
			target = p
		}
		if target == pkg {
			continue
		}
		deps = append(deps, Dependency{Name: name, Spec: d.spec, Package: target})
	}
	slices.SortFunc(deps, func(a, b Dependency) int {
		return strings.Compare(a.Name.String(), b.Name.String())
	})
	return deps, nil
}

func (w *Workspace) isMember(pkg *Package) bool {
	return slices.Contains(w.Members, pkg)
}

// pathDependency returns the package at rel, relative to base. Members are
// returned as is; other packages are loaded once and kept with the
// workspace.
func (w *Workspace) pathDependency(base, rel string) (*Package, error) {
	dir := rel
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(base, rel)
	}
	dir, err := canonical(dir)
	if err != nil {
		return nil, &ResolveError{Err: ErrPackageNotFound, Path: filepath.Join(base, rel), Detail: err.Error()}
	}
	for _, m := range w.Members {
		if m.Dir() == dir {
			return m, nil
		}
	}
	if p, ok := w.external[dir]; ok {
		return p, nil
	}
	p, err := LoadPackage(w.pool, dir)
	if err != nil {
		return nil, err
	}
	if err := validateNoWorkspaceDependencies(p); err != nil {
		p.Release()
		return nil, err
	}
	if w.external == nil {
		w.external = make(map[string]*Package)
	}
	w.external[dir] = p
	return p, nil
}

// BuildOrder returns pkg and every package it transitively depends on,
// dependencies first. Each package appears once.
func (w *Workspace) BuildOrder(pkg *Package) ([]*Package, error) {
	const (
		visiting = 1
		done     = 2
	)
	state := make(map[*Package]int)
	var order []*Package

	var visit func(p *Package) error
	visit = func(p *Package) error {
		switch state[p] {
		case done:
			return nil
		case visiting:
			return &ResolveError{Err: ErrDependencyCycle, Path: p.Dir(), Name: p.Name.String()}
		}
		state[p] = visiting
		deps, err := w.DependenciesOf(p)
		if err != nil {
			return err
		}
		for _, d := range deps {
			if d.Package == nil {
				continue
			}
			if err := visit(d.Package); err != nil {
				return err
			}
		}
		state[p] = done
		order = append(order, p)
		return nil
	}
	if err := visit(pkg); err != nil {
		return nil, err
	}
	return order, nil
}
