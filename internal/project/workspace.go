package project

import (
	"fmt"
	"path/filepath"

	"github.com/doggo-build/doggo/internal/intern"
	"github.com/doggo-build/doggo/internal/manifest"
)

// NoCurrent is the Current index of a workspace resolved without a
// selected package.
const NoCurrent = -1

// Workspace is a resolved project. A directory holding only a package
// resolves to a standalone workspace whose single member is current.
type Workspace struct {
	Members      []*Package
	Current      int
	Path         intern.Ref
	Dependencies map[intern.Ref]*manifest.Dependency
	Standalone   bool

	pool     *intern.Pool
	manifest *manifest.Manifest
	external map[string]*Package // path dependencies that are not members
}

// Root returns the workspace root directory.
func (w *Workspace) Root() string { return w.Path.String() }

// CurrentPackage returns the selected package, or nil if there is none.
func (w *Workspace) CurrentPackage() *Package {
	if w.Current < 0 || w.Current >= len(w.Members) {
		return nil
	}
	return w.Members[w.Current]
}

// Member returns the member named name.
func (w *Workspace) Member(name string) (*Package, bool) {
	ref := w.pool.Acquire(name)
	defer ref.Release()
	return w.member(ref)
}

func (w *Workspace) member(name intern.Ref) (*Package, bool) {
	for _, m := range w.Members {
		if m.Name == name {
			return m, true
		}
	}
	return nil, false
}

// Release releases every string held by the workspace and its packages.
func (w *Workspace) Release() {
	for _, m := range w.Members {
		m.Release()
	}
	for _, p := range w.external {
		p.Release()
	}
	w.Members, w.external = nil, nil
	w.Path.Release()
	w.Path = intern.Ref{}
	if w.manifest != nil {
		w.manifest.Release()
		w.manifest = nil
	}
}

// Resolve finds the project enclosing dir.
//
// The nearest ancestor holding a workspace manifest wins. Without one, the
// nearest package manifest forms a standalone workspace. If selector is not
// empty it names the member to select; otherwise the member containing dir
// is selected, if any. Resolve returns (nil, nil) when no manifest is found
// up to the filesystem root.
func Resolve(pool *intern.Pool, dir, selector string) (*Workspace, error) {
	start, err := canonical(dir)
	if err != nil {
		return nil, err
	}

	root, wm, err := findWorkspace(pool, start)
	if err != nil {
		return nil, err
	}
	if wm != nil {
		return loadWorkspace(pool, root, wm, start, selector)
	}
	return loadStandalone(pool, start, selector)
}

// findWorkspace walks up from start to the nearest workspace manifest.
func findWorkspace(pool *intern.Pool, start string) (string, *manifest.Manifest, error) {
	for dir := start; ; {
		m, err := manifest.Load(pool, dir)
		if err != nil {
			return "", nil, err
		}
		if m != nil {
			if _, ok := m.Workspace(); ok {
				return dir, m, nil
			}
			m.Release()
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil, nil
		}
		dir = parent
	}
}

// findPackage walks up from start to the nearest package manifest, giving
// up at stop (exclusive) or the filesystem root.
func findPackage(pool *intern.Pool, start, stop string) (*Package, error) {
	for dir := start; dir != stop; {
		m, err := manifest.Load(pool, dir)
		if err != nil {
			return nil, err
		}
		if m != nil {
			if _, ok := m.Package(); ok {
				return newPackage(pool, dir, m)
			}
			m.Release()
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return nil, nil
}

func loadWorkspace(pool *intern.Pool, root string, wm *manifest.Manifest, start, selector string) (ws *Workspace, err error) {
	ws = &Workspace{
		Current:      NoCurrent,
		Path:         pool.Acquire(root),
		Dependencies: wm.Dependencies,
		pool:         pool,
		manifest:     wm,
	}
	defer func() {
		if err != nil {
			ws.Release()
			ws = nil
		}
	}()

	spec, _ := wm.Workspace()
	for _, member := range spec.Members {
		pkg, err := loadMember(pool, root, member.String())
		if err != nil {
			return ws, err
		}
		if _, dup := ws.member(pkg.Name); dup {
			name := pkg.Name.String()
			pkg.Release()
			return ws, &ResolveError{Err: ErrDuplicateMember, Path: root, Name: name}
		}
		ws.Members = append(ws.Members, pkg)
	}

	if err := ws.validateWorkspaceDependencies(); err != nil {
		return ws, err
	}

	if selector != "" {
		for i, m := range ws.Members {
			if m.Name.String() == selector {
				ws.Current = i
				return ws, nil
			}
		}
		return ws, &ResolveError{Err: ErrMemberNotFound, Path: root, Name: selector}
	}

	for i, m := range ws.Members {
		if within(start, m.Dir()) {
			ws.Current = i
			return ws, nil
		}
	}

	stray, err := findPackage(pool, start, root)
	if err != nil {
		return ws, err
	}
	if stray != nil {
		path := stray.Dir()
		stray.Release()
		return ws, &ResolveError{
			Err:    ErrNotAMember,
			Path:   path,
			Detail: fmt.Sprintf("package lies inside workspace %s but is not listed in its members", root),
		}
	}
	return ws, nil
}

func loadMember(pool *intern.Pool, root, member string) (*Package, error) {
	dir := member
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(root, member)
	}
	dir, err := canonical(dir)
	if err != nil {
		return nil, &ResolveError{Err: ErrMemberNotFound, Path: root, Name: member, Detail: err.Error()}
	}
	m, err := manifest.Load(pool, dir)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, &ResolveError{Err: ErrMemberNotFound, Path: root, Name: member, Detail: "no " + manifest.FileName + " in " + dir}
	}
	return newPackage(pool, dir, m)
}

func loadStandalone(pool *intern.Pool, start, selector string) (*Workspace, error) {
	pkg, err := findPackage(pool, start, "")
	if err != nil || pkg == nil {
		return nil, err
	}
	ws := &Workspace{
		Members:    []*Package{pkg},
		Current:    0,
		Path:       pkg.Path.Clone(),
		Standalone: true,
		pool:       pool,
	}
	if err := validateNoWorkspaceDependencies(pkg); err != nil {
		ws.Release()
		return nil, err
	}
	if selector != "" && pkg.Name.String() != selector {
		ws.Release()
		return nil, &ResolveError{Err: ErrMemberNotFound, Path: start, Name: selector}
	}
	return ws, nil
}

// validateWorkspaceDependencies checks that every workspace = true entry,
// in the workspace table or in any member, names a member.
func (w *Workspace) validateWorkspaceDependencies() error {
	check := func(owner string, deps map[intern.Ref]*manifest.Dependency) error {
		for name, dep := range deps {
			if !dep.Workspace {
				continue
			}
			if _, ok := w.member(name); !ok {
				return &ResolveError{
					Err:    ErrInvalidWorkspaceDependency,
					Path:   owner,
					Name:   name.String(),
					Detail: "no workspace member has this name",
				}
			}
		}
		return nil
	}
	if err := check(w.Root(), w.Dependencies); err != nil {
		return err
	}
	for _, m := range w.Members {
		if err := check(m.Dir(), m.Dependencies); err != nil {
			return err
		}
	}
	return nil
}

func validateNoWorkspaceDependencies(pkg *Package) error {
	for name, dep := range pkg.Dependencies {
		if dep.Workspace {
			return &ResolveError{
				Err:    ErrInvalidWorkspaceDependency,
				Path:   pkg.Dir(),
				Name:   name.String(),
				Detail: "package is not part of a workspace",
			}
		}
	}
	return nil
}
