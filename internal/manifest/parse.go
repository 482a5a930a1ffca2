package manifest

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/pelletier/go-toml"
	"golang.org/x/mod/semver"

	"github.com/doggo-build/doggo/internal/intern"
)

// Parse decodes manifest data. path is only used for error reporting.
func Parse(pool *intern.Pool, path string, data []byte) (m *Manifest, err error) {
	tree, err := toml.LoadBytes(data)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}

	d := &decoder{pool: pool, path: path}
	m = &Manifest{Dependencies: make(map[intern.Ref]*Dependency)}
	defer func() {
		if err != nil {
			m.Release()
			m = nil
		}
	}()

	for _, key := range tree.Keys() {
		switch key {
		case "package", "workspace", "dependencies":
		default:
			return m, d.errorf(tree, key, "unknown top-level key %q", key)
		}
	}

	hasPackage, hasWorkspace := tree.Has("package"), tree.Has("workspace")
	switch {
	case hasPackage && hasWorkspace:
		return m, d.errorf(tree, "workspace", "manifest declares both [package] and [workspace]")
	case hasPackage:
		pkg, err := d.packageTable(tree)
		if err != nil {
			return m, err
		}
		m.Kind = pkg
	case hasWorkspace:
		ws, err := d.workspaceTable(tree)
		if err != nil {
			return m, err
		}
		m.Kind = ws
	default:
		return m, &ParseError{Path: path, Err: errors.New("manifest declares neither [package] nor [workspace]")}
	}

	if tree.Has("dependencies") {
		deps, err := d.table(tree, "dependencies")
		if err != nil {
			return m, err
		}
		for _, name := range deps.Keys() {
			dep, err := d.dependency(deps, name)
			if err != nil {
				return m, err
			}
			m.Dependencies[pool.Acquire(name)] = dep
		}
	}
	return m, nil
}

type decoder struct {
	pool *intern.Pool
	path string
}

func (d *decoder) errorf(t *toml.Tree, key, format string, args ...any) error {
	pos := t.GetPositionPath([]string{key})
	if pos.Invalid() {
		pos = t.Position()
	}
	return &ParseError{Path: d.path, Line: pos.Line, Col: pos.Col, Err: fmt.Errorf(format, args...)}
}

func (d *decoder) table(t *toml.Tree, key string) (*toml.Tree, error) {
	sub, ok := t.GetPath([]string{key}).(*toml.Tree)
	if !ok {
		return nil, d.errorf(t, key, "%s must be a table", key)
	}
	return sub, nil
}

func (d *decoder) onlyKeys(t *toml.Tree, table string, allowed ...string) error {
	for _, key := range t.Keys() {
		if !slices.Contains(allowed, key) {
			return d.errorf(t, key, "unknown key %q in %s", key, table)
		}
	}
	return nil
}

func (d *decoder) packageTable(root *toml.Tree) (*PackageManifest, error) {
	t, err := d.table(root, "package")
	if err != nil {
		return nil, err
	}
	if err := d.onlyKeys(t, "[package]", "name", "output", "lto"); err != nil {
		return nil, err
	}
	if !t.Has("name") {
		return nil, d.errorf(root, "package", "[package] is missing required key \"name\"")
	}
	name, err := d.str(t, "name")
	if err != nil {
		return nil, err
	}
	if name == "" {
		return nil, d.errorf(t, "name", "package name must not be empty")
	}

	pkg := &PackageManifest{}
	if t.Has("output") {
		s, err := d.str(t, "output")
		if err != nil {
			return nil, err
		}
		if pkg.Output, err = ParsePackageKind(s); err != nil {
			return nil, d.errorf(t, "output", "%v", err)
		}
	}
	if t.Has("lto") {
		if pkg.LTO, err = d.boolean(t, "lto"); err != nil {
			return nil, err
		}
	}
	pkg.Name = d.pool.Acquire(name)
	return pkg, nil
}

func (d *decoder) workspaceTable(root *toml.Tree) (*WorkspaceManifest, error) {
	t, err := d.table(root, "workspace")
	if err != nil {
		return nil, err
	}
	if err := d.onlyKeys(t, "[workspace]", "members"); err != nil {
		return nil, err
	}
	ws := &WorkspaceManifest{}
	if t.Has("members") {
		members, err := d.strings(t, "members")
		if err != nil {
			return nil, err
		}
		for _, m := range members {
			if m == "" {
				return nil, d.errorf(t, "members", "workspace member path must not be empty")
			}
		}
		ws.Members = d.pool.AcquireAll(members)
	}
	return ws, nil
}

func (d *decoder) dependency(deps *toml.Tree, name string) (*Dependency, error) {
	switch v := deps.GetPath([]string{name}).(type) {
	case string:
		return &Dependency{Simple: true, Version: d.pool.Acquire(v)}, nil
	case *toml.Tree:
		return d.complexDependency(v, name)
	default:
		return nil, d.errorf(deps, name, "dependency %q must be a version string or a table", name)
	}
}

func (d *decoder) complexDependency(t *toml.Tree, name string) (*Dependency, error) {
	table := fmt.Sprintf("dependency %q", name)
	if err := d.onlyKeys(t, table, "path", "version", "features", "workspace"); err != nil {
		return nil, err
	}
	var (
		path, version string
		features      []string
		workspace     bool
		err           error
	)
	if t.Has("path") {
		if path, err = d.str(t, "path"); err != nil {
			return nil, err
		}
	}
	if t.Has("version") {
		if version, err = d.str(t, "version"); err != nil {
			return nil, err
		}
		if !validVersion(version) {
			return nil, d.errorf(t, "version", "%s: invalid version %q", table, version)
		}
	}
	if t.Has("features") {
		if features, err = d.strings(t, "features"); err != nil {
			return nil, err
		}
	}
	if t.Has("workspace") {
		if workspace, err = d.boolean(t, "workspace"); err != nil {
			return nil, err
		}
	}

	dep := &Dependency{Workspace: workspace, Features: d.pool.AcquireAll(features)}
	if path != "" {
		dep.Path = d.pool.Acquire(path)
	}
	if version != "" {
		dep.Version = d.pool.Acquire(version)
	}
	return dep, nil
}

func (d *decoder) str(t *toml.Tree, key string) (string, error) {
	s, ok := t.GetPath([]string{key}).(string)
	if !ok {
		return "", d.errorf(t, key, "%s must be a string", key)
	}
	return s, nil
}

func (d *decoder) boolean(t *toml.Tree, key string) (bool, error) {
	b, ok := t.GetPath([]string{key}).(bool)
	if !ok {
		return false, d.errorf(t, key, "%s must be a boolean", key)
	}
	return b, nil
}

func (d *decoder) strings(t *toml.Tree, key string) ([]string, error) {
	switch v := t.GetPath([]string{key}).(type) {
	case []string:
		return v, nil
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, e := range v {
			s, ok := e.(string)
			if !ok {
				return nil, d.errorf(t, key, "%s must be an array of strings", key)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, d.errorf(t, key, "%s must be an array of strings", key)
	}
}

var versionOperators = []string{">=", "<=", "^", "~", "=", ">", "<"}

// validVersion accepts a comma-separated list of requirements, each "*" or
// a possibly shortened ("1.2") semantic version with an optional "v" and an
// optional comparison operator. Nothing is resolved; this only rejects
// obviously malformed requirements.
func validVersion(v string) bool {
	for _, clause := range strings.Split(v, ",") {
		if !validRequirement(strings.TrimSpace(clause)) {
			return false
		}
	}
	return true
}

func validRequirement(v string) bool {
	if v == "*" {
		return true
	}
	for _, op := range versionOperators {
		if strings.HasPrefix(v, op) {
			v = strings.TrimSpace(v[len(op):])
			break
		}
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return semver.IsValid(v)
}
