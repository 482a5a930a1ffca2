// Package build compiles resolved packages into their artifacts.
package build

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/doggo-build/doggo/internal/depfile"
	"github.com/doggo-build/doggo/internal/env"
	"github.com/doggo-build/doggo/internal/manifest"
	"github.com/doggo-build/doggo/internal/par"
	"github.com/doggo-build/doggo/internal/project"
	"github.com/doggo-build/doggo/internal/toolchain"
)

// Compiler runs the toolchain steps of a build. *toolchain.Backend
// implements it.
type Compiler interface {
	CompileObject(ctx context.Context, req toolchain.CompileRequest, opts toolchain.ExtraCompileOptions, renderOnly bool) (*toolchain.Command, error)
	ArchiveObjects(ctx context.Context, objects []string, output string, opts toolchain.ExtraCompileOptions) (*toolchain.Command, error)
	LinkObjects(ctx context.Context, req toolchain.LinkRequest, opts toolchain.ExtraCompileOptions) (*toolchain.Command, error)
}

// Reporter receives build progress. Compiling may be called from several
// goroutines at once.
type Reporter interface {
	Compiling(pkg, source string)
	Archiving(pkg, artifact string)
	Linking(pkg, artifact string)
	Fresh(pkg string)
}

type nopReporter struct{}

func (nopReporter) Compiling(string, string) {}
func (nopReporter) Archiving(string, string) {}
func (nopReporter) Linking(string, string)   {}
func (nopReporter) Fresh(string)             {}

// Options configures a Builder.
type Options struct {
	Profile  string // build directory name, "debug" if empty
	Compile  toolchain.ExtraCompileOptions
	BuildDir string // defaults to the profile directory under env.BuildRoot
	Jobs     int    // parallel compile jobs, the number of CPUs if < 1
	Reporter Reporter
}

// Result describes one built package.
type Result struct {
	Package  *project.Package
	Artifact string
	Rebuilt  bool
}

// UnitError reports a translation unit that failed to compile.
type UnitError struct {
	Package string
	Source  string
	Err     error
}

func (e *UnitError) Error() string {
	return fmt.Sprintf("%s: compile %s: %v", e.Package, e.Source, e.Err)
}

func (e *UnitError) Unwrap() error { return e.Err }

// ErrNoSources is returned for a package without translation units.
var ErrNoSources = errors.New("no source files")

// Builder builds the packages of one workspace.
type Builder struct {
	ws   *project.Workspace
	cc   Compiler
	opts Options

	features map[*project.Package][]string
	built    map[*project.Package]*Result
	cxx      map[*project.Package]bool
}

// NewBuilder returns a Builder for ws that runs its steps with cc.
func NewBuilder(ws *project.Workspace, cc Compiler, opts Options) *Builder {
	if opts.Profile == "" {
		opts.Profile = "debug"
	}
	if opts.BuildDir == "" {
		opts.BuildDir = env.BuildDir(ws.Root(), opts.Profile)
	}
	if opts.Jobs < 1 {
		opts.Jobs = runtime.NumCPU()
	}
	if opts.Reporter == nil {
		opts.Reporter = nopReporter{}
	}
	return &Builder{
		ws:       ws,
		cc:       cc,
		opts:     opts,
		features: make(map[*project.Package][]string),
		built:    make(map[*project.Package]*Result),
		cxx:      make(map[*project.Package]bool),
	}
}

// BuildDir returns the directory artifacts are written to.
func (b *Builder) BuildDir() string { return b.opts.BuildDir }

// ArtifactPath returns the path of the artifact pkg produces.
func (b *Builder) ArtifactPath(pkg *project.Package) string {
	return filepath.Join(b.opts.BuildDir, toolchain.ArtifactName(pkg.Name.String(), pkg.Output, b.opts.Compile.Target))
}

// Build builds pkg after every local package it depends on. The results
// are in build order; the last one is pkg.
func (b *Builder) Build(ctx context.Context, pkg *project.Package) ([]Result, error) {
	order, err := b.ws.BuildOrder(pkg)
	if err != nil {
		return nil, err
	}
	if err := b.collectFeatures(order); err != nil {
		return nil, err
	}
	results := make([]Result, 0, len(order))
	for _, p := range order {
		r, ok := b.built[p]
		if !ok {
			r, err = b.buildPackage(ctx, p)
			if err != nil {
				return nil, err
			}
			b.built[p] = r
		}
		results = append(results, *r)
	}
	return results, nil
}

// collectFeatures records the features each package in order enables on
// its local dependencies.
func (b *Builder) collectFeatures(order []*project.Package) error {
	for _, p := range order {
		deps, err := b.ws.DependenciesOf(p)
		if err != nil {
			return err
		}
		for _, d := range deps {
			if d.Package == nil || d.Spec.Simple {
				continue
			}
			for _, f := range d.Spec.Features {
				def := featureDefine(d.Package.Name.String(), f.String())
				if !slices.Contains(b.features[d.Package], def) {
					b.features[d.Package] = append(b.features[d.Package], def)
				}
			}
		}
	}
	for p := range b.features {
		slices.Sort(b.features[p])
	}
	return nil
}

// unit is one translation unit of a package.
type unit struct {
	source string // absolute
	rel    string // relative to the source dir, slash separated
	object string
}

// plan is everything needed to build one package.
type plan struct {
	pkg      *project.Package
	name     string
	objDir   string
	units    []unit
	opts     toolchain.ExtraCompileOptions
	request  toolchain.CompileRequest // without Source and Output
	deps     []project.Dependency
	artifact string
	cxx      bool
}

func (b *Builder) plan(pkg *project.Package) (*plan, error) {
	name := pkg.Name.String()
	rels, err := discoverSources(pkg.SourceDir())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if len(rels) == 0 {
		return nil, fmt.Errorf("%s: %w in %s", name, ErrNoSources, pkg.SourceDir())
	}
	deps, err := b.ws.DependenciesOf(pkg)
	if err != nil {
		return nil, err
	}

	p := &plan{
		pkg:      pkg,
		name:     name,
		objDir:   filepath.Join(b.opts.BuildDir, name+objDirSuffix),
		opts:     b.opts.Compile,
		deps:     deps,
		artifact: b.ArtifactPath(pkg),
	}
	if pkg.LTO {
		p.opts.LTO = true
	}
	suffix := toolchain.ObjectSuffix(b.opts.Compile.Target)
	for _, rel := range rels {
		p.units = append(p.units, unit{
			source: filepath.Join(pkg.SourceDir(), filepath.FromSlash(rel)),
			rel:    rel,
			object: filepath.Join(p.objDir, filepath.FromSlash(rel)+suffix),
		})
		if isCPlusPlus(rel) {
			p.cxx = true
		}
	}

	includes := []string{pkg.IncludeDir(), pkg.SourceDir()}
	order, err := b.ws.BuildOrder(pkg)
	if err != nil {
		return nil, err
	}
	for _, dep := range order[:len(order)-1] {
		includes = append(includes, dep.IncludeDir())
	}
	p.request = toolchain.CompileRequest{
		IncludeDirs: includes,
		Defines:     append([]string{pkgDefine(name)}, b.features[pkg]...),
	}
	return p, nil
}

func (b *Builder) buildPackage(ctx context.Context, pkg *project.Package) (*Result, error) {
	p, err := b.plan(pkg)
	if err != nil {
		return nil, err
	}
	opts := p.opts

	stamp, _ := loadStamp(p.objDir)
	reuse := stamp.sameOptions(opts, p.request.Defines)
	var stale []int
	for i, u := range p.units {
		if reuse {
			ok, err := depfile.IsUpToDate(toolchain.DepfilePath(u.object), u.object)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", p.name, err)
			}
			if ok {
				continue
			}
		}
		stale = append(stale, i)
	}

	if len(stale) > 0 {
		if err := b.compile(ctx, p, stale); err != nil {
			return nil, err
		}
	}

	objects := make([]string, len(p.units))
	for i, u := range p.units {
		objects[i] = u.object
	}
	var req toolchain.LinkRequest
	var linked []*project.Package
	if pkg.Output != manifest.StaticLibrary {
		req, linked, err = b.linkRequest(p, objects)
		if err != nil {
			return nil, err
		}
	}
	relink := len(stale) > 0 || !reuse || !slices.Equal(stamp.Objects, objects) || b.anyRebuilt(linked)
	if !relink {
		relink, err = b.artifactStale(p, objects, linked)
		if err != nil {
			return nil, err
		}
	}

	b.cxx[pkg] = p.cxx
	if relink {
		if err := b.produce(ctx, p, objects, req); err != nil {
			return nil, err
		}
		err = saveStamp(p.objDir, &buildStamp{
			Options:   opts,
			Defines:   p.request.Defines,
			Objects:   objects,
			BuildTime: time.Now(),
		})
		if err != nil {
			return nil, err
		}
	} else {
		b.opts.Reporter.Fresh(p.name)
	}
	return &Result{Package: pkg, Artifact: p.artifact, Rebuilt: relink}, nil
}

// compile compiles the units of p at the given indexes in parallel. Either
// all of them succeed or an error is returned after the running ones finish.
func (b *Builder) compile(ctx context.Context, p *plan, indexes []int) error {
	var work par.Work[int]
	for _, i := range indexes {
		work.Add(i)
	}
	return work.Do(b.opts.Jobs, func(i int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		u := p.units[i]
		b.opts.Reporter.Compiling(p.name, u.rel)
		req := p.request
		req.Source, req.Output = u.source, u.object
		if _, err := b.cc.CompileObject(ctx, req, p.opts, false); err != nil {
			return &UnitError{Package: p.name, Source: u.rel, Err: err}
		}
		return nil
	})
}

// anyRebuilt reports whether one of pkgs was archived or linked again during
// this build.
func (b *Builder) anyRebuilt(pkgs []*project.Package) bool {
	for _, q := range pkgs {
		if r, ok := b.built[q]; ok && r.Rebuilt {
			return true
		}
	}
	return false
}

// artifactStale reports whether the artifact of p is missing or older than
// its objects or the artifacts of the linked packages.
func (b *Builder) artifactStale(p *plan, objects []string, linked []*project.Package) (bool, error) {
	fi, err := os.Stat(p.artifact)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return true, nil
		}
		return false, err
	}
	inputs := slices.Clone(objects)
	for _, q := range linked {
		inputs = append(inputs, b.ArtifactPath(q))
	}
	for _, in := range inputs {
		st, err := os.Stat(in)
		if err != nil {
			return true, nil
		}
		if st.ModTime().After(fi.ModTime()) {
			return true, nil
		}
	}
	return false, nil
}

// produce archives the objects of p into its artifact, or links them as
// described by req.
func (b *Builder) produce(ctx context.Context, p *plan, objects []string, req toolchain.LinkRequest) error {
	opts := p.opts
	if p.pkg.Output == manifest.StaticLibrary {
		b.opts.Reporter.Archiving(p.name, p.artifact)
		if _, err := b.cc.ArchiveObjects(ctx, objects, p.artifact, opts); err != nil {
			return fmt.Errorf("%s: archive: %w", p.name, err)
		}
		return nil
	}

	b.opts.Reporter.Linking(p.name, p.artifact)
	if _, err := b.cc.LinkObjects(ctx, req, opts); err != nil {
		return fmt.Errorf("%s: link: %w", p.name, err)
	}
	return nil
}

// linkRequest collects the libraries p links against. Static libraries do
// not carry their own dependencies, so those are followed transitively;
// dynamic libraries are linked as is. It also returns the local packages
// whose artifacts end up on the link line.
func (b *Builder) linkRequest(p *plan, objects []string) (toolchain.LinkRequest, []*project.Package, error) {
	req := toolchain.LinkRequest{
		Objects:   objects,
		Output:    p.artifact,
		LibDirs:   []string{b.opts.BuildDir},
		Shared:    p.pkg.Output == manifest.DynamicLibrary,
		CPlusPlus: p.cxx,
	}
	seen := make(map[string]bool)
	var linked []*project.Package
	var dynamic bool
	var walk func(from string, deps []project.Dependency) error
	walk = func(from string, deps []project.Dependency) error {
		for _, d := range deps {
			name := d.Name.String()
			if d.Package != nil {
				name = d.Package.Name.String()
			}
			if seen[name] {
				continue
			}
			seen[name] = true
			switch {
			case d.IsSystem():
				req.DynamicLibs = append(req.DynamicLibs, name)
			case d.Package.Output == manifest.Executable:
				return fmt.Errorf("%s: dependency %s is an executable and cannot be linked", from, name)
			case d.Package.Output == manifest.DynamicLibrary:
				req.DynamicLibs = append(req.DynamicLibs, name)
				linked = append(linked, d.Package)
				dynamic = true
			default:
				req.StaticLibs = append(req.StaticLibs, name)
				linked = append(linked, d.Package)
				if b.cxx[d.Package] {
					req.CPlusPlus = true
				}
				sub, err := b.ws.DependenciesOf(d.Package)
				if err != nil {
					return err
				}
				if err := walk(name, sub); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if err := walk(p.name, p.deps); err != nil {
		return req, nil, err
	}
	if dynamic {
		req.RPaths = []string{rpathOrigin(b.opts.Compile.Target)}
	}
	return req, linked, nil
}

func rpathOrigin(triple string) string {
	if toolchain.IsApple(triple) {
		return "@loader_path"
	}
	return "$ORIGIN"
}

// pkgDefine returns the define every unit of the package named name is
// compiled with.
func pkgDefine(name string) string {
	return "DOGGO_PKG_" + macroName(name)
}

func featureDefine(dep, feature string) string {
	return macroName(dep) + "_FEATURE_" + macroName(feature)
}

// macroName upper-cases s and replaces what cannot appear in a C
// identifier with '_'.
func macroName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		}
		return '_'
	}, s)
}

// Clean removes the build directories of the workspace rooted at root.
func Clean(root string) error {
	return os.RemoveAll(env.BuildRoot(root))
}
