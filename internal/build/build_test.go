package build

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/doggo-build/doggo/internal/intern"
	"github.com/doggo-build/doggo/internal/project"
	"github.com/doggo-build/doggo/internal/toolchain"
)

const linuxTarget = "x86_64-pc-linux-gnu"

// fakeCompiler writes placeholder outputs instead of running a toolchain.
type fakeCompiler struct {
	fail map[string]bool // source base names that fail to compile

	mu       sync.Mutex
	calls    []string
	compiles []toolchain.CompileRequest
	links    []toolchain.LinkRequest
	opts     []toolchain.ExtraCompileOptions
}

func (f *fakeCompiler) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeCompiler) CompileObject(ctx context.Context, req toolchain.CompileRequest, opts toolchain.ExtraCompileOptions, renderOnly bool) (*toolchain.Command, error) {
	cmd := &toolchain.Command{Path: "clang", Args: []string{"-c", req.Source, "-o", req.Output}}
	if renderOnly {
		return cmd, nil
	}
	f.record("compile " + filepath.Base(req.Source))
	f.mu.Lock()
	f.compiles = append(f.compiles, req)
	f.opts = append(f.opts, opts)
	f.mu.Unlock()
	if f.fail[filepath.Base(req.Source)] {
		return cmd, &toolchain.ExitError{Tool: "clang", Code: 1}
	}
	if err := writeFile(req.Output, "object"); err != nil {
		return cmd, err
	}
	dep := fmt.Sprintf("%s: %s\n", req.Output, req.Source)
	return cmd, writeFile(toolchain.DepfilePath(req.Output), dep)
}

func (f *fakeCompiler) ArchiveObjects(ctx context.Context, objects []string, output string, opts toolchain.ExtraCompileOptions) (*toolchain.Command, error) {
	f.record("archive " + filepath.Base(output))
	return &toolchain.Command{Path: "llvm-ar"}, writeFile(output, "archive")
}

func (f *fakeCompiler) LinkObjects(ctx context.Context, req toolchain.LinkRequest, opts toolchain.ExtraCompileOptions) (*toolchain.Command, error) {
	f.record("link " + filepath.Base(req.Output))
	f.mu.Lock()
	f.links = append(f.links, req)
	f.opts = append(f.opts, opts)
	f.mu.Unlock()
	return &toolchain.Command{Path: "clang"}, writeFile(req.Output, "binary")
}

func (f *fakeCompiler) reset() {
	f.calls, f.compiles, f.links, f.opts = nil, nil, nil, nil
}

func writeFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0o644)
}

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		if err := writeFile(filepath.Join(root, filepath.FromSlash(rel)), content); err != nil {
			t.Fatal(err)
		}
	}
}

// sampleWorkspace is an executable app linking the static library core,
// which it builds with the "fast" feature, and the system library m.
var sampleWorkspace = map[string]string{
	"Doggo.toml":           "[workspace]\nmembers = [\"app\", \"core\"]\n",
	"app/Doggo.toml":       "[package]\nname = \"app\"\n\n[dependencies]\ncore = { workspace = true, features = [\"fast\"] }\nm = \"*\"\n",
	"app/src/main.c":       "int main(void) { return core(); }\n",
	"core/Doggo.toml":      "[package]\nname = \"core\"\noutput = \"staticlib\"\n",
	"core/include/core.h":  "int core(void);\n",
	"core/src/core.c":      "int core(void) { return 0; }\n",
	"core/src/util/more.c": "int more(void) { return 1; }\n",
	"core/src/README.md":   "not a source\n",
}

type fixture struct {
	root string
	ws   *project.Workspace
	cc   *fakeCompiler
}

func newFixture(t *testing.T, files map[string]string) *fixture {
	t.Helper()
	root, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	writeTree(t, root, files)
	ws, err := project.Resolve(intern.NewPool(), root, "")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(ws.Release)
	return &fixture{root: root, ws: ws, cc: &fakeCompiler{}}
}

func (f *fixture) builder(opts toolchain.ExtraCompileOptions) *Builder {
	return NewBuilder(f.ws, f.cc, Options{
		Compile:  opts,
		BuildDir: filepath.Join(f.root, "build", "debug"),
		Jobs:     1,
	})
}

func (f *fixture) member(t *testing.T, name string) *project.Package {
	t.Helper()
	p, ok := f.ws.Member(name)
	if !ok {
		t.Fatalf("no member %q", name)
	}
	return p
}

func debugOpts() toolchain.ExtraCompileOptions {
	return toolchain.ExtraCompileOptions{OptLevel: toolchain.O0, GenerateDebug: true, Target: linuxTarget}
}

func TestBuildDependenciesFirst(t *testing.T) {
	f := newFixture(t, sampleWorkspace)
	results, err := f.builder(debugOpts()).Build(context.Background(), f.member(t, "app"))
	if err != nil {
		t.Fatal(err)
	}

	wantCalls := []string{
		"compile core.c",
		"compile more.c",
		"archive libcore.a",
		"compile main.c",
		"link app",
	}
	if diff := cmp.Diff(wantCalls, f.cc.calls); diff != "" {
		t.Errorf("calls (-want +got):\n%s", diff)
	}

	var got []string
	for _, r := range results {
		if !r.Rebuilt {
			t.Errorf("%s: Rebuilt = false on a clean build", r.Package.Name)
		}
		got = append(got, filepath.Base(r.Artifact))
	}
	if diff := cmp.Diff([]string{"libcore.a", "app"}, got); diff != "" {
		t.Errorf("artifacts (-want +got):\n%s", diff)
	}

	core := f.cc.compiles[0]
	if diff := cmp.Diff([]string{"DOGGO_PKG_CORE", "CORE_FEATURE_FAST"}, core.Defines); diff != "" {
		t.Errorf("core defines (-want +got):\n%s", diff)
	}
	wantObj := filepath.Join(f.root, "build", "debug", "core.objs", "util", "more.c.o")
	if got := f.cc.compiles[1].Output; got != wantObj {
		t.Errorf("object = %q, want %q", got, wantObj)
	}
	app := f.cc.compiles[2]
	if !slices.Contains(app.IncludeDirs, filepath.Join(f.root, "core", "include")) {
		t.Errorf("app include dirs %v lack the core headers", app.IncludeDirs)
	}
	if diff := cmp.Diff([]string{"DOGGO_PKG_APP"}, app.Defines); diff != "" {
		t.Errorf("app defines (-want +got):\n%s", diff)
	}

	link := f.cc.links[0]
	if diff := cmp.Diff([]string{"core"}, link.StaticLibs); diff != "" {
		t.Errorf("static libs (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"m"}, link.DynamicLibs); diff != "" {
		t.Errorf("dynamic libs (-want +got):\n%s", diff)
	}
	if link.Shared || link.CPlusPlus || len(link.RPaths) != 0 {
		t.Errorf("unexpected link request %+v", link)
	}
}

func TestBuildIsIncremental(t *testing.T) {
	f := newFixture(t, sampleWorkspace)
	app := f.member(t, "app")
	if _, err := f.builder(debugOpts()).Build(context.Background(), app); err != nil {
		t.Fatal(err)
	}

	f.cc.reset()
	results, err := f.builder(debugOpts()).Build(context.Background(), app)
	if err != nil {
		t.Fatal(err)
	}
	if len(f.cc.calls) != 0 {
		t.Errorf("second build ran %v", f.cc.calls)
	}
	for _, r := range results {
		if r.Rebuilt {
			t.Errorf("%s: Rebuilt = true with nothing changed", r.Package.Name)
		}
	}

	future := time.Now().Add(time.Hour)
	if err := os.Chtimes(filepath.Join(f.root, "core", "src", "core.c"), future, future); err != nil {
		t.Fatal(err)
	}
	past := time.Now().Add(-time.Hour)
	if err := os.Chtimes(filepath.Join(f.root, "build", "debug", "app"), past, past); err != nil {
		t.Fatal(err)
	}
	f.cc.reset()
	if _, err := f.builder(debugOpts()).Build(context.Background(), app); err != nil {
		t.Fatal(err)
	}
	want := []string{"compile core.c", "archive libcore.a", "link app"}
	if diff := cmp.Diff(want, f.cc.calls); diff != "" {
		t.Errorf("calls after touching core.c (-want +got):\n%s", diff)
	}
}

func TestBuildOptionsChangeRebuildsEverything(t *testing.T) {
	f := newFixture(t, sampleWorkspace)
	core := f.member(t, "core")
	if _, err := f.builder(debugOpts()).Build(context.Background(), core); err != nil {
		t.Fatal(err)
	}

	f.cc.reset()
	release := toolchain.ExtraCompileOptions{OptLevel: toolchain.O3, Target: linuxTarget}
	if _, err := f.builder(release).Build(context.Background(), core); err != nil {
		t.Fatal(err)
	}
	want := []string{"compile core.c", "compile more.c", "archive libcore.a"}
	if diff := cmp.Diff(want, f.cc.calls); diff != "" {
		t.Errorf("calls (-want +got):\n%s", diff)
	}
}

func TestBuildMissingArtifactRelinks(t *testing.T) {
	f := newFixture(t, sampleWorkspace)
	core := f.member(t, "core")
	b := f.builder(debugOpts())
	if _, err := b.Build(context.Background(), core); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(b.ArtifactPath(core)); err != nil {
		t.Fatal(err)
	}

	f.cc.reset()
	if _, err := f.builder(debugOpts()).Build(context.Background(), core); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"archive libcore.a"}, f.cc.calls); diff != "" {
		t.Errorf("calls (-want +got):\n%s", diff)
	}
}

func TestBuildFailedUnitStopsPackage(t *testing.T) {
	f := newFixture(t, sampleWorkspace)
	f.cc.fail = map[string]bool{"core.c": true}

	_, err := f.builder(debugOpts()).Build(context.Background(), f.member(t, "app"))
	var unitErr *UnitError
	if !errors.As(err, &unitErr) {
		t.Fatalf("err = %v, want *UnitError", err)
	}
	if unitErr.Package != "core" || unitErr.Source != "core.c" {
		t.Errorf("UnitError = %+v", unitErr)
	}
	var exitErr *toolchain.ExitError
	if !errors.As(err, &exitErr) {
		t.Errorf("err = %v does not wrap the compiler exit", err)
	}
	for _, call := range f.cc.calls {
		if call == "archive libcore.a" || call == "link app" {
			t.Errorf("%s ran after a failed compile", call)
		}
	}
	if _, err := os.Stat(filepath.Join(f.root, "build", "debug", "core.objs", stampFile)); err == nil {
		t.Error("stamp written for a failed build")
	}
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name    string
		files   map[string]string
		member  string
		wantErr error
		wantMsg string
	}{
		{
			name: "NoSources",
			files: map[string]string{
				"Doggo.toml":       "[workspace]\nmembers = [\"lib\"]\n",
				"lib/Doggo.toml":   "[package]\nname = \"lib\"\noutput = \"staticlib\"\n",
				"lib/src/notes.md": "",
			},
			member:  "lib",
			wantErr: ErrNoSources,
		},
		{
			name: "ExecutableDependency",
			files: map[string]string{
				"Doggo.toml":          "[workspace]\nmembers = [\"app\", \"tool\"]\n",
				"app/Doggo.toml":      "[package]\nname = \"app\"\n\n[dependencies]\ntool = { workspace = true }\n",
				"app/src/main.c":      "",
				"tool/Doggo.toml":     "[package]\nname = \"tool\"\n",
				"tool/src/tool.c":     "",
				"tool/include/tool.h": "",
			},
			member:  "app",
			wantMsg: "app: dependency tool is an executable and cannot be linked",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.files)
			_, err := f.builder(debugOpts()).Build(context.Background(), f.member(t, tt.member))
			if err == nil {
				t.Fatal("Build succeeded")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
			if tt.wantMsg != "" && err.Error() != tt.wantMsg {
				t.Errorf("err = %q, want %q", err, tt.wantMsg)
			}
		})
	}
}

func TestBuildDynamicDependency(t *testing.T) {
	f := newFixture(t, map[string]string{
		"Doggo.toml":       "[workspace]\nmembers = [\"app\", \"gfx\"]\n",
		"app/Doggo.toml":   "[package]\nname = \"app\"\n\n[dependencies]\ngfx = { workspace = true }\n",
		"app/src/main.cpp": "",
		"gfx/Doggo.toml":   "[package]\nname = \"gfx\"\noutput = \"dylib\"\n",
		"gfx/src/render.c": "",
	})
	if _, err := f.builder(debugOpts()).Build(context.Background(), f.member(t, "app")); err != nil {
		t.Fatal(err)
	}
	if len(f.cc.links) != 2 {
		t.Fatalf("got %d links, want 2", len(f.cc.links))
	}
	gfx, app := f.cc.links[0], f.cc.links[1]
	if !gfx.Shared || filepath.Base(gfx.Output) != "libgfx.so" {
		t.Errorf("gfx link = %+v", gfx)
	}
	want := toolchain.LinkRequest{
		Objects:     []string{filepath.Join(f.root, "build", "debug", "app.objs", "main.cpp.o")},
		Output:      filepath.Join(f.root, "build", "debug", "app"),
		LibDirs:     []string{filepath.Join(f.root, "build", "debug")},
		DynamicLibs: []string{"gfx"},
		RPaths:      []string{"$ORIGIN"},
		CPlusPlus:   true,
	}
	if diff := cmp.Diff(want, app); diff != "" {
		t.Errorf("app link (-want +got):\n%s", diff)
	}
}

func TestBuildExecutableBesideObjects(t *testing.T) {
	f := newFixture(t, map[string]string{
		"Doggo.toml":      "[package]\nname = \"tool\"\n",
		"src/main.c":      "",
		"src/cli/flags.c": "",
	})
	b := f.builder(debugOpts())
	tool := f.ws.CurrentPackage()
	if _, err := b.Build(context.Background(), tool); err != nil {
		t.Fatal(err)
	}
	want := []string{"compile flags.c", "compile main.c", "link tool"}
	if diff := cmp.Diff(want, f.cc.calls); diff != "" {
		t.Errorf("calls (-want +got):\n%s", diff)
	}

	exe := filepath.Join(f.root, "build", "debug", "tool")
	if got := b.ArtifactPath(tool); got != exe {
		t.Errorf("ArtifactPath = %q, want %q", got, exe)
	}
	if fi, err := os.Stat(exe); err != nil || !fi.Mode().IsRegular() {
		t.Errorf("executable %s is not a regular file: %v", exe, err)
	}
	objDir := filepath.Join(f.root, "build", "debug", "tool.objs") + string(filepath.Separator)
	for _, obj := range f.cc.links[0].Objects {
		if !strings.HasPrefix(obj, objDir) {
			t.Errorf("object %s outside %s", obj, objDir)
		}
	}

	f.cc.reset()
	if _, err := f.builder(debugOpts()).Build(context.Background(), tool); err != nil {
		t.Fatal(err)
	}
	if len(f.cc.calls) != 0 {
		t.Errorf("second build ran %v", f.cc.calls)
	}
}

// transitiveWorkspace is a dynamic library app linking the static library
// mid, which itself depends on the static library leaf.
var transitiveWorkspace = map[string]string{
	"Doggo.toml":      "[workspace]\nmembers = [\"app\", \"mid\", \"leaf\"]\n",
	"app/Doggo.toml":  "[package]\nname = \"app\"\noutput = \"dylib\"\n\n[dependencies]\nmid = { workspace = true }\n",
	"app/src/app.c":   "",
	"mid/Doggo.toml":  "[package]\nname = \"mid\"\noutput = \"staticlib\"\n\n[dependencies]\nleaf = { workspace = true }\n",
	"mid/src/mid.c":   "",
	"leaf/Doggo.toml": "[package]\nname = \"leaf\"\noutput = \"staticlib\"\n",
	"leaf/src/leaf.c": "",
}

func TestBuildRelinksAfterTransitiveChange(t *testing.T) {
	f := newFixture(t, transitiveWorkspace)
	app := f.member(t, "app")
	if _, err := f.builder(debugOpts()).Build(context.Background(), app); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"mid", "leaf"}, f.cc.links[0].StaticLibs); diff != "" {
		t.Errorf("static libs (-want +got):\n%s", diff)
	}

	future := time.Now().Add(time.Hour)
	if err := os.Chtimes(filepath.Join(f.root, "leaf", "src", "leaf.c"), future, future); err != nil {
		t.Fatal(err)
	}
	f.cc.reset()
	if _, err := f.builder(debugOpts()).Build(context.Background(), app); err != nil {
		t.Fatal(err)
	}
	want := []string{"compile leaf.c", "archive libleaf.a", "link libapp.so"}
	if diff := cmp.Diff(want, f.cc.calls); diff != "" {
		t.Errorf("calls after touching leaf.c (-want +got):\n%s", diff)
	}

	// A newer archive from an earlier run also forces the link.
	past := time.Now().Add(-time.Hour)
	if err := os.Chtimes(filepath.Join(f.root, "leaf", "src", "leaf.c"), past, past); err != nil {
		t.Fatal(err)
	}
	b := f.builder(debugOpts())
	later := time.Now().Add(2 * time.Hour)
	if err := os.Chtimes(b.ArtifactPath(f.member(t, "leaf")), later, later); err != nil {
		t.Fatal(err)
	}
	f.cc.reset()
	if _, err := b.Build(context.Background(), app); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"link libapp.so"}, f.cc.calls); diff != "" {
		t.Errorf("calls after a newer libleaf.a (-want +got):\n%s", diff)
	}
}

func TestBuildPackageLTO(t *testing.T) {
	f := newFixture(t, map[string]string{
		"Doggo.toml": "[package]\nname = \"fast\"\nlto = true\n",
		"src/main.c": "",
	})
	if _, err := f.builder(debugOpts()).Build(context.Background(), f.ws.CurrentPackage()); err != nil {
		t.Fatal(err)
	}
	if len(f.cc.opts) != 2 {
		t.Fatalf("got %d tool calls, want 2", len(f.cc.opts))
	}
	for i, opts := range f.cc.opts {
		if !opts.LTO {
			t.Errorf("call %d (%s) without LTO", i, f.cc.calls[i])
		}
	}
}

func TestCompileCommands(t *testing.T) {
	f := newFixture(t, sampleWorkspace)
	b := f.builder(debugOpts())
	cmds, err := b.CompileCommands(context.Background(), f.ws.Members...)
	if err != nil {
		t.Fatal(err)
	}
	if len(f.cc.calls) != 0 {
		t.Errorf("CompileCommands ran %v", f.cc.calls)
	}
	if _, err := os.Stat(b.BuildDir()); err == nil {
		t.Error("CompileCommands created the build directory")
	}

	var files []string
	for _, c := range cmds {
		rel, err := filepath.Rel(f.root, c.File)
		if err != nil {
			t.Fatal(err)
		}
		files = append(files, filepath.ToSlash(rel))
		if c.Arguments[0] != "clang" {
			t.Errorf("%s: arguments %v", rel, c.Arguments)
		}
	}
	want := []string{"core/src/core.c", "core/src/util/more.c", "app/src/main.c"}
	if diff := cmp.Diff(want, files); diff != "" {
		t.Errorf("files (-want +got):\n%s", diff)
	}
	if got, want := cmds[2].Directory, filepath.Join(f.root, "app"); got != want {
		t.Errorf("Directory = %q, want %q", got, want)
	}
}

func TestClean(t *testing.T) {
	root := t.TempDir()
	t.Setenv("DOGGO_BUILD_DIR", "")
	writeTree(t, root, map[string]string{"build/debug/app": "binary"})
	if err := Clean(root); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(root, "build")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("build dir still present: %v", err)
	}
}

func TestMacroName(t *testing.T) {
	tests := map[string]string{
		"core":      "CORE",
		"my-lib":    "MY_LIB",
		"simd.avx2": "SIMD_AVX2",
	}
	for in, want := range tests {
		if got := macroName(in); got != want {
			t.Errorf("macroName(%q) = %q, want %q", in, got, want)
		}
	}
}
