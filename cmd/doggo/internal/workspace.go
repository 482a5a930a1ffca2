package internal

import (
	"fmt"
	"path/filepath"

	"github.com/doggo-build/doggo/internal/build"
	"github.com/doggo-build/doggo/internal/env"
	"github.com/doggo-build/doggo/internal/intern"
	"github.com/doggo-build/doggo/internal/manifest"
	"github.com/doggo-build/doggo/internal/project"
	"github.com/doggo-build/doggo/internal/toolchain"
	"github.com/spf13/cobra"
)

// loadWorkspace resolves the project enclosing the start directory.
func loadWorkspace(pool *intern.Pool) (*project.Workspace, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}
	ws, err := project.Resolve(pool, dir, packageSelector)
	if err != nil {
		if ws != nil {
			ws.Release()
		}
		return nil, err
	}
	if ws == nil {
		return nil, fmt.Errorf("could not find %s in %s or any parent directory", manifest.FileName, dir)
	}
	return ws, nil
}

// currentPackage returns the selected package of ws.
func currentPackage(ws *project.Workspace) (*project.Package, error) {
	pkg := ws.CurrentPackage()
	if pkg == nil {
		return nil, fmt.Errorf("%s: no package selected, run inside a member or pass --package", ws.Root())
	}
	return pkg, nil
}

// profileFlags are the flags of the commands that compile.
type profileFlags struct {
	release bool
	target  string
	jobs    int
}

func (f *profileFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.release, "release", false, "Build with optimizations and without debug info")
	cmd.Flags().StringVar(&f.target, "target", "", "Target triple (default $"+env.TargetVar+" or the host)")
	cmd.Flags().IntVarP(&f.jobs, "jobs", "j", 0, "Number of parallel compile jobs (default $"+env.JobsVar+" or the number of CPUs)")
}

func (f *profileFlags) options() (build.Options, error) {
	opts := build.Options{Profile: "debug", Compile: toolchain.DebugProfile()}
	if f.release {
		opts.Profile, opts.Compile = "release", toolchain.ReleaseProfile()
	}
	opts.Compile.Target = env.Target()
	if f.target != "" {
		opts.Compile.Target = f.target
	}
	opts.Jobs = f.jobs
	if opts.Jobs == 0 {
		jobs, err := env.Jobs()
		if err != nil {
			return opts, err
		}
		opts.Jobs = jobs
	}
	if opts.Jobs < 1 {
		return opts, fmt.Errorf("--jobs must be positive, got %d", opts.Jobs)
	}
	return opts, nil
}

// newBuilder locates the toolchain and returns a builder for ws.
func (f *profileFlags) newBuilder(ws *project.Workspace) (*build.Builder, error) {
	opts, err := f.options()
	if err != nil {
		return nil, err
	}
	opts.Reporter = newReporter()
	backend, err := toolchain.New()
	if err != nil {
		return nil, err
	}
	return build.NewBuilder(ws, backend, opts), nil
}
