// Package toolchain drives a clang/LLVM toolchain.
//
// Naming and flag conventions are derived from the target triple alone, so
// the same Backend can cross-compile for any triple clang supports.
package toolchain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Default executable names located on PATH.
const (
	DefaultCompiler  = "clang"
	DefaultArchiver  = "llvm-ar"
	DefaultLibrarian = "llvm-lib"
)

// ToolNotFoundError reports a toolchain executable missing from PATH.
type ToolNotFoundError struct {
	Tool string
	Err  error
}

func (e *ToolNotFoundError) Error() string {
	return fmt.Sprintf("toolchain: %s not found: %v", e.Tool, e.Err)
}

func (e *ToolNotFoundError) Unwrap() error { return e.Err }

// ExitError reports a tool that exited with a non-zero status.
type ExitError struct {
	Tool string
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with status %d", filepath.Base(e.Tool), e.Code)
}

// Command is a tool invocation rendered as data.
type Command struct {
	Path string
	Args []string
}

// Argv returns the executable followed by its arguments.
func (c *Command) Argv() []string {
	return append([]string{c.Path}, c.Args...)
}

func (c *Command) String() string {
	return strings.Join(c.Argv(), " ")
}

// Backend invokes the compiler, archiver and librarian of a clang/LLVM
// installation.
type Backend struct {
	compiler  string
	archiver  string
	librarian string

	stdout io.Writer
	stderr io.Writer
}

type config struct {
	lookPath  func(string) (string, error)
	compiler  string
	archiver  string
	librarian string
	stdout    io.Writer
	stderr    io.Writer
}

// Option configures New.
type Option func(*config)

// WithLookPath replaces exec.LookPath for locating tools.
func WithLookPath(fn func(string) (string, error)) Option {
	return func(c *config) {
		c.lookPath = fn
	}
}

// WithTools overrides the names of the tools to locate. Empty names keep
// the default.
func WithTools(compiler, archiver, librarian string) Option {
	return func(c *config) {
		if compiler != "" {
			c.compiler = compiler
		}
		if archiver != "" {
			c.archiver = archiver
		}
		if librarian != "" {
			c.librarian = librarian
		}
	}
}

// WithOutput sets where tool output goes. The default is os.Stdout and
// os.Stderr.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(c *config) {
		c.stdout = stdout
		c.stderr = stderr
	}
}

// New locates the toolchain. It fails if any tool is missing.
func New(opts ...Option) (*Backend, error) {
	c := &config{
		lookPath:  exec.LookPath,
		compiler:  DefaultCompiler,
		archiver:  DefaultArchiver,
		librarian: DefaultLibrarian,
		stdout:    os.Stdout,
		stderr:    os.Stderr,
	}
	for _, opt := range opts {
		opt(c)
	}

	b := &Backend{stdout: c.stdout, stderr: c.stderr}
	for _, tool := range []struct {
		name string
		dst  *string
	}{
		{c.compiler, &b.compiler},
		{c.archiver, &b.archiver},
		{c.librarian, &b.librarian},
	} {
		path, err := c.lookPath(tool.name)
		if err != nil {
			return nil, &ToolNotFoundError{Tool: tool.name, Err: err}
		}
		*tool.dst = path
	}
	return b, nil
}

// Compiler returns the path of the compiler driver.
func (b *Backend) Compiler() string { return b.compiler }

// CompileRequest describes one translation unit.
type CompileRequest struct {
	Source      string
	Output      string
	IncludeDirs []string
	Defines     []string
}

// CompileObject compiles req.Source to req.Output and writes a depfile next
// to the object. With renderOnly set nothing is executed or written and the
// command is only returned.
func (b *Backend) CompileObject(ctx context.Context, req CompileRequest, opts ExtraCompileOptions, renderOnly bool) (*Command, error) {
	args := []string{"-c", req.Source, "-o", req.Output}
	for _, dir := range req.IncludeDirs {
		args = append(args, "-I"+dir)
	}
	for _, def := range req.Defines {
		args = append(args, "-D"+def)
	}
	args = append(args, opts.OptLevel.Flag())
	if opts.GenerateDebug {
		if IsMSVC(opts.Target) {
			args = append(args, "-g", "-gcodeview")
		} else {
			args = append(args, "-ggdb3")
		}
	}
	if opts.LTO {
		args = append(args, "-flto")
	}
	args = append(args, "-MD", "-MF", DepfilePath(req.Output))
	args = append(args, "--target="+opts.Target)
	if !IsMSVC(opts.Target) {
		args = append(args, "-fPIC")
	}

	cmd := &Command{Path: b.compiler, Args: args}
	if renderOnly {
		return cmd, nil
	}
	return cmd, b.run(ctx, cmd, req.Output)
}

// ArchiveObjects bundles objects into the static library output. An
// existing library is replaced so that members of deleted sources do not
// survive.
func (b *Backend) ArchiveObjects(ctx context.Context, objects []string, output string, opts ExtraCompileOptions) (*Command, error) {
	var cmd *Command
	if IsMSVC(opts.Target) {
		cmd = &Command{Path: b.librarian, Args: append([]string{"/OUT:" + output}, objects...)}
	} else {
		cmd = &Command{Path: b.archiver, Args: append([]string{"rcs", output}, objects...)}
	}
	if err := os.Remove(output); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cmd, err
	}
	return cmd, b.run(ctx, cmd, output)
}

// LinkRequest describes a link step.
type LinkRequest struct {
	Objects     []string
	Output      string
	LibDirs     []string
	DynamicLibs []string
	StaticLibs  []string
	RPaths      []string
	Shared      bool
	CPlusPlus   bool
}

// LinkArgs returns the linker driver arguments for req.
func LinkArgs(req LinkRequest, opts ExtraCompileOptions) []string {
	var args []string
	if req.CPlusPlus {
		args = append(args, "--driver-mode=g++")
	}
	args = append(args, req.Objects...)
	for _, dir := range req.LibDirs {
		args = append(args, "-L"+dir)
	}
	for _, lib := range req.DynamicLibs {
		args = append(args, "-l"+lib)
	}
	if len(req.StaticLibs) > 0 {
		switch {
		case IsMSVC(opts.Target):
			for _, lib := range req.StaticLibs {
				args = append(args, "-l"+lib)
			}
		case IsApple(opts.Target):
			args = append(args, "-Wl,-all_load")
			for _, lib := range req.StaticLibs {
				args = append(args, "-l"+lib)
			}
		default:
			args = append(args, "-Wl,--whole-archive")
			for _, lib := range req.StaticLibs {
				args = append(args, "-l"+lib)
			}
			args = append(args, "-Wl,--no-whole-archive")
		}
	}
	if !IsWindows(opts.Target) {
		for _, p := range req.RPaths {
			args = append(args, "-Wl,-rpath,"+p)
		}
	}
	if req.Shared {
		args = append(args, "-shared")
	}
	args = append(args, "-o", req.Output, "--target="+opts.Target)
	if opts.LTO {
		args = append(args, "-flto")
	}
	return args
}

// LinkObjects links req.Objects into an executable or, with req.Shared, a
// dynamic library.
func (b *Backend) LinkObjects(ctx context.Context, req LinkRequest, opts ExtraCompileOptions) (*Command, error) {
	cmd := &Command{Path: b.compiler, Args: LinkArgs(req, opts)}
	return cmd, b.run(ctx, cmd, req.Output)
}

func (b *Backend) run(ctx context.Context, c *Command, output string) error {
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return err
	}
	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	cmd.Stdout = b.stdout
	cmd.Stderr = b.stderr
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &ExitError{Tool: c.Path, Code: exitErr.ExitCode()}
		}
		return fmt.Errorf("run %s: %w", filepath.Base(c.Path), err)
	}
	return nil
}
