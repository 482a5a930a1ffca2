package internal

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/doggo-build/doggo/internal/manifest"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var (
	initLib   bool
	initDylib bool
)

var initCmd = &cobra.Command{
	Use:   "init [name]",
	Short: "Create a new package",
	Long: `Init writes a Doggo.toml and a starter source file into the start
directory. The package name defaults to the directory name.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initLib, "lib", false, "Create a static library")
	initCmd.Flags().BoolVar(&initDylib, "dylib", false, "Create a dynamic library")
	initCmd.MarkFlagsMutuallyExclusive("lib", "dylib")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return err
	}
	name := filepath.Base(dir)
	if len(args) == 1 {
		name = args[0]
	}
	kind := manifest.Executable
	switch {
	case initLib:
		kind = manifest.StaticLibrary
	case initDylib:
		kind = manifest.DynamicLibrary
	}

	if err := scaffold(dir, manifest.PackageSpec{Name: name, Output: kind}); err != nil {
		return err
	}
	pterm.Success.Printfln("created %s package %s", kind, name)
	return nil
}

// scaffold writes a new package into dir. It fails if dir already holds a
// manifest.
func scaffold(dir string, spec manifest.PackageSpec) error {
	if manifest.Exists(dir) {
		return fmt.Errorf("%s already exists in %s", manifest.FileName, dir)
	}
	var buf bytes.Buffer
	if err := manifest.Encode(&buf, spec); err != nil {
		return err
	}

	files := map[string]string{manifest.FileName: buf.String()}
	if spec.Output.IsLibrary() {
		header := spec.Name + ".h"
		files[filepath.Join("include", header)] = fmt.Sprintf("#pragma once\n\nint %s_answer(void);\n", cIdent(spec.Name))
		files[filepath.Join("src", "lib.c")] = fmt.Sprintf("#include \"%s\"\n\nint %s_answer(void) { return 42; }\n", header, cIdent(spec.Name))
	} else {
		files[filepath.Join("src", "main.c")] = "#include <stdio.h>\n\nint main(void) {\n    printf(\"Hello, world!\\n\");\n    return 0;\n}\n"
	}

	for rel, content := range files {
		path := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if _, err := os.Stat(path); err == nil {
			continue
		} else if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return err
		}
	}
	return nil
}

// cIdent turns a package name into a C identifier.
func cIdent(name string) string {
	b := []byte(name)
	for i, c := range b {
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_') {
			b[i] = '_'
		}
	}
	if len(b) > 0 && b[0] >= '0' && b[0] <= '9' {
		return "_" + string(b)
	}
	return string(b)
}
