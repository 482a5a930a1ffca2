package internal

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/doggo-build/doggo/internal/build"
	"github.com/doggo-build/doggo/internal/intern"
	"github.com/doggo-build/doggo/internal/project"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var idegenFlags profileFlags

var idegenCmd = &cobra.Command{
	Use:   "idegen",
	Short: "Write compile_commands.json for editors",
	Long: `Idegen renders the compile command of every translation unit in the
workspace, or in the selected package and its dependencies, and writes
them to compile_commands.json at the workspace root. Nothing is compiled.`,
	Args: cobra.NoArgs,
	RunE: runIdegen,
}

func init() {
	idegenFlags.register(idegenCmd)
	rootCmd.AddCommand(idegenCmd)
}

func runIdegen(cmd *cobra.Command, args []string) error {
	pool := intern.NewPool()
	ws, err := loadWorkspace(pool)
	if err != nil {
		return err
	}
	defer ws.Release()

	pkgs := ws.Members
	if packageSelector != "" {
		pkgs = []*project.Package{ws.CurrentPackage()}
	}
	builder, err := idegenFlags.newBuilder(ws)
	if err != nil {
		return err
	}
	cmds, err := builder.CompileCommands(cmd.Context(), pkgs...)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := build.WriteCompileDatabase(&buf, cmds); err != nil {
		return err
	}
	path := filepath.Join(ws.Root(), build.CompileDatabase)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", build.CompileDatabase, err)
	}
	pterm.Success.Printfln("wrote %d entries to %s", len(cmds), path)
	return nil
}
