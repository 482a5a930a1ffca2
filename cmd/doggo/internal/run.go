package internal

import (
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/doggo-build/doggo/internal/intern"
	"github.com/doggo-build/doggo/internal/manifest"
	"github.com/spf13/cobra"
)

var runFlags profileFlags

var runCmd = &cobra.Command{
	Use:   "run [-- args...]",
	Short: "Build and run the current executable package",
	Long:  `Run builds the current package, which must be an executable, and runs it with the given arguments.`,
	RunE:  runRun,
}

func init() {
	runFlags.register(runCmd)
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	pool := intern.NewPool()
	ws, err := loadWorkspace(pool)
	if err != nil {
		return err
	}
	defer ws.Release()

	pkg, err := currentPackage(ws)
	if err != nil {
		return err
	}
	if pkg.Output != manifest.Executable {
		return fmt.Errorf("%s is a %s and cannot be run", pkg.Name, pkg.Output)
	}
	builder, err := runFlags.newBuilder(ws)
	if err != nil {
		return err
	}
	results, err := builder.Build(cmd.Context(), pkg)
	if err != nil {
		return err
	}

	artifact := results[len(results)-1].Artifact
	c := exec.CommandContext(cmd.Context(), artifact, args...)
	c.Stdin, c.Stdout, c.Stderr = os.Stdin, os.Stdout, os.Stderr
	if err := c.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("%s exited with status %d", pkg.Name, exitErr.ExitCode())
		}
		return err
	}
	return nil
}
