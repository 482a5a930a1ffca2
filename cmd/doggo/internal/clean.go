package internal

import (
	"github.com/doggo-build/doggo/internal/build"
	"github.com/doggo-build/doggo/internal/env"
	"github.com/doggo-build/doggo/internal/intern"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove the build directory",
	Long:  `Clean removes every build profile of the workspace.`,
	Args:  cobra.NoArgs,
	RunE:  runClean,
}

func init() {
	rootCmd.AddCommand(cleanCmd)
}

func runClean(cmd *cobra.Command, args []string) error {
	pool := intern.NewPool()
	ws, err := loadWorkspace(pool)
	if err != nil {
		return err
	}
	defer ws.Release()

	if err := build.Clean(ws.Root()); err != nil {
		return err
	}
	pterm.Success.Printfln("removed %s", env.BuildRoot(ws.Root()))
	return nil
}
