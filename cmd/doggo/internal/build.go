package internal

import (
	"github.com/doggo-build/doggo/internal/build"
	"github.com/doggo-build/doggo/internal/intern"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var buildFlags profileFlags

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the current package",
	Long:  `Build compiles the current package and the local packages it depends on.`,
	Args:  cobra.NoArgs,
	RunE:  runBuild,
}

func init() {
	buildFlags.register(buildCmd)
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
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
	builder, err := buildFlags.newBuilder(ws)
	if err != nil {
		return err
	}
	results, err := builder.Build(cmd.Context(), pkg)
	if err != nil {
		return err
	}
	printResult(results[len(results)-1])
	return nil
}

func printResult(r build.Result) {
	if r.Rebuilt {
		pterm.Success.Printfln("built %s", r.Artifact)
	} else {
		pterm.Success.Printfln("%s is up to date", r.Artifact)
	}
}
