package internal

import (
	"context"
	"log"
	"os"
	"os/signal"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var (
	packageSelector string
	startDir        string
	verbose         bool
)

var rootCmd = &cobra.Command{
	Use:   "doggo",
	Short: "doggo builds C and C++ packages",
	Long:  `doggo builds C and C++ packages and workspaces described by Doggo.toml manifests with clang and the LLVM tools.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			pterm.EnableDebugMessages()
		}
	},
	SilenceUsage: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&packageSelector, "package", "p", "", "Select the workspace member to operate on")
	flags.StringVarP(&startDir, "dir", "C", ".", "Run as if doggo was started in `dir`")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
// An interrupt cancels the running command and its tool processes.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		log.Fatal(err)
	}
}
