package internal

import (
	"path/filepath"

	"github.com/doggo-build/doggo/internal/intern"
	"github.com/doggo-build/doggo/internal/project"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var membersCmd = &cobra.Command{
	Use:   "members",
	Short: "List the packages of the workspace",
	Long:  `Members lists the workspace members with their output kinds. The current member is marked.`,
	Args:  cobra.NoArgs,
	RunE:  runMembers,
}

func init() {
	rootCmd.AddCommand(membersCmd)
}

func runMembers(cmd *cobra.Command, args []string) error {
	pool := intern.NewPool()
	ws, err := loadWorkspace(pool)
	if err != nil {
		return err
	}
	defer ws.Release()

	return pterm.DefaultTable.WithHasHeader().WithData(memberTable(ws)).Render()
}

// memberTable returns the rows of the members listing, header first.
func memberTable(ws *project.Workspace) [][]string {
	rows := [][]string{{"", "NAME", "OUTPUT", "PATH"}}
	for i, m := range ws.Members {
		mark := ""
		if i == ws.Current {
			mark = "*"
		}
		rel, err := filepath.Rel(ws.Root(), m.Dir())
		if err != nil {
			rel = m.Dir()
		}
		rows = append(rows, []string{mark, m.Name.String(), m.Output.String(), filepath.ToSlash(rel)})
	}
	return rows
}
