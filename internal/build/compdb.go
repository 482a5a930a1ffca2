package build

import (
	"context"
	"encoding/json"
	"io"

	"github.com/doggo-build/doggo/internal/project"
)

// CompileDatabase is the file name clang tooling looks for.
const CompileDatabase = "compile_commands.json"

// CompileCommand is one entry of a JSON compilation database.
type CompileCommand struct {
	Directory string   `json:"directory"`
	File      string   `json:"file"`
	Arguments []string `json:"arguments"`
	Output    string   `json:"output"`
}

// CompileCommands renders the compile step of every translation unit of
// pkgs and their local dependencies without running anything.
func (b *Builder) CompileCommands(ctx context.Context, pkgs ...*project.Package) ([]CompileCommand, error) {
	var all []*project.Package
	for _, pkg := range pkgs {
		order, err := b.ws.BuildOrder(pkg)
		if err != nil {
			return nil, err
		}
		all = append(all, order...)
	}
	if err := b.collectFeatures(all); err != nil {
		return nil, err
	}

	var cmds []CompileCommand
	seen := make(map[*project.Package]bool)
	for _, p := range all {
		if seen[p] {
			continue
		}
		seen[p] = true
		pl, err := b.plan(p)
		if err != nil {
			return nil, err
		}
		for _, u := range pl.units {
			req := pl.request
			req.Source, req.Output = u.source, u.object
			cmd, err := b.cc.CompileObject(ctx, req, pl.opts, true)
			if err != nil {
				return nil, err
			}
			cmds = append(cmds, CompileCommand{
				Directory: p.Dir(),
				File:      u.source,
				Arguments: cmd.Argv(),
				Output:    u.object,
			})
		}
	}
	return cmds, nil
}

// WriteCompileDatabase writes cmds to w as a JSON compilation database.
func WriteCompileDatabase(w io.Writer, cmds []CompileCommand) error {
	if cmds == nil {
		cmds = []CompileCommand{}
	}
	data, err := json.MarshalIndent(cmds, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}
