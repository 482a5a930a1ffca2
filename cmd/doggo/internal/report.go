package internal

import (
	"path/filepath"
	"sync"

	"github.com/pterm/pterm"
)

// reporter prints build progress with pterm.
type reporter struct {
	mu sync.Mutex
}

func newReporter() *reporter { return &reporter{} }

func (r *reporter) Compiling(pkg, source string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pterm.Info.Printfln("%s: compiling %s", pkg, source)
}

func (r *reporter) Archiving(pkg, artifact string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pterm.Info.Printfln("%s: archiving %s", pkg, filepath.Base(artifact))
	pterm.Debug.Println(artifact)
}

func (r *reporter) Linking(pkg, artifact string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pterm.Info.Printfln("%s: linking %s", pkg, filepath.Base(artifact))
	pterm.Debug.Println(artifact)
}

func (r *reporter) Fresh(pkg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pterm.Debug.Printfln("%s: up to date", pkg)
}
