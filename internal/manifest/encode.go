package manifest

import (
	"fmt"
	"io"

	"github.com/pelletier/go-toml"
)

// PackageSpec describes a new package manifest.
type PackageSpec struct {
	Name   string
	Output PackageKind
	LTO    bool
}

type packageFile struct {
	Package packageTable `toml:"package"`
}

type packageTable struct {
	Name   string `toml:"name"`
	Output string `toml:"output"`
	LTO    bool   `toml:"lto,omitempty"`
}

// Encode writes a package manifest for spec, followed by an empty
// [dependencies] table.
func Encode(w io.Writer, spec PackageSpec) error {
	if spec.Name == "" {
		return fmt.Errorf("package name must not be empty")
	}
	data, err := toml.Marshal(packageFile{Package: packageTable{
		Name:   spec.Name,
		Output: spec.Output.String(),
		LTO:    spec.LTO,
	}})
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	_, err = io.WriteString(w, "\n[dependencies]\n")
	return err
}
