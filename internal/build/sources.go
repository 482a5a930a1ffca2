package build

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
)

var sourceExts = map[string]bool{
	".c":   true,
	".cc":  true,
	".cpp": true,
	".cxx": true,
	".c++": true,
	".m":   true,
	".mm":  true,
}

var cxxExts = map[string]bool{
	".cc":  true,
	".cpp": true,
	".cxx": true,
	".c++": true,
	".mm":  true,
}

// isSource reports whether name is a translation unit.
func isSource(name string) bool {
	return sourceExts[strings.ToLower(filepath.Ext(name))]
}

func isCPlusPlus(name string) bool {
	return cxxExts[strings.ToLower(filepath.Ext(name))]
}

// discoverSources returns the translation units under dir as sorted,
// slash-separated paths relative to dir. The tree is walked with an
// explicit stack. A missing dir yields no sources.
func discoverSources(dir string) ([]string, error) {
	var sources []string
	stack := []string{"."}
	for len(stack) > 0 {
		rel := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		entries, err := os.ReadDir(filepath.Join(dir, rel))
		if err != nil {
			if os.IsNotExist(err) && rel == "." {
				return nil, nil
			}
			return nil, err
		}
		for _, e := range entries {
			name := e.Name()
			if strings.HasPrefix(name, ".") {
				continue
			}
			child := filepath.Join(rel, name)
			switch {
			case e.IsDir():
				stack = append(stack, child)
			case e.Type().IsRegular() && isSource(name):
				sources = append(sources, filepath.ToSlash(child))
			}
		}
	}
	slices.Sort(sources)
	return sources, nil
}
