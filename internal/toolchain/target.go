package toolchain

import (
	"strings"

	"github.com/doggo-build/doggo/internal/manifest"
)

// IsMSVC reports whether triple targets the MSVC ABI.
func IsMSVC(triple string) bool { return strings.HasSuffix(triple, "msvc") }

// IsWindows reports whether triple targets Windows.
func IsWindows(triple string) bool { return strings.Contains(triple, "windows") }

// IsApple reports whether triple targets an Apple platform.
func IsApple(triple string) bool { return strings.Contains(triple, "apple") }

// ObjectSuffix returns the object file suffix for triple.
func ObjectSuffix(triple string) string {
	if IsMSVC(triple) {
		return ".obj"
	}
	return ".o"
}

// StaticLibSuffix returns the static library suffix for triple.
func StaticLibSuffix(triple string) string {
	if IsMSVC(triple) {
		return ".lib"
	}
	return ".a"
}

// LibPrefix returns the library file name prefix for triple.
func LibPrefix(triple string) string {
	if IsMSVC(triple) {
		return ""
	}
	return "lib"
}

// DynamicLibSuffix returns the shared library suffix for triple.
func DynamicLibSuffix(triple string) string {
	if IsWindows(triple) {
		return ".dll"
	}
	return ".so"
}

// ExecutableSuffix returns the executable suffix for triple.
func ExecutableSuffix(triple string) string {
	if IsWindows(triple) {
		return ".exe"
	}
	return ""
}

// ArtifactName returns the file name of the artifact a package named name
// produces for triple.
func ArtifactName(name string, kind manifest.PackageKind, triple string) string {
	switch kind {
	case manifest.StaticLibrary:
		return LibPrefix(triple) + name + StaticLibSuffix(triple)
	case manifest.DynamicLibrary:
		return LibPrefix(triple) + name + DynamicLibSuffix(triple)
	default:
		return name + ExecutableSuffix(triple)
	}
}

// DepfilePath returns the dependency file written next to object.
func DepfilePath(object string) string {
	for _, suffix := range []string{".obj", ".o"} {
		if strings.HasSuffix(object, suffix) {
			return strings.TrimSuffix(object, suffix) + ".d"
		}
	}
	return object + ".d"
}
