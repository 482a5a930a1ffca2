package toolchain

import "fmt"

// OptLevel is an optimization level. The values are common to the
// clang-style drivers doggo targets.
type OptLevel int

const (
	O0 OptLevel = iota
	O1
	O2
	O3
	OFast
	OSize
	OSizeAggressive
)

func (o OptLevel) String() string {
	switch o {
	case O1:
		return "1"
	case O2:
		return "2"
	case O3:
		return "3"
	case OFast:
		return "fast"
	case OSize:
		return "s"
	case OSizeAggressive:
		return "z"
	default:
		return "0"
	}
}

// Flag returns the compiler flag selecting o.
func (o OptLevel) Flag() string { return "-O" + o.String() }

// ParseOptLevel parses "0".."3", "fast", "s"/"size" or "z"/"size-aggressive".
func ParseOptLevel(s string) (OptLevel, error) {
	switch s {
	case "0":
		return O0, nil
	case "1":
		return O1, nil
	case "2":
		return O2, nil
	case "3":
		return O3, nil
	case "fast":
		return OFast, nil
	case "s", "size":
		return OSize, nil
	case "z", "size-aggressive":
		return OSizeAggressive, nil
	}
	return O0, fmt.Errorf("unknown optimization level %q", s)
}

// ExtraCompileOptions is a build profile. It is passed unchanged to every
// backend call of a build.
type ExtraCompileOptions struct {
	OptLevel      OptLevel `json:"opt_level"`
	GenerateDebug bool     `json:"debug"`
	LTO           bool     `json:"lto"`
	Target        string   `json:"target"`
}

// DebugProfile returns the options of an unoptimized build with debug info
// for the host.
func DebugProfile() ExtraCompileOptions {
	return ExtraCompileOptions{OptLevel: O0, GenerateDebug: true, Target: HostTriple()}
}

// ReleaseProfile returns the options of an optimized build for the host.
func ReleaseProfile() ExtraCompileOptions {
	return ExtraCompileOptions{OptLevel: O3, Target: HostTriple()}
}
