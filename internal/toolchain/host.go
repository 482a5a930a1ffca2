package toolchain

import "runtime"

// UnknownTriple is returned by HostTriple on hosts it does not recognize.
const UnknownTriple = "unknown-unknown-unknown"

// HostTriple returns the target triple of the running host.
func HostTriple() string {
	return hostTriple(runtime.GOOS, hostArch())
}

func hostTriple(goos, arch string) string {
	if arch == "" {
		return UnknownTriple
	}
	switch goos {
	case "linux":
		return arch + "-pc-linux-gnu"
	case "windows":
		return arch + "-pc-windows-msvc"
	case "darwin":
		return arch + "-apple-darwin"
	}
	return UnknownTriple
}

// llvmArch maps a GOARCH value to the architecture component of a triple.
func llvmArch(goarch string) string {
	switch goarch {
	case "amd64":
		return "x86_64"
	case "386":
		return "i686"
	case "arm64":
		return "aarch64"
	case "arm":
		return "arm"
	case "riscv64":
		return "riscv64"
	case "ppc64le":
		return "powerpc64le"
	case "ppc64":
		return "powerpc64"
	case "s390x":
		return "s390x"
	case "loong64":
		return "loongarch64"
	case "mips64le":
		return "mips64el"
	}
	return ""
}
