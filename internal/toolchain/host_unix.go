//go:build linux || darwin || freebsd || netbsd || openbsd

package toolchain

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// hostArch reads the machine name from uname, which reports the kernel's
// architecture even when running an emulated Go binary.
func hostArch() string {
	var u unix.Utsname
	if err := unix.Uname(&u); err != nil {
		return llvmArch(runtime.GOARCH)
	}
	switch m := unix.ByteSliceToString(u.Machine[:]); m {
	case "":
		return llvmArch(runtime.GOARCH)
	case "amd64":
		return "x86_64"
	case "arm64":
		if runtime.GOOS == "darwin" {
			return m
		}
		return "aarch64"
	default:
		return m
	}
}
