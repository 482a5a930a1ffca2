//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package toolchain

import "runtime"

func hostArch() string {
	return llvmArch(runtime.GOARCH)
}
