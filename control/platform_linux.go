//go:build linux
// +build linux

// control/platform_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux-specific debug probes: kernel release, io_uring availability and
// the locked-memory limit that caps buffer registration.

package control

import (
	"os"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-burn/internal/uring"
)

func registerPlatformProbes(dp *DebugProbes) {
	dp.RegisterProbe("kernel.release", func() any {
		var u unix.Utsname
		if err := unix.Uname(&u); err != nil {
			return err.Error()
		}
		return unix.ByteSliceToString(u.Release[:])
	})
	dp.RegisterProbe("kernel.io_uring_disabled", func() any {
		b, err := os.ReadFile("/proc/sys/kernel/io_uring_disabled")
		if err != nil {
			return "unknown"
		}
		return strings.TrimSpace(string(b))
	})
	dp.RegisterProbe("kernel.io_uring", func() any {
		r, err := uring.New(uring.WithEntries(2))
		if err != nil {
			return err.Error()
		}
		defer r.Close()
		return r.Features()
	})
	dp.RegisterProbe("rlimit.memlock", func() any {
		var lim unix.Rlimit
		if err := unix.Getrlimit(unix.RLIMIT_MEMLOCK, &lim); err != nil {
			return err.Error()
		}
		return lim.Cur
	})
}
