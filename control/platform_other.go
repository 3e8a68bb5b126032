//go:build !linux
// +build !linux

// control/platform_other.go
// Author: momentics <momentics@gmail.com>

package control

func registerPlatformProbes(dp *DebugProbes) {
	dp.RegisterProbe("kernel.io_uring", func() any { return "unsupported" })
}
