//go:build linux

package worker

import (
	"context"
	"io"
	"net"
	"net/netip"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/momentics/hioload-burn/api"
	"github.com/momentics/hioload-burn/internal/uring"
)

func udpEcho(t *testing.T) netip.AddrPort {
	t.Helper()
	pc, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pc.Close() })
	go func() {
		buf := make([]byte, 65536)
		for {
			n, from, err := pc.ReadFromUDPAddrPort(buf)
			if err != nil {
				return
			}
			_, _ = pc.WriteToUDPAddrPort(buf[:n], from)
		}
	}()
	return pc.LocalAddr().(*net.UDPAddr).AddrPort()
}

func tcpEcho(t *testing.T) netip.AddrPort {
	t.Helper()
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer c.Close()
				_, _ = io.Copy(c, c)
			}()
		}
	}()
	return ln.Addr().(*net.TCPAddr).AddrPort()
}

// requireUring skips when the kernel refuses io_uring, e.g. under seccomp
// or with kernel.io_uring_disabled set.
func requireUring(t *testing.T) {
	t.Helper()
	done := make(chan error, 1)
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		r, err := uring.New(uring.WithEntries(4))
		if err == nil {
			if !r.Features().ZeroCopySend || !r.Features().FixedBuffers {
				err = api.ErrNotSupported
			}
			_ = r.Close()
		}
		done <- err
	}()
	if err := <-done; err != nil {
		t.Skipf("io_uring unavailable: %v", err)
	}
}

func TestIntegration_Echo(t *testing.T) {
	for _, tc := range []struct {
		name    string
		backend api.Backend
		proto   api.Protocol
		direct  bool
	}{
		{"epoll/udp", api.BackendEpoll, api.ProtocolUDP, false},
		{"epoll/tcp", api.BackendEpoll, api.ProtocolTCP, false},
		{"uring/udp", api.BackendUring, api.ProtocolUDP, true},
		{"uring/tcp", api.BackendUring, api.ProtocolTCP, true},
		{"uring/udp-plain-fds", api.BackendUring, api.ProtocolUDP, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if tc.backend == api.BackendUring {
				requireUring(t)
			}
			cfg := testSettings(4, 1, 300*time.Millisecond)
			cfg.Backend = tc.backend
			cfg.Protocol = tc.proto
			cfg.Direct = tc.direct
			if tc.proto == api.ProtocolTCP {
				cfg.Target = tcpEcho(t)
			} else {
				cfg.Target = udpEcho(t)
			}

			sum, err := Burn(context.Background(), cfg, zaptest.NewLogger(t))
			require.NoError(t, err)
			assert.Zero(t, sum.Total.FailedConnections)
			assert.NotZero(t, sum.Total.SuccessfulReturns)
			if tc.proto == api.ProtocolUDP {
				assert.Zero(t, sum.Total.WrongReturns)
			}
		})
	}
}

func TestIntegration_RefusedTCP(t *testing.T) {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	target := ln.Addr().(*net.TCPAddr).AddrPort()
	require.NoError(t, ln.Close())

	cfg := testSettings(2, 1, 100*time.Millisecond)
	cfg.Backend = api.BackendEpoll
	cfg.Protocol = api.ProtocolTCP
	cfg.Target = target

	sum, err := Burn(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.NotZero(t, sum.Total.FailedConnections)
	assert.Zero(t, sum.Total.SuccessfulReturns)
}
