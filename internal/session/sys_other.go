//go:build !linux
// +build !linux

// File: internal/session/sys_other.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package session

import (
	"fmt"
	"net/netip"
	"unsafe"

	"github.com/momentics/hioload-burn/api"
)

type sockaddr struct{}

func newSockaddr(netip.AddrPort) *sockaddr { return &sockaddr{} }

func (sa *sockaddr) raw() (unsafe.Pointer, uint32) { return nil, 0 }

func socketParams(netip.AddrPort, api.Protocol) (int, int, error) {
	return 0, 0, api.Wrap(api.ErrNotSupported, api.ErrCodeNotSupported, "echo sessions require linux")
}

func resultError(res int32) error { return fmt.Errorf("errno %d", -res) }

func closeFD(int32) error { return nil }
