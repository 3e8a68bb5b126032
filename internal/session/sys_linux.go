//go:build linux
// +build linux

// File: internal/session/sys_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package session

import (
	"net/netip"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-burn/api"
)

// sockaddr is the heap box handed to an in-flight connect. The kernel reads
// it after submission, so it must stay referenced until the completion.
type sockaddr struct {
	in4 unix.RawSockaddrInet4
	in6 unix.RawSockaddrInet6
	v6  bool
}

func newSockaddr(ap netip.AddrPort) *sockaddr {
	sa := &sockaddr{}
	addr := ap.Addr()
	if addr.Is4() {
		sa.in4.Family = unix.AF_INET
		putPort(&sa.in4.Port, ap.Port())
		sa.in4.Addr = addr.As4()
		return sa
	}
	sa.v6 = true
	sa.in6.Family = unix.AF_INET6
	putPort(&sa.in6.Port, ap.Port())
	sa.in6.Addr = addr.As16()
	return sa
}

// putPort stores port in network byte order.
func putPort(dst *uint16, port uint16) {
	b := (*[2]byte)(unsafe.Pointer(dst))
	b[0] = byte(port >> 8)
	b[1] = byte(port)
}

func (sa *sockaddr) raw() (unsafe.Pointer, uint32) {
	if sa.v6 {
		return unsafe.Pointer(&sa.in6), uint32(unix.SizeofSockaddrInet6)
	}
	return unsafe.Pointer(&sa.in4), uint32(unix.SizeofSockaddrInet4)
}

// socketParams maps the target family and protocol to socket(2) arguments.
func socketParams(target netip.AddrPort, proto api.Protocol) (domain, typ int, err error) {
	if !target.IsValid() {
		return 0, 0, api.Wrap(api.ErrInvalidArgument, api.ErrCodeInvalidArgument, "invalid target address")
	}
	domain = unix.AF_INET6
	if target.Addr().Is4() {
		domain = unix.AF_INET
	}
	typ = unix.SOCK_DGRAM
	if proto == api.ProtocolTCP {
		typ = unix.SOCK_STREAM
	}
	return domain, typ, nil
}

// resultError turns a negative completion result into its errno.
func resultError(res int32) error {
	return unix.Errno(-res)
}

func closeFD(fd int32) error {
	return unix.Close(int(fd))
}
