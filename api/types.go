// File: api/types.go
// Author: momentics <momentics@gmail.com>
//
// Shared API-level type declarations and constants.

package api

import (
	"fmt"
	"strings"
)

// Protocol is the transport the echo workload runs over.
type Protocol int

const (
	ProtocolUDP Protocol = iota
	ProtocolTCP
)

func (p Protocol) String() string {
	switch p {
	case ProtocolTCP:
		return "tcp"
	default:
		return "udp"
	}
}

// ParseProtocol accepts "tcp" or "udp" in any case.
func ParseProtocol(s string) (Protocol, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "udp":
		return ProtocolUDP, nil
	case "tcp":
		return ProtocolTCP, nil
	}
	return 0, Wrap(ErrInvalidArgument, ErrCodeInvalidArgument, fmt.Sprintf("unknown protocol %q", s))
}

// Backend selects the completion ring implementation.
type Backend int

const (
	// BackendAuto uses io_uring when the kernel allows it, epoll otherwise.
	BackendAuto Backend = iota
	BackendUring
	BackendEpoll
)

func (b Backend) String() string {
	switch b {
	case BackendUring:
		return "uring"
	case BackendEpoll:
		return "epoll"
	default:
		return "auto"
	}
}

// ParseBackend accepts "auto", "uring" (or "io_uring") and "epoll".
func ParseBackend(s string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return BackendAuto, nil
	case "uring", "io_uring":
		return BackendUring, nil
	case "epoll":
		return BackendEpoll, nil
	}
	return 0, Wrap(ErrInvalidArgument, ErrCodeInvalidArgument, fmt.Sprintf("unknown backend %q", s))
}

// MarshalText renders the protocol name in reports and settings dumps.
func (p Protocol) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// MarshalText renders the backend name in reports and settings dumps.
func (b Backend) MarshalText() ([]byte, error) { return []byte(b.String()), nil }
