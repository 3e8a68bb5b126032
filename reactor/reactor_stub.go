//go:build !linux
// +build !linux

// File: reactor/reactor_stub.go
// Author: momentics <momentics@gmail.com>
//
// Stub implementation for unsupported platforms.

package reactor

import (
	"time"

	"github.com/eapache/queue"

	"github.com/momentics/hioload-burn/api"
	"github.com/momentics/hioload-burn/internal/uring"
)

// Ring is unavailable on this platform.
type Ring struct{}

var _ uring.Ring = (*Ring)(nil)

// New returns an error for unsupported platforms.
func New(opts ...uring.Option) (*Ring, error) {
	return nil, api.Wrap(api.ErrNotSupported, api.ErrCodeNotSupported, "reactor: this platform is not supported")
}

func (r *Ring) Reserve() (*uring.SQE, error) { return nil, api.ErrNotSupported }

func (r *Ring) SubmitAndWait(uint32, *queue.Queue) (time.Time, error) {
	return time.Time{}, api.ErrNotSupported
}

func (r *Ring) RegisterBuffer([]byte) error { return api.ErrNotSupported }
func (r *Ring) RegisterSparseFiles(uint32) error { return api.ErrNotSupported }
func (r *Ring) Features() uring.Features { return features }
func (r *Ring) Close() error { return nil }
