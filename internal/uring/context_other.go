//go:build !linux
// +build !linux

// File: internal/uring/context_other.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package uring

import (
	"time"

	"github.com/eapache/queue"

	"github.com/momentics/hioload-burn/api"
)

// Context is unavailable outside Linux.
type Context struct{}

var _ Ring = (*Context)(nil)

// New always fails on this platform.
func New(opts ...Option) (*Context, error) {
	return nil, api.Wrap(api.ErrNotSupported, api.ErrCodeNotSupported, "io_uring requires linux")
}

func (r *Context) Reserve() (*SQE, error) { return nil, api.ErrNotSupported }

func (r *Context) SubmitAndWait(uint32, *queue.Queue) (time.Time, error) {
	return time.Time{}, api.ErrNotSupported
}

func (r *Context) RegisterBuffer([]byte) error { return api.ErrNotSupported }
func (r *Context) RegisterSparseFiles(uint32) error { return api.ErrNotSupported }
func (r *Context) Features() Features { return Features{Name: "none"} }
func (r *Context) Close() error { return nil }
