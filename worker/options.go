// File: worker/options.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Functional options for Worker.

package worker

import (
	"errors"

	"go.uber.org/zap"

	"github.com/momentics/hioload-burn/api"
	"github.com/momentics/hioload-burn/control"
	"github.com/momentics/hioload-burn/internal/logger"
	"github.com/momentics/hioload-burn/internal/uring"
	"github.com/momentics/hioload-burn/reactor"
)

// RingFactory creates the ring for a worker opening conns connections.
// It runs on the worker's locked thread.
type RingFactory func(cfg control.Settings, conns int) (uring.Ring, error)

// Option configures a Worker.
type Option func(*Worker)

// WithRingFactory replaces the ring backend.
func WithRingFactory(f RingFactory) Option {
	return func(w *Worker) { w.newRing = f }
}

// WithLogger sets the parent logger.
func WithLogger(l *zap.Logger) Option {
	return func(w *Worker) { w.log = l }
}

// WithCPU pins the worker thread to cpu.
func WithCPU(cpu int) Option {
	return func(w *Worker) { w.cpu = cpu }
}

// WithConnections overrides the per-worker connection count.
func WithConnections(n int) Option {
	return func(w *Worker) { w.connections = n }
}

// DefaultRingFactory honours cfg.Backend. In auto mode io_uring is tried
// first and the epoll reactor is used when the kernel refuses it.
func DefaultRingFactory(cfg control.Settings, conns int) (uring.Ring, error) {
	opts := []uring.Option{
		uring.WithEntries(control.QueueDepth),
		uring.WithCQEntries(uring.CQEntriesFor(conns)),
	}
	switch cfg.Backend {
	case api.BackendUring:
		return newUring(opts)
	case api.BackendEpoll:
		return newReactor(opts)
	}
	r, err := newUring(opts)
	if err == nil {
		return r, nil
	}
	logger.Get().Named("worker").Info("io_uring unavailable, using epoll",
		zap.Bool("not_supported", errors.Is(err, api.ErrNotSupported)), zap.Error(err))
	return newReactor(opts)
}

func newUring(opts []uring.Option) (uring.Ring, error) {
	r, err := uring.New(opts...)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func newReactor(opts []uring.Option) (uring.Ring, error) {
	r, err := reactor.New(opts...)
	if err != nil {
		return nil, err
	}
	return r, nil
}
