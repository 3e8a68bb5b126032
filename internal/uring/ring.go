// File: internal/uring/ring.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Backend-neutral completion ring contract used by the session and worker
// layers.

package uring

import (
	"time"

	"github.com/eapache/queue"
)

// Ring is a single-issuer completion ring. Only the goroutine (locked to its
// OS thread) that created the ring may call its methods.
type Ring interface {
	// Reserve returns a zeroed submission slot. When the queue is full it
	// flushes pending submissions without waiting and retries once.
	Reserve() (*SQE, error)

	// SubmitAndWait submits everything reserved so far, blocks until at
	// least min completions are available and appends every ready CQE to
	// out in delivery order. It returns the time the batch was reaped.
	SubmitAndWait(min uint32, out *queue.Queue) (time.Time, error)

	// RegisterBuffer registers buf as fixed buffer index 0.
	RegisterBuffer(buf []byte) error

	// RegisterSparseFiles registers an empty direct descriptor table of n slots.
	RegisterSparseFiles(n uint32) error

	// Features reports what the backend can do.
	Features() Features

	// Close releases all ring resources. Safe to call more than once.
	Close() error
}

// Features advertises backend capabilities.
type Features struct {
	Name              string
	FixedBuffers      bool
	DirectDescriptors bool
	ZeroCopySend      bool
}

// Config holds ring construction parameters.
type Config struct {
	Entries   uint32
	CQEntries uint32
}

// Option customizes ring construction.
type Option func(*Config)

// WithEntries sets the submission queue depth.
func WithEntries(n uint32) Option {
	return func(c *Config) { c.Entries = n }
}

// WithCQEntries sets the completion queue depth; it is rounded up by the kernel.
func WithCQEntries(n uint32) Option {
	return func(c *Config) { c.CQEntries = n }
}

// CQEntriesFor sizes the completion queue for conns connections: a
// zero-copy send posts two completions, plus room for the deadline timer.
// The result is clamped to MaxCQEntries.
func CQEntriesFor(conns int) uint32 {
	if conns < 0 || conns > (MaxCQEntries-2)/4 {
		return MaxCQEntries
	}
	return uint32(4*conns + 2)
}

// NewConfig applies opts over the defaults.
func NewConfig(opts ...Option) Config {
	cfg := Config{Entries: DefaultEntries}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.Entries == 0 {
		cfg.Entries = DefaultEntries
	}
	if cfg.CQEntries < 2*cfg.Entries {
		cfg.CQEntries = 2 * cfg.Entries
	}
	return cfg
}

// Pop removes the oldest completion from q.
func Pop(q *queue.Queue) (CQE, bool) {
	if q.Length() == 0 {
		return CQE{}, false
	}
	return q.Remove().(CQE), true
}
