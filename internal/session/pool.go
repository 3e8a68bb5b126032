// File: internal/session/pool.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Connection pool: owns the arena and routes completions to connections.

package session

import (
	"errors"
	"net/netip"

	"go.uber.org/zap"

	"github.com/momentics/hioload-burn/api"
	"github.com/momentics/hioload-burn/internal/uring"
	"github.com/momentics/hioload-burn/pool"
	"github.com/momentics/hioload-burn/stats"
)

// Config describes the connections a pool opens.
type Config struct {
	Connections int
	Protocol    api.Protocol
	// Direct requests ring-managed descriptors. Ignored when the ring
	// does not support them.
	Direct bool
	// SeedBase seeds connection i with SeedBase+i.
	SeedBase uint64
}

// Pool owns one worker's connections and their buffers.
type Pool struct {
	ring  uring.Ring
	arena *pool.Arena
	conns []Connection
	ep    *endpoint
}

// NewPool maps and registers the arena, then primes every connection so
// that each has its socket request queued on ring.
func NewPool(ring uring.Ring, target netip.AddrPort, cfg Config, log *zap.Logger) (*Pool, error) {
	if cfg.Connections <= 0 {
		return nil, api.Wrap(api.ErrInvalidArgument, api.ErrCodeInvalidArgument, "pool needs at least one connection")
	}
	if log == nil {
		log = zap.NewNop()
	}
	domain, typ, err := socketParams(target, cfg.Protocol)
	if err != nil {
		return nil, err
	}

	arena, err := pool.NewArena(cfg.Connections)
	if err != nil {
		return nil, err
	}

	feat := ring.Features()
	ep := &endpoint{
		target:   target,
		domain:   domain,
		sockType: typ,
		direct:   cfg.Direct && feat.DirectDescriptors,
		fixed:    feat.FixedBuffers,
		zeroCopy: feat.ZeroCopySend,
		log:      log,
	}

	if ep.fixed {
		if err := ring.RegisterBuffer(arena.Bytes()); err != nil {
			_ = arena.Close()
			return nil, err
		}
	}
	if ep.direct {
		if err := ring.RegisterSparseFiles(uint32(cfg.Connections)); err != nil {
			_ = arena.Close()
			return nil, err
		}
	}

	p := &Pool{
		ring:  ring,
		arena: arena,
		conns: make([]Connection, cfg.Connections),
		ep:    ep,
	}
	for i := range p.conns {
		p.conns[i] = newConnection(uint32(i), cfg.SeedBase+uint64(i), ep)
	}
	for i := range p.conns {
		if _, err := p.conns[i].Advance(ring, nil, arena.Slot(i)); err != nil {
			_ = p.Close()
			return nil, err
		}
	}
	log.Debug("pool primed",
		zap.Int("connections", cfg.Connections),
		zap.Stringer("target", target),
		zap.Stringer("proto", cfg.Protocol),
		zap.Bool("direct", ep.direct),
		zap.Bool("fixed_buffers", ep.fixed),
		zap.Bool("zero_copy", ep.zeroCopy))
	return p, nil
}

// Len returns the number of connections.
func (p *Pool) Len() int { return len(p.conns) }

// Connection returns connection i.
func (p *Pool) Connection(i int) *Connection { return &p.conns[i] }

// DirectDescriptors reports whether sockets are ring managed.
func (p *Pool) DirectDescriptors() bool { return p.ep.direct }

// Dispatch routes cqe to its connection and folds the outcome into st.
// An error other than api.ErrUnknownCorrelation is fatal for the worker.
func (p *Pool) Dispatch(cqe uring.CQE, st *stats.Statistics) error {
	idx := cqe.UserData
	if idx >= uint64(len(p.conns)) {
		return api.Wrap(api.ErrUnknownCorrelation, api.ErrCodeInternal, "dispatch").
			WithContext("user_data", idx)
	}
	out, err := p.conns[idx].Advance(p.ring, &cqe, p.arena.Slot(int(idx)))
	record(out, st)
	return err
}

func record(out Outcome, st *stats.Statistics) {
	if out.Has(ConnectFailed) {
		st.IncrementConnectFail()
	}
	if out.Has(Matched) {
		st.IncrementSuccessfulReturns()
	}
	if out.Has(Mismatched) {
		st.IncrementWrongReturns()
	}
	if out.Has(SendFailed) {
		st.SendErrors++
	}
	if out.Has(ReadFailed) {
		st.ReadErrors++
	}
}

// Close closes plain sockets and unmaps the arena. Direct descriptors are
// released with the ring, which must already be closed so that no request
// still references the arena.
func (p *Pool) Close() error {
	var errs []error
	if !p.ep.direct {
		for i := range p.conns {
			if fd := p.conns[i].fd; fd >= 0 {
				if err := closeFD(fd); err != nil {
					errs = append(errs, err)
				}
				p.conns[i].fd = -1
			}
		}
	}
	if p.arena != nil {
		errs = append(errs, p.arena.Close())
	}
	return errors.Join(errs...)
}
