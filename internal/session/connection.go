// File: internal/session/connection.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Echo connection state machine. Advance is the only place a connection
// creates ring submissions.

package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math/rand/v2"
	"net/netip"

	"go.uber.org/zap"

	"github.com/momentics/hioload-burn/api"
	"github.com/momentics/hioload-burn/internal/uring"
	"github.com/momentics/hioload-burn/pool"
)

const seedMix = 0x9e3779b97f4a7c15

// endpoint is the configuration shared by every connection of a pool.
type endpoint struct {
	target   netip.AddrPort
	domain   int
	sockType int

	direct   bool // sockets live in the ring's registered file table
	fixed    bool // arena is registered as fixed buffer 0
	zeroCopy bool

	log *zap.Logger
}

// Connection is one echo session.
type Connection struct {
	index    uint32
	fd       int32
	state    State
	rng      *rand.PCG
	addr     *sockaddr
	inflight bool

	ep *endpoint
}

func newConnection(index uint32, seed uint64, ep *endpoint) Connection {
	return Connection{
		index: index,
		fd:    -1,
		state: StateNewSock,
		rng:   rand.NewPCG(seed, seed^seedMix),
		ep:    ep,
	}
}

// Index returns the connection's slot and correlation id.
func (c *Connection) Index() uint32 { return c.index }

// State returns the completion the connection is waiting for.
func (c *Connection) State() State { return c.state }

// InFlight reports whether an operation is outstanding.
func (c *Connection) InFlight() bool { return c.inflight }

// FD returns the socket, or its direct slot when descriptors are managed by
// the ring. It is -1 before the socket exists.
func (c *Connection) FD() int32 { return c.fd }

// Advance feeds one completion (nil for the very first step) to the
// connection and emits at most one follow-up operation. slot must be the
// connection's own arena slot.
func (c *Connection) Advance(ring uring.Ring, cqe *uring.CQE, slot pool.Slot) (Outcome, error) {
	if cqe == nil {
		if c.state != StateNewSock {
			return 0, api.ErrOperationInFlight
		}
		return 0, c.emitSocket(ring)
	}
	if !cqe.More() {
		c.inflight = false
	}

	switch c.state {
	case StateConnect:
		if cqe.Res < 0 {
			cause := errors.Join(api.ErrSocketCreate, resultError(cqe.Res))
			return 0, api.Wrap(cause, api.ErrCodeSocket, "create socket").
				WithContext("conn", c.index)
		}
		c.fd = cqe.Res
		c.addr = newSockaddr(c.ep.target)
		if err := c.emitConnect(ring); err != nil {
			return 0, err
		}
		c.state = StateSetup
		return 0, nil

	case StateSetup:
		if cqe.Res < 0 {
			c.addr = newSockaddr(c.ep.target)
			return ConnectFailed, c.emitConnect(ring)
		}
		c.addr = nil
		c.fill(slot.Send)
		if err := c.emitSend(ring, slot.Send); err != nil {
			return 0, err
		}
		c.state = StateReceive
		return 0, nil

	case StateReceive:
		var out Outcome
		if !cqe.Notif() && cqe.Res < 0 {
			out |= SendFailed
			c.ep.log.Warn("send failed", zap.Uint32("conn", c.index), zap.Error(resultError(cqe.Res)))
		}
		if cqe.More() {
			// The buffer is still referenced by the kernel until the
			// notification arrives.
			return out, nil
		}
		if err := c.emitRead(ring, slot.Recv); err != nil {
			return out, err
		}
		c.state = StateSend
		return out, nil

	case StateSend:
		var out Outcome
		if cqe.Res < 0 {
			out |= ReadFailed | Mismatched
			c.ep.log.Warn("read failed", zap.Uint32("conn", c.index), zap.Error(resultError(cqe.Res)))
		} else if int(cqe.Res) == len(slot.Send) && bytes.Equal(slot.Recv[:cqe.Res], slot.Send) {
			out |= Matched
		} else {
			out |= Mismatched
		}
		c.fill(slot.Send)
		if err := c.emitSend(ring, slot.Send); err != nil {
			return out, err
		}
		c.state = StateReceive
		return out, nil
	}
	return 0, api.NewError(api.ErrCodeInternal, "completion in state "+c.state.String()).
		WithContext("conn", c.index)
}

// fill writes the next pseudo-random payload.
func (c *Connection) fill(buf []byte) {
	var i int
	for ; i+8 <= len(buf); i += 8 {
		binary.LittleEndian.PutUint64(buf[i:], c.rng.Uint64())
	}
	if i < len(buf) {
		var tail [8]byte
		binary.LittleEndian.PutUint64(tail[:], c.rng.Uint64())
		copy(buf[i:], tail[:])
	}
}

// reserve claims the connection's single submission slot.
func (c *Connection) reserve(ring uring.Ring) (*uring.SQE, error) {
	if c.inflight {
		return nil, api.Wrap(api.ErrOperationInFlight, api.ErrCodeInternal, "emit while in flight").
			WithContext("conn", c.index).
			WithContext("state", c.state.String())
	}
	sqe, err := ring.Reserve()
	if err != nil {
		return nil, err
	}
	c.inflight = true
	sqe.SetUserData(uint64(c.index))
	return sqe, nil
}

func (c *Connection) emitSocket(ring uring.Ring) error {
	sqe, err := c.reserve(ring)
	if err != nil {
		return err
	}
	if c.ep.direct {
		sqe.PrepSocketDirectAlloc(c.ep.domain, c.ep.sockType, 0)
	} else {
		sqe.PrepSocket(c.ep.domain, c.ep.sockType, 0)
	}
	c.state = StateConnect
	return nil
}

func (c *Connection) emitConnect(ring uring.Ring) error {
	sqe, err := c.reserve(ring)
	if err != nil {
		return err
	}
	ptr, n := c.addr.raw()
	sqe.PrepConnect(c.fd, ptr, n)
	c.finish(sqe)
	return nil
}

func (c *Connection) emitSend(ring uring.Ring, buf []byte) error {
	sqe, err := c.reserve(ring)
	if err != nil {
		return err
	}
	switch {
	case c.ep.zeroCopy && c.ep.fixed:
		sqe.PrepSendZCFixed(c.fd, buf, 0, 0)
	case c.ep.zeroCopy:
		sqe.PrepSendZC(c.fd, buf, 0)
	default:
		sqe.PrepSend(c.fd, buf, 0)
	}
	c.finish(sqe)
	return nil
}

func (c *Connection) emitRead(ring uring.Ring, buf []byte) error {
	sqe, err := c.reserve(ring)
	if err != nil {
		return err
	}
	if c.ep.fixed {
		sqe.PrepReadFixed(c.fd, buf, 0)
	} else {
		sqe.PrepRead(c.fd, buf)
	}
	c.finish(sqe)
	return nil
}

// finish marks fd as a direct slot when sockets are ring managed.
func (c *Connection) finish(sqe *uring.SQE) {
	if c.ep.direct {
		sqe.SetFixedFile()
	}
}
