// File: pool/arena.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Fixed per-worker buffer arena. One contiguous, page-aligned region split
// into equal slots, one per connection. The region is registered with the
// ring once and never grows, so addresses handed to the kernel stay valid
// for the arena's lifetime.

package pool

import (
	"fmt"

	"github.com/momentics/hioload-burn/api"
)

const (
	// SendSize is the payload size of one echo request.
	SendSize = 4096
	// RecvSize is the receive capacity of one connection.
	RecvSize = 4096
	// SlotSize is the arena footprint of one connection.
	SlotSize = SendSize + RecvSize
)

// Slot is the disjoint send/receive view owned by one connection.
type Slot struct {
	Send []byte
	Recv []byte
}

// Arena owns the mapped region.
type Arena struct {
	mem   []byte
	slots int
}

// NewArena maps room for n slots.
func NewArena(n int) (*Arena, error) {
	if n <= 0 {
		return nil, api.Wrap(api.ErrInvalidArgument, api.ErrCodeInvalidArgument, "arena needs at least one slot")
	}
	mem, err := mapRegion(n * SlotSize)
	if err != nil {
		return nil, api.Wrap(err, api.ErrCodeResourceExhausted, fmt.Sprintf("map %d byte arena", n*SlotSize))
	}
	return &Arena{mem: mem, slots: n}, nil
}

// Bytes returns the whole region, used for ring registration.
func (a *Arena) Bytes() []byte { return a.mem }

// Len returns the number of slots.
func (a *Arena) Len() int { return a.slots }

// Slot returns the views of slot i. Capacities are clipped so appending
// to one view can never spill into a neighbour.
func (a *Arena) Slot(i int) Slot {
	base := i * SlotSize
	return Slot{
		Send: a.mem[base : base+SendSize : base+SendSize],
		Recv: a.mem[base+SendSize : base+SlotSize : base+SlotSize],
	}
}

// Close releases the region. Slots must not be used afterwards.
func (a *Arena) Close() error {
	if a.mem == nil {
		return nil
	}
	err := unmapRegion(a.mem)
	a.mem = nil
	return err
}
