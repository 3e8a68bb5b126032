//go:build linux

// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

package fake

import (
	"time"
	"unsafe"

	"github.com/eapache/queue"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-burn/api"
	"github.com/momentics/hioload-burn/internal/uring"
)

// plainFDBase is far above any real descriptor, so closing a fake plain
// socket fails with EBADF instead of hitting a file the test owns.
const plainFDBase = 1 << 20

type echoTimer struct {
	deadline time.Time
	userData uint64
}

// EchoRing completes every request immediately as a local echo peer would.
// TIMEOUT requests fire on the wall clock.
type EchoRing struct {
	Feat uring.Features

	// RefuseConnects refuses the first N connect attempts across all
	// connections; negative refuses every attempt.
	RefuseConnects int
	// FlipBytes inverts that many leading bytes of every echo.
	FlipBytes int
	// FailSocket fails every socket request with EMFILE.
	FailSocket bool
	// SplitNotif delivers zero-copy notifications one batch late.
	SplitNotif bool

	ConnectAttempts int
	Batches         int
	Closes          int
	// Violations counts submissions for a user data that already had an
	// operation outstanding.
	Violations int

	nextFD      int32
	nextSlot    int32
	last        map[int32][]byte
	outstanding map[uint64]bool

	pending  []*uring.SQE
	ready    []uring.CQE
	deferred []uring.CQE
	timers   []echoTimer
}

var _ uring.Ring = (*EchoRing)(nil)

// NewEchoRing returns a byte-perfect echo ring advertising feat.
func NewEchoRing(feat uring.Features) *EchoRing {
	return &EchoRing{
		Feat:        feat,
		nextFD:      plainFDBase,
		last:        make(map[int32][]byte),
		outstanding: make(map[uint64]bool),
	}
}

func (r *EchoRing) Reserve() (*uring.SQE, error) {
	if r.Closes > 0 {
		return nil, api.ErrRingClosed
	}
	sqe := &uring.SQE{}
	r.pending = append(r.pending, sqe)
	return sqe, nil
}

func (r *EchoRing) SubmitAndWait(min uint32, out *queue.Queue) (time.Time, error) {
	if r.Closes > 0 {
		return time.Time{}, api.ErrRingClosed
	}
	r.Batches++
	r.ready = append(r.ready, r.deferred...)
	r.deferred = r.deferred[:0]

	pending := r.pending
	r.pending = nil
	for _, sqe := range pending {
		r.perform(sqe)
	}

	now := time.Now()
	if len(r.ready) < int(min) && len(r.timers) > 0 {
		next := r.timers[0].deadline
		for _, t := range r.timers[1:] {
			if t.deadline.Before(next) {
				next = t.deadline
			}
		}
		time.Sleep(next.Sub(now))
		now = time.Now()
	}
	kept := r.timers[:0]
	for _, t := range r.timers {
		if now.Before(t.deadline) {
			kept = append(kept, t)
			continue
		}
		r.ready = append(r.ready, uring.CQE{UserData: t.userData, Res: -int32(unix.ETIME)})
	}
	r.timers = kept

	for _, c := range r.ready {
		if !c.More() {
			delete(r.outstanding, c.UserData)
		}
		out.Add(c)
	}
	r.ready = r.ready[:0]
	return now, nil
}

func (r *EchoRing) complete(userData uint64, res int32, flags uint32) {
	r.ready = append(r.ready, uring.CQE{UserData: userData, Res: res, Flags: flags})
}

func (r *EchoRing) perform(sqe *uring.SQE) {
	if sqe.Opcode == uring.OpTimeout {
		ts := (*uring.Timespec)(unsafe.Pointer(uintptr(sqe.Addr)))
		d := time.Duration(ts.Sec)*time.Second + time.Duration(ts.Nsec)
		r.timers = append(r.timers, echoTimer{deadline: time.Now().Add(d), userData: sqe.UserData})
		return
	}
	if r.outstanding[sqe.UserData] {
		r.Violations++
	}
	r.outstanding[sqe.UserData] = true

	switch sqe.Opcode {
	case uring.OpNop:
		r.complete(sqe.UserData, 0, 0)
	case uring.OpSocket:
		switch {
		case r.FailSocket:
			r.complete(sqe.UserData, -int32(unix.EMFILE), 0)
		case sqe.FileIndex == uring.FileIndexAlloc:
			r.complete(sqe.UserData, r.nextSlot, 0)
			r.nextSlot++
		default:
			r.complete(sqe.UserData, r.nextFD, 0)
			r.nextFD++
		}
	case uring.OpConnect:
		r.ConnectAttempts++
		if r.RefuseConnects < 0 || r.ConnectAttempts <= r.RefuseConnects {
			r.complete(sqe.UserData, -int32(unix.ECONNREFUSED), 0)
			return
		}
		r.complete(sqe.UserData, 0, 0)
	case uring.OpSend, uring.OpSendZC:
		payload := append([]byte(nil), sqe.Buffer()...)
		for i := 0; i < r.FlipBytes && i < len(payload); i++ {
			payload[i] ^= 0xff
		}
		r.last[sqe.Fd] = payload
		if sqe.Opcode == uring.OpSend {
			r.complete(sqe.UserData, int32(len(payload)), 0)
			return
		}
		r.complete(sqe.UserData, int32(len(payload)), uring.CQEFMore)
		notif := uring.CQE{UserData: sqe.UserData, Flags: uring.CQEFNotif}
		if r.SplitNotif {
			r.deferred = append(r.deferred, notif)
		} else {
			r.ready = append(r.ready, notif)
		}
	case uring.OpRead, uring.OpReadFixed:
		n := copy(sqe.Buffer(), r.last[sqe.Fd])
		delete(r.last, sqe.Fd)
		r.complete(sqe.UserData, int32(n), 0)
	default:
		r.complete(sqe.UserData, -int32(unix.EINVAL), 0)
	}
}

func (r *EchoRing) RegisterBuffer([]byte) error { return nil }

func (r *EchoRing) RegisterSparseFiles(uint32) error { return nil }

func (r *EchoRing) Features() uring.Features { return r.Feat }

func (r *EchoRing) Close() error {
	r.Closes++
	return nil
}
