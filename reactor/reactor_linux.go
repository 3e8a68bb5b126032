//go:build linux
// +build linux

// File: reactor/reactor_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Linux epoll(7)-based emulation of the completion ring.

package reactor

import (
	"errors"
	"sync"
	"time"
	"unsafe"

	"github.com/eapache/queue"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-burn/api"
	"github.com/momentics/hioload-burn/internal/uring"
)

// Ring is an epoll-backed uring.Ring. Like the kernel ring it is single
// issuer and holds no locks.
type Ring struct {
	epfd int

	slab     []uring.SQE
	reserved int

	parked map[int32]uring.SQE
	armed  map[int32]bool
	timers []timer

	ready  []uring.CQE
	events []unix.EpollEvent

	closeOnce sync.Once
	closed    bool
}

var _ uring.Ring = (*Ring)(nil)

// New constructs a reactor that accepts up to entries reservations between
// submissions.
func New(opts ...uring.Option) (*Ring, error) {
	cfg := uring.NewConfig(opts...)
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, api.Wrap(err, api.ErrCodeRingSetup, "epoll create")
	}
	return &Ring{
		epfd:   epfd,
		slab:   make([]uring.SQE, cfg.Entries),
		parked: make(map[int32]uring.SQE),
		armed:  make(map[int32]bool),
		events: make([]unix.EpollEvent, 128),
	}, nil
}

// Reserve returns a zeroed slot from the submission slab.
func (r *Ring) Reserve() (*uring.SQE, error) {
	if r.closed {
		return nil, api.ErrRingClosed
	}
	if r.reserved == len(r.slab) {
		r.flush()
		if r.reserved == len(r.slab) {
			return nil, api.ErrSubmissionQueueFull
		}
	}
	sqe := &r.slab[r.reserved]
	*sqe = uring.SQE{}
	r.reserved++
	return sqe, nil
}

// flush performs every reserved request, completing or parking each.
func (r *Ring) flush() {
	for i := 0; i < r.reserved; i++ {
		r.perform(r.slab[i], time.Now())
	}
	r.reserved = 0
}

// SubmitAndWait performs reserved requests and waits for min completions.
// It returns early when nothing is parked and no timer is armed, since no
// further completion could ever arrive.
func (r *Ring) SubmitAndWait(min uint32, out *queue.Queue) (time.Time, error) {
	if r.closed {
		return time.Time{}, api.ErrRingClosed
	}
	r.flush()
	r.fireTimers(time.Now())

	for len(r.ready) < int(min) {
		if len(r.parked) == 0 && len(r.timers) == 0 {
			break
		}
		n, err := unix.EpollWait(r.epfd, r.events, r.nextTimeout(time.Now()))
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return time.Time{}, err
		}
		for i := 0; i < n; i++ {
			r.resume(r.events[i].Fd, r.events[i].Events)
		}
		r.fireTimers(time.Now())
	}

	now := time.Now()
	for _, c := range r.ready {
		out.Add(c)
	}
	r.ready = r.ready[:0]
	return now, nil
}

func (r *Ring) complete(userData uint64, res int32, flags uint32) {
	r.ready = append(r.ready, uring.CQE{UserData: userData, Res: res, Flags: flags})
}

func errnoResult(err error) int32 {
	var errno unix.Errno
	if errors.As(err, &errno) {
		return -int32(errno)
	}
	return -int32(unix.EIO)
}

func (r *Ring) perform(sqe uring.SQE, now time.Time) {
	if sqe.Flags&uring.SQEFixedFile != 0 {
		r.complete(sqe.UserData, -int32(unix.EBADF), 0)
		return
	}
	switch sqe.Opcode {
	case uring.OpNop:
		r.complete(sqe.UserData, 0, 0)
	case uring.OpSocket:
		r.socket(sqe)
	case uring.OpConnect:
		r.connect(sqe)
	case uring.OpSend, uring.OpSendZC:
		r.send(sqe)
	case uring.OpRead, uring.OpReadFixed:
		r.read(sqe)
	case uring.OpTimeout:
		ts := (*uring.Timespec)(unsafe.Pointer(uintptr(sqe.Addr)))
		r.timers = append(r.timers, timer{deadline: now.Add(durationOf(ts)), userData: sqe.UserData})
	default:
		r.complete(sqe.UserData, -int32(unix.EINVAL), 0)
	}
}

func (r *Ring) socket(sqe uring.SQE) {
	if sqe.FileIndex != 0 {
		r.complete(sqe.UserData, -int32(unix.EOPNOTSUPP), 0)
		return
	}
	fd, err := unix.Socket(int(sqe.Fd), int(sqe.Off)|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, int(sqe.Len))
	if err != nil {
		r.complete(sqe.UserData, errnoResult(err), 0)
		return
	}
	r.complete(sqe.UserData, int32(fd), 0)
}

func (r *Ring) connect(sqe uring.SQE) {
	_, _, errno := unix.Syscall(unix.SYS_CONNECT, uintptr(sqe.Fd), uintptr(sqe.Addr), uintptr(sqe.Off))
	switch errno {
	case 0:
		r.complete(sqe.UserData, 0, 0)
	case unix.EINPROGRESS, unix.EALREADY:
		r.park(sqe, unix.EPOLLOUT)
	default:
		r.complete(sqe.UserData, -int32(errno), 0)
	}
}

func (r *Ring) send(sqe uring.SQE) {
	n, err := unix.Write(int(sqe.Fd), sqe.Buffer())
	if errors.Is(err, unix.EAGAIN) {
		r.park(sqe, unix.EPOLLOUT)
		return
	}
	if err != nil {
		r.complete(sqe.UserData, errnoResult(err), 0)
		return
	}
	if sqe.Opcode == uring.OpSendZC {
		// Same two-completion shape as the kernel: result, then release.
		r.complete(sqe.UserData, int32(n), uring.CQEFMore)
		r.complete(sqe.UserData, 0, uring.CQEFNotif)
		return
	}
	r.complete(sqe.UserData, int32(n), 0)
}

func (r *Ring) read(sqe uring.SQE) {
	n, err := unix.Read(int(sqe.Fd), sqe.Buffer())
	if errors.Is(err, unix.EAGAIN) {
		r.park(sqe, unix.EPOLLIN)
		return
	}
	if err != nil {
		r.complete(sqe.UserData, errnoResult(err), 0)
		return
	}
	r.complete(sqe.UserData, int32(n), 0)
}

// park waits for readiness on the request's descriptor. A descriptor has
// at most one parked request because a connection has at most one
// operation outstanding.
func (r *Ring) park(sqe uring.SQE, events uint32) {
	ev := unix.EpollEvent{Events: events | unix.EPOLLONESHOT, Fd: sqe.Fd}
	op := unix.EPOLL_CTL_MOD
	if !r.armed[sqe.Fd] {
		op = unix.EPOLL_CTL_ADD
	}
	if err := unix.EpollCtl(r.epfd, op, int(sqe.Fd), &ev); err != nil {
		r.complete(sqe.UserData, errnoResult(err), 0)
		return
	}
	r.armed[sqe.Fd] = true
	r.parked[sqe.Fd] = sqe
}

func (r *Ring) resume(fd int32, events uint32) {
	sqe, ok := r.parked[fd]
	if !ok {
		return
	}
	delete(r.parked, fd)

	if sqe.Opcode == uring.OpConnect {
		soErr, err := unix.GetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_ERROR)
		if err != nil {
			r.complete(sqe.UserData, errnoResult(err), 0)
			return
		}
		r.complete(sqe.UserData, -int32(soErr), 0)
		return
	}
	r.perform(sqe, time.Now())
}

func (r *Ring) nextTimeout(now time.Time) int {
	if len(r.timers) == 0 {
		return -1
	}
	next := r.timers[0].deadline
	for _, t := range r.timers[1:] {
		if t.deadline.Before(next) {
			next = t.deadline
		}
	}
	return timeoutMillis(now, next)
}

func (r *Ring) fireTimers(now time.Time) {
	kept := r.timers[:0]
	for _, t := range r.timers {
		if now.Before(t.deadline) {
			kept = append(kept, t)
			continue
		}
		r.complete(t.userData, -int32(unix.ETIME), 0)
	}
	r.timers = kept
}

// RegisterBuffer is accepted and ignored: reads and writes copy.
func (r *Ring) RegisterBuffer([]byte) error { return nil }

// RegisterSparseFiles is unsupported; descriptors are always plain.
func (r *Ring) RegisterSparseFiles(uint32) error {
	return api.Wrap(api.ErrNotSupported, api.ErrCodeNotSupported, "epoll reactor has no direct descriptors")
}

// Features reports copying I/O with plain descriptors.
func (r *Ring) Features() uring.Features { return features }

// Close releases the epoll instance. Parked requests are abandoned.
func (r *Ring) Close() error {
	var err error
	r.closeOnce.Do(func() {
		r.closed = true
		r.parked = nil
		r.timers = nil
		err = unix.Close(r.epfd)
	})
	return err
}
