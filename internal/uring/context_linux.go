//go:build linux
// +build linux

// File: internal/uring/context_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Kernel io_uring ring owned by a single worker thread. Rings are mapped
// directly and driven through raw io_uring_setup/enter/register syscalls.

package uring

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/eapache/queue"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-burn/api"
)

const (
	registerProbe    = 8
	probeOpSupported = 1 << 0
	probeOps         = 256
)

type probeOp struct {
	Op    uint8
	Resv  uint8
	Flags uint16
	Resv2 uint32
}

type probe struct {
	LastOp uint8
	OpsLen uint8
	Resv   uint16
	Resv2  [3]uint32
	Ops    [probeOps]probeOp
}

// Context is a kernel io_uring instance.
type Context struct {
	fd int

	sqRing  []byte
	cqRing  []byte
	sqesMap []byte

	sqHead    *uint32
	sqTail    *uint32
	sqMask    uint32
	sqEntries uint32
	sqArray   []uint32
	sqes      []SQE

	// Reserved but not yet published entries live in [sqeHead, sqeTail).
	sqeHead uint32
	sqeTail uint32

	cqHead *uint32
	cqTail *uint32
	cqMask uint32
	cqes   []CQE

	features  Features
	closeOnce sync.Once
	closed    bool
}

var _ Ring = (*Context)(nil)

// New creates a ring in single-issuer, deferred-taskrun mode. The calling
// goroutine must already be locked to its OS thread.
func New(opts ...Option) (*Context, error) {
	cfg := NewConfig(opts...)

	flagSets := []uint32{
		SetupClamp | SetupCQSize | SetupSingleIssuer | SetupDeferTaskrun,
		SetupClamp | SetupCQSize | SetupCoopTaskrun,
		SetupClamp | SetupCQSize,
	}

	var (
		p     params
		fd    uintptr
		errno unix.Errno
	)
	for _, flags := range flagSets {
		p = params{Flags: flags, CQEntries: cfg.CQEntries}
		fd, _, errno = unix.Syscall(unix.SYS_IO_URING_SETUP, uintptr(cfg.Entries), uintptr(unsafe.Pointer(&p)), 0)
		if errno != unix.EINVAL {
			break
		}
	}
	if errno != 0 {
		cause := error(errno)
		if errno == unix.ENOSYS || errno == unix.EPERM {
			cause = errors.Join(api.ErrNotSupported, errno)
		}
		return nil, api.Wrap(cause, api.ErrCodeRingSetup, api.ErrRingSetup.Error()).
			WithContext("entries", cfg.Entries)
	}

	r := &Context{fd: int(fd)}
	if err := r.mapRings(&p); err != nil {
		_ = unix.Close(r.fd)
		return nil, api.Wrap(err, api.ErrCodeRingSetup, "mmap rings")
	}

	supported := r.probe()
	if !supported[OpSocket] || !supported[OpConnect] {
		_ = r.Close()
		return nil, api.Wrap(api.ErrNotSupported, api.ErrCodeNotSupported, "kernel ring lacks socket/connect opcodes")
	}
	r.features = Features{
		Name:              "io_uring",
		FixedBuffers:      supported[OpReadFixed],
		DirectDescriptors: true,
		ZeroCopySend:      supported[OpSendZC],
	}
	return r, nil
}

func (r *Context) mapRings(p *params) error {
	sqRingSize := int(p.SQOff.Array + p.SQEntries*4)
	cqRingSize := int(p.CQOff.CQEs + p.CQEntries*cqeSize)

	sqRing, err := unix.Mmap(r.fd, offSQRing, sqRingSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_POPULATE)
	if err != nil {
		return err
	}
	cqRing, err := unix.Mmap(r.fd, offCQRing, cqRingSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_POPULATE)
	if err != nil {
		_ = unix.Munmap(sqRing)
		return err
	}
	sqesMap, err := unix.Mmap(r.fd, offSQEs, int(p.SQEntries)*sqeSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_POPULATE)
	if err != nil {
		_ = unix.Munmap(cqRing)
		_ = unix.Munmap(sqRing)
		return err
	}
	r.sqRing, r.cqRing, r.sqesMap = sqRing, cqRing, sqesMap

	r.sqHead = (*uint32)(unsafe.Pointer(&sqRing[p.SQOff.Head]))
	r.sqTail = (*uint32)(unsafe.Pointer(&sqRing[p.SQOff.Tail]))
	r.sqMask = *(*uint32)(unsafe.Pointer(&sqRing[p.SQOff.RingMask]))
	r.sqEntries = *(*uint32)(unsafe.Pointer(&sqRing[p.SQOff.RingEntries]))
	r.sqArray = unsafe.Slice((*uint32)(unsafe.Pointer(&sqRing[p.SQOff.Array])), p.SQEntries)
	r.sqes = unsafe.Slice((*SQE)(unsafe.Pointer(&sqesMap[0])), p.SQEntries)

	r.cqHead = (*uint32)(unsafe.Pointer(&cqRing[p.CQOff.Head]))
	r.cqTail = (*uint32)(unsafe.Pointer(&cqRing[p.CQOff.Tail]))
	r.cqMask = *(*uint32)(unsafe.Pointer(&cqRing[p.CQOff.RingMask]))
	r.cqes = unsafe.Slice((*CQE)(unsafe.Pointer(&cqRing[p.CQOff.CQEs])), p.CQEntries)

	r.sqeTail = atomic.LoadUint32(r.sqTail)
	r.sqeHead = r.sqeTail
	return nil
}

// probe asks the kernel which opcodes it supports. Kernels without
// IORING_REGISTER_PROBE only get the baseline set.
func (r *Context) probe() map[uint8]bool {
	out := make(map[uint8]bool)
	var pr probe
	_, _, errno := unix.Syscall6(unix.SYS_IO_URING_REGISTER, uintptr(r.fd), registerProbe,
		uintptr(unsafe.Pointer(&pr)), probeOps, 0, 0)
	if errno != 0 {
		out[OpNop] = true
		out[OpReadFixed] = true
		out[OpTimeout] = true
		return out
	}
	for i := 0; i < int(pr.OpsLen) && i < probeOps; i++ {
		if pr.Ops[i].Flags&probeOpSupported != 0 {
			out[pr.Ops[i].Op] = true
		}
	}
	return out
}

// Reserve returns a zeroed submission slot.
func (r *Context) Reserve() (*SQE, error) {
	if r.closed {
		return nil, api.ErrRingClosed
	}
	if sqe := r.nextSQE(); sqe != nil {
		return sqe, nil
	}
	if _, err := r.enter(0, 0); err != nil && !retryable(err) {
		return nil, err
	}
	if sqe := r.nextSQE(); sqe != nil {
		return sqe, nil
	}
	return nil, api.ErrSubmissionQueueFull
}

func (r *Context) nextSQE() *SQE {
	head := atomic.LoadUint32(r.sqHead)
	if r.sqeTail-head >= r.sqEntries {
		return nil
	}
	sqe := &r.sqes[r.sqeTail&r.sqMask]
	*sqe = SQE{}
	r.sqeTail++
	return sqe
}

// flush publishes reserved entries to the kernel and returns how many are
// waiting to be consumed.
func (r *Context) flush() uint32 {
	tail := *r.sqTail
	for ; r.sqeHead != r.sqeTail; r.sqeHead++ {
		r.sqArray[tail&r.sqMask] = r.sqeHead & r.sqMask
		tail++
	}
	atomic.StoreUint32(r.sqTail, tail)
	return tail - atomic.LoadUint32(r.sqHead)
}

func (r *Context) enter(minComplete uint32, flags uintptr) (int, error) {
	for {
		n, _, errno := unix.Syscall6(unix.SYS_IO_URING_ENTER, uintptr(r.fd),
			uintptr(r.flush()), uintptr(minComplete), flags, 0, 0)
		if errno == 0 {
			return int(n), nil
		}
		if errno == unix.EINTR {
			continue
		}
		return 0, errno
	}
}

// retryable reports enter errors that leave completions to reap: the CQ
// overflowed (EBUSY) or the kernel is short on memory for a moment (EAGAIN).
func retryable(err error) bool {
	return errors.Is(err, unix.EBUSY) || errors.Is(err, unix.EAGAIN)
}

// SubmitAndWait submits pending entries and reaps all ready completions.
func (r *Context) SubmitAndWait(min uint32, out *queue.Queue) (time.Time, error) {
	if r.closed {
		return time.Time{}, api.ErrRingClosed
	}
	if _, err := r.enter(min, EnterGetEvents); err != nil && !retryable(err) {
		return time.Time{}, err
	}
	now := time.Now()

	head := *r.cqHead
	tail := atomic.LoadUint32(r.cqTail)
	for ; head != tail; head++ {
		out.Add(r.cqes[head&r.cqMask])
	}
	atomic.StoreUint32(r.cqHead, head)
	return now, nil
}

// RegisterBuffer registers buf as fixed buffer 0. buf must not be Go heap
// memory that can be freed while the ring is alive.
func (r *Context) RegisterBuffer(buf []byte) error {
	if len(buf) == 0 {
		return api.Wrap(api.ErrInvalidArgument, api.ErrCodeRegistration, api.ErrRegistration.Error())
	}
	iov := unix.Iovec{Base: &buf[0]}
	iov.SetLen(len(buf))
	_, _, errno := unix.Syscall6(unix.SYS_IO_URING_REGISTER, uintptr(r.fd), RegisterBuffers,
		uintptr(unsafe.Pointer(&iov)), 1, 0, 0)
	if errno != 0 {
		return api.Wrap(errno, api.ErrCodeRegistration, api.ErrRegistration.Error()).
			WithContext("bytes", len(buf))
	}
	return nil
}

// RegisterSparseFiles registers n empty direct descriptor slots.
func (r *Context) RegisterSparseFiles(n uint32) error {
	if n == 0 {
		return nil
	}
	fds := make([]int32, n)
	for i := range fds {
		fds[i] = -1
	}
	_, _, errno := unix.Syscall6(unix.SYS_IO_URING_REGISTER, uintptr(r.fd), RegisterFiles,
		uintptr(unsafe.Pointer(&fds[0])), uintptr(n), 0, 0)
	if errno != 0 {
		return api.Wrap(errno, api.ErrCodeRegistration, api.ErrRegistration.Error()).
			WithContext("files", n)
	}
	return nil
}

// Features reports probed capabilities.
func (r *Context) Features() Features { return r.features }

// Close unmaps the rings and closes the ring descriptor. Registered buffers
// and direct descriptors are released by the kernel with it.
func (r *Context) Close() error {
	var err error
	r.closeOnce.Do(func() {
		r.closed = true
		for _, m := range [][]byte{r.sqesMap, r.cqRing, r.sqRing} {
			if m != nil {
				_ = unix.Munmap(m)
			}
		}
		r.sqes, r.cqes, r.sqArray = nil, nil, nil
		err = unix.Close(r.fd)
	})
	return err
}
