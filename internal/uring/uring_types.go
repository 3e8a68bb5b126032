// File: internal/uring/uring_types.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// io_uring ABI types and constants shared by the kernel ring and its
// readiness-polling substitute. Layouts follow include/uapi/linux/io_uring.h.

package uring

import (
	"fmt"
	"unsafe"
)

const (
	// DefaultEntries is the submission queue depth of a worker ring.
	DefaultEntries = 512
	// MaxCQEntries is IORING_MAX_CQ_ENTRIES; with SetupClamp larger
	// requests are silently cut down to it.
	MaxCQEntries = 2 * 32768

	sqeSize = 64
	cqeSize = 16
)

// Opcodes.
const (
	OpNop       uint8 = 0
	OpReadFixed uint8 = 4
	OpTimeout   uint8 = 11
	OpConnect   uint8 = 16
	OpRead      uint8 = 22
	OpSend      uint8 = 26
	OpSocket    uint8 = 45
	OpSendZC    uint8 = 47
)

// Setup flags.
const (
	SetupCQSize       = 1 << 3
	SetupClamp        = 1 << 4
	SetupCoopTaskrun  = 1 << 8
	SetupSingleIssuer = 1 << 12
	SetupDeferTaskrun = 1 << 13
)

// Enter flags.
const (
	EnterGetEvents = 1 << 0
)

// Register opcodes.
const (
	RegisterBuffers = 0
	RegisterFiles   = 2
)

// mmap offsets.
const (
	offSQRing = 0
	offCQRing = 0x8000000
	offSQEs   = 0x10000000
)

// SQE flags.
const (
	SQEFixedFile = 1 << 0
)

// CQE flags.
const (
	CQEFBuffer = 1 << 0
	CQEFMore   = 1 << 1
	CQEFNotif  = 1 << 3
)

// Send flags carried in the ioprio field.
const (
	RecvSendFixedBuf = 1 << 2
)

// FileIndexAlloc asks the kernel to pick a free slot in the registered
// file table and return it as the completion result.
const FileIndexAlloc = ^uint32(0)

// SQE is a submission queue entry (struct io_uring_sqe).
type SQE struct {
	Opcode      uint8
	Flags       uint8
	IoPrio      uint16
	Fd          int32
	Off         uint64
	Addr        uint64
	Len         uint32
	OpFlags     uint32
	UserData    uint64
	BufIndex    uint16
	Personality uint16
	FileIndex   uint32
	Addr3       uint64
	_           uint64
}

// CQE is a completion queue entry (struct io_uring_cqe).
type CQE struct {
	UserData uint64
	Res      int32
	Flags    uint32
}

// More reports whether another completion for the same request follows.
func (c CQE) More() bool { return c.Flags&CQEFMore != 0 }

// Notif reports whether this is a zero-copy buffer release notification.
func (c CQE) Notif() bool { return c.Flags&CQEFNotif != 0 }

// Timespec mirrors struct __kernel_timespec.
type Timespec struct {
	Sec  int64
	Nsec int64
}

type sqRingOffsets struct {
	Head        uint32
	Tail        uint32
	RingMask    uint32
	RingEntries uint32
	Flags       uint32
	Dropped     uint32
	Array       uint32
	Resv1       uint32
	UserAddr    uint64
}

type cqRingOffsets struct {
	Head        uint32
	Tail        uint32
	RingMask    uint32
	RingEntries uint32
	Overflow    uint32
	CQEs        uint32
	Flags       uint32
	Resv1       uint32
	UserAddr    uint64
}

type params struct {
	SQEntries    uint32
	CQEntries    uint32
	Flags        uint32
	SQThreadCPU  uint32
	SQThreadIdle uint32
	Features     uint32
	WQFd         uint32
	Resv         [3]uint32
	SQOff        sqRingOffsets
	CQOff        cqRingOffsets
}

func init() {
	if sz := unsafe.Sizeof(SQE{}); sz != sqeSize {
		panic(fmt.Sprintf("io_uring SQE size mismatch: expected %d, got %d", sqeSize, sz))
	}
	if sz := unsafe.Sizeof(CQE{}); sz != cqeSize {
		panic(fmt.Sprintf("io_uring CQE size mismatch: expected %d, got %d", cqeSize, sz))
	}
}
