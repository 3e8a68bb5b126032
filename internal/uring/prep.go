// File: internal/uring/prep.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// SQE preparation helpers. Each helper fully describes one request; the
// caller attaches user data afterwards.

package uring

import "unsafe"

func (s *SQE) prepRW(op uint8, fd int32, addr unsafe.Pointer, length uint32, off uint64) {
	s.Opcode = op
	s.Fd = fd
	s.Addr = uint64(uintptr(addr))
	s.Len = length
	s.Off = off
}

// SetUserData attaches the correlation id echoed back on completion.
func (s *SQE) SetUserData(v uint64) { s.UserData = v }

// SetFixedFile marks Fd as an index into the registered file table.
func (s *SQE) SetFixedFile() { s.Flags |= SQEFixedFile }

// PrepNop prepares a no-op request.
func (s *SQE) PrepNop() {
	s.prepRW(OpNop, -1, nil, 0, 0)
}

// PrepSocket prepares socket(domain, typ, proto).
func (s *SQE) PrepSocket(domain, typ, proto int) {
	s.prepRW(OpSocket, int32(domain), nil, uint32(proto), uint64(typ))
}

// PrepSocketDirectAlloc prepares a socket whose descriptor is installed into
// a free slot of the registered file table; the result is the slot index.
func (s *SQE) PrepSocketDirectAlloc(domain, typ, proto int) {
	s.PrepSocket(domain, typ, proto)
	s.FileIndex = FileIndexAlloc
}

// PrepConnect prepares connect(fd, sa, salen). sa must stay valid until the
// completion is reaped.
func (s *SQE) PrepConnect(fd int32, sa unsafe.Pointer, salen uint32) {
	s.prepRW(OpConnect, fd, sa, 0, uint64(salen))
}

// PrepSend prepares a plain send of buf.
func (s *SQE) PrepSend(fd int32, buf []byte, flags uint32) {
	s.prepRW(OpSend, fd, unsafe.Pointer(unsafe.SliceData(buf)), uint32(len(buf)), 0)
	s.OpFlags = flags
}

// PrepSendZC prepares a zero-copy send of buf. Two completions are posted:
// the send result flagged with CQEFMore, then a CQEFNotif notification once
// the kernel no longer references buf.
func (s *SQE) PrepSendZC(fd int32, buf []byte, flags uint32) {
	s.prepRW(OpSendZC, fd, unsafe.Pointer(unsafe.SliceData(buf)), uint32(len(buf)), 0)
	s.OpFlags = flags
}

// PrepSendZCFixed prepares a zero-copy send from registered buffer bufIndex.
func (s *SQE) PrepSendZCFixed(fd int32, buf []byte, flags uint32, bufIndex uint16) {
	s.PrepSendZC(fd, buf, flags)
	s.IoPrio |= RecvSendFixedBuf
	s.BufIndex = bufIndex
}

// PrepRead prepares read(fd, buf).
func (s *SQE) PrepRead(fd int32, buf []byte) {
	s.prepRW(OpRead, fd, unsafe.Pointer(unsafe.SliceData(buf)), uint32(len(buf)), 0)
}

// PrepReadFixed prepares a read into registered buffer bufIndex.
func (s *SQE) PrepReadFixed(fd int32, buf []byte, bufIndex uint16) {
	s.prepRW(OpReadFixed, fd, unsafe.Pointer(unsafe.SliceData(buf)), uint32(len(buf)), 0)
	s.BufIndex = bufIndex
}

// PrepTimeout prepares a timeout that fires after ts, or after count other
// completions when count is non-zero. ts must stay valid until reaped.
func (s *SQE) PrepTimeout(ts *Timespec, count uint32, flags uint32) {
	s.prepRW(OpTimeout, -1, unsafe.Pointer(ts), 1, uint64(count))
	s.OpFlags = flags
}

// Buffer returns the memory region an already prepared request points at.
// Only meaningful for requests whose Addr/Len describe a byte range.
func (s *SQE) Buffer() []byte {
	if s.Addr == 0 || s.Len == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(uintptr(s.Addr))), int(s.Len))
}
