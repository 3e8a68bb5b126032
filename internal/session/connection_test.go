//go:build linux

package session_test

import (
	"bytes"
	"errors"
	"net/netip"
	"testing"

	"github.com/eapache/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-burn/api"
	"github.com/momentics/hioload-burn/fake"
	"github.com/momentics/hioload-burn/internal/session"
	"github.com/momentics/hioload-burn/internal/uring"
	"github.com/momentics/hioload-burn/pool"
	"github.com/momentics/hioload-burn/stats"
)

// fakeFD is above any descriptor the test process holds, so Pool.Close
// cannot close a real file.
const fakeFD = 1 << 20

var (
	target      = netip.MustParseAddrPort("127.0.0.1:6664")
	fullFeature = uring.Features{Name: "fake", FixedBuffers: true, DirectDescriptors: true, ZeroCopySend: true}
	copyFeature = uring.Features{Name: "fake"}
)

func newPool(t *testing.T, ring uring.Ring, cfg session.Config) *session.Pool {
	t.Helper()
	p, err := session.NewPool(ring, target, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func dispatch(t *testing.T, p *session.Pool, st *stats.Statistics, cqe uring.CQE) {
	t.Helper()
	require.NoError(t, p.Dispatch(cqe, st))
}

func last(t *testing.T, r *fake.Ring) uring.SQE {
	t.Helper()
	sqe, ok := r.Last()
	require.True(t, ok)
	return sqe
}

// establish drives connection 0 of a single connection pool up to its first
// send and returns that send.
func establish(t *testing.T, r *fake.Ring, p *session.Pool, st *stats.Statistics) uring.SQE {
	t.Helper()
	dispatch(t, p, st, uring.CQE{UserData: 0, Res: fakeFD})
	dispatch(t, p, st, uring.CQE{UserData: 0, Res: 0})
	return last(t, r)
}

func TestPool_PrimesEveryConnection(t *testing.T) {
	r := fake.NewRing(fullFeature)
	p := newPool(t, r, session.Config{Connections: 4, Direct: true})

	assert.Equal(t, 4, p.Len())
	assert.True(t, p.DirectDescriptors())
	assert.Len(t, r.Registered, 4*pool.SlotSize)
	assert.Equal(t, uint32(4), r.SparseFiles)
	require.Equal(t, 4, r.Pending())

	q := queue.New()
	r.Complete(uring.CQE{})
	_, err := r.SubmitAndWait(1, q)
	require.NoError(t, err)
	for i, sqe := range r.Submitted {
		assert.Equal(t, uring.OpSocket, sqe.Opcode)
		assert.Equal(t, uint64(i), sqe.UserData)
		assert.Equal(t, uring.FileIndexAlloc, sqe.FileIndex)
		assert.Equal(t, int32(unix.AF_INET), sqe.Fd)
		assert.Equal(t, uint64(unix.SOCK_DGRAM), sqe.Off)
		assert.Equal(t, session.StateConnect, p.Connection(i).State())
		assert.True(t, p.Connection(i).InFlight())
	}
}

func TestPool_DirectIgnoredWithoutSupport(t *testing.T) {
	r := fake.NewRing(copyFeature)
	p := newPool(t, r, session.Config{Connections: 2, Direct: true, Protocol: api.ProtocolTCP})

	assert.False(t, p.DirectDescriptors())
	assert.Nil(t, r.Registered)
	assert.Zero(t, r.SparseFiles)
	sqe := last(t, r)
	assert.Zero(t, sqe.FileIndex)
	assert.Equal(t, uint64(unix.SOCK_STREAM), sqe.Off)
}

func TestConnection_CycleWithZeroCopy(t *testing.T) {
	r := fake.NewRing(fullFeature)
	p := newPool(t, r, session.Config{Connections: 1, Direct: true})
	var st stats.Statistics

	dispatch(t, p, &st, uring.CQE{UserData: 0, Res: 3})
	connect := last(t, r)
	assert.Equal(t, uring.OpConnect, connect.Opcode)
	assert.Equal(t, int32(3), connect.Fd)
	assert.NotZero(t, connect.Flags&uring.SQEFixedFile)
	assert.NotZero(t, connect.Addr)
	assert.Equal(t, uint64(unix.SizeofSockaddrInet4), connect.Off)
	assert.Equal(t, session.StateSetup, p.Connection(0).State())
	assert.Equal(t, int32(3), p.Connection(0).FD())

	dispatch(t, p, &st, uring.CQE{UserData: 0, Res: 0})
	send := last(t, r)
	assert.Equal(t, uring.OpSendZC, send.Opcode)
	assert.NotZero(t, send.IoPrio&uring.RecvSendFixedBuf)
	assert.Equal(t, uint32(pool.SendSize), send.Len)
	assert.Equal(t, session.StateReceive, p.Connection(0).State())
	payload := append([]byte(nil), send.Buffer()...)

	// A completion with more to follow must not produce a submission.
	pending := r.Pending()
	dispatch(t, p, &st, uring.CQE{UserData: 0, Res: pool.SendSize, Flags: uring.CQEFMore})
	assert.Equal(t, pending, r.Pending())
	assert.Equal(t, session.StateReceive, p.Connection(0).State())
	assert.True(t, p.Connection(0).InFlight())

	dispatch(t, p, &st, uring.CQE{UserData: 0, Flags: uring.CQEFNotif})
	read := last(t, r)
	assert.Equal(t, uring.OpReadFixed, read.Opcode)
	assert.Equal(t, uint32(pool.RecvSize), read.Len)
	assert.Equal(t, session.StateSend, p.Connection(0).State())

	copy(read.Buffer(), payload)
	dispatch(t, p, &st, uring.CQE{UserData: 0, Res: pool.SendSize})
	assert.Equal(t, uint64(1), st.SuccessfulReturns)
	assert.Zero(t, st.WrongReturns)

	next := last(t, r)
	assert.Equal(t, uring.OpSendZC, next.Opcode)
	assert.False(t, bytes.Equal(payload, next.Buffer()), "payload must change every cycle")
	assert.Equal(t, session.StateReceive, p.Connection(0).State())
}

func TestConnection_MismatchCounted(t *testing.T) {
	for name, echo := range map[string]func(recv, sent []byte) int32{
		"flipped": func(recv, sent []byte) int32 {
			copy(recv, sent)
			recv[17] ^= 0x01
			return int32(len(sent))
		},
		"short": func(recv, sent []byte) int32 {
			return int32(copy(recv, sent[:100]))
		},
		"error": func(recv, sent []byte) int32 {
			return -int32(unix.ECONNREFUSED)
		},
	} {
		t.Run(name, func(t *testing.T) {
			r := fake.NewRing(fullFeature)
			p := newPool(t, r, session.Config{Connections: 1, Direct: true})
			var st stats.Statistics

			sent := append([]byte(nil), establish(t, r, p, &st).Buffer()...)
			dispatch(t, p, &st, uring.CQE{UserData: 0, Res: pool.SendSize, Flags: uring.CQEFMore})
			dispatch(t, p, &st, uring.CQE{UserData: 0, Flags: uring.CQEFNotif})
			read := last(t, r)

			res := echo(read.Buffer(), sent)
			dispatch(t, p, &st, uring.CQE{UserData: 0, Res: res})
			assert.Equal(t, uint64(1), st.WrongReturns)
			assert.Zero(t, st.SuccessfulReturns)
			assert.Equal(t, uring.OpSendZC, last(t, r).Opcode, "cycle continues")
			if res < 0 {
				assert.Equal(t, uint64(1), st.ReadErrors)
			}
		})
	}
}

func TestConnection_SendErrorLoggedNotFatal(t *testing.T) {
	r := fake.NewRing(fullFeature)
	p := newPool(t, r, session.Config{Connections: 1, Direct: true})
	var st stats.Statistics
	establish(t, r, p, &st)

	pending := r.Pending()
	dispatch(t, p, &st, uring.CQE{UserData: 0, Res: -int32(unix.EPIPE), Flags: uring.CQEFMore})
	assert.Equal(t, uint64(1), st.SendErrors)
	assert.Equal(t, pending, r.Pending())
	dispatch(t, p, &st, uring.CQE{UserData: 0, Flags: uring.CQEFNotif})
	assert.Equal(t, uring.OpReadFixed, last(t, r).Opcode)
}

func TestConnection_CopyingBackendUsesPlainOps(t *testing.T) {
	r := fake.NewRing(copyFeature)
	p := newPool(t, r, session.Config{Connections: 1})
	var st stats.Statistics

	send := establish(t, r, p, &st)
	assert.Equal(t, uring.OpSend, send.Opcode)
	assert.Zero(t, send.Flags&uring.SQEFixedFile)
	assert.Equal(t, int32(fakeFD), send.Fd)

	dispatch(t, p, &st, uring.CQE{UserData: 0, Res: pool.SendSize})
	read := last(t, r)
	assert.Equal(t, uring.OpRead, read.Opcode)
	assert.Zero(t, read.BufIndex)
}

func TestConnection_ConnectRetriedUntilAccepted(t *testing.T) {
	const refusals = 3
	r := fake.NewEchoRing(fullFeature)
	r.RefuseConnects = refusals
	p := newPool(t, r, session.Config{Connections: 1, Direct: true})
	var st stats.Statistics

	q := queue.New()
	for i := 0; i < 50 && st.SuccessfulReturns == 0; i++ {
		_, err := r.SubmitAndWait(1, q)
		require.NoError(t, err)
		for cqe, ok := uring.Pop(q); ok; cqe, ok = uring.Pop(q) {
			dispatch(t, p, &st, cqe)
		}
	}
	assert.Equal(t, uint64(refusals), st.FailedConnections)
	assert.Equal(t, refusals+1, r.ConnectAttempts)
	assert.Equal(t, uint64(1), st.SuccessfulReturns)
	assert.Zero(t, st.WrongReturns)
	assert.Zero(t, r.Violations)
}

func TestConnection_SocketFailureIsFatal(t *testing.T) {
	r := fake.NewEchoRing(fullFeature)
	r.FailSocket = true
	p := newPool(t, r, session.Config{Connections: 1, Direct: true})

	q := queue.New()
	_, err := r.SubmitAndWait(1, q)
	require.NoError(t, err)
	cqe, ok := uring.Pop(q)
	require.True(t, ok)

	var st stats.Statistics
	err = p.Dispatch(cqe, &st)
	require.Error(t, err)
	assert.True(t, errors.Is(err, api.ErrSocketCreate))
	assert.True(t, errors.Is(err, unix.EMFILE))
	assert.Equal(t, api.ErrCodeSocket, api.CodeOf(err))
}

func TestConnection_PrimeTwiceRejected(t *testing.T) {
	r := fake.NewRing(fullFeature)
	p := newPool(t, r, session.Config{Connections: 1, Direct: true})
	_, err := p.Connection(0).Advance(r, nil, pool.Slot{})
	assert.ErrorIs(t, err, api.ErrOperationInFlight)
}

func TestConnection_SeedsAreExplicit(t *testing.T) {
	first := func(seed uint64) []byte {
		r := fake.NewRing(fullFeature)
		p := newPool(t, r, session.Config{Connections: 2, Direct: true, SeedBase: seed})
		var st stats.Statistics
		return append([]byte(nil), establish(t, r, p, &st).Buffer()...)
	}
	assert.Equal(t, first(42), first(42))
	assert.NotEqual(t, first(42), first(43))
}

func TestPool_UnknownCorrelation(t *testing.T) {
	r := fake.NewRing(fullFeature)
	p := newPool(t, r, session.Config{Connections: 2, Direct: true})
	var st stats.Statistics
	err := p.Dispatch(uring.CQE{UserData: 2}, &st)
	assert.ErrorIs(t, err, api.ErrUnknownCorrelation)
	assert.Equal(t, stats.Statistics{}, st)
}

func TestPool_SetupFailures(t *testing.T) {
	regErr := errors.New("no memlock")

	r := fake.NewRing(fullFeature)
	r.RegisterBufferErr = regErr
	_, err := session.NewPool(r, target, session.Config{Connections: 1}, nil)
	assert.ErrorIs(t, err, regErr)

	r = fake.NewRing(fullFeature)
	r.RegisterFilesErr = regErr
	_, err = session.NewPool(r, target, session.Config{Connections: 1, Direct: true}, nil)
	assert.ErrorIs(t, err, regErr)

	r = fake.NewRing(fullFeature)
	r.Cap = 1
	_, err = session.NewPool(r, target, session.Config{Connections: 2}, nil)
	assert.ErrorIs(t, err, api.ErrSubmissionQueueFull)

	_, err = session.NewPool(fake.NewRing(fullFeature), target, session.Config{}, nil)
	assert.ErrorIs(t, err, api.ErrInvalidArgument)

	_, err = session.NewPool(fake.NewRing(fullFeature), netip.AddrPort{}, session.Config{Connections: 1}, nil)
	assert.ErrorIs(t, err, api.ErrInvalidArgument)
}

func TestPool_IPv6Target(t *testing.T) {
	r := fake.NewRing(fullFeature)
	p, err := session.NewPool(r, netip.MustParseAddrPort("[::1]:6664"), session.Config{Connections: 1, Direct: true}, nil)
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, int32(unix.AF_INET6), last(t, r).Fd)
	var st stats.Statistics
	dispatch(t, p, &st, uring.CQE{UserData: 0, Res: 0})
	assert.Equal(t, uint64(unix.SizeofSockaddrInet6), last(t, r).Off)
}
