// File: reactor/reactor.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Readiness-polling substitute for the kernel completion ring. The reactor
// accepts the same SQEs as io_uring, performs them with non-blocking
// syscalls and parks the ones that would block until epoll reports the
// descriptor ready. Completions come back in the io_uring CQE shape, so the
// session layer cannot tell the two backends apart.

package reactor

import (
	"time"

	"github.com/momentics/hioload-burn/internal/uring"
)

// timer is a pending TIMEOUT request.
type timer struct {
	deadline time.Time
	userData uint64
}

// features advertised by the reactor: copying I/O, plain descriptors.
var features = uring.Features{
	Name:              "epoll",
	FixedBuffers:      false,
	DirectDescriptors: false,
	ZeroCopySend:      false,
}

// timeoutMillis converts the distance to deadline into an epoll timeout,
// rounding up so a timer never fires early.
func timeoutMillis(now, deadline time.Time) int {
	d := deadline.Sub(now)
	if d <= 0 {
		return 0
	}
	ms := d / time.Millisecond
	if d%time.Millisecond != 0 {
		ms++
	}
	return int(ms)
}

func durationOf(ts *uring.Timespec) time.Duration {
	return time.Duration(ts.Sec)*time.Second + time.Duration(ts.Nsec)
}
