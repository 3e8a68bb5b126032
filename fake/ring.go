// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

package fake

import (
	"errors"
	"time"

	"github.com/eapache/queue"

	"github.com/momentics/hioload-burn/api"
	"github.com/momentics/hioload-burn/internal/uring"
)

// ErrNoCompletions is returned by Ring.SubmitAndWait when a caller would
// block forever because nothing was scripted.
var ErrNoCompletions = errors.New("fake: no completions scripted")

// Ring is a scripted uring.Ring. Submissions are recorded on
// SubmitAndWait; completions are whatever the test queued with Complete.
type Ring struct {
	Feat uring.Features
	// Cap limits reservations between submissions; zero means unlimited.
	Cap int

	RegisterBufferErr error
	RegisterFilesErr  error

	Submitted   []uring.SQE
	Registered  []byte
	SparseFiles uint32
	Closes      int

	pending     []*uring.SQE
	completions []uring.CQE
}

var _ uring.Ring = (*Ring)(nil)

// NewRing returns a scripted ring advertising feat.
func NewRing(feat uring.Features) *Ring {
	return &Ring{Feat: feat}
}

// Complete queues completions for the next SubmitAndWait.
func (r *Ring) Complete(cqes ...uring.CQE) {
	r.completions = append(r.completions, cqes...)
}

// Pending returns the number of reserved but unsubmitted entries.
func (r *Ring) Pending() int { return len(r.pending) }

// Last returns the most recent submission, reserved or submitted.
func (r *Ring) Last() (uring.SQE, bool) {
	if n := len(r.pending); n > 0 {
		return *r.pending[n-1], true
	}
	if n := len(r.Submitted); n > 0 {
		return r.Submitted[n-1], true
	}
	return uring.SQE{}, false
}

func (r *Ring) Reserve() (*uring.SQE, error) {
	if r.Closes > 0 {
		return nil, api.ErrRingClosed
	}
	if r.Cap > 0 && len(r.pending) >= r.Cap {
		return nil, api.ErrSubmissionQueueFull
	}
	sqe := &uring.SQE{}
	r.pending = append(r.pending, sqe)
	return sqe, nil
}

func (r *Ring) SubmitAndWait(min uint32, out *queue.Queue) (time.Time, error) {
	if r.Closes > 0 {
		return time.Time{}, api.ErrRingClosed
	}
	for _, sqe := range r.pending {
		r.Submitted = append(r.Submitted, *sqe)
	}
	r.pending = r.pending[:0]
	if len(r.completions) < int(min) {
		return time.Time{}, ErrNoCompletions
	}
	for _, c := range r.completions {
		out.Add(c)
	}
	r.completions = r.completions[:0]
	return time.Now(), nil
}

func (r *Ring) RegisterBuffer(buf []byte) error {
	if r.RegisterBufferErr != nil {
		return r.RegisterBufferErr
	}
	r.Registered = buf
	return nil
}

func (r *Ring) RegisterSparseFiles(n uint32) error {
	if r.RegisterFilesErr != nil {
		return r.RegisterFilesErr
	}
	r.SparseFiles = n
	return nil
}

func (r *Ring) Features() uring.Features { return r.Feat }

func (r *Ring) Close() error {
	r.Closes++
	return nil
}
