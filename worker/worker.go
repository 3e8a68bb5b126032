// File: worker/worker.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// One benchmark worker: a locked OS thread owning a completion ring and a
// connection pool. The loop pumps completions into connection transitions
// until the deadline timer fires.

package worker

import (
	"context"
	"errors"
	"math"
	"runtime"
	"time"

	"github.com/eapache/queue"
	"go.uber.org/zap"

	"github.com/momentics/hioload-burn/affinity"
	"github.com/momentics/hioload-burn/api"
	"github.com/momentics/hioload-burn/control"
	"github.com/momentics/hioload-burn/internal/logger"
	"github.com/momentics/hioload-burn/internal/session"
	"github.com/momentics/hioload-burn/internal/uring"
	"github.com/momentics/hioload-burn/stats"
)

// Sentinel is the user data of the deadline timer. It can never collide
// with a connection index.
const Sentinel uint64 = math.MaxUint64

// Worker runs one shard of the benchmark.
type Worker struct {
	id          int
	cfg         control.Settings
	connections int
	cpu         int
	newRing     RingFactory
	log         *zap.Logger

	// deadline is read by the kernel after submission and must outlive
	// the ring.
	deadline uring.Timespec
}

// New creates worker id. By default it opens cfg.ConnectionsPerThread()
// connections on the ring backend cfg selects.
func New(id int, cfg control.Settings, opts ...Option) *Worker {
	w := &Worker{
		id:          id,
		cfg:         cfg,
		connections: cfg.ConnectionsPerThread(),
		cpu:         -1,
		newRing:     DefaultRingFactory,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.log == nil {
		w.log = logger.Get()
	}
	w.log = w.log.Named("worker").With(zap.Int("worker", id))
	return w
}

// ID returns the worker number.
func (w *Worker) ID() int { return w.id }

// Run executes the burn and returns this worker's counters. On a fatal
// error the counters gathered so far are returned with it. Cancelling ctx
// ends the run at the next batch boundary, like the deadline does.
func (w *Worker) Run(ctx context.Context) (stats.Statistics, error) {
	var st stats.Statistics

	// The ring is single issuer: every syscall must come from this thread.
	runtime.LockOSThread()
	if w.cpu >= 0 {
		if err := affinity.SetAffinity(w.cpu); err != nil {
			w.log.Warn("cpu pin failed", zap.Int("cpu", w.cpu), zap.Error(err))
			defer runtime.UnlockOSThread()
		}
		// A pinned thread is discarded with the goroutine instead of
		// going back to the scheduler.
	} else {
		defer runtime.UnlockOSThread()
	}

	ring, err := w.newRing(w.cfg, w.connections)
	if err != nil {
		return st, err
	}
	p, err := session.NewPool(ring, w.cfg.Target, session.Config{
		Connections: w.connections,
		Protocol:    w.cfg.Protocol,
		Direct:      w.cfg.Direct,
		SeedBase:    w.cfg.SeedBase + uint64(w.id)*uint64(w.connections),
	}, w.log.Named("session"))
	if err != nil {
		_ = ring.Close()
		return st, err
	}
	defer func() {
		// Ring first: nothing may reference the arena once it is unmapped.
		if err := ring.Close(); err != nil {
			w.log.Warn("ring close", zap.Error(err))
		}
		if err := p.Close(); err != nil {
			w.log.Debug("pool close", zap.Error(err))
		}
	}()

	if err := w.armDeadline(ring); err != nil {
		return st, err
	}
	w.log.Debug("worker started",
		zap.String("backend", ring.Features().Name),
		zap.Int("connections", w.connections),
		zap.Duration("burn", w.cfg.Duration))

	start := time.Now()
	q := queue.New()
	for done := false; !done; {
		if ctx.Err() != nil {
			w.log.Info("worker interrupted")
			break
		}
		if _, err := ring.SubmitAndWait(1, q); err != nil {
			return st, err
		}
		st.Batches++
		for cqe, ok := uring.Pop(q); ok; cqe, ok = uring.Pop(q) {
			st.Completions++
			if cqe.UserData == Sentinel {
				// Keep going: the rest of the batch is already delivered.
				done = true
				continue
			}
			if err := p.Dispatch(cqe, &st); err != nil {
				if errors.Is(err, api.ErrUnknownCorrelation) {
					w.log.Warn("stray completion", zap.Error(err))
					continue
				}
				return st, err
			}
		}
	}

	w.log.Debug("worker finished",
		logger.Elapsed(start),
		zap.Uint64("successful", st.SuccessfulReturns),
		zap.Uint64("wrong", st.WrongReturns),
		zap.Uint64("failed_connections", st.FailedConnections))
	return st, nil
}

func (w *Worker) armDeadline(ring uring.Ring) error {
	d := w.cfg.Duration
	w.deadline = uring.Timespec{Sec: int64(d / 1e9), Nsec: int64(d % 1e9)}
	sqe, err := ring.Reserve()
	if err != nil {
		return err
	}
	sqe.PrepTimeout(&w.deadline, 0, 0)
	sqe.SetUserData(Sentinel)
	return nil
}
