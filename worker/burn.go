// File: worker/burn.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Orchestrator: one worker per configured thread, joined and merged.

package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/momentics/hioload-burn/affinity"
	"github.com/momentics/hioload-burn/control"
	"github.com/momentics/hioload-burn/internal/logger"
	"github.com/momentics/hioload-burn/stats"
)

// Result is the outcome of one worker.
type Result struct {
	ID    int
	Stats stats.Statistics
	Err   error
}

// Summary is the outcome of a whole burn.
type Summary struct {
	Total   stats.Statistics
	Workers []Result
	Elapsed time.Duration
}

// Burn runs cfg.Threads workers to completion. Total merges only the
// workers that finished cleanly; the first fatal worker error is returned
// alongside the summary, since a dead worker skews the result.
func Burn(ctx context.Context, cfg control.Settings, log *zap.Logger, opts ...Option) (Summary, error) {
	if err := cfg.Validate(); err != nil {
		return Summary{}, err
	}
	if log == nil {
		log = logger.Get()
	}
	results := make([]Result, cfg.Threads)
	start := time.Now()

	var g errgroup.Group
	for id := 0; id < cfg.Threads; id++ {
		wopts := append([]Option{WithLogger(log)}, opts...)
		if cfg.Pin {
			cpu, err := affinity.ForWorker(id)
			if err != nil {
				log.Warn("cpu pinning unavailable", zap.Error(err))
			} else {
				wopts = append(wopts, WithCPU(cpu))
			}
		}
		w := New(id, cfg, wopts...)
		g.Go(func() error {
			st, err := w.Run(ctx)
			results[w.ID()] = Result{ID: w.ID(), Stats: st, Err: err}
			if err != nil {
				log.Error("worker failed", zap.Int("worker", w.ID()), zap.Error(err))
			}
			return err
		})
	}
	err := g.Wait()

	sum := Summary{Workers: results, Elapsed: time.Since(start)}
	for _, r := range results {
		if r.Err == nil {
			sum.Total.Merge(r.Stats)
		}
	}
	return sum, err
}
