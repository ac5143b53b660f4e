package collector

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kmercer/crypto-gatherer/internal/buffer"
	"github.com/kmercer/crypto-gatherer/internal/model"
)

// startMultiplex launches one cooperative scheduler goroutine stepping every
// ticker, plus a single writer goroutine draining the shared queue. Lower
// overhead than the parallel topology; fetches are sequential, so a slow
// ticker delays its siblings' ticks; the missed deadlines surface as
// sequence gaps, just as a slow fetch does in parallel mode.
func (c *Collector) startMultiplex(g *errgroup.Group, ctx context.Context, shared *buffer.Handoff[model.Batch]) {
	g.Go(func() error {
		c.schedule(ctx)
		shared.Close()
		return nil
	})

	g.Go(func() error {
		return c.drain(ctx, shared)
	})
}

// schedule steps samplers in earliest-deadline order until cancellation or
// until every ticker has stopped. Partial batches are flushed before return.
func (c *Collector) schedule(ctx context.Context) {
	active := make(map[string]*job, len(c.jobs))
	for _, t := range c.order {
		active[t] = c.jobs[t]
		c.jobs[t].sampler.SetRunning(true)
	}

	defer func() {
		for _, j := range active {
			j.sampler.Flush()
			j.sampler.SetRunning(false)
		}
	}()

	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for len(active) > 0 {
		ticker, j := earliest(active)

		if wait := time.Until(j.sampler.Deadline()); wait > 0 {
			timer.Reset(wait)
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
			}
		} else {
			select {
			case <-ctx.Done():
				return
			default:
			}
		}

		if err := j.sampler.Step(ctx); err != nil {
			// Fatal for this ticker only.
			j.sampler.Flush()
			j.sampler.SetRunning(false)
			delete(active, ticker)
			c.logger.Error("ticker sampler stopped",
				"ticker", ticker,
				"error", err,
			)
		}
	}
}

// earliest returns the active job with the nearest tick deadline.
func earliest(active map[string]*job) (string, *job) {
	var (
		bestTicker string
		best       *job
		bestAt     time.Time
	)
	for t, j := range active {
		at := j.sampler.Deadline()
		if best == nil || at.Before(bestAt) {
			bestTicker, best, bestAt = t, j, at
		}
	}
	return bestTicker, best
}
