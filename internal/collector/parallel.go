package collector

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// startParallel launches an independent sampler/writer goroutine pair per
// ticker. This is the "process-per-ticker" model: a fatal error in one
// ticker's sampler closes that ticker's queue and stops its pair, leaving
// every other ticker untouched.
func (c *Collector) startParallel(g *errgroup.Group, ctx context.Context) {
	for _, t := range c.order {
		j := c.jobs[t]

		g.Go(func() error {
			// Run flushes the partial batch before returning, on both
			// cancellation and fatal fetch errors.
			err := j.sampler.Run(ctx)
			j.out.Close()
			if err != nil {
				// Fatal for this ticker only; recorded in its job state.
				c.logger.Error("ticker sampler stopped",
					"ticker", t,
					"error", err,
				)
			}
			return nil
		})

		g.Go(func() error {
			return c.drain(ctx, j.out)
		})
	}
}
