package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kmercer/crypto-gatherer/internal/buffer"
	"github.com/kmercer/crypto-gatherer/internal/metrics"
	"github.com/kmercer/crypto-gatherer/internal/model"
	"github.com/kmercer/crypto-gatherer/internal/quote"
	"github.com/kmercer/crypto-gatherer/internal/sampler"
	"github.com/kmercer/crypto-gatherer/internal/writer"
)

// Topology selects the concurrency model.
type Topology string

const (
	// TopologyParallel runs an independent goroutine pair per ticker.
	TopologyParallel Topology = "parallel"

	// TopologyMultiplex steps all tickers from one cooperative scheduler.
	TopologyMultiplex Topology = "multiplex"
)

// Config holds orchestrator configuration.
type Config struct {
	Tickers           []string
	Interval          time.Duration
	BatchSize         int
	MaxBufferDuration time.Duration
	FetchTimeout      time.Duration
	Topology          Topology
	ShutdownTimeout   time.Duration
	QueueSize         int // initial handoff queue capacity
}

// WriterFactory builds the writer owning one ticker's file set.
type WriterFactory func(ticker string) *writer.Writer

// job pairs one ticker's sampler with its queue and writer.
type job struct {
	sampler *sampler.Sampler
	out     *buffer.Handoff[model.Batch]
	writer  *writer.Writer
}

// Collector starts one sampler per ticker, monitors their health and
// coordinates graceful shutdown.
type Collector struct {
	cfg       Config
	source    quote.Source
	newWriter WriterFactory
	met       *metrics.Metrics
	logger    *slog.Logger

	jobs   map[string]*job
	order  []string
	queues []*buffer.Handoff[model.Batch] // distinct queues, for forced drain

	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
}

// New creates a Collector. Samplers are built lazily in Start so that a
// Collector can be constructed before its context exists.
func New(cfg Config, source quote.Source, newWriter WriterFactory, met *metrics.Metrics, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 8
	}
	if cfg.Topology == "" {
		cfg.Topology = TopologyParallel
	}
	return &Collector{
		cfg:       cfg,
		source:    source,
		newWriter: newWriter,
		met:       met,
		logger:    logger,
		jobs:      make(map[string]*job),
		done:      make(chan struct{}),
	}
}

// Start launches the configured topology. It returns immediately; Done
// reports when every sampler and writer goroutine has finished.
// The job set is published under the mutex so Jobs can be polled by the
// health endpoint while Start is still running.
func (c *Collector) Start(ctx context.Context) error {
	if len(c.cfg.Tickers) == 0 {
		return errors.New("no tickers configured")
	}
	if c.cfg.Topology != TopologyParallel && c.cfg.Topology != TopologyMultiplex {
		return fmt.Errorf("unknown topology %q", c.cfg.Topology)
	}

	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		return errors.New("collector already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	shared := (*buffer.Handoff[model.Batch])(nil)
	if c.cfg.Topology == TopologyMultiplex {
		shared = buffer.NewHandoff[model.Batch](c.cfg.QueueSize)
		c.queues = append(c.queues, shared)
	}

	for _, t := range c.cfg.Tickers {
		if _, dup := c.jobs[t]; dup {
			c.mu.Unlock()
			cancel()
			return fmt.Errorf("duplicate ticker %q", t)
		}

		out := shared
		if out == nil {
			out = buffer.NewHandoff[model.Batch](c.cfg.QueueSize)
			c.queues = append(c.queues, out)
		}

		s := sampler.New(sampler.Config{
			Ticker:            t,
			Interval:          c.cfg.Interval,
			BatchSize:         c.cfg.BatchSize,
			MaxBufferDuration: c.cfg.MaxBufferDuration,
			FetchTimeout:      c.cfg.FetchTimeout,
		}, c.source, out, c.met, c.logger)

		c.jobs[t] = &job{
			sampler: s,
			out:     out,
			writer:  c.newWriter(t),
		}
		c.order = append(c.order, t)
	}
	c.mu.Unlock()

	g, gctx := errgroup.WithContext(runCtx)

	switch c.cfg.Topology {
	case TopologyParallel:
		c.startParallel(g, gctx)
	case TopologyMultiplex:
		c.startMultiplex(g, gctx, shared)
	}

	go func() {
		err := g.Wait()
		c.mu.Lock()
		c.err = err
		c.mu.Unlock()
		close(c.done)
	}()

	c.logger.Info("collector started",
		"tickers", len(c.order),
		"topology", c.cfg.Topology,
		"interval", c.cfg.Interval,
		"batch_size", c.cfg.BatchSize,
	)
	return nil
}

// Stop broadcasts cancellation and waits for all in-flight batches to flush,
// bounded by ctx. On timeout, whatever is still queued is spilled
// best-effort before returning.
func (c *Collector) Stop(ctx context.Context) error {
	c.logger.Info("stopping collector")

	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	select {
	case <-c.done:
		c.logger.Info("collector stopped")
		return nil
	case <-ctx.Done():
		c.logger.Warn("collector stop timed out, spilling queued batches")
		c.forceDrain()
		return ctx.Err()
	}
}

// Done is closed when every sampler and writer goroutine has finished.
func (c *Collector) Done() <-chan struct{} {
	return c.done
}

// Err returns the process-fatal error that stopped the collector, if any.
// Ticker-level failures are not reported here; they appear in Jobs.
func (c *Collector) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Jobs returns a snapshot of every ticker's collection state. Safe to call
// at any time, including while Start is populating the job set.
func (c *Collector) Jobs() []model.JobState {
	c.mu.Lock()
	defer c.mu.Unlock()

	states := make([]model.JobState, 0, len(c.order))
	for _, t := range c.order {
		states = append(states, c.jobs[t].sampler.State())
	}
	return states
}

// drain consumes sealed batches from q until it is closed and empty, writing
// each through its ticker's writer. The context is only consulted by the
// writer's retry policy: once cancelled, failed writes go straight to the
// spill so shutdown stays bounded, but queued batches are still persisted.
// Returns an error only when a batch could be neither written nor spilled.
func (c *Collector) drain(ctx context.Context, q *buffer.Handoff[model.Batch]) error {
	for {
		batch, ok := q.Receive()
		if !ok {
			return nil
		}

		w := c.jobs[batch.Ticker].writer
		if err := w.Write(ctx, batch); err != nil {
			if errors.Is(err, writer.ErrUnrecoverable) {
				return fmt.Errorf("ticker %s: %w", batch.Ticker, err)
			}
			// Batch was spilled; the writer already surfaced the details.
		}
	}
}

// forceDrain spills everything still queued. Called only after the shutdown
// timeout expired, when the writer goroutines can no longer be waited on.
func (c *Collector) forceDrain() {
	for _, q := range c.queues {
		for _, batch := range q.DrainTo(0) {
			j, ok := c.jobs[batch.Ticker]
			if !ok {
				continue
			}
			if err := j.writer.SpillBatch(batch); err != nil {
				c.logger.Error("forced drain lost batch",
					"ticker", batch.Ticker,
					"samples", len(batch.Samples),
					"error", err,
				)
			}
		}
	}
}
