package writer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/kmercer/crypto-gatherer/internal/metrics"
	"github.com/kmercer/crypto-gatherer/internal/model"
)

// ErrUnrecoverable marks a batch that could be neither written nor spilled.
// The orchestrator treats it as process-fatal resource exhaustion.
var ErrUnrecoverable = errors.New("batch unrecoverable")

// Config holds writer retry settings.
type Config struct {
	MaxRetries   int           // attempts beyond the first (default: 3)
	RetryBackoff time.Duration // initial backoff, doubled per attempt (default: 1s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:   3,
		RetryBackoff: time.Second,
	}
}

// Writer persists batches through a Sink with bounded retries, falling back
// to the spill log when the retry budget is exhausted.
type Writer struct {
	cfg    Config
	sink   Sink
	spill  *Spill
	met    *metrics.Metrics
	logger *slog.Logger
}

// New creates a Writer over sink with spill as the fallback.
func New(cfg Config, sink Sink, spill *Spill, met *metrics.Metrics, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = time.Second
	}
	return &Writer{
		cfg:    cfg,
		sink:   sink,
		spill:  spill,
		met:    met,
		logger: logger,
	}
}

// Write persists batch. A failed attempt is retried with exponential backoff
// and jitter; once the budget is spent the batch is spilled exactly once and
// the sink error is returned for operator visibility. Cancellation skips the
// remaining backoff waits (the in-flight attempt always completes) and goes
// straight to the spill, so shutdown stays bounded without losing data.
// Only when the spill itself fails does the error wrap ErrUnrecoverable.
func (w *Writer) Write(ctx context.Context, batch model.Batch) error {
	if len(batch.Samples) == 0 {
		return nil
	}

	var lastErr error
	backoff := w.cfg.RetryBackoff

	for attempt := 0; attempt <= w.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			w.met.WriteRetry()

			// Jitter: backoff * (0.5 to 1.5)
			jitter := backoff/2 + time.Duration(rand.Int64N(int64(backoff)))
			w.logger.Debug("retrying batch write",
				"ticker", batch.Ticker,
				"attempt", attempt,
				"backoff", jitter,
			)

			select {
			case <-ctx.Done():
				return w.divert(batch, lastErr)
			case <-time.After(jitter):
			}
			backoff *= 2
		}

		start := time.Now()
		err := w.sink.WriteBatch(ctx, batch)
		if err == nil {
			w.met.BatchWritten(w.sink.Name())
			w.logger.Debug("batch written",
				"ticker", batch.Ticker,
				"samples", len(batch.Samples),
				"sink", w.sink.Name(),
				"duration", time.Since(start),
			)
			return nil
		}
		lastErr = err

		w.logger.Warn("batch write failed",
			"ticker", batch.Ticker,
			"attempt", attempt,
			"error", err,
		)

		if ctx.Err() != nil {
			return w.divert(batch, lastErr)
		}
	}

	return w.divert(batch, lastErr)
}

// SpillBatch writes batch directly to the spill log, bypassing the sink.
// Used by the orchestrator's forced-shutdown drain.
func (w *Writer) SpillBatch(batch model.Batch) error {
	return w.divert(batch, errors.New("forced shutdown"))
}

// divert moves batch to the spill. The returned error reports the original
// sink failure so the orchestrator can log it; it wraps ErrUnrecoverable only
// when the spill also failed and the data is actually at risk.
func (w *Writer) divert(batch model.Batch, cause error) error {
	if err := w.spill.Append(batch); err != nil {
		return fmt.Errorf("%w: sink: %v, spill: %v", ErrUnrecoverable, cause, err)
	}

	w.met.BatchSpilled(batch.Ticker)
	w.logger.Error("batch spilled after exhausted retries",
		"ticker", batch.Ticker,
		"samples", len(batch.Samples),
		"spill", w.spill.Path(batch.Ticker),
		"error", cause,
	)
	return fmt.Errorf("batch spilled (%d samples): %w", len(batch.Samples), cause)
}

// microToTime converts µs since epoch to UTC time.
func microToTime(us int64) time.Time {
	return time.UnixMicro(us).UTC()
}
