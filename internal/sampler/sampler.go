package sampler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kmercer/crypto-gatherer/internal/buffer"
	"github.com/kmercer/crypto-gatherer/internal/metrics"
	"github.com/kmercer/crypto-gatherer/internal/model"
	"github.com/kmercer/crypto-gatherer/internal/quote"
)

// Config holds sampler configuration for one ticker.
type Config struct {
	Ticker            string
	Interval          time.Duration // tick cadence (default: 1s)
	BatchSize         int           // samples per sealed batch
	MaxBufferDuration time.Duration // seal under-full batches after this long
	FetchTimeout      time.Duration // per-fetch timeout
}

// DefaultConfig returns sensible defaults for ticker.
func DefaultConfig(ticker string) Config {
	return Config{
		Ticker:            ticker,
		Interval:          time.Second,
		BatchSize:         185,
		MaxBufferDuration: 5 * time.Minute,
		FetchTimeout:      10 * time.Second,
	}
}

// Sampler produces one ticker's samples and hands sealed batches to the
// writer side through a Handoff queue.
type Sampler struct {
	cfg    Config
	source quote.Source
	out    *buffer.Handoff[model.Batch]
	met    *metrics.Metrics
	logger *slog.Logger

	// Owned by the stepping goroutine.
	buf  *buffer.Buffer
	next time.Time

	// Guarded by mu; read by the health endpoint.
	mu       sync.Mutex
	seq      int64
	samples  int64
	gaps     int64
	buffered int
	lastErr  error
	running  bool
}

// New creates a Sampler for cfg.Ticker.
func New(cfg Config, source quote.Source, out *buffer.Handoff[model.Batch], met *metrics.Metrics, logger *slog.Logger) *Sampler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	return &Sampler{
		cfg:    cfg,
		source: source,
		out:    out,
		met:    met,
		logger: logger,
		buf:    buffer.New(cfg.Ticker, cfg.BatchSize),
	}
}

// Run drives the polling loop until ctx is cancelled or a fatal fetch error
// stops this ticker. The partial batch is always flushed before returning.
// Cancellation is a clean stop (nil); a fatal fetch error is returned so the
// orchestrator can record it without affecting sibling tickers.
func (s *Sampler) Run(ctx context.Context) error {
	s.SetRunning(true)
	defer s.SetRunning(false)
	defer s.Flush()

	// First tick fires immediately.
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		if err := s.Step(ctx); err != nil {
			return err
		}

		// Re-check cancellation after the in-flight call completes.
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		timer.Reset(time.Until(s.Deadline()))
	}
}

// Step performs one scheduled tick: at most one fetch, one sequence number,
// and any seal triggered by size or age. It returns a non-nil error only for
// failures fatal to this ticker. Used directly by the cooperative scheduler.
func (s *Sampler) Step(ctx context.Context) error {
	now := time.Now()
	if s.next.IsZero() {
		s.next = now
	}

	// Age-based sealing must fire even when every tick is failing.
	if batch, ok := s.buf.SealIfStale(now, s.cfg.MaxBufferDuration); ok {
		s.emit(batch)
	}

	fetchCtx := ctx
	if s.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, s.cfg.FetchTimeout)
		defer cancel()
	}

	q, err := s.source.Fetch(fetchCtx, s.cfg.Ticker)
	seq := s.nextSeq()

	if err != nil {
		kind := quote.KindOf(err)
		s.met.FetchError(s.cfg.Ticker, string(kind))

		if quote.IsFatal(err) {
			s.setLastErr(err)
			s.logger.Error("fatal fetch error, stopping ticker",
				"ticker", s.cfg.Ticker,
				"kind", kind,
				"error", err,
			)
			return err
		}

		s.recordGaps(1)
		s.logger.Warn("fetch failed, tick skipped",
			"ticker", s.cfg.Ticker,
			"seq", seq,
			"kind", kind,
			"error", err,
		)
	} else {
		sample := model.Sample{Quote: q, Seq: seq}
		if batch, ok := s.buf.Append(sample); ok {
			s.emit(batch)
		}
		s.addSample()
		s.met.SampleCollected(s.cfg.Ticker)
	}

	s.setBuffered(s.buf.Len())
	s.advance(time.Now())
	return nil
}

// Deadline returns the next tick time. Before the first Step it returns now,
// so new samplers poll immediately.
func (s *Sampler) Deadline() time.Time {
	if s.next.IsZero() {
		return time.Now()
	}
	return s.next
}

// Flush seals and emits the partial batch, if any.
func (s *Sampler) Flush() {
	if batch, ok := s.buf.Flush(); ok {
		s.emit(batch)
	}
	s.setBuffered(0)
}

// State returns a snapshot for the health endpoint.
func (s *Sampler) State() model.JobState {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := model.JobState{
		Ticker:    s.cfg.Ticker,
		Interval:  s.cfg.Interval,
		BatchSize: s.cfg.BatchSize,
		Seq:       s.seq,
		Buffered:  s.buffered,
		Samples:   s.samples,
		Gaps:      s.gaps,
		Running:   s.running,
	}
	if s.lastErr != nil {
		state.LastError = s.lastErr.Error()
	}
	return state
}

// emit hands a sealed batch to the writer side.
func (s *Sampler) emit(batch model.Batch) {
	if !s.out.Send(batch) {
		// Queue closed before the sampler stopped; orchestrator bug.
		s.logger.Error("handoff queue closed, batch dropped",
			"ticker", batch.Ticker,
			"samples", len(batch.Samples),
		)
		return
	}
	s.met.BatchSealed(batch.Ticker, string(batch.Reason))
	s.logger.Debug("batch sealed",
		"ticker", batch.Ticker,
		"samples", len(batch.Samples),
		"reason", batch.Reason,
		"first_seq", batch.FirstSeq(),
		"last_seq", batch.LastSeq(),
	)
}

// advance moves the deadline past now in whole intervals. Every skipped
// deadline consumes a sequence number and is recorded as a gap: a slow fetch
// shows up as missing sequence numbers, never as overlapping fetches.
func (s *Sampler) advance(now time.Time) {
	s.next = s.next.Add(s.cfg.Interval)

	skipped := 0
	for !s.next.After(now) {
		s.next = s.next.Add(s.cfg.Interval)
		s.nextSeq()
		skipped++
	}
	if skipped > 0 {
		s.recordGaps(skipped)
		s.logger.Warn("slow fetch, ticks skipped",
			"ticker", s.cfg.Ticker,
			"skipped", skipped,
		)
	}
}

func (s *Sampler) nextSeq() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return s.seq
}

func (s *Sampler) addSample() {
	s.mu.Lock()
	s.samples++
	s.mu.Unlock()
}

func (s *Sampler) recordGaps(n int) {
	s.mu.Lock()
	s.gaps += int64(n)
	s.mu.Unlock()
	s.met.SequenceGap(s.cfg.Ticker, n)
}

func (s *Sampler) setLastErr(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}

func (s *Sampler) setBuffered(n int) {
	s.mu.Lock()
	s.buffered = n
	s.mu.Unlock()
	s.met.SetBuffered(s.cfg.Ticker, n)
}

// SetRunning records whether the sampler is being driven. Run maintains it
// itself; the cooperative scheduler maintains it for samplers it steps.
func (s *Sampler) SetRunning(v bool) {
	s.mu.Lock()
	s.running = v
	s.mu.Unlock()
}
