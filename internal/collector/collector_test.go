package collector

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kmercer/crypto-gatherer/internal/model"
	"github.com/kmercer/crypto-gatherer/internal/quote"
	"github.com/kmercer/crypto-gatherer/internal/writer"
)

func okSource() quote.Source {
	return quote.SourceFunc(func(ctx context.Context, ticker string) (model.Quote, error) {
		return model.Quote{
			Ticker:    ticker,
			Timestamp: time.Now().UTC(),
			Bid:       decimal.NewFromInt(100),
			Ask:       decimal.NewFromInt(101),
			Price:     decimal.NewFromFloat(100.5),
		}, nil
	})
}

func testCollectorConfig(topology Topology, tickers ...string) Config {
	return Config{
		Tickers:           tickers,
		Interval:          10 * time.Millisecond,
		BatchSize:         3,
		MaxBufferDuration: time.Minute,
		FetchTimeout:      time.Second,
		Topology:          topology,
		ShutdownTimeout:   5 * time.Second,
		QueueSize:         4,
	}
}

// parquetFactory builds per-ticker writers over a shared parquet store and
// spill, the way the gatherer binary wires them.
func parquetFactory(dir string) (WriterFactory, *writer.ParquetSink, *writer.Spill) {
	sink := writer.NewParquetSink(dir, "10ms", writer.WindowDay)
	spill := writer.NewSpill(dir, "10ms")
	factory := func(ticker string) *writer.Writer {
		return writer.New(writer.Config{MaxRetries: 1, RetryBackoff: time.Millisecond}, sink, spill, nil, nil)
	}
	return factory, sink, spill
}

// persistedCount sums the sequence spans of ticker's fragments.
func persistedCount(t *testing.T, sink *writer.ParquetSink, ticker string) int64 {
	t.Helper()
	ranges, err := sink.FragmentRanges(ticker)
	if err != nil {
		t.Fatalf("FragmentRanges(%s): %v", ticker, err)
	}
	var n int64
	for _, r := range ranges {
		n += r.Last - r.First + 1
	}
	return n
}

func runCollector(t *testing.T, topology Topology) {
	t.Helper()
	dir := t.TempDir()
	factory, sink, spill := parquetFactory(dir)

	cfg := testCollectorConfig(topology, "BTC-USD", "ETH-USD")
	col := New(cfg, okSource(), factory, nil, nil)

	if err := col.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := col.Stop(stopCtx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := col.Err(); err != nil {
		t.Fatalf("Err() = %v, want nil", err)
	}

	// Every produced sample must be in the main store or the spill.
	for _, state := range col.Jobs() {
		if state.Samples == 0 {
			t.Errorf("%s collected no samples", state.Ticker)
		}
		if state.Running {
			t.Errorf("%s still running after Stop", state.Ticker)
		}

		spilled, err := spill.Read(state.Ticker)
		if err != nil {
			t.Fatalf("read spill: %v", err)
		}
		total := persistedCount(t, sink, state.Ticker) + int64(len(spilled))
		if total != state.Samples {
			t.Errorf("%s: persisted+spilled = %d, produced = %d",
				state.Ticker, total, state.Samples)
		}

		// Sequences start at 1 and are contiguous when no tick failed.
		ranges, err := sink.FragmentRanges(state.Ticker)
		if err != nil {
			t.Fatal(err)
		}
		next := int64(1)
		for _, r := range ranges {
			if r.First != next {
				t.Errorf("%s: fragment starts at %d, want %d", state.Ticker, r.First, next)
			}
			next = r.Last + 1
		}
	}
}

func TestCollectorParallel(t *testing.T) {
	runCollector(t, TopologyParallel)
}

func TestCollectorMultiplex(t *testing.T) {
	runCollector(t, TopologyMultiplex)
}

func TestCollectorFatalTickerIsolation(t *testing.T) {
	src := quote.SourceFunc(func(ctx context.Context, ticker string) (model.Quote, error) {
		if ticker == "BAD-USD" {
			return model.Quote{}, &quote.Error{Kind: quote.KindInvalidTicker, Ticker: ticker, StatusCode: 404}
		}
		return okSource().Fetch(ctx, ticker)
	})

	dir := t.TempDir()
	factory, sink, _ := parquetFactory(dir)

	cfg := testCollectorConfig(TopologyParallel, "BTC-USD", "BAD-USD")
	col := New(cfg, src, factory, nil, nil)

	if err := col.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	time.Sleep(80 * time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := col.Stop(stopCtx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	// One ticker failing hard must not surface as a collector error.
	if err := col.Err(); err != nil {
		t.Errorf("Err() = %v, want nil", err)
	}

	for _, state := range col.Jobs() {
		switch state.Ticker {
		case "BAD-USD":
			if state.Samples != 0 {
				t.Errorf("BAD-USD collected %d samples, want 0", state.Samples)
			}
			if state.LastError == "" {
				t.Error("BAD-USD has no recorded error")
			}
		case "BTC-USD":
			if state.Samples == 0 {
				t.Error("BTC-USD collected no samples")
			}
			if persistedCount(t, sink, "BTC-USD") == 0 {
				t.Error("BTC-USD persisted nothing")
			}
		}
	}
}

func TestCollectorMultiplexFatalTickerIsolation(t *testing.T) {
	src := quote.SourceFunc(func(ctx context.Context, ticker string) (model.Quote, error) {
		if ticker == "BAD-USD" {
			return model.Quote{}, &quote.Error{Kind: quote.KindAuth, Ticker: ticker, StatusCode: 401}
		}
		return okSource().Fetch(ctx, ticker)
	})

	dir := t.TempDir()
	factory, _, _ := parquetFactory(dir)

	cfg := testCollectorConfig(TopologyMultiplex, "BTC-USD", "BAD-USD")
	col := New(cfg, src, factory, nil, nil)

	if err := col.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	time.Sleep(80 * time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := col.Stop(stopCtx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	for _, state := range col.Jobs() {
		if state.Ticker == "BAD-USD" && state.LastError == "" {
			t.Error("BAD-USD has no recorded error")
		}
		if state.Ticker == "BTC-USD" && state.Samples == 0 {
			t.Error("BTC-USD stopped collecting after sibling failed")
		}
	}
}

func TestCollectorUnrecoverableStops(t *testing.T) {
	dir := t.TempDir()

	// Sink always fails and the spill root is a plain file, so every write
	// path for the batch is exhausted.
	blocker := dir + "/blocked"
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	badSink := failingSink{}
	spill := writer.NewSpill(blocker, "10ms")
	factory := func(ticker string) *writer.Writer {
		return writer.New(writer.Config{MaxRetries: 0, RetryBackoff: time.Millisecond}, badSink, spill, nil, nil)
	}

	cfg := testCollectorConfig(TopologyParallel, "BTC-USD")
	col := New(cfg, okSource(), factory, nil, nil)

	if err := col.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	select {
	case <-col.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("collector did not stop after unrecoverable batch")
	}

	if err := col.Err(); !errors.Is(err, writer.ErrUnrecoverable) {
		t.Errorf("Err() = %v, want ErrUnrecoverable", err)
	}
}

func TestJobsConcurrentWithStart(t *testing.T) {
	factory, _, _ := parquetFactory(t.TempDir())

	// Enough tickers that Start is still populating the job set while the
	// health endpoint polls it.
	tickers := make([]string, 50)
	for i := range tickers {
		tickers[i] = fmt.Sprintf("SYM%02d-USD", i)
	}
	col := New(testCollectorConfig(TopologyParallel, tickers...), okSource(), factory, nil, nil)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				col.Jobs()
			}
		}
	}()

	if err := col.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	close(stop)
	wg.Wait()

	if got := len(col.Jobs()); got != len(tickers) {
		t.Errorf("Jobs() has %d entries, want %d", got, len(tickers))
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := col.Stop(stopCtx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}

func TestCollectorStopTimeoutSpillsQueued(t *testing.T) {
	dir := t.TempDir()
	sink := &stuckSink{release: make(chan struct{})}
	spill := writer.NewSpill(dir, "5ms")
	factory := func(ticker string) *writer.Writer {
		return writer.New(writer.Config{MaxRetries: 0, RetryBackoff: time.Millisecond}, sink, spill, nil, nil)
	}

	cfg := testCollectorConfig(TopologyParallel, "BTC-USD")
	cfg.Interval = 5 * time.Millisecond
	cfg.BatchSize = 2
	col := New(cfg, okSource(), factory, nil, nil)

	if err := col.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Let batches pile up behind the unresponsive sink.
	time.Sleep(80 * time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := col.Stop(stopCtx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Stop = %v, want deadline exceeded", err)
	}

	// The first sealed batch (seqs 1-2) is held inside the sink; every batch
	// sealed after it, including the shutdown flush, must be in the spill.
	state := col.Jobs()[0]
	spilled, err := spill.Read("BTC-USD")
	if err != nil {
		t.Fatalf("read spill: %v", err)
	}
	if int64(len(spilled)) != state.Samples-2 {
		t.Errorf("spilled %d samples, want %d", len(spilled), state.Samples-2)
	}
	if len(spilled) == 0 {
		t.Fatal("nothing spilled by the forced drain")
	}
	for i, s := range spilled {
		if want := int64(i + 3); s.Seq != want {
			t.Errorf("spilled[%d].Seq = %d, want %d", i, s.Seq, want)
		}
	}

	close(sink.release)
	select {
	case <-col.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("collector did not finish after sink released")
	}
}

func TestCollectorStartValidation(t *testing.T) {
	factory, _, _ := parquetFactory(t.TempDir())

	none := New(testCollectorConfig(TopologyParallel), okSource(), factory, nil, nil)
	if err := none.Start(context.Background()); err == nil {
		t.Error("Start with no tickers returned nil")
	}

	dup := New(testCollectorConfig(TopologyParallel, "BTC-USD", "BTC-USD"), okSource(), factory, nil, nil)
	if err := dup.Start(context.Background()); err == nil {
		t.Error("Start with duplicate ticker returned nil")
	}
}

// stuckSink blocks every write until released.
type stuckSink struct {
	release chan struct{}
}

func (s *stuckSink) Name() string { return "stuck" }

func (s *stuckSink) WriteBatch(ctx context.Context, batch model.Batch) error {
	<-s.release
	return nil
}

// failingSink rejects every batch.
type failingSink struct{}

func (failingSink) Name() string { return "failing" }

func (failingSink) WriteBatch(ctx context.Context, batch model.Batch) error {
	return errors.New("sink down")
}
