package writer

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/kmercer/crypto-gatherer/internal/model"
)

// flakySink fails the first failures calls, then succeeds.
type flakySink struct {
	failures int
	calls    int
}

func (f *flakySink) Name() string { return "flaky" }

func (f *flakySink) WriteBatch(ctx context.Context, batch model.Batch) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("sink unavailable")
	}
	return nil
}

func fastConfig() Config {
	return Config{MaxRetries: 3, RetryBackoff: time.Millisecond}
}

func TestWriterRetriesThenSucceeds(t *testing.T) {
	dir := t.TempDir()
	sink := &flakySink{failures: 2}
	spill := NewSpill(dir, "1s")
	w := New(fastConfig(), sink, spill, nil, nil)

	batch := makeBatch("BTC-USD", 1, 3, time.Now().UTC())
	if err := w.Write(context.Background(), batch); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	if sink.calls != 3 {
		t.Errorf("sink calls = %d, want 3", sink.calls)
	}
	if _, err := os.Stat(spill.Path("BTC-USD")); !os.IsNotExist(err) {
		t.Error("spill file exists after successful write")
	}
}

func TestWriterSpillsAfterExhaustedRetries(t *testing.T) {
	dir := t.TempDir()
	sink := &flakySink{failures: 100}
	spill := NewSpill(dir, "1s")
	w := New(fastConfig(), sink, spill, nil, nil)

	batch := makeBatch("BTC-USD", 1, 3, time.Now().UTC())
	err := w.Write(context.Background(), batch)
	if err == nil {
		t.Fatal("Write returned nil, want spill error")
	}
	if errors.Is(err, ErrUnrecoverable) {
		t.Errorf("spilled batch reported unrecoverable: %v", err)
	}

	// 1 initial attempt + MaxRetries
	if sink.calls != 4 {
		t.Errorf("sink calls = %d, want 4", sink.calls)
	}

	// The batch must be in the spill, exactly once.
	samples, readErr := spill.Read("BTC-USD")
	if readErr != nil {
		t.Fatalf("read spill: %v", readErr)
	}
	if len(samples) != 3 {
		t.Fatalf("spilled %d samples, want 3", len(samples))
	}
	for i, s := range samples {
		if s.Seq != int64(i+1) {
			t.Errorf("samples[%d].Seq = %d, want %d", i, s.Seq, i+1)
		}
	}
}

func TestWriterCancelSkipsBackoff(t *testing.T) {
	dir := t.TempDir()
	sink := &flakySink{failures: 100}
	spill := NewSpill(dir, "1s")
	cfg := Config{MaxRetries: 5, RetryBackoff: 10 * time.Second}
	w := New(cfg, sink, spill, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	batch := makeBatch("BTC-USD", 1, 2, time.Now().UTC())
	start := time.Now()
	err := w.Write(ctx, batch)
	if err == nil {
		t.Fatal("Write returned nil, want spill error")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("cancelled write took %s, want immediate divert", elapsed)
	}

	samples, readErr := spill.Read("BTC-USD")
	if readErr != nil {
		t.Fatalf("read spill: %v", readErr)
	}
	if len(samples) != 2 {
		t.Errorf("spilled %d samples, want 2", len(samples))
	}
}

func TestWriterUnrecoverableWhenSpillFails(t *testing.T) {
	dir := t.TempDir()
	sink := &flakySink{failures: 100}
	// Point the spill at a path that cannot be created: a file where a
	// directory is needed.
	blocker := dir + "/blocked"
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	spill := NewSpill(blocker, "1s")
	w := New(fastConfig(), sink, spill, nil, nil)

	batch := makeBatch("BTC-USD", 1, 2, time.Now().UTC())
	err := w.Write(context.Background(), batch)
	if !errors.Is(err, ErrUnrecoverable) {
		t.Errorf("err = %v, want ErrUnrecoverable", err)
	}
}

func TestWriterEmptyBatch(t *testing.T) {
	sink := &flakySink{failures: 100}
	w := New(fastConfig(), sink, NewSpill(t.TempDir(), "1s"), nil, nil)

	if err := w.Write(context.Background(), model.Batch{Ticker: "BTC-USD"}); err != nil {
		t.Errorf("empty batch errored: %v", err)
	}
	if sink.calls != 0 {
		t.Errorf("sink called %d times for empty batch", sink.calls)
	}
}

func TestSpillBatch(t *testing.T) {
	dir := t.TempDir()
	spill := NewSpill(dir, "1s")
	w := New(fastConfig(), &flakySink{}, spill, nil, nil)

	batch := makeBatch("ETH-USD", 5, 2, time.Now().UTC())
	if err := w.SpillBatch(batch); err == nil {
		t.Error("SpillBatch returned nil, want diverted-batch error")
	}

	samples, err := spill.Read("ETH-USD")
	if err != nil {
		t.Fatalf("read spill: %v", err)
	}
	if len(samples) != 2 || samples[0].Seq != 5 {
		t.Errorf("spill contents = %v samples starting at %d, want 2 starting at 5",
			len(samples), samples[0].Seq)
	}
}
