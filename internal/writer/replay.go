package writer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kmercer/crypto-gatherer/internal/model"
)

// ReplayResult reports the outcome of one spill replay.
type ReplayResult struct {
	Merged  int // samples written into the main store
	Skipped int // samples already covered by existing fragments
}

// Replay merges ticker's spilled samples back into the parquet store.
// Samples whose sequence number falls inside an existing fragment's range
// are skipped, so replaying is idempotent and never creates ambiguous
// duplicates. On success the spill file is removed.
func Replay(ctx context.Context, sink *ParquetSink, spill *Spill, ticker string) (ReplayResult, error) {
	var res ReplayResult

	samples, err := spill.Read(ticker)
	if err != nil {
		return res, fmt.Errorf("read spill: %w", err)
	}
	if len(samples) == 0 {
		return res, nil
	}

	ranges, err := sink.FragmentRanges(ticker)
	if err != nil {
		return res, fmt.Errorf("scan fragments: %w", err)
	}

	pending := make([]model.Sample, 0, len(samples))
	for _, s := range samples {
		if covered(ranges, s.Seq) {
			res.Skipped++
			continue
		}
		pending = append(pending, s)
	}

	if len(pending) > 0 {
		batch := model.Batch{
			ID:       uuid.New(),
			Ticker:   ticker,
			Samples:  pending,
			SealedAt: time.Now().UTC(),
			Reason:   model.SealFlush,
		}
		if err := sink.WriteBatch(ctx, batch); err != nil {
			return res, fmt.Errorf("write replayed batch: %w", err)
		}
		res.Merged = len(pending)
	}

	if err := spill.Remove(ticker); err != nil {
		return res, fmt.Errorf("remove spill: %w", err)
	}
	return res, nil
}

func covered(ranges []SeqRange, seq int64) bool {
	for _, r := range ranges {
		if r.Contains(seq) {
			return true
		}
	}
	return false
}
