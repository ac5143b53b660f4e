package writer

import (
	"context"

	"github.com/kmercer/crypto-gatherer/internal/model"
)

// Sink durably persists sealed batches. Implementations must tolerate
// replayed batches: (ticker, seq) identifies a sample, so writing the same
// samples twice must not create ambiguous duplicates.
type Sink interface {
	WriteBatch(ctx context.Context, batch model.Batch) error
	Name() string
}
