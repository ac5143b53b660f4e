package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Quote is a single point-in-time reading for one ticker as returned by the
// market-data endpoint. Immutable once produced.
type Quote struct {
	Ticker    string
	Timestamp time.Time       // UTC, microsecond precision
	Bid       decimal.Decimal // best bid inclusive of sell spread
	Ask       decimal.Decimal // best ask inclusive of buy spread
	Price     decimal.Decimal // estimated execution price
}

// Sample is a Quote annotated with its per-ticker sequence number.
// Sequence numbers advance on every scheduled tick, successful or not,
// so a hole in the persisted sequence marks a missed poll.
type Sample struct {
	Quote
	Seq int64
}

// SealReason records why a batch was sealed.
type SealReason string

const (
	SealSize  SealReason = "size"  // batch_size samples accumulated
	SealAge   SealReason = "age"   // max buffer duration elapsed
	SealFlush SealReason = "flush" // explicit flush (shutdown or fatal stop)
)

// Batch is an ordered group of samples for exactly one ticker.
// Immutable once sealed; ownership passes to the writer at seal time.
type Batch struct {
	ID       uuid.UUID
	Ticker   string
	Samples  []Sample
	SealedAt time.Time
	Reason   SealReason
}

// FirstSeq returns the sequence number of the first sample, or 0 if empty.
func (b Batch) FirstSeq() int64 {
	if len(b.Samples) == 0 {
		return 0
	}
	return b.Samples[0].Seq
}

// LastSeq returns the sequence number of the last sample, or 0 if empty.
func (b Batch) LastSeq() int64 {
	if len(b.Samples) == 0 {
		return 0
	}
	return b.Samples[len(b.Samples)-1].Seq
}

// JobState is a point-in-time snapshot of one ticker's collection job,
// exposed on the health endpoint.
type JobState struct {
	Ticker    string        `json:"ticker"`
	Interval  time.Duration `json:"interval"`
	BatchSize int           `json:"batch_size"`
	Seq       int64         `json:"seq"`
	Buffered  int           `json:"buffered"`
	Samples   int64         `json:"samples"`
	Gaps      int64         `json:"gaps"`
	Running   bool          `json:"running"`
	LastError string        `json:"last_error,omitempty"`
}
