package buffer

import (
	"time"

	"github.com/google/uuid"

	"github.com/kmercer/crypto-gatherer/internal/model"
)

// Buffer accumulates samples for one ticker until a seal trigger fires.
// Not safe for concurrent use; each ticker's sampler owns its Buffer.
type Buffer struct {
	ticker  string
	size    int
	samples []model.Sample
	firstAt time.Time // arrival time of the oldest buffered sample
}

// New creates a Buffer sealing at size samples.
func New(ticker string, size int) *Buffer {
	if size < 1 {
		size = 1
	}
	return &Buffer{
		ticker:  ticker,
		size:    size,
		samples: make([]model.Sample, 0, size),
	}
}

// Append adds s in arrival order. If the size bound is reached the current
// contents are sealed and returned; no sample is ever lost or duplicated
// across the seal boundary.
func (b *Buffer) Append(s model.Sample) (model.Batch, bool) {
	if len(b.samples) == 0 {
		b.firstAt = time.Now()
	}
	b.samples = append(b.samples, s)

	if len(b.samples) >= b.size {
		return b.seal(model.SealSize), true
	}
	return model.Batch{}, false
}

// SealIfStale seals the buffered samples when the oldest has been waiting
// longer than maxAge. Returns false when the buffer is empty or still fresh.
func (b *Buffer) SealIfStale(now time.Time, maxAge time.Duration) (model.Batch, bool) {
	if len(b.samples) == 0 || maxAge <= 0 {
		return model.Batch{}, false
	}
	if now.Sub(b.firstAt) < maxAge {
		return model.Batch{}, false
	}
	return b.seal(model.SealAge), true
}

// Flush seals whatever is present, regardless of size. Returns false when
// the buffer is empty (flushing nothing is a no-op).
func (b *Buffer) Flush() (model.Batch, bool) {
	if len(b.samples) == 0 {
		return model.Batch{}, false
	}
	return b.seal(model.SealFlush), true
}

// Len returns the number of buffered samples.
func (b *Buffer) Len() int {
	return len(b.samples)
}

// seal hands ownership of the buffered samples to a new Batch and resets
// the buffer.
func (b *Buffer) seal(reason model.SealReason) model.Batch {
	batch := model.Batch{
		ID:       uuid.New(),
		Ticker:   b.ticker,
		Samples:  b.samples,
		SealedAt: time.Now().UTC(),
		Reason:   reason,
	}
	b.samples = make([]model.Sample, 0, b.size)
	return batch
}
