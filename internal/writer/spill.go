package writer

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/kmercer/crypto-gatherer/internal/model"
)

// spillRecord is one sample as a spill-log line. Prices stay as decimal
// strings so a replayed sample is bit-identical to the original.
type spillRecord struct {
	Ticker string `json:"ticker"`
	TS     int64  `json:"ts"` // µs since epoch, UTC
	Seq    int64  `json:"seq"`
	Bid    string `json:"bid"`
	Ask    string `json:"ask"`
	Price  string `json:"price"`
}

// Spill is the per-ticker line-oriented fallback log for batches the sink
// could not accept within the retry budget. Appends are serialized: the
// writer goroutines and the forced-shutdown drain may spill concurrently,
// and an interleaved partial line would poison the whole file for replay.
type Spill struct {
	mu       sync.Mutex
	dir      string
	interval string
}

// NewSpill creates a spill rooted at the same data dir as the parquet store.
func NewSpill(dir, interval string) *Spill {
	return &Spill{dir: dir, interval: interval}
}

// Path returns ticker's spill file path.
func (sp *Spill) Path(ticker string) string {
	return filepath.Join(sp.dir, ticker, sp.interval, "spill.ndjson")
}

// Append durably appends every sample of batch to ticker's spill file.
// The file is fsynced before returning; a batch is either fully spilled
// or the error reports it was not.
func (sp *Spill) Append(batch model.Batch) error {
	if len(batch.Samples) == 0 {
		return nil
	}

	sp.mu.Lock()
	defer sp.mu.Unlock()

	path := sp.Path(batch.Ticker)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, s := range batch.Samples {
		rec := spillRecord{
			Ticker: s.Ticker,
			TS:     s.Timestamp.UnixMicro(),
			Seq:    s.Seq,
			Bid:    s.Bid.String(),
			Ask:    s.Ask.String(),
			Price:  s.Price.String(),
		}
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("encode spill record: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return f.Sync()
}

// Read returns all spilled samples for ticker in file order.
// A missing spill file yields an empty slice.
func (sp *Spill) Read(ticker string) ([]model.Sample, error) {
	f, err := os.Open(sp.Path(ticker))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var samples []model.Sample
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec spillRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("parse spill line: %w", err)
		}
		s, err := rec.toSample()
		if err != nil {
			return nil, err
		}
		samples = append(samples, s)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return samples, nil
}

// Remove deletes ticker's spill file. Missing file is not an error.
func (sp *Spill) Remove(ticker string) error {
	err := os.Remove(sp.Path(ticker))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (rec spillRecord) toSample() (model.Sample, error) {
	bid, err := decimal.NewFromString(rec.Bid)
	if err != nil {
		return model.Sample{}, fmt.Errorf("spill bid: %w", err)
	}
	ask, err := decimal.NewFromString(rec.Ask)
	if err != nil {
		return model.Sample{}, fmt.Errorf("spill ask: %w", err)
	}
	price, err := decimal.NewFromString(rec.Price)
	if err != nil {
		return model.Sample{}, fmt.Errorf("spill price: %w", err)
	}

	return model.Sample{
		Quote: model.Quote{
			Ticker:    rec.Ticker,
			Timestamp: microToTime(rec.TS),
			Bid:       bid,
			Ask:       ask,
			Price:     price,
		},
		Seq: rec.Seq,
	}, nil
}
