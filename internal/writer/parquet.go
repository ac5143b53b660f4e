package writer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/kmercer/crypto-gatherer/internal/model"
)

// Window selects the file-rotation granularity.
type Window string

const (
	WindowDay  Window = "day"
	WindowHour Window = "hour"
)

// Label formats t into the window's directory name.
func (w Window) Label(t time.Time) string {
	if w == WindowHour {
		return t.UTC().Format("2006-01-02T15")
	}
	return t.UTC().Format("2006-01-02")
}

// sampleRow is the columnar layout of one sample.
type sampleRow struct {
	Timestamp int64   `parquet:"timestamp,delta,snappy"` // µs since epoch, UTC
	Ticker    string  `parquet:"ticker,dict,snappy"`
	Seq       int64   `parquet:"seq,delta,snappy"`
	Bid       float64 `parquet:"bid,snappy"`
	Ask       float64 `parquet:"ask,snappy"`
	Price     float64 `parquet:"price,snappy"`
}

// ParquetSink writes each batch as immutable parquet fragments under
//
//	<dir>/<ticker>/<interval>/<window>/<firstseq>-<lastseq>.parquet
//
// Rows are partitioned by window before writing, so a batch spanning a day
// (or hour) boundary lands in the correct window directories and closed
// windows are never touched again. Fragments are written to a temp file and
// renamed into place, so readers never observe a torn file.
type ParquetSink struct {
	dir      string // data root
	interval string // cadence label, e.g. "1s"
	window   Window
}

// NewParquetSink creates a sink rooted at dir for the given cadence label.
func NewParquetSink(dir, interval string, window Window) *ParquetSink {
	if window == "" {
		window = WindowDay
	}
	return &ParquetSink{dir: dir, interval: interval, window: window}
}

func (p *ParquetSink) Name() string { return "parquet" }

// TickerDir returns the directory holding ticker's window directories.
func (p *ParquetSink) TickerDir(ticker string) string {
	return filepath.Join(p.dir, ticker, p.interval)
}

// WriteBatch persists batch, one fragment per time window touched.
func (p *ParquetSink) WriteBatch(ctx context.Context, batch model.Batch) error {
	if len(batch.Samples) == 0 {
		return nil
	}

	// Local file writes run to completion even under a cancelled context:
	// shutdown flushes must still reach the main store.
	_ = ctx

	// Partition rows by window label, preserving order within each.
	groups := make(map[string][]sampleRow)
	var order []string
	for _, s := range batch.Samples {
		label := p.window.Label(s.Timestamp)
		if _, seen := groups[label]; !seen {
			order = append(order, label)
		}
		groups[label] = append(groups[label], sampleRow{
			Timestamp: s.Timestamp.UnixMicro(),
			Ticker:    s.Ticker,
			Seq:       s.Seq,
			Bid:       s.Bid.InexactFloat64(),
			Ask:       s.Ask.InexactFloat64(),
			Price:     s.Price.InexactFloat64(),
		})
	}

	for _, label := range order {
		rows := groups[label]
		if err := p.writeFragment(batch.Ticker, label, rows); err != nil {
			return fmt.Errorf("write fragment %s/%s: %w", batch.Ticker, label, err)
		}
	}
	return nil
}

// writeFragment writes rows as one immutable fragment file.
func (p *ParquetSink) writeFragment(ticker, label string, rows []sampleRow) error {
	dir := filepath.Join(p.TickerDir(ticker), label)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	final := filepath.Join(dir, fragmentName(rows[0].Seq, rows[len(rows)-1].Seq))

	tmp, err := os.CreateTemp(dir, ".fragment-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after successful rename

	pw := parquet.NewGenericWriter[sampleRow](tmp)
	if _, err := pw.Write(rows); err != nil {
		tmp.Close()
		return fmt.Errorf("write rows: %w", err)
	}
	if err := pw.Close(); err != nil {
		tmp.Close()
		return fmt.Errorf("close parquet writer: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmpName, final)
}

// SeqRange is the inclusive sequence span covered by one fragment.
type SeqRange struct {
	First int64
	Last  int64
}

// Contains reports whether seq lies inside the range.
func (r SeqRange) Contains(seq int64) bool {
	return seq >= r.First && seq <= r.Last
}

// FragmentRanges scans ticker's window directories and returns the sequence
// ranges of all existing fragments, sorted by first sequence. Replay uses
// them to deduplicate by (ticker, seq) without opening any parquet file.
func (p *ParquetSink) FragmentRanges(ticker string) ([]SeqRange, error) {
	root := p.TickerDir(ticker)

	windows, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var ranges []SeqRange
	for _, w := range windows {
		if !w.IsDir() {
			continue
		}
		frags, err := os.ReadDir(filepath.Join(root, w.Name()))
		if err != nil {
			return nil, err
		}
		for _, f := range frags {
			r, ok := parseFragmentName(f.Name())
			if !ok {
				continue
			}
			ranges = append(ranges, r)
		}
	}

	sort.Slice(ranges, func(i, j int) bool { return ranges[i].First < ranges[j].First })
	return ranges, nil
}

// fragmentName encodes the fragment's sequence span. Zero-padding keeps
// lexical and numeric order identical.
func fragmentName(first, last int64) string {
	return fmt.Sprintf("%012d-%012d.parquet", first, last)
}

// parseFragmentName recovers the sequence span from a fragment file name.
func parseFragmentName(name string) (SeqRange, bool) {
	base, ok := strings.CutSuffix(name, ".parquet")
	if !ok {
		return SeqRange{}, false
	}
	firstStr, lastStr, ok := strings.Cut(base, "-")
	if !ok {
		return SeqRange{}, false
	}
	first, err := strconv.ParseInt(firstStr, 10, 64)
	if err != nil {
		return SeqRange{}, false
	}
	last, err := strconv.ParseInt(lastStr, 10, 64)
	if err != nil {
		return SeqRange{}, false
	}
	return SeqRange{First: first, Last: last}, true
}
