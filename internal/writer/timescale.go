package writer

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kmercer/crypto-gatherer/internal/model"
)

// TimescaleSink writes batches to a samples hypertable. Replayed samples are
// absorbed by the (ticker, seq) unique constraint.
type TimescaleSink struct {
	db    *pgxpool.Pool
	table string
}

// NewTimescaleSink creates a sink writing to table via db.
func NewTimescaleSink(db *pgxpool.Pool, table string) *TimescaleSink {
	if table == "" {
		table = "samples"
	}
	return &TimescaleSink{db: db, table: table}
}

func (t *TimescaleSink) Name() string { return "timescale" }

// WriteBatch inserts all samples with ON CONFLICT DO NOTHING.
func (t *TimescaleSink) WriteBatch(ctx context.Context, batch model.Batch) error {
	if len(batch.Samples) == 0 {
		return nil
	}

	sql := fmt.Sprintf(`
		INSERT INTO %s (ticker, ts, seq, bid, ask, price)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (ticker, seq) DO NOTHING
	`, t.table)

	pgb := &pgx.Batch{}
	for _, s := range batch.Samples {
		pgb.Queue(sql, s.Ticker, s.Timestamp, s.Seq, s.Bid, s.Ask, s.Price)
	}

	results := t.db.SendBatch(ctx, pgb)
	defer results.Close()

	for range batch.Samples {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("insert sample: %w", err)
		}
	}
	return nil
}
