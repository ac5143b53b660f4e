// Package writer persists sealed batches.
//
// Sinks:
//   - Parquet: per-ticker, per-time-window fragment sets on local disk
//     (snappy-compressed, immutable once renamed into place)
//   - TimescaleDB: batch INSERT with ON CONFLICT (ticker, seq) DO NOTHING
//
// Writer wraps a sink with bounded retries plus exponential backoff; a batch
// that outlives the retry budget is spilled exactly once to a per-ticker
// line-oriented fallback log. Data is never dropped. Because every sample
// carries its sequence number, Replay can later merge spilled batches back
// into the main store, skipping (ticker, seq) pairs that already exist.
package writer
