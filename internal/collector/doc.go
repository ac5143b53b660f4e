// Package collector implements the orchestrator that owns the set of active
// tickers.
//
// Two topologies are supported, selected by configuration:
//   - parallel: one sampler goroutine plus one writer goroutine per ticker;
//     a ticker's fatal error stops that pair only
//   - multiplex: one cooperative scheduler steps every sampler by earliest
//     deadline, with a single writer goroutine draining a shared queue
//
// Both produce identical Sample/Batch semantics: per-ticker sequence numbers
// are strictly increasing and each ticker's file set has exactly one writer.
// Shutdown broadcasts cancellation and waits, bounded by a timeout, for all
// partial batches to flush; whatever is still queued after the timeout is
// spilled best-effort so no sample is ever lost.
package collector
