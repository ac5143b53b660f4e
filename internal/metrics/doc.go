// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Sample and sequence-gap counts per ticker
//   - Fetch error counts by ticker and failure kind
//   - Batch seal, write, spill, and retry counts
//   - Buffered sample gauges
//
// A nil *Metrics is a safe no-op so library code never requires a registry.
package metrics
