// Package sampler implements the per-ticker polling loop.
//
// The sampler:
//   - Fires ticks at a fixed wall-clock cadence (no drift compounding)
//   - Assigns one sequence number per scheduled tick, so missed or failed
//     ticks leave detectable gaps instead of silent holes
//   - Never overlaps fetches for its ticker; a slow fetch skips ticks
//   - Survives transient fetch failures, stops only on auth/invalid-ticker
//   - Flushes its partial batch before returning, on cancellation or fatal stop
//
// Run drives the loop autonomously (parallel topology); Step/Deadline let a
// cooperative scheduler multiplex many samplers in one goroutine.
package sampler
