// Package quote implements the Quote Source Adapter.
//
// The adapter performs exactly one outbound call per Fetch and carries no
// retry logic of its own; retry/skip policy belongs to the sampler. Failures
// are classified into a small taxonomy so callers can separate transient
// faults (network, rate limit, server errors) from faults that are fatal for
// a ticker (bad credentials, unknown symbol).
package quote
