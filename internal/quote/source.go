package quote

import (
	"context"
	"errors"
	"fmt"

	"github.com/kmercer/crypto-gatherer/internal/model"
)

// Source fetches a single point-in-time quote for one ticker.
// Implementations make at most one outbound call per Fetch.
type Source interface {
	Fetch(ctx context.Context, ticker string) (model.Quote, error)
}

// SourceFunc is a function adapter for Source.
type SourceFunc func(ctx context.Context, ticker string) (model.Quote, error)

func (f SourceFunc) Fetch(ctx context.Context, ticker string) (model.Quote, error) {
	return f(ctx, ticker)
}

// Kind classifies a fetch failure.
type Kind string

const (
	KindNetwork       Kind = "network"        // transport-level failure
	KindRateLimited   Kind = "rate_limited"   // HTTP 429
	KindAuth          Kind = "auth"           // HTTP 401/403
	KindInvalidTicker Kind = "invalid_ticker" // HTTP 400/404 or empty result
	KindServer        Kind = "server"         // HTTP 5xx
)

// Error is a classified fetch failure.
type Error struct {
	Kind       Kind
	Ticker     string
	StatusCode int // 0 for transport errors
	Message    string
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("quote fetch %s (%s, status %d): %s", e.Ticker, e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("quote fetch %s (%s): %s", e.Ticker, e.Kind, e.Message)
}

// Fatal reports whether the failure should stop this ticker's sampler.
// Auth and invalid-ticker failures do not heal on their own.
func (e *Error) Fatal() bool {
	return e.Kind == KindAuth || e.Kind == KindInvalidTicker
}

// Transient reports whether the failure is worth retrying on the next tick.
func (e *Error) Transient() bool {
	return !e.Fatal()
}

// IsFatal reports whether err is a fetch failure that is fatal for its ticker.
// Unclassified errors are treated as transient.
func IsFatal(err error) bool {
	var qe *Error
	return errors.As(err, &qe) && qe.Fatal()
}

// KindOf returns the failure kind of err, or KindNetwork for unclassified errors.
func KindOf(err error) Kind {
	var qe *Error
	if errors.As(err, &qe) {
		return qe.Kind
	}
	return KindNetwork
}
