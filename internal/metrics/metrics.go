package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the gatherer's Prometheus collectors.
type Metrics struct {
	samples     *prometheus.CounterVec
	fetchErrors *prometheus.CounterVec
	gaps        *prometheus.CounterVec
	sealed      *prometheus.CounterVec
	written     *prometheus.CounterVec
	spilled     *prometheus.CounterVec
	retries     prometheus.Counter
	buffered    *prometheus.GaugeVec
}

// New creates and registers the gatherer metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		samples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatherer_samples_total",
			Help: "Samples successfully collected, per ticker.",
		}, []string{"ticker"}),
		fetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatherer_fetch_errors_total",
			Help: "Quote fetch failures by ticker and failure kind.",
		}, []string{"ticker", "kind"}),
		gaps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatherer_sequence_gaps_total",
			Help: "Missed ticks recorded as sequence gaps, per ticker.",
		}, []string{"ticker"}),
		sealed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatherer_batches_sealed_total",
			Help: "Batches sealed by ticker and seal reason.",
		}, []string{"ticker", "reason"}),
		written: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatherer_batches_written_total",
			Help: "Batches durably persisted, per sink.",
		}, []string{"sink"}),
		spilled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatherer_batches_spilled_total",
			Help: "Batches diverted to the fallback spill after exhausted write retries.",
		}, []string{"ticker"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gatherer_write_retries_total",
			Help: "Write attempts beyond the first, across all sinks.",
		}),
		buffered: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gatherer_buffered_samples",
			Help: "Samples currently buffered awaiting seal, per ticker.",
		}, []string{"ticker"}),
	}

	reg.MustRegister(m.samples, m.fetchErrors, m.gaps, m.sealed, m.written, m.spilled, m.retries, m.buffered)
	return m
}

// SampleCollected counts one successful sample for ticker.
func (m *Metrics) SampleCollected(ticker string) {
	if m == nil {
		return
	}
	m.samples.WithLabelValues(ticker).Inc()
}

// FetchError counts a classified fetch failure.
func (m *Metrics) FetchError(ticker, kind string) {
	if m == nil {
		return
	}
	m.fetchErrors.WithLabelValues(ticker, kind).Inc()
}

// SequenceGap counts n missed ticks for ticker.
func (m *Metrics) SequenceGap(ticker string, n int) {
	if m == nil {
		return
	}
	m.gaps.WithLabelValues(ticker).Add(float64(n))
}

// BatchSealed counts a sealed batch.
func (m *Metrics) BatchSealed(ticker, reason string) {
	if m == nil {
		return
	}
	m.sealed.WithLabelValues(ticker, reason).Inc()
}

// BatchWritten counts a persisted batch.
func (m *Metrics) BatchWritten(sink string) {
	if m == nil {
		return
	}
	m.written.WithLabelValues(sink).Inc()
}

// BatchSpilled counts a batch diverted to the spill.
func (m *Metrics) BatchSpilled(ticker string) {
	if m == nil {
		return
	}
	m.spilled.WithLabelValues(ticker).Inc()
}

// WriteRetry counts one write retry.
func (m *Metrics) WriteRetry() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

// SetBuffered records the current buffered sample count for ticker.
func (m *Metrics) SetBuffered(ticker string, n int) {
	if m == nil {
		return
	}
	m.buffered.WithLabelValues(ticker).Set(float64(n))
}
