package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultInstanceID        = "gatherer-local"
	DefaultBaseURL           = "https://trading.robinhood.com"
	DefaultAPITimeout        = 10 * time.Second
	DefaultInterval          = 1 * time.Second
	DefaultBatchSize         = 185
	DefaultMaxBufferDuration = 5 * time.Minute
	DefaultTopology          = "parallel"
	DefaultShutdownTimeout   = 30 * time.Second
	DefaultQueueSize         = 8
	DefaultSink              = "parquet"
	DefaultDataDir           = "data"
	DefaultWindow            = "day"
	DefaultWriteRetries      = 3
	DefaultRetryBackoff      = 1 * time.Second
	DefaultDBPort            = 5432
	DefaultDBSSLMode         = "prefer"
	DefaultMaxConns          = 10
	DefaultMinConns          = 2
	DefaultMetricsPort       = 9090
	DefaultMetricsPath       = "/metrics"
)

// Default returns a configuration with every optional field populated,
// suitable for flag-only runs without a config file.
func Default() *GathererConfig {
	cfg := &GathererConfig{}
	cfg.applyDefaults()
	return cfg
}

func (c *GathererConfig) applyDefaults() {
	if c.Instance.ID == "" {
		c.Instance.ID = DefaultInstanceID
	}

	// API defaults
	if c.API.BaseURL == "" {
		c.API.BaseURL = DefaultBaseURL
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}

	// Collector defaults
	if c.Collector.Interval == 0 {
		c.Collector.Interval = DefaultInterval
	}
	if c.Collector.BatchSize == 0 {
		c.Collector.BatchSize = DefaultBatchSize
	}
	if c.Collector.MaxBufferDuration == 0 {
		c.Collector.MaxBufferDuration = DefaultMaxBufferDuration
	}
	if c.Collector.Topology == "" {
		c.Collector.Topology = DefaultTopology
	}
	if c.Collector.ShutdownTimeout == 0 {
		c.Collector.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.Collector.QueueSize == 0 {
		c.Collector.QueueSize = DefaultQueueSize
	}

	// Storage defaults
	if c.Storage.Sink == "" {
		c.Storage.Sink = DefaultSink
	}
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = DefaultDataDir
	}
	if c.Storage.Window == "" {
		c.Storage.Window = DefaultWindow
	}
	if c.Storage.WriteRetries == 0 {
		c.Storage.WriteRetries = DefaultWriteRetries
	}
	if c.Storage.RetryBackoff == 0 {
		c.Storage.RetryBackoff = DefaultRetryBackoff
	}

	// Database defaults (validated only when the timescale sink is selected)
	applyDBDefaults(&c.Database.Timescale)

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
