package config

import "time"

// GathererConfig is the root configuration for a gatherer instance.
type GathererConfig struct {
	Instance  InstanceConfig  `yaml:"instance"`
	API       APIConfig       `yaml:"api"`
	Collector CollectorConfig `yaml:"collector"`
	Storage   StorageConfig   `yaml:"storage"`
	Database  DatabaseConfig  `yaml:"database"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// InstanceConfig identifies this gatherer.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// APIConfig holds market-data API settings.
type APIConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// CollectorConfig holds polling and batching settings shared by all tickers.
type CollectorConfig struct {
	Tickers           []string      `yaml:"tickers"`
	Interval          time.Duration `yaml:"interval"`
	BatchSize         int           `yaml:"batch_size"`
	MaxBufferDuration time.Duration `yaml:"max_buffer_duration"`
	Topology          string        `yaml:"topology"` // "parallel" or "multiplex"
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
	QueueSize         int           `yaml:"queue_size"`
}

// StorageConfig holds persistence settings.
type StorageConfig struct {
	Sink         string        `yaml:"sink"`   // "parquet" or "timescale"
	DataDir      string        `yaml:"data_dir"`
	Window       string        `yaml:"window"` // "day" or "hour"
	WriteRetries int           `yaml:"write_retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
}

// DatabaseConfig holds the TimescaleDB connection, used only when
// storage.sink is "timescale".
type DatabaseConfig struct {
	Timescale DBConfig `yaml:"timescale"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}
