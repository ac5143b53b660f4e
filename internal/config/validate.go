package config

import (
	"errors"
	"fmt"
	"time"
)

// Validate checks that all required fields are set and values are valid.
func (c *GathererConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.API.BaseURL == "" {
		return errors.New("api.base_url is required")
	}

	if len(c.Collector.Tickers) == 0 {
		return errors.New("collector.tickers must name at least one ticker")
	}
	for _, t := range c.Collector.Tickers {
		if t == "" {
			return errors.New("collector.tickers must not contain empty symbols")
		}
	}
	if c.Collector.Interval < 100*time.Millisecond {
		return fmt.Errorf("collector.interval must be >= 100ms, got %s", c.Collector.Interval)
	}
	if c.Collector.BatchSize < 1 {
		return errors.New("collector.batch_size must be >= 1")
	}
	if c.Collector.MaxBufferDuration < c.Collector.Interval {
		return errors.New("collector.max_buffer_duration must be >= collector.interval")
	}
	if c.Collector.Topology != "parallel" && c.Collector.Topology != "multiplex" {
		return fmt.Errorf("collector.topology must be \"parallel\" or \"multiplex\", got %q", c.Collector.Topology)
	}
	if c.Collector.ShutdownTimeout < 1*time.Second {
		return errors.New("collector.shutdown_timeout must be >= 1s")
	}
	if c.Collector.QueueSize < 1 {
		return errors.New("collector.queue_size must be >= 1")
	}

	if c.Storage.Sink != "parquet" && c.Storage.Sink != "timescale" {
		return fmt.Errorf("storage.sink must be \"parquet\" or \"timescale\", got %q", c.Storage.Sink)
	}
	if c.Storage.DataDir == "" {
		return errors.New("storage.data_dir is required")
	}
	if c.Storage.Window != "day" && c.Storage.Window != "hour" {
		return fmt.Errorf("storage.window must be \"day\" or \"hour\", got %q", c.Storage.Window)
	}
	if c.Storage.WriteRetries < 0 {
		return errors.New("storage.write_retries must be >= 0")
	}

	if c.Storage.Sink == "timescale" {
		if err := c.Database.Timescale.validate("database.timescale"); err != nil {
			return err
		}
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
