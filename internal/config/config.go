// Package config defines the process configuration and how it is loaded.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Store names the data store used by catalog commands.
	Store string `koanf:"store"`
	// Endpoint is the base URL of the remote catalog API.
	Endpoint string `koanf:"endpoint"`
	// DataDir holds the NetCDF files of the local store.
	DataDir string `koanf:"data_dir"`

	Timeout       time.Duration `koanf:"timeout"`
	MaxRetries    int           `koanf:"max_retries"`
	RetryInterval time.Duration `koanf:"retry_interval"`
	// Concurrency bounds parallel requests to the remote store.
	Concurrency int `koanf:"concurrency"`
	// CacheSize is the number of dataset descriptors kept in memory; 0
	// disables the cache.
	CacheSize int `koanf:"cache_size"`

	// PushgatewayURL, when set, receives the metrics of each CLI run.
	PushgatewayURL string `koanf:"pushgateway_url"`
	// Addr is the listen address of the serve command.
	Addr string `koanf:"addr"`

	ColorMap string `koanf:"colormap"`
	// PlotWidth and PlotHeight are image sizes in inches.
	PlotWidth  float64 `koanf:"plot_width"`
	PlotHeight float64 `koanf:"plot_height"`
}

// New returns a Config holding the defaults.
func New() *Config {
	return &Config{
		LogLevel:      "info",
		Store:         "esa-cci",
		Endpoint:      "http://localhost:9090",
		DataDir:       ".",
		Timeout:       5 * time.Minute,
		MaxRetries:    3,
		RetryInterval: 500 * time.Millisecond,
		Concurrency:   4,
		CacheSize:     64,
		Addr:          ":9090",
		ColorMap:      "extended-black-body",
		PlotWidth:     8,
		PlotHeight:    5,
	}
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return l, fmt.Errorf("%w: log_level %q", ErrInvalidConfig, c.LogLevel)
	}
	return l, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if _, err := c.Level(); err != nil {
		return err
	}
	switch {
	case c.Store == "":
		return fmt.Errorf("%w: store must not be empty", ErrInvalidConfig)
	case c.Timeout <= 0:
		return fmt.Errorf("%w: timeout must be positive", ErrInvalidConfig)
	case c.MaxRetries < 0:
		return fmt.Errorf("%w: max_retries must not be negative", ErrInvalidConfig)
	case c.RetryInterval <= 0:
		return fmt.Errorf("%w: retry_interval must be positive", ErrInvalidConfig)
	case c.Concurrency < 1:
		return fmt.Errorf("%w: concurrency must be at least 1", ErrInvalidConfig)
	case c.CacheSize < 0:
		return fmt.Errorf("%w: cache_size must not be negative", ErrInvalidConfig)
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.PlotWidth <= 0 || c.PlotHeight <= 0:
		return fmt.Errorf("%w: plot size must be positive", ErrInvalidConfig)
	}
	return nil
}
