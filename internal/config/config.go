package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
)

// Config holds the configuration for the log ingestor service.
// Environment variables are parsed from the LOG_INGESTOR_ prefix;
// CLI flags override whatever the environment provides.
type Config struct {
	// HTTP front door
	Host string `envconfig:"HOST" default:"127.0.0.1"`
	Port uint16 `envconfig:"PORT" default:"8080"`

	// Compression-job table. Scheme selects the driver:
	// mysql://, postgres:// or sqlite://.
	DBURL string `envconfig:"DB_URL" default:""`

	// Optional S3-compatible endpoint. When set, the scanner talks to it
	// instead of AWS and uses path-style addressing.
	S3Endpoint string `envconfig:"S3_ENDPOINT" default:""`

	// Buffering tunables
	BufferSizeThreshold uint64        `envconfig:"BUFFER_SIZE_THRESHOLD" default:"268435456"`
	ListenerIdleTimeout time.Duration `envconfig:"LISTENER_IDLE_TIMEOUT" default:"60s"`
	ListenerInboxSize   int           `envconfig:"LISTENER_INBOX_SIZE" default:"100"`
}

// New creates a Config by parsing environment variables.
// Example: LOG_INGESTOR_DB_URL, LOG_INGESTOR_BUFFER_SIZE_THRESHOLD.
func New() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("LOG_INGESTOR", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}
	return &cfg, nil
}

// Validate checks that every required setting is present.
func (c *Config) Validate() error {
	if c.DBURL == "" {
		return fmt.Errorf("db-url is required")
	}
	if c.BufferSizeThreshold == 0 {
		return fmt.Errorf("buffer size threshold must be positive")
	}
	if c.ListenerInboxSize <= 0 {
		return fmt.Errorf("listener inbox size must be positive")
	}
	return nil
}

// LogResolved reports the effective configuration at startup.
// The DB URL itself is never logged; it may embed credentials.
func (c *Config) LogResolved() {
	log.Info().
		Str("host", c.Host).
		Uint16("port", c.Port).
		Bool("db_url_present", c.DBURL != "").
		Bool("s3_endpoint_present", c.S3Endpoint != "").
		Uint64("buffer_size_threshold", c.BufferSizeThreshold).
		Dur("listener_idle_timeout", c.ListenerIdleTimeout).
		Int("listener_inbox_size", c.ListenerInboxSize).
		Msg("Configuration loaded")
}

// HTTPAddr returns the listen address for the HTTP server.
func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
