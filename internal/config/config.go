// Package config defines service configuration structures and loading.
//
// Conventions:
// - Provide New() defaults and Load(ctx) layering file and env sources.
// - External errors are wrapped via this package's sentinel kinds.
package config

import (
	"time"
)

// Config contains process configuration for the performance engine.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":9331".
	Addr string `koanf:"addr"`

	// MinTempo and MaxTempo bound the accepted beats-per-minute range
	// for new sessions; DefaultTempo applies when a request omits it.
	MinTempo     int `koanf:"min_tempo"`
	MaxTempo     int `koanf:"max_tempo"`
	DefaultTempo int `koanf:"default_tempo"`

	// EventRetention bounds how many events each session log retains
	// for replay and backfill.
	EventRetention int `koanf:"event_retention"`

	// SubscriberBuffer sets the outbound channel capacity per stream
	// subscriber.
	SubscriberBuffer int `koanf:"subscriber_buffer"`

	// HeartbeatInterval is how often idle stream subscribers receive a
	// ping event.
	HeartbeatInterval time.Duration `koanf:"heartbeat_interval"`

	// SessionRetention is how long terminal sessions stay in the
	// registry before eviction.
	SessionRetention time.Duration `koanf:"session_retention"`

	// DriverLagTolerance is how far past its deadline a note may be
	// emitted before it is counted as an error note.
	DriverLagTolerance time.Duration `koanf:"driver_lag_tolerance"`

	// MaxBackfillLimit caps GET /sessions/{id}/events?limit.
	MaxBackfillLimit int `koanf:"max_backfill_limit"`

	// ScoreDir optionally points at a directory of Standard MIDI Files
	// loaded into the piece library at startup.
	ScoreDir string `koanf:"score_dir"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:           "info",
		Addr:               ":9331",
		MinTempo:           20,
		MaxTempo:           240,
		DefaultTempo:       120,
		EventRetention:     4096,
		SubscriberBuffer:   100,
		HeartbeatInterval:  15 * time.Second,
		SessionRetention:   30 * time.Minute,
		DriverLagTolerance: 150 * time.Millisecond,
		MaxBackfillLimit:   1000,
		ScoreDir:           "",
	}
}
