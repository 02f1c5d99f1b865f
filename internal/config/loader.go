package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if MAESTRO_CONFIG is set
//  3. env (prefix MAESTRO_)
func Load(ctx context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv("MAESTRO_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
		}
	}

	// Environment variables: MAESTRO_ADDR, MAESTRO_MIN_TEMPO, ...
	// Keys map to lowercase koanf tags with underscores preserved.
	envProvider := env.Provider("MAESTRO_", ".", func(s string) string {
		s = strings.ToLower(s)
		return strings.TrimPrefix(s, "maestro_")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.MinTempo <= 0 || c.MaxTempo < c.MinTempo:
		return fmt.Errorf("%w: tempo bounds %d..%d", ErrInvalidConfig, c.MinTempo, c.MaxTempo)
	case c.DefaultTempo < c.MinTempo || c.DefaultTempo > c.MaxTempo:
		return fmt.Errorf("%w: default tempo %d outside %d..%d", ErrInvalidConfig, c.DefaultTempo, c.MinTempo, c.MaxTempo)
	case c.EventRetention <= 0:
		return fmt.Errorf("%w: event_retention must be positive", ErrInvalidConfig)
	case c.SubscriberBuffer <= 0:
		return fmt.Errorf("%w: subscriber_buffer must be positive", ErrInvalidConfig)
	case c.HeartbeatInterval <= 0:
		return fmt.Errorf("%w: heartbeat_interval must be positive", ErrInvalidConfig)
	case c.MaxBackfillLimit <= 0:
		return fmt.Errorf("%w: max_backfill_limit must be positive", ErrInvalidConfig)
	}
	return nil
}
