// Package config reads process settings from the environment. A .env file
// in the working directory is loaded first when present.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/DoyleJ11/hexfog-backend/internal/engine"
)

type Config struct {
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`

	DatabaseDriver string `env:"DATABASE_DRIVER" envDefault:"memory"` // memory | sqlite | postgres
	DatabaseDSN    string `env:"DATABASE_DSN"`

	AuthSecret string `env:"AUTH_SECRET,required"`
	AuthIssuer string `env:"AUTH_ISSUER"`

	RevealRadius    int           `env:"REVEAL_RADIUS" envDefault:"1"`
	DisconnectGrace time.Duration `env:"DISCONNECT_GRACE" envDefault:"0s"`
	RoomInboxSize   int           `env:"ROOM_INBOX_SIZE" envDefault:"64"`
	RoomIdleTimeout time.Duration `env:"ROOM_IDLE_TIMEOUT" envDefault:"10m"` // 0 keeps rooms loaded

	ClientOutboxSize int           `env:"CLIENT_OUTBOX_SIZE" envDefault:"16"`
	WSPingInterval   time.Duration `env:"WS_PING_INTERVAL" envDefault:"20s"`
	WSPingTimeout    time.Duration `env:"WS_PING_TIMEOUT" envDefault:"10s"`
	WSWriteTimeout   time.Duration `env:"WS_WRITE_TIMEOUT" envDefault:"3s"`
	WSRate           float64       `env:"WS_RATE" envDefault:"20"`
	WSBurst          int           `env:"WS_BURST" envDefault:"40"`
	WSOrigins        []string      `env:"WS_ORIGINS" envSeparator:","`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"` // json | console

	SeedFile string `env:"SEED_FILE"`
}

// Load reads .env (if any) and then the environment. Variables already set
// in the environment win over the file.
func Load(dotenv ...string) (Config, error) {
	if err := godotenv.Load(dotenv...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.DatabaseDriver {
	case "memory":
	case "sqlite", "postgres":
		if c.DatabaseDSN == "" {
			return fmt.Errorf("config: DATABASE_DSN is required for %s", c.DatabaseDriver)
		}
	default:
		return fmt.Errorf("config: unknown DATABASE_DRIVER %q", c.DatabaseDriver)
	}
	if c.RevealRadius < 0 || c.RevealRadius > engine.MaxRevealRadius {
		return fmt.Errorf("config: REVEAL_RADIUS must be between 0 and %d", engine.MaxRevealRadius)
	}
	if c.DisconnectGrace < 0 {
		return fmt.Errorf("config: DISCONNECT_GRACE must not be negative")
	}
	if c.RoomIdleTimeout < 0 {
		return fmt.Errorf("config: ROOM_IDLE_TIMEOUT must not be negative")
	}
	return nil
}
