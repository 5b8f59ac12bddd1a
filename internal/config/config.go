// Package config reads server settings from the environment, after loading a .env file
// when one is present.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/DoyleJ11/elpres-backend/internal/engine"
	"github.com/DoyleJ11/elpres-backend/internal/room"
	"github.com/DoyleJ11/elpres-backend/internal/store"
	"github.com/DoyleJ11/elpres-backend/internal/vote"
)

type Config struct {
	Addr            string        `env:"ELPRES_ADDR"             envDefault:":8080"`
	ShutdownTimeout time.Duration `env:"ELPRES_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	OriginPatterns  []string      `env:"ELPRES_ORIGIN_PATTERNS"  envSeparator:","`

	LogLevel string `env:"ELPRES_LOG_LEVEL" envDefault:"info"`
	LogDev   bool   `env:"ELPRES_LOG_DEV"   envDefault:"false"`

	// StoreDriver is one of memory, sqlite or postgres.
	StoreDriver string `env:"ELPRES_STORE"     envDefault:"sqlite"`
	StoreDSN    string `env:"ELPRES_STORE_DSN" envDefault:"elpres.db"`

	MinSeats        int    `env:"ELPRES_MIN_SEATS"    envDefault:"2"`
	MaxSeats        int    `env:"ELPRES_MAX_SEATS"    envDefault:"7"`
	OpeningCardRule bool   `env:"ELPRES_OPENING_3C"   envDefault:"true"`
	VotePolicy      string `env:"ELPRES_VOTE_POLICY"  envDefault:"majority"`
	OutboxSize      int    `env:"ELPRES_OUTBOX_SIZE"  envDefault:"16"`

	HeartbeatTimeout time.Duration `env:"ELPRES_HEARTBEAT_TIMEOUT" envDefault:"7s"`
	LivenessInterval time.Duration `env:"ELPRES_LIVENESS_INTERVAL" envDefault:"2s"`
	DisconnectGrace  time.Duration `env:"ELPRES_DISCONNECT_GRACE"  envDefault:"60s"`
	GraceTick        time.Duration `env:"ELPRES_GRACE_TICK"        envDefault:"1s"`
	EjectAfter       time.Duration `env:"ELPRES_EJECT_AFTER"       envDefault:"2m"`
	OpeningPlay      time.Duration `env:"ELPRES_OPENING_PLAY"      envDefault:"45s"`
	TurnWarn         time.Duration `env:"ELPRES_TURN_WARN"         envDefault:"20s"`
	AutoPass         time.Duration `env:"ELPRES_AUTO_PASS"         envDefault:"30s"`
	Idle             time.Duration `env:"ELPRES_IDLE"              envDefault:"25s"`
	RestartVote      time.Duration `env:"ELPRES_RESTART_VOTE"      envDefault:"30s"`
	NextRound        time.Duration `env:"ELPRES_NEXT_ROUND"        envDefault:"13s"`
	TradeClaim       time.Duration `env:"ELPRES_TRADE_CLAIM"       envDefault:"30s"`
	TagCooldown      time.Duration `env:"ELPRES_TAG_COOLDOWN"      envDefault:"0s"`
}

// Load reads .env (if present) and then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return Parse()
}

// Parse reads the process environment only.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.MinSeats < engine.MinSeats || c.MaxSeats > engine.MaxSeats || c.MinSeats > c.MaxSeats {
		return fmt.Errorf("seat limits %d..%d outside %d..%d", c.MinSeats, c.MaxSeats, engine.MinSeats, engine.MaxSeats)
	}
	if _, err := vote.ParsePolicy(c.VotePolicy); err != nil {
		return fmt.Errorf("ELPRES_VOTE_POLICY: %w", err)
	}
	switch c.StoreDriver {
	case store.DriverMemory, store.DriverSQLite, store.DriverPostgres, "":
	default:
		return fmt.Errorf("ELPRES_STORE: unknown driver %q", c.StoreDriver)
	}
	return nil
}

// Room converts the settings into per-room rules and timers.
func (c Config) Room() room.Config {
	policy, _ := vote.ParsePolicy(c.VotePolicy)
	return room.Config{
		Rules: engine.Rules{
			MinSeats:        c.MinSeats,
			MaxSeats:        c.MaxSeats,
			OpeningCardRule: c.OpeningCardRule,
		},
		VotePolicy:       policy,
		HeartbeatTimeout: c.HeartbeatTimeout,
		LivenessInterval: c.LivenessInterval,
		DisconnectGrace:  c.DisconnectGrace,
		GraceTick:        c.GraceTick,
		EjectAfter:       c.EjectAfter,
		OpeningPlay:      c.OpeningPlay,
		TurnWarn:         c.TurnWarn,
		AutoPass:         c.AutoPass,
		Idle:             c.Idle,
		RestartVote:      c.RestartVote,
		NextRound:        c.NextRound,
		TradeClaim:       c.TradeClaim,
		TagCooldown:      c.TagCooldown,
		OutboxSize:       c.OutboxSize,
	}
}
