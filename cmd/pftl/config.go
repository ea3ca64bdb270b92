// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PFTL Contributors

package main

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/pftl/pftl/internal/core"
	"github.com/pftl/pftl/internal/gateway"
	"github.com/pftl/pftl/internal/results"
	"github.com/pftl/pftl/internal/store"
	"github.com/pftl/pftl/internal/xdg"
)

// envPrefix is prepended to every environment override, e.g. PFTL_STORE_DSN.
const envPrefix = "PFTL_"

// Config is the full server configuration.
type Config struct {
	Log         LogConfig      `koanf:"log" envPrefix:"LOG_"`
	Catalog     string         `koanf:"catalog" env:"CATALOG"`
	MetricsAddr string         `koanf:"metrics_addr" env:"METRICS_ADDR"`
	Game        GameConfig     `koanf:"game" envPrefix:"GAME_"`
	Store       store.Config   `koanf:"store" envPrefix:"STORE_"`
	Results     results.Config `koanf:"results" envPrefix:"RESULTS_"`
	Gateway     gateway.Config `koanf:"gateway" envPrefix:"GATEWAY_"`
}

// LogConfig selects the log encoding and threshold.
type LogConfig struct {
	Format string `koanf:"format" env:"FORMAT" validate:"oneof=json text"`
	Level  string `koanf:"level" env:"LEVEL" validate:"oneof=debug info warn warning error"`
}

// GameConfig tunes the sessions the server runs.
type GameConfig struct {
	TickInterval   time.Duration `koanf:"tick_interval" env:"TICK_INTERVAL" validate:"gte=0"`
	MaxTicks       int           `koanf:"max_ticks" env:"MAX_TICKS" validate:"gte=0"`
	ObserverQueue  int           `koanf:"observer_queue" env:"OBSERVER_QUEUE" validate:"gte=0"`
	Retention      time.Duration `koanf:"retention" env:"RETENTION" validate:"gte=0"`
	HandOffTimeout time.Duration `koanf:"handoff_timeout" env:"HANDOFF_TIMEOUT" validate:"gte=0"`
}

// ManagerConfig converts the game settings into session manager settings.
func (g GameConfig) ManagerConfig() core.ManagerConfig {
	cfg := core.DefaultManagerConfig()
	cfg.TickInterval = g.TickInterval
	cfg.Rules.MaxTicks = g.MaxTicks
	cfg.ObserverQueue = g.ObserverQueue
	cfg.Retention = g.Retention
	cfg.HandOffTimeout = g.HandOffTimeout
	return cfg
}

// defaultConfig returns the settings used when nothing overrides them.
func defaultConfig() Config {
	mc := core.DefaultManagerConfig()
	return Config{
		Log:         LogConfig{Format: "json", Level: "info"},
		MetricsAddr: "127.0.0.1:9100",
		Game: GameConfig{
			TickInterval:   mc.TickInterval,
			MaxTicks:       mc.Rules.MaxTicks,
			ObserverQueue:  mc.ObserverQueue,
			Retention:      mc.Retention,
			HandOffTimeout: mc.HandOffTimeout,
		},
		Store: store.Config{
			Driver:          store.DriverSQLite,
			SQLitePath:      xdg.ResultsDB(),
			ConnectAttempts: 5,
			ConnectBackoff:  250 * time.Millisecond,
		},
		Results: results.DefaultConfig(),
		Gateway: gateway.DefaultConfig(),
	}
}

// flagKeys maps command-line flag names onto configuration keys. Flags not
// listed here are not configuration.
var flagKeys = map[string]string{
	"log-format":       "log.format",
	"log-level":        "log.level",
	"catalog":          "catalog",
	"metrics-addr":     "metrics_addr",
	"tick-interval":    "game.tick_interval",
	"max-ticks":        "game.max_ticks",
	"observer-queue":   "game.observer_queue",
	"retention":        "game.retention",
	"store-driver":     "store.driver",
	"database-url":     "store.dsn",
	"sqlite-path":      "store.sqlite_path",
	"addr":             "gateway.addr",
	"rate-limit":       "gateway.rate_limit",
	"rate-burst":       "gateway.rate_burst",
	"result-retries":   "results.max_retries",
	"handoff-timeout":  "game.handoff_timeout",
	"connect-attempts": "store.connect_attempts",
}

// registerConfigFlags adds the serve flags with defaults taken from def.
func registerConfigFlags(flags *pflag.FlagSet, def Config) {
	flags.String("log-format", def.Log.Format, "log format (json or text)")
	flags.String("log-level", def.Log.Level, "log level (debug, info, warn, error)")
	flags.String("catalog", def.Catalog, "ship catalog file (default: built-in catalog)")
	flags.String("metrics-addr", def.MetricsAddr, "metrics/health HTTP address (empty = disabled)")
	flags.Duration("tick-interval", def.Game.TickInterval, "delay between battle ticks")
	flags.Int("max-ticks", def.Game.MaxTicks, "tick limit before a battle ends in a draw")
	flags.Int("observer-queue", def.Game.ObserverQueue, "live events buffered per observer")
	flags.Duration("retention", def.Game.Retention, "how long completed sessions stay queryable")
	flags.Duration("handoff-timeout", def.Game.HandOffTimeout, "time allowed to persist a finished game")
	flags.String("store-driver", def.Store.Driver, "result store (memory, sqlite or postgres)")
	flags.String("database-url", def.Store.DSN, "PostgreSQL URL for the postgres store")
	flags.String("sqlite-path", def.Store.SQLitePath, "database file for the sqlite store")
	flags.Uint64("connect-attempts", def.Store.ConnectAttempts, "PostgreSQL connection retries")
	flags.String("addr", def.Gateway.Addr, "API listen address")
	flags.Float64("rate-limit", def.Gateway.RateLimit, "requests per second per client (0 = unlimited)")
	flags.Int("rate-burst", def.Gateway.RateBurst, "request burst per client")
	flags.Uint64("result-retries", def.Results.MaxRetries, "result store write retries")
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// loadConfig layers defaults, the YAML file at path, explicitly set flags,
// the .env file and PFTL_* environment variables, then validates the result.
// A missing file is only an error when path was given explicitly.
func loadConfig(flags *pflag.FlagSet, path string) (Config, error) {
	cfg := defaultConfig()
	k := koanf.New(".")

	explicit := path != ""
	if !explicit {
		path = xdg.ConfigFile()
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return Config{}, oops.Code("CONFIG_INVALID").With("path", path).Wrapf(err, "load config file")
		}
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return Config{}, oops.Code("CONFIG_INVALID").Wrapf(err, "load flags")
		}
	}

	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, oops.Code("CONFIG_INVALID").Wrapf(err, "decode config")
	}

	if err := loadDotEnv(); err != nil {
		return Config{}, err
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: envPrefix}); err != nil {
		return Config{}, oops.Code("CONFIG_INVALID").Wrapf(err, "read environment")
	}

	if err := validate.Struct(cfg); err != nil {
		return Config{}, oops.Code("CONFIG_INVALID").Wrapf(err, "validate config")
	}
	return cfg, nil
}

// loadDotEnv reads .env from the working directory when present. Variables
// already set in the environment win.
func loadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return oops.Code("CONFIG_INVALID").With("path", ".env").Wrapf(err, "load .env")
	}
	return nil
}

// databaseURL resolves the PostgreSQL URL for commands that only need the
// database: the flag value, then PFTL_STORE_DSN, then DATABASE_URL.
func databaseURL(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	for _, name := range []string{envPrefix + "STORE_DSN", "DATABASE_URL"} {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			return v
		}
	}
	return ""
}
