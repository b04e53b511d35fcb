package main

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/zeni/ledgerflow"
)

// Store backends.
const (
	storeMemory   = "memory"
	storeSQLite   = "sqlite"
	storePostgres = "postgres"
)

// Config is the process configuration.
type Config struct {
	Store       string `env:"LEDGERFLOW_STORE"        envDefault:"sqlite"`
	SQLitePath  string `env:"LEDGERFLOW_SQLITE_PATH"  envDefault:"ledgerflow.db"`
	PostgresURL string `env:"LEDGERFLOW_POSTGRES_URL"`

	RedisAddr     string        `env:"LEDGERFLOW_REDIS_ADDR"`
	RedisPassword string        `env:"LEDGERFLOW_REDIS_PASSWORD"`
	RedisDB       int           `env:"LEDGERFLOW_REDIS_DB"         envDefault:"0"`
	MailStream    string        `env:"LEDGERFLOW_MAIL_STREAM"      envDefault:"ledgerflow:mail"`
	MailRate      float64       `env:"LEDGERFLOW_MAIL_RATE"        envDefault:"10"`
	MailBurst     int           `env:"LEDGERFLOW_MAIL_BURST"       envDefault:"20"`
	MailDedupeTTL time.Duration `env:"LEDGERFLOW_MAIL_DEDUPE_TTL"  envDefault:"168h"`

	MaxChunk           time.Duration `env:"LEDGERFLOW_MAX_CHUNK"           envDefault:"168h"`
	PostRetryBackoff   time.Duration `env:"LEDGERFLOW_POST_RETRY_BACKOFF"  envDefault:"5m"`
	ReminderDelay      time.Duration `env:"LEDGERFLOW_REMINDER_DELAY"      envDefault:"24h"`
	DecisionDelay      time.Duration `env:"LEDGERFLOW_DECISION_DELAY"      envDefault:"72h"`
	RedeliveryInterval time.Duration `env:"LEDGERFLOW_REDELIVERY_INTERVAL" envDefault:"1m"`
	ReconcileInterval  time.Duration `env:"LEDGERFLOW_RECONCILE_INTERVAL"  envDefault:"5m"`
	ShutdownTimeout    time.Duration `env:"LEDGERFLOW_SHUTDOWN_TIMEOUT"    envDefault:"30s"`
	StepTimeout        time.Duration `env:"LEDGERFLOW_STEP_TIMEOUT"        envDefault:"1m"`

	Audit     bool   `env:"LEDGERFLOW_AUDIT"      envDefault:"true"`
	LogLevel  string `env:"LEDGERFLOW_LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"LEDGERFLOW_LOG_FORMAT" envDefault:"text"`
}

// loadConfig parses the environment and validates the result.
func loadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the store selection and its connection settings.
func (c Config) Validate() error {
	switch c.Store {
	case storeMemory:
	case storeSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("LEDGERFLOW_SQLITE_PATH is required for the %s store", storeSQLite)
		}
	case storePostgres:
		if c.PostgresURL == "" {
			return fmt.Errorf("LEDGERFLOW_POSTGRES_URL is required for the %s store", storePostgres)
		}
	default:
		return fmt.Errorf("unknown store %q: must be one of %s, %s, %s", c.Store, storeMemory, storeSQLite, storePostgres)
	}
	if c.MailRate <= 0 {
		return fmt.Errorf("LEDGERFLOW_MAIL_RATE must be positive, got %v", c.MailRate)
	}
	return nil
}

// Engine returns the engine timing configuration.
func (c Config) Engine() ledgerflow.Config {
	return ledgerflow.Config{
		MaxChunk:           c.MaxChunk,
		PostRetryBackoff:   c.PostRetryBackoff,
		ReminderDelay:      c.ReminderDelay,
		DecisionDelay:      c.DecisionDelay,
		RedeliveryInterval: c.RedeliveryInterval,
		ReconcileInterval:  c.ReconcileInterval,
		ShutdownTimeout:    c.ShutdownTimeout,
	}.Normalized()
}

func (c Config) logLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
