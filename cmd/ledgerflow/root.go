package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/zeni/ledgerflow/notify"
	"github.com/zeni/ledgerflow/notify/redisstream"
	"github.com/zeni/ledgerflow/store"
	"github.com/zeni/ledgerflow/store/memory"
	"github.com/zeni/ledgerflow/store/postgres"
	"github.com/zeni/ledgerflow/store/sqlite"
)

// rootOptions holds global flags for all commands.
type rootOptions struct {
	Verbose bool
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "ledgerflow",
		Short: "Durable workflows for recurring ledger postings and invitations",
		Long: `ledgerflow posts recurring ledger transactions and drives ledger
invitations through send, reminder and auto-decline. Runs survive restarts.

Configuration is read from LEDGERFLOW_* environment variables.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log at debug level")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newMigrateCommand(opts))
	return cmd
}

func newLogger(w io.Writer, cfg Config, verbose bool) *slog.Logger {
	level := cfg.logLevel()
	if verbose {
		level = slog.LevelDebug
	}
	hopts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, hopts))
	}
	return slog.New(slog.NewTextHandler(w, hopts))
}

// openStore opens the configured backend and applies its migrations.
func openStore(ctx context.Context, cfg Config, logger *slog.Logger) (store.Store, error) {
	var (
		s   store.Store
		err error
	)
	switch cfg.Store {
	case storeMemory:
		logger.Warn("using in-memory store, runs do not survive restarts")
		s = memory.New()
	case storeSQLite:
		s, err = sqlite.Open(cfg.SQLitePath, sqlite.WithLogger(logger))
	case storePostgres:
		s, err = postgres.New(ctx, cfg.PostgresURL, postgres.WithLogger(logger))
	default:
		err = fmt.Errorf("unknown store %q", cfg.Store)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store, err)
	}

	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate %s store: %w", cfg.Store, err)
	}
	return s, nil
}

// newNotifier publishes mail to a Redis stream when a Redis address is set
// and logs it otherwise. Delivery is rate-limited either way. The returned
// close func releases the Redis client.
func newNotifier(ctx context.Context, cfg Config, logger *slog.Logger) (notify.Notifier, func() error, error) {
	if cfg.RedisAddr == "" {
		return notify.NewThrottled(notify.NewLogNotifier(logger), cfg.MailRate, cfg.MailBurst), func() error { return nil }, nil
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("ping redis %s: %w", cfg.RedisAddr, err)
	}
	pub := redisstream.New(client,
		redisstream.WithStream(cfg.MailStream),
		redisstream.WithDedupeTTL(cfg.MailDedupeTTL),
		redisstream.WithLogger(logger),
	)
	logger.Info("publishing mail to redis stream",
		slog.String("addr", cfg.RedisAddr),
		slog.String("stream", pub.Stream()),
	)
	return notify.NewThrottled(pub, cfg.MailRate, cfg.MailBurst), client.Close, nil
}

func closeStore(s store.Store, logger *slog.Logger) {
	if err := s.Close(); err != nil {
		logger.Error("error closing store", slog.String("error", err.Error()))
	}
}

var stderr io.Writer = os.Stderr
