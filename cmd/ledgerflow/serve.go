package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	audithook "github.com/zeni/ledgerflow/audit_hook"
	"github.com/zeni/ledgerflow/engine"
)

func newServeCommand(rootOpts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the engine until interrupted",
		Long: `Run the ledgerflow engine. Interrupted runs are resumed on startup,
transient failures are redelivered and obligations without a workflow are
reconciled periodically. SIGINT or SIGTERM stops the engine gracefully; runs
suspended at that moment resume on the next start.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, rootOpts, cmd)
		},
	}
}

func serve(parent context.Context, cfg Config, rootOpts *rootOptions, cmd *cobra.Command) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := newLogger(stderr, cfg, rootOpts.Verbose)
	slog.SetDefault(logger)

	s, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore(s, logger)

	notifier, closeNotifier, err := newNotifier(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := closeNotifier(); closeErr != nil {
			logger.Error("error closing notifier", slog.String("error", closeErr.Error()))
		}
	}()

	opts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithNotifier(notifier),
		engine.WithConfig(cfg.Engine()),
		engine.WithStepTimeout(cfg.StepTimeout),
	}
	if cfg.Audit {
		audit := audithook.New(
			audithook.NewLogRecorder(logger.With(slog.String("component", "audit"))),
			audithook.WithLogger(logger),
		)
		opts = append(opts, engine.WithExtension(audit))
	}

	eng, err := engine.New(s, opts...)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	if err := eng.Start(ctx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "ledgerflow serving with the %s store. Press Ctrl-C to stop.\n", cfg.Store)

	<-ctx.Done()
	logger.Info("received signal, shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Engine().ShutdownTimeout+cfg.StepTimeout)
	defer cancel()
	return eng.Stop(shutdownCtx)
}
