package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/gabisonia/fiber-chat-proxy/logging"
	"github.com/gabisonia/fiber-chat-proxy/metrics"
	"github.com/gabisonia/fiber-chat-proxy/server"
	"github.com/gabisonia/fiber-chat-proxy/strategies"
	"github.com/gabisonia/fiber-chat-proxy/upstream"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Long: `Start the HTTP server with graceful shutdown support.

SIGINT or SIGTERM stop accepting connections and wait up to
server.shutdown_timeout for in-flight requests.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
			if err != nil {
				return err
			}
			defer logger.Sync() // nolint:errcheck // stderr sync fails on some platforms

			backend, err := openStore(cfg.Store)
			if err != nil {
				return err
			}
			defer backend.Close() // nolint:errcheck // best-effort cleanup

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := backend.Ping(ctx); err != nil {
				// Requests will fail with 500 until the store comes back.
				logger.Warn("rate limit store unreachable at startup",
					zap.String("driver", cfg.Store.Driver), zap.Error(err))
			}

			strategy := strategies.NewFixedWindowStrategy(cfg.RateLimit.Limit, cfg.RateLimit.Window, backend)
			strategy.KeyPrefix = cfg.RateLimit.KeyPrefix

			completer := upstream.NewClient(cfg.Upstream.BaseURL, cfg.Upstream.APIKey, cfg.Upstream.Model)
			completer.Timeout = cfg.Upstream.Timeout

			var collector *metrics.Collector
			if cfg.Metrics.Enabled {
				collector = metrics.NewCollector(cfg.Metrics.Namespace)
			}

			srv := server.New(cfg, server.Deps{
				Strategy:  strategy,
				Completer: completer,
				Metrics:   collector,
				Health:    backend,
				Logger:    logger,
			})

			logger.Info("rate limit configured",
				zap.Int("limit", cfg.RateLimit.Limit),
				zap.Duration("window", cfg.RateLimit.Window),
				zap.String("store", cfg.Store.Driver),
				zap.String("model", completer.Model))

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("shutdown: %w", err)
			}
			return nil
		},
	}
}
