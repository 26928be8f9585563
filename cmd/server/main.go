// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/unclebandit/campusconnect-mailer/internal/app"
	"github.com/unclebandit/campusconnect-mailer/internal/logger"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath, envFile string
	var shutdownTimeout time.Duration

	cmd := &cobra.Command{
		Use:           "server",
		Short:         "Campus Connect bulk email API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, configPath, envFile, shutdownTimeout)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to a YAML config file")
	cmd.Flags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the config")
	cmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 15*time.Second, "grace period for in-flight requests")
	return cmd
}

func run(ctx context.Context, configPath, envFile string, shutdownTimeout time.Duration) error {
	cfg, err := app.Bootstrap("campusconnect-mailer", configPath, envFile)
	if err != nil {
		return err
	}
	defer logger.Sync()
	log := logger.Named("server")

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", logger.Err(err))
		return err
	}

	a, err := app.New(ctx, cfg, app.Options{})
	if err != nil {
		log.Error("startup failed", logger.Err(err))
		return err
	}
	defer a.Close()

	if err := a.SubscribeEvents(); err != nil {
		log.Warn("campaign events not subscribed", logger.Err(err))
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           a.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("🚀 Server running", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			log.Error("server stopped", logger.Err(err))
			return err
		}
	case <-ctx.Done():
	}

	log.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(sctx)
}
