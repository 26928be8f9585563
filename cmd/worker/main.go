package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/unclebandit/campusconnect-mailer/internal/app"
	"github.com/unclebandit/campusconnect-mailer/internal/config"
	"github.com/unclebandit/campusconnect-mailer/internal/logger"
	"github.com/unclebandit/campusconnect-mailer/internal/queue"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath, envFile string

	cmd := &cobra.Command{
		Use:           "worker",
		Short:         "Consumes job_approved messages and mails active students",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := app.Bootstrap("campusconnect-worker", configPath, envFile)
			if err != nil {
				return err
			}
			defer logger.Sync()
			return run(ctx, cfg, app.Options{})
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to a YAML config file")
	cmd.Flags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the config")
	return cmd
}

var errNoBroker = errors.New("AMQP_URL is required for the worker")

// run consumes until ctx is cancelled. opts.Queue lets tests run without a
// broker.
func run(ctx context.Context, cfg *config.Config, opts app.Options) error {
	log := logger.Named("worker")
	if cfg.AMQP.URL == "" && opts.Queue == nil {
		return errNoBroker
	}
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", logger.Err(err))
		return err
	}

	a, err := app.New(ctx, cfg, opts)
	if err != nil {
		log.Error("startup failed", logger.Err(err))
		return err
	}
	defer a.Close()

	if err := a.SubscribeJobApprovals(); err != nil {
		return err
	}
	log.Info("Worker running, waiting for messages...", logger.Topic(queue.TopicJobApproved))

	<-ctx.Done()
	log.Info("worker stopping")
	return nil
}
