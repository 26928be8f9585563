// cmd/seeder/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/unclebandit/campusconnect-mailer/internal/app"
	"github.com/unclebandit/campusconnect-mailer/internal/db"
	"github.com/unclebandit/campusconnect-mailer/internal/logger"
)

var defaultSeedFiles = []string{
	"seed/users.sql",
	"seed/templates.sql",
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath, envFile string
	var files []string

	cmd := &cobra.Command{
		Use:          "seeder",
		Short:        "Applies the schema and loads seed SQL files",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := app.Bootstrap("campusconnect-seeder", configPath, envFile)
			if err != nil {
				return err
			}
			defer logger.Sync()

			d, err := db.Open(cfg.Storage.Driver, cfg.Storage.DSN)
			if err != nil {
				return err
			}
			defer d.Close()
			return seed(cmd.Context(), d, files)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to a YAML config file")
	cmd.Flags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the config")
	cmd.Flags().StringSliceVar(&files, "file", defaultSeedFiles, "seed files, applied in order")
	return cmd
}

func seed(ctx context.Context, d *db.DB, files []string) error {
	log := logger.Named("seeder")
	if err := d.Migrate(ctx); err != nil {
		return err
	}
	for _, file := range files {
		content, err := os.ReadFile(filepath.Clean(file))
		if err != nil {
			return fmt.Errorf("read %s: %w", file, err)
		}
		if _, err := d.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("execute %s: %w", file, err)
		}
		log.Info("Seeded", zap.String("file", file))
	}
	log.Info("Database seeding completed successfully!")
	return nil
}
