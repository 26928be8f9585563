package app

import (
	"errors"
	"io/fs"

	"github.com/joho/godotenv"

	"github.com/unclebandit/campusconnect-mailer/internal/config"
	"github.com/unclebandit/campusconnect-mailer/internal/logger"
)

// Bootstrap loads envFile (a missing file is fine), reads the config and
// initialises the process logger under serviceName.
func Bootstrap(serviceName, configPath, envFile string) (*config.Config, error) {
	envErr := godotenv.Load(envFile)

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger.Init(logger.Config{Env: cfg.App.Env, Level: cfg.Log.Level, ServiceName: serviceName})

	if envErr != nil {
		if errors.Is(envErr, fs.ErrNotExist) {
			logger.L().Info("⚠️ No .env file found, relying on OS environment variables")
		} else {
			logger.L().Warn("could not read env file", logger.Err(envErr))
		}
	}
	return cfg, nil
}
