package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
)

type Config struct {
	DatabaseBusyTimeout       time.Duration
	DatabaseConnectRetryCount int
	DatabaseConnectRetryDelay time.Duration
	DatabaseDebug             bool
	DatabaseFilePath          string
	DatabaseMaxRetries        int
	Hostname                  string
	ServerHost                string
	ServerPort                int

	UserConfig         *UserConfig
	UserConfigFilePath string
}

const environmentENV = "ENVIRONMENT"

func New() (*Config, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return nil, errors.WithStack(err)
	}

	cfg := &Config{
		DatabaseBusyTimeout:       5 * time.Second,
		DatabaseConnectRetryCount: 5,
		DatabaseConnectRetryDelay: 2 * time.Second,
		DatabaseMaxRetries:        5,
		Hostname:                  hostname,
		ServerPort:                4360,
	}

	switch os.Getenv(environmentENV) {
	case "development", "":
		loadDevelopmentConfig(cfg)
	case "test":
		loadTestConfig(cfg)
	case "production":
		loadProductionConfig(cfg)
	}

	cfg.UserConfigFilePath = userConfigFilePath()
	cfg.UserConfig, err = loadUserConfig(cfg.UserConfigFilePath)
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// CoversPath is where normalized volume covers are cached.
func (cfg *Config) CoversPath() string {
	return filepath.Join(cfg.UserConfig.DataPath, "covers")
}

// FailedPath is the quarantine area for duplicates and failed files.
func (cfg *Config) FailedPath() string {
	return filepath.Join(cfg.UserConfig.ProcessingPath, "failed")
}
