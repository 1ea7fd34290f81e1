package config

import (
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
)

// UserConfig holds the settings users can change at runtime through the
// settings endpoint. It is persisted as a JSON file so edits survive
// restarts.
type UserConfig struct {
	LogLevel            string `json:"log_level"`
	PollIntervalSeconds int    `json:"poll_interval_seconds"`
	DebounceSeconds     int    `json:"debounce_seconds"`

	LibraryPath    string `json:"library_path"`
	DownloadsPath  string `json:"downloads_path"`
	DataPath       string `json:"data_path"`
	ProcessingPath string `json:"processing_path"`

	VolumePadding  int `json:"volume_padding"`
	ChapterPadding int `json:"chapter_padding"`

	PreserveExistingMetadata bool `json:"preserve_existing_metadata"`
	KeepProcessingBackup     bool `json:"keep_processing_backup"`
}

func (uc *UserConfig) PollInterval() time.Duration {
	return time.Duration(uc.PollIntervalSeconds) * time.Second
}

func (uc *UserConfig) Debounce() time.Duration {
	return time.Duration(uc.DebounceSeconds) * time.Second
}

func userConfigFilePath() string {
	configDir := os.Getenv("CONFIG_DIRECTORY")
	if configDir == "" {
		configDir = "/config"
	}

	return filepath.Join(configDir, "config.json")
}

func loadUserConfig(configFilePath string) (*UserConfig, error) {
	data, err := os.ReadFile(configFilePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// File doesn't exist, return defaults
			return loadDefaultUserConfig(), nil
		}
		return nil, errors.WithStack(err)
	}

	userConfig := loadDefaultUserConfig()
	if err := json.Unmarshal(data, userConfig); err != nil {
		return nil, errors.WithStack(err)
	}

	return userConfig, nil
}

func loadDefaultUserConfig() *UserConfig {
	return &UserConfig{
		LogLevel:                 "info",
		PollIntervalSeconds:      5,
		DebounceSeconds:          2,
		LibraryPath:              "/library",
		DownloadsPath:            "/downloads",
		DataPath:                 "/data",
		ProcessingPath:           "/processing",
		VolumePadding:            3,
		ChapterPadding:           5,
		PreserveExistingMetadata: true,
		KeepProcessingBackup:     false,
	}
}

func saveUserConfigFile(userConfig *UserConfig, userConfigFilePath string) error {
	// Ensure config directory exists.
	if err := os.MkdirAll(filepath.Dir(userConfigFilePath), 0755); err != nil {
		return errors.WithStack(err)
	}

	// Write updated settings to file.
	data, err := json.MarshalIndent(userConfig, "", "  ")
	if err != nil {
		return errors.WithStack(err)
	}

	err = os.WriteFile(userConfigFilePath, data, 0644) //nolint:gosec
	if err != nil {
		return errors.WithStack(err)
	}

	return nil
}
