package config

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

type handler struct {
	configService *Service
}

func (h *handler) retrieve(c echo.Context) error {
	userConfig, err := h.configService.RetrieveUserConfig()
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, userConfig))
}

func (h *handler) update(c echo.Context) error {
	params := UpdateSettingsPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	userConfig, err := h.configService.RetrieveUserConfig()
	if err != nil {
		return errors.WithStack(err)
	}

	opts := UpdateUserConfigOptions{}

	if params.LogLevel != nil && userConfig.LogLevel != *params.LogLevel {
		userConfig.LogLevel = *params.LogLevel
		opts.UpdateFile = true
	}
	if params.PollIntervalSeconds != nil && userConfig.PollIntervalSeconds != *params.PollIntervalSeconds {
		userConfig.PollIntervalSeconds = *params.PollIntervalSeconds
		opts.UpdateFile = true
	}
	if params.DebounceSeconds != nil && userConfig.DebounceSeconds != *params.DebounceSeconds {
		userConfig.DebounceSeconds = *params.DebounceSeconds
		opts.UpdateFile = true
	}
	if params.VolumePadding != nil && userConfig.VolumePadding != *params.VolumePadding {
		userConfig.VolumePadding = *params.VolumePadding
		opts.UpdateFile = true
	}
	if params.ChapterPadding != nil && userConfig.ChapterPadding != *params.ChapterPadding {
		userConfig.ChapterPadding = *params.ChapterPadding
		opts.UpdateFile = true
	}
	if params.PreserveExistingMetadata != nil && userConfig.PreserveExistingMetadata != *params.PreserveExistingMetadata {
		userConfig.PreserveExistingMetadata = *params.PreserveExistingMetadata
		opts.UpdateFile = true
	}
	if params.KeepProcessingBackup != nil && userConfig.KeepProcessingBackup != *params.KeepProcessingBackup {
		userConfig.KeepProcessingBackup = *params.KeepProcessingBackup
		opts.UpdateFile = true
	}

	if err := h.configService.UpdateUserConfig(userConfig, opts); err != nil {
		return errors.WithStack(err)
	}

	userConfig, err = h.configService.RetrieveUserConfig()
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, userConfig))
}
