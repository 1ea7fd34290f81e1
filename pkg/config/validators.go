package config

type UpdateSettingsPayload struct {
	LogLevel                 *string `json:"log_level,omitempty" validate:"omitempty,oneof=debug info warn error"`
	PollIntervalSeconds      *int    `json:"poll_interval_seconds,omitempty" validate:"omitempty,min=1"`
	DebounceSeconds          *int    `json:"debounce_seconds,omitempty" validate:"omitempty,min=1"`
	VolumePadding            *int    `json:"volume_padding,omitempty" validate:"omitempty,min=1,max=6"`
	ChapterPadding           *int    `json:"chapter_padding,omitempty" validate:"omitempty,min=1,max=8"`
	PreserveExistingMetadata *bool   `json:"preserve_existing_metadata,omitempty"`
	KeepProcessingBackup     *bool   `json:"keep_processing_backup,omitempty"`
}
