package processed

type ListProcessedFilesQuery struct {
	Limit  int      `query:"limit" json:"limit,omitempty" default:"20" validate:"min=1,max=100"`
	Offset int      `query:"offset" json:"offset,omitempty" validate:"min=0"`
	Status []string `query:"status" json:"status,omitempty" validate:"dive,oneof=completed needs_review failed"`
	Series *string  `query:"series" json:"series,omitempty"`
}

type ResolveProcessedFilePayload struct {
	Series string `json:"series" validate:"required"`
	Volume *int   `json:"volume,omitempty" validate:"omitempty,min=0"`
	// A pointer so an omitted chapter is rejected while chapter 0 is
	// accepted.
	Chapter *float64 `json:"chapter" validate:"required,min=0"`
}
