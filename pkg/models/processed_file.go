package models

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	ProcessedFileStatusCompleted   = "completed"
	ProcessedFileStatusNeedsReview = "needs_review"
	ProcessedFileStatusFailed      = "failed"
)

// ProcessedFile is one row in the ledger of every processing attempt. The
// content hash is the dedup key; there is exactly one row per distinct
// archive content.
type ProcessedFile struct {
	bun.BaseModel `bun:"table:processed_files,alias:pf"`

	ID            int       `bun:",pk,nullzero" json:"id"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	Filename      string    `bun:",nullzero" json:"filename"`
	Series        *string   `json:"series"`
	Volume        *int      `json:"volume"`
	Chapter       *float64  `json:"chapter"`
	FilePath      *string   `json:"file_path"`
	CoverPath     *string   `json:"cover_path"`
	ProcessedDate time.Time `json:"processed_date"`
	FileHash      string    `bun:",nullzero" json:"file_hash"`
	Status        string    `bun:",nullzero" json:"status"`
	ErrorMessage  *string   `json:"error_message"`
}
