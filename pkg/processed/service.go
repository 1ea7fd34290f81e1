package processed

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/seiribooks/seiri/pkg/errcodes"
	"github.com/seiribooks/seiri/pkg/models"
	"github.com/uptrace/bun"
)

type RetrieveProcessedFileOptions struct {
	ID       *int
	FileHash *string
}

type ListProcessedFilesOptions struct {
	Limit    *int
	Offset   *int
	Statuses []string
	Series   *string

	includeTotal bool
}

type UpdateProcessedFileOptions struct {
	Columns []string
}

type Service struct {
	db *bun.DB
}

func NewService(db *bun.DB) *Service {
	return &Service{db}
}

func (svc *Service) CreateProcessedFile(ctx context.Context, file *models.ProcessedFile) error {
	now := time.Now()
	if file.CreatedAt.IsZero() {
		file.CreatedAt = now
	}
	file.UpdatedAt = file.CreatedAt
	if file.ProcessedDate.IsZero() {
		file.ProcessedDate = now
	}
	if file.Status == "" {
		file.Status = models.ProcessedFileStatusCompleted
	}

	_, err := svc.db.
		NewInsert().
		Model(file).
		Returning("*").
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	return nil
}

func (svc *Service) RetrieveProcessedFile(ctx context.Context, opts RetrieveProcessedFileOptions) (*models.ProcessedFile, error) {
	file := &models.ProcessedFile{}

	q := svc.db.
		NewSelect().
		Model(file)

	if opts.ID != nil {
		q = q.Where("pf.id = ?", *opts.ID)
	}
	if opts.FileHash != nil {
		q = q.Where("pf.file_hash = ?", *opts.FileHash)
	}

	err := q.Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Processed file")
		}
		return nil, errors.WithStack(err)
	}

	return file, nil
}

func (svc *Service) ListProcessedFiles(ctx context.Context, opts ListProcessedFilesOptions) ([]*models.ProcessedFile, error) {
	files, _, err := svc.listProcessedFilesWithTotal(ctx, opts)
	return files, errors.WithStack(err)
}

func (svc *Service) ListProcessedFilesWithTotal(ctx context.Context, opts ListProcessedFilesOptions) ([]*models.ProcessedFile, int, error) {
	opts.includeTotal = true
	return svc.listProcessedFilesWithTotal(ctx, opts)
}

func (svc *Service) listProcessedFilesWithTotal(ctx context.Context, opts ListProcessedFilesOptions) ([]*models.ProcessedFile, int, error) {
	files := []*models.ProcessedFile{}
	var total int
	var err error

	q := svc.db.
		NewSelect().
		Model(&files).
		Order("pf.processed_date DESC")

	if opts.Limit != nil {
		q = q.Limit(*opts.Limit)
	}
	if opts.Offset != nil {
		q = q.Offset(*opts.Offset)
	}
	if opts.Statuses != nil {
		q = q.WhereGroup(" AND ", func(sq *bun.SelectQuery) *bun.SelectQuery {
			for _, s := range opts.Statuses {
				sq = sq.WhereOr("pf.status = ?", s)
			}
			return sq
		})
	}
	if opts.Series != nil {
		q = q.Where("pf.series = ?", *opts.Series)
	}

	if opts.includeTotal {
		total, err = q.ScanAndCount(ctx)
	} else {
		err = q.Scan(ctx)
	}
	if err != nil {
		return nil, 0, errors.WithStack(err)
	}

	return files, total, nil
}

func (svc *Service) UpdateProcessedFile(ctx context.Context, file *models.ProcessedFile, opts UpdateProcessedFileOptions) error {
	if len(opts.Columns) == 0 {
		return nil
	}

	// Update updated_at.
	now := time.Now()
	file.UpdatedAt = now
	columns := append(opts.Columns, "updated_at")

	_, err := svc.db.
		NewUpdate().
		Model(file).
		Column(columns...).
		WherePK().
		Exec(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errcodes.NotFound("Processed file")
		}
		return errors.WithStack(err)
	}

	return nil
}

// IsDuplicate reports whether an archive with this content hash has already
// been recorded, regardless of what the file was named.
func (svc *Service) IsDuplicate(ctx context.Context, fileHash string) (bool, error) {
	count, err := svc.db.NewSelect().
		Model((*models.ProcessedFile)(nil)).
		Where("file_hash = ?", fileHash).
		Count(ctx)
	if err != nil {
		return false, errors.WithStack(err)
	}
	return count > 0, nil
}

// VolumeCoverPath returns the recorded cover path for any completed file of
// the given series and volume, or nil if no sibling has one.
func (svc *Service) VolumeCoverPath(ctx context.Context, series string, volume int) (*string, error) {
	file := &models.ProcessedFile{}

	err := svc.db.
		NewSelect().
		Model(file).
		Where("pf.series = ?", series).
		Where("pf.volume = ?", volume).
		Where("pf.cover_path IS NOT NULL").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.WithStack(err)
	}

	return file.CoverPath, nil
}

// CountsByStatus returns the number of ledger rows per status.
func (svc *Service) CountsByStatus(ctx context.Context) (map[string]int, error) {
	var rows []struct {
		Status string `bun:"status"`
		Count  int    `bun:"count"`
	}

	err := svc.db.
		NewSelect().
		Model((*models.ProcessedFile)(nil)).
		ColumnExpr("status").
		ColumnExpr("COUNT(*) AS count").
		GroupExpr("status").
		Scan(ctx, &rows)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	counts := map[string]int{
		models.ProcessedFileStatusCompleted:   0,
		models.ProcessedFileStatusNeedsReview: 0,
		models.ProcessedFileStatusFailed:      0,
	}
	for _, row := range rows {
		counts[row.Status] = row.Count
	}

	return counts, nil
}
