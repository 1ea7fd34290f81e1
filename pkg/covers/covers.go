package covers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/seiribooks/seiri/pkg/cbz"
	"github.com/seiribooks/seiri/pkg/processed"
)

const coverFilename = "cover.jpg"

// Result describes what the cover engine did (or could not do) for one
// archive. Needing review is an expected outcome, not an error.
type Result struct {
	Success          bool
	Extracted        bool
	Injected         bool
	DuplicateRemoved bool
	NeedsReview      bool
	CoverPath        string
	Message          string
}

// Manager owns the on-disk cover cache. Covers are stored once per
// (series, volume) as normalized JPEGs.
type Manager struct {
	cacheDir             string
	processedFileService *processed.Service
}

func NewManager(cacheDir string, processedFileService *processed.Service) *Manager {
	return &Manager{
		cacheDir:             cacheDir,
		processedFileService: processedFileService,
	}
}

// CoverPath returns the cache location for a volume cover, creating the
// parent directories if needed.
func (m *Manager) CoverPath(series string, volume int) (string, error) {
	dir := filepath.Join(m.cacheDir, series, fmt.Sprintf("Vol.%03d", volume))
	err := os.MkdirAll(dir, 0o755)
	if err != nil {
		return "", errors.WithStack(err)
	}
	return filepath.Join(dir, coverFilename), nil
}

func (m *Manager) HasCover(series string, volume int) bool {
	path := filepath.Join(m.cacheDir, series, fmt.Sprintf("Vol.%03d", volume), coverFilename)
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// ExtractFromArchive pulls the cover image out of an archive, normalizes it
// to JPEG, and caches it. An already-cached cover is reused unless force is
// set.
func (m *Manager) ExtractFromArchive(archivePath, series string, volume int, force bool) (string, error) {
	coverPath, err := m.CoverPath(series, volume)
	if err != nil {
		return "", err
	}
	if !force && m.HasCover(series, volume) {
		return coverPath, nil
	}

	archive, err := cbz.Open(archivePath)
	if err != nil {
		return "", err
	}

	entry, err := archive.CoverEntry()
	if err != nil {
		return "", err
	}

	data, err := archive.Read(entry)
	if err != nil {
		return "", err
	}

	normalized, err := normalizeJPEG(data)
	if err != nil {
		return "", err
	}

	err = os.WriteFile(coverPath, normalized, 0o644)
	if err != nil {
		return "", errors.WithStack(err)
	}

	return coverPath, nil
}

// ExistingCover finds a usable cover for a volume. The cache wins; the
// ledger's recorded cover_path is the fallback for covers cached under an
// older location.
func (m *Manager) ExistingCover(ctx context.Context, series string, volume int) (string, bool, error) {
	if m.HasCover(series, volume) {
		return filepath.Join(m.cacheDir, series, fmt.Sprintf("Vol.%03d", volume), coverFilename), true, nil
	}

	recorded, err := m.processedFileService.VolumeCoverPath(ctx, series, volume)
	if err != nil {
		return "", false, err
	}
	if recorded != nil {
		if _, err := os.Stat(*recorded); err == nil {
			return *recorded, true, nil
		}
	}

	return "", false, nil
}

// InjectIntoArchive writes the cover file into the archive as the dedicated
// cover entry.
func (m *Manager) InjectIntoArchive(archivePath, coverPath string) error {
	data, err := os.ReadFile(coverPath)
	if err != nil {
		return errors.WithStack(err)
	}

	archive, err := cbz.Open(archivePath)
	if err != nil {
		return err
	}

	return archive.WriteEntry(cbz.CoverEntryName, data)
}

// SaveUploaded normalizes a manually uploaded image and caches it as the
// cover for a volume, replacing any existing one.
func (m *Manager) SaveUploaded(series string, volume int, data []byte) (string, error) {
	normalized, err := normalizeJPEG(data)
	if err != nil {
		return "", err
	}

	coverPath, err := m.CoverPath(series, volume)
	if err != nil {
		return "", err
	}

	err = os.WriteFile(coverPath, normalized, 0o644)
	if err != nil {
		return "", errors.WithStack(err)
	}

	return coverPath, nil
}

// Process reconciles an archive's cover state. First chapters (chapter 0 or
// 1) and new volumes donate their cover to the cache and must not carry the
// dedicated cover entry themselves; later chapters receive a copy of the
// cached cover.
func (m *Manager) Process(ctx context.Context, archivePath, series string, volume *int, chapter float64, isNewVolume bool) Result {
	if volume == nil {
		return Result{
			NeedsReview: true,
			Message:     "volume required for cover processing",
		}
	}

	isFirstChapter := chapter == 0 || chapter == 1

	if isFirstChapter || isNewVolume {
		coverPath, err := m.ExtractFromArchive(archivePath, series, *volume, false)
		if err != nil {
			return Result{
				NeedsReview: true,
				Message:     fmt.Sprintf("could not extract cover: %v", err),
			}
		}

		result := Result{
			Success:   true,
			Extracted: true,
			CoverPath: coverPath,
		}

		// First-chapter archives use their first page as the visual cover,
		// so a dedicated cover entry is redundant.
		archive, err := cbz.Open(archivePath)
		if err != nil {
			return Result{NeedsReview: true, Message: fmt.Sprintf("could not reopen archive: %v", err)}
		}
		hasMarker, err := archive.Has(cbz.CoverEntryName)
		if err != nil {
			return Result{NeedsReview: true, Message: fmt.Sprintf("could not inspect archive: %v", err)}
		}
		if hasMarker {
			if err := archive.RemoveEntry(cbz.CoverEntryName); err != nil {
				return Result{NeedsReview: true, Message: fmt.Sprintf("could not remove cover entry: %v", err)}
			}
			result.DuplicateRemoved = true
		}

		return result
	}

	coverPath, found, err := m.ExistingCover(ctx, series, *volume)
	if err != nil {
		return Result{NeedsReview: true, Message: fmt.Sprintf("could not look up cover: %v", err)}
	}
	if !found {
		return Result{
			NeedsReview: true,
			Message:     "no cover available for this volume",
		}
	}

	err = m.InjectIntoArchive(archivePath, coverPath)
	if err != nil {
		return Result{NeedsReview: true, Message: fmt.Sprintf("could not inject cover: %v", err)}
	}

	return Result{
		Success:   true,
		Injected:  true,
		CoverPath: coverPath,
	}
}
