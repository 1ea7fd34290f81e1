package pipeline

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/seiribooks/seiri/pkg/cbz"
	"github.com/seiribooks/seiri/pkg/classifier"
	"github.com/seiribooks/seiri/pkg/comicinfo"
	"github.com/seiribooks/seiri/pkg/config"
	"github.com/seiribooks/seiri/pkg/covers"
	"github.com/seiribooks/seiri/pkg/models"
	"github.com/seiribooks/seiri/pkg/processed"
	"github.com/uptrace/bun"
)

// Terminal outcome statuses. Duplicate is the only one without its own
// ledger status: the original row for the content already exists.
const (
	StatusCompleted   = models.ProcessedFileStatusCompleted
	StatusNeedsReview = models.ProcessedFileStatusNeedsReview
	StatusFailed      = models.ProcessedFileStatusFailed
	StatusDuplicate   = "duplicate"
)

// Outcome is the terminal result of one pipeline run.
type Outcome struct {
	Status string
	Issues []string
	Record *models.ProcessedFile
}

// identity is the best-guess classification of one archive, merged from
// embedded metadata and the filename.
type identity struct {
	Series  string
	Volume  *int
	Chapter *float64
	Doc     *comicinfo.Document
	Issues  []string
}

// Pipeline drives one archive from the downloads directory to its final
// place in the library, recording every terminal outcome in the ledger.
type Pipeline struct {
	cfg *config.Config
	log logger.Logger

	processedFileService *processed.Service
	coverManager         *covers.Manager
	matcher              *classifier.Matcher
}

func New(cfg *config.Config, db *bun.DB) *Pipeline {
	processedFileService := processed.NewService(db)

	return &Pipeline{
		cfg:                  cfg,
		log:                  logger.New(),
		processedFileService: processedFileService,
		coverManager:         covers.NewManager(cfg.CoversPath(), processedFileService),
		matcher:              classifier.NewMatcher(cfg.UserConfig.LibraryPath),
	}
}

// CoverManager exposes the cover engine sharing this pipeline's cache.
func (p *Pipeline) CoverManager() *covers.Manager {
	return p.coverManager
}

// Process runs the full pipeline for one stable file. It never returns an
// error for expected conditions (duplicates, review routing); the returned
// Outcome carries the terminal status.
func (p *Pipeline) Process(ctx context.Context, path string) (*Outcome, error) {
	log := logger.FromContext(ctx).Data(logger.Data{"path": path})
	filename := filepath.Base(path)

	hash, err := hashFile(path)
	if err != nil {
		return p.fail(ctx, path, filename, "", errors.Wrap(err, "could not hash file"))
	}

	dup, err := p.processedFileService.IsDuplicate(ctx, hash)
	if err != nil {
		return p.fail(ctx, path, filename, hash, err)
	}
	if dup {
		return p.quarantineDuplicate(ctx, path, filename, hash)
	}

	// Claim the file by moving it into the processing area.
	processingPath, err := moveFile(path, uniquePath(p.cfg.UserConfig.ProcessingPath, filename))
	if err != nil {
		return p.fail(ctx, path, filename, hash, errors.Wrap(err, "could not move file to processing"))
	}

	mtype, err := mimetype.DetectFile(processingPath)
	if err != nil || !mtype.Is("application/zip") {
		return p.fail(ctx, processingPath, filename, hash, errors.New("not a valid comic archive"))
	}

	id, err := p.analyze(processingPath, filename)
	if err != nil {
		return p.fail(ctx, processingPath, filename, hash, err)
	}
	if len(id.Issues) > 0 {
		log.Warn("needs review", logger.Data{"issues": strings.Join(id.Issues, "; ")})
		return p.needsReview(ctx, processingPath, filename, hash, id, nil)
	}
	log.Info("classified", logger.Data{
		"series":  id.Series,
		"volume":  id.Volume,
		"chapter": *id.Chapter,
	})

	err = p.writeMetadata(processingPath, id)
	if err != nil {
		return p.fail(ctx, processingPath, filename, hash, err)
	}

	processingPath, err = p.canonicalRename(processingPath, id)
	if err != nil {
		return p.fail(ctx, processingPath, filename, hash, err)
	}

	coverResult := p.coverManager.Process(ctx, processingPath, id.Series, id.Volume, *id.Chapter, false)
	if coverResult.NeedsReview {
		log.Warn("cover needs review", logger.Data{"message": coverResult.Message})
		return p.needsReview(ctx, processingPath, filename, hash, id, []string{coverResult.Message})
	}

	finalPath, moved, err := p.moveToLibrary(processingPath, id.Series)
	if err != nil {
		return p.fail(ctx, processingPath, filename, hash, err)
	}
	if !moved {
		return p.needsReview(ctx, processingPath, filename, hash, id, []string{"destination already exists in library"})
	}

	if p.cfg.UserConfig.KeepProcessingBackup {
		p.createBackup(log, finalPath, id.Series)
	}

	record := &models.ProcessedFile{
		Filename:      filename,
		Series:        &id.Series,
		Volume:        id.Volume,
		Chapter:       id.Chapter,
		FilePath:      &finalPath,
		ProcessedDate: time.Now(),
		FileHash:      hash,
		Status:        models.ProcessedFileStatusCompleted,
	}
	if coverResult.CoverPath != "" {
		record.CoverPath = &coverResult.CoverPath
	}
	err = p.processedFileService.CreateProcessedFile(ctx, record)
	if err != nil {
		return nil, err
	}

	log.Info("completed", logger.Data{"final_path": finalPath})

	return &Outcome{Status: StatusCompleted, Record: record}, nil
}

// analyze merges embedded metadata with the parsed filename. ComicInfo wins
// per field; the series is then reconciled against the library.
func (p *Pipeline) analyze(path, filename string) (*identity, error) {
	id := &identity{}

	parsed := classifier.Parse(filename)
	id.Series = parsed.Series
	id.Volume = parsed.Volume
	id.Chapter = parsed.Chapter

	archive, err := cbz.Open(path)
	if err != nil {
		return nil, err
	}

	hasMeta, err := archive.Has(cbz.MetadataEntry)
	if err != nil {
		return nil, err
	}
	if hasMeta {
		data, err := archive.Read(cbz.MetadataEntry)
		if err != nil {
			return nil, err
		}
		doc, err := comicinfo.Parse(data)
		if err != nil {
			// Broken metadata is not fatal; the filename still applies.
			p.log.Warn("ignoring malformed metadata", logger.Data{"path": path, "error": err.Error()})
		} else {
			id.Doc = doc
			// Embedded series names are untrusted input for path building.
			if s := classifier.SanitizeSeriesName(doc.Series()); s != "" {
				id.Series = s
			}
			if v := doc.Volume(); v != nil {
				id.Volume = v
			}
			if n := doc.Number(); n != nil {
				id.Chapter = n
			}
		}
	}

	if id.Series != "" {
		match, err := p.matcher.FindMatch(id.Series)
		if err != nil {
			return nil, err
		}
		if match != "" {
			id.Series = match
		}
	}

	if id.Series == "" {
		id.Issues = append(id.Issues, "Cannot determine series name")
	}
	if id.Chapter == nil {
		id.Issues = append(id.Issues, "Cannot determine chapter number")
	}

	return id, nil
}

// writeMetadata fills the resolved identity back into ComicInfo.xml. With
// preserve-existing set, fields already present in the archive are left
// untouched.
func (p *Pipeline) writeMetadata(path string, id *identity) error {
	doc := id.Doc
	if doc == nil {
		doc = comicinfo.New()
	}

	preserve := p.cfg.UserConfig.PreserveExistingMetadata

	if !preserve || doc.Series() == "" {
		doc.SetSeries(id.Series)
	}
	if id.Volume != nil && (!preserve || doc.Volume() == nil) {
		doc.SetVolume(*id.Volume)
	}
	if !preserve || doc.Number() == nil {
		doc.SetNumber(*id.Chapter)
	}

	data, err := doc.Serialize()
	if err != nil {
		return err
	}

	archive, err := cbz.Open(path)
	if err != nil {
		return err
	}

	return archive.WriteEntry(cbz.MetadataEntry, data)
}

// canonicalRename renames the archive in place to the canonical filename.
func (p *Pipeline) canonicalRename(path string, id *identity) (string, error) {
	canonical := classifier.StandardizeFilename(
		id.Series,
		id.Volume,
		*id.Chapter,
		p.cfg.UserConfig.VolumePadding,
		p.cfg.UserConfig.ChapterPadding,
	) + ".cbz"

	if canonical == filepath.Base(path) {
		return path, nil
	}

	return moveFile(path, uniquePath(filepath.Dir(path), canonical))
}

// moveToLibrary moves the archive into its series directory. A name
// collision leaves the file in processing and reports moved=false.
func (p *Pipeline) moveToLibrary(path, series string) (string, bool, error) {
	seriesDir := filepath.Join(p.cfg.UserConfig.LibraryPath, series)
	err := ensureDirectory(seriesDir)
	if err != nil {
		return "", false, err
	}

	dest := filepath.Join(seriesDir, filepath.Base(path))
	if pathExists(dest) {
		return "", false, nil
	}

	dest, err = moveFile(path, dest)
	if err != nil {
		return "", false, err
	}

	// A new series directory may have appeared.
	p.matcher.Invalidate()

	return dest, true, nil
}

func (p *Pipeline) createBackup(log logger.Logger, finalPath, series string) {
	backupDir := filepath.Join(p.cfg.UserConfig.ProcessingPath, series)
	err := ensureDirectory(backupDir)
	if err == nil {
		err = copyFile(finalPath, filepath.Join(backupDir, filepath.Base(finalPath)))
	}
	if err != nil {
		// A failed backup never fails the pipeline.
		log.Warn("backup failed", logger.Data{"error": err.Error()})
	}
}

// quarantineDuplicate moves repeat content into the failed area. The ledger
// already has the row for this hash, so no new row is written.
func (p *Pipeline) quarantineDuplicate(ctx context.Context, path, filename, hash string) (*Outcome, error) {
	log := p.log.Data(logger.Data{"path": path, "file_hash": hash})
	log.Warn("duplicate file")

	err := ensureDirectory(p.cfg.FailedPath())
	if err != nil {
		return nil, err
	}
	_, err = moveFile(path, uniquePath(p.cfg.FailedPath(), filename))
	if err != nil {
		return nil, err
	}

	record, err := p.processedFileService.RetrieveProcessedFile(ctx, processed.RetrieveProcessedFileOptions{
		FileHash: &hash,
	})
	if err != nil {
		return nil, err
	}

	return &Outcome{
		Status: StatusDuplicate,
		Issues: []string{"Duplicate file"},
		Record: record,
	}, nil
}

func (p *Pipeline) needsReview(ctx context.Context, path, filename, hash string, id *identity, extra []string) (*Outcome, error) {
	issues := append(append([]string{}, id.Issues...), extra...)
	message := strings.Join(issues, "; ")

	record := &models.ProcessedFile{
		Filename:      filename,
		Volume:        id.Volume,
		Chapter:       id.Chapter,
		FilePath:      &path,
		ProcessedDate: time.Now(),
		FileHash:      hash,
		Status:        models.ProcessedFileStatusNeedsReview,
		ErrorMessage:  &message,
	}
	if id.Series != "" {
		record.Series = &id.Series
	}

	err := p.processedFileService.CreateProcessedFile(ctx, record)
	if err != nil {
		return nil, err
	}

	return &Outcome{Status: StatusNeedsReview, Issues: issues, Record: record}, nil
}

// fail quarantines the file and records a failed row. The file itself is
// always preserved.
func (p *Pipeline) fail(ctx context.Context, path, filename, hash string, cause error) (*Outcome, error) {
	log := p.log.Data(logger.Data{"path": path})
	log.Err(cause).Error("processing failed")

	finalPath := path
	err := ensureDirectory(p.cfg.FailedPath())
	if err == nil && pathExists(path) {
		moved, mvErr := moveFile(path, uniquePath(p.cfg.FailedPath(), filename))
		if mvErr != nil {
			log.Err(mvErr).Error("could not quarantine file")
		} else {
			finalPath = moved
		}
	}

	message := cause.Error()
	record := &models.ProcessedFile{
		Filename:      filename,
		FilePath:      &finalPath,
		ProcessedDate: time.Now(),
		FileHash:      hash,
		Status:        models.ProcessedFileStatusFailed,
		ErrorMessage:  &message,
	}
	err = p.processedFileService.CreateProcessedFile(ctx, record)
	if err != nil {
		// The quarantine move already happened; losing the ledger row is
		// worth surfacing but not worth crashing over.
		log.Err(err).Error("could not record failure")
	}

	return &Outcome{Status: StatusFailed, Issues: []string{message}, Record: record}, nil
}
