package pipeline

import (
	"archive/zip"
	"bytes"
	"context"
	"database/sql"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/seiribooks/seiri/pkg/cbz"
	"github.com/seiribooks/seiri/pkg/comicinfo"
	"github.com/seiribooks/seiri/pkg/config"
	"github.com/seiribooks/seiri/pkg/migrations"
	"github.com/seiribooks/seiri/pkg/models"
	"github.com/seiribooks/seiri/pkg/processed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)

	db := bun.NewDB(sqldb, sqlitedialect.New())

	_, err = migrations.BringUpToDate(context.Background(), db)
	require.NoError(t, err)

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

func newTestPipeline(t *testing.T) (*Pipeline, *config.Config, *bun.DB) {
	t.Helper()

	root := t.TempDir()
	cfg := &config.Config{
		UserConfig: &config.UserConfig{
			LibraryPath:              filepath.Join(root, "library"),
			DownloadsPath:            filepath.Join(root, "downloads"),
			DataPath:                 filepath.Join(root, "data"),
			ProcessingPath:           filepath.Join(root, "processing"),
			VolumePadding:            3,
			ChapterPadding:           5,
			PreserveExistingMetadata: true,
		},
	}
	for _, dir := range []string{cfg.UserConfig.LibraryPath, cfg.UserConfig.DownloadsPath, cfg.UserConfig.ProcessingPath} {
		require.NoError(t, os.MkdirAll(dir, 0o755))
	}

	db := newTestDB(t)
	return New(cfg, db), cfg, db
}

func pageJPEG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			img.Set(x, y, color.RGBA{R: 100, G: 150, B: 200, A: 255})
		}
	}
	buf := &bytes.Buffer{}
	require.NoError(t, jpeg.Encode(buf, img, &jpeg.Options{Quality: 95}))
	return buf.Bytes()
}

func writeCBZ(t *testing.T, path string, entries map[string][]byte) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.Create(path)
	require.NoError(t, err)
	w := zip.NewWriter(f)
	for name, data := range entries {
		ew, err := w.Create(name)
		require.NoError(t, err)
		_, err = ew.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())
}

func TestProcess_CompletedFlow(t *testing.T) {
	p, cfg, _ := newTestPipeline(t)
	ctx := context.Background()

	path := filepath.Join(cfg.UserConfig.DownloadsPath, "Naruto Vol.001 Ch.001.cbz")
	writeCBZ(t, path, map[string][]byte{
		"001.jpg": pageJPEG(t),
	})

	outcome, err := p.Process(ctx, path)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, outcome.Status)

	finalPath := filepath.Join(cfg.UserConfig.LibraryPath, "Naruto", "Naruto Vol.001 Ch.00001.cbz")
	assert.FileExists(t, finalPath)
	assert.NoFileExists(t, path)

	require.NotNil(t, outcome.Record)
	require.NotNil(t, outcome.Record.Series)
	assert.Equal(t, "Naruto", *outcome.Record.Series)
	require.NotNil(t, outcome.Record.Chapter)
	assert.Equal(t, float64(1), *outcome.Record.Chapter)
	require.NotNil(t, outcome.Record.FilePath)
	assert.Equal(t, finalPath, *outcome.Record.FilePath)

	// First chapter donates its cover to the cache.
	assert.True(t, p.coverManager.HasCover("Naruto", 1))

	// Metadata was written back into the archive.
	archive, err := cbz.Open(finalPath)
	require.NoError(t, err)
	data, err := archive.Read(cbz.MetadataEntry)
	require.NoError(t, err)
	doc, err := comicinfo.Parse(data)
	require.NoError(t, err)
	assert.Equal(t, "Naruto", doc.Series())
}

func TestProcess_DuplicateContent(t *testing.T) {
	p, cfg, _ := newTestPipeline(t)
	ctx := context.Background()

	entries := map[string][]byte{"001.jpg": pageJPEG(t)}

	first := filepath.Join(cfg.UserConfig.DownloadsPath, "Naruto Vol.001 Ch.001.cbz")
	writeCBZ(t, first, entries)
	outcome, err := p.Process(ctx, first)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, outcome.Status)

	// Byte-identical content under a different name.
	second := filepath.Join(cfg.UserConfig.DownloadsPath, "naruto copy.cbz")
	writeCBZ(t, second, entries)
	outcome, err = p.Process(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, StatusDuplicate, outcome.Status)

	// The file is quarantined, not deleted.
	assert.FileExists(t, filepath.Join(cfg.FailedPath(), "naruto copy.cbz"))

	// Exactly one ledger row for the content.
	files, total, err := p.processedFileService.ListProcessedFilesWithTotal(ctx, processed.ListProcessedFilesOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, files, 1)
	assert.Equal(t, models.ProcessedFileStatusCompleted, files[0].Status)
}

func TestProcess_UnclassifiableNeedsReview(t *testing.T) {
	p, cfg, _ := newTestPipeline(t)
	ctx := context.Background()

	path := filepath.Join(cfg.UserConfig.DownloadsPath, "x.cbz")
	writeCBZ(t, path, map[string][]byte{"001.jpg": pageJPEG(t)})

	outcome, err := p.Process(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, StatusNeedsReview, outcome.Status)
	assert.NotEmpty(t, outcome.Issues)

	// The file stays in the processing area for a human to look at.
	require.NotNil(t, outcome.Record.FilePath)
	assert.FileExists(t, *outcome.Record.FilePath)
	assert.Equal(t, cfg.UserConfig.ProcessingPath, filepath.Dir(*outcome.Record.FilePath))
	assert.Equal(t, models.ProcessedFileStatusNeedsReview, outcome.Record.Status)
}

func TestProcess_NotAnArchiveFails(t *testing.T) {
	p, cfg, _ := newTestPipeline(t)
	ctx := context.Background()

	path := filepath.Join(cfg.UserConfig.DownloadsPath, "Naruto Vol.001 Ch.001.cbz")
	require.NoError(t, os.WriteFile(path, []byte("this is not a zip"), 0o644))

	outcome, err := p.Process(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, outcome.Status)

	// Quarantined with the failure recorded.
	require.NotNil(t, outcome.Record.FilePath)
	assert.Equal(t, cfg.FailedPath(), filepath.Dir(*outcome.Record.FilePath))
	assert.FileExists(t, *outcome.Record.FilePath)
	require.NotNil(t, outcome.Record.ErrorMessage)
	assert.Contains(t, *outcome.Record.ErrorMessage, "not a valid comic archive")
}

func TestProcess_MetadataWinsOverFilename(t *testing.T) {
	p, cfg, _ := newTestPipeline(t)
	ctx := context.Background()

	doc := comicinfo.New()
	doc.SetSeries("One Piece")
	doc.SetVolume(3)
	doc.SetNumber(1)
	meta, err := doc.Serialize()
	require.NoError(t, err)

	path := filepath.Join(cfg.UserConfig.DownloadsPath, "Naruto Vol.001 Ch.002.cbz")
	writeCBZ(t, path, map[string][]byte{
		"ComicInfo.xml": meta,
		"001.jpg":       pageJPEG(t),
	})

	outcome, err := p.Process(ctx, path)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, outcome.Status)

	require.NotNil(t, outcome.Record.Series)
	assert.Equal(t, "One Piece", *outcome.Record.Series)
	require.NotNil(t, outcome.Record.Volume)
	assert.Equal(t, 3, *outcome.Record.Volume)
	require.NotNil(t, outcome.Record.Chapter)
	assert.Equal(t, float64(1), *outcome.Record.Chapter)

	assert.FileExists(t, filepath.Join(cfg.UserConfig.LibraryPath, "One Piece", "One Piece Vol.003 Ch.00001.cbz"))
}

func TestProcess_MetadataSeriesCannotEscapeLibrary(t *testing.T) {
	p, cfg, _ := newTestPipeline(t)
	ctx := context.Background()

	// Embedded metadata carrying path separators must not place the file
	// outside the library root.
	doc := comicinfo.New()
	doc.SetSeries("../../evil")
	doc.SetVolume(1)
	doc.SetNumber(1)
	meta, err := doc.Serialize()
	require.NoError(t, err)

	path := filepath.Join(cfg.UserConfig.DownloadsPath, "Naruto Vol.001 Ch.001.cbz")
	writeCBZ(t, path, map[string][]byte{
		"ComicInfo.xml": meta,
		"001.jpg":       pageJPEG(t),
	})

	outcome, err := p.Process(ctx, path)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, outcome.Status)

	require.NotNil(t, outcome.Record.Series)
	assert.Equal(t, "evil", *outcome.Record.Series)
	require.NotNil(t, outcome.Record.FilePath)
	assert.Equal(t, filepath.Join(cfg.UserConfig.LibraryPath, "evil"), filepath.Dir(*outcome.Record.FilePath))
}

func TestProcess_SeriesMatchedAgainstLibrary(t *testing.T) {
	p, cfg, _ := newTestPipeline(t)
	ctx := context.Background()

	// A differently-cased series directory already exists.
	require.NoError(t, os.MkdirAll(filepath.Join(cfg.UserConfig.LibraryPath, "NARUTO"), 0o755))

	path := filepath.Join(cfg.UserConfig.DownloadsPath, "Naruto Vol.001 Ch.001.cbz")
	writeCBZ(t, path, map[string][]byte{"001.jpg": pageJPEG(t)})

	outcome, err := p.Process(ctx, path)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, outcome.Status)
	require.NotNil(t, outcome.Record.Series)
	assert.Equal(t, "NARUTO", *outcome.Record.Series)
}

func TestProcess_LibraryCollisionNeedsReview(t *testing.T) {
	p, cfg, _ := newTestPipeline(t)
	ctx := context.Background()

	// The canonical destination already exists.
	existing := filepath.Join(cfg.UserConfig.LibraryPath, "Naruto", "Naruto Vol.001 Ch.00001.cbz")
	require.NoError(t, os.MkdirAll(filepath.Dir(existing), 0o755))
	require.NoError(t, os.WriteFile(existing, []byte("occupied"), 0o644))

	path := filepath.Join(cfg.UserConfig.DownloadsPath, "Naruto Vol.001 Ch.001.cbz")
	writeCBZ(t, path, map[string][]byte{"001.jpg": pageJPEG(t)})

	outcome, err := p.Process(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, StatusNeedsReview, outcome.Status)

	// The existing library file is never overwritten.
	data, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, []byte("occupied"), data)
}

func TestProcess_PreserveExistingMetadata(t *testing.T) {
	p, cfg, _ := newTestPipeline(t)
	ctx := context.Background()

	// The embedded series disagrees with nothing, but the volume is absent
	// and must be filled in from the filename.
	doc := comicinfo.New()
	doc.SetSeries("Naruto")
	meta, err := doc.Serialize()
	require.NoError(t, err)

	path := filepath.Join(cfg.UserConfig.DownloadsPath, "Naruto Vol.002 Ch.001.cbz")
	writeCBZ(t, path, map[string][]byte{
		"ComicInfo.xml": meta,
		"001.jpg":       pageJPEG(t),
	})

	outcome, err := p.Process(ctx, path)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, outcome.Status)

	archive, err := cbz.Open(*outcome.Record.FilePath)
	require.NoError(t, err)
	data, err := archive.Read(cbz.MetadataEntry)
	require.NoError(t, err)
	updated, err := comicinfo.Parse(data)
	require.NoError(t, err)

	assert.Equal(t, "Naruto", updated.Series())
	require.NotNil(t, updated.Volume())
	assert.Equal(t, 2, *updated.Volume())
	require.NotNil(t, updated.Number())
	assert.Equal(t, float64(1), *updated.Number())
}

func TestProcess_BackupCopy(t *testing.T) {
	p, cfg, _ := newTestPipeline(t)
	cfg.UserConfig.KeepProcessingBackup = true
	ctx := context.Background()

	path := filepath.Join(cfg.UserConfig.DownloadsPath, "Naruto Vol.001 Ch.001.cbz")
	writeCBZ(t, path, map[string][]byte{"001.jpg": pageJPEG(t)})

	outcome, err := p.Process(ctx, path)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, outcome.Status)

	backup := filepath.Join(cfg.UserConfig.ProcessingPath, "Naruto", "Naruto Vol.001 Ch.00001.cbz")
	assert.FileExists(t, backup)
}

func TestUniquePath(t *testing.T) {
	dir := t.TempDir()

	assert.Equal(t, filepath.Join(dir, "a.cbz"), uniquePath(dir, "a.cbz"))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.cbz"), nil, 0o644))
	assert.Equal(t, filepath.Join(dir, "a_1.cbz"), uniquePath(dir, "a.cbz"))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a_1.cbz"), nil, 0o644))
	assert.Equal(t, filepath.Join(dir, "a_2.cbz"), uniquePath(dir, "a.cbz"))
}

func TestHashFile_StableAcrossNames(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.cbz")
	b := filepath.Join(dir, "b.cbz")
	require.NoError(t, os.WriteFile(a, []byte("content"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("content"), 0o644))

	ha, err := hashFile(a)
	require.NoError(t, err)
	hb, err := hashFile(b)
	require.NoError(t, err)
	assert.Equal(t, ha, hb)
	assert.Len(t, ha, 64)
}
