package worker

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
	"time"

	"github.com/seiribooks/seiri/pkg/config"
	"github.com/seiribooks/seiri/pkg/migrations"
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

func writeCBZ(t *testing.T, path string) {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			img.Set(x, y, color.RGBA{R: 10, G: 20, B: 30, A: 255})
		}
	}
	buf := &bytes.Buffer{}
	require.NoError(t, jpeg.Encode(buf, img, &jpeg.Options{Quality: 95}))

	f, err := os.Create(path)
	require.NoError(t, err)
	w := zip.NewWriter(f)
	ew, err := w.Create("001.jpg")
	require.NoError(t, err)
	_, err = ew.Write(buf.Bytes())
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())
}

func TestWorker_ProcessesExistingFileOnStart(t *testing.T) {
	root := t.TempDir()
	cfg := &config.Config{
		UserConfig: &config.UserConfig{
			PollIntervalSeconds:      1,
			DebounceSeconds:          1,
			LibraryPath:              filepath.Join(root, "library"),
			DownloadsPath:            filepath.Join(root, "downloads"),
			DataPath:                 filepath.Join(root, "data"),
			ProcessingPath:           filepath.Join(root, "processing"),
			VolumePadding:            3,
			ChapterPadding:           5,
			PreserveExistingMetadata: true,
		},
	}
	require.NoError(t, os.MkdirAll(cfg.UserConfig.DownloadsPath, 0o755))

	// Already fully written before the worker starts.
	writeCBZ(t, filepath.Join(cfg.UserConfig.DownloadsPath, "Naruto Vol.001 Ch.001.cbz"))

	w := New(cfg, newTestDB(t))
	require.NoError(t, w.Start())
	defer w.Shutdown()

	finalPath := filepath.Join(cfg.UserConfig.LibraryPath, "Naruto", "Naruto Vol.001 Ch.00001.cbz")
	require.Eventually(t, func() bool {
		_, err := os.Stat(finalPath)
		return err == nil
	}, 5*time.Second, 50*time.Millisecond)
}
