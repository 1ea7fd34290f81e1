package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/robinjoseph08/golib/signals"
	"github.com/seiribooks/seiri/pkg/config"
	"github.com/seiribooks/seiri/pkg/database"
	"github.com/seiribooks/seiri/pkg/migrations"
	"github.com/seiribooks/seiri/pkg/server"
	"github.com/seiribooks/seiri/pkg/version"
	"github.com/seiribooks/seiri/pkg/worker"
)

func main() {
	ctx := context.Background()
	log := logger.New()

	log.Info("starting seiri", logger.Data{"version": version.Version})

	cfg, err := config.New()
	if err != nil {
		log.Err(err).Fatal("config error")
	}

	if err := initDirectories(cfg); err != nil {
		log.Err(err).Fatal("directory setup error")
	}
	log.Info("directories initialized", logger.Data{
		"downloads":  cfg.UserConfig.DownloadsPath,
		"library":    cfg.UserConfig.LibraryPath,
		"processing": cfg.UserConfig.ProcessingPath,
	})

	db, err := database.New(cfg)
	if err != nil {
		log.Err(err).Fatal("database error")
	}

	group, err := migrations.BringUpToDate(ctx, db)
	if err != nil {
		log.Err(err).Fatal("migrations error")
	}
	if group.ID == 0 {
		log.Info("no new migrations to run")
	} else {
		log.Info("migrated to new group", logger.Data{"group_id": group.ID, "migration_names": group.Migrations.String()})
	}

	wrkr := worker.New(cfg, db)

	srv, err := server.New(cfg, db, wrkr.Pipeline().CoverManager())
	if err != nil {
		log.Err(err).Fatal("server error")
	}

	graceful := signals.Setup()

	go func() {
		lc := net.ListenConfig{}
		listener, err := lc.Listen(ctx, "tcp", srv.Addr)
		if err != nil {
			log.Err(err).Fatal("failed to bind port")
		}

		log.Info("server started", logger.Data{"port": listener.Addr().(*net.TCPAddr).Port})

		err = srv.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Err(err).Fatal("server stopped")
		}
		log.Info("server stopped")
	}()

	err = wrkr.Start()
	if err != nil {
		log.Err(err).Fatal("worker error")
	}
	log.Info("worker started")

	<-graceful
	log.Info("starting graceful shutdown")

	err = srv.Shutdown(ctx)
	if err != nil {
		log.Err(err).Error("server shutdown error")
	}
	log.Info("server shutdown")

	wrkr.Shutdown()
	log.Info("worker shutdown")

	err = db.Close()
	if err != nil {
		log.Err(err).Error("database close error")
	}
	log.Info("database closed")
}

// initDirectories creates the working directories and verifies the data
// directory is writable.
func initDirectories(cfg *config.Config) error {
	dirs := []string{
		cfg.UserConfig.DownloadsPath,
		cfg.UserConfig.LibraryPath,
		cfg.UserConfig.ProcessingPath,
		cfg.FailedPath(),
		cfg.CoversPath(),
		filepath.Dir(cfg.DatabaseFilePath),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.Wrapf(err, "failed to create directory: %s", dir)
		}
	}

	testFile := filepath.Join(cfg.UserConfig.DataPath, ".write_test")
	f, err := os.Create(testFile)
	if err != nil {
		return errors.Wrapf(err, "data directory is not writable: %s", cfg.UserConfig.DataPath)
	}
	f.Close()

	if err := os.Remove(testFile); err != nil {
		return errors.Wrapf(err, "failed to clean up write test file: %s", testFile)
	}

	return nil
}
