package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/robinjoseph08/golib/logger"
	"github.com/seiribooks/seiri/pkg/config"
	"github.com/seiribooks/seiri/pkg/pipeline"
	"github.com/seiribooks/seiri/pkg/watcher"
	"github.com/uptrace/bun"
)

// Worker drives the pipeline: it owns the downloads watcher and a single
// poll loop that feeds stable files into the pipeline one at a time.
// Archive mutation needs exclusive access, so there is never more than one
// pipeline run in flight.
type Worker struct {
	config   *config.Config
	log      logger.Logger
	watcher  *watcher.Watcher
	pipeline *pipeline.Pipeline

	shutdown chan struct{}
	done     chan struct{}
}

func New(cfg *config.Config, db *bun.DB) *Worker {
	return &Worker{
		config:   cfg,
		log:      logger.New(),
		watcher:  watcher.New(cfg.UserConfig.DownloadsPath, cfg.UserConfig.Debounce()),
		pipeline: pipeline.New(cfg, db),

		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Pipeline exposes the pipeline so the server can share its cover manager.
func (w *Worker) Pipeline() *pipeline.Pipeline {
	return w.pipeline
}

func (w *Worker) Start() error {
	err := w.watcher.Start()
	if err != nil {
		return err
	}

	// Files that were already sitting in the downloads directory are fully
	// written, so they skip debouncing.
	err = w.watcher.ScanExisting(w.consume)
	if err != nil {
		return err
	}

	go w.poll()

	return nil
}

func (w *Worker) poll() {
	timer := time.NewTimer(w.config.UserConfig.PollInterval())

	for {
		select {
		case <-w.shutdown:
			w.done <- struct{}{}
			return
		case <-timer.C:
			// Interval and debounce are re-read every tick so settings edits
			// apply without a restart.
			w.watcher.SetDebounce(w.config.UserConfig.Debounce())
			w.watcher.CheckPending(w.consume)
			timer.Reset(w.config.UserConfig.PollInterval())
		}
	}
}

func (w *Worker) consume(path string) {
	id, err := uuid.NewRandom()
	if err != nil {
		w.log.Err(err).Error("new uuid error")
		return
	}
	log := w.log.ID(id.String()).Root(logger.Data{"path": path})
	ctx := log.WithContext(context.Background())

	outcome, err := w.pipeline.Process(ctx, path)
	if err != nil {
		log.Err(err).Error("process error")
		return
	}

	log.Info("processed", logger.Data{"status": outcome.Status})
}

func (w *Worker) Shutdown() {
	w.watcher.Stop()

	close(w.shutdown)
	<-w.done
}
