// Package watcher detects when files dropped into the downloads directory
// are fully written and safe to consume. Filesystem events only refresh an
// in-memory pending set; emission happens from CheckPending, which the
// worker's poll loop drives. That keeps the consumer callback off the raw
// event goroutine so archive access is never re-entrant.
package watcher

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
)

const watchExtension = ".cbz"

// Watcher tracks one directory, non-recursively.
type Watcher struct {
	dir      string
	debounce time.Duration
	log      logger.Logger
	now      func() time.Time

	fsw  *fsnotify.Watcher
	done chan struct{}

	mu      sync.Mutex
	pending map[string]time.Time
}

// New creates a Watcher over dir with the given debounce interval. The
// watcher is inert until Start is called.
func New(dir string, debounce time.Duration) *Watcher {
	return &Watcher{
		dir:      dir,
		debounce: debounce,
		log:      logger.New(),
		now:      time.Now,
		pending:  map[string]time.Time{},
	}
}

// Start begins capturing filesystem events. The watch directory is created
// if it doesn't exist.
func (w *Watcher) Start() error {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return errors.WithStack(err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.WithStack(err)
	}
	if err := fsw.Add(w.dir); err != nil {
		fsw.Close()
		return errors.WithStack(err)
	}

	w.fsw = fsw
	w.done = make(chan struct{})
	go w.captureEvents()

	w.log.Info("watcher started", logger.Data{"dir": w.dir})
	return nil
}

// SetDebounce updates the debounce interval for subsequent checks, so a
// settings edit applies without a restart.
func (w *Watcher) SetDebounce(debounce time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.debounce = debounce
}

// Stop shuts down event capture. Pending entries are discarded.
func (w *Watcher) Stop() {
	if w.fsw == nil {
		return
	}
	w.fsw.Close()
	<-w.done
	w.log.Info("watcher stopped")
}

func (w *Watcher) captureEvents() {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) {
				continue
			}
			if !hasWatchExtension(event.Name) {
				continue
			}
			w.markPending(event.Name)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Err(err).Error("watch error")
		}
	}
}

// markPending records that path was just created or written to, resetting
// its debounce clock.
func (w *Watcher) markPending(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.pending[path]; !ok {
		w.log.Info("file detected", logger.Data{"path": path})
	}
	w.pending[path] = w.now()
}

// CheckPending probes every pending entry whose debounce interval has
// elapsed and hands each stable, openable file to consume. Files that
// vanished are dropped; files that can't be opened yet stay pending for the
// next cycle. Each stable file is emitted exactly once.
func (w *Watcher) CheckPending(consume func(path string)) {
	now := w.now()

	w.mu.Lock()
	var ready []string
	for path, lastSeen := range w.pending {
		if now.Sub(lastSeen) < w.debounce {
			continue
		}

		if _, err := os.Stat(path); err != nil {
			// Disappeared before it stabilized.
			w.log.Warn("pending file disappeared", logger.Data{"path": path})
			delete(w.pending, path)
			continue
		}

		if !readable(path) {
			// Still locked or being written; retry next cycle.
			continue
		}

		delete(w.pending, path)
		ready = append(ready, path)
	}
	w.mu.Unlock()

	for _, path := range ready {
		w.log.Info("file ready", logger.Data{"path": path})
		consume(path)
	}
}

// ScanExisting emits files already present in the directory at startup.
// They're fully written by definition, so debouncing is skipped.
func (w *Watcher) ScanExisting(consume func(path string)) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.WithStack(err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !hasWatchExtension(entry.Name()) {
			continue
		}
		path := filepath.Join(w.dir, entry.Name())
		w.log.Info("processing existing file", logger.Data{"path": path})
		consume(path)
	}
	return nil
}

// readable reports whether the file can be opened and one byte read, which
// is the signal that whatever was writing it has finished.
func readable(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	buf := make([]byte, 1)
	_, err = f.Read(buf)
	return err == nil || err == io.EOF
}

func hasWatchExtension(path string) bool {
	return strings.EqualFold(filepath.Ext(path), watchExtension)
}
