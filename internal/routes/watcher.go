package routes

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/getmasq/masq/internal/events"
	"github.com/getmasq/masq/internal/logging"
)

const (
	debouncePeriod = 500 * time.Millisecond
	syncTimeout    = 5 * time.Second
)

// Watcher re-syncs the persisted routes whenever the routes file
// changes. Rapid successive writes are debounced; a file that fails to
// parse is logged and skipped, the previous route set stays in effect.
type Watcher struct {
	path    string
	db      *sql.DB
	bus     *events.Bus
	logger  *zap.Logger
	watcher *fsnotify.Watcher

	mu    sync.Mutex
	timer *time.Timer

	wg sync.WaitGroup
}

// NewWatcher creates a watcher over the routes file at path. The bus
// may be nil.
func NewWatcher(path string, d *sql.DB, bus *events.Bus, logger *zap.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(path); err != nil {
		fsw.Close()
		return nil, err
	}
	return &Watcher{
		path:    path,
		db:      d,
		bus:     bus,
		logger:  logger.With(logging.Component("routes.watcher")),
		watcher: fsw,
	}, nil
}

// Start begins watching in the background.
func (w *Watcher) Start() {
	w.wg.Add(1)
	go w.loop()
	w.logger.Info("watching routes file", zap.String("path", w.path))
}

// Stop ends the watch and waits for the loop to exit. A sync already
// scheduled by the debounce timer may still run.
func (w *Watcher) Stop() error {
	err := w.watcher.Close()
	w.wg.Wait()

	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	return err
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create {
				w.logger.Debug("routes file changed", zap.String("op", event.Op.String()))
				w.scheduleSync()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("routes watch error", zap.Error(err))
		}
	}
}

func (w *Watcher) scheduleSync() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(debouncePeriod, w.resync)
}

func (w *Watcher) resync() {
	rs, err := LoadFile(w.path)
	if err != nil {
		w.logger.Error("routes file not reloaded", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
	defer cancel()
	if err := Sync(ctx, w.db, rs); err != nil {
		w.logger.Error("routes re-sync failed", zap.Error(err))
		return
	}

	w.logger.Info("routes re-synced", logging.Count(int64(len(rs))))
	if w.bus != nil {
		w.bus.Publish(events.RoutesSynced(len(rs)))
	}
}
