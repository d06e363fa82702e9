package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const (
	processedDir = "processed"
	failedDir    = "failed"

	defaultDebounce = 500 * time.Millisecond
)

// FileIngester ingests a single file. *Pipeline satisfies it.
type FileIngester interface {
	IngestFile(ctx context.Context, path string) (Report, error)
}

// Watcher ingests CSV files dropped into an inbox directory. Each file is
// ingested once its writes have settled, then moved to processed/ or
// failed/ under the inbox.
type Watcher struct {
	dir      string
	ingester FileIngester
	logger   zerolog.Logger
	debounce time.Duration
	onReport func(path string, report Report, err error)

	mu     sync.Mutex
	timers map[string]*time.Timer
	wg     sync.WaitGroup
}

// WatcherOption configures a Watcher
type WatcherOption func(*Watcher)

// WithDebounce sets how long a file must be quiet before it is ingested
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithReportHandler is called after every ingest attempt
func WithReportHandler(fn func(path string, report Report, err error)) WatcherOption {
	return func(w *Watcher) {
		w.onReport = fn
	}
}

// NewWatcher creates a watcher for dir, creating it if needed
func NewWatcher(dir string, ingester FileIngester, logger zerolog.Logger, opts ...WatcherOption) (*Watcher, error) {
	if ingester == nil {
		return nil, errors.New("ingester is required")
	}
	for _, sub := range []string{"", processedDir, failedDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create inbox: %w", err)
		}
	}

	w := &Watcher{
		dir:      dir,
		ingester: ingester,
		logger:   logger.With().Str("component", "ingest_watcher").Str("dir", dir).Logger(),
		debounce: defaultDebounce,
		timers:   make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Run watches the inbox until ctx is done. Files already present when Run
// starts are ingested first.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	if err := fsw.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}

	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if !entry.IsDir() && isCSV(entry.Name()) {
			w.schedule(ctx, filepath.Join(w.dir, entry.Name()))
		}
	}

	w.logger.Info().Msg("Watching inbox")

	for {
		select {
		case event, ok := <-fsw.Events:
			if !ok {
				w.stop()
				return nil
			}
			if !isCSV(event.Name) || filepath.Dir(event.Name) != filepath.Clean(w.dir) {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				w.logger.Debug().
					Str("file", filepath.Base(event.Name)).
					Str("op", event.Op.String()).
					Msg("File change detected")
				w.schedule(ctx, event.Name)
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				w.stop()
				return nil
			}
			w.logger.Error().Err(err).Msg("File watcher error")

		case <-ctx.Done():
			w.stop()
			return nil
		}
	}
}

// schedule debounces ingestion of path
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[path]; ok {
		if t.Stop() {
			w.wg.Done()
		}
	}

	w.wg.Add(1)
	var timer *time.Timer
	timer = time.AfterFunc(w.debounce, func() {
		defer w.wg.Done()

		w.mu.Lock()
		if w.timers[path] == timer {
			delete(w.timers, path)
		}
		w.mu.Unlock()

		if ctx.Err() != nil {
			return
		}
		w.process(ctx, path)
	})
	w.timers[path] = timer
}

func (w *Watcher) process(ctx context.Context, path string) {
	if _, err := os.Stat(path); err != nil {
		return
	}

	report, err := w.ingester.IngestFile(ctx, path)
	target := processedDir
	if err != nil {
		target = failedDir
		w.logger.Error().Err(err).Str("file", filepath.Base(path)).Msg("Inbox file ingest failed")
	} else {
		w.logger.Info().
			Str("file", filepath.Base(path)).
			Str("batch", report.Batch).
			Int("stored", report.Stored).
			Int("skipped", report.Skipped).
			Msg("Inbox file ingested")
	}

	dest := filepath.Join(w.dir, target, filepath.Base(path))
	if _, statErr := os.Stat(dest); statErr == nil {
		ext := filepath.Ext(dest)
		dest = fmt.Sprintf("%s-%d%s", strings.TrimSuffix(dest, ext), time.Now().UnixNano(), ext)
	}
	if mvErr := os.Rename(path, dest); mvErr != nil {
		w.logger.Error().Err(mvErr).Str("file", filepath.Base(path)).Msg("Failed to move inbox file")
	}

	if w.onReport != nil {
		w.onReport(path, report, err)
	}
}

// stop cancels pending timers and waits for running ingests
func (w *Watcher) stop() {
	w.mu.Lock()
	for path, t := range w.timers {
		if t.Stop() {
			w.wg.Done()
		}
		delete(w.timers, path)
	}
	w.mu.Unlock()
	w.wg.Wait()
}

func isCSV(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".csv")
}
