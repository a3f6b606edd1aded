// Package watcher ingests documents dropped into a watched directory.
// Layout: <dir>/<uid>/<doc>.pdf; files in the root belong to the default
// tenant. Write bursts are debounced so a document is enqueued once its
// upload has settled.
package watcher

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/askdoc/askdoc/internal/store"
)

// DefaultDebounceWindow is how long a file must stay quiet before it is
// considered fully written.
const DefaultDebounceWindow = 2 * time.Second

// DefaultTenant receives files dropped directly into the watch root.
const DefaultTenant = "default"

// Enqueuer accepts settled documents for ingestion.
type Enqueuer interface {
	Enqueue(ctx context.Context, uid, docName, path string) (*store.IngestionJob, error)
}

// Watcher monitors a drop directory and enqueues new PDF documents.
type Watcher struct {
	dir    string
	window time.Duration
	queue  Enqueuer
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
	stopped bool
}

// New creates a drop-dir watcher.
func New(dir string, window time.Duration, queue Enqueuer, logger *slog.Logger) *Watcher {
	if window <= 0 {
		window = DefaultDebounceWindow
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		dir:     dir,
		window:  window,
		queue:   queue,
		logger:  logger,
		pending: make(map[string]*time.Timer),
	}
}

// Run watches the drop directory until ctx is cancelled. Existing tenant
// subdirectories are watched too; new ones are added as they appear.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = fw.Close() }()

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}
	if err := fw.Add(w.dir); err != nil {
		return err
	}
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			if err := fw.Add(filepath.Join(w.dir, e.Name())); err != nil {
				w.logger.Warn("watch_subdir_failed",
					slog.String("dir", e.Name()),
					slog.String("error", err.Error()))
			}
		}
	}

	w.logger.Info("watcher_started",
		slog.String("dir", w.dir),
		slog.Duration("debounce", w.window))

	for {
		select {
		case <-ctx.Done():
			w.stop()
			return ctx.Err()
		case event, ok := <-fw.Events:
			if !ok {
				w.stop()
				return nil
			}
			w.handle(ctx, fw, event)
		case err, ok := <-fw.Errors:
			if !ok {
				w.stop()
				return nil
			}
			w.logger.Warn("watcher_error", slog.String("error", err.Error()))
		}
	}
}

func (w *Watcher) handle(ctx context.Context, fw *fsnotify.Watcher, event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}

	info, err := os.Stat(event.Name)
	if err != nil {
		return
	}
	if info.IsDir() {
		if event.Has(fsnotify.Create) {
			if err := fw.Add(event.Name); err != nil {
				w.logger.Warn("watch_subdir_failed",
					slog.String("dir", event.Name),
					slog.String("error", err.Error()))
			}
		}
		return
	}
	if !strings.EqualFold(filepath.Ext(event.Name), ".pdf") {
		return
	}

	w.debounce(ctx, event.Name)
}

// debounce (re)arms the quiet-window timer for a path. The document is
// enqueued only when no event arrives for a full window.
func (w *Watcher) debounce(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}

	if timer, ok := w.pending[path]; ok {
		timer.Reset(w.window)
		return
	}
	w.pending[path] = time.AfterFunc(w.window, func() {
		w.mu.Lock()
		delete(w.pending, path)
		stopped := w.stopped
		w.mu.Unlock()
		if stopped {
			return
		}
		w.enqueue(ctx, path)
	})
}

func (w *Watcher) enqueue(ctx context.Context, path string) {
	uid := DefaultTenant
	if rel, err := filepath.Rel(w.dir, path); err == nil {
		if parent := filepath.Dir(rel); parent != "." {
			uid = filepath.Base(parent)
		}
	}
	docName := filepath.Base(path)

	job, err := w.queue.Enqueue(ctx, uid, docName, path)
	if err != nil {
		w.logger.Error("watch_enqueue_failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return
	}
	w.logger.Info("watch_enqueued",
		slog.String("uid", uid),
		slog.String("doc", docName),
		slog.String("job_id", job.JobID))
}

func (w *Watcher) stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = true
	for path, timer := range w.pending {
		timer.Stop()
		delete(w.pending, path)
	}
}
