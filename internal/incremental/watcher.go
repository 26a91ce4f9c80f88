package incremental

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/standardbeagle/codegraph-core/internal/obslog"
)

// Watcher turns filesystem events into debounced batches of touched paths.
// Event streams from editors arrive in bursts (save-all, branch switch),
// so raw events are accumulated and flushed after a quiet period.
type Watcher struct {
	root     string
	debounce time.Duration
	watcher  *fsnotify.Watcher
	onBatch  func(paths []string)

	mu      sync.Mutex
	pending map[string]bool
	timer   *time.Timer

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWatcher creates a Watcher over root. onBatch receives each debounced
// batch of root-relative paths; the CLI's watch loop treats a batch as a
// trigger to rescan the root and passes the rescanned paths to
// Detector.Detect.
func NewWatcher(root string, debounce time.Duration, onBatch func(paths []string)) (*Watcher, error) {
	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		root:     root,
		debounce: debounce,
		watcher:  fsw,
		onBatch:  onBatch,
		pending:  make(map[string]bool),
	}, nil
}

// Start registers every directory under root and begins processing events
// until Stop or ctx cancellation.
func (w *Watcher) Start(ctx context.Context) error {
	err := filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			name := d.Name()
			if name == ".git" || name == "node_modules" {
				return fs.SkipDir
			}
			if addErr := w.watcher.Add(path); addErr != nil {
				obslog.Warnf("incremental", "watch %s: %v", path, addErr)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.wg.Add(1)
	go w.run(runCtx)
	return nil
}

func (w *Watcher) run(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			obslog.Warnf("incremental", "watcher error: %v", err)
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	// A newly created directory must itself be watched, or edits inside it
	// are invisible.
	if ev.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			w.watcher.Add(ev.Name)
		}
	}

	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil {
		rel = ev.Name
	}
	rel = filepath.ToSlash(rel)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending[rel] = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flush)
}

func (w *Watcher) flush() {
	w.mu.Lock()
	batch := make([]string, 0, len(w.pending))
	for p := range w.pending {
		batch = append(batch, p)
	}
	w.pending = make(map[string]bool)
	w.mu.Unlock()

	if len(batch) > 0 && w.onBatch != nil {
		w.onBatch(batch)
	}
}

// Stop tears the watcher down, flushing nothing further.
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	w.watcher.Close()
	w.wg.Wait()
}
