package inbox

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/timmy/recipe-ingest/internal/logger"
)

// Watcher emits files that appear in a directory once they have stopped
// changing for the settle delay. A path is emitted at most once until it is
// released, so overlapping events and the initial drain never double-queue
// the same file.
type Watcher struct {
	dir       string
	settle    time.Duration
	supported func(path string) bool

	mu       sync.Mutex
	inflight map[string]struct{}
	running  atomic.Bool
}

// NewWatcher creates a watcher for dir. supported filters paths; nil accepts all.
func NewWatcher(dir string, settle time.Duration, supported func(path string) bool) *Watcher {
	if supported == nil {
		supported = func(string) bool { return true }
	}
	return &Watcher{
		dir:       dir,
		settle:    settle,
		supported: supported,
		inflight:  make(map[string]struct{}),
	}
}

// Claim marks path as in flight. It returns false if it already was.
func (w *Watcher) Claim(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.inflight[path]; ok {
		return false
	}
	w.inflight[path] = struct{}{}
	return true
}

// Release makes path eligible to be emitted again.
func (w *Watcher) Release(path string) {
	w.mu.Lock()
	delete(w.inflight, path)
	w.mu.Unlock()
}

// Claimed reports whether path is currently claimed.
func (w *Watcher) Claimed(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.inflight[path]
	return ok
}

// InFlight returns the number of claimed paths.
func (w *Watcher) InFlight() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.inflight)
}

func (w *Watcher) Running() bool {
	return w.running.Load()
}

// Run watches the directory until ctx is cancelled. emit is called from the
// Run goroutine with each settled, claimed path.
func (w *Watcher) Run(ctx context.Context, emit func(path string)) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}

	w.running.Store(true)
	defer w.running.Store(false)
	logger.CtxInfo(ctx, "Started watching directory: %s", w.dir)

	settled := make(chan string, 64)
	timers := make(map[string]*time.Timer)
	defer func() {
		for _, t := range timers {
			t.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			logger.CtxInfo(ctx, "Stopped watching directory: %s", w.dir)
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			// A rename into the directory arrives as Create for the new name.
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 || !w.supported(ev.Name) {
				continue
			}
			path := ev.Name
			if t, ok := timers[path]; ok {
				t.Reset(w.settle)
				continue
			}
			timers[path] = time.AfterFunc(w.settle, func() {
				select {
				case settled <- path:
				case <-ctx.Done():
				}
			})

		case path := <-settled:
			delete(timers, path)
			info, err := os.Stat(path)
			if err != nil || !info.Mode().IsRegular() {
				logger.CtxDebug(ctx, "File disappeared before settling: %s", path)
				continue
			}
			if !w.Claim(path) {
				continue
			}
			emit(path)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.FromContext(ctx).WithError(err).Error("Watcher error")
		}
	}
}
