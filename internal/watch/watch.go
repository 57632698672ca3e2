// Package watch reloads a transcript file into a playback.Holder whenever
// the file changes on disk.
package watch

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tiroq/vidscribe/internal/diaglog"
	"github.com/tiroq/vidscribe/internal/playback"
	"github.com/tiroq/vidscribe/internal/transcript"
)

const (
	defaultPollInterval = 2 * time.Second
	defaultSettle       = 50 * time.Millisecond
)

// Config configures a Watcher.
type Config struct {
	PollInterval time.Duration // fallback stat interval; default 2s
	Settle       time.Duration // wait after an event before reading; default 50ms
	PollOnly     bool          // skip fsnotify
	Logger       *diaglog.Logger
	OutLog       *log.Logger
	ErrLog       *log.Logger
}

// Watcher keeps a Holder in sync with one transcript file. A file that
// fails to load leaves the previous index in place.
type Watcher struct {
	path   string
	holder *playback.Holder
	cfg    Config

	lastMod  time.Time
	lastSize int64
}

// New creates a Watcher for path.
func New(path string, holder *playback.Holder, cfg Config) *Watcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.Settle <= 0 {
		cfg.Settle = defaultSettle
	}
	if cfg.OutLog == nil {
		cfg.OutLog = log.New(io.Discard, "", 0)
	}
	if cfg.ErrLog == nil {
		cfg.ErrLog = log.New(io.Discard, "", 0)
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return &Watcher{path: path, holder: holder, cfg: cfg}
}

// Reload loads the file and swaps it in.
func (w *Watcher) Reload() error {
	if info, err := os.Stat(w.path); err == nil {
		w.lastMod, w.lastSize = info.ModTime(), info.Size()
	}
	t, err := transcript.Load(w.path)
	if err != nil {
		w.cfg.ErrLog.Printf("[WATCH] Reload of %s failed, keeping current index: %v", w.path, err)
		w.cfg.Logger.Log(diaglog.LogEntry{
			Component: diaglog.ComponentWatcher,
			Event:     diaglog.EventReloadFailed,
			Reason:    err.Error(),
			Payload:   map[string]interface{}{"path": w.path},
		})
		return err
	}
	ix := w.holder.Publish(t)
	w.cfg.OutLog.Printf("[WATCH] Loaded %s (%d segments, %d words)", w.path, ix.Len(playback.KindSegment), ix.Len(playback.KindWord))
	w.cfg.Logger.Log(diaglog.LogEntry{
		Component: diaglog.ComponentWatcher,
		Event:     diaglog.EventIndexSwapped,
		Payload: map[string]interface{}{
			"path":     w.path,
			"segments": ix.Len(playback.KindSegment),
			"words":    ix.Len(playback.KindWord),
		},
	})
	return nil
}

// Run loads the file once, then reloads on every change until ctx is done.
// It uses fsnotify on the parent directory, so atomic replacements are seen,
// and keeps a stat poll running alongside in case events are missed.
func (w *Watcher) Run(ctx context.Context) error {
	if _, err := os.Stat(w.path); err == nil {
		_ = w.Reload()
	}

	if w.cfg.PollOnly {
		return w.poll(ctx)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		w.cfg.ErrLog.Printf("[WATCH] fsnotify not available, falling back to polling: %v", err)
		return w.poll(ctx)
	}
	defer fw.Close()

	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		w.cfg.ErrLog.Printf("[WATCH] Failed to watch %s, falling back to polling: %v", filepath.Dir(w.path), err)
		return w.poll(ctx)
	}
	w.cfg.OutLog.Printf("[WATCH] Watching %s (fsnotify)", w.path)

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				w.cfg.OutLog.Println("[WATCH] fsnotify closed, switching to polling")
				return w.poll(ctx)
			}
			if filepath.Clean(ev.Name) != w.path || !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if !w.settle(ctx) {
				return nil
			}
			_ = w.Reload()

		case <-ticker.C:
			w.reloadIfChanged()

		case err, ok := <-fw.Errors:
			if !ok {
				w.cfg.OutLog.Println("[WATCH] fsnotify error channel closed, switching to polling")
				return w.poll(ctx)
			}
			w.cfg.ErrLog.Printf("[WATCH] fsnotify error: %v", err)
		}
	}
}

func (w *Watcher) poll(ctx context.Context) error {
	w.cfg.OutLog.Printf("[WATCH] Watching %s (polling every %s)", w.path, w.cfg.PollInterval)
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.reloadIfChanged()
		}
	}
}

func (w *Watcher) reloadIfChanged() {
	info, err := os.Stat(w.path)
	if err != nil {
		return
	}
	if info.ModTime().Equal(w.lastMod) && info.Size() == w.lastSize {
		return
	}
	_ = w.Reload()
}

// settle waits for a writer to finish. It reports false if ctx ended first.
func (w *Watcher) settle(ctx context.Context) bool {
	timer := time.NewTimer(w.cfg.Settle)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
