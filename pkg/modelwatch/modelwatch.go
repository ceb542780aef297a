// Package modelwatch watches checkpoint files on disk and reports when they
// no longer match the model loaded at startup.
package modelwatch

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/invisible-tech/hybrid-ids/internal/model"
)

var checkpointDrift = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "ids_checkpoint_drift",
		Help: "1 when checkpoint files on disk differ from the loaded model",
	},
)

func init() {
	prometheus.MustRegister(checkpointDrift)
}

// Config for checkpoint watching
type Config struct {
	// Files are the checkpoint files, in the order they were fingerprinted.
	Files []string
	// Fingerprint is the digest of Files at load time.
	Fingerprint string
}

// Watcher monitors checkpoint files for changes. The loaded model is never
// swapped; drift is reported so an operator can restart.
type Watcher struct {
	cfg     Config
	log     *logrus.Logger
	watcher *fsnotify.Watcher
	tracked map[string]bool

	mu      sync.RWMutex
	current string
	drifted bool
}

// New creates a Watcher over the parent directories of cfg.Files.
func New(cfg Config, log *logrus.Logger) (*Watcher, error) {
	if len(cfg.Files) == 0 {
		return nil, fmt.Errorf("modelwatch: no files to watch")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		cfg:     cfg,
		log:     log,
		watcher: watcher,
		tracked: make(map[string]bool, len(cfg.Files)),
		current: cfg.Fingerprint,
	}

	dirs := make(map[string]bool)
	for _, f := range cfg.Files {
		abs, err := filepath.Abs(f)
		if err != nil {
			watcher.Close()
			return nil, fmt.Errorf("modelwatch: resolve %s: %w", f, err)
		}
		w.tracked[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	// Watch directories so atomic replace-by-rename is seen.
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
			return nil, fmt.Errorf("modelwatch: watch %s: %w", dir, err)
		}
	}
	checkpointDrift.Set(0)
	return w, nil
}

// Start processes filesystem events until ctx is done.
func (w *Watcher) Start(ctx context.Context) {
	w.log.WithField("files", w.cfg.Files).Info("Watching checkpoint files")

	for {
		select {
		case <-ctx.Done():
			w.log.Info("Checkpoint watcher stopping")
			w.watcher.Close()
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleFsEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.WithError(err).Error("Watcher error")
		}
	}
}

// Drifted reports whether the files on disk differ from the loaded model.
func (w *Watcher) Drifted() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.drifted
}

func (w *Watcher) handleFsEvent(event fsnotify.Event) {
	abs, err := filepath.Abs(event.Name)
	if err != nil || !w.tracked[abs] {
		return
	}
	if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) &&
		!event.Op.Has(fsnotify.Remove) && !event.Op.Has(fsnotify.Rename) {
		return
	}
	w.check(event.Op.String(), abs)
}

// check re-fingerprints the checkpoint and updates the drift state.
func (w *Watcher) check(op, path string) {
	fp, err := model.Fingerprint(w.cfg.Files...)
	log := w.log.WithFields(logrus.Fields{"path": path, "op": op})

	w.mu.Lock()
	defer w.mu.Unlock()

	if err != nil {
		w.current = ""
		w.drifted = true
		checkpointDrift.Set(1)
		log.WithError(err).Warn("Checkpoint file unreadable, restart required to reload")
		return
	}
	if fp == w.current {
		return
	}
	w.current = fp
	w.drifted = fp != w.cfg.Fingerprint
	if w.drifted {
		checkpointDrift.Set(1)
		log.WithFields(logrus.Fields{
			"loaded_fingerprint": w.cfg.Fingerprint,
			"disk_fingerprint":   fp,
		}).Warn("Checkpoint changed on disk, restart required to load it")
		return
	}
	checkpointDrift.Set(0)
	log.Info("Checkpoint on disk matches loaded model again")
}
