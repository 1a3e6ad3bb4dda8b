package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/cybertec-postgresql/delta_notifier/internal/etcd"
)

// Watcher force-reloads a Store whenever its properties file changes, so the
// schedule can be edited without restarting the process.
type Watcher struct {
	store    *Store
	path     string
	debounce time.Duration
	watcher  *fsnotify.Watcher
}

// NewWatcher watches the directory of path; editors often replace files
// instead of writing them in place.
func NewWatcher(store *Store, path string, debounce time.Duration) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}
	return &Watcher{store: store, path: abs, debounce: debounce, watcher: w}, nil
}

// Run processes file events until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()
	logger := logrus.WithFields(logrus.Fields{"component": "config", "path": w.path})
	logger.Info("Watching configuration file for changes")

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			pending = time.After(w.debounce)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			logger.WithError(err).Warn("File watcher error")
		case <-pending:
			pending = nil
			if err := w.store.Reload(ctx, true); err != nil {
				logger.WithError(err).Error("Failed to reload changed configuration")
				continue
			}
			logger.Info("Configuration reloaded after file change")
		}
	}
}

// WatchEtcd force-reloads store on every change under prefix until ctx is done.
func WatchEtcd(ctx context.Context, store *Store, client *etcd.Client, prefix string) error {
	logger := logrus.WithFields(logrus.Fields{"component": "config", "prefix": prefix})
	watchChan := client.WatchPrefix(ctx, prefix)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case resp, ok := <-watchChan:
			if !ok {
				return nil
			}
			if err := resp.Err(); err != nil {
				logger.WithError(err).Warn("etcd watch error")
				continue
			}
			if len(resp.Events) == 0 {
				continue
			}
			if err := store.Reload(ctx, true); err != nil {
				logger.WithError(err).Error("Failed to reload changed configuration")
				continue
			}
			logger.WithField("events", len(resp.Events)).Info("Configuration reloaded after etcd change")
		}
	}
}
