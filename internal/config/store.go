package config

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Source reads the raw configuration key-value pairs.
type Source interface {
	Load(ctx context.Context) (map[string]string, error)
}

// Store holds the current snapshot. Readers always see a complete snapshot;
// Reload swaps it wholesale.
type Store struct {
	source        Source
	defaultWebapp string

	mu       sync.Mutex // serializes reloads
	current  atomic.Pointer[Snapshot]
	reloads  atomic.Int64
	onReload []func(*Snapshot)
}

// NewStore creates an empty store; call Reload before Snapshot.
func NewStore(source Source, defaultWebapp string) *Store {
	return &Store{source: source, defaultWebapp: defaultWebapp}
}

// OnReload registers fn to be called with every newly loaded snapshot.
// Not safe to call concurrently with Reload.
func (s *Store) OnReload(fn func(*Snapshot)) {
	s.onReload = append(s.onReload, fn)
}

// Reload reads the source again. Without force it only loads when no
// snapshot is present yet. On failure the previous snapshot is kept.
func (s *Store) Reload(ctx context.Context, force bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !force && s.current.Load() != nil {
		return nil
	}
	values, err := s.source.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	snapshot := NewSnapshot(values, s.defaultWebapp)
	s.current.Store(snapshot)
	s.reloads.Add(1)
	logrus.WithField("component", "config").WithField("config", snapshot.String()).Debug("Configuration loaded")
	for _, fn := range s.onReload {
		fn(snapshot)
	}
	return nil
}

// Snapshot returns the current snapshot, nil before the first Reload.
func (s *Store) Snapshot() *Snapshot {
	return s.current.Load()
}

// Reloads counts successful reloads.
func (s *Store) Reloads() int64 {
	return s.reloads.Load()
}
