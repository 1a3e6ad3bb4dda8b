package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingSource struct{ err error }

func (f failingSource) Load(context.Context) (map[string]string, error) { return nil, f.err }

func TestStoreReload(t *testing.T) {
	ctx := context.Background()
	src := MapSource{KeySyncEnabled: "1", KeyInterval: "45"}
	store := NewStore(src, "solr")
	assert.Nil(t, store.Snapshot())

	var seen []*Snapshot
	store.OnReload(func(s *Snapshot) { seen = append(seen, s) })

	require.NoError(t, store.Reload(ctx, false))
	first := store.Snapshot()
	require.NotNil(t, first)
	assert.Equal(t, 45, first.IntervalSeconds())

	// non-forced reload keeps the loaded snapshot
	src[KeyInterval] = "60"
	require.NoError(t, store.Reload(ctx, false))
	assert.Same(t, first, store.Snapshot())

	require.NoError(t, store.Reload(ctx, true))
	assert.NotSame(t, first, store.Snapshot())
	assert.Equal(t, 60, store.Snapshot().IntervalSeconds())
	assert.Equal(t, int64(2), store.Reloads())
	assert.Len(t, seen, 2)
}

func TestStoreReloadFailureKeepsSnapshot(t *testing.T) {
	ctx := context.Background()
	store := NewStore(MapSource{KeySyncEnabled: "1"}, "solr")
	require.NoError(t, store.Reload(ctx, true))
	before := store.Snapshot()

	store.source = failingSource{err: errors.New("boom")}
	err := store.Reload(ctx, true)
	assert.ErrorContains(t, err, "boom")
	assert.Same(t, before, store.Snapshot())
}

func TestPropertiesFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dataimport.properties")
	content := "#Sun Mar 20 22:14:56 CET 2016\n" +
		"syncEnabled=1\n" +
		"syncCores=core1,core2\n" +
		"server=localhost\n" +
		"port=8983\n" +
		"webapp=solr\n" +
		"params=/dataimport?command=delta-import&clean=false&commit=true\n" +
		"interval=1\n" +
		"last_index_time=2016-03-20 22\\:14\\:56\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	values, err := PropertiesFile{Path: path}.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1", values[KeySyncEnabled])
	assert.Equal(t, "core1,core2", values[KeySyncCores])
	assert.Equal(t, "/dataimport?command=delta-import&clean=false&commit=true", values[KeyParams])
	assert.Equal(t, "2016-03-20 22:14:56", values["last_index_time"])

	_, err = PropertiesFile{Path: filepath.Join(t.TempDir(), "missing")}.Load(context.Background())
	assert.Error(t, err)
}

func TestWatcherReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dataimport.properties")
	require.NoError(t, os.WriteFile(path, []byte("syncEnabled=1\ninterval=45\n"), 0o644))

	store := NewStore(PropertiesFile{Path: path}, "solr")
	require.NoError(t, store.Reload(context.Background(), true))

	w, err := NewWatcher(store, path, 10*time.Millisecond)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.NoError(t, os.WriteFile(path, []byte("syncEnabled=1\ninterval=60\n"), 0o644))
	assert.Eventually(t, func() bool {
		return store.Snapshot().IntervalSeconds() == 60
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
