package loader

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherReportsSourceChanges(t *testing.T) {
	dir := t.TempDir()
	var mu sync.Mutex
	var seen []string

	w, err := NewWatcher([]string{dir}, ".mop", func(path string) {
		mu.Lock()
		seen = append(seen, path)
		mu.Unlock()
	})
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()
	assert.True(t, w.IsWatching())

	writeSource(t, dir, "ignored.txt", "x")
	target := writeSource(t, dir, "Main.mop", "x")

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, p := range seen {
			if p == target {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	for _, p := range seen {
		assert.Equal(t, ".mop", filepath.Ext(p))
	}
	mu.Unlock()

	w.Stop()
	w.Stop()
	assert.False(t, w.IsWatching())
}

func TestWatchInvalidatesLoaderCache(t *testing.T) {
	dir := t.TempDir()
	path := writeSource(t, dir, "app/Main.mop", "v1")

	cc := &countingCompiler{}
	l, err := New(nil, cc, Options{SourceDirs: []string{dir}, Watch: true})
	require.NoError(t, err)
	defer l.Close()
	ctx := context.Background()

	v1, err := l.LoadClass(ctx, "app.Main")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("v2"), 0o644))

	abs, err := filepath.Abs(path)
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		return l.cache.lookupPath(abs) == nil
	}, 2*time.Second, 10*time.Millisecond)

	v2, err := l.LoadClass(ctx, "app.Main")
	require.NoError(t, err)
	assert.NotSame(t, v1, v2)
	assert.EqualValues(t, 2, cc.calls.Load())
}
