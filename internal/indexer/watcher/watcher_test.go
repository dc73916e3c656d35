package watcher

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

type recorder struct {
	mu    sync.Mutex
	paths []string
}

func (r *recorder) index(_ context.Context, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, filepath.Base(path))
	return nil
}

func (r *recorder) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

func TestWatcherDebouncesWrites(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	w := New(dir, rec.index, WithDebounce(50*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	time.Sleep(100 * time.Millisecond)

	path := filepath.Join(dir, "PMC1.json")
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(path, []byte(`{"paper_id":"PMC1"}`), 0o644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	assert.Eventually(t, func() bool { return len(rec.seen()) >= 1 }, 2*time.Second, 20*time.Millisecond)
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, []string{"PMC1.json"}, rec.seen())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestFiredTimerKeepsNewerPendingEntry(t *testing.T) {
	rec := &recorder{}
	w := New(t.TempDir(), rec.index, WithDebounce(10*time.Millisecond))
	ctx := context.Background()
	path := filepath.Join(w.dir, "PMC1.json")

	w.mu.Lock()
	w.scheduleLocked(ctx, path)
	// Let the first timer fire; its callback now waits for the lock.
	time.Sleep(60 * time.Millisecond)
	w.debounce = time.Hour
	w.scheduleLocked(ctx, path)
	w.mu.Unlock()

	assert.Eventually(t, func() bool { return len(rec.seen()) == 1 }, 2*time.Second, 10*time.Millisecond)
	w.mu.Lock()
	_, pending := w.pending[path]
	w.mu.Unlock()
	assert.True(t, pending, "newer timer lost its pending entry")

	w.cancel(path)
	w.mu.Lock()
	assert.Empty(t, w.pending)
	w.mu.Unlock()

	stopped := make(chan struct{})
	go func() {
		w.stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("stop waited on a cancelled timer")
	}
}
