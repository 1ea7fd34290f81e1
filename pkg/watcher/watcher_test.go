package watcher

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock lets tests drive the debounce clock without sleeping.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func (c *fakeClock) advanceTo(seconds int) {
	c.set(time.Unix(int64(seconds), 0))
}

func newTestWatcher(t *testing.T, debounce time.Duration) (*Watcher, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Unix(0, 0)}
	w := New(t.TempDir(), debounce)
	w.now = clock.now
	return w, clock
}

func TestCheckPending_Debounce(t *testing.T) {
	w, clock := newTestWatcher(t, 2*time.Second)

	path := filepath.Join(w.dir, "incoming.cbz")
	require.NoError(t, os.WriteFile(path, []byte("zip bytes"), 0644))

	// Events at t=0 and t=1.
	clock.advanceTo(0)
	w.markPending(path)
	clock.advanceTo(1)
	w.markPending(path)

	var emitted []string
	consume := func(p string) { emitted = append(emitted, p) }

	// t=2 is only 1s after the last event: not yet stable.
	clock.advanceTo(2)
	w.CheckPending(consume)
	assert.Empty(t, emitted)

	// t=3 is 2s after the last event: emitted.
	clock.advanceTo(3)
	w.CheckPending(consume)
	assert.Equal(t, []string{path}, emitted)

	// Emitted exactly once: a later check doesn't re-emit.
	w.CheckPending(consume)
	assert.Len(t, emitted, 1)
}

func TestSetDebounce_AppliesToNextCheck(t *testing.T) {
	w, clock := newTestWatcher(t, time.Hour)

	path := filepath.Join(w.dir, "incoming.cbz")
	require.NoError(t, os.WriteFile(path, []byte("zip bytes"), 0644))

	clock.advanceTo(0)
	w.markPending(path)

	var emitted []string
	consume := func(p string) { emitted = append(emitted, p) }

	clock.advanceTo(10)
	w.CheckPending(consume)
	assert.Empty(t, emitted)

	// Shortening the interval takes effect without re-marking the file.
	w.SetDebounce(2 * time.Second)
	w.CheckPending(consume)
	assert.Equal(t, []string{path}, emitted)
}

func TestCheckPending_VanishedFileDropped(t *testing.T) {
	w, clock := newTestWatcher(t, 2*time.Second)

	path := filepath.Join(w.dir, "ghost.cbz")
	clock.advanceTo(0)
	w.markPending(path)

	var emitted []string
	clock.advanceTo(5)
	w.CheckPending(func(p string) { emitted = append(emitted, p) })

	assert.Empty(t, emitted)
	w.mu.Lock()
	assert.Empty(t, w.pending)
	w.mu.Unlock()
}

func TestCheckPending_UnreadableStaysPending(t *testing.T) {
	w, clock := newTestWatcher(t, 2*time.Second)

	// A directory satisfies Stat but fails the open-and-read probe.
	path := filepath.Join(w.dir, "locked.cbz")
	require.NoError(t, os.Mkdir(path, 0755))

	clock.advanceTo(0)
	w.markPending(path)

	var emitted []string
	clock.advanceTo(5)
	w.CheckPending(func(p string) { emitted = append(emitted, p) })

	assert.Empty(t, emitted)
	w.mu.Lock()
	assert.Contains(t, w.pending, path)
	w.mu.Unlock()
}

func TestScanExisting(t *testing.T) {
	w, _ := newTestWatcher(t, 2*time.Second)

	require.NoError(t, os.WriteFile(filepath.Join(w.dir, "a.cbz"), []byte("a"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(w.dir, "B.CBZ"), []byte("b"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(w.dir, "skip.txt"), []byte("s"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(w.dir, "sub.cbz"), 0755))

	var emitted []string
	require.NoError(t, w.ScanExisting(func(p string) { emitted = append(emitted, filepath.Base(p)) }))

	assert.ElementsMatch(t, []string{"a.cbz", "B.CBZ"}, emitted)
}

func TestStartCapturesEvents(t *testing.T) {
	w, clock := newTestWatcher(t, 50*time.Millisecond)
	start := time.Now()
	clock.set(start)

	require.NoError(t, w.Start())
	defer w.Stop()

	path := filepath.Join(w.dir, "new.cbz")
	require.NoError(t, os.WriteFile(path, []byte("zip bytes"), 0644))

	// Wait for the event goroutine to register the file.
	require.Eventually(t, func() bool {
		w.mu.Lock()
		defer w.mu.Unlock()
		_, ok := w.pending[path]
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	var emitted []string
	clock.set(start.Add(time.Second))
	w.CheckPending(func(p string) { emitted = append(emitted, p) })
	assert.Equal(t, []string{path}, emitted)
}
