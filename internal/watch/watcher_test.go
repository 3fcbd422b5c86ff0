package watch

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBurstOfEventsIsDebounced(t *testing.T) {
	clock := clockwork.NewFakeClock()
	var calls atomic.Int32
	w, err := New(func() { calls.Add(1) }, WithClock(clock), WithDebounce(time.Second))
	require.NoError(t, err)
	t.Cleanup(w.Stop)

	dir := t.TempDir()
	for _, name := range []string{"a.png", "b.jpg", "c.webp"} {
		w.handle(fsnotify.Event{Name: filepath.Join(dir, name), Op: fsnotify.Create})
		clock.Advance(500 * time.Millisecond)
	}
	assert.Zero(t, calls.Load())

	clock.Advance(time.Second)
	assert.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	w.handle(fsnotify.Event{Name: filepath.Join(dir, "a.png"), Op: fsnotify.Remove})
	clock.Advance(time.Second)
	assert.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, 5*time.Millisecond)
}

func TestIrrelevantEventsAreIgnored(t *testing.T) {
	clock := clockwork.NewFakeClock()
	var calls atomic.Int32
	w, err := New(func() { calls.Add(1) }, WithClock(clock))
	require.NoError(t, err)
	t.Cleanup(w.Stop)

	dir := t.TempDir()
	w.handle(fsnotify.Event{Name: filepath.Join(dir, "notes.txt"), Op: fsnotify.Create})
	w.handle(fsnotify.Event{Name: filepath.Join(dir, "a.png"), Op: fsnotify.Write})
	w.handle(fsnotify.Event{Name: filepath.Join(dir, "a.png"), Op: fsnotify.Chmod})

	clock.Advance(time.Minute)
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, calls.Load())
}

func TestSyncReconcilesWatchedFolders(t *testing.T) {
	w, err := New(nil)
	require.NoError(t, err)
	t.Cleanup(w.Stop)

	a, b := t.TempDir(), t.TempDir()
	missing := filepath.Join(a, "missing")

	w.Sync([]string{a, b, missing})
	assert.ElementsMatch(t, []string{a, b}, w.Directories())

	w.Sync([]string{b})
	assert.Equal(t, []string{b}, w.Directories())

	require.NoError(t, os.Mkdir(missing, 0755))
	w.Sync([]string{b, missing})
	assert.ElementsMatch(t, []string{b, missing}, w.Directories())
}

func TestNewImageTriggersRescan(t *testing.T) {
	var calls atomic.Int32
	w, err := New(func() { calls.Add(1) }, WithDebounce(20*time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(w.Stop)

	dir := t.TempDir()
	w.Sync([]string{dir})
	require.NoError(t, w.Start())
	assert.Error(t, w.Start())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "new.png"), nil, 0644))
	assert.Eventually(t, func() bool { return calls.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestRecreatedFolderIsWatchedAgain(t *testing.T) {
	var calls atomic.Int32
	w, err := New(func() { calls.Add(1) }, WithDebounce(20*time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(w.Stop)

	refs := filepath.Join(t.TempDir(), "refs")
	require.NoError(t, os.Mkdir(refs, 0755))
	w.Sync([]string{refs})
	require.NoError(t, w.Start())

	require.NoError(t, os.RemoveAll(refs))
	assert.Eventually(t, func() bool { return calls.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return len(w.Directories()) == 0 }, 2*time.Second, 10*time.Millisecond)

	// the rescan after the removal hands the same folder set back
	w.Sync([]string{refs})
	assert.Empty(t, w.Directories())

	before := calls.Load()
	require.NoError(t, os.Mkdir(refs, 0755))
	assert.Eventually(t, func() bool { return calls.Load() > before }, 2*time.Second, 10*time.Millisecond)

	w.Sync([]string{refs})
	assert.Equal(t, []string{refs}, w.Directories())

	before = calls.Load()
	require.NoError(t, os.WriteFile(filepath.Join(refs, "new.png"), nil, 0644))
	assert.Eventually(t, func() bool { return calls.Load() > before }, 2*time.Second, 10*time.Millisecond)
}

func TestParentEventsOnlyCountForMissingFolders(t *testing.T) {
	clock := clockwork.NewFakeClock()
	var calls atomic.Int32
	w, err := New(func() { calls.Add(1) }, WithClock(clock), WithDebounce(time.Second))
	require.NoError(t, err)
	t.Cleanup(w.Stop)

	root := t.TempDir()
	refs := filepath.Join(root, "refs")
	w.Sync([]string{refs})

	w.handle(fsnotify.Event{Name: filepath.Join(root, "unrelated.png"), Op: fsnotify.Create})
	clock.Advance(time.Minute)
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, calls.Load())

	w.handle(fsnotify.Event{Name: refs, Op: fsnotify.Create})
	clock.Advance(time.Second)
	assert.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
}
