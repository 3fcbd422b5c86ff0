package session

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bryanchriswhite/refviewer/internal/collection"
	"github.com/bryanchriswhite/refviewer/internal/config"
	"github.com/bryanchriswhite/refviewer/internal/timer"
	"github.com/bryanchriswhite/refviewer/internal/window"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu      sync.Mutex
	doc     config.SessionConfig
	loadErr error
	saveErr error
	saves   []config.SessionConfig
}

func newMemStore() *memStore {
	return &memStore{doc: config.Defaults(), loadErr: config.ErrConfigMissing}
}

func (s *memStore) Load() (config.SessionConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Clone(), s.loadErr
}

func (s *memStore) Save(cfg config.SessionConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves = append(s.saves, cfg)
	if s.saveErr != nil {
		return s.saveErr
	}
	s.doc = cfg
	s.loadErr = nil
	return nil
}

func (s *memStore) last() config.SessionConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves[len(s.saves)-1]
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saves)
}

type fakeSurface struct {
	mu       sync.Mutex
	missing  map[string]bool
	shown    []string
	sizes    []image.Point
	onTop    []bool
	empty    int
	overlays int
	state    timer.State
}

func newFakeSurface() *fakeSurface {
	return &fakeSurface{missing: make(map[string]bool)}
}

func (f *fakeSurface) ShowImage(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.missing[filepath.Base(path)] {
		return ErrImageNotFound
	}
	f.shown = append(f.shown, filepath.Base(path))
	return nil
}

func (f *fakeSurface) ResizeToFit(size image.Point) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sizes = append(f.sizes, size)
}

func (f *fakeSurface) SetAlwaysOnTop(on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onTop = append(f.onTop, on)
	return nil
}

func (f *fakeSurface) RenderOverlay(_ time.Duration, state timer.State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.overlays++
	f.state = state
}

func (f *fakeSurface) ShowEmpty() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.empty++
}

func (f *fakeSurface) overlayCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.overlays
}

type fakeWatcher struct {
	syncs [][]string
}

func (w *fakeWatcher) Sync(folders []string) {
	w.syncs = append(w.syncs, folders)
}

type harness struct {
	ctrl    *Controller
	store   *memStore
	surface *fakeSurface
	engine  *timer.Engine
	clock   *clockwork.FakeClock
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	clock := clockwork.NewFakeClock()
	h := &harness{
		store:   newMemStore(),
		surface: newFakeSurface(),
		engine:  timer.NewEngine(clock),
		clock:   clock,
	}
	opts = append([]Option{WithClock(clock)}, opts...)
	h.ctrl = New(h.store, collection.NewManager(), h.engine, h.surface, opts...)
	return h
}

func imageDir(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0644))
	}
	return dir
}

func TestAddFolderThenNextWraps(t *testing.T) {
	h := newHarness(t)
	h.ctrl.Hydrate()
	dir := imageDir(t, "a.png", "b.png")

	require.NoError(t, h.ctrl.Handle(AddFolder{Path: dir}))
	st := h.ctrl.Status()
	assert.Equal(t, 2, st.ImageCount)
	assert.Equal(t, 0, st.Index)
	assert.Equal(t, filepath.Join(dir, "a.png"), st.Current)
	assert.Equal(t, []string{dir}, h.store.last().Folders)

	require.NoError(t, h.ctrl.Handle(ToggleTimer{}))
	h.clock.Advance(7 * time.Second)
	require.Equal(t, 7*time.Second, h.engine.Elapsed())

	require.NoError(t, h.ctrl.Handle(NextImage{}))
	st = h.ctrl.Status()
	assert.Equal(t, 1, st.Index)
	assert.Zero(t, st.Elapsed)
	assert.Equal(t, timer.Running.String(), st.Timer, "navigation keeps the run state")
	assert.Equal(t, 1, h.store.last().CurrentIndex)

	require.NoError(t, h.ctrl.Handle(NextImage{}))
	assert.Equal(t, 0, h.ctrl.Status().Index)
	assert.Equal(t, 0, h.store.last().CurrentIndex)
	assert.Equal(t, []string{"a.png", "b.png", "a.png"}, h.surface.shown)
}

func TestPreviousResetsElapsed(t *testing.T) {
	h := newHarness(t)
	h.ctrl.Hydrate()
	require.NoError(t, h.ctrl.Handle(AddFolder{Path: imageDir(t, "a.png", "b.png", "c.png")}))
	require.NoError(t, h.ctrl.Handle(ToggleTimer{}))
	h.clock.Advance(time.Minute)
	require.NoError(t, h.ctrl.Handle(ToggleTimer{}))
	require.Equal(t, time.Minute, h.engine.Elapsed())

	require.NoError(t, h.ctrl.Handle(PreviousImage{}))
	assert.Equal(t, 2, h.ctrl.Status().Index)
	assert.Zero(t, h.engine.Elapsed())
	assert.Equal(t, timer.PausedByUser, h.engine.State())
}

func TestEverySuccessfulCommandSaves(t *testing.T) {
	h := newHarness(t)
	h.ctrl.Hydrate()
	dir := imageDir(t, "a.png", "b.png")

	cmds := []Command{
		AddFolder{Path: dir},
		NextImage{},
		PreviousImage{},
		ToggleTimer{},
		ToggleAlwaysOnTop{},
		SetTrackedProcess{Process: "krita"},
		ClearTrackedProcess{},
		RemoveFolder{Path: dir},
	}
	for i, cmd := range cmds {
		require.NoError(t, h.ctrl.Handle(cmd), cmd.Name())
		assert.GreaterOrEqual(t, h.store.count(), i+1, cmd.Name())
	}
}

func TestInvalidFolderChangesNothing(t *testing.T) {
	h := newHarness(t)
	h.ctrl.Hydrate()

	err := h.ctrl.Handle(AddFolder{Path: filepath.Join(t.TempDir(), "missing")})
	var invalid *collection.InvalidPathError
	require.ErrorAs(t, err, &invalid)
	assert.Zero(t, h.store.count())
	assert.Empty(t, h.ctrl.Status().Folders)
}

func TestSaveFailureKeepsInMemoryChange(t *testing.T) {
	h := newHarness(t)
	h.ctrl.Hydrate()
	h.store.saveErr = errors.New("disk full")

	err := h.ctrl.Handle(ToggleAlwaysOnTop{})
	require.Error(t, err)
	assert.ErrorIs(t, err, h.store.saveErr)
	assert.True(t, h.ctrl.Status().AlwaysOnTop)
	assert.Equal(t, []bool{false, true}, h.surface.onTop)
}

func TestSavedSnapshotDoesNotAliasLiveState(t *testing.T) {
	h := newHarness(t)
	h.ctrl.Hydrate()
	first := imageDir(t, "a.png")
	second := imageDir(t, "b.png")

	require.NoError(t, h.ctrl.Handle(AddFolder{Path: first}))
	require.NoError(t, h.ctrl.Handle(SetTrackedProcess{Process: "krita"}))
	saved := h.store.last()

	require.NoError(t, h.ctrl.Handle(AddFolder{Path: second}))
	require.NoError(t, h.ctrl.Handle(SetTrackedProcess{Process: "gimp"}))

	assert.Equal(t, []string{first}, saved.Folders)
	assert.Equal(t, "krita", saved.Tracked())
}

func TestVanishedImageIsSkipped(t *testing.T) {
	h := newHarness(t)
	h.ctrl.Hydrate()
	h.surface.missing["a.png"] = true

	require.NoError(t, h.ctrl.Handle(AddFolder{Path: imageDir(t, "a.png", "b.png")}))
	assert.Equal(t, 1, h.ctrl.Status().Index)
	assert.Equal(t, []string{"b.png"}, h.surface.shown)
	assert.Equal(t, 1, h.store.last().CurrentIndex)
}

func TestAllImagesVanishedShowsEmpty(t *testing.T) {
	h := newHarness(t)
	h.ctrl.Hydrate()
	require.Equal(t, 1, h.surface.empty)

	h.surface.missing["a.png"] = true
	h.surface.missing["b.png"] = true

	require.NoError(t, h.ctrl.Handle(AddFolder{Path: imageDir(t, "a.png", "b.png")}))
	require.NoError(t, h.ctrl.Handle(ToggleTimer{}))
	assert.Empty(t, h.surface.shown)
	assert.Equal(t, 1, h.surface.empty, "empty state is drawn once")
	assert.Equal(t, timer.Idle, h.engine.State())
}

func TestRemovingLastFolderStopsTimer(t *testing.T) {
	h := newHarness(t)
	h.ctrl.Hydrate()
	dir := imageDir(t, "a.png", "b.png")
	require.NoError(t, h.ctrl.Handle(AddFolder{Path: dir}))
	require.NoError(t, h.ctrl.Handle(NextImage{}))
	require.NoError(t, h.ctrl.Handle(ToggleTimer{}))

	require.NoError(t, h.ctrl.Handle(RemoveFolder{Path: dir}))
	st := h.ctrl.Status()
	assert.False(t, st.HasImage())
	assert.Equal(t, collection.NoImage, st.Index)
	assert.Equal(t, timer.Idle.String(), st.Timer)
	assert.Equal(t, 0, h.store.last().CurrentIndex)
	assert.Empty(t, h.store.last().Folders)
	assert.Equal(t, 2, h.surface.empty)
}

func TestToggleWithoutImagesIsNoOp(t *testing.T) {
	h := newHarness(t)
	h.ctrl.Hydrate()
	require.NoError(t, h.ctrl.Handle(ToggleTimer{}))
	assert.Equal(t, timer.Idle, h.engine.State())
}

func TestTrackingPausesAndResumesWithFocus(t *testing.T) {
	h := newHarness(t)
	h.ctrl.Hydrate()
	require.NoError(t, h.ctrl.Handle(AddFolder{Path: imageDir(t, "a.png")}))
	require.NoError(t, h.ctrl.Handle(SetTrackedProcess{Process: "photoshop.exe"}))
	assert.Equal(t, "photoshop.exe", h.store.last().Tracked())

	h.ctrl.ApplyReading(window.Reading{Process: "photoshop"})
	require.NoError(t, h.ctrl.Handle(ToggleTimer{}))
	assert.Equal(t, timer.Running, h.engine.State())

	h.clock.Advance(10 * time.Second)
	h.ctrl.ApplyReading(window.Reading{Process: "explorer.exe"})
	assert.Equal(t, timer.PausedByFocus.String(), h.ctrl.Status().Timer)
	assert.Equal(t, "explorer.exe", h.ctrl.Status().Foreground)

	h.clock.Advance(time.Minute)
	h.ctrl.ApplyReading(window.Reading{Err: window.ErrNoForeground})
	assert.Equal(t, timer.PausedByFocus, h.engine.State())

	h.ctrl.ApplyReading(window.Reading{Process: "photoshop.exe"})
	h.clock.Advance(5 * time.Second)
	assert.Equal(t, 15*time.Second, h.engine.Elapsed())
}

func TestSetTrackedAppliesLatestReading(t *testing.T) {
	h := newHarness(t)
	h.ctrl.Hydrate()
	require.NoError(t, h.ctrl.Handle(AddFolder{Path: imageDir(t, "a.png")}))
	h.ctrl.ApplyReading(window.Reading{Process: "firefox"})
	require.NoError(t, h.ctrl.Handle(ToggleTimer{}))
	require.Equal(t, timer.Running, h.engine.State())

	require.NoError(t, h.ctrl.Handle(SetTrackedProcess{Process: "krita"}))
	assert.Equal(t, timer.PausedByFocus, h.engine.State())

	require.NoError(t, h.ctrl.Handle(SetTrackedProcess{Process: ""}))
	assert.Equal(t, timer.Running, h.engine.State())
	assert.Empty(t, h.store.last().Tracked())
}

func TestInvalidTrackedPatternIsRejected(t *testing.T) {
	h := newHarness(t)
	h.ctrl.Hydrate()
	require.NoError(t, h.ctrl.Handle(SetTrackedProcess{Process: "krita"}))

	err := h.ctrl.Handle(SetTrackedProcess{Process: "[oops"})
	assert.ErrorIs(t, err, timer.ErrInvalidPattern)
	assert.Equal(t, "krita", h.store.last().Tracked())
}

func TestHydrateRestoresSession(t *testing.T) {
	dir := imageDir(t, "a.png", "b.png", "c.png")
	h := newHarness(t)
	h.store.loadErr = nil
	h.store.doc.Folders = []string{dir}
	h.store.doc.CurrentIndex = 2
	h.store.doc.AlwaysOnTop = true
	h.store.doc.SetTracked("krita")

	h.ctrl.Hydrate()

	st := h.ctrl.Status()
	assert.Equal(t, 2, st.Index)
	assert.Equal(t, "krita", st.Tracked)
	assert.True(t, st.AlwaysOnTop)
	assert.Equal(t, timer.Idle.String(), st.Timer, "elapsed time is not restored")
	assert.Equal(t, []bool{true}, h.surface.onTop)
	assert.Equal(t, []string{"c.png"}, h.surface.shown)
	assert.Zero(t, h.store.count(), "hydrating does not write")
}

func TestHydrateSavesIndexPastVanishedImage(t *testing.T) {
	h := newHarness(t)
	h.store.loadErr = nil
	h.store.doc.Folders = []string{imageDir(t, "a.png", "b.png", "c.png")}
	h.store.doc.CurrentIndex = 1
	h.surface.missing["b.png"] = true

	h.ctrl.Hydrate()

	assert.Equal(t, 2, h.ctrl.Status().Index)
	require.Equal(t, 1, h.store.count())
	assert.Equal(t, 2, h.store.last().CurrentIndex)
}

func TestHydrateDropsUncompilableTrackedName(t *testing.T) {
	h := newHarness(t)
	h.store.loadErr = nil
	h.store.doc.Folders = []string{imageDir(t, "a.png")}
	h.store.doc.SetTracked("[oops")

	h.ctrl.Hydrate()
	assert.Empty(t, h.ctrl.Status().Tracked)

	require.NoError(t, h.ctrl.Handle(ToggleAlwaysOnTop{}))
	assert.Empty(t, h.store.last().Tracked())
	assert.Nil(t, h.store.last().TrackedProcessName)
}

func TestHydrateClampsStaleIndex(t *testing.T) {
	h := newHarness(t)
	h.store.loadErr = nil
	h.store.doc.Folders = []string{imageDir(t, "a.png")}
	h.store.doc.CurrentIndex = 9

	h.ctrl.Hydrate()
	assert.Equal(t, 0, h.ctrl.Status().Index)
}

func TestHydrateFromCorruptFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))
	store, err := config.NewStore(path)
	require.NoError(t, err)

	ctrl := New(store, collection.NewManager(), timer.NewEngine(clockwork.NewFakeClock()), nil)
	ctrl.Hydrate()
	assert.Empty(t, ctrl.Status().Folders)
	assert.FileExists(t, path, "corrupt file is left alone until the next save")

	require.NoError(t, ctrl.Handle(ToggleAlwaysOnTop{}))
	assert.FileExists(t, path+".corrupt")

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.True(t, loaded.AlwaysOnTop)
}

func TestConcreteScenarioPersistsThroughStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	store, err := config.NewStore(path)
	require.NoError(t, err)
	dir := imageDir(t, "a.png", "b.png")

	ctrl := New(store, collection.NewManager(), timer.NewEngine(clockwork.NewFakeClock()), NopSurface{})
	ctrl.Hydrate()
	require.NoError(t, ctrl.Handle(AddFolder{Path: dir}))
	require.NoError(t, ctrl.Handle(NextImage{}))

	restarted := New(store, collection.NewManager(), timer.NewEngine(clockwork.NewFakeClock()), NopSurface{})
	restarted.Hydrate()
	assert.Equal(t, 1, restarted.Status().Index)
	assert.Equal(t, []string{filepath.Join(dir, "a.png"), filepath.Join(dir, "b.png")}, restarted.Images())
}

func TestResizeToFitUsesImageSize(t *testing.T) {
	dir := t.TempDir()
	img := image.NewRGBA(image.Rect(0, 0, 40, 30))
	img.Set(0, 0, color.White)
	f, err := os.Create(filepath.Join(dir, "a.png"))
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())

	h := newHarness(t)
	h.ctrl.Hydrate()
	require.NoError(t, h.ctrl.Handle(AddFolder{Path: dir}))
	assert.Equal(t, []image.Point{{X: 40, Y: 30}}, h.surface.sizes)
}

func TestWatcherFollowsFolderSet(t *testing.T) {
	w := &fakeWatcher{}
	h := newHarness(t, WithWatcher(w))
	h.ctrl.Hydrate()
	dir := imageDir(t, "a.png")

	require.NoError(t, h.ctrl.Handle(AddFolder{Path: dir}))
	require.NoError(t, h.ctrl.Handle(AddFolder{Path: dir}))
	require.NoError(t, h.ctrl.Handle(RemoveFolder{Path: dir}))

	assert.Equal(t, [][]string{{}, {dir}, {}}, w.syncs)
}

func TestRescanPicksUpNewImages(t *testing.T) {
	h := newHarness(t)
	h.ctrl.Hydrate()
	dir := imageDir(t, "b.png")
	require.NoError(t, h.ctrl.Handle(AddFolder{Path: dir}))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "c.png"), nil, 0644))

	require.NoError(t, h.ctrl.Handle(Rescan{}))
	assert.Equal(t, 2, h.ctrl.Status().ImageCount)
}

func TestRescanResyncsWatcher(t *testing.T) {
	w := &fakeWatcher{}
	h := newHarness(t, WithWatcher(w))
	h.ctrl.Hydrate()
	dir := imageDir(t, "a.png")
	require.NoError(t, h.ctrl.Handle(AddFolder{Path: dir}))

	require.NoError(t, h.ctrl.Handle(Rescan{}))
	assert.Equal(t, [][]string{{}, {dir}, {dir}}, w.syncs)
}

func TestSubscribeReceivesLatestStatus(t *testing.T) {
	h := newHarness(t)
	h.ctrl.Hydrate()

	ch, cancel := h.ctrl.Subscribe()
	initial := <-ch
	assert.Zero(t, initial.ImageCount)

	require.NoError(t, h.ctrl.Handle(AddFolder{Path: imageDir(t, "a.png", "b.png")}))
	require.NoError(t, h.ctrl.Handle(NextImage{}))
	latest := <-ch
	assert.Equal(t, 2, latest.ImageCount)
	assert.Equal(t, 1, latest.Index)

	cancel()
	_, ok := <-ch
	assert.False(t, ok)
	cancel()
}

func TestRunSerializesCommandsAndReadings(t *testing.T) {
	h := newHarness(t)
	h.ctrl.Hydrate()
	dir := imageDir(t, "a.png", "b.png")

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- h.ctrl.Run(ctx) }()

	require.NoError(t, h.ctrl.Submit(ctx, AddFolder{Path: dir}))
	require.NoError(t, h.ctrl.Submit(ctx, SetTrackedProcess{Process: "krita"}))
	require.NoError(t, h.ctrl.Submit(ctx, ToggleTimer{}))
	assert.Equal(t, timer.PausedByFocus.String(), h.ctrl.Status().Timer)

	h.ctrl.Deliver(window.Reading{Process: "krita"})
	assert.Eventually(t, func() bool {
		return h.ctrl.Status().Timer == timer.Running.String()
	}, time.Second, 5*time.Millisecond)

	var invalid *collection.InvalidPathError
	assert.ErrorAs(t, h.ctrl.Submit(ctx, AddFolder{Path: filepath.Join(dir, "nope")}), &invalid)

	cancel()
	require.NoError(t, <-errc)
	assert.ErrorIs(t, h.ctrl.Submit(context.Background(), NextImage{}), ErrStopped)
}

func TestRunRedrawsOverlayWhileTiming(t *testing.T) {
	h := newHarness(t, WithOverlayInterval(time.Second))
	h.ctrl.Hydrate()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.ctrl.Run(ctx)

	require.NoError(t, h.clock.BlockUntilContext(ctx, 1))
	require.NoError(t, h.ctrl.Submit(ctx, AddFolder{Path: imageDir(t, "a.png")}))
	require.NoError(t, h.ctrl.Submit(ctx, ToggleTimer{}))
	before := h.surface.overlayCount()

	h.clock.Advance(time.Second)
	assert.Eventually(t, func() bool {
		return h.ctrl.Status().ElapsedText == "00:01"
	}, time.Second, 5*time.Millisecond)
	assert.Greater(t, h.surface.overlayCount(), before)
}

func TestRequestRescanIsMerged(t *testing.T) {
	h := newHarness(t)
	h.ctrl.Hydrate()
	dir := imageDir(t, "a.png")
	require.NoError(t, h.ctrl.Handle(AddFolder{Path: dir}))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.png"), nil, 0644))

	h.ctrl.RequestRescan()
	h.ctrl.RequestRescan()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.ctrl.Run(ctx)

	assert.Eventually(t, func() bool {
		return h.ctrl.Status().ImageCount == 2
	}, time.Second, 5*time.Millisecond)
}
