package sweeper

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// makeDir creates root/name with a file inside and backdates its mtime by age.
func makeDir(t *testing.T, root, name string, age time.Duration, files ...string) string {
	t.Helper()

	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for _, f := range append([]string{"payload"}, files...) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, f), []byte("x"), 0o644))
	}
	mtime := fixedNow.Add(-age)
	require.NoError(t, os.Chtimes(dir, mtime, mtime))
	return dir
}

func newTestSweeper(t *testing.T, roots ...string) *Sweeper {
	t.Helper()

	s, err := New(Config{
		Roots:  roots,
		Marker: ".inflight",
		Now:    func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	return s
}

func TestNewRequiresRoots(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestSweepAgeThreshold(t *testing.T) {
	root := t.TempDir()
	old := makeDir(t, root, "a1b2c3d4e5f60718", 601*time.Second)
	young := makeDir(t, root, "0011223344556677", 599*time.Second)
	file := filepath.Join(root, "stray.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	require.NoError(t, os.Chtimes(file, fixedNow.Add(-time.Hour), fixedNow.Add(-time.Hour)))

	report := newTestSweeper(t, root).Sweep(context.Background())

	require.Empty(t, report.Errors)
	require.Len(t, report.Removed, 1)
	assert.Equal(t, old, report.Removed[0].Path)
	assert.Equal(t, 601*time.Second, report.Removed[0].Age)

	assert.NoDirExists(t, old)
	assert.DirExists(t, young)
	assert.FileExists(t, file)
}

func TestSweepIsIdempotent(t *testing.T) {
	root := t.TempDir()
	makeDir(t, root, "old", 2*time.Hour)
	s := newTestSweeper(t, root)

	first := s.Sweep(context.Background())
	second := s.Sweep(context.Background())

	assert.Len(t, first.Removed, 1)
	assert.Empty(t, second.Removed)
	assert.Empty(t, second.Errors)
}

func TestSweepSkipsMissingRoots(t *testing.T) {
	root := t.TempDir()
	old := makeDir(t, root, "old", time.Hour)

	report := newTestSweeper(t, filepath.Join(root, "does-not-exist"), root).Sweep(context.Background())

	assert.Empty(t, report.Errors)
	assert.Len(t, report.Removed, 1)
	assert.NoDirExists(t, old)
}

func TestSweepRespectsInflightMarker(t *testing.T) {
	root := t.TempDir()
	building := makeDir(t, root, "building", 20*time.Minute, ".inflight")
	abandoned := makeDir(t, root, "abandoned", 2*time.Hour, ".inflight")

	report := newTestSweeper(t, root).Sweep(context.Background())

	require.Len(t, report.Removed, 1)
	assert.Equal(t, abandoned, report.Removed[0].Path)
	assert.DirExists(t, building)
}

func TestSweepCallsOnRemove(t *testing.T) {
	root := t.TempDir()
	old := makeDir(t, root, "old", time.Hour)

	var seen []string
	var completed []Report
	s, err := New(Config{
		Roots: []string{root},
		Now:   func() time.Time { return fixedNow },
		OnRemove: func(_ context.Context, r Removal) {
			seen = append(seen, r.Path)
		},
		OnComplete: func(_ context.Context, r Report) {
			completed = append(completed, r)
		},
	})
	require.NoError(t, err)

	s.Sweep(context.Background())
	assert.Equal(t, []string{old}, seen)
	require.Len(t, completed, 1)
	assert.Len(t, completed[0].Removed, 1)
}

func TestSweepSkipsWhenAlreadyRunning(t *testing.T) {
	root := t.TempDir()
	old := makeDir(t, root, "old", time.Hour)
	s := newTestSweeper(t, root)

	s.mu.Lock()
	report := s.Sweep(context.Background())
	s.mu.Unlock()

	assert.True(t, report.Skipped)
	assert.DirExists(t, old)
}

func TestRunStopsOnCancel(t *testing.T) {
	root := t.TempDir()
	old := makeDir(t, root, "old", time.Hour)
	s := newTestSweeper(t, root)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, time.Hour) }()

	require.Eventually(t, func() bool {
		_, err := os.Stat(old)
		return os.IsNotExist(err)
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
