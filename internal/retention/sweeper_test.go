package retention

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeFile creates root/user/name with the given modification time.
func writeFile(t *testing.T, root, user, name string, mtime time.Time) string {
	t.Helper()
	dir := filepath.Join(root, user)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("data"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatal(err)
	}
	return path
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

type recordingObserver struct {
	mu    sync.Mutex
	stats []Stats
}

func (o *recordingObserver) ObserveSweep(stats Stats, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stats = append(o.stats, stats)
}

func TestNew_DefaultValues(t *testing.T) {
	s := New(Config{Root: t.TempDir()}, nil, testLogger())

	if s.interval != 30*time.Second {
		t.Errorf("interval = %v, want 30s", s.interval)
	}
	if s.maxAge != s.interval {
		t.Errorf("maxAge = %v, want interval", s.maxAge)
	}
}

func TestSweep_RemovesOnlyExpiredFiles(t *testing.T) {
	root := t.TempDir()
	now := time.Now()
	old := writeFile(t, root, "1", "100_a_old.mp4", now.Add(-2*time.Minute))
	fresh := writeFile(t, root, "1", "200_b_new.mp4", now.Add(-5*time.Second))

	obs := &recordingObserver{}
	s := New(Config{Root: root, Interval: 30 * time.Second}, obs, testLogger())

	first := s.Sweep(now)
	if first.Removed != 1 || first.Scanned != 2 || first.Failed != 0 {
		t.Errorf("first sweep stats = %+v, want 2 scanned 1 removed", first)
	}
	if exists(old) {
		t.Error("old file should be removed")
	}
	if !exists(fresh) {
		t.Error("fresh file should be kept")
	}

	second := s.Sweep(now)
	if second.Removed != 0 || second.Failed != 0 {
		t.Errorf("second sweep should be a no-op, got %+v", second)
	}
	if !exists(fresh) {
		t.Error("fresh file should still be kept")
	}
	if len(obs.stats) != 2 {
		t.Errorf("observer saw %d sweeps, want 2", len(obs.stats))
	}
}

func TestSweep_AcrossUsersKeepsDirectories(t *testing.T) {
	root := t.TempDir()
	now := time.Now()
	writeFile(t, root, "a", "1_x.jpg", now.Add(-time.Hour))
	writeFile(t, root, "b", "1_y.jpg", now.Add(-time.Hour))
	if err := os.MkdirAll(filepath.Join(root, "a", "nested"), 0755); err != nil {
		t.Fatal(err)
	}
	// Stray file directly under the root is not a user directory.
	stray := filepath.Join(root, "stray.txt")
	os.WriteFile(stray, []byte("x"), 0644)
	os.Chtimes(stray, now.Add(-time.Hour), now.Add(-time.Hour))

	s := New(Config{Root: root, Interval: time.Minute}, nil, testLogger())
	stats := s.Sweep(now)

	if stats.Removed != 2 {
		t.Errorf("removed = %d, want 2", stats.Removed)
	}
	for _, dir := range []string{"a", "b", filepath.Join("a", "nested")} {
		if !exists(filepath.Join(root, dir)) {
			t.Errorf("directory %s should be kept", dir)
		}
	}
	if !exists(stray) {
		t.Error("files outside user directories should be left alone")
	}
}

func TestSweep_FileAlreadyRemovedIsBenign(t *testing.T) {
	root := t.TempDir()
	now := time.Now()
	writeFile(t, root, "1", "1_gone.mp4", now.Add(-time.Hour))
	survivor := writeFile(t, root, "1", "2_other.mp4", now.Add(-time.Hour))

	s := New(Config{Root: root, Interval: time.Minute}, nil, testLogger())
	realRemove := s.remove
	s.remove = func(name string) error {
		if filepath.Base(name) == "1_gone.mp4" {
			// Delivery got there first.
			if err := realRemove(name); err != nil {
				return err
			}
		}
		return realRemove(name)
	}

	stats := s.Sweep(now)

	if stats.Failed != 0 {
		t.Errorf("vanished file should not count as failure: %+v", stats)
	}
	if stats.Removed != 1 {
		t.Errorf("removed = %d, want 1", stats.Removed)
	}
	if exists(survivor) {
		t.Error("sweep should continue past the vanished file")
	}
}

func TestSweep_RemoveErrorDoesNotAbort(t *testing.T) {
	root := t.TempDir()
	now := time.Now()
	writeFile(t, root, "1", "1_locked.mp4", now.Add(-time.Hour))
	other := writeFile(t, root, "1", "2_free.mp4", now.Add(-time.Hour))

	s := New(Config{Root: root, Interval: time.Minute}, nil, testLogger())
	realRemove := s.remove
	s.remove = func(name string) error {
		if filepath.Base(name) == "1_locked.mp4" {
			return errors.New("permission denied")
		}
		return realRemove(name)
	}

	stats := s.Sweep(now)

	if stats.Failed != 1 || stats.Removed != 1 {
		t.Errorf("stats = %+v, want 1 failed 1 removed", stats)
	}
	if exists(other) {
		t.Error("sweep should continue after a failed removal")
	}
}

func TestSweep_MissingRoot(t *testing.T) {
	s := New(Config{Root: filepath.Join(t.TempDir(), "absent")}, nil, testLogger())

	if stats := s.Sweep(time.Now()); stats != (Stats{}) {
		t.Errorf("missing root should be a no-op, got %+v", stats)
	}
}

func TestSweeper_StartStop(t *testing.T) {
	root := t.TempDir()
	old := writeFile(t, root, "1", "1_old.mp4", time.Now().Add(-time.Hour))

	var hooks atomic.Int32
	s := New(Config{
		Root:     root,
		Interval: 10 * time.Millisecond,
		MaxAge:   time.Minute,
		OnSweep: func(ctx context.Context, now time.Time) {
			hooks.Add(1)
		},
	}, nil, testLogger())

	s.Start()
	s.Start() // second call is ignored

	deadline := time.Now().Add(2 * time.Second)
	for exists(old) && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	if err := s.Stop(time.Second); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if exists(old) {
		t.Error("background loop should have removed the old file")
	}
	if hooks.Load() == 0 {
		t.Error("OnSweep hook should have run")
	}
}

func TestSweeper_StopTimeout(t *testing.T) {
	s := New(Config{Root: t.TempDir(), Interval: time.Hour}, nil, testLogger())

	// Simulate a loop that never exits.
	s.wg.Add(1)
	err := s.Stop(20 * time.Millisecond)
	s.wg.Done()

	if !errors.Is(err, ErrShutdownTimeout) {
		t.Errorf("expected ErrShutdownTimeout, got %v", err)
	}
}
