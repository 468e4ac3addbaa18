package signals

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newManager(t *testing.T) *Manager {
	t.Helper()
	m, err := New(t.TempDir(), 10*time.Millisecond)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(m.Close)
	return m
}

func waitDone(t *testing.T, ctx context.Context) {
	t.Helper()
	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context was not cancelled by stop signal")
	}
}

func TestNew_CreatesDir(t *testing.T) {
	root := t.TempDir()
	m, err := New(root, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer m.Close()

	if fi, err := os.Stat(filepath.Join(root, ".railmind", "signals")); err != nil || !fi.IsDir() {
		t.Errorf("signals dir missing: %v", err)
	}
	if m.interval != DefaultPollInterval {
		t.Errorf("interval = %v, want %v", m.interval, DefaultPollInterval)
	}
}

func TestStopCancelsActiveRuns(t *testing.T) {
	m := newManager(t)

	ctx1, cancel1 := m.Context(context.Background())
	defer cancel1()
	ctx2, cancel2 := m.Context(context.Background())
	defer cancel2()
	if m.Active() != 2 {
		t.Fatalf("Active = %d, want 2", m.Active())
	}

	if err := m.SendStop(); err != nil {
		t.Fatalf("SendStop: %v", err)
	}
	waitDone(t, ctx1)
	waitDone(t, ctx2)
	if !m.ShouldStop() {
		t.Error("ShouldStop = false after stop signal")
	}
	if m.Active() != 0 {
		t.Errorf("Active = %d after stop, want 0", m.Active())
	}

	// New runs are cancelled immediately while the stop file exists.
	ctx3, cancel3 := m.Context(context.Background())
	defer cancel3()
	if ctx3.Err() == nil {
		t.Error("run started during stop was not cancelled")
	}

	if err := m.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	ctx4, cancel4 := m.Context(context.Background())
	defer cancel4()
	if ctx4.Err() != nil {
		t.Error("run started after Clear was cancelled")
	}
}

func TestPollingFallback(t *testing.T) {
	root := t.TempDir()
	m := &Manager{
		dir:      Dir(root),
		interval: 5 * time.Millisecond,
		cancels:  make(map[int]context.CancelFunc),
		done:     make(chan struct{}),
	}
	if err := os.MkdirAll(m.dir, 0755); err != nil {
		t.Fatal(err)
	}
	m.wg.Add(1)
	go m.poll()
	defer m.Close()

	if !m.Polling() {
		t.Fatal("Polling = false without watcher")
	}
	ctx, cancel := m.Context(context.Background())
	defer cancel()

	if err := Send(m.dir, StopFile); err != nil {
		t.Fatal(err)
	}
	waitDone(t, ctx)
}

func TestPause(t *testing.T) {
	m := newManager(t)
	if m.Paused() {
		t.Fatal("Paused = true before any signal")
	}
	if err := m.SendPause(); err != nil {
		t.Fatal(err)
	}
	if !m.Paused() {
		t.Error("Paused = false after pause signal")
	}
	if m.ShouldStop() {
		t.Error("pause must not stop runs")
	}
	if err := m.Clear(); err != nil {
		t.Fatal(err)
	}
	if m.Paused() {
		t.Error("Paused = true after Clear")
	}
}

func TestReleaseUnregisters(t *testing.T) {
	m := newManager(t)
	ctx, cancel := m.Context(context.Background())
	cancel()
	if ctx.Err() == nil {
		t.Error("context not cancelled by its CancelFunc")
	}
	if m.Active() != 0 {
		t.Errorf("Active = %d after release, want 0", m.Active())
	}
}

func TestClear_MissingFiles(t *testing.T) {
	if err := Clear(t.TempDir()); err != nil {
		t.Errorf("Clear on empty dir: %v", err)
	}
}
