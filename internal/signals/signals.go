// Package signals lets an operator stop or pause railmind by dropping files
// into .railmind/signals. A "stop" file cancels every active run; a "pause"
// file makes entry points refuse new runs until it is cleared.
package signals

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Signal file names.
const (
	StopFile  = "stop"
	PauseFile = "pause"
)

// DefaultPollInterval is used when no watcher can be started.
const DefaultPollInterval = time.Second

// Manager watches the signals directory and cancels registered runs when a
// stop signal arrives.
type Manager struct {
	dir      string
	interval time.Duration

	mu      sync.Mutex
	stopped bool
	paused  bool
	nextID  int
	cancels map[int]context.CancelFunc

	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
}

// Dir returns the signals directory for a project root.
func Dir(root string) string {
	return filepath.Join(root, ".railmind", "signals")
}

// New creates the signals directory under root and starts watching it.
// When fsnotify is unavailable it falls back to polling every interval
// (DefaultPollInterval when zero).
func New(root string, interval time.Duration) (*Manager, error) {
	dir := Dir(root)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	m := &Manager{
		dir:      dir,
		interval: interval,
		cancels:  make(map[int]context.CancelFunc),
		done:     make(chan struct{}),
	}
	m.refresh()

	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		if err = watcher.Add(dir); err != nil {
			watcher.Close()
		}
	}
	m.wg.Add(1)
	if err != nil {
		go m.poll()
		return m, nil
	}
	m.watcher = watcher
	go m.watch()
	return m, nil
}

// Polling reports whether the manager fell back to polling.
func (m *Manager) Polling() bool {
	return m.watcher == nil
}

func (m *Manager) watch() {
	defer m.wg.Done()
	for {
		select {
		case <-m.done:
			return
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			switch filepath.Base(event.Name) {
			case StopFile, PauseFile:
				m.refresh()
			}
		case _, ok := <-m.watcher.Errors:
			// Keep watching; the next refresh will catch anything missed.
			if !ok {
				return
			}
		}
	}
}

func (m *Manager) poll() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.refresh()
		}
	}
}

// refresh syncs state with the files on disk and fires pending cancels.
func (m *Manager) refresh() {
	stop := m.exists(StopFile)
	pause := m.exists(PauseFile)

	m.mu.Lock()
	m.paused = pause
	m.stopped = stop
	var fire []context.CancelFunc
	if stop {
		for id, cancel := range m.cancels {
			fire = append(fire, cancel)
			delete(m.cancels, id)
		}
	}
	m.mu.Unlock()

	for _, cancel := range fire {
		cancel()
	}
}

func (m *Manager) exists(name string) bool {
	_, err := os.Stat(filepath.Join(m.dir, name))
	return err == nil
}

// Context derives a run context that is cancelled when a stop signal
// arrives. Callers must call the returned CancelFunc when the run ends.
func (m *Manager) Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		cancel()
		return ctx, cancel
	}
	id := m.nextID
	m.nextID++
	m.cancels[id] = cancel
	m.mu.Unlock()

	return ctx, func() {
		m.mu.Lock()
		delete(m.cancels, id)
		m.mu.Unlock()
		cancel()
	}
}

// Active returns the number of runs currently registered.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.cancels)
}

// ShouldStop reports whether a stop signal is present.
func (m *Manager) ShouldStop() bool {
	// Check the file directly in case the watcher missed it.
	if m.exists(StopFile) {
		m.refresh()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

// Paused reports whether a pause signal is present.
func (m *Manager) Paused() bool {
	m.refresh()
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paused
}

// SendStop creates the stop signal file.
func (m *Manager) SendStop() error {
	return Send(m.dir, StopFile)
}

// SendPause creates the pause signal file.
func (m *Manager) SendPause() error {
	return Send(m.dir, PauseFile)
}

// Clear removes all signal files and resets signal state.
func (m *Manager) Clear() error {
	if err := Clear(m.dir); err != nil {
		return err
	}
	m.refresh()
	return nil
}

// Close stops watching.
func (m *Manager) Close() {
	close(m.done)
	if m.watcher != nil {
		m.watcher.Close()
	}
	m.wg.Wait()
}

// Send writes a signal file into dir without a running Manager.
func Send(dir, name string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, name), []byte(time.Now().Format(time.RFC3339)), 0644)
}

// Clear removes every signal file from dir.
func Clear(dir string) error {
	for _, name := range []string{StopFile, PauseFile} {
		if err := os.Remove(filepath.Join(dir, name)); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}
