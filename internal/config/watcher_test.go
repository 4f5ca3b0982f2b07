package config_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/auricle-ai/auricle/internal/config"
)

const watcherYAMLv1 = `
server:
  log_level: info
`

const watcherYAMLv2 = `
server:
  log_level: debug
`

// writeConfig writes content to path and bumps the mtime so the watcher's
// quick stat check sees a change even on coarse-grained filesystems.
func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	future := time.Now().Add(time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
}

func TestWatcher_InitialLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auricle.yaml")
	writeConfig(t, path, watcherYAMLv1)

	w, err := config.NewWatcher(path, nil, config.WithInterval(time.Hour))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	if got := w.Current().Server.LogLevel; got != config.LogInfo {
		t.Errorf("initial log_level = %q, want info", got)
	}
}

func TestWatcher_DetectsChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auricle.yaml")
	writeConfig(t, path, watcherYAMLv1)

	var (
		mu      sync.Mutex
		changed = make(chan struct{}, 1)
		gotNew  *config.Config
	)
	onChange := func(old, new *config.Config) {
		mu.Lock()
		gotNew = new
		mu.Unlock()
		select {
		case changed <- struct{}{}:
		default:
		}
	}

	w, err := config.NewWatcher(path, onChange, config.WithInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	writeConfig(t, path, watcherYAMLv2)

	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for change callback")
	}

	mu.Lock()
	defer mu.Unlock()
	if gotNew.Server.LogLevel != config.LogDebug {
		t.Errorf("new log_level = %q, want debug", gotNew.Server.LogLevel)
	}
	if w.Current().Server.LogLevel != config.LogDebug {
		t.Errorf("Current() not updated after change")
	}
}

func TestWatcher_InvalidFileKeepsOldConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auricle.yaml")
	writeConfig(t, path, watcherYAMLv1)

	w, err := config.NewWatcher(path, nil, config.WithInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	writeConfig(t, path, "server:\n  log_level: shouty\n")

	// Give the poller a few intervals to notice the bad file.
	time.Sleep(200 * time.Millisecond)

	if got := w.Current().Server.LogLevel; got != config.LogInfo {
		t.Errorf("log_level = %q after invalid reload, want old value info", got)
	}
}

func TestWatcher_InitialLoadFails(t *testing.T) {
	_, err := config.NewWatcher(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	if err == nil {
		t.Fatal("expected error for missing config file, got nil")
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auricle.yaml")
	writeConfig(t, path, watcherYAMLv1)

	w, err := config.NewWatcher(path, nil, config.WithInterval(time.Hour))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	w.Stop()
	w.Stop()
}
