package reload

import (
	"context"
	"crypto/sha256"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const watchedConfig = `version: "1"
modules:
  memory:
    backend: sqlite_vec
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func startWatcher(t *testing.T, path string) *Watcher {
	t.Helper()
	w := NewWatcher(WatcherConfig{ConfigPath: path, PollInterval: 20 * time.Millisecond})
	w.Start(t.Context())
	t.Cleanup(w.Stop)
	return w
}

func expectEvent(t *testing.T, w *Watcher) Event {
	t.Helper()
	select {
	case evt := <-w.Events():
		return evt
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a change event")
		return Event{}
	}
}

func expectQuiet(t *testing.T, w *Watcher, d time.Duration) {
	t.Helper()
	select {
	case evt := <-w.Events():
		t.Errorf("unexpected event: %+v", evt)
	case <-time.After(d):
	}
}

func TestWatcher_ContentChange(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "memoryd.yaml")
	writeFile(t, path, watchedConfig)
	w := startWatcher(t, path)

	changed := watchedConfig + "  gateway.http:\n    bind: 127.0.0.1:8765\n"
	writeFile(t, path, changed)

	evt := expectEvent(t, w)
	if evt.ConfigPath != path {
		t.Errorf("ConfigPath = %q, want %q", evt.ConfigPath, path)
	}
	if evt.Digest != sha256.Sum256([]byte(changed)) {
		t.Error("digest does not match the new content")
	}
}

func TestWatcher_TouchWithoutChange(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "memoryd.yaml")
	writeFile(t, path, watchedConfig)
	w := startWatcher(t, path)

	future := time.Now().Add(time.Minute)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatal(err)
	}
	writeFile(t, path, watchedConfig)

	expectQuiet(t, w, 200*time.Millisecond)
}

func TestWatcher_FileCreatedLater(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "memoryd.yaml")
	w := startWatcher(t, path)

	expectQuiet(t, w, 100*time.Millisecond)

	writeFile(t, path, watchedConfig)
	expectEvent(t, w)
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	t.Parallel()

	w := NewWatcher(WatcherConfig{ConfigPath: "/nonexistent/memoryd.yaml"})
	w.Stop()

	ctx, cancel := context.WithCancel(t.Context())
	w.Start(ctx)
	w.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		w.Stop()
		w.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}

func TestWatcher_DefaultInterval(t *testing.T) {
	t.Parallel()

	w := NewWatcher(WatcherConfig{ConfigPath: "memoryd.yaml"})
	if w.cfg.PollInterval != defaultPollInterval {
		t.Errorf("PollInterval = %v, want %v", w.cfg.PollInterval, defaultPollInterval)
	}
}
