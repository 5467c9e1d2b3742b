// Package reload applies configuration changes to a running memoryd, on
// SIGHUP or when the config file's content changes.
package reload

import (
	"context"
	"crypto/sha256"
	"os"
	"sync"
	"time"
)

const defaultPollInterval = 5 * time.Second

// WatcherConfig configures the file watcher.
type WatcherConfig struct {
	// ConfigPath is the memoryd.yaml being served.
	ConfigPath string

	// PollInterval defaults to 5s.
	PollInterval time.Duration
}

// Event reports that the config file now holds different content.
type Event struct {
	ConfigPath string
	Digest     [sha256.Size]byte
}

// Watcher polls the config file and emits an Event when its content
// digest changes. Touching the file or rewriting identical bytes does not
// trigger a reload; a file that disappears is ignored until it returns.
type Watcher struct {
	cfg    WatcherConfig
	events chan Event

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewWatcher creates a watcher. Nothing runs until Start.
func NewWatcher(cfg WatcherConfig) *Watcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	return &Watcher{cfg: cfg, events: make(chan Event, 1)}
}

// Start begins polling. Later calls are no-ops.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done != nil {
		return
	}
	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	baseline, _ := w.digest()
	go w.poll(ctx, baseline)
}

// Events delivers change notifications. At most one is buffered; a
// pending event already covers later edits.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Stop ends polling and waits for the goroutine. It is safe before Start
// and more than once.
func (w *Watcher) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (w *Watcher) poll(ctx context.Context, last [sha256.Size]byte) {
	defer close(w.done)

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		sum, ok := w.digest()
		if !ok || sum == last {
			continue
		}
		last = sum
		select {
		case w.events <- Event{ConfigPath: w.cfg.ConfigPath, Digest: sum}:
		default:
		}
	}
}

func (w *Watcher) digest() ([sha256.Size]byte, bool) {
	data, err := os.ReadFile(w.cfg.ConfigPath)
	if err != nil {
		return [sha256.Size]byte{}, false
	}
	return sha256.Sum256(data), true
}
