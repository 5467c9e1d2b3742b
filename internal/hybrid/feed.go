package hybrid

import "sync"

// Feed fans pass reports out to subscribers. Publish never blocks: a
// subscriber that falls behind misses reports.
type Feed struct {
	mu   sync.Mutex
	subs map[chan PassReport]struct{}
}

// NewFeed returns an empty feed.
func NewFeed() *Feed {
	return &Feed{subs: make(map[chan PassReport]struct{})}
}

// Publish delivers r to every subscriber with buffer space. It has the
// signature expected by WithPassObserver.
func (f *Feed) Publish(r PassReport) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subs {
		select {
		case ch <- r:
		default:
		}
	}
}

// Subscribe returns a channel of reports and a function that cancels the
// subscription and closes the channel.
func (f *Feed) Subscribe(buffer int) (<-chan PassReport, func()) {
	ch := make(chan PassReport, max(buffer, 1))
	f.mu.Lock()
	f.subs[ch] = struct{}{}
	f.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, ch)
			f.mu.Unlock()
			close(ch)
		})
	}
}
