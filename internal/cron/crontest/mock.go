// Package crontest provides test doubles for the cron package.
package crontest

import (
	"context"
	"sync"
	"time"

	"github.com/Hkesd/mcp-memory-service/internal/cron"
)

// MockJob is a configurable test double for cron.Job.
type MockJob struct {
	NameVal     string
	ScheduleVal string
	RunFunc     func(ctx context.Context) error

	mu       sync.Mutex
	calls    int
	lastCall time.Time
	ran      chan struct{}
}

// Compile-time interface check.
var _ cron.Job = (*MockJob)(nil)

// Name implements cron.Job.
func (m *MockJob) Name() string { return m.NameVal }

// Schedule implements cron.Job.
func (m *MockJob) Schedule() string { return m.ScheduleVal }

// Run implements cron.Job and increments the call counter.
func (m *MockJob) Run(ctx context.Context) error {
	m.mu.Lock()
	m.calls++
	m.lastCall = time.Now()
	ran := m.ranChan()
	m.mu.Unlock()

	select {
	case ran <- struct{}{}:
	default:
	}

	if m.RunFunc != nil {
		return m.RunFunc(ctx)
	}
	return nil
}

// Ran returns a channel that receives after each Run call. Calls made while
// nobody is receiving are not queued.
func (m *MockJob) Ran() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ranChan()
}

func (m *MockJob) ranChan() chan struct{} {
	if m.ran == nil {
		m.ran = make(chan struct{})
	}
	return m.ran
}

// CallCount returns the number of times Run was called.
func (m *MockJob) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// LastCall returns the time of the last Run call.
func (m *MockJob) LastCall() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastCall
}
