// Package hybrid implements the hybrid tier: foreground operations are
// served by a fast primary while a background job mirrors writes into a
// durable secondary.
package hybrid

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Hkesd/mcp-memory-service/internal/cron"
	"github.com/Hkesd/mcp-memory-service/internal/memory"
	"github.com/Hkesd/mcp-memory-service/internal/tier"
)

const syncJobName = "hybrid_sync"

var (
	// ErrSyncInFlight is returned by SyncNow when a pass is already running.
	ErrSyncInFlight = errors.New("hybrid: sync already running")

	// ErrSyncDisabled is returned by SyncNow when mirroring is off.
	ErrSyncDisabled = errors.New("hybrid: sync disabled")
)

// Compile-time interface guard.
var _ memory.Backend = (*Coordinator)(nil)

// Constructor builds one tier. It never fails: an unreachable tier comes
// back as a baseline substitute together with its diagnostic.
type Constructor func(ctx context.Context) (memory.Backend, *tier.Diagnostic)

type opKind int

const (
	opUpsert opKind = iota
	opDelete
)

// pendingOp is the last foreground operation seen for an id. seq orders
// enqueues so a pass only clears entries it actually processed.
type pendingOp struct {
	kind opKind
	seq  uint64
}

// Coordinator is the hybrid backend.
type Coordinator struct {
	cfg       Config
	logger    *slog.Logger
	now       func() time.Time
	observers []func(PassReport)

	primary   memory.Backend
	secondary memory.Backend
	mirror    memory.Mirror
	diags     []tier.Diagnostic

	enabled        bool
	disabledReason string
	sched          *cron.Scheduler

	// deletes counts foreground deletes issued to the primary. A full
	// scan that sees it change may have skipped rows.
	deletes atomic.Uint64

	// passMu is held for the duration of a pass; TryLock makes wakes
	// single-flight.
	passMu     sync.Mutex
	passes     sync.WaitGroup
	passCtx    context.Context
	stopPasses context.CancelFunc

	// mu guards everything below.
	mu      sync.Mutex
	state   State
	pending map[string]pendingOp
	seq     uint64
	cursor  Cursor

	closeOnce sync.Once
	closeErr  error
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithPassObserver registers fn to be called after every sync pass.
// Observers run on the sync goroutine and must not block.
func WithPassObserver(fn func(PassReport)) Option {
	return func(c *Coordinator) {
		if fn != nil {
			c.observers = append(c.observers, fn)
		}
	}
}

// New builds both tiers and starts the background sync. Either tier may
// come back substituted; sync is then disabled and foreground service
// continues on whatever the primary is.
func New(ctx context.Context, cfg Config, primary, secondary Constructor, opts ...Option) (*Coordinator, error) {
	cfg.Defaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	passCtx, stop := context.WithCancel(context.Background())
	c := &Coordinator{
		cfg:        cfg,
		logger:     slog.New(slog.DiscardHandler),
		now:        time.Now,
		passCtx:    passCtx,
		stopPasses: stop,
		state:      StateStarting,
		pending:    make(map[string]pendingOp),
		cursor:     Cursor{FullScan: true},
	}
	for _, opt := range opts {
		opt(c)
	}

	p, pdiag := primary(ctx)
	s, sdiag := secondary(ctx)
	c.primary, c.secondary = p, s
	if pdiag != nil {
		c.diags = append(c.diags, *pdiag)
	}
	if sdiag != nil {
		c.diags = append(c.diags, *sdiag)
	}

	c.enabled, c.disabledReason = c.decideSync(pdiag, sdiag)
	if !c.enabled {
		c.logger.Info("sync disabled", "reason", c.disabledReason)
	} else {
		c.sched = cron.NewScheduler(c.logger)
		if err := c.sched.RegisterJob(cron.Every(syncJobName, cfg.SyncInterval, c.wake)); err != nil {
			_ = c.closeTiers()
			return nil, err
		}
		if err := c.sched.Start(); err != nil {
			_ = c.closeTiers()
			return nil, err
		}
		c.logger.Info("sync enabled",
			"interval", cfg.SyncInterval,
			"primary", p.Kind(),
			"secondary", s.Kind(),
		)
	}

	c.mu.Lock()
	c.state = StateRunning
	c.mu.Unlock()
	return c, nil
}

func (c *Coordinator) decideSync(pdiag, sdiag *tier.Diagnostic) (bool, string) {
	switch {
	case !c.cfg.syncEnabled():
		return false, "disabled by configuration"
	case pdiag != nil || c.primary.Kind() == memory.KindBaseline:
		return false, "primary substituted by baseline"
	case sdiag != nil || c.secondary.Kind() == memory.KindBaseline:
		return false, "secondary substituted by baseline"
	}
	m, ok := c.secondary.(memory.Mirror)
	if !ok {
		return false, fmt.Sprintf("secondary %s cannot mirror records", c.secondary.Kind())
	}
	c.mirror = m
	return true, ""
}

// Kind implements memory.Backend.
func (c *Coordinator) Kind() memory.Kind { return memory.KindHybrid }

// Primary returns the tier serving foreground operations.
func (c *Coordinator) Primary() memory.Backend { return c.primary }

// Secondary returns the mirror target.
func (c *Coordinator) Secondary() memory.Backend { return c.secondary }

// Diagnostics returns the substitutions made while building the tiers.
func (c *Coordinator) Diagnostics() []tier.Diagnostic {
	return append([]tier.Diagnostic(nil), c.diags...)
}

// Initialize implements memory.Backend. Both tiers are initialized by New.
func (c *Coordinator) Initialize(context.Context) error {
	if c.State() >= StateDraining {
		return memory.ErrClosed
	}
	return nil
}

// State returns the lifecycle state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Coordinator) open() error {
	if c.State() >= StateDraining {
		return memory.ErrClosed
	}
	return nil
}

// Store implements memory.Backend. The write goes to the primary only and
// is queued for mirroring.
func (c *Coordinator) Store(ctx context.Context, e memory.Entry) (string, error) {
	if err := c.open(); err != nil {
		return "", err
	}
	id, err := c.primary.Store(ctx, e)
	if err != nil {
		return "", err
	}
	c.enqueue(id, opUpsert)
	return id, nil
}

// Delete implements memory.Backend.
func (c *Coordinator) Delete(ctx context.Context, id string) error {
	if err := c.open(); err != nil {
		return err
	}
	c.deletes.Add(1)
	if err := c.primary.Delete(ctx, id); err != nil {
		return err
	}
	c.enqueue(id, opDelete)
	return nil
}

// Search implements memory.Backend.
func (c *Coordinator) Search(ctx context.Context, query string, limit int, f *memory.Filter) ([]memory.Result, error) {
	if err := c.open(); err != nil {
		return nil, err
	}
	return c.primary.Search(ctx, query, limit, f)
}

// Get implements memory.Backend.
func (c *Coordinator) Get(ctx context.Context, id string) (memory.Record, error) {
	if err := c.open(); err != nil {
		return memory.Record{}, err
	}
	return c.primary.Get(ctx, id)
}

// List implements memory.Backend.
func (c *Coordinator) List(ctx context.Context, offset, count int) ([]memory.Record, error) {
	if err := c.open(); err != nil {
		return nil, err
	}
	return c.primary.List(ctx, offset, count)
}

// enqueue records the latest operation for id. The last op per id wins.
func (c *Coordinator) enqueue(id string, k opKind) {
	if !c.enabled {
		return
	}
	c.mu.Lock()
	c.seq++
	c.pending[id] = pendingOp{kind: k, seq: c.seq}
	c.mu.Unlock()
}

// Status returns the current sync status. It never blocks on a pass.
func (c *Coordinator) Status() SyncStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := SyncStatus{
		State:               c.state,
		Enabled:             c.enabled,
		DisabledReason:      c.disabledReason,
		Watermark:           c.cursor.Watermark,
		Pending:             len(c.pending),
		ConsecutiveFailures: c.cursor.ConsecutiveFailures,
		LastPass:            c.cursor.LastPass,
		Health:              healthOf(c.cursor.ConsecutiveFailures, c.cfg.FailureThreshold),
	}
	if c.cursor.LastError != nil {
		st.LastError = c.cursor.LastError.Error()
	}
	return st
}

// Close stops the scheduler, cancels any in-flight pass and waits for it
// at most DrainTimeout before closing both tiers. Safe to call repeatedly.
func (c *Coordinator) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.state = StateDraining
		c.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.DrainTimeout)
		defer cancel()

		if c.sched != nil {
			if err := c.sched.Stop(ctx); err != nil {
				c.logger.Warn("sync scheduler did not stop in time", "error", err)
			}
		}
		c.stopPasses()

		drained := make(chan struct{})
		go func() {
			c.passes.Wait()
			close(drained)
		}()
		select {
		case <-drained:
		case <-ctx.Done():
			c.logger.Warn("sync pass still running after drain timeout", "timeout", c.cfg.DrainTimeout)
		}

		c.closeErr = c.closeTiers()

		c.mu.Lock()
		c.state = StateStopped
		c.pending = make(map[string]pendingOp)
		c.mu.Unlock()
		c.logger.Info("hybrid backend stopped")
	})
	return c.closeErr
}

func (c *Coordinator) closeTiers() error {
	var errs []error
	if c.primary != nil {
		if err := c.primary.Close(); err != nil {
			errs = append(errs, fmt.Errorf("hybrid: close primary: %w", err))
		}
	}
	if c.secondary != nil {
		if err := c.secondary.Close(); err != nil {
			errs = append(errs, fmt.Errorf("hybrid: close secondary: %w", err))
		}
	}
	return errors.Join(errs...)
}
