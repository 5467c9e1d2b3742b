package hybrid

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/Hkesd/mcp-memory-service/internal/memory"
)

// wake is the scheduler entry point. Pass failures are logged by the pass
// and retried on the next wake.
func (c *Coordinator) wake(ctx context.Context) error {
	_, err := c.SyncNow(ctx)
	if errors.Is(err, ErrSyncInFlight) || errors.Is(err, memory.ErrClosed) {
		return nil
	}
	return err
}

// SyncNow runs one sync pass and returns its report. A pass failing on
// some records returns the report with a nil error; the cursor keeps the
// work for the next pass. When another pass is running it returns
// ErrSyncInFlight without doing any work.
func (c *Coordinator) SyncNow(ctx context.Context) (PassReport, error) {
	if !c.enabled {
		return PassReport{}, ErrSyncDisabled
	}
	if !c.passMu.TryLock() {
		c.logger.Debug("sync already running, skipping wake")
		return PassReport{}, ErrSyncInFlight
	}
	defer c.passMu.Unlock()

	c.mu.Lock()
	if c.state >= StateDraining {
		c.mu.Unlock()
		return PassReport{}, memory.ErrClosed
	}
	c.passes.Add(1)
	c.mu.Unlock()
	defer c.passes.Done()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(c.passCtx, cancel)
	defer stop()

	report := c.pass(ctx)
	for _, fn := range c.observers {
		fn(report)
	}
	return report, nil
}

// plan is the work collected at the start of a pass.
type plan struct {
	upserts map[string]memory.Record
	deletes []string
	// seqs holds the pending sequence numbers the pass took ownership of.
	seqs map[string]uint64
	// shifted is set when a delete ran during the full scan. Offset paging
	// may then have skipped a row, so the scan must be repeated.
	shifted bool
}

func (c *Coordinator) pass(ctx context.Context) PassReport {
	start := c.now()

	c.mu.Lock()
	cur := c.cursor
	snapshot := make(map[string]pendingOp, len(c.pending))
	for id, op := range c.pending {
		snapshot[id] = op
	}
	c.mu.Unlock()

	report := PassReport{Started: start, FullScan: cur.FullScan}
	p, failed, err := c.collect(ctx, cur, snapshot)

	newest := cur
	if err == nil {
		var mirrored, deleted, f int
		mirrored, deleted, f, newest, err = c.apply(ctx, cur, p)
		report.Mirrored, report.Deleted = mirrored, deleted
		failed += f
	}
	report.Failed = failed
	report.Duration = c.now().Sub(start)

	c.mu.Lock()
	c.cursor.LastPass = c.now()
	if err == nil && failed == 0 {
		if !p.shifted {
			c.cursor.Watermark, c.cursor.WatermarkID = newest.Watermark, newest.WatermarkID
			c.cursor.FullScan = false
		}
		c.cursor.ConsecutiveFailures = 0
		c.cursor.LastError = nil
		for id, seq := range p.seqs {
			if op, ok := c.pending[id]; ok && op.seq == seq {
				delete(c.pending, id)
			}
		}
	} else {
		if err == nil {
			err = fmt.Errorf("hybrid: %d record operations failed", failed)
		}
		c.cursor.ConsecutiveFailures++
		c.cursor.LastError = err
	}
	report.Watermark = c.cursor.Watermark
	failures := c.cursor.ConsecutiveFailures
	pending := len(c.pending)
	c.mu.Unlock()

	if err != nil {
		report.Error = err.Error()
		c.logger.Warn("sync pass failed",
			"failures", failures,
			"failed_ops", failed,
			"pending", pending,
			"error", err,
		)
		return report
	}
	if p.shifted {
		c.logger.Info("primary changed during full scan, rescanning next pass")
	}
	c.logger.Info("sync pass",
		"mirrored", report.Mirrored,
		"deleted", report.Deleted,
		"watermark", report.Watermark,
		"full_scan", report.FullScan,
		"duration", report.Duration,
	)
	return report
}

// collect turns the pending snapshot, plus a primary scan when the cursor
// asks for one, into concrete upserts and deletes. Pending upserts are
// re-read from the primary; a record that is gone becomes a delete.
func (c *Coordinator) collect(ctx context.Context, cur Cursor, snapshot map[string]pendingOp) (plan, int, error) {
	p := plan{
		upserts: make(map[string]memory.Record),
		seqs:    make(map[string]uint64, len(snapshot)),
	}

	if cur.FullScan {
		gen := c.deletes.Load()
		for offset := 0; ; offset += c.cfg.BatchSize {
			if err := ctx.Err(); err != nil {
				return p, 0, err
			}
			page, err := c.primary.List(ctx, offset, c.cfg.BatchSize)
			if err != nil {
				return p, 0, fmt.Errorf("hybrid: scan primary: %w", err)
			}
			for _, r := range page {
				if op, ok := snapshot[r.ID]; ok && op.kind == opDelete {
					continue
				}
				if cur.after(r.CreatedAt, r.ID) {
					p.upserts[r.ID] = r
				}
			}
			if len(page) < c.cfg.BatchSize {
				break
			}
		}
		p.shifted = c.deletes.Load() != gen
	}

	var failed int
	for id, op := range snapshot {
		if err := ctx.Err(); err != nil {
			return p, failed, err
		}
		p.seqs[id] = op.seq
		if op.kind == opDelete {
			p.deletes = append(p.deletes, id)
			continue
		}
		if _, ok := p.upserts[id]; ok {
			continue
		}
		r, err := c.primary.Get(ctx, id)
		switch {
		case errors.Is(err, memory.ErrNotFound):
			p.deletes = append(p.deletes, id)
		case err != nil:
			failed++
			delete(p.seqs, id)
			c.logger.Warn("sync read failed", "id", id, "error", err)
		default:
			p.upserts[id] = r
		}
	}
	return p, failed, nil
}

// apply mirrors the plan into the secondary. Upserts go oldest first so the
// watermark only ever covers a contiguous prefix of mirrored records.
func (c *Coordinator) apply(ctx context.Context, cur Cursor, p plan) (mirrored, deleted, failed int, newest Cursor, err error) {
	newest = cur

	recs := make([]memory.Record, 0, len(p.upserts))
	for _, r := range p.upserts {
		recs = append(recs, r)
	}
	slices.SortFunc(recs, func(a, b memory.Record) int {
		if d := a.CreatedAt.Compare(b.CreatedAt); d != 0 {
			return d
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})

	for _, r := range recs {
		if err := ctx.Err(); err != nil {
			return mirrored, deleted, failed, newest, err
		}
		if err := c.mirror.Upsert(ctx, r); err != nil {
			failed++
			c.logger.Warn("sync upsert failed", "id", r.ID, "error", err, "transient", memory.IsTransient(err))
			continue
		}
		mirrored++
		if newest.after(r.CreatedAt, r.ID) {
			newest.Watermark, newest.WatermarkID = r.CreatedAt, r.ID
		}
	}

	slices.Sort(p.deletes)
	for _, id := range p.deletes {
		if err := ctx.Err(); err != nil {
			return mirrored, deleted, failed, newest, err
		}
		if err := c.secondary.Delete(ctx, id); err != nil {
			failed++
			c.logger.Warn("sync delete failed", "id", id, "error", err, "transient", memory.IsTransient(err))
			continue
		}
		deleted++
	}
	return mirrored, deleted, failed, newest, nil
}
