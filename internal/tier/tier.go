// Package tier adapts vector-service clients to memory.Backend and owns the
// silent substitution rule: a tier that cannot be reached at construction
// is replaced by the baseline store, never surfaced to the caller.
package tier

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Hkesd/mcp-memory-service/internal/memory"
)

// LocalClient is a collection-scoped client for a vector service running
// next to the process. Query scores are similarities in [0,1], higher is
// closer; drivers convert distances before returning.
type LocalClient interface {
	// Heartbeat checks that the service answers.
	Heartbeat(ctx context.Context) error

	// EnsureCollection creates the collection with dim dimensions when it
	// does not exist, and returns the dimension the collection holds.
	EnsureCollection(ctx context.Context, dim int) (int, error)

	Upsert(ctx context.Context, recs []memory.Record) error
	Query(ctx context.Context, vec []float32, n int) ([]memory.Result, error)

	// Get returns the records found among ids. Missing ids are omitted.
	Get(ctx context.Context, ids []string) ([]memory.Record, error)

	// Delete removes ids. Missing ids are not an error.
	Delete(ctx context.Context, ids []string) error

	// Page returns up to limit records starting at offset, oldest first.
	Page(ctx context.Context, offset, limit int) ([]memory.Record, error)

	Count(ctx context.Context) (int, error)
	Close() error
}

// RemoteClient is a LocalClient for a network-hosted service that needs a
// credential.
type RemoteClient interface {
	LocalClient

	// Driver names the service, e.g. "dashvector".
	Driver() string

	// Configured reports memory.ErrBackendUnavailable when the endpoint
	// or credential is missing. It performs no I/O.
	Configured() error
}

// Diagnostic records that a preferred tier was replaced by the baseline.
type Diagnostic struct {
	Tier   memory.Kind `json:"tier"`
	Driver string      `json:"driver,omitempty"`
	Cause  error       `json:"-"`
}

// Error implements error.
func (d *Diagnostic) Error() string {
	if d.Driver != "" {
		return fmt.Sprintf("%s tier (%s) substituted by baseline: %v", d.Tier, d.Driver, d.Cause)
	}
	return fmt.Sprintf("%s tier substituted by baseline: %v", d.Tier, d.Cause)
}

// Unwrap returns the cause.
func (d *Diagnostic) Unwrap() error { return d.Cause }

// Deps are the collaborators every tier constructor needs.
type Deps struct {
	Embedder memory.Embedder
	Logger   *slog.Logger

	// Baseline builds the substitute store. It is called at most once per
	// substitution.
	Baseline func() memory.Backend
}

func (d Deps) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return d.Logger
}

// Substitute logs the substitution of kind and returns an initialized
// baseline. When the baseline itself fails to initialize, an in-memory
// store stands in so callers always receive a working backend.
func Substitute(ctx context.Context, kind memory.Kind, driver string, cause error, d Deps) (memory.Backend, *Diagnostic) {
	diag := &Diagnostic{Tier: kind, Driver: driver, Cause: cause}
	log := d.logger()
	log.Warn("tier substituted", "tier", kind, "driver", driver, "cause", cause)

	var b memory.Backend
	if d.Baseline != nil {
		b = d.Baseline()
	}
	if b != nil {
		err := b.Initialize(ctx)
		if err == nil {
			return b, diag
		}
		_ = b.Close()
		log.Error("baseline unavailable, using in-memory store", "error", err)
	}
	return memory.NewInMemoryStore(d.Embedder, memory.WithKind(memory.KindBaseline)), diag
}
