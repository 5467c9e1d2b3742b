package backend

import (
	"context"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel/trace"

	"github.com/Hkesd/mcp-memory-service/internal/embed"
	"github.com/Hkesd/mcp-memory-service/internal/hybrid"
	"github.com/Hkesd/mcp-memory-service/internal/memory"
	"github.com/Hkesd/mcp-memory-service/internal/telemetry"
	"github.com/Hkesd/mcp-memory-service/internal/tier"
	"github.com/Hkesd/mcp-memory-service/modules/memory/chroma"
	"github.com/Hkesd/mcp-memory-service/modules/memory/dashvector"
	"github.com/Hkesd/mcp-memory-service/modules/memory/qdrant"
	"github.com/Hkesd/mcp-memory-service/modules/memory/sqlite"
)

// Deps are the collaborators Open hands to the tiers.
type Deps struct {
	// Embedder vectorises content. Defaults to the hashing embedder.
	Embedder memory.Embedder
	Logger   *slog.Logger

	// Metrics and Tracer instrument the opened backend. Both are optional.
	Metrics *telemetry.Metrics
	Tracer  trace.Tracer

	// HTTPClient overrides the client used by network tiers.
	HTTPClient *http.Client

	// HybridOptions are passed to the hybrid coordinator.
	HybridOptions []hybrid.Option
}

func (d *Deps) defaults() {
	if d.Logger == nil {
		d.Logger = slog.New(slog.DiscardHandler)
	}
	if d.Embedder == nil {
		d.Embedder = embed.NewHash(embed.DefaultDimensions)
	}
}

// Open builds the configured backend. It never fails: an unknown name is
// logged once and every unusable tier is replaced by the baseline, with a
// diagnostic per substitution. The caller owns the result and closes it.
func Open(ctx context.Context, cfg Config, d Deps) (memory.Backend, []tier.Diagnostic) {
	d.defaults()
	r := router{cfg: cfg, deps: d, baseline: new(memory.Backend)}

	var diags []tier.Diagnostic
	v, err := Resolve(cfg.Backend)
	if err != nil {
		d.Logger.Error("unknown backend", "name", cfg.Backend, "error", err)
		diags = append(diags, tier.Diagnostic{Tier: memory.Kind(Normalize(cfg.Backend)), Cause: err})
	}

	var b memory.Backend
	switch v {
	case FastTier:
		var diag *tier.Diagnostic
		b, diag = r.fast(ctx)
		diags = appendDiag(diags, diag)
	case RemoteTier:
		var diag *tier.Diagnostic
		b, diag = r.remote(ctx, r.driverFor(cfg.Backend))
		diags = appendDiag(diags, diag)
	case Hybrid:
		var hdiags []tier.Diagnostic
		b, hdiags = r.hybrid(ctx)
		diags = append(diags, hdiags...)
	default:
		var diag *tier.Diagnostic
		b, diag = r.baselineTier(ctx)
		diags = appendDiag(diags, diag)
	}

	d.Logger.Info("memory backend ready",
		"requested", cfg.Backend,
		"variant", v,
		"kind", b.Kind(),
		"substitutions", len(diags),
	)
	if d.Metrics != nil {
		d.Metrics.ObserveSubstitutions(diags)
	}
	return telemetry.Instrument(b, d.Metrics, d.Tracer), diags
}

func appendDiag(diags []tier.Diagnostic, d *tier.Diagnostic) []tier.Diagnostic {
	if d == nil {
		return diags
	}
	return append(diags, *d)
}

type router struct {
	cfg  Config
	deps Deps

	// baseline is built once per Open and shared by every substitution.
	baseline *memory.Backend
}

func (r router) tierDeps() tier.Deps {
	return tier.Deps{
		Embedder: r.deps.Embedder,
		Logger:   r.deps.Logger,
		Baseline: r.newBaseline,
	}
}

func (r router) newBaseline() memory.Backend {
	if *r.baseline == nil {
		*r.baseline = sqlite.New(r.cfg.SQLite, r.deps.Embedder, sqlite.WithLogger(r.deps.Logger))
	}
	return *r.baseline
}

// baselineTier opens the baseline store. If even that fails the in-memory
// store stands in.
func (r router) baselineTier(ctx context.Context) (memory.Backend, *tier.Diagnostic) {
	b := r.newBaseline()
	if err := b.Initialize(ctx); err != nil {
		_ = b.Close()
		d := r.tierDeps()
		d.Baseline = nil
		return tier.Substitute(ctx, memory.KindBaseline, "sqlite", err, d)
	}
	return b, nil
}

func (r router) driverFor(name string) string {
	if drv, ok := remoteDrivers[Normalize(name)]; ok {
		return drv
	}
	return Normalize(r.cfg.Remote.Driver)
}

func (r router) fast(ctx context.Context) (memory.Backend, *tier.Diagnostic) {
	return r.fastIn(ctx, r.cfg.ChromaDB)
}

func (r router) fastIn(ctx context.Context, cfg chroma.Config) (memory.Backend, *tier.Diagnostic) {
	c := chroma.New(cfg)
	if r.deps.HTTPClient != nil {
		c = c.WithHTTPClient(r.deps.HTTPClient)
	}
	return tier.NewFast(ctx, c, r.tierDeps())
}

func (r router) remote(ctx context.Context, driver string) (memory.Backend, *tier.Diagnostic) {
	return r.remoteIn(ctx, driver, "")
}

// remoteIn builds the remote tier, overriding the collection when set.
func (r router) remoteIn(ctx context.Context, driver, collection string) (memory.Backend, *tier.Diagnostic) {
	var c tier.RemoteClient
	switch driver {
	case DriverQdrant:
		cfg := r.cfg.Qdrant
		if collection != "" {
			cfg.Collection = collection
		}
		qc := qdrant.New(cfg)
		if r.deps.HTTPClient != nil {
			qc = qc.WithHTTPClient(r.deps.HTTPClient)
		}
		c = qc
	default:
		cfg := r.cfg.DashVector
		if collection != "" {
			cfg.Collection = collection
		}
		dc := dashvector.New(cfg)
		if r.deps.HTTPClient != nil {
			dc = dc.WithHTTPClient(r.deps.HTTPClient)
		}
		c = dc
	}
	return tier.NewRemote(ctx, c, r.tierDeps())
}

func (r router) hybrid(ctx context.Context) (memory.Backend, []tier.Diagnostic) {
	collection := r.cfg.Hybrid.Collection
	fastCfg := r.cfg.ChromaDB
	if collection != "" {
		fastCfg.Collection = collection
	}
	driver := Normalize(r.cfg.Remote.Driver)

	c, err := hybrid.New(ctx, r.cfg.Hybrid,
		func(ctx context.Context) (memory.Backend, *tier.Diagnostic) { return r.fastIn(ctx, fastCfg) },
		func(ctx context.Context) (memory.Backend, *tier.Diagnostic) { return r.remoteIn(ctx, driver, collection) },
		append([]hybrid.Option{hybrid.WithLogger(r.deps.Logger)}, r.deps.HybridOptions...)...,
	)
	if err != nil {
		cause := memory.Unavailable(err)
		r.deps.Logger.Error("hybrid backend unavailable", "error", err)
		b, diag := r.baselineTier(ctx)
		diags := []tier.Diagnostic{{Tier: memory.KindHybrid, Cause: cause}}
		return b, appendDiag(diags, diag)
	}
	return c, c.Diagnostics()
}
