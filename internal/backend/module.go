package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Hkesd/mcp-memory-service/internal/core"
	"github.com/Hkesd/mcp-memory-service/internal/embed"
	"github.com/Hkesd/mcp-memory-service/internal/hybrid"
	"github.com/Hkesd/mcp-memory-service/internal/memory"
	"github.com/Hkesd/mcp-memory-service/internal/security"
	"github.com/Hkesd/mcp-memory-service/internal/telemetry"
	"github.com/Hkesd/mcp-memory-service/internal/tier"
)

// Service names published by the memory module.
const (
	// ServiceBackend holds the opened memory.Backend.
	ServiceBackend = "memory.backend"

	// ServiceDiagnostics holds the []tier.Diagnostic recorded at Open.
	ServiceDiagnostics = "memory.diagnostics"

	// ServiceSync holds the *hybrid.Coordinator when the backend is hybrid.
	ServiceSync = "memory.sync"

	// ServiceEvents holds the *hybrid.Feed of sync pass reports.
	ServiceEvents = "memory.events"

	// ServiceMetrics holds the shared *telemetry.Metrics.
	ServiceMetrics = "telemetry.metrics"
)

// openTimeout bounds tier construction during Provision.
const openTimeout = 60 * time.Second

func init() {
	core.RegisterModule(&Module{})
}

// Compile-time interface guards.
var (
	_ core.Module       = (*Module)(nil)
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Validator    = (*Module)(nil)
	_ core.Stopper      = (*Module)(nil)
)

// Module is the "memory" core module. It opens the configured backend at
// provision time and publishes it for the gateway and the MCP server.
type Module struct {
	config  Config
	logger  *slog.Logger
	backend memory.Backend
	diags   []tier.Diagnostic
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "memory",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("memory: decode config: %w", err)
	}
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.logger = ctx.Logger
	m.config.Defaults(ctx.DataDir)
	if err := m.config.Validate(); err != nil {
		return err
	}
	if svc, ok := ctx.GetService(security.ServiceRedactor); ok {
		if r, ok := svc.(*security.Redactor); ok {
			r.AddLiterals(m.config.Secrets()...)
		}
	}

	embedder, err := embed.New(m.config.Embedding, m.logger)
	if err != nil {
		return fmt.Errorf("memory: embedder: %w", err)
	}

	metrics := sharedMetrics(ctx)
	feed := hybrid.NewFeed()

	openCtx, cancel := context.WithTimeout(context.Background(), openTimeout)
	defer cancel()
	m.backend, m.diags = Open(openCtx, m.config, Deps{
		Embedder: embedder,
		Logger:   m.logger,
		Metrics:  metrics,
		HybridOptions: []hybrid.Option{
			hybrid.WithPassObserver(metrics.ObservePass),
			hybrid.WithPassObserver(feed.Publish),
		},
	})

	ctx.RegisterService(ServiceBackend, m.backend)
	ctx.RegisterService(ServiceDiagnostics, m.diags)
	ctx.RegisterService(ServiceEvents, feed)
	if c, ok := memory.Underlying(m.backend).(*hybrid.Coordinator); ok {
		ctx.RegisterService(ServiceSync, c)
		metrics.WatchSync(c.Status)
	}
	return nil
}

// sharedMetrics returns the registered metrics or registers new ones.
func sharedMetrics(ctx *core.AppContext) *telemetry.Metrics {
	if svc, ok := ctx.GetService(ServiceMetrics); ok {
		if m, ok := svc.(*telemetry.Metrics); ok {
			return m
		}
	}
	m := telemetry.NewMetrics()
	ctx.RegisterService(ServiceMetrics, m)
	return m
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	if m.backend == nil {
		return errors.New("memory: backend not opened")
	}
	return nil
}

// Stop implements core.Stopper. The hybrid backend bounds its own drain.
func (m *Module) Stop(ctx context.Context) error {
	if m.backend == nil {
		return nil
	}
	done := make(chan error, 1)
	go func() { done <- m.backend.Close() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("memory: close backend: %w", ctx.Err())
	}
}

// Backend returns the opened backend, or nil before Provision.
func (m *Module) Backend() memory.Backend { return m.backend }

// Diagnostics returns the substitutions recorded at Provision.
func (m *Module) Diagnostics() []tier.Diagnostic { return m.diags }
