// Package gateway provides the memoryd HTTP surface: a REST API over the
// memory backend, health and Prometheus endpoints, and a WebSocket feed of
// sync pass reports. It binds to loopback by default and follows the
// module system pattern.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Hkesd/mcp-memory-service/internal/backend"
	"github.com/Hkesd/mcp-memory-service/internal/config"
	"github.com/Hkesd/mcp-memory-service/internal/core"
	"github.com/Hkesd/mcp-memory-service/internal/hybrid"
	"github.com/Hkesd/mcp-memory-service/internal/memory"
	"github.com/Hkesd/mcp-memory-service/internal/security"
	"github.com/Hkesd/mcp-memory-service/internal/telemetry"
	"github.com/Hkesd/mcp-memory-service/internal/tier"
)

func init() {
	core.RegisterModule(&Gateway{})
}

// Compile-time interface guards.
var (
	_ core.Configurable = (*Gateway)(nil)
	_ core.Provisioner  = (*Gateway)(nil)
	_ core.Validator    = (*Gateway)(nil)
	_ core.Starter      = (*Gateway)(nil)
	_ core.Stopper      = (*Gateway)(nil)
	_ core.Reloader     = (*Gateway)(nil)
)

// syncer is the part of the hybrid coordinator the gateway drives.
type syncer interface {
	SyncNow(ctx context.Context) (hybrid.PassReport, error)
	Status() hybrid.SyncStatus
}

// Gateway is the HTTP gateway module. It is a leaf module: nothing
// imports it.
type Gateway struct {
	config    Config
	appCtx    *core.AppContext
	logger    *slog.Logger
	server    *http.Server
	audit     *security.AuditLogger
	auditFile *os.File
	limiter   *security.RateLimiter
	redactor  *security.Redactor
	startedAt time.Time

	mu   sync.Mutex
	addr string

	// handler is the live router; Reload swaps it.
	handler atomic.Value

	// baseCtx parents every request context; Stop cancels it so that
	// hijacked WebSocket connections end with the server.
	baseCtx    context.Context
	cancelBase context.CancelFunc

	// Resolved at Start() via the service registry.
	backend memory.Backend
	diags   []tier.Diagnostic
	sync    syncer
	events  *hybrid.Feed
	metrics *telemetry.Metrics
	cfg     *config.Config
}

// ModuleInfo implements core.Module.
func (g *Gateway) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "gateway.http",
		New: func() core.Module { return &Gateway{} },
	}
}

// Configure implements core.Configurable.
func (g *Gateway) Configure(node *yaml.Node) error {
	if err := node.Decode(&g.config); err != nil {
		return err
	}
	g.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (g *Gateway) Provision(ctx *core.AppContext) error {
	g.config.defaults()
	g.appCtx = ctx
	g.logger = ctx.Logger
	g.limiter = security.NewRateLimiter(g.config.RateLimit)
	g.redactor = security.NewRedactor()
	if svc, ok := ctx.GetService(security.ServiceRedactor); ok {
		if r, ok := svc.(*security.Redactor); ok {
			g.redactor = r
		}
	}
	g.redactor.AddLiterals(g.config.Auth.BearerToken, g.config.Auth.BasicPass)

	if g.config.AuditLog != "" {
		path := g.config.AuditLog
		if !filepath.IsAbs(path) && ctx.DataDir != "" {
			path = filepath.Join(ctx.DataDir, path)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return fmt.Errorf("gateway: audit log directory: %w", err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return fmt.Errorf("gateway: open audit log: %w", err)
		}
		g.auditFile = f
		g.audit = security.NewAuditLogger(security.AuditLoggerConfig{
			Writer:   f,
			Redactor: g.redactor,
		})
	}
	return nil
}

// Validate implements core.Validator.
func (g *Gateway) Validate() error {
	addr, err := net.ResolveTCPAddr("tcp", g.config.Bind)
	if err != nil {
		return errors.New("gateway: invalid bind address: " + g.config.Bind)
	}
	if g.logger != nil && !g.config.Auth.IsConfigured() && addr.IP != nil && !addr.IP.IsLoopback() {
		g.logger.Warn("gateway bound to a non-loopback address without auth", "bind", g.config.Bind)
	}
	return nil
}

// Start implements core.Starter. It resolves dependencies from the service
// registry and starts the HTTP server.
func (g *Gateway) Start() error {
	g.resolveServices()
	g.startedAt = time.Now()
	g.baseCtx, g.cancelBase = context.WithCancel(context.Background())

	g.handler.Store(g.buildRouter())
	g.server = &http.Server{
		Handler:      http.HandlerFunc(g.serveHTTP),
		ReadTimeout:  g.config.ReadTimeout,
		WriteTimeout: g.config.WriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return g.baseCtx },
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", g.config.Bind)
	if err != nil {
		g.cancelBase()
		return errors.New("gateway: listen failed: " + err.Error())
	}
	g.mu.Lock()
	g.addr = ln.Addr().String()
	g.mu.Unlock()

	go func() {
		g.logger.Info("gateway listening", "addr", ln.Addr().String())
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()

	return nil
}

// resolveServices binds the services published by the memory module.
// Missing services degrade the matching endpoints.
func (g *Gateway) resolveServices() {
	if svc, ok := g.appCtx.GetService(backend.ServiceBackend); ok {
		if b, ok := svc.(memory.Backend); ok {
			g.backend = b
		}
	}
	if svc, ok := g.appCtx.GetService(backend.ServiceDiagnostics); ok {
		if d, ok := svc.([]tier.Diagnostic); ok {
			g.diags = d
		}
	}
	if svc, ok := g.appCtx.GetService(backend.ServiceSync); ok {
		if c, ok := svc.(*hybrid.Coordinator); ok {
			g.sync = c
		}
	}
	if svc, ok := g.appCtx.GetService(backend.ServiceEvents); ok {
		if f, ok := svc.(*hybrid.Feed); ok {
			g.events = f
		}
	}
	if svc, ok := g.appCtx.GetService(backend.ServiceMetrics); ok {
		if m, ok := svc.(*telemetry.Metrics); ok {
			g.metrics = m
		}
	}
	if svc, ok := g.appCtx.GetService(config.Service); ok {
		if c, ok := svc.(*config.Config); ok {
			g.cfg = c
		}
	}
}

func (g *Gateway) serveHTTP(w http.ResponseWriter, r *http.Request) {
	g.handler.Load().(http.Handler).ServeHTTP(w, r)
}

// Reload implements core.Reloader. Auth and rate limit changes apply to
// new requests; the other settings are read once at startup.
func (g *Gateway) Reload(ctx *core.AppContext) error {
	var next Config
	if node, ok := ctx.ModuleConfig(string(g.ModuleInfo().ID)); ok {
		if err := node.Decode(&next); err != nil {
			return fmt.Errorf("gateway: decode config: %w", err)
		}
	}
	next.defaults()
	if next.Bind != g.config.Bind {
		g.logger.Warn("bind address change requires a restart", "current", g.config.Bind, "configured", next.Bind)
	}

	g.redactor.AddLiterals(next.Auth.BearerToken, next.Auth.BasicPass)
	limiter := security.NewRateLimiter(next.RateLimit)
	if g.server != nil {
		g.handler.Store(g.routes(next.Auth, limiter))
	}
	g.logger.Info("gateway reloaded", "auth", next.Auth.IsConfigured())
	return nil
}

// Addr returns the address the server listens on, or "" before Start.
func (g *Gateway) Addr() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.addr
}

// Stop implements core.Stopper. Graceful shutdown with configured timeout.
func (g *Gateway) Stop(ctx context.Context) error {
	defer func() {
		if g.auditFile != nil {
			_ = g.auditFile.Close()
		}
	}()
	if g.server == nil {
		return nil
	}
	g.cancelBase()

	shutdownCtx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
	defer cancel()

	g.logger.Info("gateway shutting down")
	return g.server.Shutdown(shutdownCtx)
}
