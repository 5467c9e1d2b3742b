// Package app provides the shared entry point for the memoryd commands:
// configuration loading, the redacting logger, tracing and module wiring.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/Hkesd/mcp-memory-service/internal/backend"
	"github.com/Hkesd/mcp-memory-service/internal/config"
	"github.com/Hkesd/mcp-memory-service/internal/core"
	"github.com/Hkesd/mcp-memory-service/internal/hybrid"
	"github.com/Hkesd/mcp-memory-service/internal/memory"
	"github.com/Hkesd/mcp-memory-service/internal/reload"
	"github.com/Hkesd/mcp-memory-service/internal/security"
	"github.com/Hkesd/mcp-memory-service/internal/telemetry"
)

// MemoryModule is the ID of the module that opens the backend.
const MemoryModule = "memory"

// Params configures how a command bootstraps the process.
type Params struct {
	// ConfigPath is an explicit path to the YAML configuration file.
	// If empty, config.FindPath decides and the built-in defaults apply
	// when no file exists.
	ConfigPath string

	// Version, Commit, and Date are injected at build time via ldflags.
	Version string
	Commit  string
	Date    string

	// LogLevel overrides telemetry.log_level when set.
	LogLevel string

	// LogOutput receives log lines. Defaults to os.Stderr; stdout is
	// reserved for the MCP transport.
	LogOutput io.Writer
}

// Runtime is a loaded configuration with the logger and service registry
// built from it.
type Runtime struct {
	Config     *config.Config
	ConfigPath string
	Logger     *slog.Logger
	Redactor   *security.Redactor
	AppCtx     *core.AppContext

	shutdownTracing func(context.Context) error
}

// Prepare loads and validates the configuration, builds the redacting
// logger, installs tracing and creates the application context.
func Prepare(ctx context.Context, p Params) (*Runtime, error) {
	cfg, path, err := config.LoadOrDefault(p.ConfigPath)
	if err != nil {
		return nil, err
	}
	if p.LogLevel != "" {
		cfg.Telemetry.LogLevel = p.LogLevel
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	out := p.LogOutput
	if out == nil {
		out = os.Stderr
	}
	redactor := security.NewRedactor()
	logger, err := NewLogger(out, cfg.Telemetry, redactor)
	if err != nil {
		return nil, err
	}

	shutdown, err := telemetry.SetupTracing(ctx, telemetry.TracingConfig{
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		ServiceName: cfg.Telemetry.ServiceName,
	})
	if err != nil {
		return nil, err
	}

	dataDir, err := filepath.Abs(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("app: resolve data dir: %w", err)
	}
	wd, _ := os.Getwd()

	appCtx := core.NewAppContext(logger, dataDir, wd).WithModuleConfigs(cfg.Modules)
	appCtx.RegisterService(config.Service, cfg)
	appCtx.RegisterService(security.ServiceRedactor, redactor)

	source := path
	if source == "" {
		source = "built-in defaults"
	}
	logger.Debug("configuration loaded", "source", source, "data_dir", dataDir)

	return &Runtime{
		Config:          cfg,
		ConfigPath:      path,
		Logger:          logger,
		Redactor:        redactor,
		AppCtx:          appCtx,
		shutdownTracing: shutdown,
	}, nil
}

// Close flushes exported spans.
func (rt *Runtime) Close(ctx context.Context) error {
	if rt.shutdownTracing == nil {
		return nil
	}
	return rt.shutdownTracing(ctx)
}

// NewLogger builds the process logger. Every record passes through the
// redactor before reaching w.
func NewLogger(w io.Writer, t config.TelemetryConfig, r *security.Redactor) (*slog.Logger, error) {
	var level slog.Level
	if t.LogLevel != "" {
		if err := level.UnmarshalText([]byte(t.LogLevel)); err != nil {
			return nil, fmt.Errorf("app: log level: %w", err)
		}
	}
	opts := &slog.HandlerOptions{Level: level}

	var inner slog.Handler
	switch t.LogFormat {
	case "json":
		inner = slog.NewJSONHandler(w, opts)
	default:
		inner = slog.NewTextHandler(w, opts)
	}
	return slog.New(security.NewRedactingHandler(inner, r)), nil
}

// Run loads configuration, starts all modules, and blocks until ctx is
// cancelled or a shutdown signal is received. SIGHUP and file-change
// events trigger a live reload for modules that implement core.Reloader.
func Run(ctx context.Context, p Params) error {
	rt, err := Prepare(ctx, p)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close(context.Background()) }()

	logger := rt.Logger
	logger.Info("memoryd starting", "version", p.Version, "commit", p.Commit)

	application := core.NewApp(rt.AppCtx)
	if err := application.LoadModules(config.Resolve(rt.Config)); err != nil {
		return err
	}
	if err := application.Start(); err != nil {
		return err
	}

	handler := reload.NewHandler(application, rt.AppCtx, logger)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	var changes <-chan reload.Event
	if rt.ConfigPath != "" {
		watcher := reload.NewWatcher(reload.WatcherConfig{ConfigPath: rt.ConfigPath})
		watcher.Start(ctx)
		defer watcher.Stop()
		changes = watcher.Events()
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutdown requested", "cause", context.Cause(ctx))
			application.Stop()
			logger.Info("shutdown complete")
			return nil
		case <-hup:
			logger.Info("SIGHUP received, reloading configuration")
			reloadConfig(ctx, logger, handler, rt.ConfigPath)
		case evt := <-changes:
			logger.Info("config file changed, reloading", "path", evt.ConfigPath)
			reloadConfig(ctx, logger, handler, rt.ConfigPath)
		}
	}
}

func reloadConfig(ctx context.Context, logger *slog.Logger, h *reload.Handler, path string) {
	if path == "" {
		logger.Warn("running on built-in defaults, nothing to reload")
		return
	}
	if err := h.HandleReload(ctx, path); err != nil {
		logger.Error("reload failed", "error", err)
	}
}

// Memory is an opened memory backend outside the full application, for
// one-shot commands and the MCP stdio server.
type Memory struct {
	Backend memory.Backend
	Sync    *hybrid.Coordinator
	app     *core.App
}

// OpenMemory loads only the memory module and returns its backend.
func OpenMemory(rt *Runtime) (*Memory, error) {
	application := core.NewApp(rt.AppCtx)
	if err := application.LoadModules([]string{MemoryModule}); err != nil {
		return nil, err
	}
	if err := application.Start(); err != nil {
		return nil, err
	}
	svc, ok := rt.AppCtx.GetService(backend.ServiceBackend)
	if !ok {
		application.Stop()
		return nil, errors.New("app: memory module published no backend")
	}
	b, ok := svc.(memory.Backend)
	if !ok {
		application.Stop()
		return nil, fmt.Errorf("app: unexpected backend service %T", svc)
	}
	m := &Memory{Backend: b, app: application}
	if svc, ok := rt.AppCtx.GetService(backend.ServiceSync); ok {
		m.Sync, _ = svc.(*hybrid.Coordinator)
	}
	return m, nil
}

// Close stops the memory module, closing the backend.
func (m *Memory) Close() {
	m.app.Stop()
}
