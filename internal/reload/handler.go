package reload

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Hkesd/mcp-memory-service/internal/config"
	"github.com/Hkesd/mcp-memory-service/internal/core"
)

// Handler reloads application configuration and notifies modules.
type Handler struct {
	app    *core.App
	base   *core.AppContext
	logger *slog.Logger
}

// NewHandler creates a reload handler. base carries the service registry
// that reloaded modules keep seeing.
func NewHandler(app *core.App, base *core.AppContext, logger *slog.Logger) *Handler {
	return &Handler{
		app:    app,
		base:   base,
		logger: logger,
	}
}

// HandleReload loads a fresh config from disk, validates it, and calls Reload
// on all modules that implement core.Reloader.
func (h *Handler) HandleReload(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	return h.HandleReloadFromConfig(ctx, cfg)
}

// HandleReloadFromConfig reloads modules from a pre-loaded, already-validated
// config. The caller is responsible for calling config.Validate first.
func (h *Handler) HandleReloadFromConfig(ctx context.Context, cfg *config.Config) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before reload: %w", err)
	}

	appCtx := h.base.WithModuleConfigs(cfg.Modules)
	if err := h.app.ReloadModules(appCtx); err != nil {
		return fmt.Errorf("reloading modules: %w", err)
	}
	appCtx.RegisterService(config.Service, cfg)

	h.logger.Info("configuration reloaded successfully")
	return nil
}
