package reload

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/Hkesd/mcp-memory-service/internal/config"
	"github.com/Hkesd/mcp-memory-service/internal/core"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// reloadable records the limit it was last reloaded with.
type reloadable struct {
	mu    sync.Mutex
	limit int
}

var lastReloaded = &reloadable{}

func (r *reloadable) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "test.reloadable",
		New: func() core.Module { return lastReloaded },
	}
}

func (r *reloadable) Reload(ctx *core.AppContext) error {
	node, ok := ctx.ModuleConfig("test.reloadable")
	if !ok {
		return nil
	}
	var cfg struct {
		Limit int `yaml:"limit"`
	}
	if err := node.Decode(&cfg); err != nil {
		return err
	}
	r.mu.Lock()
	r.limit = cfg.Limit
	r.mu.Unlock()
	return nil
}

func init() {
	core.RegisterModule(&reloadable{})
}

func newHandler(t *testing.T) (*Handler, *core.AppContext) {
	t.Helper()
	logger := testLogger()
	appCtx := core.NewAppContext(logger, t.TempDir(), "")
	a := core.NewApp(appCtx)
	if err := a.LoadModules([]string{"test.reloadable"}); err != nil {
		t.Fatalf("LoadModules: %v", err)
	}
	return NewHandler(a, appCtx, logger), appCtx
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "memoryd.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing file: %v", err)
	}
	return path
}

func TestHandler_HandleReload_FileNotFound(t *testing.T) {
	h, _ := newHandler(t)
	if err := h.HandleReload(context.Background(), "/nonexistent/memoryd.yaml"); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestHandler_HandleReload_InvalidConfig(t *testing.T) {
	h, _ := newHandler(t)
	if err := h.HandleReload(context.Background(), writeConfig(t, "modules: {}")); err == nil {
		t.Error("expected validation error")
	}
}

func TestHandler_HandleReload_UnknownModule(t *testing.T) {
	h, _ := newHandler(t)
	path := writeConfig(t, "version: \"1\"\nmodules:\n  fake.mod: {}\n")
	if err := h.HandleReload(context.Background(), path); err == nil {
		t.Error("expected validation error for unknown module")
	}
}

func TestHandler_HandleReload_NotifiesModules(t *testing.T) {
	h, appCtx := newHandler(t)
	path := writeConfig(t, "version: \"1\"\nmodules:\n  test.reloadable:\n    limit: 42\n")

	if err := h.HandleReload(context.Background(), path); err != nil {
		t.Fatalf("HandleReload: %v", err)
	}

	lastReloaded.mu.Lock()
	got := lastReloaded.limit
	lastReloaded.mu.Unlock()
	if got != 42 {
		t.Errorf("limit = %d, want 42", got)
	}

	svc, ok := appCtx.GetService(config.Service)
	if !ok {
		t.Fatal("reloaded config not published")
	}
	cfg, ok := svc.(*config.Config)
	if !ok {
		t.Fatalf("config service type = %T", svc)
	}
	if _, ok := cfg.Modules["test.reloadable"]; !ok {
		t.Error("published config lacks test.reloadable")
	}
}

func TestHandler_HandleReloadFromConfig_CancelledContext(t *testing.T) {
	h, _ := newHandler(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := &config.Config{Version: "1", Modules: map[string]yaml.Node{}}
	if err := h.HandleReloadFromConfig(ctx, cfg); err == nil {
		t.Error("expected error for cancelled context")
	}
}
