package backend_test

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/Hkesd/mcp-memory-service/internal/backend"
	"github.com/Hkesd/mcp-memory-service/internal/core"
	"github.com/Hkesd/mcp-memory-service/internal/hybrid"
	"github.com/Hkesd/mcp-memory-service/internal/memory"
	"github.com/Hkesd/mcp-memory-service/internal/memory/memorytest"
	"github.com/Hkesd/mcp-memory-service/internal/telemetry"
	"github.com/Hkesd/mcp-memory-service/modules/memory/sqlite"
)

func TestResolve(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		want backend.Variant
	}{
		{"fast", backend.FastTier},
		{"fast-tier", backend.FastTier},
		{"chromadb", backend.FastTier},
		{"chroma", backend.FastTier},
		{"remote", backend.RemoteTier},
		{"remote-tier", backend.RemoteTier},
		{"dashvector", backend.RemoteTier},
		{"qdrant", backend.RemoteTier},
		{"hybrid", backend.Hybrid},
		{"hybrid_plus", backend.Hybrid},
		{"baseline", backend.Baseline},
		{"sqlite", backend.Baseline},
		{"sqlite_vec", backend.Baseline},
		{"sqlite-vec", backend.Baseline},
		{"  Hybrid_Plus ", backend.Hybrid},
		{"ChromaDB", backend.FastTier},
	}
	for _, tt := range tests {
		got, err := backend.Resolve(tt.name)
		if err != nil {
			t.Errorf("Resolve(%q) error: %v", tt.name, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Resolve(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}

	for _, name := range []string{"", "redis", "sqlite vec", "hybrid-plus"} {
		if _, err := backend.Resolve(name); !errors.Is(err, memory.ErrUnknownBackend) {
			t.Errorf("Resolve(%q) = %v, want ErrUnknownBackend", name, err)
		}
	}
}

func TestVariantNamesCoverTable(t *testing.T) {
	t.Parallel()

	for v, n := range map[backend.Variant]int{
		backend.FastTier:   4,
		backend.RemoteTier: 4,
		backend.Hybrid:     2,
		backend.Baseline:   4,
	} {
		if got := len(backend.Names(v)); got != n {
			t.Errorf("Names(%v) = %d names, want %d", v, got, n)
		}
	}
	if backend.Hybrid.Kind() != memory.KindHybrid || backend.Baseline.Kind() != memory.KindBaseline {
		t.Error("variant kinds do not match memory kinds")
	}
}

// unreachable returns a URL nothing listens on.
func unreachable(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(nil)
	u := srv.URL
	srv.Close()
	return u
}

func testConfig(t *testing.T, name string) backend.Config {
	t.Helper()
	cfg := backend.Config{Backend: name}
	cfg.SQLite.Path = filepath.Join(t.TempDir(), "memory.db")
	cfg.Embedding.Dimensions = memorytest.Dimensions
	cfg.ChromaDB.URL = unreachable(t)
	cfg.Qdrant.URL = unreachable(t)
	cfg.DashVector.Endpoint = unreachable(t)
	cfg.DashVector.APIKey = "sk-test"
	cfg.Defaults(t.TempDir())
	return cfg
}

func logTo(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestOpenBaseline(t *testing.T) {
	t.Parallel()

	b, diags := backend.Open(t.Context(), testConfig(t, "sqlite_vec"), backend.Deps{
		Embedder: memorytest.NewEmbedder(),
	})
	t.Cleanup(func() { _ = b.Close() })

	if len(diags) != 0 {
		t.Fatalf("diags = %v", diags)
	}
	if b.Kind() != memory.KindBaseline {
		t.Errorf("Kind() = %q", b.Kind())
	}
	if _, ok := memory.Underlying(b).(*sqlite.Store); !ok {
		t.Errorf("underlying = %T, want *sqlite.Store", memory.Underlying(b))
	}
	id, err := b.Store(t.Context(), memory.Entry{Content: "routed to sqlite"})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if _, err := b.Get(t.Context(), id); err != nil {
		t.Errorf("get: %v", err)
	}
}

func TestOpenUnknownFallsBack(t *testing.T) {
	t.Parallel()

	var logs bytes.Buffer
	b, diags := backend.Open(t.Context(), testConfig(t, "mongodb"), backend.Deps{
		Embedder: memorytest.NewEmbedder(),
		Logger:   logTo(&logs),
	})
	t.Cleanup(func() { _ = b.Close() })

	if b.Kind() != memory.KindBaseline {
		t.Errorf("Kind() = %q, want baseline", b.Kind())
	}
	if len(diags) != 1 || !errors.Is(diags[0].Cause, memory.ErrUnknownBackend) {
		t.Fatalf("diags = %v, want one unknown-backend diagnostic", diags)
	}
	if n := strings.Count(logs.String(), `msg="unknown backend"`); n != 1 {
		t.Errorf("logged %d times, want once:\n%s", n, logs.String())
	}
	if !strings.Contains(logs.String(), "level=ERROR") {
		t.Errorf("unknown backend not logged at error level:\n%s", logs.String())
	}
}

func TestOpenFastUnreachableSubstitutes(t *testing.T) {
	t.Parallel()

	var logs bytes.Buffer
	b, diags := backend.Open(t.Context(), testConfig(t, "chromadb"), backend.Deps{
		Embedder: memorytest.NewEmbedder(),
		Logger:   logTo(&logs),
	})
	t.Cleanup(func() { _ = b.Close() })

	if b.Kind() != memory.KindBaseline {
		t.Errorf("Kind() = %q, want baseline", b.Kind())
	}
	if len(diags) != 1 || diags[0].Tier != memory.KindFast {
		t.Fatalf("diags = %v, want one fast-tier diagnostic", diags)
	}
	if !strings.Contains(logs.String(), "tier substituted") {
		t.Errorf("substitution not logged:\n%s", logs.String())
	}
	// The substitute serves the full contract.
	if _, err := b.Store(t.Context(), memory.Entry{Content: "still works"}); err != nil {
		t.Errorf("store on substitute: %v", err)
	}
}

func TestOpenRemoteDrivers(t *testing.T) {
	t.Parallel()

	for _, tt := range []struct {
		name, driver string
	}{
		{"dashvector", "dashvector"},
		{"qdrant", "qdrant"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			b, diags := backend.Open(t.Context(), testConfig(t, tt.name), backend.Deps{
				Embedder: memorytest.NewEmbedder(),
			})
			t.Cleanup(func() { _ = b.Close() })

			if len(diags) != 1 || diags[0].Tier != memory.KindRemote || diags[0].Driver != tt.driver {
				t.Fatalf("diags = %+v, want one %s diagnostic", diags, tt.driver)
			}
		})
	}
}

func TestOpenRemoteMissingCredential(t *testing.T) {
	t.Setenv("DASHVECTOR_API_KEY", "")
	t.Setenv("DASHVECTOR_ENDPOINT", "")

	cfg := testConfig(t, "remote")
	cfg.DashVector.APIKey = ""
	b, diags := backend.Open(t.Context(), cfg, backend.Deps{Embedder: memorytest.NewEmbedder()})
	t.Cleanup(func() { _ = b.Close() })

	if len(diags) != 1 || !errors.Is(diags[0].Cause, memory.ErrBackendUnavailable) {
		t.Fatalf("diags = %v, want a credential diagnostic", diags)
	}
	if b.Kind() != memory.KindBaseline {
		t.Errorf("Kind() = %q", b.Kind())
	}
}

func TestOpenHybridBothUnreachable(t *testing.T) {
	t.Parallel()

	m := telemetry.NewMetrics()
	b, diags := backend.Open(t.Context(), testConfig(t, "hybrid_plus"), backend.Deps{
		Embedder: memorytest.NewEmbedder(),
		Metrics:  m,
	})
	t.Cleanup(func() { _ = b.Close() })

	if b.Kind() != memory.KindHybrid {
		t.Errorf("Kind() = %q, want hybrid", b.Kind())
	}
	if len(diags) != 2 {
		t.Fatalf("diags = %v, want two", diags)
	}
	c, ok := memory.Underlying(b).(*hybrid.Coordinator)
	if !ok {
		t.Fatalf("underlying = %T", memory.Underlying(b))
	}
	if st := c.Status(); st.Enabled {
		t.Errorf("sync enabled with both tiers substituted: %+v", st)
	}
	if c.Primary() != c.Secondary() {
		t.Errorf("tiers use separate baselines: %p and %p", c.Primary(), c.Secondary())
	}
	if _, ok := c.Primary().(*sqlite.Store); !ok {
		t.Errorf("primary = %T, want the sqlite baseline", c.Primary())
	}
	if _, err := b.Store(t.Context(), memory.Entry{Content: "served by the substitute primary"}); err != nil {
		t.Errorf("store: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, "hybrid")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	cfg.Remote.Driver = "pinecone"
	cfg.Embedding.Provider = "word2vec"
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected errors")
	}
	for _, want := range []string{"pinecone", "word2vec"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestModuleProvision(t *testing.T) {
	t.Parallel()

	var node yaml.Node
	raw := "backend: sqlite\nembedding:\n  dimensions: 32\n"
	if err := yaml.Unmarshal([]byte(raw), &node); err != nil {
		t.Fatal(err)
	}

	appCtx := core.NewAppContext(slog.New(slog.DiscardHandler), t.TempDir(), t.TempDir()).
		WithModuleConfigs(map[string]yaml.Node{"memory": *node.Content[0]})
	mod, err := appCtx.LoadModule("memory")
	if err != nil {
		t.Fatalf("LoadModule: %v", err)
	}
	m := mod.(*backend.Module)
	t.Cleanup(func() { _ = m.Stop(t.Context()) })

	svc, ok := appCtx.GetService(backend.ServiceBackend)
	if !ok {
		t.Fatal("backend service not registered")
	}
	b := svc.(memory.Backend)
	if b.Kind() != memory.KindBaseline {
		t.Errorf("Kind() = %q", b.Kind())
	}
	if _, ok := appCtx.GetService(backend.ServiceMetrics); !ok {
		t.Error("metrics service not registered")
	}
	if _, ok := appCtx.GetService(backend.ServiceEvents); !ok {
		t.Error("events service not registered")
	}
	if _, ok := appCtx.GetService(backend.ServiceSync); ok {
		t.Error("sync service registered for a non-hybrid backend")
	}
	if got := len(m.Diagnostics()); got != 0 {
		t.Errorf("diagnostics = %d", got)
	}
}
