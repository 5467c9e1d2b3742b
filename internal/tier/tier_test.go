package tier_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"testing"

	"github.com/Hkesd/mcp-memory-service/internal/memory"
	"github.com/Hkesd/mcp-memory-service/internal/memory/memorytest"
	"github.com/Hkesd/mcp-memory-service/internal/tier"
	"github.com/Hkesd/mcp-memory-service/internal/tier/tiertest"
)

func testDeps(logs *bytes.Buffer) tier.Deps {
	d := tier.Deps{
		Embedder: memorytest.NewEmbedder(),
		Baseline: func() memory.Backend { return memorytest.NewBackend(memory.KindBaseline) },
	}
	if logs != nil {
		d.Logger = slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return d
}

func TestAdapterContract(t *testing.T) {
	t.Parallel()

	memorytest.RunContract(t, func(t *testing.T) memory.Backend {
		b, diag := tier.NewFast(t.Context(), tiertest.NewClient(), testDeps(nil))
		if diag != nil {
			t.Fatalf("unexpected substitution: %v", diag)
		}
		return b
	})
}

func TestNewFastReachable(t *testing.T) {
	t.Parallel()

	b, diag := tier.NewFast(t.Context(), tiertest.NewClient(), testDeps(nil))
	if diag != nil {
		t.Fatalf("diag = %v, want nil", diag)
	}
	if b.Kind() != memory.KindFast {
		t.Errorf("Kind() = %q, want fast", b.Kind())
	}
}

func TestNewFastSubstitutesOnHeartbeatFailure(t *testing.T) {
	t.Parallel()

	var logs bytes.Buffer
	c := tiertest.NewClient()
	c.HeartbeatErr = errors.New("connection refused")

	b, diag := tier.NewFast(t.Context(), c, testDeps(&logs))
	if diag == nil {
		t.Fatal("expected a diagnostic")
	}
	if b.Kind() != memory.KindBaseline {
		t.Errorf("Kind() = %q, want baseline", b.Kind())
	}
	if diag.Tier != memory.KindFast {
		t.Errorf("diag.Tier = %q, want fast", diag.Tier)
	}
	if !errors.Is(diag, memory.ErrBackendUnavailable) {
		t.Errorf("diag cause = %v, want ErrBackendUnavailable", diag.Cause)
	}
	if !strings.Contains(logs.String(), "tier substituted") {
		t.Errorf("logs missing substitution event:\n%s", logs.String())
	}
	if !c.Closed {
		t.Error("unreachable client was not closed")
	}

	// The substitute serves the full contract.
	id, err := b.Store(t.Context(), memory.Entry{Content: "still works"})
	if err != nil {
		t.Fatalf("store on substitute: %v", err)
	}
	if _, err := b.Get(t.Context(), id); err != nil {
		t.Fatalf("get on substitute: %v", err)
	}
}

func TestNewRemoteMissingCredential(t *testing.T) {
	t.Parallel()

	c := tiertest.NewClient()
	c.DriverName = "dashvector"
	c.ConfiguredErr = fmt.Errorf("dashvector: %w: api key is empty", memory.ErrBackendUnavailable)
	c.HeartbeatErr = errors.New("must not be called")

	b, diag := tier.NewRemote(t.Context(), c, testDeps(nil))
	if diag == nil {
		t.Fatal("expected a diagnostic")
	}
	if diag.Driver != "dashvector" || diag.Tier != memory.KindRemote {
		t.Errorf("diag = %+v", diag)
	}
	if b.Kind() != memory.KindBaseline {
		t.Errorf("Kind() = %q, want baseline", b.Kind())
	}
}

func TestNewRemoteReachable(t *testing.T) {
	t.Parallel()

	b, diag := tier.NewRemote(t.Context(), tiertest.NewClient(), testDeps(nil))
	if diag != nil {
		t.Fatalf("diag = %v", diag)
	}
	if b.Kind() != memory.KindRemote {
		t.Errorf("Kind() = %q, want remote", b.Kind())
	}
}

func TestSubstituteFallsBackToInMemory(t *testing.T) {
	t.Parallel()

	d := testDeps(nil)
	d.Baseline = func() memory.Backend {
		mb := memorytest.NewBackend(memory.KindBaseline)
		mb.InitializeFunc = func(context.Context) error { return errors.New("disk full") }
		return mb
	}
	b, diag := tier.Substitute(t.Context(), memory.KindFast, "chromadb", errors.New("down"), d)
	if diag == nil {
		t.Fatal("expected a diagnostic")
	}
	if b.Kind() != memory.KindBaseline {
		t.Errorf("Kind() = %q, want baseline", b.Kind())
	}
	if _, err := b.Store(t.Context(), memory.Entry{Content: "kept in memory"}); err != nil {
		t.Fatalf("store: %v", err)
	}
}

func TestAdapterDimensionMismatch(t *testing.T) {
	t.Parallel()

	c := tiertest.NewClient()
	c.Dimension = 768
	b, diag := tier.NewFast(t.Context(), c, testDeps(nil))
	if diag != nil {
		t.Fatalf("diag = %v", diag)
	}
	_, err := b.Store(t.Context(), memory.Entry{Content: "wrong width"})
	if !errors.Is(err, memory.ErrDimensionMismatch) {
		t.Fatalf("err = %v, want ErrDimensionMismatch", err)
	}
}

func TestAdapterTransientErrors(t *testing.T) {
	t.Parallel()

	c := tiertest.NewClient()
	b, diag := tier.NewFast(t.Context(), c, testDeps(nil))
	if diag != nil {
		t.Fatalf("diag = %v", diag)
	}

	c.Lock()
	c.UpsertErr = tier.MapHTTPError("chromadb", http.StatusServiceUnavailable, "overloaded")
	c.Unlock()

	_, err := b.Store(t.Context(), memory.Entry{Content: "during an outage"})
	if !memory.IsTransient(err) {
		t.Fatalf("err = %v, want transient", err)
	}
}

func TestAdapterRuntimeErrorKinds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"quota", http.StatusInsufficientStorage, memory.ErrCapacity},
		{"credentials", http.StatusUnauthorized, memory.ErrUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := tiertest.NewClient()
			b, diag := tier.NewRemote(t.Context(), c, testDeps(nil))
			if diag != nil {
				t.Fatalf("diag = %v", diag)
			}
			c.Lock()
			c.UpsertErr = tier.MapHTTPError("dashvector", tt.status, "rejected")
			c.Unlock()

			_, err := b.Store(t.Context(), memory.Entry{Content: "rejected write"})
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if memory.IsTransient(err) || errors.Is(err, memory.ErrBackendUnavailable) {
				t.Errorf("err = %v, want a surfaced non-retryable error", err)
			}
		})
	}
}

func TestNewRemoteSubstitutesOnRejectedCredentials(t *testing.T) {
	t.Parallel()

	c := tiertest.NewClient()
	c.EnsureErr = tier.MapHTTPError("qdrant", http.StatusForbidden, "bad key")
	b, diag := tier.NewRemote(t.Context(), c, testDeps(nil))
	if diag == nil {
		t.Fatal("expected substitution")
	}
	if !errors.Is(diag, memory.ErrBackendUnavailable) {
		t.Errorf("cause = %v, want ErrBackendUnavailable", diag.Cause)
	}
	if b.Kind() != memory.KindBaseline {
		t.Errorf("Kind() = %q, want baseline", b.Kind())
	}
}

func TestAdapterSearchFilters(t *testing.T) {
	t.Parallel()

	b, _ := tier.NewFast(t.Context(), tiertest.NewClient(), testDeps(nil))
	ctx := t.Context()
	if _, err := b.Store(ctx, memory.Entry{Content: "alpha note", Tags: []string{"a"}}); err != nil {
		t.Fatal(err)
	}
	want, err := b.Store(ctx, memory.Entry{Content: "alpha note again", Tags: []string{"b"}})
	if err != nil {
		t.Fatal(err)
	}

	results, err := b.Search(ctx, "alpha note", 5, &memory.Filter{Tags: []string{"b"}})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 || results[0].Record.ID != want {
		t.Fatalf("results = %+v, want only %s", results, want)
	}
}

func TestAdapterClosed(t *testing.T) {
	t.Parallel()

	c := tiertest.NewClient()
	b, _ := tier.NewFast(t.Context(), c, testDeps(nil))
	if err := b.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !c.Closed {
		t.Error("client not closed")
	}
	if _, err := b.Get(t.Context(), "x"); !errors.Is(err, memory.ErrClosed) {
		t.Errorf("Get after close: err = %v, want ErrClosed", err)
	}
}

func TestMapHTTPError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status int
		want   error
	}{
		{http.StatusTooManyRequests, memory.ErrTransient},
		{http.StatusBadGateway, memory.ErrTransient},
		{http.StatusUnauthorized, memory.ErrUnauthorized},
		{http.StatusForbidden, memory.ErrUnauthorized},
		{http.StatusNotFound, memory.ErrNotFound},
		{http.StatusInsufficientStorage, memory.ErrCapacity},
		{http.StatusRequestEntityTooLarge, memory.ErrCapacity},
	}
	for _, tt := range tests {
		err := tier.MapHTTPError("x", tt.status, "msg")
		if !errors.Is(err, tt.want) {
			t.Errorf("MapHTTPError(%d) = %v, want %v", tt.status, err, tt.want)
		}
		if tt.want == memory.ErrCapacity && memory.IsTransient(err) {
			t.Errorf("MapHTTPError(%d) = %v, capacity must not be retried", tt.status, err)
		}
		if tt.want == memory.ErrUnauthorized && errors.Is(err, memory.ErrBackendUnavailable) {
			t.Errorf("MapHTTPError(%d) = %v, want no ErrBackendUnavailable", tt.status, err)
		}
	}
	if err := tier.MapHTTPError("x", http.StatusOK, ""); err != nil {
		t.Errorf("MapHTTPError(200) = %v, want nil", err)
	}
	if err := tier.MapHTTPError("x", http.StatusBadRequest, "bad"); err == nil || memory.IsTransient(err) {
		t.Errorf("MapHTTPError(400) = %v, want permanent error", err)
	}
}

func TestMapConnectionError(t *testing.T) {
	t.Parallel()

	opErr := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	if err := tier.MapConnectionError("x", opErr); !errors.Is(err, memory.ErrTransient) {
		t.Errorf("net error = %v, want transient", err)
	}
	if err := tier.MapConnectionError("x", context.Canceled); err != context.Canceled {
		t.Errorf("canceled = %v, want passthrough", err)
	}
	if tier.MapConnectionError("x", nil) != nil {
		t.Error("nil error mapped to non-nil")
	}
}
