package sqlite

import (
	"errors"
	"fmt"
	"testing"

	"github.com/Hkesd/mcp-memory-service/internal/memory"
)

func TestVectorEncoding(t *testing.T) {
	t.Parallel()

	in := []float32{0, 1.5, -2.25, 3e-7}
	out := decodeVector(encodeVector(in))
	if len(out) != len(in) {
		t.Fatalf("len = %d, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("out[%d] = %v, want %v", i, out[i], in[i])
		}
	}
}

func TestFTSQuery(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"hello world", `"hello" OR "world"`},
		{`vacuum "OR" (nightly`, `"vacuum" OR "OR" OR "nightly"`},
		{"  ** ", ""},
		{"café-au-lait", `"café" OR "au" OR "lait"`},
	}
	for _, tt := range tests {
		if got := ftsQuery(tt.in); got != tt.want {
			t.Errorf("ftsQuery(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestClassifyPassesThroughPlainErrors(t *testing.T) {
	t.Parallel()

	plain := fmt.Errorf("boom")
	if got := classify(plain); got != plain {
		t.Errorf("classify(plain) = %v, want unchanged", got)
	}
	if classify(nil) != nil {
		t.Error("classify(nil) != nil")
	}
	if errors.Is(classify(plain), memory.ErrTransient) {
		t.Error("plain error classified as transient")
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	cfg := Config{BusyTimeout: -1, MaxRecords: -5}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error")
	}
	cfg = Config{}
	cfg.Defaults("/tmp/x")
	if cfg.Path != "/tmp/x/memory.db" || !cfg.walEnabled() || cfg.BusyTimeout != defaultBusyTimeout {
		t.Errorf("defaults = %+v", cfg)
	}
}
