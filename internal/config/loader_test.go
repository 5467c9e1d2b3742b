package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestExpandEnv(t *testing.T) {
	t.Setenv("MEMORYD_TEST_HOST", "chroma.internal")

	tests := []struct {
		name    string
		in      string
		want    string
		wantErr string
	}{
		{name: "plain", in: "host: ${MEMORYD_TEST_HOST}", want: "host: chroma.internal"},
		{name: "default unused", in: "host: ${MEMORYD_TEST_HOST:-localhost}", want: "host: chroma.internal"},
		{name: "default used", in: "port: ${MEMORYD_TEST_UNSET:-8000}", want: "port: 8000"},
		{name: "empty default", in: "key: ${MEMORYD_TEST_UNSET:-}", want: "key: "},
		{name: "unresolved", in: "key: ${MEMORYD_TEST_UNSET}", wantErr: "MEMORYD_TEST_UNSET"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := expandEnv([]byte(tt.in))
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("err = %v, want mention of %s", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDefault_UsesEnvironment(t *testing.T) {
	t.Setenv("MCP_MEMORY_STORAGE_BACKEND", "hybrid")
	t.Setenv("CHROMADB_PORT", "9000")

	cfg, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	if cfg.Version != "1" {
		t.Errorf("Version = %q", cfg.Version)
	}
	node, ok := cfg.Modules["memory"]
	if !ok {
		t.Fatal("memory module missing from defaults")
	}
	var mem struct {
		Backend  string `yaml:"backend"`
		ChromaDB struct {
			Port int `yaml:"port"`
		} `yaml:"chromadb"`
	}
	if err := node.Decode(&mem); err != nil {
		t.Fatalf("decode memory: %v", err)
	}
	if mem.Backend != "hybrid" {
		t.Errorf("backend = %q, want hybrid", mem.Backend)
	}
	if mem.ChromaDB.Port != 9000 {
		t.Errorf("chromadb.port = %d, want 9000", mem.ChromaDB.Port)
	}
	if cfg.Telemetry.LogLevel != "info" || cfg.Telemetry.ServiceName != "memoryd" {
		t.Errorf("telemetry defaults = %+v", cfg.Telemetry)
	}
}

func TestLoad_File(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), FileName)
	raw := "version: \"1\"\nmodules:\n  memory:\n    backend: sqlite\ntelemetry:\n  log_format: json\n"
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telemetry.LogFormat != "json" {
		t.Errorf("log_format = %q", cfg.Telemetry.LogFormat)
	}
	if cfg.DataDir != "data" {
		t.Errorf("DataDir = %q, want default", cfg.DataDir)
	}
}

func TestLoad_Missing(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestParse_Malformed(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte("version: [\n"), "bad.yaml")
	if err == nil || !strings.Contains(err.Error(), "bad.yaml") {
		t.Fatalf("err = %v, want parse error naming the source", err)
	}
}

func TestFindPath(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Chdir(t.TempDir())

	if p, err := FindPath("explicit.yaml"); err != nil || p != "explicit.yaml" {
		t.Errorf("explicit: got %q, %v", p, err)
	}

	if p, err := FindPath(""); err != nil || p != "" {
		t.Errorf("nothing present: got %q, %v", p, err)
	}

	if err := os.WriteFile(FileName, []byte("version: \"1\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if p, err := FindPath(""); err != nil || p != FileName {
		t.Errorf("working dir: got %q, %v", p, err)
	}

	t.Setenv(EnvConfigPath, "/etc/memoryd/custom.yaml")
	if p, err := FindPath(""); err != nil || p != "/etc/memoryd/custom.yaml" {
		t.Errorf("env: got %q, %v", p, err)
	}
}

func TestResolve_MemoryFirst(t *testing.T) {
	t.Parallel()

	cfg := &Config{Modules: map[string]yaml.Node{
		"gateway.http": {},
		"memory":       {},
		"alpha":        {},
	}}
	got := Resolve(cfg)
	want := []string{"memory", "alpha", "gateway.http"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Resolve() = %v, want %v", got, want)
	}
}
