package main

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"gopkg.in/yaml.v3"

	"github.com/Hkesd/mcp-memory-service/internal/config"
)

// answers collects the choices made in the config wizard.
type answers struct {
	DataDir   string
	Backend   string
	Embedding string
	Model     string

	ChromaHost string
	ChromaPort string

	RemoteDriver string
	Endpoint     string

	SyncInterval string

	Gateway bool
	Bind    string

	LogLevel string
}

func defaultAnswers() answers {
	return answers{
		DataDir:      "data",
		Backend:      "sqlite_vec",
		Embedding:    "hash",
		ChromaHost:   "localhost",
		ChromaPort:   "8000",
		RemoteDriver: "dashvector",
		SyncInterval: "300s",
		Gateway:      true,
		Bind:         "127.0.0.1:8765",
		LogLevel:     "info",
	}
}

func (a *answers) usesFast() bool {
	return a.Backend == "chromadb" || a.Backend == "hybrid"
}

func (a *answers) usesRemote() bool {
	return a.Backend == "remote" || a.Backend == "hybrid"
}

func runWizard(a *answers) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Storage backend").
				Options(
					huh.NewOption("SQLite only (local, always available)", "sqlite_vec"),
					huh.NewOption("ChromaDB fast tier", "chromadb"),
					huh.NewOption("Remote vector service", "remote"),
					huh.NewOption("Hybrid: SQLite primary mirrored to ChromaDB and remote", "hybrid"),
				).
				Value(&a.Backend),
			huh.NewInput().
				Title("Data directory").
				Value(&a.DataDir).
				Validate(notBlank("data directory")),
			huh.NewSelect[string]().
				Title("Embedding provider").
				Options(
					huh.NewOption("Local hashing (offline, no model)", "hash"),
					huh.NewOption("OpenAI", "openai"),
					huh.NewOption("Ollama", "ollama"),
				).
				Value(&a.Embedding),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Embedding model").
				Placeholder("text-embedding-3-small / nomic-embed-text").
				Value(&a.Model),
		).WithHideFunc(func() bool { return a.Embedding == "hash" }),
		huh.NewGroup(
			huh.NewInput().
				Title("ChromaDB host").
				Value(&a.ChromaHost).
				Validate(notBlank("host")),
			huh.NewInput().
				Title("ChromaDB port").
				Value(&a.ChromaPort).
				Validate(validPort),
		).WithHideFunc(func() bool { return !a.usesFast() }),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Remote driver").
				Options(
					huh.NewOption("DashVector", "dashvector"),
					huh.NewOption("Qdrant", "qdrant"),
				).
				Value(&a.RemoteDriver),
			huh.NewInput().
				Title("Remote endpoint").
				Description("API keys are read from DASHVECTOR_API_KEY or QDRANT_API_KEY.").
				Value(&a.Endpoint),
		).WithHideFunc(func() bool { return !a.usesRemote() }),
		huh.NewGroup(
			huh.NewInput().
				Title("Sync interval").
				Value(&a.SyncInterval).
				Validate(notBlank("sync interval")),
		).WithHideFunc(func() bool { return a.Backend != "hybrid" }),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Enable the HTTP gateway?").
				Value(&a.Gateway),
			huh.NewInput().
				Title("Gateway bind address").
				Value(&a.Bind).
				Validate(validBind),
			huh.NewSelect[string]().
				Title("Log level").
				Options(huh.NewOptions("debug", "info", "warn", "error")...).
				Value(&a.LogLevel),
		),
	)
	return form.Run()
}

func notBlank(what string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", what)
		}
		return nil
	}
}

func validPort(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 || n > 65535 {
		return errors.New("port must be between 1 and 65535")
	}
	return nil
}

func validBind(s string) error {
	if _, _, err := net.SplitHostPort(s); err != nil {
		return fmt.Errorf("bind must be host:port: %w", err)
	}
	return nil
}

// fileConfig is the on-disk layout written by the wizard.
type fileConfig struct {
	Version   string                 `yaml:"version"`
	DataDir   string                 `yaml:"data_dir"`
	Modules   map[string]any         `yaml:"modules"`
	Telemetry config.TelemetryConfig `yaml:"telemetry"`
}

// renderConfig turns wizard answers into YAML. Credentials are written as
// environment references so that no secret lands on disk.
func renderConfig(a answers) ([]byte, error) {
	mem := map[string]any{
		"backend": a.Backend,
	}
	embedding := map[string]any{"provider": a.Embedding}
	if a.Model != "" && a.Embedding != "hash" {
		embedding["model"] = a.Model
	}
	if a.Embedding == "openai" {
		embedding["api_key"] = "${OPENAI_API_KEY:-}"
	}
	mem["embedding"] = embedding

	if a.usesFast() {
		port, err := strconv.Atoi(a.ChromaPort)
		if err != nil {
			return nil, fmt.Errorf("chromadb port: %w", err)
		}
		mem["chromadb"] = map[string]any{"host": a.ChromaHost, "port": port}
	}
	if a.usesRemote() {
		mem["remote"] = map[string]any{"driver": a.RemoteDriver}
		switch a.RemoteDriver {
		case "qdrant":
			q := map[string]any{"api_key": "${QDRANT_API_KEY:-}"}
			if a.Endpoint != "" {
				q["url"] = a.Endpoint
			}
			mem["qdrant"] = q
		default:
			mem["dashvector"] = map[string]any{
				"endpoint": a.Endpoint,
				"api_key":  "${DASHVECTOR_API_KEY:-}",
			}
		}
	}
	if a.Backend == "hybrid" {
		mem["hybrid"] = map[string]any{"sync_interval": a.SyncInterval}
	}

	modules := map[string]any{"memory": mem}
	if a.Gateway {
		modules["gateway.http"] = map[string]any{"bind": a.Bind}
	}

	return yaml.Marshal(fileConfig{
		Version: "1",
		DataDir: a.DataDir,
		Modules: modules,
		Telemetry: config.TelemetryConfig{
			LogLevel:  a.LogLevel,
			LogFormat: "text",
		},
	})
}
