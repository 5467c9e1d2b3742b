package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable that overrides the
// configuration file location.
const EnvConfigPath = "MEMORYD_CONFIG"

// FileName is the configuration file looked up in the working directory
// and the user config directory.
const FileName = "memoryd.yaml"

//go:embed default.yaml
var defaultYAML []byte

// envPattern matches ${VAR} and ${VAR:-default} expressions.
var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-((?:[^}\\]|\\.)*))?\}`)

// Load reads a YAML configuration file, expands environment variables,
// and parses it into a Config struct.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	return Parse(raw, path)
}

// Parse expands environment variables in raw and decodes it. name labels
// errors.
func Parse(raw []byte, name string) (*Config, error) {
	expanded, err := expandEnv(raw)
	if err != nil {
		return nil, fmt.Errorf("config: expanding variables in %s: %w", name, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(expanded, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", name, err)
	}
	cfg.Defaults()
	return &cfg, nil
}

// Default returns the built-in configuration. Its values come from the
// MCP_MEMORY_*, CHROMADB_*, DASHVECTOR_* and QDRANT_* environment
// variables.
func Default() (*Config, error) {
	return Parse(defaultYAML, "built-in defaults")
}

// DefaultYAML returns the raw built-in configuration template.
func DefaultYAML() []byte {
	return append([]byte(nil), defaultYAML...)
}

// FindPath resolves the configuration file. explicit wins when set;
// otherwise $MEMORYD_CONFIG, ./memoryd.yaml and the user config directory
// are tried in order. It returns "" when no file exists.
func FindPath(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p, nil
	}

	candidates := []string{FileName}
	if dir, err := os.UserConfigDir(); err == nil {
		candidates = append(candidates, filepath.Join(dir, "memoryd", FileName))
	}
	for _, p := range candidates {
		_, err := os.Stat(p)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("config: checking %s: %w", p, err)
		}
	}
	return "", nil
}

// LoadOrDefault loads the file FindPath resolves, or the built-in
// configuration when there is none. The returned path is "" for the
// built-in configuration.
func LoadOrDefault(explicit string) (*Config, string, error) {
	path, err := FindPath(explicit)
	if err != nil {
		return nil, "", err
	}
	if path == "" {
		cfg, err := Default()
		return cfg, "", err
	}
	cfg, err := Load(path)
	return cfg, path, err
}

// expandEnv replaces ${VAR} and ${VAR:-default} patterns in raw YAML bytes.
// Returns an error listing all unresolved variables (no default, no env value).
func expandEnv(raw []byte) ([]byte, error) {
	var errs []error
	result := envPattern.ReplaceAllFunc(raw, func(match []byte) []byte {
		subs := envPattern.FindSubmatch(match)
		name := string(subs[1])
		hasDefault := len(subs) > 2 && subs[2] != nil
		defaultVal := ""
		if hasDefault {
			defaultVal = string(subs[2])
		}

		value, ok := os.LookupEnv(name)
		if ok {
			return []byte(value)
		}
		if hasDefault {
			return []byte(defaultVal)
		}
		errs = append(errs, fmt.Errorf("unresolved variable: %s", name))
		return match
	})
	return result, errors.Join(errs...)
}
