package config

import (
	"errors"
	"fmt"
	"strings"
	"slices"

	"github.com/Hkesd/mcp-memory-service/internal/core"
)

var (
	logLevels  = []string{"debug", "info", "warn", "error"}
	logFormats = []string{"text", "json"}
)

// Validate checks the structural validity of a Config.
// It verifies the version field, ensures modules are present,
// checks that all referenced module IDs exist in the registry
// and that telemetry settings are recognised. Module-specific settings
// are validated by each module.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	if len(cfg.Modules) == 0 {
		errs = append(errs, errors.New("config: at least one module must be configured"))
	}

	for id := range cfg.Modules {
		if _, ok := core.GetModule(id); !ok {
			errs = append(errs, fmt.Errorf("config: unknown module %q (compiled in: %s)",
				id, strings.Join(core.ModuleIDs(), ", ")))
		}
	}

	errs = append(errs, validateTelemetry(cfg.Telemetry)...)

	return errors.Join(errs...)
}

func validateTelemetry(t TelemetryConfig) []error {
	var errs []error
	if t.LogLevel != "" && !slices.Contains(logLevels, t.LogLevel) {
		errs = append(errs, fmt.Errorf("config: telemetry.log_level %q must be one of %v", t.LogLevel, logLevels))
	}
	if t.LogFormat != "" && !slices.Contains(logFormats, t.LogFormat) {
		errs = append(errs, fmt.Errorf("config: telemetry.log_format %q must be one of %v", t.LogFormat, logFormats))
	}
	return errs
}
