// Package backend is the tier router: it resolves the configured backend
// name to a variant and builds it, substituting the baseline store when a
// preferred tier cannot be used.
package backend

import (
	"fmt"
	"strings"

	"github.com/Hkesd/mcp-memory-service/internal/memory"
)

// Variant is one of the closed set of backend shapes.
type Variant int

// Backend variants.
const (
	Baseline Variant = iota
	FastTier
	RemoteTier
	Hybrid
)

func (v Variant) String() string {
	switch v {
	case Baseline:
		return "baseline"
	case FastTier:
		return "fast"
	case RemoteTier:
		return "remote"
	case Hybrid:
		return "hybrid"
	default:
		return fmt.Sprintf("variant(%d)", int(v))
	}
}

// Kind returns the memory.Kind a working instance of v reports.
func (v Variant) Kind() memory.Kind {
	switch v {
	case FastTier:
		return memory.KindFast
	case RemoteTier:
		return memory.KindRemote
	case Hybrid:
		return memory.KindHybrid
	default:
		return memory.KindBaseline
	}
}

// variants maps normalised names to variants.
var variants = map[string]Variant{
	"fast":        FastTier,
	"fast-tier":   FastTier,
	"chromadb":    FastTier,
	"chroma":      FastTier,
	"remote":      RemoteTier,
	"remote-tier": RemoteTier,
	"dashvector":  RemoteTier,
	"qdrant":      RemoteTier,
	"hybrid":      Hybrid,
	"hybrid_plus": Hybrid,
	"baseline":    Baseline,
	"sqlite":      Baseline,
	"sqlite_vec":  Baseline,
	"sqlite-vec":  Baseline,
}

// remoteDrivers maps names that pin a remote driver.
var remoteDrivers = map[string]string{
	"dashvector": DriverDashVector,
	"qdrant":     DriverQdrant,
}

// Remote drivers.
const (
	DriverDashVector = "dashvector"
	DriverQdrant     = "qdrant"
)

// Normalize lowercases and trims a backend name.
func Normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Resolve maps a backend name to its variant. It performs no I/O.
func Resolve(name string) (Variant, error) {
	v, ok := variants[Normalize(name)]
	if !ok {
		return Baseline, fmt.Errorf("%w: %q", memory.ErrUnknownBackend, name)
	}
	return v, nil
}

// Names returns every accepted backend name for v.
func Names(v Variant) []string {
	var out []string
	for name, got := range variants {
		if got == v {
			out = append(out, name)
		}
	}
	return out
}
