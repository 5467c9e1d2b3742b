package config

import (
	"cmp"
	"slices"
)

// loadRank orders module namespaces that others depend on. The memory
// module publishes the backend consumed by the gateway.
var loadRank = map[string]int{
	"memory": 0,
}

const defaultRank = 10

// Resolve returns the module IDs from the configuration in load order:
// providers first, then the rest sorted by ID.
func Resolve(cfg *Config) []string {
	ids := make([]string, 0, len(cfg.Modules))
	for id := range cfg.Modules {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b string) int {
		return cmp.Or(cmp.Compare(rank(a), rank(b)), cmp.Compare(a, b))
	})
	return ids
}

func rank(id string) int {
	if r, ok := loadRank[id]; ok {
		return r
	}
	return defaultRank
}
