package core

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// The registry holds every module compiled into memoryd. Modules add
// themselves from init(); the config validator, the version command and
// the gateway admin views read it.
var (
	registryMu sync.RWMutex
	registry   = make(map[ModuleID]ModuleInfo)
)

// RegisterModule adds a module to the registry. It panics on an invalid or
// duplicate ID because registration only happens from init().
func RegisterModule(instance Module) {
	info := instance.ModuleInfo()
	if err := checkModuleInfo(info); err != nil {
		panic(err.Error())
	}

	registryMu.Lock()
	defer registryMu.Unlock()

	if _, dup := registry[info.ID]; dup {
		panic(fmt.Sprintf("core: module %s registered twice", info.ID))
	}
	registry[info.ID] = info
}

// checkModuleInfo requires an ID usable as a key under modules: in the
// config file ("memory", "gateway.http") and a constructor.
func checkModuleInfo(info ModuleInfo) error {
	id := string(info.ID)
	if id == "" {
		return fmt.Errorf("core: module ID must not be empty")
	}
	for _, part := range strings.Split(id, ".") {
		if part == "" || strings.ContainsAny(part, " \t\n/:") {
			return fmt.Errorf("core: invalid module ID %q", id)
		}
	}
	if info.New == nil {
		return fmt.Errorf("core: module %s has no constructor", id)
	}
	return nil
}

// GetModule returns the ModuleInfo for the given ID, or false if not found.
func GetModule(id string) (ModuleInfo, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	info, ok := registry[ModuleID(id)]
	return info, ok
}

// GetModules returns all registered modules sorted by ID.
func GetModules() []ModuleInfo {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]ModuleInfo, 0, len(registry))
	for _, info := range registry {
		result = append(result, info)
	}
	slices.SortFunc(result, func(a, b ModuleInfo) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return result
}

// ModuleIDs returns the sorted IDs of all registered modules.
func ModuleIDs() []string {
	mods := GetModules()
	ids := make([]string, len(mods))
	for i, m := range mods {
		ids[i] = string(m.ID)
	}
	return ids
}

// resetRegistry clears the registry. Only for testing.
func resetRegistry() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[ModuleID]ModuleInfo)
}
