package core

// ModuleID is a dot-namespaced module identifier, e.g. "gateway.http".
type ModuleID string

// Namespace returns the part before the first dot.
func (id ModuleID) Namespace() string {
	for i := 0; i < len(id); i++ {
		if id[i] == '.' {
			return string(id[:i])
		}
	}
	return string(id)
}

// Name returns the part after the first dot, or the whole ID when it has
// no namespace.
func (id ModuleID) Name() string {
	for i := 0; i < len(id); i++ {
		if id[i] == '.' {
			return string(id[i+1:])
		}
	}
	return string(id)
}

// ModuleInfo describes a registered module.
type ModuleInfo struct {
	// ID uniquely identifies the module.
	ID ModuleID

	// New returns a fresh, unconfigured instance.
	New func() Module
}

// Module is implemented by every pluggable component. Optional lifecycle
// behaviour is added by implementing Configurable, Provisioner, Validator,
// Starter, Stopper or Reloader.
type Module interface {
	ModuleInfo() ModuleInfo
}
