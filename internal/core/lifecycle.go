package core

import (
	"context"

	"gopkg.in/yaml.v3"
)

// A module moves through these hooks in order: Configure, Provision,
// Validate, Start, then Stop at shutdown. Reload may run any number of
// times between Start and Stop. Every hook is optional.

// Configurable receives the module's section under modules: in the
// config file, already env-expanded.
type Configurable interface {
	Configure(node *yaml.Node) error
}

// Provisioner sets defaults and publishes services on the AppContext.
// The memory module opens its backend here so later modules can look it
// up by service name.
type Provisioner interface {
	Provision(ctx *AppContext) error
}

// Validator checks the provisioned configuration. It must not mutate
// the module.
type Validator interface {
	Validate() error
}

// Starter begins background work such as listeners and sync schedulers.
type Starter interface {
	Start() error
}

// Stopper releases resources. Modules are stopped in reverse load order,
// so the gateway stops before the backend it serves is closed.
type Stopper interface {
	Stop(ctx context.Context) error
}

// Reloader applies a changed config section without a restart.
type Reloader interface {
	Reload(ctx *AppContext) error
}

// Hooks lists the lifecycle hooks m implements, in call order.
func Hooks(m Module) []string {
	var hooks []string
	if _, ok := m.(Configurable); ok {
		hooks = append(hooks, "configure")
	}
	if _, ok := m.(Provisioner); ok {
		hooks = append(hooks, "provision")
	}
	if _, ok := m.(Validator); ok {
		hooks = append(hooks, "validate")
	}
	if _, ok := m.(Starter); ok {
		hooks = append(hooks, "start")
	}
	if _, ok := m.(Reloader); ok {
		hooks = append(hooks, "reload")
	}
	if _, ok := m.(Stopper); ok {
		hooks = append(hooks, "stop")
	}
	return hooks
}
