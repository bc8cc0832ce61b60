package adapters

import (
	"context"
	"fmt"

	"github.com/leadstack/optimizer-engine/internal/models"
)

// Adapter is the capability interface one external subsystem exposes to the
// orchestrator. Snapshot is the read path and must not mutate subsystem
// state; Command is the write path, invoked only by the automated
// implementer and the rule engine's action dispatch.
type Adapter interface {
	Name() string
	Snapshot(ctx context.Context) (models.AdapterSnapshot, error)
	Command(ctx context.Context, action models.AutomationAction) (models.CommandResult, error)
}

// Registry is the name→adapter map built once at initialization.
type Registry struct {
	order    []string
	adapters map[string]Adapter
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds an adapter under its name; registering the same name twice is
// a wiring bug and returns an error.
func (r *Registry) Register(adapter Adapter) error {
	if adapter == nil {
		return fmt.Errorf("adapter must not be nil")
	}
	name := adapter.Name()
	if name == "" {
		return fmt.Errorf("adapter name must not be empty")
	}
	if _, exists := r.adapters[name]; exists {
		return fmt.Errorf("adapter %q already registered", name)
	}
	r.adapters[name] = adapter
	r.order = append(r.order, name)
	return nil
}

// Get returns the adapter registered under name.
func (r *Registry) Get(name string) (Adapter, bool) {
	adapter, ok := r.adapters[name]
	return adapter, ok
}

// Names returns adapter names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Len reports how many adapters are registered.
func (r *Registry) Len() int { return len(r.adapters) }
