package extension

import (
	"context"
	"encoding/json"
)

// FieldError is a single per-field validation failure reported by the
// type port.
type FieldError struct {
	Field   string
	Message string
}

// TypeEntity is what the runtime hands to the type port on registration:
// an opaque type id, its schema document, and an optional base type for
// subtype checks.
type TypeEntity struct {
	ID     string
	Schema json.RawMessage
	BaseID string
}

// TypeSystemPort is the pluggable schema/type-validation engine consumed
// by the runtime. Type ids are opaque strings; the runtime never parses
// or builds them.
type TypeSystemPort interface {
	// IsValidTypeID reports whether the id is well-formed
	IsValidTypeID(id string) bool

	// Register records an entity's type and schema
	Register(entity TypeEntity) error

	// ValidateInstance validates an instance against the schema recorded
	// for the id. An empty result means valid.
	ValidateInstance(id string, instance interface{}) []FieldError

	// IsTypeOf reports whether id is baseID or a registered subtype of it
	IsTypeOf(id, baseID string) bool

	// Schema returns the schema document recorded for the id
	Schema(id string) (json.RawMessage, bool)

	// Query returns up to limit registered type ids matching the pattern.
	// limit <= 0 means no limit.
	Query(pattern string, limit int) []string
}

// LoadedModule is the handle a ModuleLoader returns for a fetched bundle.
type LoadedModule interface {
	// Mount attaches the module to a container, handing it the
	// module-side bridge for property access and action dispatch
	Mount(ctx context.Context, container Container, bridge *ModuleBridge) error

	// Unmount detaches the module from the container
	Unmount(ctx context.Context, container Container) error
}

// ModuleLoader fetches bundles for the entries it recognizes. Loaders are
// consulted in registration order; the first whose CanHandle accepts the
// entry id wins.
type ModuleLoader interface {
	CanHandle(entryID string) bool
	Load(ctx context.Context, entry Entry) (LoadedModule, error)
}

// Container is the opaque mount target supplied by the host. Containers
// are compared by identity, so implementations must be comparable.
type Container interface {
	ContainerID() string
}

// ContainerSupplier provides mount containers for extensions when the
// caller does not pass one explicitly.
type ContainerSupplier interface {
	GetContainer(extensionID string) (Container, error)
	ReleaseContainer(extensionID string)
}

// PropertySubscriber receives shared-property updates for one domain
// property.
type PropertySubscriber func(prop SharedProperty)

// ActionHandler executes a single resolved action.
type ActionHandler interface {
	HandleAction(ctx context.Context, action Action) (interface{}, error)
}

// ActionHandlerFunc adapts a function to ActionHandler.
type ActionHandlerFunc func(ctx context.Context, action Action) (interface{}, error)

// HandleAction implements ActionHandler
func (f ActionHandlerFunc) HandleAction(ctx context.Context, action Action) (interface{}, error) {
	return f(ctx, action)
}

// ChainRelay forwards a remaining actions chain across a bridge boundary
// into a nested module's own mediator.
type ChainRelay interface {
	RelayChain(ctx context.Context, chain *ActionsChain) ChainResult
}

// LifecycleFailure describes one hook failure during a stage trigger.
type LifecycleFailure struct {
	EntityID  string
	Stage     string
	HookStage string
	Err       error
}

// LifecycleErrorHandler receives hook failures. Failures never abort the
// stage trigger; this handler is the only place they surface.
type LifecycleErrorHandler func(failure LifecycleFailure)
