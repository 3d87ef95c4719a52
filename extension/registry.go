package extension

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Config carries the runtime-wide settings the registry is built with.
type Config struct {
	// HostVersion is the semver host version checked against entity
	// host_version constraints. Empty disables the check for entities
	// that declare no constraint but rejects entities that do.
	HostVersion string

	// DefaultActionTimeout bounds actions on domains that declare no
	// timeout of their own.
	DefaultActionTimeout time.Duration

	// ExclusiveMount keeps a domain to one mounted extension at a time.
	ExclusiveMount bool
}

// Option configures the registry at construction time.
type Option func(*Registry)

// WithContainerSupplier sets the supplier consulted when mounting without
// an explicit container.
func WithContainerSupplier(supplier ContainerSupplier) Option {
	return func(r *Registry) { r.supplier = supplier }
}

// WithLifecycleErrorHandler sets the handler receiving lifecycle hook
// failures.
func WithLifecycleErrorHandler(fn LifecycleErrorHandler) Option {
	return func(r *Registry) { r.lifecycleErr = fn }
}

// WithLoader registers a module loader at construction time.
func WithLoader(loader ModuleLoader) Option {
	return func(r *Registry) { r.initialLoaders = append(r.initialLoaders, loader) }
}

// Registry is the composition root: it wires the manager, mediator,
// lifecycle runner, bridge factory, coordinator, and mount manager
// together and serializes the mutating operations per entity id.
type Registry struct {
	cfg         Config
	manager     *Manager
	mediator    ActionsChainMediator
	lifecycle   LifecycleManager
	mount       MountManager
	factory     BridgeFactory
	coordinator RuntimeCoordinator
	serializer  OperationSerializer
	events      *Emitter
	log         *zap.SugaredLogger

	supplier       ContainerSupplier
	lifecycleErr   LifecycleErrorHandler
	initialLoaders []ModuleLoader
}

// New builds a registry around the given type port.
func New(cfg Config, port TypeSystemPort, log *zap.SugaredLogger, opts ...Option) *Registry {
	if cfg.DefaultActionTimeout <= 0 {
		cfg.DefaultActionTimeout = 5 * time.Second
	}

	r := &Registry{
		cfg: cfg,
		log: log.Named("registry"),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.events = NewEmitter()
	r.serializer = NewOperationSerializer()
	r.coordinator = NewRuntimeCoordinator(log)

	// The manager resolves mediator targets and the lifecycle runner
	// executes hooks through the mediator, so wiring closes a cycle:
	// build the manager first and attach the runner after.
	r.manager = NewManager(port, nil, r.events, cfg.HostVersion, cfg.DefaultActionTimeout, log)
	r.mediator = NewActionsChainMediator(port, r.manager, log)
	r.lifecycle = NewLifecycleManager(r.mediator, r.lifecycleErr, true, log)
	r.manager.lifecycle = r.lifecycle

	r.factory = NewBridgeFactory(r.manager, r.mediator, log)
	r.mount = NewMountManager(r.manager, r.factory, r.coordinator, r.serializer, r.events, cfg.ExclusiveMount, r.supplier, log)
	r.manager.SetUnmounter(r.mount.(*mountManager).Unmounter())

	// The domain cascade unregisters members through the serialized
	// facade path, so it queues behind any in-flight mount on a member
	// instead of racing it.
	r.manager.SetUnregisterer(r.UnregisterExtension)

	for _, loader := range r.initialLoaders {
		r.mount.RegisterLoader(loader)
	}
	return r
}

// RegisterDomain registers an extension point.
func (r *Registry) RegisterDomain(ctx context.Context, domain Domain) error {
	return r.serializer.Serialize(ctx, domain.ID, func(ctx context.Context) error {
		return r.manager.RegisterDomain(ctx, domain)
	})
}

// UnregisterDomain removes a domain and cascade-unregisters its members.
func (r *Registry) UnregisterDomain(ctx context.Context, domainID string) error {
	return r.serializer.Serialize(ctx, domainID, func(ctx context.Context) error {
		return r.manager.UnregisterDomain(ctx, domainID)
	})
}

// RegisterEntry registers an entry contract.
func (r *Registry) RegisterEntry(ctx context.Context, entry Entry) error {
	return r.serializer.Serialize(ctx, entry.ID, func(ctx context.Context) error {
		return r.manager.RegisterEntry(ctx, entry)
	})
}

// RegisterExtension registers an extension against its domain and entry.
func (r *Registry) RegisterExtension(ctx context.Context, ext Extension) error {
	return r.serializer.Serialize(ctx, ext.ID, func(ctx context.Context) error {
		return r.manager.RegisterExtension(ctx, ext)
	})
}

// UnregisterExtension unmounts if needed and removes the extension.
func (r *Registry) UnregisterExtension(ctx context.Context, extensionID string) error {
	return r.serializer.Serialize(ctx, extensionID, func(ctx context.Context) error {
		return r.manager.UnregisterExtension(ctx, extensionID)
	})
}

// DomainState returns a snapshot of one domain's runtime state.
func (r *Registry) DomainState(domainID string) (DomainState, bool) {
	return r.manager.DomainState(domainID)
}

// ExtensionState returns a snapshot of one extension's runtime state.
func (r *Registry) ExtensionState(extensionID string) (ExtensionState, bool) {
	return r.manager.ExtensionState(extensionID)
}

// ExtensionStatesForDomain returns snapshots of a domain's members.
func (r *Registry) ExtensionStatesForDomain(domainID string) []ExtensionState {
	return r.manager.ExtensionStatesForDomain(domainID)
}

// DomainIDs returns every registered domain id in sorted order.
func (r *Registry) DomainIDs() []string {
	return r.manager.DomainIDs()
}

// MountedExtension returns the id of the domain's mounted extension.
func (r *Registry) MountedExtension(domainID string) (string, bool) {
	return r.manager.MountedExtension(domainID)
}

// ParentBridge returns the host-side bridge of a mounted extension.
// Unknown or unmounted extensions report false.
func (r *Registry) ParentBridge(extensionID string) (*HostBridge, bool) {
	state, ok := r.manager.ExtensionState(extensionID)
	if !ok || state.Bridge == nil {
		return nil, false
	}
	return state.Bridge, true
}

// DomainProperty returns the current value of one shared property.
func (r *Registry) DomainProperty(domainID, propertyID string) (SharedProperty, bool) {
	return r.manager.DomainProperty(domainID, propertyID)
}

// UpdateDomainProperty sets one shared property and notifies subscribers.
func (r *Registry) UpdateDomainProperty(domainID string, prop SharedProperty) error {
	return r.manager.UpdateDomainProperty(domainID, prop)
}

// UpdateDomainProperties sets several shared properties in one pass.
func (r *Registry) UpdateDomainProperties(domainID string, props []SharedProperty) error {
	return r.manager.UpdateDomainProperties(domainID, props)
}

// SubscribeProperty watches one shared property.
func (r *Registry) SubscribeProperty(domainID, propertyID string, fn PropertySubscriber) (string, error) {
	return r.manager.SubscribeProperty(domainID, propertyID, fn)
}

// UnsubscribeProperty removes a property subscriber.
func (r *Registry) UnsubscribeProperty(domainID, propertyID, subscriberID string) {
	r.manager.UnsubscribeProperty(domainID, propertyID, subscriberID)
}

// RegisterLoader appends a module loader.
func (r *Registry) RegisterLoader(loader ModuleLoader) {
	r.mount.RegisterLoader(loader)
}

// LoadExtension fetches the extension's module bundle.
func (r *Registry) LoadExtension(ctx context.Context, extensionID string) error {
	return r.mount.LoadExtension(ctx, extensionID)
}

// MountExtension loads if needed and mounts into the container.
func (r *Registry) MountExtension(ctx context.Context, extensionID string, container Container) error {
	return r.mount.MountExtension(ctx, extensionID, container)
}

// UnmountExtension detaches the mounted module.
func (r *Registry) UnmountExtension(ctx context.Context, extensionID string) error {
	return r.mount.UnmountExtension(ctx, extensionID)
}

// ExecuteChain runs an actions chain through the mediator.
func (r *Registry) ExecuteChain(ctx context.Context, chain *ActionsChain) ChainResult {
	return r.mediator.ExecuteChain(ctx, chain)
}

// RegisterActionHandler sets the handler for actions addressed to target.
func (r *Registry) RegisterActionHandler(target string, handler ActionHandler) {
	r.mediator.RegisterHandler(target, handler)
}

// UnregisterActionHandler removes the handler for target.
func (r *Registry) UnregisterActionHandler(target string) {
	r.mediator.UnregisterHandler(target)
}

// RegisterForwardingHandler routes chains targeting target into a relay.
func (r *Registry) RegisterForwardingHandler(target string, relay ChainRelay) {
	r.mediator.RegisterForwardingHandler(target, relay)
}

// UnregisterForwardingHandler removes the relay for target.
func (r *Registry) UnregisterForwardingHandler(target string) {
	r.mediator.UnregisterForwardingHandler(target)
}

// SetDefaultActionHandler sets the fallback handler for registered
// targets with no handler of their own.
func (r *Registry) SetDefaultActionHandler(handler ActionHandler) {
	r.mediator.SetDefaultHandler(handler)
}

// TriggerLifecycleStage runs one extension's hooks for the stage.
func (r *Registry) TriggerLifecycleStage(ctx context.Context, extensionID, stage string) error {
	return r.manager.TriggerStage(ctx, extensionID, stage)
}

// TriggerDomainLifecycleStage runs the stage hooks of every member
// extension of the domain.
func (r *Registry) TriggerDomainLifecycleStage(ctx context.Context, domainID, stage string) error {
	return r.manager.TriggerDomainStage(ctx, domainID, stage)
}

// TriggerDomainOwnLifecycleStage runs the domain's own hooks.
func (r *Registry) TriggerDomainOwnLifecycleStage(ctx context.Context, domainID, stage string) error {
	return r.manager.TriggerDomainOwnStage(ctx, domainID, stage)
}

// Coordinator exposes the container-to-connection coordinator.
func (r *Registry) Coordinator() RuntimeCoordinator {
	return r.coordinator
}

// On subscribes a listener to a registry event and returns its token.
func (r *Registry) On(event Event, fn EventListener) string {
	return r.events.Subscribe(event, fn)
}

// Off removes an event listener by token.
func (r *Registry) Off(event Event, token string) {
	r.events.Unsubscribe(event, token)
}

// Dispose unregisters every domain, cascading through extensions, and
// drops all event listeners.
func (r *Registry) Dispose(ctx context.Context) error {
	var firstErr error
	for _, domainID := range r.manager.DomainIDs() {
		if err := r.UnregisterDomain(ctx, domainID); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	r.events.Clear()
	return firstErr
}
