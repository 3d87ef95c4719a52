package extension

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/teranos/mosaic/errors"
)

// propertySubscription records one bridge-owned subscription so it can be
// torn down when the bridge is disposed.
type propertySubscription struct {
	domainID   string
	propertyID string
	token      string
}

// HostBridge is the host-side record of one module connection. It tracks
// everything the module wired through its ModuleBridge so DisposeBridge
// can undo it all.
type HostBridge struct {
	mu        sync.Mutex
	disposed  bool
	connected bool

	extensionID string
	domainID    string
	entryID     string
	container   Container

	module        *ModuleBridge
	subscriptions []propertySubscription
	nestedDomains []string
	handlerTarget string
}

// ExtensionID returns the id of the extension this bridge serves.
func (b *HostBridge) ExtensionID() string { return b.extensionID }

// DomainID returns the id of the domain the extension is mounted into.
func (b *HostBridge) DomainID() string { return b.domainID }

// Module returns the module-facing side of the bridge.
func (b *HostBridge) Module() *ModuleBridge { return b.module }

// Container returns the mount target, or nil before connect.
func (b *HostBridge) Container() Container {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.container
}

// connect attaches the bridge to its mount container. Dispatch and
// subscription calls fail with ErrBridgeNotConnected until this runs.
func (b *HostBridge) connect(container Container) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = true
	b.container = container
}

func (b *HostBridge) checkUsable() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.disposed {
		return errors.Wrapf(errors.ErrBridgeDisposed, "extension %q", b.extensionID)
	}
	if !b.connected {
		return errors.Wrapf(errors.ErrBridgeNotConnected, "extension %q", b.extensionID)
	}
	return nil
}

// ModuleBridge is the capability surface handed to a mounted module: read
// and watch the domain's shared properties, dispatch actions through the
// host mediator, receive actions addressed to the extension, and expose
// nested domains of the module's own.
type ModuleBridge struct {
	host     *HostBridge
	manager  *Manager
	mediator ActionsChainMediator
	log      *zap.SugaredLogger

	sendsActions []string
}

// Property returns the current value of one of the domain's shared
// properties.
func (mb *ModuleBridge) Property(propertyID string) (SharedProperty, bool) {
	return mb.manager.DomainProperty(mb.host.domainID, propertyID)
}

// Properties returns a snapshot of every shared property the domain has
// a value for.
func (mb *ModuleBridge) Properties() map[string]SharedProperty {
	state, ok := mb.manager.DomainState(mb.host.domainID)
	if !ok {
		return nil
	}
	return state.Properties
}

// SubscribeProperty watches one shared property. The subscription is
// owned by the bridge and removed automatically on disposal.
func (mb *ModuleBridge) SubscribeProperty(propertyID string, fn PropertySubscriber) (string, error) {
	if err := mb.host.checkUsable(); err != nil {
		return "", err
	}
	token, err := mb.manager.SubscribeProperty(mb.host.domainID, propertyID, fn)
	if err != nil {
		return "", err
	}

	mb.host.mu.Lock()
	mb.host.subscriptions = append(mb.host.subscriptions, propertySubscription{
		domainID:   mb.host.domainID,
		propertyID: propertyID,
		token:      token,
	})
	mb.host.mu.Unlock()
	return token, nil
}

// UnsubscribeProperty drops one bridge-owned subscription early.
func (mb *ModuleBridge) UnsubscribeProperty(propertyID, token string) {
	mb.manager.UnsubscribeProperty(mb.host.domainID, propertyID, token)

	mb.host.mu.Lock()
	for i, sub := range mb.host.subscriptions {
		if sub.token == token {
			mb.host.subscriptions = append(mb.host.subscriptions[:i], mb.host.subscriptions[i+1:]...)
			break
		}
	}
	mb.host.mu.Unlock()
}

// DispatchAction sends one action into the host mediator. The action type
// must be among the entry's declared sends.
func (mb *ModuleBridge) DispatchAction(ctx context.Context, action Action) ChainResult {
	return mb.DispatchChain(ctx, &ActionsChain{Action: action})
}

// DispatchChain sends a full actions chain into the host mediator.
func (mb *ModuleBridge) DispatchChain(ctx context.Context, chain *ActionsChain) ChainResult {
	if err := mb.host.checkUsable(); err != nil {
		return ChainResult{Err: err}
	}
	if chain != nil && len(mb.sendsActions) > 0 && !containsString(mb.sendsActions, chain.Action.Type) {
		return ChainResult{Err: errors.Newf(
			"action %q is not declared by entry %q", chain.Action.Type, mb.host.entryID)}
	}
	return mb.mediator.ExecuteChain(ctx, chain)
}

// HandleActions registers the module's handler for actions addressed to
// the extension id. Replaced on repeat calls, removed on disposal.
func (mb *ModuleBridge) HandleActions(handler ActionHandler) error {
	if err := mb.host.checkUsable(); err != nil {
		return err
	}
	mb.mediator.RegisterHandler(mb.host.extensionID, handler)

	mb.host.mu.Lock()
	mb.host.handlerTarget = mb.host.extensionID
	mb.host.mu.Unlock()
	return nil
}

// RegisterNestedDomain publishes one of the module's own domains into the
// host registry and routes chains targeting it through the relay into the
// module's mediator.
func (mb *ModuleBridge) RegisterNestedDomain(ctx context.Context, domain Domain, relay ChainRelay) error {
	if err := mb.host.checkUsable(); err != nil {
		return err
	}
	if err := mb.manager.RegisterDomain(ctx, domain); err != nil {
		return err
	}
	mb.mediator.RegisterForwardingHandler(domain.ID, relay)

	mb.host.mu.Lock()
	mb.host.nestedDomains = append(mb.host.nestedDomains, domain.ID)
	mb.host.mu.Unlock()

	mb.log.Infow("Nested domain registered through bridge",
		"extension_id", mb.host.extensionID,
		"nested_domain_id", domain.ID,
	)
	return nil
}

// UnregisterNestedDomain removes a nested domain published through this
// bridge.
func (mb *ModuleBridge) UnregisterNestedDomain(ctx context.Context, domainID string) error {
	mb.host.mu.Lock()
	found := false
	for i, id := range mb.host.nestedDomains {
		if id == domainID {
			mb.host.nestedDomains = append(mb.host.nestedDomains[:i], mb.host.nestedDomains[i+1:]...)
			found = true
			break
		}
	}
	mb.host.mu.Unlock()

	if !found {
		return errors.NewNotRegisteredError("nested domain %q on bridge for %q", domainID, mb.host.extensionID)
	}
	mb.mediator.UnregisterForwardingHandler(domainID)
	return mb.manager.UnregisterDomain(ctx, domainID)
}

// BridgeFactory builds and disposes host bridges for mounting extensions.
type BridgeFactory interface {
	CreateBridge(ctx context.Context, extensionID string) (*HostBridge, error)
	DisposeBridge(ctx context.Context, bridge *HostBridge) error
}

// NewBridgeFactory creates the default factory.
func NewBridgeFactory(manager *Manager, mediator ActionsChainMediator, log *zap.SugaredLogger) BridgeFactory {
	return &bridgeFactory{
		manager:  manager,
		mediator: mediator,
		log:      log.Named("bridge"),
	}
}

type bridgeFactory struct {
	manager  *Manager
	mediator ActionsChainMediator
	log      *zap.SugaredLogger
}

// CreateBridge builds a bridge for a registered extension. The bridge is
// unconnected until the mount manager attaches it to a container.
func (f *bridgeFactory) CreateBridge(ctx context.Context, extensionID string) (*HostBridge, error) {
	state, ok := f.manager.ExtensionState(extensionID)
	if !ok {
		return nil, errors.NewNotRegisteredError("extension %q", extensionID)
	}

	bridge := &HostBridge{
		extensionID: extensionID,
		domainID:    state.Extension.DomainID,
		entryID:     state.Entry.ID,
	}
	bridge.module = &ModuleBridge{
		host:         bridge,
		manager:      f.manager,
		mediator:     f.mediator,
		log:          f.log,
		sendsActions: state.Entry.SendsActions,
	}
	return bridge, nil
}

// DisposeBridge tears down everything the module wired through the
// bridge, then marks it disposed. Subscriptions are removed before the
// disposed flag flips so no callback fires on a dead bridge.
func (f *bridgeFactory) DisposeBridge(ctx context.Context, bridge *HostBridge) error {
	if bridge == nil {
		return nil
	}

	bridge.mu.Lock()
	if bridge.disposed {
		bridge.mu.Unlock()
		return nil
	}
	subs := bridge.subscriptions
	nested := bridge.nestedDomains
	handlerTarget := bridge.handlerTarget
	bridge.subscriptions = nil
	bridge.nestedDomains = nil
	bridge.handlerTarget = ""
	bridge.mu.Unlock()

	for _, sub := range subs {
		f.manager.UnsubscribeProperty(sub.domainID, sub.propertyID, sub.token)
	}
	if handlerTarget != "" {
		f.mediator.UnregisterHandler(handlerTarget)
	}
	for _, domainID := range nested {
		f.mediator.UnregisterForwardingHandler(domainID)
		if err := f.manager.UnregisterDomain(ctx, domainID); err != nil {
			f.log.Warnw("Failed to unregister nested domain during bridge disposal",
				"extension_id", bridge.extensionID,
				"nested_domain_id", domainID,
				"error", err,
			)
		}
	}

	bridge.mu.Lock()
	bridge.disposed = true
	bridge.connected = false
	bridge.container = nil
	bridge.mu.Unlock()

	f.log.Debugw("Bridge disposed", "extension_id", bridge.extensionID)
	return nil
}
