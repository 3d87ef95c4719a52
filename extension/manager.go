package extension

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teranos/mosaic/errors"
)

// ExtensionManager owns domain and extension state: the registration and
// validation pipeline, property storage, and the query surface.
type ExtensionManager interface {
	RegisterDomain(ctx context.Context, domain Domain) error
	UnregisterDomain(ctx context.Context, domainID string) error
	RegisterEntry(ctx context.Context, entry Entry) error
	RegisterExtension(ctx context.Context, ext Extension) error
	UnregisterExtension(ctx context.Context, extensionID string) error

	DomainState(domainID string) (DomainState, bool)
	ExtensionState(extensionID string) (ExtensionState, bool)
	ExtensionStatesForDomain(domainID string) []ExtensionState
	Entry(entryID string) (Entry, bool)
	MountedExtension(domainID string) (string, bool)
	SetMountedExtension(domainID, extensionID string) error

	DomainProperty(domainID, propertyID string) (SharedProperty, bool)
	UpdateDomainProperty(domainID string, prop SharedProperty) error
	UpdateDomainProperties(domainID string, props []SharedProperty) error
	SubscribeProperty(domainID, propertyID string, fn PropertySubscriber) (string, error)
	UnsubscribeProperty(domainID, propertyID, subscriberID string)

	TriggerStage(ctx context.Context, extensionID, stage string) error
	TriggerDomainStage(ctx context.Context, domainID, stage string) error
	TriggerDomainOwnStage(ctx context.Context, domainID, stage string) error
}

// domainRecord is the mutable runtime state behind one registered domain.
type domainRecord struct {
	domain      Domain
	properties  map[string]SharedProperty
	members     map[string]struct{}
	subscribers map[string]map[string]PropertySubscriber // property id -> subscriber id -> fn
	mounted     string                                   // mounted member extension id, or ""
}

// extensionRecord is the mutable runtime state behind one registered
// extension.
type extensionRecord struct {
	extension  Extension
	entry      Entry
	bridge     *HostBridge
	container  Container
	module     LoadedModule
	loadState  LoadState
	mountState MountState
	lastErr    error
}

func (r *extensionRecord) snapshot() ExtensionState {
	return ExtensionState{
		Extension:  r.extension,
		Entry:      r.entry,
		LoadState:  r.loadState,
		MountState: r.mountState,
		Bridge:     r.bridge,
		Container:  r.container,
		Module:     r.module,
		LastErr:    r.lastErr,
	}
}

// Manager is the default ExtensionManager implementation.
type Manager struct {
	mu         sync.RWMutex
	domains    map[string]*domainRecord
	extensions map[string]*extensionRecord
	entries    map[string]Entry

	port           TypeSystemPort
	lifecycle      LifecycleManager
	events         *Emitter
	log            *zap.SugaredLogger
	hostVersion    string
	defaultTimeout time.Duration

	// unmounter detaches a mounted extension before it is unregistered.
	// Wired by the composition root; nil in isolated tests.
	unmounter func(ctx context.Context, extensionID string) error

	// unregisterer is the serialized unregister path the domain cascade
	// uses so it queues behind in-flight mount operations on each member.
	// Wired by the composition root; nil falls back to the direct call.
	unregisterer func(ctx context.Context, extensionID string) error
}

// NewManager creates the default manager. hostVersion gates entities
// declaring a host_version constraint; defaultTimeout bounds actions on
// domains that declare no timeout of their own.
func NewManager(port TypeSystemPort, lifecycle LifecycleManager, events *Emitter, hostVersion string, defaultTimeout time.Duration, log *zap.SugaredLogger) *Manager {
	return &Manager{
		domains:        make(map[string]*domainRecord),
		extensions:     make(map[string]*extensionRecord),
		entries:        make(map[string]Entry),
		port:           port,
		lifecycle:      lifecycle,
		events:         events,
		hostVersion:    hostVersion,
		defaultTimeout: defaultTimeout,
		log:            log.Named("manager"),
	}
}

// SetUnmounter wires the mount manager's unmount path used when a
// mounted extension is unregistered.
func (m *Manager) SetUnmounter(fn func(ctx context.Context, extensionID string) error) {
	m.unmounter = fn
}

// SetUnregisterer wires the per-extension serialized unregister path
// used by the domain cascade.
func (m *Manager) SetUnregisterer(fn func(ctx context.Context, extensionID string) error) {
	m.unregisterer = fn
}

// RegisterDomain validates and commits a domain, then fires its init
// stage without awaiting it. Failed validation leaves no state behind.
func (m *Manager) RegisterDomain(ctx context.Context, domain Domain) error {
	if err := m.checkHostVersion(domain.ID, domain.Metadata); err != nil {
		return err
	}

	if err := m.port.Register(TypeEntity{ID: domain.ID}); err != nil {
		return errors.Wrapf(err, "failed to register domain type %q", domain.ID)
	}
	if fields := m.port.ValidateInstance(domain.ID, domain); len(fields) > 0 {
		return &DomainValidationError{DomainID: domain.ID, Fields: fields}
	}

	for _, hook := range domain.Lifecycle {
		if !containsString(domain.LifecycleStages, hook.Stage) {
			return &UnsupportedLifecycleStageError{
				EntityID:  domain.ID,
				Stage:     hook.Stage,
				Supported: domain.LifecycleStages,
			}
		}
	}

	if domain.DefaultActionTimeout <= 0 {
		domain.DefaultActionTimeout = m.defaultTimeout
	}

	m.mu.Lock()
	if _, exists := m.domains[domain.ID]; exists {
		m.mu.Unlock()
		return errors.Wrapf(errors.ErrAlreadyRegistered, "domain %q", domain.ID)
	}
	m.domains[domain.ID] = &domainRecord{
		domain:      domain,
		properties:  make(map[string]SharedProperty),
		members:     make(map[string]struct{}),
		subscribers: make(map[string]map[string]PropertySubscriber),
	}
	m.mu.Unlock()

	m.log.Infow("Domain registered",
		"domain_id", domain.ID,
		"shared_properties", len(domain.SharedProperties),
	)

	// Registration is synchronous from the caller's perspective; the
	// init stage runs detached and its failures surface only through
	// the lifecycle error handler.
	hooks := domain.Lifecycle
	go m.lifecycle.Trigger(context.WithoutCancel(ctx), domain.ID, hooks, StageInit)

	m.events.Emit(EventDomainRegistered, EventData{DomainID: domain.ID})
	return nil
}

// UnregisterDomain cascade-unregisters every member extension, awaits the
// domain's destroyed stage, and removes the domain. Unknown ids are a
// silent no-op.
func (m *Manager) UnregisterDomain(ctx context.Context, domainID string) error {
	m.mu.RLock()
	rec, ok := m.domains[domainID]
	var members []string
	if ok {
		members = make([]string, 0, len(rec.members))
		for id := range rec.members {
			members = append(members, id)
		}
	}
	m.mu.RUnlock()

	if !ok {
		return nil
	}

	// Deterministic cascade order. Each member is unregistered through
	// the serialized path, so a mount already in flight on a member
	// finishes (and is then torn down) before its record is removed.
	unregister := m.unregisterer
	if unregister == nil {
		unregister = m.UnregisterExtension
	}
	sort.Strings(members)
	for _, extensionID := range members {
		if err := unregister(ctx, extensionID); err != nil {
			m.log.Warnw("Cascade unregister failed for member extension",
				"domain_id", domainID,
				"extension_id", extensionID,
				"error", err,
			)
		}
	}

	m.lifecycle.Trigger(ctx, domainID, rec.domain.Lifecycle, StageDestroyed)

	m.mu.Lock()
	delete(m.domains, domainID)
	m.mu.Unlock()

	m.log.Infow("Domain unregistered", "domain_id", domainID)
	m.events.Emit(EventDomainUnregistered, EventData{DomainID: domainID})
	return nil
}

// RegisterEntry validates and commits an entry contract.
func (m *Manager) RegisterEntry(ctx context.Context, entry Entry) error {
	if err := m.port.Register(TypeEntity{ID: entry.ID}); err != nil {
		return errors.Wrapf(err, "failed to register entry type %q", entry.ID)
	}
	if fields := m.port.ValidateInstance(entry.ID, entry); len(fields) > 0 {
		return &ExtensionValidationError{ExtensionID: entry.ID, Fields: fields}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.entries[entry.ID]; exists {
		return errors.Wrapf(errors.ErrAlreadyRegistered, "entry %q", entry.ID)
	}
	m.entries[entry.ID] = entry
	return nil
}

// RegisterExtension runs the sequential validation gate, commits state
// only after every check passes, then awaits the extension's init stage.
func (m *Manager) RegisterExtension(ctx context.Context, ext Extension) error {
	if err := m.checkHostVersion(ext.ID, ext.Metadata); err != nil {
		return err
	}

	// Gate 1: schema validation
	if err := m.port.Register(TypeEntity{ID: ext.ID}); err != nil {
		return errors.Wrapf(err, "failed to register extension type %q", ext.ID)
	}
	if fields := m.port.ValidateInstance(ext.ID, ext); len(fields) > 0 {
		return &ExtensionValidationError{ExtensionID: ext.ID, Fields: fields}
	}

	m.mu.RLock()
	domainRec, domainOK := m.domains[ext.DomainID]
	entry, entryOK := m.entries[ext.EntryID]
	_, duplicate := m.extensions[ext.ID]
	m.mu.RUnlock()

	if duplicate {
		return errors.Wrapf(errors.ErrAlreadyRegistered, "extension %q", ext.ID)
	}

	// Gate 2: domain and entry existence
	if !domainOK {
		return errors.NewNotRegisteredError("domain %q referenced by extension %q", ext.DomainID, ext.ID)
	}
	if !entryOK {
		return errors.NewNotRegisteredError("entry %q referenced by extension %q", ext.EntryID, ext.ID)
	}
	domain := domainRec.domain

	// Gate 3: entry/domain contract
	if err := checkContract(ext, domain, entry); err != nil {
		return err
	}

	// Gate 4: subtype constraint
	if domain.RequiredExtensionType != "" && !m.port.IsTypeOf(ext.ID, domain.RequiredExtensionType) {
		return &ExtensionTypeError{
			ExtensionID:  ext.ID,
			DomainID:     domain.ID,
			RequiredType: domain.RequiredExtensionType,
		}
	}

	// Gate 5: hook stages
	for _, hook := range ext.Lifecycle {
		if !containsString(domain.ExtensionLifecycleStages, hook.Stage) {
			return &UnsupportedLifecycleStageError{
				EntityID:  ext.ID,
				Stage:     hook.Stage,
				Supported: domain.ExtensionLifecycleStages,
			}
		}
	}

	m.mu.Lock()
	// Re-check under the write lock; a concurrent registration may have
	// won the race between the gates and the commit.
	if _, exists := m.extensions[ext.ID]; exists {
		m.mu.Unlock()
		return errors.Wrapf(errors.ErrAlreadyRegistered, "extension %q", ext.ID)
	}
	m.extensions[ext.ID] = &extensionRecord{
		extension:  ext,
		entry:      entry,
		loadState:  LoadIdle,
		mountState: MountUnmounted,
	}
	domainRec.members[ext.ID] = struct{}{}
	m.mu.Unlock()

	m.log.Infow("Extension registered",
		"extension_id", ext.ID,
		"domain_id", ext.DomainID,
		"entry_id", ext.EntryID,
	)

	// Unlike domains, the extension init stage is awaited.
	m.lifecycle.Trigger(ctx, ext.ID, ext.Lifecycle, StageInit)

	m.events.Emit(EventExtensionRegistered, EventData{
		DomainID:    ext.DomainID,
		ExtensionID: ext.ID,
		EntryID:     ext.EntryID,
	})
	return nil
}

// UnregisterExtension auto-unmounts the extension if mounted, awaits its
// destroyed stage, and removes it from its domain and the registry.
// Unknown ids are a silent no-op.
func (m *Manager) UnregisterExtension(ctx context.Context, extensionID string) error {
	m.mu.RLock()
	rec, ok := m.extensions[extensionID]
	var ext Extension
	var mounted bool
	if ok {
		ext = rec.extension
		mounted = rec.mountState == MountMounted || rec.mountState == MountMounting
	}
	m.mu.RUnlock()

	if !ok {
		return nil
	}

	if mounted && m.unmounter != nil {
		if err := m.unmounter(ctx, extensionID); err != nil {
			// Teardown stays best-effort: the extension is removed even
			// when its module failed to unmount cleanly.
			m.log.Warnw("Auto-unmount during unregister failed",
				"extension_id", extensionID,
				"error", err,
			)
		}
	}

	m.lifecycle.Trigger(ctx, extensionID, ext.Lifecycle, StageDestroyed)

	m.mu.Lock()
	if domainRec, exists := m.domains[ext.DomainID]; exists {
		delete(domainRec.members, extensionID)
		if domainRec.mounted == extensionID {
			domainRec.mounted = ""
		}
	}
	delete(m.extensions, extensionID)
	m.mu.Unlock()

	m.log.Infow("Extension unregistered", "extension_id", extensionID)
	m.events.Emit(EventExtensionUnregistered, EventData{
		DomainID:    ext.DomainID,
		ExtensionID: extensionID,
		EntryID:     ext.EntryID,
	})
	return nil
}

// DomainState returns a snapshot of the domain's runtime state.
func (m *Manager) DomainState(domainID string) (DomainState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.domains[domainID]
	if !ok {
		return DomainState{}, false
	}
	return rec.snapshotLocked(), true
}

func (r *domainRecord) snapshotLocked() DomainState {
	props := make(map[string]SharedProperty, len(r.properties))
	for id, p := range r.properties {
		props[id] = p
	}
	members := make([]string, 0, len(r.members))
	for id := range r.members {
		members = append(members, id)
	}
	sort.Strings(members)
	return DomainState{
		Domain:           r.domain,
		Properties:       props,
		Extensions:       members,
		MountedExtension: r.mounted,
	}
}

// ExtensionState returns a snapshot of the extension's runtime state.
func (m *Manager) ExtensionState(extensionID string) (ExtensionState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.extensions[extensionID]
	if !ok {
		return ExtensionState{}, false
	}
	return rec.snapshot(), true
}

// ExtensionStatesForDomain returns snapshots of every member extension,
// sorted by id.
func (m *Manager) ExtensionStatesForDomain(domainID string) []ExtensionState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.domains[domainID]
	if !ok {
		return nil
	}
	states := make([]ExtensionState, 0, len(rec.members))
	ids := make([]string, 0, len(rec.members))
	for id := range rec.members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if extRec, exists := m.extensions[id]; exists {
			states = append(states, extRec.snapshot())
		}
	}
	return states
}

// Entry returns the entry contract registered under the id.
func (m *Manager) Entry(entryID string) (Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.entries[entryID]
	return entry, ok
}

// MountedExtension returns the id of the domain's mounted extension.
func (m *Manager) MountedExtension(domainID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.domains[domainID]
	if !ok || rec.mounted == "" {
		return "", false
	}
	return rec.mounted, true
}

// SetMountedExtension records which member extension occupies the
// domain's mount slot. An empty extension id clears the slot. Hosts that
// drive mounting outside the MountManager use this to keep the domain
// snapshot truthful.
func (m *Manager) SetMountedExtension(domainID, extensionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.domains[domainID]
	if !ok {
		return errors.NewNotRegisteredError("domain %q", domainID)
	}
	if extensionID != "" {
		if _, member := rec.members[extensionID]; !member {
			return errors.NewNotRegisteredError("extension %q in domain %q", extensionID, domainID)
		}
	}
	rec.mounted = extensionID
	return nil
}

// DomainProperty returns the current value of one shared property.
func (m *Manager) DomainProperty(domainID, propertyID string) (SharedProperty, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.domains[domainID]
	if !ok {
		return SharedProperty{}, false
	}
	prop, ok := rec.properties[propertyID]
	return prop, ok
}

// UpdateDomainProperty sets one shared property and notifies every
// subscriber. The mutation is applied atomically; subscribers observe
// either the old or the new value, never a partial update.
func (m *Manager) UpdateDomainProperty(domainID string, prop SharedProperty) error {
	return m.UpdateDomainProperties(domainID, []SharedProperty{prop})
}

// UpdateDomainProperties sets several shared properties in one pass.
func (m *Manager) UpdateDomainProperties(domainID string, props []SharedProperty) error {
	m.mu.Lock()
	rec, ok := m.domains[domainID]
	if !ok {
		m.mu.Unlock()
		return errors.NewNotRegisteredError("domain %q", domainID)
	}

	type delivery struct {
		prop SharedProperty
		subs []PropertySubscriber
	}
	deliveries := make([]delivery, 0, len(props))

	for _, prop := range props {
		if !containsString(rec.domain.SharedProperties, prop.ID) {
			m.mu.Unlock()
			return errors.Newf("property %q is not shared by domain %q", prop.ID, domainID)
		}
		rec.properties[prop.ID] = prop

		subs := make([]PropertySubscriber, 0, len(rec.subscribers[prop.ID]))
		for _, fn := range rec.subscribers[prop.ID] {
			subs = append(subs, fn)
		}
		deliveries = append(deliveries, delivery{prop: prop, subs: subs})
	}
	m.mu.Unlock()

	for _, d := range deliveries {
		for _, fn := range d.subs {
			fn(d.prop)
		}
	}
	return nil
}

// SubscribeProperty registers a callback for updates of one shared
// property and returns the subscriber token used for removal.
func (m *Manager) SubscribeProperty(domainID, propertyID string, fn PropertySubscriber) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.domains[domainID]
	if !ok {
		return "", errors.NewNotRegisteredError("domain %q", domainID)
	}
	if !containsString(rec.domain.SharedProperties, propertyID) {
		return "", errors.Newf("property %q is not shared by domain %q", propertyID, domainID)
	}

	id := uuid.NewString()
	if rec.subscribers[propertyID] == nil {
		rec.subscribers[propertyID] = make(map[string]PropertySubscriber)
	}
	rec.subscribers[propertyID][id] = fn
	return id, nil
}

// UnsubscribeProperty removes a property subscriber. Unknown tokens are
// a no-op.
func (m *Manager) UnsubscribeProperty(domainID, propertyID, subscriberID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.domains[domainID]
	if !ok {
		return
	}
	if subs := rec.subscribers[propertyID]; subs != nil {
		delete(subs, subscriberID)
		if len(subs) == 0 {
			delete(rec.subscribers, propertyID)
		}
	}
}

// TriggerStage runs one extension's hooks for the stage.
func (m *Manager) TriggerStage(ctx context.Context, extensionID, stage string) error {
	m.mu.RLock()
	rec, ok := m.extensions[extensionID]
	var hooks []LifecycleHook
	if ok {
		hooks = rec.extension.Lifecycle
	}
	m.mu.RUnlock()

	if !ok {
		return errors.NewNotRegisteredError("extension %q", extensionID)
	}
	m.lifecycle.Trigger(ctx, extensionID, hooks, stage)
	return nil
}

// TriggerDomainStage runs the stage hooks of every member extension, in
// sorted id order.
func (m *Manager) TriggerDomainStage(ctx context.Context, domainID, stage string) error {
	m.mu.RLock()
	rec, ok := m.domains[domainID]
	var members []string
	if ok {
		for id := range rec.members {
			members = append(members, id)
		}
	}
	m.mu.RUnlock()

	if !ok {
		return errors.NewNotRegisteredError("domain %q", domainID)
	}
	sort.Strings(members)
	for _, extensionID := range members {
		if err := m.TriggerStage(ctx, extensionID, stage); err != nil {
			return err
		}
	}
	return nil
}

// TriggerDomainOwnStage runs the domain's own hooks for the stage.
func (m *Manager) TriggerDomainOwnStage(ctx context.Context, domainID, stage string) error {
	m.mu.RLock()
	rec, ok := m.domains[domainID]
	var hooks []LifecycleHook
	if ok {
		hooks = rec.domain.Lifecycle
	}
	m.mu.RUnlock()

	if !ok {
		return errors.NewNotRegisteredError("domain %q", domainID)
	}
	m.lifecycle.Trigger(ctx, domainID, hooks, stage)
	return nil
}

// TargetRegistered implements TargetResolver for the mediator.
func (m *Manager) TargetRegistered(target string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.domains[target]; ok {
		return true
	}
	_, ok := m.extensions[target]
	return ok
}

// TargetTimeout implements TargetResolver: a domain's declared default,
// an extension's domain default, or the registry-wide fallback.
func (m *Manager) TargetTimeout(target string) time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if rec, ok := m.domains[target]; ok && rec.domain.DefaultActionTimeout > 0 {
		return rec.domain.DefaultActionTimeout
	}
	if rec, ok := m.extensions[target]; ok {
		if domainRec, exists := m.domains[rec.extension.DomainID]; exists && domainRec.domain.DefaultActionTimeout > 0 {
			return domainRec.domain.DefaultActionTimeout
		}
	}
	return m.defaultTimeout
}

// DomainIDs returns every registered domain id in sorted order.
func (m *Manager) DomainIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.domains))
	for id := range m.domains {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// checkHostVersion enforces a metadata host_version semver constraint.
func (m *Manager) checkHostVersion(entityID string, meta Metadata) error {
	if meta.HostVersion == "" {
		return nil
	}
	host, err := semver.NewVersion(m.hostVersion)
	if err != nil {
		return errors.Wrapf(err, "invalid host version %q", m.hostVersion)
	}
	constraint, err := semver.NewConstraint(meta.HostVersion)
	if err != nil {
		return errors.Wrapf(err, "invalid host_version constraint %q on %q", meta.HostVersion, entityID)
	}
	if !constraint.Check(host) {
		return errors.Newf("%q requires host %s, but running %s", entityID, meta.HostVersion, m.hostVersion)
	}
	return nil
}

// checkContract verifies the entry's contract against the domain's
// declarations.
func checkContract(ext Extension, domain Domain, entry Entry) error {
	var missing, badSends, badReceives []string

	for _, prop := range entry.RequiredProperties {
		if !containsString(domain.SharedProperties, prop) {
			missing = append(missing, prop)
		}
	}
	for _, action := range entry.SendsActions {
		if !containsString(domain.ExtensionActions, action) {
			badSends = append(badSends, action)
		}
	}
	for _, action := range entry.ReceivesActions {
		if !containsString(domain.AcceptedActions, action) {
			badReceives = append(badReceives, action)
		}
	}

	if len(missing) > 0 || len(badSends) > 0 || len(badReceives) > 0 {
		return &ContractValidationError{
			ExtensionID:         ext.ID,
			DomainID:            domain.ID,
			EntryID:             entry.ID,
			MissingProperties:   missing,
			UnsupportedSends:    badSends,
			UnsupportedReceives: badReceives,
		}
	}
	return nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Mount-state transitions below are driven by the MountManager; they
// live here because the Manager owns the records.

// beginLoad moves idle/error to loading. Returns false when the
// extension is already loading or loaded.
func (m *Manager) beginLoad(extensionID string) (extensionRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.extensions[extensionID]
	if !ok {
		return extensionRecord{}, false, errors.NewNotRegisteredError("extension %q", extensionID)
	}
	if rec.loadState == LoadLoading || rec.loadState == LoadLoaded {
		return *rec, false, nil
	}
	rec.loadState = LoadLoading
	rec.lastErr = nil
	return *rec, true, nil
}

func (m *Manager) completeLoad(extensionID string, module LoadedModule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.extensions[extensionID]; ok {
		rec.loadState = LoadLoaded
		rec.module = module
		rec.lastErr = nil
	}
}

func (m *Manager) failLoad(extensionID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.extensions[extensionID]; ok {
		rec.loadState = LoadError
		rec.lastErr = err
	}
}

// beginMount validates mountability, reserves the domain slot when
// exclusive mounting is on, and moves the extension to mounting.
func (m *Manager) beginMount(extensionID string, exclusive bool) (extensionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.extensions[extensionID]
	if !ok {
		return extensionRecord{}, errors.NewNotRegisteredError("extension %q", extensionID)
	}
	switch rec.mountState {
	case MountMounted:
		return extensionRecord{}, errors.Wrapf(errors.ErrAlreadyMounted, "extension %q", extensionID)
	case MountMounting:
		return extensionRecord{}, errors.Wrapf(errors.ErrAlreadyMounting, "extension %q", extensionID)
	}

	domainRec, ok := m.domains[rec.extension.DomainID]
	if !ok {
		return extensionRecord{}, errors.NewNotRegisteredError("domain %q", rec.extension.DomainID)
	}
	if exclusive && domainRec.mounted != "" && domainRec.mounted != extensionID {
		return extensionRecord{}, errors.Wrapf(errors.ErrDomainOccupied,
			"domain %q is occupied by %q", domainRec.domain.ID, domainRec.mounted)
	}

	rec.mountState = MountMounting
	rec.lastErr = nil
	domainRec.mounted = extensionID
	return *rec, nil
}

// completeMount reports false when the record no longer exists, so the
// mount path can roll back instead of committing against a dead record.
func (m *Manager) completeMount(extensionID string, bridge *HostBridge, container Container) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.extensions[extensionID]
	if !ok {
		return false
	}
	rec.mountState = MountMounted
	rec.bridge = bridge
	rec.container = container
	rec.lastErr = nil
	return true
}

// failMount records the causing error and releases the domain slot.
func (m *Manager) failMount(extensionID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.extensions[extensionID]
	if !ok {
		return
	}
	rec.mountState = MountError
	rec.lastErr = err
	if domainRec, exists := m.domains[rec.extension.DomainID]; exists && domainRec.mounted == extensionID {
		domainRec.mounted = ""
	}
}

func (m *Manager) completeUnmount(extensionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.extensions[extensionID]
	if !ok {
		return
	}
	rec.mountState = MountUnmounted
	rec.bridge = nil
	rec.container = nil
	rec.lastErr = nil
	if domainRec, exists := m.domains[rec.extension.DomainID]; exists && domainRec.mounted == extensionID {
		domainRec.mounted = ""
	}
}

var _ ExtensionManager = (*Manager)(nil)
var _ TargetResolver = (*Manager)(nil)
