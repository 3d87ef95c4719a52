package extension

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/teranos/mosaic/errors"
)

// MountManager drives the extension load and mount state machine. Every
// public operation is serialized per extension id, so concurrent calls
// against the same extension execute one at a time in arrival order
// while different extensions proceed in parallel.
type MountManager interface {
	// RegisterLoader appends a module loader. Loaders are consulted in
	// registration order.
	RegisterLoader(loader ModuleLoader)

	// LoadExtension fetches the extension's module bundle. Loading an
	// already loaded or in-flight extension is a no-op.
	LoadExtension(ctx context.Context, extensionID string) error

	// MountExtension loads the module if needed and mounts it into the
	// container. A nil container asks the configured supplier for one.
	MountExtension(ctx context.Context, extensionID string, container Container) error

	// UnmountExtension detaches the mounted module and tears down its
	// bridge. Unmounting an unmounted extension is a no-op.
	UnmountExtension(ctx context.Context, extensionID string) error
}

// NewMountManager creates the default mount manager. When exclusive is
// set, a domain holds at most one mounted extension at a time.
func NewMountManager(manager *Manager, factory BridgeFactory, coordinator RuntimeCoordinator, serializer OperationSerializer, events *Emitter, exclusive bool, supplier ContainerSupplier, log *zap.SugaredLogger) MountManager {
	return &mountManager{
		manager:     manager,
		factory:     factory,
		coordinator: coordinator,
		serializer:  serializer,
		events:      events,
		exclusive:   exclusive,
		supplier:    supplier,
		log:         log.Named("mount"),
	}
}

type mountManager struct {
	manager     *Manager
	factory     BridgeFactory
	coordinator RuntimeCoordinator
	serializer  OperationSerializer
	events      *Emitter
	exclusive   bool
	supplier    ContainerSupplier
	log         *zap.SugaredLogger

	loaderMu sync.RWMutex
	loaders  []ModuleLoader
}

func (m *mountManager) RegisterLoader(loader ModuleLoader) {
	m.loaderMu.Lock()
	defer m.loaderMu.Unlock()
	m.loaders = append(m.loaders, loader)
}

func (m *mountManager) LoadExtension(ctx context.Context, extensionID string) error {
	return m.serializer.Serialize(ctx, extensionID, func(ctx context.Context) error {
		return m.doLoad(ctx, extensionID)
	})
}

func (m *mountManager) MountExtension(ctx context.Context, extensionID string, container Container) error {
	return m.serializer.Serialize(ctx, extensionID, func(ctx context.Context) error {
		return m.doMount(ctx, extensionID, container)
	})
}

func (m *mountManager) UnmountExtension(ctx context.Context, extensionID string) error {
	return m.serializer.Serialize(ctx, extensionID, func(ctx context.Context) error {
		return m.doUnmount(ctx, extensionID)
	})
}

// Unmounter returns the non-serialized unmount path for wiring into the
// manager's unregister cascade, which already runs inside a serialized
// facade operation.
func (m *mountManager) Unmounter() func(ctx context.Context, extensionID string) error {
	return m.doUnmount
}

// doLoad runs under the per-extension serializer (or inside a caller
// already holding that slot).
func (m *mountManager) doLoad(ctx context.Context, extensionID string) error {
	rec, started, err := m.manager.beginLoad(extensionID)
	if err != nil {
		return err
	}
	if !started {
		// Already loading or loaded
		return nil
	}

	loader := m.loaderFor(rec.entry.ID)
	if loader == nil {
		err := errors.Newf("no loader handles entry %q for extension %q", rec.entry.ID, extensionID)
		m.manager.failLoad(extensionID, err)
		return err
	}

	module, err := loader.Load(ctx, rec.entry)
	if err != nil {
		err = errors.Wrapf(err, "failed to load module for extension %q", extensionID)
		m.manager.failLoad(extensionID, err)
		return err
	}

	m.manager.completeLoad(extensionID, module)
	m.log.Infow("Extension module loaded",
		"extension_id", extensionID,
		"entry_id", rec.entry.ID,
	)
	m.events.Emit(EventExtensionLoaded, EventData{
		DomainID:    rec.extension.DomainID,
		ExtensionID: extensionID,
		EntryID:     rec.entry.ID,
	})
	return nil
}

func (m *mountManager) loaderFor(entryID string) ModuleLoader {
	m.loaderMu.RLock()
	defer m.loaderMu.RUnlock()
	for _, loader := range m.loaders {
		if loader.CanHandle(entryID) {
			return loader
		}
	}
	return nil
}

func (m *mountManager) doMount(ctx context.Context, extensionID string, container Container) error {
	state, ok := m.manager.ExtensionState(extensionID)
	if !ok {
		return errors.NewNotRegisteredError("extension %q", extensionID)
	}

	// Load first so mount failures from missing bundles surface before
	// the domain slot is reserved.
	if state.LoadState != LoadLoaded {
		if err := m.doLoad(ctx, extensionID); err != nil {
			return err
		}
	}

	rec, err := m.manager.beginMount(extensionID, m.exclusive)
	if err != nil {
		return err
	}

	released := false
	if container == nil {
		if m.supplier == nil {
			err := errors.Newf("no container for extension %q and no container supplier configured", extensionID)
			m.manager.failMount(extensionID, err)
			return err
		}
		container, err = m.supplier.GetContainer(extensionID)
		if err != nil {
			err = errors.Wrapf(err, "failed to obtain container for extension %q", extensionID)
			m.manager.failMount(extensionID, err)
			return err
		}
		defer func() {
			if released {
				m.supplier.ReleaseContainer(extensionID)
			}
		}()
	}

	bridge, err := m.factory.CreateBridge(ctx, extensionID)
	if err != nil {
		m.manager.failMount(extensionID, err)
		released = true
		return err
	}
	bridge.connect(container)

	// The bridge goes into the coordinator before the mount hook runs,
	// so a module resolving its own container mid-mount finds it.
	m.coordinator.Register(container, RuntimeConnection{
		Bridges: map[string]*HostBridge{rec.entry.ID: bridge},
	})

	if err := rec.module.Mount(ctx, container, bridge.Module()); err != nil {
		err = errors.Wrapf(err, "failed to mount extension %q", extensionID)
		m.coordinator.RemoveBridge(container, rec.entry.ID)
		m.manager.failMount(extensionID, err)
		if disposeErr := m.factory.DisposeBridge(ctx, bridge); disposeErr != nil {
			m.log.Warnw("Bridge disposal after failed mount also failed",
				"extension_id", extensionID,
				"error", disposeErr,
			)
		}
		released = true
		return err
	}

	if !m.manager.completeMount(extensionID, bridge, container) {
		// The record vanished while the hook ran. Roll back instead of
		// leaving a live bridge behind for an unregistered extension.
		err := errors.NewNotRegisteredError("extension %q", extensionID)
		m.coordinator.RemoveBridge(container, rec.entry.ID)
		if disposeErr := m.factory.DisposeBridge(ctx, bridge); disposeErr != nil {
			m.log.Warnw("Bridge disposal after abandoned mount failed",
				"extension_id", extensionID,
				"error", disposeErr,
			)
		}
		released = true
		return err
	}

	m.manager.lifecycle.Trigger(ctx, extensionID, rec.extension.Lifecycle, StageActivated)

	m.log.Infow("Extension mounted",
		"extension_id", extensionID,
		"domain_id", rec.extension.DomainID,
		"container_id", container.ContainerID(),
	)
	m.events.Emit(EventExtensionMounted, EventData{
		DomainID:    rec.extension.DomainID,
		ExtensionID: extensionID,
		EntryID:     rec.entry.ID,
	})
	return nil
}

func (m *mountManager) doUnmount(ctx context.Context, extensionID string) error {
	state, ok := m.manager.ExtensionState(extensionID)
	if !ok {
		return errors.NewNotRegisteredError("extension %q", extensionID)
	}
	if state.MountState != MountMounted {
		return nil
	}

	// Modules see the deactivated stage while still mounted.
	m.manager.lifecycle.Trigger(ctx, extensionID, state.Extension.Lifecycle, StageDeactivated)

	var unmountErr error
	if state.Module != nil && state.Container != nil {
		if err := state.Module.Unmount(ctx, state.Container); err != nil {
			unmountErr = errors.Wrapf(err, "failed to unmount extension %q", extensionID)
		}
	}

	// Teardown proceeds even when the module failed to unmount cleanly:
	// the bridge and coordinator entries must not outlive the mount.
	if err := m.factory.DisposeBridge(ctx, state.Bridge); err != nil {
		m.log.Warnw("Bridge disposal during unmount failed",
			"extension_id", extensionID,
			"error", err,
		)
	}
	if state.Container != nil {
		// Only this mount's bridge goes; the container stays registered
		// while other entries still have bridges in it.
		m.coordinator.RemoveBridge(state.Container, state.Entry.ID)
		if m.supplier != nil {
			m.supplier.ReleaseContainer(extensionID)
		}
	}

	if unmountErr != nil {
		m.manager.failMount(extensionID, unmountErr)
		return unmountErr
	}

	m.manager.completeUnmount(extensionID)
	m.log.Infow("Extension unmounted",
		"extension_id", extensionID,
		"domain_id", state.Extension.DomainID,
	)
	m.events.Emit(EventExtensionUnmounted, EventData{
		DomainID:    state.Extension.DomainID,
		ExtensionID: extensionID,
		EntryID:     state.Entry.ID,
	})
	return nil
}
