// Package extension implements the mosaic runtime: named extension points
// ("domains") that host applications expose, and independently built UI
// modules ("extensions") composed into them at runtime.
//
// The package is organized around a few cooperating components:
//
//   - Manager owns domain/extension state and runs the registration and
//     validation pipeline.
//   - MountManager drives the load/mount/unmount state machine.
//   - Mediator resolves action targets and executes branching action
//     chains with timeout and fallback semantics.
//   - BridgeFactory wires the bidirectional host/module channel used for
//     property push and action forwarding.
//   - Coordinator maps a mount container to the bridges living inside it.
//   - Serializer orders all mutating operations per entity id.
//
// Registry is the composition root exposing the public surface.
//
// Type validation, bundle loading, and container supply are consumed as
// narrow ports (TypeSystemPort, ModuleLoader, ContainerSupplier) and never
// implemented here.
package extension
