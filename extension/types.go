package extension

import (
	"time"
)

// Canonical lifecycle stage ids. Domains may declare additional stages;
// these are the ones the runtime triggers itself.
const (
	StageInit        = "init"
	StageActivated   = "activated"
	StageDeactivated = "deactivated"
	StageDestroyed   = "destroyed"
)

// Metadata describes a registered domain or extension
type Metadata struct {
	// Version is the entity version (semver)
	Version string

	// HostVersion is the required mosaic host version (semver constraint).
	// Empty means no constraint.
	HostVersion string

	// Description is a human-readable description
	Description string

	// Author is the contributing team or maintainer
	Author string

	// License is the entity license (e.g., "MIT", "Apache-2.0")
	License string
}

// Domain is a named extension point a host exposes. It declares which
// properties it shares with mounted modules and which actions flow in
// and out.
type Domain struct {
	// ID is the opaque type id of the domain
	ID string

	// SharedProperties lists the property ids the domain pushes to
	// mounted modules
	SharedProperties []string

	// AcceptedActions lists action type ids the domain accepts
	AcceptedActions []string

	// ExtensionActions lists action type ids member extensions may send
	// to the domain
	ExtensionActions []string

	// DefaultActionTimeout bounds each action-chain step targeting this
	// domain unless the action carries its own timeout. Zero falls back
	// to the registry-wide default.
	DefaultActionTimeout time.Duration

	// LifecycleStages lists the stage ids valid for the domain's own hooks
	LifecycleStages []string

	// ExtensionLifecycleStages lists the stage ids valid for member
	// extension hooks
	ExtensionLifecycleStages []string

	// RequiredExtensionType, when set, constrains member extension ids to
	// subtypes of this type id (checked through the type port)
	RequiredExtensionType string

	// Lifecycle holds the domain's own stage hooks
	Lifecycle []LifecycleHook

	Metadata Metadata
}

// Entry is the contract a pluggable module implements: the properties it
// needs and the actions it exchanges with its domain.
type Entry struct {
	// ID is the opaque type id of the entry
	ID string

	// RequiredProperties must all be declared by the hosting domain
	RequiredProperties []string

	// OptionalProperties are forwarded when the domain declares them
	OptionalProperties []string

	// SendsActions lists action type ids the module may send
	SendsActions []string

	// ReceivesActions lists action type ids the module handles
	ReceivesActions []string
}

// Extension binds one Entry into one Domain.
type Extension struct {
	// ID is the opaque type id of the extension
	ID string

	// DomainID references the hosting domain
	DomainID string

	// EntryID references the implemented entry contract
	EntryID string

	// Lifecycle holds the extension's stage hooks
	Lifecycle []LifecycleHook

	Metadata Metadata
}

// SharedProperty is one property a domain shares with its modules.
// The value is opaque to the runtime.
type SharedProperty struct {
	ID    string
	Value interface{}
}

// Action is a single typed message aimed at a registered domain or
// extension.
type Action struct {
	// Type is the action's own type id
	Type string

	// Target is the id of the domain or extension the action addresses
	Target string

	// Payload is the opaque action payload, validated against the
	// action's schema by the type port
	Payload interface{}

	// Timeout overrides the target's default action timeout when > 0
	Timeout time.Duration
}

// ActionsChain is a branching structure of actions with a success
// continuation (Next) and a failure continuation (Fallback). Fallback
// nodes may converge, so a chain forms a DAG rather than a tree.
type ActionsChain struct {
	Action   Action
	Next     *ActionsChain
	Fallback *ActionsChain
}

// LifecycleHook binds an actions chain to a named stage of an entity's
// life.
type LifecycleHook struct {
	Stage   string
	Actions *ActionsChain
}

// ChainResult is the outcome of executing an actions chain: the action
// types visited in order, whether the chain ran to a successful leaf,
// and the error that stopped it otherwise.
type ChainResult struct {
	Path      []string
	Completed bool
	Err       error
}

// LoadState tracks bundle loading for an extension
type LoadState string

const (
	// LoadIdle indicates the extension bundle has not been requested
	LoadIdle LoadState = "idle"
	// LoadLoading indicates the bundle load is in flight
	LoadLoading LoadState = "loading"
	// LoadLoaded indicates the module handle is cached and mountable
	LoadLoaded LoadState = "loaded"
	// LoadError indicates the last load attempt failed
	LoadError LoadState = "error"
)

// MountState tracks mounting for an extension
type MountState string

const (
	// MountUnmounted indicates the extension is not mounted
	MountUnmounted MountState = "unmounted"
	// MountMounting indicates a mount is in flight
	MountMounting MountState = "mounting"
	// MountMounted indicates the module is mounted into its container
	MountMounted MountState = "mounted"
	// MountError indicates the last mount or unmount attempt failed
	MountError MountState = "error"
)

// DomainState is a point-in-time snapshot of a registered domain.
type DomainState struct {
	Domain Domain

	// Properties maps property id to its current value
	Properties map[string]SharedProperty

	// Extensions lists member extension ids in sorted order
	Extensions []string

	// MountedExtension is the id of the single mounted member extension,
	// or empty
	MountedExtension string
}

// ExtensionState is a point-in-time snapshot of a registered extension.
type ExtensionState struct {
	Extension Extension

	// Entry is the resolved entry contract
	Entry Entry

	LoadState  LoadState
	MountState MountState

	// Bridge is the host-side bridge handle while mounted, nil otherwise
	Bridge *HostBridge

	// Container is the mount container while mounted, nil otherwise
	Container Container

	// Module is the cached loaded-module handle, nil before loading
	Module LoadedModule

	// LastErr retains the error that moved the extension into an error
	// load or mount state
	LastErr error
}

// RuntimeConnection is the set of bridges mounted inside one container.
type RuntimeConnection struct {
	// Host is an opaque reference back to the hosting registry
	Host interface{}

	// Bridges maps entry id to the host-side bridge mounted under it
	Bridges map[string]*HostBridge
}
