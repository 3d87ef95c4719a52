package extension

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/mosaic/errors"
)

// mountedBridge mounts ext.w1 and returns its module-side bridge.
func mountedBridge(t *testing.T, r *Registry) *ModuleBridge {
	t.Helper()
	require.NoError(t, r.MountExtension(context.Background(), "ext.w1", &fakeContainer{id: "slot-1"}))
	state, ok := r.ExtensionState("ext.w1")
	require.True(t, ok)
	require.NotNil(t, state.Bridge)
	return state.Bridge.Module()
}

func TestBridgePropertyAccess(t *testing.T) {
	r, _, _ := mountFixture(t, "ext.w1")
	require.NoError(t, r.UpdateDomainProperty("ui.dashboard", SharedProperty{ID: "theme", Value: "dark"}))
	bridge := mountedBridge(t, r)

	prop, ok := bridge.Property("theme")
	require.True(t, ok)
	assert.Equal(t, "dark", prop.Value)

	props := bridge.Properties()
	assert.Equal(t, "dark", props["theme"].Value)
}

func TestBridgePropertySubscription(t *testing.T) {
	r, _, _ := mountFixture(t, "ext.w1")
	bridge := mountedBridge(t, r)

	var mu sync.Mutex
	var got []SharedProperty
	_, err := bridge.SubscribeProperty("theme", func(prop SharedProperty) {
		mu.Lock()
		got = append(got, prop)
		mu.Unlock()
	})
	require.NoError(t, err)

	require.NoError(t, r.UpdateDomainProperty("ui.dashboard", SharedProperty{ID: "theme", Value: "dark"}))
	mu.Lock()
	require.Len(t, got, 1)
	assert.Equal(t, "dark", got[0].Value)
	mu.Unlock()
}

func TestBridgeSubscriptionsTornDownOnUnmount(t *testing.T) {
	r, _, _ := mountFixture(t, "ext.w1")
	bridge := mountedBridge(t, r)

	var mu sync.Mutex
	calls := 0
	_, err := bridge.SubscribeProperty("theme", func(SharedProperty) {
		mu.Lock()
		calls++
		mu.Unlock()
	})
	require.NoError(t, err)

	require.NoError(t, r.UnmountExtension(context.Background(), "ext.w1"))
	require.NoError(t, r.UpdateDomainProperty("ui.dashboard", SharedProperty{ID: "theme", Value: "dark"}))

	mu.Lock()
	assert.Zero(t, calls, "disposed bridge must not receive property updates")
	mu.Unlock()
}

func TestBridgeDispatchAction(t *testing.T) {
	r, _, _ := mountFixture(t, "ext.w1")
	bridge := mountedBridge(t, r)

	h := &recordingHandler{}
	r.RegisterActionHandler("ui.dashboard", h)

	result := bridge.DispatchAction(context.Background(), Action{Type: "a.notify", Target: "ui.dashboard"})
	require.True(t, result.Completed)
	require.Len(t, h.seen(), 1)
	assert.Equal(t, "a.notify", h.seen()[0].Type)
}

func TestBridgeDispatchRejectsUndeclaredAction(t *testing.T) {
	r, _, _ := mountFixture(t, "ext.w1")
	bridge := mountedBridge(t, r)
	r.RegisterActionHandler("ui.dashboard", &recordingHandler{})

	result := bridge.DispatchAction(context.Background(), Action{Type: "a.forbidden", Target: "ui.dashboard"})
	require.False(t, result.Completed)
	assert.Contains(t, result.Err.Error(), "not declared by entry")
}

func TestBridgeReceivesActions(t *testing.T) {
	r, _, _ := mountFixture(t, "ext.w1")
	bridge := mountedBridge(t, r)

	h := &recordingHandler{}
	require.NoError(t, bridge.HandleActions(h))

	result := r.ExecuteChain(context.Background(), &ActionsChain{
		Action: Action{Type: "a.refresh", Target: "ext.w1"},
	})
	require.True(t, result.Completed)
	assert.Len(t, h.seen(), 1)

	// The handler is removed with the bridge
	require.NoError(t, r.UnmountExtension(context.Background(), "ext.w1"))
	result = r.ExecuteChain(context.Background(), &ActionsChain{
		Action: Action{Type: "a.refresh", Target: "ext.w1"},
	})
	assert.False(t, result.Completed)
	assert.ErrorIs(t, result.Err, errors.ErrNoHandler)
}

func TestBridgeDisposedOperationsFail(t *testing.T) {
	r, _, _ := mountFixture(t, "ext.w1")
	bridge := mountedBridge(t, r)
	require.NoError(t, r.UnmountExtension(context.Background(), "ext.w1"))

	_, err := bridge.SubscribeProperty("theme", func(SharedProperty) {})
	assert.ErrorIs(t, err, errors.ErrBridgeDisposed)

	result := bridge.DispatchAction(context.Background(), Action{Type: "a.notify", Target: "ui.dashboard"})
	assert.ErrorIs(t, result.Err, errors.ErrBridgeDisposed)

	assert.ErrorIs(t, bridge.HandleActions(&recordingHandler{}), errors.ErrBridgeDisposed)
}

func TestBridgeUnconnectedOperationsFail(t *testing.T) {
	r, _, _ := mountFixture(t, "ext.w1")
	factory := NewBridgeFactory(r.manager, r.mediator, testLogger())

	bridge, err := factory.CreateBridge(context.Background(), "ext.w1")
	require.NoError(t, err)

	result := bridge.Module().DispatchAction(context.Background(), Action{Type: "a.notify", Target: "ui.dashboard"})
	assert.ErrorIs(t, result.Err, errors.ErrBridgeNotConnected)
}

func TestBridgeNestedDomain(t *testing.T) {
	r, _, _ := mountFixture(t, "ext.w1")
	bridge := mountedBridge(t, r)

	// The module runs its own inner mediator behind a relay
	innerPort := newFakePort()
	inner := newTestMediator(innerPort, "nested.panel")
	innerHandler := &recordingHandler{}
	inner.RegisterHandler("nested.panel", innerHandler)

	nested := Domain{
		ID:               "nested.panel",
		SharedProperties: []string{"title"},
		LifecycleStages:  []string{StageInit, StageDestroyed},
	}
	require.NoError(t, bridge.RegisterNestedDomain(context.Background(), nested, &relayMediator{inner: inner}))

	// The nested domain is visible in the host registry
	_, ok := r.DomainState("nested.panel")
	assert.True(t, ok)

	// Chains targeting it route through the relay
	result := r.ExecuteChain(context.Background(), &ActionsChain{
		Action: Action{Type: "a.show", Target: "nested.panel"},
	})
	require.True(t, result.Completed)
	assert.Len(t, innerHandler.seen(), 1)

	// Disposal removes the nested domain and the route
	require.NoError(t, r.UnmountExtension(context.Background(), "ext.w1"))
	_, ok = r.DomainState("nested.panel")
	assert.False(t, ok)
	result = r.ExecuteChain(context.Background(), &ActionsChain{
		Action: Action{Type: "a.show", Target: "nested.panel"},
	})
	assert.False(t, result.Completed)
}

func TestBridgeUnregisterNestedDomain(t *testing.T) {
	r, _, _ := mountFixture(t, "ext.w1")
	bridge := mountedBridge(t, r)

	nested := Domain{
		ID:              "nested.panel",
		LifecycleStages: []string{StageInit, StageDestroyed},
	}
	inner := newTestMediator(newFakePort(), "nested.panel")
	require.NoError(t, bridge.RegisterNestedDomain(context.Background(), nested, &relayMediator{inner: inner}))

	require.NoError(t, bridge.UnregisterNestedDomain(context.Background(), "nested.panel"))
	_, ok := r.DomainState("nested.panel")
	assert.False(t, ok)

	err := bridge.UnregisterNestedDomain(context.Background(), "nested.panel")
	assert.True(t, errors.IsNotRegisteredError(err))
}
