package extension

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDashboardWidgetRoundTrip walks the full path a host takes: declare
// a dashboard domain, a widget entry, register and mount a widget, share
// properties both ways, route actions through the mediator, and tear
// everything down.
func TestDashboardWidgetRoundTrip(t *testing.T) {
	module := &fakeModule{}
	loader := newFakeLoader(map[string]*fakeModule{"entry.widget": module})
	r := newTestRegistry(newFakePort(), WithLoader(loader))
	ctx := context.Background()

	var mu sync.Mutex
	var events []Event
	for _, event := range []Event{
		EventDomainRegistered, EventExtensionRegistered, EventExtensionLoaded,
		EventExtensionMounted, EventExtensionUnmounted, EventExtensionUnregistered,
		EventDomainUnregistered,
	} {
		event := event
		r.On(event, func(EventData) {
			mu.Lock()
			events = append(events, event)
			mu.Unlock()
		})
	}

	// The module watches the theme and reports back through an action
	// once mounted.
	var themeSeen []interface{}
	module.onMount = func(bridge *ModuleBridge) {
		bridge.SubscribeProperty("theme", func(prop SharedProperty) {
			mu.Lock()
			themeSeen = append(themeSeen, prop.Value)
			mu.Unlock()
		})
	}

	require.NoError(t, r.RegisterDomain(ctx, dashboardDomain()))
	require.NoError(t, r.RegisterEntry(ctx, widgetEntry()))
	require.NoError(t, r.RegisterExtension(ctx, widgetExtension("ext.w1")))
	require.NoError(t, r.MountExtension(ctx, "ext.w1", &fakeContainer{id: "slot-1"}))

	// Host to module: shared property update
	require.NoError(t, r.UpdateDomainProperty("ui.dashboard", SharedProperty{ID: "theme", Value: "dark"}))
	mu.Lock()
	assert.Equal(t, []interface{}{"dark"}, themeSeen)
	mu.Unlock()

	// Module to host: action dispatch through the bridge
	hostHandler := &recordingHandler{}
	r.RegisterActionHandler("ui.dashboard", hostHandler)
	state, _ := r.ExtensionState("ext.w1")
	result := state.Bridge.Module().DispatchAction(ctx, Action{Type: "a.notify", Target: "ui.dashboard"})
	require.True(t, result.Completed)
	assert.Len(t, hostHandler.seen(), 1)

	// Host to module: action addressed at the extension
	moduleHandler := &recordingHandler{}
	require.NoError(t, state.Bridge.Module().HandleActions(moduleHandler))
	result = r.ExecuteChain(ctx, &ActionsChain{Action: Action{Type: "a.refresh", Target: "ext.w1"}})
	require.True(t, result.Completed)
	assert.Len(t, moduleHandler.seen(), 1)

	// Teardown
	require.NoError(t, r.UnregisterDomain(ctx, "ui.dashboard"))
	assert.False(t, module.isMounted())
	_, ok := r.ExtensionState("ext.w1")
	assert.False(t, ok)

	mu.Lock()
	assert.Equal(t, []Event{
		EventDomainRegistered, EventExtensionRegistered, EventExtensionLoaded,
		EventExtensionMounted, EventExtensionUnmounted, EventExtensionUnregistered,
		EventDomainUnregistered,
	}, events)
	mu.Unlock()
}

func TestExtensionInitStageIsAwaited(t *testing.T) {
	r := newTestRegistry(newFakePort())
	ctx := context.Background()

	ran := false
	r.RegisterActionHandler("ui.dashboard", ActionHandlerFunc(func(ctx context.Context, action Action) (interface{}, error) {
		ran = true
		return nil, nil
	}))

	require.NoError(t, r.RegisterDomain(ctx, dashboardDomain()))
	require.NoError(t, r.RegisterEntry(ctx, widgetEntry()))

	ext := widgetExtension("ext.w1")
	ext.Lifecycle = []LifecycleHook{{
		Stage:   StageInit,
		Actions: &ActionsChain{Action: Action{Type: "a.setup", Target: "ui.dashboard"}},
	}}
	require.NoError(t, r.RegisterExtension(ctx, ext))

	assert.True(t, ran, "extension init hooks run before RegisterExtension returns")
}

func TestDomainInitStageRunsDetached(t *testing.T) {
	r := newTestRegistry(newFakePort())
	ctx := context.Background()

	release := make(chan struct{})
	ran := make(chan struct{})
	r.RegisterActionHandler("sink", ActionHandlerFunc(func(ctx context.Context, action Action) (interface{}, error) {
		<-release
		close(ran)
		return nil, nil
	}))
	require.NoError(t, r.RegisterDomain(ctx, Domain{
		ID:              "sink",
		LifecycleStages: []string{StageInit},
	}))

	domain := dashboardDomain()
	domain.Lifecycle = []LifecycleHook{{
		Stage:   StageInit,
		Actions: &ActionsChain{Action: Action{Type: "a.warmup", Target: "sink"}},
	}}

	start := time.Now()
	require.NoError(t, r.RegisterDomain(ctx, domain))
	assert.Less(t, time.Since(start), 500*time.Millisecond,
		"domain registration does not wait for init hooks")

	close(release)
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("detached domain init never ran")
	}
}

func TestRegistryEventUnsubscribe(t *testing.T) {
	r := newTestRegistry(newFakePort())
	ctx := context.Background()

	calls := 0
	token := r.On(EventDomainRegistered, func(EventData) { calls++ })
	require.NoError(t, r.RegisterDomain(ctx, dashboardDomain()))
	assert.Equal(t, 1, calls)

	r.Off(EventDomainRegistered, token)
	require.NoError(t, r.RegisterDomain(ctx, Domain{
		ID:              "ui.sidebar",
		LifecycleStages: []string{StageInit},
	}))
	assert.Equal(t, 1, calls)
}

func TestParentBridge(t *testing.T) {
	r, _, _ := mountFixture(t, "ext.w1")
	ctx := context.Background()

	_, ok := r.ParentBridge("ext.w1")
	assert.False(t, ok, "unmounted extension has no bridge")

	container := &fakeContainer{id: "slot-1"}
	require.NoError(t, r.MountExtension(ctx, "ext.w1", container))

	bridge, ok := r.ParentBridge("ext.w1")
	require.True(t, ok)
	state, _ := r.ExtensionState("ext.w1")
	assert.Same(t, state.Bridge, bridge)

	require.NoError(t, r.UnmountExtension(ctx, "ext.w1"))
	_, ok = r.ParentBridge("ext.w1")
	assert.False(t, ok)

	_, ok = r.ParentBridge("ext.unknown")
	assert.False(t, ok)
}

func TestRegistryDispose(t *testing.T) {
	r, module, _ := mountFixture(t, "ext.w1")
	ctx := context.Background()
	require.NoError(t, r.MountExtension(ctx, "ext.w1", &fakeContainer{id: "slot-1"}))

	require.NoError(t, r.Dispose(ctx))

	assert.Empty(t, r.DomainIDs())
	assert.False(t, module.isMounted())
}

func TestRegistryMountStageHooks(t *testing.T) {
	module := &fakeModule{}
	loader := newFakeLoader(map[string]*fakeModule{"entry.widget": module})
	r := newTestRegistry(newFakePort(), WithLoader(loader))
	ctx := context.Background()

	stageSink := &recordingHandler{}
	r.RegisterActionHandler("ui.dashboard", stageSink)

	require.NoError(t, r.RegisterDomain(ctx, dashboardDomain()))
	require.NoError(t, r.RegisterEntry(ctx, widgetEntry()))

	ext := widgetExtension("ext.w1")
	ext.Lifecycle = []LifecycleHook{
		{Stage: StageActivated, Actions: &ActionsChain{Action: Action{Type: "a.on", Target: "ui.dashboard"}}},
		{Stage: StageDeactivated, Actions: &ActionsChain{Action: Action{Type: "a.off", Target: "ui.dashboard"}}},
	}
	require.NoError(t, r.RegisterExtension(ctx, ext))

	require.NoError(t, r.MountExtension(ctx, "ext.w1", &fakeContainer{id: "slot-1"}))
	seen := stageSink.seen()
	require.Len(t, seen, 1)
	assert.Equal(t, "a.on", seen[0].Type)

	require.NoError(t, r.UnmountExtension(ctx, "ext.w1"))
	seen = stageSink.seen()
	require.Len(t, seen, 2)
	assert.Equal(t, "a.off", seen[1].Type)
}

func TestRegistryTriggerLifecycleStages(t *testing.T) {
	r := newTestRegistry(newFakePort())
	ctx := context.Background()

	sink := &recordingHandler{}
	r.RegisterActionHandler("ui.dashboard", sink)

	domain := dashboardDomain()
	domain.LifecycleStages = append(domain.LifecycleStages, "refresh")
	domain.ExtensionLifecycleStages = append(domain.ExtensionLifecycleStages, "refresh")
	domain.Lifecycle = []LifecycleHook{{
		Stage:   "refresh",
		Actions: &ActionsChain{Action: Action{Type: "a.domain-refresh", Target: "ui.dashboard"}},
	}}
	require.NoError(t, r.RegisterDomain(ctx, domain))
	require.NoError(t, r.RegisterEntry(ctx, widgetEntry()))

	ext := widgetExtension("ext.w1")
	ext.Lifecycle = []LifecycleHook{{
		Stage:   "refresh",
		Actions: &ActionsChain{Action: Action{Type: "a.ext-refresh", Target: "ui.dashboard"}},
	}}
	require.NoError(t, r.RegisterExtension(ctx, ext))

	require.NoError(t, r.TriggerLifecycleStage(ctx, "ext.w1", "refresh"))
	require.NoError(t, r.TriggerDomainLifecycleStage(ctx, "ui.dashboard", "refresh"))
	require.NoError(t, r.TriggerDomainOwnLifecycleStage(ctx, "ui.dashboard", "refresh"))

	types := make([]string, 0, 3)
	for _, action := range sink.seen() {
		types = append(types, action.Type)
	}
	assert.Equal(t, []string{"a.ext-refresh", "a.ext-refresh", "a.domain-refresh"}, types)

	assert.Error(t, r.TriggerLifecycleStage(ctx, "ghost", "refresh"))
	assert.Error(t, r.TriggerDomainLifecycleStage(ctx, "ghost", "refresh"))
	assert.Error(t, r.TriggerDomainOwnLifecycleStage(ctx, "ghost", "refresh"))
}
