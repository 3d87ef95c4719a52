package extension

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/mosaic/errors"
)

func TestLifecycleTriggerRunsMatchingHooksInOrder(t *testing.T) {
	m := newTestMediator(newFakePort(), "tgt")
	h := &recordingHandler{}
	m.RegisterHandler("tgt", h)
	runner := NewLifecycleManager(m, nil, false, testLogger())

	hooks := []LifecycleHook{
		{Stage: StageInit, Actions: &ActionsChain{Action: Action{Type: "a.one", Target: "tgt"}}},
		{Stage: StageActivated, Actions: &ActionsChain{Action: Action{Type: "a.skip", Target: "tgt"}}},
		{Stage: StageInit, Actions: &ActionsChain{Action: Action{Type: "a.two", Target: "tgt"}}},
		{Stage: StageInit, Actions: nil},
	}
	runner.Trigger(context.Background(), "ext.w1", hooks, StageInit)

	seen := h.seen()
	require.Len(t, seen, 2)
	assert.Equal(t, "a.one", seen[0].Type)
	assert.Equal(t, "a.two", seen[1].Type)
}

func TestLifecycleFailureDoesNotAbortStage(t *testing.T) {
	m := newTestMediator(newFakePort(), "bad", "good")
	m.RegisterHandler("bad", &recordingHandler{err: errors.New("hook failed")})
	good := &recordingHandler{}
	m.RegisterHandler("good", good)

	var mu sync.Mutex
	var failures []LifecycleFailure
	runner := NewLifecycleManager(m, func(f LifecycleFailure) {
		mu.Lock()
		failures = append(failures, f)
		mu.Unlock()
	}, false, testLogger())

	hooks := []LifecycleHook{
		{Stage: StageInit, Actions: &ActionsChain{Action: Action{Type: "a.fail", Target: "bad"}}},
		{Stage: StageInit, Actions: &ActionsChain{Action: Action{Type: "a.after", Target: "good"}}},
	}
	runner.Trigger(context.Background(), "ext.w1", hooks, StageInit)

	assert.Len(t, good.seen(), 1, "hooks after a failure still run")
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, failures, 1)
	assert.Equal(t, "ext.w1", failures[0].EntityID)
	assert.Equal(t, StageInit, failures[0].Stage)
	require.Error(t, failures[0].Err)
}

func TestLifecycleHookFallbackCountsAsSuccess(t *testing.T) {
	m := newTestMediator(newFakePort(), "bad", "good")
	m.RegisterHandler("bad", &recordingHandler{err: errors.New("hook failed")})
	m.RegisterHandler("good", &recordingHandler{})

	failures := 0
	runner := NewLifecycleManager(m, func(LifecycleFailure) { failures++ }, false, testLogger())

	hooks := []LifecycleHook{{
		Stage: StageInit,
		Actions: &ActionsChain{
			Action:   Action{Type: "a.try", Target: "bad"},
			Fallback: &ActionsChain{Action: Action{Type: "a.recover", Target: "good"}},
		},
	}}
	runner.Trigger(context.Background(), "ext.w1", hooks, StageInit)

	assert.Zero(t, failures, "a chain completed through its fallback is not a failure")
}
