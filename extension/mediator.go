package extension

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/mosaic/errors"
)

// ActionsChainMediator resolves action targets to handlers and executes
// branching action chains with timeout and fallback semantics.
type ActionsChainMediator interface {
	// ExecuteChain runs the chain depth-first: success follows Next,
	// failure follows Fallback. The result path records every action
	// type visited.
	ExecuteChain(ctx context.Context, chain *ActionsChain) ChainResult

	// RegisterHandler installs a custom handler for one target id
	RegisterHandler(target string, handler ActionHandler)

	// UnregisterHandler removes the custom handler for the target id
	UnregisterHandler(target string)

	// RegisterForwardingHandler installs a relay for a target living
	// inside a mounted module's own nested registry
	RegisterForwardingHandler(target string, relay ChainRelay)

	// UnregisterForwardingHandler removes the relay for the target id
	UnregisterForwardingHandler(target string)

	// SetDefaultHandler installs the handler used for registered targets
	// that carry no custom handler
	SetDefaultHandler(handler ActionHandler)
}

// TargetResolver answers the mediator's questions about the registry:
// whether a target id is registered, and which timeout bounds actions
// aimed at it.
type TargetResolver interface {
	TargetRegistered(target string) bool
	TargetTimeout(target string) time.Duration
}

// NewActionsChainMediator creates the default mediator.
func NewActionsChainMediator(port TypeSystemPort, resolver TargetResolver, log *zap.SugaredLogger) ActionsChainMediator {
	return &mediator{
		port:     port,
		resolver: resolver,
		handlers: make(map[string]ActionHandler),
		forwards: make(map[string]ChainRelay),
		log:      log.Named("mediator"),
	}
}

type mediator struct {
	port     TypeSystemPort
	resolver TargetResolver
	log      *zap.SugaredLogger

	mu             sync.RWMutex
	handlers       map[string]ActionHandler
	forwards       map[string]ChainRelay
	defaultHandler ActionHandler
}

// RegisterHandler implements ActionsChainMediator
func (m *mediator) RegisterHandler(target string, handler ActionHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[target] = handler
}

// UnregisterHandler implements ActionsChainMediator
func (m *mediator) UnregisterHandler(target string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.handlers, target)
}

// RegisterForwardingHandler implements ActionsChainMediator
func (m *mediator) RegisterForwardingHandler(target string, relay ChainRelay) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forwards[target] = relay
}

// UnregisterForwardingHandler implements ActionsChainMediator
func (m *mediator) UnregisterForwardingHandler(target string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.forwards, target)
}

// SetDefaultHandler implements ActionsChainMediator
func (m *mediator) SetDefaultHandler(handler ActionHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultHandler = handler
}

// ExecuteChain implements ActionsChainMediator
func (m *mediator) ExecuteChain(ctx context.Context, chain *ActionsChain) ChainResult {
	var result ChainResult
	if chain == nil {
		result.Completed = true
		return result
	}
	m.run(ctx, chain, &result)
	return result
}

// run executes one node and recurses into Next or Fallback. The running
// result is threaded through so converging fallback nodes keep a single
// path.
func (m *mediator) run(ctx context.Context, node *ActionsChain, result *ChainResult) {
	action := node.Action

	// Validation failures stop the chain outright: no handler runs and
	// neither branch is taken.
	if err := m.validate(action); err != nil {
		result.Path = append(result.Path, action.Type)
		result.Completed = false
		result.Err = err
		return
	}

	relay, handler, err := m.resolve(action.Target)
	if err != nil {
		result.Path = append(result.Path, action.Type)
		result.Completed = false
		result.Err = err
		return
	}

	// A forwarding relay consumes the whole remaining chain; the nested
	// mediator applies its own per-step timeouts and branch selection.
	if relay != nil {
		sub := relay.RelayChain(ctx, node)
		result.Path = append(result.Path, sub.Path...)
		result.Completed = sub.Completed
		result.Err = sub.Err
		return
	}

	stepErr := m.invoke(ctx, handler, action)
	result.Path = append(result.Path, action.Type)

	if stepErr == nil {
		if node.Next != nil {
			m.run(ctx, node.Next, result)
			return
		}
		result.Completed = true
		result.Err = nil
		return
	}

	if node.Fallback != nil {
		m.log.Debugw("Action failed, taking fallback branch",
			"action", action.Type,
			"target", action.Target,
			"error", stepErr,
		)
		m.run(ctx, node.Fallback, result)
		return
	}

	result.Completed = false
	result.Err = stepErr
}

// validate checks the action's ids and its instance schema before any
// handler is considered.
func (m *mediator) validate(action Action) error {
	if !m.port.IsValidTypeID(action.Type) {
		return errors.Newf("Invalid type ID %q for action", action.Type)
	}
	if !m.port.IsValidTypeID(action.Target) {
		return errors.Newf("Invalid type ID %q for action target", action.Target)
	}
	if fields := m.port.ValidateInstance(action.Type, action.Payload); len(fields) > 0 {
		return &ActionValidationError{ActionType: action.Type, Fields: fields}
	}
	return nil
}

// resolve picks the handler for a target: forwarding relay first, then
// the target's custom handler, then the default handler for registered
// targets.
func (m *mediator) resolve(target string) (ChainRelay, ActionHandler, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if relay, ok := m.forwards[target]; ok {
		return relay, nil, nil
	}
	if handler, ok := m.handlers[target]; ok {
		return nil, handler, nil
	}
	if m.resolver.TargetRegistered(target) && m.defaultHandler != nil {
		return nil, m.defaultHandler, nil
	}
	if !m.resolver.TargetRegistered(target) {
		return nil, nil, errors.Wrapf(errors.ErrNotRegistered, "action target %q", target)
	}
	return nil, nil, errors.Wrapf(errors.ErrNoHandler, "action target %q", target)
}

// invoke runs the handler bounded by the action's effective timeout.
// The timeout only stops the wait; the handler's context is not
// cancelled, and a result arriving after the deadline is discarded.
func (m *mediator) invoke(ctx context.Context, handler ActionHandler, action Action) error {
	timeout := action.Timeout
	if timeout <= 0 {
		timeout = m.resolver.TargetTimeout(action.Target)
	}

	done := make(chan error, 1)
	go func() {
		_, err := handler.HandleAction(ctx, action)
		done <- err
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return errors.Wrapf(errors.ErrActionTimeout, "action %q on target %q exceeded %s",
			action.Type, action.Target, timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}
