package extension

import (
	"context"

	"go.uber.org/zap"
)

// LifecycleManager walks an entity's declared hooks for a stage and
// executes their action chains in declaration order.
type LifecycleManager interface {
	// Trigger executes every hook bound to stage, one at a time, in the
	// order the hooks were declared. A failing hook is reported to the
	// error handler and never stops the hooks after it.
	Trigger(ctx context.Context, entityID string, hooks []LifecycleHook, stage string)
}

// NewLifecycleManager creates the default lifecycle runner. onError may
// be nil, in which case failures are only logged (when logFailures is
// set).
func NewLifecycleManager(mediator ActionsChainMediator, onError LifecycleErrorHandler, logFailures bool, log *zap.SugaredLogger) LifecycleManager {
	return &lifecycleRunner{
		mediator:    mediator,
		onError:     onError,
		logFailures: logFailures,
		log:         log.Named("lifecycle"),
	}
}

type lifecycleRunner struct {
	mediator    ActionsChainMediator
	onError     LifecycleErrorHandler
	logFailures bool
	log         *zap.SugaredLogger
}

// Trigger implements LifecycleManager
func (r *lifecycleRunner) Trigger(ctx context.Context, entityID string, hooks []LifecycleHook, stage string) {
	for _, hook := range hooks {
		if hook.Stage != stage || hook.Actions == nil {
			continue
		}

		result := r.mediator.ExecuteChain(ctx, hook.Actions)
		if result.Completed {
			continue
		}

		failure := LifecycleFailure{
			EntityID:  entityID,
			Stage:     stage,
			HookStage: hook.Stage,
			Err:       result.Err,
		}

		if r.logFailures {
			r.log.Warnw("Lifecycle hook failed",
				"entity_id", failure.EntityID,
				"stage", failure.Stage,
				"path", result.Path,
				"error", failure.Err,
			)
		}

		if r.onError != nil {
			r.onError(failure)
		}
	}
}
