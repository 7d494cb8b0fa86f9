package usecase

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/eliteGoblin/cdsp-autoswitch/internal/domain"
	"github.com/eliteGoblin/cdsp-autoswitch/internal/eventbus"
)

// Outcome is the result of one Execute call.
type Outcome int

const (
	OutcomeNone        Outcome = iota // nothing executed yet
	OutcomeApplied                    // validated and handed to the engine
	OutcomeUnchanged                  // validated, already applied
	OutcomeRejected                   // failed validation, apply not called
	OutcomeApplyFailed                // validated, engine refused or unreachable
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeUnchanged:
		return "unchanged"
	case OutcomeRejected:
		return "rejected"
	case OutcomeApplyFailed:
		return "apply_failed"
	default:
		return "none"
	}
}

// NeedsRetry reports whether the same intent should be executed again on
// the next tick even though nothing upstream changed.
func (o Outcome) NeedsRetry() bool {
	return o == OutcomeRejected || o == OutcomeApplyFailed
}

// ExecutorState is a snapshot of the executor's bookkeeping.
type ExecutorState struct {
	LastPath    string  // last path seen, valid or not
	AppliedPath string  // last path the engine accepted
	LastOutcome Outcome // outcome of the last Execute
	LastReason  string  // validation or apply failure reason
}

// IntentExecutor validates resolved configuration paths and applies each
// distinct valid path at most once. An invalid path never reaches the
// applier. An apply failure leaves AppliedPath untouched so the next
// Execute with the same path retries.
type IntentExecutor struct {
	mu        sync.Mutex
	validator domain.Validator
	applier   domain.Applier
	logger    *zap.Logger
	state     ExecutorState
}

// NewIntentExecutor creates an executor with no prior apply.
func NewIntentExecutor(validator domain.Validator, applier domain.Applier, logger *zap.Logger) *IntentExecutor {
	return &IntentExecutor{
		validator: validator,
		applier:   applier,
		logger:    logger,
	}
}

// Execute validates path and applies it if it differs from what was last
// applied. Expected failures are reported through the Outcome; the error
// is non-nil only when ctx is already done.
func (e *IntentExecutor) Execute(ctx context.Context, intent domain.SwitchIntent, path string) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return OutcomeNone, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	prev := e.state
	result := e.validator.Validate(path)
	if !result.Valid {
		e.state.LastPath = path
		e.state.LastOutcome = OutcomeRejected
		e.state.LastReason = result.Reason
		if prev.AppliedPath == path {
			e.state.AppliedPath = ""
		}
		if prev.LastOutcome != OutcomeRejected || prev.LastPath != path || prev.LastReason != result.Reason {
			e.logger.Warn("configuration rejected, keeping current engine config",
				zap.String("path", path),
				zap.String("profile", intent.Profile),
				zap.String("variant", intent.Variant),
				zap.String("reason", result.Reason))
		}
		return OutcomeRejected, nil
	}

	if prev.AppliedPath != "" && prev.AppliedPath == path {
		e.state.LastPath = path
		e.state.LastOutcome = OutcomeUnchanged
		e.state.LastReason = ""
		if prev.LastOutcome != OutcomeUnchanged && prev.LastOutcome != OutcomeApplied {
			e.logger.Info("configuration valid again, already applied", zap.String("path", path))
		}
		return OutcomeUnchanged, nil
	}

	if err := e.applier.Apply(ctx, path); err != nil {
		e.state.LastPath = path
		e.state.LastOutcome = OutcomeApplyFailed
		e.state.LastReason = err.Error()
		if prev.LastOutcome != OutcomeApplyFailed || prev.LastPath != path {
			e.logger.Error("engine apply failed, will retry",
				zap.String("path", path),
				zap.String("engine", e.applier.Name()),
				zap.Error(err))
		}
		return OutcomeApplyFailed, nil
	}

	e.state = ExecutorState{
		LastPath:    path,
		AppliedPath: path,
		LastOutcome: OutcomeApplied,
	}
	e.logger.Info("configuration applied",
		zap.String("path", path),
		zap.String("profile", intent.Profile),
		zap.String("variant", intent.Variant),
		zap.String("reason", intent.Reason),
		zap.String("engine", e.applier.Name()))
	return OutcomeApplied, nil
}

// State returns a snapshot of the executor's bookkeeping.
func (e *IntentExecutor) State() ExecutorState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// LastOutcome returns the outcome of the most recent Execute.
func (e *IntentExecutor) LastOutcome() Outcome {
	return e.State().LastOutcome
}

// LastApplied returns the path the engine last accepted, or "" if none.
func (e *IntentExecutor) LastApplied() string {
	return e.State().AppliedPath
}

// Restore sets the applied path recovered from a journal without
// calling the engine. An empty path is the same as Reset.
func (e *IntentExecutor) Restore(appliedPath string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if appliedPath == "" {
		e.state = ExecutorState{}
		return
	}
	e.state = ExecutorState{
		LastPath:    appliedPath,
		AppliedPath: appliedPath,
		LastOutcome: OutcomeApplied,
	}
}

// Reset forgets everything; the next valid path is applied.
func (e *IntentExecutor) Reset() {
	e.mu.Lock()
	e.state = ExecutorState{}
	e.mu.Unlock()
}

// Configure swaps collaborators while keeping history. Nil keeps the
// current one.
func (e *IntentExecutor) Configure(validator domain.Validator, applier domain.Applier) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if validator != nil {
		e.validator = validator
	}
	if applier != nil {
		e.applier = applier
	}
}

// ExecutorHandler resolves every SwitchIntent on the bus and executes it.
// It publishes ConfigApplied when the engine accepts a file and
// ConfigInvalidated when the applied file stops validating.
type ExecutorHandler struct {
	ctx      context.Context
	bus      Publisher
	resolver domain.Resolver
	executor *IntentExecutor
}

// NewExecutorHandler subscribes an executor handler on bus. ctx bounds
// the engine calls made from dispatch.
func NewExecutorHandler(ctx context.Context, bus *eventbus.Bus, resolver domain.Resolver, executor *IntentExecutor) (*ExecutorHandler, error) {
	h := &ExecutorHandler{ctx: ctx, bus: bus, resolver: resolver, executor: executor}
	if err := bus.Subscribe(domain.KindSwitchIntent, h.handle); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *ExecutorHandler) handle(event domain.Event) error {
	intent := event.(domain.SwitchIntent)
	path := h.resolver.Resolve(intent)

	before := h.executor.State()
	outcome, err := h.executor.Execute(h.ctx, intent, path)
	if err != nil {
		return err
	}

	switch {
	case outcome == OutcomeApplied:
		return h.bus.Publish(domain.ConfigApplied{Path: path})
	case outcome == OutcomeRejected && before.AppliedPath == path:
		return h.bus.Publish(domain.ConfigInvalidated{Path: path, Reason: h.executor.State().LastReason})
	}
	return nil
}

// AppliedPathFrom folds recorded ConfigApplied and ConfigInvalidated
// events into the path the engine was last known to run. Intents whose
// apply failed or was rejected leave no record and do not count.
func AppliedPathFrom(events []domain.Event) string {
	var applied string
	for _, e := range events {
		switch ev := e.(type) {
		case domain.ConfigApplied:
			applied = ev.Path
		case domain.ConfigInvalidated:
			if ev.Path == applied {
				applied = ""
			}
		}
	}
	return applied
}
