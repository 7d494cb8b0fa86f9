package daemon

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/cdsp-autoswitch/internal/domain"
	"github.com/eliteGoblin/cdsp-autoswitch/internal/policy"
)

// Autoswitch is the daemon loop. Each tick it reads the runtime state,
// samples media activity in auto mode and feeds decisions to the
// pipeline. It never exits on an evaluation error.
type Autoswitch struct {
	cfg      Config
	pipeline *Pipeline
	state    domain.StateStore
	changes  <-chan struct{}
	logger   *zap.Logger

	prev *domain.RuntimeState
}

// NewAutoswitch creates the daemon loop.
func NewAutoswitch(cfg Config, pipeline *Pipeline, state domain.StateStore, logger *zap.Logger) *Autoswitch {
	return &Autoswitch{
		cfg:      cfg,
		pipeline: pipeline,
		state:    state,
		logger:   logger,
	}
}

// WatchState makes the loop tick as soon as ch fires, in addition to the
// regular interval.
func (a *Autoswitch) WatchState(ch <-chan struct{}) {
	a.changes = ch
}

// Run ticks immediately and then every Interval until ctx is canceled.
func (a *Autoswitch) Run(ctx context.Context) error {
	a.logger.Info("autoswitch daemon started",
		zap.Duration("interval", a.cfg.Interval),
		zap.String("state", a.state.Path()))

	a.safeTick(ctx)

	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("autoswitch daemon stopping")
			return ctx.Err()

		case <-ticker.C:
			a.safeTick(ctx)

		case <-a.changes:
			a.logger.Debug("state file changed")
			a.safeTick(ctx)
		}
	}
}

// safeTick runs one tick, logging errors and recovered panics.
func (a *Autoswitch) safeTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("autoswitch tick panicked", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()

	if err := a.Tick(ctx); err != nil {
		a.logger.Error("autoswitch tick failed", zap.Error(err))
	}
}

// Tick evaluates once. In manual mode the operator's selection is
// injected as a PolicyDecision. In auto mode the activity source is
// polled; transitions flow through the pipeline by themselves and a
// full decision is re-published only when the state changed or the
// last execution needs a retry.
func (a *Autoswitch) Tick(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	state := a.state.Load()
	changed := a.prev == nil || *a.prev != state
	if changed && a.prev != nil {
		a.logger.Info("runtime state changed",
			zap.String("mode", string(state.Mode)),
			zap.String("profile", state.Profile),
			zap.String("variant", state.Variant),
			zap.String("experimental_yml", state.ExperimentalYML))
	}
	a.prev = &state

	retry := a.pipeline.Executor.LastOutcome().NeedsRetry()

	if state.Mode == domain.ModeManual {
		if !changed && !retry {
			return nil
		}
		return a.publish(policy.ManualDecision(state))
	}

	if err := a.pipeline.Source.Poll(); err != nil {
		return fmt.Errorf("poll activity: %w", err)
	}
	if !changed && !retry {
		return nil
	}
	return a.publish(policy.Decide(a.pipeline.Mapping, a.pipeline.Source.Active()))
}

func (a *Autoswitch) publish(decision domain.PolicyDecision) error {
	if err := a.pipeline.Bus.Publish(decision); err != nil {
		return fmt.Errorf("publish decision: %w", err)
	}
	return nil
}
