package daemon

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/eliteGoblin/cdsp-autoswitch/internal/domain"
	"github.com/eliteGoblin/cdsp-autoswitch/internal/eventbus"
	"github.com/eliteGoblin/cdsp-autoswitch/internal/eventstore"
	"github.com/eliteGoblin/cdsp-autoswitch/internal/infra"
	"github.com/eliteGoblin/cdsp-autoswitch/internal/policy"
	"github.com/eliteGoblin/cdsp-autoswitch/internal/usecase"
)

// Deps are the collaborators Bootstrap wires together.
type Deps struct {
	Mapping   policy.MediaMapping
	Validator domain.Validator
	Applier   domain.Applier
	Resolver  domain.Resolver
	Processes domain.ProcessManager
	// Probe overrides the activity probe for the polling detectors.
	// When nil, DetectorProcess uses Processes and DetectorPulse a PulseProbe.
	Probe domain.ActivityProbe
}

// Pipeline is the assembled event pipeline.
type Pipeline struct {
	Bus      *eventbus.Bus
	Store    *eventstore.Store
	Executor *usecase.IntentExecutor
	Source   usecase.ActivitySource
	Mapping  policy.MediaMapping
	Resolver domain.Resolver
	Applier  domain.Applier

	closers []func()
}

// Close releases resources Bootstrap created, such as the PulseAudio
// connection. Collaborators passed in through Deps are left alone.
func (p *Pipeline) Close() {
	for _, c := range p.closers {
		c()
	}
	p.closers = nil
}

// Bootstrap builds the pipeline: store and event logger first, then
// activity tracking, policy, intent and executor handlers.
func Bootstrap(ctx context.Context, cfg Config, deps Deps, logger *zap.Logger) (*Pipeline, error) {
	bus := eventbus.New()
	store := eventstore.New()

	if err := store.Attach(bus); err != nil {
		return nil, err
	}
	if _, err := usecase.NewEventLogger(bus, logger); err != nil {
		return nil, err
	}

	source, closer, err := newSource(cfg, deps, bus, logger)
	if err != nil {
		return nil, err
	}
	var closers []func()
	if closer != nil {
		closers = append(closers, closer)
	}

	if _, err := usecase.NewMediaPolicyHandler(bus, deps.Mapping); err != nil {
		return nil, err
	}
	if _, err := usecase.NewIntentHandler(bus); err != nil {
		return nil, err
	}

	executor := usecase.NewIntentExecutor(deps.Validator, deps.Applier, logger)
	if _, err := usecase.NewExecutorHandler(ctx, bus, deps.Resolver, executor); err != nil {
		return nil, err
	}

	logger.Info("pipeline ready",
		zap.String("detector", cfg.Detector),
		zap.Strings("media_processes", cfg.MediaProcesses),
		zap.String("mapping", deps.Mapping.String()),
		zap.String("engine", deps.Applier.Name()))

	return &Pipeline{
		Bus:      bus,
		Store:    store,
		Executor: executor,
		Source:   source,
		Mapping:  deps.Mapping,
		Resolver: deps.Resolver,
		Applier:  deps.Applier,
		closers:  closers,
	}, nil
}

// newSource builds the activity source. The returned closer, if any,
// releases what the source opened.
func newSource(cfg Config, deps Deps, bus *eventbus.Bus, logger *zap.Logger) (usecase.ActivitySource, func(), error) {
	switch cfg.Detector {
	case DetectorEdge:
		tracker, err := usecase.NewProcessActivityTracker(bus, cfg.MediaProcesses)
		if err != nil {
			return nil, nil, err
		}
		return usecase.EdgeActivitySource{
			Watcher: usecase.NewProcessWatcher(deps.Processes, bus, cfg.MediaProcesses),
			Tracker: tracker,
		}, nil, nil

	case DetectorPulse:
		if deps.Probe != nil {
			return usecase.NewPollingDetector(deps.Probe.MediaActive, bus, logger), nil, nil
		}
		probe := infra.NewPulseProbe(cfg.MediaProcesses, logger)
		return usecase.NewPollingDetector(probe.MediaActive, bus, logger), probe.Close, nil

	case DetectorProcess, "":
		probe := deps.Probe
		if probe == nil {
			probe = infra.NewProcessProbe(deps.Processes, cfg.MediaProcesses)
		}
		return usecase.NewPollingDetector(probe.MediaActive, bus, logger), nil, nil

	default:
		return nil, nil, fmt.Errorf("unknown detector %q", cfg.Detector)
	}
}
