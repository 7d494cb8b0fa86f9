package usecase

import (
	"go.uber.org/zap"

	"github.com/eliteGoblin/cdsp-autoswitch/internal/domain"
	"github.com/eliteGoblin/cdsp-autoswitch/internal/eventbus"
	"github.com/eliteGoblin/cdsp-autoswitch/internal/policy"
)

// MediaPolicyHandler turns MediaActivityChanged into PolicyDecision.
// It never looks at the operator mode; manual decisions are injected
// directly by the daemon.
type MediaPolicyHandler struct {
	bus     Publisher
	mapping policy.MediaMapping
}

// NewMediaPolicyHandler subscribes a policy handler on bus.
func NewMediaPolicyHandler(bus *eventbus.Bus, mapping policy.MediaMapping) (*MediaPolicyHandler, error) {
	h := &MediaPolicyHandler{bus: bus, mapping: mapping}
	if err := bus.Subscribe(domain.KindMediaActivityChanged, h.handle); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *MediaPolicyHandler) handle(event domain.Event) error {
	changed := event.(domain.MediaActivityChanged)
	return h.bus.Publish(policy.Decide(h.mapping, changed.Active))
}

// Mapping returns the mapping the handler decides with.
func (h *MediaPolicyHandler) Mapping() policy.MediaMapping {
	return h.mapping
}

// BuildIntent restates a decision as an executable intent.
func BuildIntent(decision domain.PolicyDecision) domain.SwitchIntent {
	return domain.SwitchIntent{
		Profile: decision.Profile,
		Variant: decision.Variant,
		Reason:  decision.Reason,
	}
}

// IntentHandler publishes exactly one SwitchIntent per PolicyDecision.
type IntentHandler struct {
	bus Publisher
}

// NewIntentHandler subscribes an intent handler on bus.
func NewIntentHandler(bus *eventbus.Bus) (*IntentHandler, error) {
	h := &IntentHandler{bus: bus}
	if err := bus.Subscribe(domain.KindPolicyDecision, h.handle); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *IntentHandler) handle(event domain.Event) error {
	return h.bus.Publish(BuildIntent(event.(domain.PolicyDecision)))
}

// EventLogger logs every event published on the bus.
type EventLogger struct {
	logger *zap.Logger
}

// NewEventLogger subscribes a logger to every event on bus.
func NewEventLogger(bus *eventbus.Bus, logger *zap.Logger) (*EventLogger, error) {
	l := &EventLogger{logger: logger}
	if err := bus.Subscribe(domain.KindAny, l.handle); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *EventLogger) handle(event domain.Event) error {
	l.logger.Debug("event published",
		zap.String("kind", string(event.Kind())),
		zap.Any("event", event))
	return nil
}
