package domain

// EventKind tags each concrete event type carried on the bus.
type EventKind string

const (
	// KindAny is the wildcard root. A subscriber registered for it receives every event.
	KindAny EventKind = "*"

	KindProcessStarted       EventKind = "ProcessStarted"
	KindProcessStopped       EventKind = "ProcessStopped"
	KindMediaActivityChanged EventKind = "MediaActivityChanged"
	KindPolicyDecision       EventKind = "PolicyDecision"
	KindSwitchIntent         EventKind = "SwitchIntent"
	KindConfigApplied        EventKind = "ConfigApplied"
	KindConfigInvalidated    EventKind = "ConfigInvalidated"
)

// Kinds lists every concrete event kind, in pipeline order.
var Kinds = []EventKind{
	KindProcessStarted,
	KindProcessStopped,
	KindMediaActivityChanged,
	KindPolicyDecision,
	KindSwitchIntent,
	KindConfigApplied,
	KindConfigInvalidated,
}

// Valid reports whether k is a concrete kind or the wildcard.
func (k EventKind) Valid() bool {
	if k == KindAny {
		return true
	}
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Decision reasons.
const (
	ReasonMediaActive   = "media_active"
	ReasonMediaInactive = "media_inactive"
	ReasonManualMode    = "manual_mode"
)

// Event is the closed set of records flowing through the bus.
// The unexported marker keeps the set closed to this package.
type Event interface {
	Kind() EventKind
	isEvent()
}

// ProcessStarted is a raw signal: a named process appeared.
type ProcessStarted struct {
	Name string `cbor:"name" json:"name"`
}

// ProcessStopped is a raw signal: a named process went away.
type ProcessStopped struct {
	Name string `cbor:"name" json:"name"`
}

// MediaActivityChanged is emitted only when the aggregate activity flips.
type MediaActivityChanged struct {
	Active bool `cbor:"active" json:"active"`
}

// PolicyDecision is the output of policy evaluation.
// An empty Variant means the default variant.
type PolicyDecision struct {
	Profile string `cbor:"profile" json:"profile"`
	Variant string `cbor:"variant,omitempty" json:"variant,omitempty"`
	Reason  string `cbor:"reason" json:"reason"`
}

// SwitchIntent is the unit consumed by the executor.
type SwitchIntent struct {
	Profile string `cbor:"profile" json:"profile"`
	Variant string `cbor:"variant,omitempty" json:"variant,omitempty"`
	Reason  string `cbor:"reason" json:"reason"`
}

// ConfigApplied records that the engine accepted a configuration file.
type ConfigApplied struct {
	Path string `cbor:"path" json:"path"`
}

// ConfigInvalidated records that the file the engine last accepted no
// longer validates, so it must be applied again once fixed.
type ConfigInvalidated struct {
	Path   string `cbor:"path" json:"path"`
	Reason string `cbor:"reason" json:"reason"`
}

func (ProcessStarted) Kind() EventKind       { return KindProcessStarted }
func (ProcessStopped) Kind() EventKind       { return KindProcessStopped }
func (MediaActivityChanged) Kind() EventKind { return KindMediaActivityChanged }
func (PolicyDecision) Kind() EventKind       { return KindPolicyDecision }
func (SwitchIntent) Kind() EventKind         { return KindSwitchIntent }
func (ConfigApplied) Kind() EventKind        { return KindConfigApplied }
func (ConfigInvalidated) Kind() EventKind    { return KindConfigInvalidated }

func (ProcessStarted) isEvent()       {}
func (ProcessStopped) isEvent()       {}
func (MediaActivityChanged) isEvent() {}
func (PolicyDecision) isEvent()       {}
func (SwitchIntent) isEvent()         {}
func (ConfigApplied) isEvent()        {}
func (ConfigInvalidated) isEvent()    {}
