// Package domain contains core business entities and interfaces.
// This is the innermost layer - no external dependencies.
package domain

import "time"

// Mode selects who decides the active profile.
type Mode string

const (
	ModeAuto   Mode = "auto"   // media activity decides
	ModeManual Mode = "manual" // operator forces profile via CLI
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeAuto || m == ModeManual
}

// DefaultVariant is treated the same as an empty variant when resolving files.
const DefaultVariant = "normal"

// ProfileSelection is the value produced by a media mapping.
// An empty Variant means "default/normal".
type ProfileSelection struct {
	Profile string
	Variant string
}

// RuntimeState is the persisted operator-facing state.
// Persisted as JSON in the state directory.
type RuntimeState struct {
	Mode            Mode   `json:"mode"`
	Profile         string `json:"profile"`
	Variant         string `json:"variant"`
	ExperimentalYML string `json:"experimental_yml,omitempty"` // absolute path, overrides profile+variant
	Status          string `json:"status"`
}

// DefaultRuntimeState returns the state used when nothing is persisted yet
// or the persisted file is unreadable.
func DefaultRuntimeState() RuntimeState {
	return RuntimeState{
		Mode:    ModeAuto,
		Profile: "music",
		Variant: DefaultVariant,
		Status:  "OK",
	}
}

// ValidationResult is the outcome of checking a configuration file.
// Invalid files are an expected outcome, not an error.
type ValidationResult struct {
	Valid  bool
	Reason string
}

// JournalEntry is one persisted bus event.
type JournalEntry struct {
	ID         string
	Seq        int64
	Event      Event
	RecordedAt time.Time
}
