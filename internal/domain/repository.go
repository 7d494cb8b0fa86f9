package domain

import "context"

// ProcessManager answers process-presence questions.
// Implementation: uses gopsutil for cross-platform support.
type ProcessManager interface {
	// IsRunning reports whether a process with exactly this name exists.
	// Never fails: any lookup error reads as "not running".
	IsRunning(name string) bool

	// Running returns the subset of names that currently have a process.
	Running(names []string) []string
}

// ActivityProbe reports the current aggregate media activity.
// Implementations must never panic and treat internal errors as inactive.
type ActivityProbe interface {
	MediaActive() bool
}

// Validator checks a configuration file before it reaches the engine.
// Missing files and parse errors come back as Valid=false, never as errors.
type Validator interface {
	Validate(path string) ValidationResult
}

// Applier performs the actual reload against the DSP engine.
type Applier interface {
	// Apply loads path into the engine. Connectivity and protocol failures
	// are returned so the caller can decide whether to retry.
	Apply(ctx context.Context, path string) error

	// Name identifies the implementation in logs and status output.
	Name() string
}

// Resolver maps an intent to a concrete configuration path.
type Resolver interface {
	Resolve(intent SwitchIntent) string
}

// StateStore persists RuntimeState.
// Implementation: JSON file written atomically (temp + rename).
type StateStore interface {
	// Load returns the persisted state, or defaults if missing or corrupt.
	Load() RuntimeState

	// Save atomically replaces the persisted state.
	Save(state RuntimeState) error

	// Update changes the named fields (JSON names) and persists the result.
	// Unknown fields are rejected.
	Update(fields map[string]string) (RuntimeState, error)

	// Path returns the state file location.
	Path() string
}

// EventJournal durably records bus events for replay after restart.
type EventJournal interface {
	// Append records one event at the end of the journal.
	Append(ctx context.Context, event Event) error

	// Entries returns all recorded events in insertion order.
	Entries(ctx context.Context) ([]JournalEntry, error)

	// Truncate removes everything but the newest keep entries.
	Truncate(ctx context.Context, keep int) error

	// Close releases resources (e.g., database connection).
	Close() error
}

// ProfileChecker validates a profile file with the engine's own tooling.
type ProfileChecker interface {
	Check(ctx context.Context, path string) error
}

// ServiceManager handles the systemd unit that runs the daemon.
type ServiceManager interface {
	// Install writes the unit file and enables it.
	Install(execPath string) error

	// Uninstall disables and removes the unit file.
	Uninstall() error

	// IsInstalled checks if the unit file exists.
	IsInstalled() bool

	// UnitPath returns the unit file path.
	UnitPath() string

	// NeedsUpdate checks if the unit exists but differs from what Install would write.
	NeedsUpdate(execPath string) bool
}
