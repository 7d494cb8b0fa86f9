// Package infra implements infrastructure concerns (processes, files, engine, journal).
package infra

import (
	"github.com/shirou/gopsutil/v3/process"

	"github.com/eliteGoblin/cdsp-autoswitch/internal/domain"
)

// ProcessManagerImpl implements domain.ProcessManager using gopsutil.
type ProcessManagerImpl struct {
	// list is swapped in tests.
	list func() ([]string, error)
}

// NewProcessManager creates a new process manager.
func NewProcessManager() *ProcessManagerImpl {
	return &ProcessManagerImpl{list: processNames}
}

// processNames returns the short name of every visible process.
func processNames() ([]string, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(procs))
	for _, p := range procs {
		name, err := p.Name()
		if err != nil {
			continue // Process may have exited
		}
		names = append(names, name)
	}
	return names, nil
}

// IsRunning reports whether a process named exactly name exists.
// Any lookup failure reads as "not running".
func (pm *ProcessManagerImpl) IsRunning(name string) bool {
	return len(pm.Running([]string{name})) == 1
}

// Running returns the subset of names with at least one live process,
// in the order given. Matching is exact and case-sensitive.
func (pm *ProcessManagerImpl) Running(names []string) []string {
	all, err := pm.list()
	if err != nil {
		return nil
	}

	seen := make(map[string]struct{}, len(all))
	for _, n := range all {
		seen[n] = struct{}{}
	}

	var out []string
	for _, n := range names {
		if _, ok := seen[n]; ok {
			out = append(out, n)
		}
	}
	return out
}

// ProcessProbe reports media activity as "any of the names is running".
type ProcessProbe struct {
	pm    domain.ProcessManager
	names []string
}

// NewProcessProbe creates a probe over the given process names.
func NewProcessProbe(pm domain.ProcessManager, names []string) *ProcessProbe {
	return &ProcessProbe{pm: pm, names: names}
}

// MediaActive implements domain.ActivityProbe.
func (p *ProcessProbe) MediaActive() bool {
	return len(p.pm.Running(p.names)) > 0
}

// Ensure ProcessManagerImpl implements domain.ProcessManager.
var _ domain.ProcessManager = (*ProcessManagerImpl)(nil)
var _ domain.ActivityProbe = (*ProcessProbe)(nil)
