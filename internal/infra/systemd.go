package infra

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"text/template"

	"github.com/eliteGoblin/cdsp-autoswitch/internal/domain"
)

// UnitName is the systemd unit installed by `service install`.
const UnitName = "camilladsp-autoswitch.service"

const unitTemplate = `[Unit]
Description=CamillaDSP profile autoswitch daemon
After={{.After}}

[Service]
Type=simple
ExecStart={{.ExecutablePath}} daemon
Restart=on-failure
RestartSec=5
Environment=CDSP_CONFIG_DIR={{.ConfigDir}}
Environment=CDSP_STATE_DIR={{.StateDir}}

[Install]
WantedBy={{.WantedBy}}
`

type unitConfig struct {
	ExecutablePath string
	ConfigDir      string
	StateDir       string
	After          string
	WantedBy       string
}

// SystemdManager implements domain.ServiceManager for user and system units.
type SystemdManager struct {
	paths    *Paths
	unitPath string
	// systemctl is swapped in tests.
	systemctl func(args ...string) error
}

// NewSystemdManager creates a manager for the unit directory in paths.
func NewSystemdManager(paths *Paths) *SystemdManager {
	m := &SystemdManager{
		paths:    paths,
		unitPath: filepath.Join(paths.UnitDir, UnitName),
	}
	m.systemctl = m.runSystemctl
	return m
}

// generateUnitContent renders the unit file for execPath.
func (m *SystemdManager) generateUnitContent(execPath string) ([]byte, error) {
	cfg := unitConfig{
		ExecutablePath: execPath,
		ConfigDir:      m.paths.ConfigDir,
		StateDir:       m.paths.StateDir,
		After:          "sound.target",
		WantedBy:       "default.target",
	}
	if m.paths.Mode == ExecModeSystem {
		cfg.After = "sound.target network.target"
		cfg.WantedBy = "multi-user.target"
	}

	tmpl, err := template.New("unit").Parse(unitTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse unit template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, cfg); err != nil {
		return nil, fmt.Errorf("failed to execute unit template: %w", err)
	}
	return buf.Bytes(), nil
}

// Install writes the unit file and enables it.
func (m *SystemdManager) Install(execPath string) error {
	content, err := m.generateUnitContent(execPath)
	if err != nil {
		return err
	}
	if err := atomicWriteFile(m.unitPath, content, 0644); err != nil {
		return err
	}
	if err := m.systemctl("daemon-reload"); err != nil {
		return err
	}
	return m.systemctl("enable", "--now", UnitName)
}

// Uninstall disables and removes the unit file.
func (m *SystemdManager) Uninstall() error {
	// Ignore errors if not enabled
	_ = m.systemctl("disable", "--now", UnitName)

	if err := os.Remove(m.unitPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return m.systemctl("daemon-reload")
}

// IsInstalled checks if the unit file exists.
func (m *SystemdManager) IsInstalled() bool {
	_, err := os.Stat(m.unitPath)
	return err == nil
}

// NeedsUpdate checks if the unit exists but differs from what Install would write.
func (m *SystemdManager) NeedsUpdate(execPath string) bool {
	if !m.IsInstalled() {
		return false
	}
	current, err := os.ReadFile(m.unitPath)
	if err != nil {
		return true
	}
	expected, err := m.generateUnitContent(execPath)
	if err != nil {
		return true
	}
	return !bytes.Equal(current, expected)
}

// UnitPath returns the unit file path.
func (m *SystemdManager) UnitPath() string {
	return m.unitPath
}

func (m *SystemdManager) runSystemctl(args ...string) error {
	if m.paths.Mode == ExecModeUser {
		args = append([]string{"--user"}, args...)
	}
	out, err := exec.Command("systemctl", args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("systemctl %v: %w: %s", args, err, bytes.TrimSpace(out))
	}
	return nil
}

// Ensure SystemdManager implements domain.ServiceManager.
var _ domain.ServiceManager = (*SystemdManager)(nil)
