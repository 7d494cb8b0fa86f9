package infra

import (
	"os"
	"os/user"
	"path/filepath"
)

// ExecMode represents the privilege level the tool runs with.
type ExecMode string

const (
	// ExecModeUser runs as a regular user with a systemd --user unit.
	ExecModeUser ExecMode = "user"
	// ExecModeSystem runs as root with a system unit.
	ExecModeSystem ExecMode = "system"
)

// Environment overrides for the directory layout.
const (
	EnvConfigDir = "CDSP_CONFIG_DIR"
	EnvStateDir  = "CDSP_STATE_DIR"
)

// Paths holds every filesystem location the tool touches.
type Paths struct {
	Mode        ExecMode
	ConfigDir   string // mapping and profiles
	ProfilesDir string // <profile>[.<variant>].yml files
	StateDir    string // runtime state and journal
	StateFile   string
	MappingFile string
	JournalPath string
	LogFile     string
	UnitDir     string // systemd unit directory
	IsRoot      bool
}

// DetectPaths determines the layout from the effective UID and the
// CDSP_CONFIG_DIR / CDSP_STATE_DIR overrides.
func DetectPaths() *Paths {
	if os.Geteuid() == 0 {
		return newPaths(ExecModeSystem, "/etc/camilladsp-autoswitch", "/run/cdsp", "/etc/systemd/system", true)
	}

	home := GetRealUserHome()
	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	if runtimeDir == "" {
		runtimeDir = filepath.Join(home, ".cache")
	}
	return newPaths(ExecModeUser,
		filepath.Join(home, ".config", "cdsp-autoswitch"),
		filepath.Join(runtimeDir, "cdsp"),
		filepath.Join(home, ".config", "systemd", "user"),
		false)
}

func newPaths(mode ExecMode, configDir, stateDir, unitDir string, isRoot bool) *Paths {
	if v := os.Getenv(EnvConfigDir); v != "" {
		configDir = ExpandHome(v)
	}
	if v := os.Getenv(EnvStateDir); v != "" {
		stateDir = ExpandHome(v)
	}
	return &Paths{
		Mode:        mode,
		ConfigDir:   configDir,
		ProfilesDir: filepath.Join(configDir, "profiles"),
		StateDir:    stateDir,
		StateFile:   filepath.Join(stateDir, "state.json"),
		MappingFile: filepath.Join(configDir, "mapping.yml"),
		JournalPath: filepath.Join(stateDir, "journal.db"),
		LogFile:     filepath.Join(stateDir, "autoswitch.log"),
		UnitDir:     unitDir,
		IsRoot:      isRoot,
	}
}

// String returns a human-readable description of the mode.
func (m ExecMode) String() string {
	switch m {
	case ExecModeSystem:
		return "system (systemd system unit, root)"
	case ExecModeUser:
		return "user (systemd user unit, non-root)"
	default:
		return "unknown"
	}
}

// GetRealUserHome returns the real user's home directory, even when running under sudo.
func GetRealUserHome() string {
	if sudoUser := os.Getenv("SUDO_USER"); sudoUser != "" {
		if u, err := user.Lookup(sudoUser); err == nil {
			return u.HomeDir
		}
	}
	home, _ := os.UserHomeDir()
	return home
}
