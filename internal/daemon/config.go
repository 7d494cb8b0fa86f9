// Package daemon wires the pipeline and runs the autoswitch loop.
package daemon

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/eliteGoblin/cdsp-autoswitch/internal/infra"
)

// Activity detector sources.
const (
	DetectorProcess = "process" // poll process presence
	DetectorPulse   = "pulse"   // poll PulseAudio sink inputs
	DetectorEdge    = "edge"    // process start/stop events, aggregated
)

// Environment variables read by ConfigFromEnv.
const (
	EnvInterval       = "CDSP_AUTOSWITCH_INTERVAL"
	EnvCamillaHost    = "CDSP_CAMILLA_HOST"
	EnvCamillaPort    = "CDSP_CAMILLA_PORT"
	EnvMediaProcesses = "CDSP_MEDIA_PROCESSES"
	EnvDetector       = "CDSP_DETECTOR"
	EnvEngine         = "CDSP_ENGINE"
	EnvLogLevel       = "CDSP_LOG_LEVEL"
	EnvReplay         = "CDSP_REPLAY"
	EnvEncryptJournal = "CDSP_JOURNAL_ENCRYPT"
)

// Config holds autoswitch daemon configuration.
type Config struct {
	Interval       time.Duration // poll period
	Detector       string        // DetectorProcess, DetectorPulse or DetectorEdge
	MediaProcesses []string      // process (or pulse binary) names that mean "media"
	Engine         string        // infra.EngineCamillaDSP or infra.EngineNone
	Camilla        infra.CamillaConfig
	Replay         bool // rebuild executor state from the journal on start
	EncryptJournal bool
	JournalKeep    int // entries kept when the daemon starts
	LogLevel       string
}

// DefaultConfig returns default daemon configuration.
func DefaultConfig() Config {
	return Config{
		Interval:       2 * time.Second,
		Detector:       DetectorProcess,
		MediaProcesses: []string{"kodi"},
		Engine:         infra.EngineCamillaDSP,
		Camilla:        infra.DefaultCamillaConfig(),
		JournalKeep:    10000,
		LogLevel:       "info",
	}
}

// ConfigFromEnv overlays environment variables on base.
func ConfigFromEnv(base Config) (Config, error) {
	cfg := base

	if v := os.Getenv(EnvInterval); v != "" {
		d, err := parseInterval(v)
		if err != nil {
			return cfg, fmt.Errorf("%s: %w", EnvInterval, err)
		}
		cfg.Interval = d
	}
	if v := os.Getenv(EnvCamillaHost); v != "" {
		cfg.Camilla.Host = v
	}
	if v := os.Getenv(EnvCamillaPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			return cfg, fmt.Errorf("%s: invalid port %q", EnvCamillaPort, v)
		}
		cfg.Camilla.Port = port
	}
	if v := os.Getenv(EnvMediaProcesses); v != "" {
		cfg.MediaProcesses = splitList(v)
	}
	if v := os.Getenv(EnvDetector); v != "" {
		cfg.Detector = v
	}
	if v := os.Getenv(EnvEngine); v != "" {
		cfg.Engine = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv(EnvReplay); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, fmt.Errorf("%s: %w", EnvReplay, err)
		}
		cfg.Replay = b
	}
	if v := os.Getenv(EnvEncryptJournal); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, fmt.Errorf("%s: %w", EnvEncryptJournal, err)
		}
		cfg.EncryptJournal = b
	}

	return cfg, cfg.Validate()
}

// Validate rejects unusable settings.
func (c Config) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", c.Interval)
	}
	switch c.Detector {
	case DetectorProcess, DetectorPulse, DetectorEdge:
	default:
		return fmt.Errorf("unknown detector %q", c.Detector)
	}
	switch c.Engine {
	case infra.EngineCamillaDSP, infra.EngineNone:
	default:
		return fmt.Errorf("unknown engine %q", c.Engine)
	}
	if c.Detector != DetectorPulse && len(c.MediaProcesses) == 0 {
		return fmt.Errorf("no media processes configured")
	}
	return nil
}

// parseInterval accepts a Go duration ("1500ms") or plain seconds ("2").
func parseInterval(v string) (time.Duration, error) {
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	return time.ParseDuration(v)
}

func splitList(v string) []string {
	var out []string
	for _, f := range strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ' ' }) {
		out = append(out, f)
	}
	return out
}
