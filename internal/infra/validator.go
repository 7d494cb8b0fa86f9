package infra

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/eliteGoblin/cdsp-autoswitch/internal/domain"
)

// YAMLValidator checks that a file exists and parses as YAML.
// It never fails; problems come back as Valid=false with a reason.
type YAMLValidator struct{}

// NewYAMLValidator creates an offline YAML validator.
func NewYAMLValidator() *YAMLValidator {
	return &YAMLValidator{}
}

// Validate implements domain.Validator.
func (v *YAMLValidator) Validate(path string) domain.ValidationResult {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.ValidationResult{Reason: "YAML file not found: " + path}
		}
		return domain.ValidationResult{Reason: err.Error()}
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return domain.ValidationResult{Reason: "YAML syntax error: " + err.Error()}
	}
	return domain.ValidationResult{Valid: true}
}

// DefaultCamillaBinary is the engine executable used for --check.
const DefaultCamillaBinary = "camilladsp"

// BinaryValidator delegates to `camilladsp --check <file>`.
type BinaryValidator struct {
	binary string
}

// NewBinaryValidator creates a validator for the given engine binary.
// An empty binary means DefaultCamillaBinary.
func NewBinaryValidator(binary string) *BinaryValidator {
	if binary == "" {
		binary = DefaultCamillaBinary
	}
	return &BinaryValidator{binary: binary}
}

// Check implements domain.ProfileChecker. Every failure wraps ErrInvalidYAML.
func (v *BinaryValidator) Check(ctx context.Context, path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%w: YAML file not found: %s", ErrInvalidYAML, path)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, v.binary, "--check", path)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return nil
	}
	if errors.Is(err, exec.ErrNotFound) {
		return fmt.Errorf("%w: CamillaDSP binary not found: %s", ErrInvalidYAML, v.binary)
	}

	var lines []string
	for _, s := range []string{stderr.String(), stdout.String()} {
		if s = strings.TrimSpace(s); s != "" {
			lines = append(lines, s)
		}
	}
	output := strings.Join(lines, "\n")
	if output == "" {
		output = "(no detailed error message)"
	}
	return fmt.Errorf("%w: CamillaDSP rejected the configuration:\n%s", ErrInvalidYAML, output)
}

var _ domain.Validator = (*YAMLValidator)(nil)
var _ domain.ProfileChecker = (*BinaryValidator)(nil)
