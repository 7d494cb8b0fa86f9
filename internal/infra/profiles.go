package infra

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/eliteGoblin/cdsp-autoswitch/internal/domain"
)

var (
	// ErrInvalidYAML is returned when a profile file fails validation.
	ErrInvalidYAML = errors.New("invalid profile YAML")
	// ErrProfileExists is returned when adding over an existing profile without force.
	ErrProfileExists = errors.New("profile already exists")
	// ErrProfileNotFound is returned when resolving a profile that was never added.
	ErrProfileNotFound = errors.New("profile not found")
)

// ProfileRegistry stores validated profile files under one directory.
type ProfileRegistry struct {
	dir     string
	checker domain.ProfileChecker
	logger  *zap.Logger
}

// NewProfileRegistry creates a registry rooted at dir.
func NewProfileRegistry(dir string, checker domain.ProfileChecker, logger *zap.Logger) *ProfileRegistry {
	return &ProfileRegistry{dir: dir, checker: checker, logger: logger}
}

// Dir returns the profiles directory.
func (r *ProfileRegistry) Dir() string {
	return r.dir
}

// Add validates source and copies it in as name[.variant].yml.
func (r *ProfileRegistry) Add(ctx context.Context, name, variant, source string, force bool) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: empty profile name", ErrInvalidYAML)
	}
	if _, err := os.Stat(source); err != nil {
		return "", fmt.Errorf("%w: YAML file not found: %s", ErrInvalidYAML, source)
	}
	if err := r.checker.Check(ctx, source); err != nil {
		return "", err
	}

	target := filepath.Join(r.dir, ProfileFileName(name, variant))
	if _, err := os.Stat(target); err == nil && !force {
		return "", fmt.Errorf("%w: %s", ErrProfileExists, filepath.Base(target))
	}

	if err := copyFile(source, target); err != nil {
		return "", fmt.Errorf("failed to store profile: %w", err)
	}

	r.logger.Info("profile registered",
		zap.String("profile", name),
		zap.String("variant", variant),
		zap.String("path", target))
	return target, nil
}

// Resolve returns the stored file for name and variant.
func (r *ProfileRegistry) Resolve(name, variant string) (string, error) {
	target := filepath.Join(r.dir, ProfileFileName(name, variant))
	if _, err := os.Stat(target); err != nil {
		return "", fmt.Errorf("%w: %s", ErrProfileNotFound, filepath.Base(target))
	}
	return target, nil
}
