package infra

import (
	"path/filepath"

	"github.com/eliteGoblin/cdsp-autoswitch/internal/domain"
)

// ProfileFileName returns the file name for a profile and variant.
// An empty or "normal" variant maps to <profile>.yml.
func ProfileFileName(profile, variant string) string {
	if variant == "" || variant == domain.DefaultVariant {
		return profile + ".yml"
	}
	return profile + "." + variant + ".yml"
}

// YAMLResolver maps intents to files under the profiles directory.
// A non-empty experimental override in the state store wins.
type YAMLResolver struct {
	profilesDir string
	state       domain.StateStore
}

// NewYAMLResolver creates a resolver. state may be nil to disable the
// experimental override.
func NewYAMLResolver(profilesDir string, state domain.StateStore) *YAMLResolver {
	return &YAMLResolver{profilesDir: profilesDir, state: state}
}

// Resolve implements domain.Resolver.
func (r *YAMLResolver) Resolve(intent domain.SwitchIntent) string {
	if r.state != nil {
		if exp := r.state.Load().ExperimentalYML; exp != "" {
			return ExpandHome(exp)
		}
	}
	return filepath.Join(r.profilesDir, ProfileFileName(intent.Profile, intent.Variant))
}

var _ domain.Resolver = (*YAMLResolver)(nil)
