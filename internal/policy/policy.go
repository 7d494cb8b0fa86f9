// Package policy holds the pure decision rules that turn media activity
// into a profile selection.
package policy

import (
	"fmt"

	"github.com/eliteGoblin/cdsp-autoswitch/internal/domain"
)

// DefaultMapping is the safe fallback used when no mapping file can be loaded.
var DefaultMapping = MediaMapping{
	On:  domain.ProfileSelection{Profile: "cinema"},
	Off: domain.ProfileSelection{Profile: "music"},
}

// MediaMapping maps media activity to a profile selection.
// Both branches always carry a non-empty profile.
type MediaMapping struct {
	On  domain.ProfileSelection
	Off domain.ProfileSelection
}

// NewMediaMapping builds a mapping, rejecting empty profiles.
func NewMediaMapping(on, off domain.ProfileSelection) (MediaMapping, error) {
	if on.Profile == "" {
		return MediaMapping{}, newMappingError(KindMissingProfile, "", "missing 'profile' in 'on' section", nil)
	}
	if off.Profile == "" {
		return MediaMapping{}, newMappingError(KindMissingProfile, "", "missing 'profile' in 'off' section", nil)
	}
	return MediaMapping{On: on, Off: off}, nil
}

// Select returns the branch for the given activity state.
func (m MediaMapping) Select(active bool) domain.ProfileSelection {
	if active {
		return m.On
	}
	return m.Off
}

// String renders the mapping for logs.
func (m MediaMapping) String() string {
	return fmt.Sprintf("on=%s off=%s", FormatSelection(m.On), FormatSelection(m.Off))
}

// SelectProfileForMediaState decides which profile to use for a media state.
func SelectProfileForMediaState(m MediaMapping, mediaActive bool) domain.ProfileSelection {
	return m.Select(mediaActive)
}

// Decide builds the policy decision for a media state.
func Decide(m MediaMapping, mediaActive bool) domain.PolicyDecision {
	sel := SelectProfileForMediaState(m, mediaActive)
	reason := domain.ReasonMediaInactive
	if mediaActive {
		reason = domain.ReasonMediaActive
	}
	return domain.PolicyDecision{
		Profile: sel.Profile,
		Variant: sel.Variant,
		Reason:  reason,
	}
}

// ManualDecision builds the decision injected when the operator forces a profile.
func ManualDecision(state domain.RuntimeState) domain.PolicyDecision {
	return domain.PolicyDecision{
		Profile: state.Profile,
		Variant: state.Variant,
		Reason:  domain.ReasonManualMode,
	}
}

// FormatSelection renders a selection as "profile.variant", using
// "default" for an empty variant.
func FormatSelection(sel domain.ProfileSelection) string {
	variant := sel.Variant
	if variant == "" {
		variant = "default"
	}
	return sel.Profile + "." + variant
}
