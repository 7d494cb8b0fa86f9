package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/eliteGoblin/cdsp-autoswitch/internal/domain"
)

func TestMediaMapping_Select(t *testing.T) {
	m, err := NewMediaMapping(
		domain.ProfileSelection{Profile: "cinema", Variant: "night"},
		domain.ProfileSelection{Profile: "music", Variant: "normal"},
	)
	require.NoError(t, err)

	// Repeated calls return the same values: no hidden state.
	for i := 0; i < 3; i++ {
		assert.Equal(t, domain.ProfileSelection{Profile: "cinema", Variant: "night"}, m.Select(true))
		assert.Equal(t, domain.ProfileSelection{Profile: "music", Variant: "normal"}, m.Select(false))
	}
	assert.Equal(t, m.Select(true), SelectProfileForMediaState(m, true))
}

func TestNewMediaMapping_RejectsEmptyProfile(t *testing.T) {
	_, err := NewMediaMapping(domain.ProfileSelection{}, domain.ProfileSelection{Profile: "music"})
	assert.True(t, IsMappingError(err, KindMissingProfile))

	_, err = NewMediaMapping(domain.ProfileSelection{Profile: "cinema"}, domain.ProfileSelection{})
	assert.True(t, IsMappingError(err, KindMissingProfile))
}

func TestDecide(t *testing.T) {
	m := MediaMapping{
		On:  domain.ProfileSelection{Profile: "cinema", Variant: "night"},
		Off: domain.ProfileSelection{Profile: "music"},
	}

	assert.Equal(t, domain.PolicyDecision{Profile: "cinema", Variant: "night", Reason: domain.ReasonMediaActive}, Decide(m, true))
	assert.Equal(t, domain.PolicyDecision{Profile: "music", Reason: domain.ReasonMediaInactive}, Decide(m, false))
}

func TestManualDecision(t *testing.T) {
	state := domain.RuntimeState{Mode: domain.ModeManual, Profile: "cinema", Variant: "lowlevel"}
	assert.Equal(t, domain.PolicyDecision{Profile: "cinema", Variant: "lowlevel", Reason: domain.ReasonManualMode}, ManualDecision(state))
}

func TestParseMapping(t *testing.T) {
	tests := []struct {
		name     string
		yaml     string
		want     MediaMapping
		wantKind MappingErrorKind
	}{
		{
			name: "full mapping",
			yaml: DefaultMappingYAML,
			want: MediaMapping{
				On:  domain.ProfileSelection{Profile: "cinema", Variant: "night"},
				Off: domain.ProfileSelection{Profile: "music", Variant: "normal"},
			},
		},
		{
			name: "variant optional",
			yaml: "media:\n  on:\n    profile: cinema\n  off:\n    profile: music\n",
			want: MediaMapping{
				On:  domain.ProfileSelection{Profile: "cinema"},
				Off: domain.ProfileSelection{Profile: "music"},
			},
		},
		{
			name: "null variant",
			yaml: "media:\n  on:\n    profile: cinema\n    variant: null\n  off:\n    profile: music\n",
			want: MediaMapping{
				On:  domain.ProfileSelection{Profile: "cinema"},
				Off: domain.ProfileSelection{Profile: "music"},
			},
		},
		{
			name: "boolean spelled keys",
			yaml: "media:\n  true:\n    profile: cinema\n  false:\n    profile: music\n",
			want: MediaMapping{
				On:  domain.ProfileSelection{Profile: "cinema"},
				Off: domain.ProfileSelection{Profile: "music"},
			},
		},
		{name: "syntax error", yaml: "media: [unclosed", wantKind: KindParse},
		{name: "empty document", yaml: "", wantKind: KindMissingSection},
		{name: "no media section", yaml: "other: 1\n", wantKind: KindMissingSection},
		{name: "media not a mapping", yaml: "media: 3\n", wantKind: KindInvalidType},
		{name: "missing off branch", yaml: "media:\n  on:\n    profile: cinema\n", wantKind: KindMissingSection},
		{name: "branch not a mapping", yaml: "media:\n  on: cinema\n  off:\n    profile: music\n", wantKind: KindInvalidType},
		{name: "missing profile", yaml: "media:\n  on:\n    variant: night\n  off:\n    profile: music\n", wantKind: KindMissingProfile},
		{name: "profile wrong type", yaml: "media:\n  on:\n    profile: 42\n  off:\n    profile: music\n", wantKind: KindInvalidType},
		{name: "variant wrong type", yaml: "media:\n  on:\n    profile: cinema\n    variant: [a]\n  off:\n    profile: music\n", wantKind: KindInvalidType},
		{name: "empty profile", yaml: "media:\n  on:\n    profile: \"\"\n  off:\n    profile: music\n", wantKind: KindMissingProfile},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMapping([]byte(tt.yaml))
			if tt.wantKind != "" {
				require.Error(t, err)
				assert.True(t, IsMappingError(err, tt.wantKind), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadMapping_NotFound(t *testing.T) {
	_, err := LoadMapping(filepath.Join(t.TempDir(), "missing.yml"))
	assert.True(t, IsMappingError(err, KindNotFound))
}

func TestLoadMapping_ErrorCarriesPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mapping.yml")
	require.NoError(t, os.WriteFile(path, []byte("other: 1\n"), 0644))

	_, err := LoadMapping(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), path)
}

func TestLoadMappingWithFallback(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	logger := zap.New(core)

	m := LoadMappingWithFallback(filepath.Join(t.TempDir(), "does-not-exist.yml"), logger)

	assert.Equal(t, "cinema", m.On.Profile)
	assert.Equal(t, "music", m.Off.Profile)
	assert.Empty(t, m.On.Variant)
	assert.Equal(t, 1, logs.Len(), "fallback must be logged")
}

func TestLoadMappingWithFallback_ValidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mapping.yml")
	require.NoError(t, os.WriteFile(path, []byte(DefaultMappingYAML), 0644))

	m := LoadMappingWithFallback(path, zap.NewNop())

	assert.Equal(t, "night", m.On.Variant)
}

func TestMappingService(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "mapping.yml")
	svc := NewMappingService(path)

	_, err := svc.Show()
	assert.True(t, IsMappingError(err, KindNotFound))

	require.NoError(t, svc.Init(false))
	assert.True(t, IsMappingError(svc.Init(false), KindExists))
	require.NoError(t, svc.Init(true))

	content, err := svc.Show()
	require.NoError(t, err)
	assert.Equal(t, DefaultMappingYAML, content)
	assert.NoError(t, svc.Validate())

	on, err := svc.Test(true)
	require.NoError(t, err)
	assert.Equal(t, "cinema.night", on)

	off, err := svc.Test(false)
	require.NoError(t, err)
	assert.Equal(t, "music.normal", off)
}

func TestFormatSelection(t *testing.T) {
	assert.Equal(t, "music.default", FormatSelection(domain.ProfileSelection{Profile: "music"}))
	assert.Equal(t, "cinema.night", FormatSelection(domain.ProfileSelection{Profile: "cinema", Variant: "night"}))
}
