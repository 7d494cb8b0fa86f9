package infra

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

func TestFileStateStore_MissingFileYieldsDefaults(t *testing.T) {
	s := NewFileStateStore(filepath.Join(t.TempDir(), "state.json"), zap.NewNop())
	assert.Equal(t, domain.DefaultRuntimeState(), s.Load())
}

func TestFileStateStore_CorruptFileYieldsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	core, logs := observer.New(zap.WarnLevel)
	s := NewFileStateStore(path, zap.New(core))

	assert.Equal(t, domain.DefaultRuntimeState(), s.Load())
	assert.Equal(t, 1, logs.Len())
}

func TestFileStateStore_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"profile":"cinema"}`), 0644))

	st := NewFileStateStore(path, zap.NewNop()).Load()

	assert.Equal(t, "cinema", st.Profile)
	assert.Equal(t, domain.ModeAuto, st.Mode)
	assert.Equal(t, domain.DefaultVariant, st.Variant)
}

func TestFileStateStore_SaveLoadAndUpdate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "state.json")
	s := NewFileStateStore(path, zap.NewNop())

	want := domain.RuntimeState{Mode: domain.ModeManual, Profile: "cinema", Variant: "night", Status: "OK"}
	require.NoError(t, s.Save(want))
	assert.Equal(t, want, s.Load())

	got, err := s.Update(map[string]string{"mode": "auto", "experimental_yml": "/tmp/x.yml"})
	require.NoError(t, err)
	assert.Equal(t, domain.ModeAuto, got.Mode)
	assert.Equal(t, "/tmp/x.yml", s.Load().ExperimentalYML)

	// No temp files left behind.
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFileStateStore_UpdateRejects(t *testing.T) {
	s := NewFileStateStore(filepath.Join(t.TempDir(), "state.json"), zap.NewNop())

	_, err := s.Update(map[string]string{"volume": "11"})
	assert.ErrorIs(t, err, ErrUnknownField)

	_, err = s.Update(map[string]string{"mode": "turbo"})
	assert.ErrorIs(t, err, ErrInvalidMode)

	_, statErr := os.Stat(s.Path())
	assert.True(t, os.IsNotExist(statErr), "rejected update must not write")
}
