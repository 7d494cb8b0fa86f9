// Package fixtures provides test helpers for integration tests.
package fixtures

import (
	"fmt"
	"os"
	"path/filepath"
)

// minimalConfig is a CamillaDSP config small enough to read at a glance.
const minimalConfig = `devices:
  samplerate: 48000
  chunksize: 1024
  capture:
    type: Stdin
    channels: 2
    format: S32LE
  playback:
    type: Stdout
    channels: 2
    format: S32LE
filters:
  gain:
    type: Gain
    parameters:
      gain: %d
pipeline:
  - type: Filter
    channels: [0, 1]
    names: [gain]
`

// ProfileTree lays out a config directory with profiles and a mapping.
type ProfileTree struct {
	Root string
}

// NewProfileTree creates a tree generator rooted at root.
func NewProfileTree(root string) *ProfileTree {
	return &ProfileTree{Root: root}
}

// ProfilesDir returns the directory holding profile files.
func (t *ProfileTree) ProfilesDir() string {
	return filepath.Join(t.Root, "profiles")
}

// MappingFile returns the mapping file location.
func (t *ProfileTree) MappingFile() string {
	return filepath.Join(t.Root, "mapping.yml")
}

// StateFile returns the state file location.
func (t *ProfileTree) StateFile() string {
	return filepath.Join(t.Root, "state", "state.json")
}

// JournalPath returns the journal database location.
func (t *ProfileTree) JournalPath() string {
	return filepath.Join(t.Root, "state", "journal.db")
}

// Create writes a valid profile for each file name, e.g. "music.yml".
func (t *ProfileTree) Create(files ...string) error {
	if err := os.MkdirAll(t.ProfilesDir(), 0755); err != nil {
		return err
	}
	for i, name := range files {
		content := fmt.Sprintf(minimalConfig, -i)
		if err := os.WriteFile(filepath.Join(t.ProfilesDir(), name), []byte(content), 0644); err != nil {
			return err
		}
	}
	return nil
}

// Corrupt overwrites a profile with YAML that does not parse.
func (t *ProfileTree) Corrupt(name string) error {
	return os.WriteFile(t.Path(name), []byte("devices: [unclosed\n"), 0644)
}

// Repair rewrites a profile with valid content.
func (t *ProfileTree) Repair(name string) error {
	return os.WriteFile(t.Path(name), []byte(fmt.Sprintf(minimalConfig, 0)), 0644)
}

// Remove deletes a profile.
func (t *ProfileTree) Remove(name string) error {
	return os.Remove(t.Path(name))
}

// Path returns the full path of a profile file.
func (t *ProfileTree) Path(name string) string {
	return filepath.Join(t.ProfilesDir(), name)
}

// WriteMapping writes a media mapping file.
func (t *ProfileTree) WriteMapping(on, onVariant, off, offVariant string) error {
	content := fmt.Sprintf("media:\n  on:\n    profile: %s\n    variant: %s\n  off:\n    profile: %s\n    variant: %s\n",
		on, onVariant, off, offVariant)
	return os.WriteFile(t.MappingFile(), []byte(content), 0644)
}
