package policy

import (
	"os"
	"path/filepath"
)

// DefaultMappingYAML is written by MappingService.Init.
const DefaultMappingYAML = `media:
  off:
    profile: music
    variant: normal

  on:
    profile: cinema
    variant: night
`

// MappingService backs the "mapping" CLI commands.
type MappingService struct {
	path string
}

// NewMappingService creates a service for the mapping file at path.
func NewMappingService(path string) *MappingService {
	return &MappingService{path: path}
}

// Path returns the mapping file location.
func (s *MappingService) Path() string {
	return s.path
}

// Load parses the mapping file.
func (s *MappingService) Load() (MediaMapping, error) {
	return LoadMapping(s.path)
}

// Init writes the default mapping. An existing file is kept unless force is set.
func (s *MappingService) Init(force bool) error {
	if _, err := os.Stat(s.path); err == nil && !force {
		return newMappingError(KindExists, s.path, "mapping already exists (use --force to overwrite)", nil)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}
	return os.WriteFile(s.path, []byte(DefaultMappingYAML), 0644)
}

// Show returns the raw mapping file content.
func (s *MappingService) Show() (string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", newMappingError(KindNotFound, s.path, "mapping file not found", nil)
		}
		return "", err
	}
	return string(data), nil
}

// Validate loads the mapping and reports why it is unusable, if it is.
func (s *MappingService) Validate() error {
	_, err := s.Load()
	return err
}

// Test resolves the mapping for a media state, e.g. "cinema.night".
func (s *MappingService) Test(mediaActive bool) (string, error) {
	m, err := s.Load()
	if err != nil {
		return "", err
	}
	return FormatSelection(m.Select(mediaActive)), nil
}
