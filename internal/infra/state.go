package infra

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/eliteGoblin/cdsp-autoswitch/internal/domain"
)

var (
	// ErrUnknownField is returned by Update for a field that is not part of RuntimeState.
	ErrUnknownField = errors.New("unknown state field")
	// ErrInvalidMode is returned by Update for a mode other than auto or manual.
	ErrInvalidMode = errors.New("invalid mode")
)

// FileStateStore implements domain.StateStore as a JSON file.
type FileStateStore struct {
	mu     sync.Mutex
	path   string
	logger *zap.Logger
}

// NewFileStateStore creates a store backed by path.
func NewFileStateStore(path string, logger *zap.Logger) *FileStateStore {
	return &FileStateStore{path: path, logger: logger}
}

// Load returns the persisted state. A missing file yields defaults; an
// unreadable one yields defaults and a warning. Missing fields keep
// their default values.
func (s *FileStateStore) Load() domain.RuntimeState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *FileStateStore) load() domain.RuntimeState {
	state := domain.DefaultRuntimeState()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("state file unreadable, using defaults", zap.String("path", s.path), zap.Error(err))
		}
		return state
	}

	if err := json.Unmarshal(data, &state); err != nil {
		s.logger.Warn("state file corrupt, using defaults", zap.String("path", s.path), zap.Error(err))
		return domain.DefaultRuntimeState()
	}
	if !state.Mode.Valid() {
		state.Mode = domain.ModeAuto
	}
	return state
}

// Save atomically replaces the persisted state.
func (s *FileStateStore) Save(state domain.RuntimeState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(state)
}

func (s *FileStateStore) save(state domain.RuntimeState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	return atomicWriteFile(s.path, append(data, '\n'), 0644)
}

// Update sets the named fields and persists the result.
// Recognised fields: mode, profile, variant, experimental_yml, status.
func (s *FileStateStore) Update(fields map[string]string) (domain.RuntimeState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.load()
	for k, v := range fields {
		switch k {
		case "mode":
			m := domain.Mode(v)
			if !m.Valid() {
				return state, fmt.Errorf("%w: %q", ErrInvalidMode, v)
			}
			state.Mode = m
		case "profile":
			state.Profile = v
		case "variant":
			state.Variant = v
		case "experimental_yml":
			state.ExperimentalYML = v
		case "status":
			state.Status = v
		default:
			return state, fmt.Errorf("%w: %q", ErrUnknownField, k)
		}
	}

	if err := s.save(state); err != nil {
		return state, err
	}
	return state, nil
}

// Path returns the state file location.
func (s *FileStateStore) Path() string {
	return s.path
}

// Ensure FileStateStore implements domain.StateStore.
var _ domain.StateStore = (*FileStateStore)(nil)
