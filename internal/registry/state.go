package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// State persists gateway descriptors to a JSON file so separate CLI
// invocations can list and stop gateways started by an earlier one. It is
// operator-grade persistence: read-modify-write under a process-local lock,
// not a database.
type State struct {
	mu   sync.Mutex
	path string
}

// DefaultStatePath returns the default state file location.
func DefaultStatePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "gateward-gateways.json")
	}
	return filepath.Join(home, ".gateward", "gateways.json")
}

// NewState creates a state file handle. The file is created on first save.
func NewState(path string) *State {
	if path == "" {
		path = DefaultStatePath()
	}
	return &State{path: path}
}

// Load reads all persisted descriptors. A missing file is an empty state.
func (s *State) Load() ([]Descriptor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Append persists one descriptor.
func (s *State) Append(desc Descriptor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	descs, err := s.load()
	if err != nil {
		return err
	}
	for _, d := range descs {
		if d.ID == desc.ID {
			return fmt.Errorf("duplicate gateway id %q", desc.ID)
		}
	}
	return s.save(append(descs, desc))
}

// Remove deletes one descriptor by id and returns it.
func (s *State) Remove(id string) (Descriptor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	descs, err := s.load()
	if err != nil {
		return Descriptor{}, err
	}
	for i, d := range descs {
		if d.ID == id {
			if err := s.save(append(descs[:i], descs[i+1:]...)); err != nil {
				return Descriptor{}, err
			}
			return d, nil
		}
	}
	return Descriptor{}, fmt.Errorf("gateway %q: %w", id, ErrNotFound)
}

func (s *State) load() ([]Descriptor, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state file: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var descs []Descriptor
	if err := json.Unmarshal(data, &descs); err != nil {
		return nil, fmt.Errorf("parse state file %s: %w", s.path, err)
	}
	return descs, nil
}

func (s *State) save(descs []Descriptor) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	data, err := json.MarshalIndent(descs, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}
