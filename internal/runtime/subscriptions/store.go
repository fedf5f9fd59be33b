package subscriptions

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/renameio/v2"

	"github.com/drblury/packflow/internal/runtime/envelope"
	errspkg "github.com/drblury/packflow/internal/runtime/errors"
	"github.com/drblury/packflow/internal/runtime/jsoncodec"
)

// Store persists one JSON file per binding under
// {base}/{provider}/{tenant}/{team|default}/{binding_id}.json. Writes go
// through a temp file and atomic rename so a crash never leaves a torn
// record.
type Store struct {
	mu   sync.Mutex
	base string
}

// NewStore returns a store rooted at base. It panics when base is empty
// since every other method would silently write into the working directory.
func NewStore(base string) *Store {
	if base == "" {
		panic(errspkg.ErrStoreDirRequired)
	}
	return &Store{base: base}
}

func (s *Store) statePath(provider, tenant, team, bindingID string) string {
	if team == "" {
		team = envelope.DefaultTeam
	}
	return filepath.Join(s.base, provider, tenant, team, bindingID+".json")
}

// Write persists the state atomically.
func (s *Store) Write(state *State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.statePath(state.Provider, state.Tenant, state.Team, state.BindingID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create subscription state directory: %w", err)
	}
	data, err := jsoncodec.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode subscription state: %w", err)
	}
	if err := renameio.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write subscription state %s: %w", path, err)
	}
	return nil
}

// Read loads one binding's state. A missing file yields (nil, nil).
func (s *Store) Read(provider, tenant, team, bindingID string) (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readFile(s.statePath(provider, tenant, team, bindingID))
}

func (s *Store) readFile(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read subscription state %s: %w", path, err)
	}
	var state State
	if err := jsoncodec.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decode subscription state %s: %w", path, err)
	}
	return &state, nil
}

// List returns every persisted binding state under the store root.
func (s *Store) List() ([]*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var states []*State
	err := filepath.WalkDir(s.base, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(path), ".json") {
			return nil
		}
		state, err := s.readFile(path)
		if err != nil {
			return err
		}
		if state != nil {
			states = append(states, state)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return states, nil
}

// Delete removes the binding's state file. Deleting a missing file is a
// no-op.
func (s *Store) Delete(state *State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.statePath(state.Provider, state.Tenant, state.Team, state.BindingID)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete subscription state %s: %w", path, err)
	}
	return nil
}
