package timers

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/renameio/v2"

	"github.com/drblury/packflow/internal/runtime/envelope"
	"github.com/drblury/packflow/internal/runtime/jsoncodec"
)

// marker is the persisted per-handler tick record.
type marker struct {
	LastRun string `json:"last_run"`
}

// Store persists the last successful tick per timer handler so a restart
// resumes without silently skipping a window.
type Store struct {
	mu   sync.Mutex
	base string
}

// NewStore returns a store rooted at base.
func NewStore(base string) *Store {
	return &Store{base: base}
}

func (s *Store) markerPath(provider, tenant, team, handlerID string) string {
	if team == "" {
		team = envelope.DefaultTeam
	}
	return filepath.Join(s.base, provider, tenant, team, handlerID+".json")
}

// LastRun returns the stored RFC 3339 timestamp, empty when the handler has
// never ticked.
func (s *Store) LastRun(provider, tenant, team, handlerID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.markerPath(provider, tenant, team, handlerID))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read timer marker: %w", err)
	}
	var m marker
	if err := jsoncodec.Unmarshal(data, &m); err != nil {
		return "", fmt.Errorf("decode timer marker: %w", err)
	}
	return m.LastRun, nil
}

// SetLastRun persists the timestamp atomically.
func (s *Store) SetLastRun(provider, tenant, team, handlerID, lastRun string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.markerPath(provider, tenant, team, handlerID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create timer marker directory: %w", err)
	}
	data, err := jsoncodec.Marshal(marker{LastRun: lastRun})
	if err != nil {
		return fmt.Errorf("encode timer marker: %w", err)
	}
	if err := renameio.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write timer marker %s: %w", path, err)
	}
	return nil
}
