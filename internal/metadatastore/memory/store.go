// Package memory implements core.MetadataStore in-process, grounded on
// the same fake-adapter pattern as targettable/memory and
// spreadsheet/memory: used by engine tests that need a real
// SyncConfig/SyncState/SyncHistory/Conflict lifecycle without a
// database.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/sheetsync/sheetsync/internal/core"
)

// Store is a mutex-guarded in-memory core.MetadataStore.
type Store struct {
	mu        sync.Mutex
	configs   map[string]core.SyncConfig
	states    map[string]core.SyncState
	history   map[string]core.SyncHistory
	conflicts []core.Conflict
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		configs: make(map[string]core.SyncConfig),
		states:  make(map[string]core.SyncState),
		history: make(map[string]core.SyncHistory),
	}
}

var _ core.MetadataStore = (*Store)(nil)

// PutConfig seeds a config, for test setup.
func (s *Store) PutConfig(cfg core.SyncConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[cfg.ID] = cfg
}

func (s *Store) ListActiveConfigs(_ context.Context) ([]core.SyncConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []core.SyncConfig
	for _, cfg := range s.configs {
		if cfg.Active {
			out = append(out, cfg)
		}
	}
	return out, nil
}

func (s *Store) GetConfig(_ context.Context, id string) (core.SyncConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, ok := s.configs[id]
	if !ok {
		return core.SyncConfig{}, fmt.Errorf("metadatastore: config %s not found", id)
	}
	return cfg, nil
}

func (s *Store) GetState(_ context.Context, configID string) (core.SyncState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.states[configID]
	if !ok {
		return core.SyncState{ConfigID: configID}, nil
	}
	return state, nil
}

func (s *Store) SaveState(_ context.Context, state core.SyncState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.states[state.ConfigID] = state
	return nil
}

func (s *Store) CreateHistory(_ context.Context, h core.SyncHistory) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	h.Status = core.HistoryRunning
	s.history[h.ID] = h
	return h.ID, nil
}

func (s *Store) FinalizeHistory(_ context.Context, id string, status core.HistoryStatus, rowsAffected, conflicts int, errText, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.history[id]
	if !ok {
		return fmt.Errorf("metadatastore: history %s not found", id)
	}
	h.Status = status
	h.RowsAffected = rowsAffected
	h.ConflictsDetected = conflicts
	h.Error = errText
	h.Note = note
	s.history[id] = h
	return nil
}

func (s *Store) SaveConflict(_ context.Context, c core.Conflict) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	s.conflicts = append(s.conflicts, c)
	return nil
}

// History returns a snapshot of every recorded history entry, for test
// assertions.
func (s *Store) History() []core.SyncHistory {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]core.SyncHistory, 0, len(s.history))
	for _, h := range s.history {
		out = append(out, h)
	}
	return out
}

// Conflicts returns a snapshot of every persisted conflict, for test
// assertions.
func (s *Store) Conflicts() []core.Conflict {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]core.Conflict, len(s.conflicts))
	copy(out, s.conflicts)
	return out
}
