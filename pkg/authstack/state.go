package authstack

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// StateStore records deployments and their ownership so that only
// resources created by this tool are destroyed by default.
type StateStore interface {
	Save(ctx context.Context, ref StackRef) error
	Get(ctx context.Context, id string) (*StackRef, error)
	List(ctx context.Context, filter ListFilter) ([]StackRef, error)
	Delete(ctx context.Context, id string) error
	Exists(ctx context.Context, id string) (bool, error)
	UpdateOwnership(ctx context.Context, id string, owned bool) error
}

// StateStoreVersion is the current schema version for state storage.
const StateStoreVersion = 1

// StateData is the serializable state format.
type StateData struct {
	Version     int                 `json:"version"`
	Deployments map[string]StackRef `json:"deployments"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

func newStateData() StateData {
	return StateData{
		Version:     StateStoreVersion,
		Deployments: make(map[string]StackRef),
		UpdatedAt:   time.Now(),
	}
}

// filter returns refs matching f, ordered by creation time then ID, oldest
// first unless f.Newest is set.
func (d *StateData) filter(f ListFilter) []StackRef {
	var refs []StackRef
	for _, ref := range d.Deployments {
		if f.StackID != "" && ref.StackID != f.StackID {
			continue
		}
		if f.Provider != "" && ref.Provider != f.Provider {
			continue
		}
		refs = append(refs, ref)
	}

	sort.Slice(refs, func(i, j int) bool {
		a, b := refs[i], refs[j]
		if f.Newest {
			a, b = b, a
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	if f.Offset > 0 {
		if f.Offset >= len(refs) {
			return nil
		}
		refs = refs[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(refs) {
		refs = refs[:f.Limit]
	}
	return refs
}

// MemoryStateStore is an in-memory StateStore implementation for testing.
type MemoryStateStore struct {
	mu    sync.RWMutex
	state StateData
}

// NewMemoryStateStore creates a new in-memory state store.
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{state: newStateData()}
}

// Save implements StateStore.
func (s *MemoryStateStore) Save(ctx context.Context, ref StackRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Deployments[ref.ID] = ref
	s.state.UpdatedAt = time.Now()
	return nil
}

// Get implements StateStore.
func (s *MemoryStateStore) Get(ctx context.Context, id string) (*StackRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ref, exists := s.state.Deployments[id]
	if !exists {
		return nil, ErrNotFound("deployment", id)
	}
	return &ref, nil
}

// List implements StateStore.
func (s *MemoryStateStore) List(ctx context.Context, filter ListFilter) ([]StackRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.filter(filter), nil
}

// Delete implements StateStore. Deleting an unknown ID is not an error.
func (s *MemoryStateStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.state.Deployments[id]; !exists {
		return nil
	}

	delete(s.state.Deployments, id)
	s.state.UpdatedAt = time.Now()
	return nil
}

// Exists implements StateStore.
func (s *MemoryStateStore) Exists(ctx context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.state.Deployments[id]
	return exists, nil
}

// UpdateOwnership implements StateStore.
func (s *MemoryStateStore) UpdateOwnership(ctx context.Context, id string, owned bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ref, exists := s.state.Deployments[id]
	if !exists {
		return ErrNotFound("deployment", id)
	}

	ref.Owned = owned
	s.state.Deployments[id] = ref
	s.state.UpdatedAt = time.Now()
	return nil
}

// FileStateStore is a JSON file-backed StateStore.
type FileStateStore struct {
	mu       sync.RWMutex
	filePath string
	state    StateData
}

// NewFileStateStore creates a file-based state store, loading the file if it exists.
func NewFileStateStore(filePath string) (*FileStateStore, error) {
	s := &FileStateStore{
		filePath: filePath,
		state:    newStateData(),
	}

	if err := s.load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}

	return s, nil
}

// Path returns the backing file path.
func (s *FileStateStore) Path() string {
	return s.filePath
}

func (s *FileStateStore) load() error {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return err
	}

	var state StateData
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("invalid state file format: %w", err)
	}

	if state.Version != StateStoreVersion {
		if err := migrate(&state); err != nil {
			return fmt.Errorf("state migration failed: %w", err)
		}
	}

	if state.Deployments == nil {
		state.Deployments = make(map[string]StackRef)
	}

	s.state = state
	return nil
}

// migrate upgrades older state files in place.
func migrate(state *StateData) error {
	if state.Version > StateStoreVersion {
		return fmt.Errorf("state version %d is newer than supported version %d", state.Version, StateStoreVersion)
	}
	state.Version = StateStoreVersion
	return nil
}

// save writes state to file atomically.
func (s *FileStateStore) save() error {
	s.state.UpdatedAt = time.Now()

	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	tmpFile := s.filePath + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0600); err != nil {
		return fmt.Errorf("failed to write temp state file: %w", err)
	}

	if err := os.Rename(tmpFile, s.filePath); err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("failed to rename state file: %w", err)
	}

	return nil
}

// Save implements StateStore.
func (s *FileStateStore) Save(ctx context.Context, ref StackRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Deployments[ref.ID] = ref
	return s.save()
}

// Get implements StateStore.
func (s *FileStateStore) Get(ctx context.Context, id string) (*StackRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ref, exists := s.state.Deployments[id]
	if !exists {
		return nil, ErrNotFound("deployment", id)
	}
	return &ref, nil
}

// List implements StateStore.
func (s *FileStateStore) List(ctx context.Context, filter ListFilter) ([]StackRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.filter(filter), nil
}

// Delete implements StateStore.
func (s *FileStateStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.state.Deployments[id]; !exists {
		return nil // Idempotent
	}

	delete(s.state.Deployments, id)
	return s.save()
}

// Exists implements StateStore.
func (s *FileStateStore) Exists(ctx context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.state.Deployments[id]
	return exists, nil
}

// UpdateOwnership implements StateStore.
func (s *FileStateStore) UpdateOwnership(ctx context.Context, id string, owned bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ref, exists := s.state.Deployments[id]
	if !exists {
		return ErrNotFound("deployment", id)
	}

	ref.Owned = owned
	s.state.Deployments[id] = ref
	return s.save()
}

// DefaultStateStorePath returns the default path for the state store file.
func DefaultStateStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".steps-auth", "state.json")
}
