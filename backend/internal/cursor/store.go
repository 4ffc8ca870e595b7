package cursor

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Store loads and saves a State.
type Store interface {
	Load() (State, error)
	Save(State) error
}

// FileStore keeps the state in a single JSON file.
type FileStore struct {
	path string
}

// NewFileStore returns a FileStore at path. The file is created on first Save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the state file path.
func (f *FileStore) Path() string { return f.path }

// Load returns the zero State when the file does not exist yet.
func (f *FileStore) Load() (State, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return State{}, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("cursor: read %s: %w", f.path, err)
	}
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return State{}, fmt.Errorf("cursor: decode %s: %w", f.path, err)
	}
	return s, nil
}

// Save writes to a temp file and renames it over the state file.
func (f *FileStore) Save(s State) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("cursor: mkdir: %w", err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("cursor: encode: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("cursor: write: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("cursor: rename: %w", err)
	}
	return nil
}

// MemoryStore keeps the state in memory.
type MemoryStore struct {
	State State
}

func (m *MemoryStore) Load() (State, error) { return m.State, nil }

func (m *MemoryStore) Save(s State) error {
	m.State = s
	return nil
}

// Cursor binds the pure State functions to a Store.
type Cursor struct {
	store Store
}

// New returns a Cursor persisted in store.
func New(store Store) *Cursor {
	return &Cursor{store: store}
}

// State returns the persisted state.
func (c *Cursor) State() (State, error) {
	return c.store.Load()
}

// NextKeys reads the persisted state and returns the next count keys.
// The key list is validated before the state is read.
func (c *Cursor) NextKeys(keys []string, count int) ([]string, error) {
	if _, err := NextKeys(State{}, keys, count); err != nil {
		return nil, err
	}
	s, err := c.store.Load()
	if err != nil {
		return nil, err
	}
	return NextKeys(s, keys, count)
}

// Advance persists key as the last completed key. Call it once per key.
func (c *Cursor) Advance(key string) error {
	s, err := c.store.Load()
	if err != nil {
		return err
	}
	return c.store.Save(s.Advance(key))
}
