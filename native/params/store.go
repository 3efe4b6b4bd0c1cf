package params

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"stakevault/storage"
)

// pausesKey holds the JSON encoded pause table.
const pausesKey = "params/pauses"

// Pauses maps a module name to its operator pause switch.
type Pauses map[string]bool

// Store provides typed accessors for operator-controlled parameters.
type Store struct {
	db storage.Database

	mu     sync.RWMutex
	cached Pauses
}

// NewStore constructs a parameter store wrapper using the supplied database.
func NewStore(db storage.Database) *Store {
	return &Store{db: db}
}

func (s *Store) withDB() (storage.Database, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("params: state not configured")
	}
	return s.db, nil
}

// SetPaused persists the pause switch for module.
func (s *Store) SetPaused(module string, paused bool) error {
	db, err := s.withDB()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current, err := s.load(db)
	if err != nil {
		return err
	}
	next := make(Pauses, len(current)+1)
	for k, v := range current {
		next[k] = v
	}
	if paused {
		next[module] = true
	} else {
		delete(next, module)
	}
	encoded, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("params: encode pauses: %w", err)
	}
	if err := db.Put([]byte(pausesKey), encoded); err != nil {
		return fmt.Errorf("params: store pauses: %w", err)
	}
	s.cached = next
	return nil
}

// Pauses loads the persisted pause configuration. When unset, an empty
// configuration is returned.
func (s *Store) Pauses() (Pauses, error) {
	db, err := s.withDB()
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	if s.cached != nil {
		out := make(Pauses, len(s.cached))
		for k, v := range s.cached {
			out[k] = v
		}
		s.mu.RUnlock()
		return out, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	loaded, err := s.load(db)
	if err != nil {
		return nil, err
	}
	s.cached = loaded
	out := make(Pauses, len(loaded))
	for k, v := range loaded {
		out[k] = v
	}
	return out, nil
}

// PausedModules returns the names of paused modules in sorted order.
func (s *Store) PausedModules() ([]string, error) {
	pauses, err := s.Pauses()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(pauses))
	for module, paused := range pauses {
		if paused {
			out = append(out, module)
		}
	}
	sort.Strings(out)
	return out, nil
}

// IsPaused satisfies the native pause view. A load failure is treated as
// paused so a broken parameter store cannot silently enable a module.
func (s *Store) IsPaused(module string) bool {
	pauses, err := s.Pauses()
	if err != nil {
		return true
	}
	return pauses[module]
}

func (s *Store) load(db storage.Database) (Pauses, error) {
	raw, err := db.Get([]byte(pausesKey))
	if errors.Is(err, storage.ErrNotFound) {
		return Pauses{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("params: load pauses: %w", err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return Pauses{}, nil
	}
	var pauses Pauses
	if err := json.Unmarshal(raw, &pauses); err != nil {
		return nil, fmt.Errorf("params: decode pauses: %w", err)
	}
	if pauses == nil {
		pauses = Pauses{}
	}
	return pauses, nil
}
