package setstore

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"slices"
	"sync"
)

type SetStore interface {
	InSet(ctx context.Context, name, val string) (bool, error)
	Add(ctx context.Context, name string, vals ...string) error
	Remove(ctx context.Context, name string, vals ...string) error
	// returns the sorted members of a set; empty (not an error) if the set doesn't exist
	List(ctx context.Context, name string) ([]string, error)
}

type MemSetStore struct {
	mu   sync.RWMutex
	Sets map[string]map[string]bool
}

var _ SetStore = (*MemSetStore)(nil)

func NewMemSetStore() *MemSetStore {
	return &MemSetStore{
		Sets: make(map[string]map[string]bool),
	}
}

func (s *MemSetStore) InSet(ctx context.Context, name, val string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set, ok := s.Sets[name]
	if !ok {
		// NOTE: currently returns false when entire set isn't found
		return false, nil
	}
	_, ok = set[val]
	return ok, nil
}

func (s *MemSetStore) Add(ctx context.Context, name string, vals ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.Sets[name]
	if !ok {
		set = make(map[string]bool, len(vals))
		s.Sets[name] = set
	}
	for _, v := range vals {
		if v != "" {
			set[v] = true
		}
	}
	return nil
}

// does not error if values are not in set
func (s *MemSetStore) Remove(ctx context.Context, name string, vals ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.Sets[name]
	if !ok {
		return nil
	}
	for _, v := range vals {
		delete(set, v)
	}
	return nil
}

func (s *MemSetStore) List(ctx context.Context, name string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.Sets[name]))
	for v := range s.Sets[name] {
		out = append(out, v)
	}
	slices.Sort(out)
	return out, nil
}

// Replaces the named set with exactly the given values.
func (s *MemSetStore) Replace(ctx context.Context, name string, vals []string) error {
	m := make(map[string]bool, len(vals))
	for _, v := range vals {
		if v != "" {
			m[v] = true
		}
	}
	s.mu.Lock()
	s.Sets[name] = m
	s.mu.Unlock()
	return nil
}

// Loads sets from a JSON file containing an object of set names to string arrays. Existing sets with the same names are replaced.
func (s *MemSetStore) LoadFromFileJSON(p string) error {

	f, err := os.Open(p)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	raw, err := io.ReadAll(f)
	if err != nil {
		return err
	}

	var sets map[string][]string
	if err := json.Unmarshal(raw, &sets); err != nil {
		return err
	}

	for name, l := range sets {
		if err := s.Replace(context.Background(), name, l); err != nil {
			return err
		}
	}
	return nil
}
