package rulestore

import (
	"context"
	"encoding/json"
	"sync"
)

// In-process repository, mostly for tests. Snapshots are stored serialized so that callers never share state with the repository.
type MemRepository struct {
	mu   sync.Mutex
	data []byte
	// number of successful saves
	Saves int
}

var _ Repository = (*MemRepository)(nil)

func NewMemRepository() *MemRepository {
	return &MemRepository{}
}

func (r *MemRepository) Load(ctx context.Context) (*Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.data == nil {
		return emptySnapshot(), nil
	}
	var snap Snapshot
	if err := json.Unmarshal(r.data, &snap); err != nil {
		return nil, err
	}
	snap.normalize()
	return &snap, nil
}

func (r *MemRepository) Save(ctx context.Context, snap *Snapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data = b
	r.Saves++
	return nil
}

func (r *MemRepository) SaveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Saves
}
