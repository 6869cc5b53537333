package countstore

import (
	"context"
	"sync"
	"time"
)

// How long a windowed bucket is kept after its last write. Total counters never expire.
var memBucketTTL = map[string]time.Duration{
	PeriodDay:    48 * time.Hour,
	PeriodHour:   2 * time.Hour,
	PeriodMinute: 2 * time.Minute,
}

// How often writes check for expired buckets.
var MemPruneInterval = time.Minute

// Process-local CountStore. Day, hour and minute buckets are dropped once they have expired, so memory is bounded by the number of distinct names and values seen recently (plus total counters, which are kept for the life of the process).
type MemCountStore struct {
	mu             sync.Mutex
	Counts         map[string]int
	DistinctCounts map[string]map[string]bool
	expires        map[string]time.Time
	nextPrune      time.Time
}

var _ CountStore = (*MemCountStore)(nil)

func NewMemCountStore() *MemCountStore {
	return &MemCountStore{
		Counts:         make(map[string]int),
		DistinctCounts: make(map[string]map[string]bool),
		expires:        make(map[string]time.Time),
	}
}

func (s *MemCountStore) GetCount(ctx context.Context, name, val, period string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Counts[periodBucket(name, val, period)], nil
}

func (s *MemCountStore) Increment(ctx context.Context, name, val string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for _, p := range allPeriods {
		k := periodBucket(name, val, p)
		s.Counts[k]++
		s.touch(k, p, now)
	}
	s.maybePrune(now)
	return nil
}

func (s *MemCountStore) Reset(ctx context.Context, name, val, period string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := periodBucket(name, val, period)
	delete(s.Counts, k)
	if _, ok := s.DistinctCounts[k]; !ok {
		delete(s.expires, k)
	}
	return nil
}

func (s *MemCountStore) GetCountDistinct(ctx context.Context, name, bucket, period string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.DistinctCounts[periodBucket(name, bucket, period)]), nil
}

func (s *MemCountStore) IncrementDistinct(ctx context.Context, name, bucket, val string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for _, p := range allPeriods {
		k := periodBucket(name, bucket, p)
		m, ok := s.DistinctCounts[k]
		if !ok {
			m = make(map[string]bool)
			s.DistinctCounts[k] = m
		}
		m[val] = true
		s.touch(k, p, now)
	}
	s.maybePrune(now)
	return nil
}

func (s *MemCountStore) touch(key, period string, now time.Time) {
	if ttl, ok := memBucketTTL[period]; ok {
		s.expires[key] = now.Add(ttl)
	}
}

func (s *MemCountStore) maybePrune(now time.Time) {
	if now.Before(s.nextPrune) {
		return
	}
	s.nextPrune = now.Add(MemPruneInterval)
	s.pruneLocked(now)
}

// Drops buckets which expired before now. Returns the number of buckets removed.
func (s *MemCountStore) Prune(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pruneLocked(now)
}

func (s *MemCountStore) pruneLocked(now time.Time) int {
	n := 0
	for k, exp := range s.expires {
		if !now.After(exp) {
			continue
		}
		if _, ok := s.Counts[k]; ok {
			delete(s.Counts, k)
			n++
		}
		if _, ok := s.DistinctCounts[k]; ok {
			delete(s.DistinctCounts, k)
			n++
		}
		delete(s.expires, k)
	}
	return n
}
