package rulestore

import (
	"context"
	"time"
)

func (s *Store) persist(ctx context.Context) {
	if s.Repo == nil {
		return
	}
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	if s.SaveDelay <= 0 || s.closed {
		_ = s.saveLocked(ctx)
		return
	}
	if s.timer != nil {
		// a save is already pending, and will include this mutation
		return
	}
	var t *time.Timer
	t = time.AfterFunc(s.SaveDelay, func() {
		s.saveMu.Lock()
		defer s.saveMu.Unlock()
		if s.timer != t {
			// superseded by Flush
			return
		}
		s.timer = nil
		_ = s.saveLocked(context.Background())
	})
	s.timer = t
}

// caller must hold saveMu
func (s *Store) saveLocked(ctx context.Context) error {
	start := time.Now()
	snap, err := s.snapshot(ctx)
	if err == nil {
		err = s.Repo.Save(ctx, snap)
	}
	if err != nil {
		s.Logger.Error("failed to persist rules", "err", err)
		persistErrors.Inc()
		return err
	}
	persistDuration.Observe(time.Since(start).Seconds())
	return nil
}

// Writes the current state to the repository immediately, cancelling any pending debounced save.
func (s *Store) Flush(ctx context.Context) error {
	if s.Repo == nil {
		return nil
	}
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	return s.saveLocked(ctx)
}

// Flushes, then switches to synchronous saves for any later mutation.
func (s *Store) Close(ctx context.Context) error {
	s.saveMu.Lock()
	s.closed = true
	s.saveMu.Unlock()
	return s.Flush(ctx)
}
