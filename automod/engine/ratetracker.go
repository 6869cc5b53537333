package engine

import (
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

var DefaultRateWindow = 5 * time.Minute

// Sliding-window message timestamps per guild and user, used for MessageRate rules when the caller does not supply a count.
type RateTracker struct {
	// timestamps older than this are dropped
	MaxWindow time.Duration
	events    *xsync.MapOf[string, []time.Time]
}

func NewRateTracker(maxWindow time.Duration) *RateTracker {
	if maxWindow <= 0 {
		maxWindow = DefaultRateWindow
	}
	return &RateTracker{
		MaxWindow: maxWindow,
		events:    xsync.NewMapOf[string, []time.Time](),
	}
}

func rateKey(guildID, userID string) string {
	return guildID + ":" + userID
}

func (rt *RateTracker) Record(guildID, userID string, now time.Time) {
	cutoff := now.Add(-rt.MaxWindow)
	rt.events.Compute(rateKey(guildID, userID), func(prev []time.Time, loaded bool) ([]time.Time, bool) {
		// always a fresh slice; readers may hold the old one
		out := make([]time.Time, 0, len(prev)+1)
		for _, t := range prev {
			if t.After(cutoff) {
				out = append(out, t)
			}
		}
		return append(out, now), false
	})
}

// Number of recorded messages in (now-window, now].
func (rt *RateTracker) Count(guildID, userID string, window time.Duration, now time.Time) int {
	ts, ok := rt.events.Load(rateKey(guildID, userID))
	if !ok {
		return 0
	}
	cutoff := now.Add(-window)
	n := 0
	for _, t := range ts {
		if t.After(cutoff) && !t.After(now) {
			n++
		}
	}
	return n
}

// Drops keys with no timestamps inside MaxWindow. Returns the number of keys removed.
func (rt *RateTracker) Prune(now time.Time) int {
	cutoff := now.Add(-rt.MaxWindow)
	removed := 0
	rt.events.Range(func(key string, ts []time.Time) bool {
		if len(ts) > 0 && ts[len(ts)-1].After(cutoff) {
			return true
		}
		rt.events.Compute(key, func(cur []time.Time, loaded bool) ([]time.Time, bool) {
			del := !loaded || len(cur) == 0 || !cur[len(cur)-1].After(cutoff)
			if del && loaded {
				removed++
			}
			return cur, del
		})
		return true
	})
	return removed
}
