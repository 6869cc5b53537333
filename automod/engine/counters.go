package engine

import (
	"context"

	"github.com/bluesky-social/guildmod/automod/countstore"
)

// Moderation history collaborator, consulted for warning-count conditions and warn escalation.
type WarningHistory interface {
	GetWarningCount(ctx context.Context, guildID, userID string) (int, error)
}

// Join-velocity collaborator.
type JoinTracker interface {
	RecordJoin(ctx context.Context, guildID, userID string) error
	GetRecentJoinCount(ctx context.Context, guildID string) (int, error)
}

const (
	counterWarnings = "automod-warnings"
	counterJoins    = "automod-joins"
	counterQuota    = "automod-quota"
)

// Warning history kept in a CountStore. Counts never expire.
type CountHistory struct {
	Counters countstore.CountStore
}

var _ WarningHistory = (*CountHistory)(nil)

func memberKey(guildID, userID string) string {
	return guildID + ":" + userID
}

func (h *CountHistory) RecordWarning(ctx context.Context, guildID, userID string) error {
	return h.Counters.Increment(ctx, counterWarnings, memberKey(guildID, userID))
}

func (h *CountHistory) GetWarningCount(ctx context.Context, guildID, userID string) (int, error) {
	return h.Counters.GetCount(ctx, counterWarnings, memberKey(guildID, userID), countstore.PeriodTotal)
}

func (h *CountHistory) ClearWarnings(ctx context.Context, guildID, userID string) error {
	return h.Counters.Reset(ctx, counterWarnings, memberKey(guildID, userID), countstore.PeriodTotal)
}

// Counts joins per guild in calendar-minute buckets: "recent" means the current UTC minute.
type CountJoinTracker struct {
	Counters countstore.CountStore
}

var _ JoinTracker = (*CountJoinTracker)(nil)

func (j *CountJoinTracker) RecordJoin(ctx context.Context, guildID, userID string) error {
	return j.Counters.Increment(ctx, counterJoins, guildID)
}

func (j *CountJoinTracker) GetRecentJoinCount(ctx context.Context, guildID string) (int, error) {
	return j.Counters.GetCount(ctx, counterJoins, guildID, countstore.PeriodMinute)
}
