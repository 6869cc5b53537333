package engine

import (
	"context"
	"testing"

	"github.com/bluesky-social/guildmod/automod/countstore"

	"github.com/stretchr/testify/assert"
)

func TestCountHistory(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	h := &CountHistory{Counters: countstore.NewMemCountStore()}

	n, err := h.GetWarningCount(ctx, "g1", "u1")
	assert.NoError(err)
	assert.Equal(0, n)

	assert.NoError(h.RecordWarning(ctx, "g1", "u1"))
	assert.NoError(h.RecordWarning(ctx, "g1", "u1"))
	assert.NoError(h.RecordWarning(ctx, "g2", "u1"))

	n, err = h.GetWarningCount(ctx, "g1", "u1")
	assert.NoError(err)
	assert.Equal(2, n)

	assert.NoError(h.ClearWarnings(ctx, "g1", "u1"))
	n, err = h.GetWarningCount(ctx, "g1", "u1")
	assert.NoError(err)
	assert.Equal(0, n)
	n, err = h.GetWarningCount(ctx, "g2", "u1")
	assert.NoError(err)
	assert.Equal(1, n)
}

func TestCountJoinTracker(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	j := &CountJoinTracker{Counters: countstore.NewMemCountStore()}

	for _, u := range []string{"u1", "u2", "u3"} {
		assert.NoError(j.RecordJoin(ctx, "g1", u))
	}
	assert.NoError(j.RecordJoin(ctx, "g2", "u1"))

	n, err := j.GetRecentJoinCount(ctx, "g1")
	assert.NoError(err)
	// tolerate a minute boundary between the writes and the read
	assert.True(n == 3 || n == 0, "unexpected join count: %d", n)

	n, err = j.GetRecentJoinCount(ctx, "g3")
	assert.NoError(err)
	assert.Equal(0, n)
}
