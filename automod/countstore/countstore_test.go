package countstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemCountStoreBasics(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	cs := NewMemCountStore()

	c, err := cs.GetCount(ctx, "warnings", "guild1:user1", PeriodTotal)
	assert.NoError(err)
	assert.Equal(0, c)
	assert.NoError(cs.Increment(ctx, "warnings", "guild1:user1"))
	assert.NoError(cs.Increment(ctx, "warnings", "guild1:user1"))

	for _, period := range []string{PeriodTotal, PeriodDay, PeriodHour, PeriodMinute} {
		c, err = cs.GetCount(ctx, "warnings", "guild1:user1", period)
		assert.NoError(err)
		assert.Equal(2, c)
	}

	c, err = cs.GetCountDistinct(ctx, "joins", "guild1", PeriodTotal)
	assert.NoError(err)
	assert.Equal(0, c)
	assert.NoError(cs.IncrementDistinct(ctx, "joins", "guild1", "one"))
	assert.NoError(cs.IncrementDistinct(ctx, "joins", "guild1", "one"))
	assert.NoError(cs.IncrementDistinct(ctx, "joins", "guild1", "one"))
	c, err = cs.GetCountDistinct(ctx, "joins", "guild1", PeriodTotal)
	assert.NoError(err)
	assert.Equal(1, c)

	assert.NoError(cs.IncrementDistinct(ctx, "joins", "guild1", "two"))
	assert.NoError(cs.IncrementDistinct(ctx, "joins", "guild1", "three"))

	for _, period := range []string{PeriodTotal, PeriodDay, PeriodHour, PeriodMinute} {
		c, err = cs.GetCountDistinct(ctx, "joins", "guild1", period)
		assert.NoError(err)
		assert.Equal(3, c)
	}
}

func TestMemCountStoreConcurrent(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	cs := NewMemCountStore()

	c, err := cs.GetCount(ctx, "warnings", "guild1:user1", PeriodTotal)
	assert.NoError(err)
	assert.Equal(0, c)

	// four writers and two readers; run with -race
	var wg sync.WaitGroup
	fnInc := func(name, val string, times int) {
		for i := 0; i < times; i++ {
			assert.NoError(cs.Increment(ctx, name, val))
			assert.NoError(cs.IncrementDistinct(ctx, name, name, val))
			time.Sleep(time.Nanosecond)
		}
		wg.Done()
	}
	fnRead := func(name, val string, times int) {
		for i := 0; i < times; i++ {
			_, err := cs.GetCount(ctx, name, val, PeriodTotal)
			assert.NoError(err)
			time.Sleep(time.Nanosecond)
		}
	}
	wg.Add(4)
	go fnInc("warnings", "guild1:user1", 10)
	go fnInc("warnings", "guild1:user1", 10)
	go fnRead("warnings", "guild1:user1", 10)
	go fnInc("joins", "guild1", 6)
	go fnInc("joins", "guild1", 6)
	go fnRead("joins", "guild1", 6)
	wg.Wait()

	c, err = cs.GetCount(ctx, "warnings", "guild1:user1", PeriodTotal)
	assert.NoError(err)
	assert.Equal(20, c)
	c, err = cs.GetCount(ctx, "joins", "guild1", PeriodTotal)
	assert.NoError(err)
	assert.Equal(12, c)

	c, err = cs.GetCountDistinct(ctx, "warnings", "warnings", PeriodTotal)
	assert.NoError(err)
	assert.Equal(1, c)
	c, err = cs.GetCountDistinct(ctx, "joins", "joins", PeriodTotal)
	assert.NoError(err)
	assert.Equal(1, c)
}

func TestMemCountStoreReset(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	cs := NewMemCountStore()
	assert.NoError(cs.Increment(ctx, "warnings", "guild1:user1"))
	assert.NoError(cs.Increment(ctx, "warnings", "guild1:user1"))
	assert.NoError(cs.Reset(ctx, "warnings", "guild1:user1", PeriodTotal))

	c, err := cs.GetCount(ctx, "warnings", "guild1:user1", PeriodTotal)
	assert.NoError(err)
	assert.Equal(0, c)
	c, err = cs.GetCount(ctx, "warnings", "guild1:user1", PeriodDay)
	assert.NoError(err)
	assert.Equal(2, c)
}

func TestMemCountStorePrune(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	cs := NewMemCountStore()
	assert.NoError(cs.Increment(ctx, "joins", "guild1"))
	assert.NoError(cs.IncrementDistinct(ctx, "joins", "guild1", "user1"))
	assert.Len(cs.Counts, 4)
	assert.Len(cs.DistinctCounts, 4)

	// nothing has expired yet
	assert.Equal(0, cs.Prune(time.Now()))

	// minute and hour buckets are gone, day and total remain
	assert.Equal(4, cs.Prune(time.Now().Add(3*time.Hour)))
	assert.Len(cs.Counts, 2)
	assert.Len(cs.DistinctCounts, 2)
	c, err := cs.GetCount(ctx, "joins", "guild1", PeriodTotal)
	assert.NoError(err)
	assert.Equal(1, c)

	assert.Equal(2, cs.Prune(time.Now().Add(72*time.Hour)))
	assert.Len(cs.Counts, 1)
	assert.Len(cs.DistinctCounts, 1)
}

func TestRedisCountStore(t *testing.T) {
	t.Skip("live test, need redis running locally")
	assert := assert.New(t)
	ctx := context.Background()

	cs, err := NewRedisCountStore("redis://localhost:6379/0")
	if err != nil {
		t.Fatal(err)
	}
	assert.NoError(cs.Increment(ctx, "test-warnings", "guild1:user1"))
	c, err := cs.GetCount(ctx, "test-warnings", "guild1:user1", PeriodMinute)
	assert.NoError(err)
	assert.True(c >= 1)
	assert.NoError(cs.Reset(ctx, "test-warnings", "guild1:user1", PeriodTotal))
}
