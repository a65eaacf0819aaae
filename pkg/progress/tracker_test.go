package progress

import (
	"context"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/models"
)

func setupTracker(t *testing.T) (*RedisTracker, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	return NewRedisTracker(rdb, Config{TTL: time.Hour}, logger), mr
}

func TestRedisTracker(t *testing.T) {
	ctx := context.Background()

	t.Run("should return nil for unknown batches", func(t *testing.T) {
		tracker, _ := setupTracker(t)
		p, err := tracker.Get(ctx, "missing")
		require.NoError(t, err)
		assert.Nil(t, p)
	})

	t.Run("should keep the latest update with a ttl", func(t *testing.T) {
		tracker, mr := setupTracker(t)

		require.NoError(t, tracker.Update(ctx, models.Progress{BatchID: "batch-1", Stage: models.StageReading, Message: "Reading input"}))
		require.NoError(t, tracker.Update(ctx, models.Progress{BatchID: "batch-1", Stage: models.StageValidating, Processed: 3, Total: 10}))

		p, err := tracker.Get(ctx, "batch-1")
		require.NoError(t, err)
		require.NotNil(t, p)
		assert.Equal(t, models.StageValidating, p.Stage)
		assert.Equal(t, 3, p.Processed)
		assert.Equal(t, 10, p.Total)

		assert.Equal(t, time.Hour, mr.TTL(DefaultKeyPrefix+":batch-1"))
	})

	t.Run("should expire progress", func(t *testing.T) {
		tracker, mr := setupTracker(t)
		require.NoError(t, tracker.Update(ctx, models.Progress{BatchID: "batch-1", Stage: models.StageComplete}))

		mr.FastForward(2 * time.Hour)

		p, err := tracker.Get(ctx, "batch-1")
		require.NoError(t, err)
		assert.Nil(t, p)
	})

	t.Run("should clear progress", func(t *testing.T) {
		tracker, _ := setupTracker(t)
		require.NoError(t, tracker.Update(ctx, models.Progress{BatchID: "batch-1"}))
		require.NoError(t, tracker.Clear(ctx, "batch-1"))

		p, err := tracker.Get(ctx, "batch-1")
		require.NoError(t, err)
		assert.Nil(t, p)
	})

	t.Run("should record and forward through the reporter", func(t *testing.T) {
		tracker, _ := setupTracker(t)
		var seen []models.Stage
		report := tracker.Reporter(ctx, func(p models.Progress) { seen = append(seen, p.Stage) })

		report(models.Progress{BatchID: "batch-1", Stage: models.StageStart})
		report(models.Progress{BatchID: "batch-1", Stage: models.StageReading})

		assert.Equal(t, []models.Stage{models.StageStart, models.StageReading}, seen)
		p, err := tracker.Get(ctx, "batch-1")
		require.NoError(t, err)
		assert.Equal(t, models.StageReading, p.Stage)
	})

	t.Run("should keep forwarding when redis is down", func(t *testing.T) {
		tracker, mr := setupTracker(t)
		mr.Close()

		called := false
		report := tracker.Reporter(ctx, func(models.Progress) { called = true })
		assert.NotPanics(t, func() { report(models.Progress{BatchID: "batch-1"}) })
		assert.True(t, called)
	})
}
