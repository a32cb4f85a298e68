package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulse-stream-processor/models"
)

// Runs against a real server: REDIS_TEST_ADDR=localhost:6379 go test ./cache
func newTestClient(t *testing.T) *RedisClient {
	t.Helper()
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	rc, err := NewRedisClient(context.Background(), addr, time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rc.Close() })
	return rc
}

func TestSnapshotRoundTrip(t *testing.T) {
	rc := newTestClient(t)
	ctx := context.Background()
	deviceID := "test-" + uuid.NewString()
	t.Cleanup(func() { rc.client.Del(ctx, snapshotPrefix+deviceID) })

	missing, err := rc.GetSnapshot(ctx, deviceID)
	require.NoError(t, err)
	assert.Nil(t, missing)

	bpm := 75.0
	require.NoError(t, rc.SaveSnapshot(ctx, models.Snapshot{DeviceID: deviceID, Samples: 40, BPM: &bpm}))

	got, err := rc.GetSnapshot(ctx, deviceID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(40), got.Samples)
	require.NotNil(t, got.BPM)
	assert.Equal(t, 75.0, *got.BPM)

	ttl, err := rc.client.TTL(ctx, snapshotPrefix+deviceID).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}

func TestMinuteRecordsKeepOrder(t *testing.T) {
	rc := newTestClient(t)
	ctx := context.Background()
	deviceID := "test-" + uuid.NewString()
	t.Cleanup(func() { rc.client.Del(ctx, minutesPrefix+deviceID) })

	minute := time.Date(2024, 3, 1, 10, 15, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		record := models.MinuteRecord{Minute: minute.Add(time.Duration(i) * time.Minute), AverageBPM: float64(60 + i)}
		require.NoError(t, rc.AppendMinuteRecord(ctx, deviceID, record))
	}

	records, err := rc.MinuteRecords(ctx, deviceID)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, 60.0, records[0].AverageBPM)
	assert.Equal(t, 62.0, records[2].AverageBPM)
	assert.True(t, records[2].Minute.Equal(minute.Add(2*time.Minute)))
}
