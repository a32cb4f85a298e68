package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"pulse-stream-processor/models"
)

const (
	snapshotPrefix = "snapshot:"
	minutesPrefix  = "minutes:"

	// one day of minute records per device
	maxMinuteRecords = 1440
)

type RedisClient struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisClient(ctx context.Context, addr string, ttl time.Duration) (*RedisClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		DB:           0,
		PoolSize:     50,
		MinIdleConns: 10,
		MaxRetries:   3,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", addr, err)
	}

	return NewWithClient(rdb, ttl), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(rdb *redis.Client, ttl time.Duration) *RedisClient {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisClient{client: rdb, ttl: ttl}
}

func (rc *RedisClient) Close() error {
	return rc.client.Close()
}

func (rc *RedisClient) SaveSnapshot(ctx context.Context, snapshot models.Snapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return rc.client.Set(ctx, snapshotPrefix+snapshot.DeviceID, data, rc.ttl).Err()
}

// GetSnapshot returns nil without error when nothing is stored for the device.
func (rc *RedisClient) GetSnapshot(ctx context.Context, deviceID string) (*models.Snapshot, error) {
	val, err := rc.client.Get(ctx, snapshotPrefix+deviceID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var snapshot models.Snapshot
	if err := json.Unmarshal(val, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot for %s: %w", deviceID, err)
	}
	return &snapshot, nil
}

func (rc *RedisClient) AppendMinuteRecord(ctx context.Context, deviceID string, record models.MinuteRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}

	key := minutesPrefix + deviceID
	pipe := rc.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, -maxMinuteRecords, -1)
	_, err = pipe.Exec(ctx)
	return err
}

func (rc *RedisClient) MinuteRecords(ctx context.Context, deviceID string) ([]models.MinuteRecord, error) {
	vals, err := rc.client.LRange(ctx, minutesPrefix+deviceID, 0, -1).Result()
	if err != nil {
		return nil, err
	}

	records := make([]models.MinuteRecord, 0, len(vals))
	for _, v := range vals {
		var record models.MinuteRecord
		if err := json.Unmarshal([]byte(v), &record); err != nil {
			return nil, fmt.Errorf("failed to decode minute record for %s: %w", deviceID, err)
		}
		records = append(records, record)
	}
	return records, nil
}
