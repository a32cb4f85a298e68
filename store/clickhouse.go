package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"pulse-stream-processor/models"
)

// Beat is one accepted heart beat as stored in the heart_beats table.
type Beat struct {
	DeviceID  string
	Timestamp time.Time
	BPM       float64
	AvgBPM    float64
}

type ClickHouseDB struct {
	conn driver.Conn
}

func NewClickHouseDB(ctx context.Context, addr, database, username, password string) (*ClickHouseDB, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: database,
			Username: username,
			Password: password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout: 5 * time.Second,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}
	slog.Info("connected to ClickHouse", "addr", addr, "database", database)

	db := &ClickHouseDB{conn: conn}
	if err := db.InitSchema(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return db, nil
}

func (db *ClickHouseDB) InitSchema(ctx context.Context) error {
	for _, tableSQL := range AllTables() {
		if err := db.conn.Exec(ctx, tableSQL); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

// SaveBeats inserts beats in a single batch.
func (db *ClickHouseDB) SaveBeats(ctx context.Context, beats []Beat) error {
	if len(beats) == 0 {
		return nil
	}

	batch, err := db.conn.PrepareBatch(ctx, "INSERT INTO heart_beats (timestamp, device_id, bpm, avg_bpm)")
	if err != nil {
		return fmt.Errorf("failed to prepare beat batch: %w", err)
	}
	for _, b := range beats {
		if err := batch.Append(b.Timestamp, b.DeviceID, b.BPM, b.AvgBPM); err != nil {
			_ = batch.Abort()
			return fmt.Errorf("failed to append beat: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to insert beats: %w", err)
	}
	return nil
}

func (db *ClickHouseDB) SaveMinuteRecord(ctx context.Context, deviceID string, record models.MinuteRecord) error {
	query := `
		INSERT INTO minute_bpm (minute, device_id, avg_bpm, min_bpm, max_bpm)
		VALUES (?, ?, ?, ?, ?)
	`
	err := db.conn.Exec(ctx, query,
		record.Minute,
		deviceID,
		record.AverageBPM,
		record.MinBPM,
		record.MaxBPM,
	)
	if err != nil {
		return fmt.Errorf("failed to insert minute record: %w", err)
	}
	return nil
}

func (db *ClickHouseDB) Close() error {
	return db.conn.Close()
}
