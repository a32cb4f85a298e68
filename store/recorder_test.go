package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulse-stream-processor/models"
)

type fakeWriter struct {
	mu      sync.Mutex
	batches [][]Beat
	minutes []models.MinuteRecord
}

func (w *fakeWriter) SaveBeats(_ context.Context, beats []Beat) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.batches = append(w.batches, append([]Beat(nil), beats...))
	return nil
}

func (w *fakeWriter) SaveMinuteRecord(_ context.Context, _ string, record models.MinuteRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.minutes = append(w.minutes, record)
	return nil
}

func (w *fakeWriter) state() ([][]Beat, []models.MinuteRecord) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([][]Beat(nil), w.batches...), append([]models.MinuteRecord(nil), w.minutes...)
}

func beatResult(ts int64, bpm float64) models.ProcessingResult {
	return models.ProcessingResult{
		TimestampMs: ts,
		Bpm:         &models.BpmSample{TimestampMs: ts, Instant: bpm, Average: bpm},
	}
}

func TestRecorderBatchesBeats(t *testing.T) {
	writer := &fakeWriter{}
	rec := NewRecorder(writer, 3, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	go rec.Run(ctx)

	rec.OnResult("esp32", models.ProcessingResult{TimestampMs: 1})
	for i := int64(0); i < 4; i++ {
		rec.OnResult("esp32", beatResult(1000+i*800, 75))
	}

	require.Eventually(t, func() bool {
		batches, _ := writer.state()
		return len(batches) == 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	<-rec.Done()

	batches, _ := writer.state()
	require.Len(t, batches, 2)
	assert.Len(t, batches[0], 3)
	assert.Len(t, batches[1], 1)
	assert.Equal(t, "esp32", batches[0][0].DeviceID)
	assert.Equal(t, time.UnixMilli(1000).UTC(), batches[0][0].Timestamp)
	assert.Equal(t, 75.0, batches[1][0].BPM)
}

func TestRecorderSavesMinuteRecords(t *testing.T) {
	writer := &fakeWriter{}
	rec := NewRecorder(writer, 10, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	go rec.Run(ctx)

	record := models.MinuteRecord{
		Minute:     time.Date(2024, 3, 1, 10, 15, 0, 0, time.UTC),
		AverageBPM: 61,
		MinBPM:     60,
		MaxBPM:     62,
	}
	rec.OnMinute("esp32", record)

	require.Eventually(t, func() bool {
		_, minutes := writer.state()
		return len(minutes) == 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	<-rec.Done()

	batches, minutes := writer.state()
	assert.Empty(t, batches)
	assert.Equal(t, record, minutes[0])
}
