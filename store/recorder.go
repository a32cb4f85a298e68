package store

import (
	"context"
	"log/slog"
	"time"

	"pulse-stream-processor/models"
)

// Writer is the persistence side of a Recorder.
type Writer interface {
	SaveBeats(ctx context.Context, beats []Beat) error
	SaveMinuteRecord(ctx context.Context, deviceID string, record models.MinuteRecord) error
}

type minuteItem struct {
	deviceID string
	record   models.MinuteRecord
}

// Recorder buffers engine output and writes it in batches. It implements
// analytics.Observer; the observer methods never block and drop data when the
// buffer is full.
type Recorder struct {
	writer        Writer
	batchSize     int
	flushInterval time.Duration

	beats   chan Beat
	minutes chan minuteItem
	done    chan struct{}
}

func NewRecorder(writer Writer, batchSize int, flushInterval time.Duration) *Recorder {
	if batchSize <= 0 {
		batchSize = 500
	}
	if flushInterval <= 0 {
		flushInterval = 2 * time.Second
	}
	return &Recorder{
		writer:        writer,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		beats:         make(chan Beat, 4*batchSize),
		minutes:       make(chan minuteItem, 64),
		done:          make(chan struct{}),
	}
}

func (r *Recorder) OnResult(deviceID string, result models.ProcessingResult) {
	if result.Bpm == nil {
		return
	}
	beat := Beat{
		DeviceID:  deviceID,
		Timestamp: time.UnixMilli(result.Bpm.TimestampMs).UTC(),
		BPM:       result.Bpm.Instant,
		AvgBPM:    result.Bpm.Average,
	}
	select {
	case r.beats <- beat:
	default:
		slog.Warn("beat buffer is full, dropping beat", "device_id", deviceID)
	}
}

func (r *Recorder) OnMinute(deviceID string, record models.MinuteRecord) {
	select {
	case r.minutes <- minuteItem{deviceID: deviceID, record: record}:
	default:
		slog.Warn("minute buffer is full, dropping record", "device_id", deviceID)
	}
}

// Run writes buffered data until ctx is done, then flushes what is left.
func (r *Recorder) Run(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(r.flushInterval)
	defer ticker.Stop()

	pending := make([]Beat, 0, r.batchSize)
	flush := func(ctx context.Context) {
		if len(pending) == 0 {
			return
		}
		if err := r.writer.SaveBeats(ctx, pending); err != nil {
			slog.Error("failed to save beats", "count", len(pending), "err", err)
		}
		pending = pending[:0]
	}

	for {
		select {
		case <-ctx.Done():
			r.drain(&pending)
			flush(context.Background())
			return
		case beat := <-r.beats:
			pending = append(pending, beat)
			if len(pending) >= r.batchSize {
				flush(ctx)
			}
		case item := <-r.minutes:
			r.saveMinute(ctx, item)
		case <-ticker.C:
			flush(ctx)
		}
	}
}

// Done is closed once Run has returned.
func (r *Recorder) Done() <-chan struct{} { return r.done }

func (r *Recorder) drain(pending *[]Beat) {
	for {
		select {
		case beat := <-r.beats:
			*pending = append(*pending, beat)
		case item := <-r.minutes:
			r.saveMinute(context.Background(), item)
		default:
			return
		}
	}
}

func (r *Recorder) saveMinute(ctx context.Context, item minuteItem) {
	if err := r.writer.SaveMinuteRecord(ctx, item.deviceID, item.record); err != nil {
		slog.Error("failed to save minute record", "device_id", item.deviceID, "err", err)
	}
}
