package analytics

import (
	"errors"
	"fmt"
	"time"

	"pulse-stream-processor/models"
)

// ErrTimestampRegression is returned for a sample older than the one before it.
var ErrTimestampRegression = errors.New("sample timestamp went backwards")

// StreamProcessor runs the full pipeline for a single sensor stream. It is not
// safe for concurrent use.
type StreamProcessor struct {
	peaks  *PeakDetector
	spo2   *SpO2Estimator
	bpm    *BpmTracker
	minute *MinuteAggregator

	started      bool
	startMs      int64
	lastMs       int64
	irSeries     []models.Point
	redSeries    []models.Point
	tempSeries   []models.Point
	spo2Series   []models.Point
	peakSeries   []models.Point
	bpmSeries    []models.Point
	avgBpmSeries []models.Point
}

// NewStreamProcessor creates a processor whose minute aggregator stamps BPM
// values with clock. A nil clock means time.Now.
func NewStreamProcessor(clock func() time.Time) *StreamProcessor {
	return &StreamProcessor{
		peaks:  NewPeakDetector(),
		spo2:   NewSpO2Estimator(),
		bpm:    NewBpmTracker(),
		minute: NewMinuteAggregator(clock),
	}
}

func (sp *StreamProcessor) Process(s models.Sample) (models.ProcessingResult, error) {
	if sp.started && s.TimestampMs < sp.lastMs {
		return models.ProcessingResult{}, fmt.Errorf("%w: %d < %d", ErrTimestampRegression, s.TimestampMs, sp.lastMs)
	}
	if !sp.started {
		sp.started = true
		sp.startMs = s.TimestampMs
	}
	sp.lastMs = s.TimestampMs

	elapsed := sp.elapsed(s.TimestampMs)
	result := models.ProcessingResult{TimestampMs: s.TimestampMs, Elapsed: elapsed}

	if percent, ok := sp.spo2.Observe(s.IR, s.Red); ok {
		result.SpO2 = &models.SpO2Value{Elapsed: elapsed, Percent: percent}
		sp.spo2Series = append(sp.spo2Series, models.Point{Elapsed: elapsed, Value: float64(percent)})
	}

	sp.irSeries = append(sp.irSeries, models.Point{Elapsed: elapsed, Value: s.IR})
	sp.redSeries = append(sp.redSeries, models.Point{Elapsed: elapsed, Value: s.Red})
	sp.tempSeries = append(sp.tempSeries, models.Point{Elapsed: elapsed, Value: s.Temperature})

	peak, ok := sp.peaks.Observe(s.TimestampMs, s.IR)
	if !ok {
		return result, nil
	}
	peak.Elapsed = sp.elapsed(peak.TimestampMs)
	result.Peak = &peak
	sp.peakSeries = append(sp.peakSeries, models.Point{Elapsed: peak.Elapsed, Value: peak.Value})

	beat, ok := sp.bpm.OnPeak(peak)
	if !ok {
		return result, nil
	}
	result.Bpm = &beat
	sp.bpmSeries = append(sp.bpmSeries, models.Point{Elapsed: beat.Elapsed, Value: beat.Instant})
	sp.avgBpmSeries = append(sp.avgBpmSeries, models.Point{Elapsed: beat.Elapsed, Value: beat.Average})
	sp.minute.AddValue(beat.Instant)

	return result, nil
}

// Tick closes the current minute window, see MinuteAggregator.Tick.
func (sp *StreamProcessor) Tick(now time.Time) (models.MinuteRecord, bool) {
	return sp.minute.Tick(now)
}

func (sp *StreamProcessor) elapsed(timestampMs int64) float64 {
	return float64(timestampMs-sp.startMs) / 1000.0
}

// StartTimestamp is the timestamp of the first processed sample; ok is false
// before any sample was seen.
func (sp *StreamProcessor) StartTimestamp() (int64, bool) {
	return sp.startMs, sp.started
}

func (sp *StreamProcessor) MinuteAggregator() *MinuteAggregator { return sp.minute }

func (sp *StreamProcessor) IR() []models.Point          { return clonePoints(sp.irSeries) }
func (sp *StreamProcessor) Red() []models.Point         { return clonePoints(sp.redSeries) }
func (sp *StreamProcessor) Temperature() []models.Point { return clonePoints(sp.tempSeries) }
func (sp *StreamProcessor) SpO2() []models.Point        { return clonePoints(sp.spo2Series) }
func (sp *StreamProcessor) Peaks() []models.Point       { return clonePoints(sp.peakSeries) }
func (sp *StreamProcessor) BPM() []models.Point         { return clonePoints(sp.bpmSeries) }
func (sp *StreamProcessor) AvgBPM() []models.Point      { return clonePoints(sp.avgBpmSeries) }

// Series copies every history into a SeriesSet.
func (sp *StreamProcessor) Series() models.SeriesSet {
	return models.SeriesSet{
		StartTimestampMs: sp.startMs,
		IR:               sp.IR(),
		Red:              sp.Red(),
		Temperature:      sp.Temperature(),
		BPM:              sp.BPM(),
		AvgBPM:           sp.AvgBPM(),
		SpO2:             sp.SpO2(),
		Peaks:            sp.Peaks(),
		Minutes:          sp.minute.Records(),
	}
}

func clonePoints(src []models.Point) []models.Point {
	out := make([]models.Point, len(src))
	copy(out, src)
	return out
}
