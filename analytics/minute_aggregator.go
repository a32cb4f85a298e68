package analytics

import (
	"sort"
	"time"

	"github.com/gammazero/deque"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"pulse-stream-processor/models"
)

const (
	minuteWindow      = 60 * time.Second
	lowerBoundFactor  = 0.8
	upperBoundFactor  = 1.2
	tachyBoundFactor  = 1.3
	tachycardiaMedian = 120.0
)

type bpmEntry struct {
	at  time.Time
	bpm float64
}

// MinuteAggregator collects BPM values over the trailing minute and, on each
// tick, records their average, minimum and maximum after discarding values
// too far from the median.
type MinuteAggregator struct {
	now         func() time.Time
	entries     deque.Deque[bpmEntry]
	records     []models.MinuteRecord
	lastAverage float64
}

func NewMinuteAggregator(clock func() time.Time) *MinuteAggregator {
	if clock == nil {
		clock = time.Now
	}
	return &MinuteAggregator{now: clock}
}

func (ma *MinuteAggregator) AddValue(bpm float64) {
	ma.entries.PushBack(bpmEntry{at: ma.now(), bpm: bpm})
}

// Tick closes the current window. It reports false when no value survived
// eviction and outlier filtering; no record is stored in that case.
func (ma *MinuteAggregator) Tick(now time.Time) (models.MinuteRecord, bool) {
	for ma.entries.Len() > 0 && now.Sub(ma.entries.Front().at) > minuteWindow {
		ma.entries.PopFront()
	}
	if ma.entries.Len() == 0 {
		return models.MinuteRecord{}, false
	}

	values := make([]float64, 0, ma.entries.Len())
	for i := 0; i < ma.entries.Len(); i++ {
		values = append(values, ma.entries.At(i).bpm)
	}

	lower, upper := medianBounds(median(values))
	filtered := make([]float64, 0, len(values))
	for _, v := range values {
		if v >= lower && v <= upper {
			filtered = append(filtered, v)
		}
	}
	if len(filtered) == 0 {
		return models.MinuteRecord{}, false
	}

	record := models.MinuteRecord{
		Minute:     startOfMinute(now),
		AverageBPM: stat.Mean(filtered, nil),
		MinBPM:     floats.Min(filtered),
		MaxBPM:     floats.Max(filtered),
	}
	ma.lastAverage = record.AverageBPM
	ma.records = append(ma.records, record)
	return record, true
}

// LastAverage is the average of the most recent record, 0 if none was produced.
func (ma *MinuteAggregator) LastAverage() float64 { return ma.lastAverage }

func (ma *MinuteAggregator) Records() []models.MinuteRecord {
	out := make([]models.MinuteRecord, len(ma.records))
	copy(out, ma.records)
	return out
}

// Pending is the number of values currently held in the window.
func (ma *MinuteAggregator) Pending() int { return ma.entries.Len() }

func medianBounds(m float64) (lower, upper float64) {
	lower = m * lowerBoundFactor
	if m > tachycardiaMedian {
		return lower, m * tachyBoundFactor
	}
	return lower, m * upperBoundFactor
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	n := len(sorted)
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return sorted[n/2]
}

func startOfMinute(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, t.Location())
}
