package analytics

import (
	"github.com/gammazero/deque"

	"pulse-stream-processor/models"
)

const (
	peakWindowSize   = 5
	refractoryPeriod = 300 // ms
)

type windowSample struct {
	timestampMs int64
	value       float64
}

// PeakDetector reports a peak when the centre of the last five IR samples is
// strictly greater than the other four. Peaks closer than the refractory period
// to the previously accepted peak are dropped.
type PeakDetector struct {
	window     deque.Deque[windowSample]
	lastPeakMs int64
	hasPeak    bool
}

func NewPeakDetector() *PeakDetector {
	return &PeakDetector{}
}

// Observe feeds one IR sample. The returned event has no Elapsed set.
func (pd *PeakDetector) Observe(timestampMs int64, value float64) (models.PeakEvent, bool) {
	pd.window.PushBack(windowSample{timestampMs: timestampMs, value: value})
	if pd.window.Len() > peakWindowSize {
		pd.window.PopFront()
	}
	if pd.window.Len() < peakWindowSize {
		return models.PeakEvent{}, false
	}

	mid := peakWindowSize / 2
	center := pd.window.At(mid)
	for i := 0; i < peakWindowSize; i++ {
		if i == mid {
			continue
		}
		if center.value <= pd.window.At(i).value {
			return models.PeakEvent{}, false
		}
	}

	if pd.hasPeak && center.timestampMs-pd.lastPeakMs <= refractoryPeriod {
		return models.PeakEvent{}, false
	}

	pd.lastPeakMs = center.timestampMs
	pd.hasPeak = true
	return models.PeakEvent{TimestampMs: center.timestampMs, Value: center.value}, true
}

// WindowLen is the number of samples currently held, never more than five.
func (pd *PeakDetector) WindowLen() int { return pd.window.Len() }
