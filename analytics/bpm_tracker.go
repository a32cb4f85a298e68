package analytics

import "pulse-stream-processor/models"

const (
	minBeatInterval = 500  // ms, 120 BPM
	maxBeatInterval = 1333 // ms, ~45 BPM
	bpmHistorySize  = 3
)

// BpmTracker turns consecutive peaks into beats per minute and keeps a short
// moving average. Intervals outside (500, 1333) ms are ignored.
type BpmTracker struct {
	recent     *RollingWindow
	lastPeakMs int64
	hasPeak    bool
}

func NewBpmTracker() *BpmTracker {
	return &BpmTracker{recent: NewRollingWindow(bpmHistorySize)}
}

func (bt *BpmTracker) OnPeak(peak models.PeakEvent) (models.BpmSample, bool) {
	prev, hadPeak := bt.lastPeakMs, bt.hasPeak
	bt.lastPeakMs = peak.TimestampMs
	bt.hasPeak = true

	if !hadPeak {
		return models.BpmSample{}, false
	}

	delta := peak.TimestampMs - prev
	if delta <= minBeatInterval || delta >= maxBeatInterval {
		return models.BpmSample{}, false
	}

	bpm := 60000.0 / float64(delta)
	bt.recent.Add(bpm)

	return models.BpmSample{
		TimestampMs: peak.TimestampMs,
		Elapsed:     peak.Elapsed,
		Instant:     bpm,
		Average:     bt.recent.Average(),
	}, true
}

// History returns the values currently feeding the moving average.
func (bt *BpmTracker) History() []float64 {
	return bt.recent.Values()
}
