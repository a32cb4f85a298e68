package simulator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulse-stream-processor/analytics"
)

func TestPPGDrivesPipeline(t *testing.T) {
	ppg := NewPPG(PPGConfig{SampleRate: 50, HeartRate: 75, SpO2: 97}, 1)
	require.Equal(t, int64(20), ppg.Period())

	sp := analytics.NewStreamProcessor(nil)
	ts := int64(1_700_000_000_000)
	var lastSpO2 int
	beats := 0
	for i := 0; i < 400; i++ {
		res, err := sp.Process(ppg.Next(ts))
		require.NoError(t, err)
		ts += ppg.Period()

		if res.Bpm != nil {
			beats++
			assert.InDelta(t, 75.0, res.Bpm.Instant, 1)
		}
		if res.SpO2 != nil {
			lastSpO2 = res.SpO2.Percent
		}
	}

	assert.GreaterOrEqual(t, beats, 8)
	assert.InDelta(t, 97, lastSpO2, 1)
}

func TestPPGIsDeterministicPerSeed(t *testing.T) {
	cfg := PPGConfig{Noise: 0.05}
	a, b := NewPPG(cfg, 7), NewPPG(cfg, 7)
	for i := int64(0); i < 50; i++ {
		assert.Equal(t, a.Next(i*20), b.Next(i*20))
	}
}
