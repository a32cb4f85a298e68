package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateSpO2RatioOfRatios(t *testing.T) {
	percent, ok := EstimateSpO2(500, 100000, 100, 25000)

	assert.True(t, ok)
	assert.Equal(t, 90, percent)
}

func TestEstimateSpO2Guards(t *testing.T) {
	tests := []struct {
		name                     string
		irAC, irDC, redAC, redDC float64
	}{
		{"zero ir dc", 10, 0, 10, 100},
		{"zero red dc", 10, 100, 10, 0},
		{"falling ir", -1, 100, 10, 100},
		{"flat red", 10, 100, 0, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := EstimateSpO2(tt.irAC, tt.irDC, tt.redAC, tt.redDC)
			assert.False(t, ok)
		})
	}
}

func TestEstimateSpO2Clamped(t *testing.T) {
	high, ok := EstimateSpO2(100, 1000, 1, 1000)
	assert.True(t, ok)
	assert.Equal(t, 100, high)

	low, ok := EstimateSpO2(1, 1000, 100, 1000)
	assert.True(t, ok)
	assert.Equal(t, 80, low)
}

func TestSpO2EstimatorBootstrap(t *testing.T) {
	e := NewSpO2Estimator()

	// empty baseline on the first sample
	_, ok := e.Observe(100000, 25000)
	assert.False(t, ok)

	ir, red := e.Baselines()
	assert.Equal(t, 100000.0, ir)
	assert.Equal(t, 25000.0, red)

	percent, ok := e.Observe(100500, 25100)
	assert.True(t, ok)
	assert.Equal(t, 90, percent)
}

func TestSpO2EstimatorBaselineBounded(t *testing.T) {
	e := NewSpO2Estimator()
	for i := 0; i < 250; i++ {
		if percent, ok := e.Observe(float64(1000+i%7), float64(500+i%5)); ok {
			assert.GreaterOrEqual(t, percent, 80)
			assert.LessOrEqual(t, percent, 100)
		}
	}
	assert.Equal(t, 100, e.irDC.Len())
	assert.Equal(t, 100, e.redDC.Len())
}

func TestSpO2EstimatorSilentAfterSensorGoesDark(t *testing.T) {
	e := NewSpO2Estimator()
	for i := 0; i < dcWindowSize; i++ {
		e.Observe(1000.1+float64(i)*0.37, 250.3+float64(i)*0.11)
	}
	for i := 0; i < dcWindowSize; i++ {
		e.Observe(0, 0)
	}

	ir, red := e.Baselines()
	assert.Equal(t, 0.0, ir)
	assert.Equal(t, 0.0, red)

	_, ok := e.Observe(1, 1)
	assert.False(t, ok)
}
