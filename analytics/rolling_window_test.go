package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRollingWindowEmpty(t *testing.T) {
	rw := NewRollingWindow(3)

	assert.Equal(t, 0.0, rw.Average())
	assert.Empty(t, rw.Values())
	assert.Equal(t, 3, rw.Cap())
}

func TestRollingWindowEvictsOldest(t *testing.T) {
	rw := NewRollingWindow(3)
	for _, v := range []float64{1, 2, 3, 4, 5} {
		rw.Add(v)
		assert.LessOrEqual(t, rw.Len(), rw.Cap())
	}

	assert.Equal(t, []float64{3, 4, 5}, rw.Values())
	assert.InDelta(t, 4.0, rw.Average(), 1e-9)
}

func TestRollingWindowPartial(t *testing.T) {
	rw := NewRollingWindow(100)
	rw.Add(10)
	rw.Add(20)

	assert.Equal(t, 2, rw.Len())
	assert.Equal(t, []float64{10, 20}, rw.Values())
	assert.InDelta(t, 15.0, rw.Average(), 1e-9)
}

func TestRollingWindowAverageOfZerosAfterFractions(t *testing.T) {
	rw := NewRollingWindow(100)
	for i := 0; i < 100; i++ {
		rw.Add(0.1 + float64(i)*0.37)
	}
	for i := 0; i < 100; i++ {
		rw.Add(0)
	}

	assert.Equal(t, 0.0, rw.Average())
}
