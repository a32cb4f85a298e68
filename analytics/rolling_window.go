package analytics

import "gonum.org/v1/gonum/stat"

// RollingWindow keeps the most recent windowSize values.
// Adding to a full window overwrites the oldest value.
type RollingWindow struct {
	windowSize int
	values     []float64
	index      int
	count      int
}

func NewRollingWindow(size int) *RollingWindow {
	if size < 1 {
		size = 1
	}
	return &RollingWindow{
		windowSize: size,
		values:     make([]float64, size),
	}
}

func (rw *RollingWindow) Add(value float64) {
	rw.values[rw.index] = value
	rw.index = (rw.index + 1) % rw.windowSize
	if rw.count < rw.windowSize {
		rw.count++
	}
}

// Average is the arithmetic mean of the window, or 0 for an empty window.
// It is recomputed from the stored values so a window of zeros averages to
// exactly zero.
func (rw *RollingWindow) Average() float64 {
	if rw.count == 0 {
		return 0.0
	}
	return stat.Mean(rw.values[:rw.count], nil)
}

// Values returns a copy of the window contents, oldest first.
func (rw *RollingWindow) Values() []float64 {
	out := make([]float64, 0, rw.count)
	start := 0
	if rw.count == rw.windowSize {
		start = rw.index
	}
	for i := 0; i < rw.count; i++ {
		out = append(out, rw.values[(start+i)%rw.windowSize])
	}
	return out
}

func (rw *RollingWindow) Len() int { return rw.count }

func (rw *RollingWindow) Cap() int { return rw.windowSize }
