package analytics

import "math"

const (
	dcWindowSize = 100
	spo2Min      = 80
	spo2Max      = 100
)

// SpO2Estimator derives SpO2 from the ratio of ratios of the red and IR channels.
// DC is the rolling mean of the previous 100 samples of each channel.
type SpO2Estimator struct {
	irDC  *RollingWindow
	redDC *RollingWindow
}

func NewSpO2Estimator() *SpO2Estimator {
	return &SpO2Estimator{
		irDC:  NewRollingWindow(dcWindowSize),
		redDC: NewRollingWindow(dcWindowSize),
	}
}

// Observe estimates SpO2 against the baselines as they were before this sample,
// then adds the sample to both baselines.
func (e *SpO2Estimator) Observe(ir, red float64) (int, bool) {
	irDC := e.irDC.Average()
	redDC := e.redDC.Average()

	percent, ok := EstimateSpO2(ir-irDC, irDC, red-redDC, redDC)

	e.irDC.Add(ir)
	e.redDC.Add(red)
	return percent, ok
}

// Baselines returns the current IR and red DC levels.
func (e *SpO2Estimator) Baselines() (ir, red float64) {
	return e.irDC.Average(), e.redDC.Average()
}

// EstimateSpO2 maps the AC/DC components of both channels to a saturation
// percentage in [80, 100]. It only reports while both channels are above their
// baseline.
func EstimateSpO2(irAC, irDC, redAC, redDC float64) (int, bool) {
	if irDC == 0 || redDC == 0 || irAC <= 0 || redAC <= 0 {
		return 0, false
	}

	r := (redAC / redDC) / (irAC / irDC)
	percent := int(math.Round(110 - 25*r))
	if percent < spo2Min {
		percent = spo2Min
	}
	if percent > spo2Max {
		percent = spo2Max
	}
	return percent, true
}
