package simulator

import (
	"math"
	"math/rand/v2"

	"pulse-stream-processor/models"
)

const (
	irDC       = 100000.0
	irACRatio  = 0.01
	redDC      = 25000.0
	pulseWidth = 0.05
	pulsePhase = 0.3
)

type PPGConfig struct {
	SampleRate  float64 // Hz
	HeartRate   float64 // BPM
	SpO2        float64 // percent the signal is shaped for
	Temperature float64
	Noise       float64 // relative amplitude of uniform noise on both channels
}

// PPG generates a synthetic photoplethysmogram: a flat baseline with one
// Gaussian systolic pulse per beat. The red/IR modulation ratio is chosen so
// the ratio-of-ratios formula yields SpO2.
type PPG struct {
	cfg   PPGConfig
	phase float64
	rng   *rand.Rand
}

func NewPPG(cfg PPGConfig, seed uint64) *PPG {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 50
	}
	if cfg.HeartRate <= 0 {
		cfg.HeartRate = 75
	}
	if cfg.SpO2 <= 0 {
		cfg.SpO2 = 97
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 36.6
	}
	return &PPG{cfg: cfg, rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Period is the time between two samples in milliseconds.
func (p *PPG) Period() int64 {
	return int64(math.Round(1000 / p.cfg.SampleRate))
}

// Next returns the sample for timestampMs and advances one sample period.
func (p *PPG) Next(timestampMs int64) models.Sample {
	z := (p.phase - pulsePhase) / pulseWidth
	pulse := math.Exp(-0.5 * z * z)

	ratio := (110 - p.cfg.SpO2) / 25
	irAC := irDC * irACRatio
	redAC := redDC * irACRatio * ratio

	s := models.Sample{
		TimestampMs: timestampMs,
		IR:          irDC + irAC*pulse + p.noise(irAC),
		Red:         redDC + redAC*pulse + p.noise(redAC),
		Temperature: p.cfg.Temperature,
	}

	p.phase += p.cfg.HeartRate / 60 / p.cfg.SampleRate
	if p.phase >= 1 {
		p.phase--
	}
	return s
}

func (p *PPG) noise(amplitude float64) float64 {
	if p.cfg.Noise == 0 {
		return 0
	}
	return p.cfg.Noise * amplitude * (2*p.rng.Float64() - 1)
}
