package models

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrMalformedLine = errors.New("malformed sample line")

// Sample is one reading from the pulse sensor. TimestampMs is the sensor clock
// in milliseconds.
type Sample struct {
	TimestampMs int64   `json:"timestamp_ms"`
	IR          float64 `json:"ir"`
	Red         float64 `json:"red"`
	Temperature float64 `json:"temperature"`
}

func (s *Sample) Validate() error {
	if s.TimestampMs < 0 {
		return errors.New("timestamp_ms must be non-negative")
	}
	if s.IR < 0 || s.Red < 0 {
		return errors.New("ir and red must be non-negative")
	}
	return nil
}

// ParseSampleLine parses a "timestamp,ir,red,temperature" line as sent by the sensor.
func ParseSampleLine(line string) (Sample, error) {
	parts := strings.Split(strings.TrimSpace(line), ",")
	if len(parts) != 4 {
		return Sample{}, fmt.Errorf("%w: expected 4 fields, got %d", ErrMalformedLine, len(parts))
	}

	ts, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
	if err != nil {
		return Sample{}, fmt.Errorf("%w: timestamp: %v", ErrMalformedLine, err)
	}

	var values [3]float64
	for i, p := range parts[1:] {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return Sample{}, fmt.Errorf("%w: field %d: %v", ErrMalformedLine, i+2, err)
		}
		values[i] = v
	}

	return Sample{
		TimestampMs: ts,
		IR:          values[0],
		Red:         values[1],
		Temperature: values[2],
	}, nil
}

// Line formats s the way ParseSampleLine reads it, without a trailing newline.
func (s Sample) Line() string {
	return strconv.FormatInt(s.TimestampMs, 10) + "," +
		strconv.FormatFloat(s.IR, 'f', -1, 64) + "," +
		strconv.FormatFloat(s.Red, 'f', -1, 64) + "," +
		strconv.FormatFloat(s.Temperature, 'f', -1, 64)
}
