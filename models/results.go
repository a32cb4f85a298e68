package models

import "time"

// Point is one entry of an output series keyed by seconds since the first sample.
type Point struct {
	Elapsed float64 `json:"t"`
	Value   float64 `json:"v"`
}

type PeakEvent struct {
	TimestampMs int64   `json:"timestamp_ms"`
	Elapsed     float64 `json:"elapsed"`
	Value       float64 `json:"value"`
}

type BpmSample struct {
	TimestampMs int64   `json:"timestamp_ms"`
	Elapsed     float64 `json:"elapsed"`
	Instant     float64 `json:"bpm"`
	Average     float64 `json:"avg_bpm"`
}

type SpO2Value struct {
	Elapsed float64 `json:"elapsed"`
	Percent int     `json:"percent"`
}

// MinuteRecord holds heart rate statistics for one wall-clock minute.
type MinuteRecord struct {
	Minute     time.Time `json:"minute"`
	AverageBPM float64   `json:"avg_bpm"`
	MinBPM     float64   `json:"min_bpm"`
	MaxBPM     float64   `json:"max_bpm"`
}

// ProcessingResult is produced for every processed sample. Optional parts are nil
// when the pipeline had nothing to report for that sample.
type ProcessingResult struct {
	TimestampMs int64      `json:"timestamp_ms"`
	Elapsed     float64    `json:"elapsed"`
	SpO2        *SpO2Value `json:"spo2,omitempty"`
	Peak        *PeakEvent `json:"peak,omitempty"`
	Bpm         *BpmSample `json:"bpm,omitempty"`
}

// SeriesSet is a read-only copy of every history a stream has accumulated.
type SeriesSet struct {
	StartTimestampMs int64          `json:"start_timestamp_ms"`
	IR               []Point        `json:"ir"`
	Red              []Point        `json:"red"`
	Temperature      []Point        `json:"temperature"`
	BPM              []Point        `json:"bpm"`
	AvgBPM           []Point        `json:"avg_bpm"`
	SpO2             []Point        `json:"spo2"`
	Peaks            []Point        `json:"peaks"`
	Minutes          []MinuteRecord `json:"minutes"`
}

// Lookup returns the series registered under name, as used by the export endpoints.
func (s *SeriesSet) Lookup(name string) ([]Point, bool) {
	switch name {
	case "ir":
		return s.IR, true
	case "red":
		return s.Red, true
	case "temperature", "temp":
		return s.Temperature, true
	case "bpm":
		return s.BPM, true
	case "avg_bpm", "avgbpm":
		return s.AvgBPM, true
	case "spo2":
		return s.SpO2, true
	case "peaks":
		return s.Peaks, true
	}
	return nil, false
}

// Snapshot is the latest known state of a device stream.
type Snapshot struct {
	DeviceID         string    `json:"device_id"`
	SessionID        string    `json:"session_id"`
	StartTimestampMs int64     `json:"start_timestamp_ms"`
	Elapsed          float64   `json:"elapsed"`
	Samples          int64     `json:"samples"`
	Rejected         int64     `json:"rejected"`
	Peaks            int       `json:"peaks"`
	SpO2             *int      `json:"spo2,omitempty"`
	BPM              *float64  `json:"bpm,omitempty"`
	AvgBPM           *float64  `json:"avg_bpm,omitempty"`
	MinuteAverageBPM *float64  `json:"minute_avg_bpm,omitempty"`
	Temperature      float64   `json:"temperature"`
	UpdatedAt        time.Time `json:"updated_at"`
}
