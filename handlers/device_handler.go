package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"pulse-stream-processor/analytics"
	"pulse-stream-processor/export"
	"pulse-stream-processor/models"
)

const maxSampleBody = 8 << 20

// SnapshotReader is the cached view of device state, served by Redis.
type SnapshotReader interface {
	GetSnapshot(ctx context.Context, deviceID string) (*models.Snapshot, error)
	MinuteRecords(ctx context.Context, deviceID string) ([]models.MinuteRecord, error)
}

type DeviceHandler struct {
	engine   *analytics.Engine
	cache    SnapshotReader
	exporter *export.Exporter
	now      func() time.Time
}

// NewDeviceHandler builds the device endpoints. cache may be nil.
func NewDeviceHandler(engine *analytics.Engine, cache SnapshotReader, exporter *export.Exporter) *DeviceHandler {
	return &DeviceHandler{
		engine:   engine,
		cache:    cache,
		exporter: exporter,
		now:      time.Now,
	}
}

// HandleSamples accepts one sample object or an array of samples and runs them
// through the device pipeline in order.
func (h *DeviceHandler) HandleSamples(w http.ResponseWriter, r *http.Request) {
	deviceID := mux.Vars(r)["id"]

	samples, err := decodeSamples(http.MaxBytesReader(w, r.Body, maxSampleBody))
	if err != nil {
		http.Error(w, "Invalid JSON format", http.StatusBadRequest)
		return
	}

	accepted, rejected := 0, 0
	for i := range samples {
		if err := samples[i].Validate(); err != nil {
			rejected++
			continue
		}
		if _, err := h.engine.Process(deviceID, samples[i]); err != nil {
			rejected++
			continue
		}
		accepted++
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":    "accepted",
		"device_id": deviceID,
		"accepted":  accepted,
		"rejected":  rejected,
	})
}

func decodeSamples(body io.Reader) ([]models.Sample, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, errors.New("empty body")
	}

	if raw[0] == '[' {
		var samples []models.Sample
		if err := json.Unmarshal(raw, &samples); err != nil {
			return nil, err
		}
		return samples, nil
	}

	var sample models.Sample
	if err := json.Unmarshal(raw, &sample); err != nil {
		return nil, err
	}
	return []models.Sample{sample}, nil
}

func (h *DeviceHandler) HandleDevices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"devices": h.engine.Devices()})
}

// HandleAnalysis returns the cached snapshot and falls back to live engine state.
func (h *DeviceHandler) HandleAnalysis(w http.ResponseWriter, r *http.Request) {
	deviceID := mux.Vars(r)["id"]

	if h.cache != nil {
		snapshot, err := h.cache.GetSnapshot(r.Context(), deviceID)
		if err != nil {
			slog.Warn("failed to read cached snapshot", "device_id", deviceID, "err", err)
		} else if snapshot != nil {
			writeJSON(w, http.StatusOK, snapshot)
			return
		}
	}

	snapshot, err := h.engine.Snapshot(deviceID)
	if errors.Is(err, analytics.ErrUnknownDevice) {
		http.Error(w, "device not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Failed to get analysis: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (h *DeviceHandler) HandleMinutes(w http.ResponseWriter, r *http.Request) {
	deviceID := mux.Vars(r)["id"]

	records, err := h.engine.MinuteRecords(deviceID)
	if errors.Is(err, analytics.ErrUnknownDevice) && h.cache != nil {
		records, err = h.cache.MinuteRecords(r.Context(), deviceID)
		if err == nil && len(records) == 0 {
			err = analytics.ErrUnknownDevice
		}
	}
	if errors.Is(err, analytics.ErrUnknownDevice) {
		http.Error(w, "device not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Failed to get minute records: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// HandleSeries streams one series in the export text or binary layout.
func (h *DeviceHandler) HandleSeries(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	set, err := h.engine.Series(vars["id"])
	if errors.Is(err, analytics.ErrUnknownDevice) {
		http.Error(w, "device not found", http.StatusNotFound)
		return
	}
	points, ok := set.Lookup(vars["name"])
	if !ok {
		http.Error(w, "unknown series "+vars["name"], http.StatusNotFound)
		return
	}

	switch r.URL.Query().Get("format") {
	case "", "text":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		err = export.WriteText(w, points, set.StartTimestampMs, h.exporter.Location)
	case "binary":
		w.Header().Set("Content-Type", "application/octet-stream")
		err = export.WriteBinary(w, points, set.StartTimestampMs, h.exporter.Location)
	default:
		http.Error(w, "format must be text or binary", http.StatusBadRequest)
		return
	}
	if err != nil {
		slog.Warn("failed to stream series", "device_id", vars["id"], "series", vars["name"], "err", err)
	}
}

// HandleExport writes the device history to the export directories.
func (h *DeviceHandler) HandleExport(w http.ResponseWriter, r *http.Request) {
	deviceID := mux.Vars(r)["id"]

	set, err := h.engine.Series(deviceID)
	if errors.Is(err, analytics.ErrUnknownDevice) {
		http.Error(w, "device not found", http.StatusNotFound)
		return
	}

	loc := h.exporter.Location
	if loc == nil {
		loc = time.Local
	}
	base := export.BaseName(h.now().In(loc))
	var files []string
	switch r.URL.Query().Get("format") {
	case "", "text":
		files, err = h.exporter.ExportText(base, set)
	case "binary":
		files, err = h.exporter.ExportBinary(base, set)
	default:
		http.Error(w, "format must be text or binary", http.StatusBadRequest)
		return
	}
	if err != nil {
		slog.Error("export failed", "device_id", deviceID, "err", err)
		http.Error(w, "Export failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": deviceID,
		"base":      base,
		"files":     files,
	})
}

func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("failed to write response", "err", err)
	}
}
