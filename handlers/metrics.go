package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"pulse-stream-processor/models"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	requestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "request_duration_seconds",
			Help:    "Request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	samplesProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_samples_processed_total",
			Help: "Total number of sensor samples processed",
		},
		[]string{"device_id"},
	)

	beatsDetectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_beats_detected_total",
			Help: "Total number of accepted heart beats",
		},
		[]string{"device_id"},
	)

	heartRateBPM = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pulse_heart_rate_bpm",
			Help: "Smoothed heart rate of the last beat",
		},
		[]string{"device_id"},
	)

	spo2Percent = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pulse_spo2_percent",
			Help: "Last oxygen saturation estimate",
		},
		[]string{"device_id"},
	)

	minuteAverageBPM = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pulse_minute_average_bpm",
			Help: "Average heart rate of the last closed minute",
		},
		[]string{"device_id"},
	)
)

// MetricsObserver exports engine output as Prometheus metrics.
type MetricsObserver struct{}

func (MetricsObserver) OnResult(deviceID string, result models.ProcessingResult) {
	samplesProcessedTotal.WithLabelValues(deviceID).Inc()
	if result.Bpm != nil {
		beatsDetectedTotal.WithLabelValues(deviceID).Inc()
		heartRateBPM.WithLabelValues(deviceID).Set(result.Bpm.Average)
	}
	if result.SpO2 != nil {
		spo2Percent.WithLabelValues(deviceID).Set(float64(result.SpO2.Percent))
	}
}

func (MetricsObserver) OnMinute(deviceID string, record models.MinuteRecord) {
	minuteAverageBPM.WithLabelValues(deviceID).Set(record.AverageBPM)
}

// ReceiverStats exposes the line counters of a sample receiver.
type ReceiverStats interface {
	Lines() int64
	Malformed() int64
	Dropped() int64
}

// RegisterReceiverMetrics exports the counters of a receiver, labelled with
// source, on reg.
func RegisterReceiverMetrics(reg prometheus.Registerer, source string, stats ReceiverStats) error {
	labels := prometheus.Labels{"source": source}
	collectors := []prometheus.Collector{
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name:        "pulse_receiver_lines_total",
			Help:        "Total number of non-empty lines read from the sensor",
			ConstLabels: labels,
		}, func() float64 { return float64(stats.Lines()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name:        "pulse_receiver_malformed_total",
			Help:        "Total number of lines that could not be parsed",
			ConstLabels: labels,
		}, func() float64 { return float64(stats.Malformed()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name:        "pulse_receiver_dropped_total",
			Help:        "Total number of samples dropped because the engine queue was full",
			ConstLabels: labels,
		}, func() float64 { return float64(stats.Dropped()) }),
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return fmt.Errorf("failed to register %s receiver metrics: %w", source, err)
		}
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// instrument records request count and latency under a fixed endpoint label.
func instrument(endpoint string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next(rec, r)

		requestDurationSeconds.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(r.Method, endpoint, strconv.Itoa(rec.status)).Inc()
	}
}
