package stream

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"pulse-stream-processor/models"
)

func Connect(url string) (*nats.Conn, error) {
	return nats.Connect(
		url,
		nats.Name("pulse-stream-processor"),
		nats.Timeout(3*time.Second),
		nats.ReconnectWait(500*time.Millisecond),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("nats disconnected", "err", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
}

// Conn is the part of *nats.Conn the publisher needs.
type Conn interface {
	Publish(subject string, data []byte) error
}

// Publisher forwards beats and minute records to NATS subjects
// <prefix>.<device>.beat and <prefix>.<device>.minute.
type Publisher struct {
	conn   Conn
	prefix string
}

func NewPublisher(conn Conn, prefix string) *Publisher {
	if prefix == "" {
		prefix = "pulse"
	}
	return &Publisher{conn: conn, prefix: prefix}
}

type beatMessage struct {
	DeviceID string            `json:"device_id"`
	Peak     *models.PeakEvent `json:"peak"`
	Bpm      *models.BpmSample `json:"bpm,omitempty"`
	SpO2     *models.SpO2Value `json:"spo2,omitempty"`
}

type minuteMessage struct {
	DeviceID string `json:"device_id"`
	models.MinuteRecord
}

func (p *Publisher) OnResult(deviceID string, result models.ProcessingResult) {
	if result.Peak == nil {
		return
	}
	p.publish(p.Subject(deviceID, "beat"), beatMessage{
		DeviceID: deviceID,
		Peak:     result.Peak,
		Bpm:      result.Bpm,
		SpO2:     result.SpO2,
	})
}

func (p *Publisher) OnMinute(deviceID string, record models.MinuteRecord) {
	p.publish(p.Subject(deviceID, "minute"), minuteMessage{DeviceID: deviceID, MinuteRecord: record})
}

func (p *Publisher) Subject(deviceID, kind string) string {
	return p.prefix + "." + deviceID + "." + kind
}

func (p *Publisher) publish(subject string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to encode nats message", "subject", subject, "err", err)
		return
	}
	if err := p.conn.Publish(subject, data); err != nil {
		slog.Warn("failed to publish", "subject", subject, "err", err)
	}
}
