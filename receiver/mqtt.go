package receiver

import (
	"bufio"
	"bytes"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"pulse-stream-processor/models"
)

type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	// Topic is a pattern like "sensors/+/ppg"; the second level is the device id
	Topic string
}

// MQTTSubscriber receives sample lines from sensors that publish over MQTT.
// A message may carry several newline separated lines.
type MQTTSubscriber struct {
	cfg    MQTTConfig
	sink   SampleSink
	client mqtt.Client

	lines     atomic.Int64
	malformed atomic.Int64
	dropped   atomic.Int64
}

func NewMQTTSubscriber(cfg MQTTConfig, sink SampleSink) *MQTTSubscriber {
	return &MQTTSubscriber{cfg: cfg, sink: sink}
}

// Start connects to the broker. The subscription is renewed on every
// reconnect.
func (s *MQTTSubscriber) Start() error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(s.cfg.Broker)
	opts.SetClientID(s.cfg.ClientID)
	opts.SetUsername(s.cfg.Username)
	opts.SetPassword(s.cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		slog.Info("mqtt connected", "broker", s.cfg.Broker)
		if token := c.Subscribe(s.cfg.Topic, 1, s.onMessage); token.Wait() && token.Error() != nil {
			slog.Error("mqtt subscribe failed", "topic", s.cfg.Topic, "err", token.Error())
			return
		}
		slog.Info("mqtt subscribed", "topic", s.cfg.Topic)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		slog.Warn("mqtt connection lost", "err", err)
	})

	s.client = mqtt.NewClient(opts)
	if token := s.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	return nil
}

func (s *MQTTSubscriber) Close() {
	if s.client != nil {
		s.client.Disconnect(250)
		slog.Info("mqtt disconnected")
	}
}

func (s *MQTTSubscriber) Lines() int64     { return s.lines.Load() }
func (s *MQTTSubscriber) Malformed() int64 { return s.malformed.Load() }
func (s *MQTTSubscriber) Dropped() int64   { return s.dropped.Load() }

func (s *MQTTSubscriber) onMessage(_ mqtt.Client, msg mqtt.Message) {
	s.HandleMessage(msg.Topic(), msg.Payload())
}

// HandleMessage submits every valid line of payload for the device named by
// topic.
func (s *MQTTSubscriber) HandleMessage(topic string, payload []byte) {
	deviceID := extractDeviceID(topic)
	if deviceID == "" {
		slog.Warn("could not extract device id from topic", "topic", topic)
		return
	}

	scanner := bufio.NewScanner(bytes.NewReader(payload))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		s.lines.Add(1)
		sample, err := models.ParseSampleLine(line)
		if err != nil {
			s.malformed.Add(1)
			slog.Debug("skipping line", "topic", topic, "err", err)
			continue
		}
		if !s.sink.Submit(deviceID, sample) {
			s.dropped.Add(1)
		}
	}
}

// extractDeviceID returns the second level of topic.
func extractDeviceID(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 {
		return ""
	}
	return parts[1]
}
