package receiver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractDeviceID(t *testing.T) {
	assert.Equal(t, "bed3", extractDeviceID("sensors/bed3/ppg"))
	assert.Equal(t, "", extractDeviceID("sensors/ppg"))
	assert.Equal(t, "", extractDeviceID("ppg"))
}

func TestMQTTHandleMessage(t *testing.T) {
	sink := newFakeSink()
	s := NewMQTTSubscriber(MQTTConfig{Topic: "sensors/+/ppg"}, sink)

	s.HandleMessage("sensors/bed3/ppg", []byte("1000,1,2,36.5\n1020,3,4,36.6\r\ngarbage\n"))
	s.HandleMessage("bad-topic", []byte("1040,5,6,36.7"))

	samples := sink.get("bed3")
	require.Len(t, samples, 2)
	assert.Equal(t, int64(1000), samples[0].TimestampMs)
	assert.Equal(t, 4.0, samples[1].Red)
	assert.Equal(t, int64(3), s.Lines())
	assert.Equal(t, int64(1), s.Malformed())
	assert.Zero(t, s.Dropped())
}

func TestMQTTHandleMessageCountsDropped(t *testing.T) {
	sink := newFakeSink()
	sink.full = true
	s := NewMQTTSubscriber(MQTTConfig{Topic: "sensors/+/ppg"}, sink)

	s.HandleMessage("sensors/bed3/ppg", []byte("1000,1,2,36.5\n1020,3,4,36.6\n"))

	assert.Equal(t, int64(2), s.Dropped())
	assert.Empty(t, sink.get("bed3"))
}
