package receiver

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulse-stream-processor/models"
)

type fakeSink struct {
	mu      sync.Mutex
	samples map[string][]models.Sample
	full    bool
}

func newFakeSink() *fakeSink {
	return &fakeSink{samples: make(map[string][]models.Sample)}
}

func (s *fakeSink) Submit(deviceID string, sample models.Sample) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.full {
		return false
	}
	s.samples[deviceID] = append(s.samples[deviceID], sample)
	return true
}

func (s *fakeSink) get(deviceID string) []models.Sample {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Sample(nil), s.samples[deviceID]...)
}

// sensorServer accepts connections, writes payload to each and then keeps
// them open without sending anything else.
type sensorServer struct {
	ln      net.Listener
	accepts atomic.Int32
}

func startSensor(t *testing.T, payload string) *sensorServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := &sensorServer{ln: ln}
	var conns []net.Conn
	var mu sync.Mutex
	t.Cleanup(func() {
		_ = ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			_ = c.Close()
		}
	})

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			srv.accepts.Add(1)
			mu.Lock()
			conns = append(conns, conn)
			mu.Unlock()
			_, _ = conn.Write([]byte(payload))
		}
	}()
	return srv
}

func (s *sensorServer) addr() string { return s.ln.Addr().String() }

func runReceiver(t *testing.T, r *TCPReceiver) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("receiver did not stop")
		}
	})
}

func TestTCPReceiverParsesLines(t *testing.T) {
	srv := startSensor(t, "1000,100000,25000,36.6\r\nnot,a,sample\n\n1020,100100,25010,36.7\n")
	sink := newFakeSink()
	r := NewTCPReceiver(TCPConfig{
		Address:      srv.addr(),
		DeviceID:     "esp32",
		DataTimeout:  time.Second,
		RetryInitial: 10 * time.Millisecond,
	}, sink)
	runReceiver(t, r)

	require.Eventually(t, func() bool { return len(sink.get("esp32")) == 2 }, 2*time.Second, 10*time.Millisecond)
	samples := sink.get("esp32")
	assert.Equal(t, models.Sample{TimestampMs: 1000, IR: 100000, Red: 25000, Temperature: 36.6}, samples[0])
	assert.Equal(t, int64(1020), samples[1].TimestampMs)
	assert.Equal(t, int64(3), r.Lines())
	assert.Equal(t, int64(1), r.Malformed())
	assert.Zero(t, r.Dropped())
}

func TestTCPReceiverCountsDroppedSamples(t *testing.T) {
	srv := startSensor(t, "1000,1,1,36\n1020,2,2,36\n")
	sink := newFakeSink()
	sink.full = true
	r := NewTCPReceiver(TCPConfig{
		Address:      srv.addr(),
		DeviceID:     "esp32",
		DataTimeout:  time.Second,
		RetryInitial: 10 * time.Millisecond,
	}, sink)
	runReceiver(t, r)

	require.Eventually(t, func() bool { return r.Dropped() == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, sink.get("esp32"))
	assert.Zero(t, r.Malformed())
}

func TestTCPReceiverReconnectsWhenSensorIsSilent(t *testing.T) {
	srv := startSensor(t, "1000,1,1,36\n")
	sink := newFakeSink()
	r := NewTCPReceiver(TCPConfig{
		Address:      srv.addr(),
		DeviceID:     "esp32",
		DataTimeout:  50 * time.Millisecond,
		RetryInitial: 10 * time.Millisecond,
	}, sink)
	runReceiver(t, r)

	require.Eventually(t, func() bool { return srv.accepts.Load() >= 3 }, 2*time.Second, 10*time.Millisecond)
	assert.GreaterOrEqual(t, len(sink.get("esp32")), 2)
}

func TestTCPReceiverSetAddress(t *testing.T) {
	first := startSensor(t, "1000,1,1,36\n")
	second := startSensor(t, "2000,2,2,37\n")
	sink := newFakeSink()
	r := NewTCPReceiver(TCPConfig{
		Address:      first.addr(),
		DeviceID:     "esp32",
		DataTimeout:  time.Minute,
		RetryInitial: time.Minute,
	}, sink)
	runReceiver(t, r)

	require.Eventually(t, func() bool { return len(sink.get("esp32")) == 1 }, 2*time.Second, 10*time.Millisecond)

	r.SetAddress(second.addr())
	assert.Equal(t, second.addr(), r.Address())

	require.Eventually(t, func() bool { return len(sink.get("esp32")) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(2000), sink.get("esp32")[1].TimestampMs)
	assert.Equal(t, int32(1), first.accepts.Load())
}

func TestTCPReceiverStopsWhileDialing(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	r := NewTCPReceiver(TCPConfig{
		Address:      addr,
		DeviceID:     "esp32",
		RetryInitial: 20 * time.Millisecond,
	}, newFakeSink())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	assert.NoError(t, r.Run(ctx))
}
