package receiver

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"pulse-stream-processor/models"
)

// SampleSink accepts parsed samples. analytics.Engine implements it.
type SampleSink interface {
	Submit(deviceID string, sample models.Sample) bool
}

type TCPConfig struct {
	Address      string
	DeviceID     string
	DialTimeout  time.Duration
	DataTimeout  time.Duration
	RetryInitial time.Duration
	RetryMax     time.Duration
}

// TCPReceiver reads newline framed "ts,ir,red,temp" lines from the sensor and
// keeps the connection alive: it redials after errors and after DataTimeout
// without any data.
type TCPReceiver struct {
	cfg  TCPConfig
	sink SampleSink

	mu      sync.Mutex
	address string
	conn    net.Conn
	changed chan struct{}

	lines     atomic.Int64
	malformed atomic.Int64
	dropped   atomic.Int64
}

func NewTCPReceiver(cfg TCPConfig, sink SampleSink) *TCPReceiver {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	if cfg.DataTimeout <= 0 {
		cfg.DataTimeout = 10 * time.Second
	}
	if cfg.RetryInitial <= 0 {
		cfg.RetryInitial = 5 * time.Second
	}
	if cfg.RetryMax < cfg.RetryInitial {
		cfg.RetryMax = cfg.RetryInitial
	}
	return &TCPReceiver{
		cfg:     cfg,
		sink:    sink,
		address: cfg.Address,
		changed: make(chan struct{}, 1),
	}
}

func (r *TCPReceiver) Address() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.address
}

// SetAddress switches to a new sensor address. An open connection to the old
// address is closed and the receiver reconnects right away.
func (r *TCPReceiver) SetAddress(address string) {
	r.mu.Lock()
	if address == r.address {
		r.mu.Unlock()
		return
	}
	r.address = address
	if r.conn != nil {
		_ = r.conn.Close()
	}
	r.mu.Unlock()

	select {
	case r.changed <- struct{}{}:
	default:
	}
	slog.Info("sensor address changed", "address", address)
}

func (r *TCPReceiver) Lines() int64     { return r.lines.Load() }
func (r *TCPReceiver) Malformed() int64 { return r.malformed.Load() }
func (r *TCPReceiver) Dropped() int64   { return r.dropped.Load() }

// Run connects and reads until ctx is done.
func (r *TCPReceiver) Run(ctx context.Context) error {
	for {
		conn, err := r.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		r.read(ctx, conn)
		if ctx.Err() != nil {
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-r.changed:
		case <-time.After(r.cfg.RetryInitial):
		}
	}
}

func (r *TCPReceiver) dial(ctx context.Context) (net.Conn, error) {
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = r.cfg.RetryInitial
	expBackoff.MaxInterval = r.cfg.RetryMax
	expBackoff.MaxElapsedTime = 0

	dialer := net.Dialer{Timeout: r.cfg.DialTimeout}
	var conn net.Conn
	operation := func() error {
		address := r.Address()
		c, err := dialer.DialContext(ctx, "tcp", address)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return fmt.Errorf("failed to connect to sensor at %s: %w", address, err)
		}
		conn = c
		return nil
	}

	err := backoff.RetryNotify(operation, backoff.WithContext(expBackoff, ctx), func(err error, d time.Duration) {
		slog.Warn("sensor connection failed", "err", err, "retry_in", d)
	})
	if err != nil {
		return nil, err
	}

	slog.Info("connected to sensor", "address", conn.RemoteAddr().String(), "device_id", r.cfg.DeviceID)
	return conn, nil
}

func (r *TCPReceiver) read(ctx context.Context, conn net.Conn) {
	r.mu.Lock()
	r.conn = conn
	r.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer func() {
		stop()
		r.mu.Lock()
		r.conn = nil
		r.mu.Unlock()
		_ = conn.Close()
	}()

	scanner := bufio.NewScanner(conn)
	for {
		_ = conn.SetReadDeadline(time.Now().Add(r.cfg.DataTimeout))
		if !scanner.Scan() {
			break
		}
		r.handleLine(scanner.Text())
	}

	err := scanner.Err()
	switch {
	case ctx.Err() != nil:
	case errors.Is(err, os.ErrDeadlineExceeded):
		slog.Warn("no data from sensor, reconnecting", "timeout", r.cfg.DataTimeout)
	case err != nil:
		slog.Warn("sensor connection lost", "err", err)
	default:
		slog.Warn("sensor closed the connection")
	}
}

func (r *TCPReceiver) handleLine(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	r.lines.Add(1)

	sample, err := models.ParseSampleLine(line)
	if err != nil {
		r.malformed.Add(1)
		slog.Debug("skipping line", "line", line, "err", err)
		return
	}
	if !r.sink.Submit(r.cfg.DeviceID, sample) {
		r.dropped.Add(1)
	}
}
