// Command simulator is a stand-in for the pulse sensor: it listens on TCP and
// streams "ts,ir,red,temp" lines to every client.
//
//	go run ./tools/simulator -addr :9000 -hr 72 -spo2 96
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"pulse-stream-processor/logging"
	"pulse-stream-processor/simulator"
)

func main() {
	var (
		addr  = flag.String("addr", ":9000", "listen address")
		rate  = flag.Float64("rate", 50, "sampling rate Hz")
		hr    = flag.Float64("hr", 75, "heart rate bpm")
		spo2  = flag.Float64("spo2", 97, "target SpO2 percent")
		temp  = flag.Float64("temp", 36.6, "temperature")
		noise = flag.Float64("noise", 0, "relative noise amplitude")
	)
	flag.Parse()

	slog.SetDefault(logging.New("info", "text", os.Stdout))

	cfg := simulator.PPGConfig{
		SampleRate:  *rate,
		HeartRate:   *hr,
		SpO2:        *spo2,
		Temperature: *temp,
		Noise:       *noise,
	}

	ln, err := net.Listen("tcp", *addr)
	if err != nil {
		slog.Error("failed to listen", "addr", *addr, "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	slog.Info("simulator listening", "addr", ln.Addr().String(), "rate_hz", *rate, "hr_bpm", *hr)

	var wg sync.WaitGroup
	var seed uint64
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				break
			}
			slog.Warn("accept failed", "err", err)
			continue
		}
		seed++
		wg.Add(1)
		go func(conn net.Conn, seed uint64) {
			defer wg.Done()
			stream(ctx, conn, simulator.NewPPG(cfg, seed))
		}(conn, seed)
	}

	wg.Wait()
	slog.Info("simulator stopped")
}

func stream(ctx context.Context, conn net.Conn, ppg *simulator.PPG) {
	defer conn.Close()
	remote := conn.RemoteAddr().String()
	slog.Info("client connected", "remote", remote)

	period := time.Duration(ppg.Period()) * time.Millisecond
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	w := bufio.NewWriter(conn)
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if _, err := w.WriteString(ppg.Next(now.UnixMilli()).Line() + "\n"); err != nil {
				slog.Info("client disconnected", "remote", remote, "err", err)
				return
			}
			if err := w.Flush(); err != nil {
				slog.Info("client disconnected", "remote", remote, "err", err)
				return
			}
		}
	}
}
