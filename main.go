package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"pulse-stream-processor/analytics"
	"pulse-stream-processor/cache"
	"pulse-stream-processor/config"
	"pulse-stream-processor/export"
	"pulse-stream-processor/handlers"
	"pulse-stream-processor/logging"
	"pulse-stream-processor/receiver"
	"pulse-stream-processor/store"
	"pulse-stream-processor/stream"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	slog.SetDefault(logging.New(cfg.Log.Level, cfg.Log.Format, os.Stdout))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Redis keeps the latest snapshot and the minute history of every device.
	// The service still runs without it, serving live engine state only.
	var (
		snapshotStore analytics.SnapshotStore
		snapshotCache handlers.SnapshotReader
	)
	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.SnapshotTTL)
	if err != nil {
		slog.Warn("redis unavailable, running without snapshot cache", "addr", cfg.Redis.Addr, "err", err)
	} else {
		defer redisClient.Close()
		snapshotStore = redisClient
		snapshotCache = redisClient
		slog.Info("connected to redis", "addr", cfg.Redis.Addr)
	}

	hub := handlers.NewHub()
	observers := []analytics.Observer{handlers.MetricsObserver{}, hub}

	if cfg.NATS.Enabled {
		nc, err := stream.Connect(cfg.NATS.URL)
		if err != nil {
			slog.Error("failed to connect to nats", "url", cfg.NATS.URL, "err", err)
		} else {
			defer nc.Drain()
			observers = append(observers, stream.NewPublisher(nc, cfg.NATS.SubjectPrefix))
			slog.Info("publishing to nats", "url", cfg.NATS.URL, "prefix", cfg.NATS.SubjectPrefix)
		}
	}

	recorderCtx, stopRecorder := context.WithCancel(context.Background())
	defer stopRecorder()
	var recorder *store.Recorder
	if cfg.ClickHouse.Enabled {
		db, err := store.NewClickHouseDB(ctx, cfg.ClickHouse.Addr, cfg.ClickHouse.Database,
			cfg.ClickHouse.Username, cfg.ClickHouse.Password)
		if err != nil {
			slog.Error("clickhouse unavailable, beats will not be archived", "err", err)
		} else {
			defer db.Close()
			recorder = store.NewRecorder(db, 500, 2*time.Second)
			go recorder.Run(recorderCtx)
			observers = append(observers, recorder)
		}
	}

	engine := analytics.NewEngine(analytics.EngineConfig{
		Workers:      cfg.Engine.Workers,
		QueueSize:    cfg.Engine.QueueSize,
		TickInterval: cfg.Engine.TickInterval,
	}, snapshotStore, observers...)
	engine.Start(ctx)

	var receivers sync.WaitGroup
	var addressSetter handlers.AddressSetter
	if cfg.Receiver.Enabled {
		tcp := receiver.NewTCPReceiver(receiver.TCPConfig{
			Address:      cfg.Receiver.Address,
			DeviceID:     cfg.Receiver.DeviceID,
			DialTimeout:  cfg.Receiver.DialTimeout,
			DataTimeout:  cfg.Receiver.DataTimeout,
			RetryInitial: cfg.Receiver.RetryInitial,
			RetryMax:     cfg.Receiver.RetryMax,
		}, engine)
		addressSetter = tcp
		if err := handlers.RegisterReceiverMetrics(prometheus.DefaultRegisterer, "tcp", tcp); err != nil {
			slog.Warn("receiver metrics not registered", "err", err)
		}

		receivers.Add(1)
		go func() {
			defer receivers.Done()
			if err := tcp.Run(ctx); err != nil {
				slog.Error("tcp receiver stopped", "err", err)
			}
		}()
	}

	if cfg.MQTT.Enabled {
		sub := receiver.NewMQTTSubscriber(receiver.MQTTConfig{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
			Topic:    cfg.MQTT.Topic,
		}, engine)
		if err := sub.Start(); err != nil {
			slog.Error("mqtt subscriber not started", "broker", cfg.MQTT.Broker, "err", err)
		} else {
			defer sub.Close()
			if err := handlers.RegisterReceiverMetrics(prometheus.DefaultRegisterer, "mqtt", sub); err != nil {
				slog.Warn("receiver metrics not registered", "err", err)
			}
		}
	}

	exporter := export.NewExporter(cfg.Export.TextDir, cfg.Export.BinaryDir)
	router := handlers.NewRouter(
		handlers.NewDeviceHandler(engine, snapshotCache, exporter),
		handlers.NewSettingsHandler(cfg.SettingsFile, addressSetter),
		hub,
	)

	srv := &http.Server{
		Addr:           cfg.HTTPAddr,
		Handler:        router,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1 MB
	}

	go func() {
		slog.Info("server starting", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed to start", "err", err)
			stop()
		}
	}()

	<-ctx.Done()

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "err", err)
	}

	receivers.Wait()
	engine.Stop()
	if recorder != nil {
		stopRecorder()
		<-recorder.Done()
	}

	slog.Info("server exited")
}
