package analytics

import (
	"context"
	"errors"
	"hash/fnv"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"pulse-stream-processor/models"
)

var ErrUnknownDevice = errors.New("unknown device")

// Observer is notified of every result and minute record the engine produces.
// Implementations are called from worker goroutines and must not block.
type Observer interface {
	OnResult(deviceID string, result models.ProcessingResult)
	OnMinute(deviceID string, record models.MinuteRecord)
}

// SnapshotStore persists the latest state of each device.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snapshot models.Snapshot) error
	AppendMinuteRecord(ctx context.Context, deviceID string, record models.MinuteRecord) error
}

type EngineConfig struct {
	Workers      int
	QueueSize    int
	TickInterval time.Duration

	// Clock stamps BPM values for the minute aggregators. Defaults to time.Now.
	Clock func() time.Time
}

type job struct {
	deviceID string
	sample   models.Sample
}

// Session is the processing state of one device stream.
type Session struct {
	ID       string
	DeviceID string

	mu         sync.Mutex
	proc       *StreamProcessor
	samples    int64
	rejected   int64
	peaks      int
	last       models.ProcessingResult
	lastTemp   float64
	lastSpO2   *int
	lastBeat   *models.BpmSample
	updatedAt  time.Time
	minuteSeen bool
	snapSeq    uint64

	// saveMu orders snapshot writes; savedSeq is the newest one stored.
	saveMu   sync.Mutex
	savedSeq uint64
}

// Engine fans samples out to per-device stream processors. All samples of a
// device go through the same worker so their order is kept.
type Engine struct {
	cfg       EngineConfig
	store     SnapshotStore
	observers []Observer

	mu       sync.RWMutex
	sessions map[string]*Session
	stopped  bool

	queues []chan job
	wg     sync.WaitGroup
}

func NewEngine(cfg EngineConfig, store SnapshotStore, observers ...Observer) *Engine {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.Workers > 16 {
		cfg.Workers = 16
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Minute
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	engine := &Engine{
		cfg:       cfg,
		store:     store,
		observers: observers,
		sessions:  make(map[string]*Session),
		queues:    make([]chan job, cfg.Workers),
	}
	for i := range engine.queues {
		engine.queues[i] = make(chan job, cfg.QueueSize)
	}
	return engine
}

// Start launches the workers and the minute ticker. Workers exit after Stop;
// the ticker exits when ctx is done.
func (e *Engine) Start(ctx context.Context) {
	slog.Info("starting analytics workers", "workers", len(e.queues), "tick_interval", e.cfg.TickInterval)
	for _, q := range e.queues {
		e.wg.Add(1)
		go e.worker(q)
	}

	go func() {
		ticker := time.NewTicker(e.cfg.TickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				e.TickAll(now)
			}
		}
	}()
}

// Stop closes the queues and waits for queued samples to be processed.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.stopped {
		e.stopped = true
		for _, q := range e.queues {
			close(q)
		}
	}
	e.mu.Unlock()
	e.wg.Wait()
}

// Submit enqueues a sample without blocking. It reports false when the sample
// was dropped because the device queue is full.
func (e *Engine) Submit(deviceID string, sample models.Sample) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.stopped {
		return false
	}

	select {
	case e.queues[e.shard(deviceID)] <- job{deviceID: deviceID, sample: sample}:
		return true
	default:
		slog.Warn("sample queue is full, dropping sample", "device_id", deviceID)
		return false
	}
}

func (e *Engine) worker(queue <-chan job) {
	defer e.wg.Done()
	for j := range queue {
		if _, err := e.Process(j.deviceID, j.sample); err != nil {
			slog.Debug("sample rejected", "device_id", j.deviceID, "err", err)
		}
	}
}

// Process runs one sample through the device's pipeline synchronously.
func (e *Engine) Process(deviceID string, sample models.Sample) (models.ProcessingResult, error) {
	session := e.session(deviceID)

	session.mu.Lock()
	result, err := session.proc.Process(sample)
	if err != nil {
		session.rejected++
		session.mu.Unlock()
		return result, err
	}
	session.samples++
	session.last = result
	session.lastTemp = sample.Temperature
	session.updatedAt = time.Now()
	if result.SpO2 != nil {
		percent := result.SpO2.Percent
		session.lastSpO2 = &percent
	}
	if result.Peak != nil {
		session.peaks++
	}
	if result.Bpm != nil {
		beat := *result.Bpm
		session.lastBeat = &beat
	}
	// Observers never block, so they are notified under the lock to see
	// results in processing order.
	for _, o := range e.observers {
		o.OnResult(deviceID, result)
	}

	var snapshot models.Snapshot
	var seq uint64
	if result.Peak != nil {
		snapshot, seq = session.nextSnapshotLocked()
	}
	session.mu.Unlock()

	if result.Peak != nil && e.store != nil {
		go e.saveSnapshot(session, snapshot, seq)
	}

	return result, nil
}

// saveSnapshot stores snapshot unless a newer one of the same session has
// already been stored.
func (e *Engine) saveSnapshot(s *Session, snapshot models.Snapshot, seq uint64) {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	if seq <= s.savedSeq {
		slog.Debug("skipping stale snapshot", "device_id", s.DeviceID, "seq", seq)
		return
	}
	if err := e.store.SaveSnapshot(context.Background(), snapshot); err != nil {
		slog.Error("failed to save snapshot", "device_id", s.DeviceID, "err", err)
		return
	}
	s.savedSeq = seq
}

// TickAll closes the minute window of every session.
func (e *Engine) TickAll(now time.Time) {
	e.mu.RLock()
	sessions := make([]*Session, 0, len(e.sessions))
	for _, s := range e.sessions {
		sessions = append(sessions, s)
	}
	e.mu.RUnlock()

	for _, s := range sessions {
		s.mu.Lock()
		record, ok := s.proc.Tick(now)
		if !ok {
			s.mu.Unlock()
			slog.Info("no minute average available", "device_id", s.DeviceID)
			continue
		}
		s.minuteSeen = true
		for _, o := range e.observers {
			o.OnMinute(s.DeviceID, record)
		}
		snapshot, seq := s.nextSnapshotLocked()
		s.mu.Unlock()

		slog.Info("minute heart rate",
			"device_id", s.DeviceID,
			"minute", record.Minute.Format("15:04"),
			"avg_bpm", record.AverageBPM,
			"min_bpm", record.MinBPM,
			"max_bpm", record.MaxBPM)

		if e.store != nil {
			if err := e.store.AppendMinuteRecord(context.Background(), s.DeviceID, record); err != nil {
				slog.Error("failed to store minute record", "device_id", s.DeviceID, "err", err)
			}
			e.saveSnapshot(s, snapshot, seq)
		}
	}
}

func (e *Engine) Snapshot(deviceID string) (models.Snapshot, error) {
	s, err := e.lookup(deviceID)
	if err != nil {
		return models.Snapshot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(), nil
}

func (e *Engine) Series(deviceID string) (models.SeriesSet, error) {
	s, err := e.lookup(deviceID)
	if err != nil {
		return models.SeriesSet{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proc.Series(), nil
}

func (e *Engine) MinuteRecords(deviceID string) ([]models.MinuteRecord, error) {
	s, err := e.lookup(deviceID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proc.MinuteAggregator().Records(), nil
}

func (e *Engine) Devices() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := make([]string, 0, len(e.sessions))
	for id := range e.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (e *Engine) lookup(deviceID string) (*Session, error) {
	e.mu.RLock()
	s, ok := e.sessions[deviceID]
	e.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownDevice
	}
	return s, nil
}

func (e *Engine) session(deviceID string) *Session {
	e.mu.RLock()
	s, ok := e.sessions[deviceID]
	e.mu.RUnlock()
	if ok {
		return s
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok = e.sessions[deviceID]; ok {
		return s
	}
	s = &Session{
		ID:       uuid.NewString(),
		DeviceID: deviceID,
		proc:     NewStreamProcessor(e.cfg.Clock),
	}
	e.sessions[deviceID] = s
	slog.Info("new device session", "device_id", deviceID, "session_id", s.ID)
	return s
}

func (e *Engine) shard(deviceID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(deviceID))
	return int(h.Sum32() % uint32(len(e.queues)))
}

// nextSnapshotLocked numbers a snapshot for storage.
func (s *Session) nextSnapshotLocked() (models.Snapshot, uint64) {
	s.snapSeq++
	return s.snapshotLocked(), s.snapSeq
}

func (s *Session) snapshotLocked() models.Snapshot {
	start, _ := s.proc.StartTimestamp()
	snap := models.Snapshot{
		DeviceID:         s.DeviceID,
		SessionID:        s.ID,
		StartTimestampMs: start,
		Elapsed:          s.last.Elapsed,
		Samples:          s.samples,
		Rejected:         s.rejected,
		Peaks:            s.peaks,
		Temperature:      s.lastTemp,
		UpdatedAt:        s.updatedAt,
	}
	if s.lastSpO2 != nil {
		v := *s.lastSpO2
		snap.SpO2 = &v
	}
	if s.lastBeat != nil {
		bpm, avg := s.lastBeat.Instant, s.lastBeat.Average
		snap.BPM = &bpm
		snap.AvgBPM = &avg
	}
	if s.minuteSeen {
		avg := s.proc.MinuteAggregator().LastAverage()
		snap.MinuteAverageBPM = &avg
	}
	return snap
}
