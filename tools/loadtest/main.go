package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"pulse-stream-processor/models"
	"pulse-stream-processor/simulator"
)

const batchSize = 25

var (
	requestCount  int64
	successCount  int64
	failCount     int64
	sampleCount   int64
	totalLatency  int64 // nanoseconds
	minLatency    int64 = 1 << 62
	maxLatency    int64
	latencies     []int64
	latenciesLock sync.Mutex
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run ./tools/loadtest <base-url> [threads] [devices] [duration]")
		fmt.Println("Example: go run ./tools/loadtest http://localhost:8080 4 100 30s")
		os.Exit(1)
	}

	baseURL := strings.TrimRight(os.Args[1], "/")
	threads := 4
	devices := 100
	duration := 30 * time.Second

	if len(os.Args) > 2 {
		fmt.Sscanf(os.Args[2], "%d", &threads)
	}
	if len(os.Args) > 3 {
		fmt.Sscanf(os.Args[3], "%d", &devices)
	}
	if len(os.Args) > 4 {
		d, err := time.ParseDuration(os.Args[4])
		if err == nil {
			duration = d
		}
	}

	if threads < 1 {
		threads = 1
	}

	fmt.Printf("Load Test Configuration:\n")
	fmt.Printf("  URL: %s\n", baseURL)
	fmt.Printf("  Threads: %d\n", threads)
	fmt.Printf("  Devices: %d\n", devices)
	fmt.Printf("  Batch: %d samples\n", batchSize)
	fmt.Printf("  Duration: %v\n\n", duration)

	latencies = make([]int64, 0, 10000)
	startTime := time.Now()
	endTime := startTime.Add(duration)

	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	// every device belongs to one thread so its timestamps stay ordered
	var wg sync.WaitGroup
	for t := 0; t < threads; t++ {
		var owned []*device
		for d := t; d < devices; d += threads {
			owned = append(owned, newDevice(baseURL, d))
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker(client, owned, endTime)
		}()
	}

	wg.Wait()
	totalDuration := time.Since(startTime)

	printResults(totalDuration)
}

type device struct {
	url   string
	ppg   *simulator.PPG
	ts    int64
	batch []models.Sample
}

func newDevice(baseURL string, n int) *device {
	seed := uint64(n + 1)
	return &device{
		url: fmt.Sprintf("%s/devices/sensor-%d/samples", baseURL, n),
		ppg: simulator.NewPPG(simulator.PPGConfig{
			SampleRate: 50,
			HeartRate:  60 + float64(seed%40),
			SpO2:       95 + float64(seed%5),
			Noise:      0.02,
		}, seed),
		ts:    time.Now().UnixMilli(),
		batch: make([]models.Sample, batchSize),
	}
}

func worker(client *http.Client, devices []*device, endTime time.Time) {
	if len(devices) == 0 {
		return
	}
	for time.Now().Before(endTime) {
		for _, d := range devices {
			for i := range d.batch {
				d.batch[i] = d.ppg.Next(d.ts)
				d.ts += d.ppg.Period()
			}
			sendBatch(client, d.url, d.batch)
		}
	}
}

func sendBatch(client *http.Client, url string, batch []models.Sample) {
	jsonData, _ := json.Marshal(batch)
	req, _ := http.NewRequest("POST", url, bytes.NewBuffer(jsonData))
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := client.Do(req)
	latency := time.Since(start)

	atomic.AddInt64(&requestCount, 1)

	if err != nil || resp.StatusCode != http.StatusAccepted {
		atomic.AddInt64(&failCount, 1)
		if resp != nil {
			resp.Body.Close()
		}
		return
	}

	atomic.AddInt64(&successCount, 1)
	atomic.AddInt64(&sampleCount, int64(len(batch)))
	resp.Body.Close()

	latencyNs := latency.Nanoseconds()
	atomic.AddInt64(&totalLatency, latencyNs)

	for {
		oldMin := atomic.LoadInt64(&minLatency)
		if latencyNs >= oldMin {
			break
		}
		if atomic.CompareAndSwapInt64(&minLatency, oldMin, latencyNs) {
			break
		}
	}

	for {
		oldMax := atomic.LoadInt64(&maxLatency)
		if latencyNs <= oldMax {
			break
		}
		if atomic.CompareAndSwapInt64(&maxLatency, oldMax, latencyNs) {
			break
		}
	}

	latenciesLock.Lock()
	latencies = append(latencies, latencyNs)
	latenciesLock.Unlock()
}

func percentile(sorted []int64, p int) time.Duration {
	idx := len(sorted) * p / 100
	if idx >= len(sorted) {
		return 0
	}
	return time.Duration(sorted[idx])
}

func printResults(duration time.Duration) {
	total := atomic.LoadInt64(&requestCount)
	success := atomic.LoadInt64(&successCount)
	failed := atomic.LoadInt64(&failCount)
	samples := atomic.LoadInt64(&sampleCount)
	totalLat := atomic.LoadInt64(&totalLatency)
	minLat := atomic.LoadInt64(&minLatency)
	maxLat := atomic.LoadInt64(&maxLatency)

	avgLatency := time.Duration(0)
	if success > 0 {
		avgLatency = time.Duration(totalLat / success)
	}

	latenciesLock.Lock()
	sorted := make([]int64, len(latencies))
	copy(sorted, latencies)
	latenciesLock.Unlock()
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	successRate := 0.0
	if total > 0 {
		successRate = float64(success) / float64(total) * 100
	}

	fmt.Println("\n==========================================")
	fmt.Println("Load Test Results")
	fmt.Println("==========================================")
	fmt.Printf("Duration:        %v\n", duration)
	fmt.Printf("Total Requests: %d\n", total)
	fmt.Printf("Successful:     %d\n", success)
	fmt.Printf("Failed:         %d\n", failed)
	fmt.Printf("Success Rate:   %.2f%%\n", successRate)
	fmt.Printf("Requests/sec:   %.2f\n", float64(total)/duration.Seconds())
	fmt.Printf("Samples/sec:    %.2f\n", float64(samples)/duration.Seconds())
	fmt.Println("\nLatency Statistics:")
	if success > 0 {
		fmt.Printf("  Min:          %v\n", time.Duration(minLat))
	}
	fmt.Printf("  Max:          %v\n", time.Duration(maxLat))
	fmt.Printf("  Average:      %v\n", avgLatency)
	for _, p := range []int{50, 95, 99} {
		if d := percentile(sorted, p); d > 0 {
			fmt.Printf("  p%d:          %v\n", p, d)
		}
	}
	fmt.Println("==========================================")
}
