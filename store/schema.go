package store

const (
	HeartBeatsTableSQL = `
		CREATE TABLE IF NOT EXISTS heart_beats (
			timestamp DateTime64(3),
			device_id String,
			bpm Float64,
			avg_bpm Float64
		) ENGINE = MergeTree()
		ORDER BY (device_id, timestamp)
		PARTITION BY toYYYYMM(timestamp)
	`

	MinuteBPMTableSQL = `
		CREATE TABLE IF NOT EXISTS minute_bpm (
			minute DateTime,
			device_id String,
			avg_bpm Float64,
			min_bpm Float64,
			max_bpm Float64
		) ENGINE = MergeTree()
		ORDER BY (device_id, minute)
		PARTITION BY toYYYYMM(minute)
	`
)

func AllTables() []string {
	return []string{
		HeartBeatsTableSQL,
		MinuteBPMTableSQL,
	}
}
