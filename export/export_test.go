package export

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulse-stream-processor/models"
)

// 2024-03-01 10:15:20.250 UTC
var testStartMs = time.Date(2024, 3, 1, 10, 15, 20, 250*int(time.Millisecond), time.UTC).UnixMilli()

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "100000", FormatValue(100000))
	assert.Equal(t, "36.6", FormatValue(36.6))
	assert.Equal(t, "75", FormatValue(75))
	assert.Equal(t, "1.23457e+06", FormatValue(1234567))
}

func TestBaseName(t *testing.T) {
	assert.Equal(t, "20240301_101520", BaseName(time.Date(2024, 3, 1, 10, 15, 20, 0, time.UTC)))
}

func TestWriteText(t *testing.T) {
	points := []models.Point{{Elapsed: 0, Value: 100000}, {Elapsed: 0.8, Value: 36.6}}

	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, points, testStartMs, time.UTC))
	assert.Equal(t, "10:15:20\t100000\n10:15:21\t36.6\n", buf.String())
}

func TestWriteBinary(t *testing.T) {
	points := []models.Point{{Elapsed: 0.8, Value: 97.5}}

	var buf bytes.Buffer
	require.NoError(t, WriteBinary(&buf, points, testStartMs, time.UTC))
	data := buf.Bytes()
	require.Len(t, data, 24)

	assert.Equal(t, uint32(10), binary.BigEndian.Uint32(data[0:]))
	assert.Equal(t, uint32(15), binary.BigEndian.Uint32(data[4:]))
	assert.Equal(t, uint32(21), binary.BigEndian.Uint32(data[8:]))
	assert.Equal(t, uint32(50), binary.BigEndian.Uint32(data[12:]))
	assert.Equal(t, 97.5, math.Float64frombits(binary.BigEndian.Uint64(data[16:])))
}

func TestWriteMinuteRecords(t *testing.T) {
	records := []models.MinuteRecord{{
		Minute:     time.Date(2024, 3, 1, 10, 15, 0, 0, time.UTC),
		AverageBPM: 61,
		MinBPM:     60,
		MaxBPM:     62.5,
	}}

	var buf bytes.Buffer
	require.NoError(t, WriteMinuteRecords(&buf, records, time.UTC))
	assert.Equal(t, "Minute\tAvg BPM\tMin BPM\tMax BPM\n10:15\t61\t60\t62.5\n", buf.String())
}

func TestExporterWritesAllFiles(t *testing.T) {
	dir := t.TempDir()
	e := &Exporter{
		TextDir:   filepath.Join(dir, "Result"),
		BinaryDir: filepath.Join(dir, "Result_Binar"),
		Location:  time.UTC,
	}
	set := models.SeriesSet{
		StartTimestampMs: testStartMs,
		IR:               []models.Point{{Elapsed: 0, Value: 1}, {Elapsed: 0.02, Value: 2}},
		BPM:              []models.Point{{Elapsed: 0.8, Value: 75}},
	}

	paths, err := e.ExportText("20240301_101520", set)
	require.NoError(t, err)
	require.Len(t, paths, 7)
	assert.Equal(t, filepath.Join(e.TextDir, "20240301_101520_IR.txt"), paths[0])
	assert.Equal(t, filepath.Join(e.TextDir, "20240301_101520_BPM1min.txt"), paths[6])

	ir, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	assert.Equal(t, "10:15:20\t1\n10:15:20\t2\n", string(ir))

	red, err := os.ReadFile(filepath.Join(e.TextDir, "20240301_101520_Red.txt"))
	require.NoError(t, err)
	assert.Empty(t, red)

	paths, err = e.ExportBinary("20240301_101520", set)
	require.NoError(t, err)
	require.Len(t, paths, 6)
	info, err := os.Stat(filepath.Join(e.BinaryDir, "20240301_101520_BPM.bin"))
	require.NoError(t, err)
	assert.Equal(t, int64(24), info.Size())
}
