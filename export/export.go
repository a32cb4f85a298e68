package export

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"pulse-stream-processor/models"
)

const (
	baseNameLayout = "20060102_150405"
	minuteHeader   = "Minute\tAvg BPM\tMin BPM\tMax BPM\n"
)

type seriesFile struct {
	suffix string
	points func(*models.SeriesSet) []models.Point
}

var seriesFiles = []seriesFile{
	{"_IR", func(s *models.SeriesSet) []models.Point { return s.IR }},
	{"_Red", func(s *models.SeriesSet) []models.Point { return s.Red }},
	{"_BPM", func(s *models.SeriesSet) []models.Point { return s.BPM }},
	{"_AvgBPM", func(s *models.SeriesSet) []models.Point { return s.AvgBPM }},
	{"_Temp", func(s *models.SeriesSet) []models.Point { return s.Temperature }},
	{"_Spo2", func(s *models.SeriesSet) []models.Point { return s.SpO2 }},
}

// BaseName is the default export file prefix for t.
func BaseName(t time.Time) string {
	return t.Format(baseNameLayout)
}

// FormatValue prints v with six significant digits, dropping trailing zeros.
func FormatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}

func absolute(startMs int64, p models.Point, loc *time.Location) time.Time {
	ms := startMs + int64(math.Round(p.Elapsed*1000))
	return time.UnixMilli(ms).In(loc)
}

// WriteText writes one "hh:mm:ss<TAB>value" row per point.
func WriteText(w io.Writer, points []models.Point, startMs int64, loc *time.Location) error {
	if loc == nil {
		loc = time.Local
	}
	bw := bufio.NewWriter(w)
	for _, p := range points {
		t := absolute(startMs, p, loc)
		if _, err := fmt.Fprintf(bw, "%s\t%s\n", t.Format(time.TimeOnly), FormatValue(p.Value)); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteBinary writes one big-endian record per point: int32 hour, minute,
// second and millisecond followed by the float64 value.
func WriteBinary(w io.Writer, points []models.Point, startMs int64, loc *time.Location) error {
	if loc == nil {
		loc = time.Local
	}
	bw := bufio.NewWriter(w)
	var rec [24]byte
	for _, p := range points {
		t := absolute(startMs, p, loc)
		binary.BigEndian.PutUint32(rec[0:], uint32(int32(t.Hour())))
		binary.BigEndian.PutUint32(rec[4:], uint32(int32(t.Minute())))
		binary.BigEndian.PutUint32(rec[8:], uint32(int32(t.Second())))
		binary.BigEndian.PutUint32(rec[12:], uint32(int32(t.Nanosecond()/int(time.Millisecond))))
		binary.BigEndian.PutUint64(rec[16:], math.Float64bits(p.Value))
		if _, err := bw.Write(rec[:]); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func WriteMinuteRecords(w io.Writer, records []models.MinuteRecord, loc *time.Location) error {
	if loc == nil {
		loc = time.Local
	}
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(minuteHeader); err != nil {
		return err
	}
	for _, r := range records {
		_, err := fmt.Fprintf(bw, "%s\t%s\t%s\t%s\n",
			r.Minute.In(loc).Format("15:04"),
			FormatValue(r.AverageBPM),
			FormatValue(r.MinBPM),
			FormatValue(r.MaxBPM))
		if err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Exporter writes complete series sets to disk.
type Exporter struct {
	TextDir   string
	BinaryDir string
	Location  *time.Location
}

func NewExporter(textDir, binaryDir string) *Exporter {
	return &Exporter{TextDir: textDir, BinaryDir: binaryDir, Location: time.Local}
}

// ExportText writes the six series and the minute table as text files and
// returns their paths.
func (e *Exporter) ExportText(base string, set models.SeriesSet) ([]string, error) {
	if err := os.MkdirAll(e.TextDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", e.TextDir, err)
	}

	paths := make([]string, 0, len(seriesFiles)+1)
	for _, f := range seriesFiles {
		path := filepath.Join(e.TextDir, base+f.suffix+".txt")
		points := f.points(&set)
		err := writeFile(path, func(w io.Writer) error {
			return WriteText(w, points, set.StartTimestampMs, e.Location)
		})
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}

	path := filepath.Join(e.TextDir, base+"_BPM1min.txt")
	err := writeFile(path, func(w io.Writer) error {
		return WriteMinuteRecords(w, set.Minutes, e.Location)
	})
	if err != nil {
		return paths, err
	}
	paths = append(paths, path)

	slog.Info("text export complete", "base", base, "files", len(paths))
	return paths, nil
}

func (e *Exporter) ExportBinary(base string, set models.SeriesSet) ([]string, error) {
	if err := os.MkdirAll(e.BinaryDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", e.BinaryDir, err)
	}

	paths := make([]string, 0, len(seriesFiles))
	for _, f := range seriesFiles {
		path := filepath.Join(e.BinaryDir, base+f.suffix+".bin")
		points := f.points(&set)
		err := writeFile(path, func(w io.Writer) error {
			return WriteBinary(w, points, set.StartTimestampMs, e.Location)
		})
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}

	slog.Info("binary export complete", "base", base, "files", len(paths))
	return paths, nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
