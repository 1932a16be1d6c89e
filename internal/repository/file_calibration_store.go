package repository

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"EffortLab/internal/domain/models"
	"EffortLab/internal/domain/repository"
)

const calibrationFileTime = "2006-01-02_15h04.05"

var calibrationHeader = []string{
	"participant", "date", "zero_baseline",
	"strength_trace_1", "max_strength_1",
	"strength_trace_2", "max_strength_2",
	"strength_trace_3", "max_strength_3",
	"max_strength",
}

// FileCalibrationStore keeps one CSV file per calibration session, named
// <participant>_<date>.csv, in a single directory.
type FileCalibrationStore struct {
	dir string
	now func() time.Time
}

func NewFileCalibrationStore(dir string) *FileCalibrationStore {
	return &FileCalibrationStore{dir: dir, now: time.Now}
}

var _ repository.CalibrationStore = (*FileCalibrationStore)(nil)

// Save writes c to a new file. It needs exactly three peaks and traces.
func (s *FileCalibrationStore) Save(_ context.Context, c *models.Calibration) error {
	if c.Participant == "" {
		return errors.New("calibration without participant")
	}
	if len(c.Peaks) != 3 {
		return fmt.Errorf("calibration needs 3 peaks, got %d", len(c.Peaks))
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create calibration directory: %w", err)
	}

	at := c.RecordedAt
	if at.IsZero() {
		at = s.now()
	}
	path := filepath.Join(s.dir, fmt.Sprintf("%s_%s.csv", c.Participant, at.Format(calibrationFileTime)))

	row := []string{c.Participant, at.Format(calibrationFileTime), formatFloat(c.ZeroBaseline)}
	for i := 0; i < 3; i++ {
		var trace []float64
		if i < len(c.Traces) {
			trace = c.Traces[i]
		}
		b, err := json.Marshal(trace)
		if err != nil {
			return fmt.Errorf("encode trace %d: %w", i+1, err)
		}
		row = append(row, string(b), formatFloat(c.Peaks[i]))
	}
	row = append(row, formatFloat(c.MaxStrength))

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create calibration file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.WriteAll([][]string{calibrationHeader, row}); err != nil {
		return fmt.Errorf("write calibration file: %w", err)
	}
	return f.Close()
}

// Lookup reads every file whose name starts with "<participant>_" in name
// order. The last row read wins.
func (s *FileCalibrationStore) Lookup(_ context.Context, participant string) (*models.Calibration, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", participant, repository.ErrCalibrationNotFound)
		}
		return nil, fmt.Errorf("read calibration directory: %w", err)
	}

	var found *models.Calibration
	prefix := participant + "_"
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".csv") {
			continue
		}
		c, err := readCalibrationFile(filepath.Join(s.dir, name))
		if err != nil {
			return nil, err
		}
		if c != nil {
			found = c
		}
	}
	if found == nil {
		return nil, fmt.Errorf("%s: %w", participant, repository.ErrCalibrationNotFound)
	}
	return found, nil
}

func readCalibrationFile(path string) (*models.Calibration, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("read header of %s: %w", path, err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(h)] = i
	}
	if _, ok := idx["max_strength"]; !ok {
		return nil, fmt.Errorf("%s: no max_strength column", path)
	}

	var last *models.Calibration
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		c, err := parseCalibrationRow(idx, rec)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		last = c
	}
	return last, nil
}

func parseCalibrationRow(idx map[string]int, rec []string) (*models.Calibration, error) {
	get := func(col string) string {
		if i, ok := idx[col]; ok && i < len(rec) {
			return strings.TrimSpace(rec[i])
		}
		return ""
	}

	maxStrength, err := strconv.ParseFloat(get("max_strength"), 64)
	if err != nil {
		return nil, fmt.Errorf("max_strength: %w", err)
	}
	c := &models.Calibration{
		Participant: get("participant"),
		MaxStrength: maxStrength,
	}
	if v := get("zero_baseline"); v != "" {
		if c.ZeroBaseline, err = strconv.ParseFloat(v, 64); err != nil {
			return nil, fmt.Errorf("zero_baseline: %w", err)
		}
	}
	if t, err := time.ParseInLocation(calibrationFileTime, get("date"), time.Local); err == nil {
		c.RecordedAt = t
	}

	for i := 1; i <= 3; i++ {
		if v := get(fmt.Sprintf("max_strength_%d", i)); v != "" {
			p, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, fmt.Errorf("max_strength_%d: %w", i, err)
			}
			c.Peaks = append(c.Peaks, p)
		}
		// Older files wrap the JSON array in an extra pair of quotes.
		if v := strings.Trim(get(fmt.Sprintf("strength_trace_%d", i)), `"`); v != "" {
			var trace []float64
			if err := json.Unmarshal([]byte(v), &trace); err != nil {
				return nil, fmt.Errorf("strength_trace_%d: %w", i, err)
			}
			c.Traces = append(c.Traces, trace)
		}
	}
	return c, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
