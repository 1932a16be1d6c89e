package schedule

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"EffortLab/internal/domain/models"

	"github.com/xuri/excelize/v2"
)

var ErrEmptySchedule = errors.New("empty trial schedule")

const sheetName = "Sheet1"

// Columns is the header written for every schedule file.
var Columns = []string{
	"block_number",
	"outcome_level",
	"actual_outcome",
	"effort",
	"action_type",
	"uncertainty",
	"attention_focus",
	"rating",
	"global_effort_state",
	"trial_in_experiment",
}

var requiredColumns = []string{"block_number", "outcome_level", "actual_outcome", "effort", "action_type"}

// ReadFile loads a schedule from a .csv or .xlsx file.
func ReadFile(path string) ([]models.ScheduledTrial, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		f, err := excelize.OpenFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open schedule %s: %w", path, err)
		}
		defer f.Close()
		rows, err := f.GetRows(f.GetSheetName(0))
		if err != nil {
			return nil, fmt.Errorf("failed to read schedule %s: %w", path, err)
		}
		return parseRows(rows)
	default:
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open schedule %s: %w", path, err)
		}
		defer file.Close()
		return ReadCSV(file)
	}
}

func ReadCSV(r io.Reader) ([]models.ScheduledTrial, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read schedule csv: %w", err)
	}
	return parseRows(rows)
}

func parseRows(rows [][]string) ([]models.ScheduledTrial, error) {
	if len(rows) < 2 {
		return nil, ErrEmptySchedule
	}
	index := make(map[string]int, len(rows[0]))
	for i, h := range rows[0] {
		index[strings.TrimSpace(h)] = i
	}
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("schedule is missing column %q", col)
		}
	}

	out := make([]models.ScheduledTrial, 0, len(rows)-1)
	for n, row := range rows[1:] {
		if blank(row) {
			continue
		}
		get := func(col string) string {
			i, ok := index[col]
			if !ok || i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}
		line := n + 2

		var t models.ScheduledTrial
		var err error
		if t.BlockNumber, err = atoi(get("block_number")); err != nil {
			return nil, fmt.Errorf("row %d: block_number: %w", line, err)
		}
		if t.OutcomeLevel, err = atoi(get("outcome_level")); err != nil {
			return nil, fmt.Errorf("row %d: outcome_level: %w", line, err)
		}
		if t.ActualOutcome, err = atoi(get("actual_outcome")); err != nil {
			return nil, fmt.Errorf("row %d: actual_outcome: %w", line, err)
		}
		if t.Effort, err = atoi(get("effort")); err != nil {
			return nil, fmt.Errorf("row %d: effort: %w", line, err)
		}
		if t.ActionType, err = models.ParseActionType(get("action_type")); err != nil {
			return nil, fmt.Errorf("row %d: %w", line, err)
		}
		if u := get("uncertainty"); u != "" {
			if t.Uncertainty, err = models.ParseUncertaintyClass(u); err != nil {
				return nil, fmt.Errorf("row %d: %w: %q", line, ErrUnknownUncertainty, u)
			}
		}
		t.AttentionFocus = get("attention_focus")
		t.Rating = get("rating")
		t.GlobalEffortState = get("global_effort_state")
		t.TrialInExperiment = len(out) + 1
		if v := get("trial_in_experiment"); v != "" {
			if t.TrialInExperiment, err = atoi(v); err != nil {
				return nil, fmt.Errorf("row %d: trial_in_experiment: %w", line, err)
			}
		}
		out = append(out, t)
	}
	if len(out) == 0 {
		return nil, ErrEmptySchedule
	}
	return out, nil
}

// WriteFile writes the schedule as .xlsx or, for any other extension, CSV.
func WriteFile(path string, trials []models.ScheduledTrial) error {
	if strings.ToLower(filepath.Ext(path)) == ".xlsx" {
		return writeXLSX(path, trials)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create schedule %s: %w", path, err)
	}
	if err := WriteCSV(file, trials); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func WriteCSV(w io.Writer, trials []models.ScheduledTrial) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("failed to write schedule header: %w", err)
	}
	for _, t := range trials {
		if err := cw.Write(record(t)); err != nil {
			return fmt.Errorf("failed to write schedule row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeXLSX(path string, trials []models.ScheduledTrial) error {
	f := excelize.NewFile()
	defer f.Close()

	for i, h := range Columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheetName, cell, h); err != nil {
			return err
		}
	}
	for r, t := range trials {
		for c, v := range record(t) {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			if err := f.SetCellValue(sheetName, cell, v); err != nil {
				return err
			}
		}
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save schedule %s: %w", path, err)
	}
	return nil
}

func record(t models.ScheduledTrial) []string {
	return []string{
		strconv.Itoa(t.BlockNumber),
		strconv.Itoa(t.OutcomeLevel),
		strconv.Itoa(t.ActualOutcome),
		strconv.Itoa(t.Effort),
		string(t.ActionType),
		string(t.Uncertainty),
		t.AttentionFocus,
		t.Rating,
		t.GlobalEffortState,
		strconv.Itoa(t.TrialInExperiment),
	}
}

func atoi(s string) (int, error) {
	if s == "" {
		return 0, errors.New("missing value")
	}
	return strconv.Atoi(s)
}

func blank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
