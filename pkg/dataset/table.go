package dataset

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
)

// DetectionRow is one per-frame record in the cumulative dataset table.
// TopScores and TopClasses are comma-joined strings, one entry per top-K
// prediction for the frame.
type DetectionRow struct {
	Cam        string
	Timestamp  string
	Date       string
	Hour       string
	Minute     string
	FrameID    int
	Model      string
	TopScores  string
	TopClasses string
}

var tableColumns = []string{"cam", "timestamp", "date", "hour", "minute", "frame_id", "model", "top_scores", "top_classes"}

// Table is the append-only accumulated detection table for one run.
// It grows monotonically across waves and never shrinks.
type Table struct {
	Rows []DetectionRow
}

func NewTable() *Table {
	return &Table{}
}

func (t *Table) Append(rows ...DetectionRow) {
	t.Rows = append(t.Rows, rows...)
}

func (t *Table) Len() int {
	return len(t.Rows)
}

// WriteCSV rewrites the whole table to path.
func (t *Table) WriteCSV(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.Write(tableColumns); err != nil {
		return err
	}
	for _, r := range t.Rows {
		record := []string{
			r.Cam,
			r.Timestamp,
			r.Date,
			r.Hour,
			r.Minute,
			strconv.Itoa(r.FrameID),
			r.Model,
			r.TopScores,
			r.TopClasses,
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}

// ReadTableCSV loads a table written by WriteCSV.
func ReadTableCSV(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%v: missing header row", path)
	}
	if len(records[0]) != len(tableColumns) {
		return nil, fmt.Errorf("%v: expected %v columns, found %v", path, len(tableColumns), len(records[0]))
	}
	t := NewTable()
	for _, rec := range records[1:] {
		frameID, err := strconv.Atoi(rec[5])
		if err != nil {
			return nil, fmt.Errorf("%v: bad frame_id %q: %w", path, rec[5], err)
		}
		t.Append(DetectionRow{
			Cam:        rec[0],
			Timestamp:  rec[1],
			Date:       rec[2],
			Hour:       rec[3],
			Minute:     rec[4],
			FrameID:    frameID,
			Model:      rec[6],
			TopScores:  rec[7],
			TopClasses: rec[8],
		})
	}
	return t, nil
}
