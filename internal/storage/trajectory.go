package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Trajectory is a sampled joint-space history of one body.
type Trajectory struct {
	Model      string      `json:"model"`
	Body       int         `json:"body"`
	Joints     []string    `json:"joints"`
	Times      []float64   `json:"times"`
	Positions  [][]float64 `json:"positions"`
	Velocities [][]float64 `json:"velocities,omitempty"`
}

func (t *Trajectory) Append(time float64, q, u []float64) {
	t.Times = append(t.Times, time)
	t.Positions = append(t.Positions, append([]float64(nil), q...))
	if u != nil {
		t.Velocities = append(t.Velocities, append([]float64(nil), u...))
	}
}

// Column returns position k of every sample.
func (t *Trajectory) Column(k int) []float64 {
	out := make([]float64, 0, len(t.Positions))
	for _, q := range t.Positions {
		if k < len(q) {
			out = append(out, q[k])
		}
	}
	return out
}

// WriteCSV writes one row per sample: time, positions, then velocities.
func (t *Trajectory) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)

	header := []string{"time"}
	for _, name := range t.Joints {
		header = append(header, "q_"+name)
	}
	if len(t.Velocities) > 0 {
		for _, name := range t.Joints {
			header = append(header, "u_"+name)
		}
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for i, tm := range t.Times {
		row := []string{strconv.FormatFloat(tm, 'f', 6, 64)}
		for _, val := range t.Positions[i] {
			row = append(row, strconv.FormatFloat(val, 'g', -1, 64))
		}
		if i < len(t.Velocities) {
			for _, val := range t.Velocities[i] {
				row = append(row, strconv.FormatFloat(val, 'g', -1, 64))
			}
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV parses what WriteCSV wrote. Joint names come from the q_ columns.
func ReadCSV(r io.Reader) (*Trajectory, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	records, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 || len(records[0]) == 0 || records[0][0] != "time" {
		return nil, fmt.Errorf("trajectory csv: missing header")
	}

	t := &Trajectory{}
	nq, nu := 0, 0
	for _, col := range records[0][1:] {
		switch {
		case strings.HasPrefix(col, "q_"):
			t.Joints = append(t.Joints, strings.TrimPrefix(col, "q_"))
			nq++
		case strings.HasPrefix(col, "u_"):
			nu++
		}
	}

	for i, record := range records[1:] {
		if len(record) != 1+nq+nu {
			return nil, fmt.Errorf("trajectory csv: row %d has %d fields, want %d", i+1, len(record), 1+nq+nu)
		}
		vals := make([]float64, len(record))
		for j, s := range record {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("trajectory csv: row %d: %w", i+1, err)
			}
			vals[j] = v
		}
		t.Times = append(t.Times, vals[0])
		t.Positions = append(t.Positions, vals[1:1+nq])
		if nu > 0 {
			t.Velocities = append(t.Velocities, vals[1+nq:])
		}
	}
	return t, nil
}

func (t *Trajectory) ExportJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(t)
}

// ExportFile writes JSON for a .json path and CSV otherwise.
func (t *Trajectory) ExportFile(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	if filepath.Ext(path) == ".json" {
		return t.ExportJSON(file)
	}
	return t.WriteCSV(file)
}
