// Package forcing reads catchment forcing tables: one row per day with
// precipitation, potential evapotranspiration and, optionally, observed
// streamflow.
package forcing

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/san-kum/hydrosim/internal/dynamo"
)

// Columns names the table headers. Year, month and day are optional;
// without them rows are numbered from Start.
type Columns struct {
	Year  string
	Month string
	Day   string
	P     string
	PET   string
	QObs  string
}

func DefaultColumns() Columns {
	return Columns{
		Year:  "year",
		Month: "month",
		Day:   "day",
		P:     "P(mm/d)",
		PET:   "E(mm/d)",
		QObs:  "Q_obs(mm/d)",
	}
}

// Data is a forcing table. QObs is nil when the table has no observations;
// missing observations inside the column are NaN.
type Data struct {
	Dates []time.Time
	P     dynamo.Series
	PET   dynamo.Series
	QObs  dynamo.Series
}

func (d *Data) Len() int { return len(d.P) }

func (d *Data) HasObservations() bool { return d.QObs != nil }

// Inputs returns the model inputs in order: precipitation, PET.
func (d *Data) Inputs() []dynamo.Series {
	return []dynamo.Series{d.P, d.PET}
}

// Slice returns rows [start, end). The series share memory with d.
func (d *Data) Slice(start, end int) (*Data, error) {
	if end <= 0 || end > d.Len() {
		end = d.Len()
	}
	if start < 0 || start >= end {
		return nil, fmt.Errorf("%w: window [%d, %d) of %d rows", dynamo.ErrInputMismatch, start, end, d.Len())
	}
	out := &Data{
		P:   d.P[start:end],
		PET: d.PET[start:end],
	}
	if d.Dates != nil {
		out.Dates = d.Dates[start:end]
	}
	if d.QObs != nil {
		out.QObs = d.QObs[start:end]
	}
	return out, nil
}

func Load(path string) (*Data, error) {
	return LoadColumns(path, DefaultColumns())
}

func LoadColumns(path string, cols Columns) (*Data, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	d, err := Read(f, cols)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

func Read(r io.Reader, cols Columns) (*Data, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty forcing table", dynamo.ErrInputMismatch)
		}
		return nil, err
	}
	idx := map[string]int{}
	for i, h := range header {
		idx[strings.TrimSpace(h)] = i
	}

	col := func(name string) int {
		if i, ok := idx[name]; ok && name != "" {
			return i
		}
		return -1
	}
	pCol, petCol, qCol := col(cols.P), col(cols.PET), col(cols.QObs)
	yCol, mCol, dCol := col(cols.Year), col(cols.Month), col(cols.Day)
	if pCol < 0 || petCol < 0 {
		return nil, fmt.Errorf("%w: missing %q or %q column", dynamo.ErrInputMismatch, cols.P, cols.PET)
	}
	dated := yCol >= 0 && mCol >= 0 && dCol >= 0

	d := &Data{}
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		line++

		p, err := parseFlux(rec[pCol])
		if err != nil {
			return nil, fmt.Errorf("line %d: %s: %w", line, cols.P, err)
		}
		pet, err := parseFlux(rec[petCol])
		if err != nil {
			return nil, fmt.Errorf("line %d: %s: %w", line, cols.PET, err)
		}
		d.P = append(d.P, p)
		d.PET = append(d.PET, pet)

		if qCol >= 0 {
			d.QObs = append(d.QObs, parseObservation(rec[qCol]))
		}
		if dated {
			date, err := parseDate(rec[yCol], rec[mCol], rec[dCol])
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			d.Dates = append(d.Dates, date)
		}
	}

	if d.Len() == 0 {
		return nil, fmt.Errorf("%w: forcing table has no rows", dynamo.ErrInputMismatch)
	}
	return d, nil
}

func parseFlux(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", dynamo.ErrInputMismatch, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, fmt.Errorf("%w: flux must be finite and non-negative, got %g", dynamo.ErrInputMismatch, v)
	}
	return v, nil
}

// parseObservation maps blanks and unparsable values to NaN.
func parseObservation(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || v < 0 {
		return math.NaN()
	}
	return v
}

func parseDate(y, m, d string) (time.Time, error) {
	year, err1 := strconv.Atoi(strings.TrimSpace(y))
	month, err2 := strconv.Atoi(strings.TrimSpace(m))
	day, err3 := strconv.Atoi(strings.TrimSpace(d))
	if err := errors.Join(err1, err2, err3); err != nil {
		return time.Time{}, fmt.Errorf("%w: bad date: %v", dynamo.ErrInputMismatch, err)
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC), nil
}

// Write encodes d with the default column names.
func (d *Data) Write(w io.Writer) error {
	cols := DefaultColumns()
	cw := csv.NewWriter(w)

	header := []string{}
	if d.Dates != nil {
		header = append(header, cols.Year, cols.Month, cols.Day)
	}
	header = append(header, cols.P, cols.PET)
	if d.QObs != nil {
		header = append(header, cols.QObs)
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for i := 0; i < d.Len(); i++ {
		var row []string
		if d.Dates != nil {
			t := d.Dates[i]
			row = append(row, strconv.Itoa(t.Year()), strconv.Itoa(int(t.Month())), strconv.Itoa(t.Day()))
		}
		row = append(row, strconv.FormatFloat(d.P[i], 'g', -1, 64), strconv.FormatFloat(d.PET[i], 'g', -1, 64))
		if d.QObs != nil {
			row = append(row, strconv.FormatFloat(d.QObs[i], 'g', -1, 64))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
