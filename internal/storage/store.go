// Package storage persists simulation runs under a base directory, one
// directory per run holding metadata.json and series.csv, and exports runs
// as CSV or JSON.
package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/san-kum/hydrosim/internal/dynamo"
	"github.com/san-kum/hydrosim/internal/optim"
	"github.com/san-kum/hydrosim/internal/sim"
)

const (
	metadataFile = "metadata.json"
	seriesFile   = "series.csv"
	trialsFile   = "trials.csv"
	dateLayout   = "2006-01-02"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID           string             `json:"id"`
	Model        string             `json:"model"`
	Catchment    string             `json:"catchment,omitempty"`
	Timestamp    time.Time          `json:"timestamp"`
	Dt           float64            `json:"dt"`
	Steps        int                `json:"steps"`
	Approximator string             `json:"approximator"`
	Architecture string             `json:"architecture,omitempty"`
	Params       map[string]float64 `json:"params"`
	StatesStart  map[string]float64 `json:"states_start"`
	StatesEnd    map[string]float64 `json:"states_end"`
	Metrics      map[string]float64 `json:"metrics"`
	NonConverged int                `json:"non_converged"`
	Calibration  *optim.Calibration `json:"calibration,omitempty"`
}

// Series is the per-step table of a stored run. QObs and AET are nil when
// the run had none.
type Series struct {
	Dates []time.Time
	P     dynamo.Series
	PET   dynamo.Series
	Q     dynamo.Series
	QObs  dynamo.Series
	AET   dynamo.Series
}

// NewMetadata fills the run-dependent fields of meta from result.
func NewMetadata(meta RunMetadata, result *sim.Result) RunMetadata {
	meta.Model = result.Model
	meta.Steps = len(result.Q)
	meta.Params = result.Params
	meta.StatesStart = result.StatesStart
	meta.StatesEnd = result.StatesEnd
	meta.Metrics = finiteMetrics(result.Metrics)
	meta.NonConverged = result.NonConverged()
	return meta
}

// JSON has no NaN.
func finiteMetrics(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out[k] = v
		}
	}
	return out
}

// Save writes a run and returns its id.
func (s *Store) Save(meta RunMetadata, result *sim.Result) (string, error) {
	now := time.Now()
	meta = NewMetadata(meta, result)
	meta.ID = fmt.Sprintf("%s_%d", meta.Model, now.UnixNano())
	meta.Timestamp = now
	if meta.Calibration != nil {
		c := *meta.Calibration
		c.Trials = nil
		meta.Calibration = &c
	}

	runDir := filepath.Join(s.baseDir, meta.ID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	metaFile, err := os.Create(filepath.Join(runDir, metadataFile))
	if err != nil {
		return "", err
	}
	defer metaFile.Close()

	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return "", err
	}

	csvFile, err := os.Create(filepath.Join(runDir, seriesFile))
	if err != nil {
		return "", err
	}
	defer csvFile.Close()
	if err := WriteSeriesCSV(csvFile, result); err != nil {
		return "", err
	}

	return meta.ID, nil
}

// SaveTrials stores the calibration trials of a run, one row per trial
// with the loss followed by the parameters in name order.
func (s *Store) SaveTrials(runID string, trials []optim.Trial) error {
	file, err := os.Create(filepath.Join(s.baseDir, runID, trialsFile))
	if err != nil {
		return err
	}
	defer file.Close()

	w := csv.NewWriter(file)
	var names []string
	if len(trials) > 0 {
		for name := range trials[0].Params {
			names = append(names, name)
		}
		sort.Strings(names)
	}
	if err := w.Write(append([]string{"index", "loss"}, names...)); err != nil {
		return err
	}
	for _, t := range trials {
		row := []string{strconv.Itoa(t.Index), formatFloat(t.Loss)}
		for _, name := range names {
			row = append(row, formatFloat(t.Params[name]))
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// List returns the metadata of every stored run, oldest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.Before(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (s *Store) LoadSeries(runID string) (*Series, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, seriesFile))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s: empty series file", runID)
	}

	col := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		col[name] = i
	}
	out := &Series{}
	for _, name := range []string{"P", "PET", "Q"} {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("%s: series file has no %s column", runID, name)
		}
	}

	for line, record := range records[1:] {
		parse := func(name string) (float64, error) {
			v, err := strconv.ParseFloat(record[col[name]], 64)
			if err != nil {
				return 0, fmt.Errorf("%s: line %d: %s: %w", runID, line+2, name, err)
			}
			return v, nil
		}
		if i, ok := col["date"]; ok {
			d, err := time.Parse(dateLayout, record[i])
			if err != nil {
				return nil, fmt.Errorf("%s: line %d: %w", runID, line+2, err)
			}
			out.Dates = append(out.Dates, d)
		}
		for _, c := range []struct {
			name string
			dst  *dynamo.Series
		}{{"P", &out.P}, {"PET", &out.PET}, {"Q", &out.Q}, {"Q_obs", &out.QObs}, {"AET", &out.AET}} {
			if _, ok := col[c.name]; !ok {
				continue
			}
			v, err := parse(c.name)
			if err != nil {
				return nil, err
			}
			*c.dst = append(*c.dst, v)
		}
	}
	return out, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
