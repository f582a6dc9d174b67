package storage

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"math"

	"github.com/san-kum/hydrosim/internal/sim"
)

type ExportData struct {
	Model       string               `json:"model"`
	Dt          float64              `json:"dt"`
	Steps       int                  `json:"steps"`
	Dates       []string             `json:"dates,omitempty"`
	P           []float64            `json:"p"`
	PET         []float64            `json:"pet"`
	Q           []float64            `json:"q"`
	QObs        []*float64           `json:"q_obs,omitempty"`
	AET         []float64            `json:"aet,omitempty"`
	Params      map[string]float64   `json:"params"`
	StatesStart map[string]float64   `json:"states_start"`
	StatesEnd   map[string]float64   `json:"states_end"`
	Metrics     map[string]float64   `json:"metrics"`
	Solver      map[string]SolverRun `json:"solver,omitempty"`
}

type SolverRun struct {
	Steps        int     `json:"steps"`
	Iterations   int     `json:"iterations"`
	MaxResidual  float64 `json:"max_residual"`
	NonConverged []int   `json:"non_converged,omitempty"`
}

func NewExportData(dt float64, result *sim.Result) ExportData {
	data := ExportData{
		Model:       result.Model,
		Dt:          dt,
		Steps:       len(result.Q),
		P:           result.P,
		PET:         result.PET,
		Q:           result.Q,
		AET:         result.AET,
		Params:      result.Params,
		StatesStart: result.StatesStart,
		StatesEnd:   result.StatesEnd,
		Metrics:     finiteMetrics(result.Metrics),
		Solver:      make(map[string]SolverRun, len(result.Diagnostics)),
	}
	for _, d := range result.Dates {
		data.Dates = append(data.Dates, d.Format(dateLayout))
	}
	// missing observations become null
	if result.QObs != nil {
		data.QObs = make([]*float64, len(result.QObs))
		for i := range result.QObs {
			if v := result.QObs[i]; !math.IsNaN(v) {
				data.QObs[i] = &v
			}
		}
	}
	for id, d := range result.Diagnostics {
		data.Solver[id] = SolverRun{
			Steps:        d.Steps,
			Iterations:   d.TotalIterations,
			MaxResidual:  d.MaxResidual,
			NonConverged: d.NonConverged,
		}
	}
	return data
}

func ExportJSON(w io.Writer, dt float64, result *sim.Result) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(NewExportData(dt, result))
}

// WriteSeriesCSV writes one row per step: date (when known), P, PET, Q,
// then Q_obs and AET when the run has them.
func WriteSeriesCSV(w io.Writer, result *sim.Result) error {
	cw := csv.NewWriter(w)

	header := []string{}
	if result.Dates != nil {
		header = append(header, "date")
	}
	header = append(header, "P", "PET", "Q")
	if result.QObs != nil {
		header = append(header, "Q_obs")
	}
	if result.AET != nil {
		header = append(header, "AET")
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for i := range result.Q {
		var row []string
		if result.Dates != nil {
			row = append(row, result.Dates[i].Format(dateLayout))
		}
		row = append(row, formatFloat(result.P[i]), formatFloat(result.PET[i]), formatFloat(result.Q[i]))
		if result.QObs != nil {
			row = append(row, formatFloat(result.QObs[i]))
		}
		if result.AET != nil {
			row = append(row, formatFloat(result.AET[i]))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
