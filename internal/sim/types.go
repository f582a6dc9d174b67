package sim

import (
	"fmt"
	"time"

	"github.com/san-kum/hydrosim/internal/dynamo"
)

// Model is a catchment model driven by precipitation and PET.
// *network.Network satisfies it.
type Model interface {
	ID() string
	SetInputs(in []dynamo.Series) error
	Outputs() ([]dynamo.Series, error)
	SetTimestep(dt float64) error
	SetParameters(values map[string]float64) error
	GetParams() map[string]float64
	States() map[string]float64
	SetStates(states map[string]float64) error
	ResetStates()
}

// Step is what metrics and observers see at each timestep.
type Step struct {
	Index int
	Date  time.Time
	P     float64
	PET   float64
	Q     float64
	QObs  float64
	AET   float64
}

type Metric interface {
	Name() string
	Observe(s Step)
	Value() float64
	Reset()
}

type Observer interface {
	OnStep(s Step)
}

type Config struct {
	Dt float64
	// Start and End select rows [Start, End) of the forcing; End 0 runs
	// to the last row.
	Start int
	End   int
	// Chunk > 0 solves the window in pieces of Chunk steps, carrying
	// states between them. Observers see each piece as it completes.
	Chunk         int
	ResetStates   bool
	ValidateState bool
}

type Result struct {
	Model       string
	Dates       []time.Time
	P           dynamo.Series
	PET         dynamo.Series
	Q           dynamo.Series
	QObs        dynamo.Series
	AET         dynamo.Series
	StatesStart map[string]float64
	StatesEnd   map[string]float64
	Params      map[string]float64
	Metrics     map[string]float64
	Diagnostics map[string]dynamo.Diagnostics
	StepsTaken  int
}

// NonConverged counts root-finding steps that hit the iteration limit.
func (r *Result) NonConverged() int {
	n := 0
	for _, d := range r.Diagnostics {
		n += len(d.NonConverged)
	}
	return n
}

type SimError struct {
	Step    int
	Message string
}

func (e SimError) Error() string {
	return fmt.Sprintf("simulation error at step %d: %s", e.Step, e.Message)
}
