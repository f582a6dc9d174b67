package sim

import (
	"context"
	"errors"
	"testing"

	"github.com/san-kum/hydrosim/internal/dynamo"
	"github.com/san-kum/hydrosim/internal/forcing"
	"github.com/san-kum/hydrosim/internal/models"
)

type countMetric struct {
	steps int
	q     float64
}

func (c *countMetric) Name() string { return "count" }
func (c *countMetric) Observe(s Step) {
	c.steps++
	c.q += s.Q
}
func (c *countMetric) Value() float64 { return float64(c.steps) }
func (c *countMetric) Reset()         { c.steps, c.q = 0, 0 }

type recorder struct {
	indices []int
}

func (r *recorder) OnStep(s Step) { r.indices = append(r.indices, s.Index) }

func buildModel(t *testing.T, name string) Model {
	t.Helper()
	m, err := models.Build(name, models.DefaultOptions())
	if err != nil {
		t.Fatalf("build %s: %v", name, err)
	}
	return m
}

func TestSimulatorRun(t *testing.T) {
	data := forcing.Synthetic(200, 1)
	sim := New(buildModel(t, "m02"))
	metric := &countMetric{}
	rec := &recorder{}
	sim.AddMetric(metric)
	sim.AddObserver(rec)

	result, err := sim.Run(context.Background(), data, Config{Dt: 1, ResetStates: true})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if len(result.Q) != 200 || len(result.AET) != 200 {
		t.Errorf("expected 200 steps, got Q=%d AET=%d", len(result.Q), len(result.AET))
	}
	if result.Metrics["count"] != 200 {
		t.Errorf("metric saw %v steps", result.Metrics["count"])
	}
	if len(rec.indices) != 200 || rec.indices[199] != 199 {
		t.Errorf("observer saw %d steps", len(rec.indices))
	}
	if result.StatesStart["m02_UR_S0"] != 100 {
		t.Errorf("unexpected start state: %v", result.StatesStart)
	}
	if result.StatesEnd["m02_UR_S0"] == result.StatesStart["m02_UR_S0"] {
		t.Errorf("states did not evolve")
	}
	if _, ok := result.Diagnostics["UR"]; !ok {
		t.Errorf("missing diagnostics: %v", result.Diagnostics)
	}
	if result.Diagnostics["UR"].Steps != 200 {
		t.Errorf("diagnostics cover %d steps", result.Diagnostics["UR"].Steps)
	}
}

func TestSimulatorChunkedMatchesWhole(t *testing.T) {
	data := forcing.Synthetic(150, 3)

	whole, err := New(buildModel(t, "m03")).Run(context.Background(), data, Config{Dt: 1})
	if err != nil {
		t.Fatalf("whole: %v", err)
	}
	chunked, err := New(buildModel(t, "m03")).Run(context.Background(), data, Config{Dt: 1, Chunk: 40})
	if err != nil {
		t.Fatalf("chunked: %v", err)
	}

	for i := range whole.Q {
		if whole.Q[i] != chunked.Q[i] {
			t.Fatalf("step %d: whole %v, chunked %v", i, whole.Q[i], chunked.Q[i])
		}
	}
	if chunked.Diagnostics["UR"].Steps != 150 {
		t.Errorf("merged diagnostics cover %d steps", chunked.Diagnostics["UR"].Steps)
	}
}

func TestSimulatorWindow(t *testing.T) {
	data := forcing.Synthetic(100, 5)
	result, err := New(buildModel(t, "m01")).Run(context.Background(), data, Config{Dt: 1, Start: 10, End: 60})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(result.Q) != 50 || !result.Dates[0].Equal(data.Dates[10]) {
		t.Errorf("unexpected window: %d steps from %v", len(result.Q), result.Dates[0])
	}

	_, err = New(buildModel(t, "m01")).Run(context.Background(), data, Config{Dt: 1, Start: 80, End: 20})
	if !errors.Is(err, dynamo.ErrInputMismatch) {
		t.Errorf("expected ErrInputMismatch, got %v", err)
	}
}

func TestSimulatorValidation(t *testing.T) {
	data := forcing.Synthetic(10, 1)
	if _, err := New(buildModel(t, "m01")).Run(context.Background(), data, Config{Dt: 0}); err == nil {
		t.Error("expected error for zero dt")
	}
	if _, err := New(buildModel(t, "m01")).Run(context.Background(), data, Config{Dt: 1, Start: -1}); err == nil {
		t.Error("expected error for negative start")
	}
}

func TestSimulatorCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(buildModel(t, "m01")).Run(ctx, forcing.Synthetic(10, 1), Config{Dt: 1})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestSimulatorResetStates(t *testing.T) {
	data := forcing.Synthetic(60, 9)
	sim := New(buildModel(t, "m01"))

	first, err := sim.Run(context.Background(), data, Config{Dt: 1, ResetStates: true})
	if err != nil {
		t.Fatal(err)
	}
	carried, err := sim.Run(context.Background(), data, Config{Dt: 1})
	if err != nil {
		t.Fatal(err)
	}
	again, err := sim.Run(context.Background(), data, Config{Dt: 1, ResetStates: true})
	if err != nil {
		t.Fatal(err)
	}

	if carried.StatesStart["m01_FR_S0"] != first.StatesEnd["m01_FR_S0"] {
		t.Errorf("second run should start where the first ended")
	}
	for i := range first.Q {
		if first.Q[i] != again.Q[i] {
			t.Fatalf("step %d differs after reset", i)
		}
	}
}
