package elements

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/hydrosim/internal/dynamo"
)

func TestPowerReservoirETReference(t *testing.T) {
	for _, arch := range []dynamo.Architecture{dynamo.ArchGeneral, dynamo.ArchCompiled} {
		t.Run(string(arch), func(t *testing.T) {
			fr, err := NewPowerReservoirET("FR", referenceParams(), 20, defaultApprox(), WithArchitecture(arch))
			require.NoError(t, err)
			require.NoError(t, fr.SetTimestep(1))
			require.NoError(t, fr.SetInput(dynamo.Series{10, 0, 0}, dynamo.Series{0, 2, 2}))

			q, err := fr.Output()
			require.NoError(t, err)
			states, err := fr.StateSeries()
			require.NoError(t, err)
			aet, err := fr.AET()
			require.NoError(t, err)

			wantS := []float64{27.272727272727273, 22.99350642737099, 19.124678278461516}
			wantQ := []float64{2.7272727272727275, 2.299350642737099, 1.9124678278461518}
			wantAET := []float64{0, 1.9798702026191826, 1.9563603210633216}
			assert.InDeltaSlice(t, wantS, []float64(states), 1e-6)
			assert.InDeltaSlice(t, wantQ, []float64(q), 1e-7)
			assert.InDeltaSlice(t, wantAET, []float64(aet), 1e-7)
			assert.True(t, fr.Diagnostics().Converged())
		})
	}
}

func TestPowerReservoirETLinearClosedForm(t *testing.T) {
	fr, err := NewPowerReservoirET("FR", referenceParams(), 20, defaultApprox())
	require.NoError(t, err)
	require.NoError(t, fr.SetTimestep(1))
	require.NoError(t, fr.SetInput(dynamo.Series{0, 0, 0, 0}, dynamo.Series{0, 0, 0, 0}))

	_, err = fr.Output()
	require.NoError(t, err)
	states, err := fr.StateSeries()
	require.NoError(t, err)

	want := 20.0
	for i, s := range states {
		want /= 1.1
		assert.InDelta(t, want, s, 1e-9, "step %d", i)
	}
}

func TestPowerReservoirETMassBalance(t *testing.T) {
	p := dynamo.Series{0, 12, 30, 0, 0, 4, 0, 0, 0, 8}
	pet := dynamo.Series{2, 1, 0.5, 3, 3, 2, 4, 4, 3, 1}
	params := PowerReservoirETParams{K: 0.05, Alpha: 2.5, Ce: 1.2, M: 3}

	fr, err := NewPowerReservoirET("FR", params, 15, defaultApprox())
	require.NoError(t, err)
	require.NoError(t, fr.SetTimestep(1))
	require.NoError(t, fr.SetInput(p, pet))

	q, err := fr.Output()
	require.NoError(t, err)
	for _, v := range q {
		assert.GreaterOrEqual(t, v, 0.0)
	}

	worst, err := fr.MassBalance()
	require.NoError(t, err)
	assert.Less(t, worst, 1e-6)

	aet, err := fr.AET()
	require.NoError(t, err)
	states, err := fr.StateSeries()
	require.NoError(t, err)
	balance := 15 + p.Sum() - q.Sum() - aet.Sum() - states[len(states)-1]
	assert.InDelta(t, 0, balance, 1e-5)
}

func TestPowerReservoirETArchitectureEquivalence(t *testing.T) {
	p := dynamo.Series{5, 0, 0, 22, 3, 0, 0, 0, 1, 0, 0, 14}
	pet := dynamo.Series{1, 2, 3, 0.5, 1, 2.5, 3, 3, 2, 1, 1.5, 0}

	for _, k := range []float64{1e-4, 0.01, 0.1, 0.5} {
		for _, alpha := range []float64{0.7, 1, 1.5, 3} {
			for _, m := range []float64{0.5, 5, 50} {
				params := PowerReservoirETParams{K: k, Alpha: alpha, Ce: 1.1, M: m}
				var results [2]dynamo.Series
				for j, arch := range []dynamo.Architecture{dynamo.ArchGeneral, dynamo.ArchCompiled} {
					fr, err := NewPowerReservoirET("FR", params, 10, defaultApprox(), WithArchitecture(arch))
					require.NoError(t, err)
					require.NoError(t, fr.SetTimestep(1))
					require.NoError(t, fr.SetInput(p, pet))
					results[j], err = fr.Output()
					require.NoError(t, err)
				}
				assert.InDeltaSlice(t, []float64(results[0]), []float64(results[1]), 1e-10,
					"k=%g alpha=%g m=%g", k, alpha, m)
			}
		}
	}
}

func TestPowerReservoirETNonConvergencePolicy(t *testing.T) {
	params := PowerReservoirETParams{K: 0.1, Alpha: 3, Ce: 1, M: 5}
	cfg := dynamo.DefaultSolverConfig()
	cfg.MaxIterations = 1

	t.Run("permissive", func(t *testing.T) {
		fr, err := NewPowerReservoirET("FR", params, 20, implicitEuler(cfg))
		require.NoError(t, err)
		require.NoError(t, fr.SetTimestep(1))
		require.NoError(t, fr.SetInput(dynamo.Series{10, 0}, dynamo.Series{0, 0}))

		q, err := fr.Output()
		require.NoError(t, err)
		assert.Len(t, q, 2)
		diag := fr.Diagnostics()
		assert.False(t, diag.Converged())
		assert.Contains(t, diag.NonConverged, 0)
	})

	t.Run("strict", func(t *testing.T) {
		strict := cfg
		strict.Strict = true
		fr, err := NewPowerReservoirET("FR", params, 20, implicitEuler(strict))
		require.NoError(t, err)
		require.NoError(t, fr.SetTimestep(1))
		require.NoError(t, fr.SetInput(dynamo.Series{10, 0}, dynamo.Series{0, 0}))

		_, err = fr.Output()
		require.ErrorIs(t, err, dynamo.ErrNonConvergence)
		var se *dynamo.StepError
		require.True(t, errors.As(err, &se))
		assert.Equal(t, "FR", se.Element)
		assert.Equal(t, 0, se.Step)
		assert.Equal(t, 20.0, fr.States()[StateS0], "failed solve must not advance the state")
	})
}

func TestPowerReservoirETIdempotentParameters(t *testing.T) {
	fr, err := NewPowerReservoirET("FR", referenceParams(), 20, defaultApprox())
	require.NoError(t, err)
	before := fr.GetParams()
	require.NoError(t, fr.SetParameters(before))
	assert.Equal(t, before, fr.GetParams())
	require.NoError(t, fr.SetParam("alpha", 1.2))
	assert.Equal(t, 1.2, fr.Params().Alpha)
	assert.ErrorIs(t, fr.SetParam("k", math.NaN()), dynamo.ErrInvalidParameter)
}

func TestPowerReservoirETEmptyStoreProducesNoDischarge(t *testing.T) {
	for _, alpha := range []float64{0.1, 0.5} {
		params := PowerReservoirETParams{K: 1, Alpha: alpha, Ce: 1, M: 5}
		fr, err := NewPowerReservoirET("FR", params, 0, defaultApprox())
		require.NoError(t, err)
		require.NoError(t, fr.SetTimestep(1))
		require.NoError(t, fr.SetInput(make(dynamo.Series, 100), make(dynamo.Series, 100)))

		q, err := fr.Output()
		require.NoError(t, err)
		assert.Zero(t, q.Sum(), "alpha=%g", alpha)
		worst, err := fr.MassBalance()
		require.NoError(t, err)
		assert.Less(t, worst, 1e-12, "alpha=%g", alpha)
		assert.True(t, fr.Diagnostics().Converged(), "alpha=%g", alpha)
	}
}

func TestPowerReservoirETDrainsWithoutCreatingWater(t *testing.T) {
	n := 20
	pet := make(dynamo.Series, n)
	for i := range pet {
		pet[i] = 50
	}
	params := PowerReservoirETParams{K: 5, Alpha: 0.3, Ce: 1, M: 5}
	fr, err := NewPowerReservoirET("FR", params, 1, defaultApprox())
	require.NoError(t, err)
	require.NoError(t, fr.SetTimestep(1))
	require.NoError(t, fr.SetInput(make(dynamo.Series, n), pet))

	q, err := fr.Output()
	require.NoError(t, err)
	aet, err := fr.AET()
	require.NoError(t, err)
	assert.LessOrEqual(t, q.Sum()+aet.Sum(), 1+1e-7, "more water left the store than it held")

	if fr.Diagnostics().Converged() {
		worst, err := fr.MassBalance()
		require.NoError(t, err)
		assert.Less(t, worst, 1e-7)
	}
}

func TestPowerReservoirETIndependentInstancesIdentical(t *testing.T) {
	p := dynamo.Series{5, 0, 0, 22, 3, 0, 0, 0, 1, 0, 0, 14}
	pet := dynamo.Series{1, 2, 3, 0.5, 1, 2.5, 3, 3, 2, 1, 1.5, 0}
	params := PowerReservoirETParams{K: 0.05, Alpha: 1.7, Ce: 1.1, M: 4}

	run := func(fr *PowerReservoirET) (dynamo.Series, dynamo.Series) {
		fr.ResetStates()
		q, err := fr.Output()
		require.NoError(t, err)
		aet, err := fr.AET()
		require.NoError(t, err)
		return q, aet
	}

	var q, aet [2]dynamo.Series
	for j := range q {
		fr, err := NewPowerReservoirET("FR", params, 10, defaultApprox())
		require.NoError(t, err)
		require.NoError(t, fr.SetTimestep(1))
		require.NoError(t, fr.SetInput(p, pet))
		_, err = fr.Output()
		require.NoError(t, err)
		q[j], aet[j] = run(fr)
	}
	assert.Equal(t, q[0], q[1])
	assert.Equal(t, aet[0], aet[1])
}

// flakyApprox fails every solve while fail is set.
type flakyApprox struct {
	dynamo.Approximator
	fail bool
}

func (a *flakyApprox) Solve(ev dynamo.FluxEvaluator, s0 float64, n int, dt float64) (dynamo.Series, dynamo.Diagnostics, error) {
	if a.fail {
		return nil, dynamo.Diagnostics{}, &dynamo.StepError{Step: 0, State: s0, Wrapped: dynamo.ErrNonConvergence}
	}
	return a.Approximator.Solve(ev, s0, n, dt)
}

func TestPowerReservoirETFailedSolveDropsCache(t *testing.T) {
	approx := &flakyApprox{Approximator: defaultApprox()}
	fr, err := NewPowerReservoirET("FR", referenceParams(), 20, approx)
	require.NoError(t, err)
	require.NoError(t, fr.SetTimestep(1))
	require.NoError(t, fr.SetInput(dynamo.Series{10, 0, 0}, dynamo.Series{0, 2, 2}))

	_, err = fr.Output()
	require.NoError(t, err)
	_, err = fr.AET()
	require.NoError(t, err)

	approx.fail = true
	_, err = fr.Output()
	require.ErrorIs(t, err, dynamo.ErrNonConvergence)

	_, err = fr.AET()
	assert.ErrorIs(t, err, dynamo.ErrStateOrdering)
	_, err = fr.StateSeries()
	assert.ErrorIs(t, err, dynamo.ErrStateOrdering)
	_, err = fr.Fluxes()
	assert.ErrorIs(t, err, dynamo.ErrStateOrdering)
	_, err = fr.MassBalance()
	assert.ErrorIs(t, err, dynamo.ErrStateOrdering)
}
