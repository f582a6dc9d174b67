package elements

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/hydrosim/internal/dynamo"
)

func TestUnsaturatedReservoir(t *testing.T) {
	params := UnsaturatedReservoirParams{Smax: 200, Ce: 1, M: 0.01, Beta: 2}

	t.Run("no forcing keeps storage", func(t *testing.T) {
		ur, err := NewUnsaturatedReservoir("UR", params, 100, defaultApprox())
		require.NoError(t, err)
		require.NoError(t, ur.SetTimestep(1))
		require.NoError(t, ur.SetInput(dynamo.Series{0, 0, 0}, dynamo.Series{0, 0, 0}))

		q, err := ur.Output()
		require.NoError(t, err)
		assert.InDeltaSlice(t, []float64{0, 0, 0}, []float64(q), 1e-12)
		assert.InDelta(t, 100, ur.States()[StateS0], 1e-9)
	})

	t.Run("mass balance", func(t *testing.T) {
		p := dynamo.Series{20, 0, 5, 40, 0, 0}
		pet := dynamo.Series{1, 3, 2, 0, 4, 4}
		ur, err := NewUnsaturatedReservoir("UR", params, 50, defaultApprox())
		require.NoError(t, err)
		require.NoError(t, ur.SetTimestep(1))
		require.NoError(t, ur.SetInput(p, pet))

		q, err := ur.Output()
		require.NoError(t, err)
		aet, err := ur.AET()
		require.NoError(t, err)
		states, err := ur.StateSeries()
		require.NoError(t, err)

		for i := range q {
			assert.GreaterOrEqual(t, q[i], 0.0)
			assert.LessOrEqual(t, q[i], p[i]+1e-12)
			assert.GreaterOrEqual(t, aet[i], 0.0)
		}
		balance := 50 + p.Sum() - q.Sum() - aet.Sum() - states[len(states)-1]
		assert.InDelta(t, 0, balance, 1e-5)
	})

	t.Run("starts above Smax", func(t *testing.T) {
		small := params
		small.Smax = 60
		ur, err := NewUnsaturatedReservoir("UR", small, 100, defaultApprox())
		require.NoError(t, err)
		require.NoError(t, ur.SetTimestep(1))
		require.NoError(t, ur.SetInput(dynamo.Series{5, 5}, dynamo.Series{1, 1}))
		_, err = ur.Output()
		require.NoError(t, err)
	})

	t.Run("architectures agree", func(t *testing.T) {
		p := dynamo.Series{3, 0, 12, 7, 0, 0, 25}
		pet := dynamo.Series{2, 2, 1, 0, 3, 3, 1}
		var out [2]dynamo.Series
		for j, arch := range []dynamo.Architecture{dynamo.ArchGeneral, dynamo.ArchCompiled} {
			ur, err := NewUnsaturatedReservoir("UR", UnsaturatedReservoirParams{Smax: 80, Ce: 0.9, M: 0.01, Beta: 5.5}, 30, defaultApprox(), WithArchitecture(arch))
			require.NoError(t, err)
			require.NoError(t, ur.SetTimestep(1))
			require.NoError(t, ur.SetInput(p, pet))
			out[j], err = ur.Output()
			require.NoError(t, err)
		}
		assert.InDeltaSlice(t, []float64(out[0]), []float64(out[1]), 1e-10)
	})

	t.Run("invalid parameters", func(t *testing.T) {
		_, err := NewUnsaturatedReservoir("UR", UnsaturatedReservoirParams{Smax: 0, Ce: 1, M: 0.01, Beta: 1}, 0, defaultApprox())
		assert.ErrorIs(t, err, dynamo.ErrInvalidParameter)
	})
}

func TestPowerReservoir(t *testing.T) {
	fr, err := NewPowerReservoir("FR", PowerReservoirParams{K: 0.1, Alpha: 1}, 2, defaultApprox())
	require.NoError(t, err)
	require.NoError(t, fr.SetTimestep(1))
	require.NoError(t, fr.SetInput(dynamo.Series{0, 0}))

	q, err := fr.Output()
	require.NoError(t, err)
	s1 := 2 / 1.1
	assert.InDeltaSlice(t, []float64{0.1 * s1, 0.1 * s1 / 1.1}, []float64(q), 1e-9)

	require.NoError(t, fr.SetParameters(map[string]float64{"alpha": 2}))
	assert.Equal(t, map[string]float64{"k": 0.1, "alpha": 2}, fr.GetParams())
	assert.ErrorIs(t, fr.SetParameters(map[string]float64{"Ce": 1}), dynamo.ErrInvalidParameter)
}

func TestHalfTriangularLag(t *testing.T) {
	t.Run("weights", func(t *testing.T) {
		lag, err := NewHalfTriangularLag("lag", 2.5)
		require.NoError(t, err)
		w := lag.Weights()
		assert.InDeltaSlice(t, []float64{0.16, 0.48, 0.36}, w, 1e-12)
		assert.InDelta(t, 1, dynamo.Series(w).Sum(), 1e-12)

		unit, err := NewHalfTriangularLag("lag", 1)
		require.NoError(t, err)
		assert.Equal(t, []float64{1}, unit.Weights())
	})

	t.Run("impulse response carries over", func(t *testing.T) {
		lag, err := NewHalfTriangularLag("lag", 2.5)
		require.NoError(t, err)

		require.NoError(t, lag.SetInput(dynamo.Series{1}))
		out, err := lag.Outputs()
		require.NoError(t, err)
		assert.InDeltaSlice(t, []float64{0.16}, []float64(out[0]), 1e-12)

		require.NoError(t, lag.SetInput(dynamo.Series{0, 0, 0}))
		out, err = lag.Outputs()
		require.NoError(t, err)
		assert.InDeltaSlice(t, []float64{0.48, 0.36, 0}, []float64(out[0]), 1e-12)
	})

	t.Run("reset clears the buffer", func(t *testing.T) {
		lag, err := NewHalfTriangularLag("lag", 3)
		require.NoError(t, err)
		require.NoError(t, lag.SetInput(dynamo.Series{9}))
		_, err = lag.Outputs()
		require.NoError(t, err)
		assert.NotZero(t, lag.States()["lag_0"])

		lag.ResetStates()
		for name, v := range lag.States() {
			assert.Zero(t, v, name)
		}
	})

	t.Run("states", func(t *testing.T) {
		lag, err := NewHalfTriangularLag("lag", 2)
		require.NoError(t, err)
		require.NoError(t, lag.SetState("lag_1", 4))
		assert.Equal(t, map[string]float64{"lag_0": 0, "lag_1": 4}, lag.States())
		assert.ErrorIs(t, lag.SetState("lag_2", 1), dynamo.ErrInvalidParameter)
		assert.ErrorIs(t, lag.SetState("S0", 1), dynamo.ErrInvalidParameter)
		assert.ErrorIs(t, lag.SetParam(LagTimeParam, 0), dynamo.ErrInvalidParameter)
	})
}

func TestSplitter(t *testing.T) {
	s, err := NewSplitter("split", 0.3)
	require.NoError(t, err)
	require.NoError(t, s.SetInput(dynamo.Series{10, 0, 4}))

	out, err := s.Outputs()
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.InDeltaSlice(t, []float64{3, 0, 1.2}, []float64(out[0]), 1e-12)
	assert.InDeltaSlice(t, []float64{7, 0, 2.8}, []float64(out[1]), 1e-12)

	_, err = NewSplitter("split", 1.2)
	assert.ErrorIs(t, err, dynamo.ErrInvalidParameter)
	assert.ErrorIs(t, s.SetParam("ratio", 0.5), dynamo.ErrInvalidParameter)
	assert.ErrorIs(t, s.SetInputs(nil), dynamo.ErrInputMismatch)
}

func TestJunction(t *testing.T) {
	j, err := NewJunction("junction", [][]int{{0, 1}, {-1, 1}})
	require.NoError(t, err)
	assert.Equal(t, 2, j.NumInputs())

	require.NoError(t, j.SetInputs([]dynamo.Series{{1, 2}, {10, 20}}))
	out, err := j.Outputs()
	require.NoError(t, err)
	assert.Equal(t, []dynamo.Series{{11, 22}, {10, 20}}, out)

	assert.ErrorIs(t, j.SetInputs([]dynamo.Series{{1, 2}, {1}}), dynamo.ErrInputMismatch)
	assert.ErrorIs(t, j.SetInputs([]dynamo.Series{{1, 2}}), dynamo.ErrInputMismatch)

	_, err = NewJunction("junction", [][]int{{-1}})
	assert.ErrorIs(t, err, dynamo.ErrInvalidParameter)
	_, err = NewJunction("junction", [][]int{{-2}})
	assert.ErrorIs(t, err, dynamo.ErrInvalidParameter)
}

func TestUnsaturatedReservoirFromEmpty(t *testing.T) {
	ur, err := NewUnsaturatedReservoir("UR", UnsaturatedReservoirParams{Smax: 100, Ce: 1, M: 0.01, Beta: 2}, 0, defaultApprox())
	require.NoError(t, err)
	require.NoError(t, ur.SetTimestep(1))
	require.NoError(t, ur.SetInput(dynamo.Series{0, 0, 8}, dynamo.Series{2, 2, 2}))

	q, err := ur.Output()
	require.NoError(t, err)
	assert.True(t, q.IsValid())
	assert.Greater(t, ur.States()[StateS0], 0.0)
}
