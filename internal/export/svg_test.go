package export

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/hydrosim/internal/analysis"
	"github.com/san-kum/hydrosim/internal/dynamo"
	"github.com/san-kum/hydrosim/internal/sim"
)

func TestSeriesSVG(t *testing.T) {
	var buf bytes.Buffer
	err := SeriesSVG(&buf, "flows", []Series{
		{Name: "a", Values: []float64{0, 1, 2}},
		{Name: "b<c", Values: []float64{2, math.NaN(), 0}, Stroke: "#123456"},
	}, 200, 100)
	require.NoError(t, err)

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "<?xml"))
	assert.True(t, strings.HasSuffix(out, "</svg>\n"))
	assert.Contains(t, out, `stroke="#123456"`)
	assert.Contains(t, out, "b&lt;c")

	// Series a spans the plot area corner to corner.
	assert.Contains(t, out, `d=" M40.0,60.0 L100.0,50.0 L160.0,40.0"`)
	// The gap in b starts a new subpath.
	assert.Contains(t, out, `d=" M40.0,40.0 M160.0,60.0"`)
}

func TestSeriesSVGEmpty(t *testing.T) {
	var buf bytes.Buffer
	err := SeriesSVG(&buf, "none", []Series{{Name: "gap", Values: []float64{math.NaN()}}}, 200, 100)
	assert.Error(t, err)
	assert.Zero(t, buf.Len())
}

func TestHydrographSVG(t *testing.T) {
	var buf bytes.Buffer
	r := &sim.Result{Model: "m01", Q: dynamo.Series{1, 2, 3}, QObs: dynamo.Series{1, math.NaN(), 3}}
	require.NoError(t, HydrographSVG(&buf, r, 300, 150))
	assert.Contains(t, buf.String(), "m01 discharge")
	assert.Contains(t, buf.String(), "Qobs")

	buf.Reset()
	r.QObs = nil
	require.NoError(t, HydrographSVG(&buf, r, 300, 150))
	assert.NotContains(t, buf.String(), "Qobs")
}

func TestPortraitSVG(t *testing.T) {
	p, err := analysis.NewPortrait("FR storage", dynamo.Series{0, 10}, "FR outflow", dynamo.Series{0, 1})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, PortraitSVG(&buf, p, 200, 100))
	assert.Contains(t, buf.String(), `d=" M40.0,60.0 L160.0,40.0"`)
	assert.Contains(t, buf.String(), "FR outflow")

	empty := &analysis.Portrait{Points: []analysis.Point{{X: math.NaN(), Y: 1}}}
	assert.Error(t, PortraitSVG(&buf, empty, 200, 100))
}
