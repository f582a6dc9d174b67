package viz

import (
	"fmt"
	"math"

	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/hydrosim/internal/analysis"
	"github.com/san-kum/hydrosim/internal/sim"
)

// PlotOptions size the line charts. Zero values use the defaults.
type PlotOptions struct {
	Width  int
	Height int
}

func (o PlotOptions) withDefaults() PlotOptions {
	if o.Width <= 0 {
		o.Width = 80
	}
	if o.Height <= 0 {
		o.Height = 15
	}
	return o
}

var palette = []asciigraph.AnsiColor{
	asciigraph.Blue,
	asciigraph.Red,
	asciigraph.Green,
	asciigraph.Yellow,
	asciigraph.Cyan,
	asciigraph.Magenta,
}

// Line is one named series of a chart.
type Line struct {
	Name   string
	Values []float64
}

// PlotLines draws the lines on one chart. Lines without any finite value
// are left out; an empty string is returned when none remain.
func PlotLines(caption string, opts PlotOptions, lines ...Line) string {
	opts = opts.withDefaults()

	var (
		data    [][]float64
		names   []string
		colours []asciigraph.AnsiColor
	)
	for _, l := range lines {
		if _, _, ok := finiteRange(l.Values); !ok {
			continue
		}
		data = append(data, l.Values)
		names = append(names, l.Name)
		colours = append(colours, palette[(len(data)-1)%len(palette)])
	}
	if len(data) == 0 {
		return ""
	}

	return asciigraph.PlotMany(data,
		asciigraph.Height(opts.Height),
		asciigraph.Width(opts.Width),
		asciigraph.Caption(caption),
		asciigraph.SeriesColors(colours...),
		asciigraph.SeriesLegends(names...),
	)
}

// Hydrograph plots simulated against observed discharge of a run.
func Hydrograph(r *sim.Result, opts PlotOptions) string {
	if r == nil {
		return ""
	}
	caption := fmt.Sprintf("%s discharge", r.Model)
	if nse, ok := r.Metrics["nse"]; ok && !math.IsNaN(nse) {
		caption += fmt.Sprintf(" (NSE %.3f)", nse)
	}
	return PlotLines(caption, opts,
		Line{Name: "Q", Values: r.Q},
		Line{Name: "Qobs", Values: r.QObs},
	)
}

// Fluxes plots the forcing and the simulated fluxes of a run.
func Fluxes(r *sim.Result, opts PlotOptions) string {
	if r == nil {
		return ""
	}
	return PlotLines(r.Model+" fluxes", opts,
		Line{Name: "P", Values: r.P},
		Line{Name: "PET", Values: r.PET},
		Line{Name: "AET", Values: r.AET},
		Line{Name: "Q", Values: r.Q},
	)
}

// SweepPlot draws the discharge of every sweep point on one chart.
func SweepPlot(param string, points []analysis.SweepPoint, opts PlotOptions) string {
	lines := make([]Line, len(points))
	for i, p := range points {
		lines[i] = Line{Name: fmt.Sprintf("%s=%.4g", param, p.Value), Values: p.Q}
	}
	return PlotLines("discharge by "+param, opts, lines...)
}
