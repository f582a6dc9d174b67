// Package export writes runs as standalone SVG charts.
package export

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/san-kum/hydrosim/internal/analysis"
	"github.com/san-kum/hydrosim/internal/sim"
)

// Series is one polyline of a chart.
type Series struct {
	Name   string
	Values []float64
	Stroke string
}

const (
	background = "#0a0a0a"
	axis       = "#444466"
	text       = "#cccccc"
	pad        = 40.0
)

type bounds struct {
	minX, maxX, minY, maxY float64
}

func (b bounds) project(x, y, width, height float64) (float64, float64) {
	rx, ry := b.maxX-b.minX, b.maxY-b.minY
	if rx == 0 {
		rx = 1
	}
	if ry == 0 {
		ry = 1
	}
	px := pad + (x-b.minX)/rx*(width-2*pad)
	py := height - pad - (y-b.minY)/ry*(height-2*pad)
	return px, py
}

func header(sb *strings.Builder, width, height int) {
	fmt.Fprintf(sb, `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="%s"/>
`, width, height, width, height, background)
}

func frame(sb *strings.Builder, b bounds, width, height float64, xLabel, yLabel string) {
	fmt.Fprintf(sb, `<path fill="none" stroke="%s" d="M%.1f,%.1f L%.1f,%.1f L%.1f,%.1f"/>
`, axis, pad, pad, pad, height-pad, width-pad, height-pad)
	fmt.Fprintf(sb, `<g fill="%s" font-family="monospace" font-size="11">
<text x="%.1f" y="%.1f">%.3g</text>
<text x="%.1f" y="%.1f">%.3g</text>
<text x="%.1f" y="%.1f" text-anchor="middle">%s</text>
<text x="4" y="%.1f">%s</text>
</g>
`, text,
		4.0, height-pad, b.minY,
		4.0, pad-4, b.maxY,
		width/2, height-8, escape(xLabel),
		pad/2, escape(yLabel))
}

// path writes a polyline, broken wherever a coordinate is not finite.
func path(sb *strings.Builder, stroke string, n int, at func(i int) (float64, float64, bool)) {
	fmt.Fprintf(sb, `<path fill="none" stroke="%s" stroke-width="1.5" d="`, stroke)
	pen := false
	for i := 0; i < n; i++ {
		x, y, ok := at(i)
		if !ok {
			pen = false
			continue
		}
		if pen {
			fmt.Fprintf(sb, " L%.1f,%.1f", x, y)
		} else {
			fmt.Fprintf(sb, " M%.1f,%.1f", x, y)
			pen = true
		}
	}
	sb.WriteString(`"/>
`)
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

var palette = []string{"#00ccff", "#ff4444", "#00ff88", "#ffcc00", "#ff00ff"}

// SeriesSVG draws the series against their index on one chart. Missing
// values leave gaps.
func SeriesSVG(w io.Writer, title string, series []Series, width, height int) error {
	b := bounds{minX: 0}
	n, seen := 0, false
	for _, s := range series {
		n = max(n, len(s.Values))
		for _, v := range s.Values {
			if !finite(v) {
				continue
			}
			if !seen {
				b.minY, b.maxY, seen = v, v, true
			}
			b.minY, b.maxY = math.Min(b.minY, v), math.Max(b.maxY, v)
		}
	}
	if !seen {
		return fmt.Errorf("nothing to draw: no finite values")
	}
	b.maxX = float64(max(n-1, 1))

	fw, fh := float64(width), float64(height)
	var sb strings.Builder
	header(&sb, width, height)
	frame(&sb, b, fw, fh, "step", title)
	for k, s := range series {
		stroke := s.Stroke
		if stroke == "" {
			stroke = palette[k%len(palette)]
		}
		values := s.Values
		path(&sb, stroke, len(values), func(i int) (float64, float64, bool) {
			if !finite(values[i]) {
				return 0, 0, false
			}
			x, y := b.project(float64(i), values[i], fw, fh)
			return x, y, true
		})
		fmt.Fprintf(&sb, `<text x="%.1f" y="%.1f" fill="%s" font-family="monospace" font-size="11">%s</text>
`, fw-pad-60, pad+14*float64(k), stroke, escape(s.Name))
	}
	sb.WriteString("</svg>\n")

	_, err := io.WriteString(w, sb.String())
	return err
}

// HydrographSVG draws simulated and observed discharge of a run.
func HydrographSVG(w io.Writer, r *sim.Result, width, height int) error {
	series := []Series{{Name: "Q", Values: r.Q}}
	if r.QObs != nil {
		series = append(series, Series{Name: "Qobs", Values: r.QObs})
	}
	return SeriesSVG(w, r.Model+" discharge", series, width, height)
}

// PortraitSVG draws a storage-discharge portrait as one trajectory.
func PortraitSVG(w io.Writer, p *analysis.Portrait, width, height int) error {
	var b bounds
	seen := false
	for _, pt := range p.Points {
		if !finite(pt.X) || !finite(pt.Y) {
			continue
		}
		if !seen {
			b = bounds{pt.X, pt.X, pt.Y, pt.Y}
			seen = true
		}
		b.minX, b.maxX = math.Min(b.minX, pt.X), math.Max(b.maxX, pt.X)
		b.minY, b.maxY = math.Min(b.minY, pt.Y), math.Max(b.maxY, pt.Y)
	}
	if !seen {
		return fmt.Errorf("nothing to draw: no finite points")
	}

	fw, fh := float64(width), float64(height)
	var sb strings.Builder
	header(&sb, width, height)
	frame(&sb, b, fw, fh, p.XLabel, p.YLabel)
	path(&sb, palette[0], len(p.Points), func(i int) (float64, float64, bool) {
		pt := p.Points[i]
		if !finite(pt.X) || !finite(pt.Y) {
			return 0, 0, false
		}
		x, y := b.project(pt.X, pt.Y, fw, fh)
		return x, y, true
	})
	sb.WriteString("</svg>\n")

	_, err := io.WriteString(w, sb.String())
	return err
}

var escaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")

func escape(s string) string { return escaper.Replace(s) }
