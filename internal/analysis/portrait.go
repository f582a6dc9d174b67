package analysis

import (
	"fmt"
	"strings"

	"github.com/san-kum/hydrosim/internal/dynamo"
)

type Point struct {
	X, Y float64
}

// Portrait is a scatter of two series of one run, typically storage
// against discharge of a reservoir.
type Portrait struct {
	XLabel, YLabel string
	Points         []Point
}

func NewPortrait(xLabel string, x dynamo.Series, yLabel string, y dynamo.Series) (*Portrait, error) {
	if len(x) != len(y) {
		return nil, fmt.Errorf("%w: %d x values, %d y values", dynamo.ErrInputMismatch, len(x), len(y))
	}
	p := &Portrait{XLabel: xLabel, YLabel: yLabel, Points: make([]Point, len(x))}
	for i := range x {
		p.Points[i] = Point{X: x[i], Y: y[i]}
	}
	return p, nil
}

// storageReservoir is a solved reservoir element.
type storageReservoir interface {
	dynamo.Element
	StateSeries() (dynamo.Series, error)
	Outputs() ([]dynamo.Series, error)
}

// StorageDischarge pairs the storage trajectory of a reservoir with its
// first output. The reservoir is solved again from its current storage.
func StorageDischarge(r storageReservoir) (*Portrait, error) {
	out, err := r.Outputs()
	if err != nil {
		return nil, err
	}
	s, err := r.StateSeries()
	if err != nil {
		return nil, err
	}
	return NewPortrait(r.ID()+" storage", s, r.ID()+" outflow", out[0])
}

// ASCII draws the portrait on a width x height character canvas.
func (p *Portrait) ASCII(width, height int) string {
	if p == nil || len(p.Points) == 0 || width <= 0 || height <= 0 {
		return ""
	}

	minX, maxX := p.Points[0].X, p.Points[0].X
	minY, maxY := p.Points[0].Y, p.Points[0].Y
	for _, pt := range p.Points {
		minX, maxX = min(minX, pt.X), max(maxX, pt.X)
		minY, maxY = min(minY, pt.Y), max(maxY, pt.Y)
	}

	rangeX := maxX - minX
	rangeY := maxY - minY
	if rangeX == 0 {
		rangeX = 1
	}
	if rangeY == 0 {
		rangeY = 1
	}

	canvas := make([][]rune, height)
	for i := range canvas {
		canvas[i] = []rune(strings.Repeat(" ", width))
	}

	for _, pt := range p.Points {
		col := int((pt.X - minX) / rangeX * float64(width-1))
		row := height - 1 - int((pt.Y-minY)/rangeY*float64(height-1))
		if row >= 0 && row < height && col >= 0 && col < width {
			canvas[row][col] = '•'
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s [%.3g, %.3g]\n", p.YLabel, minY, maxY)
	for _, row := range canvas {
		sb.WriteRune('│')
		sb.WriteString(string(row))
		sb.WriteRune('\n')
	}
	sb.WriteRune('└')
	sb.WriteString(strings.Repeat("─", width))
	fmt.Fprintf(&sb, "\n%s [%.3g, %.3g]\n", p.XLabel, minX, maxX)
	return sb.String()
}
