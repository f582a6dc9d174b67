package viz

import (
	"math"
	"strings"

	"github.com/san-kum/hydrosim/internal/analysis"
)

// Braille Patterns: 2x4 dots
// 1 4
// 2 5
// 3 6
// 7 8
//
// Unicode offset 0x2800
var pixelMap = [4][2]int{
	{0x1, 0x8},
	{0x2, 0x10},
	{0x4, 0x20},
	{0x40, 0x80},
}

const blank = 0x2800

// Canvas is a braille dot grid. Its resolution in dots is
// (Width*2) x (Height*4).
type Canvas struct {
	Width, Height int
	Grid          [][]rune
}

func NewCanvas(w, h int) *Canvas {
	c := &Canvas{
		Width:  w,
		Height: h,
		Grid:   make([][]rune, h),
	}
	for i := range c.Grid {
		c.Grid[i] = make([]rune, w)
	}
	c.Clear()
	return c
}

// Set lights the dot at (x, y); y grows downwards.
func (c *Canvas) Set(x, y int) {
	if x < 0 || y < 0 {
		return
	}
	col, row := x/2, y/4
	if col >= c.Width || row >= c.Height {
		return
	}
	c.Grid[row][col] |= rune(pixelMap[y%4][x%2])
}

func (c *Canvas) Clear() {
	for i := range c.Grid {
		for j := range c.Grid[i] {
			c.Grid[i][j] = blank
		}
	}
}

// DrawLine draws a line using Bresenham's algorithm
func (c *Canvas) DrawLine(x0, y0, x1, y1 int) {
	dx := absInt(x1 - x0)
	dy := absInt(y1 - y0)
	sx := -1
	if x0 < x1 {
		sx = 1
	}
	sy := -1
	if y0 < y1 {
		sy = 1
	}
	err := dx - dy

	for {
		c.Set(x0, y0)
		if x0 == x1 && y0 == y1 {
			break
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x0 += sx
		}
		if e2 < dx {
			err += dx
			y0 += sy
		}
	}
}

func (c *Canvas) String() string {
	var b strings.Builder
	for _, row := range c.Grid {
		b.WriteString(string(row) + "\n")
	}
	return b.String()
}

// Scatter draws the portrait onto a braille canvas of w x h cells, with
// consecutive points joined so the trajectory reads as a loop. The y axis
// points up.
func Scatter(p *analysis.Portrait, w, h int) string {
	if p == nil || w <= 0 || h <= 0 {
		return ""
	}
	c := NewCanvas(w, h)
	pts := make([]analysis.Point, 0, len(p.Points))
	for _, pt := range p.Points {
		if isFinite(pt.X) && isFinite(pt.Y) {
			pts = append(pts, pt)
		}
	}
	if len(pts) == 0 {
		return c.String()
	}

	minX, maxX := pts[0].X, pts[0].X
	minY, maxY := pts[0].Y, pts[0].Y
	for _, pt := range pts {
		minX, maxX = math.Min(minX, pt.X), math.Max(maxX, pt.X)
		minY, maxY = math.Min(minY, pt.Y), math.Max(maxY, pt.Y)
	}
	dotsX, dotsY := w*2-1, h*4-1
	project := func(pt analysis.Point) (int, int) {
		x, y := 0.5, 0.5
		if maxX > minX {
			x = (pt.X - minX) / (maxX - minX)
		}
		if maxY > minY {
			y = (pt.Y - minY) / (maxY - minY)
		}
		return int(math.Round(x * float64(dotsX))), dotsY - int(math.Round(y*float64(dotsY)))
	}

	px, py := project(pts[0])
	c.Set(px, py)
	for _, pt := range pts[1:] {
		x, y := project(pt)
		c.DrawLine(px, py, x, y)
		px, py = x, y
	}
	return c.String()
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func finiteRange(values []float64) (lo, hi float64, ok bool) {
	for _, v := range values {
		if !isFinite(v) {
			continue
		}
		if !ok {
			lo, hi, ok = v, v, true
			continue
		}
		lo, hi = math.Min(lo, v), math.Max(hi, v)
	}
	return lo, hi, ok
}
