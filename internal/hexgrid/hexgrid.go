// Package hexgrid converts between axial hex coordinates and pixel space.
//
// Everything here is a pure function of its numeric input. Coordinates
// outside a grid's extent are still valid geometry; they simply fail
// InBounds.
package hexgrid

import (
	"fmt"
	"math"
)

type Orientation string

const (
	FlatTop   Orientation = "flat"
	PointyTop Orientation = "pointy"
)

func ParseOrientation(s string) (Orientation, error) {
	switch Orientation(s) {
	case FlatTop, "":
		return FlatTop, nil
	case PointyTop:
		return PointyTop, nil
	default:
		return "", fmt.Errorf("unknown hex orientation %q", s)
	}
}

// Coord is an axial (column, row) address. The implicit cube coordinate
// is S = -Q-R.
type Coord struct {
	Q int `json:"q"`
	R int `json:"r"`
}

func (c Coord) S() int { return -c.Q - c.R }

func (c Coord) Add(o Coord) Coord { return Coord{Q: c.Q + o.Q, R: c.R + o.R} }

func (c Coord) String() string { return fmt.Sprintf("(%d,%d)", c.Q, c.R) }

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Grid holds the parameters of one layer's tiling.
type Grid struct {
	Size        float64
	Columns     int
	Rows        int
	Orientation Orientation
}

var sqrt3 = math.Sqrt(3)

// HexToPixel returns the centre of c.
func (g Grid) HexToPixel(c Coord) Point {
	q, r := float64(c.Q), float64(c.R)
	if g.Orientation == PointyTop {
		return Point{
			X: g.Size * sqrt3 * (q + r/2),
			Y: g.Size * (3.0 / 2.0 * r),
		}
	}
	return Point{
		X: g.Size * (3.0 / 2.0 * q),
		Y: g.Size * sqrt3 * (r + q/2),
	}
}

// PixelToHex returns the hex containing p.
func (g Grid) PixelToHex(p Point) Coord {
	var q, r float64
	if g.Orientation == PointyTop {
		q = (sqrt3/3*p.X - 1.0/3*p.Y) / g.Size
		r = (2.0 / 3 * p.Y) / g.Size
	} else {
		q = (2.0 / 3 * p.X) / g.Size
		r = (-1.0/3*p.X + sqrt3/3*p.Y) / g.Size
	}
	return roundCube(q, r)
}

// roundCube rounds fractional axial coordinates to a lattice hex. The
// component with the largest rounding error is rebuilt from the other two
// so q+r+s stays zero.
func roundCube(q, r float64) Coord {
	s := -q - r
	rq, rr, rs := math.Round(q), math.Round(r), math.Round(s)

	dq := math.Abs(rq - q)
	dr := math.Abs(rr - r)
	ds := math.Abs(rs - s)

	switch {
	case dq > dr && dq > ds:
		rq = -rr - rs
	case dr > ds:
		rr = -rq - rs
	}
	return Coord{Q: int(rq), R: int(rr)}
}

// Corners returns the six polygon vertices of c, clockwise in screen space.
func (g Grid) Corners(c Coord) [6]Point {
	center := g.HexToPixel(c)
	var out [6]Point
	for i := 0; i < 6; i++ {
		deg := 60.0 * float64(i)
		if g.Orientation == PointyTop {
			deg -= 30
		}
		rad := math.Pi / 180 * deg
		out[i] = Point{
			X: center.X + g.Size*math.Cos(rad),
			Y: center.Y + g.Size*math.Sin(rad),
		}
	}
	return out
}

func (g Grid) InBounds(c Coord) bool {
	return c.Q >= 0 && c.Q < g.Columns && c.R >= 0 && c.R < g.Rows
}

// PixelBounds is the bounding box of every in-bounds hex polygon.
func (g Grid) PixelBounds() (min, max Point) {
	if g.Columns <= 0 || g.Rows <= 0 {
		return Point{}, Point{}
	}
	min = Point{X: math.Inf(1), Y: math.Inf(1)}
	max = Point{X: math.Inf(-1), Y: math.Inf(-1)}
	// The extremes always sit on the outer ring of the parallelogram.
	visit := func(c Coord) {
		for _, p := range g.Corners(c) {
			min.X = math.Min(min.X, p.X)
			min.Y = math.Min(min.Y, p.Y)
			max.X = math.Max(max.X, p.X)
			max.Y = math.Max(max.Y, p.Y)
		}
	}
	for q := 0; q < g.Columns; q++ {
		visit(Coord{Q: q, R: 0})
		visit(Coord{Q: q, R: g.Rows - 1})
	}
	for r := 0; r < g.Rows; r++ {
		visit(Coord{Q: 0, R: r})
		visit(Coord{Q: g.Columns - 1, R: r})
	}
	return min, max
}

func Distance(a, b Coord) int {
	dq := a.Q - b.Q
	dr := a.R - b.R
	return (abs(dq) + abs(dq+dr) + abs(dr)) / 2
}

// InRange lists every hex within n steps of center, center included.
// Order is by Q offset, then R offset.
func InRange(center Coord, n int) []Coord {
	if n < 0 {
		return nil
	}
	out := make([]Coord, 0, 3*n*(n+1)+1)
	for dq := -n; dq <= n; dq++ {
		lo := max(-n, -dq-n)
		hi := min(n, -dq+n)
		for dr := lo; dr <= hi; dr++ {
			out = append(out, Coord{Q: center.Q + dq, R: center.R + dr})
		}
	}
	return out
}

var directions = [6]Coord{
	{Q: 1, R: 0}, {Q: 1, R: -1}, {Q: 0, R: -1},
	{Q: -1, R: 0}, {Q: -1, R: 1}, {Q: 0, R: 1},
}

func Neighbors(c Coord) [6]Coord {
	var out [6]Coord
	for i, d := range directions {
		out[i] = c.Add(d)
	}
	return out
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
