package engine

import "github.com/DoyleJ11/hexfog-backend/internal/hexgrid"

// RevealPolicy decides which tiles become visible when the beacon lands on
// a hex. The fixed disc is a stand-in until terrain-aware sight exists.
type RevealPolicy interface {
	Visible(grid hexgrid.Grid, at hexgrid.Coord) []hexgrid.Coord
}

// RadiusPolicy reveals every in-bounds hex within Radius steps.
type RadiusPolicy struct {
	Radius int
}

const (
	DefaultRevealRadius = 1
	// MaxRevealRadius bounds configuration; InRange allocates 3n(n+1)+1
	// coordinates.
	MaxRevealRadius = 64
)

func (p RadiusPolicy) Visible(grid hexgrid.Grid, at hexgrid.Coord) []hexgrid.Coord {
	// No two in-bounds hexes are further apart than Columns+Rows.
	n := min(p.Radius, grid.Columns+grid.Rows)
	all := hexgrid.InRange(at, n)
	out := all[:0]
	for _, c := range all {
		if grid.InBounds(c) {
			out = append(out, c)
		}
	}
	return out
}

type RevealFunc func(grid hexgrid.Grid, at hexgrid.Coord) []hexgrid.Coord

func (f RevealFunc) Visible(grid hexgrid.Grid, at hexgrid.Coord) []hexgrid.Coord {
	return f(grid, at)
}
