package hexgrid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func grids() map[string]Grid {
	return map[string]Grid{
		"flat":   {Size: 10, Columns: 20, Rows: 20, Orientation: FlatTop},
		"pointy": {Size: 7.5, Columns: 12, Rows: 9, Orientation: PointyTop},
	}
}

func TestPixelToHex_RoundTripsEveryInBoundsHex(t *testing.T) {
	for name, g := range grids() {
		t.Run(name, func(t *testing.T) {
			for q := 0; q < g.Columns; q++ {
				for r := 0; r < g.Rows; r++ {
					c := Coord{Q: q, R: r}
					require.Equal(t, c, g.PixelToHex(g.HexToPixel(c)), "round trip of %v", c)
				}
			}
		})
	}
}

func TestPixelToHex_PointsInsidePolygonResolveToThatHex(t *testing.T) {
	target := Coord{Q: 2, R: 1}
	for name, g := range grids() {
		t.Run(name, func(t *testing.T) {
			center := g.HexToPixel(target)
			corners := g.Corners(target)
			for i, corner := range corners {
				// Pull each vertex and each edge midpoint slightly inward.
				next := corners[(i+1)%6]
				mid := Point{X: (corner.X + next.X) / 2, Y: (corner.Y + next.Y) / 2}
				for _, p := range []Point{corner, mid} {
					inside := Point{
						X: center.X + 0.95*(p.X-center.X),
						Y: center.Y + 0.95*(p.Y-center.Y),
					}
					assert.Equal(t, target, g.PixelToHex(inside), "point %+v", inside)
				}
			}
			assert.Equal(t, target, g.PixelToHex(center))
		})
	}
}

func TestHexToPixel_FlatAndPointySwapFactors(t *testing.T) {
	flat := Grid{Size: 10, Orientation: FlatTop}
	p := flat.HexToPixel(Coord{Q: 2, R: 0})
	assert.InDelta(t, 30.0, p.X, 1e-9)
	assert.InDelta(t, 10*sqrt3, p.Y, 1e-9)

	pointy := Grid{Size: 10, Orientation: PointyTop}
	p = pointy.HexToPixel(Coord{Q: 0, R: 2})
	assert.InDelta(t, 10*sqrt3, p.X, 1e-9)
	assert.InDelta(t, 30.0, p.Y, 1e-9)
}

func TestCorners_AreSizeFromCenter(t *testing.T) {
	for name, g := range grids() {
		t.Run(name, func(t *testing.T) {
			c := Coord{Q: 3, R: 4}
			center := g.HexToPixel(c)
			corners := g.Corners(c)
			for _, p := range corners {
				dx, dy := p.X-center.X, p.Y-center.Y
				assert.InDelta(t, g.Size*g.Size, dx*dx+dy*dy, 1e-6)
			}
		})
	}

	flat := Grid{Size: 10, Orientation: FlatTop}
	first := flat.Corners(Coord{})[0]
	assert.InDelta(t, 10.0, first.X, 1e-9)
	assert.InDelta(t, 0.0, first.Y, 1e-9)

	pointy := Grid{Size: 10, Orientation: PointyTop}
	first = pointy.Corners(Coord{})[0]
	assert.InDelta(t, 5*sqrt3, first.X, 1e-9)
	assert.InDelta(t, -5.0, first.Y, 1e-9)
}

func TestInBounds(t *testing.T) {
	g := Grid{Size: 10, Columns: 20, Rows: 10}
	cases := []struct {
		c    Coord
		want bool
	}{
		{Coord{0, 0}, true},
		{Coord{19, 9}, true},
		{Coord{20, 0}, false},
		{Coord{0, 10}, false},
		{Coord{-1, 3}, false},
		{Coord{3, -1}, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, g.InBounds(tc.c), "InBounds(%v)", tc.c)
	}
}

func TestDistance(t *testing.T) {
	cases := []struct {
		a, b Coord
		want int
	}{
		{Coord{0, 0}, Coord{0, 0}, 0},
		{Coord{0, 0}, Coord{1, 0}, 1},
		{Coord{0, 0}, Coord{1, -1}, 1},
		{Coord{0, 0}, Coord{2, 2}, 4},
		{Coord{3, -1}, Coord{-2, 4}, 5},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Distance(tc.a, tc.b), "Distance(%v,%v)", tc.a, tc.b)
		assert.Equal(t, tc.want, Distance(tc.b, tc.a))
	}
}

func TestInRange_RadiusOneAroundFiveFive(t *testing.T) {
	got := InRange(Coord{Q: 5, R: 5}, 1)
	want := []Coord{{5, 5}, {4, 5}, {6, 5}, {5, 4}, {5, 6}, {4, 6}, {6, 4}}
	assert.ElementsMatch(t, want, got)
}

func TestInRange_CountAndDistance(t *testing.T) {
	center := Coord{Q: -3, R: 7}
	for n := 0; n <= 4; n++ {
		got := InRange(center, n)
		require.Len(t, got, 3*n*(n+1)+1)
		seen := map[Coord]bool{}
		for _, c := range got {
			assert.LessOrEqual(t, Distance(center, c), n)
			assert.False(t, seen[c], "duplicate %v", c)
			seen[c] = true
		}
	}
	assert.Nil(t, InRange(center, -1))
}

func TestNeighbors_AreAllDistanceOne(t *testing.T) {
	c := Coord{Q: 4, R: 2}
	for _, n := range Neighbors(c) {
		assert.Equal(t, 1, Distance(c, n))
	}
}

func TestPixelBounds_CoversAllCorners(t *testing.T) {
	g := Grid{Size: 10, Columns: 4, Rows: 3, Orientation: FlatTop}
	lo, hi := g.PixelBounds()
	for q := 0; q < g.Columns; q++ {
		for r := 0; r < g.Rows; r++ {
			for _, p := range g.Corners(Coord{Q: q, R: r}) {
				assert.GreaterOrEqual(t, p.X, lo.X-1e-9)
				assert.GreaterOrEqual(t, p.Y, lo.Y-1e-9)
				assert.LessOrEqual(t, p.X, hi.X+1e-9)
				assert.LessOrEqual(t, p.Y, hi.Y+1e-9)
			}
		}
	}
}

func TestParseOrientation(t *testing.T) {
	o, err := ParseOrientation("")
	require.NoError(t, err)
	assert.Equal(t, FlatTop, o)

	o, err = ParseOrientation("pointy")
	require.NoError(t, err)
	assert.Equal(t, PointyTop, o)

	_, err = ParseOrientation("round")
	assert.Error(t, err)
}
