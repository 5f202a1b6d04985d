package pathfind

import (
	"testing"

	"gridlegion.ai/internal/sim/geom"
)

// testGrid is built from rows of '.' (open) and '#' (blocked); row index is Z.
type testGrid struct {
	w, d    int
	blocked map[geom.Cell]bool
	density map[geom.Cell]int
}

func parseGrid(rows ...string) *testGrid {
	g := &testGrid{d: len(rows), blocked: map[geom.Cell]bool{}, density: map[geom.Cell]int{}}
	for z, row := range rows {
		if len(row) > g.w {
			g.w = len(row)
		}
		for x, ch := range row {
			if ch == '#' {
				g.blocked[geom.Cell{X: x, Z: z}] = true
			}
		}
	}
	return g
}

func openGrid(w, d int) *testGrid {
	return &testGrid{w: w, d: d, blocked: map[geom.Cell]bool{}, density: map[geom.Cell]int{}}
}

func (g *testGrid) InBounds(x, z int) bool    { return x >= 0 && z >= 0 && x < g.w && z < g.d }
func (g *testGrid) Traversable(x, z int) bool { return !g.blocked[geom.Cell{X: x, Z: z}] }
func (g *testGrid) Density(x, z int) int      { return g.density[geom.Cell{X: x, Z: z}] }

func TestGeometryRoundTrip(t *testing.T) {
	geo := Geometry{Origin: geom.V(-64.5, 3, 17.25), CellSize: 4, Width: 40, Depth: 30}
	for x := 0; x < geo.Width; x++ {
		for z := 0; z < geo.Depth; z++ {
			c := geom.Cell{X: x, Z: z}
			if got := geo.WorldToCell(geo.CellToWorld(c)); got != c {
				t.Fatalf("round trip %+v -> %+v", c, got)
			}
		}
	}
}

func TestGeometryWorldToCellFloors(t *testing.T) {
	geo := Geometry{CellSize: 2, Width: 10, Depth: 10}
	if got := geo.WorldToCell(geom.V(-0.1, 0, 3.9)); got != (geom.Cell{X: -1, Z: 1}) {
		t.Fatalf("WorldToCell=%+v", got)
	}
	if geo.InBounds(geom.Cell{X: -1, Z: 1}) {
		t.Fatalf("negative cell should be out of bounds")
	}
}

func TestBudgetLimits(t *testing.T) {
	b := NewBudget(2)
	if !b.Take() || !b.Take() {
		t.Fatalf("expected two searches allowed")
	}
	if b.Take() {
		t.Fatalf("third search should be denied")
	}
	b.Reset()
	if !b.Take() {
		t.Fatalf("reset should restore budget")
	}
	var unlimited *Budget
	if !unlimited.Take() {
		t.Fatalf("nil budget is unlimited")
	}
}
