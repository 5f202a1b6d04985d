// Package pathfind computes routes across the simulation grid. It never calls back into
// agent logic: every entry point is a function of (start, goal, grid snapshot, options).
package pathfind

import (
	"math"

	"gridlegion.ai/internal/sim/geom"
)

// Grid is the read-only view of cell occupancy the search needs.
type Grid interface {
	InBounds(x, z int) bool
	Traversable(x, z int) bool
	Density(x, z int) int
}

// Geometry maps grid cells to world space. Cells are CellSize wide, starting at Origin.
type Geometry struct {
	Origin   geom.Vec3
	CellSize float64
	Width    int
	Depth    int
}

func (g Geometry) cellSize() float64 {
	if g.CellSize <= 0 {
		return 1
	}
	return g.CellSize
}

// CellToWorld returns the centre of c.
func (g Geometry) CellToWorld(c geom.Cell) geom.Vec3 {
	cs := g.cellSize()
	return geom.Vec3{
		X: g.Origin.X + (float64(c.X)+0.5)*cs,
		Y: g.Origin.Y,
		Z: g.Origin.Z + (float64(c.Z)+0.5)*cs,
	}
}

// WorldToCell returns the cell containing p. The result may be out of bounds.
func (g Geometry) WorldToCell(p geom.Vec3) geom.Cell {
	cs := g.cellSize()
	return geom.Cell{
		X: int(math.Floor((p.X - g.Origin.X) / cs)),
		Z: int(math.Floor((p.Z - g.Origin.Z) / cs)),
	}
}

func (g Geometry) InBounds(c geom.Cell) bool {
	return c.X >= 0 && c.Z >= 0 && c.X < g.Width && c.Z < g.Depth
}

func passable(g Grid, c geom.Cell) bool {
	return g.InBounds(c.X, c.Z) && g.Traversable(c.X, c.Z)
}
