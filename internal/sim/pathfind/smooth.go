package pathfind

import "gridlegion.ai/internal/sim/geom"

// LineOfSight walks a Bresenham line from a to b and reports whether every cell after a
// is open. Diagonal steps also require both side cells to be open, matching FindPath.
func LineOfSight(a, b geom.Cell, g Grid) bool {
	dx := abs(b.X - a.X)
	dz := -abs(b.Z - a.Z)
	sx, sz := 1, 1
	if a.X > b.X {
		sx = -1
	}
	if a.Z > b.Z {
		sz = -1
	}
	err := dx + dz
	x, z := a.X, a.Z
	for x != b.X || z != b.Z {
		e2 := 2 * err
		stepX, stepZ := false, false
		if e2 >= dz {
			err += dz
			stepX = true
		}
		if e2 <= dx {
			err += dx
			stepZ = true
		}
		nx, nz := x, z
		if stepX {
			nx += sx
		}
		if stepZ {
			nz += sz
		}
		if stepX && stepZ {
			if !passable(g, geom.Cell{X: nx, Z: z}) || !passable(g, geom.Cell{X: x, Z: nz}) {
				return false
			}
		}
		x, z = nx, nz
		if !passable(g, geom.Cell{X: x, Z: z}) {
			return false
		}
	}
	return true
}

// Smooth drops waypoints that the previous kept waypoint can already see past.
// The first and last waypoints are always kept.
func Smooth(path []geom.Cell, g Grid) []geom.Cell {
	if len(path) <= 2 {
		return append([]geom.Cell(nil), path...)
	}
	out := []geom.Cell{path[0]}
	anchor := path[0]
	for i := 1; i < len(path)-1; i++ {
		if LineOfSight(anchor, path[i+1], g) {
			continue
		}
		out = append(out, path[i])
		anchor = path[i]
	}
	return append(out, path[len(path)-1])
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
