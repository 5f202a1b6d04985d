package pathfind

import (
	"container/heap"
	"math"

	"gridlegion.ai/internal/sim/geom"
)

const (
	straightCost = 1.0
	diagonalCost = math.Sqrt2
)

type Options struct {
	AllowDiagonal bool
	// MaxExpansions bounds the number of nodes popped from the open set.
	MaxExpansions int
	// MaxWaypoints caps the reconstructed path; longer paths are truncated.
	MaxWaypoints int
	// DensityWeight is the extra cost per agent standing in an entered cell.
	DensityWeight float64
}

func DefaultOptions() Options {
	return Options{
		AllowDiagonal: true,
		MaxExpansions: 1000,
		MaxWaypoints:  100,
		DensityWeight: 2,
	}
}

type Result struct {
	// Waypoints excludes the start cell and ends at the goal (unless Truncated).
	Waypoints []geom.Cell
	Cost      float64
	Expanded  int
	Truncated bool
}

// Heuristic is the octile distance when diagonal steps are allowed and Manhattan otherwise.
// Both are admissible under the step costs used by FindPath.
func Heuristic(a, b geom.Cell, diagonal bool) float64 {
	dx := math.Abs(float64(a.X - b.X))
	dz := math.Abs(float64(a.Z - b.Z))
	if !diagonal {
		return straightCost * (dx + dz)
	}
	lo, hi := dx, dz
	if lo > hi {
		lo, hi = hi, lo
	}
	return straightCost*(hi-lo) + diagonalCost*lo
}

var (
	orthoDirs = [4]geom.Cell{{X: 1}, {X: -1}, {Z: 1}, {Z: -1}}
	diagDirs  = [4]geom.Cell{{X: 1, Z: 1}, {X: 1, Z: -1}, {X: -1, Z: 1}, {X: -1, Z: -1}}
)

// FindPath runs A* from start to goal. A false result means no path was found, either
// because the open set emptied or because the expansion budget ran out.
func FindPath(start, goal geom.Cell, g Grid, opt Options) (Result, bool) {
	if opt.MaxExpansions <= 0 {
		opt.MaxExpansions = DefaultOptions().MaxExpansions
	}
	if start == goal {
		return Result{}, true
	}
	if !passable(g, goal) {
		return Result{}, false
	}

	gScore := map[geom.Cell]float64{start: 0}
	cameFrom := make(map[geom.Cell]geom.Cell, 256)
	closed := make(map[geom.Cell]bool, 256)

	open := &nodeQueue{}
	var seq uint64
	push := func(c geom.Cell, g float64) {
		seq++
		heap.Push(open, &node{cell: c, g: g, f: g + Heuristic(c, goal, opt.AllowDiagonal), seq: seq})
	}
	push(start, 0)

	expanded := 0
	for open.Len() > 0 {
		cur := heap.Pop(open).(*node)
		if closed[cur.cell] || cur.g > gScore[cur.cell] {
			continue
		}
		if cur.cell == goal {
			res := Result{Waypoints: reconstruct(cameFrom, start, goal), Cost: cur.g, Expanded: expanded}
			if opt.MaxWaypoints > 0 && len(res.Waypoints) > opt.MaxWaypoints {
				res.Waypoints = res.Waypoints[:opt.MaxWaypoints]
				res.Truncated = true
			}
			return res, true
		}
		if expanded >= opt.MaxExpansions {
			return Result{Expanded: expanded}, false
		}
		expanded++
		closed[cur.cell] = true

		visit := func(d geom.Cell, base float64) {
			next := geom.Cell{X: cur.cell.X + d.X, Z: cur.cell.Z + d.Z}
			if closed[next] || !passable(g, next) {
				return
			}
			step := base + float64(g.Density(next.X, next.Z))*opt.DensityWeight
			tentative := cur.g + step
			if old, ok := gScore[next]; ok && tentative >= old {
				return
			}
			gScore[next] = tentative
			cameFrom[next] = cur.cell
			push(next, tentative)
		}
		for _, d := range orthoDirs {
			visit(d, straightCost)
		}
		if !opt.AllowDiagonal {
			continue
		}
		for _, d := range diagDirs {
			// No corner cutting: both orthogonal cells must be open.
			if !passable(g, geom.Cell{X: cur.cell.X + d.X, Z: cur.cell.Z}) ||
				!passable(g, geom.Cell{X: cur.cell.X, Z: cur.cell.Z + d.Z}) {
				continue
			}
			visit(d, diagonalCost)
		}
	}
	return Result{Expanded: expanded}, false
}

func reconstruct(cameFrom map[geom.Cell]geom.Cell, start, goal geom.Cell) []geom.Cell {
	var rev []geom.Cell
	for c := goal; c != start; c = cameFrom[c] {
		rev = append(rev, c)
	}
	out := make([]geom.Cell, len(rev))
	for i, c := range rev {
		out[len(rev)-1-i] = c
	}
	return out
}

type node struct {
	cell  geom.Cell
	g, f  float64
	seq   uint64
	index int
}

type nodeQueue []*node

func (q nodeQueue) Len() int { return len(q) }
func (q nodeQueue) Less(i, j int) bool {
	if q[i].f != q[j].f {
		return q[i].f < q[j].f
	}
	// Prefer deeper nodes on ties; they are closer to the goal.
	if q[i].g != q[j].g {
		return q[i].g > q[j].g
	}
	return q[i].seq < q[j].seq
}
func (q nodeQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}
func (q *nodeQueue) Push(x any) {
	n := x.(*node)
	n.index = len(*q)
	*q = append(*q, n)
}
func (q *nodeQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*q = old[:n-1]
	return item
}
