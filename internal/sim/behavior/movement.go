package behavior

import (
	"gridlegion.ai/internal/sim/geom"
	"gridlegion.ai/internal/sim/pathfind"
	"gridlegion.ai/internal/sim/tasks"
)

// moveAlong steers the body toward a.moveTarget, following the cached route when one
// exists and falling back to a straight line otherwise.
func (e *Engine) moveAlong(a *Agent, pos geom.Vec3, cooldown float64) {
	if !a.hasTarget {
		return
	}
	goal := e.goalCell(pos, a.moveTarget)
	if e.needsRoute(a, goal, cooldown) {
		e.computeRoute(a, pos, goal, false)
	}
	if wp, ok := e.nextWaypoint(a, pos); ok {
		a.body.MoveTo(wp)
		return
	}
	a.body.MoveTo(a.moveTarget)
}

// needsRoute decides whether to run a search this tick. A missing route or a changed goal
// forces one, unless the last attempt at the same goal failed within the cooldown. An
// existing route is refreshed only after the cooldown and once movement has stalled.
func (e *Engine) needsRoute(a *Agent, goal geom.Cell, cooldown float64) bool {
	since := e.now - a.lastPathAt
	if a.route == nil || !a.hasRouteGoal || goal != a.routeGoal {
		if a.hasRouteGoal && goal == a.routeGoal && !a.lastPathOK && since < cooldown {
			return false
		}
		return true
	}
	return since >= cooldown && e.now-a.lastMovedAt >= e.cfg.Movement.StallRecompute
}

// computeRoute searches from the agent's cell to goal and caches the (optionally smoothed)
// waypoints. Forced searches ignore the per-pass search budget.
func (e *Engine) computeRoute(a *Agent, pos geom.Vec3, goal geom.Cell, force bool) bool {
	if !force && !e.budget.Take() {
		return false
	}
	start := e.geo.WorldToCell(pos)
	a.lastPathAt = e.now
	a.routeGoal = goal
	a.hasRouteGoal = true
	a.counters.PathSearches++

	res, ok := pathfind.FindPath(start, goal, e.grid, e.pathOpts)
	a.lastPathOK = ok
	if !ok {
		a.route = nil
		a.routeIdx = 0
		e.log.Printf("path failed: agent=%s from=%v to=%v expanded=%d", a.ID, start, goal, res.Expanded)
		return false
	}
	wps := res.Waypoints
	if e.cfg.Pathfinding.Smooth {
		wps = pathfind.Smooth(wps, e.grid)
	}
	if res.Truncated {
		e.log.Printf("path truncated: agent=%s to=%v waypoints=%d", a.ID, goal, len(wps))
	}
	a.route = append(make([]geom.Cell, 0, len(wps)), wps...)
	a.routeIdx = 0
	return true
}

// nextWaypoint advances past every waypoint already within reach and returns the next
// one in world space.
func (e *Engine) nextWaypoint(a *Agent, pos geom.Vec3) (geom.Vec3, bool) {
	for a.route != nil && a.routeIdx < len(a.route) {
		wp := e.geo.CellToWorld(a.route[a.routeIdx])
		wp.Y = pos.Y
		if geom.DistXZ(pos, wp) > e.cfg.Movement.WaypointReach {
			return wp, true
		}
		a.routeIdx++
	}
	return geom.Vec3{}, false
}

// goalCell maps a world target to a cell the search can end in. Targets standing on
// blocked cells (bases, nodes) resolve to the closest open cell within two rings.
func (e *Engine) goalCell(from, target geom.Vec3) geom.Cell {
	goal := e.geo.WorldToCell(target)
	if e.open(goal) {
		return goal
	}
	start := e.geo.WorldToCell(from)
	for r := 1; r <= 2; r++ {
		best, found := goal, false
		bestH := 0.0
		for dz := -r; dz <= r; dz++ {
			for dx := -r; dx <= r; dx++ {
				if max(abs(dx), abs(dz)) != r {
					continue
				}
				c := geom.Cell{X: goal.X + dx, Z: goal.Z + dz}
				if !e.open(c) {
					continue
				}
				h := pathfind.Heuristic(start, c, true)
				if !found || h < bestH {
					best, bestH, found = c, h, true
				}
			}
		}
		if found {
			return best
		}
	}
	return goal
}

func (e *Engine) open(c geom.Cell) bool {
	return e.grid.InBounds(c.X, c.Z) && e.grid.Traversable(c.X, c.Z)
}

// trackMovement refreshes the progress clock and reports whether the agent just went
// Stuck.
func (e *Engine) trackMovement(a *Agent, pos geom.Vec3) bool {
	if geom.DistXZ(pos, a.lastPos) > e.cfg.Movement.MovedThreshold {
		a.lastPos = pos
		a.lastMovedAt = e.now
	}
	if a.state == StateMoving && e.now-a.lastMovedAt+timeEpsilon >= e.cfg.Movement.StuckWindow {
		e.log.Printf("agent stuck: id=%s pos=%.1f,%.1f since=%.2f", a.ID, pos.X, pos.Z, a.lastMovedAt)
		e.setState(a, StateStuck)
		return true
	}
	return false
}

// recoverStuck tries one fresh route to the current target. Success resumes Moving;
// failure, or a task that has used up its attempts, gives up the task and goes back
// to Wandering.
func (e *Engine) recoverStuck(a *Agent, pos geom.Vec3) {
	a.clearRoute()
	if a.task != nil && a.hasTarget {
		a.task.Attempts++
		if a.task.OutOfAttempts() {
			e.log.Printf("giving up: agent=%s task=%s attempts=%d", a.ID, a.task.ID, a.task.Attempts-1)
		} else if e.computeRoute(a, pos, e.goalCell(pos, a.moveTarget), true) {
			a.counters.StuckRecoveries++
			e.setState(a, StateMoving)
			return
		}
	}
	e.cancelTask(a, tasks.ResultStuckNoPath)
	e.setState(a, StateWandering)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
