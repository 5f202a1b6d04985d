package behavior

import (
	"math"

	"gridlegion.ai/internal/protocol"
	"gridlegion.ai/internal/sim/geom"
	"gridlegion.ai/internal/sim/tasks"
)

// setState transitions a and runs the entry effects of the new state. Re-entering the
// current state is a no-op, and nothing leaves Dead.
func (e *Engine) setState(a *Agent, s State) {
	if a.state == s || a.state == StateDead {
		return
	}
	prev := a.state
	a.state = s
	a.stateSince = e.now
	e.idx.moveState(a.ID, prev, s)
	e.emitAgent(a, protocol.ChangeState)
	e.enter(a)
}

func (e *Engine) enter(a *Agent) {
	pos := a.body.Position()
	switch a.state {
	case StateWandering:
		a.clearMovement()
		e.resetProgressClock(a, pos)
		if a.task.Kind() != tasks.KindPatrol {
			e.assign(a, tasks.Patrol{Center: e.patrolCenter(a, pos), Radius: a.patrolRadius}, TaskOptions{})
		}
	case StateMoving:
		e.resetProgressClock(a, pos)
	case StateWorking:
		if a.task != nil {
			a.task.Progress = 0
		}
		a.clearRoute()
		a.body.MoveTo(pos)
	case StateReturning:
		a.clearRoute()
		e.resetProgressClock(a, pos)
		if a.task.Kind() != tasks.KindDeposit {
			e.assign(a, tasks.Deposit{}, TaskOptions{})
		}
	case StateIdle:
		a.idleSince = e.now
		a.clearMovement()
		a.body.MoveTo(pos)
	case StateFighting:
		a.attackReadyAt = e.now
		a.clearRoute()
		a.body.MoveTo(pos)
	case StateFleeing:
		a.clearRoute()
		e.resetProgressClock(a, pos)
		if a.task.Kind() != tasks.KindFleeToBase {
			e.assign(a, tasks.FleeToBase{}, TaskOptions{})
		}
	case StateStuck:
		e.recoverStuck(a, pos)
	case StateDead:
		e.remove(a, "Dead")
	}
}

func (e *Engine) resetProgressClock(a *Agent, pos geom.Vec3) {
	a.lastPos = pos
	a.lastMovedAt = e.now
}

func (e *Engine) tick(a *Agent, pos geom.Vec3, dt float64) {
	switch a.state {
	case StateWandering:
		e.tickWandering(a, pos)
	case StateMoving:
		e.tickMoving(a, pos)
	case StateWorking:
		e.tickWorking(a, dt)
	case StateReturning:
		e.tickReturning(a, pos)
	case StateIdle:
		e.tickIdle(a)
	case StateFighting:
		e.tickFighting(a, pos)
	case StateFleeing:
		e.tickFleeing(a, pos)
	}
}

func (e *Engine) tickIdle(a *Agent) {
	if e.now-a.idleSince+timeEpsilon >= e.cfg.Tasks.IdleDwell {
		e.setState(a, StateWandering)
	}
}

func (e *Engine) tickWandering(a *Agent, pos geom.Vec3) {
	if e.findWork(a, pos) {
		return
	}
	if a.carriedWeight > 0 && a.Stats.CanHarvest && !a.stockpileFull {
		// Nothing left to pick up nearby; bank what we have.
		e.setState(a, StateReturning)
		return
	}
	var p tasks.Patrol
	if a.task != nil {
		p, _ = a.task.Payload.(tasks.Patrol)
	}
	if a.task.Kind() != tasks.KindPatrol {
		e.assign(a, tasks.Patrol{Center: e.patrolCenter(a, pos), Radius: a.patrolRadius}, TaskOptions{})
		return
	}
	if !a.hasTarget || geom.DistXZ(pos, a.moveTarget) <= e.cfg.Movement.ArrivalDistance {
		a.setTarget(e.patrolPoint(p.Center, p.Radius, pos.Y))
		a.clearRoute()
	}
	e.moveAlong(a, pos, e.cfg.Movement.RouteCooldown)
}

// findWork claims the nearest harvest node or blueprint in range and assigns it.
func (e *Engine) findWork(a *Agent, pos geom.Vec3) bool {
	if a.Stats.CanHarvest && !a.full() {
		if c, ok := e.grid.ClaimNextHarvestTask(a.ID, pos, e.cfg.Work.HarvestScanRange); ok {
			return e.assign(a, tasks.Harvest{NodeID: c.NodeID, Resource: c.Resource, Pos: c.Pos}, TaskOptions{})
		}
	}
	if a.Stats.CanBuild {
		if bp, ok := e.world.ClaimBlueprint(a.ID, a.Owner, pos, e.cfg.Work.BuildScanRange); ok {
			return e.assign(a, tasks.Build{BlueprintID: bp.ID, Pos: bp.Pos}, TaskOptions{})
		}
	}
	return false
}

func (e *Engine) patrolCenter(a *Agent, pos geom.Vec3) geom.Vec3 {
	if a.hasPatrolCenter {
		return a.patrolCenter
	}
	if b, ok := e.world.NearestBase(a.Owner, pos); ok {
		return b.Pos
	}
	return a.spawnPos
}

// patrolPoint samples a uniform point in the disk, retrying a few times to land on a
// traversable cell.
func (e *Engine) patrolPoint(center geom.Vec3, radius, y float64) geom.Vec3 {
	for i := 0; i < 5; i++ {
		r := radius * math.Sqrt(e.rng.Float64())
		theta := 2 * math.Pi * e.rng.Float64()
		p := geom.V(center.X+r*math.Cos(theta), y, center.Z+r*math.Sin(theta))
		c := e.geo.WorldToCell(p)
		if e.grid.InBounds(c.X, c.Z) && e.grid.Traversable(c.X, c.Z) {
			return p
		}
	}
	return geom.V(center.X, y, center.Z)
}

func (e *Engine) tickMoving(a *Agent, pos geom.Vec3) {
	if a.task == nil || !a.hasTarget {
		e.setState(a, StateIdle)
		return
	}
	switch p := a.task.Payload.(type) {
	case tasks.Attack:
		target, ok := e.liveAgent(p.TargetID)
		if !ok {
			e.completeTask(a, tasks.ResultTargetLost)
			return
		}
		tp := target.body.Position()
		a.moveTarget = tp
		if geom.DistXZ(pos, tp) <= a.Stats.AttackRange {
			e.setState(a, StateFighting)
			return
		}
	case tasks.Harvest:
		if inRange(pos, p.Pos, a.Stats.HarvestRange) {
			e.setState(a, StateWorking)
			return
		}
	case tasks.Build:
		if inRange(pos, p.Pos, a.Stats.BuildRange) {
			e.setState(a, StateWorking)
			return
		}
	}
	if geom.DistXZ(pos, a.moveTarget) <= e.cfg.Movement.ArrivalDistance {
		e.arrive(a, pos)
		return
	}
	e.moveAlong(a, pos, e.cfg.Movement.RouteCooldown)
}

func (e *Engine) arrive(a *Agent, pos geom.Vec3) {
	switch a.task.Payload.(type) {
	case tasks.MoveTo:
		e.completeTask(a, tasks.ResultCompleted)
	case tasks.ReturnToBase:
		e.depositAll(a)
		e.completeTask(a, tasks.ResultDeposited)
	case tasks.Attack:
		e.setState(a, StateFighting)
	default:
		e.setState(a, StateWorking)
	}
}

func (e *Engine) tickReturning(a *Agent, pos geom.Vec3) {
	if a.task == nil {
		e.setState(a, StateIdle)
		return
	}
	base, ok := e.world.NearestBase(a.Owner, pos)
	if !ok {
		e.completeTask(a, tasks.ResultNoBase)
		return
	}
	if geom.DistXZ(pos, base.Pos) <= e.cfg.Movement.ReturnDepositRange {
		e.depositAll(a)
		e.completeTask(a, tasks.ResultDeposited)
		return
	}
	if !a.hasTarget || a.moveTarget != base.Pos {
		a.setTarget(base.Pos)
	}
	e.moveAlong(a, pos, e.cfg.Movement.RouteCooldown)
}

func (e *Engine) tickFleeing(a *Agent, pos geom.Vec3) {
	if a.task == nil {
		e.setState(a, StateIdle)
		return
	}
	base, ok := e.world.NearestBase(a.Owner, pos)
	if !ok {
		e.completeTask(a, tasks.ResultNoBase)
		return
	}
	d := geom.DistXZ(pos, base.Pos)
	if d <= e.cfg.Movement.FleeSafeRange {
		// While the flee condition still holds the agent shelters at the base and
		// the task stays open.
		if _, dist, found := e.nearestEnemy(a, pos); e.shouldFlee(a, found, dist) {
			if d > e.cfg.Movement.ArrivalDistance {
				a.setTarget(base.Pos)
				e.moveAlong(a, pos, e.cfg.Movement.FleeRouteCooldown)
			} else {
				a.clearRoute()
				a.body.MoveTo(pos)
			}
			return
		}
		if a.healthFraction() > e.cfg.Combat.SafeHealthFraction {
			e.finishTask(a, tasks.ResultSafe)
			e.setState(a, StateWandering)
			return
		}
		e.completeTask(a, tasks.ResultSafe)
		return
	}
	if !a.hasTarget || a.moveTarget != base.Pos {
		a.setTarget(base.Pos)
	}
	e.moveAlong(a, pos, e.cfg.Movement.FleeRouteCooldown)
}

func inRange(a, b geom.Vec3, r float64) bool {
	return r > 0 && geom.DistXZ(a, b) <= r
}
