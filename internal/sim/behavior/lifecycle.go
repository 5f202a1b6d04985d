package behavior

import (
	"gridlegion.ai/internal/protocol"
	"gridlegion.ai/internal/sim/geom"
	"gridlegion.ai/internal/sim/tasks"
)

// TaskOptions override the tuning defaults for one assignment. A zero Timeout or
// MaxAttempts uses the default; a negative Timeout never expires and a negative
// MaxAttempts never runs out.
type TaskOptions struct {
	Timeout     float64
	Priority    int
	MaxAttempts int
}

// AssignTask replaces the agent's current task (recording it as Cancelled) and starts p.
func (e *Engine) AssignTask(id string, p tasks.Payload, opt TaskOptions) bool {
	a, ok := e.agents[id]
	if !ok {
		return false
	}
	return e.assign(a, p, opt)
}

// CancelTask drops the agent's task and parks it in Idle. It returns false when there
// is no task to cancel.
func (e *Engine) CancelTask(id string) bool {
	a, ok := e.agents[id]
	if !ok || !e.cancelTask(a, tasks.ResultCancelled) {
		return false
	}
	e.setState(a, StateIdle)
	return true
}

// CompleteTask records the agent's task with result and moves the agent to Idle.
func (e *Engine) CompleteTask(id string, result tasks.Result) bool {
	a, ok := e.agents[id]
	if !ok || a.task == nil {
		return false
	}
	e.completeTask(a, result)
	return true
}

// SetState forces a transition, running the entry effects of s.
func (e *Engine) SetState(id string, s State) bool {
	a, ok := e.agents[id]
	if !ok || s == stateNone {
		return false
	}
	e.setState(a, s)
	return true
}

func (e *Engine) assign(a *Agent, p tasks.Payload, opt TaskOptions) bool {
	if !e.install(a, p, opt) {
		return false
	}
	e.initTask(a)
	return true
}

// install replaces the agent's task with p without choosing a state for it.
func (e *Engine) install(a *Agent, p tasks.Payload, opt TaskOptions) bool {
	if p == nil || a.state == StateDead {
		return false
	}
	if a.task != nil {
		e.cancelTask(a, tasks.ResultCancelled)
	}
	t := &tasks.Task{
		ID:          e.newID(),
		Payload:     p,
		CreatedAt:   e.now,
		Timeout:     opt.Timeout,
		Priority:    opt.Priority,
		MaxAttempts: opt.MaxAttempts,
	}
	if t.Timeout == 0 {
		t.Timeout = e.cfg.Tasks.DefaultTimeout
	}
	if t.MaxAttempts == 0 {
		t.MaxAttempts = e.cfg.Tasks.DefaultMaxAttempts
	}
	a.task = t
	e.emitAgent(a, protocol.ChangeTask)
	return true
}

// initTask points the agent at its new task and picks the state that pursues it.
func (e *Engine) initTask(a *Agent) {
	pos := a.body.Position()
	switch p := a.task.Payload.(type) {
	case tasks.Harvest:
		a.setTarget(p.Pos)
		e.approach(a, pos, p.Pos, a.Stats.HarvestRange, StateWorking)
	case tasks.Build:
		a.setTarget(p.Pos)
		e.approach(a, pos, p.Pos, a.Stats.BuildRange, StateWorking)
	case tasks.Attack:
		target, ok := e.liveAgent(p.TargetID)
		if !ok || target == a {
			e.completeTask(a, tasks.ResultTargetLost)
			return
		}
		a.combatTarget = target.ID
		tp := target.body.Position()
		a.setTarget(tp)
		e.approach(a, pos, tp, a.Stats.AttackRange, StateFighting)
	case tasks.MoveTo:
		a.setTarget(p.Pos)
		e.startMoving(a, pos)
	case tasks.ReturnToBase:
		base, ok := e.world.NearestBase(a.Owner, pos)
		if !ok {
			e.completeTask(a, tasks.ResultNoBase)
			return
		}
		a.setTarget(base.Pos)
		e.startMoving(a, pos)
	case tasks.Patrol:
		a.hasTarget = false
		a.clearRoute()
		e.setState(a, StateWandering)
	case tasks.Deposit:
		e.setState(a, StateReturning)
	case tasks.FleeToBase:
		e.setState(a, StateFleeing)
	}
}

func (e *Engine) approach(a *Agent, pos, target geom.Vec3, reach float64, then State) {
	if inRange(pos, target, reach) {
		e.setState(a, then)
		return
	}
	e.startMoving(a, pos)
}

// startMoving enters Moving with a fresh route and progress clock, even when the agent
// is already moving toward something else.
func (e *Engine) startMoving(a *Agent, pos geom.Vec3) {
	a.clearRoute()
	e.resetProgressClock(a, pos)
	e.setState(a, StateMoving)
}

func (e *Engine) cancelTask(a *Agent, result tasks.Result) bool {
	t := e.detachTask(a)
	if t == nil {
		return false
	}
	a.counters.TasksCancelled++
	e.record(a, tasks.NewRecord(t, result, e.now))
	return true
}

// finishTask records the task without touching the agent's state.
func (e *Engine) finishTask(a *Agent, result tasks.Result) {
	t := e.detachTask(a)
	if t == nil {
		return
	}
	a.counters.TasksCompleted++
	e.record(a, tasks.NewRecord(t, result, e.now))
}

func (e *Engine) completeTask(a *Agent, result tasks.Result) {
	e.finishTask(a, result)
	e.setState(a, StateIdle)
}

func (e *Engine) detachTask(a *Agent) *tasks.Task {
	t := a.task
	if t == nil {
		return nil
	}
	switch p := t.Payload.(type) {
	case tasks.Harvest:
		e.grid.ReleaseHarvestTask(a.ID, p.NodeID)
	case tasks.Build:
		e.world.ReleaseBlueprint(a.ID, p.BlueprintID)
	}
	a.task = nil
	a.clearMovement()
	a.combatTarget = ""
	return t
}

func (e *Engine) record(a *Agent, r tasks.Record) {
	a.history = append(a.history, r)
	if limit := e.cfg.Tasks.HistoryLimit; limit > 0 && len(a.history) > limit {
		a.history = append(a.history[:0:0], a.history[len(a.history)-limit:]...)
	}
	e.emitTask(a, r)
	e.emitAgent(a, protocol.ChangeTask)
}
