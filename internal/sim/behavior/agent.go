package behavior

import (
	"sort"

	"gridlegion.ai/internal/protocol"
	"gridlegion.ai/internal/sim/geom"
	"gridlegion.ai/internal/sim/tasks"
)

type State uint8

const (
	stateNone State = iota
	StateWandering
	StateMoving
	StateWorking
	StateReturning
	StateIdle
	StateFighting
	StateFleeing
	StateStuck
	StateDead
)

func (s State) String() string {
	switch s {
	case StateWandering:
		return "Wandering"
	case StateMoving:
		return "Moving"
	case StateWorking:
		return "Working"
	case StateReturning:
		return "Returning"
	case StateIdle:
		return "Idle"
	case StateFighting:
		return "Fighting"
	case StateFleeing:
		return "Fleeing"
	case StateStuck:
		return "Stuck"
	case StateDead:
		return "Dead"
	default:
		return "None"
	}
}

// Agent is owned by the Engine. Everything outside the engine sees it through AgentView.
type Agent struct {
	ID    string
	Owner string
	Stats Stats
	body  Body

	state      State
	stateSince float64
	idleSince  float64

	task    *tasks.Task
	history []tasks.Record

	spawnPos    geom.Vec3
	lastPos     geom.Vec3
	lastMovedAt float64

	cell           geom.Cell
	cellRegistered bool

	route        []geom.Cell
	routeIdx     int
	routeGoal    geom.Cell
	hasRouteGoal bool
	lastPathAt   float64
	lastPathOK   bool

	moveTarget geom.Vec3
	hasTarget  bool

	patrolCenter    geom.Vec3
	hasPatrolCenter bool
	patrolRadius    float64

	combatTarget  string
	threatLevel   int
	attackReadyAt float64

	carried       map[string]int
	carriedWeight int
	// stockpileFull is set when the last deposit left cargo behind.
	stockpileFull bool

	lastUpdate float64
	nextUpdate float64

	counters protocol.Counters
}

func (a *Agent) clearRoute() {
	a.route = nil
	a.routeIdx = 0
	a.hasRouteGoal = false
}

func (a *Agent) clearMovement() {
	a.clearRoute()
	a.hasTarget = false
}

func (a *Agent) setTarget(p geom.Vec3) {
	a.moveTarget = p
	a.hasTarget = true
}

func (a *Agent) healthFraction() float64 {
	hp, max := a.body.Health()
	if max <= 0 {
		return 1
	}
	return hp / max
}

func (a *Agent) capacityFraction() float64 {
	if a.Stats.CarryCapacity <= 0 {
		return 0
	}
	return float64(a.carriedWeight) / float64(a.Stats.CarryCapacity)
}

func (a *Agent) full() bool {
	return a.Stats.CarryCapacity > 0 && a.carriedWeight >= a.Stats.CarryCapacity
}

func (a *Agent) recomputeWeight() {
	w := 0
	for _, n := range a.carried {
		w += n
	}
	a.carriedWeight = w
}

// AgentView is a read-only copy of an agent's observable fields.
type AgentView struct {
	ID       string
	Owner    string
	UnitType string
	State    State
	Position geom.Vec3

	TaskID       string
	TaskKind     tasks.Kind
	TaskTargetID string

	Carried       map[string]int
	CarriedWeight int
	ThreatLevel   int
	RouteLen      int
	History       []tasks.Record
	Counters      protocol.Counters
}

func (a *Agent) view() AgentView {
	v := AgentView{
		ID:            a.ID,
		Owner:         a.Owner,
		UnitType:      a.Stats.UnitType,
		State:         a.state,
		Position:      a.body.Position(),
		Carried:       make(map[string]int, len(a.carried)),
		CarriedWeight: a.carriedWeight,
		ThreatLevel:   a.threatLevel,
		RouteLen:      len(a.route) - a.routeIdx,
		History:       append([]tasks.Record(nil), a.history...),
		Counters:      a.counters,
	}
	if a.route == nil {
		v.RouteLen = 0
	}
	for k, n := range a.carried {
		v.Carried[k] = n
	}
	if a.task != nil {
		v.TaskID = a.task.ID
		v.TaskKind = a.task.Kind()
		v.TaskTargetID = a.task.TargetID()
	}
	return v
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
