package tasks

import (
	"gridlegion.ai/internal/sim/geom"
)

type Kind string

const (
	KindHarvest      Kind = "HARVEST"
	KindBuild        Kind = "BUILD"
	KindAttack       Kind = "ATTACK"
	KindFleeToBase   Kind = "FLEE_TO_BASE"
	KindDeposit      Kind = "DEPOSIT"
	KindPatrol       Kind = "PATROL"
	KindMoveTo       Kind = "MOVE_TO"
	KindReturnToBase Kind = "RETURN_TO_BASE"
)

// Payload is the kind-specific part of a task. The set of implementations is closed;
// dispatch sites switch over the concrete types.
type Payload interface {
	Kind() Kind
	isPayload()
}

type Harvest struct {
	NodeID   string
	Resource string
	Pos      geom.Vec3
}

type Build struct {
	BlueprintID string
	Pos         geom.Vec3
}

type Attack struct {
	TargetID string
}

type FleeToBase struct{}

type Deposit struct{}

type Patrol struct {
	Center geom.Vec3
	Radius float64
}

type MoveTo struct {
	Pos geom.Vec3
}

type ReturnToBase struct{}

func (Harvest) Kind() Kind      { return KindHarvest }
func (Build) Kind() Kind        { return KindBuild }
func (Attack) Kind() Kind       { return KindAttack }
func (FleeToBase) Kind() Kind   { return KindFleeToBase }
func (Deposit) Kind() Kind      { return KindDeposit }
func (Patrol) Kind() Kind       { return KindPatrol }
func (MoveTo) Kind() Kind       { return KindMoveTo }
func (ReturnToBase) Kind() Kind { return KindReturnToBase }

func (Harvest) isPayload()      {}
func (Build) isPayload()        {}
func (Attack) isPayload()       {}
func (FleeToBase) isPayload()   {}
func (Deposit) isPayload()      {}
func (Patrol) isPayload()       {}
func (MoveTo) isPayload()       {}
func (ReturnToBase) isPayload() {}

// Task is the live unit of intent held by exactly one agent.
type Task struct {
	ID      string
	Payload Payload

	CreatedAt float64
	Timeout   float64

	Priority    int
	Attempts    int
	MaxAttempts int

	// Progress is kind-specific accumulated work (build quota, etc).
	Progress float64
}

func (t *Task) Kind() Kind {
	if t == nil || t.Payload == nil {
		return ""
	}
	return t.Payload.Kind()
}

func (t *Task) Age(now float64) float64 { return now - t.CreatedAt }

// OutOfAttempts reports whether Attempts has gone past MaxAttempts. A non-positive
// limit allows any number of attempts.
func (t *Task) OutOfAttempts() bool {
	return t.MaxAttempts > 0 && t.Attempts > t.MaxAttempts
}

// Expired reports whether the task has outlived its timeout. A non-positive timeout never expires.
func (t *Task) Expired(now float64) bool {
	return t.Timeout > 0 && t.Age(now) > t.Timeout
}

// Target returns the payload's world position, if it carries one.
func (t *Task) Target() (geom.Vec3, bool) {
	switch p := t.Payload.(type) {
	case Harvest:
		return p.Pos, true
	case Build:
		return p.Pos, true
	case MoveTo:
		return p.Pos, true
	case Patrol:
		return p.Center, true
	}
	return geom.Vec3{}, false
}

// TargetID returns the referenced entity id (node, blueprint, enemy), if any.
func (t *Task) TargetID() string {
	switch p := t.Payload.(type) {
	case Harvest:
		return p.NodeID
	case Build:
		return p.BlueprintID
	case Attack:
		return p.TargetID
	}
	return ""
}

type Result string

const (
	ResultCompleted   Result = "Completed"
	ResultCancelled   Result = "Cancelled"
	ResultTimeout     Result = "Timeout"
	ResultTargetLost  Result = "Target Lost"
	ResultDestroyed   Result = "Target Destroyed"
	ResultStuckNoPath Result = "Stuck - No Path Found"
	ResultHarvested   Result = "Harvested"
	ResultDeposited   Result = "Deposited"
	ResultBuilt       Result = "Built"
	ResultNodeMissing Result = "Resource Node Missing"
	ResultNoBase      Result = "No Base Found"
	ResultSafe        Result = "Reached Safety"
	ResultAgentLost   Result = "Agent Removed"
)

// Record is the history entry left behind when a task finishes.
type Record struct {
	TaskID   string
	Kind     Kind
	TargetID string
	Result   Result
	Started  float64
	Finished float64
	Duration float64
}

func NewRecord(t *Task, result Result, now float64) Record {
	return Record{
		TaskID:   t.ID,
		Kind:     t.Kind(),
		TargetID: t.TargetID(),
		Result:   result,
		Started:  t.CreatedAt,
		Finished: now,
		Duration: now - t.CreatedAt,
	}
}
