package behavior

import (
	"gridlegion.ai/internal/protocol"
	"gridlegion.ai/internal/sim/tasks"
)

// Telemetry receives agent change notifications synchronously from the engine loop.
// Implementations must not call back into the engine.
type Telemetry interface {
	AgentChanged(s protocol.AgentSnapshot)
	TaskFinished(r protocol.TaskRecord)
	AgentRemoved(r protocol.AgentRemoved)
}

// Fanout forwards every notification to each sink in order.
type Fanout []Telemetry

func (f Fanout) AgentChanged(s protocol.AgentSnapshot) {
	for _, t := range f {
		t.AgentChanged(s)
	}
}

func (f Fanout) TaskFinished(r protocol.TaskRecord) {
	for _, t := range f {
		t.TaskFinished(r)
	}
}

func (f Fanout) AgentRemoved(r protocol.AgentRemoved) {
	for _, t := range f {
		t.AgentRemoved(r)
	}
}

type nopTelemetry struct{}

func (nopTelemetry) AgentChanged(protocol.AgentSnapshot) {}
func (nopTelemetry) TaskFinished(protocol.TaskRecord)    {}
func (nopTelemetry) AgentRemoved(protocol.AgentRemoved)  {}

func vec(p [3]float64) protocol.Vec3 { return protocol.Vec3(p) }

func (e *Engine) snapshot(a *Agent, reason string) protocol.AgentSnapshot {
	pos := a.body.Position()
	s := protocol.AgentSnapshot{
		Type:             protocol.TypeAgent,
		ProtocolVersion:  protocol.Version,
		Time:             e.now,
		Reason:           reason,
		AgentID:          a.ID,
		Owner:            a.Owner,
		UnitType:         a.Stats.UnitType,
		State:            a.state.String(),
		Position:         vec([3]float64{pos.X, pos.Y, pos.Z}),
		Carried:          make(map[string]int, len(a.carried)),
		CarriedWeight:    a.carriedWeight,
		CapacityFraction: a.capacityFraction(),
		ThreatLevel:      a.threatLevel,
		Counters:         a.counters,
	}
	for k, n := range a.carried {
		s.Carried[k] = n
	}
	if t := a.task; t != nil {
		s.TaskID = t.ID
		s.TaskKind = string(t.Kind())
		s.TaskTargetID = t.TargetID()
		if p, ok := t.Target(); ok {
			v := vec([3]float64{p.X, p.Y, p.Z})
			s.TaskTarget = &v
		}
	}
	return s
}

func (e *Engine) emitAgent(a *Agent, reason string) {
	e.tel.AgentChanged(e.snapshot(a, reason))
}

func (e *Engine) emitTask(a *Agent, r tasks.Record) {
	e.tel.TaskFinished(protocol.TaskRecord{
		Type:            protocol.TypeTaskDone,
		ProtocolVersion: protocol.Version,
		AgentID:         a.ID,
		Owner:           a.Owner,
		TaskID:          r.TaskID,
		Kind:            string(r.Kind),
		TargetID:        r.TargetID,
		Result:          string(r.Result),
		Started:         r.Started,
		Finished:        r.Finished,
		Duration:        r.Duration,
	})
}

func (e *Engine) emitRemoved(a *Agent, reason string) {
	e.tel.AgentRemoved(protocol.AgentRemoved{
		Type:            protocol.TypeAgentRemoved,
		ProtocolVersion: protocol.Version,
		Time:            e.now,
		AgentID:         a.ID,
		Owner:           a.Owner,
		Reason:          reason,
	})
}
