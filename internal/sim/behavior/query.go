package behavior

import (
	"gridlegion.ai/internal/protocol"
	"gridlegion.ai/internal/sim/tasks"
)

func (e *Engine) Agent(id string) (AgentView, bool) {
	a, ok := e.agents[id]
	if !ok {
		return AgentView{}, false
	}
	return a.view(), true
}

func (e *Engine) AgentsInState(s State) []string      { return sortedIDs(e.idx.byState[s]) }
func (e *Engine) AgentsOfType(t string) []string      { return sortedIDs(e.idx.byType[t]) }
func (e *Engine) AgentsOwnedBy(owner string) []string { return sortedIDs(e.idx.byOwner[owner]) }

// TaskHistory returns the agent's finished tasks, oldest first.
func (e *Engine) TaskHistory(id string) []tasks.Record {
	a, ok := e.agents[id]
	if !ok {
		return nil
	}
	return append([]tasks.Record(nil), a.history...)
}

// Snapshots returns the current snapshot of every agent in id order.
func (e *Engine) Snapshots() []protocol.AgentSnapshot {
	out := make([]protocol.AgentSnapshot, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, e.snapshot(e.agents[id], protocol.ChangeState))
	}
	return out
}

// ParseState maps a state name back to its value.
func ParseState(name string) (State, bool) {
	for s := StateWandering; s <= StateDead; s++ {
		if s.String() == name {
			return s, true
		}
	}
	return stateNone, false
}

// States lists every state an agent can be in.
func States() []State {
	out := make([]State, 0, int(StateDead))
	for s := StateWandering; s <= StateDead; s++ {
		out = append(out, s)
	}
	return out
}
