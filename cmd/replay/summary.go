package main

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"gridlegion.ai/internal/protocol"
	"gridlegion.ai/internal/sim/behavior"
)

type agentSummary struct {
	ID         string
	Owner      string
	UnitType   string
	LastState  string
	Registered float64
	Removed    bool
	RemovedBy  string
	Tasks      int
	Harvested  int
	Deposited  int
	Recoveries int
	Searches   int
	Results    map[string]int
}

// summary folds a telemetry stream and checks it for consistency as it goes.
type summary struct {
	agents  map[string]*agentSummary
	results map[string]map[string]int // kind -> result -> count
	lines   int
	last    float64
}

func newSummary() *summary {
	return &summary{
		agents:  map[string]*agentSummary{},
		results: map[string]map[string]int{},
	}
}

func (s *summary) Apply(line []byte) error {
	s.lines++
	base, err := protocol.DecodeBase(line)
	if err != nil {
		return fmt.Errorf("line %d: %w", s.lines, err)
	}
	if base.ProtocolVersion != protocol.Version {
		return fmt.Errorf("line %d: protocol_version %q", s.lines, base.ProtocolVersion)
	}
	switch base.Type {
	case protocol.TypeAgent:
		var m protocol.AgentSnapshot
		if err := json.Unmarshal(line, &m); err != nil {
			return fmt.Errorf("line %d: %w", s.lines, err)
		}
		return s.agent(m)
	case protocol.TypeTaskDone:
		var m protocol.TaskRecord
		if err := json.Unmarshal(line, &m); err != nil {
			return fmt.Errorf("line %d: %w", s.lines, err)
		}
		return s.task(m)
	case protocol.TypeAgentRemoved:
		var m protocol.AgentRemoved
		if err := json.Unmarshal(line, &m); err != nil {
			return fmt.Errorf("line %d: %w", s.lines, err)
		}
		return s.removed(m)
	default:
		return fmt.Errorf("line %d: unknown type %q", s.lines, base.Type)
	}
}

func (s *summary) clock(t float64) error {
	if t+1e-9 < s.last {
		return fmt.Errorf("line %d: time went backwards (%.3f < %.3f)", s.lines, t, s.last)
	}
	s.last = t
	return nil
}

func (s *summary) live(id string) (*agentSummary, error) {
	a := s.agents[id]
	if a == nil {
		return nil, fmt.Errorf("line %d: agent %s was never registered", s.lines, id)
	}
	if a.Removed {
		return nil, fmt.Errorf("line %d: agent %s reported after removal", s.lines, id)
	}
	return a, nil
}

func (s *summary) agent(m protocol.AgentSnapshot) error {
	if err := s.clock(m.Time); err != nil {
		return err
	}
	if _, ok := behavior.ParseState(m.State); !ok {
		return fmt.Errorf("line %d: agent %s in unknown state %q", s.lines, m.AgentID, m.State)
	}
	if m.Reason == protocol.ChangeRegister {
		if a := s.agents[m.AgentID]; a != nil && !a.Removed {
			return fmt.Errorf("line %d: agent %s registered twice", s.lines, m.AgentID)
		}
		s.agents[m.AgentID] = &agentSummary{
			ID:         m.AgentID,
			Owner:      m.Owner,
			UnitType:   m.UnitType,
			Registered: m.Time,
			Results:    map[string]int{},
		}
	}
	a, err := s.live(m.AgentID)
	if err != nil {
		return err
	}
	weight := 0
	for _, n := range m.Carried {
		weight += n
	}
	if weight != m.CarriedWeight {
		return fmt.Errorf("line %d: agent %s carried weight %d, items sum to %d", s.lines, m.AgentID, m.CarriedWeight, weight)
	}
	a.LastState = m.State
	a.Harvested = m.Counters.ResourcesHarvested
	a.Deposited = m.Counters.ResourcesDeposited
	a.Recoveries = m.Counters.StuckRecoveries
	a.Searches = m.Counters.PathSearches
	return nil
}

func (s *summary) task(m protocol.TaskRecord) error {
	if err := s.clock(m.Finished); err != nil {
		return err
	}
	a, err := s.live(m.AgentID)
	if err != nil {
		return err
	}
	if math.Abs(m.Finished-m.Started-m.Duration) > 1e-6 {
		return fmt.Errorf("line %d: task %s duration %.3f != %.3f-%.3f", s.lines, m.TaskID, m.Duration, m.Finished, m.Started)
	}
	a.Tasks++
	a.Results[m.Result]++
	if s.results[m.Kind] == nil {
		s.results[m.Kind] = map[string]int{}
	}
	s.results[m.Kind][m.Result]++
	return nil
}

func (s *summary) removed(m protocol.AgentRemoved) error {
	if err := s.clock(m.Time); err != nil {
		return err
	}
	a, err := s.live(m.AgentID)
	if err != nil {
		return err
	}
	a.Removed = true
	a.RemovedBy = m.Reason
	return nil
}

func (s *summary) Agents() []*agentSummary {
	out := make([]*agentSummary, 0, len(s.agents))
	for _, a := range s.agents {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
