package gridstate

import (
	"math"
	"sort"

	"gridlegion.ai/internal/sim/entities"
	"gridlegion.ai/internal/sim/geom"
)

func (s *State) AddBase(b entities.Base) {
	s.mu.Lock()
	s.bases[b.Team] = append(s.bases[b.Team], b)
	s.mu.Unlock()
}

// NearestBase returns the closest base owned by team.
func (s *State) NearestBase(team string, from geom.Vec3) (entities.Base, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var (
		best  entities.Base
		found bool
		bestD = math.Inf(1)
	)
	for _, b := range s.bases[team] {
		d := geom.DistXZ(from, b.Pos)
		if !found || d < bestD {
			best, bestD, found = b, d, true
		}
	}
	return best, found
}

func (s *State) AddBlueprint(bp entities.Blueprint) {
	s.mu.Lock()
	s.blueprints[bp.ID] = &bp
	s.mu.Unlock()
}

// ClaimBlueprint reserves the nearest unfinished, unclaimed blueprint of team within range.
func (s *State) ClaimBlueprint(agentID, team string, from geom.Vec3, within float64) (entities.Blueprint, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.blueprints))
	for id := range s.blueprints {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var best *entities.Blueprint
	bestD := math.Inf(1)
	for _, id := range ids {
		bp := s.blueprints[id]
		if bp.Done || bp.Team != team || (bp.ClaimedBy != "" && bp.ClaimedBy != agentID) {
			continue
		}
		d := geom.DistXZ(from, bp.Pos)
		if within > 0 && d > within {
			continue
		}
		if d < bestD {
			best, bestD = bp, d
		}
	}
	if best == nil {
		return entities.Blueprint{}, false
	}
	best.ClaimedBy = agentID
	return *best, true
}

func (s *State) Blueprint(id string) (entities.Blueprint, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bp := s.blueprints[id]
	if bp == nil {
		return entities.Blueprint{}, false
	}
	return *bp, true
}

func (s *State) ReleaseBlueprint(agentID, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if bp := s.blueprints[id]; bp != nil && bp.ClaimedBy == agentID {
		bp.ClaimedBy = ""
	}
}

// CompleteBlueprint marks the blueprint built and blocks the cell it stands on.
func (s *State) CompleteBlueprint(id string) bool {
	s.mu.Lock()
	bp := s.blueprints[id]
	if bp == nil || bp.Done {
		s.mu.Unlock()
		return false
	}
	bp.Done = true
	bp.ClaimedBy = ""
	c := s.geo.WorldToCell(bp.Pos)
	s.mu.Unlock()
	s.SetBlocked(c.X, c.Z, true)
	return true
}

// SetStockpileCap limits how much of kind each team can hold. limit <= 0 removes the limit.
func (s *State) SetStockpileCap(kind string, limit int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		delete(s.stockpileCaps, kind)
		return
	}
	s.stockpileCaps[kind] = limit
}

// DepositResource adds up to amount of kind to team's stockpile and returns what was
// accepted plus the new total.
func (s *State) DepositResource(team, kind string, amount int) (accepted, total int) {
	if amount <= 0 {
		return 0, s.Stockpile(team, kind)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	pile := s.stockpiles[team]
	if pile == nil {
		pile = map[string]int{}
		s.stockpiles[team] = pile
	}
	accepted = amount
	if limit, ok := s.stockpileCaps[kind]; ok {
		if room := limit - pile[kind]; room < accepted {
			accepted = room
		}
		if accepted < 0 {
			accepted = 0
		}
	}
	pile[kind] += accepted
	return accepted, pile[kind]
}

func (s *State) Stockpile(team, kind string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stockpiles[team][kind]
}

// Stockpiles returns a copy of every team's stockpile.
func (s *State) Stockpiles() map[string]map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]map[string]int, len(s.stockpiles))
	for team, pile := range s.stockpiles {
		cp := make(map[string]int, len(pile))
		for k, v := range pile {
			cp[k] = v
		}
		out[team] = cp
	}
	return out
}

// Blueprints returns a copy of every blueprint, ordered by id.
func (s *State) Blueprints() []entities.Blueprint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]entities.Blueprint, 0, len(s.blueprints))
	for _, bp := range s.blueprints {
		out = append(out, *bp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
