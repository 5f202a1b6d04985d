// Package gridstate is an in-memory grid-state provider: cell occupancy, per-cell agent
// density, resource nodes with a harvest claim queue, team bases, blueprints and stockpiles.
//
// State is safe for concurrent use; the behavior engine writes from its tick goroutine
// while transports read stockpiles and node state.
package gridstate

import (
	"math"
	"sort"
	"sync"

	"gridlegion.ai/internal/sim/entities"
	"gridlegion.ai/internal/sim/geom"
	"gridlegion.ai/internal/sim/pathfind"
)

type State struct {
	mu sync.RWMutex

	geo     pathfind.Geometry
	blocked []bool

	// occupants[cell] is the set of agent ids registered in that cell.
	occupants map[geom.Cell]map[string]struct{}

	nodes         map[string]*entities.ResourceNode
	harvestClaims map[string]string // node id -> agent id

	bases      map[string][]entities.Base // team -> bases
	blueprints map[string]*entities.Blueprint

	stockpiles    map[string]map[string]int // team -> kind -> amount
	stockpileCaps map[string]int            // kind -> cap per team; missing = unlimited
}

func New(geo pathfind.Geometry) *State {
	if geo.CellSize <= 0 {
		geo.CellSize = 1
	}
	return &State{
		geo:           geo,
		blocked:       make([]bool, geo.Width*geo.Depth),
		occupants:     map[geom.Cell]map[string]struct{}{},
		nodes:         map[string]*entities.ResourceNode{},
		harvestClaims: map[string]string{},
		bases:         map[string][]entities.Base{},
		blueprints:    map[string]*entities.Blueprint{},
		stockpiles:    map[string]map[string]int{},
		stockpileCaps: map[string]int{},
	}
}

func (s *State) Geometry() pathfind.Geometry { return s.geo }

func (s *State) index(x, z int) int { return z*s.geo.Width + x }

func (s *State) InBounds(x, z int) bool {
	return x >= 0 && z >= 0 && x < s.geo.Width && z < s.geo.Depth
}

func (s *State) Traversable(x, z int) bool {
	if !s.InBounds(x, z) {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.blocked[s.index(x, z)]
}

func (s *State) Density(x, z int) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.occupants[geom.Cell{X: x, Z: z}])
}

// SetBlocked marks a cell as occupied by a structure. Out-of-bounds cells are ignored.
func (s *State) SetBlocked(x, z int, blocked bool) {
	if !s.InBounds(x, z) {
		return
	}
	s.mu.Lock()
	s.blocked[s.index(x, z)] = blocked
	s.mu.Unlock()
}

// BlockRect blocks every cell in the inclusive rectangle.
func (s *State) BlockRect(x0, z0, x1, z1 int) {
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	if z0 > z1 {
		z0, z1 = z1, z0
	}
	for x := x0; x <= x1; x++ {
		for z := z0; z <= z1; z++ {
			s.SetBlocked(x, z, true)
		}
	}
}

func (s *State) RegisterAgentInCell(agentID string, c geom.Cell) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.occupants[c]
	if set == nil {
		set = map[string]struct{}{}
		s.occupants[c] = set
	}
	set[agentID] = struct{}{}
}

func (s *State) UnregisterAgentFromCell(agentID string, c geom.Cell) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.occupants[c]
	if set == nil {
		return
	}
	delete(set, agentID)
	if len(set) == 0 {
		delete(s.occupants, c)
	}
}

// AddResourceNode inserts or replaces a node. Missing health/scale fields are defaulted.
func (s *State) AddResourceNode(n entities.ResourceNode) {
	if n.Health <= 0 {
		n.Health = n.MaxHealth
	}
	if n.BaseScale <= 0 {
		n.BaseScale = 1
	}
	if n.Scale <= 0 {
		n.Scale = n.BaseScale
	}
	if n.MaxAmount < n.MinAmount {
		n.MaxAmount = n.MinAmount
	}
	s.mu.Lock()
	s.nodes[n.ID] = &n
	s.mu.Unlock()
}

func (s *State) ResourceNode(id string) (entities.ResourceNode, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := s.nodes[id]
	if n == nil {
		return entities.ResourceNode{}, false
	}
	return *n, true
}

func (s *State) UpdateResourceNode(id string, health, scale float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.nodes[id]
	if n == nil {
		return false
	}
	n.Health = health
	n.Scale = scale
	return true
}

func (s *State) RemoveResourceNode(id string) {
	s.mu.Lock()
	delete(s.nodes, id)
	delete(s.harvestClaims, id)
	s.mu.Unlock()
}

func (s *State) ResourceNodes() []entities.ResourceNode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]entities.ResourceNode, 0, len(s.nodes))
	for _, n := range s.nodes {
		out = append(out, *n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ClaimNextHarvestTask hands out the nearest unclaimed node within range. Ties break by id.
func (s *State) ClaimNextHarvestTask(agentID string, from geom.Vec3, within float64) (entities.HarvestClaim, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *entities.ResourceNode
	bestDist := math.Inf(1)
	for id, n := range s.nodes {
		if owner, ok := s.harvestClaims[id]; ok && owner != agentID {
			continue
		}
		if n.Health <= 0 {
			continue
		}
		d := geom.DistXZ(from, n.Pos)
		if within > 0 && d > within {
			continue
		}
		if best == nil || d < bestDist || (d == bestDist && n.ID < best.ID) {
			best = n
			bestDist = d
		}
	}
	if best == nil {
		return entities.HarvestClaim{}, false
	}
	s.harvestClaims[best.ID] = agentID
	return entities.HarvestClaim{NodeID: best.ID, Resource: best.Kind, Pos: best.Pos}, true
}

func (s *State) CompleteHarvestTask(agentID, nodeID string) {
	s.ReleaseHarvestTask(agentID, nodeID)
}

// ReleaseHarvestTask drops agentID's claim on nodeID so another agent can take it.
func (s *State) ReleaseHarvestTask(agentID, nodeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.harvestClaims[nodeID] == agentID {
		delete(s.harvestClaims, nodeID)
	}
}

func (s *State) HarvestClaimant(nodeID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.harvestClaims[nodeID]
	return id, ok
}
