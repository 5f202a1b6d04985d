package scenario

import (
	"fmt"

	"gridlegion.ai/internal/sim/behavior"
	"gridlegion.ai/internal/sim/geom"
	"gridlegion.ai/internal/sim/gridstate"
	"gridlegion.ai/internal/sim/pathfind"
)

func (c Config) Geometry() pathfind.Geometry {
	return pathfind.Geometry{
		Origin:   c.Grid.Origin,
		CellSize: c.Grid.CellSize,
		Width:    c.Grid.Width,
		Depth:    c.Grid.Depth,
	}
}

// Build creates the grid-state provider described by c.
func (c Config) Build() *gridstate.State {
	s := gridstate.New(c.Geometry())
	for _, r := range c.Blocked {
		s.BlockRect(r.X0, r.Z0, r.X1, r.Z1)
	}
	for kind, limit := range c.StockpileCaps {
		s.SetStockpileCap(kind, limit)
	}
	for _, b := range c.Bases {
		s.AddBase(b)
	}
	for _, n := range c.Nodes {
		s.AddResourceNode(n)
	}
	for _, bp := range c.Blueprints {
		s.AddBlueprint(bp)
	}
	return s
}

func (u UnitTypeSpec) Stats(name string) behavior.Stats {
	return behavior.Stats{
		UnitType:      name,
		MoveSpeed:     u.MoveSpeed,
		MaxHealth:     u.MaxHealth,
		AttackRange:   u.AttackRange,
		AttackPower:   u.AttackPower,
		AttackSpeed:   u.AttackSpeed,
		BuildRange:    u.BuildRange,
		BuildSpeed:    u.BuildSpeed,
		HarvestRange:  u.HarvestRange,
		HarvestSpeed:  u.HarvestSpeed,
		CarryCapacity: u.CarryCapacity,
		PatrolRadius:  u.PatrolRadius,
		CanFight:      u.CanFight,
		CanBuild:      u.CanBuild,
		CanHarvest:    u.CanHarvest,
	}
}

// Spawn registers every unit with e. Bodies are kinematic and refuse to step into
// blocked or out-of-bounds cells of grid.
func (c Config) Spawn(e *behavior.Engine, grid *gridstate.State) (map[string]*behavior.KinematicBody, error) {
	geo := grid.Geometry()
	blocked := func(p geom.Vec3) bool {
		cell := geo.WorldToCell(p)
		return !grid.Traversable(cell.X, cell.Z)
	}
	bodies := map[string]*behavior.KinematicBody{}
	for _, u := range c.Units {
		st := c.UnitTypes[u.Type].Stats(u.Type)
		for i := 0; i < u.Count; i++ {
			id := u.ID
			if u.Count > 1 {
				id = fmt.Sprintf("%s_%d", u.ID, i+1)
			}
			pos := u.Pos
			pos.X += float64(i) * u.Spacing
			body := behavior.NewKinematicBody(pos, st)
			body.Blocked = blocked
			stats := st
			if !e.Register(behavior.RegisterRequest{ID: id, Owner: u.Owner, Body: body, Stats: &stats}) {
				return bodies, fmt.Errorf("register unit %s rejected", id)
			}
			bodies[id] = body
		}
	}
	return bodies, nil
}
