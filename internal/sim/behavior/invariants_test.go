package behavior

import (
	"fmt"
	"testing"

	"gridlegion.ai/internal/sim/entities"
	"gridlegion.ai/internal/sim/geom"
)

// checkInvariants asserts the structural properties that must hold after every pass.
func checkInvariants(t *testing.T, e *Engine) {
	t.Helper()
	total := 0
	for s := StateWandering; s <= StateDead; s++ {
		total += len(e.AgentsInState(s))
	}
	if total != e.Count() {
		t.Fatalf("state index holds %d agents, engine has %d", total, e.Count())
	}
	for _, id := range e.order {
		a := e.agents[id]
		if _, ok := e.idx.byState[a.state][id]; !ok {
			t.Fatalf("%s missing from index for %s", id, a.state)
		}
		if a.route != nil && a.task == nil {
			t.Fatalf("%s holds a route without a task (state %s)", id, a.state)
		}
		if a.state == StateDead || a.state == StateStuck {
			t.Fatalf("%s left in transient state %s", id, a.state)
		}
		w := 0
		for _, n := range a.carried {
			w += n
		}
		if w != a.carriedWeight {
			t.Fatalf("%s weight=%d carried sum=%d", id, a.carriedWeight, w)
		}
	}
}

func TestMixedSimulationKeepsInvariants(t *testing.T) {
	e, grid, _ := newTestEngine(t, 64, 64)
	grid.BlockRect(30, 10, 31, 50)
	grid.AddBase(entities.Base{ID: "red-base", Team: "red", Pos: geom.V(8, 0, 8)})
	grid.AddBase(entities.Base{ID: "blue-base", Team: "blue", Pos: geom.V(56, 0, 56)})
	for i := 0; i < 12; i++ {
		n := testNode(fmt.Sprintf("n%d", i), float64(10+i*4), float64(20+(i%3)*6))
		n.HarvestTime = 1
		grid.AddResourceNode(n)
	}
	grid.AddBlueprint(entities.Blueprint{ID: "bp1", Team: "red", Structure: "wall", Pos: geom.V(14, 0, 14)})

	blocked := func(p geom.Vec3) bool {
		c := grid.Geometry().WorldToCell(p)
		return !grid.InBounds(c.X, c.Z) || !grid.Traversable(c.X, c.Z)
	}
	for i := 0; i < 4; i++ {
		st := workerStats()
		st.CarryCapacity = 6
		b := NewKinematicBody(geom.V(float64(6+i*2), 0, 10), *st)
		b.Blocked = blocked
		mustRegister(t, e, fmt.Sprintf("red-w%d", i), "red", b, st)
	}
	for i := 0; i < 2; i++ {
		st := soldierStats()
		b := NewKinematicBody(geom.V(float64(50+i*3), 0, 50), *st)
		b.Blocked = blocked
		mustRegister(t, e, fmt.Sprintf("blue-s%d", i), "blue", b, st)
	}

	for i := 0; i < 600; i++ {
		e.Advance(0.1)
		checkInvariants(t, e)
	}
	harvested := 0
	for _, id := range e.AgentsOwnedBy("red") {
		v, _ := e.Agent(id)
		harvested += v.Counters.ResourcesHarvested
	}
	if harvested == 0 {
		t.Fatalf("no worker harvested anything in 60 time units")
	}
}
