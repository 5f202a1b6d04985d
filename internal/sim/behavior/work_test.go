package behavior

import (
	"testing"

	"gridlegion.ai/internal/sim/entities"
	"gridlegion.ai/internal/sim/geom"
	"gridlegion.ai/internal/sim/tasks"
)

func testNode(id string, x, z float64) entities.ResourceNode {
	return entities.ResourceNode{
		ID:          id,
		Kind:        "wood",
		Pos:         geom.V(x, 0, z),
		MaxHealth:   100,
		HarvestTime: 3,
		MinAmount:   2,
		MaxAmount:   4,
		BaseScale:   2,
	}
}

func TestHarvestDepletesNodeOverHarvestTime(t *testing.T) {
	e, grid, _ := newTestEngine(t, 30, 30)
	node := testNode("n1", 10, 10)
	grid.AddResourceNode(node)
	mustRegister(t, e, "w1", "red", newStub(10, 12, 50), workerStats())

	if !e.AssignTask("w1", tasks.Harvest{NodeID: "n1", Resource: "wood", Pos: node.Pos}, TaskOptions{}) {
		t.Fatalf("AssignTask failed")
	}
	if v := mustView(t, e, "w1"); v.State != StateWorking {
		t.Fatalf("state=%s want Working (already in harvest range)", v.State)
	}

	run(e, 1.5)
	n, ok := grid.ResourceNode("n1")
	if !ok {
		t.Fatalf("node removed too early")
	}
	if n.Health < 45 || n.Health > 55 {
		t.Fatalf("health after half the harvest time=%v want ~50", n.Health)
	}
	if want := 2 * n.Health / 100; n.Scale < want-1e-9 || n.Scale > want+1e-9 {
		t.Fatalf("scale=%v want %v", n.Scale, want)
	}

	run(e, 1.6)
	if _, ok := grid.ResourceNode("n1"); ok {
		t.Fatalf("node should be removed once health reaches zero")
	}
	v := mustView(t, e, "w1")
	if v.State != StateIdle {
		t.Fatalf("state=%s want Idle", v.State)
	}
	if lastResult(v) != tasks.ResultHarvested {
		t.Fatalf("last result=%q want Harvested", lastResult(v))
	}
	got := v.Carried["wood"]
	if got < 2 || got > 4 {
		t.Fatalf("carried wood=%d want within [2,4]", got)
	}
	if v.CarriedWeight != got || v.Counters.ResourcesHarvested != got {
		t.Fatalf("weight=%d harvested=%d want %d", v.CarriedWeight, v.Counters.ResourcesHarvested, got)
	}
}

func TestHarvestScaleHasFloor(t *testing.T) {
	e, grid, _ := newTestEngine(t, 30, 30)
	node := testNode("n1", 10, 10)
	node.Health = 5
	grid.AddResourceNode(node)
	mustRegister(t, e, "w1", "red", newStub(10, 11, 50), workerStats())
	e.AssignTask("w1", tasks.Harvest{NodeID: "n1", Pos: node.Pos}, TaskOptions{})
	run(e, 0.1)
	n, ok := grid.ResourceNode("n1")
	if !ok {
		t.Fatalf("node gone")
	}
	if want := 2 * 0.1; n.Scale < want-1e-9 || n.Scale > want+1e-9 {
		t.Fatalf("scale=%v want floor %v", n.Scale, want)
	}
}

func TestHarvestAtCapacityReturnsAndDeposits(t *testing.T) {
	e, grid, rec := newTestEngine(t, 30, 30)
	node := testNode("n1", 10, 10)
	node.MinAmount, node.MaxAmount = 3, 3
	grid.AddResourceNode(node)
	grid.AddBase(entities.Base{ID: "b1", Team: "red", Pos: geom.V(10, 0, 14)})
	st := workerStats()
	st.CarryCapacity = 3
	mustRegister(t, e, "w1", "red", newStub(10, 12, 50), st)
	e.AssignTask("w1", tasks.Harvest{NodeID: "n1", Resource: "wood", Pos: node.Pos}, TaskOptions{})

	run(e, 3.5)

	v := mustView(t, e, "w1")
	if v.State != StateIdle {
		t.Fatalf("state=%s want Idle after deposit", v.State)
	}
	if v.CarriedWeight != 0 || len(v.Carried) != 0 {
		t.Fatalf("inventory not emptied: %+v", v.Carried)
	}
	if got := grid.Stockpile("red", "wood"); got != 3 {
		t.Fatalf("stockpile=%d want 3", got)
	}
	n := len(v.History)
	if n < 2 || v.History[n-2].Result != tasks.ResultHarvested || v.History[n-1].Result != tasks.ResultDeposited {
		t.Fatalf("history=%+v", v.History)
	}
	if v.History[n-1].Kind != tasks.KindDeposit {
		t.Fatalf("deposit recorded as %s", v.History[n-1].Kind)
	}
	sawReturning := false
	for _, s := range rec.states["w1"] {
		if s == "Returning" {
			sawReturning = true
		}
	}
	if !sawReturning {
		t.Fatalf("never entered Returning: %v", rec.states["w1"])
	}
}

func TestDepositKeepsWhatStockpileRefuses(t *testing.T) {
	e, grid, _ := newTestEngine(t, 30, 30)
	grid.AddBase(entities.Base{ID: "b1", Team: "red", Pos: geom.V(10, 0, 10)})
	grid.SetStockpileCap("wood", 2)
	mustRegister(t, e, "w1", "red", newStub(10, 11, 50), workerStats())
	a := e.agents["w1"]
	a.carried["wood"] = 5
	a.recomputeWeight()

	e.depositAll(a)
	if a.carried["wood"] != 3 || a.carriedWeight != 3 {
		t.Fatalf("carried=%v weight=%d want 3 kept", a.carried, a.carriedWeight)
	}
	if !a.stockpileFull {
		t.Fatalf("stockpileFull should be set")
	}
	if a.counters.ResourcesDeposited != 2 {
		t.Fatalf("deposited=%d want 2", a.counters.ResourcesDeposited)
	}
}

func TestMissingNodeEndsHarvest(t *testing.T) {
	e, _, _ := newTestEngine(t, 30, 30)
	mustRegister(t, e, "w1", "red", newStub(10, 11, 50), workerStats())
	e.AssignTask("w1", tasks.Harvest{NodeID: "ghost", Pos: geom.V(10, 0, 10)}, TaskOptions{})
	run(e, 0.1)
	v := mustView(t, e, "w1")
	if v.State != StateIdle || lastResult(v) != tasks.ResultNodeMissing {
		t.Fatalf("state=%s result=%q", v.State, lastResult(v))
	}
}

func TestWanderingWorkerClaimsAndBuildsBlueprint(t *testing.T) {
	e, grid, _ := newTestEngine(t, 30, 30)
	grid.AddBlueprint(entities.Blueprint{ID: "bp1", Team: "red", Structure: "wall", Pos: geom.V(10.5, 0, 12.5)})
	mustRegister(t, e, "w1", "red", newStub(10.5, 10.5, 50), workerStats())

	run(e, 0.1)
	v := mustView(t, e, "w1")
	if v.State != StateWorking || v.TaskKind != tasks.KindBuild || v.TaskTargetID != "bp1" {
		t.Fatalf("state=%s task=%s target=%s", v.State, v.TaskKind, v.TaskTargetID)
	}

	run(e, 10.5)
	v = mustView(t, e, "w1")
	if !hasResult(v, tasks.ResultBuilt) {
		t.Fatalf("history=%+v", v.History)
	}
	bp, _ := grid.Blueprint("bp1")
	if !bp.Done {
		t.Fatalf("blueprint not done")
	}
	if grid.Traversable(10, 12) {
		t.Fatalf("built structure should block its cell")
	}
}
