package behavior

import (
	"fmt"
	"math"
	"testing"

	"gridlegion.ai/internal/protocol"
	"gridlegion.ai/internal/sim/geom"
	"gridlegion.ai/internal/sim/gridstate"
	"gridlegion.ai/internal/sim/pathfind"
	"gridlegion.ai/internal/sim/tasks"
	"gridlegion.ai/internal/sim/tuning"
)

// stubBody stays where it is put and ignores MoveTo.
type stubBody struct {
	pos   geom.Vec3
	hp    float64
	maxHP float64
	gone  bool
	moves int
	last  geom.Vec3
}

func newStub(x, z, hp float64) *stubBody {
	return &stubBody{pos: geom.V(x, 0, z), hp: hp, maxHP: hp}
}

func (b *stubBody) Valid() bool                { return !b.gone }
func (b *stubBody) Position() geom.Vec3        { return b.pos }
func (b *stubBody) Health() (float64, float64) { return b.hp, b.maxHP }
func (b *stubBody) Damage(amount float64)      { b.hp = math.Max(0, b.hp-amount) }
func (b *stubBody) MoveTo(target geom.Vec3)    { b.moves++; b.last = target }

type recorder struct {
	states  map[string][]string
	tasks   []protocol.TaskRecord
	removed []protocol.AgentRemoved
	snaps   int
}

func newRecorder() *recorder { return &recorder{states: map[string][]string{}} }

func (r *recorder) AgentChanged(s protocol.AgentSnapshot) {
	r.snaps++
	if s.Reason == protocol.ChangeState || s.Reason == protocol.ChangeRegister {
		r.states[s.AgentID] = append(r.states[s.AgentID], s.State)
	}
}
func (r *recorder) TaskFinished(tr protocol.TaskRecord)   { r.tasks = append(r.tasks, tr) }
func (r *recorder) AgentRemoved(ar protocol.AgentRemoved) { r.removed = append(r.removed, ar) }

func newTestEngine(t *testing.T, w, d int) (*Engine, *gridstate.State, *recorder) {
	t.Helper()
	grid := gridstate.New(pathfind.Geometry{CellSize: 1, Width: w, Depth: d})
	rec := newRecorder()
	n := 0
	e := New(Config{
		Tuning:    tuning.Defaults(),
		Grid:      grid,
		World:     grid,
		Telemetry: rec,
		Seed:      7,
		NewID: func() string {
			n++
			return fmt.Sprintf("task-%d", n)
		},
	})
	return e, grid, rec
}

func workerStats() *Stats {
	return &Stats{
		UnitType:      "worker",
		MoveSpeed:     4,
		MaxHealth:     50,
		HarvestRange:  4,
		BuildRange:    4,
		BuildSpeed:    10,
		CarryCapacity: 10,
		CanHarvest:    true,
		CanBuild:      true,
	}
}

func soldierStats() *Stats {
	return &Stats{
		UnitType:    "soldier",
		MoveSpeed:   5,
		MaxHealth:   100,
		AttackRange: 2,
		AttackPower: 30,
		AttackSpeed: 1,
		CanFight:    true,
	}
}

func mustRegister(t *testing.T, e *Engine, id, owner string, body Body, st *Stats) {
	t.Helper()
	if !e.Register(RegisterRequest{ID: id, Owner: owner, Body: body, Stats: st}) {
		t.Fatalf("Register(%s) rejected", id)
	}
}

// run advances the engine in 0.1 steps, one scheduler pass each at the default frequency.
func run(e *Engine, seconds float64) {
	for n := int(math.Round(seconds * 10)); n > 0; n-- {
		e.Advance(0.1)
	}
}

func mustView(t *testing.T, e *Engine, id string) AgentView {
	t.Helper()
	v, ok := e.Agent(id)
	if !ok {
		t.Fatalf("agent %s not registered", id)
	}
	return v
}

func lastResult(v AgentView) tasks.Result {
	if len(v.History) == 0 {
		return ""
	}
	return v.History[len(v.History)-1].Result
}

func hasResult(v AgentView, r tasks.Result) bool {
	for _, h := range v.History {
		if h.Result == r {
			return true
		}
	}
	return false
}

func TestRegisterEntersWanderingWithPatrol(t *testing.T) {
	e, grid, rec := newTestEngine(t, 30, 30)
	mustRegister(t, e, "w1", "red", newStub(5.5, 5.5, 50), workerStats())

	v := mustView(t, e, "w1")
	if v.State != StateWandering {
		t.Fatalf("state=%s want Wandering", v.State)
	}
	if v.TaskKind != tasks.KindPatrol {
		t.Fatalf("task=%s want PATROL", v.TaskKind)
	}
	if got := e.AgentsInState(StateWandering); len(got) != 1 || got[0] != "w1" {
		t.Fatalf("AgentsInState(Wandering)=%v", got)
	}
	if got := e.AgentsOfType("worker"); len(got) != 1 {
		t.Fatalf("AgentsOfType(worker)=%v", got)
	}
	if got := e.AgentsOwnedBy("red"); len(got) != 1 {
		t.Fatalf("AgentsOwnedBy(red)=%v", got)
	}
	if got := grid.Density(5, 5); got != 1 {
		t.Fatalf("density=%d want 1", got)
	}
	if got := rec.states["w1"]; len(got) != 1 || got[0] != "Wandering" {
		t.Fatalf("state log=%v", got)
	}
}

func TestRegisterRejectsIncompleteRequests(t *testing.T) {
	e, _, _ := newTestEngine(t, 10, 10)
	cases := []RegisterRequest{
		{ID: "", Owner: "red", Body: newStub(1, 1, 10), Stats: workerStats()},
		{ID: "a", Owner: "red", Body: nil, Stats: workerStats()},
		{ID: "b", Owner: "red", Body: newStub(1, 1, 10), Stats: nil},
		{ID: "c", Owner: "red", Body: newStub(1, 1, 10), Stats: &Stats{}},
		{ID: "d", Owner: "red", Body: newStub(1, 1, 10), Stats: &Stats{UnitType: "x", CanFight: true}},
	}
	for i, req := range cases {
		if e.Register(req) {
			t.Fatalf("case %d: expected rejection", i)
		}
	}
	mustRegister(t, e, "ok", "red", newStub(1, 1, 10), workerStats())
	if e.Register(RegisterRequest{ID: "ok", Owner: "red", Body: newStub(2, 2, 10), Stats: workerStats()}) {
		t.Fatalf("duplicate id should be rejected")
	}
	if e.Count() != 1 {
		t.Fatalf("Count=%d want 1", e.Count())
	}
}

func TestAdvanceRunsPassAtFrequency(t *testing.T) {
	e, _, _ := newTestEngine(t, 10, 10)
	e.Advance(0.025)
	if e.Passes() != 0 {
		t.Fatalf("passes=%d want 0 before a full pass interval", e.Passes())
	}
	e.Advance(0.025)
	if e.Passes() != 1 {
		t.Fatalf("passes=%d want 1", e.Passes())
	}
	e.Advance(0)
	e.Advance(-1)
	if e.Now() != 0.05 {
		t.Fatalf("now=%v want 0.05", e.Now())
	}
	e.Advance(0.3)
	if e.Passes() != 2 {
		t.Fatalf("passes=%d want 2", e.Passes())
	}
}

func TestAgentsAreStaggeredAcrossSlots(t *testing.T) {
	e, _, _ := newTestEngine(t, 20, 20)
	ids := []string{"a", "b", "c", "d"}
	for i, id := range ids {
		mustRegister(t, e, id, "red", newStub(float64(2+i*3), 5, 50), workerStats())
	}
	updatedAt := func(id string) float64 { return e.agents[id].lastUpdate }
	near := func(x, want float64) bool { return math.Abs(x-want) < 1e-6 }

	e.Advance(0.05)
	for _, id := range ids {
		if !near(updatedAt(id), 0.05) {
			t.Fatalf("%s last update=%v; every agent is due on the first pass", id, updatedAt(id))
		}
	}
	for pass := 0; pass < 6; pass++ {
		e.Advance(0.05)
		now := e.Now()
		var ran []string
		for _, id := range ids {
			if near(updatedAt(id), now) {
				ran = append(ran, id)
			}
		}
		want := []string{"a", "c"}
		if pass%2 == 1 {
			want = []string{"b", "d"}
		}
		if fmt.Sprint(ran) != fmt.Sprint(want) {
			t.Fatalf("pass at %.2f updated %v want %v", now, ran, want)
		}
	}

	// A long frame catches up once and keeps the slot phase.
	e.Advance(0.35)
	e.Advance(0.05)
	e.Advance(0.05)
	if near(updatedAt("a"), updatedAt("b")) {
		t.Fatalf("slots merged after a long frame: a=%v b=%v", updatedAt("a"), updatedAt("b"))
	}
}

func TestInstanceLossUnregisters(t *testing.T) {
	e, grid, rec := newTestEngine(t, 10, 10)
	body := newStub(3.5, 3.5, 10)
	mustRegister(t, e, "w1", "red", body, workerStats())
	body.gone = true
	run(e, 0.2)

	if e.Count() != 0 {
		t.Fatalf("Count=%d want 0", e.Count())
	}
	if len(rec.removed) != 1 || rec.removed[0].Reason != "Dead" {
		t.Fatalf("removed=%+v", rec.removed)
	}
	if got := e.AgentsInState(StateDead); len(got) != 0 {
		t.Fatalf("dead agents still indexed: %v", got)
	}
	if got := e.AgentsOwnedBy("red"); len(got) != 0 {
		t.Fatalf("owner index not cleared: %v", got)
	}
	if grid.Density(3, 3) != 0 {
		t.Fatalf("density not released")
	}
	// The patrol task was recorded on the way out.
	if len(rec.tasks) == 0 || rec.tasks[len(rec.tasks)-1].Result != string(tasks.ResultAgentLost) {
		t.Fatalf("task records=%+v", rec.tasks)
	}
}

func TestUnregisterReleasesHarvestClaim(t *testing.T) {
	e, grid, _ := newTestEngine(t, 30, 30)
	grid.AddResourceNode(testNode("n1", 10, 10))
	mustRegister(t, e, "w1", "red", newStub(10, 12, 50), workerStats())
	run(e, 0.1)
	if id, ok := grid.HarvestClaimant("n1"); !ok || id != "w1" {
		t.Fatalf("claimant=%q,%v want w1", id, ok)
	}
	if !e.Unregister("w1", "despawned") {
		t.Fatalf("Unregister returned false")
	}
	if _, ok := grid.HarvestClaimant("n1"); ok {
		t.Fatalf("claim should be released")
	}
	if e.Unregister("w1", "again") {
		t.Fatalf("second Unregister should return false")
	}
}

func TestCellRegistrationFollowsBody(t *testing.T) {
	e, grid, _ := newTestEngine(t, 20, 20)
	body := NewKinematicBody(geom.V(2.5, 0, 2.5), *workerStats())
	mustRegister(t, e, "w1", "red", body, workerStats())
	body.Teleport(geom.V(8.5, 0, 8.5))
	run(e, 0.1)
	if grid.Density(2, 2) != 0 || grid.Density(8, 8) != 1 {
		t.Fatalf("density old=%d new=%d", grid.Density(2, 2), grid.Density(8, 8))
	}
}

func TestParseState(t *testing.T) {
	for s := StateWandering; s <= StateDead; s++ {
		got, ok := ParseState(s.String())
		if !ok || got != s {
			t.Fatalf("ParseState(%q)=%v,%v", s.String(), got, ok)
		}
	}
	if _, ok := ParseState("Sleeping"); ok {
		t.Fatalf("unknown state parsed")
	}
}

func TestFanoutForwards(t *testing.T) {
	a, b := newRecorder(), newRecorder()
	f := Fanout{a, b}
	f.AgentChanged(protocol.AgentSnapshot{AgentID: "x", Reason: protocol.ChangeState, State: "Idle"})
	f.TaskFinished(protocol.TaskRecord{TaskID: "t"})
	f.AgentRemoved(protocol.AgentRemoved{AgentID: "x"})
	for _, r := range []*recorder{a, b} {
		if len(r.states["x"]) != 1 || len(r.tasks) != 1 || len(r.removed) != 1 {
			t.Fatalf("fanout missed a sink: %+v", r)
		}
	}
}
