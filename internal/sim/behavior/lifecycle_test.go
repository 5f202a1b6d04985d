package behavior

import (
	"testing"

	"gridlegion.ai/internal/sim/entities"
	"gridlegion.ai/internal/sim/geom"
	"gridlegion.ai/internal/sim/tasks"
)

func TestCancelTaskIsIdempotent(t *testing.T) {
	e, _, _ := newTestEngine(t, 20, 20)
	mustRegister(t, e, "w1", "red", newStub(5, 5, 50), workerStats())

	if !e.CancelTask("w1") {
		t.Fatalf("first CancelTask should cancel the patrol")
	}
	if e.CancelTask("w1") {
		t.Fatalf("CancelTask with no task should return false")
	}
	if e.CancelTask("nobody") {
		t.Fatalf("CancelTask on unknown agent should return false")
	}
	v := mustView(t, e, "w1")
	if v.TaskID != "" || lastResult(v) != tasks.ResultCancelled || v.Counters.TasksCancelled != 1 {
		t.Fatalf("view=%+v", v)
	}
}

func TestCancelWhileHeadingHomeDropsRoute(t *testing.T) {
	for _, st := range []State{StateReturning, StateFleeing} {
		e, grid, _ := newTestEngine(t, 40, 40)
		grid.AddBase(entities.Base{ID: "red-base", Team: "red", Pos: geom.V(30, 0, 30)})
		mustRegister(t, e, "w1", "red", newStub(5, 5, 50), workerStats())
		e.SetState("w1", st)
		run(e, 0.2)
		if a := e.agents["w1"]; a.state != st || a.route == nil {
			t.Fatalf("%s: state=%s route=%v; expected a route home", st, a.state, a.route)
		}

		if !e.CancelTask("w1") {
			t.Fatalf("%s: CancelTask returned false", st)
		}
		for i := 0; i < 5; i++ {
			e.Advance(0.1)
			checkInvariants(t, e)
		}
		a := e.agents["w1"]
		if a.state != StateIdle || a.task != nil || a.route != nil || a.hasTarget {
			t.Fatalf("%s: after cancel state=%s task=%v route=%v target=%v", st, a.state, a.task, a.route, a.hasTarget)
		}
	}
}

func TestAssignTaskSupersedesCurrent(t *testing.T) {
	e, _, rec := newTestEngine(t, 40, 40)
	mustRegister(t, e, "w1", "red", newStub(5, 5, 50), workerStats())
	e.AssignTask("w1", tasks.MoveTo{Pos: geom.V(30, 0, 30)}, TaskOptions{})
	e.AssignTask("w1", tasks.MoveTo{Pos: geom.V(20, 0, 5)}, TaskOptions{Priority: 2})

	v := mustView(t, e, "w1")
	if v.State != StateMoving || v.TaskKind != tasks.KindMoveTo || v.TaskID != "task-3" {
		t.Fatalf("state=%s kind=%s id=%s", v.State, v.TaskKind, v.TaskID)
	}
	if len(v.History) != 2 {
		t.Fatalf("history=%+v want patrol and first move cancelled", v.History)
	}
	for _, h := range v.History {
		if h.Result != tasks.ResultCancelled {
			t.Fatalf("superseded task recorded as %q", h.Result)
		}
	}
	if len(rec.tasks) != 2 {
		t.Fatalf("task records emitted=%d want 2", len(rec.tasks))
	}
	if e.agents["w1"].task.Priority != 2 {
		t.Fatalf("priority not carried")
	}
}

func TestTaskTimeoutReturnsToIdle(t *testing.T) {
	e, _, _ := newTestEngine(t, 40, 40)
	mustRegister(t, e, "w1", "red", newStub(5, 5, 50), workerStats())
	e.AssignTask("w1", tasks.MoveTo{Pos: geom.V(35, 0, 35)}, TaskOptions{Timeout: 1})

	run(e, 0.9)
	if v := mustView(t, e, "w1"); v.State != StateMoving {
		t.Fatalf("state=%s want Moving before timeout", v.State)
	}
	run(e, 0.4)
	v := mustView(t, e, "w1")
	if v.State != StateIdle || lastResult(v) != tasks.ResultTimeout {
		t.Fatalf("state=%s result=%q", v.State, lastResult(v))
	}
	if d := v.History[len(v.History)-1].Duration; d <= 1 {
		t.Fatalf("duration=%v want > timeout", d)
	}
}

func TestIdleDwellsThenWanders(t *testing.T) {
	e, _, _ := newTestEngine(t, 20, 20)
	mustRegister(t, e, "w1", "red", newStub(5, 5, 50), workerStats())
	if !e.CompleteTask("w1", tasks.ResultCompleted) {
		t.Fatalf("CompleteTask failed")
	}
	if v := mustView(t, e, "w1"); v.State != StateIdle {
		t.Fatalf("state=%s want Idle", v.State)
	}
	if e.CompleteTask("w1", tasks.ResultCompleted) {
		t.Fatalf("CompleteTask with no task should return false")
	}

	run(e, 2.5)
	if v := mustView(t, e, "w1"); v.State != StateIdle {
		t.Fatalf("state=%s want Idle during dwell", v.State)
	}
	run(e, 1)
	v := mustView(t, e, "w1")
	if v.State != StateWandering || v.TaskKind != tasks.KindPatrol {
		t.Fatalf("state=%s task=%s want Wandering/PATROL", v.State, v.TaskKind)
	}
}

func TestMoveToCompletesOnArrival(t *testing.T) {
	e, _, _ := newTestEngine(t, 40, 40)
	body := NewKinematicBody(geom.V(5, 0, 5), *workerStats())
	mustRegister(t, e, "w1", "red", body, workerStats())
	e.AssignTask("w1", tasks.MoveTo{Pos: geom.V(5, 0, 25)}, TaskOptions{})

	run(e, 6)
	v := mustView(t, e, "w1")
	if !hasResult(v, tasks.ResultCompleted) {
		t.Fatalf("history=%+v", v.History)
	}
	if d := geom.DistXZ(body.Position(), geom.V(5, 0, 25)); d > 3 {
		t.Fatalf("stopped %v away from target", d)
	}
}

func TestHistoryIsBounded(t *testing.T) {
	e, _, _ := newTestEngine(t, 20, 20)
	e.cfg.Tasks.HistoryLimit = 4
	mustRegister(t, e, "w1", "red", newStub(5, 5, 50), workerStats())
	for i := 0; i < 10; i++ {
		e.AssignTask("w1", tasks.MoveTo{Pos: geom.V(15, 0, 15)}, TaskOptions{})
	}
	h := e.TaskHistory("w1")
	if len(h) != 4 {
		t.Fatalf("history len=%d want 4", len(h))
	}
	if h[3].TaskID != "task-10" {
		t.Fatalf("newest record=%s want task-10", h[3].TaskID)
	}
}

func TestSetStateRunsEntryEffects(t *testing.T) {
	e, _, _ := newTestEngine(t, 20, 20)
	mustRegister(t, e, "w1", "red", newStub(5, 5, 50), workerStats())
	if !e.SetState("w1", StateReturning) {
		t.Fatalf("SetState failed")
	}
	v := mustView(t, e, "w1")
	if v.TaskKind != tasks.KindDeposit {
		t.Fatalf("Returning entry should assign DEPOSIT, got %s", v.TaskKind)
	}
	if got := e.AgentsInState(StateReturning); len(got) != 1 {
		t.Fatalf("index=%v", got)
	}
	if len(e.AgentsInState(StateWandering)) != 0 {
		t.Fatalf("old state still indexed")
	}
}
