package indexdb

import (
	"context"
	"path/filepath"
	"testing"

	"gridlegion.ai/internal/protocol"
	"gridlegion.ai/internal/sim/tuning"
)

func openTemp(t *testing.T) *SQLiteIndex {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "index", "telemetry.sqlite"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteIndex_RoundTrip(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	s.AgentChanged(protocol.AgentSnapshot{Time: 0, Reason: protocol.ChangeRegister, AgentID: "U1", Owner: "red", UnitType: "Worker", State: "Wandering"})
	s.AgentChanged(protocol.AgentSnapshot{Time: 1, Reason: protocol.ChangeState, AgentID: "U1", Owner: "red", UnitType: "Worker", State: "Moving", TaskKind: "HARVEST"})
	s.AgentChanged(protocol.AgentSnapshot{Time: 2, Reason: protocol.ChangeInventory, AgentID: "U1", Owner: "red", UnitType: "Worker", State: "Moving"})
	s.TaskFinished(protocol.TaskRecord{AgentID: "U1", Owner: "red", TaskID: "T2", Kind: "HARVEST", TargetID: "N1", Result: "Harvested", Started: 1, Finished: 4, Duration: 3})
	s.TaskFinished(protocol.TaskRecord{AgentID: "U1", Owner: "red", TaskID: "T1", Kind: "PATROL", Result: "Cancelled", Started: 0, Finished: 1, Duration: 1})
	s.AgentRemoved(protocol.AgentRemoved{Time: 9, AgentID: "U1", Owner: "red", Reason: "Dead"})

	if err := s.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}

	hist, err := s.TaskHistory(ctx, "U1", 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 2 || hist[0].TaskID != "T1" || hist[1].TaskID != "T2" {
		t.Fatalf("history=%+v", hist)
	}
	if hist[1].TargetID != "N1" || hist[1].Duration != 3 || hist[0].TargetID != "" {
		t.Fatalf("history fields=%+v", hist)
	}
	if lim, _ := s.TaskHistory(ctx, "U1", 1); len(lim) != 1 {
		t.Fatalf("limit ignored: %d rows", len(lim))
	}

	changes, err := s.StateChanges(ctx, "U1")
	if err != nil {
		t.Fatalf("state changes: %v", err)
	}
	if len(changes) != 2 || changes[0].State != "Wandering" || changes[1].TaskKind != "HARVEST" {
		t.Fatalf("changes=%+v", changes)
	}

	row, ok, err := s.Agent(ctx, "U1")
	if err != nil || !ok {
		t.Fatalf("agent row ok=%v err=%v", ok, err)
	}
	if !row.Removed || row.RemovalReason != "Dead" || row.RemovedAt != 9 || row.UnitType != "Worker" {
		t.Fatalf("agent row=%+v", row)
	}
	if _, ok, _ := s.Agent(ctx, "nobody"); ok {
		t.Fatalf("unknown agent should be missing")
	}

	counts, err := s.ResultCounts(ctx)
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts["HARVEST"]["Harvested"] != 1 || counts["PATROL"]["Cancelled"] != 1 {
		t.Fatalf("counts=%v", counts)
	}
}

func TestSQLiteIndex_CloseFlushesQueue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "telemetry.sqlite")
	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	s.TaskFinished(protocol.TaskRecord{AgentID: "U1", Owner: "red", TaskID: "T1", Kind: "MOVE_TO", Result: "Completed", Finished: 2, Duration: 2})
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	s.TaskFinished(protocol.TaskRecord{AgentID: "U1", TaskID: "T2"}) // ignored after close

	s2, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	hist, err := s2.TaskHistory(context.Background(), "U1", 0)
	if err != nil || len(hist) != 1 || hist[0].Result != "Completed" {
		t.Fatalf("history=%+v err=%v", hist, err)
	}
}

func TestSQLiteIndex_UpsertTuning(t *testing.T) {
	s := openTemp(t)
	if err := s.UpsertTuning(tuning.Defaults(), "run-1"); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.UpsertTuning(tuning.Defaults(), ""); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	digest, ok, err := s.Meta("tuning_digest")
	if err != nil || !ok || len(digest) != 64 {
		t.Fatalf("digest=%q ok=%v err=%v", digest, ok, err)
	}
	if run, ok, _ := s.Meta("run_id"); !ok || run != "run-1" {
		t.Fatalf("run_id=%q ok=%v", run, ok)
	}
	if _, ok, _ := s.Meta("missing"); ok {
		t.Fatalf("missing key reported present")
	}
}
