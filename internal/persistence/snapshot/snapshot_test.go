package snapshot

import (
	"os"
	"path/filepath"
	"testing"

	"gridlegion.ai/internal/protocol"
	"gridlegion.ai/internal/sim/entities"
	"gridlegion.ai/internal/sim/geom"
)

func sample(t float64) SnapshotV1 {
	return SnapshotV1{
		Header: Header{RunID: "run-1", Time: t, Passes: 42},
		Seed:   7,
		Agents: []protocol.AgentSnapshot{{
			Type: protocol.TypeAgent, ProtocolVersion: protocol.Version, Time: t, Reason: protocol.ChangeState,
			AgentID: "U1", Owner: "red", UnitType: "Worker", State: "Working",
			Carried: map[string]int{"WOOD": 4}, CarriedWeight: 4,
		}},
		Nodes:      []entities.ResourceNode{{ID: "N1", Kind: "WOOD", Pos: geom.V(3, 0, 4), Health: 20, MaxHealth: 100}},
		Blueprints: []entities.Blueprint{{ID: "P1", Team: "red", Structure: "wall", Done: true}},
		Stockpiles: map[string]map[string]int{"red": {"WOOD": 12}},
	}
}

func TestWriteReadSnapshot(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snapshots", FileName(12.5))
	if err := WriteSnapshot(path, sample(12.5)); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Header.Version != Version || got.Header.Agents != 1 || got.Header.Time != 12.5 {
		t.Fatalf("header=%+v", got.Header)
	}
	if got.Agents[0].Carried["WOOD"] != 4 || got.Nodes[0].Pos.Z != 4 || !got.Blueprints[0].Done {
		t.Fatalf("body=%+v", got)
	}
	if got.Stockpiles["red"]["WOOD"] != 12 {
		t.Fatalf("stockpiles=%v", got.Stockpiles)
	}

	h, err := ReadHeader(path)
	if err != nil || h.RunID != "run-1" || h.Passes != 42 {
		t.Fatalf("header=%+v err=%v", h, err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind: %v", err)
	}
}

func TestListLatestAndPrune(t *testing.T) {
	dir := t.TempDir()
	for _, tm := range []float64{120, 5, 60} {
		if err := WriteSnapshot(filepath.Join(dir, FileName(tm)), sample(tm)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	_ = os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644)

	if got := Latest(dir); filepath.Base(got) != FileName(120) {
		t.Fatalf("Latest=%s", got)
	}
	if err := Prune(dir, 2); err != nil {
		t.Fatalf("prune: %v", err)
	}
	all, _ := List(dir)
	if len(all) != 2 || filepath.Base(all[0]) != FileName(60) {
		t.Fatalf("after prune=%v", all)
	}
	if Latest(filepath.Join(dir, "missing")) != "" {
		t.Fatalf("missing dir should have no latest")
	}
}
