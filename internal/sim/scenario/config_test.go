package scenario

import (
	"strings"
	"testing"

	"gridlegion.ai/internal/sim/behavior"
	"gridlegion.ai/internal/sim/tuning"
)

func TestLoad_ScenarioYAML(t *testing.T) {
	cfg, err := Load("../../../configs/scenario.yaml")
	if err != nil {
		t.Fatalf("load scenario.yaml: %v", err)
	}
	if cfg.Grid.Width <= 0 || len(cfg.Bases) == 0 || len(cfg.Units) == 0 {
		t.Fatalf("scenario.yaml looks empty: %+v", cfg.Grid)
	}
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("defaults: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestParse_RejectsUnknownUnitType(t *testing.T) {
	_, err := Parse([]byte(`
grid: {width: 10, depth: 10}
unit_types:
  worker: {move_speed: 1, max_health: 10}
units:
  - {id: a, owner: red, type: knight}
`))
	if err == nil || !strings.Contains(err.Error(), "unknown type") {
		t.Fatalf("err=%v want unknown type", err)
	}
}

func TestParse_RejectsFighterWithoutRange(t *testing.T) {
	_, err := Parse([]byte(`
grid: {width: 10, depth: 10}
unit_types:
  soldier: {move_speed: 1, max_health: 10, can_fight: true}
`))
	if err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestNormalize_FillsCountsAndIDs(t *testing.T) {
	cfg := Config{
		Grid:      GridSpec{Width: 8, Depth: 8},
		UnitTypes: map[string]UnitTypeSpec{"worker": {MoveSpeed: 1, MaxHealth: 5}},
		Units:     []UnitSpec{{Owner: "red", Type: "worker"}},
	}
	cfg.Normalize()
	if cfg.Grid.CellSize != 1 || cfg.Units[0].Count != 1 || cfg.Units[0].ID != "red_worker" {
		t.Fatalf("normalize: %+v %+v", cfg.Grid, cfg.Units[0])
	}
}

func TestBuildAndSpawn(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("defaults: %v", err)
	}
	grid := cfg.Build()
	if grid.Traversable(31, 20) {
		t.Fatalf("blocked rect not applied")
	}
	if _, ok := grid.NearestBase("red", cfg.Bases[0].Pos); !ok {
		t.Fatalf("bases not added")
	}
	if got := len(grid.ResourceNodes()); got != len(cfg.Nodes) {
		t.Fatalf("nodes=%d want %d", got, len(cfg.Nodes))
	}

	e := behavior.New(behavior.Config{Tuning: tuning.Defaults(), Grid: grid, World: grid, Seed: 1})
	bodies, err := cfg.Spawn(e, grid)
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	want := 0
	for _, u := range cfg.Units {
		want += u.Count
	}
	if e.Count() != want || len(bodies) != want {
		t.Fatalf("spawned engine=%d bodies=%d want %d", e.Count(), len(bodies), want)
	}
	if got := e.AgentsOfType("worker"); len(got) != 5 {
		t.Fatalf("workers=%v", got)
	}
	if _, ok := e.Agent("red_worker_2"); !ok {
		t.Fatalf("expected numbered id red_worker_2")
	}
	if _, err := cfg.Spawn(e, grid); err == nil {
		t.Fatalf("spawning twice should fail on duplicate ids")
	}
}
