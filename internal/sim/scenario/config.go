// Package scenario loads a playable grid (cells, nodes, bases, blueprints and initial
// units) from YAML and wires it into a grid-state provider and a behavior engine.
package scenario

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"gridlegion.ai/internal/sim/entities"
	"gridlegion.ai/internal/sim/geom"
)

type Config struct {
	Grid          GridSpec                `yaml:"grid"`
	Blocked       []RectSpec              `yaml:"blocked,omitempty"`
	StockpileCaps map[string]int          `yaml:"stockpile_caps,omitempty"`
	Bases         []entities.Base         `yaml:"bases"`
	Nodes         []entities.ResourceNode `yaml:"resource_nodes,omitempty"`
	Blueprints    []entities.Blueprint    `yaml:"blueprints,omitempty"`
	UnitTypes     map[string]UnitTypeSpec `yaml:"unit_types"`
	Units         []UnitSpec              `yaml:"units"`
}

type GridSpec struct {
	Width    int       `yaml:"width"`
	Depth    int       `yaml:"depth"`
	CellSize float64   `yaml:"cell_size"`
	Origin   geom.Vec3 `yaml:"origin"`
}

// RectSpec blocks every cell in [X0..X1]x[Z0..Z1].
type RectSpec struct {
	X0 int `yaml:"x0"`
	Z0 int `yaml:"z0"`
	X1 int `yaml:"x1"`
	Z1 int `yaml:"z1"`
}

type UnitTypeSpec struct {
	MoveSpeed     float64 `yaml:"move_speed"`
	MaxHealth     float64 `yaml:"max_health"`
	AttackRange   float64 `yaml:"attack_range"`
	AttackPower   float64 `yaml:"attack_power"`
	AttackSpeed   float64 `yaml:"attack_speed"`
	BuildRange    float64 `yaml:"build_range"`
	BuildSpeed    float64 `yaml:"build_speed"`
	HarvestRange  float64 `yaml:"harvest_range"`
	HarvestSpeed  float64 `yaml:"harvest_speed"`
	CarryCapacity int     `yaml:"carry_capacity"`
	PatrolRadius  float64 `yaml:"patrol_radius"`
	CanFight      bool    `yaml:"can_fight"`
	CanBuild      bool    `yaml:"can_build"`
	CanHarvest    bool    `yaml:"can_harvest"`
}

// UnitSpec spawns Count units of Type in a row starting at Pos, Spacing apart on X.
type UnitSpec struct {
	ID      string    `yaml:"id"`
	Owner   string    `yaml:"owner"`
	Type    string    `yaml:"type"`
	Pos     geom.Vec3 `yaml:"pos"`
	Count   int       `yaml:"count"`
	Spacing float64   `yaml:"spacing"`
}

func Load(path string) (Config, error) {
	cfg := defaults()
	if strings.TrimSpace(path) == "" {
		cfg.Normalize()
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	return Parse(b)
}

func Parse(b []byte) (Config, error) {
	cfg := Config{}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("scenario.yaml: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("scenario.yaml: %w", err)
	}
	return cfg, nil
}

// defaults is a small two-team field used when no scenario file is given.
func defaults() Config {
	return Config{
		Grid: GridSpec{Width: 64, Depth: 64, CellSize: 1},
		Blocked: []RectSpec{
			{X0: 30, Z0: 12, X1: 33, Z1: 50},
		},
		Bases: []entities.Base{
			{ID: "red_base", Team: "red", Pos: geom.V(8, 0, 8)},
			{ID: "blue_base", Team: "blue", Pos: geom.V(56, 0, 56)},
		},
		Nodes: []entities.ResourceNode{
			{ID: "tree_1", Kind: "wood", Pos: geom.V(14, 0, 20), MaxHealth: 100, HarvestTime: 3, MinAmount: 2, MaxAmount: 4},
			{ID: "tree_2", Kind: "wood", Pos: geom.V(18, 0, 24), MaxHealth: 100, HarvestTime: 3, MinAmount: 2, MaxAmount: 4},
			{ID: "rock_1", Kind: "stone", Pos: geom.V(22, 0, 14), MaxHealth: 150, HarvestTime: 5, MinAmount: 1, MaxAmount: 3},
			{ID: "tree_3", Kind: "wood", Pos: geom.V(46, 0, 40), MaxHealth: 100, HarvestTime: 3, MinAmount: 2, MaxAmount: 4},
		},
		Blueprints: []entities.Blueprint{
			{ID: "red_wall_1", Team: "red", Structure: "wall", Pos: geom.V(12, 0, 4)},
		},
		UnitTypes: map[string]UnitTypeSpec{
			"worker": {
				MoveSpeed: 4, MaxHealth: 50,
				BuildRange: 4, BuildSpeed: 10, HarvestRange: 4,
				CarryCapacity: 10, CanBuild: true, CanHarvest: true,
			},
			"soldier": {
				MoveSpeed: 5, MaxHealth: 100,
				AttackRange: 2, AttackPower: 10, AttackSpeed: 1, CanFight: true,
			},
		},
		Units: []UnitSpec{
			{ID: "red_worker", Owner: "red", Type: "worker", Pos: geom.V(6, 0, 10), Count: 3, Spacing: 2},
			{ID: "red_soldier", Owner: "red", Type: "soldier", Pos: geom.V(10, 0, 12), Count: 1},
			{ID: "blue_worker", Owner: "blue", Type: "worker", Pos: geom.V(50, 0, 54), Count: 2, Spacing: 2},
			{ID: "blue_soldier", Owner: "blue", Type: "soldier", Pos: geom.V(52, 0, 50), Count: 2, Spacing: 3},
		},
	}
}

func (c *Config) Normalize() {
	if c == nil {
		return
	}
	if c.Grid.CellSize <= 0 {
		c.Grid.CellSize = 1
	}
	for i := range c.Units {
		if c.Units[i].Count <= 0 {
			c.Units[i].Count = 1
		}
		if c.Units[i].Spacing <= 0 {
			c.Units[i].Spacing = c.Grid.CellSize
		}
		if strings.TrimSpace(c.Units[i].ID) == "" {
			c.Units[i].ID = c.Units[i].Owner + "_" + c.Units[i].Type
		}
	}
}

func (c Config) Validate() error {
	c.Normalize()
	if c.Grid.Width <= 0 || c.Grid.Depth <= 0 {
		return fmt.Errorf("grid width/depth must be > 0")
	}
	seen := map[string]bool{}
	for _, b := range c.Bases {
		if strings.TrimSpace(b.ID) == "" || strings.TrimSpace(b.Team) == "" {
			return fmt.Errorf("base id and team must not be empty")
		}
		if seen["base:"+b.ID] {
			return fmt.Errorf("duplicate base id: %s", b.ID)
		}
		seen["base:"+b.ID] = true
	}
	for _, n := range c.Nodes {
		if strings.TrimSpace(n.ID) == "" || strings.TrimSpace(n.Kind) == "" {
			return fmt.Errorf("resource node id and kind must not be empty")
		}
		if seen["node:"+n.ID] {
			return fmt.Errorf("duplicate resource node id: %s", n.ID)
		}
		seen["node:"+n.ID] = true
		if n.MaxHealth <= 0 {
			return fmt.Errorf("resource node %s max_health must be > 0", n.ID)
		}
		if n.MinAmount < 0 || (n.MaxAmount > 0 && n.MaxAmount < n.MinAmount) {
			return fmt.Errorf("resource node %s amounts must satisfy 0 <= min <= max", n.ID)
		}
	}
	for _, bp := range c.Blueprints {
		if strings.TrimSpace(bp.ID) == "" || strings.TrimSpace(bp.Team) == "" {
			return fmt.Errorf("blueprint id and team must not be empty")
		}
	}
	for name, ut := range c.UnitTypes {
		if ut.MoveSpeed < 0 || ut.MaxHealth <= 0 {
			return fmt.Errorf("unit type %s needs max_health > 0 and move_speed >= 0", name)
		}
		if ut.CanFight && (ut.AttackRange <= 0 || ut.AttackSpeed <= 0) {
			return fmt.Errorf("unit type %s can fight but has no attack_range/attack_speed", name)
		}
	}
	for _, u := range c.Units {
		if _, ok := c.UnitTypes[u.Type]; !ok {
			return fmt.Errorf("unit %s references unknown type %q", u.ID, u.Type)
		}
		if strings.TrimSpace(u.Owner) == "" {
			return fmt.Errorf("unit %s owner must not be empty", u.ID)
		}
		if seen["unit:"+u.ID] {
			return fmt.Errorf("duplicate unit id: %s", u.ID)
		}
		seen["unit:"+u.ID] = true
	}
	return nil
}
