package tuning

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

var ErrInvalid = errors.New("invalid tuning")

type Tuning struct {
	// UpdateFrequency is the number of behavior updates per agent per time unit.
	UpdateFrequency float64 `yaml:"update_frequency" json:"update_frequency"`
	// StaggerSlots splits each update interval into that many scheduler passes; agents
	// are spread over the slots so each pass only updates its share of the population.
	StaggerSlots int `yaml:"stagger_slots" json:"stagger_slots"`

	Tasks       TaskTuning     `yaml:"tasks" json:"tasks"`
	Movement    MovementTuning `yaml:"movement" json:"movement"`
	Pathfinding PathfindTuning `yaml:"pathfinding" json:"pathfinding"`
	Combat      CombatTuning   `yaml:"combat" json:"combat"`
	Work        WorkTuning     `yaml:"work" json:"work"`
	Patrol      PatrolTuning   `yaml:"patrol" json:"patrol"`
}

type TaskTuning struct {
	DefaultTimeout     float64 `yaml:"default_timeout" json:"default_timeout"`
	DefaultMaxAttempts int     `yaml:"default_max_attempts" json:"default_max_attempts"`
	IdleDwell          float64 `yaml:"idle_dwell" json:"idle_dwell"`
	HistoryLimit       int     `yaml:"history_limit" json:"history_limit"`
}

type MovementTuning struct {
	ArrivalDistance    float64 `yaml:"arrival_distance" json:"arrival_distance"`
	WaypointReach      float64 `yaml:"waypoint_reach" json:"waypoint_reach"`
	RouteCooldown      float64 `yaml:"route_cooldown" json:"route_cooldown"`
	FleeRouteCooldown  float64 `yaml:"flee_route_cooldown" json:"flee_route_cooldown"`
	StallRecompute     float64 `yaml:"stall_recompute" json:"stall_recompute"`
	StuckWindow        float64 `yaml:"stuck_window" json:"stuck_window"`
	MovedThreshold     float64 `yaml:"moved_threshold" json:"moved_threshold"`
	ReturnDepositRange float64 `yaml:"return_deposit_range" json:"return_deposit_range"`
	FleeSafeRange      float64 `yaml:"flee_safe_range" json:"flee_safe_range"`
}

type PathfindTuning struct {
	AllowDiagonal bool    `yaml:"allow_diagonal" json:"allow_diagonal"`
	MaxExpansions int     `yaml:"max_expansions" json:"max_expansions"`
	MaxWaypoints  int     `yaml:"max_waypoints" json:"max_waypoints"`
	DensityWeight float64 `yaml:"density_weight" json:"density_weight"`
	Smooth        bool    `yaml:"smooth" json:"smooth"`
	// MaxSearchesPerPass caps A* runs per scheduler pass; 0 disables the cap.
	MaxSearchesPerPass int `yaml:"max_searches_per_pass" json:"max_searches_per_pass"`
}

type CombatTuning struct {
	ThreatRadius       float64 `yaml:"threat_radius" json:"threat_radius"`
	ThreatMax          int     `yaml:"threat_max" json:"threat_max"`
	EnemyFleeRadius    float64 `yaml:"enemy_flee_radius" json:"enemy_flee_radius"`
	FleeHealthFraction float64 `yaml:"flee_health_fraction" json:"flee_health_fraction"`
	SafeHealthFraction float64 `yaml:"safe_health_fraction" json:"safe_health_fraction"`
	ChaseFactor        float64 `yaml:"chase_factor" json:"chase_factor"`
	EngageFactor       float64 `yaml:"engage_factor" json:"engage_factor"`
}

type WorkTuning struct {
	BuildQuota       float64 `yaml:"build_quota" json:"build_quota"`
	NodeScaleFloor   float64 `yaml:"node_scale_floor" json:"node_scale_floor"`
	HarvestScanRange float64 `yaml:"harvest_scan_range" json:"harvest_scan_range"`
	BuildScanRange   float64 `yaml:"build_scan_range" json:"build_scan_range"`
}

type PatrolTuning struct {
	DefaultRadius float64 `yaml:"default_radius" json:"default_radius"`
}

func Defaults() Tuning {
	return Tuning{
		UpdateFrequency: 10,
		StaggerSlots:    2,
		Tasks: TaskTuning{
			DefaultTimeout:     60,
			DefaultMaxAttempts: 3,
			IdleDwell:          3,
			HistoryLimit:       64,
		},
		Movement: MovementTuning{
			ArrivalDistance:    3,
			WaypointReach:      2,
			RouteCooldown:      2,
			FleeRouteCooldown:  1,
			StallRecompute:     5,
			StuckWindow:        10,
			MovedThreshold:     0.5,
			ReturnDepositRange: 5,
			FleeSafeRange:      8,
		},
		Pathfinding: PathfindTuning{
			AllowDiagonal: true,
			MaxExpansions: 1000,
			MaxWaypoints:  100,
			DensityWeight: 2,
			Smooth:        true,
		},
		Combat: CombatTuning{
			ThreatRadius:       20,
			ThreatMax:          10,
			EnemyFleeRadius:    15,
			FleeHealthFraction: 0.3,
			SafeHealthFraction: 0.5,
			ChaseFactor:        1.5,
			EngageFactor:       2,
		},
		Work: WorkTuning{
			BuildQuota:       100,
			NodeScaleFloor:   0.1,
			HarvestScanRange: 50,
			BuildScanRange:   50,
		},
		Patrol: PatrolTuning{
			DefaultRadius: 20,
		},
	}
}

// Load reads a YAML file on top of Defaults.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, err
	}
	return t, nil
}

func (t Tuning) Validate() error {
	switch {
	case t.UpdateFrequency <= 0:
		return fmt.Errorf("%w: update_frequency must be > 0", ErrInvalid)
	case t.StaggerSlots < 1:
		return fmt.Errorf("%w: stagger_slots must be >= 1", ErrInvalid)
	case t.Tasks.IdleDwell < 0:
		return fmt.Errorf("%w: tasks.idle_dwell must be >= 0", ErrInvalid)
	case t.Movement.WaypointReach <= 0 || t.Movement.ArrivalDistance <= 0:
		return fmt.Errorf("%w: movement distances must be > 0", ErrInvalid)
	case t.Movement.StuckWindow <= 0:
		return fmt.Errorf("%w: movement.stuck_window must be > 0", ErrInvalid)
	case t.Pathfinding.MaxExpansions <= 0:
		return fmt.Errorf("%w: pathfinding.max_expansions must be > 0", ErrInvalid)
	case t.Combat.ThreatMax < 0:
		return fmt.Errorf("%w: combat.threat_max must be >= 0", ErrInvalid)
	case t.Work.BuildQuota <= 0:
		return fmt.Errorf("%w: work.build_quota must be > 0", ErrInvalid)
	}
	return nil
}

// Interval is the time between two updates of the same agent.
func (t Tuning) Interval() float64 { return 1 / t.UpdateFrequency }

// PassInterval is the time between scheduler passes.
func (t Tuning) PassInterval() float64 { return t.Interval() / float64(max(t.StaggerSlots, 1)) }

// Digest identifies a tuning by the SHA-256 of its JSON encoding.
func (t Tuning) Digest() string {
	b, _ := json.Marshal(t)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
