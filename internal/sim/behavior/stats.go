package behavior

import "errors"

// Stats is the read-mostly stat block handed over at registration.
type Stats struct {
	UnitType string `yaml:"unit_type" json:"unit_type"`

	MoveSpeed float64 `yaml:"move_speed" json:"move_speed"`
	MaxHealth float64 `yaml:"max_health" json:"max_health"`

	AttackRange float64 `yaml:"attack_range" json:"attack_range"`
	AttackPower float64 `yaml:"attack_power" json:"attack_power"`
	// AttackSpeed is attacks per time unit.
	AttackSpeed float64 `yaml:"attack_speed" json:"attack_speed"`

	BuildRange   float64 `yaml:"build_range" json:"build_range"`
	BuildSpeed   float64 `yaml:"build_speed" json:"build_speed"`
	HarvestRange float64 `yaml:"harvest_range" json:"harvest_range"`
	// HarvestSpeed scales node depletion; zero means 1.
	HarvestSpeed float64 `yaml:"harvest_speed" json:"harvest_speed"`

	CarryCapacity int     `yaml:"carry_capacity" json:"carry_capacity"`
	PatrolRadius  float64 `yaml:"patrol_radius" json:"patrol_radius"`

	CanFight   bool `yaml:"can_fight" json:"can_fight"`
	CanBuild   bool `yaml:"can_build" json:"can_build"`
	CanHarvest bool `yaml:"can_harvest" json:"can_harvest"`
}

var errBadStats = errors.New("invalid stats")

func (s *Stats) validate() error {
	if s == nil {
		return errBadStats
	}
	if s.UnitType == "" || s.MoveSpeed < 0 || s.MaxHealth < 0 || s.CarryCapacity < 0 {
		return errBadStats
	}
	if s.CanFight && (s.AttackRange <= 0 || s.AttackSpeed <= 0) {
		return errBadStats
	}
	return nil
}

func (s Stats) attackCooldown() float64 {
	if s.AttackSpeed <= 0 {
		return 1
	}
	return 1 / s.AttackSpeed
}

func (s Stats) harvestMultiplier() float64 {
	if s.HarvestSpeed <= 0 {
		return 1
	}
	return s.HarvestSpeed
}
