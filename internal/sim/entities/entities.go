// Package entities holds the world objects agents interact with but do not own:
// resource nodes, team bases and construction blueprints.
package entities

import "gridlegion.ai/internal/sim/geom"

type ResourceNode struct {
	ID     string    `json:"id" yaml:"id"`
	Kind   string    `json:"kind" yaml:"kind"`
	Pos    geom.Vec3 `json:"pos" yaml:"pos"`
	Health float64   `json:"health" yaml:"health"`

	MaxHealth   float64 `json:"max_health" yaml:"max_health"`
	HarvestTime float64 `json:"harvest_time" yaml:"harvest_time"`
	MinAmount   int     `json:"min_amount" yaml:"min_amount"`
	MaxAmount   int     `json:"max_amount" yaml:"max_amount"`

	// Scale is the presentation scale; it shrinks toward BaseScale*floor as the node depletes.
	Scale     float64 `json:"scale" yaml:"scale"`
	BaseScale float64 `json:"base_scale" yaml:"base_scale"`
}

// HealthFraction is Health/MaxHealth clamped to [0,1].
func (n ResourceNode) HealthFraction() float64 {
	if n.MaxHealth <= 0 {
		return 0
	}
	f := n.Health / n.MaxHealth
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// DepletionRate is health removed per time unit of harvesting.
func (n ResourceNode) DepletionRate() float64 {
	if n.HarvestTime <= 0 {
		return n.MaxHealth
	}
	return n.MaxHealth / n.HarvestTime
}

type Base struct {
	ID   string    `json:"id" yaml:"id"`
	Team string    `json:"team" yaml:"team"`
	Pos  geom.Vec3 `json:"pos" yaml:"pos"`
}

type Blueprint struct {
	ID        string    `json:"id" yaml:"id"`
	Team      string    `json:"team" yaml:"team"`
	Structure string    `json:"structure" yaml:"structure"`
	Pos       geom.Vec3 `json:"pos" yaml:"pos"`
	ClaimedBy string    `json:"claimed_by,omitempty" yaml:"-"`
	Done      bool      `json:"done,omitempty" yaml:"-"`
}

// HarvestClaim is what the grid-state provider hands out from its harvest queue.
type HarvestClaim struct {
	NodeID   string
	Resource string
	Pos      geom.Vec3
}
