package behavior

import "gridlegion.ai/internal/sim/geom"

// Body is the instance handle of an agent in the host world. The engine issues at most
// one MoveTo per agent update and reads position/health back.
type Body interface {
	// Valid reports whether the instance still exists.
	Valid() bool
	Position() geom.Vec3
	MoveTo(target geom.Vec3)
	Health() (hp, max float64)
	Damage(amount float64)
}

// Stepper is implemented by bodies whose locomotion is integrated by the engine's Advance.
type Stepper interface {
	Step(dt float64)
}

// KinematicBody walks in a straight line toward its last MoveTo target at a fixed speed.
// It stops in place when Blocked reports the next position as impassable.
type KinematicBody struct {
	pos    geom.Vec3
	target geom.Vec3
	moving bool

	speed float64
	hp    float64
	maxHP float64
	gone  bool

	Blocked func(geom.Vec3) bool
}

func NewKinematicBody(pos geom.Vec3, stats Stats) *KinematicBody {
	return &KinematicBody{pos: pos, speed: stats.MoveSpeed, hp: stats.MaxHealth, maxHP: stats.MaxHealth}
}

func (b *KinematicBody) Valid() bool                { return b != nil && !b.gone }
func (b *KinematicBody) Position() geom.Vec3        { return b.pos }
func (b *KinematicBody) Health() (float64, float64) { return b.hp, b.maxHP }

func (b *KinematicBody) MoveTo(target geom.Vec3) {
	b.target = target
	b.moving = true
}

func (b *KinematicBody) Damage(amount float64) {
	b.hp -= amount
	if b.hp < 0 {
		b.hp = 0
	}
}

// Destroy simulates instance loss.
func (b *KinematicBody) Destroy() { b.gone = true }

// Teleport moves the body without locomotion.
func (b *KinematicBody) Teleport(p geom.Vec3) {
	b.pos = p
	b.moving = false
}

func (b *KinematicBody) Step(dt float64) {
	if b.gone || !b.moving || dt <= 0 {
		return
	}
	goal := b.target
	goal.Y = b.pos.Y
	next := geom.Toward(b.pos, goal, b.speed*dt)
	if b.Blocked != nil && b.Blocked(next) {
		return
	}
	b.pos = next
	if next == goal {
		b.moving = false
	}
}
