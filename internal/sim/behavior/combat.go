package behavior

import (
	"gridlegion.ai/internal/sim/geom"
	"gridlegion.ai/internal/sim/tasks"
)

// evaluateThreats updates the threat level and pre-empts the current state with Fleeing
// or an attack when warranted. It reports whether it changed what the agent is doing.
func (e *Engine) evaluateThreats(a *Agent, pos geom.Vec3) bool {
	if a.state == StateDead || a.state == StateStuck {
		return false
	}
	enemy, dist, found := e.nearestEnemy(a, pos)
	if a.Stats.CanFight {
		if found && dist <= e.cfg.Combat.ThreatRadius {
			a.threatLevel = min(a.threatLevel+1, e.cfg.Combat.ThreatMax)
		} else if a.threatLevel > 0 {
			a.threatLevel--
		}
	}
	if a.state == StateFleeing {
		return false
	}
	if e.shouldFlee(a, found, dist) {
		e.log.Printf("agent fleeing: id=%s state=%s health=%.2f", a.ID, a.state, a.healthFraction())
		e.setState(a, StateFleeing)
		return true
	}
	if !a.Stats.CanFight || !found || a.state == StateFighting {
		return false
	}
	if dist > a.Stats.AttackRange*e.cfg.Combat.EngageFactor {
		return false
	}
	if a.task.Kind() == tasks.KindAttack && a.task.TargetID() == enemy.ID {
		return false
	}
	return e.engage(a, enemy)
}

// engage takes on enemy and goes straight to Fighting; tickFighting chases when the
// enemy is beyond striking distance.
func (e *Engine) engage(a *Agent, enemy *Agent) bool {
	if !e.install(a, tasks.Attack{TargetID: enemy.ID}, TaskOptions{}) {
		return false
	}
	a.combatTarget = enemy.ID
	a.setTarget(enemy.body.Position())
	e.setState(a, StateFighting)
	return true
}

// shouldFlee: non-combatants run from any enemy in range, combatants run when hurt.
func (e *Engine) shouldFlee(a *Agent, enemyFound bool, dist float64) bool {
	if a.Stats.CanFight {
		return a.healthFraction() < e.cfg.Combat.FleeHealthFraction
	}
	return enemyFound && dist <= e.cfg.Combat.EnemyFleeRadius
}

func (e *Engine) nearestEnemy(a *Agent, pos geom.Vec3) (*Agent, float64, bool) {
	var best *Agent
	bestDist := 0.0
	for _, id := range e.order {
		o := e.agents[id]
		if o == a || o.Owner == a.Owner || !o.alive() {
			continue
		}
		d := geom.DistXZ(pos, o.body.Position())
		if best == nil || d < bestDist {
			best, bestDist = o, d
		}
	}
	return best, bestDist, best != nil
}

func (e *Engine) liveAgent(id string) (*Agent, bool) {
	a, ok := e.agents[id]
	if !ok || !a.alive() {
		return nil, false
	}
	return a, true
}

func (a *Agent) alive() bool {
	if a.state == StateDead || !a.body.Valid() {
		return false
	}
	hp, _ := a.body.Health()
	return hp > 0
}

func (e *Engine) tickFighting(a *Agent, pos geom.Vec3) {
	target, ok := e.liveAgent(a.combatTarget)
	if !ok {
		e.completeTask(a, tasks.ResultTargetLost)
		return
	}
	tp := target.body.Position()
	if geom.DistXZ(pos, tp) > a.Stats.AttackRange*e.cfg.Combat.ChaseFactor {
		a.setTarget(tp)
		e.startMoving(a, pos)
		return
	}
	if e.now+timeEpsilon < a.attackReadyAt {
		return
	}
	target.body.Damage(a.Stats.AttackPower)
	a.attackReadyAt = e.now + a.Stats.attackCooldown()
	if hp, _ := target.body.Health(); hp <= 0 {
		e.completeTask(a, tasks.ResultDestroyed)
	}
}
