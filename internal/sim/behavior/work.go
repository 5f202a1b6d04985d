package behavior

import (
	"math"

	"gridlegion.ai/internal/protocol"
	"gridlegion.ai/internal/sim/entities"
	"gridlegion.ai/internal/sim/tasks"
)

// nodeGoneHealth is the remaining health below which a node counts as depleted.
const nodeGoneHealth = 1e-6

func (e *Engine) tickWorking(a *Agent, dt float64) {
	if a.task == nil {
		e.setState(a, StateIdle)
		return
	}
	switch p := a.task.Payload.(type) {
	case tasks.Harvest:
		e.workHarvest(a, p, dt)
	case tasks.Build:
		e.workBuild(a, p, dt)
	default:
		e.log.Printf("working with non-work task: agent=%s kind=%s", a.ID, a.task.Kind())
		e.completeTask(a, tasks.ResultCompleted)
	}
}

func (e *Engine) workHarvest(a *Agent, p tasks.Harvest, dt float64) {
	node, ok := e.world.ResourceNode(p.NodeID)
	if !ok {
		e.completeTask(a, tasks.ResultNodeMissing)
		return
	}
	health := node.Health - node.DepletionRate()*a.Stats.harvestMultiplier()*dt
	if health <= nodeGoneHealth {
		e.finishHarvest(a, node)
		return
	}
	frac := 0.0
	if node.MaxHealth > 0 {
		frac = health / node.MaxHealth
	}
	e.world.UpdateResourceNode(node.ID, health, node.BaseScale*math.Max(e.cfg.Work.NodeScaleFloor, frac))
}

func (e *Engine) finishHarvest(a *Agent, node entities.ResourceNode) {
	amount := node.MinAmount
	if node.MaxAmount > node.MinAmount {
		amount += e.rng.Intn(node.MaxAmount - node.MinAmount + 1)
	}
	a.carried[node.Kind] += amount
	a.recomputeWeight()
	a.stockpileFull = false
	a.counters.ResourcesHarvested += amount

	e.world.RemoveResourceNode(node.ID)
	e.grid.CompleteHarvestTask(a.ID, node.ID)
	e.emitAgent(a, protocol.ChangeInventory)

	if a.full() {
		e.finishTask(a, tasks.ResultHarvested)
		e.setState(a, StateReturning)
		return
	}
	e.completeTask(a, tasks.ResultHarvested)
}

func (e *Engine) workBuild(a *Agent, p tasks.Build, dt float64) {
	bp, ok := e.world.Blueprint(p.BlueprintID)
	if !ok || bp.Done {
		e.completeTask(a, tasks.ResultTargetLost)
		return
	}
	a.task.Progress += a.Stats.BuildSpeed * dt
	if a.task.Progress+timeEpsilon < e.cfg.Work.BuildQuota {
		return
	}
	e.world.CompleteBlueprint(bp.ID)
	e.completeTask(a, tasks.ResultBuilt)
}

// depositAll hands the whole inventory to the team stockpile. Anything the stockpile
// refuses stays carried.
func (e *Engine) depositAll(a *Agent) {
	if len(a.carried) == 0 {
		return
	}
	refused := false
	for _, kind := range sortedKeys(a.carried) {
		n := a.carried[kind]
		accepted, total := e.grid.DepositResource(a.Owner, kind, n)
		a.counters.ResourcesDeposited += accepted
		if left := n - accepted; left > 0 {
			a.carried[kind] = left
			refused = true
			e.log.Printf("stockpile full: team=%s kind=%s total=%d kept=%d", a.Owner, kind, total, left)
			continue
		}
		delete(a.carried, kind)
	}
	a.recomputeWeight()
	a.stockpileFull = refused
	e.emitAgent(a, protocol.ChangeInventory)
}
