// Package behavior drives autonomous agents through a finite-state machine: task
// assignment and completion, route following over the grid, stuck recovery, threat
// evaluation with flee/fight pre-emption, harvesting and building.
//
// An Engine is single-threaded. The host calls Advance from one goroutine; telemetry
// sinks are invoked synchronously from that goroutine.
package behavior

import (
	"io"
	"log"
	"math"
	"math/rand"
	"sort"

	"github.com/google/uuid"

	"gridlegion.ai/internal/protocol"
	"gridlegion.ai/internal/sim/entities"
	"gridlegion.ai/internal/sim/geom"
	"gridlegion.ai/internal/sim/pathfind"
	"gridlegion.ai/internal/sim/tasks"
	"gridlegion.ai/internal/sim/tuning"
)

const timeEpsilon = 1e-9

// GridState is the cell-level view the engine paths over and registers density into.
type GridState interface {
	pathfind.Grid
	Geometry() pathfind.Geometry
	RegisterAgentInCell(agentID string, c geom.Cell)
	UnregisterAgentFromCell(agentID string, c geom.Cell)
	ClaimNextHarvestTask(agentID string, from geom.Vec3, within float64) (entities.HarvestClaim, bool)
	CompleteHarvestTask(agentID, nodeID string)
	ReleaseHarvestTask(agentID, nodeID string)
	DepositResource(team, kind string, amount int) (accepted, total int)
}

// World resolves the entities tasks refer to.
type World interface {
	ResourceNode(id string) (entities.ResourceNode, bool)
	UpdateResourceNode(id string, health, scale float64) bool
	RemoveResourceNode(id string)
	NearestBase(team string, from geom.Vec3) (entities.Base, bool)
	ClaimBlueprint(agentID, team string, from geom.Vec3, within float64) (entities.Blueprint, bool)
	Blueprint(id string) (entities.Blueprint, bool)
	ReleaseBlueprint(agentID, id string)
	CompleteBlueprint(id string) bool
}

type Config struct {
	Tuning    tuning.Tuning
	Grid      GridState
	World     World
	Telemetry Telemetry
	Logger    *log.Logger

	// Seed drives patrol points and harvest yields.
	Seed int64
	// NewID mints task ids. Defaults to random UUIDs.
	NewID func() string
}

type Engine struct {
	cfg   tuning.Tuning
	grid  GridState
	world World
	tel   Telemetry
	log   *log.Logger
	rng   *rand.Rand
	newID func() string

	geo      pathfind.Geometry
	pathOpts pathfind.Options
	budget   *pathfind.Budget

	now      float64
	lastPass float64
	passes   uint64
	// nextSlot hands out stagger slots round-robin at registration.
	nextSlot int

	agents map[string]*Agent
	order  []string
	idx    index
}

func New(cfg Config) *Engine {
	if cfg.Tuning.UpdateFrequency <= 0 {
		cfg.Tuning = tuning.Defaults()
	}
	if cfg.Telemetry == nil {
		cfg.Telemetry = nopTelemetry{}
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard, "", 0)
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	pf := cfg.Tuning.Pathfinding
	e := &Engine{
		cfg:   cfg.Tuning,
		grid:  cfg.Grid,
		world: cfg.World,
		tel:   cfg.Telemetry,
		log:   cfg.Logger,
		rng:   rand.New(rand.NewSource(cfg.Seed)),
		newID: cfg.NewID,
		geo:   cfg.Grid.Geometry(),
		pathOpts: pathfind.Options{
			AllowDiagonal: pf.AllowDiagonal,
			MaxExpansions: pf.MaxExpansions,
			MaxWaypoints:  pf.MaxWaypoints,
			DensityWeight: pf.DensityWeight,
		},
		budget: pathfind.NewBudget(pf.MaxSearchesPerPass),
		agents: map[string]*Agent{},
		idx:    newIndex(),
	}
	return e
}

func (e *Engine) Now() float64   { return e.now }
func (e *Engine) Passes() uint64 { return e.passes }
func (e *Engine) Count() int     { return len(e.agents) }

// RegisterRequest carries everything needed to enlist an agent.
type RegisterRequest struct {
	ID    string
	Owner string
	Body  Body
	Stats *Stats
	// PatrolCenter pins wandering to a point instead of the nearest own base.
	PatrolCenter *geom.Vec3
}

// Register enlists an agent and enters Wandering. It returns false when the request is
// missing its identifier, body or stats, or when the id is already registered.
func (e *Engine) Register(req RegisterRequest) bool {
	if req.ID == "" || req.Body == nil || !req.Body.Valid() {
		e.log.Printf("register rejected: id=%q missing identifier or body", req.ID)
		return false
	}
	if err := req.Stats.validate(); err != nil {
		e.log.Printf("register rejected: id=%q: %v", req.ID, err)
		return false
	}
	if _, dup := e.agents[req.ID]; dup {
		e.log.Printf("register rejected: id=%q already registered", req.ID)
		return false
	}

	pos := req.Body.Position()
	a := &Agent{
		ID:           req.ID,
		Owner:        req.Owner,
		Stats:        *req.Stats,
		body:         req.Body,
		spawnPos:     pos,
		lastPos:      pos,
		lastMovedAt:  e.now,
		patrolRadius: req.Stats.PatrolRadius,
		carried:      map[string]int{},
		lastUpdate:   e.now,
		nextUpdate:   e.now + float64(e.nextSlot)*e.cfg.PassInterval(),
	}
	e.nextSlot = (e.nextSlot + 1) % max(e.cfg.StaggerSlots, 1)
	if req.PatrolCenter != nil {
		a.patrolCenter = *req.PatrolCenter
		a.hasPatrolCenter = true
	}
	if a.patrolRadius <= 0 {
		a.patrolRadius = e.cfg.Patrol.DefaultRadius
	}
	a.state = StateWandering
	a.stateSince = e.now
	e.agents[a.ID] = a
	i := sort.SearchStrings(e.order, a.ID)
	e.order = append(e.order, "")
	copy(e.order[i+1:], e.order[i:])
	e.order[i] = a.ID
	e.idx.add(a)
	e.trackCell(a, pos)

	e.emitAgent(a, protocol.ChangeRegister)
	e.enter(a)
	return true
}

// Unregister removes an agent, cancelling its task and releasing any claims. It returns
// false for unknown ids.
func (e *Engine) Unregister(id, reason string) bool {
	a, ok := e.agents[id]
	if !ok {
		return false
	}
	e.remove(a, reason)
	return true
}

func (e *Engine) remove(a *Agent, reason string) {
	if a.task != nil {
		e.cancelTask(a, tasks.ResultAgentLost)
	}
	if a.cellRegistered {
		e.grid.UnregisterAgentFromCell(a.ID, a.cell)
		a.cellRegistered = false
	}
	e.idx.remove(a)
	delete(e.agents, a.ID)
	if i := sort.SearchStrings(e.order, a.ID); i < len(e.order) && e.order[i] == a.ID {
		e.order = append(e.order[:i], e.order[i+1:]...)
	}
	e.emitRemoved(a, reason)
	e.log.Printf("agent removed: id=%s owner=%s reason=%s", a.ID, a.Owner, reason)
}

// Advance moves engine time forward by dt. Bodies that integrate their own locomotion
// are stepped every call; a scheduler pass runs whenever a full pass interval has
// accumulated, updating every agent whose per-agent deadline has arrived. Deadlines
// advance by whole update intervals so each agent keeps the slot it registered in.
func (e *Engine) Advance(dt float64) {
	if dt <= 0 {
		return
	}
	e.now += dt
	for _, id := range e.order {
		if s, ok := e.agents[id].body.(Stepper); ok {
			s.Step(dt)
		}
	}
	if e.now-e.lastPass+timeEpsilon < e.cfg.PassInterval() {
		return
	}
	interval := e.cfg.Interval()
	e.lastPass = e.now
	e.passes++
	e.budget.Reset()

	ids := append([]string(nil), e.order...)
	for _, id := range ids {
		a, ok := e.agents[id]
		if !ok {
			continue
		}
		if e.now+timeEpsilon < a.nextUpdate {
			continue
		}
		a.nextUpdate += interval
		if behind := e.now - a.nextUpdate; behind+timeEpsilon >= 0 {
			a.nextUpdate += (math.Floor((behind+timeEpsilon)/interval) + 1) * interval
		}
		e.updateAgent(a)
	}
}

func (e *Engine) updateAgent(a *Agent) {
	dt := e.now - a.lastUpdate
	a.lastUpdate = e.now

	if !a.body.Valid() {
		e.setState(a, StateDead)
		return
	}
	if hp, _ := a.body.Health(); hp <= 0 {
		e.setState(a, StateDead)
		return
	}

	pos := a.body.Position()
	e.trackCell(a, pos)
	if e.trackMovement(a, pos) {
		return
	}
	if a.task != nil && a.task.Expired(e.now) {
		e.log.Printf("task timeout: agent=%s task=%s kind=%s", a.ID, a.task.ID, a.task.Kind())
		e.completeTask(a, tasks.ResultTimeout)
	}
	if e.evaluateThreats(a, pos) {
		return
	}
	e.tick(a, pos, dt)
}

// trackCell keeps the agent's density registration in the cell it occupies.
func (e *Engine) trackCell(a *Agent, pos geom.Vec3) {
	c := e.geo.WorldToCell(pos)
	if a.cellRegistered && c == a.cell {
		return
	}
	if a.cellRegistered {
		e.grid.UnregisterAgentFromCell(a.ID, a.cell)
	}
	a.cell = c
	a.cellRegistered = true
	e.grid.RegisterAgentInCell(a.ID, c)
}
