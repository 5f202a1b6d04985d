package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"gridlegion.ai/internal/persistence/indexdb"
	"gridlegion.ai/internal/protocol"
	"gridlegion.ai/internal/sim/behavior"
	"gridlegion.ai/internal/sim/geom"
	"gridlegion.ai/internal/sim/gridstate"
	"gridlegion.ai/internal/sim/tasks"
	"gridlegion.ai/internal/transport/ws"
)

type admin struct {
	run  *runner
	grid *gridstate.State
	idx  *indexdb.SQLiteIndex // nil when indexing is disabled
	hub  *ws.Hub

	snaps *snapshotter // nil disables POST /admin/v1/snapshot
}

type historyEntry struct {
	TaskID   string  `json:"task_id"`
	Kind     string  `json:"kind"`
	TargetID string  `json:"target_id,omitempty"`
	Result   string  `json:"result"`
	Started  float64 `json:"started"`
	Finished float64 `json:"finished"`
	Duration float64 `json:"duration"`
}

type agentResponse struct {
	Agent   protocol.AgentSnapshot `json:"agent"`
	History []historyEntry         `json:"history"`
}

// taskRequest is the body of POST /admin/v1/agents/{id}/task.
type taskRequest struct {
	Kind     string      `json:"kind"`
	Pos      *[3]float64 `json:"pos,omitempty"`
	Radius   float64     `json:"radius,omitempty"`
	TargetID string      `json:"target_id,omitempty"`
	Timeout  float64     `json:"timeout,omitempty"`
	Priority int         `json:"priority,omitempty"`
}

func (a *admin) register(mux *http.ServeMux) {
	mux.HandleFunc("GET /admin/v1/state", a.local(a.handleState))
	mux.HandleFunc("GET /admin/v1/agents/{id}", a.local(a.handleAgent))
	mux.HandleFunc("POST /admin/v1/agents/{id}/task", a.local(a.handleAssign))
	mux.HandleFunc("POST /admin/v1/agents/{id}/cancel", a.local(a.handleCancel))
	mux.HandleFunc("DELETE /admin/v1/agents/{id}", a.local(a.handleUnregister))
	mux.HandleFunc("GET /admin/v1/history/{id}", a.local(a.handleIndexedHistory))
	mux.HandleFunc("POST /admin/v1/snapshot", a.local(a.handleSnapshot))
}

func (a *admin) local(h http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		h(rw, r)
	}
}

func (a *admin) handleState(rw http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	var resp struct {
		Time       float64                   `json:"time"`
		Passes     uint64                    `json:"passes"`
		Agents     int                       `json:"agents"`
		States     map[string]int            `json:"states"`
		Stockpiles map[string]map[string]int `json:"stockpiles"`
	}
	resp.States = map[string]int{}
	err := a.run.Do(ctx, func(e *behavior.Engine) {
		resp.Time = e.Now()
		resp.Passes = e.Passes()
		resp.Agents = e.Count()
		for _, s := range behavior.States() {
			resp.States[s.String()] = len(e.AgentsInState(s))
		}
	})
	if err != nil {
		writeErr(rw, http.StatusServiceUnavailable, err)
		return
	}
	resp.Stockpiles = a.grid.Stockpiles()
	writeJSON(rw, http.StatusOK, resp)
}

func (a *admin) handleAgent(rw http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var (
		resp  agentResponse
		found bool
	)
	err := a.run.Do(ctx, func(e *behavior.Engine) {
		for _, s := range e.Snapshots() {
			if s.AgentID == id {
				resp.Agent, found = s, true
				break
			}
		}
		for _, rec := range e.TaskHistory(id) {
			resp.History = append(resp.History, historyEntry{
				TaskID:   rec.TaskID,
				Kind:     string(rec.Kind),
				TargetID: rec.TargetID,
				Result:   string(rec.Result),
				Started:  rec.Started,
				Finished: rec.Finished,
				Duration: rec.Duration,
			})
		}
	})
	if err != nil {
		writeErr(rw, http.StatusServiceUnavailable, err)
		return
	}
	if !found {
		writeErr(rw, http.StatusNotFound, fmt.Errorf("unknown agent %q", id))
		return
	}
	writeJSON(rw, http.StatusOK, resp)
}

func (a *admin) handleAssign(rw http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req taskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(rw, http.StatusBadRequest, err)
		return
	}
	payload, err := parseTask(req)
	if err != nil {
		writeErr(rw, http.StatusBadRequest, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	var ok bool
	if err := a.run.Do(ctx, func(e *behavior.Engine) {
		ok = e.AssignTask(id, payload, behavior.TaskOptions{Timeout: req.Timeout, Priority: req.Priority})
	}); err != nil {
		writeErr(rw, http.StatusServiceUnavailable, err)
		return
	}
	if !ok {
		writeErr(rw, http.StatusNotFound, fmt.Errorf("unknown agent %q", id))
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "kind": payload.Kind()})
}

func (a *admin) handleCancel(rw http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	var ok bool
	if err := a.run.Do(ctx, func(e *behavior.Engine) { ok = e.CancelTask(id) }); err != nil {
		writeErr(rw, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"ok": ok})
}

func (a *admin) handleUnregister(rw http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	var ok bool
	if err := a.run.Do(ctx, func(e *behavior.Engine) { ok = e.Unregister(id, "Admin") }); err != nil {
		writeErr(rw, http.StatusServiceUnavailable, err)
		return
	}
	if !ok {
		writeErr(rw, http.StatusNotFound, fmt.Errorf("unknown agent %q", id))
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"ok": true})
}

// handleIndexedHistory serves history from the SQLite index, which outlives the
// engine's bounded in-memory history and removed agents.
func (a *admin) handleIndexedHistory(rw http.ResponseWriter, r *http.Request) {
	if a.idx == nil {
		writeErr(rw, http.StatusNotFound, fmt.Errorf("index disabled"))
		return
	}
	recs, err := a.idx.TaskHistory(r.Context(), r.PathValue("id"), 0)
	if err != nil {
		writeErr(rw, http.StatusInternalServerError, err)
		return
	}
	if recs == nil {
		recs = []protocol.TaskRecord{}
	}
	writeJSON(rw, http.StatusOK, recs)
}

func (a *admin) handleSnapshot(rw http.ResponseWriter, r *http.Request) {
	if a.snaps == nil {
		writeErr(rw, http.StatusNotFound, fmt.Errorf("snapshots disabled"))
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	path, err := a.snaps.Save(ctx)
	if err != nil {
		writeErr(rw, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "path": path})
}

// parseTask builds a payload for the task kinds an operator may hand out directly.
// Harvest and build work go through the claim queues and are only assigned by the engine.
func parseTask(req taskRequest) (tasks.Payload, error) {
	pos := func() (geom.Vec3, error) {
		if req.Pos == nil {
			return geom.Vec3{}, fmt.Errorf("%s needs pos", req.Kind)
		}
		return geom.V(req.Pos[0], req.Pos[1], req.Pos[2]), nil
	}
	switch tasks.Kind(strings.ToUpper(strings.TrimSpace(req.Kind))) {
	case tasks.KindMoveTo:
		p, err := pos()
		if err != nil {
			return nil, err
		}
		return tasks.MoveTo{Pos: p}, nil
	case tasks.KindPatrol:
		p, err := pos()
		if err != nil {
			return nil, err
		}
		if req.Radius <= 0 {
			return nil, fmt.Errorf("PATROL needs a positive radius")
		}
		return tasks.Patrol{Center: p, Radius: req.Radius}, nil
	case tasks.KindAttack:
		if req.TargetID == "" {
			return nil, fmt.Errorf("ATTACK needs target_id")
		}
		return tasks.Attack{TargetID: req.TargetID}, nil
	case tasks.KindReturnToBase:
		return tasks.ReturnToBase{}, nil
	case tasks.KindFleeToBase:
		return tasks.FleeToBase{}, nil
	case tasks.KindDeposit:
		return tasks.Deposit{}, nil
	case tasks.KindHarvest, tasks.KindBuild:
		return nil, fmt.Errorf("%s tasks are claimed by the engine", strings.ToUpper(req.Kind))
	default:
		return nil, fmt.Errorf("unknown task kind %q", req.Kind)
	}
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func writeErr(rw http.ResponseWriter, status int, err error) {
	writeJSON(rw, status, map[string]any{"ok": false, "error": err.Error()})
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
