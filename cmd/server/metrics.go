package main

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"gridlegion.ai/internal/sim/behavior"
)

// handleMetrics writes a minimal Prometheus exposition.
func (a *admin) handleMetrics(rw http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	var (
		now    float64
		passes uint64
		agents int
		states = map[string]int{}
	)
	if err := a.run.Do(ctx, func(e *behavior.Engine) {
		now, passes, agents = e.Now(), e.Passes(), e.Count()
		for _, s := range behavior.States() {
			states[s.String()] = len(e.AgentsInState(s))
		}
	}); err != nil {
		http.Error(rw, err.Error(), http.StatusServiceUnavailable)
		return
	}

	rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

	fmt.Fprintf(rw, "# HELP gridlegion_engine_time Engine time in simulation units.\n")
	fmt.Fprintf(rw, "# TYPE gridlegion_engine_time gauge\n")
	fmt.Fprintf(rw, "gridlegion_engine_time %.3f\n", now)

	fmt.Fprintf(rw, "# HELP gridlegion_engine_passes Scheduler passes run.\n")
	fmt.Fprintf(rw, "# TYPE gridlegion_engine_passes counter\n")
	fmt.Fprintf(rw, "gridlegion_engine_passes %d\n", passes)

	fmt.Fprintf(rw, "# HELP gridlegion_engine_step_ms Last Advance duration in milliseconds.\n")
	fmt.Fprintf(rw, "# TYPE gridlegion_engine_step_ms gauge\n")
	fmt.Fprintf(rw, "gridlegion_engine_step_ms %.3f\n", a.run.StepMS())

	fmt.Fprintf(rw, "# HELP gridlegion_agents Registered agents.\n")
	fmt.Fprintf(rw, "# TYPE gridlegion_agents gauge\n")
	fmt.Fprintf(rw, "gridlegion_agents %d\n", agents)

	fmt.Fprintf(rw, "# HELP gridlegion_agents_by_state Registered agents per state.\n")
	fmt.Fprintf(rw, "# TYPE gridlegion_agents_by_state gauge\n")
	for _, s := range behavior.States() {
		fmt.Fprintf(rw, "gridlegion_agents_by_state{state=%q} %d\n", s.String(), states[s.String()])
	}

	fmt.Fprintf(rw, "# HELP gridlegion_stockpile Deposited resources per team.\n")
	fmt.Fprintf(rw, "# TYPE gridlegion_stockpile gauge\n")
	piles := a.grid.Stockpiles()
	teams := make([]string, 0, len(piles))
	for team := range piles {
		teams = append(teams, team)
	}
	sort.Strings(teams)
	for _, team := range teams {
		kinds := make([]string, 0, len(piles[team]))
		for k := range piles[team] {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			fmt.Fprintf(rw, "gridlegion_stockpile{team=%q,kind=%q} %d\n", team, k, piles[team][k])
		}
	}

	if a.hub != nil {
		fmt.Fprintf(rw, "# HELP gridlegion_observers Connected telemetry observers.\n")
		fmt.Fprintf(rw, "# TYPE gridlegion_observers gauge\n")
		fmt.Fprintf(rw, "gridlegion_observers %d\n", a.hub.Clients())
		fmt.Fprintf(rw, "# HELP gridlegion_observer_dropped_frames Frames dropped for slow observers.\n")
		fmt.Fprintf(rw, "# TYPE gridlegion_observer_dropped_frames counter\n")
		fmt.Fprintf(rw, "gridlegion_observer_dropped_frames %d\n", a.hub.Dropped())
	}

	if a.idx != nil {
		st := a.idx.Stats()
		fmt.Fprintf(rw, "# HELP gridlegion_index_queue_depth Pending index writes.\n")
		fmt.Fprintf(rw, "# TYPE gridlegion_index_queue_depth gauge\n")
		fmt.Fprintf(rw, "gridlegion_index_queue_depth %d\n", st.QueueDepth)
		fmt.Fprintf(rw, "# HELP gridlegion_index_dropped Index writes dropped on a full queue.\n")
		fmt.Fprintf(rw, "# TYPE gridlegion_index_dropped counter\n")
		fmt.Fprintf(rw, "gridlegion_index_dropped{kind=%q} %d\n", "agent", st.DropAgentTotal)
		fmt.Fprintf(rw, "gridlegion_index_dropped{kind=%q} %d\n", "task", st.DropTaskTotal)
		fmt.Fprintf(rw, "gridlegion_index_dropped{kind=%q} %d\n", "removed", st.DropRemovedTotal)
	}
}
