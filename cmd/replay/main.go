package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	persistlog "gridlegion.ai/internal/persistence/log"
)

func main() {
	var (
		dataDir = flag.String("data", "./data", "runtime data directory")
		dir     = flag.String("telemetry", "", "telemetry dir containing telemetry-*.jsonl.zst (default: <data>/telemetry)")
		agentID = flag.String("agent", "", "only print this agent's summary")
	)
	flag.Parse()

	d := strings.TrimSpace(*dir)
	if d == "" {
		d = filepath.Join(*dataDir, "telemetry")
	}
	files, err := persistlog.ListFiles(d, "telemetry")
	if err != nil {
		fmt.Fprintln(os.Stderr, "list telemetry:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no telemetry files found in", d)
		os.Exit(1)
	}

	s := newSummary()
	for _, path := range files {
		if err := persistlog.ReadLines(path, s.Apply); err != nil {
			fmt.Fprintln(os.Stderr, "replay:", err)
			os.Exit(1)
		}
	}

	fmt.Printf("replay ok: files=%d lines=%d agents=%d last_time=%.2f\n", len(files), s.lines, len(s.agents), s.last)
	for _, a := range s.Agents() {
		if *agentID != "" && a.ID != *agentID {
			continue
		}
		status := a.LastState
		if a.Removed {
			status = "removed:" + a.RemovedBy
		}
		fmt.Printf("%-16s owner=%-6s type=%-8s %-20s tasks=%d harvested=%d deposited=%d stuck_recoveries=%d searches=%d\n",
			a.ID, a.Owner, a.UnitType, status, a.Tasks, a.Harvested, a.Deposited, a.Recoveries, a.Searches)
		for _, r := range sortedKeys(a.Results) {
			fmt.Printf("    %-24s %d\n", r, a.Results[r])
		}
	}
	if *agentID != "" {
		return
	}
	fmt.Println("results by kind:")
	for _, k := range sortedKeys(s.results) {
		for _, r := range sortedKeys(s.results[k]) {
			fmt.Printf("  %-16s %-24s %d\n", k, r, s.results[k][r])
		}
	}
}
