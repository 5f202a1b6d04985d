package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gridlegion.ai/internal/persistence/indexdb"
	"gridlegion.ai/internal/persistence/snapshot"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (default: <data>/index/telemetry.sqlite)")
	agentID := fs.String("agent", "", "agent id (history, states, agent)")
	limit := fs.Int("limit", 0, "result limit for history (0: all)")
	_ = fs.Parse(args)

	q := "results"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "index", "telemetry.sqlite")
	}
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	idx, err := indexdb.OpenSQLite(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer idx.Close()

	ctx := context.Background()
	needAgent := func() string {
		id := strings.TrimSpace(*agentID)
		if id == "" {
			fmt.Fprintf(os.Stderr, "%s needs -agent\n", q)
			os.Exit(2)
		}
		return id
	}

	switch q {
	case "results":
		counts, err := idx.ResultCounts(ctx)
		exitOn(err)
		printJSON(counts)
	case "history":
		recs, err := idx.TaskHistory(ctx, needAgent(), *limit)
		exitOn(err)
		for _, r := range recs {
			printJSON(r)
		}
	case "states":
		changes, err := idx.StateChanges(ctx, needAgent())
		exitOn(err)
		for _, c := range changes {
			printJSON(c)
		}
	case "agent":
		row, ok, err := idx.Agent(ctx, needAgent())
		exitOn(err)
		if !ok {
			fmt.Fprintln(os.Stderr, "unknown agent")
			os.Exit(1)
		}
		printJSON(row)
	case "meta":
		for _, k := range []string{"schema_version", "run_id", "tuning_digest"} {
			v, _, err := idx.Meta(k)
			exitOn(err)
			fmt.Printf("%s=%s\n", k, v)
		}
	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q, "(results|history|states|agent|meta)")
		os.Exit(2)
	}
}

func snapshotsCmd(args []string) {
	fs := flag.NewFlagSet("snapshots", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	path := fs.String("path", "", "print this snapshot's agents instead of listing")
	_ = fs.Parse(args)

	if p := strings.TrimSpace(*path); p != "" {
		snap, err := snapshot.ReadSnapshot(p)
		exitOn(err)
		fmt.Printf("run=%s time=%.2f passes=%d agents=%d nodes=%d blueprints=%d seed=%d\n",
			snap.Header.RunID, snap.Header.Time, snap.Header.Passes, len(snap.Agents), len(snap.Nodes), len(snap.Blueprints), snap.Seed)
		for _, a := range snap.Agents {
			fmt.Printf("  %-16s %-6s %-8s %-10s task=%s carried=%d\n", a.AgentID, a.Owner, a.UnitType, a.State, a.TaskKind, a.CarriedWeight)
		}
		printJSON(snap.Stockpiles)
		return
	}

	files, err := snapshot.List(filepath.Join(*dataDir, "snapshots"))
	exitOn(err)
	for _, f := range files {
		h, err := snapshot.ReadHeader(f)
		if err != nil {
			fmt.Printf("%s: %v\n", filepath.Base(f), err)
			continue
		}
		fmt.Printf("%s run=%s time=%.2f passes=%d agents=%d\n", filepath.Base(f), h.RunID, h.Time, h.Passes, h.Agents)
	}
}

func exitOn(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func printJSON(v any) {
	b, _ := json.Marshal(v)
	fmt.Println(string(b))
}
