package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"gridlegion.ai/internal/persistence/indexdb"
	persistlog "gridlegion.ai/internal/persistence/log"
	"gridlegion.ai/internal/sim/behavior"
	"gridlegion.ai/internal/sim/scenario"
	"gridlegion.ai/internal/sim/tuning"
	"gridlegion.ai/internal/transport/ws"
)

func main() {
	var (
		addr         = flag.String("addr", ":8080", "http listen address")
		configDir    = flag.String("configs", "./configs", "config directory")
		tuningPath   = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		scenarioPath = flag.String("scenario", "", "path to scenario.yaml (default: <configs>/scenario.yaml; built-in scenario if missing)")
		dataDir      = flag.String("data", "./data", "runtime data directory")
		disableDB    = flag.Bool("disable_db", false, "disable the sqlite telemetry index")
		seed         = flag.Int64("seed", 1337, "engine seed")
		tickHz       = flag.Float64("tick_hz", 20, "real-time Advance calls per second")
		speed        = flag.Float64("speed", 1, "simulation time units per wall second")
		maxTime      = flag.Float64("max_time", 0, "stop after this much simulation time (0: run until signalled)")
		enablePprof  = flag.Bool("pprof", false, "serve /debug/pprof")
		snapEvery    = flag.Float64("snapshot_every", 60, "simulation time between state snapshots (0 disables)")
		snapKeep     = flag.Int("snapshot_keep", 20, "snapshots to keep on disk (0 keeps all)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)
	runID := uuid.NewString()
	logger.Printf("run id=%s seed=%d", runID, *seed)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}

	sp := strings.TrimSpace(*scenarioPath)
	if sp == "" {
		sp = filepath.Join(*configDir, "scenario.yaml")
		if _, err := os.Stat(sp); err != nil {
			logger.Printf("scenario not found (%s); using built-in scenario", sp)
			sp = ""
		}
	}
	scn, err := scenario.Load(sp)
	if err != nil {
		logger.Fatalf("load scenario: %v", err)
	}

	// Telemetry sinks. The JSONL log is the source of truth; the index and hub are views.
	telLog := persistlog.NewTelemetryLogger(*dataDir)
	defer func() {
		if n, err := telLog.Err(); n > 0 {
			logger.Printf("telemetry log: %d failed writes, first: %v", n, err)
		}
		_ = telLog.Close()
	}()
	sinks := behavior.Fanout{telLog}

	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(*dataDir, "index", "telemetry.sqlite"))
		if err != nil {
			logger.Fatalf("open index: %v", err)
		}
		defer idx.Close()
		if err := idx.UpsertTuning(tune, runID); err != nil {
			logger.Printf("index: upsert tuning: %v", err)
		}
		sinks = append(sinks, idx)
	}

	hub := ws.NewHub(logger)
	sinks = append(sinks, hub)

	grid := scn.Build()
	engine := behavior.New(behavior.Config{
		Tuning:    tune,
		Grid:      grid,
		World:     grid,
		Telemetry: sinks,
		Logger:    log.New(os.Stdout, "[engine] ", log.LstdFlags|log.Lmicroseconds),
		Seed:      *seed,
	})
	bodies, err := scn.Spawn(engine, grid)
	if err != nil {
		logger.Fatalf("spawn: %v", err)
	}
	logger.Printf("spawned %d agents on a %dx%d grid", len(bodies), scn.Grid.Width, scn.Grid.Depth)

	ctx, cancel := signalContext()
	defer cancel()

	run := newRunner(engine, logger, *tickHz, *speed, *maxTime)
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		defer cancel()
		if err := run.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Printf("engine stopped: %v", err)
		}
	}()

	snaps := &snapshotter{
		run:    run,
		grid:   grid,
		dir:    filepath.Join(*dataDir, "snapshots"),
		runID:  runID,
		seed:   *seed,
		digest: tune.Digest(),
		keep:   *snapKeep,
		log:    logger,
	}
	if *snapEvery > 0 {
		go snaps.Loop(ctx, time.Duration(*snapEvery / *speed * float64(time.Second)))
	}

	adm := &admin{run: run, grid: grid, idx: idx, hub: hub, snaps: snaps}
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", adm.handleMetrics)
	adm.register(mux)
	mux.HandleFunc("/v1/ws", hub.Handler())
	mux.HandleFunc("/v1/agents", hub.AgentsHandler())
	if *enablePprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
	<-runDone

	if idx != nil {
		ctx3, cancel3 := context.WithTimeout(context.Background(), 5*time.Second)
		_ = idx.Flush(ctx3)
		cancel3()
		st := idx.Stats()
		logger.Printf("index drops: agent=%d task=%d removed=%d", st.DropAgentTotal, st.DropTaskTotal, st.DropRemovedTotal)
	}
	logger.Printf("stopped at t=%.2f after %d passes, %d telemetry lines", engine.Now(), engine.Passes(), telLog.Lines())
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
