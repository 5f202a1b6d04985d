package main

import (
	"context"
	"log"
	"path/filepath"
	"time"

	"gridlegion.ai/internal/persistence/snapshot"
	"gridlegion.ai/internal/sim/behavior"
	"gridlegion.ai/internal/sim/gridstate"
)

type snapshotter struct {
	run    *runner
	grid   *gridstate.State
	dir    string
	runID  string
	seed   int64
	digest string
	keep   int
	log    *log.Logger
}

// capture builds a snapshot on the engine goroutine; the grid is read directly since
// it guards itself.
func (s *snapshotter) capture(ctx context.Context) (snapshot.SnapshotV1, error) {
	snap := snapshot.SnapshotV1{
		Seed:         s.seed,
		TuningDigest: s.digest,
	}
	err := s.run.Do(ctx, func(e *behavior.Engine) {
		snap.Header = snapshot.Header{RunID: s.runID, Time: e.Now(), Passes: e.Passes()}
		snap.Agents = e.Snapshots()
		snap.Nodes = s.grid.ResourceNodes()
		snap.Blueprints = s.grid.Blueprints()
		snap.Stockpiles = s.grid.Stockpiles()
	})
	return snap, err
}

// Save captures and writes one snapshot, returning its path.
func (s *snapshotter) Save(ctx context.Context) (string, error) {
	snap, err := s.capture(ctx)
	if err != nil {
		return "", err
	}
	path := filepath.Join(s.dir, snapshot.FileName(snap.Header.Time))
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		return "", err
	}
	if s.keep > 0 {
		if err := snapshot.Prune(s.dir, s.keep); err != nil {
			s.log.Printf("snapshot prune: %v", err)
		}
	}
	return path, nil
}

// Loop saves a snapshot every interval of wall time until ctx is done.
func (s *snapshotter) Loop(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			path, err := s.Save(ctx)
			if err != nil {
				if ctx.Err() == nil {
					s.log.Printf("snapshot write: %v", err)
				}
				continue
			}
			s.log.Printf("snapshot written: %s", filepath.Base(path))
		}
	}
}
