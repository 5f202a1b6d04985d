package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"gridlegion.ai/internal/protocol"
	"gridlegion.ai/internal/sim/tuning"
)

// SQLiteIndex is a queryable secondary index of the telemetry stream. Writes are queued
// to a single writer goroutine and dropped when the queue is full; the JSONL logs remain
// the source of truth.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropAgent   atomic.Uint64
	dropTask    atomic.Uint64
	dropRemoved atomic.Uint64
}

type reqKind int

const (
	reqAgent reqKind = iota + 1
	reqTask
	reqRemoved
	reqFlush
)

type req struct {
	kind reqKind

	agent   protocol.AgentSnapshot
	task    protocol.TaskRecord
	removed protocol.AgentRemoved
	done    chan struct{}
}

type Stats struct {
	DropAgentTotal   uint64
	DropTaskTotal    uint64
	DropRemovedTotal uint64
	QueueDepth       int
	QueueCapacity    int
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite pragmas: %w", err)
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS tuning (
			digest TEXT PRIMARY KEY,
			json TEXT NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS agents (
			agent_id TEXT PRIMARY KEY,
			owner TEXT NOT NULL,
			unit_type TEXT NOT NULL,
			registered_at REAL NOT NULL,
			removed_at REAL,
			removal_reason TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_agents_owner ON agents(owner);`,
		`CREATE TABLE IF NOT EXISTS state_changes (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			time REAL NOT NULL,
			agent_id TEXT NOT NULL,
			state TEXT NOT NULL,
			task_kind TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_state_changes_agent ON state_changes(agent_id, time);`,
		`CREATE TABLE IF NOT EXISTS task_history (
			task_id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			owner TEXT NOT NULL,
			kind TEXT NOT NULL,
			target_id TEXT,
			result TEXT NOT NULL,
			started REAL NOT NULL,
			finished REAL NOT NULL,
			duration REAL NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_task_history_agent ON task_history(agent_id, finished);`,
		`CREATE INDEX IF NOT EXISTS idx_task_history_result ON task_history(kind, result);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		DropAgentTotal:   s.dropAgent.Load(),
		DropTaskTotal:    s.dropTask.Load(),
		DropRemovedTotal: s.dropRemoved.Load(),
		QueueDepth:       len(s.ch),
		QueueCapacity:    cap(s.ch),
	}
}

func (s *SQLiteIndex) enqueue(r req, drops *atomic.Uint64) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- r:
	default:
		drops.Add(1)
	}
}

// AgentChanged indexes registrations and state transitions; other snapshot reasons are
// only kept in the JSONL stream.
func (s *SQLiteIndex) AgentChanged(snap protocol.AgentSnapshot) {
	if snap.Reason != protocol.ChangeRegister && snap.Reason != protocol.ChangeState {
		return
	}
	s.enqueue(req{kind: reqAgent, agent: snap}, &s.dropAgent)
}

func (s *SQLiteIndex) TaskFinished(r protocol.TaskRecord) {
	s.enqueue(req{kind: reqTask, task: r}, &s.dropTask)
}

func (s *SQLiteIndex) AgentRemoved(r protocol.AgentRemoved) {
	s.enqueue(req{kind: reqRemoved, removed: r}, &s.dropRemoved)
}

// Flush blocks until everything queued so far is committed, or ctx is done.
func (s *SQLiteIndex) Flush(ctx context.Context) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	done := make(chan struct{})
	select {
	case s.ch <- req{kind: reqFlush, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// UpsertTuning stores the tuning actually applied, keyed by the digest of its canonical JSON.
func (s *SQLiteIndex) UpsertTuning(tune tuning.Tuning, runID string) error {
	if s == nil {
		return nil
	}
	b, err := json.Marshal(tune)
	if err != nil {
		return err
	}
	digest := tune.Digest()
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('tuning_digest',?)`, digest); err != nil {
		return err
	}
	if runID != "" {
		if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('run_id',?)`, runID); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(`INSERT OR IGNORE INTO tuning(digest,json,recorded_at) VALUES(?,?,?)`, digest, string(b), now); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteIndex) Meta(key string) (string, bool, error) {
	var v string
	err := s.db.QueryRow(`SELECT value FROM meta WHERE key=?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertAgent, _ := s.db.Prepare(`INSERT OR REPLACE INTO agents(agent_id,owner,unit_type,registered_at,removed_at,removal_reason) VALUES(?,?,?,?,NULL,NULL)`)
	insertState, _ := s.db.Prepare(`INSERT INTO state_changes(time,agent_id,state,task_kind) VALUES(?,?,?,?)`)
	insertTask, _ := s.db.Prepare(`INSERT OR REPLACE INTO task_history(task_id,agent_id,owner,kind,target_id,result,started,finished,duration) VALUES(?,?,?,?,?,?,?,?,?)`)
	markRemoved, _ := s.db.Prepare(`UPDATE agents SET removed_at=?, removal_reason=? WHERE agent_id=?`)
	defer func() {
		for _, st := range []*sql.Stmt{insertAgent, insertState, insertTask, markRemoved} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) {
		if st == nil || tx == nil {
			return
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return
		}
		opCount++
	}

	idle := time.NewTicker(commitMaxWait)
	defer idle.Stop()

	for {
		var r req
		select {
		case rr, ok := <-s.ch:
			if !ok {
				commit()
				return
			}
			r = rr
		case <-idle.C:
			if tx != nil && time.Since(lastCommit) >= commitMaxWait {
				commit()
			}
			continue
		}
		if r.kind == reqFlush {
			commit()
			close(r.done)
			continue
		}
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqAgent:
			a := r.agent
			if a.Reason == protocol.ChangeRegister {
				exec(insertAgent, a.AgentID, a.Owner, a.UnitType, a.Time)
			}
			exec(insertState, a.Time, a.AgentID, a.State, nullable(a.TaskKind))
		case reqTask:
			t := r.task
			exec(insertTask, t.TaskID, t.AgentID, t.Owner, t.Kind, nullable(t.TargetID), t.Result, t.Started, t.Finished, t.Duration)
		case reqRemoved:
			rm := r.removed
			exec(markRemoved, rm.Time, rm.Reason, rm.AgentID)
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
