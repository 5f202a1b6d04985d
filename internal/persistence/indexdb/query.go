package indexdb

import (
	"context"
	"database/sql"

	"gridlegion.ai/internal/protocol"
)

type StateChange struct {
	Time     float64
	State    string
	TaskKind string
}

type AgentRow struct {
	AgentID       string
	Owner         string
	UnitType      string
	RegisteredAt  float64
	Removed       bool
	RemovedAt     float64
	RemovalReason string
}

// TaskHistory returns an agent's finished tasks, oldest first. limit <= 0 returns all.
func (s *SQLiteIndex) TaskHistory(ctx context.Context, agentID string, limit int) ([]protocol.TaskRecord, error) {
	q := `SELECT task_id, owner, kind, COALESCE(target_id,''), result, started, finished, duration
		FROM task_history WHERE agent_id=? ORDER BY finished, task_id`
	args := []any{agentID}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []protocol.TaskRecord
	for rows.Next() {
		r := protocol.TaskRecord{
			Type:            protocol.TypeTaskDone,
			ProtocolVersion: protocol.Version,
			AgentID:         agentID,
		}
		if err := rows.Scan(&r.TaskID, &r.Owner, &r.Kind, &r.TargetID, &r.Result, &r.Started, &r.Finished, &r.Duration); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) StateChanges(ctx context.Context, agentID string) ([]StateChange, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT time, state, COALESCE(task_kind,'') FROM state_changes WHERE agent_id=? ORDER BY seq`, agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StateChange
	for rows.Next() {
		var c StateChange
		if err := rows.Scan(&c.Time, &c.State, &c.TaskKind); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ResultCounts tallies finished tasks by kind and result.
func (s *SQLiteIndex) ResultCounts(ctx context.Context) (map[string]map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT kind, result, COUNT(*) FROM task_history GROUP BY kind, result`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]map[string]int{}
	for rows.Next() {
		var kind, result string
		var n int
		if err := rows.Scan(&kind, &result, &n); err != nil {
			return nil, err
		}
		if out[kind] == nil {
			out[kind] = map[string]int{}
		}
		out[kind][result] = n
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) Agent(ctx context.Context, agentID string) (AgentRow, bool, error) {
	var (
		r         AgentRow
		removedAt sql.NullFloat64
		reason    sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT agent_id, owner, unit_type, registered_at, removed_at, removal_reason FROM agents WHERE agent_id=?`, agentID).
		Scan(&r.AgentID, &r.Owner, &r.UnitType, &r.RegisteredAt, &removedAt, &reason)
	if err == sql.ErrNoRows {
		return AgentRow{}, false, nil
	}
	if err != nil {
		return AgentRow{}, false, err
	}
	r.Removed = removedAt.Valid
	r.RemovedAt = removedAt.Float64
	r.RemovalReason = reason.String
	return r, true, nil
}
