package indexdb

import (
	"testing"

	"gridlegion.ai/internal/protocol"
)

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqTask}

	s.TaskFinished(protocol.TaskRecord{TaskID: "T1"})
	s.AgentRemoved(protocol.AgentRemoved{AgentID: "U1"})
	s.AgentChanged(protocol.AgentSnapshot{Reason: protocol.ChangeState, AgentID: "U1"})
	s.AgentChanged(protocol.AgentSnapshot{Reason: protocol.ChangeState, AgentID: "U1"})

	st := s.Stats()
	if st.DropTaskTotal != 1 || st.DropRemovedTotal != 1 || st.DropAgentTotal != 2 {
		t.Fatalf("unexpected drop counters: %+v", st)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("unexpected queue stats: %+v", st)
	}
}

func TestSQLiteIndex_IgnoresNonStateSnapshots(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 4)}
	s.AgentChanged(protocol.AgentSnapshot{Reason: protocol.ChangeInventory, AgentID: "U1"})
	s.AgentChanged(protocol.AgentSnapshot{Reason: protocol.ChangeTask, AgentID: "U1"})
	if got := len(s.ch); got != 0 {
		t.Fatalf("queued %d snapshots, want 0", got)
	}
}
