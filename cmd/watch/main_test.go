package main

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"gridlegion.ai/internal/protocol"
)

func TestValidator(t *testing.T) {
	v, err := newValidator(filepath.Join("..", "..", "schemas"))
	if err != nil {
		t.Fatalf("schemas: %v", err)
	}
	good, _ := json.Marshal(protocol.AgentRemoved{
		Type: protocol.TypeAgentRemoved, ProtocolVersion: protocol.Version, Time: 3, AgentID: "U1", Owner: "red", Reason: "Dead",
	})
	if err := v.validate(protocol.TypeAgentRemoved, good); err != nil {
		t.Fatalf("valid frame rejected: %v", err)
	}
	if err := v.validate(protocol.TypeAgent, []byte(`{"type":"AGENT","state":"Dancing"}`)); err == nil {
		t.Fatalf("invalid snapshot accepted")
	}
	if err := v.validate("SOMETHING_ELSE", []byte(`{}`)); err != nil {
		t.Fatalf("unknown types are not validated: %v", err)
	}
}
