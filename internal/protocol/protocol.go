package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	TypeSubscribe    = "SUBSCRIBE"
	TypeAgent        = "AGENT"
	TypeTaskDone     = "TASK_DONE"
	TypeAgentRemoved = "AGENT_REMOVED"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}

// SubscribeMsg is the first frame an observer sends on the telemetry socket.
type SubscribeMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	Owners          []string `json:"owners,omitempty"`
}
