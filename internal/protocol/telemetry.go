package protocol

// Change reasons carried on AgentSnapshot.
const (
	ChangeRegister  = "REGISTER"
	ChangeState     = "STATE"
	ChangeTask      = "TASK"
	ChangeInventory = "INVENTORY"
)

type Vec3 [3]float64

type Counters struct {
	TasksCompleted     int `json:"tasks_completed"`
	TasksCancelled     int `json:"tasks_cancelled"`
	ResourcesHarvested int `json:"resources_harvested"`
	ResourcesDeposited int `json:"resources_deposited"`
	StuckRecoveries    int `json:"stuck_recoveries"`
	PathSearches       int `json:"path_searches"`
}

// AgentSnapshot mirrors the fields presentation layers replicate for one agent.
type AgentSnapshot struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	Time            float64 `json:"time"`
	Reason          string  `json:"reason"`

	AgentID  string `json:"agent_id"`
	Owner    string `json:"owner"`
	UnitType string `json:"unit_type"`
	State    string `json:"state"`
	Position Vec3   `json:"position"`

	TaskID       string `json:"task_id,omitempty"`
	TaskKind     string `json:"task_kind,omitempty"`
	TaskTargetID string `json:"task_target_id,omitempty"`
	TaskTarget   *Vec3  `json:"task_target,omitempty"`

	Carried          map[string]int `json:"carried"`
	CarriedWeight    int            `json:"carried_weight"`
	CapacityFraction float64        `json:"capacity_fraction"`
	ThreatLevel      int            `json:"threat_level"`

	Counters Counters `json:"counters"`
}

type TaskRecord struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	AgentID         string  `json:"agent_id"`
	Owner           string  `json:"owner"`
	TaskID          string  `json:"task_id"`
	Kind            string  `json:"kind"`
	TargetID        string  `json:"target_id,omitempty"`
	Result          string  `json:"result"`
	Started         float64 `json:"started"`
	Finished        float64 `json:"finished"`
	Duration        float64 `json:"duration"`
}

type AgentRemoved struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	Time            float64 `json:"time"`
	AgentID         string  `json:"agent_id"`
	Owner           string  `json:"owner"`
	Reason          string  `json:"reason"`
}
