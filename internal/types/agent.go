package types

import "time"

// AgentStatus is whether the agent performs work on ticks.
type AgentStatus string

// Agent statuses.
const (
	AgentRunning AgentStatus = "running"
	AgentPaused  AgentStatus = "paused"
)

// AgentState is the process-wide agent switch, persisted as a single row.
type AgentState struct {
	Status    AgentStatus `json:"status"`
	UpdatedAt time.Time   `json:"updatedAt"`
	UpdatedBy Actor       `json:"updatedBy"`
}

// DefaultAgentState is the state used when none has been stored yet.
func DefaultAgentState() AgentState {
	return AgentState{Status: AgentRunning, UpdatedBy: ActorAgent}
}

// ActionCount tallies outcomes for one action kind in a tick.
type ActionCount struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// TickSummary reports what a tick did.
type TickSummary struct {
	Paused     bool                   `json:"paused"`
	Selected   int                    `json:"selected"`
	Actions    map[string]ActionCount `json:"actions"`
	StartedAt  time.Time              `json:"startedAt"`
	DurationMS int64                  `json:"durationMs"`
}

// Total returns the number of items the tick attempted.
func (s TickSummary) Total() int {
	n := 0
	for _, c := range s.Actions {
		n += c.Succeeded + c.Failed
	}
	return n
}
