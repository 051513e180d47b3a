package models

import "time"

// LifecycleState is the run state of an AgentCore or the overall runtime.
type LifecycleState string

const (
	StateIdle     LifecycleState = "idle"
	StateRunning  LifecycleState = "running"
	StatePaused   LifecycleState = "paused"
	StateStopping LifecycleState = "stopping"
	StateStopped  LifecycleState = "stopped"
	StateError    LifecycleState = "error"
)

// AgentStatus is a point-in-time snapshot published on the StatusBus,
// rebuilt on any meaningful change rather than polled.
type AgentStatus struct {
	State               LifecycleState `json:"state"`
	LoopCount           int64          `json:"loop_count"`
	CumulativeTokens    int64          `json:"cumulative_tokens"`
	LastAction          string         `json:"last_action"`
	ContextUsagePercent float64        `json:"context_usage_percent"`
	PendingPrompts      int            `json:"pending_prompts"`
	// Todos is an opaque snapshot of the agent's current task list, carried
	// through without interpretation by the status bus.
	Todos     any       `json:"todos,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}
