// Package tape records a ModelClient's turns and tool results to a JSON
// file, and replays them deterministically so AgentCore can be driven
// through end-to-end scenarios without a live provider.
package tape

import (
	"encoding/json"
	"time"

	"github.com/pasteldev/agentic-runtime/internal/modelclient"
	"github.com/pasteldev/agentic-runtime/pkg/models"
)

// Tape records a complete agent run: every model turn and every tool
// invocation that occurred during it.
type Tape struct {
	Version      string         `json:"version"`
	CreatedAt    time.Time      `json:"created_at"`
	Model        string         `json:"model,omitempty"`
	SystemPrompt string         `json:"system_prompt,omitempty"`
	Turns        []Turn         `json:"turns"`
	ToolRuns     []ToolRun      `json:"tool_runs"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Turn records one ModelClient.Complete call and its streamed response.
type Turn struct {
	Index      int                          `json:"index"`
	Request    modelclient.ChatRequest      `json:"request"`
	Chunks     []modelclient.ResponseChunk  `json:"chunks"`
	ToolCalls  []models.ToolCall            `json:"tool_calls,omitempty"`
	Text       string                       `json:"text,omitempty"`
	StopReason string                       `json:"stop_reason,omitempty"`
	Duration   time.Duration                `json:"duration"`
}

// ToolRun records one ToolRegistry.Invoke call.
type ToolRun struct {
	TurnIndex  int             `json:"turn_index"`
	Call       models.ToolCall `json:"call"`
	Content    string          `json:"content,omitempty"`
	Structured any             `json:"structured,omitempty"`
	Error      string          `json:"error,omitempty"`
	Duration   time.Duration   `json:"duration"`
}

// NewTape creates a new empty tape.
func NewTape() *Tape {
	return &Tape{
		Version:   "1.0",
		CreatedAt: time.Now(),
		Turns:     []Turn{},
		ToolRuns:  []ToolRun{},
		Metadata:  make(map[string]any),
	}
}

// AddTurn adds a turn to the tape.
func (t *Tape) AddTurn(turn Turn) {
	turn.Index = len(t.Turns)
	t.Turns = append(t.Turns, turn)
}

// AddToolRun adds a tool run to the tape.
func (t *Tape) AddToolRun(run ToolRun) {
	t.ToolRuns = append(t.ToolRuns, run)
}

// GetTurn returns the turn at the given index.
func (t *Tape) GetTurn(index int) (*Turn, bool) {
	if index < 0 || index >= len(t.Turns) {
		return nil, false
	}
	return &t.Turns[index], true
}

// GetToolRuns returns all tool runs recorded for a given turn, in
// recording order.
func (t *Tape) GetToolRuns(turnIndex int) []ToolRun {
	var runs []ToolRun
	for _, run := range t.ToolRuns {
		if run.TurnIndex == turnIndex {
			runs = append(runs, run)
		}
	}
	return runs
}

// TotalTurns returns the number of turns in the tape.
func (t *Tape) TotalTurns() int {
	return len(t.Turns)
}

// TotalToolRuns returns the number of tool runs in the tape.
func (t *Tape) TotalToolRuns() int {
	return len(t.ToolRuns)
}

// Marshal serializes the tape to JSON.
func (t *Tape) Marshal() ([]byte, error) {
	return json.MarshalIndent(t, "", "  ")
}

// Unmarshal deserializes a tape from JSON.
func Unmarshal(data []byte) (*Tape, error) {
	var tape Tape
	if err := json.Unmarshal(data, &tape); err != nil {
		return nil, err
	}
	return &tape, nil
}

// Clone creates a deep copy of the tape via a JSON round trip, falling
// back to a shallow struct copy plus sliced fields if marshaling fails.
func (t *Tape) Clone() *Tape {
	if data, err := t.Marshal(); err == nil {
		if clone, err := Unmarshal(data); err == nil {
			return clone
		}
	}
	clone := *t
	if t.Metadata != nil {
		clone.Metadata = make(map[string]any, len(t.Metadata))
		for k, v := range t.Metadata {
			clone.Metadata[k] = v
		}
	}
	clone.Turns = append([]Turn(nil), t.Turns...)
	clone.ToolRuns = append([]ToolRun(nil), t.ToolRuns...)
	return &clone
}

// Summary returns a brief summary of the tape contents.
func (t *Tape) Summary() TapeSummary {
	var totalChunks, totalText int
	for _, turn := range t.Turns {
		totalChunks += len(turn.Chunks)
		totalText += len(turn.Text)
	}
	return TapeSummary{
		Version:      t.Version,
		CreatedAt:    t.CreatedAt,
		Model:        t.Model,
		TurnCount:    len(t.Turns),
		ToolRunCount: len(t.ToolRuns),
		TotalChunks:  totalChunks,
		TotalTextLen: totalText,
	}
}

// TapeSummary is a brief overview of a tape.
type TapeSummary struct {
	Version      string    `json:"version"`
	CreatedAt    time.Time `json:"created_at"`
	Model        string    `json:"model,omitempty"`
	TurnCount    int       `json:"turn_count"`
	ToolRunCount int       `json:"tool_run_count"`
	TotalChunks  int       `json:"total_chunks"`
	TotalTextLen int       `json:"total_text_len"`
}
