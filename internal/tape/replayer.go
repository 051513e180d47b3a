package tape

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pasteldev/agentic-runtime/internal/modelclient"
	"github.com/pasteldev/agentic-runtime/pkg/models"
)

// ErrTapeExhausted indicates the tape has no more turns to replay.
var ErrTapeExhausted = errors.New("tape exhausted: no more turns to replay")

// ErrToolNotInTape indicates a tool call has no corresponding recorded run.
var ErrToolNotInTape = errors.New("tool call not found in tape")

// ErrTapeMismatch indicates a replayed tool call's name doesn't match the
// recorded one at the same position.
var ErrTapeMismatch = errors.New("tape mismatch: call differs from recorded")

// ReplayMode controls how strictly the replayer matches requests.
type ReplayMode int

const (
	// ReplayStrict records a Mismatch whenever a replayed request's model
	// or message count differs from what was recorded.
	ReplayStrict ReplayMode = iota
	// ReplayLoose ignores request differences and just returns recorded
	// responses in order.
	ReplayLoose
)

// Mismatch records a difference between an expected (recorded) and actual
// (replayed) request field.
type Mismatch struct {
	TurnIndex int    `json:"turn_index"`
	Field     string `json:"field"`
	Expected  string `json:"expected"`
	Actual    string `json:"actual"`
}

// Replayer implements modelclient.ModelClient by returning tape turns in
// recorded order, so AgentCore can be driven deterministically in tests.
type Replayer struct {
	tape       *Tape
	mode       ReplayMode
	turnIdx    int
	toolRunIdx map[int]int
	mu         sync.Mutex
	mismatches []Mismatch
}

// NewReplayer creates a replayer from a tape, cloning it so replay never
// mutates the caller's copy.
func NewReplayer(tape *Tape) *Replayer {
	return &Replayer{
		tape:       tape.Clone(),
		mode:       ReplayLoose,
		toolRunIdx: make(map[int]int),
	}
}

// WithMode sets the replay mode.
func (r *Replayer) WithMode(mode ReplayMode) *Replayer {
	r.mode = mode
	return r
}

// Name implements modelclient.ModelClient.
func (r *Replayer) Name() string { return "replayer" }

// Complete implements modelclient.ModelClient, streaming back the next
// recorded turn's chunks.
func (r *Replayer) Complete(ctx context.Context, req modelclient.ChatRequest) (<-chan *modelclient.ResponseChunk, error) {
	r.mu.Lock()
	if r.turnIdx >= len(r.tape.Turns) {
		r.mu.Unlock()
		return nil, ErrTapeExhausted
	}
	turn := r.tape.Turns[r.turnIdx]
	currentTurn := r.turnIdx
	r.turnIdx++
	r.mu.Unlock()

	if r.mode == ReplayStrict {
		r.checkMismatches(currentTurn, req, turn.Request)
	}

	out := make(chan *modelclient.ResponseChunk, len(turn.Chunks)+1)
	go func() {
		defer close(out)
		for i := range turn.Chunks {
			chunk := turn.Chunks[i]
			select {
			case <-ctx.Done():
				out <- &modelclient.ResponseChunk{Error: ctx.Err(), Done: true}
				return
			case out <- &chunk:
			}
		}
	}()
	return out, nil
}

func (r *Replayer) checkMismatches(turnIndex int, actual, expected modelclient.ChatRequest) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if expected.Model != "" && actual.Model != expected.Model {
		r.mismatches = append(r.mismatches, Mismatch{
			TurnIndex: turnIndex, Field: "model", Expected: expected.Model, Actual: actual.Model,
		})
	}
	if len(actual.Messages) != len(expected.Messages) {
		r.mismatches = append(r.mismatches, Mismatch{
			TurnIndex: turnIndex,
			Field:     "message_count",
			Expected:  fmt.Sprintf("%d", len(expected.Messages)),
			Actual:    fmt.Sprintf("%d", len(actual.Messages)),
		})
	}
}

// Mismatches returns any recorded mismatches from strict mode.
func (r *Replayer) Mismatches() []Mismatch {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Mismatch{}, r.mismatches...)
}

// Reset rewinds the replayer to the beginning of the tape.
func (r *Replayer) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.turnIdx = 0
	r.toolRunIdx = make(map[int]int)
	r.mismatches = nil
}

// CurrentTurn returns the index of the next turn to be replayed.
func (r *Replayer) CurrentTurn() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.turnIdx
}

// ToolResult returns the next recorded result for name at the most
// recently replayed turn, advancing past it. Callers drive this from a
// ToolRegistry's Handler in place of calling the real tool during replay.
func (r *Replayer) ToolResult(name string) (string, any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	turnIndex := r.turnIdx - 1
	if turnIndex < 0 {
		turnIndex = 0
	}

	runs := r.tape.GetToolRuns(turnIndex)
	runIdx := r.toolRunIdx[turnIndex]
	if runIdx >= len(runs) {
		return "", nil, fmt.Errorf("%w: %s at turn %d", ErrToolNotInTape, name, turnIndex)
	}

	run := runs[runIdx]
	r.toolRunIdx[turnIndex] = runIdx + 1

	if run.Call.Name != name {
		return "", nil, fmt.Errorf("%w: expected %s, got %s", ErrTapeMismatch, run.Call.Name, name)
	}
	if run.Error != "" {
		return "", nil, errors.New(run.Error)
	}
	return run.Content, run.Structured, nil
}

// ReplayHandler builds a models.ToolHandler that serves recorded results
// for name from r, for registering in place of a tool's real handler
// during replay.
func (r *Replayer) ReplayHandler(name string) models.ToolHandler {
	return func(ctx context.Context, args map[string]any) (string, any, error) {
		return r.ToolResult(name)
	}
}

// ToolCall is a helper for building tool calls in tests.
func ToolCall(id, name string, arguments map[string]any) models.ToolCall {
	return models.ToolCall{ID: id, Name: name, Arguments: arguments}
}
