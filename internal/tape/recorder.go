package tape

import (
	"context"
	"sync"
	"time"

	"github.com/pasteldev/agentic-runtime/internal/modelclient"
	"github.com/pasteldev/agentic-runtime/internal/toolregistry"
	"github.com/pasteldev/agentic-runtime/pkg/models"
)

// Recorder wraps a ModelClient, recording every Complete call's request
// and streamed response onto a Tape.
type Recorder struct {
	client  modelclient.ModelClient
	tape    *Tape
	mu      sync.Mutex
	turnIdx int
}

// NewRecorder creates a new recorder wrapping the given client.
func NewRecorder(client modelclient.ModelClient) *Recorder {
	tape := NewTape()
	tape.Metadata["provider"] = client.Name()
	return &Recorder{client: client, tape: tape}
}

// WithModel sets the model in the tape metadata.
func (r *Recorder) WithModel(model string) *Recorder {
	r.tape.Model = model
	return r
}

// WithSystemPrompt sets the system prompt in the tape.
func (r *Recorder) WithSystemPrompt(system string) *Recorder {
	r.tape.SystemPrompt = system
	return r
}

// Name implements modelclient.ModelClient.
func (r *Recorder) Name() string {
	return "recorder:" + r.client.Name()
}

// Complete implements modelclient.ModelClient, recording the request and
// every streamed chunk before forwarding it to the caller.
func (r *Recorder) Complete(ctx context.Context, req modelclient.ChatRequest) (<-chan *modelclient.ResponseChunk, error) {
	r.mu.Lock()
	turnIndex := r.turnIdx
	r.turnIdx++
	r.mu.Unlock()

	start := time.Now()
	upstream, err := r.client.Complete(ctx, req)
	if err != nil {
		return nil, err
	}

	out := make(chan *modelclient.ResponseChunk, 10)

	go func() {
		defer close(out)

		turn := Turn{Index: turnIndex, Request: req}
		var text string

		for chunk := range upstream {
			turn.Chunks = append(turn.Chunks, *chunk)
			if chunk.Text != "" {
				text += chunk.Text
			}
			if chunk.ToolCall != nil {
				turn.ToolCalls = append(turn.ToolCalls, *chunk.ToolCall)
			}
			out <- chunk
		}

		turn.Text = text
		turn.Duration = time.Since(start)
		if len(turn.ToolCalls) > 0 {
			turn.StopReason = "tool_use"
		} else {
			turn.StopReason = "end_turn"
		}

		r.mu.Lock()
		r.tape.AddTurn(turn)
		r.mu.Unlock()
	}()

	return out, nil
}

// RecordToolRun records one tool invocation against the current tape.
func (r *Recorder) RecordToolRun(turnIndex int, call models.ToolCall, content string, structured any, err error, duration time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	run := ToolRun{TurnIndex: turnIndex, Call: call, Content: content, Structured: structured, Duration: duration}
	if err != nil {
		run.Error = err.Error()
	}
	r.tape.AddToolRun(run)
}

// Tape returns a snapshot of the recorded tape.
func (r *Recorder) Tape() *Tape {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tape.Clone()
}

// Reset clears the recording and starts fresh.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tape = NewTape()
	r.tape.Metadata["provider"] = r.client.Name()
	r.turnIdx = 0
}

// RecordingRegistry wraps a ToolRegistry, recording every Invoke call
// against turnIndex, the turn currently being driven by the caller.
type RecordingRegistry struct {
	registry  *toolregistry.Registry
	recorder  *Recorder
	turnIndex int
}

// WrapRegistry returns a RecordingRegistry that records invocations under
// turnIndex, the index of the model turn whose tool calls are being run.
func (r *Recorder) WrapRegistry(registry *toolregistry.Registry, turnIndex int) *RecordingRegistry {
	return &RecordingRegistry{registry: registry, recorder: r, turnIndex: turnIndex}
}

// Invoke runs the named tool through the wrapped registry, recording the
// call and its result.
func (w *RecordingRegistry) Invoke(ctx context.Context, call models.ToolCall) (string, any, error) {
	start := time.Now()
	content, structured, err := w.registry.Invoke(ctx, call.Name, call.Arguments)
	w.recorder.RecordToolRun(w.turnIndex, call, content, structured, err, time.Since(start))
	return content, structured, err
}
