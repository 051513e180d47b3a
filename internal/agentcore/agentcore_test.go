package agentcore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/pasteldev/agentic-runtime/internal/contextmgr"
	"github.com/pasteldev/agentic-runtime/internal/enhancedlog"
	"github.com/pasteldev/agentic-runtime/internal/modelclient"
	"github.com/pasteldev/agentic-runtime/internal/observability"
	"github.com/pasteldev/agentic-runtime/internal/promptqueue"
	"github.com/pasteldev/agentic-runtime/internal/statusbus"
	"github.com/pasteldev/agentic-runtime/internal/toolregistry"
	"github.com/pasteldev/agentic-runtime/pkg/models"
)

// queuedClient streams one queued []*modelclient.ResponseChunk response per
// call to Complete, grounded on the teacher's loopTestProvider pattern of a
// per-call response queue.
type queuedClient struct {
	responses [][]*modelclient.ResponseChunk
	call      int
}

func (c *queuedClient) Name() string { return "queued-test" }

func (c *queuedClient) Complete(ctx context.Context, req modelclient.ChatRequest) (<-chan *modelclient.ResponseChunk, error) {
	ch := make(chan *modelclient.ResponseChunk, 10)
	idx := c.call
	c.call++
	go func() {
		defer close(ch)
		if idx >= len(c.responses) {
			ch <- &modelclient.ResponseChunk{Done: true}
			return
		}
		for _, chunk := range c.responses[idx] {
			ch <- chunk
		}
	}()
	return ch, nil
}

func newTestCore(t *testing.T, client modelclient.ModelClient, worker bool) *AgentCore {
	t.Helper()
	ctxMgr, err := contextmgr.New(client, contextmgr.Config{SummarizerModel: "test-model"})
	if err != nil {
		t.Fatalf("contextmgr.New: %v", err)
	}
	registry := toolregistry.New()
	return New(Config{
		Model:     client,
		ModelName: "test-model",
		Tools:     registry,
		Context:   ctxMgr,
		Queue:     promptqueue.New(),
		Status:    statusbus.New(),
		Log:       enhancedlog.New(100),
		Worker:    worker,
		MaxTurns:  10,
	})
}

func TestAgentCore_StartRejectsEmptyGoal(t *testing.T) {
	core := newTestCore(t, &queuedClient{}, false)
	if err := core.Start(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty goal")
	} else if _, ok := err.(*RejectGoalEmpty); !ok {
		t.Fatalf("expected RejectGoalEmpty, got %T: %v", err, err)
	}
	if core.State() != models.StateIdle {
		t.Fatalf("expected idle state after rejection, got %s", core.State())
	}
}

func TestAgentCore_WorkerCompletesOnCompleteTask(t *testing.T) {
	client := &queuedClient{
		responses: [][]*modelclient.ResponseChunk{
			{
				{Text: "done", InputTokens: 10, OutputTokens: 5},
				{ToolCall: &models.ToolCall{
					ID:        "call-1",
					Name:      toolregistry.ToolCompleteTask,
					Arguments: map[string]any{"reason": "finished", "summary": "all done"},
				}},
				{Done: true},
			},
		},
	}
	core := newTestCore(t, client, true)

	if err := core.Start(context.Background(), "finish the task"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	core.Wait()

	if core.State() != models.StateStopped {
		t.Fatalf("expected stopped state, got %s", core.State())
	}
	rec, ok := core.Completion()
	if !ok {
		t.Fatal("expected a completion record")
	}
	if rec.Reason != models.CompletionFinished || rec.Summary != "all done" {
		t.Fatalf("unexpected completion record: %+v", rec)
	}
}

func TestAgentCore_MainAgentContinuesAfterCompleteTask(t *testing.T) {
	client := &queuedClient{
		responses: [][]*modelclient.ResponseChunk{
			{
				{Text: "sub-task done"},
				{ToolCall: &models.ToolCall{
					ID:        "call-1",
					Name:      toolregistry.ToolCompleteTask,
					Arguments: map[string]any{"reason": "finished"},
				}},
				{Done: true},
			},
			{
				{Text: "idle thought"},
				{Done: true},
			},
		},
	}
	core := newTestCore(t, client, false)

	if err := core.Start(context.Background(), "do a sub-task"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		if _, ok := core.Completion(); ok {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for completion record")
		case <-time.After(10 * time.Millisecond):
		}
	}

	if core.State() == models.StateStopped {
		t.Fatal("expected MainAgent to keep running past complete_task")
	}
	if err := core.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	core.Wait()
}

func TestAgentCore_PauseBlocksFurtherTurns(t *testing.T) {
	client := &queuedClient{
		responses: [][]*modelclient.ResponseChunk{
			{{Text: "first"}, {Done: true}},
			{{Text: "second"}, {Done: true}},
		},
	}
	core := newTestCore(t, client, false)

	if err := core.Start(context.Background(), "go"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := core.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if core.State() != models.StatePaused {
		t.Fatalf("expected paused state, got %s", core.State())
	}
	if err := core.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if err := core.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	core.Wait()
}

func TestAgentCore_ModelErrorMovesToErrorState(t *testing.T) {
	client := &queuedClient{
		responses: [][]*modelclient.ResponseChunk{
			{{Error: errors.New("provider exploded")}, {Done: true}},
		},
	}
	core := newTestCore(t, client, false)

	if err := core.Start(context.Background(), "go"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	core.Wait()

	if core.State() != models.StateError {
		t.Fatalf("expected error state, got %s", core.State())
	}
	if core.LastError() == nil {
		t.Fatal("expected LastError to be set")
	}
}

func TestAgentCore_RecordsMetricsForWorkerRun(t *testing.T) {
	metrics := observability.NewMetrics()
	client := &queuedClient{
		responses: [][]*modelclient.ResponseChunk{
			{
				{Text: "done", InputTokens: 10, OutputTokens: 5},
				{ToolCall: &models.ToolCall{
					ID:        "call-1",
					Name:      toolregistry.ToolCompleteTask,
					Arguments: map[string]any{"reason": "finished", "summary": "all done"},
				}},
				{Done: true},
			},
		},
	}
	core := newTestCore(t, client, true)
	core.cfg.Metrics = metrics

	if err := core.Start(context.Background(), "finish the task"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	core.Wait()

	if got := testutil.ToFloat64(metrics.LLMRequestCounter.WithLabelValues("queued-test", "test-model", "success")); got != 1 {
		t.Fatalf("LLMRequestCounter success = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.RunAttempts.WithLabelValues("success")); got != 1 {
		t.Fatalf("RunAttempts success = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.ActiveRuns.WithLabelValues("worker")); got != 0 {
		t.Fatalf("ActiveRuns worker = %v, want 0 after completion", got)
	}
}

func TestAgentCore_MaxTurnsExceededHaltsWithError(t *testing.T) {
	client := &queuedClient{}
	core := newTestCore(t, client, false)
	core.cfg.MaxTurns = 1
	core.turnCount.Store(1)

	if err := core.Start(context.Background(), "go"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	core.Wait()

	if core.State() != models.StateError {
		t.Fatalf("expected error state, got %s", core.State())
	}
	if _, ok := core.LastError().(*MaxTurnsExceeded); !ok {
		t.Fatalf("expected MaxTurnsExceeded, got %T", core.LastError())
	}
}
