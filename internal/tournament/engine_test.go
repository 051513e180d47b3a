package tournament

import (
	"context"
	"fmt"
	"testing"

	"github.com/pasteldev/agentic-runtime/internal/agentcore"
	"github.com/pasteldev/agentic-runtime/internal/contextmgr"
	"github.com/pasteldev/agentic-runtime/internal/enhancedlog"
	"github.com/pasteldev/agentic-runtime/internal/modelclient"
	"github.com/pasteldev/agentic-runtime/internal/promptqueue"
	"github.com/pasteldev/agentic-runtime/internal/statusbus"
	"github.com/pasteldev/agentic-runtime/internal/workspacefs"
	"github.com/pasteldev/agentic-runtime/pkg/models"
)

// scriptedClient streams one queued []*modelclient.ResponseChunk response
// per call to Complete, grounded on the same fake-provider pattern used in
// agentcore_test.go.
type scriptedClient struct {
	responses [][]*modelclient.ResponseChunk
	call      int
}

func (c *scriptedClient) Name() string { return "scripted-test" }

func (c *scriptedClient) Complete(ctx context.Context, req modelclient.ChatRequest) (<-chan *modelclient.ResponseChunk, error) {
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

// revealThenCompleteFactory builds a WorkerFactory whose workers each
// write a distinct answer file, reveal it, then complete_task on the
// initial run, and simply re-complete on any debate round.
func revealThenCompleteFactory(t *testing.T, sandboxRoot string) WorkerFactory {
	return func(stageIdx, workerIdx int, fs *workspacefs.WorkspaceFS, reveals *RevealStore, seq *Sequencer) *agentcore.AgentCore {
		filename := fmt.Sprintf("answer-%d-%d.txt", stageIdx, workerIdx)
		if err := fs.Write(filename, []byte(fmt.Sprintf("worker %d's answer", workerIdx))); err != nil {
			t.Fatalf("fs.Write: %v", err)
		}

		client := &scriptedClient{
			responses: [][]*modelclient.ResponseChunk{
				{
					{ToolCall: &models.ToolCall{
						ID:        "reveal-1",
						Name:      "reveal",
						Arguments: map[string]any{"filename": filename, "description": "my answer"},
					}},
					{ToolCall: &models.ToolCall{
						ID:        "complete-1",
						Name:      "complete_task",
						Arguments: map[string]any{"reason": "finished", "summary": "submitted answer"},
					}},
					{Done: true},
				},
				{
					{Text: "critique acknowledged"},
					{ToolCall: &models.ToolCall{
						ID:        "complete-2",
						Name:      "complete_task",
						Arguments: map[string]any{"reason": "finished"},
					}},
					{Done: true},
				},
			},
		}

		workerID := fmt.Sprintf("%d-%d", stageIdx, workerIdx)
		registry := NewWorkerRegistry(fs, workerID, reveals, seq)

		ctxMgr, err := contextmgr.New(client, contextmgr.Config{SummarizerModel: "test-model"})
		if err != nil {
			t.Fatalf("contextmgr.New: %v", err)
		}

		return agentcore.New(agentcore.Config{
			Model:     client,
			ModelName: "test-model",
			Tools:     registry,
			Context:   ctxMgr,
			Queue:     promptqueue.New(),
			Status:    statusbus.New(),
			Log:       enhancedlog.New(100),
			Worker:    true,
			MaxTurns:  10,
		})
	}
}

func TestEngine_SingleStageNoDebate(t *testing.T) {
	root := t.TempDir()
	cfg := Config{
		Topic:       "write a short answer",
		Stages:      []StageConfig{{Workers: 2}},
		SandboxRoot: root,
		NewWorker:   revealThenCompleteFactory(t, root),
	}

	eng := New("t1", cfg)
	result, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Failed {
		t.Fatal("expected success")
	}
	if len(result.Artifacts) != 2 {
		t.Fatalf("expected 2 artifacts, got %d: %+v", len(result.Artifacts), result.Artifacts)
	}
}

func TestEngine_TwoStagesWithDebateRound(t *testing.T) {
	root := t.TempDir()
	cfg := Config{
		Topic:        "draft then refine",
		Stages:       []StageConfig{{Workers: 2}, {Workers: 1}},
		DebateRounds: 1,
		SandboxRoot:  root,
		NewWorker:    revealThenCompleteFactory(t, root),
	}

	eng := New("t2", cfg)
	result, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Failed {
		t.Fatalf("expected success, transcript: %+v", result.Transcript)
	}
	if len(result.Stages) != 2 {
		t.Fatalf("expected 2 stage results, got %d", len(result.Stages))
	}
	if len(result.Artifacts) != 1 {
		t.Fatalf("expected 1 final artifact, got %d", len(result.Artifacts))
	}

	var sawDebate bool
	for _, entry := range result.Transcript {
		if entry.Kind == "debate" {
			sawDebate = true
		}
	}
	if !sawDebate {
		t.Fatal("expected at least one debate transcript entry")
	}
}

func TestEngine_RejectsIncreasingStageWidths(t *testing.T) {
	root := t.TempDir()
	cfg := Config{
		Topic:       "invalid",
		Stages:      []StageConfig{{Workers: 1}, {Workers: 2}},
		SandboxRoot: root,
		NewWorker:   revealThenCompleteFactory(t, root),
	}

	eng := New("t3", cfg)
	if _, err := eng.Run(context.Background()); err == nil {
		t.Fatal("expected error for increasing stage widths")
	}
}

// mixedOutcomeFactory builds a 3-worker stage where workers 0 and 2
// reveal-then-complete normally and worker 1's ModelClient returns a fatal
// error mid-run, driving its AgentCore to models.StateError.
func mixedOutcomeFactory(t *testing.T, sandboxRoot string) WorkerFactory {
	return func(stageIdx, workerIdx int, fs *workspacefs.WorkspaceFS, reveals *RevealStore, seq *Sequencer) *agentcore.AgentCore {
		workerID := fmt.Sprintf("%d-%d", stageIdx, workerIdx)
		registry := NewWorkerRegistry(fs, workerID, reveals, seq)

		var client *scriptedClient
		if workerIdx == 1 {
			client = &scriptedClient{
				responses: [][]*modelclient.ResponseChunk{
					{{Error: fmt.Errorf("provider exploded")}, {Done: true}},
				},
			}
		} else {
			filename := fmt.Sprintf("answer-%d-%d.txt", stageIdx, workerIdx)
			if err := fs.Write(filename, []byte(fmt.Sprintf("worker %d's answer", workerIdx))); err != nil {
				t.Fatalf("fs.Write: %v", err)
			}
			client = &scriptedClient{
				responses: [][]*modelclient.ResponseChunk{
					{
						{ToolCall: &models.ToolCall{
							ID:        "reveal-1",
							Name:      "reveal",
							Arguments: map[string]any{"filename": filename, "description": "my answer"},
						}},
						{ToolCall: &models.ToolCall{
							ID:        "complete-1",
							Name:      "complete_task",
							Arguments: map[string]any{"reason": "finished", "summary": "submitted answer"},
						}},
						{Done: true},
					},
				},
			}
		}

		ctxMgr, err := contextmgr.New(client, contextmgr.Config{SummarizerModel: "test-model"})
		if err != nil {
			t.Fatalf("contextmgr.New: %v", err)
		}

		return agentcore.New(agentcore.Config{
			Model:     client,
			ModelName: "test-model",
			Tools:     registry,
			Context:   ctxMgr,
			Queue:     promptqueue.New(),
			Status:    statusbus.New(),
			Log:       enhancedlog.New(100),
			Worker:    true,
			MaxTurns:  10,
		})
	}
}

func TestEngine_WorkerErrorMidRunExcludedFromStageAndDebate(t *testing.T) {
	root := t.TempDir()
	cfg := Config{
		Topic:        "write a short answer",
		Stages:       []StageConfig{{Workers: 3}},
		DebateRounds: 1,
		SandboxRoot:  root,
		NewWorker:    mixedOutcomeFactory(t, root),
	}

	eng := New("t5", cfg)
	result, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Failed {
		t.Fatalf("expected stage to succeed on its surviving workers, transcript: %+v", result.Transcript)
	}
	if len(result.Artifacts) != 2 {
		t.Fatalf("expected 2 artifacts (from workers 0 and 2 only), got %d: %+v", len(result.Artifacts), result.Artifacts)
	}
	for _, a := range result.Artifacts {
		if a.Filename == "answer-0-1.txt" {
			t.Fatalf("expected errored worker 1's reveal to be excluded, got %+v", result.Artifacts)
		}
	}

	var sawWorker1Error bool
	var sawWorker1Debate bool
	for _, entry := range result.Transcript {
		if entry.Worker == 1 && entry.Kind == "error" {
			sawWorker1Error = true
		}
		if entry.Worker == 1 && entry.Kind == "debate" {
			sawWorker1Debate = true
		}
	}
	if !sawWorker1Error {
		t.Fatal("expected an error transcript entry for worker 1")
	}
	if sawWorker1Debate {
		t.Fatal("expected errored worker 1 to be excluded from the debate round")
	}
}

func TestEngine_ZeroSurvivingArtifactsFailsStage(t *testing.T) {
	root := t.TempDir()
	client := &scriptedClient{} // no responses queued: Complete streams only Done immediately
	factory := func(stageIdx, workerIdx int, fs *workspacefs.WorkspaceFS, reveals *RevealStore, seq *Sequencer) *agentcore.AgentCore {
		registry := NewWorkerRegistry(fs, fmt.Sprintf("%d-%d", stageIdx, workerIdx), reveals, seq)
		ctxMgr, err := contextmgr.New(client, contextmgr.Config{SummarizerModel: "test-model"})
		if err != nil {
			t.Fatalf("contextmgr.New: %v", err)
		}
		return agentcore.New(agentcore.Config{
			Model:     client,
			ModelName: "test-model",
			Tools:     registry,
			Context:   ctxMgr,
			Queue:     promptqueue.New(),
			Status:    statusbus.New(),
			Log:       enhancedlog.New(100),
			Worker:    true,
			MaxTurns:  1,
		})
	}

	cfg := Config{
		Topic:       "never reveals",
		Stages:      []StageConfig{{Workers: 1}},
		SandboxRoot: root,
		NewWorker:   factory,
	}
	eng := New("t4", cfg)
	result, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Failed {
		t.Fatal("expected stage to fail with zero surviving artifacts")
	}
}
