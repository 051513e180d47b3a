// Package tournament implements the TournamentEngine component: a staged,
// multi-worker contest where each stage's AgentCore workers produce
// revealed artifacts consumed by the next stage, interleaved with debate
// rounds that let workers critique their peers' reveals.
package tournament

import (
	"time"

	"github.com/pasteldev/agentic-runtime/internal/agentcore"
	"github.com/pasteldev/agentic-runtime/internal/toolregistry"
	"github.com/pasteldev/agentic-runtime/internal/workspacefs"
	"github.com/pasteldev/agentic-runtime/pkg/models"
)

// StageConfig is one entry of the stages = [n_1, ..., n_k] input: the
// number of workers to run in that stage.
type StageConfig struct {
	Workers int
}

// WorkerFactory builds the AgentCore that will run one worker, wired to
// the given WorkspaceFS and a reveal tool backed by reveals. seq is the
// single sequence counter shared by every worker in the run, so reveal
// ordering (and hence filename-collision resolution) is consistent across
// workers; pass it straight through to NewWorkerRegistry. Callers are
// expected to construct a per-worker ToolRegistry (seeded with
// NewWorkerRegistry plus whatever domain tools the tournament grants) and
// a ModelClient, and wrap them in agentcore.Config{Worker: true, ...}.
type WorkerFactory func(stageIndex, workerIndex int, fs *workspacefs.WorkspaceFS, reveals *RevealStore, seq *Sequencer) *agentcore.AgentCore

// Config configures a tournament run.
type Config struct {
	Topic        string
	Stages       []StageConfig
	DebateRounds int
	// SandboxRoot roots every worker's WorkspaceFS at
	// SandboxRoot/tournaments/<id>/stage_<i>_worker_<j>/workspace.
	SandboxRoot string
	NewWorker   WorkerFactory
}

// TranscriptEntry records one worker action for the run's full transcript.
type TranscriptEntry struct {
	Stage      int
	Worker     int
	Round      int // -1 for the initial task run, 0.. for debate rounds
	Kind       string // "task", "debate", "error", "conflict"
	Text       string
	OccurredAt time.Time
}

// StageResult is one stage's outcome.
type StageResult struct {
	Index     int
	Artifacts []models.RevealedArtifact
	Failed    bool
}

// Result is the full tournament outcome.
type Result struct {
	Stages     []StageResult
	Transcript []TranscriptEntry
	// Artifacts is the union of the final stage's revealed artifacts, or
	// nil if the tournament failed before completing its last stage.
	Artifacts []models.RevealedArtifact
	Failed    bool
}

// NewWorkerRegistry builds the restricted per-worker ToolRegistry: no
// tournament-spawn capability, reveal always granted. The restriction is a
// name-based deny policy on the registry's Resolver, not a category filter.
func NewWorkerRegistry(fs *workspacefs.WorkspaceFS, workerID string, reveals *RevealStore, seq *Sequencer, extra ...models.Tool) *toolregistry.Registry {
	reg := toolregistry.New()
	reg.SetResolver(toolregistry.NewResolver(toolregistry.Policy{
		Deny: []string{"tournament.spawn"},
	}))
	_ = reg.Register(newCompleteTaskTool())
	_ = reg.Register(newRevealTool(fs, workerID, reveals, seq))
	for _, tool := range extra {
		_ = reg.Register(tool)
	}
	return reg
}
