package tournament

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pasteldev/agentic-runtime/internal/infra"
	"github.com/pasteldev/agentic-runtime/internal/workspacefs"
	"github.com/pasteldev/agentic-runtime/pkg/models"
)

// Engine runs a tournament per spec.md §4.F: stages run strictly
// sequentially, workers within a stage run concurrently under a bounded
// fan-out, and debate rounds let workers critique peers' reveals between
// the initial task run and the stage's final artifact collection.
//
// Grounded on internal/multiagent/swarm.go's DependencyGraph/stage
// execution shape (stage-by-stage, bounded-parallel goroutines per stage,
// first-error-cancels-siblings within a stage) and on
// internal/tools/subagent's Manager.Spawn concurrency-limited worker
// pattern, adapted from a single flat worker pool to explicit
// stage -> debate-round barriers and the reveal/complete_task contract
// this runtime's AgentCore exposes.
type Engine struct {
	cfg Config
	sem *infra.Semaphore
	id  string
	seq *Sequencer
}

// New creates an Engine for a single tournament run identified by id (used
// to namespace worker sandbox roots).
func New(id string, cfg Config) *Engine {
	maxParallel := 0
	for _, s := range cfg.Stages {
		if s.Workers > maxParallel {
			maxParallel = s.Workers
		}
	}
	if maxParallel <= 0 {
		maxParallel = 1
	}
	return &Engine{cfg: cfg, sem: infra.NewSemaphore(int64(maxParallel)), id: id, seq: &Sequencer{}}
}

type workerRun struct {
	index    int
	fs       *workspacefs.WorkspaceFS
	reveals  *RevealStore
	core     interface {
		Start(ctx context.Context, goal string) error
		Wait()
		Restart(ctx context.Context, prompt string, keepContext bool) error
		State() models.LifecycleState
		LastError() error
	}
	completionOK bool
	errored      bool
}

// Run executes every stage in order and returns the tournament result.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	result := &Result{}

	var predecessor []models.RevealedArtifact
	for i, stage := range e.cfg.Stages {
		if stage.Workers <= 0 {
			return nil, fmt.Errorf("tournament: stage %d must have at least one worker", i)
		}
		if i > 0 && stage.Workers > e.cfg.Stages[i-1].Workers {
			return nil, fmt.Errorf("tournament: stage widths must be non-increasing, stage %d (%d) > stage %d (%d)",
				i, stage.Workers, i-1, e.cfg.Stages[i-1].Workers)
		}
		stageResult, entries := e.runStage(ctx, i, stage, predecessor)
		result.Transcript = append(result.Transcript, entries...)
		result.Stages = append(result.Stages, stageResult)

		if stageResult.Failed {
			result.Failed = true
			return result, nil
		}
		predecessor = stageResult.Artifacts
	}

	result.Artifacts = predecessor
	return result, nil
}

func (e *Engine) runStage(ctx context.Context, stageIdx int, stage StageConfig, predecessor []models.RevealedArtifact) (StageResult, []TranscriptEntry) {
	workers := make([]*workerRun, stage.Workers)
	var transcriptMu sync.Mutex
	var transcript []TranscriptEntry
	record := func(entry TranscriptEntry) {
		entry.OccurredAt = time.Now()
		transcriptMu.Lock()
		transcript = append(transcript, entry)
		transcriptMu.Unlock()
	}

	goal := buildGoal(e.cfg.Topic, predecessor)

	var wg sync.WaitGroup
	for j := 0; j < stage.Workers; j++ {
		j := j
		wg.Add(1)
		go func() {
			defer wg.Done()

			if err := e.sem.Acquire(ctx, 1); err != nil {
				record(TranscriptEntry{Stage: stageIdx, Worker: j, Round: -1, Kind: "error", Text: err.Error()})
				workers[j] = &workerRun{index: j, errored: true}
				return
			}
			defer e.sem.Release(1)

			root := filepath.Join(e.cfg.SandboxRoot, "tournaments", e.id,
				fmt.Sprintf("stage_%d_worker_%d", stageIdx, j), "workspace")
			fs, err := workspacefs.New(root)
			if err != nil {
				record(TranscriptEntry{Stage: stageIdx, Worker: j, Round: -1, Kind: "error", Text: err.Error()})
				workers[j] = &workerRun{index: j, errored: true}
				return
			}

			reveals := NewRevealStore()
			core := e.cfg.NewWorker(stageIdx, j, fs, reveals, e.seq)
			run := &workerRun{index: j, fs: fs, reveals: reveals, core: core}
			workers[j] = run

			if err := core.Start(ctx, goal); err != nil {
				record(TranscriptEntry{Stage: stageIdx, Worker: j, Round: -1, Kind: "error", Text: err.Error()})
				run.errored = true
				return
			}
			core.Wait()
			if core.State() == models.StateError {
				run.errored = true
				record(TranscriptEntry{Stage: stageIdx, Worker: j, Round: -1, Kind: "error", Text: core.LastError().Error()})
				return
			}
			run.completionOK = true
			record(TranscriptEntry{Stage: stageIdx, Worker: j, Round: -1, Kind: "task", Text: "initial task run complete"})
		}()
	}
	wg.Wait()

	for r := 0; r < e.cfg.DebateRounds; r++ {
		e.runDebateRound(ctx, stageIdx, r, workers, record)
	}

	artifacts, conflicts := mergeReveals(workers)
	for _, c := range conflicts {
		record(TranscriptEntry{Stage: stageIdx, Round: -1, Kind: "conflict", Text: c})
	}

	return StageResult{Index: stageIdx, Artifacts: artifacts, Failed: len(artifacts) == 0}, transcript
}

func (e *Engine) runDebateRound(ctx context.Context, stageIdx, round int, workers []*workerRun, record func(TranscriptEntry)) {
	var wg sync.WaitGroup
	for _, w := range workers {
		if w == nil || w.errored || w.core == nil {
			continue
		}
		w := w
		wg.Add(1)
		go func() {
			defer wg.Done()

			if err := e.sem.Acquire(ctx, 1); err != nil {
				record(TranscriptEntry{Stage: stageIdx, Worker: w.index, Round: round, Kind: "error", Text: err.Error()})
				return
			}
			defer e.sem.Release(1)

			prompt := buildCritiquePrompt(workers, w)
			if err := w.core.Restart(ctx, prompt, true); err != nil {
				record(TranscriptEntry{Stage: stageIdx, Worker: w.index, Round: round, Kind: "error", Text: err.Error()})
				w.errored = true
				return
			}
			w.core.Wait()
			if w.core.State() == models.StateError {
				w.errored = true
				record(TranscriptEntry{Stage: stageIdx, Worker: w.index, Round: round, Kind: "error", Text: w.core.LastError().Error()})
				return
			}
			record(TranscriptEntry{Stage: stageIdx, Worker: w.index, Round: round, Kind: "debate", Text: "critique round complete"})
		}()
	}
	wg.Wait()
}

// buildGoal composes the task handed to a fresh stage's workers: the topic
// alone for stage 1, or the topic plus the predecessor stage's merged
// reveals for stage i>1.
func buildGoal(topic string, predecessor []models.RevealedArtifact) string {
	if len(predecessor) == 0 {
		return topic
	}
	var sb strings.Builder
	sb.WriteString(topic)
	sb.WriteString("\n\nArtifacts revealed by the previous stage:\n")
	for _, a := range predecessor {
		sb.WriteString("- ")
		sb.WriteString(a.Filename)
		if a.Description != "" {
			sb.WriteString(": ")
			sb.WriteString(a.Description)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// buildCritiquePrompt composes the debate-round prompt shown to worker w:
// every peer's current reveals, excluding w's own.
func buildCritiquePrompt(workers []*workerRun, w *workerRun) string {
	var sb strings.Builder
	sb.WriteString("Your peers have revealed the following artifacts. Critique them and, if warranted, respond by revising your own reveals:\n")
	for _, peer := range workers {
		if peer == nil || peer == w || peer.reveals == nil || peer.errored {
			continue
		}
		for _, a := range peer.reveals.Artifacts() {
			sb.WriteString("- [worker ")
			sb.WriteString(strconv.Itoa(peer.index))
			sb.WriteString("] ")
			sb.WriteString(a.Filename)
			if a.Description != "" {
				sb.WriteString(": ")
				sb.WriteString(a.Description)
			}
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// mergeReveals unions every surviving worker's revealed artifacts,
// resolving filename collisions by sequence number (the later reveal
// wins) and recording a conflict note for each collision.
func mergeReveals(workers []*workerRun) ([]models.RevealedArtifact, []string) {
	best := make(map[string]revealEntry)
	var conflicts []string

	for _, w := range workers {
		if w == nil || w.reveals == nil || w.errored {
			continue
		}
		for _, entry := range w.reveals.Snapshot() {
			prior, exists := best[entry.artifact.Filename]
			if !exists {
				best[entry.artifact.Filename] = entry
				continue
			}
			if entry.seq > prior.seq {
				conflicts = append(conflicts, fmt.Sprintf(
					"filename %q revealed by both worker %s and worker %s; later reveal (worker %s) wins",
					entry.artifact.Filename, prior.workerID, entry.workerID, entry.workerID))
				best[entry.artifact.Filename] = entry
			} else if entry.seq < prior.seq {
				conflicts = append(conflicts, fmt.Sprintf(
					"filename %q revealed by both worker %s and worker %s; later reveal (worker %s) wins",
					entry.artifact.Filename, entry.workerID, prior.workerID, prior.workerID))
			}
		}
	}

	names := make([]string, 0, len(best))
	for name := range best {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]models.RevealedArtifact, 0, len(names))
	for _, name := range names {
		out = append(out, best[name].artifact)
	}
	return out, conflicts
}
