// Package agentcore implements the AgentCore component: the loop engine
// that drives a single agent (the continuous main agent, a one-shot task
// executor, or a tournament worker) through repeated turns against a
// ModelClient and ToolRegistry.
package agentcore

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pasteldev/agentic-runtime/internal/contextmgr"
	"github.com/pasteldev/agentic-runtime/internal/enhancedlog"
	"github.com/pasteldev/agentic-runtime/internal/modelclient"
	"github.com/pasteldev/agentic-runtime/internal/observability"
	"github.com/pasteldev/agentic-runtime/internal/promptqueue"
	"github.com/pasteldev/agentic-runtime/internal/statusbus"
	"github.com/pasteldev/agentic-runtime/internal/toolregistry"
	"github.com/pasteldev/agentic-runtime/pkg/models"
)

var tracer = otel.Tracer("agentcore")

// stateCode is the atomic-friendly encoding of models.LifecycleState used
// for CompareAndSwap transitions, grounded on internal/infra.BaseComponent's
// atomic.Int32 + CompareAndSwap pattern.
type stateCode int32

const (
	codeIdle stateCode = iota
	codeRunning
	codePaused
	codeStopping
	codeStopped
	codeError
)

func (c stateCode) state() models.LifecycleState {
	switch c {
	case codeRunning:
		return models.StateRunning
	case codePaused:
		return models.StatePaused
	case codeStopping:
		return models.StateStopping
	case codeStopped:
		return models.StateStopped
	case codeError:
		return models.StateError
	default:
		return models.StateIdle
	}
}

// RejectGoalEmpty is returned by Start when called with an empty goal.
type RejectGoalEmpty struct{}

func (e *RejectGoalEmpty) Error() string { return "agentcore: goal must not be empty" }

// InvalidTransition is returned when a requested state transition is not
// legal from the current state.
type InvalidTransition struct {
	From, To models.LifecycleState
}

func (e *InvalidTransition) Error() string {
	return fmt.Sprintf("agentcore: cannot transition from %s to %s", e.From, e.To)
}

// MaxTurnsExceeded is the completion cause when a run halts after
// exhausting its configured turn budget.
type MaxTurnsExceeded struct{ MaxTurns int }

func (e *MaxTurnsExceeded) Error() string {
	return fmt.Sprintf("agentcore: exceeded max_turns (%d)", e.MaxTurns)
}

// Config wires an AgentCore to its collaborating components.
type Config struct {
	Model        modelclient.ModelClient
	ModelName    string
	Tools        *toolregistry.Registry
	Context      *contextmgr.ContextManager
	Queue        *promptqueue.PromptQueue
	Status       *statusbus.StatusBus
	Log          *enhancedlog.EnhancedLogger
	SystemPrompt string
	MaxTokens    int
	// MaxTurns bounds the number of turns before the run halts with
	// MaxTurnsExceeded. 0 means unlimited.
	MaxTurns int
	// Worker marks this AgentCore as a tournament/subagent worker: its
	// first complete_task terminates the run rather than closing only
	// the current sub-task, per spec.md §4.E completion semantics.
	Worker bool
	// Metrics, when set, records per-turn LLM/tool/context-window metrics.
	// Nil disables recording.
	Metrics *observability.Metrics
}

// AgentCore drives one agent through the Turn algorithm described in
// spec.md §4.E, adapted from internal/agent/loop.go's
// Init/Stream/ExecuteTools/Continue/Complete phase machine to
// single-tool-call-at-a-time dispatch.
type AgentCore struct {
	cfg Config

	state    atomic.Int32
	pauseMu  sync.Mutex
	pauseCnd *sync.Cond
	paused   bool

	turnCount atomic.Int64
	loopCount atomic.Int64
	tokens    atomic.Int64

	mu         sync.Mutex
	completion *models.CompletionRecord
	lastError  error
	lastAction string

	doneCh         chan struct{}
	runStartedAt   time.Time
	runEndRecorded atomic.Bool
}

// New creates an AgentCore in the idle state.
func New(cfg Config) *AgentCore {
	ac := &AgentCore{cfg: cfg}
	ac.pauseCnd = sync.NewCond(&ac.pauseMu)
	return ac
}

// State returns the current lifecycle state.
func (ac *AgentCore) State() models.LifecycleState {
	return stateCode(ac.state.Load()).state()
}

func (ac *AgentCore) transition(from, to stateCode) bool {
	return ac.state.CompareAndSwap(int32(from), int32(to))
}

// Start transitions idle -> running and begins the turn loop against the
// given goal. A non-empty goal is required.
func (ac *AgentCore) Start(ctx context.Context, goal string) error {
	if goal == "" {
		return &RejectGoalEmpty{}
	}
	if !ac.transition(codeIdle, codeRunning) {
		return &InvalidTransition{From: ac.State(), To: models.StateRunning}
	}

	ac.cfg.Context.Append(models.Message{Role: models.RoleUser, Content: goal, CreatedAt: time.Now()})
	ac.doneCh = make(chan struct{})
	ac.runEndRecorded.Store(false)
	if ac.cfg.Metrics != nil {
		ac.cfg.Metrics.RunStarted(ac.runMode())
	}
	ac.runStartedAt = time.Now()
	go ac.runLoop(ctx)
	return nil
}

// Pause blocks the loop before its next turn.
func (ac *AgentCore) Pause() error {
	if !ac.transition(codeRunning, codePaused) {
		return &InvalidTransition{From: ac.State(), To: models.StatePaused}
	}
	ac.pauseMu.Lock()
	ac.paused = true
	ac.pauseMu.Unlock()
	return nil
}

// Resume releases a paused loop.
func (ac *AgentCore) Resume() error {
	if !ac.transition(codePaused, codeRunning) {
		return &InvalidTransition{From: ac.State(), To: models.StateRunning}
	}
	ac.pauseMu.Lock()
	ac.paused = false
	ac.pauseMu.Unlock()
	ac.pauseCnd.Broadcast()
	return nil
}

// Stop requests the loop halt after the in-flight turn finishes or is
// cancelled. Stop is legal from any state.
func (ac *AgentCore) Stop() error {
	for {
		current := stateCode(ac.state.Load())
		if current == codeStopped || current == codeStopping {
			return nil
		}
		if ac.state.CompareAndSwap(int32(current), int32(codeStopping)) {
			ac.pauseMu.Lock()
			ac.paused = false
			ac.pauseMu.Unlock()
			ac.pauseCnd.Broadcast()
			if current == codeIdle {
				ac.state.Store(int32(codeStopped))
			}
			return nil
		}
	}
}

// Wait blocks until the run loop has exited (stopped or errored).
func (ac *AgentCore) Wait() {
	if ac.doneCh != nil {
		<-ac.doneCh
	}
}

// Restart atomically stops the current run, optionally resets context,
// injects prompt as a new user message ("continue" when prompt is empty),
// and transitions back to running.
func (ac *AgentCore) Restart(ctx context.Context, prompt string, keepContext bool) error {
	if err := ac.Stop(); err != nil {
		return err
	}
	ac.Wait()

	if !keepContext {
		fresh, err := contextmgr.New(ac.cfg.Model, contextmgr.Config{SummarizerModel: ac.cfg.ModelName})
		if err != nil {
			return err
		}
		ac.cfg.Context = fresh
	}

	ac.state.Store(int32(codeIdle))
	ac.mu.Lock()
	ac.completion = nil
	ac.lastError = nil
	ac.lastAction = ""
	ac.mu.Unlock()
	ac.turnCount.Store(0)
	ac.loopCount.Store(0)
	ac.tokens.Store(0)

	goal := prompt
	if goal == "" {
		goal = "continue"
	}
	return ac.Start(ctx, goal)
}

// Reset stops the current run, replaces the context with a fresh one, and
// drains the prompt queue, leaving the AgentCore idle with no goal. Unlike
// Restart, it does not begin a new run; it is the primitive
// LifecycleController's FactoryReset builds on.
func (ac *AgentCore) Reset(ctx context.Context) error {
	if err := ac.Stop(); err != nil {
		return err
	}
	ac.Wait()

	fresh, err := contextmgr.New(ac.cfg.Model, contextmgr.Config{SummarizerModel: ac.cfg.ModelName})
	if err != nil {
		return err
	}
	ac.cfg.Context = fresh
	ac.cfg.Queue.Drain()

	ac.state.Store(int32(codeIdle))
	ac.mu.Lock()
	ac.completion = nil
	ac.lastError = nil
	ac.lastAction = ""
	ac.mu.Unlock()
	ac.turnCount.Store(0)
	ac.loopCount.Store(0)
	ac.tokens.Store(0)
	return nil
}

// ForceCompact runs a context compaction immediately, regardless of
// ShouldCompact.
func (ac *AgentCore) ForceCompact(ctx context.Context) error {
	return ac.cfg.Context.Compact(ctx)
}

// SendPrompt enqueues text for injection at the next turn boundary and
// returns the queued item's id.
func (ac *AgentCore) SendPrompt(text string, priority int) string {
	return ac.cfg.Queue.Enqueue(text, priority)
}

// Completion returns the most recent completion record, if complete_task
// has been observed.
func (ac *AgentCore) Completion() (models.CompletionRecord, bool) {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	if ac.completion == nil {
		return models.CompletionRecord{}, false
	}
	return *ac.completion, true
}

// LastError returns the error that moved the run into the error state, if
// any.
func (ac *AgentCore) LastError() error {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	return ac.lastError
}

func (ac *AgentCore) setCompletion(rec models.CompletionRecord) {
	ac.mu.Lock()
	ac.completion = &rec
	ac.mu.Unlock()
}

func (ac *AgentCore) setError(err error) {
	ac.mu.Lock()
	ac.lastError = err
	ac.mu.Unlock()
}

// runLoop drives turns until the run stops, completes (worker mode), or
// enters the error state.
func (ac *AgentCore) runLoop(ctx context.Context) {
	defer close(ac.doneCh)
	defer ac.recordRunEnd("success")

	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()
	go func() {
		<-watchCtx.Done()
		ac.pauseCnd.Broadcast()
	}()

	for {
		if stateCode(ac.state.Load()) == codeStopping {
			ac.state.Store(int32(codeStopped))
			return
		}

		if err := ac.waitIfPaused(ctx); err != nil {
			ac.state.Store(int32(codeStopped))
			return
		}

		if stateCode(ac.state.Load()) == codeStopping {
			ac.state.Store(int32(codeStopped))
			return
		}

		completed, err := ac.turn(ctx)
		if err != nil {
			ac.setError(err)
			ac.state.Store(int32(codeError))
			ac.recordRunEnd("failed")
			return
		}

		if completed && ac.cfg.Worker {
			ac.state.Store(int32(codeStopped))
			return
		}
	}
}

// recordRunEnd reports RunEnded/RecordRunAttempt exactly once per runLoop
// exit; deferred in runLoop alongside an explicit failure-path call, guarded
// by a swap so the deferred "success" call is a no-op once the failure path
// already recorded.
func (ac *AgentCore) recordRunEnd(status string) {
	if ac.cfg.Metrics == nil || !ac.runEndRecorded.CompareAndSwap(false, true) {
		return
	}
	ac.cfg.Metrics.RunEnded(ac.runMode(), time.Since(ac.runStartedAt).Seconds())
	ac.cfg.Metrics.RecordRunAttempt(status)
}

// waitIfPaused blocks while paused, waking on Resume, Stop, or ctx
// cancellation.
func (ac *AgentCore) waitIfPaused(ctx context.Context) error {
	ac.pauseMu.Lock()
	defer ac.pauseMu.Unlock()
	for ac.paused {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if stateCode(ac.state.Load()) == codeStopping {
			return nil
		}
		ac.pauseCnd.Wait()
	}
	return ctx.Err()
}

// turn executes one iteration of the algorithm in spec.md §4.E, returning
// whether complete_task was observed this turn.
func (ac *AgentCore) turn(ctx context.Context) (bool, error) {
	ctx, span := tracer.Start(ctx, "agentcore.turn")
	defer span.End()

	n := ac.turnCount.Add(1)
	if ac.cfg.MaxTurns > 0 && int(n) > ac.cfg.MaxTurns {
		return false, &MaxTurnsExceeded{MaxTurns: ac.cfg.MaxTurns}
	}

	for _, item := range ac.cfg.Queue.Drain() {
		ac.cfg.Context.Append(models.Message{Role: models.RoleUser, Content: item.Text, CreatedAt: time.Now()})
	}

	if ac.cfg.Context.ShouldCompact() {
		if err := ac.cfg.Context.Compact(ctx); err != nil {
			ac.emit(models.LogContext, "compaction failed", "", "", nil)
		} else {
			ac.emit(models.LogContext, "context compacted", "", "", nil)
		}
	}

	req := modelclient.ChatRequest{
		Model:     ac.cfg.ModelName,
		System:    ac.cfg.SystemPrompt,
		Messages:  ac.cfg.Context.Messages(),
		Tools:     ac.cfg.Tools.List(),
		MaxTokens: ac.cfg.MaxTokens,
	}

	if ac.cfg.Metrics != nil {
		ac.cfg.Metrics.RecordContextWindow(ac.cfg.Model.Name(), ac.cfg.ModelName, ac.cfg.Context.UsageTokens())
	}

	modelCtx, modelSpan := tracer.Start(ctx, "agentcore.model_call")
	modelStart := time.Now()
	chunks, err := ac.cfg.Model.Complete(modelCtx, req)
	if err != nil {
		modelSpan.RecordError(err)
		modelSpan.SetStatus(codes.Error, err.Error())
		modelSpan.End()
		span.RecordError(err)
		if ac.cfg.Metrics != nil {
			ac.cfg.Metrics.RecordLLMRequest(ac.cfg.Model.Name(), ac.cfg.ModelName, "error", time.Since(modelStart).Seconds(), 0, 0)
			ac.cfg.Metrics.RecordError("agentcore", "model_call_failed")
		}
		return false, err
	}

	assistantMsg, toolCalls, inputTokens, outputTokens, streamErr := collect(chunks)
	modelSpan.SetAttributes(
		attribute.Int("agentrt.input_tokens", inputTokens),
		attribute.Int("agentrt.output_tokens", outputTokens),
	)
	modelSpan.End()
	if streamErr != nil {
		span.RecordError(streamErr)
		if ac.cfg.Metrics != nil {
			ac.cfg.Metrics.RecordLLMRequest(ac.cfg.Model.Name(), ac.cfg.ModelName, "error", time.Since(modelStart).Seconds(), inputTokens, outputTokens)
			ac.cfg.Metrics.RecordError("agentcore", "stream_failed")
		}
		return false, streamErr
	}
	if ac.cfg.Metrics != nil {
		ac.cfg.Metrics.RecordLLMRequest(ac.cfg.Model.Name(), ac.cfg.ModelName, "success", time.Since(modelStart).Seconds(), inputTokens, outputTokens)
	}

	ac.cfg.Context.Append(assistantMsg)
	ac.loopCount.Add(1)
	ac.tokens.Add(int64(inputTokens + outputTokens))
	ac.emit(models.LogLLM, assistantMsg.Content, "", "", nil)
	ac.mu.Lock()
	ac.lastAction = "model_reply"
	ac.mu.Unlock()
	ac.publishStatus()

	if len(toolCalls) == 0 {
		return false, nil
	}

	completed := false
	for _, tc := range toolCalls {
		if completed {
			ac.emit(models.LogTool, "skipped after completion", tc.ToolDescription, tc.Name, tc.Arguments)
			continue
		}
		if tc.Name == toolregistry.ToolCompleteTask {
			rec := completionFromArgs(tc.Arguments)
			ac.setCompletion(rec)
			completed = true
			ac.emit(models.LogLifecycle, "complete_task: "+string(rec.Reason), tc.ToolDescription, tc.Name, tc.Arguments)
			if ac.cfg.Metrics != nil && rec.Reason == models.CompletionStuck {
				ac.cfg.Metrics.RecordRunStuck(ac.runMode())
			}
			continue
		}

		_, toolSpan := tracer.Start(ctx, "agentcore.tool_call", traceTool(tc.Name))
		toolStart := time.Now()
		content, _, invokeErr := ac.cfg.Tools.Invoke(ctx, tc.Name, tc.Arguments)
		result := models.Message{Role: models.RoleToolResult, ToolCallID: tc.ID, CreatedAt: time.Now()}
		if invokeErr != nil {
			result.Content = invokeErr.Error()
			toolSpan.RecordError(invokeErr)
			toolSpan.SetStatus(codes.Error, invokeErr.Error())
			if ac.cfg.Metrics != nil {
				ac.cfg.Metrics.RecordToolExecution(tc.Name, "error", time.Since(toolStart).Seconds())
				ac.cfg.Metrics.RecordError("tool", tc.Name)
			}
		} else {
			result.Content = content
			if ac.cfg.Metrics != nil {
				ac.cfg.Metrics.RecordToolExecution(tc.Name, "success", time.Since(toolStart).Seconds())
			}
		}
		toolSpan.End()

		ac.cfg.Context.Append(result)
		ac.emit(models.LogTool, result.Content, tc.ToolDescription, tc.Name, tc.Arguments)
		ac.mu.Lock()
		ac.lastAction = "tool:" + tc.Name
		ac.mu.Unlock()
		ac.publishStatus()
	}

	return completed, nil
}

func traceTool(name string) trace.SpanStartOption {
	return trace.WithAttributes(attribute.String("agentrt.tool", name))
}

// runMode labels this AgentCore's metrics by its completion semantics:
// "worker" for tournament/subagent workers (Config.Worker), "run" for the
// continuous/task-executor main agent.
func (ac *AgentCore) runMode() string {
	if ac.cfg.Worker {
		return "worker"
	}
	return "run"
}

func (ac *AgentCore) emit(category models.LogCategory, message, description, toolName string, args map[string]any) {
	if ac.cfg.Log == nil {
		return
	}
	ac.cfg.Log.Emit(models.EnhancedLogEntry{
		Category:      category,
		Message:       message,
		Description:   description,
		ToolName:      toolName,
		ToolArguments: args,
	})
}

func (ac *AgentCore) publishStatus() {
	if ac.cfg.Status == nil {
		return
	}
	ac.mu.Lock()
	lastAction := ac.lastAction
	ac.mu.Unlock()
	ac.cfg.Status.Publish(models.AgentStatus{
		State:               ac.State(),
		LoopCount:           ac.loopCount.Load(),
		CumulativeTokens:    ac.tokens.Load(),
		LastAction:          lastAction,
		ContextUsagePercent: ac.cfg.Context.UsagePercent(),
		PendingPrompts:      ac.cfg.Queue.Len(),
		UpdatedAt:           time.Now(),
	})
}

// collect drains a ResponseChunk stream into a single assistant message
// plus the tool calls it carried, accumulating token counts and returning
// the first streaming error encountered, if any.
func collect(chunks <-chan *modelclient.ResponseChunk) (models.Message, []models.ToolCall, int, int, error) {
	msg := models.Message{Role: models.RoleAssistant, CreatedAt: time.Now()}
	var toolCalls []models.ToolCall
	var inputTokens, outputTokens int
	var streamErr error

	for chunk := range chunks {
		if chunk.Error != nil {
			if streamErr == nil {
				streamErr = chunk.Error
			}
			continue
		}
		if chunk.Text != "" {
			msg.Content += chunk.Text
		}
		if chunk.ToolCall != nil {
			toolCalls = append(toolCalls, *chunk.ToolCall)
		}
		inputTokens += chunk.InputTokens
		outputTokens += chunk.OutputTokens
	}

	msg.ToolCalls = toolCalls
	return msg, toolCalls, inputTokens, outputTokens, streamErr
}

func completionFromArgs(args map[string]any) models.CompletionRecord {
	rec := models.CompletionRecord{Reason: models.CompletionFinished}
	if reason, ok := args["reason"].(string); ok && reason != "" {
		rec.Reason = models.CompletionReason(reason)
	}
	if summary, ok := args["summary"].(string); ok {
		rec.Summary = summary
	}
	if output, ok := args["output"]; ok {
		rec.Output = output
	}
	return rec
}
