// Package main provides the CLI entry point for the agentrt runtime.
//
// agentrt drives a single agent loop (AgentCore) against a configured
// model provider in one of three modes.
//
// # Basic Usage
//
// Run continuously until stopped:
//
//	agentrt run --config agentrt.yaml --goal "keep the inbox triaged"
//
// Execute a single task and exit when it completes:
//
//	agentrt task --config agentrt.yaml "summarize this week's deploys"
//
// Run a multi-stage tournament:
//
//	agentrt tournament --config agentrt.yaml --topic "design the cache layer" --stages 3,1
//
// # Environment Variables
//
//   - AGENTRT_CONFIG: path to the configuration file (default: agentrt.yaml)
//   - Any variable the config file references as ${NAME}, for example
//     api_key: ${ANTHROPIC_API_KEY}; the file is expanded with os.ExpandEnv
//     when loaded. Anthropic and OpenAI keys are not read from the
//     environment in any other way.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pasteldev/agentic-runtime/internal/agentcore"
	"github.com/pasteldev/agentic-runtime/internal/config"
	"github.com/pasteldev/agentic-runtime/internal/contextmgr"
	"github.com/pasteldev/agentic-runtime/internal/enhancedlog"
	"github.com/pasteldev/agentic-runtime/internal/lifecycle"
	"github.com/pasteldev/agentic-runtime/internal/modelclient"
	"github.com/pasteldev/agentic-runtime/internal/modelclient/providers"
	"github.com/pasteldev/agentic-runtime/internal/observability"
	"github.com/pasteldev/agentic-runtime/internal/promptqueue"
	"github.com/pasteldev/agentic-runtime/internal/statusbus"
	"github.com/pasteldev/agentic-runtime/internal/tools/builtin"
	"github.com/pasteldev/agentic-runtime/internal/toolregistry"
	"github.com/pasteldev/agentic-runtime/internal/tournament"
	"github.com/pasteldev/agentic-runtime/internal/workspacefs"
	"github.com/pasteldev/agentic-runtime/pkg/models"
)

// Build information, populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// Separated from main so tests can exercise it without executing.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "agentrt",
		Short:        "agentrt - autonomous agent runtime",
		Long:         "agentrt drives a single agent loop against a configured model provider, as a continuous self-directed loop, a one-shot task executor, or a multi-stage tournament.",
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	rootCmd.AddCommand(buildRunCmd(), buildTaskCmd(), buildTournamentCmd())
	return rootCmd
}

func resolveConfigPath(path string) string {
	if strings.TrimSpace(path) != "" {
		return path
	}
	if env := strings.TrimSpace(os.Getenv("AGENTRT_CONFIG")); env != "" {
		return env
	}
	return "agentrt.yaml"
}

// buildSingleModelClient constructs the ModelClient for one ModelConfig
// entry, ignoring any Fallbacks it carries.
func buildSingleModelClient(mc config.ModelConfig) (modelclient.ModelClient, error) {
	switch strings.ToLower(strings.TrimSpace(mc.Provider)) {
	case "anthropic":
		return providers.NewAnthropicProvider(providers.AnthropicConfig{
			APIKey:       mc.APIKey,
			BaseURL:      mc.BaseURL,
			DefaultModel: mc.Model,
		})
	case "openai":
		return providers.NewOpenAIProvider(mc.APIKey), nil
	case "bedrock":
		return providers.NewBedrockProvider(providers.BedrockConfig{DefaultModel: mc.Model})
	default:
		return nil, fmt.Errorf("agentrt: unsupported model provider %q", mc.Provider)
	}
}

// buildModelClient constructs the ModelClient backing one of the config's
// three model roles (main, worker, summarizer). When mc.Fallbacks is
// non-empty, the primary and every fallback are wrapped in a
// modelclient.FailoverClient that advances to the next on a fatal error.
func buildModelClient(mc config.ModelConfig) (modelclient.ModelClient, error) {
	primary, err := buildSingleModelClient(mc)
	if err != nil {
		return nil, err
	}
	if len(mc.Fallbacks) == 0 {
		return primary, nil
	}

	clients := []modelclient.ModelClient{primary}
	for i, fb := range mc.Fallbacks {
		client, err := buildSingleModelClient(fb)
		if err != nil {
			return nil, fmt.Errorf("agentrt: build fallback model client %d: %w", i, err)
		}
		clients = append(clients, client)
	}
	return modelclient.NewFailoverClient(clients, slog.Default()), nil
}

// roleOrMain returns role if it names a provider, else falls back to main.
func roleOrMain(role, main config.ModelConfig) config.ModelConfig {
	if strings.TrimSpace(role.Provider) == "" {
		return main
	}
	return role
}

// errorModelClient reports the same construction error on every Complete
// call, used so a tournament worker whose model client failed to build
// still fails loudly at Start rather than panicking on a nil client.
type errorModelClient struct{ err error }

func (c errorModelClient) Name() string { return "error" }

func (c errorModelClient) Complete(ctx context.Context, req modelclient.ChatRequest) (<-chan *modelclient.ResponseChunk, error) {
	return nil, c.err
}

// manageContextHandler adapts the manage_context tool onto a
// ContextManager: "compact" forces an immediate compaction, "usage"
// reports the current window usage.
func manageContextHandler(ctxMgr *contextmgr.ContextManager) models.ToolHandler {
	return func(ctx context.Context, args map[string]any) (string, any, error) {
		switch action, _ := args["action"].(string); action {
		case "compact":
			if err := ctxMgr.Compact(ctx); err != nil {
				return "", nil, err
			}
			return "context compacted", nil, nil
		case "usage":
			pct := ctxMgr.UsagePercent()
			return fmt.Sprintf("context usage: %.1f%%", pct*100), pct, nil
		default:
			return "", nil, &toolregistry.SchemaViolation{Tool: toolregistry.ToolManageContext, Detail: "action must be compact or usage"}
		}
	}
}

// buildMainRegistry seeds the reserved control tools plus the workspace
// file tools and, when enabled, a sandboxed exec tool, for a standalone
// (non-tournament) run.
func buildMainRegistry(ws *workspacefs.WorkspaceFS, ctxMgr *contextmgr.ContextManager, cfg *config.Config) (*toolregistry.Registry, error) {
	reg := toolregistry.New()

	noopCompleteTask := func(context.Context, map[string]any) (string, any, error) { return "", nil, nil }
	noReveal := func(context.Context, map[string]any) (string, any, error) {
		return "", nil, fmt.Errorf("reveal is only available within a tournament")
	}
	if err := toolregistry.SeedReserved(reg, noopCompleteTask, manageContextHandler(ctxMgr), noReveal); err != nil {
		return nil, err
	}

	for _, tool := range builtin.WorkspaceTools(ws) {
		if err := reg.Register(tool); err != nil {
			return nil, err
		}
	}

	if cfg.Agent.EnableCodeExecution {
		execTool := workspacefs.NewCodeExecTool(ws, workspacefs.CodeExecConfig{
			Timeout: time.Duration(cfg.Agent.CodeTimeoutSeconds) * time.Second,
		})
		if err := reg.Register(models.Tool{
			Name:        "exec_command",
			Description: "Run a command rooted at the workspace directory, subject to a timeout.",
			Parameters: models.ParameterSchema{
				Properties: map[string]models.ParameterSpec{
					"command": {Type: "string", Description: "Executable to run."},
					"args":    {Type: "array", Description: "Arguments passed to the executable."},
				},
				Required: []string{"command"},
			},
			Handler:  execTool.Handler(),
			Category: models.ToolCategoryCore,
		}); err != nil {
			return nil, err
		}
	}

	return reg, nil
}

// setupTelemetry installs an OpenTelemetry tracer (real OTLP exporter when
// tc.Endpoint is set, otherwise the no-op global tracer agentcore's spans
// already target) and, when tc.Metrics is set, registers the Prometheus
// collectors agentcore records LLM/tool/run metrics through. The returned
// shutdown func flushes the tracer and must be called before process exit.
func setupTelemetry(tc config.TelemetryConfig) (*observability.Metrics, func(context.Context) error) {
	_, shutdown := observability.NewTracer(observability.TraceConfig{
		ServiceName:  tc.ServiceName,
		Endpoint:     tc.Endpoint,
		SamplingRate: tc.SamplingRate,
	})

	var metrics *observability.Metrics
	if tc.Metrics {
		metrics = observability.NewMetrics()
	}
	return metrics, shutdown
}

// runStack bundles one standalone run's wired components.
type runStack struct {
	core     *agentcore.AgentCore
	ctrl     *lifecycle.Controller
	ws       *workspacefs.WorkspaceFS
	log      *enhancedlog.EnhancedLogger
	status   *statusbus.StatusBus
	queue    *promptqueue.PromptQueue
	shutdown func(context.Context) error
}

// buildStack wires the ten components for a standalone run. worker governs
// AgentCore.Config.Worker directly (see the Worker/ContinuousMode polarity
// note below); callers compute it per command.
func buildStack(cfg *config.Config, worker bool) (*runStack, error) {
	mainClient, err := buildModelClient(cfg.Model.Main)
	if err != nil {
		return nil, fmt.Errorf("agentrt: build main model client: %w", err)
	}
	summarizerCfg := roleOrMain(cfg.Model.Summarizer, cfg.Model.Main)
	summarizerClient, err := buildModelClient(summarizerCfg)
	if err != nil {
		return nil, fmt.Errorf("agentrt: build summarizer model client: %w", err)
	}

	ws, err := workspacefs.New(cfg.Sandbox.Root)
	if err != nil {
		return nil, fmt.Errorf("agentrt: open workspace: %w", err)
	}

	ctxMgr, err := contextmgr.New(summarizerClient, contextmgr.Config{
		MaxTokens:       cfg.Context.MaxTokens,
		Threshold:       cfg.Context.CompactionThreshold,
		SummarizerModel: summarizerCfg.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("agentrt: build context manager: %w", err)
	}

	queue := promptqueue.New()
	log := enhancedlog.New(0)
	status := statusbus.New()

	registry, err := buildMainRegistry(ws, ctxMgr, cfg)
	if err != nil {
		return nil, fmt.Errorf("agentrt: build tool registry: %w", err)
	}

	metrics, shutdown := setupTelemetry(cfg.Telemetry)

	core := agentcore.New(agentcore.Config{
		Model:     mainClient,
		ModelName: cfg.Model.Main.Model,
		Tools:     registry,
		Context:   ctxMgr,
		Queue:     queue,
		Status:    status,
		Log:       log,
		MaxTurns:  cfg.Agent.MaxTurns,
		Worker:    worker,
		Metrics:   metrics,
	})
	ctrl := lifecycle.New(lifecycle.Config{Core: core, Workspace: ws, Queue: queue, Log: log, Status: status})

	return &runStack{core: core, ctrl: ctrl, ws: ws, log: log, status: status, queue: queue, shutdown: shutdown}, nil
}

func buildRunCmd() *cobra.Command {
	var (
		configPath string
		goal       string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the agent continuously until stopped",
		Long: `Start the agent's self-directed loop and keep it running until SIGINT/SIGTERM.

Whether the loop continues past its first complete_task call is governed by
agent.continuous_mode in the config file: true (the default) keeps the loop
going and lets the agent pick its own next goal; false stops the run at the
first complete_task, matching the task command's behavior.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath = resolveConfigPath(configPath)
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if strings.TrimSpace(goal) == "" {
				return fmt.Errorf("--goal is required")
			}

			// agentcore.Config.Worker and config.AgentConfig.ContinuousMode are
			// inverse: Worker=true means "stop at the first complete_task", so
			// the continuous loop runs with Worker = !ContinuousMode.
			stack, err := buildStack(cfg, !cfg.Agent.ContinuousMode)
			if err != nil {
				return err
			}
			defer stack.shutdown(context.Background())

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			if err := stack.ctrl.Start(ctx, goal); err != nil {
				return fmt.Errorf("start agent: %w", err)
			}

			<-ctx.Done()
			fmt.Fprintln(cmd.OutOrStdout(), "shutdown signal received, stopping")
			if err := stack.ctrl.Stop(); err != nil {
				return fmt.Errorf("stop agent: %w", err)
			}
			stack.core.Wait()

			return printCompletion(cmd, stack.core)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().StringVarP(&goal, "goal", "g", "", "Initial goal for the agent to pursue")
	return cmd
}

func buildTaskCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "task <goal>",
		Short: "Run a single task to completion and exit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath = resolveConfigPath(configPath)
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			// A one-shot task always stops at the first complete_task,
			// regardless of agent.continuous_mode.
			stack, err := buildStack(cfg, true)
			if err != nil {
				return err
			}
			defer stack.shutdown(context.Background())

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			if err := stack.ctrl.Start(ctx, args[0]); err != nil {
				return fmt.Errorf("start agent: %w", err)
			}
			stack.core.Wait()

			return printCompletion(cmd, stack.core)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	return cmd
}

func printCompletion(cmd *cobra.Command, core *agentcore.AgentCore) error {
	out := cmd.OutOrStdout()
	if rec, ok := core.Completion(); ok {
		fmt.Fprintf(out, "completed: reason=%s summary=%s\n", rec.Reason, rec.Summary)
		if rec.Reason == models.CompletionError || rec.Reason == models.CompletionStuck || rec.Reason == models.CompletionBlocked {
			return fmt.Errorf("agent did not finish cleanly: %s", rec.Reason)
		}
		return nil
	}
	if err := core.LastError(); err != nil {
		fmt.Fprintf(out, "stopped with error: %v\n", err)
		return err
	}
	fmt.Fprintln(out, "stopped with no completion recorded")
	return nil
}

func buildTournamentCmd() *cobra.Command {
	var (
		configPath   string
		topic        string
		stagesArg    string
		debateRounds int
	)

	cmd := &cobra.Command{
		Use:   "tournament",
		Short: "Run a multi-stage tournament",
		Long: `Run a staged, multi-worker contest: --stages is a comma-separated,
non-increasing worker count per stage (e.g. "3,1" runs 3 workers producing
artifacts that feed a single final worker).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath = resolveConfigPath(configPath)
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if strings.TrimSpace(topic) == "" {
				return fmt.Errorf("--topic is required")
			}

			stages, err := parseStages(stagesArg, cfg.Tournament.DefaultStages)
			if err != nil {
				return err
			}
			if debateRounds <= 0 {
				debateRounds = cfg.Tournament.DefaultDebateRounds
			}

			workerClientCfg := roleOrMain(cfg.Model.Worker, cfg.Model.Main)
			summarizerCfg := roleOrMain(cfg.Model.Summarizer, cfg.Model.Main)

			metrics, shutdown := setupTelemetry(cfg.Telemetry)
			defer shutdown(context.Background())

			engineCfg := tournament.Config{
				Topic:        topic,
				Stages:       stages,
				DebateRounds: debateRounds,
				SandboxRoot:  cfg.Sandbox.Root,
				NewWorker: func(stageIdx, workerIdx int, fs *workspacefs.WorkspaceFS, reveals *tournament.RevealStore, seq *tournament.Sequencer) *agentcore.AgentCore {
					client, err := buildModelClient(workerClientCfg)
					if err != nil {
						slog.Error("tournament: build worker model client", "error", err)
						client = errorModelClient{err: err}
					}
					summarizerClient, err := buildModelClient(summarizerCfg)
					if err != nil {
						slog.Error("tournament: build worker summarizer client", "error", err)
						summarizerClient = errorModelClient{err: err}
					}
					ctxMgr, err := contextmgr.New(summarizerClient, contextmgr.Config{
						MaxTokens:       cfg.Context.MaxTokens,
						Threshold:       cfg.Context.CompactionThreshold,
						SummarizerModel: summarizerCfg.Model,
					})
					if err != nil {
						slog.Error("tournament: build worker context manager", "error", err)
						return agentcore.New(agentcore.Config{Model: errorModelClient{err: err}, Worker: true, Metrics: metrics})
					}
					workerID := fmt.Sprintf("stage%d-worker%d", stageIdx, workerIdx)
					registry := tournament.NewWorkerRegistry(fs, workerID, reveals, seq, builtin.WorkspaceTools(fs)...)
					return agentcore.New(agentcore.Config{
						Model:     client,
						ModelName: workerClientCfg.Model,
						Tools:     registry,
						Context:   ctxMgr,
						Queue:     promptqueue.New(),
						Status:    statusbus.New(),
						Log:       enhancedlog.New(0),
						MaxTurns:  cfg.Agent.MaxTurns,
						Worker:    true,
						Metrics:   metrics,
					})
				},
			}

			engine := tournament.New(strconv.FormatInt(time.Now().UnixNano(), 36), engineCfg)
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			result, err := engine.Run(ctx)
			if err != nil {
				return fmt.Errorf("run tournament: %w", err)
			}

			out := cmd.OutOrStdout()
			for _, stage := range result.Stages {
				fmt.Fprintf(out, "stage %d: %d artifacts, failed=%v\n", stage.Index, len(stage.Artifacts), stage.Failed)
			}
			if result.Failed {
				return fmt.Errorf("tournament failed")
			}
			fmt.Fprintf(out, "final artifacts: %d\n", len(result.Artifacts))
			for _, a := range result.Artifacts {
				fmt.Fprintf(out, "  %s: %s\n", a.Filename, a.Description)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().StringVar(&topic, "topic", "", "Tournament topic/goal")
	cmd.Flags().StringVar(&stagesArg, "stages", "", "Comma-separated worker count per stage, e.g. \"3,1\"")
	cmd.Flags().IntVar(&debateRounds, "debate-rounds", 0, "Debate rounds per stage (0 uses the config default)")
	return cmd
}

func parseStages(arg string, defaultStages int) ([]tournament.StageConfig, error) {
	if strings.TrimSpace(arg) == "" {
		if defaultStages <= 0 {
			defaultStages = 1
		}
		stages := make([]tournament.StageConfig, defaultStages)
		for i := range stages {
			stages[i] = tournament.StageConfig{Workers: defaultStages - i}
		}
		return stages, nil
	}

	parts := strings.Split(arg, ",")
	stages := make([]tournament.StageConfig, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("agentrt: invalid stage worker count %q", p)
		}
		stages = append(stages, tournament.StageConfig{Workers: n})
	}
	return stages, nil
}
