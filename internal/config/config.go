// Package config loads and hot-reloads the agentrt YAML configuration.
package config

import (
	"fmt"
)

// ModelConfig identifies a provider/model pair used for one of the three
// ModelClient roles (main, worker, summarizer). Fallbacks, when set, are
// tried in order after Provider/Model, wrapped together into a
// modelclient.FailoverClient.
type ModelConfig struct {
	Provider  string        `yaml:"provider"`
	Model     string        `yaml:"model"`
	APIKey    string        `yaml:"api_key"`
	BaseURL   string        `yaml:"base_url"`
	Fallbacks []ModelConfig `yaml:"fallbacks"`
}

// ModelsConfig groups the three role-scoped model selections.
type ModelsConfig struct {
	Main       ModelConfig `yaml:"main"`
	Summarizer ModelConfig `yaml:"summarizer"`
	Worker     ModelConfig `yaml:"worker"`
}

// ContextConfig controls ContextManager thresholds.
type ContextConfig struct {
	MaxTokens           int     `yaml:"max_tokens"`
	CompactionThreshold float64 `yaml:"compaction_threshold"`
}

// AgentConfig controls AgentCore turn behavior.
type AgentConfig struct {
	EnableCodeExecution bool `yaml:"enable_code_execution"`
	CodeTimeoutSeconds  int  `yaml:"code_timeout_seconds"`
	MaxTurns            int  `yaml:"max_turns"`
	TimeoutSeconds      int  `yaml:"timeout_seconds"`
	ContinuousMode      bool `yaml:"continuous_mode"`
}

// TournamentConfig controls TournamentEngine defaults.
type TournamentConfig struct {
	DefaultStages       int `yaml:"default_stages"`
	DefaultDebateRounds int `yaml:"default_debate_rounds"`
}

// SandboxConfig controls WorkspaceFS rooting.
type SandboxConfig struct {
	Root string `yaml:"root"`
}

// TelemetryConfig controls the OpenTelemetry tracer installed at startup
// and the Prometheus metrics registered against agentcore's turn loop.
type TelemetryConfig struct {
	// ServiceName labels exported spans; Prometheus metric names do not
	// include it. Defaults to "agentrt" when unset.
	ServiceName string `yaml:"service_name"`
	// Endpoint is an OTLP gRPC collector address (host:port). Empty
	// disables exporting; spans are still created against the no-op
	// global tracer, and Metrics recording is unaffected either way.
	Endpoint string `yaml:"endpoint"`
	// SamplingRate is the fraction of traces sampled, in [0, 1].
	// Defaults to 1.0 (always sample) when unset and Endpoint is set.
	SamplingRate float64 `yaml:"sampling_rate"`
	// Metrics enables registering Prometheus collectors against the
	// default registry and wiring them into every AgentCore built by
	// this process.
	Metrics bool `yaml:"metrics"`
}

// Config is the top-level agentrt configuration document.
type Config struct {
	Version    int              `yaml:"version"`
	Model      ModelsConfig     `yaml:"model"`
	Context    ContextConfig    `yaml:"context"`
	Agent      AgentConfig      `yaml:"agent"`
	Tournament TournamentConfig `yaml:"tournament"`
	Sandbox    SandboxConfig    `yaml:"sandbox"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

// Defaults returns a Config populated with the runtime's built-in defaults,
// applied before a config file is merged on top.
func Defaults() *Config {
	return &Config{
		Version: CurrentVersion,
		Context: ContextConfig{
			MaxTokens:           180_000,
			CompactionThreshold: 0.85,
		},
		Agent: AgentConfig{
			EnableCodeExecution: false,
			CodeTimeoutSeconds:  30,
			MaxTurns:            0,
			TimeoutSeconds:      0,
			ContinuousMode:      true,
		},
		Tournament: TournamentConfig{
			DefaultStages:       2,
			DefaultDebateRounds: 1,
		},
		Sandbox: SandboxConfig{
			Root: "./sandbox",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "agentrt",
		},
	}
}

// Load reads the config file at path, resolving $include directives and
// merging the result on top of Defaults.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	merged := mergeDefaults(Defaults(), cfg)
	if err := ValidateVersion(merged.Version); err != nil {
		return nil, err
	}
	if err := merged.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return merged, nil
}

// Validate checks that required fields are set and numeric ranges are sane.
func (c *Config) Validate() error {
	if c.Model.Main.Provider == "" || c.Model.Main.Model == "" {
		return fmt.Errorf("model.main.provider and model.main.model are required")
	}
	if c.Context.MaxTokens <= 0 {
		return fmt.Errorf("context.max_tokens must be positive")
	}
	if c.Context.CompactionThreshold <= 0 || c.Context.CompactionThreshold > 1 {
		return fmt.Errorf("context.compaction_threshold must be in (0, 1]")
	}
	if c.Sandbox.Root == "" {
		return fmt.Errorf("sandbox.root is required")
	}
	return nil
}

// mergeDefaults fills zero-valued fields in cfg with values from defaults.
// Zero values in a loaded YAML document are indistinguishable from "unset",
// which is the tradeoff this runtime accepts in exchange for not requiring
// every key to be spelled out in every config file.
func mergeDefaults(defaults, cfg *Config) *Config {
	if cfg.Version == 0 {
		cfg.Version = defaults.Version
	}
	if cfg.Context.MaxTokens == 0 {
		cfg.Context.MaxTokens = defaults.Context.MaxTokens
	}
	if cfg.Context.CompactionThreshold == 0 {
		cfg.Context.CompactionThreshold = defaults.Context.CompactionThreshold
	}
	if cfg.Agent.CodeTimeoutSeconds == 0 {
		cfg.Agent.CodeTimeoutSeconds = defaults.Agent.CodeTimeoutSeconds
	}
	if cfg.Tournament.DefaultStages == 0 {
		cfg.Tournament.DefaultStages = defaults.Tournament.DefaultStages
	}
	if cfg.Tournament.DefaultDebateRounds == 0 {
		cfg.Tournament.DefaultDebateRounds = defaults.Tournament.DefaultDebateRounds
	}
	if cfg.Sandbox.Root == "" {
		cfg.Sandbox.Root = defaults.Sandbox.Root
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = defaults.Telemetry.ServiceName
	}
	return cfg
}
