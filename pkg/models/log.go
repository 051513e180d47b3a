package models

import "time"

// LogCategory classifies an EnhancedLogEntry for filtering/display.
type LogCategory string

const (
	LogLifecycle  LogCategory = "lifecycle"
	LogLLM        LogCategory = "llm"
	LogTool       LogCategory = "tool"
	LogContext    LogCategory = "context"
	LogTournament LogCategory = "tournament"
	LogError      LogCategory = "error"
)

// EnhancedLogEntry is one entry in EnhancedLogger's bounded, append-only log.
type EnhancedLogEntry struct {
	Timestamp   time.Time      `json:"timestamp"`
	Category    LogCategory    `json:"category"`
	Message     string         `json:"message"`
	Description string         `json:"description,omitempty"`
	ToolName    string         `json:"tool_name,omitempty"`
	// ToolArguments has tool_description and any redacted fields removed,
	// per EnhancedLogger's redaction rule.
	ToolArguments map[string]any `json:"tool_arguments,omitempty"`
}
