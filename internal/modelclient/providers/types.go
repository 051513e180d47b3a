package providers

import "github.com/pasteldev/agentic-runtime/pkg/models"

// ChatRequest is a single completion request. It is defined here, rather
// than in the parent modelclient package, so provider adapters have no
// dependency on modelclient and modelclient.ChatRequest can alias this type
// without an import cycle.
type ChatRequest struct {
	Model     string
	System    string
	Messages  []models.Message
	Tools     []models.Tool
	MaxTokens int
}

// ResponseChunk is one unit of a streamed completion. Exactly one of Text,
// ToolCall, Error is meaningful per chunk; Done marks stream end.
type ResponseChunk struct {
	Text         string
	ToolCall     *models.ToolCall
	Error        error
	Done         bool
	InputTokens  int
	OutputTokens int
}
