// Package modelclient abstracts over concrete LLM providers behind a single
// streaming completion contract, with failover and circuit-breaking across
// an ordered list of backing clients.
package modelclient

import (
	"context"

	"github.com/pasteldev/agentic-runtime/internal/modelclient/providers"
)

// ChatRequest is a single completion request sent to a ModelClient. It
// aliases providers.ChatRequest so provider adapters need no dependency on
// this package.
type ChatRequest = providers.ChatRequest

// ResponseChunk is one unit of a streamed completion. Exactly one of Text,
// ToolCall, Error is meaningful per chunk; Done marks stream end.
type ResponseChunk = providers.ResponseChunk

// ModelClient is the uniform interface every provider adapter and the
// FailoverClient implement.
type ModelClient interface {
	// Name returns the provider identifier used for routing and logging.
	Name() string
	// Complete streams a completion. The returned channel is closed when
	// the stream ends, whether by Done or by Error.
	Complete(ctx context.Context, req ChatRequest) (<-chan *ResponseChunk, error)
}

// charsPerToken is the heuristic used across the codebase to approximate
// token counts without invoking a real tokenizer, matching the teacher's
// compaction.EstimateTokens.
const charsPerToken = 4

// EstimateTokens approximates the token cost of a request using the
// 4-characters-per-token heuristic.
func EstimateTokens(req ChatRequest) int {
	total := len(req.System) / charsPerToken
	for _, msg := range req.Messages {
		total += len(msg.Content) / charsPerToken
		for _, tc := range msg.ToolCalls {
			total += len(tc.Name) / charsPerToken
			total += len(tc.Input) / charsPerToken
		}
	}
	for _, tool := range req.Tools {
		total += len(tool.Name) / charsPerToken
		total += len(tool.Description) / charsPerToken
	}
	return total
}
