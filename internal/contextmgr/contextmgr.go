// Package contextmgr implements the ContextManager component: a token-
// budgeted message sequence that compacts its older history into a single
// synthetic summary message once usage crosses a configured threshold.
package contextmgr

import (
	"context"
	"fmt"
	"sync"

	"github.com/pasteldev/agentic-runtime/internal/modelclient"
	"github.com/pasteldev/agentic-runtime/pkg/models"
)

// RangeError is returned when SetThreshold is given a value outside
// [0.1, 0.99].
type RangeError struct{ Value float64 }

func (e *RangeError) Error() string {
	return fmt.Sprintf("contextmgr: threshold %v out of range [0.1, 0.99]", e.Value)
}

// CompactionFailed is returned when the summarizer call fails. The context
// is left untouched.
type CompactionFailed struct{ Cause error }

func (e *CompactionFailed) Error() string {
	return fmt.Sprintf("contextmgr: compaction failed: %v", e.Cause)
}

func (e *CompactionFailed) Unwrap() error { return e.Cause }

// Config configures a ContextManager.
type Config struct {
	// MaxTokens is the context window size the manager budgets against.
	MaxTokens int
	// Threshold is the usage ratio at which ShouldCompact reports true.
	Threshold float64
	// KeepRecent is the floor on verbatim messages preserved across a
	// compaction (the "latest K turns"). Default 4.
	KeepRecent int
	// SummarizerModel selects which model identifier the summarizer call
	// is routed to (distinct from the main/worker model).
	SummarizerModel string
}

const defaultKeepRecent = 4

// ContextManager holds an ordered Message sequence and compacts it on
// demand via a ModelClient summarizer call.
type ContextManager struct {
	mu              sync.Mutex
	messages        []models.Message
	maxTokens       int
	threshold       float64
	keepRecent      int
	summarizerModel string
	estimatedTokens int
	compactionCount int
	client          modelclient.ModelClient
}

// New creates a ContextManager backed by client for compaction calls.
func New(client modelclient.ModelClient, cfg Config) (*ContextManager, error) {
	threshold := cfg.Threshold
	if threshold == 0 {
		threshold = 0.8
	}
	if threshold < 0.1 || threshold > 0.99 {
		return nil, &RangeError{Value: threshold}
	}
	keepRecent := cfg.KeepRecent
	if keepRecent <= 0 {
		keepRecent = defaultKeepRecent
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 200_000
	}
	return &ContextManager{
		maxTokens:       maxTokens,
		threshold:       threshold,
		keepRecent:      keepRecent,
		summarizerModel: cfg.SummarizerModel,
		client:          client,
	}, nil
}

// Append adds msg to the end of the sequence and updates the token
// estimate.
func (c *ContextManager) Append(msg models.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msg)
	c.estimatedTokens += estimateMessageTokens(msg)
}

// Messages returns a snapshot of the current sequence.
func (c *ContextManager) Messages() []models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// UsagePercent reports estimated_tokens / max_tokens.
func (c *ContextManager) UsagePercent() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return float64(c.estimatedTokens) / float64(c.maxTokens)
}

// UsageTokens reports the current estimated token count.
func (c *ContextManager) UsageTokens() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.estimatedTokens
}

// ShouldCompact reports whether usage has crossed the configured
// threshold.
func (c *ContextManager) ShouldCompact() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return float64(c.estimatedTokens)/float64(c.maxTokens) >= c.threshold
}

// SetThreshold updates the compaction threshold. t must be in
// [0.1, 0.99].
func (c *ContextManager) SetThreshold(t float64) error {
	if t < 0.1 || t > 0.99 {
		return &RangeError{Value: t}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.threshold = t
	return nil
}

// CompactionCount returns the number of successful compactions performed.
func (c *ContextManager) CompactionCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.compactionCount
}

// Compact drops the older prefix of the sequence (everything but the last
// KeepRecent messages) and replaces it with a single synthetic system
// message summarizing it, generated by calling the ModelClient with a
// dedicated summarizer prompt. On failure the context is left untouched
// and CompactionFailed is returned.
func (c *ContextManager) Compact(ctx context.Context) error {
	c.mu.Lock()
	if len(c.messages) <= c.keepRecent {
		c.mu.Unlock()
		return nil
	}
	dropped := make([]models.Message, len(c.messages)-c.keepRecent)
	copy(dropped, c.messages[:len(c.messages)-c.keepRecent])
	kept := make([]models.Message, c.keepRecent)
	copy(kept, c.messages[len(c.messages)-c.keepRecent:])
	c.mu.Unlock()

	summary, err := c.summarize(ctx, dropped, kept)
	if err != nil {
		return &CompactionFailed{Cause: err}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append([]models.Message{summary}, kept...)
	c.compactionCount++
	c.estimatedTokens = 0
	for _, m := range c.messages {
		c.estimatedTokens += estimateMessageTokens(m)
	}
	return nil
}

// summarize calls the ModelClient with BuildSummarizationPrompt over the
// dropped messages, streaming the reply into a single system message.
func (c *ContextManager) summarize(ctx context.Context, dropped, kept []models.Message) (models.Message, error) {
	req := modelclient.ChatRequest{
		Model:     c.summarizerModel,
		System:    summarizerSystemPrompt,
		Messages:  []models.Message{{Role: models.RoleUser, Content: BuildSummarizationPrompt(dropped, kept)}},
		MaxTokens: 1024,
	}

	chunks, err := c.client.Complete(ctx, req)
	if err != nil {
		return models.Message{}, err
	}

	var content string
	for chunk := range chunks {
		if chunk.Error != nil {
			return models.Message{}, chunk.Error
		}
		content += chunk.Text
	}
	if content == "" {
		return models.Message{}, fmt.Errorf("contextmgr: summarizer returned empty content")
	}
	return models.Message{Role: models.RoleSystem, Content: content}, nil
}

func estimateMessageTokens(m models.Message) int {
	chars := len(m.Content)
	for _, tc := range m.ToolCalls {
		chars += len(tc.Name) + len(tc.Input)
	}
	return chars / 4
}
