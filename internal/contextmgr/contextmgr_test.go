package contextmgr

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/pasteldev/agentic-runtime/internal/modelclient"
	"github.com/pasteldev/agentic-runtime/pkg/models"
)

type fakeClient struct {
	reply string
	err   error
}

func (f *fakeClient) Name() string { return "fake" }

func (f *fakeClient) Complete(ctx context.Context, req modelclient.ChatRequest) (<-chan *modelclient.ResponseChunk, error) {
	ch := make(chan *modelclient.ResponseChunk, 2)
	go func() {
		defer close(ch)
		if f.err != nil {
			ch <- &modelclient.ResponseChunk{Error: f.err}
			return
		}
		ch <- &modelclient.ResponseChunk{Text: f.reply}
		ch <- &modelclient.ResponseChunk{Done: true}
	}()
	return ch, nil
}

func msg(role models.Role, content string) models.Message {
	return models.Message{Role: role, Content: content}
}

func TestContextManager_AppendAndUsage(t *testing.T) {
	cm, err := New(&fakeClient{}, Config{MaxTokens: 100})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cm.Append(msg(models.RoleUser, strings.Repeat("a", 40)))
	if got := cm.UsagePercent(); got <= 0 {
		t.Fatalf("expected nonzero usage, got %v", got)
	}
}

func TestContextManager_ShouldCompactCrossesThreshold(t *testing.T) {
	cm, err := New(&fakeClient{}, Config{MaxTokens: 40, Threshold: 0.5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cm.ShouldCompact() {
		t.Fatal("expected no compaction needed yet")
	}
	cm.Append(msg(models.RoleUser, strings.Repeat("a", 80)))
	if !cm.ShouldCompact() {
		t.Fatal("expected compaction to be due")
	}
}

func TestContextManager_SetThresholdRejectsOutOfRange(t *testing.T) {
	cm, _ := New(&fakeClient{}, Config{})
	if err := cm.SetThreshold(0.05); !errors.As(err, new(*RangeError)) {
		t.Fatalf("expected RangeError, got %v", err)
	}
	if err := cm.SetThreshold(1.0); !errors.As(err, new(*RangeError)) {
		t.Fatalf("expected RangeError, got %v", err)
	}
	if err := cm.SetThreshold(0.5); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestContextManager_CompactReplacesDroppedPrefix(t *testing.T) {
	cm, err := New(&fakeClient{reply: "## Goal\ndo the thing\n"}, Config{MaxTokens: 1000, KeepRecent: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 6; i++ {
		cm.Append(msg(models.RoleUser, "turn"))
	}
	if err := cm.Compact(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	messages := cm.Messages()
	if len(messages) != 3 {
		t.Fatalf("expected summary + 2 kept messages, got %d", len(messages))
	}
	if messages[0].Role != models.RoleSystem || !strings.Contains(messages[0].Content, "## Goal") {
		t.Fatalf("expected summary message first, got %+v", messages[0])
	}
	if cm.CompactionCount() != 1 {
		t.Fatalf("expected compaction count 1, got %d", cm.CompactionCount())
	}
}

func TestContextManager_CompactFailurePreservesContext(t *testing.T) {
	cm, err := New(&fakeClient{err: errors.New("boom")}, Config{MaxTokens: 1000, KeepRecent: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 4; i++ {
		cm.Append(msg(models.RoleUser, "turn"))
	}
	before := cm.Messages()

	err = cm.Compact(context.Background())
	if !errors.As(err, new(*CompactionFailed)) {
		t.Fatalf("expected CompactionFailed, got %v", err)
	}
	after := cm.Messages()
	if len(before) != len(after) {
		t.Fatalf("expected context untouched on failure, before=%d after=%d", len(before), len(after))
	}
}

func TestContextManager_CompactNoopBelowKeepRecent(t *testing.T) {
	cm, _ := New(&fakeClient{reply: "summary"}, Config{MaxTokens: 1000, KeepRecent: 10})
	cm.Append(msg(models.RoleUser, "one"))
	if err := cm.Compact(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cm.CompactionCount() != 0 {
		t.Fatal("expected no compaction when below keep-recent floor")
	}
}

func TestBuildSummarizationPrompt_IncludesSections(t *testing.T) {
	dropped := []models.Message{msg(models.RoleUser, "hello"), msg(models.RoleToolResult, "42")}
	kept := []models.Message{msg(models.RoleAssistant, "ok")}
	prompt := BuildSummarizationPrompt(dropped, kept)
	if !strings.Contains(prompt, "hello") || !strings.Contains(prompt, "42") || !strings.Contains(prompt, "ok") {
		t.Fatalf("expected prompt to include message content, got %q", prompt)
	}
}
