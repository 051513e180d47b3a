package contextmgr

import (
	"fmt"
	"strings"

	"github.com/pasteldev/agentic-runtime/pkg/models"
)

// summarizerSystemPrompt instructs the model to produce the six fixed
// sections a compaction summary must preserve.
const summarizerSystemPrompt = `You are compacting an agent's conversation history. Read the transcript ` +
	`below and produce a single summary with exactly these sections, in this order:

## Goal
## Files
## Todos
## Failures
## Decisions
## Recent turns

"Goal" is the active objective. "Files" lists the identities and paths of
files created or modified. "Todos" lists pending work. "Failures" lists
recorded failures with their causes. "Decisions" lists key decisions with
rationale. "Recent turns" briefly recaps the last few exchanges so the
thread of conversation is not lost. Omit a section's body if nothing
applies to it, but keep the heading. Be concise.`

// BuildSummarizationPrompt renders the messages being dropped (plus the
// kept tail, for continuity) into the prompt handed to the summarizer
// model, grounded on the teacher's BuildSummarizationPrompt.
func BuildSummarizationPrompt(dropped, kept []models.Message) string {
	var sb strings.Builder
	sb.WriteString("Conversation to compact:\n\n")
	for _, m := range dropped {
		writeMessage(&sb, m)
	}

	if len(kept) > 0 {
		sb.WriteString("Messages that will remain verbatim after compaction (for context only, do not summarize these):\n\n")
		for _, m := range kept {
			writeMessage(&sb, m)
		}
	}

	sb.WriteString("---\nProduce the six-section summary now:")
	return sb.String()
}

func writeMessage(sb *strings.Builder, m models.Message) {
	fmt.Fprintf(sb, "[%s]: ", m.Role)
	if m.Role == models.RoleToolResult {
		content := m.Content
		if len(content) > 200 {
			content = content[:200] + "..."
		}
		sb.WriteString(content)
	} else if m.Content != "" {
		sb.WriteString(m.Content)
	}
	for _, tc := range m.ToolCalls {
		fmt.Fprintf(sb, "\n  [called tool: %s]", tc.Name)
	}
	sb.WriteString("\n\n")
}
