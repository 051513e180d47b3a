// Package enhancedlog implements the EnhancedLogger component: a bounded,
// append-only FIFO log of EnhancedLogEntry values with tool_description
// redaction.
package enhancedlog

import (
	"sync"
	"time"

	"github.com/pasteldev/agentic-runtime/pkg/models"
)

const defaultCapacity = 1000

// toolDescriptionKey is the argument field redacted out of ToolArguments
// and surfaced as the entry's Description instead, matching the
// tool_description convention threaded through ToolCall/ToolRegistry.
const toolDescriptionKey = "tool_description"

// EnhancedLogger is a bounded, append-only ring buffer of log entries,
// grounded on the teacher's internal/agent.EventEmitter sequencing idea
// (monotonic, timestamped entries dispatched to a single sink) simplified
// to a single in-memory FIFO rather than a pluggable multi-sink/event-type
// system — spec.md §4.I names only Emit/Tail.
type EnhancedLogger struct {
	mu       sync.Mutex
	entries  []models.EnhancedLogEntry
	capacity int
	start    int
	size     int
}

// New creates an EnhancedLogger bounded to capacity entries. A non-positive
// capacity uses a default of 1000.
func New(capacity int) *EnhancedLogger {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &EnhancedLogger{entries: make([]models.EnhancedLogEntry, capacity), capacity: capacity}
}

// Emit appends entry to the log, evicting the oldest entry if the log is
// at capacity. If entry.ToolArguments carries a tool_description field, it
// is removed from the stored arguments and surfaced as entry.Description.
func (l *EnhancedLogger) Emit(entry models.EnhancedLogEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	entry = redact(entry)

	l.mu.Lock()
	defer l.mu.Unlock()

	idx := (l.start + l.size) % l.capacity
	l.entries[idx] = entry
	if l.size < l.capacity {
		l.size++
	} else {
		l.start = (l.start + 1) % l.capacity
	}
}

// redact strips tool_description out of ToolArguments, surfacing it as
// Description when the caller has not already set one explicitly.
func redact(entry models.EnhancedLogEntry) models.EnhancedLogEntry {
	if entry.ToolArguments == nil {
		return entry
	}
	if desc, ok := entry.ToolArguments[toolDescriptionKey]; ok {
		args := make(map[string]any, len(entry.ToolArguments)-1)
		for k, v := range entry.ToolArguments {
			if k == toolDescriptionKey {
				continue
			}
			args[k] = v
		}
		entry.ToolArguments = args
		if entry.Description == "" {
			if s, ok := desc.(string); ok {
				entry.Description = s
			}
		}
	}
	return entry
}

// Tail returns up to limit of the most recent entries, oldest first,
// optionally filtered to a single category. A non-positive limit returns
// every matching entry.
func (l *EnhancedLogger) Tail(limit int, category ...models.LogCategory) []models.EnhancedLogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	var filter models.LogCategory
	hasFilter := len(category) > 0 && category[0] != ""
	if hasFilter {
		filter = category[0]
	}

	matched := make([]models.EnhancedLogEntry, 0, l.size)
	for i := 0; i < l.size; i++ {
		entry := l.entries[(l.start+i)%l.capacity]
		if hasFilter && entry.Category != filter {
			continue
		}
		matched = append(matched, entry)
	}

	if limit <= 0 || limit >= len(matched) {
		return matched
	}
	return matched[len(matched)-limit:]
}

// Len returns the current number of entries held in the log.
func (l *EnhancedLogger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.size
}
