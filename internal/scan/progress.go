package scan

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Progress event types.
const (
	EventScan    = "scan"
	EventSplit   = "split"
	EventRetry   = "retry"
	EventMerge   = "merge"
	EventSkip    = "skip"
	EventDone    = "done"
	EventError   = "error"
	EventWaiting = "waiting"
)

// ProgressEvent is one orchestration step.
type ProgressEvent struct {
	Type      string `json:"type"`
	Attempt   int    `json:"attempt,omitempty"`
	MaxSplits int    `json:"max,omitempty"`
	Message   string `json:"message,omitempty"`
	IDs       []int  `json:"ids,omitempty"`
	WaitMs    int64  `json:"waitMs,omitempty"`
	Tokens    int    `json:"tokens,omitempty"`
}

// ProgressEmitter receives progress events during a scan.
type ProgressEmitter interface {
	Emit(event ProgressEvent)
}

// NopEmitter discards events.
type NopEmitter struct{}

// Emit does nothing.
func (NopEmitter) Emit(ProgressEvent) {}

// TextEmitter formats progress events as human-readable lines for CLI output.
type TextEmitter struct {
	W io.Writer
}

// Emit writes a formatted progress line to the underlying writer.
func (e *TextEmitter) Emit(ev ProgressEvent) {
	switch ev.Type {
	case EventScan:
		fmt.Fprintf(e.W, "[scan] %s%s\n", ev.Message, formatStats(ev))
	case EventSplit, EventRetry, EventSkip:
		fmt.Fprintf(e.W, "[split %d/%d] %s %s\n", ev.Attempt, ev.MaxSplits, ev.Message, formatIDs(ev.IDs))
	case EventWaiting:
		fmt.Fprintf(e.W, "  waiting %s for rate limit\n", formatDuration(int(ev.WaitMs)))
	case EventMerge, EventDone:
		fmt.Fprintf(e.W, "  %s\n", ev.Message)
	case EventError:
		fmt.Fprintf(e.W, "Error: %s\n", ev.Message)
	}
}

func formatStats(ev ProgressEvent) string {
	var parts []string
	if ev.Tokens > 0 {
		parts = append(parts, formatNumber(ev.Tokens)+" tok")
	}
	if ev.WaitMs > 0 {
		parts = append(parts, "waited "+formatDuration(int(ev.WaitMs)))
	}
	if len(parts) == 0 {
		return ""
	}
	return " (" + strings.Join(parts, ", ") + ")"
}

func formatIDs(ids []int) string {
	if len(ids) == 0 {
		return "[]"
	}
	const maxShown = 8
	parts := make([]string, 0, maxShown+1)
	for i, id := range ids {
		if i == maxShown {
			parts = append(parts, fmt.Sprintf("+%d more", len(ids)-maxShown))
			break
		}
		parts = append(parts, strconv.Itoa(id))
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func formatDuration(ms int) string {
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	return fmt.Sprintf("%.1fs", float64(ms)/1000)
}

func formatNumber(n int) string {
	s := strconv.Itoa(n)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	pre := len(s) % 3
	if pre > 0 {
		b.WriteString(s[:pre])
	}
	for i := pre; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}
