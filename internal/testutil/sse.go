package testutil

import (
	"bufio"
	"strings"
	"testing"
)

// SSEEvent is one parsed Server-Sent Event.
type SSEEvent struct {
	Type string
	Data string // data lines joined with \n
}

// ParseSSEEvents parses a raw SSE response body into events. Per the
// SSE format: an empty line terminates an event, multiple data lines
// are joined with newlines, a data line before any event line defaults
// the type to "message", and lines starting with ":" are comments.
func ParseSSEEvents(t *testing.T, body string) []SSEEvent {
	t.Helper()

	var events []SSEEvent
	var current SSEEvent
	var data []string

	scanner := bufio.NewScanner(strings.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		switch {
		case strings.HasPrefix(text, "event: "):
			if current.Type != "" && len(data) > 0 {
				t.Fatalf("line %d: new event before previous one terminated: %q", line, text)
			}
			current.Type = strings.TrimPrefix(text, "event: ")
		case strings.HasPrefix(text, "data: "):
			if current.Type == "" {
				current.Type = "message"
			}
			data = append(data, strings.TrimPrefix(text, "data: "))
		case text == "":
			if current.Type != "" {
				current.Data = strings.Join(data, "\n")
				events = append(events, current)
				current = SSEEvent{}
				data = nil
			}
		case strings.HasPrefix(text, ":"):
			// comment
		default:
			t.Fatalf("line %d: unexpected SSE line: %q", line, text)
		}
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scanning SSE body: %v", err)
	}
	if current.Type != "" {
		t.Fatalf("stream ended mid-event %q, missing blank line", current.Type)
	}
	return events
}

// EventsOfType returns all events with the given type, in order.
func EventsOfType(events []SSEEvent, eventType string) []SSEEvent {
	var found []SSEEvent
	for _, e := range events {
		if e.Type == eventType {
			found = append(found, e)
		}
	}
	return found
}
