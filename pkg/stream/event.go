// Package stream defines the wire protocol for research progress streams:
// the event records and the SSE framing that carries them.
package stream

import (
	"encoding/json"
	"fmt"
)

// EventType tags a wire event.
type EventType string

const (
	EventStatus          EventType = "status"
	EventSectionStart    EventType = "section_start"
	EventSectionComplete EventType = "section_complete"
	EventSectionError    EventType = "section_error"
	EventReportComplete  EventType = "report_complete"
	EventError           EventType = "error"
)

// Event is one self-describing record on a session stream. Events are
// immutable facts about a transition; which fields are meaningful depends
// on Type.
type Event struct {
	Type     EventType `json:"type"`
	Message  string    `json:"message,omitempty"`
	Section  string    `json:"section,omitempty"`
	Content  string    `json:"content,omitempty"`
	Sources  []string  `json:"sources,omitempty"`
	Error    string    `json:"error,omitempty"`
	Progress float64   `json:"progress"`
}

// Terminal reports whether the event closes the session stream.
func (e Event) Terminal() bool {
	return e.Type == EventReportComplete || e.Type == EventError
}

func NewStatus(message string, progress float64) Event {
	return Event{Type: EventStatus, Message: message, Progress: progress}
}

func NewSectionStart(section string, progress float64) Event {
	return Event{Type: EventSectionStart, Section: section, Progress: progress}
}

func NewSectionComplete(section, content string, sources []string, progress float64) Event {
	return Event{Type: EventSectionComplete, Section: section, Content: content, Sources: sources, Progress: progress}
}

func NewSectionError(section, reason string, progress float64) Event {
	return Event{Type: EventSectionError, Section: section, Error: reason, Progress: progress}
}

func NewReportComplete(content string) Event {
	return Event{Type: EventReportComplete, Content: content, Progress: 100}
}

func NewError(message string, progress float64) Event {
	return Event{Type: EventError, Message: message, Progress: progress}
}

// Decode parses the JSON payload of one record.
func Decode(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("failed to decode event: %w", err)
	}
	if ev.Type == "" {
		return Event{}, fmt.Errorf("event missing type field")
	}
	return ev, nil
}
