// Package research contains the session orchestration core: it fans a
// request out into independent section jobs, runs them under a bounded
// worker pool and translates their lifecycle into an ordered event stream.
package research

import (
	"fmt"
	"strings"
)

// Limits bounds what a request may ask for. Supplied by the settings
// provider at the boundary.
type Limits struct {
	MaxSections         int
	MinTopicLength      int
	MaxTopicLength      int
	MaxGuidelinesLength int
}

// DefaultLimits mirrors the service defaults.
func DefaultLimits() Limits {
	return Limits{
		MaxSections:         10,
		MinTopicLength:      3,
		MaxTopicLength:      200,
		MaxGuidelinesLength: 1000,
	}
}

// Request is a multi-section research request. Immutable once accepted.
type Request struct {
	Topic      string
	Guidelines string
	Sections   []string
}

// ParseSections splits a comma-delimited section list, trimming
// whitespace and dropping empty entries.
func ParseSections(s string) []string {
	var titles []string
	for _, part := range strings.Split(s, ",") {
		if t := strings.TrimSpace(part); t != "" {
			titles = append(titles, t)
		}
	}
	return titles
}

// Validate checks the request shape against the given limits.
func (r Request) Validate(l Limits) error {
	topic := strings.TrimSpace(r.Topic)
	if len(topic) < l.MinTopicLength {
		return fmt.Errorf("topic must be at least %d characters long", l.MinTopicLength)
	}
	if len(topic) > l.MaxTopicLength {
		return fmt.Errorf("topic must be less than %d characters long", l.MaxTopicLength)
	}
	if len(r.Guidelines) > l.MaxGuidelinesLength {
		return fmt.Errorf("guidelines must be less than %d characters long", l.MaxGuidelinesLength)
	}
	if len(r.Sections) == 0 {
		return fmt.Errorf("at least one section is required")
	}
	if len(r.Sections) > l.MaxSections {
		return fmt.Errorf("maximum %d sections allowed", l.MaxSections)
	}
	seen := make(map[string]bool, len(r.Sections))
	for _, title := range r.Sections {
		t := strings.TrimSpace(title)
		if t == "" {
			return fmt.Errorf("section titles cannot be empty")
		}
		if seen[t] {
			return fmt.Errorf("duplicate section title: %q", t)
		}
		seen[t] = true
	}
	return nil
}

// Source is one cited source for a section.
type Source struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

// SectionStatus is the lifecycle state of one section task.
type SectionStatus int

const (
	SectionPending SectionStatus = iota
	SectionRunning
	SectionCompleted
	SectionFailed
)

func (s SectionStatus) String() string {
	switch s {
	case SectionPending:
		return "pending"
	case SectionRunning:
		return "running"
	case SectionCompleted:
		return "completed"
	case SectionFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// SectionTask tracks one section job within a session. Tasks are never
// deleted, only transitioned.
type SectionTask struct {
	Title   string
	Status  SectionStatus
	Content string
	Sources []Source
	Reason  string // failure reason once Failed
}

// SessionStatus is the overall state of a session.
type SessionStatus int

const (
	SessionRunning SessionStatus = iota
	SessionCompleted
	SessionFailed
)

func (s SessionStatus) String() string {
	switch s {
	case SessionRunning:
		return "running"
	case SessionCompleted:
		return "completed"
	case SessionFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Session owns one request end to end. The task map keeps request order
// in a separate slice so progress and the final document follow the
// order the client asked for, not completion order. Only the
// orchestrator's control goroutine mutates a session.
type Session struct {
	ID      string
	Request Request
	Status  SessionStatus
	Report  string

	tasks map[string]*SectionTask
	order []string
}

// NewSession creates a session with one pending task per section title,
// in request order.
func NewSession(id string, req Request) *Session {
	s := &Session{
		ID:      id,
		Request: req,
		Status:  SessionRunning,
		tasks:   make(map[string]*SectionTask, len(req.Sections)),
	}
	for _, title := range req.Sections {
		title = strings.TrimSpace(title)
		if _, ok := s.tasks[title]; ok {
			continue
		}
		s.tasks[title] = &SectionTask{Title: title, Status: SectionPending}
		s.order = append(s.order, title)
	}
	return s
}

// Task returns the task for a section title, or nil.
func (s *Session) Task(title string) *SectionTask {
	return s.tasks[title]
}

// Tasks returns all tasks in request order.
func (s *Session) Tasks() []*SectionTask {
	out := make([]*SectionTask, 0, len(s.order))
	for _, title := range s.order {
		out = append(out, s.tasks[title])
	}
	return out
}

// CompletedTasks returns the successfully completed tasks in request
// order, regardless of when each one resolved.
func (s *Session) CompletedTasks() []*SectionTask {
	var out []*SectionTask
	for _, title := range s.order {
		if t := s.tasks[title]; t.Status == SectionCompleted {
			out = append(out, t)
		}
	}
	return out
}

// Resolved reports whether every section has reached a final state.
func (s *Session) Resolved() bool {
	for _, t := range s.tasks {
		if t.Status != SectionCompleted && t.Status != SectionFailed {
			return false
		}
	}
	return true
}
