// Package client implements the consumer side of the research stream
// protocol: a reconnecting SSE reader and an idempotent fold of incoming
// events into client state.
package client

import "github.com/mikeboe/research-crew/pkg/stream"

// ConnState is the consumer's connection state.
type ConnState int

const (
	Disconnected ConnState = iota
	Connecting
	Connected
	Reconnecting
	Errored
)

func (s ConnState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	case Errored:
		return "error"
	default:
		return "unknown"
	}
}

// SectionView is one completed section as recorded by the consumer.
type SectionView struct {
	Title   string
	Content string
	Sources []string
}

// State is the consumer's view of a session, built by folding stream
// events. The fold is idempotent per section title: a reconnect replays
// the whole flow and may redeliver events for titles already recorded,
// so the first write wins and duplicates are dropped, never overwritten.
type State struct {
	Progress float64
	Message  string // last status message

	Sections []SectionView     // insertion order
	Failures map[string]string // section title -> failure reason

	Report string
	Err    string // fatal application error
	Done   bool

	seen map[string]bool
}

func NewState() *State {
	return &State{
		Failures: make(map[string]string),
		seen:     make(map[string]bool),
	}
}

// Apply folds one event into the state.
func (s *State) Apply(ev stream.Event) {
	if ev.Progress > s.Progress {
		s.Progress = ev.Progress
	}

	switch ev.Type {
	case stream.EventStatus:
		s.Message = ev.Message
	case stream.EventSectionStart:
		// informational only
	case stream.EventSectionComplete:
		if s.seen[ev.Section] {
			return
		}
		s.seen[ev.Section] = true
		s.Sections = append(s.Sections, SectionView{
			Title:   ev.Section,
			Content: ev.Content,
			Sources: ev.Sources,
		})
	case stream.EventSectionError:
		if _, ok := s.Failures[ev.Section]; !ok {
			s.Failures[ev.Section] = ev.Error
		}
	case stream.EventReportComplete:
		s.Report = ev.Content
		s.Done = true
	case stream.EventError:
		s.Err = ev.Message
		s.Done = true
	}
}

// Section returns the recorded view for a title, if any.
func (s *State) Section(title string) (SectionView, bool) {
	for _, v := range s.Sections {
		if v.Title == title {
			return v, true
		}
	}
	return SectionView{}, false
}
