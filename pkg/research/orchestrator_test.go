package research

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/mikeboe/research-crew/pkg/stream"
)

func collectEvents(ch <-chan stream.Event) []stream.Event {
	var out []stream.Event
	for ev := range ch {
		out = append(out, ev)
	}
	return out
}

func eventTypes(events []stream.Event) []stream.EventType {
	types := make([]stream.EventType, 0, len(events))
	for _, ev := range events {
		types = append(types, ev.Type)
	}
	return types
}

// echoResearcher succeeds for every section except those listed in fail.
func echoResearcher(fail map[string]bool) ResearcherFunc {
	return func(ctx context.Context, section, topic, guidelines string) (SectionResult, error) {
		if fail[section] {
			return SectionResult{}, errors.New("research failed for " + section)
		}
		return SectionResult{
			Content: "## " + section,
			Sources: []Source{{URL: "https://example.com/" + section}},
		}, nil
	}
}

// titleJoiner builds a report naming every assembled section title.
func titleJoiner() AssemblerFunc {
	return func(ctx context.Context, topic, guidelines string, sections []*SectionTask) (string, error) {
		titles := make([]string, 0, len(sections))
		for _, s := range sections {
			titles = append(titles, s.Title)
		}
		return fmt.Sprintf("# %s\n\n%s", topic, strings.Join(titles, "\n")), nil
	}
}

func newTestOrchestrator(researcher Researcher, assembler Assembler, workers int) *Orchestrator {
	return NewOrchestrator(
		NewRunner(researcher, time.Second),
		NewCompiler(assembler, time.Second),
		DefaultLimits(),
		workers,
	)
}

func TestOrchestratorAllSectionsSucceed(t *testing.T) {
	o := newTestOrchestrator(echoResearcher(nil), titleJoiner(), 1)

	req := Request{Topic: "AI in Healthcare", Sections: []string{"Introduction", "Conclusion"}}
	sess, events := o.StartSession(context.Background(), "s1", req)
	got := collectEvents(events)

	want := []stream.EventType{
		stream.EventStatus,
		stream.EventSectionStart,
		stream.EventSectionComplete,
		stream.EventSectionStart,
		stream.EventSectionComplete,
		stream.EventStatus,
		stream.EventReportComplete,
	}
	types := eventTypes(got)
	if len(types) != len(want) {
		t.Fatalf("event types = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("event %d = %s, want %s (all: %v)", i, types[i], want[i], types)
		}
	}

	// With one worker the stream follows request order.
	if got[1].Section != "Introduction" || got[3].Section != "Conclusion" {
		t.Errorf("section order = %s, %s; want Introduction, Conclusion", got[1].Section, got[3].Section)
	}

	report := got[len(got)-1]
	if !strings.Contains(report.Content, "Introduction") || !strings.Contains(report.Content, "Conclusion") {
		t.Errorf("report %q missing section titles", report.Content)
	}
	if report.Progress != 100 {
		t.Errorf("terminal progress = %v, want 100", report.Progress)
	}

	if sess.Status != SessionCompleted {
		t.Errorf("session status = %v, want completed", sess.Status)
	}
	if sess.Report != report.Content {
		t.Error("session report does not match terminal event content")
	}
}

func TestOrchestratorSectionFailureIsIsolated(t *testing.T) {
	o := newTestOrchestrator(echoResearcher(map[string]bool{"Conclusion": true}), titleJoiner(), 1)

	req := Request{Topic: "AI in Healthcare", Sections: []string{"Introduction", "Conclusion"}}
	sess, events := o.StartSession(context.Background(), "s1", req)
	got := collectEvents(events)

	want := []stream.EventType{
		stream.EventStatus,
		stream.EventSectionStart,
		stream.EventSectionComplete,
		stream.EventSectionStart,
		stream.EventSectionError,
		stream.EventStatus,
		stream.EventReportComplete,
	}
	types := eventTypes(got)
	if fmt.Sprint(types) != fmt.Sprint(want) {
		t.Fatalf("event types = %v, want %v", types, want)
	}

	report := got[len(got)-1]
	if !strings.Contains(report.Content, "Introduction") {
		t.Errorf("report %q missing successful section", report.Content)
	}
	if strings.Contains(report.Content, "Conclusion") {
		t.Errorf("report %q contains failed section", report.Content)
	}

	task := sess.Task("Conclusion")
	if task.Status != SectionFailed || task.Reason == "" {
		t.Errorf("failed task = %+v, want failed status with reason", task)
	}
	if sess.Status != SessionCompleted {
		t.Errorf("session status = %v, want completed despite section failure", sess.Status)
	}
}

func TestOrchestratorAllSectionsFail(t *testing.T) {
	o := newTestOrchestrator(echoResearcher(map[string]bool{"Introduction": true, "Conclusion": true}), titleJoiner(), 1)

	req := Request{Topic: "AI in Healthcare", Sections: []string{"Introduction", "Conclusion"}}
	sess, events := o.StartSession(context.Background(), "s1", req)
	got := collectEvents(events)

	last := got[len(got)-1]
	if last.Type != stream.EventError {
		t.Fatalf("terminal event = %s, want error", last.Type)
	}
	for _, ev := range got {
		if ev.Type == stream.EventReportComplete {
			t.Fatal("report_complete emitted for a session with zero successful sections")
		}
	}
	if sess.Status != SessionFailed {
		t.Errorf("session status = %v, want failed", sess.Status)
	}
}

func TestOrchestratorInvalidRequest(t *testing.T) {
	tests := []struct {
		name string
		req  Request
	}{
		{"Empty section list", Request{Topic: "AI in Healthcare"}},
		{"Empty topic", Request{Sections: []string{"Introduction"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			o := newTestOrchestrator(ResearcherFunc(func(ctx context.Context, section, topic, guidelines string) (SectionResult, error) {
				called = true
				return SectionResult{}, nil
			}), titleJoiner(), 1)

			sess, events := o.StartSession(context.Background(), "s1", tt.req)
			got := collectEvents(events)

			if len(got) != 1 || got[0].Type != stream.EventError {
				t.Fatalf("events = %v, want a single error event", eventTypes(got))
			}
			if called {
				t.Error("section job started for an invalid request")
			}
			if sess.Status != SessionFailed {
				t.Errorf("session status = %v, want failed", sess.Status)
			}
		})
	}
}

func TestOrchestratorCompilerFailure(t *testing.T) {
	o := newTestOrchestrator(echoResearcher(nil), AssemblerFunc(func(ctx context.Context, topic, guidelines string, sections []*SectionTask) (string, error) {
		return "", errors.New("model overloaded")
	}), 1)

	req := Request{Topic: "AI in Healthcare", Sections: []string{"Introduction"}}
	sess, events := o.StartSession(context.Background(), "s1", req)
	got := collectEvents(events)

	last := got[len(got)-1]
	if last.Type != stream.EventError {
		t.Fatalf("terminal event = %s, want error", last.Type)
	}
	if !strings.Contains(last.Message, "assembly") {
		t.Errorf("error message = %q, want assembly failure", last.Message)
	}
	if sess.Status != SessionFailed {
		t.Errorf("session status = %v, want failed", sess.Status)
	}
}

func TestOrchestratorBoundedConcurrency(t *testing.T) {
	const workers = 3
	sections := []string{"One", "Two", "Three", "Four", "Five", "Six", "Seven"}

	type counter struct {
		mu      chan struct{}
		running int
		peak    int
	}
	c := &counter{mu: make(chan struct{}, 1)}
	c.mu <- struct{}{}

	researcher := ResearcherFunc(func(ctx context.Context, section, topic, guidelines string) (SectionResult, error) {
		<-c.mu
		c.running++
		if c.running > c.peak {
			c.peak = c.running
		}
		c.mu <- struct{}{}

		time.Sleep(5 * time.Millisecond)

		<-c.mu
		c.running--
		c.mu <- struct{}{}
		return SectionResult{Content: "## " + section}, nil
	})

	o := newTestOrchestrator(researcher, titleJoiner(), workers)
	_, events := o.StartSession(context.Background(), "s1", Request{Topic: "AI in Healthcare", Sections: sections})
	got := collectEvents(events)

	if c.peak > workers {
		t.Errorf("peak concurrency = %d, exceeds worker bound %d", c.peak, workers)
	}

	starts, resolutions := 0, 0
	terminalSeen := false
	for _, ev := range got {
		switch ev.Type {
		case stream.EventSectionStart:
			starts++
		case stream.EventSectionComplete, stream.EventSectionError:
			resolutions++
		case stream.EventReportComplete, stream.EventError:
			terminalSeen = true
		}
		if terminalSeen && ev.Type == stream.EventSectionStart {
			t.Fatal("section_start after terminal event")
		}
	}
	if starts != len(sections) || resolutions != len(sections) {
		t.Errorf("starts/resolutions = %d/%d, want %d/%d", starts, resolutions, len(sections), len(sections))
	}
	if !terminalSeen {
		t.Error("no terminal event emitted")
	}
}

func TestOrchestratorProgressMonotone(t *testing.T) {
	o := newTestOrchestrator(echoResearcher(map[string]bool{"Three": true}), titleJoiner(), 2)

	req := Request{Topic: "AI in Healthcare", Sections: []string{"One", "Two", "Three", "Four"}}
	_, events := o.StartSession(context.Background(), "s1", req)
	got := collectEvents(events)

	last := -1.0
	for i, ev := range got {
		if ev.Progress < last {
			t.Fatalf("event %d (%s) progress %v decreased from %v", i, ev.Type, ev.Progress, last)
		}
		last = ev.Progress
		if ev.Progress == 100 && !ev.Terminal() {
			t.Fatalf("event %d (%s) reached 100%% before the terminal event", i, ev.Type)
		}
	}
	if got[len(got)-1].Progress != 100 {
		t.Errorf("terminal progress = %v, want 100", got[len(got)-1].Progress)
	}
}

func TestOrchestratorSessionUpdateHook(t *testing.T) {
	o := newTestOrchestrator(echoResearcher(nil), titleJoiner(), 1)

	updates := 0
	var lastStatus SessionStatus
	o.OnSessionUpdate = func(s *Session) {
		updates++
		lastStatus = s.Status
	}

	_, events := o.StartSession(context.Background(), "s1", Request{Topic: "AI in Healthcare", Sections: []string{"Introduction"}})
	collectEvents(events)

	if updates == 0 {
		t.Fatal("OnSessionUpdate never invoked")
	}
	if lastStatus != SessionCompleted {
		t.Errorf("final hook status = %v, want completed", lastStatus)
	}
}
