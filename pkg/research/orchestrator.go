package research

import (
	"context"
	"log/slog"
	"sync"

	"github.com/mikeboe/research-crew/pkg/stream"
)

// eventBuffer bounds how far the orchestrator may run ahead of a slow
// publisher before emission blocks.
const eventBuffer = 16

// Orchestrator owns session lifecycles: it validates requests, runs
// section jobs under a bounded worker pool, tracks per-section state and
// translates the whole lifecycle into an ordered event sequence.
//
// Session state is only ever mutated by the control goroutine spawned in
// StartSession; workers report over an internal channel, so the task map
// needs no locking.
type Orchestrator struct {
	Runner   *Runner
	Compiler *Compiler
	Limits   Limits
	Workers  int
	Logger   *slog.Logger

	// OnSessionUpdate, if set, is called from the control goroutine
	// after every session state transition. Used for persistence.
	OnSessionUpdate func(*Session)
}

func NewOrchestrator(runner *Runner, compiler *Compiler, limits Limits, workers int) *Orchestrator {
	if workers < 1 {
		workers = 1
	}
	return &Orchestrator{
		Runner:   runner,
		Compiler: compiler,
		Limits:   limits,
		Workers:  workers,
		Logger:   slog.Default(),
	}
}

// StartSession begins the session identified by id and returns it
// together with its event source. The channel delivers events in
// emission order and is closed after the terminal event (report_complete
// or error) has been accepted, or once ctx is cancelled.
//
// An invalid request yields a single error event and no section jobs.
func (o *Orchestrator) StartSession(ctx context.Context, id string, req Request) (*Session, <-chan stream.Event) {
	sess := NewSession(id, req)
	events := make(chan stream.Event, eventBuffer)
	go o.run(ctx, sess, events)
	return sess, events
}

type updateKind int

const (
	sectionStarted updateKind = iota
	sectionResolved
)

// sectionUpdate is a worker's report to the control goroutine. Each
// worker sends started before resolved for its current title, so the two
// arrive in that order per section; updates across sections interleave
// in wall-clock order.
type sectionUpdate struct {
	kind   updateKind
	title  string
	result SectionResult
	err    error
}

func (o *Orchestrator) run(ctx context.Context, sess *Session, events chan<- stream.Event) {
	defer close(events)
	logger := o.Logger.With("session_id", sess.ID)

	if err := sess.Request.Validate(o.Limits); err != nil {
		logger.Error("Request validation failed", "error", err)
		sess.Status = SessionFailed
		o.notify(sess)
		o.emit(ctx, events, stream.NewError("invalid request: "+err.Error(), 0))
		return
	}

	n := len(sess.order)
	logger.Info("Starting research session", "topic", sess.Request.Topic, "sections", n)
	o.emit(ctx, events, stream.NewStatus("Starting research...", 0))

	// Fixed-size worker pool fed in request order: jobs beyond the
	// bound queue on the titles channel.
	titles := make(chan string)
	updates := make(chan sectionUpdate)
	var wg sync.WaitGroup
	for i := 0; i < o.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for title := range titles {
				updates <- sectionUpdate{kind: sectionStarted, title: title}
				res, err := o.Runner.Run(ctx, title, sess.Request.Topic, sess.Request.Guidelines)
				updates <- sectionUpdate{kind: sectionResolved, title: title, result: res, err: err}
			}
		}()
	}
	go func() {
		for _, title := range sess.order {
			titles <- title
		}
		close(titles)
		wg.Wait()
		close(updates)
	}()

	resolved := 0
	for u := range updates {
		task := sess.tasks[u.title]
		switch u.kind {
		case sectionStarted:
			task.Status = SectionRunning
			o.emit(ctx, events, stream.NewSectionStart(u.title, sectionProgress(resolved, n)))
		case sectionResolved:
			resolved++
			p := sectionProgress(resolved, n)
			if u.err != nil {
				task.Status = SectionFailed
				task.Reason = u.err.Error()
				logger.Error("Section research failed", "section", u.title, "error", u.err)
				o.emit(ctx, events, stream.NewSectionError(u.title, u.err.Error(), p))
			} else {
				task.Status = SectionCompleted
				task.Content = u.result.Content
				task.Sources = u.result.Sources
				logger.Info("Section completed", "section", u.title, "sources", len(u.result.Sources))
				o.emit(ctx, events, stream.NewSectionComplete(u.title, u.result.Content, sourceURLs(u.result.Sources), p))
			}
		}
		o.notify(sess)
	}

	sectionPhase := sectionProgress(n, n)
	o.emit(ctx, events, stream.NewStatus("Assembling final report...", sectionPhase))

	report, err := o.Compiler.Compile(ctx, sess)
	if err != nil {
		logger.Error("Report compilation failed", "error", err)
		sess.Status = SessionFailed
		o.notify(sess)
		o.emit(ctx, events, stream.NewError(err.Error(), sectionPhase))
		return
	}

	sess.Report = report
	sess.Status = SessionCompleted
	logger.Info("Research session completed", "report_length", len(report))
	o.notify(sess)
	o.emit(ctx, events, stream.NewReportComplete(report))
}

// sectionProgress maps resolved-section count to a percentage, reserving
// the final increment for report assembly. Counting resolutions rather
// than request indexes keeps progress monotone when completions
// interleave across workers.
func sectionProgress(resolved, total int) float64 {
	return float64(resolved) / float64(total+1) * 100
}

func sourceURLs(sources []Source) []string {
	urls := make([]string, 0, len(sources))
	for _, s := range sources {
		urls = append(urls, s.URL)
	}
	return urls
}

// emit delivers an event unless ctx is cancelled. A false return means
// the session was externally cancelled and no further events matter.
func (o *Orchestrator) emit(ctx context.Context, events chan<- stream.Event, ev stream.Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (o *Orchestrator) notify(sess *Session) {
	if o.OnSessionUpdate != nil {
		o.OnSessionUpdate(sess)
	}
}
