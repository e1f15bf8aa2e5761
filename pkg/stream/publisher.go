package stream

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Publisher serializes one session's events onto a single outbound SSE
// stream in emission order. Each record is framed as an "event:"/"data:"
// pair and flushed immediately so a remote reader sees it without delay.
type Publisher struct {
	w       io.Writer
	flusher http.Flusher
}

// NewPublisher wraps w. If w implements http.Flusher every record is
// flushed as it is written.
func NewPublisher(w io.Writer) *Publisher {
	p := &Publisher{w: w}
	if f, ok := w.(http.Flusher); ok {
		p.flusher = f
	}
	return p
}

// WriteHeaders sets the SSE response headers. Must be called before the
// first record is written.
func (p *Publisher) WriteHeaders(h http.Header) {
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}

// Publish writes a single event record and flushes it.
func (p *Publisher) Publish(ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(p.w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	if p.flusher != nil {
		p.flusher.Flush()
	}
	return nil
}

// Run consumes events until the source closes, writing each one exactly
// once. The source is always drained to completion: a write failure
// (reader gone) stops writing but not draining, so the producer is never
// blocked on a dead stream. Returns the first write error, if any.
func (p *Publisher) Run(events <-chan Event) error {
	var writeErr error
	terminal := false
	for ev := range events {
		if writeErr != nil || terminal {
			continue
		}
		if err := p.Publish(ev); err != nil {
			writeErr = err
			continue
		}
		if ev.Terminal() {
			terminal = true
		}
	}
	return writeErr
}
