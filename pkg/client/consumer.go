package client

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/mikeboe/research-crew/pkg/stream"
)

// Request is the research request submitted by the consumer.
type Request struct {
	Topic      string
	Guidelines string
	Sections   []string
}

// RetryPolicy bounds reconnection after transport faults. Attempt n
// (1-based) waits Delays[n-1]; attempts beyond the configured delays
// reuse the last one.
type RetryPolicy struct {
	MaxAttempts int
	Delays      []time.Duration
}

// DefaultRetryPolicy retries three times with increasing backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Delays:      []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second},
	}
}

// Delay returns the backoff before the given 1-based attempt.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if len(p.Delays) == 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	if attempt > len(p.Delays) {
		attempt = len(p.Delays)
	}
	return p.Delays[attempt-1]
}

// Consumer opens a research stream, folds its events into State and
// reconnects on transport faults under a bounded retry budget. There is
// no resumption token: every reconnect resubmits the whole request and
// starts a fresh server session; accumulated section views survive
// because the fold inserts at most once per title.
type Consumer struct {
	BaseURL    string
	HTTPClient *http.Client
	Retry      RetryPolicy
	Logger     *slog.Logger

	// OnEvent, if set, observes every applied event.
	OnEvent func(stream.Event)
	// OnStateChange, if set, observes connection state transitions.
	OnStateChange func(ConnState)

	mu    sync.Mutex
	conn  ConnState
	state *State
}

func New(baseURL string) *Consumer {
	return &Consumer{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: http.DefaultClient,
		Retry:      DefaultRetryPolicy(),
		Logger:     slog.Default(),
		state:      NewState(),
	}
}

// ConnState returns the current connection state.
func (c *Consumer) ConnState() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

// State returns the folded client state.
func (c *Consumer) State() *State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Run submits the request and reads the stream until a terminal
// application event arrives, reconnecting on transport faults up to the
// retry budget. A terminal event, including a fatal application error,
// returns a nil error; the caller inspects State.Err. A non-nil error
// means the connection failed for good and the state machine is in
// Errored.
func (c *Consumer) Run(ctx context.Context, req Request) (*State, error) {
	attempt := 0
	for {
		c.setConn(Connecting)
		err := c.readStream(ctx, req)
		if err == nil {
			// Success or reported application failure: either way
			// the session is over, not the transport.
			c.setConn(Disconnected)
			return c.State(), nil
		}
		if ctx.Err() != nil {
			c.setConn(Disconnected)
			return c.State(), ctx.Err()
		}

		attempt++
		if attempt > c.Retry.MaxAttempts {
			c.setConn(Errored)
			return c.State(), fmt.Errorf("connection failed after %d attempts: %w", c.Retry.MaxAttempts, err)
		}

		c.setConn(Reconnecting)
		delay := c.Retry.Delay(attempt)
		c.Logger.Warn("Stream interrupted, reconnecting",
			"attempt", attempt, "max_attempts", c.Retry.MaxAttempts, "delay", delay, "error", err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			c.setConn(Disconnected)
			return c.State(), ctx.Err()
		}
	}
}

// readStream performs one connection lifecycle. It returns nil once a
// terminal application event has been applied, and an error for any
// transport-level fault (connection failure, non-200 response, stream
// closed before a terminal event).
func (c *Consumer) readStream(ctx context.Context, req Request) error {
	q := url.Values{}
	q.Set("topic", req.Topic)
	if req.Guidelines != "" {
		q.Set("guidelines", req.Guidelines)
	}
	q.Set("sections", strings.Join(req.Sections, ","))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/sse?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to open stream: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected stream status: %s", resp.Status)
	}

	c.setConn(Connected)
	reader := NewReader(resp.Body)
	for {
		ev, err := reader.Next()
		if err != nil {
			return fmt.Errorf("stream closed before terminal event: %w", err)
		}

		c.mu.Lock()
		c.state.Apply(ev)
		c.mu.Unlock()
		if c.OnEvent != nil {
			c.OnEvent(ev)
		}

		if ev.Terminal() {
			// The consumer closes the stream itself rather than
			// waiting for the transport to close it.
			return nil
		}
	}
}

func (c *Consumer) setConn(s ConnState) {
	c.mu.Lock()
	changed := c.conn != s
	c.conn = s
	c.mu.Unlock()
	if changed && c.OnStateChange != nil {
		c.OnStateChange(s)
	}
}
