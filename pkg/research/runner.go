package research

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// SectionResult is the normalized outcome of one research capability call.
type SectionResult struct {
	Content string
	Sources []Source
}

// Researcher is the external section research capability. Latency is
// capability-dependent and unbounded; the runner applies its own timeout.
type Researcher interface {
	Research(ctx context.Context, section, topic, guidelines string) (SectionResult, error)
}

// ResearcherFunc adapts a function to the Researcher interface.
type ResearcherFunc func(ctx context.Context, section, topic, guidelines string) (SectionResult, error)

func (f ResearcherFunc) Research(ctx context.Context, section, topic, guidelines string) (SectionResult, error) {
	return f(ctx, section, topic, guidelines)
}

// Runner invokes the research capability for a single section title and
// normalizes its result or failure. A timeout expiry is reported as an
// ordinary failure, not a crash.
type Runner struct {
	Researcher Researcher
	Timeout    time.Duration
}

func NewRunner(r Researcher, timeout time.Duration) *Runner {
	return &Runner{Researcher: r, Timeout: timeout}
}

// Run researches one section. The returned result always has a non-nil
// sources slice.
func (r *Runner) Run(ctx context.Context, section, topic, guidelines string) (SectionResult, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	res, err := r.Researcher.Research(ctx, section, topic, guidelines)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return SectionResult{}, fmt.Errorf("section research timeout after %s", r.Timeout)
		}
		return SectionResult{}, fmt.Errorf("section research failed: %w", err)
	}
	if res.Sources == nil {
		res.Sources = []Source{}
	}
	return res, nil
}
