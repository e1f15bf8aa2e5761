package research

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNoCompletedSections is returned when every section failed and there
// is nothing to compile.
var ErrNoCompletedSections = errors.New("no sections completed successfully")

// Assembler is the external report assembly capability.
type Assembler interface {
	Assemble(ctx context.Context, topic, guidelines string, sections []*SectionTask) (string, error)
}

// AssemblerFunc adapts a function to the Assembler interface.
type AssemblerFunc func(ctx context.Context, topic, guidelines string, sections []*SectionTask) (string, error)

func (f AssemblerFunc) Assemble(ctx context.Context, topic, guidelines string, sections []*SectionTask) (string, error) {
	return f(ctx, topic, guidelines, sections)
}

// Compiler produces the final document from a session's completed
// sections. Failed sections are omitted from compilation; they never
// block it as long as at least one section succeeded.
type Compiler struct {
	Assembler Assembler
	Timeout   time.Duration
}

func NewCompiler(a Assembler, timeout time.Duration) *Compiler {
	return &Compiler{Assembler: a, Timeout: timeout}
}

// Compile assembles the completed sections of s, in request order.
func (c *Compiler) Compile(ctx context.Context, s *Session) (string, error) {
	completed := s.CompletedTasks()
	if len(completed) == 0 {
		return "", ErrNoCompletedSections
	}

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	report, err := c.Assembler.Assemble(ctx, s.Request.Topic, s.Request.Guidelines, completed)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("report assembly timeout after %s", c.Timeout)
		}
		return "", fmt.Errorf("report assembly failed: %w", err)
	}
	return report, nil
}
