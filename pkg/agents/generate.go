// Package agents implements the LLM-backed research capabilities: a
// section researcher and a report assembler, both with validated output
// and bounded retries.
package agents

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tmc/langchaingo/llms"
)

const maxGenerateRetries = 3

// generateWithRetry attempts to generate content and validates it using
// the provided function. It retries if the LLM fails or the validator
// returns an error.
func generateWithRetry(ctx context.Context, model llms.Model, logger *slog.Logger, prompts []llms.MessageContent, validator func(string) error, opts ...llms.CallOption) (string, error) {
	var lastErr error

	for i := 0; i < maxGenerateRetries; i++ {
		if i > 0 {
			logger.Warn("Retrying LLM generation", "attempt", i+1, "last_error", lastErr)
			select {
			case <-time.After(time.Second * time.Duration(i)): // Linear backoff
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		resp, err := model.GenerateContent(ctx, prompts, opts...)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			lastErr = fmt.Errorf("llm generation failed: %w", err)
			continue
		}

		if len(resp.Choices) == 0 {
			lastErr = fmt.Errorf("llm returned no choices")
			continue
		}

		content := resp.Choices[0].Content
		if err := validator(content); err != nil {
			lastErr = fmt.Errorf("validation failed: %w", err)
			continue
		}

		return content, nil
	}

	return "", fmt.Errorf("operation failed after %d retries: %w", maxGenerateRetries, lastErr)
}
