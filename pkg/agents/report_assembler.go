package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github.com/mikeboe/research-crew/pkg/research"
)

// ReportAssembler merges researched sections into one cohesive Markdown
// report with a title, table of contents, numbered sections and
// deduplicated references. It implements research.Assembler.
type ReportAssembler struct {
	LLM    llms.Model
	Logger *slog.Logger
}

func NewReportAssembler(llm llms.Model) *ReportAssembler {
	return &ReportAssembler{LLM: llm, Logger: slog.Default()}
}

const assemblerPrompt = `You are a report assembler. You receive a JSON list of
researched sections, each with a title, Markdown content and source URLs.

Produce a single unified Markdown report with:
- a document title
- a table of contents
- the sections in the given order, numbered, with their citations intact
- a deduplicated references list at the end

Return ONLY the Markdown report, no additional commentary.`

// Assemble compiles the given sections, already in request order, into
// the final report text.
func (a *ReportAssembler) Assemble(ctx context.Context, topic, guidelines string, sections []*research.SectionTask) (string, error) {
	a.Logger.Info("Assembling report", "topic", topic, "sections", len(sections))

	input, err := assemblyInput(topic, guidelines, sections)
	if err != nil {
		return "", err
	}

	report, err := generateWithRetry(ctx, a.LLM, a.Logger, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, assemblerPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, input),
	}, func(content string) error {
		if strings.TrimSpace(content) == "" {
			return fmt.Errorf("empty report")
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	a.Logger.Info("Report assembled", "length", len(report))
	return report, nil
}

// assemblySection is the per-section JSON shape handed to the model.
type assemblySection struct {
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Sources []string `json:"sources"`
}

func assemblyInput(topic, guidelines string, sections []*research.SectionTask) (string, error) {
	payload := make([]assemblySection, 0, len(sections))
	for _, t := range sections {
		sources := make([]string, 0, len(t.Sources))
		for _, s := range t.Sources {
			sources = append(sources, s.URL)
		}
		payload = append(payload, assemblySection{
			Title:   t.Title,
			Content: t.Content,
			Sources: sources,
		})
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal sections: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Topic: %s\n", topic)
	if guidelines != "" {
		fmt.Fprintf(&b, "Guidelines: %s\n", guidelines)
	}
	b.WriteString("Sections:\n")
	b.Write(data)
	return b.String(), nil
}
