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

// SectionResearcher researches a single report section with an LLM and
// returns validated content plus source citations. It implements
// research.Researcher.
type SectionResearcher struct {
	LLM             llms.Model
	Logger          *slog.Logger
	MaxSources      int
	MaxContentWords int
}

func NewSectionResearcher(llm llms.Model) *SectionResearcher {
	return &SectionResearcher{
		LLM:             llm,
		Logger:          slog.Default(),
		MaxSources:      5,
		MaxContentWords: 250,
	}
}

func (a *SectionResearcher) systemPrompt(section, guidelines string) string {
	guidelinesText := ""
	if guidelines != "" {
		guidelinesText = "\nGuidelines from the user: " + guidelines
	}

	return fmt.Sprintf(`You are a specialized research agent responsible ONLY for the section %q.%s

Research the section and write comprehensive, well-structured Markdown content
of at most %d words, citing up to %d high-quality sources with [1], [2]
style markers matching the order of the sources list.

Return ONLY a valid JSON object in this exact format:
{"content": "markdown content here", "sources": ["url1", "url2"]}`,
		section, guidelinesText, a.MaxContentWords, a.MaxSources)
}

// Research produces the content and sources for one section.
func (a *SectionResearcher) Research(ctx context.Context, section, topic, guidelines string) (research.SectionResult, error) {
	a.Logger.Info("Researching section", "section", section, "topic", topic)

	input := fmt.Sprintf("Topic: %s\nSection: %s", topic, section)

	var result research.SectionResult
	_, err := generateWithRetry(ctx, a.LLM, a.Logger, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, a.systemPrompt(section, guidelines)),
		llms.TextParts(llms.ChatMessageTypeHuman, input),
	}, func(content string) error {
		parsed, err := parseSectionPayload(content)
		if err != nil {
			return err
		}
		result = parsed
		return nil
	}, llms.WithJSONMode())
	if err != nil {
		return research.SectionResult{}, err
	}

	a.Logger.Info("Section research complete", "section", section, "sources", len(result.Sources))
	return result, nil
}

// sectionPayload is the JSON shape the researcher model must return.
type sectionPayload struct {
	Content string   `json:"content"`
	Sources []string `json:"sources"`
}

// parseSectionPayload validates a model response and normalizes it into
// a section result.
func parseSectionPayload(content string) (research.SectionResult, error) {
	var payload sectionPayload
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return research.SectionResult{}, fmt.Errorf("json parse error: %w", err)
	}
	if strings.TrimSpace(payload.Content) == "" {
		return research.SectionResult{}, fmt.Errorf("empty content field")
	}

	sources := make([]research.Source, 0, len(payload.Sources))
	for i, u := range payload.Sources {
		u = strings.TrimSpace(u)
		if u == "" {
			return research.SectionResult{}, fmt.Errorf("source %d is empty", i+1)
		}
		sources = append(sources, research.Source{URL: u})
	}

	return research.SectionResult{
		Content: payload.Content,
		Sources: sources,
	}, nil
}
