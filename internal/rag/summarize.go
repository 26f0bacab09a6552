package rag

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"

	"filing-rag/internal/llmservice"
	"filing-rag/internal/models"
)

const (
	DefaultSummaryRunes = 12000
	summaryHighlights   = 3
)

var (
	summaryLineRe = regexp.MustCompile(`(?i)^(?:\d[.)]\s*)?(?:executive\s+)?summary\s*:\s*`)
	bulletRe      = regexp.MustCompile(`^(?:[-*•]|\d+[.)])\s+`)
)

// Summary is a one-sentence executive summary plus key highlights.
type Summary struct {
	Executive  string   `json:"executive"`
	Highlights []string `json:"highlights"`
}

// Summarizer condenses a document with the generator.
type Summarizer struct {
	generator llmservice.Generator
	maxRunes  int
}

// NewSummarizer returns a Summarizer that sends at most maxRunes of the
// document text; maxRunes <= 0 means DefaultSummaryRunes.
func NewSummarizer(generator llmservice.Generator, maxRunes int) *Summarizer {
	if maxRunes <= 0 {
		maxRunes = DefaultSummaryRunes
	}
	return &Summarizer{generator: generator, maxRunes: maxRunes}
}

func (s *Summarizer) Summarize(ctx context.Context, text string) (Summary, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Summary{}, models.ErrEmptyDocument
	}
	if runes := []rune(text); len(runes) > s.maxRunes {
		log.Debug().Int("runes", len(runes)).Int("kept", s.maxRunes).Msg("Truncating document for summary")
		text = string(runes[:s.maxRunes])
	}
	reply, err := s.generator.Generate(ctx, fmt.Sprintf(models.SummaryPromptTemplate, text))
	if err != nil {
		return Summary{}, err
	}
	return parseSummary(reply), nil
}

// parseSummary reads the "Summary:" line and the bullet lines of a reply. A
// reply without a "Summary:" line uses its first plain line.
func parseSummary(reply string) Summary {
	var (
		sum   Summary
		plain string
	)
	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
		case summaryLineRe.MatchString(line):
			if sum.Executive == "" {
				sum.Executive = strings.TrimSpace(summaryLineRe.ReplaceAllString(line, ""))
			}
		case bulletRe.MatchString(line):
			if len(sum.Highlights) < summaryHighlights {
				sum.Highlights = append(sum.Highlights, strings.TrimSpace(bulletRe.ReplaceAllString(line, "")))
			}
		case plain == "":
			plain = line
		}
	}
	if sum.Executive == "" {
		sum.Executive = plain
	}
	return sum
}
