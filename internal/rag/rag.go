package rag

import (
	"context"
	"fmt"
	"strings"

	"filing-rag/internal/llmservice"
	"filing-rag/internal/models"
)

// RAG answers a question from retrieved passages.
type RAG struct {
	retriever *Retriever
	generator llmservice.Generator
}

func NewRAG(retriever *Retriever, generator llmservice.Generator) *RAG {
	return &RAG{retriever: retriever, generator: generator}
}

// Query retrieves evidence for question and asks the generator to answer
// from it. With no evidence the prompt says so explicitly.
func (r *RAG) Query(ctx context.Context, entity, question string) (string, []models.Evidence, error) {
	evidence, err := r.retriever.Retrieve(ctx, entity, question, 0)
	if err != nil {
		return "", nil, err
	}
	prompt := fmt.Sprintf(models.RAGPromptTemplate, entity, FormatExcerpts(evidence), question)
	answer, err := r.generator.Generate(ctx, prompt)
	if err != nil {
		return "", nil, err
	}
	return answer, evidence, nil
}

// FormatExcerpts renders passages for a prompt, or NoEvidenceMarker when
// there are none.
func FormatExcerpts(evidence []models.Evidence) string {
	parts := make([]string, 0, len(evidence))
	for _, ev := range evidence {
		if ev.Kind != models.EvidencePassage {
			continue
		}
		parts = append(parts, fmt.Sprintf("[%s %s]\n%s", ev.Source, ev.DocumentID, ev.Text))
	}
	if len(parts) == 0 {
		return models.NoEvidenceMarker
	}
	return strings.Join(parts, models.ContextSeparator)
}
