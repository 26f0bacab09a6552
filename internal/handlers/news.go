package handlers

import (
	"context"
	"fmt"

	"filing-rag/internal/llmservice"
	"filing-rag/internal/models"
	"filing-rag/internal/rag"
	"filing-rag/internal/sentiment"
)

// newsOutlook combines the latest revenue with recent news passages and
// their mean sentiment, then asks the generator. Missing revenue is stated
// in the prompt instead of failing the question.
func newsOutlook(m metricReader, retriever *rag.Retriever, gen llmservice.Generator) Handler {
	return Handler{
		Name: "news-outlook",
		CanHandle: func(q Question) bool {
			return q.Entity != "" && q.mentions(outlookWords...)
		},
		Handle: func(ctx context.Context, q Question) (models.Answer, error) {
			var evidence []models.Evidence
			period, revenue := "latest period", "not available"
			p, v, recs, err := m.latest(ctx, q.Entity, models.MetricRevenue)
			switch {
			case err == nil:
				period, revenue = fmt.Sprintf("fiscal %d", p), formatValue(models.MetricRevenue, v)
				evidence = appendMetricEvidence(evidence, recs)
			case !isDataError(err):
				return models.Answer{}, err
			}

			news, err := retriever.RetrieveFrom(ctx, models.SourceNews, q.Entity, q.Text, 0)
			if err != nil {
				return models.Answer{}, err
			}
			scores := make([]float64, len(news))
			for i, n := range news {
				scores[i] = n.Sentiment
			}
			mood := sentiment.Mean(scores)

			prompt := fmt.Sprintf(models.NewsPromptTemplate,
				q.Entity, period, revenue, mood, q.Entity, rag.FormatExcerpts(news), q.Text)
			text, err := gen.Generate(ctx, prompt)
			if err != nil {
				return models.Answer{}, err
			}
			return models.Answer{Text: text, Evidence: append(evidence, news...)}, nil
		},
	}
}

func ragFallback(r *rag.RAG) Handler {
	return Handler{
		Name:      "rag-fallback",
		CanHandle: func(Question) bool { return true },
		Handle: func(ctx context.Context, q Question) (models.Answer, error) {
			text, evidence, err := r.Query(ctx, q.Entity, q.Text)
			if err != nil {
				return models.Answer{}, err
			}
			return models.Answer{Text: text, Evidence: evidence}, nil
		},
		Fallback: true,
	}
}
