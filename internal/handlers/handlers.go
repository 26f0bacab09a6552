// Package handlers routes financial questions to metric lookups, news
// analysis or retrieval-augmented generation.
package handlers

import (
	"filing-rag/internal/llmservice"
	"filing-rag/internal/metrics"
	"filing-rag/internal/rag"
)

type Deps struct {
	Metrics   metrics.Store
	Retriever *rag.Retriever
	Generator llmservice.Generator
}

// DefaultHandlers returns the routing table, most specific first. The RAG
// fallback is always last.
func DefaultHandlers(d Deps) []Handler {
	m := metricReader{store: d.Metrics}
	return []Handler{
		metricYearComparison(m),
		marginEntityComparison(m),
		profitEntityComparison(m),
		metricByYear(m),
		latestMetric(m),
		newsOutlook(m, d.Retriever, d.Generator),
		ragFallback(rag.NewRAG(d.Retriever, d.Generator)),
	}
}

func NewDefaultChain(d Deps) (*Chain, error) {
	return NewChain(DefaultHandlers(d)...)
}
