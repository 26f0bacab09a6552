package rag

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"filing-rag/internal/models"
)

const DefaultTopK = 5

// Index is the read side of a per-entity vector index.
type Index interface {
	Query(ctx context.Context, entity string, vector []float32, k int) ([]models.ScoredChunk, error)
}

// Retriever embeds a question and pulls the nearest passages from the filing
// and news indexes of one entity.
type Retriever struct {
	embedder   embeddings.Embedder
	indexes    map[models.SourceType]Index
	newsWeight float64
	topK       int
}

// NewRetriever wires the indexes. news may be nil. newsWeight scales news
// scores before they are merged with filing scores.
func NewRetriever(embedder embeddings.Embedder, filings, news Index, newsWeight float64, topK int) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	indexes := map[models.SourceType]Index{}
	if filings != nil {
		indexes[models.SourceFiling] = filings
	}
	if news != nil {
		indexes[models.SourceNews] = news
	}
	return &Retriever{embedder: embedder, indexes: indexes, newsWeight: newsWeight, topK: topK}
}

func (r *Retriever) TopK() int { return r.topK }

// Retrieve returns up to k passages across all sources, best first. k <= 0
// means the configured default. An entity without indexes yields no
// evidence and no error.
func (r *Retriever) Retrieve(ctx context.Context, entity, question string, k int) ([]models.Evidence, error) {
	return r.retrieve(ctx, entity, question, k, models.SourceFiling, models.SourceNews)
}

// RetrieveFrom is Retrieve restricted to one source.
func (r *Retriever) RetrieveFrom(ctx context.Context, source models.SourceType, entity, question string, k int) ([]models.Evidence, error) {
	return r.retrieve(ctx, entity, question, k, source)
}

func (r *Retriever) retrieve(ctx context.Context, entity, question string, k int, sources ...models.SourceType) ([]models.Evidence, error) {
	if k <= 0 {
		k = r.topK
	}
	if entity == "" {
		return nil, nil
	}
	vec, err := r.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}

	var out []models.Evidence
	for _, src := range sources {
		idx, ok := r.indexes[src]
		if !ok {
			continue
		}
		hits, err := idx.Query(ctx, entity, vec, k)
		if err != nil {
			return nil, fmt.Errorf("query %s index: %w", src, err)
		}
		weight := 1.0
		if src == models.SourceNews {
			weight = r.newsWeight
		}
		for _, h := range hits {
			out = append(out, models.Evidence{
				Kind:       models.EvidencePassage,
				Source:     h.Record.Type,
				ChunkID:    h.Record.ChunkID,
				DocumentID: h.Record.DocumentID,
				Text:       h.Record.Text,
				Score:      h.Score * weight,
				Sentiment:  h.Record.Sentiment,
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ChunkID < out[j].ChunkID
	})
	if len(out) > k {
		out = out[:k]
	}
	log.Debug().Str("entity", entity).Int("evidence", len(out)).Msg("Retrieved passages")
	return out, nil
}
