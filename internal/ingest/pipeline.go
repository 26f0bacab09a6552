// Package ingest turns loaded documents into per-entity vector indexes.
package ingest

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"filing-rag/internal/chromemdb"
	"filing-rag/internal/models"
	"filing-rag/internal/parser"
	"filing-rag/internal/sentiment"
)

// Pipeline chunks documents, scores chunk sentiment and builds the index of
// the document source.
type Pipeline struct {
	chunker     *parser.Chunker
	scorer      sentiment.Scorer
	stores      map[models.SourceType]*chromemdb.IndexStore
	parallelism int
}

// Job is one entity/source build.
type Job struct {
	Entity string
	Source models.SourceType
	Docs   []models.Document
	Reset  bool
}

func NewPipeline(chunker *parser.Chunker, scorer sentiment.Scorer, parallelism int, stores ...*chromemdb.IndexStore) *Pipeline {
	byType := make(map[models.SourceType]*chromemdb.IndexStore, len(stores))
	for _, s := range stores {
		byType[s.Source()] = s
	}
	return &Pipeline{chunker: chunker, scorer: scorer, stores: byType, parallelism: max(parallelism, 1)}
}

// IndexDocuments builds the entity's index for source from docs and returns
// the number of chunks written. Without reset, documents whose id is already
// indexed are skipped, so re-running over a growing directory only adds the
// new files.
func (p *Pipeline) IndexDocuments(ctx context.Context, entity string, source models.SourceType, docs []models.Document, reset bool) (int, error) {
	store, ok := p.stores[source]
	if !ok {
		return 0, models.ConfigError("no index configured for source %q", source)
	}
	entity = strings.ToUpper(strings.TrimSpace(entity))

	var indexed map[string]bool
	if !reset && len(docs) > 0 {
		ids, err := store.DocumentIDs(ctx, entity)
		if err != nil {
			return 0, fmt.Errorf("list %s/%s documents: %w", source, entity, err)
		}
		indexed = ids
	}

	var (
		chunks  []models.Chunk
		skipped int
	)
	for _, doc := range docs {
		if indexed[doc.ID] {
			skipped++
			continue
		}
		doc.Entity = entity
		doc.Type = source
		for _, c := range p.chunker.Chunk(doc) {
			if p.scorer != nil {
				c.Sentiment = p.scorer.Score(c.Text)
			}
			chunks = append(chunks, c)
		}
	}
	if skipped > 0 {
		log.Info().Str("entity", entity).Str("source", string(source)).Int("skipped", skipped).Msg("Documents already indexed")
	}
	if len(chunks) == 0 && !reset {
		log.Info().Str("entity", entity).Str("source", string(source)).Msg("Nothing to index")
		return 0, nil
	}
	if err := store.Build(ctx, entity, chunks, reset); err != nil {
		return 0, fmt.Errorf("build %s/%s: %w", source, entity, err)
	}
	return len(chunks), nil
}

// IndexDir loads every supported file under dir and indexes it.
func (p *Pipeline) IndexDir(ctx context.Context, entity string, source models.SourceType, dir string, reset bool) (int, error) {
	docs, err := parser.LoadDir(dir, entity, source)
	if err != nil {
		return 0, err
	}
	log.Info().Str("entity", entity).Str("dir", dir).Int("documents", len(docs)).Msg("Loaded documents")
	return p.IndexDocuments(ctx, entity, source, docs, reset)
}

// IndexAll runs jobs with bounded parallelism. Jobs for the same entity and
// source are serialized by the index store. The first error cancels the
// remaining jobs.
func (p *Pipeline) IndexAll(ctx context.Context, jobs []Job) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.parallelism)
	for _, job := range jobs {
		g.Go(func() error {
			_, err := p.IndexDocuments(ctx, job.Entity, job.Source, job.Docs, job.Reset)
			return err
		})
	}
	return g.Wait()
}
