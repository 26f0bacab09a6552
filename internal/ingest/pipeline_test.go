package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"filing-rag/internal/chromemdb"
	"filing-rag/internal/embedding"
	"filing-rag/internal/models"
	"filing-rag/internal/parser"
	"filing-rag/internal/sentiment"
)

func newPipeline(t *testing.T) (*Pipeline, *chromemdb.IndexStore, *chromemdb.IndexStore) {
	t.Helper()
	dir := t.TempDir()
	emb := embedding.NewHashEmbedder(64)
	filings, err := chromemdb.NewIndexStore(chromemdb.Options{Dir: filepath.Join(dir, "filing"), Source: models.SourceFiling}, emb)
	require.NoError(t, err)
	news, err := chromemdb.NewIndexStore(chromemdb.Options{Dir: filepath.Join(dir, "news"), Source: models.SourceNews}, emb)
	require.NoError(t, err)
	chunker, err := parser.NewChunker(40, 10)
	require.NoError(t, err)
	return NewPipeline(chunker, sentiment.NewLexicon(), 2, filings, news), filings, news
}

func TestIndexDocuments(t *testing.T) {
	ctx := context.Background()
	p, _, news := newPipeline(t)

	docs := []models.Document{
		{ID: "a.json", Text: "Apple shares surged after strong results."},
		{ID: "b.json", Text: "Regulators opened an inquiry into App Store fees."},
	}
	n, err := p.IndexDocuments(ctx, "aapl", models.SourceNews, docs, true)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	st, ok := news.Stats("AAPL")
	require.True(t, ok)
	assert.Equal(t, n, st.Records)
	assert.Equal(t, st.Vectors, st.Records)

	vec, err := embedding.NewHashEmbedder(64).EmbedQuery(ctx, "shares surged")
	require.NoError(t, err)
	hits, err := news.Query(ctx, "AAPL", vec, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, models.SourceNews, hits[0].Record.Type)
	assert.Equal(t, 1.0, hits[0].Record.Sentiment)
}

func TestIndexDocuments_UnknownSource(t *testing.T) {
	p, _, _ := newPipeline(t)
	_, err := p.IndexDocuments(context.Background(), "AAPL", models.SourceType("tweets"), nil, true)
	assert.ErrorIs(t, err, models.ErrConfiguration)
}

func TestIndexDocuments_EmptyAppendIsNoop(t *testing.T) {
	p, filings, _ := newPipeline(t)
	n, err := p.IndexDocuments(context.Background(), "AAPL", models.SourceFiling, nil, false)
	require.NoError(t, err)
	assert.Zero(t, n)
	_, ok := filings.Stats("AAPL")
	assert.False(t, ok)
}

func TestIndexDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "10k.txt"), []byte("Item 7. MD&A\nNet sales increased 2% year over year."), 0o644))
	p, filings, _ := newPipeline(t)

	n, err := p.IndexDir(context.Background(), "AAPL", models.SourceFiling, dir, true)
	require.NoError(t, err)
	assert.Positive(t, n)
	st, ok := filings.Stats("AAPL")
	require.True(t, ok)
	assert.Equal(t, n, st.Records)
}

func TestIndexDir_NestedFilesWithSameName(t *testing.T) {
	dir := t.TempDir()
	for _, year := range []string{"2023", "2024"} {
		require.NoError(t, os.MkdirAll(filepath.Join(dir, year), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, year, "10-K.txt"), []byte("Fiscal "+year+" annual report."), 0o644))
	}
	p, filings, _ := newPipeline(t)

	n, err := p.IndexDir(context.Background(), "AAPL", models.SourceFiling, dir, true)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	ids, err := filings.DocumentIDs(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"2023/10-K.txt": true, "2024/10-K.txt": true}, ids)
}

func TestIndexDir_AppendAddsOnlyNewFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("Azure revenue grew."), 0o644))
	p, filings, _ := newPipeline(t)

	n, err := p.IndexDir(ctx, "MSFT", models.SourceFiling, dir, false)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("Gaming revenue declined."), 0o644))
	n, err = p.IndexDir(ctx, "MSFT", models.SourceFiling, dir, false)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = p.IndexDir(ctx, "MSFT", models.SourceFiling, dir, false)
	require.NoError(t, err)
	assert.Zero(t, n)

	st, ok := filings.Stats("MSFT")
	require.True(t, ok)
	assert.Equal(t, 2, st.Records)
	assert.Equal(t, st.Vectors, st.Records)
}

func TestIndexAll(t *testing.T) {
	p, filings, news := newPipeline(t)
	doc := func(id, text string) []models.Document { return []models.Document{{ID: id, Text: text}} }

	err := p.IndexAll(context.Background(), []Job{
		{Entity: "AAPL", Source: models.SourceFiling, Docs: doc("a", "Apple annual report text."), Reset: true},
		{Entity: "MSFT", Source: models.SourceFiling, Docs: doc("m", "Microsoft annual report text."), Reset: true},
		{Entity: "AAPL", Source: models.SourceNews, Docs: doc("n", "Apple news."), Reset: true},
		{Entity: "NVDA", Source: models.SourceFiling, Docs: doc("v", "Nvidia annual report text."), Reset: true},
	})
	require.NoError(t, err)

	for _, e := range []string{"AAPL", "MSFT", "NVDA"} {
		_, ok := filings.Stats(e)
		assert.True(t, ok, e)
	}
	_, ok := news.Stats("AAPL")
	assert.True(t, ok)
}

func TestIndexAll_PropagatesError(t *testing.T) {
	p, _, _ := newPipeline(t)
	err := p.IndexAll(context.Background(), []Job{
		{Entity: "AAPL", Source: models.SourceFiling, Docs: []models.Document{{ID: "a", Text: "ok"}}, Reset: true},
		{Entity: "../bad", Source: models.SourceFiling, Docs: []models.Document{{ID: "b", Text: "bad"}}, Reset: true},
	})
	assert.ErrorIs(t, err, models.ErrConfiguration)
}
