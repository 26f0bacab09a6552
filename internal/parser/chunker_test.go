package parser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"filing-rag/internal/models"
)

func TestNewChunker_InvalidSizes(t *testing.T) {
	tests := []struct {
		name          string
		size, overlap int
	}{
		{"zero overlap", 100, 0},
		{"negative overlap", 100, -1},
		{"overlap equals size", 100, 100},
		{"overlap exceeds size", 50, 80},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewChunker(tt.size, tt.overlap)
			require.Error(t, err)
			assert.ErrorIs(t, err, models.ErrConfiguration)
		})
	}
}

func TestChunker_Windows(t *testing.T) {
	c, err := NewChunker(4, 2)
	require.NoError(t, err)

	chunks := c.Chunk(models.Document{ID: "doc", Entity: "AAPL", Type: models.SourceNews, Text: "abcdefghij"})
	require.Len(t, chunks, 4)

	wantText := []string{"abcd", "cdef", "efgh", "ghij"}
	for i, ch := range chunks {
		assert.Equal(t, wantText[i], ch.Text)
		assert.Equal(t, i*2, ch.Start)
		assert.Equal(t, i*2+len(ch.Text), ch.End)
		assert.Equal(t, i, ch.Seq)
		assert.Equal(t, ChunkID("doc", i), ch.ID)
		assert.Equal(t, "AAPL", ch.Entity)
	}
}

func TestChunker_ShortFinalChunk(t *testing.T) {
	c, err := NewChunker(5, 2)
	require.NoError(t, err)

	chunks := c.Chunk(models.Document{ID: "d", Text: "0123456789"})
	require.NotEmpty(t, chunks)
	last := chunks[len(chunks)-1]
	assert.Equal(t, 10, last.End)
	assert.LessOrEqual(t, len(last.Text), 5)
	for _, ch := range chunks {
		assert.NotEmpty(t, ch.Text)
		assert.LessOrEqual(t, ch.End, 10)
	}
}

func TestChunker_CoversWholeDocument(t *testing.T) {
	c, err := NewChunker(37, 11)
	require.NoError(t, err)

	text := strings.Repeat("Revenue grew in every segment. ", 40)
	chunks := c.Chunk(models.Document{ID: "d", Text: text})

	require.NotEmpty(t, chunks)
	assert.Equal(t, 0, chunks[0].Start)
	assert.Equal(t, len([]rune(text)), chunks[len(chunks)-1].End)
	for i := 1; i < len(chunks); i++ {
		assert.Equal(t, chunks[i-1].Start+26, chunks[i].Start, "fixed stride")
		assert.Less(t, chunks[i].Start, chunks[i-1].End, "consecutive chunks overlap")
	}
}

func TestChunker_RuneOffsets(t *testing.T) {
	c, err := NewChunker(3, 1)
	require.NoError(t, err)

	chunks := c.Chunk(models.Document{ID: "d", Text: "€€€€€"})
	require.Len(t, chunks, 2)
	assert.Equal(t, "€€€", chunks[0].Text)
	assert.Equal(t, "€€€", chunks[1].Text)
	assert.Equal(t, 5, chunks[1].End)
}

func TestChunker_EmptyDocument(t *testing.T) {
	c, err := NewChunker(10, 2)
	require.NoError(t, err)
	assert.Empty(t, c.Chunk(models.Document{ID: "d", Text: "  \n "}))
}

func TestChunker_FilingSections(t *testing.T) {
	c, err := NewChunker(20, 5)
	require.NoError(t, err)

	text := "Cover page\nItem 1A. Risk Factors\nSupply chain disruption may hurt margins.\nItem 7. Management's Discussion\nNet sales increased."
	chunks := c.Chunk(models.Document{ID: "10k", Type: models.SourceFiling, Text: text})

	require.NotEmpty(t, chunks)
	assert.Equal(t, "", chunks[0].Section)
	last := chunks[len(chunks)-1]
	assert.Equal(t, "Item 7 Management's Discussion", last.Section)
}
