package parser

import (
	"fmt"
	"strings"

	"filing-rag/internal/models"
)

// Chunker splits document text into fixed-size windows that advance by
// size-overlap runes. The last window may be shorter than size.
type Chunker struct {
	size    int
	overlap int
}

// NewChunker returns a Chunker or an ErrConfiguration unless
// size > overlap > 0.
func NewChunker(size, overlap int) (*Chunker, error) {
	if overlap <= 0 || size <= overlap {
		return nil, models.ConfigError("chunk size %d must be greater than overlap %d, and overlap must be positive", size, overlap)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

func (c *Chunker) Size() int    { return c.size }
func (c *Chunker) Overlap() int { return c.overlap }

// ChunkID builds the identifier of the seq-th chunk of a document. The
// sequence is zero padded so ids sort in document order.
func ChunkID(documentID string, seq int) string {
	return fmt.Sprintf("%s:%05d", documentID, seq)
}

// Chunk splits doc into ordered, non-empty chunks covering the whole text.
// Filing chunks carry the section heading their first rune falls under.
func (c *Chunker) Chunk(doc models.Document) []models.Chunk {
	if strings.TrimSpace(doc.Text) == "" {
		return nil
	}
	runes := []rune(doc.Text)
	n := len(runes)

	var sections []Section
	if doc.Type == models.SourceFiling {
		sections = SplitSections(doc.Text)
	}

	stride := c.size - c.overlap
	chunks := make([]models.Chunk, 0, n/stride+1)
	for start, seq := 0, 0; start < n; start, seq = start+stride, seq+1 {
		end := min(start+c.size, n)
		chunks = append(chunks, models.Chunk{
			ID:         ChunkID(doc.ID, seq),
			DocumentID: doc.ID,
			Entity:     doc.Entity,
			Type:       doc.Type,
			Text:       string(runes[start:end]),
			Start:      start,
			End:        end,
			Seq:        seq,
			Section:    sectionAt(sections, start),
		})
		if end == n {
			break
		}
	}
	return chunks
}
