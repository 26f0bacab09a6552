package models

// Chunk is a bounded span of one document's text. Start and End are rune
// offsets into Document.Text.
type Chunk struct {
	ID         string
	DocumentID string
	Entity     string
	Type       SourceType
	Text       string
	Start      int
	End        int
	Seq        int
	Section    string
	Sentiment  float64
}

// ChunkRecord is the metadata kept for each vector in an entity index.
// Position i of the record slice always matches vector i of the index.
type ChunkRecord struct {
	ChunkID    string     `json:"chunk_id"`
	DocumentID string     `json:"document_id"`
	Type       SourceType `json:"type"`
	Text       string     `json:"text"`
	Start      int        `json:"start"`
	End        int        `json:"end"`
	Section    string     `json:"section,omitempty"`
	Sentiment  float64    `json:"sentiment"`
}

// ScoredChunk is a query hit: the stored record and its cosine similarity.
type ScoredChunk struct {
	Record ChunkRecord
	Score  float64
}

func (c Chunk) Record() ChunkRecord {
	return ChunkRecord{
		ChunkID:    c.ID,
		DocumentID: c.DocumentID,
		Type:       c.Type,
		Text:       c.Text,
		Start:      c.Start,
		End:        c.End,
		Section:    c.Section,
		Sentiment:  c.Sentiment,
	}
}
