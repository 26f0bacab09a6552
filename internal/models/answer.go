package models

type AnswerStatus string

const (
	StatusAnswered           AnswerStatus = "answered"
	StatusDataUnavailable    AnswerStatus = "data_unavailable"
	StatusServiceUnavailable AnswerStatus = "service_unavailable"
)

type EvidenceKind string

const (
	EvidenceMetric  EvidenceKind = "metric"
	EvidencePassage EvidenceKind = "passage"
)

// Evidence is one metric value or retrieved passage an answer relied on.
type Evidence struct {
	Kind       EvidenceKind  `json:"kind"`
	Source     SourceType    `json:"source,omitempty"`
	ChunkID    string        `json:"chunk_id,omitempty"`
	DocumentID string        `json:"document_id,omitempty"`
	Text       string        `json:"text,omitempty"`
	Score      float64       `json:"score,omitempty"`
	Sentiment  float64       `json:"sentiment,omitempty"`
	Metric     *MetricRecord `json:"metric,omitempty"`
}

// Answer is what a caller gets back for one question.
type Answer struct {
	Text     string       `json:"answer"`
	Evidence []Evidence   `json:"evidence"`
	Handler  string       `json:"handler_used"`
	Status   AnswerStatus `json:"status"`
}

func MetricEvidence(r MetricRecord) Evidence {
	rec := r
	return Evidence{Kind: EvidenceMetric, Metric: &rec}
}
