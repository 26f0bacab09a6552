package models

import "time"

type SourceType string

const (
	SourceFiling SourceType = "filing"
	SourceNews   SourceType = "news"
)

// Document is a raw text blob handed over by ingestion. It is never
// modified after it is loaded.
type Document struct {
	ID        string
	Entity    string
	Type      SourceType
	Text      string
	FetchedAt time.Time
	Source    string
}

// MetricRecord is one structured fact: (entity, period, name) -> value.
// Period is the fiscal year. FiledAt orders revisions of the same fact.
type MetricRecord struct {
	Entity  string    `json:"entity"`
	Period  int       `json:"period"`
	Name    string    `json:"name"`
	Value   float64   `json:"value"`
	FiledAt time.Time `json:"filed_at"`
	Source  string    `json:"source,omitempty"`
}
