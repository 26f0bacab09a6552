package models

import (
	"errors"
	"fmt"
)

var (
	ErrConfiguration     = errors.New("configuration error")
	ErrEmbeddingService  = errors.New("embedding service unavailable")
	ErrGenerationService = errors.New("generation service unavailable")
	ErrIndexNotFound     = errors.New("index not found")
	ErrMetricNotFound    = errors.New("metric not found")
	ErrNoEntityData      = errors.New("no data for entity")
	ErrDuplicateChunk    = errors.New("duplicate chunk id")
	ErrEmptyQuestion     = errors.New("empty question")
	ErrEmptyDocument     = errors.New("empty document")
)

// MetricNotFoundError reports a missing (entity, period, metric) fact for an
// entity that does have other data. Period 0 means "any period".
type MetricNotFoundError struct {
	Entity string
	Metric string
	Period int
}

func (e *MetricNotFoundError) Error() string {
	if e.Period == 0 {
		return fmt.Sprintf("metric not found: %s %s", e.Entity, e.Metric)
	}
	return fmt.Sprintf("metric not found: %s %s %d", e.Entity, e.Metric, e.Period)
}

func (e *MetricNotFoundError) Unwrap() error { return ErrMetricNotFound }

// IndexNotFoundError is returned when an entity's index was never built.
type IndexNotFoundError struct {
	Entity string
	Source SourceType
}

func (e *IndexNotFoundError) Error() string {
	return fmt.Sprintf("index not found: %s/%s", e.Source, e.Entity)
}

func (e *IndexNotFoundError) Unwrap() error { return ErrIndexNotFound }

// ConfigError wraps a message as an ErrConfiguration.
func ConfigError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}
