// Package metrics holds structured (entity, period, metric) facts.
package metrics

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"filing-rag/internal/models"
)

// Store answers exact metric lookups. Implementations return
// models.ErrNoEntityData for an entity they know nothing about and a
// *models.MetricNotFoundError when the entity exists but the fact does not.
type Store interface {
	Lookup(ctx context.Context, entity, metric string, period int) (models.MetricRecord, error)
	Latest(ctx context.Context, entity, metric string) (models.MetricRecord, error)
	Periods(ctx context.Context, entity, metric string) ([]int, error)
}

// NormalizeName maps "Net Income" and "net-income" to "net_income".
func NormalizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(name)
}

// NormalizeEntity upper-cases a ticker.
func NormalizeEntity(entity string) string {
	return strings.ToUpper(strings.TrimSpace(entity))
}

type factKey struct {
	name   string
	period int
}

// MemoryStore is an in-process Store. When the same fact is put twice the
// record with the later FiledAt wins; on equal FiledAt the last put wins.
type MemoryStore struct {
	mu    sync.RWMutex
	facts map[string]map[factKey]models.MetricRecord
}

func NewMemoryStore(records ...models.MetricRecord) *MemoryStore {
	s := &MemoryStore{facts: make(map[string]map[factKey]models.MetricRecord)}
	s.Put(records...)
	return s
}

func (s *MemoryStore) Put(records ...models.MetricRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		r.Entity = NormalizeEntity(r.Entity)
		r.Name = NormalizeName(r.Name)
		byKey, ok := s.facts[r.Entity]
		if !ok {
			byKey = make(map[factKey]models.MetricRecord)
			s.facts[r.Entity] = byKey
		}
		k := factKey{name: r.Name, period: r.Period}
		if cur, ok := byKey[k]; ok && cur.FiledAt.After(r.FiledAt) {
			continue
		}
		byKey[k] = r
	}
}

func (s *MemoryStore) Lookup(_ context.Context, entity, metric string, period int) (models.MetricRecord, error) {
	entity, metric = NormalizeEntity(entity), NormalizeName(metric)
	s.mu.RLock()
	defer s.mu.RUnlock()
	byKey, ok := s.facts[entity]
	if !ok {
		return models.MetricRecord{}, noEntity(entity)
	}
	r, ok := byKey[factKey{name: metric, period: period}]
	if !ok {
		return models.MetricRecord{}, &models.MetricNotFoundError{Entity: entity, Metric: metric, Period: period}
	}
	return r, nil
}

func (s *MemoryStore) Latest(ctx context.Context, entity, metric string) (models.MetricRecord, error) {
	periods, err := s.Periods(ctx, entity, metric)
	if err != nil {
		return models.MetricRecord{}, err
	}
	if len(periods) == 0 {
		return models.MetricRecord{}, &models.MetricNotFoundError{Entity: NormalizeEntity(entity), Metric: NormalizeName(metric)}
	}
	return s.Lookup(ctx, entity, metric, periods[len(periods)-1])
}

// Periods returns the periods that have a value for metric, ascending.
func (s *MemoryStore) Periods(_ context.Context, entity, metric string) ([]int, error) {
	entity, metric = NormalizeEntity(entity), NormalizeName(metric)
	s.mu.RLock()
	defer s.mu.RUnlock()
	byKey, ok := s.facts[entity]
	if !ok {
		return nil, noEntity(entity)
	}
	var periods []int
	for k := range byKey {
		if k.name == metric {
			periods = append(periods, k.period)
		}
	}
	sort.Ints(periods)
	return periods, nil
}

// Entities lists the known entities, sorted.
func (s *MemoryStore) Entities() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.facts))
	for e := range s.facts {
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}

func noEntity(entity string) error {
	return fmt.Errorf("%w: %s", models.ErrNoEntityData, entity)
}
