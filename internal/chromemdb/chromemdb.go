package chromemdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"filing-rag/internal/models"
)

// ErrCorruptIndex is returned when a persisted index and its manifest
// disagree.
var ErrCorruptIndex = errors.New("index corrupt")

var entityRe = regexp.MustCompile(`^[A-Z0-9][A-Z0-9._-]{0,31}$`)

// Options configures an IndexStore for one source type.
type Options struct {
	Dir           string
	Source        models.SourceType
	Dimension     int
	EncryptionKey string
	Compress      bool
	Parallelism   int
}

// Stats describes the active snapshot of one entity.
type Stats struct {
	Vectors   int `json:"vectors"`
	Records   int `json:"records"`
	Dimension int `json:"dimension"`
}

// IndexStore keeps one chromem-go collection per entity plus the ordered
// chunk records that describe it. Snapshots are immutable: a build creates a
// new one and swaps it in only after it has been persisted.
type IndexStore struct {
	opts     Options
	embedder embeddings.Embedder

	mu        sync.RWMutex
	dim       int
	snapshots map[string]*snapshot

	locks keyedMutex
}

type snapshot struct {
	coll    *chromem.Collection
	records []models.ChunkRecord
	byID    map[string]int
	dim     int
}

type manifest struct {
	Entity    string               `json:"entity"`
	Source    models.SourceType    `json:"source"`
	Dimension int                  `json:"dimension"`
	Records   []models.ChunkRecord `json:"records"`
}

func NewIndexStore(opts Options, embedder embeddings.Embedder) (*IndexStore, error) {
	if opts.Dir == "" {
		return nil, models.ConfigError("index dir is required")
	}
	if n := len(opts.EncryptionKey); n != 0 && n != 32 {
		return nil, models.ConfigError("encryption key must be 32 bytes, got %d", n)
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = runtime.NumCPU()
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create index dir: %w", err)
	}
	return &IndexStore{
		opts:      opts,
		embedder:  embedder,
		dim:       opts.Dimension,
		snapshots: make(map[string]*snapshot),
		locks:     keyedMutex{locks: make(map[string]*refMutex)},
	}, nil
}

func (s *IndexStore) Source() models.SourceType { return s.opts.Source }

// Dimension returns the vector dimension, 0 until the first build or load.
func (s *IndexStore) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dim
}

// Build embeds chunks and makes them the entity's index. With reset the
// previous index is discarded, otherwise chunks are appended and any chunk id
// already present is rejected. On error the active index is unchanged.
func (s *IndexStore) Build(ctx context.Context, entity string, chunks []models.Chunk, reset bool) error {
	entity, err := normalizeEntity(entity)
	if err != nil {
		return err
	}
	unlock := s.locks.Lock(entity)
	defer unlock()

	var prev *snapshot
	if !reset {
		prev, err = s.loadLocked(ctx, entity)
		if err != nil && !errors.Is(err, models.ErrIndexNotFound) {
			return err
		}
	}

	seen := make(map[string]struct{}, len(chunks))
	if prev != nil {
		for id := range prev.byID {
			seen[id] = struct{}{}
		}
	}
	for _, c := range chunks {
		if _, dup := seen[c.ID]; dup {
			return fmt.Errorf("%w: %s", models.ErrDuplicateChunk, c.ID)
		}
		seen[c.ID] = struct{}{}
	}

	log.Info().Str("entity", entity).Str("source", string(s.opts.Source)).
		Int("chunks", len(chunks)).Bool("reset", reset).Msg("Building index")

	vectors, err := s.embed(ctx, chunks)
	if err != nil {
		return err
	}
	dim, err := s.checkDimension(vectors, prev)
	if err != nil {
		return err
	}

	var (
		records []models.ChunkRecord
		docs    []chromem.Document
	)
	if prev != nil {
		records = append(records, prev.records...)
		for _, r := range prev.records {
			old, err := prev.coll.GetByID(ctx, r.ChunkID)
			if err != nil {
				return fmt.Errorf("failed to copy %s: %w", r.ChunkID, err)
			}
			docs = append(docs, old)
		}
	}
	for i, c := range chunks {
		records = append(records, c.Record())
		docs = append(docs, chromem.Document{
			ID:        c.ID,
			Content:   c.Text,
			Embedding: vectors[i],
			Metadata: map[string]string{
				"document_id": c.DocumentID,
				"type":        string(c.Type),
				"section":     c.Section,
			},
		})
	}

	db := chromem.NewDB()
	coll, err := db.GetOrCreateCollection(entity, nil, noEmbedding)
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	if len(docs) > 0 {
		if err := coll.AddDocuments(ctx, docs, s.opts.Parallelism); err != nil {
			return fmt.Errorf("failed to add documents: %w", err)
		}
	}
	next := newSnapshot(coll, records, dim)

	if err := s.persist(db, entity, next); err != nil {
		return err
	}

	s.mu.Lock()
	s.snapshots[entity] = next
	if s.dim == 0 {
		s.dim = dim
	}
	s.mu.Unlock()

	log.Info().Str("entity", entity).Str("source", string(s.opts.Source)).
		Int("vectors", len(records)).Msg("Index built")
	return nil
}

// Query returns up to k records nearest to vector, best first. Equal scores
// are ordered by chunk id. An entity without an index, including a name that
// could never have been built, yields no results.
func (s *IndexStore) Query(ctx context.Context, entity string, vector []float32, k int) ([]models.ScoredChunk, error) {
	if k <= 0 {
		return nil, nil
	}
	entity, err := normalizeEntity(entity)
	if err != nil {
		log.Debug().Err(err).Msg("Query for invalid entity")
		return nil, nil
	}
	snap, err := s.snapshotFor(ctx, entity)
	if errors.Is(err, models.ErrIndexNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	n := snap.coll.Count()
	if n == 0 {
		return nil, nil
	}
	if len(vector) != snap.dim {
		return nil, models.ConfigError("query vector has dimension %d, index %s has %d", len(vector), entity, snap.dim)
	}

	results, err := snap.coll.QueryEmbedding(ctx, vector, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}
	hits := make([]models.ScoredChunk, 0, len(results))
	for _, r := range results {
		i, ok := snap.byID[r.ID]
		if !ok {
			continue
		}
		hits = append(hits, models.ScoredChunk{Record: snap.records[i], Score: float64(r.Similarity)})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Record.ChunkID < hits[j].Record.ChunkID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// DocumentIDs returns the ids of the documents already indexed for entity.
// An entity without an index has none.
func (s *IndexStore) DocumentIDs(ctx context.Context, entity string) (map[string]bool, error) {
	entity, err := normalizeEntity(entity)
	if err != nil {
		return nil, err
	}
	snap, err := s.snapshotFor(ctx, entity)
	if errors.Is(err, models.ErrIndexNotFound) {
		return map[string]bool{}, nil
	}
	if err != nil {
		return nil, err
	}
	ids := make(map[string]bool)
	for _, r := range snap.records {
		ids[r.DocumentID] = true
	}
	return ids, nil
}

// Load makes the entity's persisted index active. It is a no-op when the
// index is already cached.
func (s *IndexStore) Load(ctx context.Context, entity string) error {
	entity, err := normalizeEntity(entity)
	if err != nil {
		return err
	}
	unlock := s.locks.Lock(entity)
	defer unlock()
	_, err = s.loadLocked(ctx, entity)
	return err
}

// Stats reports the cached snapshot of entity. ok is false when the entity
// has not been built or loaded by this process.
func (s *IndexStore) Stats(entity string) (Stats, bool) {
	entity = strings.ToUpper(strings.TrimSpace(entity))
	s.mu.RLock()
	snap, ok := s.snapshots[entity]
	s.mu.RUnlock()
	if !ok {
		return Stats{}, false
	}
	return Stats{Vectors: snap.coll.Count(), Records: len(snap.records), Dimension: snap.dim}, true
}

// Entities lists the entities with a persisted index, sorted.
func (s *IndexStore) Entities() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.opts.Dir, "*"+manifestExt))
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		name := filepath.Base(m)
		if strings.HasPrefix(name, ".") {
			continue
		}
		out = append(out, strings.TrimSuffix(name, manifestExt))
	}
	sort.Strings(out)
	return out, nil
}

func (s *IndexStore) snapshotFor(ctx context.Context, entity string) (*snapshot, error) {
	s.mu.RLock()
	snap, ok := s.snapshots[entity]
	s.mu.RUnlock()
	if ok {
		return snap, nil
	}
	unlock := s.locks.Lock(entity)
	defer unlock()
	return s.loadLocked(ctx, entity)
}

// loadLocked returns the cached snapshot or reads it from disk. The caller
// holds the entity lock.
func (s *IndexStore) loadLocked(ctx context.Context, entity string) (*snapshot, error) {
	s.mu.RLock()
	snap, ok := s.snapshots[entity]
	s.mu.RUnlock()
	if ok {
		return snap, nil
	}

	indexPath, manifestPath := s.paths(entity)
	data, err := os.ReadFile(manifestPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, &models.IndexNotFoundError{Entity: entity, Source: s.opts.Source}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %s manifest: %v", ErrCorruptIndex, entity, err)
	}
	if dim := s.Dimension(); dim != 0 && m.Dimension != 0 && dim != m.Dimension {
		return nil, models.ConfigError("index %s has dimension %d, store uses %d", entity, m.Dimension, dim)
	}

	if _, err := os.Stat(indexPath); errors.Is(err, os.ErrNotExist) {
		if err := rename(backupPath(indexPath), indexPath); err == nil {
			log.Warn().Str("entity", entity).Msg("Recovered index from backup")
		}
	}

	db := chromem.NewDB()
	if err := db.ImportFromFile(indexPath, s.opts.EncryptionKey, entity); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptIndex, entity, err)
	}
	coll := db.GetCollection(entity, noEmbedding)
	if coll == nil {
		if coll, err = db.GetOrCreateCollection(entity, nil, noEmbedding); err != nil {
			return nil, err
		}
	}
	if coll.Count() != len(m.Records) {
		return nil, fmt.Errorf("%w: %s has %d vectors and %d records", ErrCorruptIndex, entity, coll.Count(), len(m.Records))
	}
	for _, r := range m.Records {
		if _, err := coll.GetByID(ctx, r.ChunkID); err != nil {
			return nil, fmt.Errorf("%w: %s has no vector for %s", ErrCorruptIndex, entity, r.ChunkID)
		}
	}

	snap = newSnapshot(coll, m.Records, m.Dimension)
	s.mu.Lock()
	s.snapshots[entity] = snap
	if s.dim == 0 {
		s.dim = m.Dimension
	}
	s.mu.Unlock()

	log.Debug().Str("entity", entity).Str("source", string(s.opts.Source)).
		Int("vectors", len(m.Records)).Msg("Loaded index")
	return snap, nil
}

func (s *IndexStore) embed(ctx context.Context, chunks []models.Chunk) ([][]float32, error) {
	if len(chunks) == 0 {
		return nil, nil
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("%w: got %d vectors for %d chunks", models.ErrEmbeddingService, len(vectors), len(chunks))
	}
	return vectors, nil
}

func (s *IndexStore) checkDimension(vectors [][]float32, prev *snapshot) (int, error) {
	dim := s.Dimension()
	if prev != nil && prev.dim != 0 {
		dim = prev.dim
	}
	for _, v := range vectors {
		if dim == 0 {
			dim = len(v)
		}
		if len(v) != dim {
			return 0, models.ConfigError("embedding has dimension %d, expected %d", len(v), dim)
		}
	}
	return dim, nil
}

func (s *IndexStore) persist(db *chromem.DB, entity string, snap *snapshot) error {
	indexPath, manifestPath := s.paths(entity)
	data, err := json.Marshal(manifest{
		Entity:    entity,
		Source:    s.opts.Source,
		Dimension: snap.dim,
		Records:   snap.records,
	})
	if err != nil {
		return err
	}
	tmpIndex, tmpManifest := tmpPath(indexPath), tmpPath(manifestPath)
	defer os.Remove(tmpIndex)
	defer os.Remove(tmpManifest)

	if err := db.ExportToFile(tmpIndex, s.opts.Compress, s.opts.EncryptionKey, entity); err != nil {
		return fmt.Errorf("failed to export index: %w", err)
	}
	if err := os.WriteFile(tmpManifest, data, 0o644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	// The previous index is parked until the new manifest is in place, so a
	// failed swap can put the old pair back.
	backup := backupPath(indexPath)
	hadPrev := true
	if err := rename(indexPath, backup); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to back up index: %w", err)
		}
		hadPrev = false
	}
	restore := func() {
		if hadPrev {
			if err := rename(backup, indexPath); err != nil {
				log.Error().Err(err).Str("entity", entity).Msg("Failed to restore previous index")
			}
			return
		}
		os.Remove(indexPath)
	}
	if err := rename(tmpIndex, indexPath); err != nil {
		restore()
		return fmt.Errorf("failed to install index: %w", err)
	}
	if err := rename(tmpManifest, manifestPath); err != nil {
		restore()
		return fmt.Errorf("failed to install manifest: %w", err)
	}
	if hadPrev {
		os.Remove(backup)
	}
	return nil
}

// rename is swapped in tests.
var rename = os.Rename

func backupPath(path string) string {
	return filepath.Join(filepath.Dir(path), ".bak-"+filepath.Base(path))
}

// tmpPath keeps the file extension so chromem sees the same suffix on export.
func tmpPath(path string) string {
	return filepath.Join(filepath.Dir(path), ".tmp-"+filepath.Base(path))
}

const (
	indexExt    = ".chromem"
	manifestExt = ".manifest.json"
)

func (s *IndexStore) paths(entity string) (string, string) {
	index := entity + indexExt
	if s.opts.Compress {
		index += ".gz"
	}
	return filepath.Join(s.opts.Dir, index), filepath.Join(s.opts.Dir, entity+manifestExt)
}

func newSnapshot(coll *chromem.Collection, records []models.ChunkRecord, dim int) *snapshot {
	byID := make(map[string]int, len(records))
	for i, r := range records {
		byID[r.ChunkID] = i
	}
	return &snapshot{coll: coll, records: records, byID: byID, dim: dim}
}

func normalizeEntity(entity string) (string, error) {
	e := strings.ToUpper(strings.TrimSpace(entity))
	if !entityRe.MatchString(e) {
		return "", models.ConfigError("invalid entity %q", entity)
	}
	return e, nil
}

// noEmbedding is set on every collection; vectors always come from the
// store's own embedder.
func noEmbedding(context.Context, string) ([]float32, error) {
	return nil, errors.New("collection has no embedding function")
}

// keyedMutex serializes work per key. Entries are dropped once no goroutine
// holds or waits for them.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &refMutex{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
