// Package collection implements the vector collections: SQLite rows, one in-memory
// vector index per collection, and an optional keyword index for related-document hints.
package collection

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/hyperjump/pachat/internal/embedding"
	"github.com/hyperjump/pachat/internal/fileid"
	"github.com/hyperjump/pachat/internal/keyword"
	"github.com/hyperjump/pachat/internal/models"
	"github.com/hyperjump/pachat/internal/storage"
	"github.com/hyperjump/pachat/internal/vector"
)

// Store holds the four collections.
type Store struct {
	storage  storage.Storage
	embedder embedding.Embedder
	keyword  keyword.KeywordIndex
	indexes  map[string]vector.VectorIndex
	logger   *zap.Logger
	mu       sync.Mutex // serializes writes so SQLite and the vector index stay in step

	keywordWeight  float64
	semanticWeight float64
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets a logger for store events.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithKeywordIndex enables related-document hints. Documents are indexed on upsert.
func WithKeywordIndex(k keyword.KeywordIndex) Option {
	return func(s *Store) { s.keyword = k }
}

// WithFusionWeights sets how keyword and semantic scores combine when ranking related documents.
func WithFusionWeights(keywordWeight, semanticWeight float64) Option {
	return func(s *Store) {
		s.keywordWeight = keywordWeight
		s.semanticWeight = semanticWeight
	}
}

// Open builds a Store and rebuilds every vector index from storage.
func Open(ctx context.Context, st storage.Storage, emb embedding.Embedder, opts ...Option) (*Store, error) {
	s := &Store{
		storage:  st,
		embedder: emb,
		indexes:  make(map[string]vector.VectorIndex, len(models.Collections)),
		logger:   zap.NewNop(),

		keywordWeight:  defaultKeywordWeight,
		semanticWeight: defaultSemanticWeight,
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, name := range models.Collections {
		idx, err := vector.NewMemoryIndex(0)
		if err != nil {
			return nil, err
		}
		ids, vecs, err := st.LoadVectors(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s vectors: %w", name, err)
		}
		if err := idx.Upsert(ctx, ids, vecs); err != nil {
			return nil, fmt.Errorf("failed to rebuild %s index: %w", name, err)
		}
		s.indexes[name] = idx
		s.logger.Debug("collection loaded", zap.String("collection", name), zap.Int("documents", len(ids)))
	}
	return s, nil
}

func (s *Store) index(name string) (vector.VectorIndex, error) {
	idx, ok := s.indexes[name]
	if !ok {
		return nil, fmt.Errorf("unknown collection %q", name)
	}
	return idx, nil
}

// Upsert embeds documents that have no embedding yet and writes them in one batch.
// An empty batch is a no-op.
func (s *Store) Upsert(ctx context.Context, name string, docs []*models.IndexedDocument) error {
	idx, err := s.index(name)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return nil
	}

	var pending []*models.IndexedDocument
	var texts []string
	for _, doc := range docs {
		if len(doc.Embedding) == 0 {
			pending = append(pending, doc)
			texts = append(texts, doc.Text)
		}
	}
	if len(texts) > 0 {
		vecs, err := s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("failed to generate embeddings: %w", err)
		}
		for i, doc := range pending {
			doc.Embedding = vecs[i]
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.storage.UpsertDocuments(ctx, name, docs); err != nil {
		return fmt.Errorf("failed to store %s documents: %w", name, err)
	}
	ids := make([]string, len(docs))
	vecs := make([][]float32, len(docs))
	for i, doc := range docs {
		ids[i] = doc.ID
		vecs[i] = doc.Embedding
	}
	if err := idx.Upsert(ctx, ids, vecs); err != nil {
		return fmt.Errorf("failed to index %s vectors: %w", name, err)
	}
	if s.keyword != nil {
		for _, doc := range docs {
			if err := s.keyword.Index(ctx, name, doc); err != nil {
				s.logger.Warn("keyword index failed", zap.String("collection", name), zap.String("id", doc.ID), zap.Error(err))
			}
		}
	}
	s.logger.Debug("upserted", zap.String("collection", name), zap.Int("count", len(docs)))
	return nil
}

// Query returns at most n documents satisfying where, nearest to query first.
func (s *Store) Query(ctx context.Context, name string, query []float32, where models.Where, n int) ([]*models.IndexedDocument, error) {
	idx, err := s.index(name)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, nil
	}

	var allow func(string) bool
	if len(where) > 0 {
		ids, err := s.storage.FindIDs(ctx, name, where)
		if err != nil {
			return nil, fmt.Errorf("failed to filter %s: %w", name, err)
		}
		if len(ids) == 0 {
			return nil, nil
		}
		set := make(map[string]struct{}, len(ids))
		for _, id := range ids {
			set[id] = struct{}{}
		}
		allow = func(id string) bool {
			_, ok := set[id]
			return ok
		}
	}

	hits, err := idx.Search(ctx, query, n, allow)
	if err != nil {
		return nil, fmt.Errorf("failed to search %s: %w", name, err)
	}
	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	return s.storage.GetDocuments(ctx, name, ids)
}

// QueryText embeds text and runs Query with it.
func (s *Store) QueryText(ctx context.Context, name, text string, where models.Where, n int) ([]*models.IndexedDocument, error) {
	emb, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	return s.Query(ctx, name, emb, where, n)
}

// Search returns related documents across all collections. Keyword hits are the candidates;
// they are re-ranked by fusing the normalized keyword score with semantic similarity to text.
// Without a keyword index it returns nothing.
func (s *Store) Search(ctx context.Context, text string, limit int) ([]models.RelatedDocument, error) {
	if s.keyword == nil {
		return nil, nil
	}
	hits, err := s.keyword.Search(ctx, text, limit, &keyword.SearchOptions{FuzzyEnabled: true})
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, nil
	}
	query, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	keywordScores := normalizeKeywordScores(hits)
	candidates := make([]*fusedHit, 0, len(hits))
	for _, h := range hits {
		docs, err := s.storage.GetDocuments(ctx, h.Collection, []string{h.ID})
		if err != nil {
			return nil, err
		}
		if len(docs) == 0 {
			continue
		}
		candidates = append(candidates, &fusedHit{
			collection: h.Collection,
			doc:        docs[0],
			keyword:    keywordScores[hitKey(h.Collection, h.ID)],
			semantic:   vector.Similarity(query, docs[0].Embedding),
		})
	}
	fuse(candidates, s.keywordWeight, s.semanticWeight)

	related := make([]models.RelatedDocument, 0, len(candidates))
	for _, c := range candidates {
		related = append(related, models.RelatedDocument{Collection: c.collection, Text: c.doc.Text, Score: c.score})
	}
	return related, nil
}

// Count returns the number of documents stored in the collection.
func (s *Store) Count(ctx context.Context, name string) (int64, error) {
	if _, err := s.index(name); err != nil {
		return 0, err
	}
	return s.storage.CountDocuments(ctx, name)
}

// Counts returns the document count of every collection.
func (s *Store) Counts(ctx context.Context) (map[string]int64, error) {
	out := make(map[string]int64, len(models.Collections))
	for _, name := range models.Collections {
		n, err := s.Count(ctx, name)
		if err != nil {
			return nil, err
		}
		out[name] = n
	}
	return out, nil
}

// SourceUnchanged reports whether the file at path was already ingested with the same
// modification time and size.
func (s *Store) SourceUnchanged(ctx context.Context, path string, info os.FileInfo) (bool, error) {
	rec, err := s.storage.GetSource(ctx, fileid.SourceID(path))
	if err != nil {
		return false, fmt.Errorf("failed to look up source: %w", err)
	}
	if rec == nil {
		return false, nil
	}
	return rec.ModTime == info.ModTime().UnixNano() && rec.Size == info.Size(), nil
}

// RecordSource remembers the version of path described by info as ingested.
func (s *Store) RecordSource(ctx context.Context, path string, info os.FileInfo) error {
	rec := &models.SourceRecord{
		ID:      fileid.SourceID(path),
		Path:    filepath.Clean(path),
		ModTime: info.ModTime().UnixNano(),
		Size:    info.Size(),
	}
	if err := s.storage.PutSource(ctx, rec); err != nil {
		return fmt.Errorf("failed to record source: %w", err)
	}
	return nil
}

// Close closes the vector indexes, keyword index and storage.
func (s *Store) Close() error {
	for _, idx := range s.indexes {
		_ = idx.Close()
	}
	if s.keyword != nil {
		if err := s.keyword.Close(); err != nil {
			_ = s.storage.Close()
			return err
		}
	}
	return s.storage.Close()
}
