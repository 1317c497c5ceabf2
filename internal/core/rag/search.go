package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/PascheK/PascheK-ChatBox/internal/core"
	"github.com/PascheK/PascheK-ChatBox/internal/models"
)

const (
	// DefaultSearchLimit and DefaultSearchThreshold match the knowledge
	// base tool defaults used by the chat endpoint.
	DefaultSearchLimit     = 3
	DefaultSearchThreshold = 0.5

	maxSearchLimit = 50
)

// KnowledgeSearcher implements core.Searcher: it embeds the query with the
// same model used at ingestion time and ranks stored chunks by cosine
// similarity.
type KnowledgeSearcher struct {
	store    core.Store
	objects  core.ObjectStore
	embedder core.Embedder
	bucket   string
	logger   *slog.Logger
}

var _ core.Searcher = (*KnowledgeSearcher)(nil)

func NewKnowledgeSearcher(store core.Store, objects core.ObjectStore, embedder core.Embedder, bucket string, logger *slog.Logger) *KnowledgeSearcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &KnowledgeSearcher{
		store:    store,
		objects:  objects,
		embedder: embedder,
		bucket:   bucket,
		logger:   logger.With("component", "search"),
	}
}

// Search returns at most limit chunks scoring above threshold, best
// first, ties broken by insertion order. An empty result is not an error.
func (s *KnowledgeSearcher) Search(ctx context.Context, query string, limit int, threshold float32) ([]models.SearchHit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []models.SearchHit{}, nil
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}
	if threshold < 0 {
		threshold = 0
	}
	if threshold >= 1 {
		// Cosine similarity of distinct texts never reaches 1; an
		// impossible threshold yields an empty result, not an error.
		return []models.SearchHit{}, nil
	}

	vecs, err := s.embedder.EmbedTexts(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("%w: got %d vectors for one query", core.ErrEmbedding, len(vecs))
	}
	if len(vecs[0]) != s.embedder.Dimension() {
		return nil, fmt.Errorf("%w: query vector has dimension %d, store expects %d",
			core.ErrConfig, len(vecs[0]), s.embedder.Dimension())
	}

	hits, err := s.store.SearchChunks(ctx, vecs[0], limit, threshold)
	if err != nil {
		return nil, err
	}

	// The store returns the raw storage key; expose a retrievable URL.
	for i := range hits {
		hits[i].SourceURL = s.objects.PublicURL(s.bucket, hits[i].SourceURL)
	}
	if hits == nil {
		hits = []models.SearchHit{}
	}

	s.logger.Debug("knowledge search", "query_len", len(query), "hits", len(hits))
	return hits, nil
}
