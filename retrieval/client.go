// Package retrieval turns a free-text query into ranked, scored passages
// from the knowledge base.
package retrieval

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dzinemon/rag-app/cache"
	"github.com/dzinemon/rag-app/chunkstore"
	"github.com/dzinemon/rag-app/config"
	"github.com/dzinemon/rag-app/embedding"
	"github.com/dzinemon/rag-app/errs"
	"github.com/dzinemon/rag-app/metrics"
	"github.com/dzinemon/rag-app/schema"
	"github.com/dzinemon/rag-app/vectordb"
)

// MaxTopK is the hard cap on nearest-neighbor matches per query.
const MaxTopK = 20

// Client resolves queries to ranked passages: embed, nearest-neighbor
// query, threshold filter, batch chunk resolution, join, sort.
type Client struct {
	embedder  embedding.Provider
	index     vectordb.Provider
	chunks    chunkstore.Store
	topK      int
	threshold float64
	cache     *cache.LRU[[]schema.Passage]
	ttl       time.Duration
	emptyTTL  time.Duration
	logger    *zap.Logger
}

// NewClient builds a retrieval client from config and collaborators.
func NewClient(cfg config.RetrievalConfig, embedder embedding.Provider, index vectordb.Provider, chunks chunkstore.Store, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	topK := cfg.TopK
	if topK <= 0 {
		topK = 5
	}
	if topK > MaxTopK {
		topK = MaxTopK
	}
	threshold := 0.01
	if cfg.Threshold != nil {
		threshold = *cfg.Threshold
	}
	return &Client{
		embedder:  embedder,
		index:     index,
		chunks:    chunks,
		topK:      topK,
		threshold: threshold,
		cache:     cache.NewLRU[[]schema.Passage](512, cfg.CacheTTL()),
		ttl:       cfg.CacheTTL(),
		emptyTTL:  cfg.EmptyCacheTTL(),
		logger:    logger,
	}
}

// Search returns passages for the query sorted by descending score, all at
// or above the configured threshold. A topK of zero uses the default.
func (c *Client) Search(ctx context.Context, query string, topK int) ([]schema.Passage, error) {
	if topK <= 0 {
		topK = c.topK
	}
	if topK > MaxTopK {
		topK = MaxTopK
	}

	key := c.cacheKey(query, topK)
	if cached, ok := c.cache.Get(key); ok {
		metrics.IncCache("hit")
		return clonePassages(cached), nil
	}
	metrics.IncCache("miss")

	start := time.Now()
	vector, err := c.embedder.Embed(ctx, query)
	if err != nil {
		return nil, errs.Wrap(errs.KindRetrieval, "embed query", err)
	}

	matches, err := c.index.Query(ctx, vector, topK, "")
	if err != nil {
		return nil, errs.Wrap(errs.KindRetrieval, "query vector index", err)
	}

	filtered := matches[:0]
	for _, m := range matches {
		if m.Score >= c.threshold {
			filtered = append(filtered, m)
		}
	}

	passages, err := c.resolve(ctx, filtered)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(passages, func(i, j int) bool {
		return passages[i].Score > passages[j].Score
	})

	metrics.ObserveRetrieval(start, len(passages))
	ttl := c.ttl
	if len(passages) == 0 {
		// Empty results are cached briefly so noisy queries do not hammer
		// the backend, while new ingests still show up quickly.
		ttl = c.emptyTTL
	}
	c.cache.Set(key, clonePassages(passages), ttl)

	return passages, nil
}

// resolve joins vector matches with chunk rows from the relational store.
// Matches whose id cannot be resolved are excluded and logged; the index
// and store can briefly disagree after deletes.
func (c *Client) resolve(ctx context.Context, matches []schema.SearchMatch) ([]schema.Passage, error) {
	if len(matches) == 0 {
		return []schema.Passage{}, nil
	}
	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.ID
	}
	chunks, err := c.chunks.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errs.Wrap(errs.KindRetrieval, "resolve chunks", err)
	}
	byID := make(map[string]schema.Chunk, len(chunks))
	for _, chunk := range chunks {
		byID[chunk.ID] = chunk
	}

	passages := make([]schema.Passage, 0, len(matches))
	for _, m := range matches {
		chunk, ok := byID[m.ID]
		if !ok {
			c.logger.Warn("vector match missing from chunk store, skipping",
				zap.String("chunk_id", m.ID))
			continue
		}
		passages = append(passages, schema.Passage{
			ChunkID:        chunk.ID,
			DocumentID:     chunk.DocumentID,
			DocumentTitle:  chunk.DocumentTitle,
			DocumentAuthor: chunk.DocumentAuthor,
			Text:           chunk.Text,
			Score:          m.Score,
			Metadata:       m.Metadata.Clone(),
		})
	}
	return passages, nil
}

func (c *Client) cacheKey(query string, topK int) string {
	normalized := strings.ToLower(strings.TrimSpace(query))
	base := fmt.Sprintf("%s|%d|%g", normalized, topK, c.threshold)
	sum := sha1.Sum([]byte(base))
	return hex.EncodeToString(sum[:])
}

func clonePassages(passages []schema.Passage) []schema.Passage {
	if len(passages) == 0 {
		return []schema.Passage{}
	}
	out := make([]schema.Passage, len(passages))
	for i, p := range passages {
		out[i] = p
		out[i].Metadata = p.Metadata.Clone()
	}
	return out
}
