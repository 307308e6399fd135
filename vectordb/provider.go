// Package vectordb wraps the vector index behind a narrow provider
// interface. The index is a black-box nearest-neighbor service; chunk text
// lives in the relational store.
package vectordb

import (
	"context"
	"encoding/json"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/dzinemon/rag-app/config"
	"github.com/dzinemon/rag-app/errs"
	"github.com/dzinemon/rag-app/schema"
)

// Provider is the nearest-neighbor query surface plus the upsert/delete
// operations used by ingestion.
type Provider interface {
	// Query returns topK matches for the vector, ranked by similarity.
	Query(ctx context.Context, vector []float32, topK int, filter string) ([]schema.SearchMatch, error)
	// Upsert writes vectors with ids and metadata (ingestion path).
	Upsert(ctx context.Context, ids []string, vectors [][]float32, metadata []schema.Metadata) error
	// Delete removes vectors by id (ingestion path).
	Delete(ctx context.Context, ids []string) error
	// Close releases the underlying connection.
	Close() error
}

const (
	fieldID       = "id"
	fieldVector   = "vector"
	fieldMetadata = "metadata"
)

// MilvusProvider implements Provider over a Milvus collection.
type MilvusProvider struct {
	client     client.Client
	collection string
	timeout    time.Duration
	logger     *zap.Logger
}

// NewMilvusProvider connects to Milvus and binds the configured collection.
func NewMilvusProvider(ctx context.Context, cfg config.VectorDBConfig, logger *zap.Logger) (*MilvusProvider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c, err := client.NewClient(ctx, client.Config{
		Address:  cfg.Address(),
		Username: cfg.Username,
		Password: cfg.Password,
	})
	if err != nil {
		return nil, errs.Wrap(errs.KindNetwork, "connect vector index", err)
	}
	return &MilvusProvider{
		client:     c,
		collection: cfg.Collection,
		timeout:    cfg.Timeout(),
		logger:     logger,
	}, nil
}

func (p *MilvusProvider) Query(ctx context.Context, vector []float32, topK int, filter string) ([]schema.SearchMatch, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	sp, err := entity.NewIndexAUTOINDEXSearchParam(1)
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, "build search params", err)
	}
	results, err := p.client.Search(
		callCtx,
		p.collection,
		nil,
		filter,
		[]string{fieldMetadata},
		[]entity.Vector{entity.FloatVector(vector)},
		fieldVector,
		entity.COSINE,
		topK,
		sp,
	)
	if err != nil {
		return nil, errs.Wrap(errs.KindNetwork, "vector index query failed", err)
	}

	matches := make([]schema.SearchMatch, 0, topK)
	for _, result := range results {
		var metaCol entity.Column
		if result.Fields != nil {
			metaCol = result.Fields.GetColumn(fieldMetadata)
		}
		for i := 0; i < result.ResultCount; i++ {
			id, err := result.IDs.GetAsString(i)
			if err != nil {
				p.logger.Warn("vector index returned non-string id", zap.Error(err))
				continue
			}
			match := schema.SearchMatch{ID: id, Score: float64(result.Scores[i])}
			if metaCol != nil {
				if raw, err := metaCol.GetAsString(i); err == nil && raw != "" {
					match.Metadata = parseMetadata(raw, p.logger)
				}
			}
			matches = append(matches, match)
		}
	}
	return matches, nil
}

func (p *MilvusProvider) Upsert(ctx context.Context, ids []string, vectors [][]float32, metadata []schema.Metadata) error {
	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	metaJSON := make([]string, len(ids))
	for i := range ids {
		var m schema.Metadata
		if i < len(metadata) {
			m = metadata[i]
		}
		data, err := json.Marshal(m)
		if err != nil {
			return errs.Wrap(errs.KindInternal, "encode metadata", err)
		}
		metaJSON[i] = string(data)
	}

	dim := 0
	if len(vectors) > 0 {
		dim = len(vectors[0])
	}
	_, err := p.client.Upsert(callCtx, p.collection, "",
		entity.NewColumnVarChar(fieldID, ids),
		entity.NewColumnFloatVector(fieldVector, dim, vectors),
		entity.NewColumnVarChar(fieldMetadata, metaJSON),
	)
	if err != nil {
		return errs.Wrap(errs.KindNetwork, "vector index upsert failed", err)
	}
	return nil
}

func (p *MilvusProvider) Delete(ctx context.Context, ids []string) error {
	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.client.DeleteByPks(callCtx, p.collection, "", entity.NewColumnVarChar(fieldID, ids))
	if err != nil {
		return errs.Wrap(errs.KindNetwork, "vector index delete failed", err)
	}
	return nil
}

func (p *MilvusProvider) Close() error {
	return p.client.Close()
}

func parseMetadata(raw string, logger *zap.Logger) schema.Metadata {
	var meta schema.Metadata
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		logger.Warn("unparseable metadata on vector match", zap.Error(err))
		return nil
	}
	return meta
}
