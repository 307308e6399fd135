// Package chunkstore resolves chunk ids against the relational store.
package chunkstore

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dzinemon/rag-app/errs"
	"github.com/dzinemon/rag-app/schema"
)

// Store is the batch chunk lookup surface.
type Store interface {
	// GetByIDs resolves chunk ids in one round trip. Missing ids are simply
	// absent from the result; the caller decides how to treat them.
	GetByIDs(ctx context.Context, ids []string) ([]schema.Chunk, error)
}

// PostgresStore implements Store over a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects a pool to the given DSN.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errs.Wrap(errs.KindNetwork, "connect chunk store", err)
	}
	return &PostgresStore{pool: pool}, nil
}

const chunksByIDQuery = `
SELECT c.id, c.text, c.document_id, d.title, COALESCE(d.author, '')
FROM chunks c
JOIN documents d ON d.id = c.document_id
WHERE c.id = ANY($1)`

func (s *PostgresStore) GetByIDs(ctx context.Context, ids []string) ([]schema.Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, chunksByIDQuery, ids)
	if err != nil {
		return nil, errs.Wrap(errs.KindNetwork, "chunk lookup failed", err)
	}
	defer rows.Close()

	chunks := make([]schema.Chunk, 0, len(ids))
	for rows.Next() {
		var c schema.Chunk
		if err := rows.Scan(&c.ID, &c.Text, &c.DocumentID, &c.DocumentTitle, &c.DocumentAuthor); err != nil {
			return nil, errs.Wrap(errs.KindInternal, "scan chunk row", err)
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.KindNetwork, "chunk lookup failed", err)
	}
	return chunks, nil
}

// Close releases the pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// MemoryStore is an in-memory Store used in tests and local development.
type MemoryStore struct {
	chunks map[string]schema.Chunk
}

// NewMemoryStore builds a store holding the given chunks.
func NewMemoryStore(chunks ...schema.Chunk) *MemoryStore {
	m := &MemoryStore{chunks: make(map[string]schema.Chunk, len(chunks))}
	for _, c := range chunks {
		m.chunks[c.ID] = c
	}
	return m
}

func (m *MemoryStore) GetByIDs(_ context.Context, ids []string) ([]schema.Chunk, error) {
	out := make([]schema.Chunk, 0, len(ids))
	for _, id := range ids {
		if c, ok := m.chunks[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}
