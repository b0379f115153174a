// Package postgres provides the PostgreSQL/pgvector implementation of the
// knowledge base. All documents share one kb_chunks table distinguished by
// a collection column; search embeds the query and orders by cosine
// distance over an HNSW index.
//
// The pgvector extension must be available in the target database;
// [Migrate] installs it via CREATE EXTENSION IF NOT EXISTS.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/attercap/sennet/pkg/knowledge"
	"github.com/attercap/sennet/pkg/provider/embeddings"
)

// Ensure Store implements the knowledge.Store interface at compile time.
var _ knowledge.Store = (*Store)(nil)

const ddlChunks = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS kb_chunks (
    id          TEXT         PRIMARY KEY,
    collection  TEXT         NOT NULL,
    document    TEXT         NOT NULL,
    metadata    JSONB        NOT NULL DEFAULT '{}',
    embedding   vector(%d)   NOT NULL,
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_kb_chunks_collection
    ON kb_chunks (collection);

CREATE INDEX IF NOT EXISTS idx_kb_chunks_embedding
    ON kb_chunks USING hnsw (embedding vector_cosine_ops);
`

// Store is the pgvector-backed knowledge base. All operations are safe for
// concurrent use.
type Store struct {
	pool     *pgxpool.Pool
	embedder embeddings.Provider
}

// NewStore connects to the database at dsn, registers pgvector types on
// every connection, and ensures the schema exists. The vector column width
// is taken from the embedder, so documents and queries always share a
// space.
func NewStore(ctx context.Context, dsn string, embedder embeddings.Provider) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("knowledge: parse dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("knowledge: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("knowledge: ping: %w", err)
	}
	if err := Migrate(ctx, pool, embedder.Dimensions()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("knowledge: migrate: %w", err)
	}
	return &Store{pool: pool, embedder: embedder}, nil
}

// Migrate ensures the kb_chunks table and its indexes exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool, dimensions int) error {
	if dimensions <= 0 {
		return fmt.Errorf("knowledge: invalid embedding dimensions %d", dimensions)
	}
	if _, err := pool.Exec(ctx, fmt.Sprintf(ddlChunks, dimensions)); err != nil {
		return fmt.Errorf("knowledge: apply schema: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping checks database connectivity. Used by readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Search implements [knowledge.Store]. One query covers every collection;
// ordering by distance is the cross-collection merge.
func (s *Store) Search(ctx context.Context, query string, k int) ([]knowledge.Result, error) {
	if k <= 0 {
		return nil, nil
	}
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("knowledge: embed query: %w", err)
	}

	const q = `
		SELECT id, collection, document, metadata,
		       embedding <=> $1 AS distance
		FROM   kb_chunks
		ORDER  BY distance
		LIMIT  $2`

	rows, err := s.pool.Query(ctx, q, pgvector.NewVector(vec), k)
	if err != nil {
		return nil, fmt.Errorf("knowledge: search: %w", err)
	}
	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (knowledge.Result, error) {
		var r knowledge.Result
		var collection string
		if err := row.Scan(&r.ID, &collection, &r.Document, &r.Metadata, &r.Distance); err != nil {
			return knowledge.Result{}, err
		}
		r.Collection = knowledge.Collection(collection)
		return r, nil
	})
	if err != nil {
		return nil, fmt.Errorf("knowledge: collect results: %w", err)
	}
	return results, nil
}

// Index implements [knowledge.Store]. An existing id is fully replaced.
func (s *Store) Index(ctx context.Context, collection knowledge.Collection, id, document string, metadata map[string]any) error {
	if !collection.IsValid() {
		return fmt.Errorf("knowledge: unknown collection %q", collection)
	}
	if id == "" {
		return fmt.Errorf("knowledge: empty document id")
	}
	vec, err := s.embedder.Embed(ctx, document)
	if err != nil {
		return fmt.Errorf("knowledge: embed document: %w", err)
	}
	if metadata == nil {
		metadata = map[string]any{}
	}

	const q = `
		INSERT INTO kb_chunks (id, collection, document, metadata, embedding)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
		    collection = EXCLUDED.collection,
		    document   = EXCLUDED.document,
		    metadata   = EXCLUDED.metadata,
		    embedding  = EXCLUDED.embedding`

	if _, err := s.pool.Exec(ctx, q, id, string(collection), document, metadata, pgvector.NewVector(vec)); err != nil {
		return fmt.Errorf("knowledge: index %s/%s: %w", collection, id, err)
	}
	return nil
}

// SaveConversation implements [knowledge.Store].
func (s *Store) SaveConversation(ctx context.Context, summary, id string) error {
	if id == "" {
		id = uuid.NewString()
	}
	meta := map[string]any{"saved_at": time.Now().UTC().Format(time.RFC3339)}
	return s.Index(ctx, knowledge.CollectionConversations, id, summary, meta)
}

// Stats implements [knowledge.Store].
func (s *Store) Stats(ctx context.Context) (knowledge.Stats, error) {
	const q = `SELECT collection, count(*) FROM kb_chunks GROUP BY collection`
	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return knowledge.Stats{}, fmt.Errorf("knowledge: stats: %w", err)
	}
	defer rows.Close()

	stats := knowledge.Stats{ByCollection: make(map[knowledge.Collection]int)}
	for rows.Next() {
		var collection string
		var count int
		if err := rows.Scan(&collection, &count); err != nil {
			return knowledge.Stats{}, fmt.Errorf("knowledge: stats: %w", err)
		}
		stats.ByCollection[knowledge.Collection(collection)] = count
		stats.Total += count
	}
	if err := rows.Err(); err != nil {
		return knowledge.Stats{}, fmt.Errorf("knowledge: stats: %w", err)
	}
	return stats, nil
}
