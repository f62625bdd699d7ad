package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mudler/xlog"

	"localanswer/rag/types"
)

// PostgresIndex is a vector index backed by Postgres with the pgvector
// extension. The <=> operator yields cosine distance directly, which is the
// raw distance the retriever expects.
type PostgresIndex struct {
	pool          *pgxpool.Pool
	tableName     string
	embeddingDims int
}

// NewPostgresIndex connects to databaseURL and prepares the documents table
// for the given collection. embeddingDims must match the embedder in use.
func NewPostgresIndex(collection, databaseURL string, embeddingDims int) (*PostgresIndex, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required for the Postgres engine")
	}
	if embeddingDims <= 0 {
		return nil, fmt.Errorf("embedding dimensions must be positive, got %d", embeddingDims)
	}

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pg := &PostgresIndex{
		pool:          pool,
		tableName:     sanitizeTableName(collection),
		embeddingDims: embeddingDims,
	}

	if err := pg.setupTable(); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to set up table: %w", err)
	}

	return pg, nil
}

func sanitizeTableName(name string) string {
	name = strings.ReplaceAll(name, "-", "_")
	name = strings.ReplaceAll(name, ".", "_")
	name = strings.ReplaceAll(name, " ", "_")
	if len(name) > 0 && (name[0] < 'a' || name[0] > 'z') && (name[0] < 'A' || name[0] > 'Z') {
		name = "col_" + name
	}
	return "passages_" + name
}

func (p *PostgresIndex) setupTable() error {
	ctx := context.Background()

	if _, err := p.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to enable vector extension: %w", err)
	}

	_, err := p.pool.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			metadata JSONB NOT NULL DEFAULT '{}',
			embedding VECTOR(%d)
		)
	`, p.tableName, p.embeddingDims))
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	_, err = p.pool.Exec(ctx, fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS idx_%s_embedding ON %s
		USING hnsw(embedding vector_cosine_ops)
	`, p.tableName, p.tableName))
	if err != nil {
		// Search still works without the index, just slower.
		xlog.Warn("Failed to create HNSW index, continuing without it", "error", err)
	}

	return nil
}

func formatVector(vec []float32) string {
	parts := make([]string, len(vec))
	for i, v := range vec {
		parts[i] = fmt.Sprintf("%.6f", v)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func (p *PostgresIndex) Upsert(ctx context.Context, docs []types.Document) error {
	for _, d := range docs {
		metadata, err := json.Marshal(d.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode metadata for %s: %w", d.ID, err)
		}
		_, err = p.pool.Exec(ctx, fmt.Sprintf(`
			INSERT INTO %s (id, content, metadata, embedding)
			VALUES ($1, $2, $3, $4::vector)
			ON CONFLICT (id) DO UPDATE
			SET content = EXCLUDED.content, metadata = EXCLUDED.metadata, embedding = EXCLUDED.embedding
		`, p.tableName), d.ID, d.Content, metadata, formatVector(d.Embedding))
		if err != nil {
			return fmt.Errorf("failed to upsert document %s: %w", d.ID, err)
		}
	}
	return nil
}

func (p *PostgresIndex) Query(ctx context.Context, vector []float32, k int) ([]types.Match, error) {
	rows, err := p.pool.Query(ctx, fmt.Sprintf(`
		SELECT id, content, metadata, embedding <=> $1::vector AS distance
		FROM %s
		WHERE embedding IS NOT NULL
		ORDER BY distance
		LIMIT $2
	`, p.tableName), formatVector(vector), k)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	defer rows.Close()

	var matches []types.Match
	for rows.Next() {
		var m types.Match
		var metadata []byte
		if err := rows.Scan(&m.ID, &m.Content, &metadata, &m.Distance); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if err := json.Unmarshal(metadata, &m.Metadata); err != nil {
			m.Metadata = map[string]string{}
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

func (p *PostgresIndex) Count() int {
	var count int
	err := p.pool.QueryRow(context.Background(), fmt.Sprintf("SELECT COUNT(*) FROM %s", p.tableName)).Scan(&count)
	if err != nil {
		xlog.Error("Failed to count documents", "error", err)
		return 0
	}
	return count
}

func (p *PostgresIndex) Reset() error {
	ctx := context.Background()
	if _, err := p.pool.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", p.tableName)); err != nil {
		return fmt.Errorf("failed to drop table: %w", err)
	}
	return p.setupTable()
}

// Close releases the connection pool.
func (p *PostgresIndex) Close() {
	p.pool.Close()
}
