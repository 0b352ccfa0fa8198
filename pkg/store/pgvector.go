package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/reghealth/navigator/internal/models"
)

type PGVectorConfig struct {
	ConnString string
	TableName  string
	VectorDim  int
	BatchSize  int
}

// PGVectorStore is an alternative chunk+vector backend on Postgres with the
// pgvector extension, for deployments where the corpus outgrows the flat
// file pair. Rows keep the same position-ordered layout as the file store.
type PGVectorStore struct {
	config PGVectorConfig
	pool   *pgxpool.Pool
}

func NewPGVectorWithConfig(config PGVectorConfig) (*PGVectorStore, error) {
	if config.TableName == "" {
		config.TableName = "rule_chunks"
	}
	if config.VectorDim == 0 {
		config.VectorDim = 1536 // text-embedding-ada-002
	}
	if config.BatchSize == 0 {
		config.BatchSize = 100
	}

	pool, err := pgxpool.New(context.Background(), config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	vs := &PGVectorStore{config: config, pool: pool}
	if err := vs.initialize(); err != nil {
		pool.Close()
		return nil, err
	}
	return vs, nil
}

func (vs *PGVectorStore) initialize() error {
	ctx := context.Background()

	if _, err := vs.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			position BIGINT PRIMARY KEY,
			text TEXT NOT NULL,
			section_header TEXT,
			chunk_index INTEGER,
			hash TEXT,
			metadata JSONB,
			embedding vector(%d)
		)`, vs.config.TableName, vs.config.VectorDim)
	if _, err := vs.pool.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	createIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_embedding_idx
		ON %s
		USING ivfflat (embedding vector_l2_ops)
		WITH (lists = 100)`,
		vs.config.TableName, vs.config.TableName)
	if _, err := vs.pool.Exec(ctx, createIndex); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	return nil
}

// Reset drops all rows. Re-ingestion rebuilds the table wholesale rather than
// patching individual chunks.
func (vs *PGVectorStore) Reset(ctx context.Context) error {
	_, err := vs.pool.Exec(ctx, fmt.Sprintf("TRUNCATE %s", vs.config.TableName))
	return err
}

// Store writes chunks and their embeddings in position order inside one
// transaction. Chunk and embedding counts must match.
func (vs *PGVectorStore) Store(ctx context.Context, chunks []models.Chunk, embeddings [][]float32) error {
	if len(chunks) != len(embeddings) {
		return fmt.Errorf("chunk count %d does not match embedding count %d", len(chunks), len(embeddings))
	}

	tx, err := vs.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	stmt := fmt.Sprintf(`
		INSERT INTO %s (position, text, section_header, chunk_index, hash, metadata, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (position) DO UPDATE SET
			text = EXCLUDED.text,
			metadata = EXCLUDED.metadata,
			embedding = EXCLUDED.embedding`,
		vs.config.TableName)

	for i, chunk := range chunks {
		metaJSON, err := json.Marshal(chunk.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode metadata: %w", err)
		}
		_, err = tx.Exec(ctx, stmt,
			i,
			chunk.Text,
			chunk.SectionHeader,
			chunk.ChunkIndex,
			chunk.Hash,
			metaJSON,
			pgvector.NewVector(embeddings[i]),
		)
		if err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", i, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Search returns the k nearest chunks by L2 distance.
func (vs *PGVectorStore) Search(ctx context.Context, query []float32, k int) ([]models.SearchResult, error) {
	sql := fmt.Sprintf(`
		SELECT position, text, section_header, chunk_index, hash, metadata,
		       embedding <-> $1 AS distance
		FROM %s
		ORDER BY distance
		LIMIT $2`,
		vs.config.TableName)

	rows, err := vs.pool.Query(ctx, sql, pgvector.NewVector(query), k)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var results []models.SearchResult
	for rows.Next() {
		var r models.SearchResult
		var metaJSON []byte
		var distance float64
		err := rows.Scan(
			&r.Position,
			&r.Chunk.Text,
			&r.Chunk.SectionHeader,
			&r.Chunk.ChunkIndex,
			&r.Chunk.Hash,
			&metaJSON,
			&distance,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if err := json.Unmarshal(metaJSON, &r.Chunk.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata: %w", err)
		}
		r.Distance = float32(distance)
		results = append(results, r)
	}
	return results, rows.Err()
}

func (vs *PGVectorStore) Close() {
	if vs.pool != nil {
		vs.pool.Close()
	}
}
