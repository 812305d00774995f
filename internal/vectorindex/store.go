package vectorindex

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/causalfractal/contextengine/pkg/contextmodel"
)

// batchLimit caps the number of rows sent to the backend in a single
// pgx.Batch, matching the original implementation's batching against its
// vector backend's own row-count ceiling.
const batchLimit = 5000

// chunkDelimiter separates chunks in the string returned by Query. Callers
// recover individual chunks by splitting on the literal "---" and trimming
// whitespace.
const chunkDelimiter = "\n---\n"

// Embedder is the slice of an embedding provider that VectorIndex needs.
// Defined locally so this package depends only on the method it actually
// calls.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Store is the PostgreSQL/pgvector-backed implementation of VectorIndex.
// All methods are safe for concurrent use.
type Store struct {
	pool     *pgxpool.Pool
	embedder Embedder
}

// New constructs a Store over an already-migrated pool.
func New(pool *pgxpool.Pool, embedder Embedder) *Store {
	return &Store{pool: pool, embedder: embedder}
}

// AddDocument implements VectorIndex.add_document. It splits text into
// overlapping chunks, embeds each one, and upserts them in batches of at
// most batchLimit rows. Each chunk's metadata carries source_id = docID
// verbatim.
func (s *Store) AddDocument(ctx context.Context, docID, text string, metadata contextmodel.ChunkMetadata) error {
	chunks := splitIntoChunks(text)
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.text
	}
	embeddings, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("vectorindex: add document %s: embed batch: %w", docID, err)
	}

	metadata.SourceID = docID

	const upsertQ = `
		INSERT INTO knowledge_chunks (chunk_id, doc_id, filename, text, embedding)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (chunk_id) DO UPDATE SET
		    text      = EXCLUDED.text,
		    embedding = EXCLUDED.embedding,
		    filename  = EXCLUDED.filename`

	for batchStart := 0; batchStart < len(chunks); batchStart += batchLimit {
		batchEnd := min(batchStart+batchLimit, len(chunks))

		batch := &pgx.Batch{}
		for i := batchStart; i < batchEnd; i++ {
			id := chunkID(docID, chunks[i].startOffset)
			vec := pgvector.NewVector(embeddings[i])
			batch.Queue(upsertQ, id, docID, metadata.Filename, chunks[i].text, vec)
		}

		results := s.pool.SendBatch(ctx, batch)
		for i := batchStart; i < batchEnd; i++ {
			if _, err := results.Exec(); err != nil {
				results.Close()
				return fmt.Errorf("vectorindex: add document %s: upsert chunk %d: %w", docID, i, err)
			}
		}
		if err := results.Close(); err != nil {
			return fmt.Errorf("vectorindex: add document %s: close batch: %w", docID, err)
		}
	}

	return nil
}

// Query implements VectorIndex.query. It embeds text and returns the top-k
// semantically closest chunks concatenated with chunkDelimiter between
// (and after) each chunk.
func (s *Store) Query(ctx context.Context, text string, k int) (string, error) {
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return "", fmt.Errorf("vectorindex: query: embed: %w", err)
	}
	queryVec := pgvector.NewVector(vec)

	const q = `
		SELECT text
		FROM   knowledge_chunks
		ORDER  BY embedding <=> $1
		LIMIT  $2`

	rows, err := s.pool.Query(ctx, q, queryVec, k)
	if err != nil {
		return "", fmt.Errorf("vectorindex: query: search: %w", err)
	}
	defer rows.Close()

	var sb strings.Builder
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return "", fmt.Errorf("vectorindex: query: scan: %w", err)
		}
		sb.WriteString(text)
		sb.WriteString(chunkDelimiter)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("vectorindex: query: %w", err)
	}

	return sb.String(), nil
}

// DeleteDocument implements VectorIndex.delete_document. It removes every
// chunk whose doc_id equals docID.
func (s *Store) DeleteDocument(ctx context.Context, docID string) error {
	const q = `DELETE FROM knowledge_chunks WHERE doc_id = $1`
	if _, err := s.pool.Exec(ctx, q, docID); err != nil {
		return fmt.Errorf("vectorindex: delete document %s: %w", docID, err)
	}
	return nil
}
