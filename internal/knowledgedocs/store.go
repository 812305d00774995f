package knowledgedocs

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/causalfractal/contextengine/pkg/contextmodel"
)

// Indexer is the VectorIndex slice knowledgedocs needs: chunking and
// embedding a document's text on upload, and removing its chunks on
// deletion. Satisfied by *vectorindex.Store.
type Indexer interface {
	AddDocument(ctx context.Context, docID, text string, metadata contextmodel.ChunkMetadata) error
	DeleteDocument(ctx context.Context, docID string) error
}

// Store manages the lifecycle of uploaded KnowledgeDocuments: their raw
// metadata row plus the VectorIndex chunks derived from their content.
type Store struct {
	pool  *pgxpool.Pool
	index Indexer
}

// New returns a Store persisting document rows in pool and delegating
// chunking/indexing to index.
func New(pool *pgxpool.Pool, index Indexer) *Store {
	return &Store{pool: pool, index: index}
}

// AddDocument inserts doc's metadata and indexes its content into the
// VectorIndex. If indexing fails, the document row is rolled back so the
// two stores never diverge — a document is either fully present or fully
// absent from both.
func (s *Store) AddDocument(ctx context.Context, doc contextmodel.KnowledgeDocument) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("knowledgedocs: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	const q = `
		INSERT INTO knowledge_docs (doc_id, filename, content, uploaded_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (doc_id) DO UPDATE SET
		    filename    = EXCLUDED.filename,
		    content     = EXCLUDED.content,
		    uploaded_at = EXCLUDED.uploaded_at`

	uploadedAt := doc.UploadedAt
	if uploadedAt.IsZero() {
		uploadedAt = time.Now().UTC()
	}

	if _, err := tx.Exec(ctx, q, doc.DocID, doc.Filename, doc.Content, uploadedAt); err != nil {
		return fmt.Errorf("knowledgedocs: insert document: %w", err)
	}

	if err := s.index.AddDocument(ctx, doc.DocID, doc.Content, contextmodel.ChunkMetadata{
		Filename: doc.Filename,
		SourceID: doc.DocID,
	}); err != nil {
		return fmt.Errorf("knowledgedocs: index document: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("knowledgedocs: commit: %w", err)
	}
	return nil
}

// GetDocument retrieves a document's metadata and content by ID.
func (s *Store) GetDocument(ctx context.Context, docID string) (contextmodel.KnowledgeDocument, error) {
	const q = `SELECT doc_id, filename, content, uploaded_at FROM knowledge_docs WHERE doc_id = $1`

	var doc contextmodel.KnowledgeDocument
	err := s.pool.QueryRow(ctx, q, docID).Scan(&doc.DocID, &doc.Filename, &doc.Content, &doc.UploadedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return contextmodel.KnowledgeDocument{}, fmt.Errorf("knowledgedocs: get document %q: %w", docID, ErrDocumentNotFound)
		}
		return contextmodel.KnowledgeDocument{}, fmt.Errorf("knowledgedocs: get document: %w", err)
	}
	return doc, nil
}

// ListDocuments returns every document's metadata, ordered by upload time.
func (s *Store) ListDocuments(ctx context.Context) ([]contextmodel.KnowledgeDocument, error) {
	const q = `SELECT doc_id, filename, content, uploaded_at FROM knowledge_docs ORDER BY uploaded_at`

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("knowledgedocs: list documents: %w", err)
	}
	docs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (contextmodel.KnowledgeDocument, error) {
		var d contextmodel.KnowledgeDocument
		err := row.Scan(&d.DocID, &d.Filename, &d.Content, &d.UploadedAt)
		return d, err
	})
	if err != nil {
		return nil, fmt.Errorf("knowledgedocs: scan documents: %w", err)
	}
	return docs, nil
}

// DeleteDocument removes doc's chunks from the VectorIndex and its metadata
// row. Index removal happens first: a document briefly absent from the
// index but still listed is safer than the reverse, which would leave
// unreferenced chunks with no owning document.
func (s *Store) DeleteDocument(ctx context.Context, docID string) error {
	if err := s.index.DeleteDocument(ctx, docID); err != nil {
		return fmt.Errorf("knowledgedocs: deindex document: %w", err)
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM knowledge_docs WHERE doc_id = $1`, docID); err != nil {
		return fmt.Errorf("knowledgedocs: delete document: %w", err)
	}
	return nil
}
