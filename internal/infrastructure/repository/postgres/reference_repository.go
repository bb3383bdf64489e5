package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/kirillkom/script-rating/internal/core/domain"
)

type ReferenceRepository struct {
	db *sql.DB
}

func NewReferenceRepository(db *sql.DB) *ReferenceRepository {
	return &ReferenceRepository{db: db}
}

// SaveDocument writes the document and all of its excerpts in one transaction.
func (r *ReferenceRepository) SaveDocument(ctx context.Context, doc domain.ReferenceDocument, excerpts []domain.ReferenceExcerpt) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reference tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO reference_documents (id, title, excerpt_count, created_at)
VALUES ($1, $2, $3, $4)
`, doc.ID, doc.Title, doc.ExcerptCount, doc.CreatedAt); err != nil {
		return fmt.Errorf("insert reference document: %w", err)
	}

	for _, ex := range excerpts {
		embedding, err := encodeEmbedding(ex.Embedding)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO reference_excerpts (id, document_id, page, paragraph, text, category, embedding, seq)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`, ex.ID, doc.ID, ex.Page, ex.Paragraph, ex.Text, string(ex.CategoryHint), embedding, ex.Seq); err != nil {
			return fmt.Errorf("insert reference excerpt: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reference tx: %w", err)
	}
	return nil
}

func (r *ReferenceRepository) DeleteDocument(ctx context.Context, documentID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM reference_documents WHERE id = $1`, documentID)
	if err != nil {
		return fmt.Errorf("delete reference document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete reference document rows affected: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrNotFound, "delete reference document", fmt.Errorf("document %s", documentID))
	}
	return nil
}

func (r *ReferenceRepository) ListDocuments(ctx context.Context) ([]domain.ReferenceDocument, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, title, excerpt_count, created_at
FROM reference_documents
ORDER BY created_at, id
`)
	if err != nil {
		return nil, fmt.Errorf("query reference documents: %w", err)
	}
	defer rows.Close()

	out := make([]domain.ReferenceDocument, 0)
	for rows.Next() {
		var doc domain.ReferenceDocument
		if err := rows.Scan(&doc.ID, &doc.Title, &doc.ExcerptCount, &doc.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan reference document: %w", err)
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reference documents: %w", err)
	}
	return out, nil
}

// ListExcerpts returns every excerpt in insertion (seq) order.
func (r *ReferenceRepository) ListExcerpts(ctx context.Context) ([]domain.ReferenceExcerpt, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT e.id, e.document_id, d.title, e.page, e.paragraph, e.text, e.category, e.embedding, e.seq
FROM reference_excerpts e
JOIN reference_documents d ON d.id = e.document_id
ORDER BY e.seq
`)
	if err != nil {
		return nil, fmt.Errorf("query reference excerpts: %w", err)
	}
	defer rows.Close()

	out := make([]domain.ReferenceExcerpt, 0)
	for rows.Next() {
		var ex domain.ReferenceExcerpt
		var category string
		var embedding []byte
		if err := rows.Scan(&ex.ID, &ex.DocumentID, &ex.DocumentTitle, &ex.Page, &ex.Paragraph, &ex.Text, &category, &embedding, &ex.Seq); err != nil {
			return nil, fmt.Errorf("scan reference excerpt: %w", err)
		}
		ex.CategoryHint = domain.Category(category)
		if len(embedding) > 0 {
			if err := json.Unmarshal(embedding, &ex.Embedding); err != nil {
				return nil, fmt.Errorf("unmarshal embedding for excerpt %s: %w", ex.ID, err)
			}
		}
		out = append(out, ex)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reference excerpts: %w", err)
	}
	return out, nil
}

func encodeEmbedding(vector []float32) (any, error) {
	if len(vector) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(vector)
	if err != nil {
		return nil, fmt.Errorf("marshal embedding: %w", err)
	}
	return raw, nil
}
