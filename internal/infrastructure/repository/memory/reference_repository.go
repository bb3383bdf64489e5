package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/kirillkom/script-rating/internal/core/domain"
)

type ReferenceRepository struct {
	mu       sync.RWMutex
	docs     map[string]domain.ReferenceDocument
	excerpts map[string][]domain.ReferenceExcerpt
}

func NewReferenceRepository() *ReferenceRepository {
	return &ReferenceRepository{
		docs:     make(map[string]domain.ReferenceDocument),
		excerpts: make(map[string][]domain.ReferenceExcerpt),
	}
}

func (r *ReferenceRepository) SaveDocument(_ context.Context, doc domain.ReferenceDocument, excerpts []domain.ReferenceExcerpt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.docs[doc.ID]; exists {
		return domain.WrapError(domain.ErrInvalidInput, "save reference document", fmt.Errorf("document %s already exists", doc.ID))
	}
	stored := make([]domain.ReferenceExcerpt, len(excerpts))
	for i, ex := range excerpts {
		ex.Embedding = append([]float32(nil), ex.Embedding...)
		stored[i] = ex
	}
	r.docs[doc.ID] = doc
	r.excerpts[doc.ID] = stored
	return nil
}

func (r *ReferenceRepository) DeleteDocument(_ context.Context, documentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.docs[documentID]; !exists {
		return domain.WrapError(domain.ErrNotFound, "delete reference document", fmt.Errorf("document %s", documentID))
	}
	delete(r.docs, documentID)
	delete(r.excerpts, documentID)
	return nil
}

func (r *ReferenceRepository) ListDocuments(_ context.Context) ([]domain.ReferenceDocument, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.ReferenceDocument, 0, len(r.docs))
	for _, doc := range r.docs {
		out = append(out, doc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// ListExcerpts returns every excerpt ordered by Seq.
func (r *ReferenceRepository) ListExcerpts(_ context.Context) ([]domain.ReferenceExcerpt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.ReferenceExcerpt
	for _, list := range r.excerpts {
		out = append(out, list...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}
