package ports

import (
	"context"
	"io"

	"github.com/kirillkom/script-rating/internal/core/domain"
)

// SubmitRequest describes one uploaded script to analyze.
type SubmitRequest struct {
	Filename     string
	MimeType     string
	Body         io.Reader
	TargetRating *domain.Rating
}

// AnalysisService is the inbound contract for script analysis orchestration.
type AnalysisService interface {
	Submit(ctx context.Context, req SubmitRequest) (*domain.AnalysisRun, error)
	SubmitText(ctx context.Context, text string, target *domain.Rating) (*domain.AnalysisRun, error)
	GetStatus(ctx context.Context, analysisID string) (domain.AnalysisRun, error)
}

// AnalysisProcessor is the inbound contract for queued (worker) processing.
type AnalysisProcessor interface {
	ProcessByID(ctx context.Context, analysisID string) error
}

// ReferenceCorpus is the inbound contract for corpus management and retrieval.
type ReferenceCorpus interface {
	AddReferenceDocument(ctx context.Context, title string, paragraphs []domain.ReferenceParagraph) (string, error)
	RemoveReferenceDocument(ctx context.Context, documentID string) error
	ListReferenceDocuments(ctx context.Context) ([]domain.ReferenceDocument, error)
	GetReferenceDocument(ctx context.Context, documentID string) (domain.ReferenceDocument, error)
	Query(ctx context.Context, text string, topK int, filter domain.QueryFilter) ([]domain.ScoredExcerpt, error)
}
