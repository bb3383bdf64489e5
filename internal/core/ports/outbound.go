package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/script-rating/internal/core/domain"
)

// AnalysisRepository persists run snapshots so other processes can poll them.
type AnalysisRepository interface {
	Create(ctx context.Context, run domain.AnalysisRun) error
	Save(ctx context.Context, run domain.AnalysisRun) error
	GetByID(ctx context.Context, id string) (domain.AnalysisRun, error)
}

// ReferenceRepository is the durable copy of the reference corpus.
type ReferenceRepository interface {
	SaveDocument(ctx context.Context, doc domain.ReferenceDocument, excerpts []domain.ReferenceExcerpt) error
	DeleteDocument(ctx context.Context, documentID string) error
	ListDocuments(ctx context.Context) ([]domain.ReferenceDocument, error)
	ListExcerpts(ctx context.Context) ([]domain.ReferenceExcerpt, error)
}

// ObjectStorage stores uploaded source documents.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// AnalysisQueue publishes/consumes analysis requests.
type AnalysisQueue interface {
	PublishAnalysisRequested(ctx context.Context, analysisID string) error
	SubscribeAnalysisRequested(ctx context.Context, handler func(context.Context, string) error) error
}

// ResultSink receives every run once it reaches a terminal state.
type ResultSink interface {
	DeliverResult(ctx context.Context, run domain.AnalysisRun) error
}

// DocumentParser turns raw file bytes into normalized text with coordinates.
type DocumentParser interface {
	Parse(ctx context.Context, data []byte, mimeType, filename string) (domain.ScriptText, error)
}

// Segmenter splits normalized script text into content blocks.
type Segmenter interface {
	Segment(doc domain.ScriptText) ([]domain.ContentBlock, error)
}

// ContentScorer applies the per-category heuristics to block text.
type ContentScorer interface {
	Score(text string) (domain.ContentAssessment, error)
}

// ExcerptRetriever is the slice of the knowledge base the classifier needs.
type ExcerptRetriever interface {
	Query(ctx context.Context, text string, topK int, filter domain.QueryFilter) ([]domain.ScoredExcerpt, error)
}

// Embedder builds vectors for excerpts and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// ExcerptVectorStore is an optional external nearest-neighbour index.
type ExcerptVectorStore interface {
	UpsertExcerpts(ctx context.Context, excerpts []domain.ReferenceExcerpt) error
	SearchExcerpts(ctx context.Context, vector []float32, limit int, filter domain.QueryFilter) ([]domain.VectorHit, error)
	DeleteDocument(ctx context.Context, documentID string) error
}

// AnalysisObserver receives pipeline telemetry; implemented by the metrics package.
type AnalysisObserver interface {
	RunStarted()
	RunFinished(status domain.AnalysisStatus, duration time.Duration, rating *domain.Rating)
	BlockClassified(duration time.Duration, citations int)
	RetrievalFallback(strategy string)
}
