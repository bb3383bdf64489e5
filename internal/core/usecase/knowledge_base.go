package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/script-rating/internal/core/domain"
	"github.com/kirillkom/script-rating/internal/core/ports"
)

const (
	defaultKnowledgeTopK  = 4
	defaultEmbedTimeout   = 3 * time.Second
	defaultHybridPoolSize = 20
)

type KnowledgeBaseOptions struct {
	Mode         RetrievalMode
	DefaultTopK  int
	EmbedTimeout time.Duration
	RRFK         int
	PoolSize     int
	Logger       *slog.Logger
	Observer     ports.AnalysisObserver
}

// KnowledgeBaseUseCase owns the reference corpus index. Query is lock-free
// and safe for concurrent use; corpus changes are serialized.
type KnowledgeBaseUseCase struct {
	repo       ports.ReferenceRepository
	embedder   ports.Embedder
	vectors    ports.ExcerptVectorStore
	strategies []retrievalStrategy
	opts       KnowledgeBaseOptions

	writeMu sync.Mutex
	current atomic.Pointer[corpusSnapshot]
	now     func() time.Time
}

func NewKnowledgeBaseUseCase(
	repo ports.ReferenceRepository,
	embedder ports.Embedder,
	vectors ports.ExcerptVectorStore,
	opts KnowledgeBaseOptions,
) *KnowledgeBaseUseCase {
	if opts.Mode == "" {
		opts.Mode = RetrievalSemantic
	}
	if embedder == nil {
		opts.Mode = RetrievalLexical
	}
	if opts.DefaultTopK <= 0 {
		opts.DefaultTopK = defaultKnowledgeTopK
	}
	if opts.EmbedTimeout <= 0 {
		opts.EmbedTimeout = defaultEmbedTimeout
	}
	if opts.PoolSize <= 0 {
		opts.PoolSize = defaultHybridPoolSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Observer == nil {
		opts.Observer = noopObserver{}
	}

	semantic := &semanticStrategy{embedder: embedder, vectors: vectors, timeout: opts.EmbedTimeout}
	uc := &KnowledgeBaseUseCase{
		repo:       repo,
		embedder:   embedder,
		vectors:    vectors,
		strategies: buildStrategies(opts.Mode, semantic, opts.RRFK, opts.PoolSize),
		opts:       opts,
		now:        func() time.Time { return time.Now().UTC() },
	}
	uc.current.Store(emptyCorpusSnapshot())
	return uc
}

// Load replaces the in-memory index with the persisted corpus.
func (uc *KnowledgeBaseUseCase) Load(ctx context.Context) error {
	uc.writeMu.Lock()
	defer uc.writeMu.Unlock()

	docs, err := uc.repo.ListDocuments(ctx)
	if err != nil {
		return fmt.Errorf("list reference documents: %w", err)
	}
	excerpts, err := uc.repo.ListExcerpts(ctx)
	if err != nil {
		return fmt.Errorf("list reference excerpts: %w", err)
	}
	uc.current.Store(newCorpusSnapshot(docs, excerpts))
	uc.opts.Logger.Info("reference corpus loaded", "documents", len(docs), "excerpts", len(excerpts))
	return nil
}

func (uc *KnowledgeBaseUseCase) AddReferenceDocument(
	ctx context.Context,
	title string,
	paragraphs []domain.ReferenceParagraph,
) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "add reference document", errors.New("title is required"))
	}
	kept, err := normalizeParagraphs(paragraphs)
	if err != nil {
		return "", err
	}

	docID := uuid.NewString()
	excerpts := make([]domain.ReferenceExcerpt, len(kept))
	texts := make([]string, len(kept))
	for i, p := range kept {
		excerpts[i] = domain.ReferenceExcerpt{
			ID:            uuid.NewString(),
			DocumentID:    docID,
			DocumentTitle: title,
			Page:          p.Page,
			Paragraph:     p.ParagraphIndex,
			Text:          p.Text,
			CategoryHint:  p.CategoryHint,
		}
		texts[i] = p.Text
	}
	uc.embedExcerpts(ctx, docID, excerpts, texts)

	uc.writeMu.Lock()
	defer uc.writeMu.Unlock()

	snap := uc.current.Load()
	for i := range excerpts {
		excerpts[i].Seq = snap.maxSeq + int64(i) + 1
	}
	doc := domain.ReferenceDocument{
		ID:           docID,
		Title:        title,
		ExcerptCount: len(excerpts),
		CreatedAt:    uc.now(),
	}

	if err := uc.repo.SaveDocument(ctx, doc, excerpts); err != nil {
		return "", fmt.Errorf("save reference document: %w", err)
	}
	if uc.vectors != nil && excerpts[0].Embedding != nil {
		if err := uc.vectors.UpsertExcerpts(ctx, excerpts); err != nil {
			uc.opts.Logger.Warn("vector upsert failed; semantic search will skip this document",
				"document_id", docID, "error", err)
		}
	}

	uc.current.Store(snap.with(doc, excerpts))
	uc.opts.Logger.Info("reference document added", "document_id", docID, "excerpts", len(excerpts))
	return docID, nil
}

// embedExcerpts is best effort: on failure the excerpts stay lexical-only.
func (uc *KnowledgeBaseUseCase) embedExcerpts(ctx context.Context, docID string, excerpts []domain.ReferenceExcerpt, texts []string) {
	if uc.embedder == nil || uc.opts.Mode == RetrievalLexical {
		return
	}
	vectors, err := uc.embedder.Embed(ctx, texts)
	if err == nil && len(vectors) != len(texts) {
		err = fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(texts))
	}
	if err != nil {
		uc.opts.Logger.Warn("excerpt embedding failed; document indexed lexically only",
			"document_id", docID, "error", err)
		return
	}
	for i := range excerpts {
		excerpts[i].Embedding = vectors[i]
	}
}

func (uc *KnowledgeBaseUseCase) RemoveReferenceDocument(ctx context.Context, documentID string) error {
	documentID = strings.TrimSpace(documentID)
	if documentID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "remove reference document", errors.New("document id is required"))
	}

	uc.writeMu.Lock()
	defer uc.writeMu.Unlock()

	snap := uc.current.Load()
	if !snap.hasDocument(documentID) {
		return domain.WrapError(domain.ErrNotFound, "remove reference document", fmt.Errorf("document %s", documentID))
	}
	if err := uc.repo.DeleteDocument(ctx, documentID); err != nil {
		return fmt.Errorf("delete reference document: %w", err)
	}
	if uc.vectors != nil {
		if err := uc.vectors.DeleteDocument(ctx, documentID); err != nil {
			uc.opts.Logger.Warn("vector delete failed", "document_id", documentID, "error", err)
		}
	}
	uc.current.Store(snap.without(documentID))
	return nil
}

func (uc *KnowledgeBaseUseCase) ListReferenceDocuments(_ context.Context) ([]domain.ReferenceDocument, error) {
	snap := uc.current.Load()
	out := make([]domain.ReferenceDocument, len(snap.documents))
	copy(out, snap.documents)
	return out, nil
}

func (uc *KnowledgeBaseUseCase) GetReferenceDocument(_ context.Context, documentID string) (domain.ReferenceDocument, error) {
	for _, doc := range uc.current.Load().documents {
		if doc.ID == documentID {
			return doc, nil
		}
	}
	return domain.ReferenceDocument{}, domain.WrapError(domain.ErrNotFound, "get reference document", fmt.Errorf("document %s", documentID))
}

// Query returns up to topK excerpts ordered by relevance, ties by insertion
// order. Strategies are tried in order; a failing tier is logged and skipped.
func (uc *KnowledgeBaseUseCase) Query(
	ctx context.Context,
	text string,
	topK int,
	filter domain.QueryFilter,
) ([]domain.ScoredExcerpt, error) {
	if strings.TrimSpace(text) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "query knowledge base", errors.New("query text is required"))
	}
	if filter.Category != "" && !filter.Category.Valid() {
		return nil, domain.WrapError(domain.ErrInvalidInput, "query knowledge base", fmt.Errorf("unknown category %q", filter.Category))
	}
	if topK <= 0 {
		topK = uc.opts.DefaultTopK
	}

	snap := uc.current.Load()
	candidates := snap.candidates(filter)
	if len(candidates) == 0 {
		return []domain.ScoredExcerpt{}, nil
	}

	req := retrievalRequest{query: text, filter: filter, candidates: candidates, limit: topK}
	var lastErr error
	for _, strategy := range uc.strategies {
		hits, err := strategy.retrieve(ctx, snap, req)
		if err == nil {
			return hits, nil
		}
		lastErr = err
		uc.opts.Observer.RetrievalFallback(strategy.name())
		uc.opts.Logger.Warn("retrieval strategy failed, falling back",
			"strategy", strategy.name(), "error", err)
	}
	return nil, fmt.Errorf("query knowledge base: %w", lastErr)
}

func normalizeParagraphs(paragraphs []domain.ReferenceParagraph) ([]domain.ReferenceParagraph, error) {
	out := make([]domain.ReferenceParagraph, 0, len(paragraphs))
	for i, p := range paragraphs {
		p.Text = strings.TrimSpace(p.Text)
		if p.Text == "" {
			continue
		}
		if p.Page < 1 {
			return nil, domain.WrapError(domain.ErrInvalidInput, "add reference document", fmt.Errorf("paragraph %d: page must be >= 1", i))
		}
		if p.ParagraphIndex < 0 {
			return nil, domain.WrapError(domain.ErrInvalidInput, "add reference document", fmt.Errorf("paragraph %d: negative paragraph index", i))
		}
		if p.CategoryHint != "" && !p.CategoryHint.Valid() {
			return nil, domain.WrapError(domain.ErrInvalidInput, "add reference document", fmt.Errorf("paragraph %d: unknown category %q", i, p.CategoryHint))
		}
		out = append(out, p)
	}
	if len(out) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "add reference document", errors.New("no non-empty paragraphs"))
	}
	return out, nil
}
