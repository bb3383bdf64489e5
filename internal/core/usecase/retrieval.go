package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kirillkom/script-rating/internal/core/domain"
	"github.com/kirillkom/script-rating/internal/core/ports"
)

type RetrievalMode string

const (
	RetrievalSemantic RetrievalMode = "semantic"
	RetrievalLexical  RetrievalMode = "lexical"
	RetrievalHybrid   RetrievalMode = "hybrid"
)

func ParseRetrievalMode(raw string) (RetrievalMode, error) {
	switch mode := RetrievalMode(strings.ToLower(strings.TrimSpace(raw))); mode {
	case "":
		return RetrievalSemantic, nil
	case RetrievalSemantic, RetrievalLexical, RetrievalHybrid:
		return mode, nil
	default:
		return "", domain.WrapError(domain.ErrInvalidInput, "parse retrieval mode", fmt.Errorf("unknown mode %q", raw))
	}
}

type retrievalRequest struct {
	query      string
	filter     domain.QueryFilter
	candidates []int
	limit      int
}

// retrievalStrategy is one tier of the knowledge base query path. An error
// means "try the next tier", never "the query failed".
type retrievalStrategy interface {
	name() string
	retrieve(ctx context.Context, snap *corpusSnapshot, req retrievalRequest) ([]domain.ScoredExcerpt, error)
}

type lexicalStrategy struct{}

func (lexicalStrategy) name() string { return string(RetrievalLexical) }

func (lexicalStrategy) retrieve(_ context.Context, snap *corpusSnapshot, req retrievalRequest) ([]domain.ScoredExcerpt, error) {
	q := snap.terms.vectorize(req.query)
	out := make([]domain.ScoredExcerpt, 0, len(req.candidates))
	if q.norm == 0 {
		return out, nil
	}
	for _, i := range req.candidates {
		score := snap.terms.cosine(q, i)
		if score <= 0 {
			continue
		}
		out = append(out, domain.ScoredExcerpt{Excerpt: snap.excerpts[i], Score: score})
	}
	sortScored(out)
	return trimCandidates(out, req.limit), nil
}

type semanticStrategy struct {
	embedder ports.Embedder
	vectors  ports.ExcerptVectorStore
	timeout  time.Duration
}

func (s *semanticStrategy) name() string { return string(RetrievalSemantic) }

func (s *semanticStrategy) retrieve(ctx context.Context, snap *corpusSnapshot, req retrievalRequest) ([]domain.ScoredExcerpt, error) {
	if s.embedder == nil {
		return nil, domain.WrapError(domain.ErrSemanticUnavailable, "semantic retrieve", errors.New("no embedder configured"))
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	vector, err := s.embedder.EmbedQuery(ctx, req.query)
	if err != nil {
		return nil, domain.WrapError(domain.ErrSemanticUnavailable, "embed query", err)
	}
	if len(vector) == 0 {
		return nil, domain.WrapError(domain.ErrSemanticUnavailable, "embed query", errors.New("empty query vector"))
	}

	if s.vectors != nil {
		return s.searchStore(ctx, snap, vector, req)
	}
	return s.searchSnapshot(snap, vector, req)
}

func (s *semanticStrategy) searchSnapshot(snap *corpusSnapshot, vector []float32, req retrievalRequest) ([]domain.ScoredExcerpt, error) {
	out := make([]domain.ScoredExcerpt, 0, len(req.candidates))
	for _, i := range req.candidates {
		ex := snap.excerpts[i]
		score, ok := cosineSimilarity(vector, ex.Embedding)
		if !ok {
			return nil, domain.WrapError(domain.ErrSemanticUnavailable, "semantic retrieve", fmt.Errorf("excerpt %s has no usable embedding", ex.ID))
		}
		out = append(out, domain.ScoredExcerpt{Excerpt: ex, Score: score})
	}
	sortScored(out)
	return trimCandidates(out, req.limit), nil
}

// searchStore asks the external index and maps hits back onto the snapshot;
// hits the snapshot does not know (stale or foreign points) are dropped.
func (s *semanticStrategy) searchStore(ctx context.Context, snap *corpusSnapshot, vector []float32, req retrievalRequest) ([]domain.ScoredExcerpt, error) {
	hits, err := s.vectors.SearchExcerpts(ctx, vector, req.limit, req.filter)
	if err != nil {
		return nil, domain.WrapError(domain.ErrSemanticUnavailable, "search vector store", err)
	}
	out := make([]domain.ScoredExcerpt, 0, len(hits))
	for _, hit := range hits {
		i, ok := snap.byID[hit.ExcerptID]
		if !ok {
			continue
		}
		ex := snap.excerpts[i]
		if req.filter.Category != "" && ex.CategoryHint != req.filter.Category {
			continue
		}
		out = append(out, domain.ScoredExcerpt{Excerpt: ex, Score: hit.Score})
	}
	sortScored(out)
	return trimCandidates(out, req.limit), nil
}

// hybridStrategy fuses semantic and lexical pools with RRF and re-ranks the
// head by query overlap. It fails whenever the semantic half fails.
type hybridStrategy struct {
	semantic *semanticStrategy
	lexical  lexicalStrategy
	rrfK     int
	poolSize int
}

func (h *hybridStrategy) name() string { return string(RetrievalHybrid) }

func (h *hybridStrategy) retrieve(ctx context.Context, snap *corpusSnapshot, req retrievalRequest) ([]domain.ScoredExcerpt, error) {
	pool := req
	pool.limit = h.poolSize
	if pool.limit < req.limit {
		pool.limit = req.limit
	}

	semantic, err := h.semantic.retrieve(ctx, snap, pool)
	if err != nil {
		return nil, err
	}
	lexical, err := h.lexical.retrieve(ctx, snap, pool)
	if err != nil {
		return nil, err
	}

	fused := fuseCandidatesRRF(semantic, lexical, h.rrfK)
	reranked := rerankHybridCandidates(req.query, fused, pool.limit)
	return trimCandidates(reranked, req.limit), nil
}

func buildStrategies(mode RetrievalMode, semantic *semanticStrategy, rrfK, poolSize int) []retrievalStrategy {
	switch mode {
	case RetrievalLexical:
		return []retrievalStrategy{lexicalStrategy{}}
	case RetrievalHybrid:
		return []retrievalStrategy{
			&hybridStrategy{semantic: semantic, rrfK: rrfK, poolSize: poolSize},
			lexicalStrategy{},
		}
	default:
		return []retrievalStrategy{semantic, lexicalStrategy{}}
	}
}
