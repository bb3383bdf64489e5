package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/script-rating/internal/core/domain"
	"github.com/kirillkom/script-rating/internal/core/ports"
)

const (
	defaultCitationsPerCategory = 2
	defaultRetrievalTimeout     = 5 * time.Second
)

type ClassifierOptions struct {
	CitationsPerCategory int
	// UnflaggedTopK is the citation count for blocks with no flagged category;
	// 0 defers to the knowledge base default.
	UnflaggedTopK    int
	RetrievalTimeout time.Duration
	Logger           *slog.Logger
}

// BlockClassifier scores one block and attaches supporting citations.
type BlockClassifier struct {
	scorer    ports.ContentScorer
	retriever ports.ExcerptRetriever
	opts      ClassifierOptions
}

func NewBlockClassifier(scorer ports.ContentScorer, retriever ports.ExcerptRetriever, opts ClassifierOptions) *BlockClassifier {
	if opts.CitationsPerCategory <= 0 {
		opts.CitationsPerCategory = defaultCitationsPerCategory
	}
	if opts.RetrievalTimeout <= 0 {
		opts.RetrievalTimeout = defaultRetrievalTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &BlockClassifier{scorer: scorer, retriever: retriever, opts: opts}
}

// Classify never fails because of retrieval: citation problems degrade to an
// empty list. A scorer error is returned as-is.
func (c *BlockClassifier) Classify(ctx context.Context, block domain.ContentBlock) (domain.ClassifiedBlock, error) {
	assessment, err := c.scorer.Score(block.RawText)
	if err != nil {
		return domain.ClassifiedBlock{}, fmt.Errorf("score block %d: %w", block.SequenceNumber, err)
	}

	scores := append([]domain.CategoryScore(nil), assessment.Scores...)
	spans := append([]domain.FlaggedSpan{}, assessment.FlaggedSpans...)

	return domain.ClassifiedBlock{
		Block:        block,
		Scores:       scores,
		FlaggedSpans: spans,
		Citations:    c.citations(ctx, block, assessment),
		BlockRating:  domain.RatingForScores(scores),
	}, nil
}

func (c *BlockClassifier) citations(ctx context.Context, block domain.ContentBlock, assessment domain.ContentAssessment) []domain.Citation {
	out := []domain.Citation{}
	if c.retriever == nil || strings.TrimSpace(block.RawText) == "" {
		return out
	}

	seen := make(map[string]struct{}, 8)
	add := func(hits []domain.ScoredExcerpt) {
		for _, hit := range hits {
			if _, dup := seen[hit.Excerpt.ID]; dup {
				continue
			}
			seen[hit.Excerpt.ID] = struct{}{}
			out = append(out, domain.CitationFrom(hit))
		}
	}

	flagged := flaggedCategories(assessment)
	if len(flagged) == 0 {
		hits, err := c.query(ctx, block.RawText, c.opts.UnflaggedTopK, domain.QueryFilter{})
		if err != nil {
			c.logRetrievalFailure(block, "", err)
			return []domain.Citation{}
		}
		add(hits)
		return out
	}

	for _, category := range flagged {
		text := categoryQuery(category, assessment.FlaggedSpans, block.RawText)
		hits, err := c.query(ctx, text, c.opts.CitationsPerCategory, domain.QueryFilter{Category: category})
		if err == nil && len(hits) == 0 {
			hits, err = c.query(ctx, text, c.opts.CitationsPerCategory, domain.QueryFilter{})
		}
		if err != nil {
			c.logRetrievalFailure(block, category, err)
			return []domain.Citation{}
		}
		add(hits)
	}
	return out
}

func (c *BlockClassifier) query(ctx context.Context, text string, topK int, filter domain.QueryFilter) ([]domain.ScoredExcerpt, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.RetrievalTimeout)
	defer cancel()
	return c.retriever.Query(ctx, text, topK, filter)
}

func (c *BlockClassifier) logRetrievalFailure(block domain.ContentBlock, category domain.Category, err error) {
	c.opts.Logger.Warn("citation retrieval failed; block keeps empty citations",
		"block", block.SequenceNumber,
		"category", string(category),
		"error", err,
	)
}

func flaggedCategories(a domain.ContentAssessment) []domain.Category {
	out := make([]domain.Category, 0, len(a.Scores))
	for _, category := range domain.Categories() {
		for _, s := range a.Scores {
			if s.Category == category && s.Severity > domain.SeverityNone {
				out = append(out, category)
				break
			}
		}
	}
	return out
}

// categoryQuery leads with the flagged terms so they dominate term weighting,
// followed by the block text for context.
func categoryQuery(category domain.Category, spans []domain.FlaggedSpan, blockText string) string {
	var b strings.Builder
	for _, span := range spans {
		if span.Category != category {
			continue
		}
		b.WriteString(span.Text)
		b.WriteByte(' ')
	}
	b.WriteString(blockText)
	return b.String()
}
