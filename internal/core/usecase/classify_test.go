package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kirillkom/script-rating/internal/core/domain"
)

func assessmentOf(levels map[domain.Category]domain.Severity, spans ...domain.FlaggedSpan) domain.ContentAssessment {
	scores := make([]domain.CategoryScore, 0, len(domain.Categories()))
	for _, c := range domain.Categories() {
		scores = append(scores, domain.CategoryScore{Category: c, Severity: levels[c]})
	}
	if spans == nil {
		spans = []domain.FlaggedSpan{}
	}
	return domain.ContentAssessment{Scores: scores, FlaggedSpans: spans}
}

func hit(id string, score float64) domain.ScoredExcerpt {
	return domain.ScoredExcerpt{
		Excerpt: domain.ReferenceExcerpt{ID: id, DocumentTitle: "Law", Page: 1, Paragraph: 1, Text: "text of " + id},
		Score:   score,
	}
}

func testBlock(text string) domain.ContentBlock {
	return domain.ContentBlock{SequenceNumber: 1, RawText: text, WordCount: len(strings.Fields(text))}
}

func TestClassifyAttachesCitationsPerFlaggedCategory(t *testing.T) {
	scorer := scorerFake{assessment: assessmentOf(
		map[domain.Category]domain.Severity{
			domain.CategoryViolence: domain.SeveritySevere,
			domain.CategoryLanguage: domain.SeverityMild,
		},
		domain.FlaggedSpan{Start: 4, End: 8, Category: domain.CategoryViolence, Text: "kill"},
		domain.FlaggedSpan{Start: 10, End: 14, Category: domain.CategoryLanguage, Text: "damn"},
	)}
	retriever := &retrieverFake{byCategory: map[domain.Category][]domain.ScoredExcerpt{
		domain.CategoryViolence: {hit("v1", 0.9), hit("v2", 0.7)},
		domain.CategoryLanguage: {hit("l1", 0.8)},
	}}
	c := NewBlockClassifier(scorer, retriever, ClassifierOptions{Logger: quietLogger()})

	cb, err := c.Classify(context.Background(), testBlock("I'll kill, damn it"))
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if cb.BlockRating != domain.Rating18 {
		t.Fatalf("expected 18+, got %s", cb.BlockRating)
	}
	if len(cb.Scores) != 5 || len(cb.FlaggedSpans) != 2 {
		t.Fatalf("unexpected scores/spans: %+v", cb)
	}

	ids := make([]string, 0, len(cb.Citations))
	for _, cit := range cb.Citations {
		ids = append(ids, cit.ExcerptID)
	}
	if strings.Join(ids, ",") != "v1,v2,l1" {
		t.Fatalf("unexpected citations %v", ids)
	}
	if cb.Citations[0].RelevanceScore != 0.9 || cb.Citations[0].DocumentTitle != "Law" {
		t.Fatalf("citation not built from hit: %+v", cb.Citations[0])
	}

	if len(retriever.calls) != 2 {
		t.Fatalf("expected 2 retrieval calls, got %d", len(retriever.calls))
	}
	first := retriever.calls[0]
	if first.filter.Category != domain.CategoryViolence || first.topK != defaultCitationsPerCategory {
		t.Fatalf("unexpected first call %+v", first)
	}
	if !strings.HasPrefix(first.text, "kill ") {
		t.Fatalf("expected flagged term to lead the query, got %q", first.text)
	}
}

func TestClassifyFallsBackToUnfilteredWhenCategoryHasNoExcerpts(t *testing.T) {
	scorer := scorerFake{assessment: assessmentOf(map[domain.Category]domain.Severity{
		domain.CategorySubstances: domain.SeverityModerate,
	})}
	retriever := &retrieverFake{unfiltered: []domain.ScoredExcerpt{hit("any", 0.4)}}
	c := NewBlockClassifier(scorer, retriever, ClassifierOptions{Logger: quietLogger()})

	cb, err := c.Classify(context.Background(), testBlock("a drink"))
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if len(cb.Citations) != 1 || cb.Citations[0].ExcerptID != "any" {
		t.Fatalf("expected unfiltered fallback citation, got %+v", cb.Citations)
	}
	if len(retriever.calls) != 2 || retriever.calls[1].filter.Category != "" {
		t.Fatalf("expected filtered then unfiltered call, got %+v", retriever.calls)
	}
}

func TestClassifyUnflaggedBlockUsesSingleQuery(t *testing.T) {
	scorer := scorerFake{assessment: assessmentOf(nil)}
	retriever := &retrieverFake{unfiltered: []domain.ScoredExcerpt{hit("a", 0.2), hit("b", 0.1)}}
	c := NewBlockClassifier(scorer, retriever, ClassifierOptions{UnflaggedTopK: 3, Logger: quietLogger()})

	cb, err := c.Classify(context.Background(), testBlock("A quiet morning."))
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if cb.BlockRating != domain.Rating0 {
		t.Fatalf("expected 0+, got %s", cb.BlockRating)
	}
	if len(retriever.calls) != 1 || retriever.calls[0].topK != 3 || retriever.calls[0].filter.Category != "" {
		t.Fatalf("unexpected calls %+v", retriever.calls)
	}
	if len(cb.Citations) != 2 {
		t.Fatalf("expected 2 citations, got %d", len(cb.Citations))
	}
}

func TestClassifyRetrievalFailureYieldsEmptyCitations(t *testing.T) {
	scorer := scorerFake{assessment: assessmentOf(map[domain.Category]domain.Severity{
		domain.CategoryViolence: domain.SeverityMild,
	})}
	retriever := &retrieverFake{err: errors.New("index unavailable")}
	c := NewBlockClassifier(scorer, retriever, ClassifierOptions{Logger: quietLogger()})

	cb, err := c.Classify(context.Background(), testBlock("a fight"))
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if cb.Citations == nil || len(cb.Citations) != 0 {
		t.Fatalf("expected empty non-nil citations, got %#v", cb.Citations)
	}
	if cb.BlockRating != domain.Rating6 {
		t.Fatalf("rating must not depend on retrieval, got %s", cb.BlockRating)
	}
}

func TestClassifyDeduplicatesCitations(t *testing.T) {
	scorer := scorerFake{assessment: assessmentOf(map[domain.Category]domain.Severity{
		domain.CategoryViolence:    domain.SeverityMild,
		domain.CategoryFrightening: domain.SeverityMild,
	})}
	shared := hit("shared", 0.5)
	retriever := &retrieverFake{byCategory: map[domain.Category][]domain.ScoredExcerpt{
		domain.CategoryViolence:    {shared},
		domain.CategoryFrightening: {shared, hit("other", 0.3)},
	}}
	c := NewBlockClassifier(scorer, retriever, ClassifierOptions{Logger: quietLogger()})

	cb, err := c.Classify(context.Background(), testBlock("a scary fight"))
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if len(cb.Citations) != 2 {
		t.Fatalf("expected deduplicated citations, got %+v", cb.Citations)
	}
}

func TestClassifyWithoutRetriever(t *testing.T) {
	c := NewBlockClassifier(scorerFake{assessment: assessmentOf(nil)}, nil, ClassifierOptions{})
	cb, err := c.Classify(context.Background(), testBlock("text"))
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if cb.Citations == nil {
		t.Fatal("expected non-nil citations")
	}
}

func TestClassifyReturnsScorerError(t *testing.T) {
	c := NewBlockClassifier(scorerFake{err: domain.ErrInvalidInput}, &retrieverFake{}, ClassifierOptions{Logger: quietLogger()})
	if _, err := c.Classify(context.Background(), testBlock("text")); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected scorer error, got %v", err)
	}
}
