package usecase

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/script-rating/internal/core/domain"
)

type referenceRepoFake struct {
	mu       sync.Mutex
	docs     []domain.ReferenceDocument
	excerpts []domain.ReferenceExcerpt
	saveErr  error
}

func (f *referenceRepoFake) SaveDocument(_ context.Context, doc domain.ReferenceDocument, excerpts []domain.ReferenceExcerpt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.docs = append(f.docs, doc)
	f.excerpts = append(f.excerpts, excerpts...)
	return nil
}

func (f *referenceRepoFake) DeleteDocument(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	docs := f.docs[:0]
	for _, d := range f.docs {
		if d.ID != id {
			docs = append(docs, d)
		}
	}
	f.docs = docs
	kept := f.excerpts[:0]
	for _, ex := range f.excerpts {
		if ex.DocumentID != id {
			kept = append(kept, ex)
		}
	}
	f.excerpts = kept
	return nil
}

func (f *referenceRepoFake) ListDocuments(context.Context) ([]domain.ReferenceDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.ReferenceDocument(nil), f.docs...), nil
}

func (f *referenceRepoFake) ListExcerpts(context.Context) ([]domain.ReferenceExcerpt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.ReferenceExcerpt(nil), f.excerpts...), nil
}

// keywordEmbedder maps text onto a tiny concept space so that synonyms land
// close together without sharing tokens.
type keywordEmbedder struct {
	mu       sync.Mutex
	embedErr error
	queryErr error
	queries  int
}

var embedderConcepts = []map[string]struct{}{
	{"violence": {}, "murder": {}, "fight": {}, "blood": {}},
	{"alcohol": {}, "beer": {}, "vodka": {}, "drunk": {}},
	{"obscene": {}, "swearing": {}, "language": {}, "curse": {}},
}

func embedConcepts(text string) []float32 {
	v := make([]float32, len(embedderConcepts))
	for _, tok := range tokenize(text) {
		for i, group := range embedderConcepts {
			if _, ok := group[tok]; ok {
				v[i]++
			}
		}
	}
	return v
}

func (f *keywordEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = embedConcepts(t)
	}
	return out, nil
}

func (f *keywordEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.queries++
	f.mu.Unlock()
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return embedConcepts(text), nil
}

type vectorStoreFake struct {
	mu       sync.Mutex
	hits     []domain.VectorHit
	err      error
	upserted int
	deleted  []string
}

func (f *vectorStoreFake) UpsertExcerpts(_ context.Context, excerpts []domain.ReferenceExcerpt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserted += len(excerpts)
	return nil
}

func (f *vectorStoreFake) SearchExcerpts(context.Context, []float32, int, domain.QueryFilter) ([]domain.VectorHit, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.hits, nil
}

func (f *vectorStoreFake) DeleteDocument(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

type observerFake struct {
	mu        sync.Mutex
	started   int
	finished  map[domain.AnalysisStatus]int
	blocks    int
	fallbacks []string
}

func newObserverFake() *observerFake {
	return &observerFake{finished: map[domain.AnalysisStatus]int{}}
}

func (f *observerFake) RunStarted() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started++
}

func (f *observerFake) RunFinished(status domain.AnalysisStatus, _ time.Duration, _ *domain.Rating) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished[status]++
}

func (f *observerFake) BlockClassified(time.Duration, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blocks++
}

func (f *observerFake) RetrievalFallback(strategy string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fallbacks = append(f.fallbacks, strategy)
}

func (f *observerFake) fallbackList() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.fallbacks...)
}

type analysisRepoFake struct {
	mu        sync.Mutex
	runs      map[string]domain.AnalysisRun
	saves     int
	createErr error
}

func newAnalysisRepoFake() *analysisRepoFake {
	return &analysisRepoFake{runs: map[string]domain.AnalysisRun{}}
}

func (f *analysisRepoFake) Create(_ context.Context, run domain.AnalysisRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.runs[run.ID] = run.Clone()
	return nil
}

func (f *analysisRepoFake) Save(_ context.Context, run domain.AnalysisRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	f.runs[run.ID] = run.Clone()
	return nil
}

func (f *analysisRepoFake) GetByID(_ context.Context, id string) (domain.AnalysisRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[id]
	if !ok {
		return domain.AnalysisRun{}, domain.WrapError(domain.ErrNotFound, "get analysis", fmt.Errorf("analysis %s", id))
	}
	return run.Clone(), nil
}

type storageFake struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newStorageFake() *storageFake {
	return &storageFake{files: map[string][]byte{}}
}

func (f *storageFake) Save(_ context.Context, key string, data io.Reader) error {
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[key] = raw
	return nil
}

func (f *storageFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, ok := f.files[key]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "open object", fmt.Errorf("key %s", key))
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

type textParserFake struct{}

func (textParserFake) Parse(_ context.Context, data []byte, _, _ string) (domain.ScriptText, error) {
	return domain.ScriptText{Text: string(data)}, nil
}

// pipeSegmenter cuts text on "|" so tests control block boundaries exactly.
type pipeSegmenter struct {
	err error
}

func (s pipeSegmenter) Segment(doc domain.ScriptText) ([]domain.ContentBlock, error) {
	if s.err != nil {
		return nil, s.err
	}
	if strings.TrimSpace(doc.Text) == "" {
		return nil, nil
	}
	var out []domain.ContentBlock
	offset := 0
	for i, part := range strings.SplitAfter(doc.Text, "|") {
		out = append(out, domain.ContentBlock{
			SequenceNumber: i + 1,
			RawText:        part,
			WordCount:      len(strings.Fields(part)),
			Start:          offset,
			End:            offset + len(part),
			PageRange:      domain.PageRange{From: 1, To: 1},
		})
		offset += len(part)
	}
	return out, nil
}

type queueFake struct {
	mu        sync.Mutex
	published []string
	err       error
}

func (f *queueFake) PublishAnalysisRequested(_ context.Context, id string) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, id)
	return nil
}

func (f *queueFake) SubscribeAnalysisRequested(context.Context, func(context.Context, string) error) error {
	return nil
}

type sinkFake struct {
	mu      sync.Mutex
	results []domain.AnalysisRun
}

func (f *sinkFake) DeliverResult(_ context.Context, run domain.AnalysisRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, run)
	return nil
}

func (f *sinkFake) delivered() []domain.AnalysisRun {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.AnalysisRun(nil), f.results...)
}

// keywordClassifier rates "gore" as severe violence and "kiss" as mild sexual
// content; onBlock runs before each classification.
type keywordClassifier struct {
	onBlock func(domain.ContentBlock)
}

func (c *keywordClassifier) Classify(_ context.Context, block domain.ContentBlock) (domain.ClassifiedBlock, error) {
	if c.onBlock != nil {
		c.onBlock(block)
	}
	scores := make([]domain.CategoryScore, 0, len(domain.Categories()))
	for _, category := range domain.Categories() {
		sev := domain.SeverityNone
		switch {
		case category == domain.CategoryViolence && strings.Contains(block.RawText, "gore"):
			sev = domain.SeveritySevere
		case category == domain.CategorySexualContent && strings.Contains(block.RawText, "kiss"):
			sev = domain.SeverityMild
		}
		scores = append(scores, domain.CategoryScore{Category: category, Severity: sev})
	}
	return domain.ClassifiedBlock{
		Block:        block,
		Scores:       scores,
		FlaggedSpans: []domain.FlaggedSpan{},
		Citations:    []domain.Citation{},
		BlockRating:  domain.RatingForScores(scores),
	}, nil
}

type scorerFake struct {
	assessment domain.ContentAssessment
	err        error
}

func (f scorerFake) Score(string) (domain.ContentAssessment, error) {
	return f.assessment, f.err
}

type retrieverCall struct {
	text   string
	topK   int
	filter domain.QueryFilter
}

type retrieverFake struct {
	mu         sync.Mutex
	calls      []retrieverCall
	byCategory map[domain.Category][]domain.ScoredExcerpt
	unfiltered []domain.ScoredExcerpt
	err        error
}

func (f *retrieverFake) Query(_ context.Context, text string, topK int, filter domain.QueryFilter) ([]domain.ScoredExcerpt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, retrieverCall{text: text, topK: topK, filter: filter})
	if f.err != nil {
		return nil, f.err
	}
	if filter.Category != "" {
		return f.byCategory[filter.Category], nil
	}
	return f.unfiltered, nil
}
