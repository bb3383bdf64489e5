package bootstrap

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/kirillkom/script-rating/internal/config"
	"github.com/kirillkom/script-rating/internal/core/domain"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		StoragePath:        t.TempDir(),
		AnalysisDispatch:   "inline",
		RetrievalMode:      "lexical",
		EmbeddingProvider:  "none",
		SegmentTargetWords: 200,
		SegmentMinWords:    40,
	}
}

func TestNewAssemblesInMemoryPipeline(t *testing.T) {
	ctx := context.Background()
	app, err := New(ctx, testConfig(t), Options{
		Service: "test",
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = app.Shutdown(context.Background()) })

	if _, err := app.KnowledgeBase.AddReferenceDocument(ctx, "Guidelines", []domain.ReferenceParagraph{
		{Page: 1, ParagraphIndex: 1, Text: "Scenes with a knife attack require a 12+ mark.", CategoryHint: domain.CategoryViolence},
	}); err != nil {
		t.Fatalf("AddReferenceDocument() error = %v", err)
	}

	run, err := app.Analysis.SubmitText(ctx, "INT. KITCHEN - NIGHT\n\nThe stranger pulls a knife.", nil)
	if err != nil {
		t.Fatalf("SubmitText() error = %v", err)
	}
	app.Analysis.Wait()

	got, err := app.Analysis.GetStatus(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetStatus() error = %v", err)
	}
	if got.Status != domain.AnalysisCompleted {
		t.Fatalf("expected completed run, got %s (%s)", got.Status, got.FailureReason)
	}
	if got.FinalRating == nil || *got.FinalRating != domain.Rating12 {
		t.Fatalf("expected 12+, got %v", got.FinalRating)
	}
	if len(got.ProcessedBlocks) == 0 || len(got.ProcessedBlocks[0].Citations) == 0 {
		t.Fatalf("expected a citation from the reference corpus: %+v", got.ProcessedBlocks)
	}
}

func TestNewRejectsUnknownSettings(t *testing.T) {
	cases := map[string]func(*config.Config){
		"dispatch":  func(c *config.Config) { c.AnalysisDispatch = "carrier-pigeon" },
		"retrieval": func(c *config.Config) { c.RetrievalMode = "telepathic" },
		"embedding": func(c *config.Config) { c.EmbeddingProvider = "mystery" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := testConfig(t)
			mutate(&cfg)
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if _, err := New(ctx, cfg, Options{Service: "test"}); err == nil {
				t.Fatalf("expected an error for bad %s setting", name)
			}
		})
	}
}
