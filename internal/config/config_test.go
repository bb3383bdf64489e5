package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"POSTGRES_DSN", "RETRIEVAL_MODE", "RETRIEVAL_TOP_K", "ANALYSIS_TIMEOUT", "ANALYSIS_DISPATCH", "SEGMENT_TARGET_WORDS"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.PostgresDSN != "" {
		t.Fatalf("expected empty DSN by default, got %q", cfg.PostgresDSN)
	}
	if cfg.RetrievalMode != "semantic" {
		t.Fatalf("expected default retrieval mode semantic, got %q", cfg.RetrievalMode)
	}
	if cfg.RetrievalTopK != 4 {
		t.Fatalf("expected default top k 4, got %d", cfg.RetrievalTopK)
	}
	if cfg.AnalysisTimeout != 10*time.Minute {
		t.Fatalf("expected default analysis timeout 10m, got %s", cfg.AnalysisTimeout)
	}
	if cfg.AnalysisDispatch != "inline" {
		t.Fatalf("expected inline dispatch, got %q", cfg.AnalysisDispatch)
	}
	if cfg.SegmentTargetWords != 160 {
		t.Fatalf("expected 160 target words, got %d", cfg.SegmentTargetWords)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("RETRIEVAL_MODE", "hybrid")
	t.Setenv("RETRIEVAL_RRF_K", "75")
	t.Setenv("ANALYSIS_TIMEOUT", "90")
	t.Setenv("EMBED_TIMEOUT", "750ms")
	t.Setenv("API_RATE_LIMIT_RPS", "2.5")

	cfg := Load()
	if cfg.RetrievalMode != "hybrid" {
		t.Fatalf("expected retrieval mode override, got %q", cfg.RetrievalMode)
	}
	if cfg.RetrievalRRFK != 75 {
		t.Fatalf("expected rrf k 75, got %d", cfg.RetrievalRRFK)
	}
	if cfg.AnalysisTimeout != 90*time.Second {
		t.Fatalf("bare seconds not parsed: %s", cfg.AnalysisTimeout)
	}
	if cfg.EmbedTimeout != 750*time.Millisecond {
		t.Fatalf("duration not parsed: %s", cfg.EmbedTimeout)
	}
	if cfg.APIRateLimitRPS != 2.5 {
		t.Fatalf("expected rps 2.5, got %v", cfg.APIRateLimitRPS)
	}
}

func TestLoadIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("RETRIEVAL_TOP_K", "many")
	t.Setenv("ANALYSIS_TIMEOUT", "soon")

	cfg := Load()
	if cfg.RetrievalTopK != 4 || cfg.AnalysisTimeout != 10*time.Minute {
		t.Fatalf("malformed values should fall back to defaults: %+v", cfg)
	}
}
