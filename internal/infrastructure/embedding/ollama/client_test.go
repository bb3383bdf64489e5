package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirillkom/script-rating/internal/core/domain"
	"github.com/kirillkom/script-rating/internal/infrastructure/resilience"
)

func TestEmbedSendsModelAndInputs(t *testing.T) {
	var payload struct {
		Model string   `json:"model"`
		Input []string `json:"input"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"embeddings":[[0.1,0.2],[0.3,0.4]]}`))
	}))
	defer server.Close()

	embedder := NewEmbedder(New(server.URL+"/", "nomic-embed-text"))
	vectors, err := embedder.Embed(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if payload.Model != "nomic-embed-text" || len(payload.Input) != 2 {
		t.Fatalf("unexpected payload %+v", payload)
	}
	if len(vectors) != 2 || vectors[1][0] != float32(0.3) {
		t.Fatalf("unexpected vectors %v", vectors)
	}
}

func TestEmbedIncludesHTTPBodyInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model unavailable", http.StatusBadGateway)
	}))
	defer server.Close()

	embedder := NewEmbedder(New(server.URL, "embed"))
	_, err := embedder.Embed(context.Background(), []string{"hello"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "model unavailable") {
		t.Fatalf("expected response body in error, got %v", err)
	}
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("502 should be reported as temporary, got %v", err)
	}
}

func TestEmbedRetriesThroughExecutor(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"embeddings":[[1,0,0]]}`))
	}))
	defer server.Close()

	exec := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    2,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
		RetryMultiplier:     2,
	})
	embedder := NewEmbedder(New(server.URL, "embed", WithResilience(exec)))

	vector, err := embedder.EmbedQuery(context.Background(), "query")
	if err != nil {
		t.Fatalf("EmbedQuery() error = %v", err)
	}
	if len(vector) != 3 || calls.Load() != 2 {
		t.Fatalf("expected retry then success, got vector=%v calls=%d", vector, calls.Load())
	}
}

func TestEmbedRejectsMismatchedVectorCount(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"embeddings":[[1,0]]}`))
	}))
	defer server.Close()

	embedder := NewEmbedder(New(server.URL, "embed"))
	if _, err := embedder.Embed(context.Background(), []string{"a", "b"}); err == nil {
		t.Fatal("expected error for short response")
	}
}

func TestClassifyOllamaError(t *testing.T) {
	if c := classifyOllamaError(&HTTPStatusError{StatusCode: http.StatusBadRequest}); c.Retryable || c.RecordFailure {
		t.Fatalf("4xx must be permanent and not trip the breaker: %+v", c)
	}
	if c := classifyOllamaError(&HTTPStatusError{StatusCode: http.StatusTooManyRequests}); !c.Retryable {
		t.Fatalf("429 must be retryable: %+v", c)
	}
	if c := classifyOllamaError(context.Canceled); c.Retryable || c.RecordFailure {
		t.Fatalf("cancellation must be neutral: %+v", c)
	}
}
