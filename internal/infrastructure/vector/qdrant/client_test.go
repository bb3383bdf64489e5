package qdrant

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/kirillkom/script-rating/internal/core/domain"
)

func excerpt(id string, vector ...float32) domain.ReferenceExcerpt {
	return domain.ReferenceExcerpt{ID: id, DocumentID: "doc-1", CategoryHint: domain.CategoryViolence, Embedding: vector}
}

func TestUpsertEnsuresCollectionOncePerVectorSize(t *testing.T) {
	var ensureCalls, upserts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut && r.URL.Path == "/collections/excerpts":
			atomic.AddInt32(&ensureCalls, 1)
			w.WriteHeader(http.StatusConflict)
		case r.Method == http.MethodPut && r.URL.Path == "/collections/excerpts/points":
			atomic.AddInt32(&upserts, 1)
			var body struct {
				Points []struct {
					ID      string         `json:"id"`
					Payload map[string]any `json:"payload"`
				} `json:"points"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Errorf("decode upsert: %v", err)
			}
			if len(body.Points) != 2 || body.Points[0].ID != "ex-1" || body.Points[0].Payload["document_id"] != "doc-1" {
				t.Errorf("unexpected points %+v", body.Points)
			}
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := New(server.URL, "excerpts", nil)
	batch := []domain.ReferenceExcerpt{excerpt("ex-1", 0.1, 0.2), excerpt("ex-2", 0.3, 0.4)}
	for i := 0; i < 2; i++ {
		if err := client.UpsertExcerpts(context.Background(), batch); err != nil {
			t.Fatalf("UpsertExcerpts() error = %v", err)
		}
	}
	if got := atomic.LoadInt32(&ensureCalls); got != 1 {
		t.Fatalf("expected ensure collection called once, got %d", got)
	}
	if got := atomic.LoadInt32(&upserts); got != 2 {
		t.Fatalf("expected 2 upserts, got %d", got)
	}
}

func TestUpsertRejectsMixedDimensions(t *testing.T) {
	client := New("http://127.0.0.1:1", "excerpts", nil)
	err := client.UpsertExcerpts(context.Background(), []domain.ReferenceExcerpt{excerpt("a", 1, 0), excerpt("b", 1)})
	if err == nil || !strings.Contains(err.Error(), "dimensions") {
		t.Fatalf("expected dimension error, got %v", err)
	}
}

func TestSearchExcerptsSendsCategoryFilter(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/collections/excerpts/points/search" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&captured)
		_, _ = w.Write([]byte(`{"result":[{"id":"ex-2","score":0.91},{"id":"ex-1","score":0.5}]}`))
	}))
	defer server.Close()

	client := New(server.URL, "excerpts", nil)
	hits, err := client.SearchExcerpts(context.Background(), []float32{1, 0}, 5, domain.QueryFilter{Category: domain.CategorySubstances})
	if err != nil {
		t.Fatalf("SearchExcerpts() error = %v", err)
	}
	if len(hits) != 2 || hits[0].ExcerptID != "ex-2" || hits[0].Score != 0.91 {
		t.Fatalf("unexpected hits %+v", hits)
	}
	raw, _ := json.Marshal(captured["filter"])
	if !strings.Contains(string(raw), `"substances"`) {
		t.Fatalf("expected category filter, got %s", raw)
	}
}

func TestEnsureCollectionIncludesResponseBodyInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut && r.URL.Path == "/collections/excerpts" {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := New(server.URL, "excerpts", nil)
	err := client.UpsertExcerpts(context.Background(), []domain.ReferenceExcerpt{excerpt("a", 0.1, 0.2)})
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected error to include body, got %v", err)
	}
}

func TestDeleteDocumentFiltersByDocumentID(t *testing.T) {
	var body string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/collections/excerpts/points/delete" {
			http.NotFound(w, r)
			return
		}
		raw := new(strings.Builder)
		_, _ = io.Copy(raw, r.Body)
		body = raw.String()
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	if err := New(server.URL, "excerpts", nil).DeleteDocument(context.Background(), "doc-9"); err != nil {
		t.Fatalf("DeleteDocument() error = %v", err)
	}
	if !strings.Contains(body, `"document_id"`) || !strings.Contains(body, `"doc-9"`) {
		t.Fatalf("unexpected delete body %s", body)
	}
}
