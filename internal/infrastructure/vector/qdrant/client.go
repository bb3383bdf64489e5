package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/script-rating/internal/core/domain"
	"github.com/kirillkom/script-rating/internal/infrastructure/resilience"
)

// Client stores reference excerpt vectors in one Qdrant collection. Point IDs
// are excerpt IDs, so re-upserting an excerpt overwrites its vector.
type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client
	executor   *resilience.Executor

	ensureMu          sync.Mutex
	ensuredCollection bool
	ensuredVectorSize int
}

func New(baseURL, collection string, executor *resilience.Executor) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		executor:   executor,
	}
}

type statusError struct {
	operation  string
	statusCode int
	status     string
	body       string
}

func (e *statusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("qdrant %s status: %s", e.operation, e.status)
	}
	return fmt.Sprintf("qdrant %s status: %s: %s", e.operation, e.status, e.body)
}

func (c *Client) UpsertExcerpts(ctx context.Context, excerpts []domain.ReferenceExcerpt) error {
	if len(excerpts) == 0 {
		return nil
	}
	size := len(excerpts[0].Embedding)
	if size == 0 {
		return fmt.Errorf("qdrant upsert: excerpt %s has no embedding", excerpts[0].ID)
	}

	type point struct {
		ID      string         `json:"id"`
		Vector  []float32      `json:"vector"`
		Payload map[string]any `json:"payload"`
	}

	points := make([]point, 0, len(excerpts))
	for _, ex := range excerpts {
		if len(ex.Embedding) != size {
			return fmt.Errorf("qdrant upsert: excerpt %s has %d dimensions, want %d", ex.ID, len(ex.Embedding), size)
		}
		points = append(points, point{
			ID:     ex.ID,
			Vector: ex.Embedding,
			Payload: map[string]any{
				"document_id": ex.DocumentID,
				"category":    string(ex.CategoryHint),
				"page":        ex.Page,
				"paragraph":   ex.Paragraph,
			},
		})
	}

	if err := c.ensureCollection(ctx, size); err != nil {
		return err
	}
	path := fmt.Sprintf("/collections/%s/points?wait=true", c.collection)
	return c.call(ctx, "upsert", http.MethodPut, path, map[string]any{"points": points}, nil)
}

func (c *Client) SearchExcerpts(
	ctx context.Context,
	vector []float32,
	limit int,
	filter domain.QueryFilter,
) ([]domain.VectorHit, error) {
	reqBody := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": false,
	}
	if filter.Category != "" {
		reqBody["filter"] = matchFilter("category", string(filter.Category))
	}

	var searchResp struct {
		Result []struct {
			ID    any     `json:"id"`
			Score float64 `json:"score"`
		} `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/search", c.collection)
	if err := c.call(ctx, "search", http.MethodPost, path, reqBody, &searchResp); err != nil {
		return nil, err
	}

	out := make([]domain.VectorHit, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		out = append(out, domain.VectorHit{ExcerptID: fmt.Sprintf("%v", r.ID), Score: r.Score})
	}
	return out, nil
}

func (c *Client) DeleteDocument(ctx context.Context, documentID string) error {
	path := fmt.Sprintf("/collections/%s/points/delete?wait=true", c.collection)
	return c.call(ctx, "delete", http.MethodPost, path, map[string]any{"filter": matchFilter("document_id", documentID)}, nil)
}

func matchFilter(key, value string) map[string]any {
	return map[string]any{
		"must": []map[string]any{
			{"key": key, "match": map[string]any{"value": value}},
		},
	}
}

func (c *Client) ensureCollection(ctx context.Context, vectorSize int) error {
	c.ensureMu.Lock()
	if c.ensuredCollection && c.ensuredVectorSize == vectorSize {
		c.ensureMu.Unlock()
		return nil
	}
	c.ensureMu.Unlock()

	reqBody := map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	}
	err := c.call(ctx, "ensure collection", http.MethodPut, "/collections/"+c.collection, reqBody, nil)
	var statusErr *statusError
	// 409 means the collection already exists.
	if err != nil && !(errors.As(err, &statusErr) && statusErr.statusCode == http.StatusConflict) {
		return err
	}
	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()
	c.ensuredCollection = true
	c.ensuredVectorSize = vectorSize
	return nil
}

func (c *Client) call(ctx context.Context, operation, method, path string, payload, out any) error {
	do := func(callCtx context.Context) error {
		return c.doJSON(callCtx, operation, method, path, payload, out)
	}
	if c.executor == nil {
		return do(ctx)
	}
	return c.executor.Execute(ctx, "qdrant."+strings.ReplaceAll(operation, " ", "_"), do, classifyQdrantError)
}

func (c *Client) doJSON(ctx context.Context, operation, method, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s body: %w", operation, err)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &statusError{
			operation:  operation,
			statusCode: resp.StatusCode,
			status:     resp.Status,
			body:       strings.TrimSpace(string(raw)),
		}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

func classifyQdrantError(err error) resilience.ErrorClassification {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{}
	}
	var statusErr *statusError
	if errors.As(err, &statusErr) {
		retry := statusErr.statusCode == http.StatusTooManyRequests || statusErr.statusCode >= 500
		return resilience.ErrorClassification{Retryable: retry, RecordFailure: retry}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.ErrorClassification{RecordFailure: true}
}
