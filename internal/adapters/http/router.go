package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/script-rating/internal/config"
	"github.com/kirillkom/script-rating/internal/core/domain"
	"github.com/kirillkom/script-rating/internal/core/ports"
	"github.com/kirillkom/script-rating/internal/observability/metrics"
)

const (
	serviceName         = "api"
	multipartMemory     = 8 << 20
	defaultUploadLimit  = 32 << 20
	defaultBackpressure = 250 * time.Millisecond
)

// ReferenceParser turns an uploaded reference file into knowledge base input.
type ReferenceParser interface {
	ParseReference(ctx context.Context, data []byte, mimeType, filename string) ([]domain.ReferenceParagraph, error)
}

type Router struct {
	cfg        config.Config
	analyses   ports.AnalysisService
	corpus     ports.ReferenceCorpus
	references ReferenceParser
	metrics    *metrics.HTTPServerMetrics
}

func NewRouter(
	cfg config.Config,
	analyses ports.AnalysisService,
	corpus ports.ReferenceCorpus,
	references ReferenceParser,
	httpMetrics *metrics.HTTPServerMetrics,
) *Router {
	return &Router{
		cfg:        cfg,
		analyses:   analyses,
		corpus:     corpus,
		references: references,
		metrics:    httpMetrics,
	}
}

func (rt *Router) Handler() (http.Handler, error) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}
	mux.HandleFunc("POST /v1/analyses", rt.submitAnalysis)
	mux.HandleFunc("POST /v1/analyses/text", rt.submitAnalysisText)
	mux.HandleFunc("GET /v1/analyses/{analysis_id}", rt.getAnalysis)
	mux.HandleFunc("GET /v1/references", rt.listReferences)
	mux.HandleFunc("POST /v1/references", rt.uploadReference)
	mux.HandleFunc("POST /v1/references/json", rt.addReferenceJSON)
	mux.HandleFunc("POST /v1/references/query", rt.queryReferences)
	mux.HandleFunc("DELETE /v1/references/{document_id}", rt.removeReference)

	validator, err := newRequestValidator(openAPISpec)
	if err != nil {
		return nil, err
	}

	backpressureWait := time.Duration(rt.cfg.APIBackpressureWaitMS) * time.Millisecond
	if backpressureWait <= 0 {
		backpressureWait = defaultBackpressure
	}

	var handler http.Handler = validator.middleware(mux)
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxInFlight, backpressureWait)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler), nil
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) submitAnalysis(w http.ResponseWriter, r *http.Request) {
	if !rt.parseMultipart(w, r) {
		return
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	target, err := domain.ParseOptionalRating(r.FormValue("target_rating"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	run, err := rt.analyses.Submit(r.Context(), ports.SubmitRequest{
		Filename:     fileHeader.Filename,
		MimeType:     fileHeader.Header.Get("Content-Type"),
		Body:         file,
		TargetRating: target,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, run)
}

func (rt *Router) submitAnalysisText(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text         string         `json:"text"`
		TargetRating *domain.Rating `json:"target_rating"`
	}
	if !decodeJSON(w, r, rt.uploadLimit(), &req) {
		return
	}

	run, err := rt.analyses.SubmitText(r.Context(), req.Text, req.TargetRating)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, run)
}

func (rt *Router) getAnalysis(w http.ResponseWriter, r *http.Request) {
	run, err := rt.analyses.GetStatus(r.Context(), r.PathValue("analysis_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (rt *Router) listReferences(w http.ResponseWriter, r *http.Request) {
	docs, err := rt.corpus.ListReferenceDocuments(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if docs == nil {
		docs = []domain.ReferenceDocument{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (rt *Router) uploadReference(w http.ResponseWriter, r *http.Request) {
	if !rt.parseMultipart(w, r) {
		return
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "read upload", err))
		return
	}
	paragraphs, err := rt.references.ParseReference(r.Context(), data, fileHeader.Header.Get("Content-Type"), fileHeader.Filename)
	if err != nil {
		writeError(w, r, err)
		return
	}

	title := strings.TrimSpace(r.FormValue("title"))
	if title == "" {
		title = fileHeader.Filename
	}
	rt.addReference(w, r, title, paragraphs)
}

func (rt *Router) addReferenceJSON(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title      string                      `json:"title"`
		Paragraphs []domain.ReferenceParagraph `json:"paragraphs"`
	}
	if !decodeJSON(w, r, rt.uploadLimit(), &req) {
		return
	}
	rt.addReference(w, r, req.Title, req.Paragraphs)
}

func (rt *Router) addReference(w http.ResponseWriter, r *http.Request, title string, paragraphs []domain.ReferenceParagraph) {
	id, err := rt.corpus.AddReferenceDocument(r.Context(), title, paragraphs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	doc, err := rt.corpus.GetReferenceDocument(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"document_id": id, "excerpt_count": doc.ExcerptCount})
}

func (rt *Router) queryReferences(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query    string          `json:"query"`
		TopK     int             `json:"top_k"`
		Category domain.Category `json:"category"`
	}
	if !decodeJSON(w, r, 1<<20, &req) {
		return
	}

	results, err := rt.corpus.Query(r.Context(), req.Query, req.TopK, domain.QueryFilter{Category: req.Category})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if results == nil {
		results = []domain.ScoredExcerpt{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (rt *Router) removeReference(w http.ResponseWriter, r *http.Request) {
	if err := rt.corpus.RemoveReferenceDocument(r.Context(), r.PathValue("document_id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) uploadLimit() int64 {
	if rt.cfg.APIMaxUploadBytes > 0 {
		return rt.cfg.APIMaxUploadBytes
	}
	return defaultUploadLimit
}

// parseMultipart reads the form under the upload limit. An oversized body
// is 413 like on the JSON endpoints.
func (rt *Router) parseMultipart(w http.ResponseWriter, r *http.Request) bool {
	r.Body = http.MaxBytesReader(w, r.Body, rt.uploadLimit())
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "request body too large"})
			return false
		}
		writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "read upload", err))
		return false
	}
	return true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "request body too large"})
			return false
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("invalid json: %v", err)})
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "request_id", requestIDFromContext(r.Context()), "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
