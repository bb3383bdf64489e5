// Package mcpadapter exposes script rating and reference search as Model
// Context Protocol tools.
package mcpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/script-rating/internal/core/domain"
	"github.com/kirillkom/script-rating/internal/core/ports"
)

const Version = "0.1.0"

// Analyzer runs a full analysis synchronously.
type Analyzer interface {
	AnalyzeDocument(ctx context.Context, filename string, doc domain.ScriptText, target *domain.Rating) (domain.AnalysisRun, error)
}

type Ports struct {
	Analyzer   Analyzer
	Parser     ports.DocumentParser
	References ports.ExcerptRetriever
}

func (p *Ports) validate() error {
	switch {
	case p == nil:
		return errors.New("ports are required")
	case p.Analyzer == nil:
		return errors.New("analyzer is required")
	case p.Parser == nil:
		return errors.New("parser is required")
	case p.References == nil:
		return errors.New("reference retriever is required")
	}
	return nil
}

type Server struct {
	ports  *Ports
	server *server.MCPServer
}

func NewServer(p *Ports) (*Server, error) {
	if err := p.validate(); err != nil {
		return nil, fmt.Errorf("validating ports: %w", err)
	}
	s := &Server{
		ports:  p,
		server: server.NewMCPServer("script-rating", Version, server.WithToolCapabilities(false)),
	}
	s.registerTools()
	return s, nil
}

// Serve speaks JSON-RPC over the given streams until ctx is cancelled or
// the input closes.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	return server.NewStdioServer(s.server).Listen(ctx, in, out)
}

func (s *Server) registerTools() {
	s.server.AddTool(mcp.NewTool("rate_script",
		mcp.WithDescription("Rate a screenplay for age restrictions. Returns the final rating, confidence, problem blocks and per-block citations."),
		mcp.WithString("text", mcp.Required(), mcp.Description("Script text; blank lines separate paragraphs, form feeds separate pages.")),
		mcp.WithString("target_rating", mcp.Description("Desired rating; blocks above it are reported as problems."),
			mcp.Enum("0+", "6+", "12+", "16+", "18+")),
	), s.handleRateScript)

	s.server.AddTool(mcp.NewTool("search_references",
		mcp.WithDescription("Search the reference corpus for excerpts relevant to a passage."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Passage or question to search for.")),
		mcp.WithNumber("top_k", mcp.Description("Maximum number of excerpts (default 4).")),
		mcp.WithString("category", mcp.Description("Restrict to excerpts hinted with this category."),
			mcp.Enum("violence", "sexual_content", "language", "substances", "frightening")),
	), s.handleSearchReferences)
}

type rateScriptOutput struct {
	AnalysisID      string         `json:"analysis_id"`
	Status          string         `json:"status"`
	FinalRating     *domain.Rating `json:"final_rating,omitempty"`
	ConfidenceScore *float64       `json:"confidence_score,omitempty"`
	ProblemBlockIDs []int          `json:"problem_block_ids"`
	TotalBlocks     int            `json:"total_blocks"`
	Blocks          []blockSummary `json:"blocks"`
	FailureReason   string         `json:"failure_reason,omitempty"`
}

type blockSummary struct {
	Sequence  int                    `json:"sequence"`
	Pages     domain.PageRange       `json:"pages"`
	Rating    domain.Rating          `json:"rating"`
	Scores    []domain.CategoryScore `json:"scores"`
	Citations []domain.Citation      `json:"citations"`
}

func (s *Server) handleRateScript(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	target, err := domain.ParseOptionalRating(req.GetString("target_rating", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	doc, err := s.ports.Parser.Parse(ctx, []byte(text), "text/plain", "script.txt")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	run, err := s.ports.Analyzer.AnalyzeDocument(ctx, "script.txt", doc, target)
	if err != nil && run.ID == "" {
		return nil, fmt.Errorf("analyze script: %w", err)
	}

	out := rateScriptOutput{
		AnalysisID:      run.ID,
		Status:          string(run.Status),
		FinalRating:     run.FinalRating,
		ConfidenceScore: run.ConfidenceScore,
		ProblemBlockIDs: run.ProblemBlockIDs,
		TotalBlocks:     run.TotalBlocks,
		Blocks:          make([]blockSummary, 0, len(run.ProcessedBlocks)),
		FailureReason:   run.FailureReason,
	}
	for _, b := range run.ProcessedBlocks {
		out.Blocks = append(out.Blocks, blockSummary{
			Sequence:  b.Block.SequenceNumber,
			Pages:     b.Block.PageRange,
			Rating:    b.BlockRating,
			Scores:    b.Scores,
			Citations: b.Citations,
		})
	}
	return jsonResult(out)
}

func (s *Server) handleSearchReferences(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	filter := domain.QueryFilter{}
	if raw := req.GetString("category", ""); raw != "" {
		category, err := domain.ParseCategory(raw)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		filter.Category = category
	}

	hits, err := s.ports.References.Query(ctx, query, req.GetInt("top_k", 0), filter)
	if err != nil {
		if domain.IsKind(err, domain.ErrInvalidInput) {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return nil, fmt.Errorf("search references: %w", err)
	}

	citations := make([]domain.Citation, 0, len(hits))
	for _, hit := range hits {
		citations = append(citations, domain.CitationFrom(hit))
	}
	return jsonResult(map[string]any{"results": citations, "count": len(citations)})
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode tool result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
