// Package extractor picks a format parser by MIME type or file extension.
package extractor

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/script-rating/internal/core/domain"
	"github.com/kirillkom/script-rating/internal/core/ports"
	"github.com/kirillkom/script-rating/internal/infrastructure/extractor/docx"
	"github.com/kirillkom/script-rating/internal/infrastructure/extractor/layout"
	"github.com/kirillkom/script-rating/internal/infrastructure/extractor/pdf"
	"github.com/kirillkom/script-rating/internal/infrastructure/extractor/plaintext"
	"github.com/kirillkom/script-rating/internal/infrastructure/extractor/xlsx"
)

type Format string

const (
	FormatText Format = "text"
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
	FormatXLSX Format = "xlsx"
)

const (
	mimePDF  = "application/pdf"
	mimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	mimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

type Router struct {
	parsers map[Format]ports.DocumentParser
	tables  *xlsx.Reader
}

func NewRouter() *Router {
	return &Router{
		parsers: map[Format]ports.DocumentParser{
			FormatText: plaintext.NewParser(),
			FormatPDF:  pdf.NewParser(),
			FormatDOCX: docx.NewParser(),
		},
		tables: xlsx.NewReader(),
	}
}

// Detect resolves the format from the MIME type first, then the extension.
// Unknown but valid UTF-8 content is read as text.
func Detect(data []byte, mimeType, filename string) (Format, error) {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	switch {
	case mt == mimePDF:
		return FormatPDF, nil
	case mt == mimeDOCX:
		return FormatDOCX, nil
	case mt == mimeXLSX:
		return FormatXLSX, nil
	case strings.HasPrefix(mt, "text/"):
		return FormatText, nil
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return FormatPDF, nil
	case ".docx":
		return FormatDOCX, nil
	case ".xlsx":
		return FormatXLSX, nil
	case ".txt", ".text", ".fountain", ".md":
		return FormatText, nil
	}

	if utf8.Valid(data) {
		return FormatText, nil
	}
	return "", domain.WrapError(domain.ErrInvalidInput, "detect format", fmt.Errorf("unsupported file %q (%s)", filename, mimeType))
}

// Parse implements ports.DocumentParser for scripts.
func (r *Router) Parse(ctx context.Context, data []byte, mimeType, filename string) (domain.ScriptText, error) {
	format, err := Detect(data, mimeType, filename)
	if err != nil {
		return domain.ScriptText{}, err
	}
	parser, ok := r.parsers[format]
	if !ok {
		return domain.ScriptText{}, domain.WrapError(domain.ErrInvalidInput, "parse script", fmt.Errorf("%s is not a script format", format))
	}
	return parser.Parse(ctx, data, mimeType, filename)
}

// ParseReference reads a reference document into knowledge base paragraphs.
// Spreadsheets keep their explicit coordinates and category column.
func (r *Router) ParseReference(ctx context.Context, data []byte, mimeType, filename string) ([]domain.ReferenceParagraph, error) {
	format, err := Detect(data, mimeType, filename)
	if err != nil {
		return nil, err
	}
	if format == FormatXLSX {
		return r.tables.ReadReferences(ctx, data, filename)
	}
	doc, err := r.parsers[format].Parse(ctx, data, mimeType, filename)
	if err != nil {
		return nil, err
	}
	return layout.ReferenceParagraphs(doc), nil
}
