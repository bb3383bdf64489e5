package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	lpdf "github.com/ledongthuc/pdf"

	"github.com/kirillkom/script-rating/internal/core/domain"
	"github.com/kirillkom/script-rating/internal/infrastructure/extractor/layout"
)

// Parser extracts plain text page by page, so PDF page numbers carry through
// to block page ranges and citations.
type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

func (p *Parser) Parse(_ context.Context, data []byte, _, filename string) (doc domain.ScriptText, err error) {
	// The reader panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			doc = domain.ScriptText{}
			err = domain.WrapError(domain.ErrInvalidInput, "parse pdf", fmt.Errorf("%s: %v", filename, r))
		}
	}()

	if len(data) == 0 {
		return domain.ScriptText{}, domain.WrapError(domain.ErrInvalidInput, "parse pdf", errors.New("empty file"))
	}
	reader, err := lpdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return domain.ScriptText{}, domain.WrapError(domain.ErrInvalidInput, "parse pdf", fmt.Errorf("open %s: %w", filename, err))
	}

	var b layout.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			b.NewPage()
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return domain.ScriptText{}, fmt.Errorf("extract pdf page %d: %w", i, err)
		}
		b.AddPageText(text)
	}
	return b.Build(), nil
}
