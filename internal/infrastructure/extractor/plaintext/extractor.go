package plaintext

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/script-rating/internal/core/domain"
	"github.com/kirillkom/script-rating/internal/infrastructure/extractor/layout"
)

// Parser reads UTF-8 text. A form feed starts a new page and a blank line a
// new paragraph.
type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

func (p *Parser) Parse(_ context.Context, data []byte, _, filename string) (domain.ScriptText, error) {
	if !utf8.Valid(data) {
		return domain.ScriptText{}, domain.WrapError(domain.ErrInvalidInput, "parse text", fmt.Errorf("%s is not valid UTF-8", filename))
	}
	text := strings.TrimPrefix(string(data), "\ufeff")
	if strings.ContainsRune(text, 0) {
		return domain.ScriptText{}, domain.WrapError(domain.ErrInvalidInput, "parse text", errors.New("binary content"))
	}

	var b layout.Builder
	for _, page := range strings.Split(text, "\f") {
		b.AddPageText(page)
	}
	return b.Build(), nil
}
