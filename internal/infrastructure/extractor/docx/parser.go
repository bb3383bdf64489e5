package docx

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/kirillkom/script-rating/internal/core/domain"
	"github.com/kirillkom/script-rating/internal/infrastructure/extractor/layout"
)

const documentPart = "word/document.xml"

// Parser reads word/document.xml. Explicit page breaks start a new page;
// Word's layout-computed pagination is not available without rendering.
type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

func (p *Parser) Parse(_ context.Context, data []byte, _, filename string) (domain.ScriptText, error) {
	archive, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return domain.ScriptText{}, domain.WrapError(domain.ErrInvalidInput, "parse docx", fmt.Errorf("open %s: %w", filename, err))
	}

	var part *zip.File
	for _, f := range archive.File {
		if f.Name == documentPart {
			part = f
			break
		}
	}
	if part == nil {
		return domain.ScriptText{}, domain.WrapError(domain.ErrInvalidInput, "parse docx", errors.New("missing word/document.xml"))
	}

	rc, err := part.Open()
	if err != nil {
		return domain.ScriptText{}, domain.WrapError(domain.ErrInvalidInput, "parse docx", err)
	}
	defer rc.Close()

	doc, err := readDocument(rc)
	if err != nil {
		return domain.ScriptText{}, domain.WrapError(domain.ErrInvalidInput, "parse docx", err)
	}
	return doc, nil
}

// readDocument walks the WordprocessingML token stream: w:p is a paragraph,
// w:t carries text, w:br type="page" breaks the page.
func readDocument(r io.Reader) (domain.ScriptText, error) {
	dec := xml.NewDecoder(r)

	var b layout.Builder
	b.NewPage()
	var para strings.Builder
	inText := false

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return domain.ScriptText{}, fmt.Errorf("decode document.xml: %w", err)
		}

		switch el := tok.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "p":
				para.Reset()
			case "t":
				inText = true
			case "tab":
				para.WriteByte('\t')
			case "br", "cr":
				if el.Name.Local == "br" && attr(el, "type") == "page" {
					b.AddParagraph(para.String())
					para.Reset()
					b.NewPage()
					continue
				}
				para.WriteByte('\n')
			}
		case xml.EndElement:
			switch el.Name.Local {
			case "t":
				inText = false
			case "p":
				b.AddParagraph(para.String())
				para.Reset()
			}
		case xml.CharData:
			if inText {
				para.Write(el)
			}
		}
	}
	return b.Build(), nil
}

func attr(el xml.StartElement, local string) string {
	for _, a := range el.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}
