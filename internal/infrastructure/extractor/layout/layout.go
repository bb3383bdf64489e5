// Package layout assembles normalized script text from pages and paragraphs.
//
// Paragraphs on one page are separated by a blank line and pages by a form
// feed, so the segmenter sees the same boundaries every format produces.
package layout

import (
	"strings"

	"github.com/kirillkom/script-rating/internal/core/domain"
)

const (
	paragraphSeparator = "\n\n"
	pageSeparator      = "\f"
)

type Builder struct {
	b         strings.Builder
	spans     []domain.ParagraphSpan
	page      int
	paragraph int
	pageBreak bool
}

// NewPage starts the next page. Empty pages still advance the page number.
func (l *Builder) NewPage() {
	l.page++
	l.paragraph = 0
	l.pageBreak = true
}

func (l *Builder) AddParagraph(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if l.page == 0 {
		l.NewPage()
	}
	if l.b.Len() > 0 {
		if l.pageBreak {
			l.b.WriteString(pageSeparator)
		} else {
			l.b.WriteString(paragraphSeparator)
		}
	}
	l.pageBreak = false
	l.paragraph++

	start := l.b.Len()
	l.b.WriteString(text)
	l.spans = append(l.spans, domain.ParagraphSpan{
		Page:  l.page,
		Index: l.paragraph,
		Start: start,
		End:   l.b.Len(),
	})
}

// AddPageText starts a page and adds its blank-line separated paragraphs.
func (l *Builder) AddPageText(text string) {
	l.NewPage()
	for _, p := range SplitParagraphs(text) {
		l.AddParagraph(p)
	}
}

func (l *Builder) Build() domain.ScriptText {
	return domain.ScriptText{
		Text:       l.b.String(),
		Paragraphs: append([]domain.ParagraphSpan(nil), l.spans...),
	}
}

// SplitParagraphs splits on blank (whitespace-only) lines. Line breaks inside
// a paragraph are kept; screenplay layout depends on them.
func SplitParagraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var out []string
	var current []string
	flush := func() {
		if len(current) > 0 {
			out = append(out, strings.Join(current, "\n"))
			current = current[:0]
		}
	}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, " \t\u00a0")
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		current = append(current, line)
	}
	flush()
	return out
}

// ReferenceParagraphs turns a parsed document into knowledge base input,
// keeping page and paragraph coordinates for citations.
func ReferenceParagraphs(doc domain.ScriptText) []domain.ReferenceParagraph {
	out := make([]domain.ReferenceParagraph, 0, len(doc.Paragraphs))
	for _, span := range doc.Paragraphs {
		out = append(out, domain.ReferenceParagraph{
			Page:           span.Page,
			ParagraphIndex: span.Index,
			Text:           doc.Text[span.Start:span.End],
		})
	}
	return out
}
