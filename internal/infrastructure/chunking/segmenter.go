package chunking

import (
	"errors"
	"fmt"
	"iter"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kirillkom/script-rating/internal/core/domain"
)

const (
	DefaultTargetWords = 160
	DefaultMinWords    = 40
	maxHeadingRunes    = 80
)

// Segmenter cuts normalized script text into gap-free, non-overlapping blocks
// of roughly TargetWords words, ending each block on a sentence boundary.
type Segmenter struct {
	TargetWords int
	MinWords    int
	MaxWords    int
}

func NewSegmenter(targetWords, minWords int) *Segmenter {
	if targetWords <= 0 {
		targetWords = DefaultTargetWords
	}
	if minWords <= 0 {
		minWords = DefaultMinWords
	}
	if minWords >= targetWords {
		minWords = targetWords / 4
	}
	if minWords < 1 {
		minWords = 1
	}
	return &Segmenter{
		TargetWords: targetWords,
		MinWords:    minWords,
		MaxWords:    targetWords * 3,
	}
}

// Segment materializes Blocks; it stops at the first error.
func (s *Segmenter) Segment(doc domain.ScriptText) ([]domain.ContentBlock, error) {
	out := make([]domain.ContentBlock, 0, countWords(doc.Text)/s.TargetWords+1)
	for block, err := range s.Blocks(doc) {
		if err != nil {
			return nil, err
		}
		out = append(out, block)
	}
	return out, nil
}

// Blocks lazily yields blocks in sequence order. Each call restarts from the
// beginning of doc and shares no state with other calls.
func (s *Segmenter) Blocks(doc domain.ScriptText) iter.Seq2[domain.ContentBlock, error] {
	return func(yield func(domain.ContentBlock, error) bool) {
		if err := validate(doc); err != nil {
			yield(domain.ContentBlock{}, err)
			return
		}
		// Whitespace-only text has no content to rate and yields no blocks,
		// so it is the one input the blocks do not reproduce.
		if strings.TrimSpace(doc.Text) == "" {
			return
		}

		pages := pageLocator{spans: doc.Paragraphs}
		sc := &sentenceScanner{text: doc.Text, target: s.TargetWords, max: s.MaxWords}

		seq := 0
		blockStart, words := 0, 0
		heading := ""
		emit := func(end int) bool {
			seq++
			block := buildBlock(doc.Text, pages, seq, blockStart, end, heading)
			blockStart, words, heading = end, 0, ""
			return yield(block, nil)
		}

		for {
			sent, ok := sc.next()
			if !ok {
				break
			}
			if sent.heading && words >= s.MinWords && sent.start > blockStart {
				if !emit(sent.start) {
					return
				}
			}
			if sent.heading && heading == "" {
				heading = firstLine(doc.Text[sent.start:sent.end])
			}
			words += sent.words
			if words >= s.TargetWords {
				if !emit(sent.end) {
					return
				}
			}
		}
		if blockStart < len(doc.Text) {
			emit(len(doc.Text))
		}
	}
}

func buildBlock(text string, pages pageLocator, seq, start, end int, heading string) domain.ContentBlock {
	raw := text[start:end]
	if heading == "" {
		heading = firstLine(raw)
	}
	return domain.ContentBlock{
		SequenceNumber: seq,
		Heading:        heading,
		PageRange:      pages.rangeFor(start, end),
		RawText:        raw,
		WordCount:      countWords(raw),
		Start:          start,
		End:            end,
	}
}

func validate(doc domain.ScriptText) error {
	if !utf8.ValidString(doc.Text) {
		return domain.WrapError(domain.ErrInvalidInput, "segment script", errors.New("text is not valid UTF-8"))
	}
	prevEnd := 0
	for i, span := range doc.Paragraphs {
		switch {
		case span.Page < 1:
			return domain.WrapError(domain.ErrInvalidInput, "segment script", fmt.Errorf("paragraph %d: page %d < 1", i, span.Page))
		case span.Start < 0 || span.End < span.Start || span.End > len(doc.Text):
			return domain.WrapError(domain.ErrInvalidInput, "segment script", fmt.Errorf("paragraph %d: range [%d,%d) outside text of %d bytes", i, span.Start, span.End, len(doc.Text)))
		case span.Start < prevEnd:
			return domain.WrapError(domain.ErrInvalidInput, "segment script", fmt.Errorf("paragraph %d: range [%d,%d) overlaps or is out of order", i, span.Start, span.End))
		}
		prevEnd = span.End
	}
	return nil
}

type pageLocator struct {
	spans []domain.ParagraphSpan
}

func (p pageLocator) rangeFor(start, end int) domain.PageRange {
	if len(p.spans) == 0 {
		return domain.PageRange{From: 1, To: 1}
	}
	from, to := 0, 0
	for _, span := range p.spans {
		if span.Start >= end {
			break
		}
		if span.End <= start {
			continue
		}
		if from == 0 || span.Page < from {
			from = span.Page
		}
		if span.Page > to {
			to = span.Page
		}
	}
	if from > 0 {
		return domain.PageRange{From: from, To: to}
	}

	// Block falls between paragraphs (whitespace only): anchor to the
	// closest preceding paragraph.
	page := p.spans[0].Page
	for _, span := range p.spans {
		if span.Start > start {
			break
		}
		page = span.Page
	}
	return domain.PageRange{From: page, To: page}
}

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if utf8.RuneCountInString(line) > maxHeadingRunes {
			runes := []rune(line)
			line = strings.TrimSpace(string(runes[:maxHeadingRunes]))
		}
		return line
	}
	return ""
}

func countWords(s string) int {
	n := 0
	inWord := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			inWord = false
			continue
		}
		if !inWord {
			n++
			inWord = true
		}
	}
	return n
}
