package lexicon

import (
	"errors"
	"sort"
	"unicode"
	"unicode/utf8"

	"github.com/kirillkom/script-rating/internal/core/domain"
)

// Scorer implements ports.ContentScorer on top of a compiled Lexicon.
type Scorer struct {
	lexicon *Lexicon
}

func NewScorer(lex *Lexicon) *Scorer {
	return &Scorer{lexicon: lex}
}

type word struct {
	text  string
	start int
	end   int
}

type match struct {
	start    int
	end      int
	severity domain.Severity
}

// Score returns one score per category in domain.Categories() order and the
// byte spans of every term match, sorted by start then category order.
func (s *Scorer) Score(text string) (domain.ContentAssessment, error) {
	if !utf8.ValidString(text) {
		return domain.ContentAssessment{}, domain.WrapError(domain.ErrInvalidInput, "score text", errors.New("text is not valid UTF-8"))
	}
	words := splitWords(text)

	out := domain.ContentAssessment{
		Scores:       make([]domain.CategoryScore, 0, len(domain.Categories())),
		FlaggedSpans: []domain.FlaggedSpan{},
	}
	for _, category := range domain.Categories() {
		score := domain.CategoryScore{Category: category, Severity: domain.SeverityNone}
		if rules, ok := s.rulesFor(category); ok {
			matches := rules.scan(words)
			score.Severity = rules.severity(matches)
			for _, m := range matches {
				out.FlaggedSpans = append(out.FlaggedSpans, domain.FlaggedSpan{
					Start:    m.start,
					End:      m.end,
					Category: category,
					Text:     text[m.start:m.end],
				})
			}
		}
		out.Scores = append(out.Scores, score)
	}

	sort.SliceStable(out.FlaggedSpans, func(i, j int) bool {
		a, b := out.FlaggedSpans[i], out.FlaggedSpans[j]
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		return a.Category.Index() < b.Category.Index()
	})
	return out, nil
}

func (s *Scorer) rulesFor(category domain.Category) (categoryRules, bool) {
	if s.lexicon == nil {
		return categoryRules{}, false
	}
	for _, c := range s.lexicon.categories {
		if c.category == category {
			return c, true
		}
	}
	return categoryRules{}, false
}

// scan walks words left to right and takes, at each position, the strongest
// (then longest) matching term. Matches inside one category never overlap.
func (r categoryRules) scan(words []word) []match {
	var out []match
	for i := 0; i < len(words); {
		best, bestLen := -1, 0
		for ti, t := range r.terms {
			if !t.matchAt(words, i) {
				continue
			}
			if best < 0 || t.severity > r.terms[best].severity ||
				(t.severity == r.terms[best].severity && len(t.tokens) > bestLen) {
				best, bestLen = ti, len(t.tokens)
			}
		}
		if best < 0 {
			i++
			continue
		}
		out = append(out, match{
			start:    words[i].start,
			end:      words[i+bestLen-1].end,
			severity: r.terms[best].severity,
		})
		i += bestLen
	}
	return out
}

// severity is the strongest match, raised one level once escalateAfter
// matches share that strength.
func (r categoryRules) severity(matches []match) domain.Severity {
	top := domain.SeverityNone
	count := 0
	for _, m := range matches {
		switch {
		case m.severity > top:
			top, count = m.severity, 1
		case m.severity == top:
			count++
		}
	}
	if top > domain.SeverityNone && r.escalateAfter > 0 && count >= r.escalateAfter && top < domain.SeveritySevere {
		top++
	}
	return top
}

func (t term) matchAt(words []word, i int) bool {
	if i+len(t.tokens) > len(words) {
		return false
	}
	for k, p := range t.tokens {
		if !p.matches(words[i+k].text) {
			return false
		}
	}
	return true
}

// splitWords returns folded words (letters, digits, inner apostrophes and
// hyphens) with their byte offsets in text.
func splitWords(text string) []word {
	var out []word
	start := -1
	flush := func(end int) {
		if start < 0 {
			return
		}
		// Trailing joiners belong to punctuation, not the word.
		for end > start {
			r, size := utf8.DecodeLastRuneInString(text[start:end])
			if isWordRune(r) {
				break
			}
			end -= size
		}
		if end > start {
			out = append(out, word{text: fold(text[start:end]), start: start, end: end})
		}
		start = -1
	}
	for i, r := range text {
		switch {
		case isWordRune(r):
			if start < 0 {
				start = i
			}
		case isJoiner(r) && start >= 0:
		default:
			flush(i)
		}
	}
	flush(len(text))
	return out
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func isJoiner(r rune) bool {
	return r == '\'' || r == '’' || r == '-'
}
