// Package lexicon scores script text against per-category term lists loaded
// from YAML.
package lexicon

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/script-rating/internal/core/domain"
)

//go:embed default_lexicon.yaml
var defaultLexicon []byte

type fileFormat struct {
	Version    int                     `yaml:"version"`
	Categories map[string]categoryFile `yaml:"categories"`
}

type categoryFile struct {
	EscalateAfter int                 `yaml:"escalate_after"`
	Terms         map[string][]string `yaml:"terms"`
}

// Lexicon is the compiled, read-only form of a lexicon file. Categories are
// kept in domain.Categories() order.
type Lexicon struct {
	categories []categoryRules
}

type categoryRules struct {
	category      domain.Category
	escalateAfter int
	terms         []term
}

type term struct {
	raw      string
	tokens   []pattern
	severity domain.Severity
}

type pattern struct {
	text   string
	prefix bool
}

// Default returns the lexicon compiled into the binary.
func Default() (*Lexicon, error) {
	return Parse(defaultLexicon)
}

// Load reads a lexicon from path, or returns Default when path is empty.
func Load(path string) (*Lexicon, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lexicon %s: %w", path, err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Lexicon, error) {
	var file fileFormat
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "parse lexicon", err)
	}
	if len(file.Categories) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "parse lexicon", errors.New("no categories defined"))
	}
	for name := range file.Categories {
		if _, err := domain.ParseCategory(name); err != nil {
			return nil, err
		}
	}

	lex := &Lexicon{}
	for _, category := range domain.Categories() {
		cf, ok := file.Categories[string(category)]
		if !ok {
			continue
		}
		if cf.EscalateAfter < 0 {
			return nil, domain.WrapError(domain.ErrInvalidInput, "parse lexicon", fmt.Errorf("%s: escalate_after must be >= 0", category))
		}
		rules := categoryRules{category: category, escalateAfter: cf.EscalateAfter}
		for level, raws := range cf.Terms {
			severity, err := domain.ParseSeverity(level)
			if err != nil {
				return nil, err
			}
			if severity == domain.SeverityNone {
				return nil, domain.WrapError(domain.ErrInvalidInput, "parse lexicon", fmt.Errorf("%s: terms cannot have severity none", category))
			}
			for _, raw := range raws {
				t, err := compileTerm(raw, severity)
				if err != nil {
					return nil, domain.WrapError(domain.ErrInvalidInput, "parse lexicon", fmt.Errorf("%s: %w", category, err))
				}
				rules.terms = append(rules.terms, t)
			}
		}
		// Map order is random; matching must not depend on it.
		sort.Slice(rules.terms, func(i, j int) bool {
			a, b := rules.terms[i], rules.terms[j]
			if a.severity != b.severity {
				return a.severity > b.severity
			}
			if len(a.tokens) != len(b.tokens) {
				return len(a.tokens) > len(b.tokens)
			}
			return a.raw < b.raw
		})
		lex.categories = append(lex.categories, rules)
	}
	return lex, nil
}

func compileTerm(raw string, severity domain.Severity) (term, error) {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return term{}, errors.New("empty term")
	}
	out := term{raw: raw, severity: severity}
	for _, f := range fields {
		p := pattern{text: f}
		if strings.HasSuffix(f, "*") {
			p.prefix = true
			p.text = strings.TrimSuffix(f, "*")
		}
		p.text = fold(p.text)
		if p.text == "" || strings.Contains(p.text, "*") {
			return term{}, fmt.Errorf("malformed term %q", raw)
		}
		out.tokens = append(out.tokens, p)
	}
	return out, nil
}

// TermCount is the number of compiled terms across all categories.
func (l *Lexicon) TermCount() int {
	n := 0
	for _, c := range l.categories {
		n += len(c.terms)
	}
	return n
}

func (p pattern) matches(word string) bool {
	if p.prefix {
		return strings.HasPrefix(word, p.text)
	}
	return word == p.text
}

// fold lowercases and merges ё into е so spelling variants match.
func fold(s string) string {
	return strings.ReplaceAll(strings.ToLower(s), "ё", "е")
}
