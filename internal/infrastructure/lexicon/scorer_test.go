package lexicon

import (
	"reflect"
	"testing"

	"github.com/kirillkom/script-rating/internal/core/domain"
)

const testLexicon = `
version: 1
categories:
  violence:
    escalate_after: 2
    terms:
      mild: [fight*]
      moderate: [gun]
      severe: ["slit throat", "убий*"]
  language:
    terms:
      mild: [damn]
  frightening:
    terms:
      mild: ["ушел"]
`

func mustScorer(t *testing.T, src string) *Scorer {
	t.Helper()
	lex, err := Parse([]byte(src))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return NewScorer(lex)
}

func severityOf(a domain.ContentAssessment, c domain.Category) domain.Severity {
	for _, s := range a.Scores {
		if s.Category == c {
			return s.Severity
		}
	}
	return domain.SeverityNone
}

func TestScoreReturnsEveryCategoryInOrder(t *testing.T) {
	got, err := mustScorer(t, testLexicon).Score("Nothing to see here.")
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	if len(got.Scores) != len(domain.Categories()) {
		t.Fatalf("expected %d scores, got %d", len(domain.Categories()), len(got.Scores))
	}
	for i, c := range domain.Categories() {
		if got.Scores[i].Category != c || got.Scores[i].Severity != domain.SeverityNone {
			t.Fatalf("unexpected score %d: %+v", i, got.Scores[i])
		}
	}
	if len(got.FlaggedSpans) != 0 {
		t.Fatalf("expected no spans, got %+v", got.FlaggedSpans)
	}
}

func TestScoreFlagsSpansWithOffsets(t *testing.T) {
	text := "They fight. Damn! A gun."
	got, err := mustScorer(t, testLexicon).Score(text)
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	if severityOf(got, domain.CategoryViolence) != domain.SeverityModerate {
		t.Fatalf("expected moderate violence, got %+v", got.Scores)
	}
	if severityOf(got, domain.CategoryLanguage) != domain.SeverityMild {
		t.Fatalf("expected mild language, got %+v", got.Scores)
	}

	want := []domain.FlaggedSpan{
		{Start: 5, End: 10, Category: domain.CategoryViolence, Text: "fight"},
		{Start: 12, End: 16, Category: domain.CategoryLanguage, Text: "Damn"},
		{Start: 20, End: 23, Category: domain.CategoryViolence, Text: "gun"},
	}
	if !reflect.DeepEqual(got.FlaggedSpans, want) {
		t.Fatalf("unexpected spans:\n got %+v\nwant %+v", got.FlaggedSpans, want)
	}
	for _, span := range got.FlaggedSpans {
		if text[span.Start:span.End] != span.Text {
			t.Fatalf("span text %q does not match offsets", span.Text)
		}
	}
}

func TestScoreEscalatesRepeatedMatches(t *testing.T) {
	s := mustScorer(t, testLexicon)

	got, _ := s.Score("A gun. Another gun.")
	if severityOf(got, domain.CategoryViolence) != domain.SeveritySevere {
		t.Fatalf("expected two moderate matches to escalate to severe, got %+v", got.Scores)
	}

	got, _ = s.Score("They fight and keep fighting.")
	if severityOf(got, domain.CategoryViolence) != domain.SeverityModerate {
		t.Fatalf("expected two mild matches to escalate to moderate, got %+v", got.Scores)
	}

	got, _ = s.Score("damn damn damn damn")
	if severityOf(got, domain.CategoryLanguage) != domain.SeverityMild {
		t.Fatalf("language has no escalation, got %+v", got.Scores)
	}
}

func TestScoreNeverLowersWithMoreMatches(t *testing.T) {
	s := mustScorer(t, testLexicon)
	base, _ := s.Score("A gun. Another gun.")
	more, _ := s.Score("A gun. Another gun. Then a fight.")
	if severityOf(more, domain.CategoryViolence) < severityOf(base, domain.CategoryViolence) {
		t.Fatalf("additional match lowered severity: %+v -> %+v", base.Scores, more.Scores)
	}
}

func TestScoreMatchesPhrasesAndCyrillic(t *testing.T) {
	s := mustScorer(t, testLexicon)

	got, _ := s.Score("He tries to Slit  throat quietly.")
	if severityOf(got, domain.CategoryViolence) != domain.SeveritySevere {
		t.Fatalf("expected phrase match, got %+v", got.Scores)
	}
	if len(got.FlaggedSpans) != 1 || got.FlaggedSpans[0].Text != "Slit  throat" {
		t.Fatalf("unexpected phrase span %+v", got.FlaggedSpans)
	}

	got, _ = s.Score("Убийца ушёл в ночь.")
	if severityOf(got, domain.CategoryViolence) != domain.SeveritySevere {
		t.Fatalf("expected Cyrillic prefix match, got %+v", got.Scores)
	}
	if severityOf(got, domain.CategoryFrightening) != domain.SeverityMild {
		t.Fatalf("expected ё to fold into е, got %+v", got.Scores)
	}
}

func TestScoreIsDeterministic(t *testing.T) {
	lex, err := Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	s := NewScorer(lex)
	text := "The killer draws a gun and shoots. Blood on the floor. He screams, drunk and terrified."
	first, err := s.Score(text)
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	second, _ := s.Score(text)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("scores differ between identical calls")
	}
	if severityOf(first, domain.CategoryViolence) != domain.SeveritySevere {
		t.Fatalf("expected severe violence from default lexicon, got %+v", first.Scores)
	}
	if domain.RatingForScores(first.Scores) != domain.Rating18 {
		t.Fatalf("expected 18+, got %s", domain.RatingForScores(first.Scores))
	}
}

func TestDefaultLexiconCoversAllCategories(t *testing.T) {
	lex, err := Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	if len(lex.categories) != len(domain.Categories()) {
		t.Fatalf("expected rules for every category, got %d", len(lex.categories))
	}
	if lex.TermCount() == 0 {
		t.Fatal("expected a non-empty default lexicon")
	}
}

func TestParseRejectsBadLexicons(t *testing.T) {
	cases := map[string]string{
		"unknown category": "categories:\n  gambling:\n    terms:\n      mild: [poker]\n",
		"none severity":    "categories:\n  violence:\n    terms:\n      none: [hug]\n",
		"unknown severity": "categories:\n  violence:\n    terms:\n      extreme: [nuke]\n",
		"empty":            "version: 1\n",
		"bad wildcard":     "categories:\n  violence:\n    terms:\n      mild: [\"*\"]\n",
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(src)); !domain.IsKind(err, domain.ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestScoreRejectsInvalidUTF8(t *testing.T) {
	if _, err := mustScorer(t, testLexicon).Score("bad \xff"); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
