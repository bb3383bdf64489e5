package domain

import (
	"fmt"
	"strings"
)

// Severity is an ordered scale: a larger value is always a stronger manifestation.
type Severity int

const (
	SeverityNone Severity = iota
	SeverityMild
	SeverityModerate
	SeveritySevere
)

var severityTokens = [...]string{"none", "mild", "moderate", "severe"}

func (s Severity) String() string {
	if s < SeverityNone || s > SeveritySevere {
		return fmt.Sprintf("severity(%d)", int(s))
	}
	return severityTokens[s]
}

func (s Severity) Valid() bool {
	return s >= SeverityNone && s <= SeveritySevere
}

func (s Severity) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, WrapError(ErrInvalidInput, "marshal severity", fmt.Errorf("value %d out of range", int(s)))
	}
	return []byte(severityTokens[s]), nil
}

func (s *Severity) UnmarshalText(text []byte) error {
	parsed, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func ParseSeverity(token string) (Severity, error) {
	token = strings.ToLower(strings.TrimSpace(token))
	for i, t := range severityTokens {
		if t == token {
			return Severity(i), nil
		}
	}
	return SeverityNone, WrapError(ErrInvalidInput, "parse severity", fmt.Errorf("unknown token %q", token))
}

// Rating is the age tier scale 0+ < 6+ < 12+ < 16+ < 18+.
type Rating int

const (
	Rating0 Rating = iota
	Rating6
	Rating12
	Rating16
	Rating18
)

var ratingTokens = [...]string{"0+", "6+", "12+", "16+", "18+"}

func (r Rating) String() string {
	if !r.Valid() {
		return fmt.Sprintf("rating(%d)", int(r))
	}
	return ratingTokens[r]
}

func (r Rating) Valid() bool {
	return r >= Rating0 && r <= Rating18
}

func (r Rating) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, WrapError(ErrInvalidInput, "marshal rating", fmt.Errorf("value %d out of range", int(r)))
	}
	return []byte(ratingTokens[r]), nil
}

func (r *Rating) UnmarshalText(text []byte) error {
	parsed, err := ParseRating(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

func ParseRating(token string) (Rating, error) {
	token = strings.TrimSpace(token)
	for i, t := range ratingTokens {
		if t == token {
			return Rating(i), nil
		}
	}
	return Rating0, WrapError(ErrInvalidInput, "parse rating", fmt.Errorf("unknown token %q", token))
}

// ParseOptionalRating treats an empty token as "no rating supplied".
func ParseOptionalRating(token string) (*Rating, error) {
	if strings.TrimSpace(token) == "" {
		return nil, nil
	}
	r, err := ParseRating(token)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func MaxRating(a, b Rating) Rating {
	if b > a {
		return b
	}
	return a
}

// Category is one of the five regulated content dimensions.
type Category string

const (
	CategoryViolence      Category = "violence"
	CategorySexualContent Category = "sexual_content"
	CategoryLanguage      Category = "language"
	CategorySubstances    Category = "substances"
	CategoryFrightening   Category = "frightening"
)

// Categories returns the fixed category order used for every per-block score set.
func Categories() []Category {
	return []Category{
		CategoryViolence,
		CategorySexualContent,
		CategoryLanguage,
		CategorySubstances,
		CategoryFrightening,
	}
}

func (c Category) Valid() bool {
	return c.Index() >= 0
}

// Index is the position of c in Categories(), or -1.
func (c Category) Index() int {
	for i, known := range Categories() {
		if known == c {
			return i
		}
	}
	return -1
}

func ParseCategory(token string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(token)))
	if !c.Valid() {
		return "", WrapError(ErrInvalidInput, "parse category", fmt.Errorf("unknown token %q", token))
	}
	return c, nil
}

// escalation maps severity (mild, moderate, severe) to the minimum rating per category.
var escalation = map[Category][3]Rating{
	CategoryViolence:      {Rating6, Rating12, Rating18},
	CategorySexualContent: {Rating12, Rating16, Rating18},
	CategoryLanguage:      {Rating12, Rating16, Rating18},
	CategorySubstances:    {Rating12, Rating16, Rating18},
	CategoryFrightening:   {Rating6, Rating12, Rating16},
}

// RatingFor returns the minimum age rating implied by one category severity.
func RatingFor(category Category, severity Severity) Rating {
	if severity <= SeverityNone {
		return Rating0
	}
	if severity > SeveritySevere {
		severity = SeveritySevere
	}
	tiers, ok := escalation[category]
	if !ok {
		return Rating0
	}
	return tiers[severity-1]
}

// RatingForScores applies the escalation rule to a score set: the strongest
// category decides, ties do not change the result.
func RatingForScores(scores []CategoryScore) Rating {
	out := Rating0
	for _, s := range scores {
		out = MaxRating(out, RatingFor(s.Category, s.Severity))
	}
	return out
}
