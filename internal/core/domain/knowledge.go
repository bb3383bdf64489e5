package domain

import "time"

// ReferenceExcerpt is one indexed paragraph of a legal/reference document.
// Seq is the corpus-wide insertion order and breaks relevance ties.
type ReferenceExcerpt struct {
	ID            string    `json:"id"`
	DocumentID    string    `json:"document_id"`
	DocumentTitle string    `json:"document_title"`
	Page          int       `json:"page"`
	Paragraph     int       `json:"paragraph"`
	Text          string    `json:"text"`
	CategoryHint  Category  `json:"category_hint,omitempty"`
	Embedding     []float32 `json:"-"`
	Seq           int64     `json:"-"`
}

type ReferenceParagraph struct {
	Page           int      `json:"page"`
	ParagraphIndex int      `json:"paragraph_index"`
	Text           string   `json:"text"`
	CategoryHint   Category `json:"category_hint,omitempty"`
}

type ReferenceDocument struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	ExcerptCount int       `json:"excerpt_count"`
	CreatedAt    time.Time `json:"created_at"`
}

type QueryFilter struct {
	Category Category
}

type ScoredExcerpt struct {
	Excerpt ReferenceExcerpt `json:"excerpt"`
	Score   float64          `json:"score"`
}

// VectorHit is a raw nearest-neighbour result from an external vector store.
type VectorHit struct {
	ExcerptID string
	Score     float64
}

type Citation struct {
	ExcerptID      string  `json:"excerpt_id"`
	DocumentTitle  string  `json:"document_title"`
	Page           int     `json:"page"`
	Paragraph      int     `json:"paragraph"`
	ExcerptText    string  `json:"excerpt_text"`
	RelevanceScore float64 `json:"relevance_score"`
}

func CitationFrom(hit ScoredExcerpt) Citation {
	return Citation{
		ExcerptID:      hit.Excerpt.ID,
		DocumentTitle:  hit.Excerpt.DocumentTitle,
		Page:           hit.Excerpt.Page,
		Paragraph:      hit.Excerpt.Paragraph,
		ExcerptText:    hit.Excerpt.Text,
		RelevanceScore: hit.Score,
	}
}
