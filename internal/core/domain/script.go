package domain

// ParagraphSpan locates one source paragraph inside normalized text as a
// half-open byte range [Start, End).
type ParagraphSpan struct {
	Page  int `json:"page"`
	Index int `json:"paragraph"`
	Start int `json:"start"`
	End   int `json:"end"`
}

// ScriptText is normalized document text plus its page/paragraph map.
type ScriptText struct {
	Text       string          `json:"text"`
	Paragraphs []ParagraphSpan `json:"paragraphs,omitempty"`
}

type PageRange struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// ContentBlock is a bounded, page-anchored slice of a script.
// Start and End are byte offsets into ScriptText.Text.
type ContentBlock struct {
	SequenceNumber int       `json:"sequence_number"`
	Heading        string    `json:"heading"`
	PageRange      PageRange `json:"page_range"`
	RawText        string    `json:"raw_text"`
	WordCount      int       `json:"word_count"`
	Start          int       `json:"start"`
	End            int       `json:"end"`
}
