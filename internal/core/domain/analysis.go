package domain

import "time"

type CategoryScore struct {
	Category Category `json:"category"`
	Severity Severity `json:"severity"`
}

// FlaggedSpan marks the byte range [Start, End) of a block's raw text that
// triggered a non-none severity.
type FlaggedSpan struct {
	Start    int      `json:"start"`
	End      int      `json:"end"`
	Category Category `json:"category"`
	Text     string   `json:"text"`
}

// ContentAssessment is the heuristic half of a classification: one score per
// category in Categories() order plus the spans that produced them.
type ContentAssessment struct {
	Scores       []CategoryScore `json:"scores"`
	FlaggedSpans []FlaggedSpan   `json:"flagged_spans"`
}

// MaxSeverity returns the strongest severity in the assessment.
func (a ContentAssessment) MaxSeverity() Severity {
	out := SeverityNone
	for _, s := range a.Scores {
		if s.Severity > out {
			out = s.Severity
		}
	}
	return out
}

// ClassifiedBlock is immutable once built by the classifier.
type ClassifiedBlock struct {
	Block        ContentBlock    `json:"block"`
	Scores       []CategoryScore `json:"scores"`
	FlaggedSpans []FlaggedSpan   `json:"flagged_spans"`
	Citations    []Citation      `json:"citations"`
	BlockRating  Rating          `json:"block_rating"`
}

func (b ClassifiedBlock) SeverityOf(category Category) Severity {
	for _, s := range b.Scores {
		if s.Category == category {
			return s.Severity
		}
	}
	return SeverityNone
}

func (b ClassifiedBlock) MaxSeverity() Severity {
	return ContentAssessment{Scores: b.Scores}.MaxSeverity()
}

type AnalysisStatus string

const (
	AnalysisPending   AnalysisStatus = "pending"
	AnalysisRunning   AnalysisStatus = "running"
	AnalysisCompleted AnalysisStatus = "completed"
	AnalysisFailed    AnalysisStatus = "failed"
)

func (s AnalysisStatus) Terminal() bool {
	return s == AnalysisCompleted || s == AnalysisFailed
}

type AggregateResult struct {
	FinalRating     Rating  `json:"final_rating"`
	ConfidenceScore float64 `json:"confidence_score"`
	ProblemBlockIDs []int   `json:"problem_block_ids"`
}

// AnalysisRun is the poll-friendly record of one script analysis.
type AnalysisRun struct {
	ID              string            `json:"analysis_id"`
	Filename        string            `json:"filename,omitempty"`
	MimeType        string            `json:"mime_type,omitempty"`
	StoragePath     string            `json:"-"`
	Status          AnalysisStatus    `json:"status"`
	TargetRating    *Rating           `json:"target_rating,omitempty"`
	TotalBlocks     int               `json:"total_blocks"`
	ProcessedBlocks []ClassifiedBlock `json:"processed_blocks"`
	Progress        float64           `json:"progress"`
	FinalRating     *Rating           `json:"final_rating,omitempty"`
	ConfidenceScore *float64          `json:"confidence_score,omitempty"`
	ProblemBlockIDs []int             `json:"problem_block_ids"`
	FailureReason   string            `json:"failure_reason,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
	CompletedAt     *time.Time        `json:"completed_at,omitempty"`
}

// ProcessedCount is len(ProcessedBlocks); kept as a method so it never drifts.
func (r AnalysisRun) ProcessedCount() int {
	return len(r.ProcessedBlocks)
}

// ComputeProgress returns processed/total, 0 when there is nothing to process.
func (r AnalysisRun) ComputeProgress() float64 {
	if r.TotalBlocks == 0 {
		return 0
	}
	return float64(len(r.ProcessedBlocks)) / float64(r.TotalBlocks)
}

// Clone returns a snapshot that shares no mutable slices with r. Classified
// blocks themselves are immutable, so copying the slice is enough.
func (r AnalysisRun) Clone() AnalysisRun {
	out := r
	out.ProcessedBlocks = append([]ClassifiedBlock(nil), r.ProcessedBlocks...)
	if out.ProcessedBlocks == nil {
		out.ProcessedBlocks = []ClassifiedBlock{}
	}
	out.ProblemBlockIDs = append([]int(nil), r.ProblemBlockIDs...)
	if out.ProblemBlockIDs == nil {
		out.ProblemBlockIDs = []int{}
	}
	if r.TargetRating != nil {
		v := *r.TargetRating
		out.TargetRating = &v
	}
	if r.FinalRating != nil {
		v := *r.FinalRating
		out.FinalRating = &v
	}
	if r.ConfidenceScore != nil {
		v := *r.ConfidenceScore
		out.ConfidenceScore = &v
	}
	if r.CompletedAt != nil {
		v := *r.CompletedAt
		out.CompletedAt = &v
	}
	out.Progress = out.ComputeProgress()
	return out
}
