package usecase

import (
	"math"

	"github.com/kirillkom/script-rating/internal/core/domain"
)

// ambiguityPenalty is the most confidence a fully ambiguous run can lose.
const ambiguityPenalty = 0.6

// Aggregate reduces classified blocks to the final verdict.
//
// The final rating is the maximum block rating. Problem blocks are those at or
// above target when one is given; otherwise those that reach the final rating,
// provided it is above 0+. Confidence drops with the share of blocks whose
// strongest severity sits on a rating boundary (moderate counts fully, mild
// half); none and severe blocks are unambiguous.
func Aggregate(blocks []domain.ClassifiedBlock, target *domain.Rating) domain.AggregateResult {
	result := domain.AggregateResult{
		FinalRating:     domain.Rating0,
		ConfidenceScore: 1.0,
		ProblemBlockIDs: []int{},
	}
	if len(blocks) == 0 {
		return result
	}

	var ambiguity float64
	for _, b := range blocks {
		result.FinalRating = domain.MaxRating(result.FinalRating, b.BlockRating)
		ambiguity += blockAmbiguity(b)
	}

	for _, b := range blocks {
		if isProblemBlock(b.BlockRating, result.FinalRating, target) {
			result.ProblemBlockIDs = append(result.ProblemBlockIDs, b.Block.SequenceNumber)
		}
	}

	confidence := 1 - ambiguityPenalty*ambiguity/float64(len(blocks))
	result.ConfidenceScore = math.Round(confidence*10000) / 10000
	return result
}

func isProblemBlock(rating, final domain.Rating, target *domain.Rating) bool {
	if target != nil {
		return rating >= *target
	}
	return final > domain.Rating0 && rating == final
}

func blockAmbiguity(b domain.ClassifiedBlock) float64 {
	switch b.MaxSeverity() {
	case domain.SeverityModerate:
		return 1
	case domain.SeverityMild:
		return 0.5
	default:
		return 0
	}
}
