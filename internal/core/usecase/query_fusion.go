package usecase

import (
	"sort"

	"github.com/kirillkom/script-rating/internal/core/domain"
)

type fusedCandidate struct {
	hit   domain.ScoredExcerpt
	score float64
}

func fuseCandidatesRRF(semantic, lexical []domain.ScoredExcerpt, rrfK int) []domain.ScoredExcerpt {
	if rrfK <= 0 {
		rrfK = 60
	}

	acc := make(map[string]fusedCandidate, len(semantic)+len(lexical))
	addList := func(hits []domain.ScoredExcerpt) {
		for rank, hit := range hits {
			key := hit.Excerpt.ID
			candidate := acc[key]
			if candidate.hit.Excerpt.ID == "" {
				candidate.hit = hit
			}
			candidate.score += 1.0 / float64(rrfK+rank+1)
			acc[key] = candidate
		}
	}

	addList(semantic)
	addList(lexical)

	out := make([]domain.ScoredExcerpt, 0, len(acc))
	for _, c := range acc {
		hit := c.hit
		hit.Score = c.score
		out = append(out, hit)
	}

	sortScored(out)
	return out
}

func trimCandidates(hits []domain.ScoredExcerpt, limit int) []domain.ScoredExcerpt {
	if limit <= 0 || len(hits) <= limit {
		return hits
	}
	return hits[:limit]
}

// sortScored orders by score descending, then by corpus insertion order.
func sortScored(hits []domain.ScoredExcerpt) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Excerpt.Seq < hits[j].Excerpt.Seq
	})
}
