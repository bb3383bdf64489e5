package usecase

import (
	"strings"

	"github.com/kirillkom/script-rating/internal/core/domain"
)

func rerankHybridCandidates(query string, fused []domain.ScoredExcerpt, topN int) []domain.ScoredExcerpt {
	if len(fused) == 0 {
		return fused
	}
	if topN <= 0 || topN > len(fused) {
		topN = len(fused)
	}

	head := make([]domain.ScoredExcerpt, topN)
	copy(head, fused[:topN])
	queryTokens := toTokenSet(query)

	minScore := head[0].Score
	maxScore := head[0].Score
	for _, hit := range head[1:] {
		if hit.Score < minScore {
			minScore = hit.Score
		}
		if hit.Score > maxScore {
			maxScore = hit.Score
		}
	}

	rangeScore := maxScore - minScore
	normalize := func(v float64) float64 {
		if rangeScore <= 0 {
			if v > 0 {
				return 1
			}
			return 0
		}
		return (v - minScore) / rangeScore
	}

	for i := range head {
		normalizedFused := normalize(head[i].Score)
		overlap := tokenOverlap(queryTokens, toTokenSet(head[i].Excerpt.Text))
		titleBoost := titleTokenHit(queryTokens, head[i].Excerpt.DocumentTitle)
		head[i].Score = 0.60*normalizedFused + 0.30*overlap + 0.10*titleBoost
	}

	sortScored(head)

	if topN == len(fused) {
		return head
	}

	out := make([]domain.ScoredExcerpt, 0, len(fused))
	out = append(out, head...)
	out = append(out, fused[topN:]...)
	return out
}

func tokenOverlap(query, text map[string]struct{}) float64 {
	if len(query) == 0 || len(text) == 0 {
		return 0
	}
	matches := 0
	for token := range query {
		if _, ok := text[token]; ok {
			matches++
		}
	}
	return float64(matches) / float64(len(query))
}

func titleTokenHit(query map[string]struct{}, title string) float64 {
	if len(query) == 0 || title == "" {
		return 0
	}
	title = strings.ReplaceAll(strings.ToLower(title), "ё", "е")
	for token := range query {
		if token == "" {
			continue
		}
		if strings.Contains(title, token) {
			return 1
		}
	}
	return 0
}
