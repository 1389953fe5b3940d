package query

import (
	"sort"

	"github.com/tanagra-labs/querent/internal/domain"
)

// mergeBest unions hit lists, keeping only the best-scoring hit per element
// id, sorted by descending score.
func mergeBest(lists ...[]domain.ScoredElement) []domain.ScoredElement {
	best := make(map[string]domain.ScoredElement)
	for _, list := range lists {
		for _, h := range list {
			if cur, ok := best[h.Element.ID]; !ok || h.Score > cur.Score {
				best[h.Element.ID] = h
			}
		}
	}

	merged := make([]domain.ScoredElement, 0, len(best))
	for _, h := range best {
		merged = append(merged, h)
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Score != merged[j].Score {
			return merged[i].Score > merged[j].Score
		}
		return merged[i].Element.ID < merged[j].Element.ID
	})
	return merged
}

// filterFloor drops hits scoring below ratio times the set's maximum and
// returns the survivors with that maximum. A non-positive maximum makes the
// floor meaningless, so every hit survives.
func filterFloor(hits []domain.ScoredElement, ratio float64) ([]domain.ScoredElement, float64) {
	max := maxElementScore(hits)
	if max <= 0 {
		return hits, max
	}

	floor := ratio * max
	kept := make([]domain.ScoredElement, 0, len(hits))
	for _, h := range hits {
		if h.Score >= floor {
			kept = append(kept, h)
		}
	}
	return kept, max
}
