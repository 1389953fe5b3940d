package query

import (
	"math"

	"github.com/tanagra-labs/querent/internal/domain"
)

// Result is one ranked document of a batch response.
type Result struct {
	ID             string           `json:"id"`
	Scope          string           `json:"scope"`
	BusinessID     string           `json:"businessId,omitempty"`
	Title          string           `json:"title"`
	Fulltext       string           `json:"fulltext"`
	FulltextLive   string           `json:"fulltextLive,omitempty"`
	Commands       []domain.Command `json:"commands,omitempty"`
	RelevanceScore int              `json:"relevanceScore"`
}

// ImageResult is one ranked image hit.
type ImageResult struct {
	ID             string `json:"id"`
	Scope          string `json:"scope"`
	Title          string `json:"title,omitempty"`
	ImageURL       string `json:"imageUrl,omitempty"`
	ElementID      string `json:"elementId,omitempty"`
	RelevanceScore int    `json:"relevanceScore"`
}

// relevance maps a raw score onto the 0-100 percentage scale, clamping the
// result. A non-positive maximum means the whole set is degenerate and every
// candidate scores 0.
func relevance(score, max float64) int {
	if max <= 0 {
		return 0
	}
	pct := int(math.Round(score / max * 100))
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// maxElementScore returns the highest raw score of the set, 0 when empty.
func maxElementScore(hits []domain.ScoredElement) float64 {
	var max float64
	for _, h := range hits {
		if h.Score > max {
			max = h.Score
		}
	}
	return max
}

func toResult(el domain.Element, fragment string, score, max float64) Result {
	return Result{
		ID:             el.ID,
		Scope:          el.Scope,
		BusinessID:     el.BusinessID,
		Title:          el.Title,
		Fulltext:       el.Fulltext,
		FulltextLive:   fragment,
		Commands:       el.Commands,
		RelevanceScore: relevance(score, max),
	}
}
