package search

import (
	"encoding/json"
	"fmt"

	"github.com/tanagra-labs/querent/internal/domain"
)

// searchResponse is the subset of the Elasticsearch search envelope we read.
type searchResponse struct {
	Hits struct {
		MaxScore *float64 `json:"max_score"`
		Hits     []hit    `json:"hits"`
	} `json:"hits"`
}

type hit struct {
	ID        string                   `json:"_id"`
	Score     *float64                 `json:"_score"`
	Source    json.RawMessage          `json:"_source"`
	InnerHits map[string]innerHitsWrap `json:"inner_hits"`
}

type innerHitsWrap struct {
	Hits struct {
		Hits []hit `json:"hits"`
	} `json:"hits"`
}

type getResponse struct {
	Found  bool            `json:"found"`
	ID     string          `json:"_id"`
	Source json.RawMessage `json:"_source"`
}

func (h *hit) score() float64 {
	if h.Score == nil {
		return 0
	}
	return *h.Score
}

func (h *hit) element() (domain.Element, error) {
	var el domain.Element
	if err := json.Unmarshal(h.Source, &el); err != nil {
		return domain.Element{}, fmt.Errorf("decode element %s: %w", h.ID, err)
	}
	if el.ID == "" {
		el.ID = h.ID
	}
	return el, nil
}

func (h *hit) image() (domain.Image, error) {
	var img domain.Image
	if err := json.Unmarshal(h.Source, &img); err != nil {
		return domain.Image{}, fmt.Errorf("decode image %s: %w", h.ID, err)
	}
	if img.ID == "" {
		img.ID = h.ID
	}
	return img, nil
}

func toScoredElements(resp *searchResponse) ([]domain.ScoredElement, error) {
	out := make([]domain.ScoredElement, 0, len(resp.Hits.Hits))
	for i := range resp.Hits.Hits {
		h := &resp.Hits.Hits[i]
		el, err := h.element()
		if err != nil {
			return nil, err
		}
		out = append(out, domain.ScoredElement{Element: el, Score: h.score()})
	}
	return out, nil
}

func toScoredImages(resp *searchResponse) ([]domain.ScoredImage, error) {
	out := make([]domain.ScoredImage, 0, len(resp.Hits.Hits))
	for i := range resp.Hits.Hits {
		h := &resp.Hits.Hits[i]
		img, err := h.image()
		if err != nil {
			return nil, err
		}
		out = append(out, domain.ScoredImage{Image: img, Score: h.score()})
	}
	return out, nil
}
