package domain

import (
	"fmt"
	"strings"
)

// EmbeddingMode selects which embedding model(s) a query runs against.
type EmbeddingMode string

const (
	ModeStandard  EmbeddingMode = "standard"
	ModeFineTuned EmbeddingMode = "fine-tuned"
	ModeMixed     EmbeddingMode = "mixed"
)

// ParseMode normalizes a request's type field. Empty defaults to standard.
func ParseMode(s string) (EmbeddingMode, error) {
	switch EmbeddingMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeStandard:
		return ModeStandard, nil
	case ModeFineTuned:
		return ModeFineTuned, nil
	case ModeMixed:
		return ModeMixed, nil
	}
	return "", fmt.Errorf("%w: type must be standard, fine-tuned or mixed", ErrValidation)
}

// QueryRequest is the inbound shape shared by the search, deepsearch,
// deepsense and searchaggregate operations.
type QueryRequest struct {
	Query             string `json:"query"`
	Scope             string `json:"scope,omitempty"`
	BusinessID        string `json:"businessId"`
	UserID            string `json:"userId"`
	Type              string `json:"type,omitempty"`
	QueryNegative     string `json:"queryNegative,omitempty"`
	GroupByExternalID bool   `json:"groupByExternalId,omitempty"`
}

// Validate checks the required fields common to all query operations.
func (r *QueryRequest) Validate() error {
	if strings.TrimSpace(r.Query) == "" {
		return fmt.Errorf("%w: query cannot be empty", ErrValidation)
	}
	if strings.TrimSpace(r.BusinessID) == "" {
		return fmt.Errorf("%w: businessId is required", ErrValidation)
	}
	if strings.TrimSpace(r.UserID) == "" {
		return fmt.Errorf("%w: userId is required", ErrValidation)
	}
	return nil
}

// Chunk is one member of an aggregated group.
type Chunk struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	ChunkSection string  `json:"chunkSection,omitempty"`
	Fulltext     string  `json:"fulltext"`
	Score        float64 `json:"score"`
}

// AggregatedGroup collects the chunks sharing one external article id.
// Parent is the group's representative element (best-scoring chunk).
type AggregatedGroup struct {
	ExternalID       string  `json:"externalId"`
	AvgScore         float64 `json:"avgScore"`
	MaxPositiveScore float64 `json:"maxPositiveScore,omitempty"`
	MaxNegativeScore float64 `json:"maxNegativeScore,omitempty"`
	Chunks           []Chunk `json:"chunks"`
	Parent           Element `json:"-"`
	Score            float64 `json:"-"`
}

// DeepResult is one record of the incrementally streamed deep-search array.
// ParentLevel is nil for level-1 results and holds the parent's element id
// for level-2 results.
type DeepResult struct {
	ID          string    `json:"id"`
	Commands    []Command `json:"commands"`
	Summary     string    `json:"summary"`
	ParentLevel *string   `json:"parentLevel"`
}
