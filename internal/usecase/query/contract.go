// Package query coordinates retrieval: embeddings, backend searches,
// merge/filter, live data enrichment and the deep expansion modes.
package query

import (
	"context"

	"github.com/tanagra-labs/querent/internal/domain"
)

// Backend defines the search index contract.
type Backend interface {
	LexicalVector(
		ctx context.Context, vector []float64, query, scope, businessID string, field domain.VectorField,
	) ([]domain.ScoredElement, error)

	VectorOnly(
		ctx context.Context, vector []float64, scope, businessID string, field domain.VectorField,
	) ([]domain.ScoredElement, error)

	ImageVector(
		ctx context.Context, vector []float64, scope, businessID string,
	) ([]domain.ScoredImage, error)

	PositiveNegativeCollapse(
		ctx context.Context, include, exclude []float64, scope, businessID string,
		field domain.VectorField, collapse bool, size int,
	) ([]domain.AggregatedGroup, error)

	AggregatedByExternalID(
		ctx context.Context, include, exclude []float64, query, scope, businessID string,
		size int, useStandardField bool,
	) ([]domain.AggregatedGroup, error)

	GetElementByID(ctx context.Context, id string) (domain.Element, error)
}

// Gateway produces embedding vectors.
type Gateway interface {
	EmbedText(ctx context.Context, text string, field domain.VectorField) ([]float64, error)
	EmbedImage(ctx context.Context, data []byte, scope string) ([]float64, error)
}

// Enricher resolves an element's live data fragment. The boolean reports
// whether the element stays in the result set.
type Enricher interface {
	Enrich(ctx context.Context, el domain.Element, businessID, userID string) (string, bool)
}

// Summarizer condenses an element's text with respect to the user's query.
type Summarizer interface {
	Summarize(ctx context.Context, text, userQuery string) (string, error)
}
