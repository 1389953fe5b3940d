// Package embedding routes text and image embedding requests to the
// configured providers, one per vector field.
package embedding

import (
	"context"
	"fmt"

	"github.com/tanagra-labs/querent/internal/domain"
)

// TextEmbedder produces an embedding vector for a text.
type TextEmbedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// ImageEmbedder produces an embedding vector for raw image bytes, with an
// optional scope hint for scope-tuned image models.
type ImageEmbedder interface {
	EmbedImage(ctx context.Context, data []byte, scope string) ([]float64, error)
}

// Gateway dispatches embedding requests by vector field. The fine-tuned and
// image providers are optional deployments.
type Gateway struct {
	standard  TextEmbedder
	fineTuned TextEmbedder
	image     ImageEmbedder
}

// NewGateway creates a gateway. standard is required; fineTuned and image may
// be nil when the deployment carries no such model.
func NewGateway(standard, fineTuned TextEmbedder, image ImageEmbedder) *Gateway {
	return &Gateway{standard: standard, fineTuned: fineTuned, image: image}
}

// EmbedText embeds a text with the provider backing the given vector field.
// Requesting the fine-tuned field without a configured provider is a
// configuration error, not an availability one.
func (g *Gateway) EmbedText(ctx context.Context, text string, field domain.VectorField) ([]float64, error) {
	switch field {
	case domain.FieldStandard:
		return g.standard.Embed(ctx, text)
	case domain.FieldFineTuned:
		if g.fineTuned == nil {
			return nil, domain.ErrFineTunedNotConfigured
		}
		return g.fineTuned.Embed(ctx, text)
	default:
		return nil, fmt.Errorf("unknown vector field %d: %w", field, domain.ErrValidation)
	}
}

// EmbedImage embeds raw image bytes.
func (g *Gateway) EmbedImage(ctx context.Context, data []byte, scope string) ([]float64, error) {
	if g.image == nil {
		return nil, fmt.Errorf("no image embedding provider configured: %w", domain.ErrEmbeddingUnavailable)
	}
	return g.image.EmbedImage(ctx, data, scope)
}

// HasFineTuned reports whether a fine-tuned provider is configured.
func (g *Gateway) HasFineTuned() bool { return g.fineTuned != nil }
