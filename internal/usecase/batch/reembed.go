// Package batch re-embeds the whole element corpus, for model upgrades and
// vector field backfills.
package batch

import (
	"context"

	"go.uber.org/zap"

	"github.com/tanagra-labs/querent/internal/domain"
)

// Store iterates and rewrites the element corpus.
type Store interface {
	AllElements(ctx context.Context) ([]domain.Element, error)
	IndexElement(ctx context.Context, el domain.Element) error
}

// Gateway produces embedding vectors.
type Gateway interface {
	EmbedText(ctx context.Context, text string, field domain.VectorField) ([]float64, error)
}

// Report counts the outcome of one re-embedding run.
type Report struct {
	Total   int `json:"total"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Service runs corpus-wide re-embedding jobs.
type Service struct {
	store   Store
	gateway Gateway
	logger  *zap.Logger
}

// New creates a batch service.
func New(store Store, gateway Gateway, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, gateway: gateway, logger: logger}
}

// Reembed recomputes the vectors of every element with non-empty fulltext,
// using the requested mode. Elements without fulltext are skipped; a
// per-element embedding failure counts as failed and the run continues.
// Cancellation stops the run with the partial report.
func (s *Service) Reembed(ctx context.Context, mode domain.EmbeddingMode) (Report, error) {
	elements, err := s.store.AllElements(ctx)
	if err != nil {
		return Report{}, err
	}

	report := Report{Total: len(elements)}
	for _, el := range elements {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if el.Fulltext == "" {
			report.Skipped++
			continue
		}

		if err := s.reembedOne(ctx, &el, mode); err != nil {
			report.Failed++
			s.logger.Warn("re-embedding failed",
				zap.String("element_id", el.ID),
				zap.Error(err))
			continue
		}
		if err := s.store.IndexElement(ctx, el); err != nil {
			report.Failed++
			s.logger.Warn("re-indexing failed",
				zap.String("element_id", el.ID),
				zap.Error(err))
			continue
		}
		report.Updated++
	}

	s.logger.Info("re-embedding run finished",
		zap.Int("total", report.Total),
		zap.Int("updated", report.Updated),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed))
	return report, nil
}

func (s *Service) reembedOne(ctx context.Context, el *domain.Element, mode domain.EmbeddingMode) error {
	if mode == domain.ModeStandard || mode == domain.ModeMixed {
		vec, err := s.gateway.EmbedText(ctx, el.Fulltext, domain.FieldStandard)
		if err != nil {
			return err
		}
		el.SetVector(domain.FieldStandard, vec)
	}
	if mode == domain.ModeFineTuned || mode == domain.ModeMixed {
		vec, err := s.gateway.EmbedText(ctx, el.Fulltext, domain.FieldFineTuned)
		if err != nil {
			return err
		}
		el.SetVector(domain.FieldFineTuned, vec)
	}
	return nil
}
