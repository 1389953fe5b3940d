package query

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tanagra-labs/querent/internal/domain"
	"github.com/tanagra-labs/querent/internal/metrics"
)

// Score floors, as fractions of the mode's maximum score.
const (
	classicFloorRatio   = 0.65
	deepFloorRatio      = 0.7
	deepsenseFloorRatio = 0.15
	imageFloorRatio     = 0.5
)

const (
	// pcaSampleLimit caps how many leading standard-vector hits feed the
	// principal component.
	pcaSampleLimit = 20
	// collapseResultSize bounds the grouped result set of the
	// positive/negative branch.
	collapseResultSize = 10
	// aggregateGroupLimit bounds the group shortlist of searchaggregate.
	aggregateGroupLimit = 20
)

// PrincipalComponent reduces a sample of vectors to their dominant direction.
type PrincipalComponent func(vectors [][]float64) ([]float64, error)

// Service is the retrieval coordinator behind the /query endpoints.
type Service struct {
	backend    Backend
	gateway    Gateway
	enricher   Enricher
	summarizer Summarizer
	principal  PrincipalComponent
	pool       *ants.Pool
	logger     *zap.Logger
}

// New creates the query service. pool bounds the level-2 deep-search fan-out
// and may be shared across requests; nil means sequential level 2.
func New(
	backend Backend, gateway Gateway, enricher Enricher, summarizer Summarizer,
	principal PrincipalComponent, pool *ants.Pool, logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		backend:    backend,
		gateway:    gateway,
		enricher:   enricher,
		summarizer: summarizer,
		principal:  principal,
		pool:       pool,
		logger:     logger,
	}
}

// fields resolves an embedding mode to the vector fields it queries.
func fields(mode domain.EmbeddingMode) []domain.VectorField {
	switch mode {
	case domain.ModeFineTuned:
		return []domain.VectorField{domain.FieldFineTuned}
	case domain.ModeMixed:
		return []domain.VectorField{domain.FieldStandard, domain.FieldFineTuned}
	default:
		return []domain.VectorField{domain.FieldStandard}
	}
}

// primaryField resolves a mode to a single field for the modes that query
// one vector at a time (deep search, the collapse branch).
func primaryField(mode domain.EmbeddingMode) domain.VectorField {
	if mode == domain.ModeFineTuned {
		return domain.FieldFineTuned
	}
	return domain.FieldStandard
}

// Search runs the classic flow: embed per requested mode, search each field,
// union with per-id best score, drop hits under 0.65x the merged maximum,
// enrich survivors and rank by relevance.
func (s *Service) Search(ctx context.Context, req domain.QueryRequest) ([]Result, error) {
	if err := req.Validate(); err != nil {
		metrics.SearchRequestsTotal.WithLabelValues("classic", "invalid").Inc()
		return nil, err
	}
	mode, err := domain.ParseMode(req.Type)
	if err != nil {
		metrics.SearchRequestsTotal.WithLabelValues("classic", "invalid").Inc()
		return nil, err
	}

	hits, err := s.searchFields(ctx, req, fields(mode))
	if err != nil {
		metrics.SearchRequestsTotal.WithLabelValues("classic", "error").Inc()
		return nil, err
	}

	kept, max := filterFloor(mergeBest(hits...), classicFloorRatio)
	results := s.enrichAll(ctx, kept, max, req.BusinessID, req.UserID)

	metrics.SearchRequestsTotal.WithLabelValues("classic", "ok").Inc()
	return results, nil
}

// searchFields embeds the query and runs the lexical+vector search once per
// field, concurrently. A single field failing is tolerated in mixed mode;
// the request fails only when every field does.
func (s *Service) searchFields(
	ctx context.Context, req domain.QueryRequest, flds []domain.VectorField,
) ([][]domain.ScoredElement, error) {
	hits := make([][]domain.ScoredElement, len(flds))
	errs := make([]error, len(flds))

	var g errgroup.Group
	for i, f := range flds {
		g.Go(func() error {
			vec, err := s.gateway.EmbedText(ctx, req.Query, f)
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", f.Name(), err)
				return nil
			}
			list, err := s.backend.LexicalVector(ctx, vec, req.Query, req.Scope, req.BusinessID, f)
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", f.Name(), err)
				return nil
			}
			hits[i] = list
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for i, err := range errs {
		if err == nil {
			continue
		}
		failed++
		s.logger.Warn("field search failed",
			zap.String("field", flds[i].Name()),
			zap.Error(err))
	}
	if failed == len(flds) {
		return nil, errors.Join(errs...)
	}
	return hits, nil
}

// enrichAll runs live data enrichment over the surviving hits and builds the
// ranked batch. Enrichment may exclude candidates; order is relevance
// descending.
func (s *Service) enrichAll(
	ctx context.Context, hits []domain.ScoredElement, max float64, businessID, userID string,
) []Result {
	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		fragment, keep := s.enricher.Enrich(ctx, h.Element, businessID, userID)
		if !keep {
			continue
		}
		results = append(results, toResult(h.Element, fragment, h.Score, max))
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].RelevanceScore > results[j].RelevanceScore
	})
	return results
}

// SearchCollapsed handles the positive/negative and group-by-externalId
// branch: backend-side scoring max(0, cos(inc) - 0.8*cos(exc) + 1.0) with an
// optional collapse. Each group's representative is enriched and returned in
// the same batch shape as the classic flow, normalized against the group
// score maximum.
func (s *Service) SearchCollapsed(ctx context.Context, req domain.QueryRequest) ([]Result, error) {
	if err := req.Validate(); err != nil {
		metrics.SearchRequestsTotal.WithLabelValues("posneg", "invalid").Inc()
		return nil, err
	}
	mode, err := domain.ParseMode(req.Type)
	if err != nil {
		metrics.SearchRequestsTotal.WithLabelValues("posneg", "invalid").Inc()
		return nil, err
	}
	field := primaryField(mode)

	include, exclude, err := s.embedPair(ctx, req.Query, req.QueryNegative, field)
	if err != nil {
		metrics.SearchRequestsTotal.WithLabelValues("posneg", "error").Inc()
		return nil, err
	}

	groups, err := s.backend.PositiveNegativeCollapse(
		ctx, include, exclude, req.Scope, req.BusinessID, field, req.GroupByExternalID, collapseResultSize,
	)
	if err != nil {
		metrics.SearchRequestsTotal.WithLabelValues("posneg", "error").Inc()
		return nil, err
	}

	var max float64
	for _, g := range groups {
		if g.Score > max {
			max = g.Score
		}
	}

	results := make([]Result, 0, len(groups))
	for _, g := range groups {
		fragment, keep := s.enricher.Enrich(ctx, g.Parent, req.BusinessID, req.UserID)
		if !keep {
			continue
		}
		results = append(results, toResult(g.Parent, fragment, g.Score, max))
	}

	metrics.SearchRequestsTotal.WithLabelValues("posneg", "ok").Inc()
	return results, nil
}

// Aggregate groups chunks by external article id with exact client-side
// cosine rescoring. Groups are returned as-is, no per-document enrichment.
func (s *Service) Aggregate(ctx context.Context, req domain.QueryRequest) ([]domain.AggregatedGroup, error) {
	if err := req.Validate(); err != nil {
		metrics.SearchRequestsTotal.WithLabelValues("aggregate", "invalid").Inc()
		return nil, err
	}
	mode, err := domain.ParseMode(req.Type)
	if err != nil {
		metrics.SearchRequestsTotal.WithLabelValues("aggregate", "invalid").Inc()
		return nil, err
	}
	field := primaryField(mode)

	include, exclude, err := s.embedPair(ctx, req.Query, req.QueryNegative, field)
	if err != nil {
		metrics.SearchRequestsTotal.WithLabelValues("aggregate", "error").Inc()
		return nil, err
	}

	groups, err := s.backend.AggregatedByExternalID(
		ctx, include, exclude, req.Query, req.Scope, req.BusinessID,
		aggregateGroupLimit, field == domain.FieldStandard,
	)
	if err != nil {
		metrics.SearchRequestsTotal.WithLabelValues("aggregate", "error").Inc()
		return nil, err
	}

	metrics.SearchRequestsTotal.WithLabelValues("aggregate", "ok").Inc()
	return groups, nil
}

// embedPair embeds the positive query and, when present, the negative one.
func (s *Service) embedPair(
	ctx context.Context, query, negative string, field domain.VectorField,
) (include, exclude []float64, err error) {
	include, err = s.gateway.EmbedText(ctx, query, field)
	if err != nil {
		return nil, nil, err
	}
	if negative != "" {
		exclude, err = s.gateway.EmbedText(ctx, negative, field)
		if err != nil {
			return nil, nil, err
		}
	}
	return include, exclude, nil
}

// Deepsense refines the query vector to the principal component of the first
// standard-vector hits, then re-queries with it. Fewer than two usable
// vectors is a client error.
func (s *Service) Deepsense(ctx context.Context, req domain.QueryRequest) ([]Result, error) {
	if err := req.Validate(); err != nil {
		metrics.SearchRequestsTotal.WithLabelValues("deepsense", "invalid").Inc()
		return nil, err
	}

	vec, err := s.gateway.EmbedText(ctx, req.Query, domain.FieldStandard)
	if err != nil {
		metrics.SearchRequestsTotal.WithLabelValues("deepsense", "error").Inc()
		return nil, err
	}

	hits, err := s.backend.LexicalVector(ctx, vec, req.Query, req.Scope, req.BusinessID, domain.FieldStandard)
	if err != nil {
		metrics.SearchRequestsTotal.WithLabelValues("deepsense", "error").Inc()
		return nil, err
	}

	samples := make([][]float64, 0, pcaSampleLimit)
	for _, h := range hits {
		if v := h.Element.Vector(domain.FieldStandard); len(v) > 0 {
			samples = append(samples, v)
			if len(samples) == pcaSampleLimit {
				break
			}
		}
	}
	if len(samples) < 2 {
		metrics.SearchRequestsTotal.WithLabelValues("deepsense", "invalid").Inc()
		return nil, fmt.Errorf("%d standard vectors in the first hits: %w",
			len(samples), domain.ErrInsufficientSamples)
	}

	principal, err := s.principal(samples)
	if err != nil {
		metrics.SearchRequestsTotal.WithLabelValues("deepsense", "error").Inc()
		return nil, err
	}

	refined, err := s.backend.VectorOnly(ctx, principal, req.Scope, req.BusinessID, domain.FieldStandard)
	if err != nil {
		metrics.SearchRequestsTotal.WithLabelValues("deepsense", "error").Inc()
		return nil, err
	}

	kept, max := filterFloor(refined, deepsenseFloorRatio)
	results := s.enrichAll(ctx, kept, max, req.BusinessID, req.UserID)

	metrics.SearchRequestsTotal.WithLabelValues("deepsense", "ok").Inc()
	return results, nil
}

// SearchImage embeds the uploaded image and ranks the image index, keeping
// hits at or above half the maximum score. businessID and userID are
// required; image hits carry no per-user enrichment.
func (s *Service) SearchImage(ctx context.Context, data []byte, scope, businessID, userID string) ([]ImageResult, error) {
	if len(data) == 0 {
		metrics.SearchRequestsTotal.WithLabelValues("image", "invalid").Inc()
		return nil, fmt.Errorf("%w: image payload is empty", domain.ErrValidation)
	}
	if businessID == "" || userID == "" {
		metrics.SearchRequestsTotal.WithLabelValues("image", "invalid").Inc()
		return nil, fmt.Errorf("%w: businessId and userId are required", domain.ErrValidation)
	}

	vec, err := s.gateway.EmbedImage(ctx, data, scope)
	if err != nil {
		metrics.SearchRequestsTotal.WithLabelValues("image", "error").Inc()
		return nil, err
	}

	hits, err := s.backend.ImageVector(ctx, vec, scope, businessID)
	if err != nil {
		metrics.SearchRequestsTotal.WithLabelValues("image", "error").Inc()
		return nil, err
	}

	var max float64
	for _, h := range hits {
		if h.Score > max {
			max = h.Score
		}
	}

	results := make([]ImageResult, 0, len(hits))
	for _, h := range hits {
		if max > 0 && h.Score < imageFloorRatio*max {
			continue
		}
		results = append(results, ImageResult{
			ID:             h.Image.ID,
			Scope:          h.Image.Scope,
			Title:          h.Image.Title,
			ImageURL:       h.Image.ImageURL,
			ElementID:      h.Image.ElementID,
			RelevanceScore: relevance(h.Score, max),
		})
	}

	metrics.SearchRequestsTotal.WithLabelValues("image", "ok").Inc()
	return results, nil
}

// GetElement fetches one element by id and enriches it. A single element is
// its own maximum, so relevance is always 100.
func (s *Service) GetElement(ctx context.Context, id, businessID, userID string) (Result, error) {
	el, err := s.backend.GetElementByID(ctx, id)
	if err != nil {
		return Result{}, err
	}

	fragment, keep := s.enricher.Enrich(ctx, el, businessID, userID)
	if !keep {
		return Result{}, fmt.Errorf("element %s: %w", id, domain.ErrElementNotFound)
	}
	return toResult(el, fragment, 1, 1), nil
}
