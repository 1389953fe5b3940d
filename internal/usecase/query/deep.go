package query

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/tanagra-labs/querent/internal/domain"
	"github.com/tanagra-labs/querent/internal/metrics"
)

// deleteSentinel in a summary drops the candidate from the deep stream.
const deleteSentinel = "@@DELETE@@"

// DeepSearch runs the two-level expansion. Validation, the query embedding
// and the level-1 search happen before the channel is returned, so those
// failures still map to an HTTP status. The channel then carries level-1
// results followed by level-2 expansions in completion order, and is closed
// when the expansion finishes or ctx is cancelled.
func (s *Service) DeepSearch(ctx context.Context, req domain.QueryRequest) (<-chan domain.DeepResult, error) {
	if err := req.Validate(); err != nil {
		metrics.SearchRequestsTotal.WithLabelValues("deep", "invalid").Inc()
		return nil, err
	}
	mode, err := domain.ParseMode(req.Type)
	if err != nil {
		metrics.SearchRequestsTotal.WithLabelValues("deep", "invalid").Inc()
		return nil, err
	}
	field := primaryField(mode)

	vec, err := s.gateway.EmbedText(ctx, req.Query, field)
	if err != nil {
		metrics.SearchRequestsTotal.WithLabelValues("deep", "error").Inc()
		return nil, err
	}

	hits, err := s.backend.LexicalVector(ctx, vec, req.Query, req.Scope, req.BusinessID, field)
	if err != nil {
		metrics.SearchRequestsTotal.WithLabelValues("deep", "error").Inc()
		return nil, err
	}
	level1, _ := filterFloor(hits, deepFloorRatio)

	out := make(chan domain.DeepResult)
	go s.runDeep(ctx, req, field, level1, out)
	return out, nil
}

// deepState is the per-request dedup set, shared by the concurrent level-2
// workers.
type deepState struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// claim records an id, reporting whether it was new.
func (d *deepState) claim(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[id]; ok {
		return false
	}
	d.seen[id] = struct{}{}
	return true
}

func (s *Service) runDeep(
	ctx context.Context, req domain.QueryRequest, field domain.VectorField,
	level1 []domain.ScoredElement, out chan<- domain.DeepResult,
) {
	defer close(out)

	state := &deepState{seen: make(map[string]struct{})}

	// Level 1: sequential so the stream starts promptly and parents emit in
	// score order.
	var parents []domain.DeepResult
	for _, h := range level1 {
		if ctx.Err() != nil {
			metrics.SearchRequestsTotal.WithLabelValues("deep", "cancelled").Inc()
			return
		}
		if !state.claim(h.Element.ID) {
			continue
		}
		res, ok := s.deepCandidate(ctx, h.Element, req, nil)
		if !ok {
			continue
		}
		if !send(ctx, out, res) {
			metrics.SearchRequestsTotal.WithLabelValues("deep", "cancelled").Inc()
			return
		}
		parents = append(parents, res)
	}

	// Level 2: each parent's summary becomes the query. Bounded fan-out via
	// the shared pool; results emit as they complete.
	var wg sync.WaitGroup
	for _, parent := range parents {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		run := func() {
			defer wg.Done()
			s.expandParent(ctx, req, field, parent, state, out)
		}
		if s.pool != nil {
			if err := s.pool.Submit(run); err != nil {
				wg.Done()
				s.logger.Warn("deep level-2 submit failed", zap.Error(err))
			}
		} else {
			run()
		}
	}
	wg.Wait()

	if ctx.Err() != nil {
		metrics.SearchRequestsTotal.WithLabelValues("deep", "cancelled").Inc()
		return
	}
	metrics.SearchRequestsTotal.WithLabelValues("deep", "ok").Inc()
}

// expandParent re-embeds a level-1 parent's summary, re-searches with the
// original query text, and emits every not-yet-seen survivor with parentLevel
// set. Level 2 carries no score floor; dedup alone bounds the expansion.
func (s *Service) expandParent(
	ctx context.Context, req domain.QueryRequest, field domain.VectorField,
	parent domain.DeepResult, state *deepState, out chan<- domain.DeepResult,
) {
	vec, err := s.gateway.EmbedText(ctx, parent.Summary, field)
	if err != nil {
		s.logger.Warn("deep level-2 embedding failed",
			zap.String("parent_id", parent.ID),
			zap.Error(err))
		return
	}

	hits, err := s.backend.LexicalVector(ctx, vec, req.Query, req.Scope, req.BusinessID, field)
	if err != nil {
		s.logger.Warn("deep level-2 search failed",
			zap.String("parent_id", parent.ID),
			zap.Error(err))
		return
	}

	parentID := parent.ID
	for _, h := range hits {
		if ctx.Err() != nil {
			return
		}
		if !state.claim(h.Element.ID) {
			continue
		}
		res, ok := s.deepCandidate(ctx, h.Element, req, &parentID)
		if !ok {
			continue
		}
		if !send(ctx, out, res) {
			return
		}
	}
}

// deepCandidate enriches and summarizes one element. A summarizer failure or
// the deletion sentinel skips the candidate; enrichment exclusion does too.
func (s *Service) deepCandidate(
	ctx context.Context, el domain.Element, req domain.QueryRequest, parentLevel *string,
) (domain.DeepResult, bool) {
	fragment, keep := s.enricher.Enrich(ctx, el, req.BusinessID, req.UserID)
	if !keep {
		return domain.DeepResult{}, false
	}

	text := el.Fulltext
	if fragment != "" {
		text += "\n" + fragment
	}

	summary, err := s.summarizer.Summarize(ctx, text, req.Query)
	if err != nil {
		s.logger.Warn("summarization failed, skipping candidate",
			zap.String("element_id", el.ID),
			zap.Error(err))
		return domain.DeepResult{}, false
	}
	if strings.Contains(summary, deleteSentinel) {
		return domain.DeepResult{}, false
	}

	return domain.DeepResult{
		ID:          el.ID,
		Commands:    el.Commands,
		Summary:     summary,
		ParentLevel: parentLevel,
	}, true
}

// send delivers a result unless the request is cancelled first.
func send(ctx context.Context, out chan<- domain.DeepResult, res domain.DeepResult) bool {
	select {
	case out <- res:
		return true
	case <-ctx.Done():
		return false
	}
}
