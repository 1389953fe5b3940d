// Package search adapts the full-text + vector index (Elasticsearch) to the
// retrieval pipeline: lexical+vector hybrid queries, pure vector queries,
// positive/negative scoring with collapse, and the two-phase aggregation by
// external article id.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	elasticsearch "github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"go.uber.org/zap"

	"github.com/tanagra-labs/querent/internal/domain"
	"github.com/tanagra-labs/querent/internal/vecmath"
)

// aggNegativeThreshold drops an entire group when any of its chunks is this
// similar to the negative query.
const aggNegativeThreshold = 0.05

// Repo is the Elasticsearch adapter over the elements, images and
// fine-tuning sample indices.
type Repo struct {
	es         *elasticsearch.Client
	index      string
	imageIndex string
	ftIndex    string
	logger     *zap.Logger
}

// New creates the search repository. Empty index names fall back to
// "elements", "images" and "ftelements".
func New(es *elasticsearch.Client, index, imageIndex, ftIndex string, logger *zap.Logger) *Repo {
	if index == "" {
		index = "elements"
	}
	if imageIndex == "" {
		imageIndex = "images"
	}
	if ftIndex == "" {
		ftIndex = "ftelements"
	}
	return &Repo{es: es, index: index, imageIndex: imageIndex, ftIndex: ftIndex, logger: logger}
}

// LexicalVector runs the hybrid query: lexical should-clauses (title boosted
// 2.0, fulltext 1.2) multiplied by cosine similarity against the named
// vector field.
func (r *Repo) LexicalVector(
	ctx context.Context, vector []float64, query, scope, businessID string, field domain.VectorField,
) ([]domain.ScoredElement, error) {
	resp, err := r.search(ctx, r.index, lexicalVectorQuery(vector, query, scope, businessID, field))
	if err != nil {
		return nil, err
	}
	return toScoredElements(resp)
}

// VectorOnly ranks purely by cosine similarity, no lexical requirement.
func (r *Repo) VectorOnly(
	ctx context.Context, vector []float64, scope, businessID string, field domain.VectorField,
) ([]domain.ScoredElement, error) {
	resp, err := r.search(ctx, r.index, vectorOnlyQuery(vector, scope, businessID, field))
	if err != nil {
		return nil, err
	}
	return toScoredElements(resp)
}

// ImageVector runs the analogous query over the image index.
func (r *Repo) ImageVector(
	ctx context.Context, vector []float64, scope, businessID string,
) ([]domain.ScoredImage, error) {
	resp, err := r.search(ctx, r.imageIndex, imageVectorQuery(vector, scope, businessID))
	if err != nil {
		return nil, err
	}
	return toScoredImages(resp)
}

// PositiveNegativeCollapse scores max(0, cos(include) - 0.8*cos(exclude) + 1.0)
// (or cos(include)+1.0 without an exclude vector) against the given vector
// field, drops hits below 1.05 on the backend, and optionally collapses by
// external id carrying the top chunks as inner hits.
func (r *Repo) PositiveNegativeCollapse(
	ctx context.Context, include, exclude []float64, scope, businessID string,
	field domain.VectorField, collapse bool, size int,
) ([]domain.AggregatedGroup, error) {
	resp, err := r.search(ctx, r.index, posNegCollapseQuery(include, exclude, scope, businessID, field, collapse, size))
	if err != nil {
		return nil, err
	}

	groups := make([]domain.AggregatedGroup, 0, len(resp.Hits.Hits))
	for i := range resp.Hits.Hits {
		h := &resp.Hits.Hits[i]
		parent, err := h.element()
		if err != nil {
			return nil, err
		}

		group := domain.AggregatedGroup{
			ExternalID: parent.ExternalID,
			Parent:     parent,
			Score:      h.score(),
		}

		if inner, ok := h.InnerHits["chunks"]; ok {
			for j := range inner.Hits.Hits {
				ch := &inner.Hits.Hits[j]
				el, err := ch.element()
				if err != nil {
					return nil, err
				}
				group.Chunks = append(group.Chunks, domain.Chunk{
					ID:           el.ID,
					Title:        el.Title,
					ChunkSection: el.ChunkSection,
					Fulltext:     el.Fulltext,
					Score:        ch.score(),
				})
			}
		}

		groups = append(groups, group)
	}
	return groups, nil
}

// AggregatedByExternalID is the two-phase aggregation. Phase 1 shortlists the
// top external ids by a floored hybrid query; phase 2 re-fetches every chunk
// of those ids and recomputes exact cosine similarity client-side, so the
// shortlist floor cannot bias a group's final chunk set. Any group owning a
// chunk whose negative similarity reaches the threshold is dropped entirely.
func (r *Repo) AggregatedByExternalID(
	ctx context.Context, include, exclude []float64, query, scope, businessID string,
	size int, useStandardField bool,
) ([]domain.AggregatedGroup, error) {
	field := domain.FieldFineTuned
	if useStandardField {
		field = domain.FieldStandard
	}

	shortlist, err := r.search(ctx, r.index, shortlistQuery(include, query, scope, businessID, field))
	if err != nil {
		return nil, err
	}

	ids := topExternalIDs(shortlist, size)
	if len(ids) == 0 {
		return []domain.AggregatedGroup{}, nil
	}

	full, err := r.search(ctx, r.index, chunkFetchQuery(ids, scope, businessID))
	if err != nil {
		return nil, err
	}
	chunks, err := toScoredElements(full)
	if err != nil {
		return nil, err
	}

	return buildGroups(chunks, include, exclude, field)
}

// topExternalIDs groups the floored phase-1 hits by external id, orders the
// groups by their maximum chunk score and keeps the first size ids.
func topExternalIDs(resp *searchResponse, size int) []string {
	type groupMax struct {
		id  string
		max float64
	}
	maxByID := make(map[string]float64)
	order := make([]string, 0)

	for i := range resp.Hits.Hits {
		h := &resp.Hits.Hits[i]
		el, err := h.element()
		if err != nil || el.ExternalID == "" {
			continue
		}
		if _, seen := maxByID[el.ExternalID]; !seen {
			order = append(order, el.ExternalID)
		}
		if s := h.score(); s > maxByID[el.ExternalID] {
			maxByID[el.ExternalID] = s
		}
	}

	groups := make([]groupMax, 0, len(order))
	for _, id := range order {
		groups = append(groups, groupMax{id: id, max: maxByID[id]})
	}
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].max > groups[j].max })

	if len(groups) > size {
		groups = groups[:size]
	}
	ids := make([]string, len(groups))
	for i, g := range groups {
		ids[i] = g.id
	}
	return ids
}

// buildGroups recomputes exact cosine similarity per chunk, applies the
// negative-exclusion rule and sorts the surviving groups by their maximum
// positive chunk score.
func buildGroups(
	chunks []domain.ScoredElement, include, exclude []float64, field domain.VectorField,
) ([]domain.AggregatedGroup, error) {
	byExternal := make(map[string]*domain.AggregatedGroup)
	order := make([]string, 0)

	for i := range chunks {
		el := chunks[i].Element
		if el.ExternalID == "" {
			continue
		}
		vec := el.Vector(field)
		if vec == nil {
			continue
		}

		pos, err := vecmath.Cosine(include, vec)
		if err != nil {
			return nil, fmt.Errorf("positive similarity for %s: %w", el.ID, err)
		}
		var neg float64
		if exclude != nil {
			neg, err = vecmath.Cosine(exclude, vec)
			if err != nil {
				return nil, fmt.Errorf("negative similarity for %s: %w", el.ID, err)
			}
		}

		group, ok := byExternal[el.ExternalID]
		if !ok {
			group = &domain.AggregatedGroup{ExternalID: el.ExternalID, MaxPositiveScore: pos, Parent: el}
			byExternal[el.ExternalID] = group
			order = append(order, el.ExternalID)
		}
		if pos > group.MaxPositiveScore || len(group.Chunks) == 0 {
			group.MaxPositiveScore = pos
			group.Parent = el
		}
		if neg > group.MaxNegativeScore {
			group.MaxNegativeScore = neg
		}
		group.Chunks = append(group.Chunks, domain.Chunk{
			ID:           el.ID,
			Title:        el.Title,
			ChunkSection: el.ChunkSection,
			Fulltext:     el.Fulltext,
			Score:        pos,
		})
	}

	groups := make([]domain.AggregatedGroup, 0, len(order))
	for _, id := range order {
		g := byExternal[id]
		if exclude != nil && g.MaxNegativeScore >= aggNegativeThreshold {
			continue
		}
		var sum float64
		for _, c := range g.Chunks {
			sum += c.Score
		}
		g.AvgScore = sum / float64(len(g.Chunks))
		g.Score = g.MaxPositiveScore
		groups = append(groups, *g)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].MaxPositiveScore > groups[j].MaxPositiveScore
	})
	return groups, nil
}

// GetElementByID fetches a single element.
func (r *Repo) GetElementByID(ctx context.Context, id string) (domain.Element, error) {
	res, err := r.es.Get(r.index, id, r.es.Get.WithContext(ctx))
	if err != nil {
		return domain.Element{}, fmt.Errorf("%w: get %s: %v", domain.ErrBackendUnavailable, id, err)
	}
	defer res.Body.Close()

	if res.StatusCode == 404 {
		return domain.Element{}, fmt.Errorf("%w: %s", domain.ErrElementNotFound, id)
	}
	if res.IsError() {
		return domain.Element{}, backendError("get", res)
	}

	var envelope getResponse
	if err := json.NewDecoder(res.Body).Decode(&envelope); err != nil {
		return domain.Element{}, fmt.Errorf("decode get response: %w", err)
	}
	if !envelope.Found {
		return domain.Element{}, fmt.Errorf("%w: %s", domain.ErrElementNotFound, id)
	}

	h := hit{ID: envelope.ID, Source: envelope.Source}
	return h.element()
}

// IndexElement writes an element under its id.
func (r *Repo) IndexElement(ctx context.Context, el domain.Element) error {
	body, err := json.Marshal(el)
	if err != nil {
		return fmt.Errorf("encode element: %w", err)
	}

	res, err := r.es.Index(r.index, bytes.NewReader(body),
		r.es.Index.WithDocumentID(el.ID),
		r.es.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("%w: index %s: %v", domain.ErrBackendUnavailable, el.ID, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return backendError("index", res)
	}
	return nil
}

// DeleteElement removes an element by id.
func (r *Repo) DeleteElement(ctx context.Context, id string) error {
	res, err := r.es.Delete(r.index, id, r.es.Delete.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("%w: delete %s: %v", domain.ErrBackendUnavailable, id, err)
	}
	defer res.Body.Close()

	if res.StatusCode == 404 {
		return fmt.Errorf("%w: %s", domain.ErrElementNotFound, id)
	}
	if res.IsError() {
		return backendError("delete", res)
	}
	return nil
}

// ListElements returns elements matching the optional scope/business filters.
func (r *Repo) ListElements(ctx context.Context, scope, businessID string) ([]domain.Element, error) {
	resp, err := r.search(ctx, r.index, listQuery(scope, businessID, vectorOnlySize))
	if err != nil {
		return nil, err
	}
	out := make([]domain.Element, 0, len(resp.Hits.Hits))
	for i := range resp.Hits.Hits {
		el, err := resp.Hits.Hits[i].element()
		if err != nil {
			return nil, err
		}
		out = append(out, el)
	}
	return out, nil
}

// AllElements returns the full corpus, used by the re-embedding batch.
func (r *Repo) AllElements(ctx context.Context) ([]domain.Element, error) {
	resp, err := r.search(ctx, r.index, listQuery("", "", chunkFetchSize))
	if err != nil {
		return nil, err
	}
	out := make([]domain.Element, 0, len(resp.Hits.Hits))
	for i := range resp.Hits.Hits {
		el, err := resp.Hits.Hits[i].element()
		if err != nil {
			return nil, err
		}
		out = append(out, el)
	}
	return out, nil
}

// Ping verifies the index is reachable.
func (r *Repo) Ping(ctx context.Context) error {
	res, err := r.es.Ping(r.es.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("%w: ping: %v", domain.ErrBackendUnavailable, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return backendError("ping", res)
	}
	io.Copy(io.Discard, res.Body)
	return nil
}

func (r *Repo) search(ctx context.Context, index string, body map[string]any) (*searchResponse, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}

	res, err := r.es.Search(
		r.es.Search.WithContext(ctx),
		r.es.Search.WithIndex(index),
		r.es.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: search %s: %v", domain.ErrBackendUnavailable, index, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, backendError("search "+index, res)
	}

	var resp searchResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	return &resp, nil
}

// backendError surfaces the index's own diagnostic text.
func backendError(op string, res *esapi.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(res.Body, 2048))
	return fmt.Errorf("%w: %s: status %d: %s", domain.ErrBackendUnavailable, op, res.StatusCode, msg)
}
