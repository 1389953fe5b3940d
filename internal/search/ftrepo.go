package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tanagra-labs/querent/internal/domain"
)

// GetFineTuningElementByID fetches a single fine-tuning sample.
func (r *Repo) GetFineTuningElementByID(ctx context.Context, id string) (domain.FineTuningElement, error) {
	res, err := r.es.Get(r.ftIndex, id, r.es.Get.WithContext(ctx))
	if err != nil {
		return domain.FineTuningElement{}, fmt.Errorf("%w: get %s: %v", domain.ErrBackendUnavailable, id, err)
	}
	defer res.Body.Close()

	if res.StatusCode == 404 {
		return domain.FineTuningElement{}, fmt.Errorf("%w: %s", domain.ErrElementNotFound, id)
	}
	if res.IsError() {
		return domain.FineTuningElement{}, backendError("get", res)
	}

	var envelope getResponse
	if err := json.NewDecoder(res.Body).Decode(&envelope); err != nil {
		return domain.FineTuningElement{}, fmt.Errorf("decode get response: %w", err)
	}
	if !envelope.Found {
		return domain.FineTuningElement{}, fmt.Errorf("%w: %s", domain.ErrElementNotFound, id)
	}

	var el domain.FineTuningElement
	if err := json.Unmarshal(envelope.Source, &el); err != nil {
		return domain.FineTuningElement{}, fmt.Errorf("decode sample %s: %w", envelope.ID, err)
	}
	if el.ID == "" {
		el.ID = envelope.ID
	}
	return el, nil
}

// IndexFineTuningElement writes a fine-tuning sample under its id.
func (r *Repo) IndexFineTuningElement(ctx context.Context, el domain.FineTuningElement) error {
	body, err := json.Marshal(el)
	if err != nil {
		return fmt.Errorf("encode sample: %w", err)
	}

	res, err := r.es.Index(r.ftIndex, bytes.NewReader(body),
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

// DeleteFineTuningElement removes a fine-tuning sample by id.
func (r *Repo) DeleteFineTuningElement(ctx context.Context, id string) error {
	res, err := r.es.Delete(r.ftIndex, id, r.es.Delete.WithContext(ctx))
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

// ListFineTuningElements returns samples matching the optional scope and
// business filters.
func (r *Repo) ListFineTuningElements(ctx context.Context, scope, businessID string) ([]domain.FineTuningElement, error) {
	resp, err := r.search(ctx, r.ftIndex, listQuery(scope, businessID, chunkFetchSize))
	if err != nil {
		return nil, err
	}
	out := make([]domain.FineTuningElement, 0, len(resp.Hits.Hits))
	for i := range resp.Hits.Hits {
		h := &resp.Hits.Hits[i]
		var el domain.FineTuningElement
		if err := json.Unmarshal(h.Source, &el); err != nil {
			return nil, fmt.Errorf("decode sample %s: %w", h.ID, err)
		}
		if el.ID == "" {
			el.ID = h.ID
		}
		out = append(out, el)
	}
	return out, nil
}

// bulkResponse is the subset of the Elasticsearch bulk envelope we read.
type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		ID     string `json:"_id"`
		Status int    `json:"status"`
		Error  *struct {
			Reason string `json:"reason"`
		} `json:"error"`
	} `json:"items"`
}

// BulkIndexFineTuningElements writes a batch of samples in one bulk request
// and returns how many were indexed. Any per-item rejection fails the whole
// call with the index's reasons.
func (r *Repo) BulkIndexFineTuningElements(ctx context.Context, els []domain.FineTuningElement) (int, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, el := range els {
		meta := map[string]any{"index": map[string]any{"_index": r.ftIndex, "_id": el.ID}}
		if err := enc.Encode(meta); err != nil {
			return 0, fmt.Errorf("encode bulk action: %w", err)
		}
		if err := enc.Encode(el); err != nil {
			return 0, fmt.Errorf("encode sample %s: %w", el.ID, err)
		}
	}

	res, err := r.es.Bulk(&buf, r.es.Bulk.WithContext(ctx))
	if err != nil {
		return 0, fmt.Errorf("%w: bulk: %v", domain.ErrBackendUnavailable, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return 0, backendError("bulk", res)
	}

	var resp bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		return 0, fmt.Errorf("decode bulk response: %w", err)
	}
	if !resp.Errors {
		return len(resp.Items), nil
	}

	var reasons []string
	inserted := 0
	for _, item := range resp.Items {
		for _, op := range item {
			if op.Error != nil {
				reasons = append(reasons, fmt.Sprintf("%s: %s", op.ID, op.Error.Reason))
				continue
			}
			inserted++
		}
	}
	return inserted, fmt.Errorf("%w: bulk rejected %d samples: %s",
		domain.ErrBackendUnavailable, len(reasons), strings.Join(reasons, "; "))
}
