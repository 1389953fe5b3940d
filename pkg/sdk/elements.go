package querent

import (
	"context"
	"net/http"
	"net/url"
)

// CreateElement indexes a new element. The server assigns an ID when the
// element carries none and embeds the fulltext before returning.
func (c *Client) CreateElement(ctx context.Context, el Element) (Element, error) {
	var created Element
	if err := c.doJSON(ctx, http.MethodPost, "/elements", el, &created); err != nil {
		return Element{}, err
	}
	return created, nil
}

// GetElement fetches a stored element by ID.
func (c *Client) GetElement(ctx context.Context, id string) (Element, error) {
	var el Element
	if err := c.doJSON(ctx, http.MethodGet, "/elements/"+url.PathEscape(id), nil, &el); err != nil {
		return Element{}, err
	}
	return el, nil
}

// ListElements lists elements, optionally filtered by scope and business.
func (c *Client) ListElements(ctx context.Context, scope, businessID string) ([]Element, error) {
	q := url.Values{}
	if scope != "" {
		q.Set("scope", scope)
	}
	if businessID != "" {
		q.Set("businessId", businessID)
	}
	path := "/elements"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var elements []Element
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &elements); err != nil {
		return nil, err
	}
	return elements, nil
}

// UpdateElement replaces an existing element and re-embeds its fulltext.
func (c *Client) UpdateElement(ctx context.Context, el Element) (Element, error) {
	var updated Element
	err := c.doJSON(ctx, http.MethodPut, "/elements/"+url.PathEscape(el.ID), el, &updated)
	if err != nil {
		return Element{}, err
	}
	return updated, nil
}

// DeleteElement removes an element by ID.
func (c *Client) DeleteElement(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/elements/"+url.PathEscape(id), nil, nil)
}

// Reembed regenerates embeddings for every stored element. mode selects the
// vector set: "standard", "fine-tuned" or "mixed"; empty means standard.
func (c *Client) Reembed(ctx context.Context, mode string) (ReembedReport, error) {
	path := "/embeddingbatch"
	if mode != "" {
		path += "?type=" + url.QueryEscape(mode)
	}

	var report ReembedReport
	if err := c.doJSON(ctx, http.MethodPost, path, nil, &report); err != nil {
		return ReembedReport{}, err
	}
	return report, nil
}
