package querent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
)

// Search runs a classic ranked search. The request must not set
// QueryNegative or GroupByExternalID; use SearchCollapsed for those.
func (c *Client) Search(ctx context.Context, req SearchRequest) ([]Result, error) {
	if req.QueryNegative != "" || req.GroupByExternalID {
		return nil, fmt.Errorf("%w: use SearchCollapsed for grouped queries", ErrValidation)
	}
	var results []Result
	if err := c.doJSON(ctx, http.MethodPost, "/query/search", req, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// SearchCollapsed runs a positive/negative grouped search and returns the
// ranked group representatives. Setting QueryNegative steers results away
// from that phrasing.
func (c *Client) SearchCollapsed(ctx context.Context, req SearchRequest) ([]Result, error) {
	req.GroupByExternalID = true
	var results []Result
	if err := c.doJSON(ctx, http.MethodPost, "/query/search", req, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// SearchAggregate runs the two-phase aggregation over external IDs.
func (c *Client) SearchAggregate(ctx context.Context, req SearchRequest) ([]Group, error) {
	var groups []Group
	if err := c.doJSON(ctx, http.MethodPost, "/query/searchaggregate", req, &groups); err != nil {
		return nil, err
	}
	return groups, nil
}

// Deepsense runs the PCA-refined search.
func (c *Client) Deepsense(ctx context.Context, req SearchRequest) ([]Result, error) {
	var results []Result
	if err := c.doJSON(ctx, http.MethodPost, "/query/deepsense", req, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// SearchImage ranks indexed images against the given image bytes. businessID
// and userID are required by the server.
func (c *Client) SearchImage(ctx context.Context, image []byte, scope, businessID, userID string) ([]ImageResult, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("image", "image")
	if err != nil {
		return nil, fmt.Errorf("querent: build multipart form: %w", err)
	}
	if _, err := fw.Write(image); err != nil {
		return nil, fmt.Errorf("querent: build multipart form: %w", err)
	}
	if scope != "" {
		mw.WriteField("scope", scope)
	}
	mw.WriteField("businessId", businessID)
	mw.WriteField("userId", userID)
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("querent: build multipart form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/query/searchimage", &buf)
	if err != nil {
		return nil, fmt.Errorf("querent: build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("querent: POST /query/searchimage: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}

	var results []ImageResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("querent: decode response: %w", err)
	}
	return results, nil
}

// QueryElement fetches a single element through the query surface, with
// live data applied under the given identity.
func (c *Client) QueryElement(ctx context.Context, id, businessID, userID string) (Result, error) {
	q := url.Values{}
	if businessID != "" {
		q.Set("businessId", businessID)
	}
	if userID != "" {
		q.Set("userId", userID)
	}
	path := "/query/element/" + url.PathEscape(id)
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var result Result
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &result); err != nil {
		return Result{}, err
	}
	return result, nil
}

// DeepSearch starts a streaming deep search. Results arrive as the server
// produces them; read the stream with Next until io.EOF and always Close it.
// Server-side failures that precede the stream surface here as *APIError.
func (c *Client) DeepSearch(ctx context.Context, req SearchRequest) (*DeepSearchStream, error) {
	resp, err := c.send(ctx, http.MethodPost, "/query/deepsearch", req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, decodeError(resp)
	}

	dec := json.NewDecoder(resp.Body)
	// Consume the opening bracket so Next can decode array members.
	tok, err := dec.Token()
	if err != nil {
		resp.Body.Close()
		return nil, fmt.Errorf("querent: read stream: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		resp.Body.Close()
		return nil, fmt.Errorf("querent: unexpected stream token %v", tok)
	}

	return &DeepSearchStream{body: resp.Body, dec: dec}, nil
}

// DeepSearchStream reads deep-search results incrementally.
type DeepSearchStream struct {
	body io.ReadCloser
	dec  *json.Decoder
	done bool
}

// Next returns the next result, or io.EOF once the stream is exhausted.
func (s *DeepSearchStream) Next() (DeepResult, error) {
	if s.done {
		return DeepResult{}, io.EOF
	}
	if !s.dec.More() {
		// Closing bracket.
		if _, err := s.dec.Token(); err != nil {
			return DeepResult{}, fmt.Errorf("querent: read stream: %w", err)
		}
		s.done = true
		return DeepResult{}, io.EOF
	}

	var r DeepResult
	if err := s.dec.Decode(&r); err != nil {
		return DeepResult{}, fmt.Errorf("querent: decode stream result: %w", err)
	}
	return r, nil
}

// Close releases the underlying connection. Safe to call more than once.
func (s *DeepSearchStream) Close() error {
	s.done = true
	return s.body.Close()
}
