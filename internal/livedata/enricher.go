package livedata

import (
	"context"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/tanagra-labs/querent/internal/domain"
	"github.com/tanagra-labs/querent/internal/metrics"
)

// maxBodyBytes caps a live data response body.
const maxBodyBytes = 4 << 20

// ScopeStore resolves scopes and API credentials for live data auth.
type ScopeStore interface {
	GetScope(ctx context.Context, scopeID string) (domain.Scope, error)
	GetBusinessAuth(ctx context.Context, businessID, scopeID string) (domain.AuthCredential, error)
	GetUserAuth(ctx context.Context, userID, scopeID string) (domain.AuthCredential, error)
}

// Enricher fetches an element's live data and produces the rendered fragment.
type Enricher struct {
	scopes     ScopeStore
	httpClient *http.Client
	logger     *zap.Logger
}

// Config holds enricher settings.
type Config struct {
	Scopes       ScopeStore
	FetchTimeout time.Duration
	Logger       *zap.Logger
}

// NewEnricher creates a live data enricher.
func NewEnricher(cfg Config) *Enricher {
	timeout := cfg.FetchTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enricher{
		scopes:     cfg.Scopes,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Enrich fetches and renders live data for one element. It returns the
// rendered fragment (may be empty) and whether the element stays in the
// result set. Fetch, parse and render failures degrade to an empty fragment;
// only a configured validation that fails or errors excludes the element.
func (e *Enricher) Enrich(ctx context.Context, el domain.Element, businessID, userID string) (string, bool) {
	if el.LiveDataURL == "" {
		return "", true
	}

	token := e.resolveToken(ctx, el, businessID, userID)

	raw, err := e.fetch(ctx, el.LiveDataURL, token)
	if err != nil {
		metrics.LiveDataFetchTotal.WithLabelValues("fetch_error").Inc()
		e.logger.Debug("live data fetch failed",
			zap.String("element_id", el.ID),
			zap.Error(err))
		return "", true
	}

	value, err := ParseValue(raw)
	if err != nil {
		metrics.LiveDataFetchTotal.WithLabelValues("parse_error").Inc()
		e.logger.Debug("live data parse failed",
			zap.String("element_id", el.ID),
			zap.Error(err))
		return "", true
	}

	if el.LiveDataValidation != "" {
		ok, err := Validate(el.LiveDataValidation, value)
		if err != nil {
			metrics.LiveDataFetchTotal.WithLabelValues("validation_error").Inc()
			e.logger.Debug("live data validation errored, excluding element",
				zap.String("element_id", el.ID),
				zap.Error(err))
			return "", false
		}
		if !ok {
			metrics.LiveDataFetchTotal.WithLabelValues("validation_rejected").Inc()
			return "", false
		}
	}

	if el.LiveDataTemplate == "" {
		metrics.LiveDataFetchTotal.WithLabelValues("success").Inc()
		return "", true
	}

	fragment, err := Render(el.LiveDataTemplate, value)
	if err != nil {
		metrics.LiveDataFetchTotal.WithLabelValues("render_error").Inc()
		e.logger.Debug("live data render failed",
			zap.String("element_id", el.ID),
			zap.Error(err))
		return "", true
	}

	metrics.LiveDataFetchTotal.WithLabelValues("success").Inc()
	return fragment, true
}

// resolveToken looks up the scope's auth type and the matching credential.
// Any miss along the way means an unauthenticated fetch, never an error.
func (e *Enricher) resolveToken(ctx context.Context, el domain.Element, businessID, userID string) string {
	if e.scopes == nil || el.Scope == "" {
		return ""
	}

	scope, err := e.scopes.GetScope(ctx, el.Scope)
	if err != nil {
		return ""
	}

	var cred domain.AuthCredential
	switch scope.LiveDataAuthType {
	case domain.AuthTypeBusiness:
		if businessID == "" {
			return ""
		}
		cred, err = e.scopes.GetBusinessAuth(ctx, businessID, el.Scope)
	case domain.AuthTypeUser:
		if userID == "" {
			return ""
		}
		cred, err = e.scopes.GetUserAuth(ctx, userID, el.Scope)
	default:
		return ""
	}
	if err != nil {
		return ""
	}
	return cred.APIKey
}

func (e *Enricher) fetch(ctx context.Context, url, token string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, &statusError{code: resp.StatusCode}
	}

	return io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return "live data endpoint returned " + http.StatusText(e.code)
}
