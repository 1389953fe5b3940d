package querent

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Sentinel errors for the common failure classes. Match with errors.Is;
// the full server response is available via errors.As on *APIError.
var (
	ErrValidation          = errors.New("querent: validation failed")
	ErrInsufficientSamples = errors.New("querent: insufficient samples")
	ErrNotFound            = errors.New("querent: not found")
	ErrUnauthorized        = errors.New("querent: unauthorized")
	ErrUnavailable         = errors.New("querent: service unavailable")
)

// APIError is a non-2xx response decoded from the server error envelope.
type APIError struct {
	Status  int
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("querent: %s (%s, http %d)", e.Message, e.Code, e.Status)
}

// Is maps server error codes onto the package sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrValidation:
		return e.Code == "validation_failed" || e.Code == "bad_request"
	case ErrInsufficientSamples:
		return e.Code == "insufficient_samples"
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	case ErrUnavailable:
		return e.Status >= http.StatusInternalServerError
	}
	return false
}

// decodeError turns a non-2xx response into an *APIError. Bodies that are
// not the JSON envelope still produce an error with the raw text.
func decodeError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	apiErr := &APIError{Status: resp.StatusCode}
	if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Message == "" {
		apiErr.Code = "unknown"
		apiErr.Message = string(body)
	}
	return apiErr
}
