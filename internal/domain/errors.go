package domain

import "errors"

var (
	// ErrValidation signals a missing or invalid required request field.
	ErrValidation = errors.New("validation failed")
	// ErrElementNotFound signals a missing element on a by-id lookup.
	ErrElementNotFound = errors.New("element not found")
	// ErrScopeNotFound signals an unknown scope id.
	ErrScopeNotFound = errors.New("scope not found")
	// ErrCredentialNotFound signals a missing live-data auth credential.
	ErrCredentialNotFound = errors.New("credential not found")
	// ErrEmbeddingUnavailable signals that the embedding backend returned no vector.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")
	// ErrFineTunedNotConfigured signals a fine-tuned request without fine-tuned settings.
	ErrFineTunedNotConfigured = errors.New("fine-tuned embedding is not configured")
	// ErrBackendUnavailable signals that the search index rejected or never saw the query.
	ErrBackendUnavailable = errors.New("search backend unavailable")
	// ErrInsufficientSamples signals a PCA request over fewer than two vectors.
	ErrInsufficientSamples = errors.New("insufficient embedding vectors for PCA")
	// ErrDimensionMismatch signals vectors of unequal length. With a consistent
	// index schema this is a programming fault, not a user-facing condition.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrSummarizerUnavailable signals a failed summarization call.
	ErrSummarizerUnavailable = errors.New("summarizer unavailable")
)
