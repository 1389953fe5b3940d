// Package element implements the indexing lifecycle of retrieval elements:
// create, read, update, delete, with vectors produced at write time.
package element

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tanagra-labs/querent/internal/domain"
)

// Store is the index contract for element persistence.
type Store interface {
	GetElementByID(ctx context.Context, id string) (domain.Element, error)
	IndexElement(ctx context.Context, el domain.Element) error
	DeleteElement(ctx context.Context, id string) error
	ListElements(ctx context.Context, scope, businessID string) ([]domain.Element, error)
}

// Gateway produces embedding vectors for indexing.
type Gateway interface {
	EmbedText(ctx context.Context, text string, field domain.VectorField) ([]float64, error)
}

// ScopeReader resolves a scope's default embedding mode.
type ScopeReader interface {
	GetScope(ctx context.Context, scopeID string) (domain.Scope, error)
}

// Service handles element CRUD. An indexed element with non-empty fulltext
// always carries at least the standard vector; the scope's embedding mode
// decides whether the fine-tuned vector is produced too.
type Service struct {
	store   Store
	gateway Gateway
	scopes  ScopeReader
	logger  *zap.Logger
}

// New creates an element service.
func New(store Store, gateway Gateway, scopes ScopeReader, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, gateway: gateway, scopes: scopes, logger: logger}
}

// Create embeds and indexes a new element. Fulltext and scope are required;
// an embedding failure here is fatal, never a silent skip.
func (s *Service) Create(ctx context.Context, el domain.Element) (domain.Element, error) {
	if strings.TrimSpace(el.Fulltext) == "" {
		return domain.Element{}, fmt.Errorf("%w: fulltext cannot be empty", domain.ErrValidation)
	}
	if strings.TrimSpace(el.Scope) == "" {
		return domain.Element{}, fmt.Errorf("%w: scope is required", domain.ErrValidation)
	}
	if el.ID == "" {
		el.ID = uuid.NewString()
	}

	if err := s.embed(ctx, &el); err != nil {
		return domain.Element{}, err
	}
	if err := s.store.IndexElement(ctx, el); err != nil {
		return domain.Element{}, err
	}

	s.logger.Info("element indexed",
		zap.String("element_id", el.ID),
		zap.String("scope", el.Scope))
	return el, nil
}

// Get fetches an element by id.
func (s *Service) Get(ctx context.Context, id string) (domain.Element, error) {
	return s.store.GetElementByID(ctx, id)
}

// List returns the elements of a scope, optionally filtered by business.
func (s *Service) List(ctx context.Context, scope, businessID string) ([]domain.Element, error) {
	return s.store.ListElements(ctx, scope, businessID)
}

// Update re-embeds and re-indexes an existing element. The id must exist.
func (s *Service) Update(ctx context.Context, el domain.Element) (domain.Element, error) {
	if strings.TrimSpace(el.ID) == "" {
		return domain.Element{}, fmt.Errorf("%w: id is required", domain.ErrValidation)
	}
	if strings.TrimSpace(el.Fulltext) == "" {
		return domain.Element{}, fmt.Errorf("%w: fulltext cannot be empty", domain.ErrValidation)
	}
	if _, err := s.store.GetElementByID(ctx, el.ID); err != nil {
		return domain.Element{}, err
	}

	if err := s.embed(ctx, &el); err != nil {
		return domain.Element{}, err
	}
	if err := s.store.IndexElement(ctx, el); err != nil {
		return domain.Element{}, err
	}
	return el, nil
}

// Delete removes an element by id. The id must exist.
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.store.GetElementByID(ctx, id); err != nil {
		return err
	}
	return s.store.DeleteElement(ctx, id)
}

// embed populates the element's vectors per its scope's embedding mode.
func (s *Service) embed(ctx context.Context, el *domain.Element) error {
	mode := domain.ModeStandard
	if s.scopes != nil {
		if scope, err := s.scopes.GetScope(ctx, el.Scope); err == nil {
			if m, err := domain.ParseMode(scope.Embedding); err == nil {
				mode = m
			}
		}
	}

	// The standard vector is unconditional; the scope's mode only decides
	// whether the fine-tuned vector is added on top.
	vec, err := s.gateway.EmbedText(ctx, el.Fulltext, domain.FieldStandard)
	if err != nil {
		return err
	}
	el.SetVector(domain.FieldStandard, vec)

	if mode == domain.ModeFineTuned || mode == domain.ModeMixed {
		vec, err := s.gateway.EmbedText(ctx, el.Fulltext, domain.FieldFineTuned)
		if err != nil {
			return err
		}
		el.SetVector(domain.FieldFineTuned, vec)
	}
	return nil
}
