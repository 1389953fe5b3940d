// Package ftelement manages the fine-tuning sample collection: labeled
// question/answer pairs gathered per scope to train the fine-tuned embedding
// model.
package ftelement

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tanagra-labs/querent/internal/domain"
)

// Store is the index contract for fine-tuning sample persistence.
type Store interface {
	GetFineTuningElementByID(ctx context.Context, id string) (domain.FineTuningElement, error)
	IndexFineTuningElement(ctx context.Context, el domain.FineTuningElement) error
	DeleteFineTuningElement(ctx context.Context, id string) error
	ListFineTuningElements(ctx context.Context, scope, businessID string) ([]domain.FineTuningElement, error)
	BulkIndexFineTuningElements(ctx context.Context, els []domain.FineTuningElement) (int, error)
}

// Service handles fine-tuning sample CRUD and batch ingestion.
type Service struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

// New creates a fine-tuning sample service.
func New(store Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, logger: logger, now: time.Now}
}

// Create indexes a new sample. Question, answer and scope are required; a
// missing id and timestamp are filled in.
func (s *Service) Create(ctx context.Context, el domain.FineTuningElement) (domain.FineTuningElement, error) {
	if err := validate(el); err != nil {
		return domain.FineTuningElement{}, err
	}
	s.fill(&el)

	if err := s.store.IndexFineTuningElement(ctx, el); err != nil {
		return domain.FineTuningElement{}, err
	}
	s.logger.Info("fine-tuning sample indexed",
		zap.String("sample_id", el.ID),
		zap.String("scope", el.Scope))
	return el, nil
}

// Get fetches a sample by id.
func (s *Service) Get(ctx context.Context, id string) (domain.FineTuningElement, error) {
	return s.store.GetFineTuningElementByID(ctx, id)
}

// List returns samples, optionally filtered by scope and business.
func (s *Service) List(ctx context.Context, scope, businessID string) ([]domain.FineTuningElement, error) {
	return s.store.ListFineTuningElements(ctx, scope, businessID)
}

// Update re-indexes an existing sample. The path id must match the body's.
func (s *Service) Update(ctx context.Context, id string, el domain.FineTuningElement) (domain.FineTuningElement, error) {
	if id != el.ID {
		return domain.FineTuningElement{}, fmt.Errorf("%w: id mismatch", domain.ErrValidation)
	}
	if err := validate(el); err != nil {
		return domain.FineTuningElement{}, err
	}
	if _, err := s.store.GetFineTuningElementByID(ctx, id); err != nil {
		return domain.FineTuningElement{}, err
	}

	if err := s.store.IndexFineTuningElement(ctx, el); err != nil {
		return domain.FineTuningElement{}, err
	}
	return el, nil
}

// Delete removes a sample by id. The id must exist.
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.store.GetFineTuningElementByID(ctx, id); err != nil {
		return err
	}
	return s.store.DeleteFineTuningElement(ctx, id)
}

// CreateBatch bulk-indexes a list of samples and returns how many were
// written. An empty list is a client error.
func (s *Service) CreateBatch(ctx context.Context, els []domain.FineTuningElement) (int, error) {
	if len(els) == 0 {
		return 0, fmt.Errorf("%w: sample list is empty", domain.ErrValidation)
	}
	for i := range els {
		if err := validate(els[i]); err != nil {
			return 0, err
		}
		s.fill(&els[i])
	}

	inserted, err := s.store.BulkIndexFineTuningElements(ctx, els)
	if err != nil {
		return inserted, err
	}
	s.logger.Info("fine-tuning batch indexed", zap.Int("inserted", inserted))
	return inserted, nil
}

func (s *Service) fill(el *domain.FineTuningElement) {
	if el.ID == "" {
		el.ID = uuid.NewString()
	}
	if el.DateTime.IsZero() {
		el.DateTime = s.now()
	}
}

func validate(el domain.FineTuningElement) error {
	if strings.TrimSpace(el.Question) == "" {
		return fmt.Errorf("%w: question cannot be empty", domain.ErrValidation)
	}
	if strings.TrimSpace(el.Answer) == "" {
		return fmt.Errorf("%w: answer cannot be empty", domain.ErrValidation)
	}
	if strings.TrimSpace(el.Scope) == "" {
		return fmt.Errorf("%w: scope is required", domain.ErrValidation)
	}
	return nil
}
