package competitions

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/agentarena/boost-ledger/pkg/db/models"
	pkgerrors "github.com/agentarena/boost-ledger/pkg/errors"
)

// Service exposes competition reads used to gate boost operations.
type Service interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Competition, error)
	BoostWindowOpen(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
	Boostable(ctx context.Context, now time.Time) ([]models.Competition, error)
}

type service struct {
	repo Repository
}

// NewService wires a competition service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("competitions repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Competition, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "competition id is required")
	}
	competition, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if competition == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "competition not found")
	}
	return competition, nil
}

// BoostWindowOpen reports whether boosting is allowed at the given instant.
// A nil start means the window opened with the competition; a nil end means
// it never closes. Both bounds are inclusive.
func (s *service) BoostWindowOpen(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	competition, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if competition.BoostStartDate != nil && now.Before(*competition.BoostStartDate) {
		return false, nil
	}
	if competition.BoostEndDate != nil && now.After(*competition.BoostEndDate) {
		return false, nil
	}
	return true, nil
}

// Boostable lists the competitions whose boost window is open at the instant.
func (s *service) Boostable(ctx context.Context, now time.Time) ([]models.Competition, error) {
	return s.repo.ListBoostable(ctx, now)
}
