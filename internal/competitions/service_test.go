package competitions

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/agentarena/boost-ledger/pkg/db/models"
	pkgerrors "github.com/agentarena/boost-ledger/pkg/errors"
)

type fakeRepository struct {
	competitions map[uuid.UUID]*models.Competition
}

func (f *fakeRepository) WithTx(tx *gorm.DB) Repository {
	return f
}

func (f *fakeRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Competition, error) {
	return f.competitions[id], nil
}

func (f *fakeRepository) ListBoostable(ctx context.Context, at time.Time) ([]models.Competition, error) {
	var rows []models.Competition
	for _, competition := range f.competitions {
		if competition.BoostStartDate != nil && at.Before(*competition.BoostStartDate) {
			continue
		}
		if competition.BoostEndDate != nil && at.After(*competition.BoostEndDate) {
			continue
		}
		rows = append(rows, *competition)
	}
	return rows, nil
}

func (f *fakeRepository) Upsert(ctx context.Context, competition *models.Competition) error {
	f.competitions[competition.ID] = competition
	return nil
}

func newFakeService(t *testing.T, competitions ...*models.Competition) Service {
	t.Helper()
	repo := &fakeRepository{competitions: make(map[uuid.UUID]*models.Competition)}
	for _, competition := range competitions {
		repo.competitions[competition.ID] = competition
	}
	svc, err := NewService(repo)
	if err != nil {
		t.Fatalf("build service: %v", err)
	}
	return svc
}

func TestGetUnknownCompetition(t *testing.T) {
	svc := newFakeService(t)

	_, err := svc.Get(context.Background(), uuid.New())
	appErr := pkgerrors.As(err)
	if appErr == nil || appErr.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}

	_, err = svc.Get(context.Background(), uuid.Nil)
	appErr = pkgerrors.As(err)
	if appErr == nil || appErr.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestBoostWindowBoundsAreInclusive(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 5, 31, 23, 59, 59, 0, time.UTC)
	competition := &models.Competition{
		ID:             uuid.New(),
		Name:           "spring",
		BoostStartDate: &start,
		BoostEndDate:   &end,
	}
	svc := newFakeService(t, competition)
	ctx := context.Background()

	cases := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"before start", start.Add(-time.Second), false},
		{"at start", start, true},
		{"inside", start.AddDate(0, 1, 0), true},
		{"at end", end, true},
		{"after end", end.Add(time.Second), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			open, err := svc.BoostWindowOpen(ctx, competition.ID, tc.at)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if open != tc.want {
				t.Fatalf("expected open=%v at %s", tc.want, tc.at)
			}
		})
	}
}

func TestBoostWindowOpenEndedBounds(t *testing.T) {
	svc := newFakeService(t, &models.Competition{ID: uuid.New(), Name: "open"})
	ctx := context.Background()

	noWindow := &models.Competition{ID: uuid.New(), Name: "always-open"}
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	noEnd := &models.Competition{ID: uuid.New(), Name: "no-end", BoostStartDate: &start}

	svc = newFakeService(t, noWindow, noEnd)

	open, err := svc.BoostWindowOpen(ctx, noWindow.ID, time.Now())
	if err != nil || !open {
		t.Fatalf("competition without window should always be open: open=%v err=%v", open, err)
	}

	open, err = svc.BoostWindowOpen(ctx, noEnd.ID, start.Add(time.Hour))
	if err != nil || !open {
		t.Fatalf("competition without end should stay open: open=%v err=%v", open, err)
	}
	open, err = svc.BoostWindowOpen(ctx, noEnd.ID, start.Add(-time.Hour))
	if err != nil || open {
		t.Fatalf("window should be closed before start: open=%v err=%v", open, err)
	}
}
