package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/agentarena/boost-ledger/internal/awards"
	"github.com/agentarena/boost-ledger/pkg/db/models"
	"github.com/agentarena/boost-ledger/pkg/logger"
)

const defaultAwardBatchSize = 100

// StakeAwardJobParams configure the scheduled award sweep.
type StakeAwardJobParams struct {
	Logger       *logger.Logger
	Competitions competitionLister
	Awards       awardSweeper
	BatchSize    int
}

type competitionLister interface {
	Boostable(ctx context.Context, now time.Time) ([]models.Competition, error)
}

type awardSweeper interface {
	SweepCompetition(ctx context.Context, competitionID uuid.UUID, batchSize int) (*awards.SweepStats, error)
}

// NewStakeAwardJob constructs the stake award sweep cron job.
func NewStakeAwardJob(params StakeAwardJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Competitions == nil {
		return nil, fmt.Errorf("competitions service required")
	}
	if params.Awards == nil {
		return nil, fmt.Errorf("awards service required")
	}
	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = defaultAwardBatchSize
	}
	return &stakeAwardJob{
		logg:         params.Logger,
		competitions: params.Competitions,
		awards:       params.Awards,
		batchSize:    batchSize,
		now:          time.Now,
	}, nil
}

type stakeAwardJob struct {
	logg         *logger.Logger
	competitions competitionLister
	awards       awardSweeper
	batchSize    int
	now          func() time.Time
}

func (j *stakeAwardJob) Name() string { return "stake-award-sweep" }

// Run sweeps every competition whose boost window is open. A failing
// competition does not stop the others; errors are combined at the end.
func (j *stakeAwardJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	competitions, err := j.competitions.Boostable(ctx, now)
	if err != nil {
		return fmt.Errorf("list boostable competitions: %w", err)
	}

	var errs error
	for _, competition := range competitions {
		stats, err := j.awards.SweepCompetition(ctx, competition.ID, j.batchSize)
		logCtx := j.logg.WithCompetitionID(ctx, competition.ID.String())
		if stats != nil {
			logCtx = j.logg.WithFields(logCtx, map[string]any{
				"scanned": stats.Scanned,
				"awarded": stats.Awarded,
				"skipped": stats.Skipped,
				"failed":  stats.Failed,
			})
		}
		if err != nil {
			j.logg.Error(logCtx, "award sweep failed", err)
			errs = multierr.Append(errs, fmt.Errorf("competition %s: %w", competition.ID, err))
			continue
		}
		j.logg.Info(logCtx, "award sweep complete")
	}
	return errs
}
