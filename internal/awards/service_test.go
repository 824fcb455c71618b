package awards

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/agentarena/boost-ledger/internal/boost"
	"github.com/agentarena/boost-ledger/internal/stakes"
	dbpkg "github.com/agentarena/boost-ledger/pkg/db"
	"github.com/agentarena/boost-ledger/pkg/db/models"
	pkgerrors "github.com/agentarena/boost-ledger/pkg/errors"
	"github.com/agentarena/boost-ledger/pkg/outbox"
	"github.com/agentarena/boost-ledger/pkg/types"
)

const testWallet = types.Wallet("0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed")

func openAwardsDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(
		&models.BoostBalance{},
		&models.BoostChange{},
		&models.AgentBoostTotal{},
		&models.AgentBoost{},
		&models.Stake{},
		&models.StakeBoostAward{},
		&models.OutboxEvent{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		for _, table := range []string{"stake_boost_awards", "stakes", "agent_boosts", "agent_boost_totals", "boost_changes", "boost_balances", "outbox_events"} {
			_ = conn.Exec("DELETE FROM " + table).Error
		}
	})
	return conn
}

func newAwardsService(t *testing.T, conn *gorm.DB, multiplier decimal.Decimal) (Service, stakes.Service, boost.Service) {
	t.Helper()
	client := dbpkg.NewWithConn(conn)
	ob := outbox.NewService(outbox.NewRepository(conn), nil)

	boostSvc, err := boost.NewService(boost.NewRepository(conn), client, ob, nil, nil, nil)
	if err != nil {
		t.Fatalf("build boost service: %v", err)
	}
	stakeSvc, err := stakes.NewService(stakes.NewRepository(conn))
	if err != nil {
		t.Fatalf("build stakes service: %v", err)
	}
	svc, err := NewService(stakeSvc, boostSvc, client, ob, multiplier, nil)
	if err != nil {
		t.Fatalf("build awards service: %v", err)
	}
	return svc, stakeSvc, boostSvc
}

func seedStake(t *testing.T, stakeSvc stakes.Service, stakeID uint64, amount int64) {
	t.Helper()
	stakedAt := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	_, err := stakeSvc.SyncStake(context.Background(), stakes.SyncStakeInput{
		StakeID:         stakeID,
		Wallet:          testWallet,
		Amount:          decimal.NewFromInt(amount),
		StakedAt:        stakedAt,
		CanUnstakeAfter: stakedAt.AddDate(0, 0, 30),
	})
	if err != nil {
		t.Fatalf("seed stake %d: %v", stakeID, err)
	}
}

func countRows(t *testing.T, conn *gorm.DB, model any) int64 {
	t.Helper()
	var count int64
	if err := conn.Model(model).Count(&count).Error; err != nil {
		t.Fatalf("count rows: %v", err)
	}
	return count
}

func TestAwardStakeAppliesOnceUnderRedelivery(t *testing.T) {
	conn := openAwardsDB(t)
	svc, stakeSvc, boostSvc := newAwardsService(t, conn, decimal.Decimal{})
	ctx := context.Background()
	competitionID := uuid.New()
	seedStake(t, stakeSvc, 7, 1000)

	first, err := svc.AwardStake(ctx, competitionID, 7)
	if err != nil {
		t.Fatalf("award failed: %v", err)
	}
	if first.Outcome != boost.OutcomeApplied {
		t.Fatalf("expected applied, got %s", first.Outcome)
	}
	if !first.Awarded.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("expected award 1000, got %s", first.Awarded)
	}

	second, err := svc.AwardStake(ctx, competitionID, 7)
	if err != nil {
		t.Fatalf("redelivered award failed: %v", err)
	}
	if second.Outcome != boost.OutcomeNoop {
		t.Fatalf("expected noop on redelivery, got %s", second.Outcome)
	}
	if second.ChangeID != first.ChangeID {
		t.Fatalf("redelivery should surface the original change")
	}

	if got := countRows(t, conn, &models.BoostChange{}); got != 1 {
		t.Fatalf("expected one change row, got %d", got)
	}
	if got := countRows(t, conn, &models.StakeBoostAward{}); got != 1 {
		t.Fatalf("expected one award row, got %d", got)
	}

	balance, err := boostSvc.UserBoostBalance(ctx, testWallet, competitionID)
	if err != nil {
		t.Fatalf("balance lookup failed: %v", err)
	}
	if !balance.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("expected balance 1000, got %s", balance)
	}

	// one credit event plus one award event, none added by the redelivery
	if got := countRows(t, conn, &models.OutboxEvent{}); got != 2 {
		t.Fatalf("expected two outbox events, got %d", got)
	}
}

func TestAwardStakeAppliesMultiplier(t *testing.T) {
	conn := openAwardsDB(t)
	svc, stakeSvc, _ := newAwardsService(t, conn, decimal.NewFromInt(2))
	ctx := context.Background()
	competitionID := uuid.New()
	seedStake(t, stakeSvc, 3, 250)

	result, err := svc.AwardStake(ctx, competitionID, 3)
	if err != nil {
		t.Fatalf("award failed: %v", err)
	}
	if !result.Awarded.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("expected award 500 with 2x multiplier, got %s", result.Awarded)
	}

	var award models.StakeBoostAward
	if err := conn.Where("stake_id = ?", 3).First(&award).Error; err != nil {
		t.Fatalf("load award: %v", err)
	}
	if !award.BaseAmount.Equal(decimal.NewFromInt(250)) || !award.Multiplier.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("award audit should keep base and multiplier, got base=%s multiplier=%s", award.BaseAmount, award.Multiplier)
	}
}

func TestAwardStakeUnknownStake(t *testing.T) {
	conn := openAwardsDB(t)
	svc, _, _ := newAwardsService(t, conn, decimal.Decimal{})

	_, err := svc.AwardStake(context.Background(), uuid.New(), 99)
	appErr := pkgerrors.As(err)
	if appErr == nil || appErr.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSweepCompetitionAwardsAllPending(t *testing.T) {
	conn := openAwardsDB(t)
	svc, stakeSvc, _ := newAwardsService(t, conn, decimal.Decimal{})
	ctx := context.Background()
	competitionID := uuid.New()
	for id := uint64(1); id <= 3; id++ {
		seedStake(t, stakeSvc, id, 100)
	}

	// one stake is already paid before the sweep runs
	if _, err := svc.AwardStake(ctx, competitionID, 2); err != nil {
		t.Fatalf("pre-award failed: %v", err)
	}

	stats, err := svc.SweepCompetition(ctx, competitionID, 0)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if stats.Scanned != 2 || stats.Awarded != 2 || stats.Failed != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	if got := countRows(t, conn, &models.StakeBoostAward{}); got != 3 {
		t.Fatalf("expected three award rows, got %d", got)
	}

	again, err := svc.SweepCompetition(ctx, competitionID, 0)
	if err != nil {
		t.Fatalf("second sweep failed: %v", err)
	}
	if again.Scanned != 0 || again.Awarded != 0 {
		t.Fatalf("second sweep should find nothing, got %+v", again)
	}
}

func TestSweepCompetitionBatches(t *testing.T) {
	conn := openAwardsDB(t)
	svc, stakeSvc, _ := newAwardsService(t, conn, decimal.Decimal{})
	ctx := context.Background()
	competitionID := uuid.New()
	for id := uint64(10); id < 15; id++ {
		seedStake(t, stakeSvc, id, 50)
	}

	stats, err := svc.SweepCompetition(ctx, competitionID, 2)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if stats.Awarded != 5 {
		t.Fatalf("expected five awards across batches, got %+v", stats)
	}
}
