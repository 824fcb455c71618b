package boost

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	dbpkg "github.com/agentarena/boost-ledger/pkg/db"
	"github.com/agentarena/boost-ledger/pkg/db/models"
	pkgerrors "github.com/agentarena/boost-ledger/pkg/errors"
	"github.com/agentarena/boost-ledger/pkg/outbox"
	"github.com/agentarena/boost-ledger/pkg/types"
)

const testWallet = types.Wallet("0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed")

func openLedgerDB(t *testing.T) *gorm.DB {
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
		&models.OutboxEvent{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		for _, table := range []string{"agent_boosts", "agent_boost_totals", "boost_changes", "boost_balances", "outbox_events"} {
			_ = conn.Exec("DELETE FROM " + table).Error
		}
	})
	return conn
}

func newLedgerService(t *testing.T, conn *gorm.DB, cache totalsCache) Service {
	t.Helper()
	client := dbpkg.NewWithConn(conn)
	ob := outbox.NewService(outbox.NewRepository(conn), nil)
	svc, err := NewService(NewRepository(conn), client, ob, cache, nil, nil)
	if err != nil {
		t.Fatalf("build service: %v", err)
	}
	return svc
}

func increaseInput(competitionID uuid.UUID, amount int64, key []byte) IncreaseInput {
	return IncreaseInput{
		Wallet:         testWallet,
		CompetitionID:  competitionID,
		Amount:         decimal.NewFromInt(amount),
		Meta:           json.RawMessage(`{"source":"test"}`),
		IdempotencyKey: key,
	}
}

func boostInput(userID, agentID, competitionID uuid.UUID, amount int64, key []byte) BoostAgentInput {
	return BoostAgentInput{
		UserID:         userID,
		Wallet:         testWallet,
		AgentID:        agentID,
		CompetitionID:  competitionID,
		Amount:         decimal.NewFromInt(amount),
		IdempotencyKey: key,
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

func TestIncreaseAppliesOnceUnderRedelivery(t *testing.T) {
	conn := openLedgerDB(t)
	svc := newLedgerService(t, conn, nil)
	ctx := context.Background()
	competitionID := uuid.New()
	key := ReasonKey(competitionID, "signup-grant")

	first, err := svc.Increase(ctx, increaseInput(competitionID, 100, key), nil)
	if err != nil {
		t.Fatalf("increase failed: %v", err)
	}
	if first.Outcome != OutcomeApplied {
		t.Fatalf("expected applied, got %s", first.Outcome)
	}
	if !first.Balance.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected balance 100, got %s", first.Balance)
	}

	second, err := svc.Increase(ctx, increaseInput(competitionID, 100, key), nil)
	if err != nil {
		t.Fatalf("replayed increase failed: %v", err)
	}
	if second.Outcome != OutcomeNoop {
		t.Fatalf("expected noop on replay, got %s", second.Outcome)
	}
	if second.ChangeID != first.ChangeID {
		t.Fatalf("replay should reference the original change")
	}
	if !second.Balance.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("replay moved the balance: %s", second.Balance)
	}

	if got := countRows(t, conn, &models.BoostChange{}); got != 1 {
		t.Fatalf("expected a single change row, got %d", got)
	}
	// only the applied call emits an event
	if got := countRows(t, conn, &models.OutboxEvent{}); got != 1 {
		t.Fatalf("expected a single outbox event, got %d", got)
	}
}

func TestIncreaseAccumulatesAcrossKeys(t *testing.T) {
	conn := openLedgerDB(t)
	svc := newLedgerService(t, conn, nil)
	ctx := context.Background()
	competitionID := uuid.New()

	if _, err := svc.Increase(ctx, increaseInput(competitionID, 100, ReasonKey(competitionID, "grant-a")), nil); err != nil {
		t.Fatalf("first increase failed: %v", err)
	}
	result, err := svc.Increase(ctx, increaseInput(competitionID, 50, ReasonKey(competitionID, "grant-b")), nil)
	if err != nil {
		t.Fatalf("second increase failed: %v", err)
	}
	if !result.Balance.Equal(decimal.NewFromInt(150)) {
		t.Fatalf("expected balance 150, got %s", result.Balance)
	}

	balance, err := svc.UserBoostBalance(ctx, testWallet, competitionID)
	if err != nil {
		t.Fatalf("read balance: %v", err)
	}
	if !balance.Equal(decimal.NewFromInt(150)) {
		t.Fatalf("expected read balance 150, got %s", balance)
	}
}

func TestIncreaseValidation(t *testing.T) {
	conn := openLedgerDB(t)
	svc := newLedgerService(t, conn, nil)
	ctx := context.Background()
	competitionID := uuid.New()
	key := ReasonKey(competitionID, "grant")

	cases := []struct {
		name  string
		input IncreaseInput
	}{
		{"bad wallet", IncreaseInput{Wallet: "nope", CompetitionID: competitionID, Amount: decimal.NewFromInt(1), IdempotencyKey: key}},
		{"missing competition", IncreaseInput{Wallet: testWallet, Amount: decimal.NewFromInt(1), IdempotencyKey: key}},
		{"zero amount", IncreaseInput{Wallet: testWallet, CompetitionID: competitionID, Amount: decimal.Zero, IdempotencyKey: key}},
		{"negative amount", IncreaseInput{Wallet: testWallet, CompetitionID: competitionID, Amount: decimal.NewFromInt(-5), IdempotencyKey: key}},
		{"fractional amount", IncreaseInput{Wallet: testWallet, CompetitionID: competitionID, Amount: decimal.NewFromFloat(1.5), IdempotencyKey: key}},
		{"missing key", IncreaseInput{Wallet: testWallet, CompetitionID: competitionID, Amount: decimal.NewFromInt(1)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Increase(ctx, tc.input, nil)
			appErr := pkgerrors.As(err)
			if appErr == nil || appErr.Code() != pkgerrors.CodeValidation {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}

	if got := countRows(t, conn, &models.BoostBalance{}); got != 0 {
		t.Fatalf("validation failures must not create balances, found %d", got)
	}
}

func TestBoostAgentDebitsAndAggregates(t *testing.T) {
	conn := openLedgerDB(t)
	svc := newLedgerService(t, conn, nil)
	ctx := context.Background()
	competitionID := uuid.New()
	userID := uuid.New()
	agentA := uuid.New()
	agentB := uuid.New()

	if _, err := svc.Increase(ctx, increaseInput(competitionID, 100, ReasonKey(competitionID, "grant")), nil); err != nil {
		t.Fatalf("seed increase failed: %v", err)
	}

	first, err := svc.BoostAgent(ctx, boostInput(userID, agentA, competitionID, 40, ClientKey("boost", "b1")), nil)
	if err != nil {
		t.Fatalf("boost failed: %v", err)
	}
	if first.Outcome != OutcomeApplied || !first.Balance.Equal(decimal.NewFromInt(60)) {
		t.Fatalf("unexpected first boost result %+v", first)
	}

	if _, err := svc.BoostAgent(ctx, boostInput(userID, agentA, competitionID, 15, ClientKey("boost", "b2")), nil); err != nil {
		t.Fatalf("boost failed: %v", err)
	}
	if _, err := svc.BoostAgent(ctx, boostInput(userID, agentB, competitionID, 5, ClientKey("boost", "b3")), nil); err != nil {
		t.Fatalf("boost failed: %v", err)
	}

	totals, err := svc.AgentBoostTotals(ctx, competitionID)
	if err != nil {
		t.Fatalf("read totals: %v", err)
	}
	if !totals[agentA].Equal(decimal.NewFromInt(55)) || !totals[agentB].Equal(decimal.NewFromInt(5)) {
		t.Fatalf("unexpected totals %v", totals)
	}

	boosts, err := svc.UserBoosts(ctx, userID, competitionID)
	if err != nil {
		t.Fatalf("read user boosts: %v", err)
	}
	if !boosts[agentA].Equal(decimal.NewFromInt(55)) || !boosts[agentB].Equal(decimal.NewFromInt(5)) {
		t.Fatalf("unexpected user boosts %v", boosts)
	}

	// conservation: the change log must reproduce the stored balance
	repo := NewRepository(conn)
	balance, err := repo.FindBalance(ctx, string(testWallet), competitionID)
	if err != nil || balance == nil {
		t.Fatalf("find balance: %v", err)
	}
	changes, err := repo.ListChanges(ctx, balance.ID)
	if err != nil {
		t.Fatalf("list changes: %v", err)
	}
	sum := decimal.Zero
	for _, change := range changes {
		sum = sum.Add(change.DeltaAmount)
	}
	if !sum.Equal(balance.Balance) {
		t.Fatalf("change log sums to %s but balance is %s", sum, balance.Balance)
	}
	if !balance.Balance.Equal(decimal.NewFromInt(40)) {
		t.Fatalf("expected final balance 40, got %s", balance.Balance)
	}
}

func TestBoostAgentReplayIsNoop(t *testing.T) {
	conn := openLedgerDB(t)
	svc := newLedgerService(t, conn, nil)
	ctx := context.Background()
	competitionID := uuid.New()
	userID := uuid.New()
	agentID := uuid.New()
	key := ClientKey("boost", "once")

	if _, err := svc.Increase(ctx, increaseInput(competitionID, 100, ReasonKey(competitionID, "grant")), nil); err != nil {
		t.Fatalf("seed increase failed: %v", err)
	}

	first, err := svc.BoostAgent(ctx, boostInput(userID, agentID, competitionID, 30, key), nil)
	if err != nil {
		t.Fatalf("boost failed: %v", err)
	}
	second, err := svc.BoostAgent(ctx, boostInput(userID, agentID, competitionID, 30, key), nil)
	if err != nil {
		t.Fatalf("replayed boost failed: %v", err)
	}
	if second.Outcome != OutcomeNoop {
		t.Fatalf("expected noop on replay, got %s", second.Outcome)
	}
	if second.ChangeID != first.ChangeID {
		t.Fatalf("replay should reference the original change")
	}
	if !second.Balance.Equal(decimal.NewFromInt(70)) {
		t.Fatalf("replay moved the balance: %s", second.Balance)
	}

	totals, err := svc.AgentBoostTotals(ctx, competitionID)
	if err != nil {
		t.Fatalf("read totals: %v", err)
	}
	if !totals[agentID].Equal(decimal.NewFromInt(30)) {
		t.Fatalf("replay moved the aggregate: %v", totals)
	}
	if got := countRows(t, conn, &models.AgentBoost{}); got != 1 {
		t.Fatalf("expected one agent boost row, got %d", got)
	}
}

func TestBoostAgentInsufficientBalanceFailsHard(t *testing.T) {
	conn := openLedgerDB(t)
	svc := newLedgerService(t, conn, nil)
	ctx := context.Background()
	competitionID := uuid.New()
	userID := uuid.New()
	agentID := uuid.New()

	// no balance row at all counts as insufficient
	_, err := svc.BoostAgent(ctx, boostInput(userID, agentID, competitionID, 10, ClientKey("boost", "none")), nil)
	appErr := pkgerrors.As(err)
	if appErr == nil || appErr.Code() != pkgerrors.CodeInsufficientBalance {
		t.Fatalf("expected insufficient balance error, got %v", err)
	}

	if _, err := svc.Increase(ctx, increaseInput(competitionID, 30, ReasonKey(competitionID, "grant")), nil); err != nil {
		t.Fatalf("seed increase failed: %v", err)
	}

	_, err = svc.BoostAgent(ctx, boostInput(userID, agentID, competitionID, 50, ClientKey("boost", "big")), nil)
	appErr = pkgerrors.As(err)
	if appErr == nil || appErr.Code() != pkgerrors.CodeInsufficientBalance {
		t.Fatalf("expected insufficient balance error, got %v", err)
	}

	// the failed attempt must leave no trace
	balance, err := svc.UserBoostBalance(ctx, testWallet, competitionID)
	if err != nil {
		t.Fatalf("read balance: %v", err)
	}
	if !balance.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("failed boost moved the balance: %s", balance)
	}
	if got := countRows(t, conn, &models.BoostChange{}); got != 1 {
		t.Fatalf("failed boost left a change row behind: %d rows", got)
	}
	if got := countRows(t, conn, &models.AgentBoost{}); got != 0 {
		t.Fatalf("failed boost created an agent boost row")
	}
	if got := countRows(t, conn, &models.AgentBoostTotal{}); got != 0 {
		t.Fatalf("failed boost touched the aggregates")
	}

	// and a retry with the same key after the failure still works
	result, err := svc.BoostAgent(ctx, boostInput(userID, agentID, competitionID, 20, ClientKey("boost", "big")), nil)
	if err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
	if result.Outcome != OutcomeApplied || !result.Balance.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("unexpected retry result %+v", result)
	}
}

func TestCallerTransactionCouplesLedgerWrites(t *testing.T) {
	conn := openLedgerDB(t)
	svc := newLedgerService(t, conn, nil)
	ctx := context.Background()
	client := dbpkg.NewWithConn(conn)
	competitionID := uuid.New()

	sentinel := errors.New("caller failure")
	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		result, err := svc.Increase(ctx, increaseInput(competitionID, 75, ReasonKey(competitionID, "joined")), tx)
		if err != nil {
			return err
		}
		if result.Outcome != OutcomeApplied {
			t.Fatalf("expected applied inside caller tx, got %s", result.Outcome)
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel, got %v", err)
	}

	// the caller's rollback must take the ledger write with it
	balance, err := svc.UserBoostBalance(ctx, testWallet, competitionID)
	if err != nil {
		t.Fatalf("read balance: %v", err)
	}
	if !balance.IsZero() {
		t.Fatalf("rolled-back increase persisted: %s", balance)
	}
	if got := countRows(t, conn, &models.BoostChange{}); got != 0 {
		t.Fatalf("rolled-back change persisted")
	}

	// the same operation committed by the caller is visible afterwards
	err = client.WithTx(ctx, func(tx *gorm.DB) error {
		_, err := svc.Increase(ctx, increaseInput(competitionID, 75, ReasonKey(competitionID, "joined")), tx)
		return err
	})
	if err != nil {
		t.Fatalf("committed increase failed: %v", err)
	}
	balance, err = svc.UserBoostBalance(ctx, testWallet, competitionID)
	if err != nil {
		t.Fatalf("read balance: %v", err)
	}
	if !balance.Equal(decimal.NewFromInt(75)) {
		t.Fatalf("expected 75 after commit, got %s", balance)
	}
}

func TestUserBoostBalanceMissingRowIsZero(t *testing.T) {
	conn := openLedgerDB(t)
	svc := newLedgerService(t, conn, nil)

	balance, err := svc.UserBoostBalance(context.Background(), testWallet, uuid.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !balance.IsZero() {
		t.Fatalf("expected zero for missing balance, got %s", balance)
	}
}

func TestCompetitionsBoostedBetweenBoundsAreInclusive(t *testing.T) {
	conn := openLedgerDB(t)
	svc := newLedgerService(t, conn, nil)
	ctx := context.Background()
	userID := uuid.New()
	agentID := uuid.New()

	seasonStart := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	seasonEnd := time.Date(2026, 5, 31, 23, 59, 59, 0, time.UTC)

	compAtStart := uuid.New()
	compAtEnd := uuid.New()
	compBefore := uuid.New()

	boostAt := func(competitionID uuid.UUID, at time.Time, ref string) {
		t.Helper()
		if _, err := svc.Increase(ctx, increaseInput(competitionID, 10, ReasonKey(competitionID, "grant")), nil); err != nil {
			t.Fatalf("seed increase failed: %v", err)
		}
		result, err := svc.BoostAgent(ctx, boostInput(userID, agentID, competitionID, 10, ClientKey("boost", ref)), nil)
		if err != nil {
			t.Fatalf("boost failed: %v", err)
		}
		if err := conn.Model(&models.AgentBoost{}).
			Where("change_id = ?", result.ChangeID).
			UpdateColumn("created_at", at).Error; err != nil {
			t.Fatalf("set boost time: %v", err)
		}
	}

	boostAt(compAtStart, seasonStart, "s1")
	boostAt(compAtEnd, seasonEnd, "s2")
	boostAt(compBefore, seasonStart.Add(-time.Second), "s3")

	result, err := svc.CompetitionsBoostedBetween(ctx, seasonStart, seasonEnd)
	if err != nil {
		t.Fatalf("season query failed: %v", err)
	}
	comps := result[string(testWallet)]
	if len(comps) != 2 {
		t.Fatalf("expected 2 competitions inside the window, got %v", comps)
	}
	seen := map[uuid.UUID]bool{}
	for _, id := range comps {
		seen[id] = true
	}
	if !seen[compAtStart] || !seen[compAtEnd] {
		t.Fatalf("boundary boosts must be included: %v", comps)
	}
	if seen[compBefore] {
		t.Fatalf("boost before the window leaked in")
	}

	empty, err := svc.CompetitionsBoostedBetween(ctx, seasonEnd, seasonStart)
	if err != nil {
		t.Fatalf("inverted window should not error: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("inverted window should be empty, got %v", empty)
	}
}

type fakeTotalsCache struct {
	data        map[uuid.UUID]map[uuid.UUID]decimal.Decimal
	sets        int
	hits        int
	invalidated int
}

func newFakeTotalsCache() *fakeTotalsCache {
	return &fakeTotalsCache{data: make(map[uuid.UUID]map[uuid.UUID]decimal.Decimal)}
}

func (f *fakeTotalsCache) Get(ctx context.Context, competitionID uuid.UUID) (map[uuid.UUID]decimal.Decimal, bool) {
	totals, ok := f.data[competitionID]
	if ok {
		f.hits++
	}
	return totals, ok
}

func (f *fakeTotalsCache) Set(ctx context.Context, competitionID uuid.UUID, totals map[uuid.UUID]decimal.Decimal) {
	f.sets++
	f.data[competitionID] = totals
}

func (f *fakeTotalsCache) Invalidate(ctx context.Context, competitionID uuid.UUID) {
	f.invalidated++
	delete(f.data, competitionID)
}

func TestAgentBoostTotalsReadThroughCache(t *testing.T) {
	conn := openLedgerDB(t)
	cache := newFakeTotalsCache()
	svc := newLedgerService(t, conn, cache)
	ctx := context.Background()
	competitionID := uuid.New()
	userID := uuid.New()
	agentID := uuid.New()

	if _, err := svc.Increase(ctx, increaseInput(competitionID, 100, ReasonKey(competitionID, "grant")), nil); err != nil {
		t.Fatalf("seed increase failed: %v", err)
	}
	if _, err := svc.BoostAgent(ctx, boostInput(userID, agentID, competitionID, 40, ClientKey("boost", "c1")), nil); err != nil {
		t.Fatalf("boost failed: %v", err)
	}

	// first read misses and fills the cache, second read hits
	if _, err := svc.AgentBoostTotals(ctx, competitionID); err != nil {
		t.Fatalf("read totals: %v", err)
	}
	if cache.sets != 1 {
		t.Fatalf("expected cache fill, sets=%d", cache.sets)
	}
	if _, err := svc.AgentBoostTotals(ctx, competitionID); err != nil {
		t.Fatalf("read totals: %v", err)
	}
	if cache.hits != 1 {
		t.Fatalf("expected cache hit, hits=%d", cache.hits)
	}

	// a write invalidates so the next read sees fresh totals
	if _, err := svc.BoostAgent(ctx, boostInput(userID, agentID, competitionID, 10, ClientKey("boost", "c2")), nil); err != nil {
		t.Fatalf("boost failed: %v", err)
	}
	if cache.invalidated != 2 {
		t.Fatalf("expected invalidation per applied boost, got %d", cache.invalidated)
	}
	totals, err := svc.AgentBoostTotals(ctx, competitionID)
	if err != nil {
		t.Fatalf("read totals: %v", err)
	}
	if !totals[agentID].Equal(decimal.NewFromInt(50)) {
		t.Fatalf("expected fresh total 50, got %v", totals)
	}
}
