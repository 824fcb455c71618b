package boost

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/agentarena/boost-ledger/pkg/logger"
	"github.com/agentarena/boost-ledger/pkg/redis"
)

type cacheStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	AgentTotalsKey(competitionID string) string
}

// TotalsCache is a best-effort read-through cache for per-competition agent
// totals. Failures degrade to database reads and never fail the operation.
type TotalsCache struct {
	store cacheStore
	ttl   time.Duration
	logg  *logger.Logger
}

// NewTotalsCache wires the cache; a zero ttl disables expiry.
func NewTotalsCache(store cacheStore, ttl time.Duration, logg *logger.Logger) *TotalsCache {
	return &TotalsCache{store: store, ttl: ttl, logg: logg}
}

// Get returns the cached totals snapshot, or false on miss or error.
func (c *TotalsCache) Get(ctx context.Context, competitionID uuid.UUID) (map[uuid.UUID]decimal.Decimal, bool) {
	if c == nil || c.store == nil {
		return nil, false
	}
	raw, err := c.store.Get(ctx, c.store.AgentTotalsKey(competitionID.String()))
	if err != nil {
		if !redis.IsNil(err) {
			c.warn(ctx, competitionID, "agent totals cache read failed", err)
		}
		return nil, false
	}

	var encoded map[string]string
	if err := json.Unmarshal([]byte(raw), &encoded); err != nil {
		c.warn(ctx, competitionID, "agent totals cache payload corrupt", err)
		return nil, false
	}

	totals := make(map[uuid.UUID]decimal.Decimal, len(encoded))
	for agent, amount := range encoded {
		agentID, err := uuid.Parse(agent)
		if err != nil {
			c.warn(ctx, competitionID, "agent totals cache payload corrupt", err)
			return nil, false
		}
		value, err := decimal.NewFromString(amount)
		if err != nil {
			c.warn(ctx, competitionID, "agent totals cache payload corrupt", err)
			return nil, false
		}
		totals[agentID] = value
	}
	return totals, true
}

// Set stores the totals snapshot with the configured TTL.
func (c *TotalsCache) Set(ctx context.Context, competitionID uuid.UUID, totals map[uuid.UUID]decimal.Decimal) {
	if c == nil || c.store == nil {
		return
	}
	encoded := make(map[string]string, len(totals))
	for agentID, amount := range totals {
		encoded[agentID.String()] = amount.String()
	}
	payload, err := json.Marshal(encoded)
	if err != nil {
		c.warn(ctx, competitionID, "agent totals cache encode failed", err)
		return
	}
	if err := c.store.Set(ctx, c.store.AgentTotalsKey(competitionID.String()), string(payload), c.ttl); err != nil {
		c.warn(ctx, competitionID, "agent totals cache write failed", err)
	}
}

// Invalidate drops the snapshot after a write changed the totals.
func (c *TotalsCache) Invalidate(ctx context.Context, competitionID uuid.UUID) {
	if c == nil || c.store == nil {
		return
	}
	if err := c.store.Del(ctx, c.store.AgentTotalsKey(competitionID.String())); err != nil {
		c.warn(ctx, competitionID, "agent totals cache invalidation failed", err)
	}
}

func (c *TotalsCache) warn(ctx context.Context, competitionID uuid.UUID, msg string, err error) {
	if c.logg == nil {
		return
	}
	logCtx := c.logg.WithCompetitionID(ctx, competitionID.String())
	logCtx = c.logg.WithField(logCtx, "error", err.Error())
	c.logg.Warn(logCtx, msg)
}
