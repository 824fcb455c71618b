package controllers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/agentarena/boost-ledger/api/middleware"
	"github.com/agentarena/boost-ledger/api/responses"
	"github.com/agentarena/boost-ledger/api/validators"
	"github.com/agentarena/boost-ledger/internal/boost"
	"github.com/agentarena/boost-ledger/internal/competitions"
	pkgerrors "github.com/agentarena/boost-ledger/pkg/errors"
	"github.com/agentarena/boost-ledger/pkg/logger"
	"github.com/agentarena/boost-ledger/pkg/types"
	"github.com/go-chi/chi/v5"
)

type increaseRequest struct {
	CompetitionID  string          `json:"competitionId" validate:"required,uuid"`
	Amount         string          `json:"amount" validate:"required"`
	Reason         string          `json:"reason" validate:"omitempty,max=120"`
	IdempotencyKey string          `json:"idempotencyKey" validate:"omitempty,min=8,max=128"`
	Meta           json.RawMessage `json:"meta,omitempty"`
}

type boostAgentRequest struct {
	CompetitionID  string          `json:"competitionId" validate:"required,uuid"`
	Amount         string          `json:"amount" validate:"required"`
	IdempotencyKey string          `json:"idempotencyKey" validate:"required,min=8,max=128"`
	Meta           json.RawMessage `json:"meta,omitempty"`
}

type boostResult struct {
	Outcome  string          `json:"outcome"`
	ChangeID uuid.UUID       `json:"changeId"`
	Balance  decimal.Decimal `json:"balance"`
}

func toBoostResult(result *boost.Result) boostResult {
	return boostResult{
		Outcome:  string(result.Outcome),
		ChangeID: result.ChangeID,
		Balance:  result.Balance,
	}
}

// BoostIncrease credits the caller's balance for one competition. Redelivered
// requests with the same idempotency key return the original outcome as a noop.
func BoostIncrease(svc boost.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		wallet, err := callerWallet(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req increaseRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		competitionID, amount, err := parseCompetitionAmount(req.CompetitionID, req.Amount)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var key []byte
		switch {
		case req.IdempotencyKey != "":
			key = boost.ClientKey("increase", req.IdempotencyKey)
		case req.Reason != "":
			key = boost.ReasonKey(competitionID, validators.SanitizeString(req.Reason, 120))
		default:
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.New(pkgerrors.CodeValidation, "reason or idempotencyKey is required"))
			return
		}

		result, err := svc.Increase(r.Context(), boost.IncreaseInput{
			Wallet:         wallet,
			CompetitionID:  competitionID,
			Amount:         amount,
			Meta:           req.Meta,
			IdempotencyKey: key,
		}, nil)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toBoostResult(result))
	}
}

// BoostAgent spends from the caller's balance onto an agent. The competition's
// boost window must be open at request time.
func BoostAgent(svc boost.Service, competitionSvc competitions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		wallet, err := callerWallet(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		userID, err := uuid.Parse(middleware.UserIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing user context"))
			return
		}
		agentID, err := uuid.Parse(chi.URLParam(r, "agentId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid agent id"))
			return
		}

		var req boostAgentRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		competitionID, amount, err := parseCompetitionAmount(req.CompetitionID, req.Amount)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		open, err := competitionSvc.BoostWindowOpen(r.Context(), competitionID, time.Now().UTC())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if !open {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.New(pkgerrors.CodeForbidden, "boost window is closed"))
			return
		}

		result, err := svc.BoostAgent(r.Context(), boost.BoostAgentInput{
			UserID:         userID,
			Wallet:         wallet,
			AgentID:        agentID,
			CompetitionID:  competitionID,
			Amount:         amount,
			Meta:           req.Meta,
			IdempotencyKey: boost.ClientKey("boost-agent", req.IdempotencyKey),
		}, nil)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toBoostResult(result))
	}
}

// BoostBalance returns the caller's balance for a competition. Wallets with
// no history read as zero.
func BoostBalance(svc boost.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		wallet, err := callerWallet(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		competitionID, err := queryUUID(r, "competitionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		balance, err := svc.UserBoostBalance(r.Context(), wallet, competitionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"wallet":        wallet,
			"competitionId": competitionID,
			"balance":       balance,
		})
	}
}

// AgentBoostTotals returns the per-agent boost totals for a competition.
func AgentBoostTotals(svc boost.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		competitionID, err := uuid.Parse(chi.URLParam(r, "competitionId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid competition id"))
			return
		}

		totals, err := svc.AgentBoostTotals(r.Context(), competitionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		payload := make(map[string]decimal.Decimal, len(totals))
		for agentID, total := range totals {
			payload[agentID.String()] = total
		}
		responses.WriteSuccess(w, map[string]any{
			"competitionId": competitionID,
			"totals":        payload,
		})
	}
}

// UserBoosts returns how much the caller has put on each agent in a competition.
func UserBoosts(svc boost.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := uuid.Parse(middleware.UserIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing user context"))
			return
		}
		competitionID, err := queryUUID(r, "competitionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		boosts, err := svc.UserBoosts(r.Context(), userID, competitionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		payload := make(map[string]decimal.Decimal, len(boosts))
		for agentID, total := range boosts {
			payload[agentID.String()] = total
		}
		responses.WriteSuccess(w, map[string]any{
			"competitionId": competitionID,
			"boosts":        payload,
		})
	}
}

// SeasonBoostedCompetitions lists, per wallet, the competitions boosted inside
// the inclusive window.
func SeasonBoostedCompetitions(svc boost.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		from, err := queryTime(r, "from")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		to, err := queryTime(r, "to")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		boosted, err := svc.CompetitionsBoostedBetween(r.Context(), from, to)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"from":    from,
			"to":      to,
			"boosted": boosted,
		})
	}
}

func callerWallet(r *http.Request) (types.Wallet, error) {
	raw := middleware.WalletFromContext(r.Context())
	if raw == "" {
		return "", pkgerrors.New(pkgerrors.CodeUnauthorized, "missing wallet context")
	}
	wallet, err := types.ParseWallet(raw)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid wallet context")
	}
	return wallet, nil
}

func parseCompetitionAmount(rawCompetitionID, rawAmount string) (uuid.UUID, decimal.Decimal, error) {
	competitionID, err := uuid.Parse(rawCompetitionID)
	if err != nil {
		return uuid.Nil, decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid competition id")
	}
	amount, err := decimal.NewFromString(rawAmount)
	if err != nil {
		return uuid.Nil, decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid amount")
	}
	return competitionID, amount, nil
}

func queryUUID(r *http.Request, key string) (uuid.UUID, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, key+" is required").WithDetails(map[string]any{"field": key})
	}
	value, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+key)
	}
	return value, nil
}

func queryTime(r *http.Request, key string) (time.Time, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return time.Time{}, pkgerrors.New(pkgerrors.CodeValidation, key+" is required").WithDetails(map[string]any{"field": key})
	}
	value, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, key+" must be RFC3339")
	}
	return value, nil
}
