package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/agentarena/boost-ledger/pkg/types"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID uuid.UUID
	Wallet types.Wallet
	JTI    string
}

// AccessTokenClaims represents the typed JWT issued to clients. The wallet is
// the canonical lowercase form, so ledger lookups can use it directly.
type AccessTokenClaims struct {
	UserID uuid.UUID    `json:"user_id"`
	Wallet types.Wallet `json:"wallet"`
	jwt.RegisteredClaims
}
