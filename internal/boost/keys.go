package boost

import (
	"crypto/sha256"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const keySchemeVersion = "v1"

// DeriveKey hashes the scope parts into a fixed-size idempotency key. The
// same parts always produce the same key, so redelivered commands collide on
// the (balance_id, idempotency_key) index instead of applying twice.
func DeriveKey(scope string, parts ...string) []byte {
	h := sha256.New()
	h.Write([]byte(keySchemeVersion))
	h.Write([]byte{0x1f})
	h.Write([]byte(scope))
	for _, part := range parts {
		h.Write([]byte{0x1f})
		h.Write([]byte(part))
	}
	return h.Sum(nil)
}

// StakeAwardKey identifies the one-time boost award for a stake position
// within a competition.
func StakeAwardKey(competitionID uuid.UUID, stakeID uint64) []byte {
	return DeriveKey("stake-award", competitionID.String(), strconv.FormatUint(stakeID, 10))
}

// ReasonKey identifies a one-time earn for a named reason within a
// competition, e.g. a signup grant.
func ReasonKey(competitionID uuid.UUID, reason string) []byte {
	return DeriveKey("reason", competitionID.String(), strings.ToLower(strings.TrimSpace(reason)))
}

// ClientKey scopes a client-chosen idempotency key to an operation so an earn
// and a spend with the same raw key never collide.
func ClientKey(operation, raw string) []byte {
	return DeriveKey("client", operation, strings.TrimSpace(raw))
}
