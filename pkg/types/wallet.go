package types

import (
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"
)

const walletHexLen = 40

// Wallet is a 20-byte EVM address held in canonical (lower-case hex) form.
// The ledger keys balances by this canonical form so that mixed-case inputs
// from different callers always resolve to the same row.
type Wallet string

// ParseWallet validates and canonicalizes a wallet address string.
func ParseWallet(raw string) (Wallet, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("wallet address is required")
	}
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	if len(s) != walletHexLen {
		return "", fmt.Errorf("wallet address must be 20 bytes of hex, got %d chars", len(s))
	}
	for _, c := range s {
		if !isHexChar(c) {
			return "", fmt.Errorf("wallet address contains non-hex character %q", c)
		}
	}
	return Wallet("0x" + s), nil
}

// MustWallet parses a wallet address and panics on failure. Test helper.
func MustWallet(raw string) Wallet {
	w, err := ParseWallet(raw)
	if err != nil {
		panic(err)
	}
	return w
}

func (w Wallet) String() string {
	return string(w)
}

// Checksum renders the address with EIP-55 mixed-case checksum encoding,
// the form the API returns to clients.
func (w Wallet) Checksum() string {
	hexAddr := strings.TrimPrefix(string(w), "0x")
	hash := sha3.NewLegacyKeccak256()
	hash.Write([]byte(hexAddr))
	digest := hash.Sum(nil)

	out := make([]byte, len(hexAddr))
	for i := 0; i < len(hexAddr); i++ {
		c := hexAddr[i]
		if c >= 'a' && c <= 'f' {
			nibble := digest[i/2]
			if i%2 == 0 {
				nibble >>= 4
			}
			if nibble&0x0f >= 8 {
				c -= 'a' - 'A'
			}
		}
		out[i] = c
	}
	return "0x" + string(out)
}

func isHexChar(c rune) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')
}
