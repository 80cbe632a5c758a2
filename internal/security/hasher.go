package security

import (
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/Miasufee/connect-sub000/internal/domain"
	"golang.org/x/crypto/bcrypt"
)

// dummyPassword is hashed when a Hasher is created and compared against on failed logins
const dummyPassword = "zawiya-dummy-password-for-timing"

// Hasher hashes and verifies passwords with bcrypt
type Hasher struct {
	cost      int
	dummyHash []byte
}

// NewHasher creates a Hasher. Costs outside bcrypt's range fall back to bcrypt.DefaultCost.
func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	// GenerateFromPassword only fails on bad cost or long input, both ruled out here
	dummy, _ := bcrypt.GenerateFromPassword([]byte(dummyPassword), cost)
	return &Hasher{cost: cost, dummyHash: dummy}
}

// Hash returns the bcrypt hash of password
func (h *Hasher) Hash(password string) (string, error) {
	if password == "" {
		return "", domain.Invalidf("password is required")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", domain.Invalidf("password must be at most 72 bytes")
		}
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

// Verify reports whether plain matches hash. It never returns an error; any failure is a mismatch.
func (h *Hasher) Verify(plain, hash string) bool {
	if plain == "" || hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// DummyVerify burns roughly the time of a real Verify so failed logins are not distinguishable by latency
func (h *Hasher) DummyVerify(plain string) {
	_ = bcrypt.CompareHashAndPassword(h.dummyHash, []byte(plain))
}

// ConstantTimeCompare compares two strings in time independent of where they differ
func ConstantTimeCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
