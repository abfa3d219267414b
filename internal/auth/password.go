// Package auth — password hashing.
//
// bcrypt is deliberately slow, auto-salts every hash, and embeds the salt
// and cost in its output string, so the stored credential secret is fully
// self-contained. The rest of the app treats that string as opaque — it is
// what the data model calls the credentialSecret, stored verbatim in both
// backends.
package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// defaultCost is the bcrypt work factor: ~250ms per hash on current server
// hardware, which is negligible for a login and brutal for an offline
// cracking run.
const defaultCost = 12

// PasswordService provides bcrypt hashing and verification. It is a struct
// rather than free functions so the cost can be lowered in tests.
type PasswordService struct {
	cost int
}

// NewPasswordService creates a PasswordService with the default cost.
func NewPasswordService() *PasswordService {
	return &PasswordService{cost: defaultCost}
}

// newPasswordServiceWithCost is the unexported test hook for this package.
func newPasswordServiceWithCost(cost int) *PasswordService {
	return &PasswordService{cost: cost}
}

// NewPasswordServiceForTest creates a PasswordService with a low cost so
// tests in other packages avoid the ~250ms per hash. Not for production.
func NewPasswordServiceForTest(cost int) *PasswordService {
	return &PasswordService{cost: cost}
}

// Hash hashes the given plaintext with bcrypt. The output includes salt and
// cost; store it directly.
//
// Rejects plaintexts over 72 bytes — bcrypt silently truncates beyond that,
// and a silent truncation is not a surprise we want to hand callers.
func (p *PasswordService) Hash(plaintext string) (string, error) {
	if len(plaintext) > 72 {
		return "", fmt.Errorf("auth: password must be 72 bytes or fewer")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), p.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing password: %w", err)
	}

	return string(hashed), nil
}

// Verify checks a plaintext against a stored bcrypt hash. Returns nil on
// match. The comparison is constant-time inside the bcrypt library.
func (p *PasswordService) Verify(hash, plaintext string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return fmt.Errorf("auth: invalid password")
		}
		return fmt.Errorf("auth: comparing password hash: %w", err)
	}
	return nil
}
