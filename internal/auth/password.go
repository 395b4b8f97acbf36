package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// WHY BCRYPT FOR A LOCAL STAND-IN?
// The forum API in this repo exists to give the client something real to talk
// to, so "Invalid credentials" must come from a real comparison. bcrypt embeds
// its salt and cost in the hash, so the users table needs one string
// per user and nothing else:
//
//	$2a$10$<22-char salt><31-char hash>

// DefaultCost is the bcrypt work factor used by the stand-in server.
const DefaultCost = bcrypt.DefaultCost

// maxPasswordBytes is bcrypt's input limit. Longer input would be truncated
// silently, so it is rejected instead.
const maxPasswordBytes = 72

var ErrPasswordMismatch = errors.New("auth: invalid password")

// PasswordService hashes and checks passwords. The cost is a field so tests
// can run with bcrypt.MinCost.
type PasswordService struct {
	cost int
}

// NewPasswordService returns a service hashing with cost. Values outside
// bcrypt's range fall back to DefaultCost.
func NewPasswordService(cost int) *PasswordService {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultCost
	}
	return &PasswordService{cost: cost}
}

// Hash returns the bcrypt hash of plaintext.
func (p *PasswordService) Hash(plaintext string) (string, error) {
	if len(plaintext) > maxPasswordBytes {
		return "", fmt.Errorf("auth: password must be %d bytes or fewer", maxPasswordBytes)
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), p.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing password: %w", err)
	}
	return string(hashed), nil
}

// Verify returns nil when plaintext matches hash and ErrPasswordMismatch when
// it does not. A malformed hash is reported as a separate error.
func (p *PasswordService) Verify(hash, plaintext string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return ErrPasswordMismatch
	default:
		return fmt.Errorf("auth: comparing password hash: %w", err)
	}
}
