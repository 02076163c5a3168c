package authbridge

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Hasher is the one-way password digest contract. Verify compares a
// plaintext against a stored digest.
type Hasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, digest string) bool
}

// BcryptHasher implements Hasher with bcrypt. Cost 0 means
// bcrypt.DefaultCost.
type BcryptHasher struct {
	Cost int
}

func (h *BcryptHasher) Hash(plaintext string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	digest, err := bcrypt.GenerateFromPassword([]byte(plaintext), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(digest), nil
}

func (h *BcryptHasher) Verify(plaintext, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext)) == nil
}
