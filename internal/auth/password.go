package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/mrlokans/campuslib/internal/apperrors"
)

// DefaultMinPasswordLength applies when no minimum is configured.
const DefaultMinPasswordLength = 8

// bcrypt ignores everything past 72 bytes.
const maxPasswordBytes = 72

var (
	ErrInvalidPassword  = errors.New("invalid password")
	ErrPasswordTooShort = fmt.Errorf("%w: password is too short", apperrors.ErrValidation)
	ErrPasswordTooLong  = fmt.Errorf("%w: password exceeds maximum length of 72 bytes", apperrors.ErrValidation)
)

// BcryptHasher hashes student passwords with bcrypt.
type BcryptHasher struct {
	Cost      int
	MinLength int
}

func NewBcryptHasher(cost, minLength int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	if minLength <= 0 {
		minLength = DefaultMinPasswordLength
	}
	return &BcryptHasher{Cost: cost, MinLength: minLength}
}

func (h *BcryptHasher) Hash(password string) (string, error) {
	if len(password) < h.MinLength {
		return "", fmt.Errorf("%w (minimum %d characters)", ErrPasswordTooShort, h.MinLength)
	}
	if len(password) > maxPasswordBytes {
		return "", ErrPasswordTooLong
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.Cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (h *BcryptHasher) Verify(hash, password string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrInvalidPassword
		}
		return err
	}
	return nil
}

// GenerateSessionSecret creates a random 32-byte secret for CSRF signing.
func GenerateSessionSecret() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
