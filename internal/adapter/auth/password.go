package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// bcrypt ignores input past 72 bytes.
const maxPasswordBytes = 72

// ErrInvalidPassword is returned when a password does not match its hash.
var ErrInvalidPassword = errors.New("auth: invalid password")

// PasswordService hashes and verifies local account passwords.
type PasswordService struct {
	cost int
}

// NewPasswordService uses bcrypt's default cost when cost is zero.
func NewPasswordService(cost int) *PasswordService {
	if cost == 0 {
		cost = bcrypt.DefaultCost
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

// Verify compares plaintext with hash.
func (p *PasswordService) Verify(hash, plaintext string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrInvalidPassword
	}
	if err != nil {
		return fmt.Errorf("auth: comparing password hash: %w", err)
	}
	return nil
}
