package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// BcryptCost is the work factor for client secret hashes. Secrets are
// verified once per token request, so the higher cost is affordable and
// matches the cost used for authorization codes and refresh tokens.
const BcryptCost = 12

// HashClientSecret returns the bcrypt hash of a client secret. Only the hash
// is persisted; the plaintext is shown once at registration or rotation.
func HashClientSecret(secret string) (string, error) {
	if secret == "" {
		return "", errors.New("client secret cannot be empty")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash client secret: %w", err)
	}

	return string(hash), nil
}

// VerifyClientSecret checks a presented secret against the stored hash.
// Confidential clients authenticate with this on every token request.
func VerifyClientSecret(hash, secret string) error {
	if hash == "" {
		return errors.New("hash cannot be empty")
	}
	if secret == "" {
		return errors.New("secret cannot be empty")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)); err != nil {
		return fmt.Errorf("client secret verification failed: %w", err)
	}

	return nil
}
