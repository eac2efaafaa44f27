package token

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Opaque token format: a recognizable type prefix followed by 32 bytes of
// crypto-random data, base64url-encoded. Only the bcrypt hash and a short
// lookup prefix are ever persisted; the full token exists once, in the
// response that delivers it.
const (
	// AuthorizationCodePrefix marks authorization codes.
	AuthorizationCodePrefix = "os_code_"
	// AccessTokenPrefix marks opaque access tokens (client-credentials grants
	// that carry no user context still get JWTs; the prefix is reserved).
	AccessTokenPrefix = "os_oauth_"
	// RefreshTokenPrefix marks refresh tokens.
	RefreshTokenPrefix = "os_refresh_"

	// CodeLookupLength is how many characters beyond the type prefix are
	// stored for authorization code lookup.
	CodeLookupLength = 8
	// TokenLookupLength is how many characters beyond the type prefix are
	// stored for access/refresh token lookup.
	TokenLookupLength = 12

	// OpaqueTokenEntropyBytes is the number of random bytes per token.
	OpaqueTokenEntropyBytes = 32

	// HashCost is the bcrypt cost used for token hashes.
	HashCost = 12
)

// OpaqueToken is a freshly minted token together with the two values that
// get persisted: its lookup prefix and its bcrypt hash.
type OpaqueToken struct {
	// Token is the full secret value. Hand it to the client and forget it.
	Token string
	// LookupPrefix is the stored, indexable head of the token.
	LookupPrefix string
	// Hash is the bcrypt hash of the full token.
	Hash string
}

// GenerateOpaqueToken mints a new opaque token with the given type prefix,
// keeping lookupLength characters beyond the prefix for storage lookup.
func GenerateOpaqueToken(prefix string, lookupLength int) (*OpaqueToken, error) {
	bytes := make([]byte, OpaqueTokenEntropyBytes)
	if _, err := rand.Read(bytes); err != nil {
		return nil, fmt.Errorf("failed to generate random bytes for token: %w", err)
	}

	tokenValue := prefix + base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(bytes)

	hash, err := bcrypt.GenerateFromPassword([]byte(tokenValue), HashCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash token: %w", err)
	}

	return &OpaqueToken{
		Token:        tokenValue,
		LookupPrefix: tokenValue[:len(prefix)+lookupLength],
		Hash:         string(hash),
	}, nil
}

// GenerateAuthorizationCodeToken mints an authorization code.
func GenerateAuthorizationCodeToken() (*OpaqueToken, error) {
	return GenerateOpaqueToken(AuthorizationCodePrefix, CodeLookupLength)
}

// GenerateRefreshTokenValue mints a refresh token.
func GenerateRefreshTokenValue() (*OpaqueToken, error) {
	return GenerateOpaqueToken(RefreshTokenPrefix, TokenLookupLength)
}

// LookupPrefixFor extracts the stored lookup prefix from a presented token.
// Returns an error when the token is too short or does not carry the
// expected type prefix, so callers can fail before touching storage.
func LookupPrefixFor(tokenValue, prefix string, lookupLength int) (string, error) {
	want := len(prefix) + lookupLength
	if len(tokenValue) < want {
		return "", fmt.Errorf("token is too short")
	}
	if tokenValue[:len(prefix)] != prefix {
		return "", fmt.Errorf("token does not carry the %s prefix", prefix)
	}
	return tokenValue[:want], nil
}

// VerifyOpaqueToken compares a presented token against a stored bcrypt hash.
// Returns nil only when they match.
func VerifyOpaqueToken(hash, tokenValue string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(tokenValue)); err != nil {
		return fmt.Errorf("token verification failed: %w", err)
	}
	return nil
}
