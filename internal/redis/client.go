// Package redis provides the hot store for OAuth2 authorization artifacts:
// authorization codes, access and refresh token records, consent prompts'
// sessions, a write-through client cache, a consent cache, and the token
// blacklist. Everything here is ephemeral or a cache; Postgres and MySQL hold
// the durable records.
//
// The Redis keys are organized with prefixes to avoid collisions:
//   - auth:client:{id} - cached OAuth2 client registrations
//   - auth:code:{codePrefix} - authorization codes, keyed by lookup prefix
//   - auth:access_token:{jti} - access token records with TTL
//   - auth:refresh_token:{tokenPrefix} - refresh tokens, keyed by lookup prefix
//   - auth:session:{id} - authorization flow sessions with TTL
//   - auth:consent:{parishID}:{userID}:{clientID} - cached consent records
//   - auth:blacklist:{jti} - revoked access token IDs
//
// Codes and refresh tokens are stored under their short lookup prefix, never
// under the full secret value: the stored record carries a bcrypt hash that
// the presenter must match. All operations are context-aware, and secret
// values never appear in logs.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/fr-mccarty/outwardsign-sub009/internal/config"
	"github.com/fr-mccarty/outwardsign-sub009/internal/models"
)

const (
	// MinTokenLengthForMasking is the minimum token length before masking is applied.
	MinTokenLengthForMasking = 8

	// ScanBatchSize is the number of keys to scan per Redis SCAN iteration.
	ScanBatchSize = 100
)

// ErrCacheMiss is returned when a key does not exist in the cache.
// This is a sentinel error that callers can check to distinguish between
// a cache miss (expected) and an actual error (unexpected).
var ErrCacheMiss = errors.New("cache miss")

// Client is a Redis client wrapper that implements the Store interface.
// It provides thread-safe access to Redis operations with connection pooling,
// structured logging, and automatic error handling.
type Client struct {
	rdb    *redis.Client
	logger *logrus.Logger
}

// Store defines the interface for authorization artifact storage.
// All methods are context-aware and provide comprehensive error handling.
//
// Error Handling: lookups that can legitimately miss (clients, consents)
// return ErrCacheMiss; grant lookups return descriptive "not found" errors.
//
// Thread Safety: implementations must be safe for concurrent use.
type Store interface {
	// Close gracefully closes the underlying connections.
	Close() error

	// Ping verifies connectivity to the backing store.
	Ping(ctx context.Context) error

	// StoreClient caches an OAuth2 client registration without TTL.
	// The durable copy lives in the client registry database; this cache
	// exists to keep client resolution off the hot path.
	StoreClient(ctx context.Context, client *models.Client) error

	// GetClient retrieves a cached OAuth2 client by ID.
	// Returns ErrCacheMiss if the client is not cached.
	GetClient(ctx context.Context, clientID string) (*models.Client, error)

	// DeleteClient evicts a client from the cache. Idempotent.
	DeleteClient(ctx context.Context, clientID string) error

	// StoreAuthorizationCode persists an authorization code record with TTL,
	// keyed by the code's lookup prefix. The record carries the bcrypt hash
	// of the full code; the code string itself is never stored.
	StoreAuthorizationCode(ctx context.Context, code *models.AuthorizationCode, ttl time.Duration) error

	// GetAuthorizationCode retrieves an authorization code record by its
	// lookup prefix. Returns "authorization code not found" if expired or
	// non-existent. The caller must still verify the presented code against
	// the record's hash.
	GetAuthorizationCode(ctx context.Context, codePrefix string) (*models.AuthorizationCode, error)

	// MarkAuthorizationCodeUsed stamps the code record with a used-at time
	// and writes it back with its remaining TTL. The spent record is kept
	// until expiry so a replayed code is recognized as such.
	MarkAuthorizationCodeUsed(ctx context.Context, code *models.AuthorizationCode) error

	// DeleteAuthorizationCode removes an authorization code record.
	DeleteAuthorizationCode(ctx context.Context, codePrefix string) error

	// StoreAccessToken persists an access token record with TTL, keyed by
	// the token's JWT ID. The record exists for introspection and revocation;
	// the JWT itself is self-contained.
	StoreAccessToken(ctx context.Context, token *models.AccessToken, ttl time.Duration) error

	// GetAccessToken retrieves an access token record by JWT ID.
	// Returns "access token not found" if expired or non-existent.
	GetAccessToken(ctx context.Context, jti string) (*models.AccessToken, error)

	// DeleteAccessToken removes an access token record by JWT ID.
	DeleteAccessToken(ctx context.Context, jti string) error

	// RevokeAccessToken marks an access token record as revoked while
	// preserving it until its original expiration time.
	RevokeAccessToken(ctx context.Context, jti string) error

	// StoreRefreshToken persists a refresh token record with TTL, keyed by
	// the token's lookup prefix. The record carries the bcrypt hash of the
	// full token; the token string itself is never stored.
	StoreRefreshToken(ctx context.Context, token *models.RefreshToken, ttl time.Duration) error

	// GetRefreshToken retrieves a refresh token record by lookup prefix.
	// Returns "refresh token not found" if expired or non-existent. The
	// caller must still verify the presented token against the record's hash.
	GetRefreshToken(ctx context.Context, tokenPrefix string) (*models.RefreshToken, error)

	// UpdateRefreshToken writes a refresh token record back with its
	// remaining TTL, used to stamp rotation state onto a spent token.
	UpdateRefreshToken(ctx context.Context, token *models.RefreshToken) error

	// DeleteRefreshToken removes a refresh token record by lookup prefix.
	DeleteRefreshToken(ctx context.Context, tokenPrefix string) error

	// RevokeRefreshToken marks a refresh token record as revoked while
	// preserving it until its original expiration time.
	RevokeRefreshToken(ctx context.Context, tokenPrefix string) error

	// StoreSession persists an authorization flow session with TTL.
	StoreSession(ctx context.Context, session *models.Session, ttl time.Duration) error

	// GetSession retrieves a session by ID.
	// Returns "session not found" if expired or non-existent.
	GetSession(ctx context.Context, sessionID string) (*models.Session, error)

	// DeleteSession removes a session.
	DeleteSession(ctx context.Context, sessionID string) error

	// StoreConsent caches a consent record with TTL so repeat authorization
	// requests skip the Postgres lookup. The durable copy lives in Postgres.
	StoreConsent(ctx context.Context, consent *models.Consent, ttl time.Duration) error

	// GetConsent retrieves a cached consent for the user/parish/client
	// triple. Returns ErrCacheMiss when not cached.
	GetConsent(ctx context.Context, parishID, userID, clientID string) (*models.Consent, error)

	// DeleteConsent evicts a cached consent, used when a consent is widened
	// or revoked so the next read goes back to Postgres. Idempotent.
	DeleteConsent(ctx context.Context, parishID, userID, clientID string) error

	// IsTokenBlacklisted checks whether an access token's JWT ID has been
	// revoked.
	IsTokenBlacklisted(ctx context.Context, jti string) (bool, error)

	// BlacklistToken records a revoked access token ID with TTL. The TTL
	// should match the token's remaining lifetime; after that the JWT is
	// expired anyway.
	BlacklistToken(ctx context.Context, jti string, ttl time.Duration) error

	// RevokeConsentGrants revokes every access and refresh token record
	// issued under the given consent, blacklisting the access token IDs.
	// Returns the number of token records revoked.
	RevokeConsentGrants(ctx context.Context, consentID string) (int, error)

	// ClearUserSessions deletes all sessions for a specific user.
	// Returns the number of sessions cleared.
	ClearUserSessions(ctx context.Context, userID string) (int, error)

	// GetGrantStats summarizes the codes, tokens, and sessions currently in
	// the store, with optional TTL distribution and summary statistics.
	GetGrantStats(ctx context.Context, req *models.GrantStatsRequest) (*models.GrantStats, error)
}

// NewClient creates a new Redis client instance with the provided
// configuration. It establishes a connection pool, validates connectivity
// with an initial Ping, and returns a ready-to-use client.
func NewClient(cfg *config.RedisConfig, logger *logrus.Logger) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	if cfg.Password != "" {
		opts.Password = cfg.Password // pragma: allowlist secret
	}
	if cfg.DB != 0 {
		opts.DB = cfg.DB
	}

	opts.MaxRetries = cfg.MaxRetries
	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConn
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout
	opts.PoolTimeout = cfg.PoolTimeout
	opts.ConnMaxIdleTime = cfg.IdleTimeout

	rdb := redis.NewClient(opts)

	client := &Client{
		rdb:    rdb,
		logger: logger,
	}

	if pingErr := client.Ping(context.Background()); pingErr != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", pingErr)
	}

	logger.Info("Connected to Redis successfully")

	return client, nil
}

// Close gracefully shuts down the Redis client and closes all connections in
// the pool.
func (c *Client) Close() error {
	if err := c.rdb.Close(); err != nil {
		c.logger.WithError(err).Error("Failed to close Redis connection")
		return err
	}
	c.logger.Info("Redis connection closed")
	return nil
}

// Ping tests connectivity to the Redis server.
func (c *Client) Ping(ctx context.Context) error {
	status := c.rdb.Ping(ctx)
	if status.Err() != nil {
		return fmt.Errorf("redis ping failed: %w", status.Err())
	}
	return nil
}

// GetRedisClient returns the underlying go-redis client for advanced
// operations like rate limiting with redis_rate. Returns nil if not using a
// Redis-backed store.
func (c *Client) GetRedisClient() *redis.Client {
	return c.rdb
}

// StoreClient caches an OAuth2 client registration without expiration.
// The cache entry form is used so the secret hash survives serialization
// (Client.Secret has json:"-" which would drop it).
func (c *Client) StoreClient(ctx context.Context, client *models.Client) error {
	key := clientKey(client.ID)
	cacheEntry := client.ToCacheEntry()
	data, err := json.Marshal(cacheEntry)
	if err != nil {
		return fmt.Errorf("failed to marshal client: %w", err)
	}

	if setErr := c.rdb.Set(ctx, key, data, 0).Err(); setErr != nil {
		return fmt.Errorf("failed to store client: %w", setErr)
	}

	c.logger.WithField("client_id", client.ID).Debug("Client cached successfully")
	return nil
}

// GetClient retrieves a cached OAuth2 client registration by client ID.
// Returns ErrCacheMiss if the client is not in the cache, so the caller can
// fall through to the client registry database.
func (c *Client) GetClient(ctx context.Context, clientID string) (*models.Client, error) {
	key := clientKey(clientID)
	data, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get client: %w", err)
	}

	var cacheEntry models.ClientCacheEntry
	if unmarshalErr := json.Unmarshal([]byte(data), &cacheEntry); unmarshalErr != nil {
		return nil, fmt.Errorf("failed to unmarshal client: %w", unmarshalErr)
	}

	return cacheEntry.ToClient(), nil
}

// DeleteClient evicts a client registration from the cache.
// Idempotent: no error when the client is not cached.
func (c *Client) DeleteClient(ctx context.Context, clientID string) error {
	key := clientKey(clientID)
	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete client: %w", err)
	}

	c.logger.WithField("client_id", clientID).Debug("Client evicted from cache")
	return nil
}

// StoreAuthorizationCode persists an authorization code record with automatic
// expiration, keyed by the code's lookup prefix. Codes have short TTLs
// (minutes) and carry only the bcrypt hash of the full code string.
func (c *Client) StoreAuthorizationCode(ctx context.Context, code *models.AuthorizationCode, ttl time.Duration) error {
	key := authCodeKey(code.CodePrefix)
	data, err := json.Marshal(code)
	if err != nil {
		return fmt.Errorf("failed to marshal authorization code: %w", err)
	}

	if setErr := c.rdb.Set(ctx, key, data, ttl).Err(); setErr != nil {
		return fmt.Errorf("failed to store authorization code: %w", setErr)
	}

	c.logger.WithField("code_prefix", code.CodePrefix).Debug("Authorization code stored successfully")
	return nil
}

// GetAuthorizationCode retrieves an authorization code record by lookup
// prefix. Returns "authorization code not found" if the code has expired or
// doesn't exist. The returned record's hash must still be verified against
// the full presented code.
func (c *Client) GetAuthorizationCode(ctx context.Context, codePrefix string) (*models.AuthorizationCode, error) {
	key := authCodeKey(codePrefix)
	data, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errors.New("authorization code not found")
		}
		return nil, fmt.Errorf("failed to get authorization code: %w", err)
	}

	var authCode models.AuthorizationCode
	if unmarshalErr := json.Unmarshal([]byte(data), &authCode); unmarshalErr != nil {
		return nil, fmt.Errorf("failed to unmarshal authorization code: %w", unmarshalErr)
	}

	return &authCode, nil
}

// MarkAuthorizationCodeUsed stamps the record with the current time and
// writes it back with the TTL it had left. Keeping the spent record until
// expiry lets a replayed code be rejected as used rather than unknown.
func (c *Client) MarkAuthorizationCodeUsed(ctx context.Context, code *models.AuthorizationCode) error {
	now := time.Now()
	code.UsedAt = &now

	key := authCodeKey(code.CodePrefix)
	data, err := json.Marshal(code)
	if err != nil {
		return fmt.Errorf("failed to marshal authorization code: %w", err)
	}

	if setErr := c.rdb.Set(ctx, key, data, time.Until(code.ExpiresAt)).Err(); setErr != nil {
		return fmt.Errorf("failed to mark authorization code used: %w", setErr)
	}

	c.logger.WithField("code_prefix", code.CodePrefix).Debug("Authorization code marked used")
	return nil
}

// DeleteAuthorizationCode removes an authorization code record.
func (c *Client) DeleteAuthorizationCode(ctx context.Context, codePrefix string) error {
	key := authCodeKey(codePrefix)
	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete authorization code: %w", err)
	}

	c.logger.WithField("code_prefix", codePrefix).Debug("Authorization code deleted successfully")
	return nil
}

// StoreAccessToken persists an access token record with automatic expiration,
// keyed by JWT ID. The record exists so introspection and revocation can see
// token state that the self-contained JWT cannot carry.
func (c *Client) StoreAccessToken(ctx context.Context, token *models.AccessToken, ttl time.Duration) error {
	key := accessTokenKey(token.ID)
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal access token: %w", err)
	}

	if setErr := c.rdb.Set(ctx, key, data, ttl).Err(); setErr != nil {
		return fmt.Errorf("failed to store access token: %w", setErr)
	}

	c.logger.WithField("jti", maskToken(token.ID)).Debug("Access token stored successfully")
	return nil
}

// GetAccessToken retrieves an access token record by JWT ID.
// Returns "access token not found" if the record has expired or doesn't exist.
func (c *Client) GetAccessToken(ctx context.Context, jti string) (*models.AccessToken, error) {
	key := accessTokenKey(jti)
	data, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errors.New("access token not found")
		}
		return nil, fmt.Errorf("failed to get access token: %w", err)
	}

	var accessToken models.AccessToken
	if unmarshalErr := json.Unmarshal([]byte(data), &accessToken); unmarshalErr != nil {
		return nil, fmt.Errorf("failed to unmarshal access token: %w", unmarshalErr)
	}

	return &accessToken, nil
}

// DeleteAccessToken removes an access token record by JWT ID.
func (c *Client) DeleteAccessToken(ctx context.Context, jti string) error {
	key := accessTokenKey(jti)
	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete access token: %w", err)
	}

	c.logger.WithField("jti", maskToken(jti)).Debug("Access token deleted successfully")
	return nil
}

// RevokeAccessToken marks an access token record as revoked without removing
// it. The record remains until the token's original expiration time, so
// introspection reports the token inactive for its whole nominal lifetime.
func (c *Client) RevokeAccessToken(ctx context.Context, jti string) error {
	key := accessTokenKey(jti)
	accessToken, err := c.GetAccessToken(ctx, jti)
	if err != nil {
		return err
	}

	accessToken.Revoked = true
	data, err := json.Marshal(accessToken)
	if err != nil {
		return fmt.Errorf("failed to marshal revoked access token: %w", err)
	}

	if setErr := c.rdb.Set(ctx, key, data, time.Until(accessToken.ExpiresAt)).Err(); setErr != nil {
		return fmt.Errorf("failed to revoke access token: %w", setErr)
	}

	c.logger.WithField("jti", maskToken(jti)).Debug("Access token revoked successfully")
	return nil
}

// StoreRefreshToken persists a refresh token record with automatic
// expiration, keyed by the token's lookup prefix. Refresh tokens have long
// TTLs (days) and carry only the bcrypt hash of the full token string.
func (c *Client) StoreRefreshToken(ctx context.Context, token *models.RefreshToken, ttl time.Duration) error {
	key := refreshTokenKey(token.TokenPrefix)
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal refresh token: %w", err)
	}

	if setErr := c.rdb.Set(ctx, key, data, ttl).Err(); setErr != nil {
		return fmt.Errorf("failed to store refresh token: %w", setErr)
	}

	c.logger.WithField("token_prefix", token.TokenPrefix).Debug("Refresh token stored successfully")
	return nil
}

// GetRefreshToken retrieves a refresh token record by lookup prefix.
// Returns "refresh token not found" if the record has expired or doesn't
// exist. The returned record's hash must still be verified against the full
// presented token.
func (c *Client) GetRefreshToken(ctx context.Context, tokenPrefix string) (*models.RefreshToken, error) {
	key := refreshTokenKey(tokenPrefix)
	data, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errors.New("refresh token not found")
		}
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}

	var refreshToken models.RefreshToken
	if unmarshalErr := json.Unmarshal([]byte(data), &refreshToken); unmarshalErr != nil {
		return nil, fmt.Errorf("failed to unmarshal refresh token: %w", unmarshalErr)
	}

	return &refreshToken, nil
}

// UpdateRefreshToken writes a refresh token record back with its remaining
// TTL. Used during rotation to stamp RotatedAt and ReplacedByID onto the
// spent token so a replay of it is detected.
func (c *Client) UpdateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	key := refreshTokenKey(token.TokenPrefix)
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal refresh token: %w", err)
	}

	if setErr := c.rdb.Set(ctx, key, data, time.Until(token.ExpiresAt)).Err(); setErr != nil {
		return fmt.Errorf("failed to update refresh token: %w", setErr)
	}

	c.logger.WithField("token_prefix", token.TokenPrefix).Debug("Refresh token updated successfully")
	return nil
}

// DeleteRefreshToken removes a refresh token record by lookup prefix.
func (c *Client) DeleteRefreshToken(ctx context.Context, tokenPrefix string) error {
	key := refreshTokenKey(tokenPrefix)
	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete refresh token: %w", err)
	}

	c.logger.WithField("token_prefix", tokenPrefix).Debug("Refresh token deleted successfully")
	return nil
}

// RevokeRefreshToken marks a refresh token record as revoked without removing
// it. The record remains until the token's original expiration time.
func (c *Client) RevokeRefreshToken(ctx context.Context, tokenPrefix string) error {
	key := refreshTokenKey(tokenPrefix)
	refreshToken, err := c.GetRefreshToken(ctx, tokenPrefix)
	if err != nil {
		return err
	}

	refreshToken.Revoked = true
	data, err := json.Marshal(refreshToken)
	if err != nil {
		return fmt.Errorf("failed to marshal revoked refresh token: %w", err)
	}

	if setErr := c.rdb.Set(ctx, key, data, time.Until(refreshToken.ExpiresAt)).Err(); setErr != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", setErr)
	}

	c.logger.WithField("token_prefix", tokenPrefix).Debug("Refresh token revoked successfully")
	return nil
}

// StoreSession persists an authorization flow session with automatic
// expiration. Sessions carry the pending authorization request between the
// consent prompt and the user's decision.
func (c *Client) StoreSession(ctx context.Context, session *models.Session, ttl time.Duration) error {
	key := sessionKey(session.ID)
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if setErr := c.rdb.Set(ctx, key, data, ttl).Err(); setErr != nil {
		return fmt.Errorf("failed to store session: %w", setErr)
	}

	c.logger.WithField("session_id", session.ID).Debug("Session stored successfully")
	return nil
}

// GetSession retrieves a session by ID.
// Returns "session not found" if the session has expired or doesn't exist.
func (c *Client) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	key := sessionKey(sessionID)
	data, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errors.New("session not found")
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var session models.Session
	if unmarshalErr := json.Unmarshal([]byte(data), &session); unmarshalErr != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", unmarshalErr)
	}

	return &session, nil
}

// DeleteSession removes a session.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	key := sessionKey(sessionID)
	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	c.logger.WithField("session_id", sessionID).Debug("Session deleted successfully")
	return nil
}

// StoreConsent caches a consent record with TTL. The durable copy lives in
// Postgres; this cache serves the auto-approval check on repeat
// authorization requests.
func (c *Client) StoreConsent(ctx context.Context, consent *models.Consent, ttl time.Duration) error {
	key := consentKey(consent.ParishID, consent.UserID, consent.ClientID)
	data, err := json.Marshal(consent)
	if err != nil {
		return fmt.Errorf("failed to marshal consent: %w", err)
	}

	if setErr := c.rdb.Set(ctx, key, data, ttl).Err(); setErr != nil {
		return fmt.Errorf("failed to store consent: %w", setErr)
	}

	c.logger.WithFields(logrus.Fields{
		"user_id":   consent.UserID,
		"client_id": consent.ClientID,
	}).Debug("Consent cached successfully")
	return nil
}

// GetConsent retrieves a cached consent for the user/parish/client triple.
// Returns ErrCacheMiss when not cached, so the caller can fall through to
// Postgres.
func (c *Client) GetConsent(ctx context.Context, parishID, userID, clientID string) (*models.Consent, error) {
	key := consentKey(parishID, userID, clientID)
	data, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get consent: %w", err)
	}

	var consent models.Consent
	if unmarshalErr := json.Unmarshal([]byte(data), &consent); unmarshalErr != nil {
		return nil, fmt.Errorf("failed to unmarshal consent: %w", unmarshalErr)
	}

	return &consent, nil
}

// DeleteConsent evicts a cached consent. Idempotent.
func (c *Client) DeleteConsent(ctx context.Context, parishID, userID, clientID string) error {
	key := consentKey(parishID, userID, clientID)
	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete consent: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"user_id":   userID,
		"client_id": clientID,
	}).Debug("Consent evicted from cache")
	return nil
}

// IsTokenBlacklisted checks if an access token's JWT ID is in the blacklist.
// Uses EXISTS for efficient checking without retrieving the value.
func (c *Client) IsTokenBlacklisted(ctx context.Context, jti string) (bool, error) {
	key := blacklistKey(jti)
	exists, err := c.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check token blacklist: %w", err)
	}
	return exists == 1, nil
}

// BlacklistToken adds an access token's JWT ID to the blacklist with
// automatic expiration. The TTL should match the token's remaining lifetime.
func (c *Client) BlacklistToken(ctx context.Context, jti string, ttl time.Duration) error {
	key := blacklistKey(jti)
	if err := c.rdb.Set(ctx, key, "revoked", ttl).Err(); err != nil {
		return fmt.Errorf("failed to blacklist token: %w", err)
	}

	c.logger.WithField("jti", maskToken(jti)).Debug("Token blacklisted successfully")
	return nil
}

// RevokeConsentGrants revokes every access and refresh token record issued
// under the given consent. Access token IDs are also blacklisted so the
// still-valid JWTs are rejected at the door. Uses SCAN + per-key reads, the
// same pattern as ClearUserSessions; consent revocation is rare enough that
// a secondary index is not worth maintaining.
func (c *Client) RevokeConsentGrants(ctx context.Context, consentID string) (int, error) {
	revoked := 0

	accessKeys, err := c.scanKeys(ctx, "auth:access_token:*")
	if err != nil {
		return 0, fmt.Errorf("failed to scan access token keys: %w", err)
	}

	for _, key := range accessKeys {
		data, getErr := c.rdb.Get(ctx, key).Bytes()
		if getErr != nil {
			continue
		}

		var accessToken models.AccessToken
		if unmarshalErr := json.Unmarshal(data, &accessToken); unmarshalErr != nil {
			continue
		}

		if accessToken.ConsentID != consentID || accessToken.Revoked {
			continue
		}

		if revokeErr := c.RevokeAccessToken(ctx, accessToken.ID); revokeErr != nil {
			return revoked, revokeErr
		}
		if blacklistErr := c.BlacklistToken(ctx, accessToken.ID, time.Until(accessToken.ExpiresAt)); blacklistErr != nil {
			return revoked, blacklistErr
		}
		revoked++
	}

	refreshKeys, err := c.scanKeys(ctx, "auth:refresh_token:*")
	if err != nil {
		return revoked, fmt.Errorf("failed to scan refresh token keys: %w", err)
	}

	for _, key := range refreshKeys {
		data, getErr := c.rdb.Get(ctx, key).Bytes()
		if getErr != nil {
			continue
		}

		var refreshToken models.RefreshToken
		if unmarshalErr := json.Unmarshal(data, &refreshToken); unmarshalErr != nil {
			continue
		}

		if refreshToken.ConsentID != consentID || refreshToken.Revoked {
			continue
		}

		if revokeErr := c.RevokeRefreshToken(ctx, refreshToken.TokenPrefix); revokeErr != nil {
			return revoked, revokeErr
		}
		revoked++
	}

	c.logger.WithFields(logrus.Fields{
		"consent_id":     consentID,
		"tokens_revoked": revoked,
	}).Info("Consent grants revoked")
	return revoked, nil
}

// ClearUserSessions deletes all sessions for a specific user. Scans all
// session keys, retrieves each session to check the UserID, and deletes
// matching sessions in batches.
func (c *Client) ClearUserSessions(ctx context.Context, userID string) (int, error) {
	sessionKeys, err := c.scanKeys(ctx, "auth:session:*")
	if err != nil {
		return 0, fmt.Errorf("failed to scan session keys: %w", err)
	}

	var keysToDelete []string
	for _, key := range sessionKeys {
		data, getErr := c.rdb.Get(ctx, key).Bytes()
		if getErr != nil {
			c.logger.WithError(getErr).WithField("key", key).Debug("Failed to get session, skipping")
			continue
		}

		var session models.Session
		if unmarshalErr := json.Unmarshal(data, &session); unmarshalErr != nil {
			c.logger.WithError(unmarshalErr).WithField("key", key).Debug("Failed to unmarshal session, skipping")
			continue
		}

		if session.UserID == userID {
			keysToDelete = append(keysToDelete, key)
		}
	}

	if len(keysToDelete) == 0 {
		c.logger.WithField("user_id", userID).Debug("No sessions found for user")
		return 0, nil
	}

	deleted := 0
	for i := 0; i < len(keysToDelete); i += ScanBatchSize {
		end := i + ScanBatchSize
		if end > len(keysToDelete) {
			end = len(keysToDelete)
		}

		batch := keysToDelete[i:end]
		result, delErr := c.rdb.Del(ctx, batch...).Result()
		if delErr != nil {
			return deleted, fmt.Errorf("failed to delete user session batch: %w", delErr)
		}
		deleted += int(result)
	}

	c.logger.WithFields(logrus.Fields{
		"sessions_cleared": deleted,
		"user_id":          userID,
	}).Info("User sessions cleared successfully")
	return deleted, nil
}

// GetGrantStats summarizes the authorization artifacts currently in Redis.
// Counts come from SCAN over each key pattern; memory usage from INFO.
func (c *Client) GetGrantStats(ctx context.Context, req *models.GrantStatsRequest) (*models.GrantStats, error) {
	codeKeys, err := c.scanKeys(ctx, "auth:code:*")
	if err != nil {
		return nil, fmt.Errorf("failed to scan authorization code keys: %w", err)
	}
	accessKeys, err := c.scanKeys(ctx, "auth:access_token:*")
	if err != nil {
		return nil, fmt.Errorf("failed to scan access token keys: %w", err)
	}
	refreshKeys, err := c.scanKeys(ctx, "auth:refresh_token:*")
	if err != nil {
		return nil, fmt.Errorf("failed to scan refresh token keys: %w", err)
	}
	sessionKeys, err := c.scanKeys(ctx, "auth:session:*")
	if err != nil {
		return nil, fmt.Errorf("failed to scan session keys: %w", err)
	}

	stats := &models.GrantStats{
		ActiveCodes:         len(codeKeys),
		ActiveAccessTokens:  len(accessKeys),
		ActiveRefreshTokens: len(refreshKeys),
		ActiveSessions:      len(sessionKeys),
		MemoryUsage:         c.getMemoryUsage(ctx),
	}

	if req.IncludeTTLDistribution || req.IncludeTTLSummary {
		grantKeys := make([]string, 0, len(codeKeys)+len(accessKeys)+len(refreshKeys))
		grantKeys = append(grantKeys, codeKeys...)
		grantKeys = append(grantKeys, accessKeys...)
		grantKeys = append(grantKeys, refreshKeys...)

		ttls := c.collectTTLs(ctx, grantKeys)
		ages := c.collectGrantAges(ctx, grantKeys)

		ttlInfo := &models.TTLInfo{}
		if req.IncludeTTLDistribution {
			ttlInfo.TTLDistribution = buildTTLDistribution(ttls)
		}
		if req.IncludeTTLSummary {
			ttlInfo.TTLSummary = buildTTLSummary(ttls, ages)
		}
		stats.TTLInfo = ttlInfo
	}

	c.logger.WithFields(logrus.Fields{
		"active_codes":          stats.ActiveCodes,
		"active_access_tokens":  stats.ActiveAccessTokens,
		"active_refresh_tokens": stats.ActiveRefreshTokens,
		"active_sessions":       stats.ActiveSessions,
	}).Debug("Grant stats retrieved successfully")

	return stats, nil
}

// scanKeys uses Redis SCAN to find all keys matching the pattern without
// blocking the server the way KEYS would.
func (c *Client) scanKeys(ctx context.Context, pattern string) ([]string, error) {
	var allKeys []string
	var cursor uint64

	for {
		keys, nextCursor, err := c.rdb.Scan(ctx, cursor, pattern, ScanBatchSize).Result()
		if err != nil {
			return nil, err
		}

		allKeys = append(allKeys, keys...)
		cursor = nextCursor

		if cursor == 0 {
			break
		}
	}

	return allKeys, nil
}

// collectTTLs retrieves remaining TTL values for the given keys, skipping
// keys without a TTL or that vanished mid-scan.
func (c *Client) collectTTLs(ctx context.Context, keys []string) []time.Duration {
	var ttls []time.Duration

	for _, key := range keys {
		ttl, err := c.rdb.TTL(ctx, key).Result()
		if err != nil || ttl < 0 {
			continue
		}
		ttls = append(ttls, ttl)
	}

	return ttls
}

// grantTimestamps is the slice of a stored grant record needed for age
// calculations; the rest of the JSON is ignored.
type grantTimestamps struct {
	CreatedAt time.Time `json:"created_at"`
}

// collectGrantAges reads each grant record's creation time and returns the
// ages of all readable records.
func (c *Client) collectGrantAges(ctx context.Context, keys []string) []time.Duration {
	var ages []time.Duration
	now := time.Now()

	for _, key := range keys {
		data, err := c.rdb.Get(ctx, key).Bytes()
		if err != nil {
			continue
		}

		var ts grantTimestamps
		if unmarshalErr := json.Unmarshal(data, &ts); unmarshalErr != nil || ts.CreatedAt.IsZero() {
			continue
		}

		ages = append(ages, now.Sub(ts.CreatedAt))
	}

	return ages
}

// buildTTLDistribution creates histogram buckets for grant TTL distribution.
func buildTTLDistribution(ttls []time.Duration) []models.TTLDistributionBucket {
	buckets := []struct {
		start    time.Duration
		end      time.Duration
		startStr string
		endStr   string
	}{
		{0, 10 * time.Minute, "0m", "10m"},
		{10 * time.Minute, time.Hour, "10m", "1h"},
		{time.Hour, 24 * time.Hour, "1h", "24h"},
		{24 * time.Hour, 7 * 24 * time.Hour, "24h", "7d"},
		{7 * 24 * time.Hour, time.Duration(1<<63 - 1), "7d", ""},
	}

	distribution := make([]models.TTLDistributionBucket, len(buckets))
	for i, bucket := range buckets {
		distribution[i] = models.TTLDistributionBucket{
			RangeStart: bucket.startStr,
			RangeEnd:   bucket.endStr,
			GrantCount: 0,
		}
	}

	for _, ttl := range ttls {
		for i, bucket := range buckets {
			if ttl >= bucket.start && ttl < bucket.end {
				distribution[i].GrantCount++
				break
			}
		}
	}

	return distribution
}

// buildTTLSummary creates aggregate TTL statistics across all grants.
func buildTTLSummary(ttls, ages []time.Duration) *models.TTLSummary {
	summary := &models.TTLSummary{
		TotalGrantsWithTTL: len(ttls),
	}

	if len(ttls) > 0 {
		var totalSeconds int64
		for _, ttl := range ttls {
			totalSeconds += int64(ttl.Seconds())
		}
		summary.AverageRemainingSeconds = int(totalSeconds / int64(len(ttls)))
	}

	for _, age := range ages {
		if int(age.Seconds()) > summary.OldestGrantAgeSeconds {
			summary.OldestGrantAgeSeconds = int(age.Seconds())
		}
	}

	return summary
}

// getMemoryUsage retrieves memory usage from the Redis INFO command.
func (c *Client) getMemoryUsage(ctx context.Context) string {
	info, err := c.rdb.Info(ctx, "memory").Result()
	if err != nil {
		c.logger.WithError(err).Warn("Failed to get Redis memory info")
		return "unavailable"
	}

	return parseMemoryUsage(info)
}

// parseMemoryUsage extracts used_memory_human from Redis INFO memory output.
func parseMemoryUsage(info string) string {
	for _, line := range splitInfoLines(info) {
		if len(line) > 18 && line[:18] == "used_memory_human:" {
			return line[18:]
		}
	}
	return "unavailable"
}

// splitInfoLines splits Redis INFO output into lines, dropping carriage
// returns.
func splitInfoLines(info string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(info); i++ {
		if info[i] == '\n' {
			line := info[start:i]
			if len(line) > 0 && line[len(line)-1] == '\r' {
				line = line[:len(line)-1]
			}
			lines = append(lines, line)
			start = i + 1
		}
	}
	if start < len(info) {
		lines = append(lines, info[start:])
	}
	return lines
}

func clientKey(clientID string) string {
	return fmt.Sprintf("auth:client:%s", clientID)
}

func authCodeKey(codePrefix string) string {
	return fmt.Sprintf("auth:code:%s", codePrefix)
}

func accessTokenKey(jti string) string {
	return fmt.Sprintf("auth:access_token:%s", jti)
}

func refreshTokenKey(tokenPrefix string) string {
	return fmt.Sprintf("auth:refresh_token:%s", tokenPrefix)
}

func sessionKey(sessionID string) string {
	return fmt.Sprintf("auth:session:%s", sessionID)
}

func consentKey(parishID, userID, clientID string) string {
	return fmt.Sprintf("auth:consent:%s:%s:%s", parishID, userID, clientID)
}

func blacklistKey(jti string) string {
	return fmt.Sprintf("auth:blacklist:%s", jti)
}

// maskToken obscures sensitive identifiers for safe logging.
// Shows only the first 4 and last 4 characters of values longer than 8
// characters; shorter values are completely masked.
func maskToken(token string) string {
	if len(token) <= MinTokenLengthForMasking {
		return "***"
	}
	return token[:4] + "***" + token[len(token)-4:]
}
