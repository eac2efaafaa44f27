// Package redis provides storage implementations for OAuth2 authorization
// data. This file implements an in-memory store that implements the same
// Store interface as the Redis client, allowing local development without a
// Redis dependency.
package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fr-mccarty/outwardsign-sub009/internal/models"
)

const (
	// CleanupInterval is the interval between expired item cleanup runs.
	CleanupInterval = 5 * time.Minute
)

// MemoryStore is an in-memory implementation of the Store interface.
// It provides the same functionality as the Redis store but without
// persistence. All data is stored in memory with TTL support via a
// background cleanup goroutine.
type MemoryStore struct {
	clients       map[string]*models.Client
	authCodes     map[string]*expiringItem[*models.AuthorizationCode]
	accessTokens  map[string]*expiringItem[*models.AccessToken]
	refreshTokens map[string]*expiringItem[*models.RefreshToken]
	sessions      map[string]*expiringItem[*models.Session]
	consents      map[string]*expiringItem[*models.Consent]
	blacklist     map[string]*expiringItem[bool]
	logger        *logrus.Logger
	mu            sync.RWMutex
	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
}

// expiringItem wraps data with expiration time for TTL support.
type expiringItem[T any] struct {
	Data      T
	ExpiresAt time.Time
}

// isExpired checks if the item has expired.
func (e *expiringItem[T]) isExpired() bool {
	return time.Now().After(e.ExpiresAt)
}

// NewMemoryStore creates a new in-memory store with TTL cleanup.
func NewMemoryStore(logger *logrus.Logger) *MemoryStore {
	store := &MemoryStore{
		clients:       make(map[string]*models.Client),
		authCodes:     make(map[string]*expiringItem[*models.AuthorizationCode]),
		accessTokens:  make(map[string]*expiringItem[*models.AccessToken]),
		refreshTokens: make(map[string]*expiringItem[*models.RefreshToken]),
		sessions:      make(map[string]*expiringItem[*models.Session]),
		consents:      make(map[string]*expiringItem[*models.Consent]),
		blacklist:     make(map[string]*expiringItem[bool]),
		logger:        logger,
		cleanupTicker: time.NewTicker(CleanupInterval),
		stopCleanup:   make(chan struct{}),
	}

	go store.cleanupExpiredItems()

	logger.Info("In-memory store initialized with TTL cleanup")
	return store
}

// cleanupExpiredItems runs periodically to remove expired items.
func (m *MemoryStore) cleanupExpiredItems() {
	defer m.cleanupTicker.Stop()

	for {
		select {
		case <-m.cleanupTicker.C:
			m.performCleanup()
		case <-m.stopCleanup:
			return
		}
	}
}

// performCleanup removes expired items from all maps.
func (m *MemoryStore) performCleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	expired := 0

	expired += cleanExpired(m.authCodes, now)
	expired += cleanExpired(m.accessTokens, now)
	expired += cleanExpired(m.refreshTokens, now)
	expired += cleanExpired(m.sessions, now)
	expired += cleanExpired(m.consents, now)
	expired += cleanExpired(m.blacklist, now)

	if expired > 0 {
		m.logger.WithField("expired_items", expired).Debug("Cleaned up expired items from memory store")
	}
}

// cleanExpired removes expired entries from one map and returns the count.
func cleanExpired[T any](items map[string]*expiringItem[T], now time.Time) int {
	expired := 0
	for key, item := range items {
		if now.After(item.ExpiresAt) {
			delete(items, key)
			expired++
		}
	}
	return expired
}

// Close shuts down the memory store and cleanup goroutine.
func (m *MemoryStore) Close() error {
	close(m.stopCleanup)
	m.logger.Info("Memory store closed")
	return nil
}

// Ping always returns nil for memory store (always available).
func (m *MemoryStore) Ping(_ context.Context) error {
	return nil
}

// StoreClient stores a client in memory without expiration.
func (m *MemoryStore) StoreClient(_ context.Context, client *models.Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.clients[client.ID] = client
	m.logger.WithField("client_id", client.ID).Debug("Client stored in memory")
	return nil
}

// GetClient retrieves a client from memory.
// Returns ErrCacheMiss when the client is not present, matching the Redis
// implementation so callers can fall through to the client registry.
func (m *MemoryStore) GetClient(_ context.Context, clientID string) (*models.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	client, exists := m.clients[clientID]
	if !exists {
		return nil, ErrCacheMiss
	}

	return client, nil
}

// DeleteClient removes a client from memory.
func (m *MemoryStore) DeleteClient(_ context.Context, clientID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.clients, clientID)
	m.logger.WithField("client_id", clientID).Debug("Client deleted from memory")
	return nil
}

// StoreAuthorizationCode stores an authorization code record with TTL,
// keyed by the code's lookup prefix.
func (m *MemoryStore) StoreAuthorizationCode(
	_ context.Context,
	code *models.AuthorizationCode,
	ttl time.Duration,
) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.authCodes[code.CodePrefix] = &expiringItem[*models.AuthorizationCode]{
		Data:      code,
		ExpiresAt: time.Now().Add(ttl),
	}
	m.logger.WithField("code_prefix", code.CodePrefix).Debug("Authorization code stored in memory")
	return nil
}

// GetAuthorizationCode retrieves an authorization code record by lookup
// prefix.
func (m *MemoryStore) GetAuthorizationCode(_ context.Context, codePrefix string) (*models.AuthorizationCode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	item, exists := m.authCodes[codePrefix]
	if !exists || item.isExpired() {
		return nil, errors.New("authorization code not found")
	}

	return item.Data, nil
}

// MarkAuthorizationCodeUsed stamps the code record with a used-at time.
// The record stays until its original expiry so replays are recognized.
func (m *MemoryStore) MarkAuthorizationCodeUsed(_ context.Context, code *models.AuthorizationCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, exists := m.authCodes[code.CodePrefix]
	if !exists || item.isExpired() {
		return errors.New("authorization code not found")
	}

	now := time.Now()
	code.UsedAt = &now
	item.Data = code
	m.logger.WithField("code_prefix", code.CodePrefix).Debug("Authorization code marked used in memory")
	return nil
}

// DeleteAuthorizationCode removes an authorization code record from memory.
func (m *MemoryStore) DeleteAuthorizationCode(_ context.Context, codePrefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.authCodes, codePrefix)
	m.logger.WithField("code_prefix", codePrefix).Debug("Authorization code deleted from memory")
	return nil
}

// StoreAccessToken stores an access token record with TTL, keyed by JWT ID.
func (m *MemoryStore) StoreAccessToken(_ context.Context, token *models.AccessToken, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.accessTokens[token.ID] = &expiringItem[*models.AccessToken]{
		Data:      token,
		ExpiresAt: time.Now().Add(ttl),
	}
	m.logger.WithField("jti", maskToken(token.ID)).Debug("Access token stored in memory")
	return nil
}

// GetAccessToken retrieves an access token record by JWT ID.
func (m *MemoryStore) GetAccessToken(_ context.Context, jti string) (*models.AccessToken, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	item, exists := m.accessTokens[jti]
	if !exists || item.isExpired() {
		return nil, errors.New("access token not found")
	}

	return item.Data, nil
}

// DeleteAccessToken removes an access token record from memory.
func (m *MemoryStore) DeleteAccessToken(_ context.Context, jti string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.accessTokens, jti)
	m.logger.WithField("jti", maskToken(jti)).Debug("Access token deleted from memory")
	return nil
}

// RevokeAccessToken marks an access token record as revoked.
func (m *MemoryStore) RevokeAccessToken(_ context.Context, jti string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, exists := m.accessTokens[jti]
	if !exists || item.isExpired() {
		return errors.New("access token not found")
	}

	item.Data.Revoked = true
	m.logger.WithField("jti", maskToken(jti)).Debug("Access token revoked in memory")
	return nil
}

// StoreRefreshToken stores a refresh token record with TTL, keyed by the
// token's lookup prefix.
func (m *MemoryStore) StoreRefreshToken(_ context.Context, token *models.RefreshToken, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.refreshTokens[token.TokenPrefix] = &expiringItem[*models.RefreshToken]{
		Data:      token,
		ExpiresAt: time.Now().Add(ttl),
	}
	m.logger.WithField("token_prefix", token.TokenPrefix).Debug("Refresh token stored in memory")
	return nil
}

// GetRefreshToken retrieves a refresh token record by lookup prefix.
func (m *MemoryStore) GetRefreshToken(_ context.Context, tokenPrefix string) (*models.RefreshToken, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	item, exists := m.refreshTokens[tokenPrefix]
	if !exists || item.isExpired() {
		return nil, errors.New("refresh token not found")
	}

	return item.Data, nil
}

// UpdateRefreshToken writes a refresh token record back, preserving its
// original expiry.
func (m *MemoryStore) UpdateRefreshToken(_ context.Context, token *models.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, exists := m.refreshTokens[token.TokenPrefix]
	if !exists || item.isExpired() {
		return errors.New("refresh token not found")
	}

	item.Data = token
	m.logger.WithField("token_prefix", token.TokenPrefix).Debug("Refresh token updated in memory")
	return nil
}

// DeleteRefreshToken removes a refresh token record from memory.
func (m *MemoryStore) DeleteRefreshToken(_ context.Context, tokenPrefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.refreshTokens, tokenPrefix)
	m.logger.WithField("token_prefix", tokenPrefix).Debug("Refresh token deleted from memory")
	return nil
}

// RevokeRefreshToken marks a refresh token record as revoked.
func (m *MemoryStore) RevokeRefreshToken(_ context.Context, tokenPrefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, exists := m.refreshTokens[tokenPrefix]
	if !exists || item.isExpired() {
		return errors.New("refresh token not found")
	}

	item.Data.Revoked = true
	m.logger.WithField("token_prefix", tokenPrefix).Debug("Refresh token revoked in memory")
	return nil
}

// StoreSession stores a session with TTL.
func (m *MemoryStore) StoreSession(_ context.Context, session *models.Session, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[session.ID] = &expiringItem[*models.Session]{
		Data:      session,
		ExpiresAt: time.Now().Add(ttl),
	}
	m.logger.WithField("session_id", session.ID).Debug("Session stored in memory")
	return nil
}

// GetSession retrieves a session from memory.
func (m *MemoryStore) GetSession(_ context.Context, sessionID string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	item, exists := m.sessions[sessionID]
	if !exists || item.isExpired() {
		return nil, errors.New("session not found")
	}

	return item.Data, nil
}

// DeleteSession removes a session from memory.
func (m *MemoryStore) DeleteSession(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, sessionID)
	m.logger.WithField("session_id", sessionID).Debug("Session deleted from memory")
	return nil
}

// StoreConsent caches a consent record with TTL.
func (m *MemoryStore) StoreConsent(_ context.Context, consent *models.Consent, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := memoryConsentKey(consent.ParishID, consent.UserID, consent.ClientID)
	m.consents[key] = &expiringItem[*models.Consent]{
		Data:      consent,
		ExpiresAt: time.Now().Add(ttl),
	}
	m.logger.WithFields(logrus.Fields{
		"user_id":   consent.UserID,
		"client_id": consent.ClientID,
	}).Debug("Consent cached in memory")
	return nil
}

// GetConsent retrieves a cached consent. Returns ErrCacheMiss when absent.
func (m *MemoryStore) GetConsent(_ context.Context, parishID, userID, clientID string) (*models.Consent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	item, exists := m.consents[memoryConsentKey(parishID, userID, clientID)]
	if !exists || item.isExpired() {
		return nil, ErrCacheMiss
	}

	return item.Data, nil
}

// DeleteConsent evicts a cached consent.
func (m *MemoryStore) DeleteConsent(_ context.Context, parishID, userID, clientID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.consents, memoryConsentKey(parishID, userID, clientID))
	return nil
}

// IsTokenBlacklisted checks if an access token's JWT ID is blacklisted.
func (m *MemoryStore) IsTokenBlacklisted(_ context.Context, jti string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	item, exists := m.blacklist[jti]
	if !exists || item.isExpired() {
		return false, nil
	}

	return item.Data, nil
}

// BlacklistToken adds an access token's JWT ID to the blacklist with TTL.
func (m *MemoryStore) BlacklistToken(_ context.Context, jti string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.blacklist[jti] = &expiringItem[bool]{
		Data:      true,
		ExpiresAt: time.Now().Add(ttl),
	}
	m.logger.WithField("jti", maskToken(jti)).Debug("Token blacklisted in memory")
	return nil
}

// RevokeConsentGrants revokes every access and refresh token record issued
// under the given consent, blacklisting the access token IDs.
func (m *MemoryStore) RevokeConsentGrants(_ context.Context, consentID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	revoked := 0

	for _, item := range m.accessTokens {
		if item.isExpired() || item.Data.ConsentID != consentID || item.Data.Revoked {
			continue
		}
		item.Data.Revoked = true
		m.blacklist[item.Data.ID] = &expiringItem[bool]{
			Data:      true,
			ExpiresAt: item.Data.ExpiresAt,
		}
		revoked++
	}

	for _, item := range m.refreshTokens {
		if item.isExpired() || item.Data.ConsentID != consentID || item.Data.Revoked {
			continue
		}
		item.Data.Revoked = true
		revoked++
	}

	m.logger.WithFields(logrus.Fields{
		"consent_id":     consentID,
		"tokens_revoked": revoked,
	}).Info("Consent grants revoked in memory")
	return revoked, nil
}

// ClearUserSessions deletes all sessions for a specific user.
func (m *MemoryStore) ClearUserSessions(_ context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	deleted := 0
	for key, item := range m.sessions {
		if item.Data.UserID != userID {
			continue
		}
		expired := item.isExpired()
		delete(m.sessions, key)
		if !expired {
			deleted++
		}
	}

	m.logger.WithFields(logrus.Fields{
		"sessions_cleared": deleted,
		"user_id":          userID,
	}).Info("User sessions cleared from memory")
	return deleted, nil
}

// GetGrantStats summarizes the authorization artifacts currently in memory.
func (m *MemoryStore) GetGrantStats(_ context.Context, req *models.GrantStatsRequest) (*models.GrantStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &models.GrantStats{
		ActiveCodes:         countLive(m.authCodes),
		ActiveAccessTokens:  countLive(m.accessTokens),
		ActiveRefreshTokens: countLive(m.refreshTokens),
		ActiveSessions:      countLive(m.sessions),
		MemoryUsage:         "in-memory",
	}

	if req.IncludeTTLDistribution || req.IncludeTTLSummary {
		now := time.Now()
		var ttls, ages []time.Duration

		collectMemoryGrants(m.authCodes, now, &ttls, &ages, func(c *models.AuthorizationCode) time.Time { return c.CreatedAt })
		collectMemoryGrants(m.accessTokens, now, &ttls, &ages, func(t *models.AccessToken) time.Time { return t.CreatedAt })
		collectMemoryGrants(m.refreshTokens, now, &ttls, &ages, func(t *models.RefreshToken) time.Time { return t.CreatedAt })

		ttlInfo := &models.TTLInfo{}
		if req.IncludeTTLDistribution {
			ttlInfo.TTLDistribution = buildTTLDistribution(ttls)
		}
		if req.IncludeTTLSummary {
			ttlInfo.TTLSummary = buildTTLSummary(ttls, ages)
		}
		stats.TTLInfo = ttlInfo
	}

	return stats, nil
}

// countLive counts non-expired entries in one map.
func countLive[T any](items map[string]*expiringItem[T]) int {
	count := 0
	for _, item := range items {
		if !item.isExpired() {
			count++
		}
	}
	return count
}

// collectMemoryGrants appends remaining TTLs and ages for live grants.
func collectMemoryGrants[T any](
	items map[string]*expiringItem[T],
	now time.Time,
	ttls, ages *[]time.Duration,
	createdAt func(T) time.Time,
) {
	for _, item := range items {
		if item.isExpired() {
			continue
		}
		*ttls = append(*ttls, item.ExpiresAt.Sub(now))
		if created := createdAt(item.Data); !created.IsZero() {
			*ages = append(*ages, now.Sub(created))
		}
	}
}

func memoryConsentKey(parishID, userID, clientID string) string {
	return fmt.Sprintf("%s:%s:%s", parishID, userID, clientID)
}
