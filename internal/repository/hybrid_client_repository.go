package repository

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/fr-mccarty/outwardsign-sub009/internal/models"
	"github.com/fr-mccarty/outwardsign-sub009/internal/redis"
)

// ErrClientNotFound is returned when a client does not exist in the repository.
var ErrClientNotFound = errors.New("client not found")

// HybridClientRepository implements ClientRepository with MySQL primary
// storage and Redis caching. It follows the cache-aside pattern:
//   - Reads: Check cache first, on miss read from MySQL and populate cache
//   - Writes: Write to MySQL first (source of truth), then update cache
//   - Graceful degradation: Falls back to Redis-only if MySQL is unavailable
//
// Thread-safe for concurrent operations.
type HybridClientRepository struct {
	mysql  ClientRepository // MySQL repository (primary storage)
	redis  ClientRepository // Redis repository (cache layer)
	logger *logrus.Logger

	// State tracking for graceful degradation
	mysqlAvailable bool
	mu             sync.RWMutex
}

// NewHybridClientRepository creates a new hybrid client repository.
// The redis repository is required; mysql can be nil when no durable
// registry is configured.
func NewHybridClientRepository(mysql, redis ClientRepository, logger *logrus.Logger) *HybridClientRepository {
	return &HybridClientRepository{
		mysql:          mysql,
		redis:          redis,
		logger:         logger,
		mysqlAvailable: mysql != nil,
	}
}

// CreateClient stores a new client in MySQL (primary) and Redis (cache).
func (r *HybridClientRepository) CreateClient(ctx context.Context, client *models.Client) error {
	r.mu.RLock()
	mysqlAvailable := r.mysqlAvailable
	r.mu.RUnlock()

	if mysqlAvailable && r.mysql != nil {
		success, err := r.tryMySQLCreate(ctx, client)
		if err != nil {
			return err
		}
		if success {
			return nil
		}
		// MySQL failed with connection error, fall through to Redis
	}

	r.logger.Info("Using Redis-only mode for CreateClient (MySQL unavailable)")
	return r.redis.CreateClient(ctx, client)
}

// tryMySQLCreate attempts to create a client in MySQL and update cache.
// Returns (true, nil) if successful, (false, nil) if connection error
// (caller should fall back), or (false, err) for business logic errors.
func (r *HybridClientRepository) tryMySQLCreate(ctx context.Context, client *models.Client) (bool, error) {
	err := r.mysql.CreateClient(ctx, client)
	if err != nil {
		if isConnectionError(err) {
			r.logger.WithError(err).Warn("MySQL unavailable during CreateClient, falling back to Redis")
			r.setMySQLUnavailable()
			return false, nil
		}
		// Business logic error (e.g., duplicate client)
		return false, err
	}

	r.restoreMySQLAvailable()

	// Update cache best effort: MySQL is source of truth
	if cacheErr := r.redis.CreateClient(ctx, client); cacheErr != nil {
		r.logger.WithError(cacheErr).Warn("Failed to cache client in Redis after MySQL create")
	}
	return true, nil
}

// GetClientByID retrieves a client from cache (Redis) first, then MySQL on
// cache miss.
func (r *HybridClientRepository) GetClientByID(ctx context.Context, clientID string) (*models.Client, error) {
	client, err := r.redis.GetClientByID(ctx, clientID)
	if err != nil && !errors.Is(err, redis.ErrCacheMiss) {
		r.logger.WithError(err).WithField("client_id", clientID).Debug("Redis error during GetClientByID")
	}
	if client != nil {
		return client, nil // Cache hit
	}

	// Cache miss. MySQL is attempted even if previously marked unavailable
	// to allow recovery.
	if r.mysql == nil {
		r.logger.WithField("client_id", clientID).Debug("Cache miss, MySQL not configured")
		return nil, ErrClientNotFound
	}

	r.logger.WithField("client_id", clientID).Debug("Redis cache miss, fetching from MySQL")

	client, err = r.mysql.GetClientByID(ctx, clientID)
	if err != nil {
		if isConnectionError(err) {
			r.logger.WithError(err).WithField("client_id", clientID).Warn("MySQL unavailable during GetClientByID")
			r.setMySQLUnavailable()
		}
		return nil, err
	}

	if client == nil {
		return nil, ErrClientNotFound
	}

	r.restoreMySQLAvailable()

	// Populate cache best effort
	if cacheErr := r.redis.CreateClient(ctx, client); cacheErr != nil {
		r.logger.WithError(cacheErr).WithField("client_id", clientID).Debug("Failed to populate cache after MySQL read")
	} else {
		r.logger.WithField("client_id", clientID).Debug("Client fetched from MySQL and cached")
	}

	return client, nil
}

// UpdateClient updates the client in MySQL (primary) and updates the cache.
func (r *HybridClientRepository) UpdateClient(ctx context.Context, client *models.Client) error {
	r.mu.RLock()
	mysqlAvailable := r.mysqlAvailable
	r.mu.RUnlock()

	if mysqlAvailable && r.mysql != nil {
		success, err := r.tryMySQLUpdate(ctx, client)
		if err != nil {
			return err
		}
		if success {
			return nil
		}
	}

	r.logger.Info("Using Redis-only mode for UpdateClient (MySQL unavailable)")
	return r.redis.UpdateClient(ctx, client)
}

// tryMySQLUpdate attempts to update a client in MySQL and update cache.
func (r *HybridClientRepository) tryMySQLUpdate(ctx context.Context, client *models.Client) (bool, error) {
	err := r.mysql.UpdateClient(ctx, client)
	if err != nil {
		if isConnectionError(err) {
			r.logger.WithError(err).Warn("MySQL unavailable during UpdateClient, falling back to Redis")
			r.setMySQLUnavailable()
			return false, nil
		}
		return false, err
	}

	r.restoreMySQLAvailable()

	if cacheErr := r.redis.UpdateClient(ctx, client); cacheErr != nil {
		r.logger.WithError(cacheErr).Warn("Failed to update cache in Redis after MySQL update")
	}
	return true, nil
}

// UpdateClientSecret rotates the secret in MySQL (primary) and cache.
func (r *HybridClientRepository) UpdateClientSecret(ctx context.Context, clientID, newSecretHash string) error {
	r.mu.RLock()
	mysqlAvailable := r.mysqlAvailable
	r.mu.RUnlock()

	if mysqlAvailable && r.mysql != nil {
		success, err := r.tryMySQLUpdateSecret(ctx, clientID, newSecretHash)
		if err != nil {
			return err
		}
		if success {
			return nil
		}
	}

	r.logger.Info("Using Redis-only mode for UpdateClientSecret (MySQL unavailable)")
	return r.redis.UpdateClientSecret(ctx, clientID, newSecretHash)
}

// tryMySQLUpdateSecret attempts to update a client secret in MySQL and cache.
func (r *HybridClientRepository) tryMySQLUpdateSecret(
	ctx context.Context,
	clientID, newSecretHash string,
) (bool, error) {
	err := r.mysql.UpdateClientSecret(ctx, clientID, newSecretHash)
	if err != nil {
		if isConnectionError(err) {
			r.logger.WithError(err).Warn("MySQL unavailable during UpdateClientSecret, falling back to Redis")
			r.setMySQLUnavailable()
			return false, nil
		}
		return false, err
	}

	r.restoreMySQLAvailable()

	if cacheErr := r.redis.UpdateClientSecret(ctx, clientID, newSecretHash); cacheErr != nil {
		r.logger.WithError(cacheErr).Warn("Failed to update secret in Redis cache after MySQL update")
	}
	return true, nil
}

// DeleteClient removes the client from MySQL (primary) and cache.
func (r *HybridClientRepository) DeleteClient(ctx context.Context, clientID string) error {
	r.mu.RLock()
	mysqlAvailable := r.mysqlAvailable
	r.mu.RUnlock()

	if mysqlAvailable && r.mysql != nil {
		success, err := r.tryMySQLDelete(ctx, clientID)
		if err != nil {
			return err
		}
		if success {
			return nil
		}
	}

	r.logger.Info("Using Redis-only mode for DeleteClient (MySQL unavailable)")
	return r.redis.DeleteClient(ctx, clientID)
}

// tryMySQLDelete attempts to delete a client from MySQL and cache.
func (r *HybridClientRepository) tryMySQLDelete(ctx context.Context, clientID string) (bool, error) {
	err := r.mysql.DeleteClient(ctx, clientID)
	if err != nil {
		if isConnectionError(err) {
			r.logger.WithError(err).Warn("MySQL unavailable during DeleteClient, falling back to Redis")
			r.setMySQLUnavailable()
			return false, nil
		}
		return false, err
	}

	r.restoreMySQLAvailable()

	if cacheErr := r.redis.DeleteClient(ctx, clientID); cacheErr != nil {
		r.logger.WithError(cacheErr).Warn("Failed to delete from Redis cache after MySQL delete")
	}
	return true, nil
}

// ListActiveClients retrieves all active clients from MySQL (primary source).
func (r *HybridClientRepository) ListActiveClients(ctx context.Context) ([]*models.Client, error) {
	if r.mysql == nil {
		return nil, errors.New("ListActiveClients requires MySQL which is not configured")
	}

	clients, err := r.mysql.ListActiveClients(ctx)
	if err != nil {
		if isConnectionError(err) {
			r.logger.WithError(err).Warn("MySQL unavailable during ListActiveClients")
			r.setMySQLUnavailable()
		}
		return nil, err
	}

	r.restoreMySQLAvailable()

	return clients, nil
}

// IsClientExists checks both cache and MySQL for client existence.
func (r *HybridClientRepository) IsClientExists(ctx context.Context, clientID string) (bool, error) {
	exists, err := r.redis.IsClientExists(ctx, clientID)
	if err == nil && exists {
		return true, nil // Cache hit
	}

	// Check MySQL even if previously marked unavailable to allow recovery
	if r.mysql == nil {
		return exists, err
	}

	exists, err = r.mysql.IsClientExists(ctx, clientID)
	if err != nil {
		if isConnectionError(err) {
			r.logger.WithError(err).Warn("MySQL unavailable during IsClientExists")
			r.setMySQLUnavailable()
		}
		return false, err
	}

	r.restoreMySQLAvailable()

	return exists, nil
}

// GetClientByName retrieves a client by name from MySQL (primary source).
// Only MySQL supports efficient name-based lookups.
func (r *HybridClientRepository) GetClientByName(ctx context.Context, name string) (*models.Client, error) {
	if r.mysql == nil {
		return nil, errors.New("GetClientByName requires MySQL which is not configured")
	}

	client, err := r.mysql.GetClientByName(ctx, name)
	if err != nil {
		if isConnectionError(err) {
			r.logger.WithError(err).Warn("MySQL unavailable during GetClientByName")
			r.setMySQLUnavailable()
		}
		return nil, err
	}

	r.restoreMySQLAvailable()

	return client, nil
}

// setMySQLUnavailable marks MySQL as unavailable (thread-safe).
func (r *HybridClientRepository) setMySQLUnavailable() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.mysqlAvailable {
		r.logger.Warn("MySQL marked as unavailable")
	}
	r.mysqlAvailable = false
}

// restoreMySQLAvailable marks MySQL as available after a successful
// operation (thread-safe). Enables automatic recovery after transient
// connection errors.
func (r *HybridClientRepository) restoreMySQLAvailable() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.mysqlAvailable {
		r.logger.Info("MySQL connectivity restored")
		r.mysqlAvailable = true
	}
}

// SetMySQLAvailable updates the MySQL availability flag (thread-safe).
// Exposed for external health monitoring to restore availability.
func (r *HybridClientRepository) SetMySQLAvailable(available bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mysqlAvailable = available
}

// IsMySQLAvailable returns the current MySQL availability status.
func (r *HybridClientRepository) IsMySQLAvailable() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.mysqlAvailable
}

// isConnectionError determines if an error is a connection/availability
// error rather than a business logic error.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}

	msg := err.Error()
	return strings.Contains(msg, "database connection not available") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "context deadline exceeded")
}
