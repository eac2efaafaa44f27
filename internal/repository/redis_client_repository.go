package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/fr-mccarty/outwardsign-sub009/internal/models"
	"github.com/fr-mccarty/outwardsign-sub009/internal/redis"
)

// RedisClientRepository implements ClientRepository on top of the Redis
// store. It serves as the cache layer of the hybrid repository and as the
// sole registry when MySQL is not configured.
type RedisClientRepository struct {
	store redis.Store
}

// NewRedisClientRepository creates a new Redis client repository.
func NewRedisClientRepository(store redis.Store) *RedisClientRepository {
	return &RedisClientRepository{
		store: store,
	}
}

// CreateClient stores a new OAuth2 client in Redis.
func (r *RedisClientRepository) CreateClient(ctx context.Context, client *models.Client) error {
	existing, err := r.store.GetClient(ctx, client.ID)
	if err != nil && !errors.Is(err, redis.ErrCacheMiss) {
		return fmt.Errorf("failed to check for existing client: %w", err)
	}
	if existing != nil {
		return fmt.Errorf("client already exists: %s", client.ID)
	}

	return r.store.StoreClient(ctx, client)
}

// GetClientByID retrieves an OAuth2 client from Redis by ID.
// A cache miss is reported as ErrClientNotFound; the hybrid repository
// distinguishes misses from real Redis errors via redis.ErrCacheMiss.
func (r *RedisClientRepository) GetClientByID(ctx context.Context, clientID string) (*models.Client, error) {
	client, err := r.store.GetClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// UpdateClient updates an existing OAuth2 client in Redis.
func (r *RedisClientRepository) UpdateClient(ctx context.Context, client *models.Client) error {
	if _, err := r.store.GetClient(ctx, client.ID); err != nil {
		if errors.Is(err, redis.ErrCacheMiss) {
			return fmt.Errorf("client not found: %s", client.ID)
		}
		return fmt.Errorf("failed to get client: %w", err)
	}

	return r.store.StoreClient(ctx, client)
}

// UpdateClientSecret rotates the client secret to a new hashed value.
func (r *RedisClientRepository) UpdateClientSecret(ctx context.Context, clientID, newSecretHash string) error {
	client, err := r.store.GetClient(ctx, clientID)
	if err != nil {
		if errors.Is(err, redis.ErrCacheMiss) {
			return fmt.Errorf("client not found: %s", clientID)
		}
		return fmt.Errorf("failed to get client: %w", err)
	}

	client.Secret = newSecretHash // pragma: allowlist secret
	return r.store.StoreClient(ctx, client)
}

// DeleteClient removes an OAuth2 client from Redis.
func (r *RedisClientRepository) DeleteClient(ctx context.Context, clientID string) error {
	if _, err := r.store.GetClient(ctx, clientID); err != nil {
		if errors.Is(err, redis.ErrCacheMiss) {
			return fmt.Errorf("client not found: %s", clientID)
		}
		return fmt.Errorf("failed to get client: %w", err)
	}

	return r.store.DeleteClient(ctx, clientID)
}

// ListActiveClients is not supported in the Redis repository. Listing would
// require a SCAN over every auth:client:* key; the MySQL registry serves
// this operation instead.
func (r *RedisClientRepository) ListActiveClients(_ context.Context) ([]*models.Client, error) {
	return nil, errors.New("ListActiveClients is not efficiently supported in Redis repository")
}

// IsClientExists checks if a client with the given ID exists in Redis.
func (r *RedisClientRepository) IsClientExists(ctx context.Context, clientID string) (bool, error) {
	client, err := r.store.GetClient(ctx, clientID)
	if err != nil {
		if errors.Is(err, redis.ErrCacheMiss) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check client existence: %w", err)
	}
	return client != nil, nil
}

// GetClientByName is not supported in the Redis repository. Clients are
// cached by ID only; name lookups go to the MySQL registry.
func (r *RedisClientRepository) GetClientByName(_ context.Context, _ string) (*models.Client, error) {
	return nil, errors.New("GetClientByName is not efficiently supported in Redis repository")
}
