// Package startup provides utilities for service initialization including
// client auto-registration from the clients.yaml manifest.
package startup

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/fr-mccarty/outwardsign-sub009/internal/auth"
	"github.com/fr-mccarty/outwardsign-sub009/internal/config"
	"github.com/fr-mccarty/outwardsign-sub009/internal/models"
	"github.com/fr-mccarty/outwardsign-sub009/internal/repository"
)

// ClientRegistrationService seeds the client registry from a YAML manifest at
// startup. Manifest clients carry fixed IDs so the parish app and its
// integrations can be configured before the service first boots; running the
// seeding twice updates registrations in place instead of duplicating them.
type ClientRegistrationService struct {
	config     *config.Config
	clientRepo repository.ClientRepository
	logger     *logrus.Logger
}

// NewClientRegistrationService creates a new client registration service.
func NewClientRegistrationService(
	cfg *config.Config,
	clientRepo repository.ClientRepository,
	logger *logrus.Logger,
) *ClientRegistrationService {
	return &ClientRegistrationService{
		config:     cfg,
		clientRepo: clientRepo,
		logger:     logger,
	}
}

// RegisterClients seeds clients from the manifest when auto-registration is
// enabled. A missing manifest file is logged and skipped; a malformed one is
// an error.
func (crs *ClientRegistrationService) RegisterClients(ctx context.Context) error {
	if !crs.config.ClientAutoRegister.Enabled {
		return nil
	}

	manifest, err := config.LoadClientManifest(crs.config.ClientAutoRegister.ConfigPath)
	if err != nil {
		crs.logger.WithError(err).Warn("Client manifest not loaded, skipping auto-registration")
		return nil
	}

	crs.logger.WithFields(logrus.Fields{
		"config_path":  crs.config.ClientAutoRegister.ConfigPath,
		"client_count": len(manifest.Clients),
	}).Info("Auto-registering clients from manifest")

	for _, entry := range manifest.Clients {
		if seedErr := crs.seedClient(ctx, &entry); seedErr != nil {
			crs.logger.WithFields(logrus.Fields{
				"client_id": entry.ID,
				"error":     seedErr,
			}).Error("Failed to seed client from manifest")
			return seedErr
		}
	}

	return nil
}

// seedClient creates or updates a single manifest client.
func (crs *ClientRegistrationService) seedClient(ctx context.Context, entry *config.ClientManifestEntry) error {
	scopes := entry.Scopes
	if len(scopes) == 0 {
		scopes = crs.config.OAuth2.DefaultScopes
	}
	for _, scope := range scopes {
		if !models.IsValidScope(scope) {
			return fmt.Errorf("client %s: unknown scope %q", entry.ID, scope)
		}
	}

	grantTypes := entry.GrantTypes
	if len(grantTypes) == 0 {
		grantTypes = []string{string(models.GrantTypeAuthorizationCode)}
	}

	client := models.NewClient(entry.Name, entry.RedirectURIs, scopes, grantTypes, entry.Confidential)
	client.ID = entry.ID

	if entry.Confidential {
		hashed, err := auth.HashClientSecret(entry.Secret)
		if err != nil {
			return fmt.Errorf("client %s: failed to hash secret: %w", entry.ID, err)
		}
		client.Secret = hashed
	}

	existing, err := crs.clientRepo.GetClientByID(ctx, entry.ID)
	switch {
	case err == nil:
		// Preserve the original creation time on re-seed.
		client.CreatedAt = existing.CreatedAt
		if updateErr := crs.clientRepo.UpdateClient(ctx, client); updateErr != nil {
			return fmt.Errorf("client %s: update failed: %w", entry.ID, updateErr)
		}
		crs.logger.WithFields(logrus.Fields{
			"client_id":   client.ID,
			"client_name": client.Name,
		}).Info("Manifest client updated")
	case errors.Is(err, repository.ErrClientNotFound):
		if createErr := crs.clientRepo.CreateClient(ctx, client); createErr != nil {
			return fmt.Errorf("client %s: create failed: %w", entry.ID, createErr)
		}
		crs.logger.WithFields(logrus.Fields{
			"client_id":    client.ID,
			"client_name":  client.Name,
			"confidential": client.Confidential,
		}).Info("Manifest client registered")
	default:
		return fmt.Errorf("client %s: lookup failed: %w", entry.ID, err)
	}

	return nil
}
