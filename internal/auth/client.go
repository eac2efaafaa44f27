package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/fr-mccarty/outwardsign-sub009/internal/models"
	"github.com/fr-mccarty/outwardsign-sub009/internal/repository"
)

// RegisterClient creates a new OAuth2 client registration. Confidential
// clients get a generated secret, returned in plaintext exactly once; only
// the bcrypt hash is stored. Public clients carry no secret and must use
// PKCE instead.
func (s *OAuth2Service) RegisterClient(
	ctx context.Context,
	name string,
	redirectURIs []string,
	scopes []string,
	grantTypes []string,
	confidential bool,
) (*models.Client, error) {
	s.logger.WithFields(map[string]interface{}{
		"name":          name,
		"redirect_uris": redirectURIs,
		"scopes":        scopes,
		"grant_types":   grantTypes,
		"confidential":  confidential,
	}).Info("Registering new OAuth2 client")

	if name == "" {
		return nil, errors.New("client name is required")
	}

	if len(redirectURIs) == 0 {
		return nil, errors.New("at least one redirect URI is required")
	}

	if len(scopes) == 0 {
		scopes = s.config.OAuth2.DefaultScopes
	}

	if len(grantTypes) == 0 {
		grantTypes = []string{string(models.GrantTypeAuthorizationCode)}
	}

	for _, scope := range scopes {
		if !models.IsValidScope(scope) {
			return nil, fmt.Errorf("unsupported scope: %s", scope)
		}
	}

	for _, grantType := range grantTypes {
		if !s.isSupportedGrantType(grantType) {
			return nil, fmt.Errorf("unsupported grant type: %s", grantType)
		}
	}

	if !confidential {
		for _, grantType := range grantTypes {
			if grantType == string(models.GrantTypeClientCredentials) {
				return nil, errors.New("client_credentials requires a confidential client")
			}
		}
	}

	client := models.NewClient(name, redirectURIs, scopes, grantTypes, confidential)
	client.Metadata = make(map[string]interface{})

	var plaintextSecret string
	if confidential {
		plaintextSecret = uuid.New().String()

		hashedSecret, err := HashClientSecret(plaintextSecret)
		if err != nil {
			s.logger.WithError(err).Error("Failed to hash client secret")
			return nil, fmt.Errorf("failed to hash client secret: %w", err)
		}
		client.Secret = hashedSecret
	}

	if storeErr := s.clientRepo.CreateClient(ctx, client); storeErr != nil {
		s.logger.WithError(storeErr).Error("Failed to store client")
		return nil, fmt.Errorf("failed to store client: %w", storeErr)
	}

	s.logger.WithFields(map[string]interface{}{
		"client_id":   client.ID,
		"client_name": client.Name,
	}).Info("OAuth2 client registered successfully")

	// Return the plaintext secret; it is never recoverable after this.
	client.Secret = plaintextSecret
	return client, nil
}

// isSupportedGrantType checks a grant type against the server configuration.
func (s *OAuth2Service) isSupportedGrantType(grantType string) bool {
	for _, supported := range s.config.OAuth2.SupportedGrantTypes {
		if supported == grantType {
			return true
		}
	}
	return false
}

// GetClient retrieves an OAuth2 client registration by client ID.
func (s *OAuth2Service) GetClient(ctx context.Context, clientID string) (*models.Client, error) {
	if clientID == "" {
		return nil, errors.New("client ID is required")
	}

	client, err := s.clientRepo.GetClientByID(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("client not found: %w", err)
	}

	return client, nil
}

// ValidateClient validates client credentials (client ID and secret).
// It returns the client if validation succeeds, otherwise returns an error.
// Secrets are verified against the stored bcrypt hash; public clients
// authenticate with client ID alone.
func (s *OAuth2Service) ValidateClient(ctx context.Context, clientID, clientSecret string) (*models.Client, error) {
	if clientID == "" {
		return nil, models.NewInvalidClient("client_id is required")
	}

	client, err := s.clientRepo.GetClientByID(ctx, clientID)
	if err != nil {
		if !errors.Is(err, repository.ErrClientNotFound) {
			s.logger.WithError(err).Warn("Failed to get client during validation")
		}
		return nil, models.NewInvalidClient("client not found")
	}

	if !client.IsActive {
		return nil, models.NewInvalidClient("client is inactive")
	}

	if client.Confidential {
		if clientSecret == "" {
			return nil, models.NewInvalidClient("client authentication required")
		}
		if verifyErr := VerifyClientSecret(client.Secret, clientSecret); verifyErr != nil {
			s.logger.WithField("client_id", clientID).Warn("Invalid client secret provided")
			return nil, models.NewInvalidClient("invalid client credentials")
		}
	}

	return client, nil
}

// UpdateClientSecret rotates the client secret to a new server-generated
// value. The current secret must be provided for verification before
// rotation. Returns the new plaintext secret (shown only once).
func (s *OAuth2Service) UpdateClientSecret(
	ctx context.Context,
	clientID string,
	currentSecret string,
) (string, error) {
	s.logger.WithField("client_id", clientID).Info("Rotating client secret")

	client, err := s.ValidateClient(ctx, clientID, currentSecret)
	if err != nil {
		return "", fmt.Errorf("invalid current credentials: %w", err)
	}

	if !client.Confidential {
		return "", errors.New("public clients have no secret to rotate")
	}

	newSecret := uuid.New().String()

	newHashedSecret, err := HashClientSecret(newSecret)
	if err != nil {
		s.logger.WithError(err).Error("Failed to hash new client secret")
		return "", fmt.Errorf("failed to hash new secret: %w", err)
	}

	if updateErr := s.clientRepo.UpdateClientSecret(ctx, client.ID, newHashedSecret); updateErr != nil {
		s.logger.WithError(updateErr).Error("Failed to update client secret")
		return "", fmt.Errorf("failed to update secret: %w", updateErr)
	}

	s.logger.WithField("client_id", clientID).Info("Client secret rotated successfully")

	return newSecret, nil
}
