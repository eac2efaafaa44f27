// Package config provides configuration management for the OAuth2 service.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// ClientManifestEntry describes one OAuth2 client to auto-register at
// startup, as declared in the clients.yaml manifest.
type ClientManifestEntry struct {
	// ID is the fixed client identifier. Required so relying parties can be
	// configured before the service first boots.
	ID string `mapstructure:"id"`
	// Name is the human-readable integration name.
	Name string `mapstructure:"name"`
	// Secret is the plaintext secret for confidential clients; it is hashed
	// before storage and never persisted as given.
	Secret string `mapstructure:"secret"`
	// RedirectURIs are the registered redirect URIs.
	RedirectURIs []string `mapstructure:"redirect_uris"`
	// Scopes are the scopes the client may request.
	Scopes []string `mapstructure:"scopes"`
	// GrantTypes are the grant types the client may use.
	GrantTypes []string `mapstructure:"grant_types"`
	// Confidential marks the client as able to hold a secret.
	Confidential bool `mapstructure:"confidential"`
}

// ClientManifest is the parsed clients.yaml manifest.
type ClientManifest struct {
	Clients []ClientManifestEntry `mapstructure:"clients"`
}

// LoadClientManifest reads the client auto-registration manifest from the
// given YAML file. A missing file is reported as an error; callers decide
// whether that is fatal.
func LoadClientManifest(path string) (*ClientManifest, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	dir, file := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	v.SetConfigName(strings.TrimSuffix(file, filepath.Ext(file)))
	v.AddConfigPath(dir)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("client manifest not found at %s: %w", path, err)
		}
		return nil, fmt.Errorf("failed to read client manifest: %w", err)
	}

	var manifest ClientManifest
	if err := v.Unmarshal(&manifest); err != nil {
		return nil, fmt.Errorf("failed to parse client manifest: %w", err)
	}

	for i, entry := range manifest.Clients {
		if entry.ID == "" {
			return nil, fmt.Errorf("client manifest entry %d: id is required", i)
		}
		if entry.Name == "" {
			return nil, fmt.Errorf("client %s: name is required", entry.ID)
		}
		if len(entry.RedirectURIs) == 0 && containsGrantType(entry.GrantTypes, "authorization_code") {
			return nil, fmt.Errorf("client %s: authorization_code clients need at least one redirect URI", entry.ID)
		}
		if entry.Confidential && entry.Secret == "" {
			return nil, fmt.Errorf("client %s: confidential clients require a secret", entry.ID)
		}
	}

	return &manifest, nil
}

func containsGrantType(grantTypes []string, want string) bool {
	for _, gt := range grantTypes {
		if gt == want {
			return true
		}
	}
	return false
}
