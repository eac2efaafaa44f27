// Package main provides a CLI tool for managing OAuth2 client registrations
// against a running consent service. It can register integrations one at a
// time or in bulk, look up existing registrations, and rotate confidential
// client secrets.
package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type ClientConfig struct {
	Name         string   `json:"name"`
	RedirectURIs []string `json:"redirect_uris"`
	Scopes       []string `json:"scopes"`
	GrantTypes   []string `json:"grant_types"`
	Confidential bool     `json:"confidential"`
}

// registeredClient mirrors the registration response. The secret is only
// present in registration and rotation responses.
type registeredClient struct {
	ID           string   `json:"id"`
	Secret       string   `json:"secret,omitempty"`
	Name         string   `json:"name"`
	RedirectURIs []string `json:"redirect_uris"`
	Scopes       []string `json:"scopes"`
	GrantTypes   []string `json:"grant_types"`
	Confidential bool     `json:"confidential"`
	CreatedAt    string   `json:"created_at"`
}

type ClientManager struct {
	baseURL string
	client  *http.Client
}

func main() {
	var (
		baseURL      = flag.String("url", "http://localhost:8080", "Consent service base URL")
		configFile   = flag.String("config", "", "Path to client configuration file")
		action       = flag.String("action", "register", "Action to perform: register, get, rotate-secret")
		clientID     = flag.String("client-id", "", "Client ID for get/rotate-secret operations")
		secret       = flag.String("secret", "", "Current client secret for rotate-secret")
		name         = flag.String("name", "", "Client name for single registration")
		redirects    = flag.String("redirects", "", "Comma-separated redirect URIs")
		scopes       = flag.String("scopes", "", "Comma-separated scopes")
		grants       = flag.String("grants", "", "Comma-separated grant types")
		confidential = flag.Bool("confidential", false, "Register as a confidential client (issues a secret)")
	)
	flag.Parse()

	manager := &ClientManager{
		baseURL: *baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}

	switch *action {
	case "register":
		if *configFile != "" {
			err := manager.registerFromConfig(*configFile)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error registering from config: %v\n", err)
				os.Exit(1)
			}
		} else if *name != "" {
			config := ClientConfig{
				Name:         *name,
				RedirectURIs: parseStringList(*redirects),
				Scopes:       parseStringList(*scopes),
				GrantTypes:   parseStringList(*grants),
				Confidential: *confidential,
			}
			client, err := manager.registerClient(config)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error registering client: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("Client registered successfully:\n")
			printClient(client)
		} else {
			fmt.Fprintf(os.Stderr, "Please specify -name or -config for registration\n")
			os.Exit(1)
		}
	case "get":
		if *clientID == "" {
			fmt.Fprintf(os.Stderr, "Client ID is required for get operation\n")
			os.Exit(1)
		}
		client, err := manager.getClient(*clientID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error getting client: %v\n", err)
			os.Exit(1)
		}
		printClient(client)
	case "rotate-secret":
		if *clientID == "" || *secret == "" {
			fmt.Fprintf(os.Stderr, "Client ID and -secret are required for rotate-secret\n")
			os.Exit(1)
		}
		newSecret, err := manager.rotateSecret(*clientID, *secret)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error rotating secret: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Secret rotated for %s\n", *clientID)
		fmt.Printf("New secret: %s\n", newSecret)
		fmt.Println("Store it now; it will not be shown again.")
	default:
		fmt.Fprintf(os.Stderr, "Unknown action: %s\n", *action)
		os.Exit(1)
	}
}

// validateConfigPath validates the config path to prevent directory traversal attacks.
func validateConfigPath(configPath string) error {
	// Clean the path to resolve any . or .. elements
	cleanPath := filepath.Clean(configPath)

	// Ensure the path doesn't contain directory traversal sequences
	if strings.Contains(cleanPath, "..") {
		return errors.New("directory traversal not allowed in config path")
	}

	// Ensure it's a JSON file
	if !strings.HasSuffix(strings.ToLower(cleanPath), ".json") {
		return errors.New("config file must be a JSON file")
	}

	return nil
}

func (cm *ClientManager) registerFromConfig(configPath string) error {
	// Validate and sanitize the config path for security
	if err := validateConfigPath(configPath); err != nil {
		return fmt.Errorf("invalid config path: %w", err)
	}

	// #nosec G304 - configPath is validated above to prevent directory traversal
	file, err := os.Open(configPath)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	var configs []ClientConfig
	if err := json.NewDecoder(file).Decode(&configs); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	fmt.Printf("Registering %d clients from config...\n", len(configs))

	for i, config := range configs {
		fmt.Printf("[%d/%d] Registering %s...", i+1, len(configs), config.Name)
		client, err := cm.registerClient(config)
		if err != nil {
			fmt.Printf(" FAILED: %v\n", err)
			continue
		}
		fmt.Printf(" SUCCESS\n")
		fmt.Printf("  Client ID: %s\n", client.ID)
		if client.Secret != "" {
			fmt.Printf("  Client Secret: %s\n", client.Secret)
		}
		fmt.Println()
	}

	return nil
}

func (cm *ClientManager) registerClient(config ClientConfig) (*registeredClient, error) {
	// Set defaults if not provided
	if len(config.Scopes) == 0 {
		config.Scopes = []string{"read"}
	}
	if len(config.GrantTypes) == 0 {
		config.GrantTypes = []string{"authorization_code"}
	}
	if len(config.RedirectURIs) == 0 {
		return nil, errors.New("at least one redirect URI is required")
	}

	payload, err := json.Marshal(config)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := cm.client.Post(
		cm.baseURL+"/oauth2/clients",
		"application/json",
		bytes.NewBuffer(payload),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusCreated {
		return nil, apiError(body)
	}

	var client registeredClient
	if err := json.Unmarshal(body, &client); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return &client, nil
}

func (cm *ClientManager) getClient(clientID string) (*registeredClient, error) {
	resp, err := cm.client.Get(cm.baseURL + "/oauth2/clients/" + clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(body)
	}

	var client registeredClient
	if err := json.Unmarshal(body, &client); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return &client, nil
}

func (cm *ClientManager) rotateSecret(clientID, currentSecret string) (string, error) {
	payload, err := json.Marshal(map[string]string{"current_secret": currentSecret})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := cm.client.Post(
		cm.baseURL+"/oauth2/clients/"+clientID+"/rotate-secret",
		"application/json",
		bytes.NewBuffer(payload),
	)
	if err != nil {
		return "", fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", apiError(body)
	}

	var rotation struct {
		ClientID string `json:"client_id"`
		Secret   string `json:"secret"`
	}
	if err := json.Unmarshal(body, &rotation); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	return rotation.Secret, nil
}

func apiError(body []byte) error {
	var errorResp map[string]string
	if json.Unmarshal(body, &errorResp) == nil && errorResp["error"] != "" {
		return fmt.Errorf("API error: %s", errorResp["error"])
	}
	return fmt.Errorf("API error: %s", string(body))
}

func parseStringList(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	for i, part := range parts {
		parts[i] = strings.TrimSpace(part)
	}
	return parts
}

func printClient(client *registeredClient) {
	fmt.Printf("Client ID: %s\n", client.ID)
	if client.Secret != "" {
		fmt.Printf("Client Secret: %s\n", client.Secret)
	}
	fmt.Printf("Name: %s\n", client.Name)
	fmt.Printf("Redirect URIs: %s\n", strings.Join(client.RedirectURIs, ", "))
	fmt.Printf("Scopes: %s\n", strings.Join(client.Scopes, ", "))
	fmt.Printf("Grant Types: %s\n", strings.Join(client.GrantTypes, ", "))
	fmt.Printf("Confidential: %v\n", client.Confidential)
	fmt.Printf("Created: %s\n", client.CreatedAt)
}
