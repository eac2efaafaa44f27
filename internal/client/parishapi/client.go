package parishapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/sirupsen/logrus"

	"github.com/fr-mccarty/outwardsign-sub009/internal/client"
)

// Client provides methods for interacting with the OutwardSign parish API.
// Each method needs the scope the parishioner granted for it: listing events
// needs read, creating needs write, deleting needs delete, and the profile
// endpoint needs profile.
type Client struct {
	*client.OAuth2Client // Embedded - inherits all OAuth2Client methods

	logger *logrus.Logger
}

// NewClient creates a new parish API client.
// It embeds the provided OAuth2Client for authenticated requests.
//
// Parameters:
//   - oauth2Client: OAuth2-enabled HTTP client
//   - logger: Structured logger for parish API operations
func NewClient(
	oauth2Client *client.OAuth2Client,
	logger *logrus.Logger,
) *Client {
	return &Client{
		OAuth2Client: oauth2Client,
		logger:       logger,
	}
}

// ListEvents fetches the parish calendar events in the given window.
// Requires the read scope.
func (c *Client) ListEvents(ctx context.Context, from, to string) (*EventListResponse, error) {
	params := url.Values{}
	if from != "" {
		params.Set("from", from)
	}
	if to != "" {
		params.Set("to", to)
	}

	path := "/events"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	c.logger.WithFields(logrus.Fields{
		"from": from,
		"to":   to,
	}).Debug("Listing parish events")

	resp, err := c.DoWithAuth(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.apiError(resp, "event listing")
	}

	var list EventListResponse
	if decodeErr := json.NewDecoder(resp.Body).Decode(&list); decodeErr != nil {
		return nil, fmt.Errorf("failed to decode event list response: %w", decodeErr)
	}

	return &list, nil
}

// CreateEvent adds an event to the parish calendar.
// Requires the write scope.
func (c *Client) CreateEvent(ctx context.Context, req *CreateEventRequest) (*Event, error) {
	c.logger.WithFields(logrus.Fields{
		"title": req.Title,
	}).Debug("Creating parish event")

	resp, err := c.DoWithAuth(ctx, http.MethodPost, "/events", req)
	if err != nil {
		return nil, fmt.Errorf("failed to create event: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, c.apiError(resp, "event creation")
	}

	var event Event
	if decodeErr := json.NewDecoder(resp.Body).Decode(&event); decodeErr != nil {
		return nil, fmt.Errorf("failed to decode event response: %w", decodeErr)
	}

	c.logger.WithFields(logrus.Fields{
		"event_id": event.ID,
	}).Info("Parish event created")

	return &event, nil
}

// DeleteEvent removes an event from the parish calendar.
// Requires the delete scope.
func (c *Client) DeleteEvent(ctx context.Context, eventID string) error {
	c.logger.WithFields(logrus.Fields{
		"event_id": eventID,
	}).Debug("Deleting parish event")

	resp, err := c.DoWithAuth(ctx, http.MethodDelete, "/events/"+eventID, nil)
	if err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return c.apiError(resp, "event deletion")
	}

	return nil
}

// GetProfile fetches the parish member profile of the delegating user.
// Requires the profile scope.
func (c *Client) GetProfile(ctx context.Context) (*Profile, error) {
	resp, err := c.DoWithAuth(ctx, http.MethodGet, "/profile", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.apiError(resp, "profile lookup")
	}

	var profile Profile
	if decodeErr := json.NewDecoder(resp.Body).Decode(&profile); decodeErr != nil {
		return nil, fmt.Errorf("failed to decode profile response: %w", decodeErr)
	}

	return &profile, nil
}

// apiError turns a non-success response into an error, using the structured
// error body when the parish API provides one.
func (c *Client) apiError(resp *http.Response, operation string) error {
	var errResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil || errResp.Message == "" {
		return fmt.Errorf("%s failed with status %d", operation, resp.StatusCode)
	}

	c.logger.WithFields(logrus.Fields{
		"status":  resp.StatusCode,
		"error":   errResp.Error,
		"message": errResp.Message,
	}).Errorf("Parish API %s failed", operation)

	return fmt.Errorf("%s failed: %s", operation, errResp.Message)
}
