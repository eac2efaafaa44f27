// Package models provides data structures for the OAuth2 service.
package models

// GrantStats summarizes the authorization artifacts currently held in the
// hot store, for the admin dashboard.
type GrantStats struct {
	ActiveCodes         int      `json:"activeCodes"`
	ActiveAccessTokens  int      `json:"activeAccessTokens"`
	ActiveRefreshTokens int      `json:"activeRefreshTokens"`
	ActiveSessions      int      `json:"activeSessions"`
	MemoryUsage         string   `json:"memoryUsage"`
	TTLInfo             *TTLInfo `json:"ttlInfo,omitempty"`
}

// TTLInfo contains optional expiry-related statistics for stored grants.
type TTLInfo struct {
	TTLDistribution []TTLDistributionBucket `json:"ttlDistribution,omitempty"`
	TTLSummary      *TTLSummary             `json:"ttlSummary,omitempty"`
}

// TTLDistributionBucket is a histogram bucket counting grants that expire
// within a specific time range.
type TTLDistributionBucket struct {
	RangeStart string `json:"rangeStart"`
	RangeEnd   string `json:"rangeEnd"`
	GrantCount int    `json:"grantCount"`
}

// TTLSummary aggregates expiry statistics across all stored grants.
type TTLSummary struct {
	AverageRemainingSeconds int `json:"averageRemainingSeconds"`
	OldestGrantAgeSeconds   int `json:"oldestGrantAgeSeconds"`
	TotalGrantsWithTTL      int `json:"totalGrantsWithTtl"`
}

// GrantStatsRequest holds the query parameters for grant stats requests.
type GrantStatsRequest struct {
	IncludeTTLDistribution bool
	IncludeTTLSummary      bool
}

// ForceLogoutResponse reports the result of clearing a user's sessions.
type ForceLogoutResponse struct {
	Success         bool   `json:"success"`
	Message         string `json:"message"`
	UserID          string `json:"userId"`
	SessionsCleared int    `json:"sessionsCleared"`
}
