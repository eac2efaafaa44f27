package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/fr-mccarty/outwardsign-sub009/internal/config"
	"github.com/fr-mccarty/outwardsign-sub009/internal/constants"
	"github.com/fr-mccarty/outwardsign-sub009/internal/database/mysql"
	"github.com/fr-mccarty/outwardsign-sub009/internal/database/postgres"
	"github.com/fr-mccarty/outwardsign-sub009/internal/redis"
)

const (
	// HealthCheckTimeout is the default timeout for health check operations.
	HealthCheckTimeout = 5 * time.Second
	// MinJWTSecretLength is the minimum required length for JWT secret in health checks.
	MinJWTSecretLength = 32
)

// HealthHandler provides health check and monitoring endpoints.
type HealthHandler struct {
	config    *config.Config
	store     redis.Store
	parishDB  *postgres.Manager
	clientDB  *mysql.Manager
	logger    *logrus.Logger
	metrics   *Metrics
	startTime time.Time
}

// HealthStatus represents the health status of a component.
type HealthStatus string

const (
	// StatusHealthy indicates the component is healthy.
	StatusHealthy HealthStatus = "healthy"
	// StatusUnhealthy indicates the component is unhealthy.
	StatusUnhealthy HealthStatus = "unhealthy"
	// StatusDegraded indicates the component has degraded performance.
	StatusDegraded HealthStatus = "degraded"
)

// HealthResponse represents the overall health check response.
type HealthResponse struct {
	Status     HealthStatus               `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	Uptime     string                     `json:"uptime,omitempty"`
	Components map[string]ComponentHealth `json:"components,omitempty"`
	Details    map[string]interface{}     `json:"details,omitempty"`
}

// ComponentHealth represents the health of an individual component.
type ComponentHealth struct {
	Status       HealthStatus `json:"status"`
	Message      string       `json:"message,omitempty"`
	LastChecked  time.Time    `json:"last_checked"`
	ResponseTime string       `json:"response_time,omitempty"`
}

// ReadinessResponse represents the readiness check response.
type ReadinessResponse struct {
	Ready      bool                       `json:"ready"`
	Timestamp  time.Time                  `json:"timestamp"`
	Components map[string]ComponentHealth `json:"components,omitempty"`
}

// Metrics holds Prometheus metrics for monitoring.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// OAuth2 metrics
	OAuth2TokensIssued  *prometheus.CounterVec
	OAuth2TokensRevoked *prometheus.CounterVec
	OAuth2AuthRequests  *prometheus.CounterVec
	OAuth2Errors        *prometheus.CounterVec

	// Consent metrics
	ConsentsGranted *prometheus.CounterVec
	ConsentsRevoked *prometheus.CounterVec
	AutoApprovals   *prometheus.CounterVec
	ConsentsDenied  *prometheus.CounterVec

	// System metrics
	RedisOperations  *prometheus.CounterVec
	RedisConnections prometheus.Gauge

	// Health metrics
	HealthChecksTotal     *prometheus.CounterVec
	ComponentHealthStatus *prometheus.GaugeVec
}

// NewHealthHandler creates a new health check handler.
func NewHealthHandler(
	cfg *config.Config,
	store redis.Store,
	parishDB *postgres.Manager,
	clientDB *mysql.Manager,
	logger *logrus.Logger,
) *HealthHandler {
	metrics := NewMetrics()
	prometheus.MustRegister(
		metrics.HTTPRequestsTotal,
		metrics.HTTPRequestDuration,
		metrics.HTTPResponseSize,
		metrics.OAuth2TokensIssued,
		metrics.OAuth2TokensRevoked,
		metrics.OAuth2AuthRequests,
		metrics.OAuth2Errors,
		metrics.ConsentsGranted,
		metrics.ConsentsRevoked,
		metrics.AutoApprovals,
		metrics.ConsentsDenied,
		metrics.RedisOperations,
		metrics.RedisConnections,
		metrics.HealthChecksTotal,
		metrics.ComponentHealthStatus,
	)

	return &HealthHandler{
		config:    cfg,
		store:     store,
		parishDB:  parishDB,
		clientDB:  clientDB,
		logger:    logger,
		metrics:   metrics,
		startTime: time.Now(),
	}
}

// NewMetrics creates and returns Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "oauth_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "oauth_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: []float64{0, 100, 500, 1000, 5000, 10000, 50000},
			},
			[]string{"method", "path"},
		),
		OAuth2TokensIssued: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_tokens_issued_total",
				Help: "Total number of OAuth2 tokens issued",
			},
			[]string{"grant_type", "client_id"},
		),
		OAuth2TokensRevoked: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_tokens_revoked_total",
				Help: "Total number of OAuth2 tokens revoked",
			},
			[]string{"token_type", "client_id"},
		),
		OAuth2AuthRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_authorization_requests_total",
				Help: "Total number of OAuth2 authorization requests",
			},
			[]string{"client_id", "status"},
		),
		OAuth2Errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_errors_total",
				Help: "Total number of OAuth2 errors",
			},
			[]string{"error_code", "endpoint"},
		),
		ConsentsGranted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_consents_granted_total",
				Help: "Total number of consent grants recorded",
			},
			[]string{"client_id", "parish_id"},
		),
		ConsentsRevoked: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_consents_revoked_total",
				Help: "Total number of consents withdrawn by users",
			},
			[]string{"client_id", "parish_id"},
		),
		AutoApprovals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_consent_auto_approvals_total",
				Help: "Total number of authorizations approved from an existing consent",
			},
			[]string{"client_id"},
		),
		ConsentsDenied: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_consents_denied_total",
				Help: "Total number of consent prompts the user denied",
			},
			[]string{"client_id"},
		),
		RedisOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_redis_operations_total",
				Help: "Total number of Redis operations",
			},
			[]string{"operation", "status"},
		),
		RedisConnections: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "oauth_redis_connections",
				Help: "Number of active Redis connections",
			},
		),
		HealthChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_health_checks_total",
				Help: "Total number of health checks",
			},
			[]string{"endpoint", "status"},
		),
		ComponentHealthStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "oauth_component_health_status",
				Help: "Health status of service components (1=healthy, 0=unhealthy)",
			},
			[]string{"component"},
		),
	}
}

// RegisterRoutes registers health check and monitoring endpoints.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.Health)
	mux.HandleFunc("/health/live", h.Liveness)
	mux.HandleFunc("/health/ready", h.Readiness)
	mux.Handle("/metrics", promhttp.Handler())
}

// Health provides a comprehensive health check including all components.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	h.logger.Debug("Processing health check request")

	components := make(map[string]ComponentHealth)
	overallStatus := StatusHealthy

	// The hot store holds codes, tokens, and sessions; losing it stops the
	// whole flow.
	redisHealth := h.checkStorage(ctx)
	components["redis"] = redisHealth
	if redisHealth.Status != StatusHealthy {
		overallStatus = StatusUnhealthy
	}

	// Parish database holds consents, settings, and members. Losing it
	// degrades the service: cached consents still resolve.
	parishHealth := h.checkParishDatabase(ctx)
	components["parish_db"] = parishHealth
	if parishHealth.Status != StatusHealthy && overallStatus == StatusHealthy {
		overallStatus = StatusDegraded
	}

	// Client registry. Cached clients keep working when it is down.
	clientHealth := h.checkClientDatabase(ctx)
	components["client_db"] = clientHealth
	if clientHealth.Status != StatusHealthy && overallStatus == StatusHealthy {
		overallStatus = StatusDegraded
	}

	configHealth := h.checkConfiguration()
	components["configuration"] = configHealth
	if configHealth.Status != StatusHealthy && overallStatus == StatusHealthy {
		overallStatus = StatusDegraded
	}

	statusLabel := string(overallStatus)
	h.metrics.HealthChecksTotal.WithLabelValues("health", statusLabel).Inc()

	for component, health := range components {
		healthValue := float64(0)
		if health.Status == StatusHealthy {
			healthValue = 1
		}
		h.metrics.ComponentHealthStatus.WithLabelValues(component).Set(healthValue)
	}

	response := HealthResponse{
		Status:     overallStatus,
		Timestamp:  time.Now(),
		Version:    getVersion(),
		Uptime:     time.Since(h.startTime).String(),
		Components: components,
		Details: map[string]interface{}{
			"check_duration": time.Since(start).String(),
		},
	}

	statusCode := http.StatusOK
	switch overallStatus {
	case StatusHealthy:
		statusCode = http.StatusOK
	case StatusUnhealthy:
		statusCode = http.StatusServiceUnavailable
	case StatusDegraded:
		statusCode = http.StatusOK // Still return 200 for degraded
	}

	w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.WithError(err).Error("Failed to encode health response")
	}

	h.logger.WithFields(logrus.Fields{
		"status":   overallStatus,
		"duration": time.Since(start).String(),
	}).Debug("Health check completed")
}

// Liveness provides a simple liveness check that returns 200 if the service is alive.
// This is used by Kubernetes to determine if the pod should be restarted.
func (h *HealthHandler) Liveness(w http.ResponseWriter, _ *http.Request) {
	h.metrics.HealthChecksTotal.WithLabelValues("liveness", "healthy").Inc()

	response := map[string]interface{}{
		"status":    "alive",
		"timestamp": time.Now(),
		"uptime":    time.Since(h.startTime).String(),
	}

	w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.WithError(err).Error("Failed to encode liveness response")
	}
}

// Readiness checks if the service is ready to receive traffic.
// This is used by Kubernetes to determine if the pod should receive requests.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	h.logger.Debug("Processing readiness check")

	components := make(map[string]ComponentHealth)
	ready := true

	// The hot store is required for readiness.
	redisHealth := h.checkStorage(ctx)
	components["redis"] = redisHealth
	if redisHealth.Status != StatusHealthy {
		ready = false
	}

	// Databases being down degrade functionality but do not affect readiness.
	components["parish_db"] = h.checkParishDatabase(ctx)
	components["client_db"] = h.checkClientDatabase(ctx)

	statusLabel := "ready"
	if !ready {
		statusLabel = "not_ready"
	}
	h.metrics.HealthChecksTotal.WithLabelValues("readiness", statusLabel).Inc()

	response := ReadinessResponse{
		Ready:      ready,
		Timestamp:  time.Now(),
		Components: components,
	}

	statusCode := http.StatusOK
	if !ready {
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.WithError(err).Error("Failed to encode readiness response")
	}

	h.logger.WithFields(logrus.Fields{
		"ready":    ready,
		"duration": time.Since(start).String(),
	}).Debug("Readiness check completed")
}

// checkStorage checks storage backend connectivity and performance.
func (h *HealthHandler) checkStorage(ctx context.Context) ComponentHealth {
	start := time.Now()

	checkCtx, cancel := context.WithTimeout(ctx, HealthCheckTimeout)
	defer cancel()

	err := h.store.Ping(checkCtx)
	duration := time.Since(start)

	storageType := h.getStorageType()

	if err != nil {
		h.logger.WithError(err).Warn("Storage health check failed")
		return ComponentHealth{
			Status:       StatusUnhealthy,
			Message:      storageType + " connection failed: " + err.Error(),
			LastChecked:  time.Now(),
			ResponseTime: duration.String(),
		}
	}

	status := StatusHealthy
	message := storageType + " is healthy"

	// Only check response time for Redis (memory store should always be fast)
	if storageType == "Redis" && duration > time.Second {
		status = StatusDegraded
		message = "Redis response time is slow"
	}

	return ComponentHealth{
		Status:       status,
		Message:      message,
		LastChecked:  time.Now(),
		ResponseTime: duration.String(),
	}
}

// checkParishDatabase checks PostgreSQL connectivity.
func (h *HealthHandler) checkParishDatabase(ctx context.Context) ComponentHealth {
	start := time.Now()

	if h.parishDB == nil {
		return ComponentHealth{
			Status:      StatusHealthy,
			Message:     "Parish database not configured (optional)",
			LastChecked: time.Now(),
		}
	}

	checkCtx, cancel := context.WithTimeout(ctx, HealthCheckTimeout)
	defer cancel()

	err := h.parishDB.Ping(checkCtx)
	duration := time.Since(start)

	if err != nil {
		h.logger.WithError(err).Debug("Parish database health check failed")
		return ComponentHealth{
			Status:       StatusUnhealthy,
			Message:      "PostgreSQL connection failed: " + err.Error(),
			LastChecked:  time.Now(),
			ResponseTime: duration.String(),
		}
	}

	if !h.parishDB.IsAvailable() {
		return ComponentHealth{
			Status:       StatusUnhealthy,
			Message:      "Parish database marked as unavailable",
			LastChecked:  time.Now(),
			ResponseTime: duration.String(),
		}
	}

	status := StatusHealthy
	message := "PostgreSQL is healthy"

	if duration > 2*time.Second {
		status = StatusDegraded
		message = "PostgreSQL response time is slow"
	}

	return ComponentHealth{
		Status:       status,
		Message:      message,
		LastChecked:  time.Now(),
		ResponseTime: duration.String(),
	}
}

// checkClientDatabase checks MySQL connectivity for the client registry.
func (h *HealthHandler) checkClientDatabase(ctx context.Context) ComponentHealth {
	start := time.Now()

	if h.clientDB == nil {
		return ComponentHealth{
			Status:      StatusHealthy,
			Message:     "Client registry database not configured (optional)",
			LastChecked: time.Now(),
		}
	}

	checkCtx, cancel := context.WithTimeout(ctx, HealthCheckTimeout)
	defer cancel()

	err := h.clientDB.Ping(checkCtx)
	duration := time.Since(start)

	if err != nil {
		h.logger.WithError(err).Debug("Client registry health check failed")
		return ComponentHealth{
			Status:       StatusUnhealthy,
			Message:      "MySQL connection failed: " + err.Error(),
			LastChecked:  time.Now(),
			ResponseTime: duration.String(),
		}
	}

	if !h.clientDB.IsAvailable() {
		return ComponentHealth{
			Status:       StatusUnhealthy,
			Message:      "Client registry marked as unavailable",
			LastChecked:  time.Now(),
			ResponseTime: duration.String(),
		}
	}

	status := StatusHealthy
	message := "MySQL is healthy"

	if duration > 2*time.Second {
		status = StatusDegraded
		message = "MySQL response time is slow"
	}

	return ComponentHealth{
		Status:       status,
		Message:      message,
		LastChecked:  time.Now(),
		ResponseTime: duration.String(),
	}
}

// getStorageType determines the type of storage backend being used.
func (h *HealthHandler) getStorageType() string {
	switch h.store.(type) {
	case *redis.Client:
		return "Redis"
	case *redis.MemoryStore:
		return "In-Memory"
	default:
		return "Unknown"
	}
}

// checkConfiguration validates critical configuration values.
func (h *HealthHandler) checkConfiguration() ComponentHealth {
	var issues []string

	if len(h.config.JWT.Secret) < MinJWTSecretLength {
		issues = append(issues, "JWT secret is too short")
	}

	if h.config.JWT.AccessTokenExpiry < time.Minute {
		issues = append(issues, "Access token expiry is too short")
	}

	if h.config.JWT.RefreshTokenExpiry < time.Hour {
		issues = append(issues, "Refresh token expiry is too short")
	}

	if h.config.OAuth2.AuthorizationCodeExpiry < time.Minute {
		issues = append(issues, "Authorization code expiry is too short")
	}

	status := StatusHealthy
	message := "Configuration is valid"

	if len(issues) > 0 {
		status = StatusDegraded
		message = "Configuration issues: " + strings.Join(issues, ", ")
	}

	return ComponentHealth{
		Status:      status,
		Message:     message,
		LastChecked: time.Now(),
	}
}

// getVersion returns the service version (would typically come from build info).
func getVersion() string {
	// In a real deployment, this would be injected at build time
	return "1.0.0"
}
