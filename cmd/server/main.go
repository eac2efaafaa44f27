// Package main provides the entry point for the OutwardSign OAuth2 consent
// service. It initializes all dependencies, sets up HTTP routes with
// middleware, and starts the server with graceful shutdown support.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/fr-mccarty/outwardsign-sub009/internal/auth"
	"github.com/fr-mccarty/outwardsign-sub009/internal/config"
	"github.com/fr-mccarty/outwardsign-sub009/internal/consent"
	"github.com/fr-mccarty/outwardsign-sub009/internal/database/mysql"
	"github.com/fr-mccarty/outwardsign-sub009/internal/database/postgres"
	"github.com/fr-mccarty/outwardsign-sub009/internal/handlers"
	"github.com/fr-mccarty/outwardsign-sub009/internal/middleware"
	"github.com/fr-mccarty/outwardsign-sub009/internal/redis"
	"github.com/fr-mccarty/outwardsign-sub009/internal/repository"
	"github.com/fr-mccarty/outwardsign-sub009/internal/startup"
	"github.com/fr-mccarty/outwardsign-sub009/internal/token"
	"github.com/fr-mccarty/outwardsign-sub009/pkg/logger"
)

// services bundles everything the HTTP layer needs.
type services struct {
	store       redis.Store
	redisClient *goredis.Client
	parishDB    *postgres.Manager
	clientDB    *mysql.Manager
	clientRepo  repository.ClientRepository
	memberRepo  repository.MemberRepository
	parishRepo  repository.ParishSettingsRepository
	permsRepo   repository.UserPermissionsRepository
	authSvc     auth.Service
	consentSvc  consent.Service
	adminSvc    auth.AdminService
}

func main() {
	// Load .env.local file only in development (when GO_ENV is not set or set to "development")
	goEnv := os.Getenv("GO_ENV")
	if goEnv == "" || goEnv == "development" {
		if err := godotenv.Load(".env.local"); err != nil {
			// Only log if the error is not "file not found"
			if !os.IsNotExist(err) {
				fmt.Fprintf(os.Stderr, "Warning: Error loading .env.local file: %v\n", err)
			}
		}
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger with enhanced dual-output support
	log := logger.NewWithConfig(&cfg.Logging)
	log.Info("Starting OutwardSign OAuth2 consent service")
	log.WithFields(logrus.Fields{
		"version": "1.0.0",
		"port":    cfg.Server.Port,
		"host":    cfg.Server.Host,
		"tls":     cfg.IsTLSEnabled(),
	}).Info("Service configuration loaded")

	svcs := initializeServices(cfg, log)
	defer closeStore(svcs.store, log)
	defer closeDatabases(svcs, log)

	// Seed manifest clients before accepting traffic.
	clientRegSvc := startup.NewClientRegistrationService(cfg, svcs.clientRepo, log)
	if regErr := clientRegSvc.RegisterClients(context.Background()); regErr != nil {
		log.WithError(regErr).Error("Failed to register clients during startup")
		// Don't exit, continue with service startup
	}

	server := setupServer(cfg, svcs, log)

	runServer(server, cfg, log)
}

func initializeServices(cfg *config.Config, log *logrus.Logger) *services {
	// Parish database (PostgreSQL): consents, settings, members. Optional;
	// the service degrades to cached data when unavailable.
	parishDB, pgErr := postgres.NewManager(cfg, log)
	if pgErr != nil {
		log.WithError(pgErr).Error("Failed to initialize parish database manager")
		parishDB = nil
	}

	// Client registry (MySQL). Also optional; cached registrations keep
	// resolving when it is down.
	clientDB, myErr := mysql.NewManager(cfg, log)
	if myErr != nil {
		log.WithError(myErr).Error("Failed to initialize client registry manager")
		clientDB = nil
	}

	// Hot store: Redis preferred, in-memory fallback for development.
	var store redis.Store
	var redisClient *goredis.Client
	redisStore, err := redis.NewClient(&cfg.Redis, log)
	if err != nil {
		log.WithError(err).Warn("Failed to connect to Redis, falling back to in-memory store")
		log.Warn("Note: In-memory store will not persist data between restarts")
		store = redis.NewMemoryStore(log)
	} else {
		log.Info("Successfully connected to Redis store")
		store = redisStore
		redisClient = redisStore.GetRedisClient()
	}

	// Repositories. The client registry reads through Redis and falls back
	// to MySQL; parish data goes straight to PostgreSQL.
	clientRepo := buildClientRepository(clientDB, store, log)
	consentRepo, memberRepo, parishRepo, permsRepo := buildParishRepositories(parishDB)

	// Token services
	jwtService := token.NewJWTService(&cfg.JWT)
	pkceService := token.NewPKCEService()

	authSvc := auth.NewOAuth2Service(cfg, store, clientRepo, memberRepo, parishRepo, jwtService, pkceService, log)
	consentSvc := consent.NewService(consent.Dependencies{
		Clients:         clientRepo,
		Consents:        consentRepo,
		ParishSettings:  parishRepo,
		UserPermissions: permsRepo,
		Store:           store,
		PKCE:            pkceService,
		OAuth2Config:    &cfg.OAuth2,
		Logger:          log,
	})
	adminSvc := auth.NewAdminService(cfg, store, log)

	return &services{
		store:       store,
		redisClient: redisClient,
		parishDB:    parishDB,
		clientDB:    clientDB,
		clientRepo:  clientRepo,
		memberRepo:  memberRepo,
		parishRepo:  parishRepo,
		permsRepo:   permsRepo,
		authSvc:     authSvc,
		consentSvc:  consentSvc,
		adminSvc:    adminSvc,
	}
}

// buildClientRepository assembles the hybrid client registry: MySQL as the
// source of truth with the Redis store as a read-through cache. Without
// MySQL the Redis-backed repository serves alone.
func buildClientRepository(
	clientDB *mysql.Manager,
	store redis.Store,
	log *logrus.Logger,
) repository.ClientRepository {
	redisRepo := repository.NewRedisClientRepository(store)
	if clientDB == nil {
		log.Warn("Client registry database unavailable, serving clients from Redis only")
		return redisRepo
	}

	mysqlRepo := repository.NewMySQLClientRepository(clientDB.DB)
	return repository.NewHybridClientRepository(mysqlRepo, redisRepo, log)
}

// buildParishRepositories assembles the PostgreSQL-backed parish
// repositories. The consent repository implementation also serves parish
// settings and user permissions; they live in the same database.
func buildParishRepositories(parishDB *postgres.Manager) (
	repository.ConsentRepository,
	repository.MemberRepository,
	repository.ParishSettingsRepository,
	repository.UserPermissionsRepository,
) {
	var poolGetter repository.PoolGetter
	if parishDB != nil {
		poolGetter = parishDB.Pool
	} else {
		poolGetter = func() *pgxpool.Pool { return nil }
	}

	consentRepo := repository.NewPostgresConsentRepository(poolGetter)
	memberRepo := repository.NewPostgresMemberRepository(poolGetter)
	return consentRepo, memberRepo, consentRepo, consentRepo
}

func closeStore(store redis.Store, log *logrus.Logger) {
	if storeErr := store.Close(); storeErr != nil {
		log.WithError(storeErr).Error("Failed to close store connection")
	}
}

func closeDatabases(svcs *services, log *logrus.Logger) {
	if svcs.parishDB != nil {
		svcs.parishDB.Close()
		log.Info("Parish database connections closed")
	}
	if svcs.clientDB != nil {
		svcs.clientDB.Close()
		log.Info("Client registry connections closed")
	}
}

func setupServer(cfg *config.Config, svcs *services, log *logrus.Logger) *http.Server {
	// Initialize handlers
	oauth2Handler := handlers.NewOAuth2Handler(svcs.authSvc, cfg, log)
	consentHandler := handlers.NewConsentHandler(svcs.consentSvc, svcs.store, cfg, log)
	adminHandler := handlers.NewAdminHandler(svcs.adminSvc, svcs.parishRepo, svcs.permsRepo, cfg, log)
	healthHandler := handlers.NewHealthHandler(cfg, svcs.store, svcs.parishDB, svcs.clientDB, log)

	// Initialize middleware
	middlewareStack := middleware.NewStack(cfg, svcs.store, svcs.redisClient, log)

	// Set up routes
	router := mux.NewRouter()

	// Health and metrics
	router.HandleFunc("/health", healthHandler.Health).Methods("GET")
	router.HandleFunc("/health/live", healthHandler.Liveness).Methods("GET")
	router.HandleFunc("/health/ready", healthHandler.Readiness).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// OAuth2 endpoints: token side and authorization side
	oauth2Handler.RegisterRoutes(router)
	consentHandler.RegisterRoutes(router)

	// Admin surface, restricted to parish administrators
	adminRouter := router.PathPrefix("/admin").Subrouter()
	adminRouter.Use(middlewareStack.AdminAuth(svcs.memberRepo))
	adminHandler.RegisterRoutes(adminRouter)

	// Apply middleware to the entire router
	finalHandler := middlewareStack.Chain(
		router,
		middlewareStack.Recovery,
		middlewareStack.RequestLogger,
		middlewareStack.SecurityHeaders,
		middlewareStack.CORS,
		middlewareStack.RateLimit,
		middlewareStack.ContentType,
	)

	// Create HTTP server
	return &http.Server{
		Addr:         cfg.ServerAddr(),
		Handler:      finalHandler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}

func runServer(server *http.Server, cfg *config.Config, log *logrus.Logger) {
	// Start server in a goroutine
	go startServer(server, cfg, log)

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	// Create context with timeout for graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Attempt graceful shutdown
	if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
		log.WithError(shutdownErr).Error("Server forced to shutdown")
	} else {
		log.Info("Server exited gracefully")
	}
}

func startServer(server *http.Server, cfg *config.Config, log *logrus.Logger) {
	log.WithFields(logrus.Fields{
		"addr": server.Addr,
		"tls":  cfg.IsTLSEnabled(),
	}).Info("Starting HTTP server")

	var startErr error
	if cfg.IsTLSEnabled() {
		startErr = server.ListenAndServeTLS(cfg.Server.TLSCert, cfg.Server.TLSKey)
	} else {
		startErr = server.ListenAndServe()
	}

	if startErr != nil && startErr != http.ErrServerClosed {
		log.WithError(startErr).Fatal("Failed to start server")
	}
}
