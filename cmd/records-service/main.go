package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/carelink/platform/pkg/annotations"
	"github.com/carelink/platform/pkg/assignments"
	"github.com/carelink/platform/pkg/common/config"
	"github.com/carelink/platform/pkg/common/database"
	"github.com/carelink/platform/pkg/common/kafka"
	"github.com/carelink/platform/pkg/common/logger"
	"github.com/carelink/platform/pkg/gateway/auth"
	"github.com/carelink/platform/pkg/gateway/middleware"
	"github.com/carelink/platform/pkg/gateway/routes"
	"github.com/carelink/platform/pkg/identity"
	"github.com/carelink/platform/pkg/notify"
	"github.com/carelink/platform/pkg/records"
	"github.com/gorilla/mux"
)

func main() {
	logger.Init()
	cfg := config.Load()

	db, err := database.GetPostgres()
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to connect to postgres")
	}

	identityRepo := identity.NewRepository(db)
	recordsRepo := records.NewRepository(db)
	assignmentsRepo := assignments.NewRepository(db)
	annotationsRepo := annotations.NewRepository(db)

	for name, migrate := range map[string]func() error{
		"identity":    identityRepo.AutoMigrate,
		"records":     recordsRepo.AutoMigrate,
		"assignments": assignmentsRepo.AutoMigrate,
		"annotations": annotationsRepo.AutoMigrate,
	} {
		if err := migrate(); err != nil {
			logger.Log.WithError(err).WithField("tables", name).Fatal("failed to migrate tables")
		}
	}

	policy, err := identity.LoadPasswordPolicy(cfg.PasswordPolicyFile)
	if err != nil {
		logger.Log.WithError(err).Warn("falling back to default password policy")
	}

	identityService := identity.NewService(identityRepo, identity.NewValidator(policy))

	tokens, err := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to initialise token manager")
	}

	blacklist := auth.NewRedisBlacklist(database.GetRedis())

	var notifier assignments.Notifier
	if cfg.NotificationBackend == "kafka" {
		producer := kafka.NewProducer(cfg.NotificationTopic)
		defer producer.Close()
		notifier = notify.NewKafkaNotifier(producer)
	} else {
		notifier = notify.NewLogNotifier()
	}

	recordsService := records.NewService(recordsRepo, annotationsRepo)
	annotationsService := annotations.NewService(annotationsRepo)
	assignmentsService := assignments.NewService(assignmentsRepo, identityRepo, notifier)

	var validator middleware.TokenValidator = tokens
	if oidcAuth, err := auth.NewOIDCAuthenticator(cfg.OIDCIssuer, cfg.OIDCClientID, cfg.OIDCClientSecret); err == nil {
		logger.Log.WithField("issuer", cfg.OIDCIssuer).Info("using OIDC token validation")
		validator = oidcAuth
	}

	router := mux.NewRouter()
	router.Use(middleware.Logging)
	router.Use(middleware.Recovery)
	router.Use(middleware.CORS)
	router.Use(middleware.BodyLimit(cfg.MaxRequestBody))
	router.Use(middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)

	routes.NewAuthHandler(identityService, tokens, blacklist).Register(router)

	protected := router.NewRoute().Subrouter()
	protected.Use(middleware.Authenticate(validator))
	protected.Use(middleware.ResolveActor(identityService))

	routes.NewUserHandler(identityService, tokens, blacklist).Register(protected)
	records.NewHTTPHandler(recordsService).Register(protected)
	annotations.NewHTTPHandler(annotationsService).Register(protected)
	assignments.NewHTTPHandler(assignmentsService).Register(protected)

	address := fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort)
	server := &http.Server{
		Addr:         address,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Log.WithField("addr", address).Info("records service listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("failed to start records service")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down records service...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Log.WithError(err).Error("records service forced to shutdown")
	}

	if err := database.ClosePostgres(); err != nil {
		logger.Log.WithError(err).Error("failed to close postgres")
	}
	if err := database.CloseRedis(); err != nil {
		logger.Log.WithError(err).Error("failed to close redis")
	}
	logger.Log.Info("records service stopped")
}
