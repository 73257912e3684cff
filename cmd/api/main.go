package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/designdesk/api/internal/di"
	"github.com/designdesk/api/internal/handlers"
	"github.com/designdesk/api/internal/platform/auth"
	"github.com/designdesk/api/internal/platform/config"
	pfirestore "github.com/designdesk/api/internal/platform/firestore"
	"github.com/designdesk/api/internal/platform/jobs"
	"github.com/designdesk/api/internal/platform/observability"
	"github.com/designdesk/api/internal/platform/secrets"
	firestoreRepo "github.com/designdesk/api/internal/repositories/firestore"
	"github.com/designdesk/api/internal/services"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx := context.Background()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	fetcher, err := secrets.NewFetcher(ctx, secrets.WithLogger(logger.Named("secrets")))
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx, config.WithSecretResolver(fetcher))
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	registry, err := firestoreRepo.NewRegistry(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise repository registry", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := registry.Close(closeCtx); err != nil {
			logger.Warn("registry close error", zap.Error(err))
		}
	}()

	publisher, pubsubClient := buildEventPublisher(ctx, logger, cfg)
	if pubsubClient != nil {
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()
	}

	firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(firebaseVerifier,
		auth.WithUserGetter(firebaseVerifier),
		auth.WithAdminDirectory(auth.NewAdminDirectory(cfg.Auth.AdminUIDs, cfg.Auth.AdminEmails)),
	)

	container, err := di.NewContainer(ctx, cfg, registry, di.Options{
		Events: publisher,
		Logger: logger.Named("services"),
	})
	if err != nil {
		logger.Fatal("failed to build service container", zap.Error(err))
	}

	orderHandlers := handlers.NewOrderHandlers(authenticator, container.Services.Orders, container.Services.LiveFeeds)
	chatHandlers := handlers.NewChatHandlers(authenticator, container.Services.Chats, container.Services.LiveFeeds)
	adminHandlers := handlers.NewAdminOrderHandlers(authenticator, container.Services.Orders, container.Services.Chats, container.Services.LiveFeeds)

	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger),
			observability.TraceMiddleware(),
			observability.RequestLoggerMiddleware(),
			observability.RecoveryMiddleware(logger),
		),
		handlers.WithHealthHandlers(handlers.NewHealthHandlers(registry.Health())),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithChatRoutes(chatHandlers.Routes),
		handlers.WithAdminRoutes(adminHandlers.Routes),
	)

	server := &http.Server{
		Addr:         ":" + strings.TrimPrefix(cfg.Server.Port, ":"),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-stopCh:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			logger.Fatal("http server failed", zap.Error(err))
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
		_ = server.Close()
	}

	logger.Info("http server stopped")
}

// buildEventPublisher wires the Pub/Sub topic used for order domain events.
// Missing configuration disables publishing instead of failing startup.
func buildEventPublisher(ctx context.Context, logger *zap.Logger, cfg config.Config) (services.OrderEventPublisher, *pubsub.Client) {
	projectID := strings.TrimSpace(cfg.PubSub.ProjectID)
	topicName := strings.TrimSpace(cfg.PubSub.OpsTopic)
	if projectID == "" || topicName == "" {
		logger.Info("order event publishing disabled", zap.String("reason", "pubsub not configured"))
		return nil, nil
	}

	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		logger.Warn("pubsub client init failed, order events disabled", zap.Error(err))
		return nil, nil
	}

	publisher, err := jobs.NewPubSubEventPublisher(client.Topic(topicName))
	if err != nil {
		logger.Warn("pubsub publisher init failed, order events disabled", zap.Error(err))
		_ = client.Close()
		return nil, nil
	}
	return publisher, client
}
