package di

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/designdesk/api/internal/payments"
	"github.com/designdesk/api/internal/platform/config"
	"github.com/designdesk/api/internal/platform/observability"
	"github.com/designdesk/api/internal/platform/storage"
	"github.com/designdesk/api/internal/repositories"
	"github.com/designdesk/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon.
// Concrete implementations are assembled via dependency injection in
// NewContainer.
type Services struct {
	Orders        services.OrderService
	Chats         services.ChatService
	Notifications services.NotificationService
	LiveFeeds     services.LiveFeedService
}

// Container wires repositories, services, and supporting infrastructure for
// runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// Options customises optional collaborators that main constructs from
// platform clients. Tests can leave everything nil.
type Options struct {
	Events      services.OrderEventPublisher
	Attachments services.AttachmentURLSigner
	Verifier    payments.ReferenceVerifier
	Logger      *zap.Logger
}

// NewContainer constructs the runtime dependencies. Production wiring provides
// real implementations, while tests can supply in-memory registries.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, opts Options) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	svc, err := buildServices(ctx, reg, cfg, opts)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(_ context.Context, reg repositories.Registry, cfg config.Config, opts Options) (Services, error) {
	var svc Services

	logger := opts.Logger
	serviceLog := func(ctx context.Context, event string, fields map[string]any) {
		log := observability.FromContext(ctx)
		if log == nil {
			log = logger
		}
		if log == nil {
			return
		}
		zapFields := make([]zap.Field, 0, len(fields))
		for key, value := range fields {
			zapFields = append(zapFields, zap.Any(key, value))
		}
		log.Warn(event, zapFields...)
	}

	notificationSvc, err := services.NewNotificationService(services.NotificationServiceDeps{
		Conversations: reg.Conversations(),
		Messages:      reg.Messages(),
		Clock:         time.Now,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build notification service: %w", err)
	}
	svc.Notifications = notificationSvc

	verifier := opts.Verifier
	if verifier == nil && cfg.Payments.VerifyReferences {
		stripeVerifier, err := payments.NewStripeVerifier(payments.StripeVerifierConfig{
			APIKey: cfg.Payments.StripeAPIKey,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build stripe verifier: %w", err)
		}
		verifier = stripeVerifier
	}

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:     reg.Orders(),
		Counters:   reg.Counters(),
		UnitOfWork: reg,
		Notifier:   notificationSvc,
		Verifier:   verifier,
		Currency:   cfg.Pricing.Currency,
		Clock:      time.Now,
		Events:     opts.Events,
		Logger:     serviceLog,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	attachments := opts.Attachments
	if attachments == nil && strings.TrimSpace(cfg.Storage.AttachmentsBucket) != "" && strings.TrimSpace(cfg.Firebase.CredentialsFile) != "" {
		signer, err := storage.NewServiceAccountSignerFromFile(cfg.Firebase.CredentialsFile)
		if err != nil {
			return Services{}, fmt.Errorf("build attachment signer: %w", err)
		}
		client, err := storage.NewAttachmentClient(signer, cfg.Storage.AttachmentsBucket,
			storage.WithAllowedContentTypes("image/*", "application/pdf", "application/zip", "text/plain"),
			storage.WithMaxUploadSize(25<<20),
		)
		if err != nil {
			return Services{}, fmt.Errorf("build attachment client: %w", err)
		}
		attachments = client
	}

	chatSvc, err := services.NewChatService(services.ChatServiceDeps{
		Conversations: reg.Conversations(),
		Messages:      reg.Messages(),
		Attachments:   attachments,
		Clock:         time.Now,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build chat service: %w", err)
	}
	svc.Chats = chatSvc

	liveSvc, err := services.NewLiveFeedService(services.LiveFeedServiceDeps{
		Orders:        reg.Orders(),
		Conversations: reg.Conversations(),
		Messages:      reg.Messages(),
		Logger:        serviceLog,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build live feed service: %w", err)
	}
	svc.LiveFeeds = liveSvc

	return svc, nil
}
