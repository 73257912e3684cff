package services

import (
	"context"
	"time"

	domain "github.com/designdesk/api/internal/domain"
	"github.com/designdesk/api/internal/pricing"
	"github.com/designdesk/api/internal/repositories"
)

// OrderService encapsulates order submission, listing, and the admin decision flow.
type OrderService interface {
	Quote(ctx context.Context, req QuoteRequest) (pricing.Breakdown, error)
	SubmitOrder(ctx context.Context, cmd SubmitOrderCommand) (domain.Order, error)
	GetOrder(ctx context.Context, query GetOrderQuery) (domain.Order, error)
	ListOrders(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error)
	MarkPaid(ctx context.Context, cmd DecideOrderCommand) (domain.Order, error)
	Reject(ctx context.Context, cmd DecideOrderCommand) (domain.Order, error)
}

// QuoteRequest asks for a price estimate without creating an order.
type QuoteRequest struct {
	ServiceType    domain.ServiceType
	DeliveryWindow domain.DeliveryWindow
	Deliverables   []string
}

// SubmitOrderCommand captures a client order submission.
type SubmitOrderCommand struct {
	UserID         string
	UserEmail      string
	ServiceType    domain.ServiceType
	DeliveryWindow domain.DeliveryWindow
	Deliverables   []string
	PaymentRef     string
	Brief          string
}

// GetOrderQuery scopes an order read to the requesting principal. Admins pass
// IsAdmin true and may read any order; clients only their own.
type GetOrderQuery struct {
	OrderID     string
	RequesterID string
	IsAdmin     bool
}

// DecideOrderCommand records an admin decision on a pending order.
type DecideOrderCommand struct {
	OrderID string
	ActorID string
	Note    string
}

// NotificationService delivers order status notifications into the client's
// conversation thread.
type NotificationService interface {
	NotifyOrderDecision(ctx context.Context, note OrderDecisionNote) error
}

// OrderDecisionNote describes a decided order for notification rendering.
type OrderDecisionNote struct {
	OrderID     string
	OrderNumber string
	UserID      string
	UserEmail   string
	Status      domain.OrderStatus
	DecidedAt   time.Time
}

// ChatService manages per-client conversation threads and their messages.
type ChatService interface {
	EnsureConversation(ctx context.Context, cmd EnsureConversationCommand) (domain.Conversation, error)
	ListConversations(ctx context.Context, filter repositories.ConversationListFilter) (domain.CursorPage[domain.Conversation], error)
	SendMessage(ctx context.Context, cmd SendMessageCommand) (domain.Message, error)
	ListMessages(ctx context.Context, query ListMessagesQuery) (domain.CursorPage[domain.Message], error)
	AttachmentUploadURL(ctx context.Context, cmd AttachmentUploadCommand) (domain.SignedAssetURL, error)
	AttachmentDownloadURL(ctx context.Context, cmd AttachmentDownloadCommand) (domain.SignedAssetURL, error)
}

// EnsureConversationCommand creates the client's conversation thread if absent.
type EnsureConversationCommand struct {
	UserID    string
	UserEmail string
}

// SendMessageCommand appends a message to a conversation.
type SendMessageCommand struct {
	ConversationID string
	SenderID       string
	SenderEmail    string
	IsAdmin        bool
	Text           string
	FileURL        *string
	FileName       *string
	FileType       *string
}

// ListMessagesQuery pages a conversation's messages for an authorised reader.
type ListMessagesQuery struct {
	ConversationID string
	RequesterID    string
	IsAdmin        bool
	Filter         repositories.MessageListFilter
}

// AttachmentUploadCommand requests a signed upload URL for a chat attachment.
type AttachmentUploadCommand struct {
	ConversationID string
	RequesterID    string
	IsAdmin        bool
	FileName       string
	ContentType    string
}

// AttachmentDownloadCommand requests a signed download URL for a stored attachment.
type AttachmentDownloadCommand struct {
	ConversationID string
	RequesterID    string
	IsAdmin        bool
	ObjectKey      string
	FileName       string
}

// LiveFeedService manages live query subscriptions scoped to a session. A
// session holds at most one subscription per view; acquiring a view again
// releases the previous handle first.
type LiveFeedService interface {
	WatchOrders(ctx context.Context, cmd WatchOrdersCommand) (*LiveFeed[domain.Order], error)
	WatchMessages(ctx context.Context, cmd WatchMessagesCommand) (*LiveFeed[domain.Message], error)
	Release(sessionID, view string)
	ReleaseSession(sessionID string)
}

// WatchOrdersCommand subscribes a session to a live order list.
type WatchOrdersCommand struct {
	SessionID   string
	RequesterID string
	IsAdmin     bool
	Filter      repositories.OrderListFilter
}

// WatchMessagesCommand subscribes a session to a conversation's live message feed.
type WatchMessagesCommand struct {
	SessionID      string
	ConversationID string
	RequesterID    string
	IsAdmin        bool
}

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) (string, error)
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type           string
	OrderID        string
	OrderNumber    string
	UserID         string
	Status         string
	PreviousStatus string
	ActorID        string
	OccurredAt     time.Time
}

func valuePtr[T any](value T) *T {
	return &value
}

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
