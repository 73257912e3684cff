package repositories

import (
	"context"
	"time"

	domain "github.com/designdesk/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Orders() OrderRepository
	Conversations() ConversationRepository
	Messages() MessageRepository
	Counters() CounterRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// WatchEvent carries one consistent result set emitted by a live query.
// Err is set when the stream terminates abnormally; no events follow an error.
type WatchEvent[T any] struct {
	Items []T
	Err   error
}

// Watcher streams live query results until stopped. Events is closed once the
// underlying listener exits.
type Watcher[T any] interface {
	Events() <-chan WatchEvent[T]
	Stop()
}

// OrderRepository persists order headers and provides query helpers for users and admins.
// Insert reserves the order's payment reference in the same transaction and fails with a
// conflict when the reference has already been used by any order.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
	Watch(ctx context.Context, filter OrderListFilter) (Watcher[domain.Order], error)
	IsPaymentRefUsed(ctx context.Context, paymentRef string) (bool, error)
}

// OrderListFilter restricts and pages order listings.
type OrderListFilter struct {
	UserID      string
	Statuses    []domain.OrderStatus
	ServiceType *domain.ServiceType
	CreatedAt   domain.RangeQuery[time.Time]
	Sort        domain.SortOrder
	PageSize    int
	PageToken   string
}

// ConversationRepository stores per-client conversation headers.
type ConversationRepository interface {
	Upsert(ctx context.Context, conversation domain.Conversation) error
	FindByID(ctx context.Context, conversationID string) (domain.Conversation, error)
	Touch(ctx context.Context, conversationID string, lastUpdate time.Time) error
	List(ctx context.Context, filter ConversationListFilter) (domain.CursorPage[domain.Conversation], error)
	Watch(ctx context.Context, filter ConversationListFilter) (Watcher[domain.Conversation], error)
}

// ConversationListFilter pages conversation listings ordered by last activity.
type ConversationListFilter struct {
	Sort      domain.SortOrder
	PageSize  int
	PageToken string
}

// MessageRepository appends and lists messages beneath a conversation.
type MessageRepository interface {
	Append(ctx context.Context, conversationID string, message domain.Message) error
	List(ctx context.Context, conversationID string, filter MessageListFilter) (domain.CursorPage[domain.Message], error)
	Watch(ctx context.Context, conversationID string) (Watcher[domain.Message], error)
}

// MessageListFilter pages message listings in timestamp order.
type MessageListFilter struct {
	Sort      domain.SortOrder
	PageSize  int
	PageToken string
}

// CounterRepository hands out monotonically increasing sequence values used for
// human-readable order numbers.
type CounterRepository interface {
	Next(ctx context.Context, name string) (int64, error)
}

// HealthRepository verifies datastore connectivity for readiness probes.
type HealthRepository interface {
	Check(ctx context.Context) error
}
