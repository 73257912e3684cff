package firestore

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pfirestore "github.com/designdesk/api/internal/platform/firestore"
	"github.com/designdesk/api/internal/repositories"
)

// Registry wires the Firestore-backed repository set behind the
// repositories.Registry contract.
type Registry struct {
	provider      *pfirestore.Provider
	orders        *OrderRepository
	conversations *ConversationRepository
	messages      *MessageRepository
	counters      *CounterRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry constructs the full repository registry on a shared provider.
func NewRegistry(provider *pfirestore.Provider) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry: firestore provider is required")
	}

	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, err
	}
	conversations, err := NewConversationRepository(provider)
	if err != nil {
		return nil, err
	}
	messages, err := NewMessageRepository(provider)
	if err != nil {
		return nil, err
	}
	counters, err := NewCounterRepository(provider)
	if err != nil {
		return nil, err
	}

	return &Registry{
		provider:      provider,
		orders:        orders,
		conversations: conversations,
		messages:      messages,
		counters:      counters,
	}, nil
}

// Close releases the shared Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

// Orders returns the order repository.
func (r *Registry) Orders() repositories.OrderRepository { return r.orders }

// Conversations returns the conversation repository.
func (r *Registry) Conversations() repositories.ConversationRepository { return r.conversations }

// Messages returns the message repository.
func (r *Registry) Messages() repositories.MessageRepository { return r.messages }

// Counters returns the counter repository.
func (r *Registry) Counters() repositories.CounterRepository { return r.counters }

// Health returns a readiness probe backed by a lightweight collection read.
func (r *Registry) Health() repositories.HealthRepository {
	return healthProbe{provider: r.provider}
}

// RunInTx groups repository operations in a Firestore transaction boundary.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if r == nil || r.provider == nil {
		return errors.New("registry not initialised")
	}
	return r.provider.RunTransaction(ctx, func(ctx context.Context, _ *firestore.Transaction) error {
		return fn(ctx)
	})
}

type healthProbe struct {
	provider *pfirestore.Provider
}

// Check verifies datastore connectivity by issuing a minimal read.
func (p healthProbe) Check(ctx context.Context) error {
	client, err := p.provider.Client(ctx)
	if err != nil {
		return err
	}

	iter := client.Collection(countersCollection).Limit(1).Documents(ctx)
	defer iter.Stop()

	_, err = iter.Next()
	if errors.Is(err, iterator.Done) || status.Code(err) == codes.NotFound {
		return nil
	}
	return pfirestore.WrapError("health.check", err)
}
