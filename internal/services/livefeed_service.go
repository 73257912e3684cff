package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	domain "github.com/designdesk/api/internal/domain"
	"github.com/designdesk/api/internal/repositories"
)

// LiveViewOrders names the order list view within a session.
const LiveViewOrders = "orders"

// LiveViewMessages names a conversation's message view within a session.
func LiveViewMessages(conversationID string) string {
	return "messages:" + conversationID
}

var (
	// ErrLiveFeedInvalidInput signals the caller provided invalid data.
	ErrLiveFeedInvalidInput = errors.New("livefeed: invalid input")
	// ErrLiveFeedForbidden indicates the requester may not watch the view.
	ErrLiveFeedForbidden = errors.New("livefeed: forbidden")
)

// LiveFeed exposes the event stream of one live subscription. Stop is
// idempotent and releases the session slot holding the subscription.
type LiveFeed[T any] struct {
	events <-chan repositories.WatchEvent[T]
	stop   func()
	once   sync.Once
}

// Events returns the stream of result-set snapshots. The channel closes when
// the subscription ends.
func (f *LiveFeed[T]) Events() <-chan repositories.WatchEvent[T] {
	return f.events
}

// Stop cancels the subscription and frees its session slot.
func (f *LiveFeed[T]) Stop() {
	f.once.Do(f.stop)
}

// LiveFeedServiceDeps bundles collaborators for the live feed service.
type LiveFeedServiceDeps struct {
	Orders        repositories.OrderRepository
	Conversations repositories.ConversationRepository
	Messages      repositories.MessageRepository
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

type liveFeedService struct {
	orders        repositories.OrderRepository
	conversations repositories.ConversationRepository
	messages      repositories.MessageRepository
	logger        func(context.Context, string, map[string]any)

	mu   sync.Mutex
	subs map[string]*liveSub
}

type liveSub struct {
	stop func()
}

// NewLiveFeedService wires dependencies into a LiveFeedService. Each session
// holds at most one subscription per view; acquiring a view the session
// already watches releases the previous handle first.
func NewLiveFeedService(deps LiveFeedServiceDeps) (LiveFeedService, error) {
	if deps.Orders == nil {
		return nil, errors.New("livefeed service: order repository is required")
	}
	if deps.Conversations == nil {
		return nil, errors.New("livefeed service: conversation repository is required")
	}
	if deps.Messages == nil {
		return nil, errors.New("livefeed service: message repository is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &liveFeedService{
		orders:        deps.Orders,
		conversations: deps.Conversations,
		messages:      deps.Messages,
		logger:        logger,
		subs:          make(map[string]*liveSub),
	}, nil
}

// WatchOrders subscribes the session to a live order list. Non-admin
// requesters are pinned to their own orders regardless of the filter.
func (s *liveFeedService) WatchOrders(ctx context.Context, cmd WatchOrdersCommand) (*LiveFeed[domain.Order], error) {
	sessionID := strings.TrimSpace(cmd.SessionID)
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session id is required", ErrLiveFeedInvalidInput)
	}
	requesterID := strings.TrimSpace(cmd.RequesterID)
	if requesterID == "" {
		return nil, fmt.Errorf("%w: requester id is required", ErrLiveFeedInvalidInput)
	}

	filter := cmd.Filter
	if !cmd.IsAdmin {
		filter.UserID = requesterID
	}

	watcher, err := s.orders.Watch(ctx, filter)
	if err != nil {
		return nil, err
	}

	return registerLiveFeed(ctx, s, sessionID, LiveViewOrders, watcher.Events(), watcher.Stop), nil
}

// WatchMessages subscribes the session to a conversation's live message feed
// after the same ownership check the chat service applies.
func (s *liveFeedService) WatchMessages(ctx context.Context, cmd WatchMessagesCommand) (*LiveFeed[domain.Message], error) {
	sessionID := strings.TrimSpace(cmd.SessionID)
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session id is required", ErrLiveFeedInvalidInput)
	}
	conversationID := strings.TrimSpace(cmd.ConversationID)
	if conversationID == "" {
		return nil, fmt.Errorf("%w: conversation id is required", ErrLiveFeedInvalidInput)
	}

	conversation, err := s.conversations.FindByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !cmd.IsAdmin && conversation.UserID != strings.TrimSpace(cmd.RequesterID) {
		return nil, fmt.Errorf("%w: conversation %s", ErrLiveFeedForbidden, conversationID)
	}

	watcher, err := s.messages.Watch(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	return registerLiveFeed(ctx, s, sessionID, LiveViewMessages(conversationID), watcher.Events(), watcher.Stop), nil
}

// Release stops the session's subscription for the view, if any.
func (s *liveFeedService) Release(sessionID, view string) {
	key := subKey(sessionID, view)

	s.mu.Lock()
	sub := s.subs[key]
	delete(s.subs, key)
	s.mu.Unlock()

	if sub != nil {
		sub.stop()
	}
}

// ReleaseSession stops every subscription the session holds. Called when the
// session disconnects.
func (s *liveFeedService) ReleaseSession(sessionID string) {
	prefix := sessionID + "|"

	s.mu.Lock()
	var released []*liveSub
	for key, sub := range s.subs {
		if strings.HasPrefix(key, prefix) {
			released = append(released, sub)
			delete(s.subs, key)
		}
	}
	s.mu.Unlock()

	for _, sub := range released {
		sub.stop()
	}
}

// registerLiveFeed stores the subscription under its session slot, displacing
// any previous subscription for the same view.
func registerLiveFeed[T any](ctx context.Context, s *liveFeedService, sessionID, view string, events <-chan repositories.WatchEvent[T], stop func()) *LiveFeed[T] {
	key := subKey(sessionID, view)
	sub := &liveSub{stop: stop}

	s.mu.Lock()
	previous := s.subs[key]
	s.subs[key] = sub
	s.mu.Unlock()

	if previous != nil {
		s.logger(ctx, "livefeed.replaced", map[string]any{
			"session": sessionID,
			"view":    view,
		})
		previous.stop()
	}

	return &LiveFeed[T]{
		events: events,
		stop: func() {
			s.mu.Lock()
			// Clear the slot only if it still belongs to this subscription.
			if s.subs[key] == sub {
				delete(s.subs, key)
			}
			s.mu.Unlock()
			stop()
		},
	}
}

func subKey(sessionID, view string) string {
	return sessionID + "|" + view
}
