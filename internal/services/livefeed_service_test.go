package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/designdesk/api/internal/domain"
	"github.com/designdesk/api/internal/repositories"
)

type stubWatcher[T any] struct {
	events  chan repositories.WatchEvent[T]
	stopped bool
}

func newStubWatcher[T any]() *stubWatcher[T] {
	return &stubWatcher[T]{events: make(chan repositories.WatchEvent[T], 1)}
}

func (w *stubWatcher[T]) Events() <-chan repositories.WatchEvent[T] { return w.events }

func (w *stubWatcher[T]) Stop() { w.stopped = true }

func newTestLiveFeedService(t *testing.T, deps LiveFeedServiceDeps) LiveFeedService {
	t.Helper()
	if deps.Orders == nil {
		deps.Orders = &stubOrderRepo{}
	}
	if deps.Conversations == nil {
		deps.Conversations = &stubConversationRepo{}
	}
	if deps.Messages == nil {
		deps.Messages = &stubMessageRepo{}
	}
	svc, err := NewLiveFeedService(deps)
	if err != nil {
		t.Fatalf("NewLiveFeedService returned error: %v", err)
	}
	return svc
}

func TestWatchOrdersPinsClientsToOwnOrders(t *testing.T) {
	var captured repositories.OrderListFilter
	watcher := newStubWatcher[domain.Order]()
	orders := &stubOrderRepo{
		watchFn: func(_ context.Context, filter repositories.OrderListFilter) (repositories.Watcher[domain.Order], error) {
			captured = filter
			return watcher, nil
		},
	}

	svc := newTestLiveFeedService(t, LiveFeedServiceDeps{Orders: orders})

	feed, err := svc.WatchOrders(context.Background(), WatchOrdersCommand{
		SessionID:   "sess-1",
		RequesterID: "client-1",
		Filter:      repositories.OrderListFilter{UserID: "someone-else"},
	})
	if err != nil {
		t.Fatalf("WatchOrders returned error: %v", err)
	}
	defer feed.Stop()

	if captured.UserID != "client-1" {
		t.Fatalf("client filter not pinned to own orders: %q", captured.UserID)
	}
}

func TestWatchOrdersAdminSeesAll(t *testing.T) {
	var captured repositories.OrderListFilter
	orders := &stubOrderRepo{
		watchFn: func(_ context.Context, filter repositories.OrderListFilter) (repositories.Watcher[domain.Order], error) {
			captured = filter
			return newStubWatcher[domain.Order](), nil
		},
	}

	svc := newTestLiveFeedService(t, LiveFeedServiceDeps{Orders: orders})

	feed, err := svc.WatchOrders(context.Background(), WatchOrdersCommand{
		SessionID:   "sess-1",
		RequesterID: "admin-1",
		IsAdmin:     true,
		Filter:      repositories.OrderListFilter{Statuses: []domain.OrderStatus{domain.OrderStatusPendingConfirmation}},
	})
	if err != nil {
		t.Fatalf("WatchOrders returned error: %v", err)
	}
	defer feed.Stop()

	if captured.UserID != "" {
		t.Fatalf("admin filter must not be pinned: %q", captured.UserID)
	}
}

func TestWatchOrdersReplacesPreviousSubscription(t *testing.T) {
	first := newStubWatcher[domain.Order]()
	second := newStubWatcher[domain.Order]()
	watchers := []*stubWatcher[domain.Order]{first, second}
	orders := &stubOrderRepo{
		watchFn: func(context.Context, repositories.OrderListFilter) (repositories.Watcher[domain.Order], error) {
			w := watchers[0]
			watchers = watchers[1:]
			return w, nil
		},
	}

	svc := newTestLiveFeedService(t, LiveFeedServiceDeps{Orders: orders})

	cmd := WatchOrdersCommand{SessionID: "sess-1", RequesterID: "client-1"}
	if _, err := svc.WatchOrders(context.Background(), cmd); err != nil {
		t.Fatalf("first WatchOrders returned error: %v", err)
	}
	feed, err := svc.WatchOrders(context.Background(), cmd)
	if err != nil {
		t.Fatalf("second WatchOrders returned error: %v", err)
	}
	defer feed.Stop()

	if !first.stopped {
		t.Fatalf("previous subscription must be stopped on replacement")
	}
	if second.stopped {
		t.Fatalf("new subscription must remain active")
	}
}

func TestWatchMessagesEnforcesOwnership(t *testing.T) {
	messages := &stubMessageRepo{
		watchFn: func(context.Context, string) (repositories.Watcher[domain.Message], error) {
			return newStubWatcher[domain.Message](), nil
		},
	}

	svc := newTestLiveFeedService(t, LiveFeedServiceDeps{
		Conversations: ownedConversationRepo("client-1"),
		Messages:      messages,
	})

	_, err := svc.WatchMessages(context.Background(), WatchMessagesCommand{
		SessionID:      "sess-1",
		ConversationID: "client-1",
		RequesterID:    "client-2",
	})
	if !errors.Is(err, ErrLiveFeedForbidden) {
		t.Fatalf("expected forbidden error, got %v", err)
	}

	feed, err := svc.WatchMessages(context.Background(), WatchMessagesCommand{
		SessionID:      "sess-1",
		ConversationID: "client-1",
		RequesterID:    "client-1",
	})
	if err != nil {
		t.Fatalf("owner WatchMessages returned error: %v", err)
	}
	feed.Stop()
}

func TestReleaseSessionStopsEverything(t *testing.T) {
	orderWatcher := newStubWatcher[domain.Order]()
	messageWatcher := newStubWatcher[domain.Message]()

	svc := newTestLiveFeedService(t, LiveFeedServiceDeps{
		Orders: &stubOrderRepo{
			watchFn: func(context.Context, repositories.OrderListFilter) (repositories.Watcher[domain.Order], error) {
				return orderWatcher, nil
			},
		},
		Conversations: ownedConversationRepo("client-1"),
		Messages: &stubMessageRepo{
			watchFn: func(context.Context, string) (repositories.Watcher[domain.Message], error) {
				return messageWatcher, nil
			},
		},
	})

	if _, err := svc.WatchOrders(context.Background(), WatchOrdersCommand{SessionID: "sess-1", RequesterID: "client-1"}); err != nil {
		t.Fatalf("WatchOrders returned error: %v", err)
	}
	if _, err := svc.WatchMessages(context.Background(), WatchMessagesCommand{
		SessionID:      "sess-1",
		ConversationID: "client-1",
		RequesterID:    "client-1",
	}); err != nil {
		t.Fatalf("WatchMessages returned error: %v", err)
	}

	svc.ReleaseSession("sess-1")

	if !orderWatcher.stopped || !messageWatcher.stopped {
		t.Fatalf("expected all session subscriptions stopped")
	}
}

func TestStopIsIdempotentAndFreesSlot(t *testing.T) {
	watcher := newStubWatcher[domain.Order]()
	svc := newTestLiveFeedService(t, LiveFeedServiceDeps{
		Orders: &stubOrderRepo{
			watchFn: func(context.Context, repositories.OrderListFilter) (repositories.Watcher[domain.Order], error) {
				return watcher, nil
			},
		},
	})

	feed, err := svc.WatchOrders(context.Background(), WatchOrdersCommand{SessionID: "sess-1", RequesterID: "client-1"})
	if err != nil {
		t.Fatalf("WatchOrders returned error: %v", err)
	}

	feed.Stop()
	feed.Stop()

	if !watcher.stopped {
		t.Fatalf("watcher not stopped")
	}
}
