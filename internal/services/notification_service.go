package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/designdesk/api/internal/domain"
	"github.com/designdesk/api/internal/repositories"
)

// ErrNotificationInvalidInput signals the caller provided invalid data.
var ErrNotificationInvalidInput = errors.New("notification: invalid input")

// NotificationServiceDeps bundles collaborators for the notification service.
type NotificationServiceDeps struct {
	Conversations repositories.ConversationRepository
	Messages      repositories.MessageRepository
	Clock         func() time.Time
	IDGenerator   func() string
}

type notificationService struct {
	conversations repositories.ConversationRepository
	messages      repositories.MessageRepository
	clock         func() time.Time
	newID         func() string
}

// NewNotificationService wires dependencies into a NotificationService that
// posts order decisions into the client's conversation thread.
func NewNotificationService(deps NotificationServiceDeps) (NotificationService, error) {
	if deps.Conversations == nil {
		return nil, errors.New("notification service: conversation repository is required")
	}
	if deps.Messages == nil {
		return nil, errors.New("notification service: message repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	return &notificationService{
		conversations: deps.Conversations,
		messages:      deps.Messages,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID: idGen,
	}, nil
}

// NotifyOrderDecision appends a system message describing the decision to the
// client's conversation, creating the conversation header first if absent.
// Conversation documents are keyed by the client's user id.
func (s *notificationService) NotifyOrderDecision(ctx context.Context, note OrderDecisionNote) error {
	userID := strings.TrimSpace(note.UserID)
	if userID == "" {
		return fmt.Errorf("%w: user id is required", ErrNotificationInvalidInput)
	}
	if note.OrderNumber == "" {
		return fmt.Errorf("%w: order number is required", ErrNotificationInvalidInput)
	}

	now := note.DecidedAt
	if now.IsZero() {
		now = s.clock()
	}

	err := s.conversations.Upsert(ctx, domain.Conversation{
		ID:         userID,
		UserID:     userID,
		UserEmail:  note.UserEmail,
		LastUpdate: now,
	})
	if err != nil {
		return err
	}

	message := domain.Message{
		ID:        "msg_" + s.newID(),
		SenderID:  domain.SystemSenderID,
		Text:      decisionText(note),
		Timestamp: now,
	}
	if err := s.messages.Append(ctx, userID, message); err != nil {
		return err
	}

	return s.conversations.Touch(ctx, userID, now)
}

func decisionText(note OrderDecisionNote) string {
	switch note.Status {
	case domain.OrderStatusPaid:
		return fmt.Sprintf("Your order %s has been confirmed. Payment received, work is starting.", note.OrderNumber)
	case domain.OrderStatusRejected:
		return fmt.Sprintf("Your order %s could not be confirmed. Please contact support for details.", note.OrderNumber)
	default:
		return fmt.Sprintf("Your order %s status changed to %s.", note.OrderNumber, note.Status)
	}
}
