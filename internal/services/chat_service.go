package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/designdesk/api/internal/domain"
	"github.com/designdesk/api/internal/platform/storage"
	"github.com/designdesk/api/internal/repositories"
	"github.com/designdesk/api/internal/textutil"
)

const attachmentPrefix = "chats"

var (
	// ErrChatInvalidInput signals the caller provided invalid data.
	ErrChatInvalidInput = errors.New("chat: invalid input")
	// ErrChatNotFound indicates the conversation could not be located.
	ErrChatNotFound = errors.New("chat: conversation not found")
	// ErrChatForbidden indicates the requester may not access the conversation.
	ErrChatForbidden = errors.New("chat: forbidden")
)

// AttachmentURLSigner mints signed URLs for chat attachments. Satisfied by
// storage.AttachmentClient.
type AttachmentURLSigner interface {
	UploadURL(ctx context.Context, object, contentType string) (storage.SignedURLResult, error)
	DownloadURL(ctx context.Context, object, dispositionName string, expiresIn time.Duration) (storage.SignedURLResult, error)
}

// ChatServiceDeps bundles collaborators for the chat service.
type ChatServiceDeps struct {
	Conversations repositories.ConversationRepository
	Messages      repositories.MessageRepository
	Attachments   AttachmentURLSigner
	Clock         func() time.Time
	IDGenerator   func() string
}

type chatService struct {
	conversations repositories.ConversationRepository
	messages      repositories.MessageRepository
	attachments   AttachmentURLSigner
	clock         func() time.Time
	newID         func() string
}

// NewChatService wires dependencies into a concrete ChatService implementation.
func NewChatService(deps ChatServiceDeps) (ChatService, error) {
	if deps.Conversations == nil {
		return nil, errors.New("chat service: conversation repository is required")
	}
	if deps.Messages == nil {
		return nil, errors.New("chat service: message repository is required")
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

	return &chatService{
		conversations: deps.Conversations,
		messages:      deps.Messages,
		attachments:   deps.Attachments,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID: idGen,
	}, nil
}

// EnsureConversation returns the client's conversation thread, creating the
// header when the client has never chatted before. Threads are keyed by the
// client's user id so each client has exactly one.
func (s *chatService) EnsureConversation(ctx context.Context, cmd EnsureConversationCommand) (domain.Conversation, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return domain.Conversation{}, fmt.Errorf("%w: user id is required", ErrChatInvalidInput)
	}

	existing, err := s.conversations.FindByID(ctx, userID)
	if err == nil {
		return existing, nil
	}
	if !isNotFound(err) {
		return domain.Conversation{}, s.mapRepositoryError(err)
	}

	conversation := domain.Conversation{
		ID:         userID,
		UserID:     userID,
		UserEmail:  strings.TrimSpace(cmd.UserEmail),
		LastUpdate: s.clock(),
	}
	if err := s.conversations.Upsert(ctx, conversation); err != nil {
		return domain.Conversation{}, s.mapRepositoryError(err)
	}
	return conversation, nil
}

func (s *chatService) ListConversations(ctx context.Context, filter repositories.ConversationListFilter) (domain.CursorPage[domain.Conversation], error) {
	page, err := s.conversations.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[domain.Conversation]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *chatService) SendMessage(ctx context.Context, cmd SendMessageCommand) (domain.Message, error) {
	conversationID, err := s.authorise(ctx, cmd.ConversationID, cmd.SenderID, cmd.IsAdmin)
	if err != nil {
		return domain.Message{}, err
	}

	text := textutil.SanitizeText(cmd.Text)
	if text == "" && cmd.FileURL == nil {
		return domain.Message{}, fmt.Errorf("%w: message requires text or an attachment", ErrChatInvalidInput)
	}

	now := s.clock()
	message := domain.Message{
		ID:          "msg_" + s.newID(),
		SenderID:    strings.TrimSpace(cmd.SenderID),
		SenderEmail: strings.TrimSpace(cmd.SenderEmail),
		Text:        text,
		FileURL:     cmd.FileURL,
		FileName:    cmd.FileName,
		FileType:    cmd.FileType,
		Timestamp:   now,
	}

	if err := s.messages.Append(ctx, conversationID, message); err != nil {
		return domain.Message{}, s.mapRepositoryError(err)
	}
	if err := s.conversations.Touch(ctx, conversationID, now); err != nil {
		return domain.Message{}, s.mapRepositoryError(err)
	}
	return message, nil
}

func (s *chatService) ListMessages(ctx context.Context, query ListMessagesQuery) (domain.CursorPage[domain.Message], error) {
	conversationID, err := s.authorise(ctx, query.ConversationID, query.RequesterID, query.IsAdmin)
	if err != nil {
		return domain.CursorPage[domain.Message]{}, err
	}

	page, err := s.messages.List(ctx, conversationID, query.Filter)
	if err != nil {
		return domain.CursorPage[domain.Message]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

// AttachmentUploadURL mints a signed upload URL scoped beneath the
// conversation's object prefix.
func (s *chatService) AttachmentUploadURL(ctx context.Context, cmd AttachmentUploadCommand) (domain.SignedAssetURL, error) {
	if s.attachments == nil {
		return domain.SignedAssetURL{}, errors.New("chat service: attachment signing is not configured")
	}

	conversationID, err := s.authorise(ctx, cmd.ConversationID, cmd.RequesterID, cmd.IsAdmin)
	if err != nil {
		return domain.SignedAssetURL{}, err
	}

	fileName := sanitizeFileName(cmd.FileName)
	if fileName == "" {
		return domain.SignedAssetURL{}, fmt.Errorf("%w: file name is required", ErrChatInvalidInput)
	}

	objectKey := fmt.Sprintf("%s/%s/%s_%s", attachmentPrefix, conversationID, s.newID(), fileName)
	result, err := s.attachments.UploadURL(ctx, objectKey, cmd.ContentType)
	if err != nil {
		return domain.SignedAssetURL{}, fmt.Errorf("%w: %v", ErrChatInvalidInput, err)
	}

	return domain.SignedAssetURL{
		URL:       result.URL,
		ObjectKey: objectKey,
		ExpiresAt: result.ExpiresAt,
		Headers:   result.Headers,
	}, nil
}

// AttachmentDownloadURL mints a signed download URL. The object key must sit
// beneath the conversation's own prefix; keys pointing elsewhere are refused
// even for admins.
func (s *chatService) AttachmentDownloadURL(ctx context.Context, cmd AttachmentDownloadCommand) (domain.SignedAssetURL, error) {
	if s.attachments == nil {
		return domain.SignedAssetURL{}, errors.New("chat service: attachment signing is not configured")
	}

	conversationID, err := s.authorise(ctx, cmd.ConversationID, cmd.RequesterID, cmd.IsAdmin)
	if err != nil {
		return domain.SignedAssetURL{}, err
	}

	objectKey := strings.TrimSpace(cmd.ObjectKey)
	expectedPrefix := fmt.Sprintf("%s/%s/", attachmentPrefix, conversationID)
	if !strings.HasPrefix(objectKey, expectedPrefix) {
		return domain.SignedAssetURL{}, fmt.Errorf("%w: object does not belong to conversation", ErrChatForbidden)
	}

	result, err := s.attachments.DownloadURL(ctx, objectKey, strings.TrimSpace(cmd.FileName), 0)
	if err != nil {
		return domain.SignedAssetURL{}, fmt.Errorf("%w: %v", ErrChatInvalidInput, err)
	}

	return domain.SignedAssetURL{
		URL:       result.URL,
		ObjectKey: objectKey,
		ExpiresAt: result.ExpiresAt,
	}, nil
}

// authorise resolves the conversation and verifies the requester owns it or
// holds the admin role.
func (s *chatService) authorise(ctx context.Context, conversationID, requesterID string, isAdmin bool) (string, error) {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return "", fmt.Errorf("%w: conversation id is required", ErrChatInvalidInput)
	}
	requesterID = strings.TrimSpace(requesterID)
	if requesterID == "" {
		return "", fmt.Errorf("%w: requester id is required", ErrChatInvalidInput)
	}

	conversation, err := s.conversations.FindByID(ctx, conversationID)
	if err != nil {
		return "", s.mapRepositoryError(err)
	}
	if !isAdmin && conversation.UserID != requesterID {
		return "", fmt.Errorf("%w: conversation %s", ErrChatForbidden, conversationID)
	}
	return conversation.ID, nil
}

func (s *chatService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrChatNotFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("chat: repository unavailable: %w", err)
		}
	}

	return err
}

func isNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

// sanitizeFileName keeps object keys flat and predictable. Path separators and
// control characters collapse to dashes.
func sanitizeFileName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}

	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	return strings.Trim(b.String(), "-.")
}
