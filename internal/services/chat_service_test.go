package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	domain "github.com/designdesk/api/internal/domain"
	"github.com/designdesk/api/internal/platform/storage"
)

type stubAttachmentSigner struct {
	uploadFn   func(ctx context.Context, object, contentType string) (storage.SignedURLResult, error)
	downloadFn func(ctx context.Context, object, dispositionName string, expiresIn time.Duration) (storage.SignedURLResult, error)
}

func (s *stubAttachmentSigner) UploadURL(ctx context.Context, object, contentType string) (storage.SignedURLResult, error) {
	if s.uploadFn != nil {
		return s.uploadFn(ctx, object, contentType)
	}
	return storage.SignedURLResult{URL: "https://signed.example/" + object, Method: "PUT"}, nil
}

func (s *stubAttachmentSigner) DownloadURL(ctx context.Context, object, dispositionName string, expiresIn time.Duration) (storage.SignedURLResult, error) {
	if s.downloadFn != nil {
		return s.downloadFn(ctx, object, dispositionName, expiresIn)
	}
	return storage.SignedURLResult{URL: "https://signed.example/" + object, Method: "GET"}, nil
}

func ownedConversationRepo(userID string) *stubConversationRepo {
	return &stubConversationRepo{
		findFn: func(_ context.Context, conversationID string) (domain.Conversation, error) {
			if conversationID != userID {
				return domain.Conversation{}, stubRepoError{msg: "conversation missing", notFound: true}
			}
			return domain.Conversation{ID: userID, UserID: userID}, nil
		},
	}
}

func newTestChatService(t *testing.T, deps ChatServiceDeps) ChatService {
	t.Helper()
	if deps.Conversations == nil {
		deps.Conversations = &stubConversationRepo{}
	}
	if deps.Messages == nil {
		deps.Messages = &stubMessageRepo{}
	}
	svc, err := NewChatService(deps)
	if err != nil {
		t.Fatalf("NewChatService returned error: %v", err)
	}
	return svc
}

func TestEnsureConversationCreatesThreadOnce(t *testing.T) {
	now := time.Date(2026, time.March, 12, 8, 0, 0, 0, time.UTC)
	conversations := &stubConversationRepo{}

	svc := newTestChatService(t, ChatServiceDeps{
		Conversations: conversations,
		Clock:         fixedClock(now),
	})

	conversation, err := svc.EnsureConversation(context.Background(), EnsureConversationCommand{
		UserID:    "client-1",
		UserEmail: "client@example.com",
	})
	if err != nil {
		t.Fatalf("EnsureConversation returned error: %v", err)
	}
	if conversation.ID != "client-1" || conversation.UserID != "client-1" {
		t.Fatalf("conversation not keyed by user id: %+v", conversation)
	}
	if len(conversations.upserts) != 1 {
		t.Fatalf("expected one upsert, got %d", len(conversations.upserts))
	}

	// A second call finds the existing thread and must not create another.
	conversations.findFn = func(context.Context, string) (domain.Conversation, error) {
		return conversation, nil
	}
	if _, err := svc.EnsureConversation(context.Background(), EnsureConversationCommand{UserID: "client-1"}); err != nil {
		t.Fatalf("second EnsureConversation returned error: %v", err)
	}
	if len(conversations.upserts) != 1 {
		t.Fatalf("existing thread must not be recreated")
	}
}

func TestSendMessageSanitisesAndTouchesThread(t *testing.T) {
	now := time.Date(2026, time.March, 12, 9, 0, 0, 0, time.UTC)
	conversations := ownedConversationRepo("client-1")
	messages := &stubMessageRepo{}

	svc := newTestChatService(t, ChatServiceDeps{
		Conversations: conversations,
		Messages:      messages,
		Clock:         fixedClock(now),
		IDGenerator:   func() string { return "01MSG" },
	})

	message, err := svc.SendMessage(context.Background(), SendMessageCommand{
		ConversationID: "client-1",
		SenderID:       "client-1",
		SenderEmail:    "client@example.com",
		Text:           "<b>Here is</b> the brief",
	})
	if err != nil {
		t.Fatalf("SendMessage returned error: %v", err)
	}

	if message.ID != "msg_01MSG" {
		t.Fatalf("unexpected message id %q", message.ID)
	}
	if strings.Contains(message.Text, "<") {
		t.Fatalf("markup not stripped: %q", message.Text)
	}
	if len(messages.appended) != 1 {
		t.Fatalf("expected one append, got %d", len(messages.appended))
	}
	if len(conversations.touches) != 1 {
		t.Fatalf("expected thread touch, got %d", len(conversations.touches))
	}
}

func TestSendMessageDeniesOtherClients(t *testing.T) {
	svc := newTestChatService(t, ChatServiceDeps{
		Conversations: ownedConversationRepo("client-1"),
	})

	_, err := svc.SendMessage(context.Background(), SendMessageCommand{
		ConversationID: "client-1",
		SenderID:       "client-2",
		Text:           "hello",
	})
	if !errors.Is(err, ErrChatForbidden) {
		t.Fatalf("expected forbidden error, got %v", err)
	}
}

func TestSendMessageAllowsAdmins(t *testing.T) {
	svc := newTestChatService(t, ChatServiceDeps{
		Conversations: ownedConversationRepo("client-1"),
	})

	_, err := svc.SendMessage(context.Background(), SendMessageCommand{
		ConversationID: "client-1",
		SenderID:       "admin-1",
		IsAdmin:        true,
		Text:           "we are on it",
	})
	if err != nil {
		t.Fatalf("admin SendMessage returned error: %v", err)
	}
}

func TestSendMessageRequiresTextOrAttachment(t *testing.T) {
	svc := newTestChatService(t, ChatServiceDeps{
		Conversations: ownedConversationRepo("client-1"),
	})

	_, err := svc.SendMessage(context.Background(), SendMessageCommand{
		ConversationID: "client-1",
		SenderID:       "client-1",
		Text:           "   ",
	})
	if !errors.Is(err, ErrChatInvalidInput) {
		t.Fatalf("expected invalid input error, got %v", err)
	}
}

func TestAttachmentUploadURLScopesObjectKey(t *testing.T) {
	var signedObject string
	signer := &stubAttachmentSigner{
		uploadFn: func(_ context.Context, object, _ string) (storage.SignedURLResult, error) {
			signedObject = object
			return storage.SignedURLResult{URL: "https://signed.example/upload", Method: "PUT"}, nil
		},
	}

	svc := newTestChatService(t, ChatServiceDeps{
		Conversations: ownedConversationRepo("client-1"),
		Attachments:   signer,
		IDGenerator:   func() string { return "01FILE" },
	})

	asset, err := svc.AttachmentUploadURL(context.Background(), AttachmentUploadCommand{
		ConversationID: "client-1",
		RequesterID:    "client-1",
		FileName:       "logo draft (v2).png",
		ContentType:    "image/png",
	})
	if err != nil {
		t.Fatalf("AttachmentUploadURL returned error: %v", err)
	}

	if !strings.HasPrefix(signedObject, "chats/client-1/01FILE_") {
		t.Fatalf("object key not scoped to conversation: %q", signedObject)
	}
	if strings.ContainsAny(signedObject[len("chats/client-1/"):], "() ") {
		t.Fatalf("file name not sanitised: %q", signedObject)
	}
	if asset.ObjectKey != signedObject {
		t.Fatalf("asset object key mismatch: %q vs %q", asset.ObjectKey, signedObject)
	}
}

func TestAttachmentDownloadURLRefusesForeignKeys(t *testing.T) {
	svc := newTestChatService(t, ChatServiceDeps{
		Conversations: ownedConversationRepo("client-1"),
		Attachments:   &stubAttachmentSigner{},
	})

	_, err := svc.AttachmentDownloadURL(context.Background(), AttachmentDownloadCommand{
		ConversationID: "client-1",
		RequesterID:    "client-1",
		ObjectKey:      "chats/client-2/secret.pdf",
	})
	if !errors.Is(err, ErrChatForbidden) {
		t.Fatalf("expected forbidden error, got %v", err)
	}

	asset, err := svc.AttachmentDownloadURL(context.Background(), AttachmentDownloadCommand{
		ConversationID: "client-1",
		RequesterID:    "client-1",
		ObjectKey:      "chats/client-1/01FILE_logo.png",
		FileName:       "logo.png",
	})
	if err != nil {
		t.Fatalf("AttachmentDownloadURL returned error: %v", err)
	}
	if asset.ObjectKey != "chats/client-1/01FILE_logo.png" {
		t.Fatalf("unexpected object key %q", asset.ObjectKey)
	}
}
