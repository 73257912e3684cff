package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/designdesk/api/internal/domain"
	"github.com/designdesk/api/internal/platform/auth"
	"github.com/designdesk/api/internal/repositories"
	"github.com/designdesk/api/internal/services"
)

type stubChatService struct {
	ensureFn            func(context.Context, services.EnsureConversationCommand) (domain.Conversation, error)
	listConversationsFn func(context.Context, repositories.ConversationListFilter) (domain.CursorPage[domain.Conversation], error)
	sendFn              func(context.Context, services.SendMessageCommand) (domain.Message, error)
	listMessagesFn      func(context.Context, services.ListMessagesQuery) (domain.CursorPage[domain.Message], error)
	uploadFn            func(context.Context, services.AttachmentUploadCommand) (domain.SignedAssetURL, error)
	downloadFn          func(context.Context, services.AttachmentDownloadCommand) (domain.SignedAssetURL, error)
}

func (s *stubChatService) EnsureConversation(ctx context.Context, cmd services.EnsureConversationCommand) (domain.Conversation, error) {
	if s.ensureFn != nil {
		return s.ensureFn(ctx, cmd)
	}
	return domain.Conversation{}, errors.New("not implemented")
}

func (s *stubChatService) ListConversations(ctx context.Context, filter repositories.ConversationListFilter) (domain.CursorPage[domain.Conversation], error) {
	if s.listConversationsFn != nil {
		return s.listConversationsFn(ctx, filter)
	}
	return domain.CursorPage[domain.Conversation]{}, nil
}

func (s *stubChatService) SendMessage(ctx context.Context, cmd services.SendMessageCommand) (domain.Message, error) {
	if s.sendFn != nil {
		return s.sendFn(ctx, cmd)
	}
	return domain.Message{}, errors.New("not implemented")
}

func (s *stubChatService) ListMessages(ctx context.Context, query services.ListMessagesQuery) (domain.CursorPage[domain.Message], error) {
	if s.listMessagesFn != nil {
		return s.listMessagesFn(ctx, query)
	}
	return domain.CursorPage[domain.Message]{}, nil
}

func (s *stubChatService) AttachmentUploadURL(ctx context.Context, cmd services.AttachmentUploadCommand) (domain.SignedAssetURL, error) {
	if s.uploadFn != nil {
		return s.uploadFn(ctx, cmd)
	}
	return domain.SignedAssetURL{}, errors.New("not implemented")
}

func (s *stubChatService) AttachmentDownloadURL(ctx context.Context, cmd services.AttachmentDownloadCommand) (domain.SignedAssetURL, error) {
	if s.downloadFn != nil {
		return s.downloadFn(ctx, cmd)
	}
	return domain.SignedAssetURL{}, errors.New("not implemented")
}

func TestChatHandlersEnsureConversation(t *testing.T) {
	now := time.Date(2026, 3, 12, 8, 0, 0, 0, time.UTC)
	service := &stubChatService{
		ensureFn: func(_ context.Context, cmd services.EnsureConversationCommand) (domain.Conversation, error) {
			return domain.Conversation{ID: cmd.UserID, UserID: cmd.UserID, UserEmail: cmd.UserEmail, LastUpdate: now}, nil
		},
	}

	handler := NewChatHandlers(nil, service, nil)
	router := chi.NewRouter()
	router.Route("/chats", handler.Routes)

	req := httptest.NewRequest(http.MethodPost, "/chats", nil)
	req = authedRequest(req, &auth.Identity{UID: "client-1", Email: "client@example.com"})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var payload conversationResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid response JSON: %v", err)
	}
	if payload.Conversation.ID != "client-1" {
		t.Fatalf("unexpected conversation id %q", payload.Conversation.ID)
	}
}

func TestChatHandlersSendMessage(t *testing.T) {
	var captured services.SendMessageCommand
	service := &stubChatService{
		sendFn: func(_ context.Context, cmd services.SendMessageCommand) (domain.Message, error) {
			captured = cmd
			return domain.Message{ID: "msg_1", SenderID: cmd.SenderID, Text: cmd.Text}, nil
		},
	}

	handler := NewChatHandlers(nil, service, nil)
	router := chi.NewRouter()
	router.Route("/chats", handler.Routes)

	body, _ := json.Marshal(sendMessageRequest{Text: "hello"})
	req := httptest.NewRequest(http.MethodPost, "/chats/client-1/messages", bytes.NewReader(body))
	req = authedRequest(req, &auth.Identity{UID: "client-1"})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.ConversationID != "client-1" || captured.SenderID != "client-1" {
		t.Fatalf("unexpected command %+v", captured)
	}
}

func TestChatHandlersForeignConversationForbidden(t *testing.T) {
	service := &stubChatService{
		listMessagesFn: func(_ context.Context, query services.ListMessagesQuery) (domain.CursorPage[domain.Message], error) {
			return domain.CursorPage[domain.Message]{}, fmt.Errorf("%w: conversation %s", services.ErrChatForbidden, query.ConversationID)
		},
	}

	handler := NewChatHandlers(nil, service, nil)
	router := chi.NewRouter()
	router.Route("/chats", handler.Routes)

	req := httptest.NewRequest(http.MethodGet, "/chats/client-1/messages", nil)
	req = authedRequest(req, &auth.Identity{UID: "client-2"})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", rr.Code)
	}
}

func TestChatHandlersAttachmentUploadURL(t *testing.T) {
	expires := time.Date(2026, 3, 12, 9, 15, 0, 0, time.UTC)
	service := &stubChatService{
		uploadFn: func(_ context.Context, cmd services.AttachmentUploadCommand) (domain.SignedAssetURL, error) {
			return domain.SignedAssetURL{
				URL:       "https://signed.example/upload",
				ObjectKey: "chats/client-1/01FILE_logo.png",
				ExpiresAt: expires,
				Headers:   map[string]string{"Content-Type": cmd.ContentType},
			}, nil
		},
	}

	handler := NewChatHandlers(nil, service, nil)
	router := chi.NewRouter()
	router.Route("/chats", handler.Routes)

	body, _ := json.Marshal(attachmentUploadRequest{FileName: "logo.png", ContentType: "image/png"})
	req := httptest.NewRequest(http.MethodPost, "/chats/client-1/attachments:upload", bytes.NewReader(body))
	req = authedRequest(req, &auth.Identity{UID: "client-1"})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var payload signedAssetResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid response JSON: %v", err)
	}
	if payload.ObjectKey != "chats/client-1/01FILE_logo.png" {
		t.Fatalf("unexpected object key %q", payload.ObjectKey)
	}
	if payload.Headers["Content-Type"] != "image/png" {
		t.Fatalf("unexpected headers %v", payload.Headers)
	}
}
