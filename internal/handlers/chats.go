package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/designdesk/api/internal/domain"
	"github.com/designdesk/api/internal/platform/auth"
	"github.com/designdesk/api/internal/platform/httpx"
	"github.com/designdesk/api/internal/repositories"
	"github.com/designdesk/api/internal/services"
)

const (
	defaultMessagePageSize = 50
	maxMessagePageSize     = 200
)

type sendMessageRequest struct {
	Text     string  `json:"text"`
	FileURL  *string `json:"file_url"`
	FileName *string `json:"file_name"`
	FileType *string `json:"file_type"`
}

type attachmentUploadRequest struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
}

type attachmentDownloadRequest struct {
	ObjectKey string `json:"object_key"`
	FileName  string `json:"file_name"`
}

type conversationPayload struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	UserEmail  string    `json:"user_email,omitempty"`
	LastUpdate time.Time `json:"last_update"`
}

type conversationResponse struct {
	Conversation conversationPayload `json:"conversation"`
}

type conversationListResponse struct {
	Items         []conversationPayload `json:"items"`
	NextPageToken string                `json:"next_page_token,omitempty"`
}

type messagePayload struct {
	ID          string    `json:"id"`
	SenderID    string    `json:"sender_id"`
	SenderEmail string    `json:"sender_email,omitempty"`
	Text        string    `json:"text,omitempty"`
	FileURL     *string   `json:"file_url,omitempty"`
	FileName    *string   `json:"file_name,omitempty"`
	FileType    *string   `json:"file_type,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

type messageResponse struct {
	Message messagePayload `json:"message"`
}

type messageListResponse struct {
	Items         []messagePayload `json:"items"`
	NextPageToken string           `json:"next_page_token,omitempty"`
}

type signedAssetResponse struct {
	URL       string            `json:"url"`
	ObjectKey string            `json:"object_key"`
	ExpiresAt time.Time         `json:"expires_at"`
	Headers   map[string]string `json:"headers,omitempty"`
}

// ChatHandlers exposes conversation and message endpoints.
type ChatHandlers struct {
	authn *auth.Authenticator
	chats services.ChatService
	live  services.LiveFeedService
}

// NewChatHandlers constructs a new ChatHandlers instance.
func NewChatHandlers(authn *auth.Authenticator, chats services.ChatService, live services.LiveFeedService) *ChatHandlers {
	return &ChatHandlers{
		authn: authn,
		chats: chats,
		live:  live,
	}
}

// Routes registers the /chats endpoints.
func (h *ChatHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Post("/", h.ensureConversation)
	r.Get("/{conversationID}/messages", h.listMessages)
	r.Get("/{conversationID}/messages/live", h.watchMessages)
	r.Post("/{conversationID}/messages", h.sendMessage)
	r.Post("/{conversationID}/attachments:upload", h.attachmentUploadURL)
	r.Post("/{conversationID}/attachments:download", h.attachmentDownloadURL)
}

// ensureConversation creates or returns the caller's own thread.
func (h *ChatHandlers) ensureConversation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.chats == nil {
		httpx.WriteError(ctx, w, httpx.NewError("chat_service_unavailable", "chat service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	conversation, err := h.chats.EnsureConversation(ctx, services.EnsureConversationCommand{
		UserID:    identity.UID,
		UserEmail: identity.Email,
	})
	if err != nil {
		writeChatError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, conversationResponse{Conversation: buildConversationPayload(conversation)})
}

func (h *ChatHandlers) listMessages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.chats == nil {
		httpx.WriteError(ctx, w, httpx.NewError("chat_service_unavailable", "chat service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	conversationID := strings.TrimSpace(chi.URLParam(r, "conversationID"))
	if conversationID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "conversation id is required", http.StatusBadRequest))
		return
	}

	query := r.URL.Query()
	pageSize, err := parsePageSize(query.Get("page_size"), defaultMessagePageSize, maxMessagePageSize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "page_size must be an integer", http.StatusBadRequest))
		return
	}

	sort := domain.SortAsc
	if strings.EqualFold(strings.TrimSpace(query.Get("sort")), string(domain.SortDesc)) {
		sort = domain.SortDesc
	}

	page, err := h.chats.ListMessages(ctx, services.ListMessagesQuery{
		ConversationID: conversationID,
		RequesterID:    identity.UID,
		IsAdmin:        identity.IsAdmin(),
		Filter: repositories.MessageListFilter{
			Sort:      sort,
			PageSize:  pageSize,
			PageToken: strings.TrimSpace(query.Get("page_token")),
		},
	})
	if err != nil {
		writeChatError(ctx, w, err)
		return
	}

	items := make([]messagePayload, 0, len(page.Items))
	for _, message := range page.Items {
		items = append(items, buildMessagePayload(message))
	}
	writeJSONResponse(w, http.StatusOK, messageListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

func (h *ChatHandlers) watchMessages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.live == nil {
		httpx.WriteError(ctx, w, httpx.NewError("live_feed_unavailable", "live feeds unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	conversationID := strings.TrimSpace(chi.URLParam(r, "conversationID"))
	if conversationID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "conversation id is required", http.StatusBadRequest))
		return
	}

	feed, err := h.live.WatchMessages(ctx, services.WatchMessagesCommand{
		SessionID:      sessionIDFromRequest(r),
		ConversationID: conversationID,
		RequesterID:    identity.UID,
		IsAdmin:        identity.IsAdmin(),
	})
	if err != nil {
		writeChatError(ctx, w, err)
		return
	}

	streamLiveFeed(ctx, w, feed, buildMessagePayload)
}

func (h *ChatHandlers) sendMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.chats == nil {
		httpx.WriteError(ctx, w, httpx.NewError("chat_service_unavailable", "chat service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	conversationID := strings.TrimSpace(chi.URLParam(r, "conversationID"))
	if conversationID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "conversation id is required", http.StatusBadRequest))
		return
	}

	var req sendMessageRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	message, err := h.chats.SendMessage(ctx, services.SendMessageCommand{
		ConversationID: conversationID,
		SenderID:       identity.UID,
		SenderEmail:    identity.Email,
		IsAdmin:        identity.IsAdmin(),
		Text:           req.Text,
		FileURL:        req.FileURL,
		FileName:       req.FileName,
		FileType:       req.FileType,
	})
	if err != nil {
		writeChatError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, messageResponse{Message: buildMessagePayload(message)})
}

func (h *ChatHandlers) attachmentUploadURL(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.chats == nil {
		httpx.WriteError(ctx, w, httpx.NewError("chat_service_unavailable", "chat service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	conversationID := strings.TrimSpace(chi.URLParam(r, "conversationID"))
	if conversationID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "conversation id is required", http.StatusBadRequest))
		return
	}

	var req attachmentUploadRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	asset, err := h.chats.AttachmentUploadURL(ctx, services.AttachmentUploadCommand{
		ConversationID: conversationID,
		RequesterID:    identity.UID,
		IsAdmin:        identity.IsAdmin(),
		FileName:       req.FileName,
		ContentType:    req.ContentType,
	})
	if err != nil {
		writeChatError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildSignedAssetResponse(asset))
}

func (h *ChatHandlers) attachmentDownloadURL(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.chats == nil {
		httpx.WriteError(ctx, w, httpx.NewError("chat_service_unavailable", "chat service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	conversationID := strings.TrimSpace(chi.URLParam(r, "conversationID"))
	if conversationID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "conversation id is required", http.StatusBadRequest))
		return
	}

	var req attachmentDownloadRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	asset, err := h.chats.AttachmentDownloadURL(ctx, services.AttachmentDownloadCommand{
		ConversationID: conversationID,
		RequesterID:    identity.UID,
		IsAdmin:        identity.IsAdmin(),
		ObjectKey:      req.ObjectKey,
		FileName:       req.FileName,
	})
	if err != nil {
		writeChatError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildSignedAssetResponse(asset))
}

func parseConversationListFilter(ctx context.Context, w http.ResponseWriter, r *http.Request) (repositories.ConversationListFilter, bool) {
	query := r.URL.Query()

	pageSize, err := parsePageSize(query.Get("page_size"), defaultOrderPageSize, maxOrderPageSize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "page_size must be an integer", http.StatusBadRequest))
		return repositories.ConversationListFilter{}, false
	}

	sort := domain.SortDesc
	if strings.EqualFold(strings.TrimSpace(query.Get("sort")), string(domain.SortAsc)) {
		sort = domain.SortAsc
	}

	return repositories.ConversationListFilter{
		Sort:      sort,
		PageSize:  pageSize,
		PageToken: strings.TrimSpace(query.Get("page_token")),
	}, true
}

func buildConversationPayload(conversation domain.Conversation) conversationPayload {
	return conversationPayload{
		ID:         conversation.ID,
		UserID:     conversation.UserID,
		UserEmail:  conversation.UserEmail,
		LastUpdate: conversation.LastUpdate,
	}
}

func buildConversationListResponse(page domain.CursorPage[domain.Conversation]) conversationListResponse {
	items := make([]conversationPayload, 0, len(page.Items))
	for _, conversation := range page.Items {
		items = append(items, buildConversationPayload(conversation))
	}
	return conversationListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	}
}

func buildMessagePayload(message domain.Message) messagePayload {
	return messagePayload{
		ID:          message.ID,
		SenderID:    message.SenderID,
		SenderEmail: message.SenderEmail,
		Text:        message.Text,
		FileURL:     message.FileURL,
		FileName:    message.FileName,
		FileType:    message.FileType,
		Timestamp:   message.Timestamp,
	}
}

func buildSignedAssetResponse(asset domain.SignedAssetURL) signedAssetResponse {
	return signedAssetResponse{
		URL:       asset.URL,
		ObjectKey: asset.ObjectKey,
		ExpiresAt: asset.ExpiresAt,
		Headers:   asset.Headers,
	}
}
