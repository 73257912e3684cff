package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/designdesk/api/internal/platform/auth"
	"github.com/designdesk/api/internal/platform/httpx"
	"github.com/designdesk/api/internal/services"
)

const maxDecisionBodySize = 4 * 1024

type decideOrderRequest struct {
	Note string `json:"note"`
}

// AdminOrderHandlers exposes the admin review queue and decision endpoints.
type AdminOrderHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
	chats  services.ChatService
	live   services.LiveFeedService
}

// NewAdminOrderHandlers constructs a new AdminOrderHandlers instance.
func NewAdminOrderHandlers(authn *auth.Authenticator, orders services.OrderService, chats services.ChatService, live services.LiveFeedService) *AdminOrderHandlers {
	return &AdminOrderHandlers{
		authn:  authn,
		orders: orders,
		chats:  chats,
		live:   live,
	}
}

// Routes registers the /admin endpoints. Every route requires the admin role.
func (h *AdminOrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(auth.RoleAdmin))
	}
	r.Get("/orders", h.listOrders)
	r.Get("/orders/live", h.watchOrders)
	r.Get("/orders/{orderID}", h.getOrder)
	r.Post("/orders/{orderID}:confirm", h.confirmOrder)
	r.Post("/orders/{orderID}:reject", h.rejectOrder)
	r.Get("/chats", h.listConversations)
}

func (h *AdminOrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	if _, ok := requireIdentity(ctx, w); !ok {
		return
	}

	filter, ok := parseOrderListFilter(ctx, w, r)
	if !ok {
		return
	}
	// Admins may scope the queue to one client.
	filter.UserID = strings.TrimSpace(r.URL.Query().Get("user_id"))

	page, err := h.orders.ListOrders(ctx, filter)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildOrderListResponse(page))
}

func (h *AdminOrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.GetOrder(ctx, services.GetOrderQuery{
		OrderID:     orderID,
		RequesterID: identity.UID,
		IsAdmin:     true,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *AdminOrderHandlers) confirmOrder(w http.ResponseWriter, r *http.Request) {
	h.decideOrder(w, r, true)
}

func (h *AdminOrderHandlers) rejectOrder(w http.ResponseWriter, r *http.Request) {
	h.decideOrder(w, r, false)
}

func (h *AdminOrderHandlers) decideOrder(w http.ResponseWriter, r *http.Request, confirm bool) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	var req decideOrderRequest
	body, err := readLimitedBody(r, maxDecisionBodySize)
	if err != nil {
		if err == errBodyTooLarge {
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		} else {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		}
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
			return
		}
	}

	cmd := services.DecideOrderCommand{
		OrderID: orderID,
		ActorID: identity.UID,
		Note:    req.Note,
	}

	if confirm {
		orderOut, err := h.orders.MarkPaid(ctx, cmd)
		if err != nil {
			writeOrderError(ctx, w, err)
			return
		}
		writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(orderOut)})
		return
	}

	orderOut, err := h.orders.Reject(ctx, cmd)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(orderOut)})
}

func (h *AdminOrderHandlers) watchOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.live == nil {
		httpx.WriteError(ctx, w, httpx.NewError("live_feed_unavailable", "live feeds unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	filter, ok := parseOrderListFilter(ctx, w, r)
	if !ok {
		return
	}
	filter.UserID = strings.TrimSpace(r.URL.Query().Get("user_id"))

	feed, err := h.live.WatchOrders(ctx, services.WatchOrdersCommand{
		SessionID:   sessionIDFromRequest(r),
		RequesterID: identity.UID,
		IsAdmin:     true,
		Filter:      filter,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	streamLiveFeed(ctx, w, feed, buildOrderPayload)
}

func (h *AdminOrderHandlers) listConversations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.chats == nil {
		httpx.WriteError(ctx, w, httpx.NewError("chat_service_unavailable", "chat service unavailable", http.StatusServiceUnavailable))
		return
	}

	if _, ok := requireIdentity(ctx, w); !ok {
		return
	}

	filter, ok := parseConversationListFilter(ctx, w, r)
	if !ok {
		return
	}

	page, err := h.chats.ListConversations(ctx, filter)
	if err != nil {
		writeChatError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildConversationListResponse(page))
}
