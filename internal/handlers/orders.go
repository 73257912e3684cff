package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/designdesk/api/internal/domain"
	"github.com/designdesk/api/internal/platform/auth"
	"github.com/designdesk/api/internal/platform/httpx"
	"github.com/designdesk/api/internal/pricing"
	"github.com/designdesk/api/internal/repositories"
	"github.com/designdesk/api/internal/services"
)

const (
	defaultOrderPageSize = 20
	maxOrderPageSize     = 100
	maxOrderBodySize     = 32 * 1024
)

type submitOrderRequest struct {
	ServiceType    string   `json:"service_type"`
	DeliveryWindow string   `json:"delivery_window"`
	Deliverables   []string `json:"deliverables"`
	PaymentRef     string   `json:"payment_ref"`
	Brief          string   `json:"brief"`
}

type quoteRequest struct {
	ServiceType    string   `json:"service_type"`
	DeliveryWindow string   `json:"delivery_window"`
	Deliverables   []string `json:"deliverables"`
}

type quoteResponse struct {
	Currency         string  `json:"currency"`
	Base             int64   `json:"base"`
	Multiplier       float64 `json:"multiplier"`
	DeliverableCount int     `json:"deliverable_count"`
	DeliverableFees  int64   `json:"deliverable_fees"`
	Total            int64   `json:"total"`
	Deposit          int64   `json:"deposit"`
}

type orderPayload struct {
	ID             string     `json:"id"`
	OrderNumber    string     `json:"order_number"`
	UserID         string     `json:"user_id"`
	UserEmail      string     `json:"user_email"`
	ServiceType    string     `json:"service_type"`
	DeliveryWindow string     `json:"delivery_window"`
	Deliverables   []string   `json:"deliverables"`
	PaymentRef     string     `json:"payment_ref"`
	Brief          string     `json:"brief,omitempty"`
	Currency       string     `json:"currency"`
	TotalAmount    int64      `json:"total_amount"`
	DepositAmount  int64      `json:"deposit_amount"`
	Status         string     `json:"status"`
	DecisionNote   *string    `json:"decision_note,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	DecidedAt      *time.Time `json:"decided_at,omitempty"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type orderListResponse struct {
	Items         []orderPayload `json:"items"`
	NextPageToken string         `json:"next_page_token,omitempty"`
}

// OrderHandlers exposes order endpoints for authenticated clients.
type OrderHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
	live   services.LiveFeedService
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService, live services.LiveFeedService) *OrderHandlers {
	return &OrderHandlers{
		authn:  authn,
		orders: orders,
		live:   live,
	}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Post("/", h.submitOrder)
	r.Post("/quote", h.quote)
	r.Get("/", h.listOrders)
	r.Get("/live", h.watchOrders)
	r.Get("/{orderID}", h.getOrder)
}

func (h *OrderHandlers) quote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req quoteRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	breakdown, err := h.orders.Quote(ctx, services.QuoteRequest{
		ServiceType:    domain.ServiceType(strings.ToLower(strings.TrimSpace(req.ServiceType))),
		DeliveryWindow: domain.DeliveryWindow(strings.ToLower(strings.TrimSpace(req.DeliveryWindow))),
		Deliverables:   req.Deliverables,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildQuoteResponse(breakdown))
}

func (h *OrderHandlers) submitOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req submitOrderRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	order, err := h.orders.SubmitOrder(ctx, services.SubmitOrderCommand{
		UserID:         identity.UID,
		UserEmail:      identity.Email,
		ServiceType:    domain.ServiceType(strings.ToLower(strings.TrimSpace(req.ServiceType))),
		DeliveryWindow: domain.DeliveryWindow(strings.ToLower(strings.TrimSpace(req.DeliveryWindow))),
		Deliverables:   req.Deliverables,
		PaymentRef:     req.PaymentRef,
		Brief:          req.Brief,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
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
	// Clients only ever see their own orders.
	filter.UserID = identity.UID

	page, err := h.orders.ListOrders(ctx, filter)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildOrderListResponse(page))
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
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
		IsAdmin:     identity.IsAdmin(),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) watchOrders(w http.ResponseWriter, r *http.Request) {
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

	feed, err := h.live.WatchOrders(ctx, services.WatchOrdersCommand{
		SessionID:   sessionIDFromRequest(r),
		RequesterID: identity.UID,
		IsAdmin:     identity.IsAdmin(),
		Filter:      filter,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	streamLiveFeed(ctx, w, feed, buildOrderPayload)
}

// parseOrderListFilter reads the shared list/watch query parameters. The
// caller decides whether to pin UserID afterwards.
func parseOrderListFilter(ctx context.Context, w http.ResponseWriter, r *http.Request) (repositories.OrderListFilter, bool) {
	query := r.URL.Query()

	var filter repositories.OrderListFilter

	for _, raw := range parseFilterValues(query["status"]) {
		status := domain.OrderStatus(raw)
		switch status {
		case domain.OrderStatusPendingConfirmation, domain.OrderStatusPaid, domain.OrderStatusRejected:
			filter.Statuses = append(filter.Statuses, status)
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status must be a valid order status", http.StatusBadRequest))
			return repositories.OrderListFilter{}, false
		}
	}

	if raw := strings.ToLower(strings.TrimSpace(query.Get("service_type"))); raw != "" {
		serviceType := domain.ServiceType(raw)
		filter.ServiceType = &serviceType
	}

	if raw := strings.TrimSpace(query.Get("created_after")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "created_after must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return repositories.OrderListFilter{}, false
		}
		filter.CreatedAt.From = &ts
	}
	if raw := strings.TrimSpace(query.Get("created_before")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "created_before must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return repositories.OrderListFilter{}, false
		}
		filter.CreatedAt.To = &ts
	}

	if strings.EqualFold(strings.TrimSpace(query.Get("sort")), string(domain.SortAsc)) {
		filter.Sort = domain.SortAsc
	} else {
		filter.Sort = domain.SortDesc
	}

	pageSize, err := parsePageSize(query.Get("page_size"), defaultOrderPageSize, maxOrderPageSize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "page_size must be an integer", http.StatusBadRequest))
		return repositories.OrderListFilter{}, false
	}
	filter.PageSize = pageSize
	filter.PageToken = strings.TrimSpace(query.Get("page_token"))

	return filter, true
}

func buildOrderPayload(order domain.Order) orderPayload {
	return orderPayload{
		ID:             order.ID,
		OrderNumber:    order.OrderNumber,
		UserID:         order.UserID,
		UserEmail:      order.UserEmail,
		ServiceType:    string(order.ServiceType),
		DeliveryWindow: string(order.DeliveryWindow),
		Deliverables:   order.Deliverables,
		PaymentRef:     order.PaymentRef,
		Brief:          order.Brief,
		Currency:       order.Totals.Currency,
		TotalAmount:    order.Totals.Total,
		DepositAmount:  order.Totals.Deposit,
		Status:         string(order.Status),
		DecisionNote:   order.DecisionNote,
		CreatedAt:      order.CreatedAt,
		UpdatedAt:      order.UpdatedAt,
		DecidedAt:      order.DecidedAt,
	}
}

func buildOrderListResponse(page domain.CursorPage[domain.Order]) orderListResponse {
	items := make([]orderPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, buildOrderPayload(order))
	}
	return orderListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	}
}

func buildQuoteResponse(breakdown pricing.Breakdown) quoteResponse {
	return quoteResponse{
		Currency:         breakdown.Currency,
		Base:             breakdown.Base,
		Multiplier:       breakdown.Multiplier,
		DeliverableCount: breakdown.DeliverableCount,
		DeliverableFees:  breakdown.DeliverableFees,
		Total:            breakdown.Total,
		Deposit:          breakdown.Deposit,
	}
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	ctx := r.Context()

	body, err := readLimitedBody(r, maxOrderBodySize)
	if err != nil {
		if err == errBodyTooLarge {
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		} else {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		}
		return false
	}
	if len(body) == 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return false
	}
	return true
}
