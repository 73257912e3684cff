package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/designdesk/api/internal/domain"
	"github.com/designdesk/api/internal/payments"
	"github.com/designdesk/api/internal/pricing"
	"github.com/designdesk/api/internal/repositories"
	"github.com/designdesk/api/internal/textutil"
)

const (
	orderEventSubmitted = "order.submitted"
	orderEventDecided   = "order.decided"

	orderIDPrefix      = "ord_"
	orderNumberCounter = "orders"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidState indicates a decision was attempted on a non-pending order.
	ErrOrderInvalidState = errors.New("order: invalid status transition")
	// ErrOrderConflict indicates concurrent update conflicts.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderForbidden indicates the requester may not access the order.
	ErrOrderForbidden = errors.New("order: forbidden")
	// ErrOrderDuplicateReference indicates the payment reference was already used.
	ErrOrderDuplicateReference = errors.New("order: payment reference already used")
)

// Terminal states have no outgoing transitions; a decided order stays decided.
var orderStateTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPendingConfirmation: {domain.OrderStatusPaid, domain.OrderStatusRejected},
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Counters    repositories.CounterRepository
	UnitOfWork  repositories.UnitOfWork
	Notifier    NotificationService
	Verifier    payments.ReferenceVerifier
	Currency    string
	Clock       func() time.Time
	IDGenerator func() string
	Events      OrderEventPublisher
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders     repositories.OrderRepository
	counters   repositories.CounterRepository
	unitOfWork repositories.UnitOfWork
	notifier   NotificationService
	verifier   payments.ReferenceVerifier
	currency   string
	clock      func() time.Time
	newID      func() string
	events     OrderEventPublisher
	logger     func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("order service: counter repository is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
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

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	currency := strings.TrimSpace(deps.Currency)
	if currency == "" {
		currency = pricing.DefaultCurrency
	}

	return &orderService{
		orders:     deps.Orders,
		counters:   deps.Counters,
		unitOfWork: unit,
		notifier:   deps.Notifier,
		verifier:   deps.Verifier,
		currency:   currency,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		events: deps.Events,
		logger: logger,
	}, nil
}

// Quote prices a prospective order without persisting anything. Unknown
// service or delivery values fall back to pricing defaults so clients can
// preview while composing.
func (s *orderService) Quote(_ context.Context, req QuoteRequest) (pricing.Breakdown, error) {
	deliverables := textutil.NormalizeLabels(req.Deliverables)
	return pricing.Quote(req.ServiceType, req.DeliveryWindow, deliverables), nil
}

func (s *orderService) SubmitOrder(ctx context.Context, cmd SubmitOrderCommand) (domain.Order, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return domain.Order{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	userEmail := strings.TrimSpace(cmd.UserEmail)
	if userEmail == "" {
		return domain.Order{}, fmt.Errorf("%w: user email is required", ErrOrderInvalidInput)
	}
	if !slices.Contains(domain.KnownServiceTypes, cmd.ServiceType) {
		return domain.Order{}, fmt.Errorf("%w: unknown service type %q", ErrOrderInvalidInput, cmd.ServiceType)
	}
	if !slices.Contains(domain.KnownDeliveryWindows, cmd.DeliveryWindow) {
		return domain.Order{}, fmt.Errorf("%w: unknown delivery window %q", ErrOrderInvalidInput, cmd.DeliveryWindow)
	}
	paymentRef := strings.TrimSpace(cmd.PaymentRef)
	if paymentRef == "" {
		return domain.Order{}, fmt.Errorf("%w: payment reference is required", ErrOrderInvalidInput)
	}

	deliverables := textutil.NormalizeLabels(cmd.Deliverables)
	if len(deliverables) == 0 {
		return domain.Order{}, fmt.Errorf("%w: at least one deliverable is required", ErrOrderInvalidInput)
	}

	used, err := s.orders.IsPaymentRefUsed(ctx, paymentRef)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}
	if used {
		return domain.Order{}, fmt.Errorf("%w: %s", ErrOrderDuplicateReference, paymentRef)
	}

	s.verifyReference(ctx, paymentRef)

	now := s.now()
	breakdown := pricing.Quote(cmd.ServiceType, cmd.DeliveryWindow, deliverables)

	number, err := s.generateOrderNumber(ctx, now)
	if err != nil {
		return domain.Order{}, err
	}

	order := domain.Order{
		ID:             orderIDPrefix + s.newID(),
		OrderNumber:    number,
		UserID:         userID,
		UserEmail:      userEmail,
		ServiceType:    cmd.ServiceType,
		DeliveryWindow: cmd.DeliveryWindow,
		Deliverables:   deliverables,
		PaymentRef:     paymentRef,
		Brief:          textutil.SanitizeText(cmd.Brief),
		Totals: domain.OrderTotals{
			Currency: s.currency,
			Total:    breakdown.Total,
			Deposit:  breakdown.Deposit,
		},
		Status: domain.OrderStatusPendingConfirmation,
		Audit: domain.OrderAudit{
			CreatedBy: valuePtr(userID),
			UpdatedBy: valuePtr(userID),
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.orders.Insert(ctx, order); err != nil {
		mapped := s.mapRepositoryError(err)
		// The insert races the pre-check; a conflict here means the
		// reference was claimed between the two reads.
		if errors.Is(mapped, ErrOrderConflict) {
			return domain.Order{}, fmt.Errorf("%w: %s", ErrOrderDuplicateReference, paymentRef)
		}
		return domain.Order{}, mapped
	}

	s.publishEvent(ctx, OrderEvent{
		Type:        orderEventSubmitted,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		Status:      string(order.Status),
		ActorID:     userID,
		OccurredAt:  now,
	})

	return order, nil
}

func (s *orderService) GetOrder(ctx context.Context, query GetOrderQuery) (domain.Order, error) {
	orderID := strings.TrimSpace(query.OrderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}

	if !query.IsAdmin && order.UserID != strings.TrimSpace(query.RequesterID) {
		return domain.Order{}, fmt.Errorf("%w: order %s", ErrOrderForbidden, orderID)
	}

	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *orderService) MarkPaid(ctx context.Context, cmd DecideOrderCommand) (domain.Order, error) {
	return s.decide(ctx, cmd, domain.OrderStatusPaid)
}

func (s *orderService) Reject(ctx context.Context, cmd DecideOrderCommand) (domain.Order, error) {
	return s.decide(ctx, cmd, domain.OrderStatusRejected)
}

// decide persists the terminal status first and only then attempts the client
// notification. Notification failures are reported but never roll back the
// recorded decision.
func (s *orderService) decide(ctx context.Context, cmd DecideOrderCommand, target domain.OrderStatus) (domain.Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	actor := strings.TrimSpace(cmd.ActorID)
	if actor == "" {
		return domain.Order{}, fmt.Errorf("%w: actor id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}

	if !canTransition(order.Status, target) {
		return domain.Order{}, fmt.Errorf("%w: %s to %s", ErrOrderInvalidState, order.Status, target)
	}

	now := s.now()
	prevStatus := order.Status

	order.Status = target
	order.DecidedAt = &now
	order.UpdatedAt = now
	order.Audit.UpdatedBy = valuePtr(actor)
	order.DecisionNote = optionalString(textutil.SanitizeText(cmd.Note))

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if err := s.orders.Update(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.notifyDecision(ctx, order, now)

	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventDecided,
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		UserID:         order.UserID,
		Status:         string(order.Status),
		PreviousStatus: string(prevStatus),
		ActorID:        actor,
		OccurredAt:     now,
	})

	return order, nil
}

func (s *orderService) notifyDecision(ctx context.Context, order domain.Order, decidedAt time.Time) {
	if s.notifier == nil {
		return
	}
	err := s.notifier.NotifyOrderDecision(ctx, OrderDecisionNote{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		UserEmail:   order.UserEmail,
		Status:      order.Status,
		DecidedAt:   decidedAt,
	})
	if err != nil {
		s.logger(ctx, "order.notify.failed", map[string]any{
			"order":  order.ID,
			"status": string(order.Status),
			"error":  err.Error(),
		})
	}
}

// verifyReference asks the payment provider about the reference when a
// verifier is configured. The result is advisory and only logged; the admin
// decision remains authoritative.
func (s *orderService) verifyReference(ctx context.Context, paymentRef string) {
	if s.verifier == nil {
		return
	}
	verification, err := s.verifier.VerifyReference(ctx, paymentRef)
	if err != nil {
		s.logger(ctx, "order.reference.verify.failed", map[string]any{
			"reference": paymentRef,
			"error":     err.Error(),
		})
		return
	}
	if verification.Status != payments.StatusSucceeded {
		s.logger(ctx, "order.reference.unverified", map[string]any{
			"reference": paymentRef,
			"status":    string(verification.Status),
		})
	}
}

func canTransition(current, target domain.OrderStatus) bool {
	return slices.Contains(orderStateTransitions[current], target)
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}

	return err
}

func (s *orderService) generateOrderNumber(ctx context.Context, now time.Time) (string, error) {
	seq, err := s.counters.Next(ctx, orderNumberCounter)
	if err != nil {
		return "", s.mapRepositoryError(err)
	}
	return fmt.Sprintf("DD-%04d-%06d", now.Year(), seq), nil
}

func (s *orderService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *orderService) now() time.Time {
	return s.clock()
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if _, err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":   event.Type,
			"order":  event.OrderID,
			"error":  err.Error(),
			"status": event.Status,
		})
	}
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}
