package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/designdesk/api/internal/domain"
	"github.com/designdesk/api/internal/payments"
	"github.com/designdesk/api/internal/repositories"
)

type stubOrderRepo struct {
	insertFn     func(ctx context.Context, order domain.Order) error
	updateFn     func(ctx context.Context, order domain.Order) error
	findFn       func(ctx context.Context, orderID string) (domain.Order, error)
	listFn       func(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error)
	watchFn      func(ctx context.Context, filter repositories.OrderListFilter) (repositories.Watcher[domain.Order], error)
	refUsedFn    func(ctx context.Context, paymentRef string) (bool, error)
	inserted     []domain.Order
	updated      []domain.Order
}

func (s *stubOrderRepo) Insert(ctx context.Context, order domain.Order) error {
	s.inserted = append(s.inserted, order)
	if s.insertFn != nil {
		return s.insertFn(ctx, order)
	}
	return nil
}

func (s *stubOrderRepo) Update(ctx context.Context, order domain.Order) error {
	s.updated = append(s.updated, order)
	if s.updateFn != nil {
		return s.updateFn(ctx, order)
	}
	return nil
}

func (s *stubOrderRepo) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if s.findFn != nil {
		return s.findFn(ctx, orderID)
	}
	return domain.Order{}, errors.New("find not stubbed")
}

func (s *stubOrderRepo) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.CursorPage[domain.Order]{}, nil
}

func (s *stubOrderRepo) Watch(ctx context.Context, filter repositories.OrderListFilter) (repositories.Watcher[domain.Order], error) {
	if s.watchFn != nil {
		return s.watchFn(ctx, filter)
	}
	return nil, errors.New("watch not stubbed")
}

func (s *stubOrderRepo) IsPaymentRefUsed(ctx context.Context, paymentRef string) (bool, error) {
	if s.refUsedFn != nil {
		return s.refUsedFn(ctx, paymentRef)
	}
	return false, nil
}

type stubCounterRepo struct {
	nextFn func(ctx context.Context, name string) (int64, error)
}

func (s *stubCounterRepo) Next(ctx context.Context, name string) (int64, error) {
	if s.nextFn != nil {
		return s.nextFn(ctx, name)
	}
	return 1, nil
}

type stubNotifier struct {
	notifyFn func(ctx context.Context, note OrderDecisionNote) error
	notes    []OrderDecisionNote
}

func (s *stubNotifier) NotifyOrderDecision(ctx context.Context, note OrderDecisionNote) error {
	s.notes = append(s.notes, note)
	if s.notifyFn != nil {
		return s.notifyFn(ctx, note)
	}
	return nil
}

type stubPublisher struct {
	publishFn func(ctx context.Context, event OrderEvent) (string, error)
	events    []OrderEvent
}

func (s *stubPublisher) PublishOrderEvent(ctx context.Context, event OrderEvent) (string, error) {
	s.events = append(s.events, event)
	if s.publishFn != nil {
		return s.publishFn(ctx, event)
	}
	return "msg-1", nil
}

type stubVerifier struct {
	verifyFn func(ctx context.Context, reference string) (payments.Verification, error)
}

func (s *stubVerifier) VerifyReference(ctx context.Context, reference string) (payments.Verification, error) {
	if s.verifyFn != nil {
		return s.verifyFn(ctx, reference)
	}
	return payments.Verification{Reference: reference, Status: payments.StatusUnknown}, nil
}

type stubRepoError struct {
	msg         string
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e stubRepoError) Error() string       { return e.msg }
func (e stubRepoError) IsNotFound() bool    { return e.notFound }
func (e stubRepoError) IsConflict() bool    { return e.conflict }
func (e stubRepoError) IsUnavailable() bool { return e.unavailable }

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newTestOrderService(t *testing.T, deps OrderServiceDeps) OrderService {
	t.Helper()
	if deps.Orders == nil {
		deps.Orders = &stubOrderRepo{}
	}
	if deps.Counters == nil {
		deps.Counters = &stubCounterRepo{}
	}
	svc, err := NewOrderService(deps)
	if err != nil {
		t.Fatalf("NewOrderService returned error: %v", err)
	}
	return svc
}

func TestSubmitOrderCreatesPendingOrderWithSnapshot(t *testing.T) {
	now := time.Date(2026, time.March, 10, 9, 30, 0, 0, time.UTC)
	orders := &stubOrderRepo{}
	publisher := &stubPublisher{}

	svc := newTestOrderService(t, OrderServiceDeps{
		Orders:      orders,
		Counters:    &stubCounterRepo{nextFn: func(context.Context, string) (int64, error) { return 42, nil }},
		Clock:       fixedClock(now),
		IDGenerator: func() string { return "01TESTULID" },
		Events:      publisher,
	})

	order, err := svc.SubmitOrder(context.Background(), SubmitOrderCommand{
		UserID:         "user-1",
		UserEmail:      "client@example.com",
		ServiceType:    domain.ServicePowerpoint,
		DeliveryWindow: domain.DeliveryExpress,
		Deliverables:   []string{" pitch deck ", "PITCH DECK", "style guide"},
		PaymentRef:     " pi_abc123 ",
		Brief:          "<script>alert(1)</script>Ten slides, brand colours.",
	})
	if err != nil {
		t.Fatalf("SubmitOrder returned error: %v", err)
	}

	if order.ID != "ord_01TESTULID" {
		t.Fatalf("unexpected order id %q", order.ID)
	}
	if order.OrderNumber != "DD-2026-000042" {
		t.Fatalf("unexpected order number %q", order.OrderNumber)
	}
	if order.Status != domain.OrderStatusPendingConfirmation {
		t.Fatalf("unexpected status %q", order.Status)
	}
	if order.PaymentRef != "pi_abc123" {
		t.Fatalf("payment reference not trimmed: %q", order.PaymentRef)
	}
	if len(order.Deliverables) != 2 {
		t.Fatalf("expected deduplicated deliverables, got %v", order.Deliverables)
	}
	// powerpoint base 5000 * 1.5 express + 2 * 500 fees.
	if order.Totals.Total != 8500 {
		t.Fatalf("unexpected total %d", order.Totals.Total)
	}
	if order.Totals.Deposit != 2550 {
		t.Fatalf("unexpected deposit %d", order.Totals.Deposit)
	}
	if order.Brief != "Ten slides, brand colours." {
		t.Fatalf("brief not sanitised: %q", order.Brief)
	}
	if len(orders.inserted) != 1 {
		t.Fatalf("expected one insert, got %d", len(orders.inserted))
	}
	if len(publisher.events) != 1 || publisher.events[0].Type != orderEventSubmitted {
		t.Fatalf("expected submitted event, got %+v", publisher.events)
	}
}

func TestSubmitOrderRejectsUnknownServiceType(t *testing.T) {
	svc := newTestOrderService(t, OrderServiceDeps{})

	_, err := svc.SubmitOrder(context.Background(), SubmitOrderCommand{
		UserID:         "user-1",
		UserEmail:      "client@example.com",
		ServiceType:    domain.ServiceType("video"),
		DeliveryWindow: domain.DeliveryStandard,
		Deliverables:   []string{"logo"},
		PaymentRef:     "pi_abc",
	})
	if !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected invalid input error, got %v", err)
	}
}

func TestSubmitOrderRejectsBlankDeliverables(t *testing.T) {
	svc := newTestOrderService(t, OrderServiceDeps{})

	_, err := svc.SubmitOrder(context.Background(), SubmitOrderCommand{
		UserID:         "user-1",
		UserEmail:      "client@example.com",
		ServiceType:    domain.ServiceWord,
		DeliveryWindow: domain.DeliveryStandard,
		Deliverables:   []string{"  ", "\t"},
		PaymentRef:     "pi_abc",
	})
	if !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected invalid input error, got %v", err)
	}
}

func TestSubmitOrderRejectsUsedPaymentReference(t *testing.T) {
	orders := &stubOrderRepo{
		refUsedFn: func(context.Context, string) (bool, error) { return true, nil },
	}
	svc := newTestOrderService(t, OrderServiceDeps{Orders: orders})

	_, err := svc.SubmitOrder(context.Background(), SubmitOrderCommand{
		UserID:         "user-1",
		UserEmail:      "client@example.com",
		ServiceType:    domain.ServiceWord,
		DeliveryWindow: domain.DeliveryStandard,
		Deliverables:   []string{"report"},
		PaymentRef:     "pi_reused",
	})
	if !errors.Is(err, ErrOrderDuplicateReference) {
		t.Fatalf("expected duplicate reference error, got %v", err)
	}
	if len(orders.inserted) != 0 {
		t.Fatalf("expected no insert for duplicate reference")
	}
}

func TestSubmitOrderMapsInsertConflictToDuplicateReference(t *testing.T) {
	orders := &stubOrderRepo{
		insertFn: func(context.Context, domain.Order) error {
			return stubRepoError{msg: "payment ref taken", conflict: true}
		},
	}
	svc := newTestOrderService(t, OrderServiceDeps{Orders: orders})

	_, err := svc.SubmitOrder(context.Background(), SubmitOrderCommand{
		UserID:         "user-1",
		UserEmail:      "client@example.com",
		ServiceType:    domain.ServiceExcel,
		DeliveryWindow: domain.DeliveryUrgent,
		Deliverables:   []string{"dashboard"},
		PaymentRef:     "pi_raced",
	})
	if !errors.Is(err, ErrOrderDuplicateReference) {
		t.Fatalf("expected duplicate reference error, got %v", err)
	}
}

func TestSubmitOrderProceedsWhenVerifierReportsUnknown(t *testing.T) {
	var logged []string
	verifier := &stubVerifier{
		verifyFn: func(_ context.Context, ref string) (payments.Verification, error) {
			return payments.Verification{Reference: ref, Status: payments.StatusUnknown}, nil
		},
	}
	svc := newTestOrderService(t, OrderServiceDeps{
		Verifier: verifier,
		Logger: func(_ context.Context, event string, _ map[string]any) {
			logged = append(logged, event)
		},
	})

	order, err := svc.SubmitOrder(context.Background(), SubmitOrderCommand{
		UserID:         "user-1",
		UserEmail:      "client@example.com",
		ServiceType:    domain.ServiceFiles,
		DeliveryWindow: domain.DeliveryStandard,
		Deliverables:   []string{"conversion"},
		PaymentRef:     "bank-transfer-778",
	})
	if err != nil {
		t.Fatalf("SubmitOrder returned error: %v", err)
	}
	if order.Status != domain.OrderStatusPendingConfirmation {
		t.Fatalf("unexpected status %q", order.Status)
	}

	found := false
	for _, event := range logged {
		if event == "order.reference.unverified" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected unverified reference to be logged, got %v", logged)
	}
}

func TestGetOrderEnforcesOwnership(t *testing.T) {
	stored := domain.Order{ID: "ord_1", UserID: "owner"}
	orders := &stubOrderRepo{
		findFn: func(context.Context, string) (domain.Order, error) { return stored, nil },
	}
	svc := newTestOrderService(t, OrderServiceDeps{Orders: orders})

	if _, err := svc.GetOrder(context.Background(), GetOrderQuery{OrderID: "ord_1", RequesterID: "owner"}); err != nil {
		t.Fatalf("owner read failed: %v", err)
	}
	if _, err := svc.GetOrder(context.Background(), GetOrderQuery{OrderID: "ord_1", RequesterID: "intruder"}); !errors.Is(err, ErrOrderForbidden) {
		t.Fatalf("expected forbidden error, got %v", err)
	}
	if _, err := svc.GetOrder(context.Background(), GetOrderQuery{OrderID: "ord_1", RequesterID: "staff", IsAdmin: true}); err != nil {
		t.Fatalf("admin read failed: %v", err)
	}
}

func TestMarkPaidPersistsDecisionAndNotifies(t *testing.T) {
	now := time.Date(2026, time.March, 11, 14, 0, 0, 0, time.UTC)
	stored := domain.Order{
		ID:          "ord_1",
		OrderNumber: "DD-2026-000007",
		UserID:      "owner",
		UserEmail:   "client@example.com",
		Status:      domain.OrderStatusPendingConfirmation,
	}
	orders := &stubOrderRepo{
		findFn: func(context.Context, string) (domain.Order, error) { return stored, nil },
	}
	notifier := &stubNotifier{}
	publisher := &stubPublisher{}

	svc := newTestOrderService(t, OrderServiceDeps{
		Orders:   orders,
		Notifier: notifier,
		Events:   publisher,
		Clock:    fixedClock(now),
	})

	order, err := svc.MarkPaid(context.Background(), DecideOrderCommand{
		OrderID: "ord_1",
		ActorID: "admin-1",
		Note:    "wire received",
	})
	if err != nil {
		t.Fatalf("MarkPaid returned error: %v", err)
	}

	if order.Status != domain.OrderStatusPaid {
		t.Fatalf("unexpected status %q", order.Status)
	}
	if order.DecidedAt == nil || !order.DecidedAt.Equal(now) {
		t.Fatalf("decidedAt not recorded: %v", order.DecidedAt)
	}
	if order.DecisionNote == nil || *order.DecisionNote != "wire received" {
		t.Fatalf("decision note not recorded: %v", order.DecisionNote)
	}
	if len(orders.updated) != 1 {
		t.Fatalf("expected one update, got %d", len(orders.updated))
	}
	if len(notifier.notes) != 1 || notifier.notes[0].Status != domain.OrderStatusPaid {
		t.Fatalf("expected paid notification, got %+v", notifier.notes)
	}
	if len(publisher.events) != 1 {
		t.Fatalf("expected one event, got %d", len(publisher.events))
	}
	event := publisher.events[0]
	if event.Type != orderEventDecided || event.PreviousStatus != string(domain.OrderStatusPendingConfirmation) {
		t.Fatalf("unexpected event %+v", event)
	}
}

func TestRejectIsTerminal(t *testing.T) {
	stored := domain.Order{ID: "ord_1", UserID: "owner", Status: domain.OrderStatusRejected}
	orders := &stubOrderRepo{
		findFn: func(context.Context, string) (domain.Order, error) { return stored, nil },
	}
	svc := newTestOrderService(t, OrderServiceDeps{Orders: orders})

	_, err := svc.MarkPaid(context.Background(), DecideOrderCommand{OrderID: "ord_1", ActorID: "admin-1"})
	if !errors.Is(err, ErrOrderInvalidState) {
		t.Fatalf("expected invalid state error, got %v", err)
	}
	if len(orders.updated) != 0 {
		t.Fatalf("terminal order must not be updated")
	}
}

func TestDecisionSurvivesNotificationFailure(t *testing.T) {
	stored := domain.Order{
		ID:     "ord_1",
		UserID: "owner",
		Status: domain.OrderStatusPendingConfirmation,
	}
	orders := &stubOrderRepo{
		findFn: func(context.Context, string) (domain.Order, error) { return stored, nil },
	}
	notifier := &stubNotifier{
		notifyFn: func(context.Context, OrderDecisionNote) error {
			return errors.New("chat write failed")
		},
	}
	var logged []string

	svc := newTestOrderService(t, OrderServiceDeps{
		Orders:   orders,
		Notifier: notifier,
		Logger: func(_ context.Context, event string, _ map[string]any) {
			logged = append(logged, event)
		},
	})

	order, err := svc.Reject(context.Background(), DecideOrderCommand{OrderID: "ord_1", ActorID: "admin-1"})
	if err != nil {
		t.Fatalf("Reject returned error despite notification failure: %v", err)
	}
	if order.Status != domain.OrderStatusRejected {
		t.Fatalf("unexpected status %q", order.Status)
	}
	if len(orders.updated) != 1 {
		t.Fatalf("decision update must persist, got %d updates", len(orders.updated))
	}

	found := false
	for _, event := range logged {
		if event == "order.notify.failed" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected notification failure to be logged, got %v", logged)
	}
}

func TestQuoteNormalisesDeliverables(t *testing.T) {
	svc := newTestOrderService(t, OrderServiceDeps{})

	breakdown, err := svc.Quote(context.Background(), QuoteRequest{
		ServiceType:    domain.ServiceAdmin,
		DeliveryWindow: domain.DeliveryStandard,
		Deliverables:   []string{"inbox cleanup", "INBOX CLEANUP", " "},
	})
	if err != nil {
		t.Fatalf("Quote returned error: %v", err)
	}
	if breakdown.DeliverableCount != 1 {
		t.Fatalf("expected one distinct deliverable, got %d", breakdown.DeliverableCount)
	}
	if breakdown.Total != 3000 {
		t.Fatalf("unexpected total %d", breakdown.Total)
	}
}
