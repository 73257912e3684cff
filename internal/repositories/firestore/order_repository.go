package firestore

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/designdesk/api/internal/domain"
	pfirestore "github.com/designdesk/api/internal/platform/firestore"
	"github.com/designdesk/api/internal/repositories"
)

const (
	ordersCollection      = "orders"
	paymentRefsCollection = "paymentRefs"
)

type orderDocument struct {
	OrderNumber    string     `firestore:"orderNumber"`
	UserID         string     `firestore:"userId"`
	UserEmail      string     `firestore:"userEmail"`
	ServiceType    string     `firestore:"serviceType"`
	DeliveryWindow string     `firestore:"deliveryWindow"`
	Deliverables   []string   `firestore:"deliverables"`
	PaymentRef     string     `firestore:"paymentRef"`
	Brief          string     `firestore:"brief,omitempty"`
	Currency       string     `firestore:"currency"`
	TotalAmount    int64      `firestore:"totalAmount"`
	DepositAmount  int64      `firestore:"depositAmount"`
	Status         string     `firestore:"status"`
	DecisionNote   *string    `firestore:"decisionNote,omitempty"`
	CreatedBy      *string    `firestore:"createdBy,omitempty"`
	UpdatedBy      *string    `firestore:"updatedBy,omitempty"`
	CreatedAt      time.Time  `firestore:"createdAt"`
	UpdatedAt      time.Time  `firestore:"updatedAt"`
	DecidedAt      *time.Time `firestore:"decidedAt,omitempty"`
}

type paymentRefDocument struct {
	OrderID   string    `firestore:"orderId"`
	UserID    string    `firestore:"userId"`
	CreatedAt time.Time `firestore:"createdAt"`
}

// OrderRepository implements repositories.OrderRepository backed by Firestore.
type OrderRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.BaseRepository[orderDocument]
	refs     *pfirestore.BaseRepository[paymentRefDocument]
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository: firestore provider is required")
	}
	return &OrderRepository{
		provider: provider,
		orders:   pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil, nil),
		refs:     pfirestore.NewBaseRepository[paymentRefDocument](provider, paymentRefsCollection, nil, nil),
	}, nil
}

// Insert stores a new order and reserves its payment reference in a single
// transaction. A previously used reference causes a conflict error and leaves
// no partial state behind.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.provider == nil {
		return errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(order.ID)
	if orderID == "" {
		return errors.New("order repository: order id is required")
	}
	paymentRef := strings.TrimSpace(order.PaymentRef)
	if paymentRef == "" {
		return errors.New("order repository: payment reference is required")
	}

	orderRef, err := r.orders.DocumentRef(ctx, orderID)
	if err != nil {
		return err
	}
	guardRef, err := r.refs.DocumentRef(ctx, paymentRefKey(paymentRef))
	if err != nil {
		return err
	}

	doc := encodeOrderDocument(order)
	guard := paymentRefDocument{
		OrderID:   orderID,
		UserID:    order.UserID,
		CreatedAt: order.CreatedAt.UTC(),
	}

	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if err := tx.Create(guardRef, guard); err != nil {
			return err
		}
		return tx.Create(orderRef, doc)
	})
}

// Update replaces the persisted order state with the provided snapshot.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	if r == nil || r.orders == nil {
		return errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(order.ID)
	if orderID == "" {
		return errors.New("order repository: order id is required")
	}
	docRef, err := r.orders.DocumentRef(ctx, orderID)
	if err != nil {
		return err
	}
	if _, err := docRef.Set(ctx, encodeOrderDocument(order)); err != nil {
		return pfirestore.WrapError("orders.update", err)
	}
	return nil
}

// FindByID fetches a single order.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.orders == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}
	doc, err := r.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return decodeOrderDocument(doc.ID, doc.Data), nil
}

// List returns orders matching the filter ordered by creation time.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.orders == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}

	limit := filter.PageSize
	if limit < 0 {
		limit = 0
	}
	fetchLimit := limit
	if limit > 0 {
		fetchLimit = limit + 1
	}

	var startAfter []any
	if token := strings.TrimSpace(filter.PageToken); token != "" {
		tokenTime, tokenID, err := decodeOrderListToken(token)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, fmt.Errorf("order repository: invalid page token: %w", err)
		}
		startAfter = []any{tokenTime, tokenID}
	}

	docs, err := r.orders.Query(ctx, orderQueryBuilder(filter, startAfter, fetchLimit))
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	nextToken := ""
	if limit > 0 && len(docs) == fetchLimit {
		last := docs[len(docs)-1]
		nextToken = encodeOrderListToken(last.Data.CreatedAt, last.ID)
		docs = docs[:len(docs)-1]
	}

	items := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		items = append(items, decodeOrderDocument(doc.ID, doc.Data))
	}

	return domain.CursorPage[domain.Order]{
		Items:         items,
		NextPageToken: nextToken,
	}, nil
}

// Watch streams the live order set matching the filter. Page tokens are not
// supported on live queries; the PageSize caps the result set.
func (r *OrderRepository) Watch(ctx context.Context, filter repositories.OrderListFilter) (repositories.Watcher[domain.Order], error) {
	if r == nil || r.orders == nil {
		return nil, errors.New("order repository not initialised")
	}

	limit := filter.PageSize
	if limit < 0 {
		limit = 0
	}

	handle, err := r.orders.Watch(ctx, orderQueryBuilder(filter, nil, limit))
	if err != nil {
		return nil, err
	}
	return newDocumentWatcher(handle, decodeOrderDocument), nil
}

// IsPaymentRefUsed reports whether any order already recorded the payment reference.
func (r *OrderRepository) IsPaymentRefUsed(ctx context.Context, paymentRef string) (bool, error) {
	if r == nil || r.refs == nil {
		return false, errors.New("order repository not initialised")
	}
	paymentRef = strings.TrimSpace(paymentRef)
	if paymentRef == "" {
		return false, errors.New("order repository: payment reference is required")
	}

	docRef, err := r.refs.DocumentRef(ctx, paymentRefKey(paymentRef))
	if err != nil {
		return false, err
	}
	_, err = docRef.Get(ctx)
	if status.Code(err) == codes.NotFound {
		return false, nil
	}
	if err != nil {
		return false, pfirestore.WrapError("paymentRefs.get", err)
	}
	return true, nil
}

func orderQueryBuilder(filter repositories.OrderListFilter, startAfter []any, limit int) pfirestore.QueryBuilder {
	return func(q firestore.Query) firestore.Query {
		if userID := strings.TrimSpace(filter.UserID); userID != "" {
			q = q.Where("userId", "==", userID)
		}
		if len(filter.Statuses) == 1 {
			q = q.Where("status", "==", string(filter.Statuses[0]))
		} else if len(filter.Statuses) > 1 {
			statuses := make([]string, 0, len(filter.Statuses))
			for _, s := range filter.Statuses {
				statuses = append(statuses, string(s))
			}
			q = q.Where("status", "in", statuses)
		}
		if filter.ServiceType != nil {
			q = q.Where("serviceType", "==", string(*filter.ServiceType))
		}
		if filter.CreatedAt.From != nil {
			q = q.Where("createdAt", ">=", filter.CreatedAt.From.UTC())
		}
		if filter.CreatedAt.To != nil {
			q = q.Where("createdAt", "<=", filter.CreatedAt.To.UTC())
		}

		direction := firestore.Desc
		if filter.Sort == domain.SortAsc {
			direction = firestore.Asc
		}
		q = q.OrderBy("createdAt", direction).OrderBy(firestore.DocumentID, direction)
		if len(startAfter) == 2 {
			q = q.StartAfter(startAfter...)
		}
		if limit > 0 {
			q = q.Limit(limit)
		}
		return q
	}
}

func encodeOrderDocument(order domain.Order) orderDocument {
	return orderDocument{
		OrderNumber:    order.OrderNumber,
		UserID:         order.UserID,
		UserEmail:      order.UserEmail,
		ServiceType:    string(order.ServiceType),
		DeliveryWindow: string(order.DeliveryWindow),
		Deliverables:   append([]string(nil), order.Deliverables...),
		PaymentRef:     order.PaymentRef,
		Brief:          order.Brief,
		Currency:       order.Totals.Currency,
		TotalAmount:    order.Totals.Total,
		DepositAmount:  order.Totals.Deposit,
		Status:         string(order.Status),
		DecisionNote:   order.DecisionNote,
		CreatedBy:      order.Audit.CreatedBy,
		UpdatedBy:      order.Audit.UpdatedBy,
		CreatedAt:      order.CreatedAt.UTC(),
		UpdatedAt:      order.UpdatedAt.UTC(),
		DecidedAt:      order.DecidedAt,
	}
}

func decodeOrderDocument(id string, doc orderDocument) domain.Order {
	return domain.Order{
		ID:             id,
		OrderNumber:    doc.OrderNumber,
		UserID:         doc.UserID,
		UserEmail:      doc.UserEmail,
		ServiceType:    domain.ServiceType(doc.ServiceType),
		DeliveryWindow: domain.DeliveryWindow(doc.DeliveryWindow),
		Deliverables:   append([]string(nil), doc.Deliverables...),
		PaymentRef:     doc.PaymentRef,
		Brief:          doc.Brief,
		Totals: domain.OrderTotals{
			Currency: doc.Currency,
			Total:    doc.TotalAmount,
			Deposit:  doc.DepositAmount,
		},
		Status:       domain.OrderStatus(doc.Status),
		DecisionNote: doc.DecisionNote,
		Audit: domain.OrderAudit{
			CreatedBy: doc.CreatedBy,
			UpdatedBy: doc.UpdatedBy,
		},
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
		DecidedAt: doc.DecidedAt,
	}
}

// paymentRefKey normalises a payment reference into a stable document ID.
// Firestore document IDs cannot contain forward slashes.
func paymentRefKey(paymentRef string) string {
	ref := strings.TrimSpace(paymentRef)
	if strings.ContainsAny(ref, "/") {
		return base64.RawURLEncoding.EncodeToString([]byte(ref))
	}
	return ref
}

type orderListToken struct {
	CreatedAt time.Time `json:"c"`
	ID        string    `json:"i"`
}

func encodeOrderListToken(createdAt time.Time, id string) string {
	payload, err := json.Marshal(orderListToken{CreatedAt: createdAt.UTC(), ID: id})
	if err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(payload)
}

func decodeOrderListToken(token string) (time.Time, string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return time.Time{}, "", err
	}
	var decoded orderListToken
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return time.Time{}, "", err
	}
	if decoded.ID == "" {
		return time.Time{}, "", errors.New("token missing document id")
	}
	return decoded.CreatedAt, decoded.ID, nil
}
