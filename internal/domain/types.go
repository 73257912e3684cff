package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// CursorPage wraps a page of results together with the continuation token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// RangeQuery represents inclusive range filters for numeric or timestamp fields.
type RangeQuery[T comparable] struct {
	From *T
	To   *T
}

// ServiceType enumerates the design services clients can order.
type ServiceType string

const (
	// ServicePowerpoint covers presentation design work.
	ServicePowerpoint ServiceType = "powerpoint"
	// ServiceWord covers document layout and formatting.
	ServiceWord ServiceType = "word"
	// ServiceExcel covers spreadsheet and dashboard design.
	ServiceExcel ServiceType = "excel"
	// ServiceFiles covers file conversion and preparation.
	ServiceFiles ServiceType = "files"
	// ServiceAdmin covers administrative support tasks.
	ServiceAdmin ServiceType = "admin"
)

// KnownServiceTypes lists the closed service enumeration accepted at submission.
var KnownServiceTypes = []ServiceType{
	ServicePowerpoint,
	ServiceWord,
	ServiceExcel,
	ServiceFiles,
	ServiceAdmin,
}

// DeliveryWindow enumerates the turnaround options clients can select.
type DeliveryWindow string

const (
	// DeliveryStandard is the regular turnaround.
	DeliveryStandard DeliveryWindow = "standard"
	// DeliveryExpress is the accelerated turnaround.
	DeliveryExpress DeliveryWindow = "express"
	// DeliveryUrgent is the fastest turnaround.
	DeliveryUrgent DeliveryWindow = "urgent"
)

// KnownDeliveryWindows lists the closed delivery enumeration accepted at submission.
var KnownDeliveryWindows = []DeliveryWindow{
	DeliveryStandard,
	DeliveryExpress,
	DeliveryUrgent,
}

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusPendingConfirmation indicates the order awaits admin review.
	OrderStatusPendingConfirmation OrderStatus = "pending_confirmation"
	// OrderStatusPaid indicates the admin confirmed the payment; terminal.
	OrderStatusPaid OrderStatus = "paid"
	// OrderStatusRejected indicates the admin declined the order; terminal.
	OrderStatusRejected OrderStatus = "rejected"
)

// IsTerminal reports whether no further transitions are defined from the status.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusPaid || s == OrderStatusRejected
}

// OrderTotals holds the monetary snapshot taken at submission, in minor units.
// The deposit is 30% of the total, rounded once at storage time; neither field
// is recomputed after creation.
type OrderTotals struct {
	Currency string
	Total    int64
	Deposit  int64
}

// OrderAudit records the actors responsible for creating/updating the order.
type OrderAudit struct {
	CreatedBy *string
	UpdatedBy *string
}

// Order captures a client's design-service request with its pricing snapshot,
// payment reference, and lifecycle status.
type Order struct {
	ID             string
	OrderNumber    string
	UserID         string
	UserEmail      string
	ServiceType    ServiceType
	DeliveryWindow DeliveryWindow
	Deliverables   []string
	PaymentRef     string
	Brief          string
	Totals         OrderTotals
	Status         OrderStatus
	DecisionNote   *string
	Audit          OrderAudit
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DecidedAt      *time.Time
}

// Conversation is a per-client message thread used for admin-client
// communication and automated status notifications.
type Conversation struct {
	ID         string
	UserID     string
	UserEmail  string
	LastUpdate time.Time
}

// SystemSenderID marks messages generated by lifecycle notifications rather
// than a human participant.
const SystemSenderID = "system"

// Message is a single entry in a conversation. System notifications carry the
// reserved sender id and no attachment.
type Message struct {
	ID          string
	SenderID    string
	SenderEmail string
	Text        string
	FileURL     *string
	FileName    *string
	FileType    *string
	Timestamp   time.Time
}

// SignedAssetURL is returned when the storage layer mints upload or download
// URLs for chat attachments.
type SignedAssetURL struct {
	URL       string
	ObjectKey string
	ExpiresAt time.Time
	Headers   map[string]string
}
