package pricing

import (
	"math"
	"strings"

	domain "github.com/designdesk/api/internal/domain"
)

// DefaultCurrency is applied to quotes; all amounts are minor units.
const DefaultCurrency = "USD"

// DeliverableFee is the flat surcharge charged per distinct deliverable.
const DeliverableFee int64 = 500

// DepositShare is the fraction of the total due at submission.
const DepositShare = 0.30

var basePrices = map[domain.ServiceType]int64{
	domain.ServicePowerpoint: 5000,
	domain.ServiceWord:       3000,
	domain.ServiceExcel:      4000,
	domain.ServiceFiles:      2000,
	domain.ServiceAdmin:      2500,
}

var deliveryMultipliers = map[domain.DeliveryWindow]float64{
	domain.DeliveryStandard: 1.0,
	domain.DeliveryExpress:  1.5,
	domain.DeliveryUrgent:   2.0,
}

// Breakdown captures the priced components of a quote.
type Breakdown struct {
	Currency         string
	Base             int64
	Multiplier       float64
	DeliverableCount int
	DeliverableFees  int64
	Total            int64
	Deposit          int64
}

// BasePrice returns the minor-unit base price for a service type. Unknown
// types price at zero; that is a recoverable default, not an error, and
// submission validation keeps unknown types out of storage.
func BasePrice(service domain.ServiceType) int64 {
	return basePrices[service]
}

// Multiplier returns the delivery multiplier, defaulting to 1.0 for unknown
// windows.
func Multiplier(window domain.DeliveryWindow) float64 {
	if m, ok := deliveryMultipliers[window]; ok {
		return m
	}
	return 1.0
}

// CountDeliverables counts distinct non-blank deliverable labels. The count is
// taken from the slice directly; deriving it from a joined representation
// would report one for an empty selection.
func CountDeliverables(deliverables []string) int {
	seen := make(map[string]struct{}, len(deliverables))
	for _, label := range deliverables {
		trimmed := strings.ToLower(strings.TrimSpace(label))
		if trimmed == "" {
			continue
		}
		seen[trimmed] = struct{}{}
	}
	return len(seen)
}

// Quote prices an order request. Pure and deterministic: no I/O, no clock.
// Callers must reject an empty deliverables selection before quoting; the
// deposit is the only rounded figure and is rounded half away from zero.
func Quote(service domain.ServiceType, window domain.DeliveryWindow, deliverables []string) Breakdown {
	base := BasePrice(service)
	multiplier := Multiplier(window)
	count := CountDeliverables(deliverables)
	fees := int64(count) * DeliverableFee

	total := int64(math.Round(float64(base)*multiplier)) + fees

	return Breakdown{
		Currency:         DefaultCurrency,
		Base:             base,
		Multiplier:       multiplier,
		DeliverableCount: count,
		DeliverableFees:  fees,
		Total:            total,
		Deposit:          Deposit(total),
	}
}

// Deposit computes the 30% upfront payment for a total, rounded half away
// from zero to the nearest minor unit.
func Deposit(total int64) int64 {
	return int64(math.Round(float64(total) * DepositShare))
}
