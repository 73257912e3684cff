package payments

import (
	"context"
	"time"
)

// VerificationStatus classifies a payment reference lookup result.
type VerificationStatus string

const (
	// StatusSucceeded means the referenced payment completed.
	StatusSucceeded VerificationStatus = "succeeded"
	// StatusPending means the referenced payment is still in flight.
	StatusPending VerificationStatus = "pending"
	// StatusFailed means the referenced payment was cancelled or declined.
	StatusFailed VerificationStatus = "failed"
	// StatusUnknown means the reference could not be resolved with the provider.
	StatusUnknown VerificationStatus = "unknown"
)

// Verification summarises what the payment provider knows about a reference.
type Verification struct {
	Reference string
	Status    VerificationStatus
	Amount    int64
	Currency  string
	PaidAt    *time.Time
}

// ReferenceVerifier checks a client-supplied payment reference with the
// provider. Verification is advisory; order submission records the reference
// regardless and the admin decision remains the source of truth.
type ReferenceVerifier interface {
	VerifyReference(ctx context.Context, reference string) (Verification, error)
}

// NoopVerifier reports every reference as unknown. Used when reference
// verification is disabled in configuration.
type NoopVerifier struct{}

// VerifyReference implements ReferenceVerifier.
func (NoopVerifier) VerifyReference(_ context.Context, reference string) (Verification, error) {
	return Verification{Reference: reference, Status: StatusUnknown}, nil
}
