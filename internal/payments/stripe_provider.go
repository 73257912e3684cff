package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

// StripeLogger defines the logging contract for Stripe verifier operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripePaymentIntentAPI interface {
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

// StripeVerifierConfig configures the StripeVerifier.
type StripeVerifierConfig struct {
	APIKey   string
	Backends *stripe.Backends
	Logger   StripeLogger
	Intents  stripePaymentIntentAPI
}

// StripeVerifier resolves payment references as Stripe Payment Intent IDs.
type StripeVerifier struct {
	intents stripePaymentIntentAPI
	logger  StripeLogger
}

// NewStripeVerifier constructs a Stripe-backed reference verifier.
func NewStripeVerifier(cfg StripeVerifierConfig) (*StripeVerifier, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.Intents == nil {
		return nil, errors.New("stripe: api key is required")
	}

	intents := cfg.Intents
	if intents == nil {
		sc := client.New(apiKey, cfg.Backends)
		intents = sc.PaymentIntents
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &StripeVerifier{intents: intents, logger: logger}, nil
}

// VerifyReference looks up the Payment Intent behind the reference. References
// that do not resolve with Stripe yield StatusUnknown rather than an error so
// callers can treat verification as advisory.
func (v *StripeVerifier) VerifyReference(ctx context.Context, reference string) (Verification, error) {
	if v == nil || v.intents == nil {
		return Verification{}, errors.New("stripe: verifier not initialised")
	}
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return Verification{}, errors.New("stripe: reference is required")
	}

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	intent, err := v.intents.Get(reference, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodeResourceMissing {
			v.logger(ctx, "payments.stripe.reference.missing", map[string]any{"reference": reference})
			return Verification{Reference: reference, Status: StatusUnknown}, nil
		}
		return Verification{}, fmt.Errorf("stripe: lookup payment intent: %w", err)
	}

	verification := Verification{
		Reference: reference,
		Status:    statusFromIntent(intent),
		Amount:    intent.Amount,
		Currency:  strings.ToUpper(string(intent.Currency)),
	}
	if charge := intent.LatestCharge; charge != nil && (charge.Paid || charge.Captured) {
		paidAt := time.Unix(charge.Created, 0).UTC()
		verification.PaidAt = &paidAt
	}

	v.logger(ctx, "payments.stripe.reference.verified", map[string]any{
		"reference": reference,
		"status":    string(verification.Status),
	})

	return verification, nil
}

func statusFromIntent(intent *stripe.PaymentIntent) VerificationStatus {
	if intent == nil {
		return StatusUnknown
	}
	switch intent.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return StatusSucceeded
	case stripe.PaymentIntentStatusCanceled:
		return StatusFailed
	default:
		return StatusPending
	}
}
