package payments

import (
	"context"
	"errors"
	"testing"

	"github.com/stripe/stripe-go/v78"
)

type stubIntentAPI struct {
	intent  *stripe.PaymentIntent
	err     error
	lastRef string
}

func (s *stubIntentAPI) Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	s.lastRef = id
	if s.err != nil {
		return nil, s.err
	}
	return s.intent, nil
}

func TestVerifyReferenceSucceeded(t *testing.T) {
	api := &stubIntentAPI{
		intent: &stripe.PaymentIntent{
			ID:       "pi_123",
			Status:   stripe.PaymentIntentStatusSucceeded,
			Amount:   1050,
			Currency: "usd",
			LatestCharge: &stripe.Charge{
				Paid:    true,
				Created: 1709294400,
			},
		},
	}
	verifier, err := NewStripeVerifier(StripeVerifierConfig{Intents: api})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, err := verifier.VerifyReference(context.Background(), " pi_123 ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if api.lastRef != "pi_123" {
		t.Fatalf("expected trimmed reference, got %q", api.lastRef)
	}
	if result.Status != StatusSucceeded {
		t.Fatalf("expected succeeded status, got %s", result.Status)
	}
	if result.Amount != 1050 || result.Currency != "USD" {
		t.Fatalf("unexpected amount/currency: %d %s", result.Amount, result.Currency)
	}
	if result.PaidAt == nil {
		t.Fatalf("expected paid timestamp")
	}
}

func TestVerifyReferenceMissingIsUnknown(t *testing.T) {
	api := &stubIntentAPI{err: &stripe.Error{Code: stripe.ErrorCodeResourceMissing}}
	verifier, err := NewStripeVerifier(StripeVerifierConfig{Intents: api})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, err := verifier.VerifyReference(context.Background(), "pi_missing")
	if err != nil {
		t.Fatalf("expected advisory result, got error %v", err)
	}
	if result.Status != StatusUnknown {
		t.Fatalf("expected unknown status, got %s", result.Status)
	}
}

func TestVerifyReferencePropagatesOtherErrors(t *testing.T) {
	api := &stubIntentAPI{err: errors.New("boom")}
	verifier, err := NewStripeVerifier(StripeVerifierConfig{Intents: api})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := verifier.VerifyReference(context.Background(), "pi_err"); err == nil {
		t.Fatalf("expected error to propagate")
	}
}

func TestVerifyReferenceRequiresReference(t *testing.T) {
	verifier, err := NewStripeVerifier(StripeVerifierConfig{Intents: &stubIntentAPI{}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := verifier.VerifyReference(context.Background(), "  "); err == nil {
		t.Fatalf("expected error for blank reference")
	}
}
