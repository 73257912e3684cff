package firestore

import (
	"testing"
	"time"
)

func TestOrderListTokenRoundTrip(t *testing.T) {
	createdAt := time.Date(2026, 8, 30, 12, 30, 0, 0, time.UTC)

	token := encodeOrderListToken(createdAt, "ord_01ABC")
	if token == "" {
		t.Fatalf("expected non-empty token")
	}

	gotAt, gotID, err := decodeOrderListToken(token)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !gotAt.Equal(createdAt) || gotID != "ord_01ABC" {
		t.Fatalf("round trip mismatch: %v %q", gotAt, gotID)
	}
}

func TestDecodeOrderListTokenRejectsGarbage(t *testing.T) {
	if _, _, err := decodeOrderListToken("not base64!!"); err == nil {
		t.Fatalf("expected error for malformed token")
	}
	if _, _, err := decodeOrderListToken("e30"); err == nil {
		t.Fatalf("expected error for token without document id")
	}
}

func TestActivityTokenRoundTrip(t *testing.T) {
	at := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)

	token := encodeActivityToken(at, "conv-user-1")
	gotAt, gotID, err := decodeActivityToken(token)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !gotAt.Equal(at) || gotID != "conv-user-1" {
		t.Fatalf("round trip mismatch: %v %q", gotAt, gotID)
	}
}

func TestPaymentRefKeyEncodesSlashes(t *testing.T) {
	if got := paymentRefKey(" pi_123 "); got != "pi_123" {
		t.Fatalf("plain refs must pass through trimmed, got %q", got)
	}

	got := paymentRefKey("txn/2026/08/30")
	if got == "txn/2026/08/30" {
		t.Fatalf("slashes must not survive into document ids")
	}
	if got == "" {
		t.Fatalf("encoded key must not be empty")
	}
}
