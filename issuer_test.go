package authbridge

import (
	"context"
	"testing"
	"time"
)

func TestTokenIssuerRoundTrip(t *testing.T) {
	issuer := &TokenIssuer{SecretKey: "test-secret", Issuer: "authbridge-test"}
	identity := &Identity{ID: 42}

	proof, err := issuer.Issue(context.Background(), identity, MethodGoogle)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if proof.Value == "" {
		t.Fatal("expected a signed token")
	}

	id, method, err := issuer.Validate(context.Background(), proof.Value)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if id != 42 {
		t.Errorf("expected identity id 42, got %d", id)
	}
	if method != MethodGoogle {
		t.Errorf("expected login method carried in the token, got %q", method)
	}
}

func TestTokenIssuerRejectsTampering(t *testing.T) {
	issuer := &TokenIssuer{SecretKey: "test-secret"}
	proof, err := issuer.Issue(context.Background(), &Identity{ID: 1}, MethodPassword)
	if err != nil {
		t.Fatal(err)
	}

	// Wrong key.
	other := &TokenIssuer{SecretKey: "different-secret"}
	if _, _, err := other.Validate(context.Background(), proof.Value); ErrorCode(err) != ErrCodeInvalidCredential {
		t.Errorf("expected invalid_credential for wrong key, got %v", err)
	}

	// Garbage input.
	if _, _, err := issuer.Validate(context.Background(), "not-a-token"); ErrorCode(err) != ErrCodeInvalidCredential {
		t.Errorf("expected invalid_credential for garbage, got %v", err)
	}
}

func TestTokenIssuerExpiry(t *testing.T) {
	now := time.Now()
	issuer := &TokenIssuer{
		SecretKey: "test-secret",
		TTL:       time.Minute,
		Now:       func() time.Time { return now },
	}
	proof, err := issuer.Issue(context.Background(), &Identity{ID: 5}, MethodPassword)
	if err != nil {
		t.Fatal(err)
	}

	// Still valid just before expiry.
	issuer.Now = func() time.Time { return now.Add(59 * time.Second) }
	if _, _, err := issuer.Validate(context.Background(), proof.Value); err != nil {
		t.Errorf("expected token valid before expiry, got %v", err)
	}

	// Rejected after expiry.
	issuer.Now = func() time.Time { return now.Add(2 * time.Minute) }
	if _, _, err := issuer.Validate(context.Background(), proof.Value); ErrorCode(err) != ErrCodeInvalidCredential {
		t.Errorf("expected invalid_credential after expiry, got %v", err)
	}
}

func TestTokenIssuerIssuerClaim(t *testing.T) {
	a := &TokenIssuer{SecretKey: "k", Issuer: "service-a"}
	b := &TokenIssuer{SecretKey: "k", Issuer: "service-b"}

	proof, err := a.Issue(context.Background(), &Identity{ID: 9}, MethodPassword)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := b.Validate(context.Background(), proof.Value); ErrorCode(err) != ErrCodeInvalidCredential {
		t.Errorf("expected issuer mismatch to fail validation, got %v", err)
	}
}

func TestTokenIssuerRevokeIsNoop(t *testing.T) {
	issuer := &TokenIssuer{SecretKey: "k"}
	proof, err := issuer.Issue(context.Background(), &Identity{ID: 3}, MethodPassword)
	if err != nil {
		t.Fatal(err)
	}
	if err := issuer.Revoke(context.Background(), proof.Value); err != nil {
		t.Fatalf("revoke must be a no-op, got %v", err)
	}
	// Bearer tokens stay valid until expiry.
	if _, _, err := issuer.Validate(context.Background(), proof.Value); err != nil {
		t.Errorf("expected token still valid after revoke, got %v", err)
	}
}
