// Package google verifies Google sign-in credentials. The Verifier checks
// ID tokens minted by Google Identity Services; Flow drives the classic
// OAuth2 authorization-code dance for browser deployments and hands the
// resulting ID token to the same verifier.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"google.golang.org/api/idtoken"

	"github.com/rkolluri/authbridge"
)

var allowedIssuers = map[string]bool{
	"accounts.google.com":         true,
	"https://accounts.google.com": true,
}

// Verifier validates Google ID tokens against the configured OAuth client
// id.
type Verifier struct {
	// ClientID is the expected token audience.
	ClientID string

	Logger *slog.Logger

	// validate is swapped in tests; defaults to idtoken.Validate.
	validate func(ctx context.Context, token, audience string) (*idtoken.Payload, error)
}

// NewVerifier returns a Verifier for the given OAuth client id.
func NewVerifier(clientID string) *Verifier {
	return &Verifier{ClientID: clientID}
}

func (v *Verifier) logger() *slog.Logger {
	if v.Logger != nil {
		return v.Logger
	}
	return slog.Default()
}

func (v *Verifier) validateFunc() func(ctx context.Context, token, audience string) (*idtoken.Payload, error) {
	if v.validate != nil {
		return v.validate
	}
	return idtoken.Validate
}

// Verify checks the raw ID token and maps its claims onto an ExternalClaim.
// Signature, expiry and audience failures are invalid_credential; failures
// to reach Google's cert endpoint are provider_unavailable.
func (v *Verifier) Verify(ctx context.Context, rawToken string) (*authbridge.ExternalClaim, error) {
	payload, err := v.validateFunc()(ctx, rawToken, v.ClientID)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, authbridge.NewAuthError(authbridge.ErrCodeProviderUnavailable, "could not reach google token service", "")
		}
		v.logger().Warn("google token rejected", "error", err)
		return nil, authbridge.NewAuthError(authbridge.ErrCodeInvalidCredential, "invalid google token", "token")
	}
	if !allowedIssuers[payload.Issuer] {
		return nil, authbridge.NewAuthError(authbridge.ErrCodeInvalidCredential, fmt.Sprintf("unexpected token issuer: %s", payload.Issuer), "token")
	}
	if payload.Subject == "" {
		return nil, authbridge.NewAuthError(authbridge.ErrCodeInvalidCredential, "token subject missing", "token")
	}

	claim := &authbridge.ExternalClaim{
		Provider: authbridge.MethodGoogle,
		Subject:  payload.Subject,
	}
	if email, ok := payload.Claims["email"].(string); ok {
		claim.Email = email
	}
	if name, ok := payload.Claims["name"].(string); ok {
		claim.Name = name
	}
	if picture, ok := payload.Claims["picture"].(string); ok {
		claim.Picture = picture
	}
	return claim, nil
}

var _ authbridge.ExternalVerifier = (*Verifier)(nil)
