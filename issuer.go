package authbridge

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ProofMode selects which session-proof design a deployment uses. Exactly
// one is active at a time.
type ProofMode string

const (
	// ProofSessions stores opaque server-side session rows; proofs are
	// revocable and validation hits the store.
	ProofSessions ProofMode = "sessions"

	// ProofBearer issues signed stateless tokens; validation is purely
	// cryptographic and logout is client-side only.
	ProofBearer ProofMode = "bearer"
)

// Proof is the artifact a caller presents to claim an authenticated
// identity: a session id or a signed bearer token, depending on mode.
type Proof struct {
	Value     string
	ExpiresAt time.Time
}

// Issuer creates and validates session proofs.
type Issuer interface {
	// Issue creates a proof for the identity after a successful login via
	// the given method.
	Issue(ctx context.Context, identity *Identity, method AuthMethod) (*Proof, error)

	// Validate checks a presented proof and returns the identity id and
	// the auth method used at login. Failures are invalid_credential.
	Validate(ctx context.Context, value string) (int64, AuthMethod, error)

	// Revoke invalidates a proof on logout where the design supports it.
	Revoke(ctx context.Context, value string) error
}

// DefaultTokenTTL bounds bearer token lifetime when the config leaves it
// unset.
const DefaultTokenTTL = 30 * time.Minute

// TokenIssuer implements Issuer with HS256-signed JWTs. Tokens carry the
// identity id as subject plus the login method, and cannot be revoked
// before expiry; Revoke is a no-op (accepted tradeoff of the stateless
// design).
type TokenIssuer struct {
	SecretKey string
	Issuer    string
	Audience  string
	TTL       time.Duration

	// Now is overridable for tests; defaults to time.Now.
	Now func() time.Time
}

func (t *TokenIssuer) ttl() time.Duration {
	if t.TTL <= 0 {
		return DefaultTokenTTL
	}
	return t.TTL
}

func (t *TokenIssuer) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}

func (t *TokenIssuer) Issue(ctx context.Context, identity *Identity, method AuthMethod) (*Proof, error) {
	now := t.now()
	expiresAt := now.Add(t.ttl())
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":    fmt.Sprintf("%d", identity.ID),
		"method": string(method),
		"iss":    t.Issuer,
		"aud":    t.Audience,
		"iat":    now.Unix(),
		"exp":    expiresAt.Unix(),
	})
	signed, err := token.SignedString([]byte(t.SecretKey))
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return &Proof{Value: signed, ExpiresAt: expiresAt}, nil
}

func (t *TokenIssuer) Validate(ctx context.Context, value string) (int64, AuthMethod, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
	}
	if t.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(t.Issuer))
	}
	if t.Audience != "" {
		opts = append(opts, jwt.WithAudience(t.Audience))
	}
	token, err := jwt.Parse(value, func(token *jwt.Token) (any, error) {
		return []byte(t.SecretKey), nil
	}, opts...)
	if err != nil || !token.Valid {
		return 0, "", NewAuthError(ErrCodeInvalidCredential, "invalid or expired token", "")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, "", NewAuthError(ErrCodeInvalidCredential, "invalid token claims", "")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return 0, "", NewAuthError(ErrCodeInvalidCredential, "token subject missing", "")
	}
	var id int64
	if _, err := fmt.Sscanf(sub, "%d", &id); err != nil || id <= 0 {
		return 0, "", NewAuthError(ErrCodeInvalidCredential, "token subject malformed", "")
	}
	method, _ := claims["method"].(string)
	return id, AuthMethod(method), nil
}

// Revoke is a no-op for bearer tokens: logout is client-side only.
func (t *TokenIssuer) Revoke(ctx context.Context, value string) error {
	return nil
}

var _ Issuer = (*TokenIssuer)(nil)
