package authbridge

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// DefaultSessionTTL bounds session lifetime when the config leaves it
// unset.
const DefaultSessionTTL = 7 * 24 * time.Hour

// SessionIssuer implements Issuer with opaque server-side session rows.
// Issuing a session invalidates the identity's previous sessions (single
// active session policy). Validation is a store lookup plus a lazy expiry
// check; expired rows stay in the store until the sweeper removes them but
// never validate.
type SessionIssuer struct {
	Store  SessionStore
	TTL    time.Duration
	Logger *slog.Logger

	// Now is overridable for tests; defaults to time.Now.
	Now func() time.Time
}

func (s *SessionIssuer) ttl() time.Duration {
	if s.TTL <= 0 {
		return DefaultSessionTTL
	}
	return s.TTL
}

func (s *SessionIssuer) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *SessionIssuer) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *SessionIssuer) Issue(ctx context.Context, identity *Identity, method AuthMethod) (*Proof, error) {
	if err := s.Store.DeleteForIdentity(ctx, identity.ID); err != nil {
		return nil, err
	}

	now := s.now()
	session := &Session{
		ID:         uuid.New().String(),
		IdentityID: identity.ID,
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.ttl()),
	}
	if err := s.Store.Insert(ctx, session); err != nil {
		return nil, err
	}
	return &Proof{Value: session.ID, ExpiresAt: session.ExpiresAt}, nil
}

func (s *SessionIssuer) Validate(ctx context.Context, value string) (int64, AuthMethod, error) {
	session, err := s.Store.Get(ctx, value)
	if err != nil {
		return 0, "", err
	}
	if session == nil || session.Expired(s.now()) {
		return 0, "", NewAuthError(ErrCodeInvalidCredential, "session not found or expired", "")
	}
	// Session rows don't record the login method; callers that need it use
	// bearer mode.
	return session.IdentityID, "", nil
}

func (s *SessionIssuer) Revoke(ctx context.Context, value string) error {
	return s.Store.Delete(ctx, value)
}

// RevokeAll deletes every session for an identity; used on account
// deletion.
func (s *SessionIssuer) RevokeAll(ctx context.Context, identityID int64) error {
	return s.Store.DeleteForIdentity(ctx, identityID)
}

// SweepExpired removes all sessions past expiry. Idempotent; safe to run
// concurrently with logins.
func (s *SessionIssuer) SweepExpired(ctx context.Context) (int64, error) {
	return s.Store.DeleteExpired(ctx, s.now())
}

// StartSweeper runs SweepExpired on the given interval until ctx is
// cancelled.
func (s *SessionIssuer) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := s.SweepExpired(ctx)
				if err != nil {
					s.logger().Warn("session sweep failed", "error", err)
				} else if n > 0 {
					s.logger().Info("swept expired sessions", "deleted", n)
				}
			}
		}
	}()
}

var _ Issuer = (*SessionIssuer)(nil)
