package authbridge

import (
	"context"
	"time"
)

// IdentityStore is the persistence contract for identities. Point lookups
// other than ByID report absence as (nil, nil); ByID returns ErrNotFound
// because it is used in "must exist" contexts.
//
// Create and Update must be backed by unique constraints on username,
// email, phone and each provider subject, and must report a violation as a
// *ConflictError naming the field. The engine's pre-flight checks are racy
// by nature; the store constraint is the authoritative guard.
type IdentityStore interface {
	ByID(ctx context.Context, id int64) (*Identity, error)
	ByUsername(ctx context.Context, username string) (*Identity, error)
	ByEmail(ctx context.Context, email string) (*Identity, error)
	ByPhone(ctx context.Context, phone string) (*Identity, error)
	BySubject(ctx context.Context, method AuthMethod, subject string) (*Identity, error)

	// ByAnyIdentifier tries username, then email, then phone; first match
	// wins. Used by the password login path where the caller supplies one
	// ambiguous identifier string.
	ByAnyIdentifier(ctx context.Context, identifier string) (*Identity, error)

	// Create persists a new identity and assigns its immutable numeric id.
	Create(ctx context.Context, identity *Identity) error
	Update(ctx context.Context, identity *Identity) error
	Delete(ctx context.Context, id int64) error

	List(ctx context.Context, offset, limit int) ([]*Identity, error)
}

// Session is one authenticated client context in the server-side session
// deployment. Expiry is fixed at creation; a session is valid while the
// current time has not passed ExpiresAt.
type Session struct {
	ID         string    `json:"id"`
	IdentityID int64     `json:"identity_id"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Expired reports whether the session is past its expiry at time now.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// SessionStore persists server-side sessions. Get reports absence as
// (nil, nil); an expired row is still returned and the caller applies the
// expiry check lazily.
type SessionStore interface {
	Insert(ctx context.Context, session *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error

	// DeleteForIdentity removes every session owned by the identity. Used
	// for the single-active-session policy and for account deletion.
	DeleteForIdentity(ctx context.Context, identityID int64) error

	// DeleteExpired removes all sessions past expiry at time now and
	// returns how many were removed. Idempotent, safe to run concurrently
	// with logins.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
