// Package mem provides in-memory implementations of the authbridge store
// interfaces. All state is lost on restart; intended for tests, demos and
// single-process development setups. Both stores are safe for concurrent
// use and enforce the same uniqueness rules as the relational store.
package mem

import (
	"context"
	"slices"
	"sync"
	"time"

	ab "github.com/rkolluri/authbridge"
)

// IdentityStore implements ab.IdentityStore backed by a map.
type IdentityStore struct {
	mu     sync.RWMutex
	nextID int64
	byID   map[int64]*ab.Identity
}

func NewIdentityStore() *IdentityStore {
	return &IdentityStore{byID: make(map[int64]*ab.Identity)}
}

func (s *IdentityStore) ByID(ctx context.Context, id int64) (*ab.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	identity, ok := s.byID[id]
	if !ok {
		return nil, ab.ErrNotFound
	}
	return identity.Clone(), nil
}

func (s *IdentityStore) ByUsername(ctx context.Context, username string) (*ab.Identity, error) {
	return s.find(func(i *ab.Identity) bool { return username != "" && i.Username == username })
}

func (s *IdentityStore) ByEmail(ctx context.Context, email string) (*ab.Identity, error) {
	return s.find(func(i *ab.Identity) bool { return email != "" && i.Email == email })
}

func (s *IdentityStore) ByPhone(ctx context.Context, phone string) (*ab.Identity, error) {
	return s.find(func(i *ab.Identity) bool { return phone != "" && i.Phone == phone })
}

func (s *IdentityStore) BySubject(ctx context.Context, method ab.AuthMethod, subject string) (*ab.Identity, error) {
	return s.find(func(i *ab.Identity) bool { return subject != "" && i.Subject(method) == subject })
}

func (s *IdentityStore) ByAnyIdentifier(ctx context.Context, identifier string) (*ab.Identity, error) {
	if identity, err := s.ByUsername(ctx, identifier); err != nil || identity != nil {
		return identity, err
	}
	if identity, err := s.ByEmail(ctx, identifier); err != nil || identity != nil {
		return identity, err
	}
	return s.ByPhone(ctx, identifier)
}

func (s *IdentityStore) find(match func(*ab.Identity) bool) (*ab.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, identity := range s.byID {
		if match(identity) {
			return identity.Clone(), nil
		}
	}
	return nil, nil
}

func (s *IdentityStore) Create(ctx context.Context, identity *ab.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkUniqueLocked(identity, 0); err != nil {
		return err
	}

	s.nextID++
	now := time.Now()
	stored := identity.Clone()
	stored.ID = s.nextID
	stored.CreatedAt = now
	stored.UpdatedAt = now
	s.byID[stored.ID] = stored

	identity.ID = stored.ID
	identity.CreatedAt = stored.CreatedAt
	identity.UpdatedAt = stored.UpdatedAt
	return nil
}

func (s *IdentityStore) Update(ctx context.Context, identity *ab.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[identity.ID]; !ok {
		return ab.ErrNotFound
	}
	if err := s.checkUniqueLocked(identity, identity.ID); err != nil {
		return err
	}

	stored := identity.Clone()
	stored.UpdatedAt = time.Now()
	s.byID[stored.ID] = stored
	identity.UpdatedAt = stored.UpdatedAt
	return nil
}

func (s *IdentityStore) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, id)
	return nil
}

func (s *IdentityStore) List(ctx context.Context, offset, limit int) ([]*ab.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]int64, 0, len(s.byID))
	for id := range s.byID {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	out := make([]*ab.Identity, 0, limit)
	for i := offset; i < len(ids) && len(out) < limit; i++ {
		out = append(out, s.byID[ids[i]].Clone())
	}
	return out, nil
}

// checkUniqueLocked mirrors the relational store's unique indexes: every
// non-empty identifier must be unused by any other identity.
func (s *IdentityStore) checkUniqueLocked(candidate *ab.Identity, selfID int64) error {
	for _, other := range s.byID {
		if other.ID == selfID {
			continue
		}
		switch {
		case candidate.Username != "" && other.Username == candidate.Username:
			return &ab.ConflictError{Field: "username"}
		case candidate.Email != "" && other.Email == candidate.Email:
			return &ab.ConflictError{Field: "email"}
		case candidate.Phone != "" && other.Phone == candidate.Phone:
			return &ab.ConflictError{Field: "phone"}
		case candidate.FirebaseUID != "" && other.FirebaseUID == candidate.FirebaseUID:
			return &ab.ConflictError{Field: "firebase_uid"}
		case candidate.GoogleSubject != "" && other.GoogleSubject == candidate.GoogleSubject:
			return &ab.ConflictError{Field: "google_subject"}
		}
	}
	return nil
}

// SessionStore implements ab.SessionStore backed by a map.
type SessionStore struct {
	mu   sync.RWMutex
	byID map[string]*ab.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{byID: make(map[string]*ab.Session)}
}

func (s *SessionStore) Insert(ctx context.Context, session *ab.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *session
	s.byID[session.ID] = &copied
	return nil
}

func (s *SessionStore) Get(ctx context.Context, id string) (*ab.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.byID[id]
	if !ok {
		return nil, nil
	}
	copied := *session
	return &copied, nil
}

func (s *SessionStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, id)
	return nil
}

func (s *SessionStore) DeleteForIdentity(ctx context.Context, identityID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, session := range s.byID {
		if session.IdentityID == identityID {
			delete(s.byID, id)
		}
	}
	return nil
}

func (s *SessionStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, session := range s.byID {
		if session.Expired(now) {
			delete(s.byID, id)
			n++
		}
	}
	return n, nil
}

var (
	_ ab.IdentityStore = (*IdentityStore)(nil)
	_ ab.SessionStore  = (*SessionStore)(nil)
)
