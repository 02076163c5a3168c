//go:build !wasm
// +build !wasm

package gorm

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	ab "github.com/rkolluri/authbridge"
)

// AutoMigrate runs database migrations for all authbridge tables
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&IdentityModel{},
		&SessionModel{},
	)
}

// =============================================================================
// IdentityStore
// =============================================================================

// IdentityStore implements ab.IdentityStore using GORM
type IdentityStore struct {
	db *gorm.DB
}

func NewIdentityStore(db *gorm.DB) *IdentityStore {
	return &IdentityStore{db: db}
}

func (s *IdentityStore) ByID(ctx context.Context, id int64) (*ab.Identity, error) {
	var model IdentityModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ab.ErrNotFound
		}
		return nil, err
	}
	return model.ToIdentity(), nil
}

func (s *IdentityStore) ByUsername(ctx context.Context, username string) (*ab.Identity, error) {
	return s.byColumn(ctx, "username = ?", username)
}

func (s *IdentityStore) ByEmail(ctx context.Context, email string) (*ab.Identity, error) {
	return s.byColumn(ctx, "email = ?", email)
}

func (s *IdentityStore) ByPhone(ctx context.Context, phone string) (*ab.Identity, error) {
	return s.byColumn(ctx, "phone = ?", phone)
}

func (s *IdentityStore) BySubject(ctx context.Context, method ab.AuthMethod, subject string) (*ab.Identity, error) {
	switch method {
	case ab.MethodPhone:
		return s.byColumn(ctx, "firebase_uid = ?", subject)
	case ab.MethodGoogle:
		return s.byColumn(ctx, "google_subject = ?", subject)
	}
	return nil, nil
}

func (s *IdentityStore) ByAnyIdentifier(ctx context.Context, identifier string) (*ab.Identity, error) {
	for _, column := range []string{"username = ?", "email = ?", "phone = ?"} {
		identity, err := s.byColumn(ctx, column, identifier)
		if err != nil || identity != nil {
			return identity, err
		}
	}
	return nil, nil
}

func (s *IdentityStore) byColumn(ctx context.Context, cond, value string) (*ab.Identity, error) {
	if value == "" {
		return nil, nil
	}
	var model IdentityModel
	if err := s.db.WithContext(ctx).First(&model, cond, value).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return model.ToIdentity(), nil
}

func (s *IdentityStore) Create(ctx context.Context, identity *ab.Identity) error {
	model := IdentityToModel(identity)
	if err := s.db.WithContext(ctx).Create(model).Error; err != nil {
		return translateDuplicate(err)
	}
	identity.ID = model.ID
	identity.CreatedAt = model.CreatedAt
	identity.UpdatedAt = model.UpdatedAt
	return nil
}

func (s *IdentityStore) Update(ctx context.Context, identity *ab.Identity) error {
	model := IdentityToModel(identity)
	// Save with a full model so cleared identifier columns go back to NULL.
	if err := s.db.WithContext(ctx).Save(model).Error; err != nil {
		return translateDuplicate(err)
	}
	identity.UpdatedAt = model.UpdatedAt
	return nil
}

func (s *IdentityStore) Delete(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).Delete(&IdentityModel{}, "id = ?", id).Error
}

func (s *IdentityStore) List(ctx context.Context, offset, limit int) ([]*ab.Identity, error) {
	var models []IdentityModel
	if err := s.db.WithContext(ctx).
		Order("id").Offset(offset).Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	identities := make([]*ab.Identity, len(models))
	for i := range models {
		identities[i] = models[i].ToIdentity()
	}
	return identities, nil
}

// translateDuplicate maps a unique-constraint violation onto a
// ConflictError naming the field. Field detection falls back to scanning
// the driver message for the column name; gorm's translated error does not
// carry it.
func translateDuplicate(err error) error {
	if !errors.Is(err, gorm.ErrDuplicatedKey) && !isDuplicateMessage(err) {
		return err
	}
	msg := strings.ToLower(err.Error())
	for _, field := range []string{"username", "email", "phone", "firebase_uid", "google_subject"} {
		if strings.Contains(msg, field) {
			return &ab.ConflictError{Field: field}
		}
	}
	return &ab.ConflictError{Field: "identifier"}
}

func isDuplicateMessage(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "unique failed")
}

// =============================================================================
// SessionStore
// =============================================================================

// SessionStore implements ab.SessionStore using GORM
type SessionStore struct {
	db *gorm.DB
}

func NewSessionStore(db *gorm.DB) *SessionStore {
	return &SessionStore{db: db}
}

func (s *SessionStore) Insert(ctx context.Context, session *ab.Session) error {
	return s.db.WithContext(ctx).Create(SessionToModel(session)).Error
}

func (s *SessionStore) Get(ctx context.Context, id string) (*ab.Session, error) {
	var model SessionModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return model.ToSession(), nil
}

func (s *SessionStore) Delete(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Delete(&SessionModel{}, "id = ?", id).Error
}

func (s *SessionStore) DeleteForIdentity(ctx context.Context, identityID int64) error {
	return s.db.WithContext(ctx).Delete(&SessionModel{}, "identity_id = ?", identityID).Error
}

func (s *SessionStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Delete(&SessionModel{}, "expires_at < ?", now)
	return result.RowsAffected, result.Error
}

var (
	_ ab.IdentityStore = (*IdentityStore)(nil)
	_ ab.SessionStore  = (*SessionStore)(nil)
)
