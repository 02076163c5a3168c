//go:build !wasm
// +build !wasm

package gorm

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	ab "github.com/rkolluri/authbridge"
)

// StringSlice is a helper type for storing string slices in GORM
type StringSlice []string

func (s StringSlice) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	return json.Marshal(s)
}

func (s *StringSlice) Scan(value any) error {
	if value == nil {
		*s = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, s)
}

// IdentityModel is the GORM model for identities. Identifier columns are
// nullable so the unique indexes only bite when a value is present.
type IdentityModel struct {
	ID            int64       `gorm:"primaryKey;autoIncrement"`
	Username      *string     `gorm:"size:64;uniqueIndex"`
	Email         *string     `gorm:"size:255;uniqueIndex"`
	Phone         *string     `gorm:"size:32;uniqueIndex"`
	FirebaseUID   *string     `gorm:"size:128;uniqueIndex"`
	GoogleSubject *string     `gorm:"size:128;uniqueIndex"`
	PasswordHash  string      `gorm:"size:128"`
	DisplayName   string      `gorm:"size:255"`
	AvatarURL     string      `gorm:"size:512"`
	IsActive      bool        `gorm:"default:true"`
	IsVerified    bool        `gorm:"default:false"`
	ProfileDone   bool        `gorm:"column:profile_completed;default:false"`
	Methods       StringSlice `gorm:"type:jsonb"`
	CreatedAt     time.Time   `gorm:"autoCreateTime"`
	UpdatedAt     time.Time   `gorm:"autoUpdateTime"`
}

func (IdentityModel) TableName() string {
	return "identities"
}

func (m *IdentityModel) ToIdentity() *ab.Identity {
	methods := make([]ab.AuthMethod, len(m.Methods))
	for i, s := range m.Methods {
		methods[i] = ab.AuthMethod(s)
	}
	return &ab.Identity{
		ID:               m.ID,
		Username:         deref(m.Username),
		Email:            deref(m.Email),
		Phone:            deref(m.Phone),
		FirebaseUID:      deref(m.FirebaseUID),
		GoogleSubject:    deref(m.GoogleSubject),
		PasswordHash:     m.PasswordHash,
		DisplayName:      m.DisplayName,
		AvatarURL:        m.AvatarURL,
		IsActive:         m.IsActive,
		IsVerified:       m.IsVerified,
		ProfileCompleted: m.ProfileDone,
		Methods:          ab.NewMethodSet(methods...),
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

func IdentityToModel(identity *ab.Identity) *IdentityModel {
	methods := make(StringSlice, 0, len(identity.Methods))
	for _, m := range identity.Methods {
		methods = append(methods, string(m))
	}
	return &IdentityModel{
		ID:            identity.ID,
		Username:      nullable(identity.Username),
		Email:         nullable(identity.Email),
		Phone:         nullable(identity.Phone),
		FirebaseUID:   nullable(identity.FirebaseUID),
		GoogleSubject: nullable(identity.GoogleSubject),
		PasswordHash:  identity.PasswordHash,
		DisplayName:   identity.DisplayName,
		AvatarURL:     identity.AvatarURL,
		IsActive:      identity.IsActive,
		IsVerified:    identity.IsVerified,
		ProfileDone:   identity.ProfileCompleted,
		Methods:       methods,
		CreatedAt:     identity.CreatedAt,
		UpdatedAt:     identity.UpdatedAt,
	}
}

// SessionModel is the GORM model for server-side sessions
type SessionModel struct {
	ID         string    `gorm:"primaryKey;size:64"`
	IdentityID int64     `gorm:"index"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
	ExpiresAt  time.Time `gorm:"index"`
}

func (SessionModel) TableName() string {
	return "sessions"
}

func (m *SessionModel) ToSession() *ab.Session {
	return &ab.Session{
		ID:         m.ID,
		IdentityID: m.IdentityID,
		CreatedAt:  m.CreatedAt,
		ExpiresAt:  m.ExpiresAt,
	}
}

func SessionToModel(s *ab.Session) *SessionModel {
	return &SessionModel{
		ID:         s.ID,
		IdentityID: s.IdentityID,
		CreatedAt:  s.CreatedAt,
		ExpiresAt:  s.ExpiresAt,
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
