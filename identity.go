package authbridge

import (
	"slices"
	"time"
)

// AuthMethod tags a credential mechanism that can be linked to an identity.
type AuthMethod string

const (
	MethodPassword AuthMethod = "password"
	MethodPhone    AuthMethod = "phone"
	MethodGoogle   AuthMethod = "google"
)

// KnownMethod reports whether m is a supported auth method tag.
func KnownMethod(m AuthMethod) bool {
	switch m {
	case MethodPassword, MethodPhone, MethodGoogle:
		return true
	}
	return false
}

// MethodSet is the set of auth methods currently linked to an identity.
// It has value semantics: With and Without return a new sorted copy and
// never mutate the receiver's backing array, so persistence layers always
// see a fresh slice on change.
type MethodSet []AuthMethod

// NewMethodSet builds a set from the given methods, deduplicated and sorted.
func NewMethodSet(methods ...AuthMethod) MethodSet {
	out := make(MethodSet, 0, len(methods))
	for _, m := range methods {
		if !slices.Contains(out, m) {
			out = append(out, m)
		}
	}
	slices.Sort(out)
	return out
}

// Has reports whether m is in the set.
func (s MethodSet) Has(m AuthMethod) bool {
	return slices.Contains(s, m)
}

// With returns a new set containing m.
func (s MethodSet) With(m AuthMethod) MethodSet {
	if s.Has(m) {
		return slices.Clone(s)
	}
	out := make(MethodSet, 0, len(s)+1)
	out = append(out, s...)
	out = append(out, m)
	slices.Sort(out)
	return out
}

// Without returns a new set with m removed.
func (s MethodSet) Without(m AuthMethod) MethodSet {
	out := make(MethodSet, 0, len(s))
	for _, x := range s {
		if x != m {
			out = append(out, x)
		}
	}
	return out
}

// Equal reports whether two sets hold the same methods.
func (s MethodSet) Equal(other MethodSet) bool {
	return slices.Equal(s, other)
}

// Identity is the canonical user record. Username, Email, Phone and the
// provider subjects are unique across all identities when non-empty.
type Identity struct {
	ID int64 `json:"id"`

	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`

	DisplayName string `json:"display_name,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`

	// One-way password digest; set iff MethodPassword is linked.
	PasswordHash string `json:"-"`

	// Stable subject ids assigned by the external providers; each is set
	// iff the corresponding method is linked.
	FirebaseUID   string `json:"-"`
	GoogleSubject string `json:"-"`

	IsActive         bool `json:"is_active"`
	IsVerified       bool `json:"is_verified"`
	ProfileCompleted bool `json:"profile_completed"`

	Methods MethodSet `json:"auth_methods"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Subject returns the provider subject id stored for an external method.
func (u *Identity) Subject(method AuthMethod) string {
	switch method {
	case MethodPhone:
		return u.FirebaseUID
	case MethodGoogle:
		return u.GoogleSubject
	}
	return ""
}

// RecomputeProfileCompleted derives the profile_completed flag. It must be
// called after every mutation of username or display name.
func (u *Identity) RecomputeProfileCompleted() {
	u.ProfileCompleted = u.Username != "" && u.DisplayName != ""
}

// Clone returns a deep copy, so store implementations can hand out
// identities without aliasing their internal state.
func (u *Identity) Clone() *Identity {
	out := *u
	out.Methods = slices.Clone(u.Methods)
	return &out
}

// PublicIdentity is the caller-facing projection of an Identity: no
// password hash, no raw provider subjects.
type PublicIdentity struct {
	ID               int64     `json:"id"`
	Username         string    `json:"username,omitempty"`
	Email            string    `json:"email,omitempty"`
	Phone            string    `json:"phone,omitempty"`
	DisplayName      string    `json:"display_name,omitempty"`
	AvatarURL        string    `json:"avatar_url,omitempty"`
	IsActive         bool      `json:"is_active"`
	IsVerified       bool      `json:"is_verified"`
	ProfileCompleted bool      `json:"profile_completed"`
	Methods          MethodSet `json:"auth_methods"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Public projects the identity for API responses.
func (u *Identity) Public() *PublicIdentity {
	return &PublicIdentity{
		ID:               u.ID,
		Username:         u.Username,
		Email:            u.Email,
		Phone:            u.Phone,
		DisplayName:      u.DisplayName,
		AvatarURL:        u.AvatarURL,
		IsActive:         u.IsActive,
		IsVerified:       u.IsVerified,
		ProfileCompleted: u.ProfileCompleted,
		Methods:          u.Methods,
		CreatedAt:        u.CreatedAt,
		UpdatedAt:        u.UpdatedAt,
	}
}
