package authbridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Reconciler maps incoming verified credentials onto canonical identities.
// It owns the create/link/unlink/update protocols and enforces the two
// structural invariants: no identifier is shared between identities, and no
// identity is ever left without an auth method.
type Reconciler struct {
	Store  IdentityStore
	Hasher Hasher
	Logger *slog.Logger
}

// NewReconciler wires a reconciler with a bcrypt hasher by default.
func NewReconciler(store IdentityStore) *Reconciler {
	return &Reconciler{Store: store, Hasher: &BcryptHasher{}}
}

func (r *Reconciler) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

// AuthenticatePassword resolves the identity behind an ambiguous identifier
// (username, email or phone) and verifies the password against its stored
// hash. Pure lookup: no mutation on success or failure.
func (r *Reconciler) AuthenticatePassword(ctx context.Context, identifier, password string) (*Identity, error) {
	identity, err := r.Store.ByAnyIdentifier(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if identity == nil || identity.PasswordHash == "" {
		return nil, NewAuthError(ErrCodeInvalidCredential, "invalid credentials", "password")
	}
	if !r.Hasher.Verify(password, identity.PasswordHash) {
		return nil, NewAuthError(ErrCodeInvalidCredential, "invalid credentials", "password")
	}
	return r.requireActive(identity)
}

// AuthenticateExternal resolves an identity by provider subject exactly; no
// fallback to other fields.
func (r *Reconciler) AuthenticateExternal(ctx context.Context, provider AuthMethod, subject string) (*Identity, error) {
	if subject == "" {
		return nil, NewAuthError(ErrCodeInvalidCredential, "missing provider subject", "subject")
	}
	identity, err := r.Store.BySubject(ctx, provider, subject)
	if err != nil {
		return nil, err
	}
	if identity == nil {
		return nil, NewAuthError(ErrCodeInvalidCredential, "no account for this "+string(provider)+" credential", "subject")
	}
	return r.requireActive(identity)
}

func (r *Reconciler) requireActive(identity *Identity) (*Identity, error) {
	if !identity.IsActive {
		return nil, NewAuthError(ErrCodeAccountDisabled, "account is disabled", "")
	}
	return identity, nil
}

// RegisterRequest carries the inputs for CreateOrRegister. For
// MethodPassword the identifier fields and Password are used; for external
// methods Claim is the verified provider claim.
type RegisterRequest struct {
	Method AuthMethod

	Username    string
	Email       string
	Phone       string
	Password    string
	DisplayName string

	Claim *ExternalClaim

	// AllowRegister permits creating a new identity when no match exists.
	// When false a miss fails with not_found_no_registration.
	AllowRegister bool
}

// RegisterOutcome reports the resolved identity and whether it existed
// before this call (login vs fresh registration).
type RegisterOutcome struct {
	Identity *Identity
	Existed  bool
}

// CreateOrRegister authenticates against an existing identity when the
// credential matches one, and otherwise creates a new identity when
// registration is allowed. The create path pre-flights every identifier
// about to be written, then relies on the store's unique constraints as the
// authoritative guard: a constraint race surfaces as already_registered,
// never as an opaque failure.
func (r *Reconciler) CreateOrRegister(ctx context.Context, req RegisterRequest) (*RegisterOutcome, error) {
	switch req.Method {
	case MethodPassword:
		return r.registerPassword(ctx, req)
	case MethodPhone, MethodGoogle:
		return r.registerExternal(ctx, req)
	}
	return nil, NewAuthError(ErrCodeInvalidRequest, fmt.Sprintf("unsupported auth method: %s", req.Method), "method")
}

func (r *Reconciler) registerPassword(ctx context.Context, req RegisterRequest) (*RegisterOutcome, error) {
	if req.Password == "" || (req.Email == "" && req.Username == "") {
		return nil, NewAuthError(ErrCodeInvalidRequest, "password and an email or username are required", "")
	}

	// Login path first: an existing identity with a matching credential
	// makes this call an idempotent authenticate.
	identifier := req.Username
	if identifier == "" {
		identifier = req.Email
	}
	existing, err := r.AuthenticatePassword(ctx, identifier, req.Password)
	if err == nil {
		return &RegisterOutcome{Identity: existing, Existed: true}, nil
	}
	if ErrorCode(err) == ErrCodeAccountDisabled {
		return nil, err
	}

	if !req.AllowRegister {
		return nil, NewAuthError(ErrCodeNotFoundNoRegistration, "no account found and registration is disabled", "")
	}
	if req.Username == "" || !ValidUsername(req.Username) {
		return nil, NewAuthError(ErrCodeInvalidRequest, "username must be 3-20 characters of letters, numbers, underscores and hyphens", "username")
	}
	if req.Email != "" && !ValidEmail(req.Email) {
		return nil, NewAuthError(ErrCodeInvalidRequest, "invalid email format", "email")
	}
	if len(req.Password) < MinPasswordLength {
		return nil, NewAuthError(ErrCodeInvalidRequest, fmt.Sprintf("password must be at least %d characters", MinPasswordLength), "password")
	}

	identity := &Identity{
		Username:    req.Username,
		Email:       req.Email,
		Phone:       req.Phone,
		DisplayName: req.DisplayName,
		IsActive:    true,
		Methods:     NewMethodSet(MethodPassword),
	}
	identity.PasswordHash, err = r.Hasher.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	if err := r.createChecked(ctx, identity); err != nil {
		return nil, err
	}
	return &RegisterOutcome{Identity: identity, Existed: false}, nil
}

func (r *Reconciler) registerExternal(ctx context.Context, req RegisterRequest) (*RegisterOutcome, error) {
	claim := req.Claim
	if claim == nil || claim.Subject == "" {
		return nil, NewAuthError(ErrCodeInvalidRequest, "verified provider claim with a subject id is required", "subject")
	}

	identity, err := r.Store.BySubject(ctx, req.Method, claim.Subject)
	if err != nil {
		return nil, err
	}
	if identity == nil && req.Method == MethodPhone && claim.Phone != "" {
		// A subject miss can still be a known account whose provider uid
		// drifted; the phone number itself reconciles it.
		identity, err = r.Store.ByPhone(ctx, claim.Phone)
		if err != nil {
			return nil, err
		}
	}

	if identity != nil {
		if _, err := r.requireActive(identity); err != nil {
			return nil, err
		}
		if err := r.refreshExternal(ctx, identity, req.Method, claim); err != nil {
			return nil, err
		}
		return &RegisterOutcome{Identity: identity, Existed: true}, nil
	}

	if !req.AllowRegister {
		return nil, NewAuthError(ErrCodeNotFoundNoRegistration, "no account found and registration is disabled", "")
	}
	return r.createExternal(ctx, req, claim)
}

// refreshExternal updates a matched identity whose provider-reported phone
// number or subject drifted since it was stored.
func (r *Reconciler) refreshExternal(ctx context.Context, identity *Identity, method AuthMethod, claim *ExternalClaim) error {
	changed := false
	if method == MethodPhone {
		if claim.Phone != "" && identity.Phone != claim.Phone {
			identity.Phone = claim.Phone
			changed = true
		}
		if identity.FirebaseUID != claim.Subject {
			identity.FirebaseUID = claim.Subject
			if !identity.Methods.Has(MethodPhone) {
				identity.Methods = identity.Methods.With(MethodPhone)
			}
			changed = true
		}
	}
	if !changed {
		return nil
	}
	if err := r.Store.Update(ctx, identity); err != nil {
		return translateConflict(err)
	}
	return nil
}

func (r *Reconciler) createExternal(ctx context.Context, req RegisterRequest, claim *ExternalClaim) (*RegisterOutcome, error) {
	username := req.Username
	derived := false
	if username == "" && req.Method == MethodGoogle && claim.Email != "" {
		username = UsernameFromEmail(claim.Email)
		derived = true
	}
	if username == "" {
		return nil, NewAuthError(ErrCodeMissingUsername, "username is required for new registration", "username")
	}

	identity := &Identity{
		Username:    username,
		Phone:       claim.Phone,
		Email:       claim.Email,
		DisplayName: req.DisplayName,
		IsActive:    true,
		IsVerified:  true,
		Methods:     NewMethodSet(req.Method),
	}
	if identity.DisplayName == "" {
		identity.DisplayName = claim.Name
	}
	if identity.AvatarURL == "" {
		identity.AvatarURL = claim.Picture
	}
	switch req.Method {
	case MethodPhone:
		identity.FirebaseUID = claim.Subject
		if identity.Email == "" {
			// Placeholder address so phone-only accounts still carry an
			// email slot, mirroring <username>_<uid8>@phone.auth.
			identity.Email = syntheticPhoneEmail(username, claim.Subject)
		}
	case MethodGoogle:
		identity.GoogleSubject = claim.Subject
	}

	err := r.createChecked(ctx, identity)
	if err != nil && derived && isUsernameConflict(err) {
		// The derived local-part collided and the caller never chose a
		// username; ask for one instead of reporting a conflict on a value
		// they did not supply.
		return nil, NewAuthError(ErrCodeMissingUsername, "derived username is taken; a username is required for new registration", "username")
	}
	if err != nil {
		return nil, err
	}
	return &RegisterOutcome{Identity: identity, Existed: false}, nil
}

func isUsernameConflict(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae) && ae.Code == ErrCodeAlreadyRegistered && ae.Field == "username"
}

// createChecked runs the field-ordered pre-flight uniqueness checks, stamps
// the derived flags and persists. Field order: email, phone, provider
// subject, username.
func (r *Reconciler) createChecked(ctx context.Context, identity *Identity) error {
	if identity.Email != "" {
		other, err := r.Store.ByEmail(ctx, identity.Email)
		if err != nil {
			return err
		}
		if other != nil {
			return alreadyRegistered("email")
		}
	}
	if identity.Phone != "" {
		other, err := r.Store.ByPhone(ctx, identity.Phone)
		if err != nil {
			return err
		}
		if other != nil {
			return alreadyRegistered("phone")
		}
	}
	for _, m := range []AuthMethod{MethodPhone, MethodGoogle} {
		subject := identity.Subject(m)
		if subject == "" {
			continue
		}
		other, err := r.Store.BySubject(ctx, m, subject)
		if err != nil {
			return err
		}
		if other != nil {
			return alreadyRegistered(subjectField(m))
		}
	}
	if identity.Username != "" {
		other, err := r.Store.ByUsername(ctx, identity.Username)
		if err != nil {
			return err
		}
		if other != nil {
			return alreadyRegistered("username")
		}
	}

	identity.RecomputeProfileCompleted()
	if err := r.Store.Create(ctx, identity); err != nil {
		return translateConflict(err)
	}
	r.logger().Info("identity created",
		slog.Int64("identity_id", identity.ID),
		slog.Any("methods", identity.Methods))
	return nil
}

func subjectField(m AuthMethod) string {
	if m == MethodPhone {
		return "firebase_uid"
	}
	return "google_subject"
}

// LinkPayload carries the provider-specific fields for LinkMethod. The
// shape is validated per method before any state is touched.
type LinkPayload struct {
	// MethodPassword
	Email    string
	Password string

	// MethodPhone and MethodGoogle
	Subject string
	Phone   string
	// Google may also supply Email to fill an empty slot.
}

// LinkMethod adds an auth method to an existing identity. The new
// identifiers must not belong to any other identity; conflicts compare by
// id so re-linking a value the identity already owns is not a conflict.
func (r *Reconciler) LinkMethod(ctx context.Context, identityID int64, method AuthMethod, payload LinkPayload) (*Identity, error) {
	identity, err := r.Store.ByID(ctx, identityID)
	if err != nil {
		return nil, err
	}
	if !KnownMethod(method) {
		return nil, NewAuthError(ErrCodeInvalidRequest, fmt.Sprintf("unsupported auth method: %s", method), "method")
	}
	if identity.Methods.Has(method) {
		return nil, NewAuthError(ErrCodeAlreadyLinked, string(method)+" authentication already linked", "")
	}

	switch method {
	case MethodPassword:
		if payload.Email == "" && identity.Email == "" {
			return nil, NewAuthError(ErrCodeInvalidRequest, "email is required", "email")
		}
		if len(payload.Password) < MinPasswordLength {
			return nil, NewAuthError(ErrCodeInvalidRequest, fmt.Sprintf("password must be at least %d characters", MinPasswordLength), "password")
		}
		if payload.Email != "" && payload.Email != identity.Email {
			if err := r.checkFieldFree(ctx, identity.ID, "email", payload.Email); err != nil {
				return nil, err
			}
			identity.Email = payload.Email
		}
		identity.PasswordHash, err = r.Hasher.Hash(payload.Password)
		if err != nil {
			return nil, err
		}

	case MethodPhone:
		if payload.Subject == "" {
			return nil, NewAuthError(ErrCodeInvalidRequest, "provider subject id is required", "subject")
		}
		if err := r.checkSubjectFree(ctx, identity.ID, MethodPhone, payload.Subject); err != nil {
			return nil, err
		}
		if payload.Phone != "" && payload.Phone != identity.Phone {
			if err := r.checkFieldFree(ctx, identity.ID, "phone", payload.Phone); err != nil {
				return nil, err
			}
			identity.Phone = payload.Phone
		}
		identity.FirebaseUID = payload.Subject

	case MethodGoogle:
		if payload.Subject == "" {
			return nil, NewAuthError(ErrCodeInvalidRequest, "provider subject id is required", "subject")
		}
		if err := r.checkSubjectFree(ctx, identity.ID, MethodGoogle, payload.Subject); err != nil {
			return nil, err
		}
		if payload.Email != "" && identity.Email == "" {
			if err := r.checkFieldFree(ctx, identity.ID, "email", payload.Email); err != nil {
				return nil, err
			}
			identity.Email = payload.Email
		}
		identity.GoogleSubject = payload.Subject
	}

	identity.Methods = identity.Methods.With(method)
	identity.RecomputeProfileCompleted()
	if err := r.Store.Update(ctx, identity); err != nil {
		return nil, translateConflict(err)
	}
	r.logger().Info("auth method linked",
		slog.Int64("identity_id", identity.ID),
		slog.String("method", string(method)))
	return identity, nil
}

// UnlinkMethod removes an auth method. An identity's last method can never
// be removed, whichever method it is; that check runs before the
// not-linked check. Unlinking phone clears the provider subject but keeps
// the phone number as profile data.
func (r *Reconciler) UnlinkMethod(ctx context.Context, identityID int64, method AuthMethod) (*Identity, error) {
	identity, err := r.Store.ByID(ctx, identityID)
	if err != nil {
		return nil, err
	}
	if len(identity.Methods) <= 1 {
		return nil, NewAuthError(ErrCodeLastMethodProtected, "cannot unlink the only authentication method", "")
	}
	if !identity.Methods.Has(method) {
		return nil, NewAuthError(ErrCodeNotLinked, string(method)+" authentication not linked", "")
	}

	switch method {
	case MethodPassword:
		identity.PasswordHash = ""
	case MethodPhone:
		identity.FirebaseUID = ""
	case MethodGoogle:
		identity.GoogleSubject = ""
	}

	identity.Methods = identity.Methods.Without(method)
	if err := r.Store.Update(ctx, identity); err != nil {
		return nil, translateConflict(err)
	}
	r.logger().Info("auth method unlinked",
		slog.Int64("identity_id", identity.ID),
		slog.String("method", string(method)))
	return identity, nil
}

// ProfileUpdate carries partial-update fields; nil pointers leave the
// stored value untouched.
type ProfileUpdate struct {
	Username    *string
	Email       *string
	DisplayName *string
	AvatarURL   *string
	Password    *string
}

// UpdateProfile applies a partial update. Username and email changes re-run
// the uniqueness check against all other identities; a password change is
// re-hashed and links the password method when it was not linked yet;
// profile_completed is recomputed afterwards.
func (r *Reconciler) UpdateProfile(ctx context.Context, identityID int64, update ProfileUpdate) (*Identity, error) {
	identity, err := r.Store.ByID(ctx, identityID)
	if err != nil {
		return nil, err
	}

	if update.Username != nil && *update.Username != identity.Username {
		if !ValidUsername(*update.Username) {
			return nil, NewAuthError(ErrCodeInvalidRequest, "username must be 3-20 characters of letters, numbers, underscores and hyphens", "username")
		}
		if err := r.checkFieldFree(ctx, identity.ID, "username", *update.Username); err != nil {
			return nil, err
		}
		identity.Username = *update.Username
	}
	if update.Email != nil && *update.Email != identity.Email {
		if !ValidEmail(*update.Email) {
			return nil, NewAuthError(ErrCodeInvalidRequest, "invalid email format", "email")
		}
		if err := r.checkFieldFree(ctx, identity.ID, "email", *update.Email); err != nil {
			return nil, err
		}
		identity.Email = *update.Email
	}
	if update.DisplayName != nil {
		identity.DisplayName = *update.DisplayName
	}
	if update.AvatarURL != nil {
		identity.AvatarURL = *update.AvatarURL
	}
	if update.Password != nil && *update.Password != "" {
		if len(*update.Password) < MinPasswordLength {
			return nil, NewAuthError(ErrCodeInvalidRequest, fmt.Sprintf("password must be at least %d characters", MinPasswordLength), "password")
		}
		identity.PasswordHash, err = r.Hasher.Hash(*update.Password)
		if err != nil {
			return nil, err
		}
		// A stored hash always has the password method linked.
		identity.Methods = identity.Methods.With(MethodPassword)
	}

	identity.RecomputeProfileCompleted()
	if err := r.Store.Update(ctx, identity); err != nil {
		return nil, translateConflict(err)
	}
	return identity, nil
}

// Get loads an identity by id.
func (r *Reconciler) Get(ctx context.Context, identityID int64) (*Identity, error) {
	return r.Store.ByID(ctx, identityID)
}

// List returns identities for admin-style paging.
func (r *Reconciler) List(ctx context.Context, offset, limit int) ([]*Identity, error) {
	if limit <= 0 {
		limit = 10
	}
	return r.Store.List(ctx, offset, limit)
}

// Delete removes an identity. Session cleanup is the issuer's concern and
// is handled by the caller.
func (r *Reconciler) Delete(ctx context.Context, identityID int64) error {
	if _, err := r.Store.ByID(ctx, identityID); err != nil {
		return err
	}
	return r.Store.Delete(ctx, identityID)
}

// checkFieldFree fails with already_registered when value is owned by an
// identity other than selfID.
func (r *Reconciler) checkFieldFree(ctx context.Context, selfID int64, field, value string) error {
	var other *Identity
	var err error
	switch field {
	case "username":
		other, err = r.Store.ByUsername(ctx, value)
	case "email":
		other, err = r.Store.ByEmail(ctx, value)
	case "phone":
		other, err = r.Store.ByPhone(ctx, value)
	}
	if err != nil {
		return err
	}
	if other != nil && other.ID != selfID {
		return alreadyRegistered(field)
	}
	return nil
}

func (r *Reconciler) checkSubjectFree(ctx context.Context, selfID int64, method AuthMethod, subject string) error {
	other, err := r.Store.BySubject(ctx, method, subject)
	if err != nil {
		return err
	}
	if other != nil && other.ID != selfID {
		return alreadyRegistered(subjectField(method))
	}
	return nil
}

func syntheticPhoneEmail(username, subject string) string {
	uid := subject
	if len(uid) > 8 {
		uid = uid[:8]
	}
	return fmt.Sprintf("%s_%s@phone.auth", username, uid)
}
