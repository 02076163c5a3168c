package authbridge

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
)

// CookieConfig controls the session-proof cookie in session mode.
type CookieConfig struct {
	Name     string
	Domain   string
	Path     string
	Secure   bool
	SameSite http.SameSite
}

func (c CookieConfig) name() string {
	if c.Name == "" {
		return "session_id"
	}
	return c.Name
}

func (c CookieConfig) path() string {
	if c.Path == "" {
		return "/"
	}
	return c.Path
}

// API is the HTTP boundary over the reconciliation engine. Responses always
// project identities through Public(); password hashes and raw provider
// subjects never leave the server.
type API struct {
	Reconciler *Reconciler
	Issuer     Issuer
	Mode       ProofMode
	Cookie     CookieConfig

	// Phone and Google verify raw provider tokens for the external login
	// and link flows.
	Phone  ExternalVerifier
	Google ExternalVerifier

	Logger *slog.Logger
}

func (a *API) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}

func (a *API) middleware() *Middleware {
	mw := &Middleware{Issuer: a.Issuer}
	if a.Mode == ProofSessions {
		mw.CookieName = a.Cookie.name()
	}
	return mw
}

// Router builds the full route set.
func (a *API) Router() *mux.Router {
	mw := a.middleware()

	r := mux.NewRouter()
	r.HandleFunc("/auth/register", a.handleRegister).Methods(http.MethodPost)
	r.HandleFunc("/auth/login", a.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/auth/phone", a.handlePhone).Methods(http.MethodPost)
	r.HandleFunc("/auth/google", a.handleGoogle).Methods(http.MethodPost)
	r.HandleFunc("/auth/logout", a.handleLogout).Methods(http.MethodPost)

	me := r.PathPrefix("/me").Subrouter()
	me.Use(mw.Require)
	me.HandleFunc("", a.handleMe).Methods(http.MethodGet)
	me.HandleFunc("", a.handleUpdateProfile).Methods(http.MethodPatch)
	me.HandleFunc("", a.handleDeleteAccount).Methods(http.MethodDelete)
	me.HandleFunc("/complete-profile", a.handleUpdateProfile).Methods(http.MethodPost)
	me.HandleFunc("/methods/{method}", a.handleLink).Methods(http.MethodPost)
	me.HandleFunc("/methods/{method}", a.handleUnlink).Methods(http.MethodDelete)

	admin := r.PathPrefix("/identities").Subrouter()
	admin.Use(mw.Require)
	admin.HandleFunc("", a.handleList).Methods(http.MethodGet)
	admin.HandleFunc("/{id:[0-9]+}", a.handleGet).Methods(http.MethodGet)

	return r
}

type registerRequest struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, NewAuthError(ErrCodeInvalidRequest, "invalid request body", ""))
		return
	}

	outcome, err := a.Reconciler.CreateOrRegister(r.Context(), RegisterRequest{
		Method:        MethodPassword,
		Username:      req.Username,
		Email:         req.Email,
		Phone:         req.Phone,
		Password:      req.Password,
		DisplayName:   req.DisplayName,
		AllowRegister: true,
	})
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeLogin(w, r, outcome.Identity, MethodPassword, map[string]any{
		"user_exists": outcome.Existed,
	})
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Username   string `json:"username"`
	Password   string `json:"password"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, NewAuthError(ErrCodeInvalidRequest, "invalid request body", ""))
		return
	}
	identifier := req.Identifier
	if identifier == "" {
		identifier = req.Username
	}
	if identifier == "" || req.Password == "" {
		a.writeError(w, NewAuthError(ErrCodeInvalidRequest, "identifier and password are required", ""))
		return
	}

	identity, err := a.Reconciler.AuthenticatePassword(r.Context(), identifier, req.Password)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeLogin(w, r, identity, MethodPassword, nil)
}

type externalAuthRequest struct {
	Token               string `json:"token"`
	RegisterIfNotExists *bool  `json:"register_if_not_exists"`
	Username            string `json:"username"`
}

func (a *API) handlePhone(w http.ResponseWriter, r *http.Request) {
	a.handleExternal(w, r, MethodPhone, a.Phone)
}

func (a *API) handleGoogle(w http.ResponseWriter, r *http.Request) {
	a.handleExternal(w, r, MethodGoogle, a.Google)
}

func (a *API) handleExternal(w http.ResponseWriter, r *http.Request, method AuthMethod, verifier ExternalVerifier) {
	if verifier == nil {
		a.writeError(w, NewAuthError(ErrCodeInvalidRequest, string(method)+" authentication not configured", ""))
		return
	}
	var req externalAuthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, NewAuthError(ErrCodeInvalidRequest, "invalid request body", ""))
		return
	}
	if req.Token == "" {
		a.writeError(w, NewAuthError(ErrCodeInvalidRequest, "token is required", "token"))
		return
	}

	claim, err := verifier.Verify(r.Context(), req.Token)
	if err != nil {
		a.writeError(w, err)
		return
	}

	allowRegister := true
	if req.RegisterIfNotExists != nil {
		allowRegister = *req.RegisterIfNotExists
	}
	outcome, err := a.Reconciler.CreateOrRegister(r.Context(), RegisterRequest{
		Method:        method,
		Username:      req.Username,
		Claim:         claim,
		AllowRegister: allowRegister,
	})
	if err != nil {
		a.writeError(w, err)
		return
	}

	extra := map[string]any{"user_exists": outcome.Existed}
	if method == MethodPhone {
		extra["phone_number"] = claim.Phone
	}
	a.writeLogin(w, r, outcome.Identity, method, extra)
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if v := r.Header.Get("Authorization"); v != "" {
		value := strings.TrimPrefix(v, "Bearer ")
		if err := a.Issuer.Revoke(r.Context(), value); err != nil {
			a.logger().Warn("failed to revoke proof", "error", err)
		}
	}
	if a.Mode != ProofBearer {
		if cookie, err := r.Cookie(a.Cookie.name()); err == nil && cookie.Value != "" {
			if err := a.Issuer.Revoke(r.Context(), cookie.Value); err != nil {
				a.logger().Warn("failed to revoke session", "error", err)
			}
		}
		a.clearCookie(w)
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityIDFromContext(r.Context())
	identity, err := a.Reconciler.Get(r.Context(), id)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, identity.Public())
}

type profileRequest struct {
	Username    *string `json:"username"`
	Email       *string `json:"email"`
	DisplayName *string `json:"display_name"`
	AvatarURL   *string `json:"avatar_url"`
	Password    *string `json:"password"`
}

func (a *API) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityIDFromContext(r.Context())
	var req profileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, NewAuthError(ErrCodeInvalidRequest, "invalid request body", ""))
		return
	}
	identity, err := a.Reconciler.UpdateProfile(r.Context(), id, ProfileUpdate{
		Username:    req.Username,
		Email:       req.Email,
		DisplayName: req.DisplayName,
		AvatarURL:   req.AvatarURL,
		Password:    req.Password,
	})
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, identity.Public())
}

func (a *API) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityIDFromContext(r.Context())
	if err := a.Reconciler.Delete(r.Context(), id); err != nil {
		a.writeError(w, err)
		return
	}
	if s, ok := a.Issuer.(*SessionIssuer); ok {
		if err := s.RevokeAll(r.Context(), id); err != nil {
			a.logger().Warn("failed to delete sessions for deleted account", "error", err)
		}
		a.clearCookie(w)
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

type linkRequest struct {
	// Password linking.
	Email    string `json:"email"`
	Password string `json:"password"`

	// External linking: a raw provider token, verified server-side.
	Token string `json:"token"`
}

func (a *API) handleLink(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityIDFromContext(r.Context())
	method := AuthMethod(mux.Vars(r)["method"])
	if !KnownMethod(method) {
		a.writeError(w, NewAuthError(ErrCodeInvalidRequest, "unsupported auth method: "+string(method), "method"))
		return
	}

	var req linkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, NewAuthError(ErrCodeInvalidRequest, "invalid request body", ""))
		return
	}

	var payload LinkPayload
	switch method {
	case MethodPassword:
		payload = LinkPayload{Email: req.Email, Password: req.Password}
	case MethodPhone, MethodGoogle:
		verifier := a.Phone
		if method == MethodGoogle {
			verifier = a.Google
		}
		if verifier == nil {
			a.writeError(w, NewAuthError(ErrCodeInvalidRequest, string(method)+" authentication not configured", ""))
			return
		}
		if req.Token == "" {
			a.writeError(w, NewAuthError(ErrCodeInvalidRequest, "token is required", "token"))
			return
		}
		claim, err := verifier.Verify(r.Context(), req.Token)
		if err != nil {
			a.writeError(w, err)
			return
		}
		payload = LinkPayload{Subject: claim.Subject, Phone: claim.Phone, Email: claim.Email}
	}

	identity, err := a.Reconciler.LinkMethod(r.Context(), id, method, payload)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, identity.Public())
}

func (a *API) handleUnlink(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityIDFromContext(r.Context())
	method := AuthMethod(mux.Vars(r)["method"])
	identity, err := a.Reconciler.UnlinkMethod(r.Context(), id, method)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, identity.Public())
}

func (a *API) handleList(w http.ResponseWriter, r *http.Request) {
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	identities, err := a.Reconciler.List(r.Context(), offset, limit)
	if err != nil {
		a.writeError(w, err)
		return
	}
	out := make([]*PublicIdentity, len(identities))
	for i, identity := range identities {
		out[i] = identity.Public()
	}
	a.writeJSON(w, http.StatusOK, out)
}

func (a *API) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		a.writeError(w, NewAuthError(ErrCodeInvalidRequest, "invalid identity id", "id"))
		return
	}
	identity, err := a.Reconciler.Get(r.Context(), id)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, identity.Public())
}

// writeLogin issues the session proof for a successful authentication and
// writes the login response. Session mode sets the cookie; bearer mode
// returns the token in the body.
func (a *API) writeLogin(w http.ResponseWriter, r *http.Request, identity *Identity, method AuthMethod, extra map[string]any) {
	proof, err := a.Issuer.Issue(r.Context(), identity, method)
	if err != nil {
		a.writeError(w, err)
		return
	}

	body := map[string]any{"user": identity.Public()}
	for k, v := range extra {
		body[k] = v
	}

	switch a.Mode {
	case ProofBearer:
		body["access_token"] = proof.Value
		body["token_type"] = "bearer"
		body["expires_in"] = int(time.Until(proof.ExpiresAt).Seconds())
	default:
		http.SetCookie(w, &http.Cookie{
			Name:     a.Cookie.name(),
			Value:    proof.Value,
			Domain:   a.Cookie.Domain,
			Path:     a.Cookie.path(),
			Expires:  proof.ExpiresAt,
			HttpOnly: true,
			Secure:   a.Cookie.Secure,
			SameSite: a.cookieSameSite(),
		})
	}
	a.writeJSON(w, http.StatusOK, body)
}

func (a *API) cookieSameSite() http.SameSite {
	if a.Cookie.SameSite == 0 {
		return http.SameSiteLaxMode
	}
	return a.Cookie.SameSite
}

func (a *API) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     a.Cookie.name(),
		Value:    "",
		Domain:   a.Cookie.Domain,
		Path:     a.Cookie.path(),
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   a.Cookie.Secure,
		SameSite: a.cookieSameSite(),
	})
}

func (a *API) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		a.logger().Warn("failed to encode response", "error", err)
	}
}

// writeError maps typed failures to their HTTP status. Unrecognized errors
// become an opaque 500; raw store error text never reaches the caller.
func (a *API) writeError(w http.ResponseWriter, err error) {
	status := HTTPStatus(err)
	body := map[string]any{"error": "internal error"}

	var ae *AuthError
	if errors.As(err, &ae) {
		body["error"] = ae.Message
		body["code"] = ae.Code
		if ae.Field != "" {
			body["field"] = ae.Field
		}
	} else if errors.Is(err, ErrNotFound) {
		body["error"] = "identity not found"
		body["code"] = ErrCodeNotFound
	} else {
		a.logger().Error("internal error", "error", err)
	}
	a.writeJSON(w, status, body)
}
