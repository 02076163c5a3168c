package google

import (
	"crypto/rand"
	"encoding/base64"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"

	"github.com/rkolluri/authbridge"
)

const stateCookie = "oauthstate"

// ClaimHandler receives the verified claim at the end of the callback leg,
// typically to run it through the reconciler and issue a session proof.
type ClaimHandler func(claim *authbridge.ExternalClaim, w http.ResponseWriter, r *http.Request)

// Flow implements the authorization-code flow for browser logins. The
// redirect leg sets a random state cookie; the callback leg checks it,
// exchanges the code and verifies the ID token that rides along with the
// access token.
type Flow struct {
	Verifier    *Verifier
	HandleClaim ClaimHandler

	// FailureURL receives the redirect when the exchange or verification
	// fails.
	FailureURL string

	Logger *slog.Logger

	config oauth2.Config
}

// NewFlow builds a Flow; empty credentials fall back to the
// OAUTH2_GOOGLE_* environment variables.
func NewFlow(clientID, clientSecret, callbackURL string, verifier *Verifier, handleClaim ClaimHandler) *Flow {
	if clientID == "" {
		clientID = os.Getenv("OAUTH2_GOOGLE_CLIENT_ID")
	}
	if clientSecret == "" {
		clientSecret = os.Getenv("OAUTH2_GOOGLE_CLIENT_SECRET")
	}
	if callbackURL == "" {
		callbackURL = os.Getenv("OAUTH2_GOOGLE_CALLBACK_URL")
	}
	return &Flow{
		Verifier:    verifier,
		HandleClaim: handleClaim,
		FailureURL:  "/auth/google/fail",
		config: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     googleoauth.Endpoint,
		},
	}
}

func (f *Flow) logger() *slog.Logger {
	if f.Logger != nil {
		return f.Logger
	}
	return slog.Default()
}

// Redirect starts the flow: sets the state cookie and sends the browser to
// Google's consent screen.
func (f *Flow) Redirect(w http.ResponseWriter, r *http.Request) {
	state := newState()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		Expires:  time.Now().Add(10 * time.Minute),
		HttpOnly: true,
	})
	http.Redirect(w, r, f.config.AuthCodeURL(state), http.StatusFound)
}

// Callback finishes the flow. State mismatches are rejected outright;
// exchange or verification failures redirect to FailureURL.
func (f *Flow) Callback(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" || r.FormValue("state") != cookie.Value {
		http.SetCookie(w, &http.Cookie{Name: stateCookie, MaxAge: -1, Path: "/"})
		http.Error(w, "invalid oauth state", http.StatusBadRequest)
		return
	}
	http.SetCookie(w, &http.Cookie{Name: stateCookie, MaxAge: -1, Path: "/"})

	token, err := f.config.Exchange(r.Context(), r.FormValue("code"))
	if err != nil {
		f.logger().Warn("code exchange failed", "error", err)
		http.Redirect(w, r, f.FailureURL, http.StatusTemporaryRedirect)
		return
	}
	rawID, _ := token.Extra("id_token").(string)
	if rawID == "" {
		f.logger().Warn("token response missing id_token")
		http.Redirect(w, r, f.FailureURL, http.StatusTemporaryRedirect)
		return
	}

	claim, err := f.Verifier.Verify(r.Context(), rawID)
	if err != nil {
		f.logger().Warn("id token verification failed", "error", err)
		http.Redirect(w, r, f.FailureURL, http.StatusTemporaryRedirect)
		return
	}
	f.HandleClaim(claim, w, r)
}

// Register mounts the two flow legs on the router.
func (f *Flow) Register(r *mux.Router) {
	r.HandleFunc("/auth/google/redirect", f.Redirect).Methods(http.MethodGet)
	r.HandleFunc("/auth/google/callback", f.Callback).Methods(http.MethodGet)
}

func newState() string {
	b := make([]byte, 16)
	rand.Read(b)
	return base64.URLEncoding.EncodeToString(b)
}
