// Package firebase verifies Firebase Authentication ID tokens, used here
// for phone-OTP sign-in. Firebase runs the SMS challenge; the client hands
// us the resulting ID token and we check its signature against Google's
// published securetoken certificates.
package firebase

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/rkolluri/authbridge"
)

// DefaultCertsURL serves the x509 certificates Firebase signs ID tokens
// with, keyed by kid.
const DefaultCertsURL = "https://www.googleapis.com/robot/v1/metadata/x509/securetoken@system.gserviceaccount.com"

// Verifier validates Firebase ID tokens for a single project.
type Verifier struct {
	// ProjectID is the Firebase project; it is both the expected audience
	// and the issuer suffix.
	ProjectID string

	// CertsURL overrides DefaultCertsURL, mainly for tests.
	CertsURL string

	// Client fetches certificates; defaults to an http.Client with a 10s
	// timeout.
	Client *http.Client

	Logger *slog.Logger

	mu      sync.Mutex
	certs   map[string]*rsa.PublicKey
	refresh time.Time
}

// NewVerifier returns a Verifier for the given Firebase project.
func NewVerifier(projectID string) *Verifier {
	return &Verifier{ProjectID: projectID}
}

func (v *Verifier) logger() *slog.Logger {
	if v.Logger != nil {
		return v.Logger
	}
	return slog.Default()
}

func (v *Verifier) certsURL() string {
	if v.CertsURL != "" {
		return v.CertsURL
	}
	return DefaultCertsURL
}

func (v *Verifier) client() *http.Client {
	if v.Client != nil {
		return v.Client
	}
	return &http.Client{Timeout: 10 * time.Second}
}

// Verify checks the raw ID token. The token must be RS256-signed by a
// current securetoken certificate, issued for this project, unexpired and
// carry a phone_number claim. Certificate fetch failures are
// provider_unavailable; everything else about a bad token is
// invalid_credential.
func (v *Verifier) Verify(ctx context.Context, rawToken string) (*authbridge.ExternalClaim, error) {
	token, err := jwt.Parse(rawToken, func(token *jwt.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("token has no kid header")
		}
		return v.keyFor(ctx, kid)
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithAudience(v.ProjectID),
		jwt.WithIssuer("https://securetoken.google.com/"+v.ProjectID),
	)
	if err != nil {
		if authbridge.ErrorCode(err) == authbridge.ErrCodeProviderUnavailable {
			return nil, err
		}
		v.logger().Warn("firebase token rejected", "error", err)
		return nil, authbridge.NewAuthError(authbridge.ErrCodeInvalidCredential, "invalid firebase token", "token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, authbridge.NewAuthError(authbridge.ErrCodeInvalidCredential, "invalid firebase token claims", "token")
	}
	sub, _ := claims.GetSubject()
	if sub == "" {
		return nil, authbridge.NewAuthError(authbridge.ErrCodeInvalidCredential, "firebase token subject missing", "token")
	}
	phone, _ := claims["phone_number"].(string)
	if phone == "" {
		return nil, authbridge.NewAuthError(authbridge.ErrCodeInvalidCredential, "firebase token has no phone number", "token")
	}

	claim := &authbridge.ExternalClaim{
		Provider: authbridge.MethodPhone,
		Subject:  sub,
		Phone:    phone,
	}
	if name, ok := claims["name"].(string); ok {
		claim.Name = name
	}
	return claim, nil
}

// keyFor returns the public key for kid, refreshing the certificate cache
// when the kid is unknown or the cache is stale.
func (v *Verifier) keyFor(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if key, ok := v.certs[kid]; ok && time.Now().Before(v.refresh) {
		return key, nil
	}
	if err := v.fetchCertsLocked(ctx); err != nil {
		return nil, err
	}
	key, ok := v.certs[kid]
	if !ok {
		return nil, fmt.Errorf("no certificate for kid %q", kid)
	}
	return key, nil
}

func (v *Verifier) fetchCertsLocked(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.certsURL(), nil)
	if err != nil {
		return err
	}
	resp, err := v.client().Do(req)
	if err != nil {
		return authbridge.NewAuthError(authbridge.ErrCodeProviderUnavailable, "could not fetch firebase certificates", "")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return authbridge.NewAuthError(authbridge.ErrCodeProviderUnavailable,
			fmt.Sprintf("firebase certificate endpoint returned %d", resp.StatusCode), "")
	}

	var raw map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return authbridge.NewAuthError(authbridge.ErrCodeProviderUnavailable, "malformed firebase certificate response", "")
	}

	certs := make(map[string]*rsa.PublicKey, len(raw))
	for kid, pemCert := range raw {
		block, _ := pem.Decode([]byte(pemCert))
		if block == nil {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			continue
		}
		if key, ok := cert.PublicKey.(*rsa.PublicKey); ok {
			certs[kid] = key
		}
	}
	if len(certs) == 0 {
		return authbridge.NewAuthError(authbridge.ErrCodeProviderUnavailable, "no usable firebase certificates", "")
	}

	v.certs = certs
	v.refresh = time.Now().Add(cacheTTL(resp.Header.Get("Cache-Control")))
	return nil
}

// cacheTTL parses max-age out of a Cache-Control header, defaulting to an
// hour.
func cacheTTL(header string) time.Duration {
	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		if after, ok := strings.CutPrefix(part, "max-age="); ok {
			if secs, err := strconv.Atoi(after); err == nil && secs > 0 {
				return time.Duration(secs) * time.Second
			}
		}
	}
	return time.Hour
}

var _ authbridge.ExternalVerifier = (*Verifier)(nil)
