package firebase

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/rkolluri/authbridge"
)

const testProject = "demo-project"

type testSigner struct {
	key    *rsa.PrivateKey
	kid    string
	certs  map[string]string
	server *httptest.Server
}

// newTestSigner generates an RSA key, publishes its self-signed certificate
// under a kid on a local cert endpoint, and can mint tokens against it.
func newTestSigner(t *testing.T) *testSigner {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "securetoken test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})

	s := &testSigner{
		key:   key,
		kid:   "test-kid-1",
		certs: map[string]string{"test-kid-1": string(certPEM)},
	}
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		json.NewEncoder(w).Encode(s.certs)
	}))
	t.Cleanup(s.server.Close)
	return s
}

func (s *testSigner) sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = s.kid
	signed, err := token.SignedString(s.key)
	if err != nil {
		t.Fatal(err)
	}
	return signed
}

func validClaims() jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"iss":          "https://securetoken.google.com/" + testProject,
		"aud":          testProject,
		"sub":          "firebase-uid-1",
		"phone_number": "+15551230001",
		"iat":          now.Unix(),
		"exp":          now.Add(time.Hour).Unix(),
	}
}

func TestVerifyValidToken(t *testing.T) {
	signer := newTestSigner(t)
	v := &Verifier{ProjectID: testProject, CertsURL: signer.server.URL}

	claims := validClaims()
	claims["name"] = "Eve"
	claim, err := v.Verify(context.Background(), signer.sign(t, claims))
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if claim.Provider != authbridge.MethodPhone {
		t.Errorf("expected phone provider, got %q", claim.Provider)
	}
	if claim.Subject != "firebase-uid-1" || claim.Phone != "+15551230001" {
		t.Errorf("unexpected claim: %+v", claim)
	}
	if claim.Name != "Eve" {
		t.Errorf("expected name mapped, got %q", claim.Name)
	}
}

func TestVerifyRejectsBadTokens(t *testing.T) {
	signer := newTestSigner(t)
	v := &Verifier{ProjectID: testProject, CertsURL: signer.server.URL}
	ctx := context.Background()

	expired := validClaims()
	expired["exp"] = time.Now().Add(-time.Hour).Unix()

	wrongAudience := validClaims()
	wrongAudience["aud"] = "other-project"

	wrongIssuer := validClaims()
	wrongIssuer["iss"] = "https://securetoken.google.com/other-project"

	noPhone := validClaims()
	delete(noPhone, "phone_number")

	noSubject := validClaims()
	delete(noSubject, "sub")

	cases := map[string]jwt.MapClaims{
		"expired":        expired,
		"wrong audience": wrongAudience,
		"wrong issuer":   wrongIssuer,
		"no phone":       noPhone,
		"no subject":     noSubject,
	}
	for name, claims := range cases {
		_, err := v.Verify(ctx, signer.sign(t, claims))
		if authbridge.ErrorCode(err) != authbridge.ErrCodeInvalidCredential {
			t.Errorf("%s: expected invalid_credential, got %v", name, err)
		}
	}

	if _, err := v.Verify(ctx, "not-a-jwt"); authbridge.ErrorCode(err) != authbridge.ErrCodeInvalidCredential {
		t.Errorf("garbage: expected invalid_credential, got %v", err)
	}
}

func TestVerifyRejectsForeignKey(t *testing.T) {
	published := newTestSigner(t)
	foreign := newTestSigner(t)
	foreign.kid = published.kid // same kid, different key

	v := &Verifier{ProjectID: testProject, CertsURL: published.server.URL}
	_, err := v.Verify(context.Background(), foreign.sign(t, validClaims()))
	if authbridge.ErrorCode(err) != authbridge.ErrCodeInvalidCredential {
		t.Errorf("expected invalid_credential for a foreign signature, got %v", err)
	}
}

func TestVerifyCertEndpointDown(t *testing.T) {
	signer := newTestSigner(t)
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(down.Close)

	v := &Verifier{ProjectID: testProject, CertsURL: down.URL}
	_, err := v.Verify(context.Background(), signer.sign(t, validClaims()))
	if authbridge.ErrorCode(err) != authbridge.ErrCodeProviderUnavailable {
		t.Errorf("expected provider_unavailable, got %v", err)
	}
}

func TestCertCacheReused(t *testing.T) {
	signer := newTestSigner(t)

	var hits int
	counting := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Header().Set("Cache-Control", "public, max-age=3600")
		json.NewEncoder(w).Encode(signer.certs)
	}))
	t.Cleanup(counting.Close)

	v := &Verifier{ProjectID: testProject, CertsURL: counting.URL}
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := v.Verify(ctx, signer.sign(t, validClaims())); err != nil {
			t.Fatalf("verify %d failed: %v", i, err)
		}
	}
	if hits != 1 {
		t.Errorf("expected one certificate fetch, got %d", hits)
	}
}

func TestCacheTTL(t *testing.T) {
	if got := cacheTTL("public, max-age=1800, must-revalidate"); got != 30*time.Minute {
		t.Errorf("expected 30m, got %v", got)
	}
	if got := cacheTTL(""); got != time.Hour {
		t.Errorf("expected default 1h, got %v", got)
	}
}
