package authbridge

import "context"

// ExternalClaim is the normalized result of verifying a provider-issued
// token: the stable subject id the provider assigned to the principal plus
// whatever profile attributes the token carried.
type ExternalClaim struct {
	Provider AuthMethod
	Subject  string
	Email    string
	Phone    string
	Name     string
	Picture  string
}

// ExternalVerifier validates a raw provider token and returns the claim it
// asserts. Implementations never mutate state; verification failures are
// invalid_credential errors and provider outages/timeouts are
// provider_unavailable errors.
type ExternalVerifier interface {
	Verify(ctx context.Context, rawToken string) (*ExternalClaim, error)
}
