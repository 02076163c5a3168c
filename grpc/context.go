// Package grpc propagates the authenticated identity between HTTP handlers
// and gRPC services via metadata, and provides interceptors that validate
// session proofs carried in metadata.
package grpc

import (
	"context"
	"strconv"

	"google.golang.org/grpc/metadata"
)

// Default metadata keys for authentication context.
// These can be customized via Config if needed.
const (
	// DefaultMetadataKeyIdentityID is the default gRPC metadata key for the
	// authenticated identity id
	DefaultMetadataKeyIdentityID = "x-identity-id"

	// DefaultMetadataKeyProof is the default gRPC metadata key carrying a raw
	// session proof for server-side validation
	DefaultMetadataKeyProof = "authorization"
)

// Config holds the metadata key configuration for auth context.
type Config struct {
	// MetadataKeyIdentityID is the gRPC metadata key for the authenticated
	// identity id. Defaults to "x-identity-id".
	MetadataKeyIdentityID string

	// MetadataKeyProof is the gRPC metadata key carrying a session proof.
	// Defaults to "authorization".
	MetadataKeyProof string

	// TrustIdentityHeader when true accepts a bare x-identity-id without a
	// proof. Only safe behind a gateway that strips the header from outside
	// traffic.
	TrustIdentityHeader bool
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		MetadataKeyIdentityID: DefaultMetadataKeyIdentityID,
		MetadataKeyProof:      DefaultMetadataKeyProof,
		TrustIdentityHeader:   false,
	}
}

// EnsureDefaults fills in default values for any unset fields.
func (c *Config) EnsureDefaults() {
	if c.MetadataKeyIdentityID == "" {
		c.MetadataKeyIdentityID = DefaultMetadataKeyIdentityID
	}
	if c.MetadataKeyProof == "" {
		c.MetadataKeyProof = DefaultMetadataKeyProof
	}
}

// IdentityIDFromContext extracts the authenticated identity id from the
// gRPC context metadata. Returns 0 if no identity is authenticated.
func IdentityIDFromContext(ctx context.Context) int64 {
	return IdentityIDFromContextWithConfig(ctx, nil)
}

// IdentityIDFromContextWithConfig extracts the identity id using the
// specified config.
func IdentityIDFromContextWithConfig(ctx context.Context, config *Config) int64 {
	if config == nil {
		config = DefaultConfig()
	}
	config.EnsureDefaults()

	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return 0
	}
	if values := md.Get(config.MetadataKeyIdentityID); len(values) > 0 {
		if id, err := strconv.ParseInt(values[0], 10, 64); err == nil && id > 0 {
			return id
		}
	}
	return 0
}

// IdentityIDToOutgoingContext adds the identity id to outgoing gRPC
// context metadata.
func IdentityIDToOutgoingContext(ctx context.Context, identityID int64) context.Context {
	return IdentityIDToOutgoingContextWithKey(ctx, identityID, DefaultMetadataKeyIdentityID)
}

// IdentityIDToOutgoingContextWithKey adds the identity id with a custom key.
func IdentityIDToOutgoingContextWithKey(ctx context.Context, identityID int64, key string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, key, strconv.FormatInt(identityID, 10))
}

// ProofToOutgoingContext adds a raw session proof to outgoing gRPC context
// metadata, for services that validate proofs themselves.
func ProofToOutgoingContext(ctx context.Context, proof string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, DefaultMetadataKeyProof, proof)
}

// IsAuthenticated returns true if there is an authenticated identity in the
// context.
func IsAuthenticated(ctx context.Context) bool {
	return IdentityIDFromContext(ctx) > 0
}

// IsAuthenticatedWithConfig returns true using the specified config.
func IsAuthenticatedWithConfig(ctx context.Context, config *Config) bool {
	return IdentityIDFromContextWithConfig(ctx, config) > 0
}
