package grpc

import (
	"context"
	"strconv"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	ab "github.com/rkolluri/authbridge"
)

// InterceptorConfig configures the auth interceptor behavior.
type InterceptorConfig struct {
	// Config holds the metadata key configuration.
	*Config

	// Issuer validates session proofs carried in the proof metadata key.
	// When nil, only TrustIdentityHeader can authenticate a request.
	Issuer ab.Issuer

	// RequireAuth when true rejects unauthenticated requests.
	// When false, requests proceed but IdentityIDFromContext returns 0.
	RequireAuth bool

	// PublicMethods is a set of method names that don't require auth.
	// Only used when RequireAuth is true.
	// Keys should be full method names like "/package.Service/Method".
	PublicMethods map[string]bool
}

// DefaultInterceptorConfig returns a config that requires auth for all methods.
func DefaultInterceptorConfig(issuer ab.Issuer) *InterceptorConfig {
	return &InterceptorConfig{
		Config:        DefaultConfig(),
		Issuer:        issuer,
		RequireAuth:   true,
		PublicMethods: make(map[string]bool),
	}
}

// NewPublicMethodsConfig creates a config with the specified public methods.
func NewPublicMethodsConfig(issuer ab.Issuer, publicMethods ...string) *InterceptorConfig {
	config := DefaultInterceptorConfig(issuer)
	for _, method := range publicMethods {
		config.PublicMethods[method] = true
	}
	return config
}

// OptionalAuthConfig returns a config that allows unauthenticated requests.
func OptionalAuthConfig(issuer ab.Issuer) *InterceptorConfig {
	config := DefaultInterceptorConfig(issuer)
	config.RequireAuth = false
	return config
}

// UnaryAuthInterceptor returns a gRPC unary interceptor that resolves the
// caller's identity from metadata. A proof in the proof key is validated
// through the Issuer and wins over a bare identity header; the resolved id
// is written back into incoming metadata so handlers read one key.
func UnaryAuthInterceptor(config *InterceptorConfig) grpc.UnaryServerInterceptor {
	config = normalized(config)

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, identityID := resolveIdentity(ctx, config)

		if config.RequireAuth && !config.PublicMethods[info.FullMethod] {
			if identityID == 0 {
				return nil, status.Error(codes.Unauthenticated, "authentication required")
			}
		}

		return handler(ctx, req)
	}
}

// StreamAuthInterceptor returns the stream counterpart of
// UnaryAuthInterceptor.
func StreamAuthInterceptor(config *InterceptorConfig) grpc.StreamServerInterceptor {
	config = normalized(config)

	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, identityID := resolveIdentity(ss.Context(), config)

		if config.RequireAuth && !config.PublicMethods[info.FullMethod] {
			if identityID == 0 {
				return status.Error(codes.Unauthenticated, "authentication required")
			}
		}

		return handler(srv, &wrappedStream{ServerStream: ss, ctx: ctx})
	}
}

func normalized(config *InterceptorConfig) *InterceptorConfig {
	if config == nil {
		config = DefaultInterceptorConfig(nil)
	}
	if config.Config == nil {
		config.Config = DefaultConfig()
	}
	config.Config.EnsureDefaults()
	if config.PublicMethods == nil {
		config.PublicMethods = make(map[string]bool)
	}
	return config
}

// resolveIdentity authenticates the request and returns a context whose
// incoming metadata carries the resolved identity id.
func resolveIdentity(ctx context.Context, config *InterceptorConfig) (context.Context, int64) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ctx, 0
	}

	var identityID int64
	if config.Issuer != nil {
		if values := md.Get(config.Config.MetadataKeyProof); len(values) > 0 && values[0] != "" {
			proof := strings.TrimPrefix(values[0], "Bearer ")
			if id, _, err := config.Issuer.Validate(ctx, proof); err == nil {
				identityID = id
			}
		}
	}
	if identityID == 0 && config.Config.TrustIdentityHeader {
		if values := md.Get(config.Config.MetadataKeyIdentityID); len(values) > 0 {
			if id, err := strconv.ParseInt(values[0], 10, 64); err == nil && id > 0 {
				identityID = id
			}
		}
	}
	if identityID == 0 {
		return ctx, 0
	}

	md = md.Copy()
	md.Set(config.Config.MetadataKeyIdentityID, strconv.FormatInt(identityID, 10))
	return metadata.NewIncomingContext(ctx, md), identityID
}

type wrappedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (w *wrappedStream) Context() context.Context {
	return w.ctx
}
