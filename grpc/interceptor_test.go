package grpc

import (
	"context"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	ab "github.com/rkolluri/authbridge"
)

// stubIssuer accepts exactly one proof value.
type stubIssuer struct {
	proof      string
	identityID int64
}

func (s *stubIssuer) Issue(ctx context.Context, identity *ab.Identity, method ab.AuthMethod) (*ab.Proof, error) {
	return &ab.Proof{Value: s.proof}, nil
}

func (s *stubIssuer) Validate(ctx context.Context, value string) (int64, ab.AuthMethod, error) {
	if value != s.proof {
		return 0, "", ab.NewAuthError(ab.ErrCodeInvalidCredential, "invalid proof", "")
	}
	return s.identityID, ab.MethodPassword, nil
}

func (s *stubIssuer) Revoke(ctx context.Context, value string) error { return nil }

func TestDefaultInterceptorConfig(t *testing.T) {
	config := DefaultInterceptorConfig(nil)
	if !config.RequireAuth {
		t.Error("expected RequireAuth to be true by default")
	}
	if config.PublicMethods == nil {
		t.Error("expected PublicMethods to be initialized")
	}
	if config.Config == nil {
		t.Error("expected Config to be initialized")
	}
}

func TestNewPublicMethodsConfig(t *testing.T) {
	config := NewPublicMethodsConfig(nil, "/pkg.Svc/Method1", "/pkg.Svc/Method2")
	if !config.RequireAuth {
		t.Error("expected RequireAuth to be true")
	}
	if !config.PublicMethods["/pkg.Svc/Method1"] {
		t.Error("expected Method1 to be public")
	}
	if !config.PublicMethods["/pkg.Svc/Method2"] {
		t.Error("expected Method2 to be public")
	}
	if config.PublicMethods["/pkg.Svc/Method3"] {
		t.Error("expected Method3 to not be public")
	}
}

func TestOptionalAuthConfig(t *testing.T) {
	config := OptionalAuthConfig(nil)
	if config.RequireAuth {
		t.Error("expected RequireAuth to be false")
	}
}

func TestUnaryAuthInterceptor_RequireAuth_NoProof(t *testing.T) {
	interceptor := UnaryAuthInterceptor(nil)

	ctx := context.Background()
	info := &grpc.UnaryServerInfo{FullMethod: "/pkg.Svc/Method"}

	_, err := interceptor(ctx, nil, info, func(ctx context.Context, req any) (any, error) {
		t.Error("handler should not be called")
		return nil, nil
	})

	if err == nil {
		t.Fatal("expected error for unauthenticated request")
	}

	st, ok := status.FromError(err)
	if !ok {
		t.Fatalf("expected grpc status error, got %v", err)
	}
	if st.Code() != codes.Unauthenticated {
		t.Errorf("expected Unauthenticated code, got %v", st.Code())
	}
}

func TestUnaryAuthInterceptor_ValidProof(t *testing.T) {
	config := DefaultInterceptorConfig(&stubIssuer{proof: "good-proof", identityID: 42})
	interceptor := UnaryAuthInterceptor(config)

	md := metadata.Pairs(DefaultMetadataKeyProof, "Bearer good-proof")
	ctx := metadata.NewIncomingContext(context.Background(), md)
	info := &grpc.UnaryServerInfo{FullMethod: "/pkg.Svc/Method"}

	handlerCalled := false
	_, err := interceptor(ctx, nil, info, func(ctx context.Context, req any) (any, error) {
		handlerCalled = true
		if id := IdentityIDFromContext(ctx); id != 42 {
			t.Errorf("expected resolved identity id 42, got %d", id)
		}
		return "result", nil
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !handlerCalled {
		t.Error("handler should have been called")
	}
}

func TestUnaryAuthInterceptor_BadProof(t *testing.T) {
	config := DefaultInterceptorConfig(&stubIssuer{proof: "good-proof", identityID: 42})
	interceptor := UnaryAuthInterceptor(config)

	md := metadata.Pairs(DefaultMetadataKeyProof, "Bearer wrong")
	ctx := metadata.NewIncomingContext(context.Background(), md)
	info := &grpc.UnaryServerInfo{FullMethod: "/pkg.Svc/Method"}

	_, err := interceptor(ctx, nil, info, func(ctx context.Context, req any) (any, error) {
		t.Error("handler should not be called")
		return nil, nil
	})

	if status.Code(err) != codes.Unauthenticated {
		t.Errorf("expected Unauthenticated code, got %v", status.Code(err))
	}
}

func TestUnaryAuthInterceptor_TrustedHeader(t *testing.T) {
	config := DefaultInterceptorConfig(nil)
	config.Config.TrustIdentityHeader = true
	interceptor := UnaryAuthInterceptor(config)

	md := metadata.Pairs(DefaultMetadataKeyIdentityID, "7")
	ctx := metadata.NewIncomingContext(context.Background(), md)
	info := &grpc.UnaryServerInfo{FullMethod: "/pkg.Svc/Method"}

	handlerCalled := false
	_, err := interceptor(ctx, nil, info, func(ctx context.Context, req any) (any, error) {
		handlerCalled = true
		return "result", nil
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !handlerCalled {
		t.Error("handler should have been called")
	}
}

func TestUnaryAuthInterceptor_UntrustedHeaderRejected(t *testing.T) {
	interceptor := UnaryAuthInterceptor(DefaultInterceptorConfig(nil))

	// Bare identity header without TrustIdentityHeader must not authenticate.
	md := metadata.Pairs(DefaultMetadataKeyIdentityID, "7")
	ctx := metadata.NewIncomingContext(context.Background(), md)
	info := &grpc.UnaryServerInfo{FullMethod: "/pkg.Svc/Method"}

	_, err := interceptor(ctx, nil, info, func(ctx context.Context, req any) (any, error) {
		t.Error("handler should not be called")
		return nil, nil
	})

	if status.Code(err) != codes.Unauthenticated {
		t.Errorf("expected Unauthenticated code, got %v", status.Code(err))
	}
}

func TestUnaryAuthInterceptor_PublicMethod(t *testing.T) {
	config := NewPublicMethodsConfig(nil, "/pkg.Svc/PublicMethod")
	interceptor := UnaryAuthInterceptor(config)

	ctx := context.Background() // No identity
	info := &grpc.UnaryServerInfo{FullMethod: "/pkg.Svc/PublicMethod"}

	handlerCalled := false
	_, err := interceptor(ctx, nil, info, func(ctx context.Context, req any) (any, error) {
		handlerCalled = true
		return "result", nil
	})

	if err != nil {
		t.Fatalf("unexpected error for public method: %v", err)
	}
	if !handlerCalled {
		t.Error("handler should have been called for public method")
	}
}

func TestUnaryAuthInterceptor_OptionalAuth(t *testing.T) {
	config := OptionalAuthConfig(nil)
	interceptor := UnaryAuthInterceptor(config)

	ctx := context.Background() // No identity
	info := &grpc.UnaryServerInfo{FullMethod: "/pkg.Svc/Method"}

	handlerCalled := false
	_, err := interceptor(ctx, nil, info, func(ctx context.Context, req any) (any, error) {
		handlerCalled = true
		return "result", nil
	})

	if err != nil {
		t.Fatalf("unexpected error with optional auth: %v", err)
	}
	if !handlerCalled {
		t.Error("handler should have been called with optional auth")
	}
}

// mockServerStream implements grpc.ServerStream for testing
type mockServerStream struct {
	ctx context.Context
}

func (m *mockServerStream) Context() context.Context     { return m.ctx }
func (m *mockServerStream) SetHeader(metadata.MD) error  { return nil }
func (m *mockServerStream) SendHeader(metadata.MD) error { return nil }
func (m *mockServerStream) SetTrailer(metadata.MD)       {}
func (m *mockServerStream) SendMsg(any) error            { return nil }
func (m *mockServerStream) RecvMsg(any) error            { return nil }

func TestStreamAuthInterceptor_RequireAuth_NoProof(t *testing.T) {
	interceptor := StreamAuthInterceptor(nil)

	stream := &mockServerStream{ctx: context.Background()}
	info := &grpc.StreamServerInfo{FullMethod: "/pkg.Svc/StreamMethod"}

	err := interceptor(nil, stream, info, func(srv any, ss grpc.ServerStream) error {
		t.Error("handler should not be called")
		return nil
	})

	if err == nil {
		t.Fatal("expected error for unauthenticated stream")
	}

	st, ok := status.FromError(err)
	if !ok {
		t.Fatalf("expected grpc status error, got %v", err)
	}
	if st.Code() != codes.Unauthenticated {
		t.Errorf("expected Unauthenticated code, got %v", st.Code())
	}
}

func TestStreamAuthInterceptor_ValidProof(t *testing.T) {
	config := DefaultInterceptorConfig(&stubIssuer{proof: "stream-proof", identityID: 9})
	interceptor := StreamAuthInterceptor(config)

	md := metadata.Pairs(DefaultMetadataKeyProof, "stream-proof")
	ctx := metadata.NewIncomingContext(context.Background(), md)
	stream := &mockServerStream{ctx: ctx}
	info := &grpc.StreamServerInfo{FullMethod: "/pkg.Svc/StreamMethod"}

	handlerCalled := false
	err := interceptor(nil, stream, info, func(srv any, ss grpc.ServerStream) error {
		handlerCalled = true
		if id := IdentityIDFromContext(ss.Context()); id != 9 {
			t.Errorf("expected resolved identity id 9, got %d", id)
		}
		return nil
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !handlerCalled {
		t.Error("handler should have been called")
	}
}

func TestStreamAuthInterceptor_PublicMethod(t *testing.T) {
	config := NewPublicMethodsConfig(nil, "/pkg.Svc/PublicStream")
	interceptor := StreamAuthInterceptor(config)

	stream := &mockServerStream{ctx: context.Background()}
	info := &grpc.StreamServerInfo{FullMethod: "/pkg.Svc/PublicStream"}

	handlerCalled := false
	err := interceptor(nil, stream, info, func(srv any, ss grpc.ServerStream) error {
		handlerCalled = true
		return nil
	})

	if err != nil {
		t.Fatalf("unexpected error for public stream: %v", err)
	}
	if !handlerCalled {
		t.Error("handler should have been called for public stream")
	}
}
