// Package grpcapi carries the auth core onto gRPC: interceptors that verify
// bearer tokens from metadata and enforce the permission matrix per method.
package grpcapi

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"rollcall.app/internal/auth"
)

const healthCheckPrefix = "/grpc.health.v1.Health/"

// Authenticator verifies an access token and resolves its namespace.
// *auth.Service implements it.
type Authenticator interface {
	Authenticate(accessToken string) (auth.IdentityClaims, string, error)
}

// AuthOption configures UnaryAuth.
type AuthOption func(*authConfig)

type authConfig struct {
	excluded map[string]bool
}

// WithExcludedMethods skips authentication for fully qualified methods
// ("/package.Service/Method"). Health checks are always excluded.
func WithExcludedMethods(methods ...string) AuthOption {
	return func(cfg *authConfig) {
		for _, m := range methods {
			cfg.excluded[m] = true
		}
	}
}

// UnaryAuth verifies the "authorization: Bearer" metadata and stores the
// identity and namespace in the handler context.
func UnaryAuth(authn Authenticator, opts ...AuthOption) grpc.UnaryServerInterceptor {
	cfg := &authConfig{excluded: make(map[string]bool)}
	for _, o := range opts {
		o(cfg)
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if cfg.excluded[info.FullMethod] || strings.HasPrefix(info.FullMethod, healthCheckPrefix) {
			return handler(ctx, req)
		}
		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing metadata")
		}
		token := bearerFromMD(md)
		if token == "" {
			return nil, status.Error(codes.Unauthenticated, "missing_token")
		}
		identity, namespace, err := authn.Authenticate(token)
		if err != nil {
			return nil, toStatus(err)
		}
		ctx = auth.ContextWithIdentity(ctx, identity)
		ctx = auth.ContextWithNamespace(ctx, namespace)
		return handler(ctx, req)
	}
}

// UnaryRequire checks op against the caller's role. With no methods listed it
// applies to every call; otherwise only to the listed ones. An entry ending in
// "/" covers a whole service. Requires UnaryAuth to run first.
func UnaryRequire(gate *auth.Gate, op auth.Operation, methods ...string) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if len(methods) > 0 && !matchMethod(methods, info.FullMethod) {
			return handler(ctx, req)
		}
		identity, ok := auth.IdentityFromContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing identity")
		}
		if err := gate.Require(identity, op); err != nil {
			return nil, toStatus(err)
		}
		return handler(ctx, req)
	}
}

func matchMethod(methods []string, full string) bool {
	for _, m := range methods {
		if m == full || (strings.HasSuffix(m, "/") && strings.HasPrefix(full, m)) {
			return true
		}
	}
	return false
}

func bearerFromMD(md metadata.MD) string {
	for _, v := range md.Get("authorization") {
		v = strings.TrimSpace(v)
		if len(v) > 7 && strings.EqualFold(v[:7], "bearer ") {
			return strings.TrimSpace(v[7:])
		}
	}
	return ""
}

// toStatus maps core errors onto gRPC codes. Token failures carry their kind
// as the status message.
func toStatus(err error) error {
	var tokenErr *auth.TokenError
	switch {
	case errors.As(err, &tokenErr):
		return status.Error(codes.Unauthenticated, tokenErr.Kind.String())
	case errors.Is(err, auth.ErrRevoked):
		return status.Error(codes.Unauthenticated, "revoked")
	case errors.Is(err, auth.ErrForbidden):
		return status.Error(codes.PermissionDenied, "permission denied")
	case errors.Is(err, auth.ErrNamespace), errors.Is(err, auth.ErrInvalidInput):
		return status.Error(codes.InvalidArgument, "invalid organization")
	case errors.Is(err, auth.ErrTransientStorage):
		return status.Error(codes.Unavailable, "storage unavailable")
	default:
		return status.Error(codes.Internal, "internal error")
	}
}
