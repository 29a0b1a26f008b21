package grpcapi

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"

	"google.golang.org/grpc"
	channelzpb "google.golang.org/grpc/channelz/grpc_channelz_v1"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"rollcall.app/internal/auth"
)

const bufSize = 1024 * 1024

type fakeAuthn struct {
	tokens map[string]auth.IdentityClaims
	err    error
}

func (f fakeAuthn) Authenticate(token string) (auth.IdentityClaims, string, error) {
	if f.err != nil {
		return auth.IdentityClaims{}, "", f.err
	}
	id, ok := f.tokens[token]
	if !ok {
		return auth.IdentityClaims{}, "", &auth.TokenError{Kind: auth.TokenInvalidSignature}
	}
	return id, "org_" + id.OrganizationID, nil
}

var memberInfo = &grpc.UnaryServerInfo{FullMethod: "/rollcall.v1.Members/Create"}

// withBearer turns the outgoing metadata a client would send into the
// incoming metadata a server sees.
func withBearer(token string) context.Context {
	out, _ := metadata.FromOutgoingContext(WithBearer(context.Background(), token))
	return metadata.NewIncomingContext(context.Background(), out)
}

func TestUnaryAuth(t *testing.T) {
	authn := fakeAuthn{tokens: map[string]auth.IdentityClaims{
		"good": {SubjectID: "u1", OrganizationID: "acme", Role: auth.RoleAdmin},
	}}
	interceptor := UnaryAuth(authn, WithExcludedMethods("/rollcall.v1.Public/Ping"))

	var seen auth.IdentityClaims
	var ns string
	handler := func(ctx context.Context, req any) (any, error) {
		seen, _ = auth.IdentityFromContext(ctx)
		ns, _ = auth.NamespaceFromContext(ctx)
		return "ok", nil
	}

	if _, err := interceptor(withBearer("good"), nil, memberInfo, handler); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if seen.SubjectID != "u1" || ns != "org_acme" {
		t.Fatalf("identity not propagated: %+v %q", seen, ns)
	}

	cases := []struct {
		name string
		ctx  context.Context
		msg  string
	}{
		{"no metadata", context.Background(), "missing metadata"},
		{"no token", metadata.NewIncomingContext(context.Background(), metadata.Pairs("x", "y")), "missing_token"},
		{"bad token", withBearer("forged"), "invalid_signature"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := interceptor(tc.ctx, nil, memberInfo, handler)
			st, _ := status.FromError(err)
			if st.Code() != codes.Unauthenticated || st.Message() != tc.msg {
				t.Fatalf("expected Unauthenticated %q, got %v", tc.msg, err)
			}
		})
	}

	if _, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/rollcall.v1.Public/Ping"}, handler); err != nil {
		t.Fatalf("excluded method must skip auth: %v", err)
	}
}

func TestUnaryAuthStorageFailure(t *testing.T) {
	interceptor := UnaryAuth(fakeAuthn{err: &auth.NamespaceError{Reason: "too long"}})
	_, err := interceptor(withBearer("x"), nil, memberInfo, func(ctx context.Context, req any) (any, error) { return nil, nil })
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestUnaryRequire(t *testing.T) {
	gate := auth.NewGate(auth.DefaultMatrix())
	interceptor := UnaryRequire(gate, auth.OpMemberCreate, memberInfo.FullMethod)
	handler := func(ctx context.Context, req any) (any, error) { return "ok", nil }

	member := auth.ContextWithIdentity(context.Background(), auth.IdentityClaims{SubjectID: "u2", Role: auth.RoleMember})
	if _, err := interceptor(member, nil, memberInfo, handler); status.Code(err) != codes.PermissionDenied {
		t.Fatalf("expected PermissionDenied, got %v", err)
	}
	admin := auth.ContextWithIdentity(context.Background(), auth.IdentityClaims{SubjectID: "u1", Role: auth.RoleAdmin})
	if _, err := interceptor(admin, nil, memberInfo, handler); err != nil {
		t.Fatalf("admin must pass: %v", err)
	}
	if _, err := interceptor(context.Background(), nil, memberInfo, handler); status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expected Unauthenticated without identity, got %v", err)
	}
	other := &grpc.UnaryServerInfo{FullMethod: "/rollcall.v1.Members/List"}
	if _, err := interceptor(member, nil, other, handler); err != nil {
		t.Fatalf("unlisted method must pass through: %v", err)
	}
}

func serveBufconn(t *testing.T, srv *grpc.Server) *grpc.ClientConn {
	t.Helper()
	listener := bufconn.Listen(bufSize)
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			t.Logf("grpc serve error: %v", err)
		}
	}()
	dialer := func(ctx context.Context, _ string) (net.Conn, error) {
		return listener.DialContext(ctx)
	}
	conn, err := grpc.NewClient(
		"passthrough:///bufnet",
		grpc.WithContextDialer(dialer),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial bufnet: %v", err)
	}
	t.Cleanup(func() {
		srv.GracefulStop()
		_ = conn.Close()
		_ = listener.Close()
	})
	return conn
}

func TestHealthBypassesAuth(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv, _ := NewServer(fakeAuthn{}, logger)
	conn := serveBufconn(t, srv)

	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: serviceName})
	if err != nil {
		t.Fatalf("health check: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected SERVING, got %v", resp.GetStatus())
	}
}

func TestChannelzRequiresAdmin(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	authn := fakeAuthn{tokens: map[string]auth.IdentityClaims{
		"admin-token":   {SubjectID: "u1", OrganizationID: "acme", Role: auth.RoleAdmin},
		"manager-token": {SubjectID: "u2", OrganizationID: "acme", Role: auth.RoleManager},
	}}
	gate := auth.NewGate(auth.DefaultMatrix())
	srv, _ := NewServer(authn, logger, UnaryRequire(gate, auth.OpOrganizationUpdate, ChannelzService))
	RegisterChannelz(srv)
	client := channelzpb.NewChannelzClient(serveBufconn(t, srv))

	cases := []struct {
		name  string
		token string
		code  codes.Code
	}{
		{"anonymous", "", codes.Unauthenticated},
		{"manager", "manager-token", codes.PermissionDenied},
		{"admin", "admin-token", codes.OK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := WithBearer(context.Background(), tc.token)
			_, err := client.GetServers(ctx, &channelzpb.GetServersRequest{})
			if status.Code(err) != tc.code {
				t.Fatalf("expected %v, got %v", tc.code, err)
			}
		})
	}
}
