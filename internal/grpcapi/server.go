package grpcapi

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	channelzsvc "google.golang.org/grpc/channelz/service"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"rollcall.app/internal/obs"
)

const serviceName = "rollcall"

// ChannelzService prefixes every method of the channelz introspection service.
const ChannelzService = "/grpc.channelz.v1.Channelz/"

// NewServer builds a gRPC server with logging and authentication
// interceptors and the standard health service registered. Callers register
// their own services on the returned server before serving.
func NewServer(authn Authenticator, logger *slog.Logger, extra ...grpc.UnaryServerInterceptor) (*grpc.Server, *health.Server) {
	logger = obs.ResolveLogger(logger)
	chain := append([]grpc.UnaryServerInterceptor{UnaryLogging(logger), UnaryAuth(authn)}, extra...)
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(chain...))

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(serviceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	return srv, hs
}

// UnaryLogging writes one structured entry per call.
func UnaryLogging(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.InfoContext(ctx, "rpc_complete",
			"method", info.FullMethod,
			"code", status.Code(err).String(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return resp, err
	}
}

// RegisterChannelz exposes connection internals on srv. Guard it with
// UnaryRequire on ChannelzService.
func RegisterChannelz(srv *grpc.Server) {
	channelzsvc.RegisterChannelzServiceToServer(srv)
}
