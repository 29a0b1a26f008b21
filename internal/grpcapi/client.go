package grpcapi

import (
	"context"

	"google.golang.org/grpc/metadata"
)

// WithBearer attaches an access token to outgoing calls made with ctx.
func WithBearer(ctx context.Context, accessToken string) context.Context {
	if accessToken == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+accessToken)
}
